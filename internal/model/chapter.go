package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Chapter struct {
	ID        string         `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	WorkID    string         `gorm:"type:uuid;not null;index;references:works(id)" json:"work_id"`
	Number    int            `gorm:"not null" json:"number"`
	Title     string         `gorm:"type:varchar(255);not null" json:"title"`
	Body      string         `gorm:"type:text" json:"body"`
	Status    string         `gorm:"type:varchar(20);not null;default:'draft'" json:"status"` // draft, pending, published, rejected
	Note      *string        `gorm:"type:text" json:"note,omitempty"`                         // moderator note on reject
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Work Work `gorm:"foreignKey:WorkID;references:ID" json:"work,omitempty"`
}

// BeforeCreate hook to generate UUID
func (c *Chapter) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name
func (Chapter) TableName() string {
	return "chapters"
}

// Chapter status constants
const (
	ChapterDraft     = "draft"
	ChapterPending   = "pending"
	ChapterPublished = "published"
	ChapterRejected  = "rejected"
)
