package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Work struct {
	ID        string         `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	AuthorID  string         `gorm:"type:uuid;not null;index;references:users(id)" json:"author_id"`
	Title     string         `gorm:"type:varchar(255);not null" json:"title"`
	Synopsis  string         `gorm:"type:text" json:"synopsis"`
	Format    string         `gorm:"type:varchar(20);not null;default:'novel'" json:"format"` // novel, comic
	CoverURL  *string        `gorm:"type:text" json:"cover_url,omitempty"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Author   User      `gorm:"foreignKey:AuthorID;references:ID" json:"author,omitempty"`
	Chapters []Chapter `gorm:"foreignKey:WorkID;references:ID" json:"chapters,omitempty"`
}

// BeforeCreate hook to generate UUID
func (w *Work) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name
func (Work) TableName() string {
	return "works"
}

// Format constants
const (
	FormatNovel = "novel"
	FormatComic = "comic"
)
