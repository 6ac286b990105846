package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Notification struct {
	ID        string     `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	UserID    string     `gorm:"type:uuid;not null;index" json:"user_id"`
	SenderID  *string    `gorm:"type:uuid;index" json:"sender_id,omitempty"`
	Type      string     `gorm:"type:varchar(50);not null" json:"type"` // comment_reply, chapter_comment, chapter_decision
	Title     string     `gorm:"type:varchar(255);not null" json:"title"`
	Message   string     `gorm:"type:text" json:"message"`
	TargetID  *string    `gorm:"type:uuid;index" json:"target_id,omitempty"` // related comment or chapter id
	IsRead    bool       `gorm:"default:false" json:"is_read"`
	ReadAt    *time.Time `gorm:"type:timestamp" json:"read_at,omitempty"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeCreate hook to generate UUID
func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name
func (Notification) TableName() string {
	return "notifications"
}

// Notification type constants
const (
	NotificationTypeCommentReply    = "comment_reply"
	NotificationTypeChapterComment  = "chapter_comment"
	NotificationTypeChapterDecision = "chapter_decision"
)
