package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Comment is one message in a chapter thread, either a root or a single-level
// reply. Deletes are hard deletes: replies to a removed root are kept and stay
// readable under the orphaned parent id, so there is no cascade and no
// tombstone row.
type Comment struct {
	ID         string    `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	ChapterID  string    `gorm:"type:uuid;not null;index" json:"chapter_id"`
	AuthorID   *string   `gorm:"type:uuid;index" json:"author_id,omitempty"` // nil for guest authors
	AuthorName string    `gorm:"type:varchar(100);not null" json:"author_name"`
	ParentID   *string   `gorm:"type:uuid;index" json:"parent_id,omitempty"` // nil for roots; never changes once set
	Body       string    `gorm:"type:text;not null" json:"body"`
	Kind       string    `gorm:"type:varchar(20);not null;default:'text'" json:"kind"` // text, sticker
	StickerRef *string   `gorm:"type:text" json:"sticker_ref,omitempty"`
	Pinned     bool      `gorm:"not null;default:false" json:"pinned"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeCreate hook to generate UUID
func (c *Comment) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name
func (Comment) TableName() string {
	return "comments"
}

// IsRoot reports whether the comment is a thread root (only roots can be
// pinned or replied to).
func (c *Comment) IsRoot() bool {
	return c.ParentID == nil
}

// Comment kind constants
const (
	KindText    = "text"
	KindSticker = "sticker"
)

// GuestName is the display name snapshot used for anonymous authors.
const GuestName = "Guest"
