package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Reaction is one user's vote of one kind on a chapter thread. The row's
// existence is the vote: toggling deletes or reinserts, never increments.
// The composite unique index is what makes concurrent toggles from the same
// user safe (a racing double-insert fails on the constraint).
type Reaction struct {
	ID        string    `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	ChapterID string    `gorm:"type:uuid;not null;index:idx_chapter_user_kind,unique" json:"chapter_id"`
	UserID    string    `gorm:"type:uuid;not null;index:idx_chapter_user_kind,unique" json:"user_id"`
	Kind      string    `gorm:"type:varchar(20);not null;index:idx_chapter_user_kind,unique" json:"kind"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// BeforeCreate hook to generate UUID
func (r *Reaction) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name
func (Reaction) TableName() string {
	return "reactions"
}

// Reaction kind constants. Rows with kinds outside this set are ignored by
// the aggregator rather than rejected, so the enumeration can grow.
const (
	ReactionLike  = "like"
	ReactionLove  = "love"
	ReactionLaugh = "laugh"
)

// ReactionKinds is the fixed enumeration, in display order.
var ReactionKinds = []string{ReactionLike, ReactionLove, ReactionLaugh}

// IsValidReactionKind reports whether kind is part of the fixed enumeration.
func IsValidReactionKind(kind string) bool {
	for _, k := range ReactionKinds {
		if k == kind {
			return true
		}
	}
	return false
}
