package engine

import (
	"context"
	"errors"

	"storyloom/internal/model"
)

// Session is the caller's identity, injected explicitly so tests can
// substitute identities deterministically. A nil UserID is a guest.
type Session struct {
	UserID      *string
	DisplayName string
}

// NewSession builds a signed-in session.
func NewSession(userID, displayName string) Session {
	return Session{UserID: &userID, DisplayName: displayName}
}

// GuestSession builds an anonymous session.
func GuestSession() Session {
	return Session{}
}

// SignedIn reports whether the session belongs to an authenticated user.
func (s Session) SignedIn() bool {
	return s.UserID != nil
}

// Name returns the display name to snapshot onto authored comments.
func (s Session) Name() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return model.GuestName
}

// Validation and permission errors. All are rejected before any store call
// and surface as inline, non-fatal state on the view.
var (
	ErrEmptyBody       = errors.New("comment body is empty")
	ErrSignInRequired  = errors.New("sign in required")
	ErrForbidden       = errors.New("not allowed")
	ErrNotFound        = errors.New("comment not found")
	ErrParentNotFound  = errors.New("parent comment not found")
	ErrParentMismatch  = errors.New("parent comment belongs to a different thread")
	ErrReplyDepth      = errors.New("replies cannot be replied to")
	ErrPinTarget       = errors.New("only root comments can be pinned")
	ErrUnknownReaction = errors.New("unknown reaction kind")
	ErrUnknownSort     = errors.New("unknown sort mode")
)

// CommentStore is the comment table: insert/update/delete plus filtered
// range queries ordered by creation time.
type CommentStore interface {
	Insert(ctx context.Context, c *model.Comment) error
	Get(ctx context.Context, id string) (*model.Comment, error)
	Update(ctx context.Context, c *model.Comment) error
	Delete(ctx context.Context, id string) error
	// ListPage returns one page of a thread's comments ordered by created_at.
	ListPage(ctx context.Context, threadID string, ascending bool, limit, offset int) ([]*model.Comment, error)
	// SetPinned toggles the pin slot. When pinning, the store clears the pin
	// on every other root of the thread in the same transaction, so the
	// single-pin invariant holds threadwide, not just over fetched pages.
	SetPinned(ctx context.Context, threadID, id string, pinned bool) error
}

// ReactionStore is the reaction table. Find returns (nil, nil) when the
// viewer holds no row for that kind.
type ReactionStore interface {
	ListByThread(ctx context.Context, threadID string) ([]*model.Reaction, error)
	Find(ctx context.Context, threadID, userID, kind string) (*model.Reaction, error)
	Insert(ctx context.Context, r *model.Reaction) error
	DeleteByKey(ctx context.Context, threadID, userID, kind string) error
}

// OwnerResolver maps a thread to the user who owns it (the author of the
// work the chapter belongs to). The owner may pin and moderate the thread.
type OwnerResolver interface {
	ThreadOwner(ctx context.Context, threadID string) (string, error)
}

// Notifier is told about new comments so reply/thread notifications can be
// delivered out of band. parent is nil for root comments.
type Notifier interface {
	CommentPosted(c *model.Comment, parent *model.Comment)
}
