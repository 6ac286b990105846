// Package engine is the comment & reaction engine: the only component that
// writes to the comment and reaction stores. It validates and authorizes
// every operation, encodes bodies through the content codec, and publishes a
// change-feed event after each settled write so every subscribed view
// (including the writer's own) converges by refetching.
package engine

import (
	"context"
	"strings"

	"storyloom/internal/content"
	"storyloom/internal/feed"
	"storyloom/internal/model"
	"storyloom/internal/thread"
)

const defaultPageSize = 20

type Engine struct {
	comments  CommentStore
	reactions ReactionStore
	owners    OwnerResolver
	bus       *feed.Bus
	notifier  Notifier
	pageSize  int
}

// New wires the engine to its stores and the change feed.
func New(comments CommentStore, reactions ReactionStore, owners OwnerResolver, bus *feed.Bus) *Engine {
	return &Engine{
		comments:  comments,
		reactions: reactions,
		owners:    owners,
		bus:       bus,
		pageSize:  defaultPageSize,
	}
}

// SetNotifier attaches an out-of-band notifier for new comments.
func (e *Engine) SetNotifier(n Notifier) {
	e.notifier = n
}

// SetPageSize overrides the fetch page size.
func (e *Engine) SetPageSize(n int) {
	if n > 0 {
		e.pageSize = n
	}
}

// PageSize returns the fixed fetch page size.
func (e *Engine) PageSize() int {
	return e.pageSize
}

// Bus returns the change feed the engine publishes to.
func (e *Engine) Bus() *feed.Bus {
	return e.bus
}

// PostRoot inserts a new text root comment authored by the session.
func (e *Engine) PostRoot(ctx context.Context, sess Session, threadID, text string) (*model.Comment, error) {
	return e.post(ctx, sess, threadID, text, nil)
}

// PostReply inserts a text reply under a root comment. Replying to a reply
// is rejected: nesting is a single level.
func (e *Engine) PostReply(ctx context.Context, sess Session, threadID, parentID, text string) (*model.Comment, error) {
	return e.post(ctx, sess, threadID, text, &parentID)
}

func (e *Engine) post(ctx context.Context, sess Session, threadID, text string, parentID *string) (*model.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyBody
	}

	parent, err := e.resolveParent(ctx, threadID, parentID)
	if err != nil {
		return nil, err
	}

	c := &model.Comment{
		ChapterID:  threadID,
		AuthorID:   sess.UserID,
		AuthorName: sess.Name(),
		ParentID:   parentID,
		Body:       content.EncodeText(text),
		Kind:       model.KindText,
	}
	if err := e.comments.Insert(ctx, c); err != nil {
		return nil, err
	}

	e.bus.Publish(threadID, feed.TableComments)
	if e.notifier != nil {
		go e.notifier.CommentPosted(c, parent)
	}
	return c, nil
}

// PostSticker inserts a sticker comment. The locator is recorded both in the
// explicit column and in the body encoding so older readers of the table
// stay correct.
func (e *Engine) PostSticker(ctx context.Context, sess Session, threadID, locator string, parentID *string) (*model.Comment, error) {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return nil, ErrEmptyBody
	}

	parent, err := e.resolveParent(ctx, threadID, parentID)
	if err != nil {
		return nil, err
	}

	c := &model.Comment{
		ChapterID:  threadID,
		AuthorID:   sess.UserID,
		AuthorName: sess.Name(),
		ParentID:   parentID,
		Body:       content.EncodeSticker(locator),
		Kind:       model.KindSticker,
		StickerRef: &locator,
	}
	if err := e.comments.Insert(ctx, c); err != nil {
		return nil, err
	}

	e.bus.Publish(threadID, feed.TableComments)
	if e.notifier != nil {
		go e.notifier.CommentPosted(c, parent)
	}
	return c, nil
}

func (e *Engine) resolveParent(ctx context.Context, threadID string, parentID *string) (*model.Comment, error) {
	if parentID == nil || *parentID == "" {
		return nil, nil
	}
	parent, err := e.comments.Get(ctx, *parentID)
	if err != nil || parent == nil {
		return nil, ErrParentNotFound
	}
	if parent.ChapterID != threadID {
		return nil, ErrParentMismatch
	}
	if !parent.IsRoot() {
		return nil, ErrReplyDepth
	}
	return parent, nil
}

// Edit overwrites the body with the new text. Allowed only for the author or
// the thread owner. Editing always yields a text comment: the kind is forced
// to text and the sticker ref cleared, while the pin flag carries over.
func (e *Engine) Edit(ctx context.Context, sess Session, id, newText string) (*model.Comment, error) {
	newText = strings.TrimSpace(newText)
	if newText == "" {
		return nil, ErrEmptyBody
	}

	c, err := e.comments.Get(ctx, id)
	if err != nil || c == nil {
		return nil, ErrNotFound
	}
	if err := e.authorize(ctx, sess, c); err != nil {
		return nil, err
	}

	// Lift a legacy in-body pin into the column before the body is replaced.
	c.Pinned = content.IsPinned(c)
	c.Body = content.EncodeText(newText)
	c.Kind = model.KindText
	c.StickerRef = nil

	if err := e.comments.Update(ctx, c); err != nil {
		return nil, err
	}
	e.bus.Publish(c.ChapterID, feed.TableComments)
	return c, nil
}

// Delete hard-deletes the comment. Allowed only for the author or the thread
// owner. Replies to a deleted root are not cascaded; they stay readable and
// individually deletable under the orphaned parent id.
func (e *Engine) Delete(ctx context.Context, sess Session, id string) error {
	c, err := e.comments.Get(ctx, id)
	if err != nil || c == nil {
		return ErrNotFound
	}
	if err := e.authorize(ctx, sess, c); err != nil {
		return err
	}
	if err := e.comments.Delete(ctx, id); err != nil {
		return err
	}
	e.bus.Publish(c.ChapterID, feed.TableComments)
	return nil
}

// TogglePin flips the pin slot on a root comment. Thread owner only. Pinning
// clears every other pinned root of the thread (the store does this in one
// transaction); unpinning never re-pins anything else.
func (e *Engine) TogglePin(ctx context.Context, sess Session, id string) (*model.Comment, error) {
	c, err := e.comments.Get(ctx, id)
	if err != nil || c == nil {
		return nil, ErrNotFound
	}
	if !c.IsRoot() {
		return nil, ErrPinTarget
	}
	owner, err := e.owners.ThreadOwner(ctx, c.ChapterID)
	if err != nil {
		return nil, err
	}
	if !sess.SignedIn() || *sess.UserID != owner {
		return nil, ErrForbidden
	}

	pinned := !content.IsPinned(c)

	// Legacy rows keep the pin in the body; move it to the column so the
	// toggle is a lossless round trip on the visible text.
	if content.Normalize(c) {
		if err := e.comments.Update(ctx, c); err != nil {
			return nil, err
		}
	}

	if err := e.comments.SetPinned(ctx, c.ChapterID, c.ID, pinned); err != nil {
		return nil, err
	}
	c.Pinned = pinned
	e.bus.Publish(c.ChapterID, feed.TableComments)
	return c, nil
}

// ToggleReaction flips the viewer's reaction of one kind on the thread.
// Guests are bounced to sign-in with no state change. The toggle never
// mutates counts locally; views converge via the feed-triggered refetch, so
// a write the store rejects (e.g. a uniqueness race from a second device)
// leaves no drift behind.
func (e *Engine) ToggleReaction(ctx context.Context, sess Session, threadID, kind string) error {
	if !sess.SignedIn() {
		return ErrSignInRequired
	}
	if !model.IsValidReactionKind(kind) {
		return ErrUnknownReaction
	}

	existing, err := e.reactions.Find(ctx, threadID, *sess.UserID, kind)
	if err != nil {
		return err
	}
	if existing != nil {
		err = e.reactions.DeleteByKey(ctx, threadID, *sess.UserID, kind)
	} else {
		err = e.reactions.Insert(ctx, &model.Reaction{
			ChapterID: threadID,
			UserID:    *sess.UserID,
			Kind:      kind,
		})
	}
	if err != nil {
		return err
	}
	e.bus.Publish(threadID, feed.TableReactions)
	return nil
}

// FetchPage returns one page of the thread's comments under the given sort.
// page is zero-based. The second result reports whether another page may
// exist. Top ordering fetches newest-first; the re-sort over the loaded set
// is the assembler's job.
func (e *Engine) FetchPage(ctx context.Context, threadID string, mode thread.SortMode, page int) ([]*model.Comment, bool, error) {
	if !thread.IsValidSortMode(mode) {
		return nil, false, ErrUnknownSort
	}
	if page < 0 {
		page = 0
	}
	ascending := mode == thread.SortOld
	rows, err := e.comments.ListPage(ctx, threadID, ascending, e.pageSize, page*e.pageSize)
	if err != nil {
		return nil, false, err
	}
	return rows, len(rows) == e.pageSize, nil
}

// Reactions returns the thread's reaction tally for one viewer.
func (e *Engine) Reactions(ctx context.Context, threadID string, viewerID *string) (thread.Tally, error) {
	rows, err := e.reactions.ListByThread(ctx, threadID)
	if err != nil {
		return thread.Tally{}, err
	}
	return thread.TallyReactions(rows, viewerID), nil
}

// authorize permits the comment's author or the thread owner and nobody
// else. A guest-authored comment has no author to match, so only the owner
// may act on it.
func (e *Engine) authorize(ctx context.Context, sess Session, c *model.Comment) error {
	if !sess.SignedIn() {
		return ErrForbidden
	}
	if c.AuthorID != nil && *c.AuthorID == *sess.UserID {
		return nil
	}
	owner, err := e.owners.ThreadOwner(ctx, c.ChapterID)
	if err != nil {
		return err
	}
	if owner == *sess.UserID {
		return nil
	}
	return ErrForbidden
}
