package engine

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"storyloom/internal/content"
	"storyloom/internal/feed"
	"storyloom/internal/model"
	"storyloom/internal/thread"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCommentStore is an in-memory CommentStore with deterministic ordering.
type fakeCommentStore struct {
	mu   sync.Mutex
	rows map[string]*model.Comment
	seq  int
}

func newFakeCommentStore() *fakeCommentStore {
	return &fakeCommentStore{rows: make(map[string]*model.Comment)}
}

func (s *fakeCommentStore) Insert(_ context.Context, c *model.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	s.seq++
	c.CreatedAt = time.Unix(int64(s.seq), 0)
	c.UpdatedAt = c.CreatedAt
	cp := *c
	s.rows[c.ID] = &cp
	return nil
}

func (s *fakeCommentStore) Get(_ context.Context, id string) (*model.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (s *fakeCommentStore) Update(_ context.Context, c *model.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.rows[c.ID] = &cp
	return nil
}

func (s *fakeCommentStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, id)
	return nil
}

func (s *fakeCommentStore) ListPage(_ context.Context, threadID string, ascending bool, limit, offset int) ([]*model.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []*model.Comment
	for _, c := range s.rows {
		if c.ChapterID == threadID {
			cp := *c
			list = append(list, &cp)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if ascending {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[j].CreatedAt.Before(list[i].CreatedAt)
	})
	if offset >= len(list) {
		return nil, nil
	}
	list = list[offset:]
	if len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (s *fakeCommentStore) SetPinned(_ context.Context, threadID, id string, pinned bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pinned {
		for _, c := range s.rows {
			if c.ChapterID == threadID && c.ID != id {
				c.Pinned = false
			}
		}
	}
	if c, ok := s.rows[id]; ok {
		c.Pinned = pinned
	}
	return nil
}

// fakeReactionStore is an in-memory ReactionStore keyed like the unique index.
type fakeReactionStore struct {
	mu   sync.Mutex
	rows map[string]*model.Reaction
}

func newFakeReactionStore() *fakeReactionStore {
	return &fakeReactionStore{rows: make(map[string]*model.Reaction)}
}

func reactionKey(threadID, userID, kind string) string {
	return threadID + "|" + userID + "|" + kind
}

func (s *fakeReactionStore) ListByThread(_ context.Context, threadID string) ([]*model.Reaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []*model.Reaction
	for _, r := range s.rows {
		if r.ChapterID == threadID {
			cp := *r
			list = append(list, &cp)
		}
	}
	return list, nil
}

func (s *fakeReactionStore) Find(_ context.Context, threadID, userID, kind string) (*model.Reaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[reactionKey(threadID, userID, kind)]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (s *fakeReactionStore) Insert(_ context.Context, r *model.Reaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	cp := *r
	s.rows[reactionKey(r.ChapterID, r.UserID, r.Kind)] = &cp
	return nil
}

func (s *fakeReactionStore) DeleteByKey(_ context.Context, threadID, userID, kind string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, reactionKey(threadID, userID, kind))
	return nil
}

// fakeOwners maps every thread to a single fixed owner.
type fakeOwners struct{ owner string }

func (f fakeOwners) ThreadOwner(_ context.Context, _ string) (string, error) {
	return f.owner, nil
}

const (
	testThread = "thread-1"
	ownerID    = "owner-1"
	aliceID    = "alice-1"
	bobID      = "bob-1"
)

func newTestEngine() (*Engine, *fakeCommentStore, *fakeReactionStore) {
	comments := newFakeCommentStore()
	reactions := newFakeReactionStore()
	eng := New(comments, reactions, fakeOwners{owner: ownerID}, feed.NewBus())
	return eng, comments, reactions
}

func alice() Session { return NewSession(aliceID, "Alice") }
func bob() Session   { return NewSession(bobID, "Bob") }
func owner() Session { return NewSession(ownerID, "Owner") }

func TestPostRootRejectsEmptyBody(t *testing.T) {
	eng, _, _ := newTestEngine()
	ctx := context.Background()

	_, err := eng.PostRoot(ctx, alice(), testThread, "")
	assert.ErrorIs(t, err, ErrEmptyBody)

	_, err = eng.PostRoot(ctx, alice(), testThread, "   \n\t ")
	assert.ErrorIs(t, err, ErrEmptyBody)
}

func TestPostRootSnapshotsAuthor(t *testing.T) {
	eng, _, _ := newTestEngine()
	ctx := context.Background()

	c, err := eng.PostRoot(ctx, alice(), testThread, "hello")
	require.NoError(t, err)
	require.NotNil(t, c.AuthorID)
	assert.Equal(t, aliceID, *c.AuthorID)
	assert.Equal(t, "Alice", c.AuthorName)
	assert.Equal(t, model.KindText, c.Kind)
	assert.Nil(t, c.ParentID)
}

func TestGuestsMayPostComments(t *testing.T) {
	eng, _, _ := newTestEngine()
	ctx := context.Background()

	c, err := eng.PostRoot(ctx, GuestSession(), testThread, "drive-by comment")
	require.NoError(t, err)
	assert.Nil(t, c.AuthorID)
	assert.Equal(t, model.GuestName, c.AuthorName)
}

func TestPostReplyValidatesParent(t *testing.T) {
	eng, _, _ := newTestEngine()
	ctx := context.Background()

	root, err := eng.PostRoot(ctx, alice(), testThread, "root")
	require.NoError(t, err)

	_, err = eng.PostReply(ctx, bob(), testThread, "no-such-id", "hi")
	assert.ErrorIs(t, err, ErrParentNotFound)

	// Parent lives in a different thread
	_, err = eng.PostReply(ctx, bob(), "other-thread", root.ID, "hi")
	assert.ErrorIs(t, err, ErrParentMismatch)

	reply, err := eng.PostReply(ctx, bob(), testThread, root.ID, "hi")
	require.NoError(t, err)

	// One nesting level only: replying to a reply is rejected
	_, err = eng.PostReply(ctx, alice(), testThread, reply.ID, "deeper")
	assert.ErrorIs(t, err, ErrReplyDepth)
}

func TestPostStickerDualEncoding(t *testing.T) {
	eng, _, _ := newTestEngine()
	ctx := context.Background()

	c, err := eng.PostSticker(ctx, alice(), testThread, "cat/wave", nil)
	require.NoError(t, err)
	assert.Equal(t, model.KindSticker, c.Kind)
	require.NotNil(t, c.StickerRef)
	assert.Equal(t, "cat/wave", *c.StickerRef)
	assert.Equal(t, "[sticker]cat/wave", c.Body)

	_, err = eng.PostSticker(ctx, alice(), testThread, "  ", nil)
	assert.ErrorIs(t, err, ErrEmptyBody)
}

func TestEditAuthorization(t *testing.T) {
	eng, _, _ := newTestEngine()
	ctx := context.Background()

	c, err := eng.PostRoot(ctx, alice(), testThread, "original")
	require.NoError(t, err)

	_, err = eng.Edit(ctx, bob(), c.ID, "hijacked")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = eng.Edit(ctx, GuestSession(), c.ID, "hijacked")
	assert.ErrorIs(t, err, ErrForbidden)

	// The author and the thread owner may edit
	edited, err := eng.Edit(ctx, alice(), c.ID, "fixed by author")
	require.NoError(t, err)
	assert.Equal(t, "fixed by author", edited.Body)

	edited, err = eng.Edit(ctx, owner(), c.ID, "moderated")
	require.NoError(t, err)
	assert.Equal(t, "moderated", edited.Body)
}

func TestEditStickerBecomesText(t *testing.T) {
	eng, _, _ := newTestEngine()
	ctx := context.Background()

	c, err := eng.PostSticker(ctx, alice(), testThread, "cat/wave", nil)
	require.NoError(t, err)

	edited, err := eng.Edit(ctx, alice(), c.ID, "words instead")
	require.NoError(t, err)
	assert.Equal(t, model.KindText, edited.Kind)
	assert.Nil(t, edited.StickerRef)
	assert.Equal(t, "words instead", edited.Body)
}

func TestEditLegacyPinnedRowKeepsPin(t *testing.T) {
	eng, comments, _ := newTestEngine()
	ctx := context.Background()

	// A row written by the legacy format: pin lives in the body
	legacy := &model.Comment{
		ChapterID:  testThread,
		AuthorID:   strptr(aliceID),
		AuthorName: "Alice",
		Body:       "[pin]old words",
		Kind:       model.KindText,
	}
	require.NoError(t, comments.Insert(ctx, legacy))

	edited, err := eng.Edit(ctx, alice(), legacy.ID, "new words")
	require.NoError(t, err)
	assert.True(t, edited.Pinned)
	assert.Equal(t, "new words", edited.Body)
}

func TestDeleteLeavesRepliesOrphaned(t *testing.T) {
	eng, comments, _ := newTestEngine()
	ctx := context.Background()

	root, err := eng.PostRoot(ctx, alice(), testThread, "root")
	require.NoError(t, err)
	reply, err := eng.PostReply(ctx, bob(), testThread, root.ID, "reply")
	require.NoError(t, err)

	require.NoError(t, eng.Delete(ctx, alice(), root.ID))

	gone, err := comments.Get(ctx, root.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	kept, err := comments.Get(ctx, reply.ID)
	require.NoError(t, err)
	require.NotNil(t, kept)
	assert.Equal(t, root.ID, *kept.ParentID)
}

func TestDeleteAuthorization(t *testing.T) {
	eng, _, _ := newTestEngine()
	ctx := context.Background()

	c, err := eng.PostRoot(ctx, alice(), testThread, "root")
	require.NoError(t, err)

	assert.ErrorIs(t, eng.Delete(ctx, bob(), c.ID), ErrForbidden)
	assert.NoError(t, eng.Delete(ctx, owner(), c.ID))
	assert.ErrorIs(t, eng.Delete(ctx, owner(), c.ID), ErrNotFound)
}

func TestTogglePinOwnerOnlyRootsOnly(t *testing.T) {
	eng, _, _ := newTestEngine()
	ctx := context.Background()

	root, err := eng.PostRoot(ctx, alice(), testThread, "root")
	require.NoError(t, err)
	reply, err := eng.PostReply(ctx, bob(), testThread, root.ID, "reply")
	require.NoError(t, err)

	_, err = eng.TogglePin(ctx, alice(), root.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = eng.TogglePin(ctx, GuestSession(), root.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = eng.TogglePin(ctx, owner(), reply.ID)
	assert.ErrorIs(t, err, ErrPinTarget)

	pinnedRoot, err := eng.TogglePin(ctx, owner(), root.ID)
	require.NoError(t, err)
	assert.True(t, pinnedRoot.Pinned)
}

func TestTogglePinExclusive(t *testing.T) {
	eng, comments, _ := newTestEngine()
	ctx := context.Background()

	r1, err := eng.PostRoot(ctx, alice(), testThread, "first")
	require.NoError(t, err)
	r2, err := eng.PostRoot(ctx, bob(), testThread, "second")
	require.NoError(t, err)

	_, err = eng.TogglePin(ctx, owner(), r1.ID)
	require.NoError(t, err)

	// Pinning the second clears the first
	_, err = eng.TogglePin(ctx, owner(), r2.ID)
	require.NoError(t, err)

	got1, _ := comments.Get(ctx, r1.ID)
	got2, _ := comments.Get(ctx, r2.ID)
	assert.False(t, got1.Pinned)
	assert.True(t, got2.Pinned)

	// Unpinning the second pins nothing back
	_, err = eng.TogglePin(ctx, owner(), r2.ID)
	require.NoError(t, err)
	got1, _ = comments.Get(ctx, r1.ID)
	got2, _ = comments.Get(ctx, r2.ID)
	assert.False(t, got1.Pinned)
	assert.False(t, got2.Pinned)
}

func TestTogglePinLegacyRowRoundTrip(t *testing.T) {
	eng, comments, _ := newTestEngine()
	ctx := context.Background()

	legacy := &model.Comment{
		ChapterID:  testThread,
		AuthorID:   strptr(aliceID),
		AuthorName: "Alice",
		Body:       "[pin]the original text",
		Kind:       model.KindText,
	}
	require.NoError(t, comments.Insert(ctx, legacy))

	// Legacy row reads as pinned, so the toggle unpins it
	c, err := eng.TogglePin(ctx, owner(), legacy.ID)
	require.NoError(t, err)
	assert.False(t, c.Pinned)

	stored, _ := comments.Get(ctx, legacy.ID)
	assert.Equal(t, "the original text", stored.Body)
	assert.False(t, content.IsPinned(stored))

	// Toggling back pins via the column, leaving the body untouched
	c, err = eng.TogglePin(ctx, owner(), legacy.ID)
	require.NoError(t, err)
	assert.True(t, c.Pinned)
	stored, _ = comments.Get(ctx, legacy.ID)
	assert.Equal(t, "the original text", stored.Body)
}

func TestToggleReaction(t *testing.T) {
	eng, _, _ := newTestEngine()
	ctx := context.Background()

	assert.ErrorIs(t, eng.ToggleReaction(ctx, GuestSession(), testThread, model.ReactionLike), ErrSignInRequired)
	assert.ErrorIs(t, eng.ToggleReaction(ctx, alice(), testThread, "angry"), ErrUnknownReaction)

	require.NoError(t, eng.ToggleReaction(ctx, alice(), testThread, model.ReactionLike))
	require.NoError(t, eng.ToggleReaction(ctx, bob(), testThread, model.ReactionLike))

	viewer := aliceID
	tally, err := eng.Reactions(ctx, testThread, &viewer)
	require.NoError(t, err)
	assert.Equal(t, 2, tally.Counts[model.ReactionLike])
	assert.True(t, tally.Mine[model.ReactionLike])

	// Toggling again removes alice's row only
	require.NoError(t, eng.ToggleReaction(ctx, alice(), testThread, model.ReactionLike))
	tally, err = eng.Reactions(ctx, testThread, &viewer)
	require.NoError(t, err)
	assert.Equal(t, 1, tally.Counts[model.ReactionLike])
	assert.False(t, tally.Mine[model.ReactionLike])
}

func TestFetchPageOrderAndHasMore(t *testing.T) {
	eng, _, _ := newTestEngine()
	eng.SetPageSize(2)
	ctx := context.Background()

	var ids []string
	for _, body := range []string{"one", "two", "three"} {
		c, err := eng.PostRoot(ctx, alice(), testThread, body)
		require.NoError(t, err)
		ids = append(ids, c.ID)
	}

	// Newest first by default
	rows, hasMore, err := eng.FetchPage(ctx, testThread, thread.SortNew, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, hasMore)
	assert.Equal(t, ids[2], rows[0].ID)
	assert.Equal(t, ids[1], rows[1].ID)

	rows, hasMore, err = eng.FetchPage(ctx, testThread, thread.SortNew, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.False(t, hasMore)
	assert.Equal(t, ids[0], rows[0].ID)

	// Oldest first flips the scan
	rows, _, err = eng.FetchPage(ctx, testThread, thread.SortOld, 0)
	require.NoError(t, err)
	assert.Equal(t, ids[0], rows[0].ID)

	_, _, err = eng.FetchPage(ctx, testThread, thread.SortMode("hot"), 0)
	assert.ErrorIs(t, err, ErrUnknownSort)
}

func TestWritesPublishChangeEvents(t *testing.T) {
	eng, _, _ := newTestEngine()
	ctx := context.Background()

	sub := eng.Bus().Subscribe(testThread)
	defer sub.Close()

	_, err := eng.PostRoot(ctx, alice(), testThread, "hello")
	require.NoError(t, err)
	require.Len(t, sub.C, 1)
	ev := <-sub.C
	assert.Equal(t, feed.TableComments, ev.Table)

	require.NoError(t, eng.ToggleReaction(ctx, alice(), testThread, model.ReactionLove))
	ev = <-sub.C
	assert.Equal(t, feed.TableReactions, ev.Table)
}

func strptr(s string) *string { return &s }
