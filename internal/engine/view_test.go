package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"storyloom/internal/feed"
	"storyloom/internal/model"
	"storyloom/internal/thread"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViewRefreshLoadsFirstPage(t *testing.T) {
	eng, _, _ := newTestEngine()
	ctx := context.Background()

	_, err := eng.PostRoot(ctx, alice(), testThread, "hello")
	require.NoError(t, err)

	v := NewView(eng, bob(), testThread, nil)
	assert.Equal(t, StateIdle, v.Snapshot().State)

	v.Refresh(ctx)

	snap := v.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.False(t, snap.IsLoading)
	require.Len(t, snap.RootComments, 1)
	assert.Equal(t, "hello", snap.RootComments[0].Body)
	assert.Empty(t, snap.LastError)
}

func TestViewSnapshotDecodesStickers(t *testing.T) {
	eng, _, _ := newTestEngine()
	ctx := context.Background()

	_, err := eng.PostSticker(ctx, alice(), testThread, "cat/wave", nil)
	require.NoError(t, err)

	v := NewView(eng, GuestSession(), testThread, nil)
	v.Refresh(ctx)

	snap := v.Snapshot()
	require.Len(t, snap.RootComments, 1)
	cv := snap.RootComments[0]
	assert.True(t, cv.Sticker)
	assert.Equal(t, "cat/wave", cv.StickerURL)
	assert.Empty(t, cv.Body)
}

func TestViewLoadMoreAccumulates(t *testing.T) {
	eng, _, _ := newTestEngine()
	eng.SetPageSize(2)
	ctx := context.Background()

	for _, body := range []string{"one", "two", "three"} {
		_, err := eng.PostRoot(ctx, alice(), testThread, body)
		require.NoError(t, err)
	}

	v := NewView(eng, bob(), testThread, nil)
	v.Refresh(ctx)

	snap := v.Snapshot()
	require.Len(t, snap.RootComments, 2)
	assert.True(t, snap.HasMore)

	v.LoadMore(ctx)

	snap = v.Snapshot()
	require.Len(t, snap.RootComments, 3)
	assert.False(t, snap.HasMore)

	// Nothing further to load: a no-op
	v.LoadMore(ctx)
	assert.Len(t, v.Snapshot().RootComments, 3)
}

func TestViewChangeSortRestartsPagination(t *testing.T) {
	eng, _, _ := newTestEngine()
	eng.SetPageSize(2)
	ctx := context.Background()

	var ids []string
	for _, body := range []string{"one", "two", "three"} {
		c, err := eng.PostRoot(ctx, alice(), testThread, body)
		require.NoError(t, err)
		ids = append(ids, c.ID)
	}

	v := NewView(eng, bob(), testThread, nil)
	v.Refresh(ctx)
	v.LoadMore(ctx)
	require.Len(t, v.Snapshot().RootComments, 3)

	v.ChangeSort(ctx, thread.SortOld)

	snap := v.Snapshot()
	assert.Equal(t, thread.SortOld, snap.SortMode)
	// Back to one page, oldest first
	require.Len(t, snap.RootComments, 2)
	assert.Equal(t, ids[0], snap.RootComments[0].ID)
	assert.True(t, snap.HasMore)
}

func TestViewChangeSortRejectsUnknownMode(t *testing.T) {
	eng, _, _ := newTestEngine()
	ctx := context.Background()

	v := NewView(eng, bob(), testThread, nil)
	v.Refresh(ctx)

	v.ChangeSort(ctx, thread.SortMode("hot"))

	snap := v.Snapshot()
	assert.Equal(t, ErrUnknownSort.Error(), snap.LastError)
	assert.Equal(t, thread.SortNew, snap.SortMode)
}

func TestViewWriteFailureSurfacesInline(t *testing.T) {
	eng, _, _ := newTestEngine()
	ctx := context.Background()

	_, err := eng.PostRoot(ctx, alice(), testThread, "existing")
	require.NoError(t, err)

	// A guest reacting is rejected before any state changes
	v := NewView(eng, GuestSession(), testThread, nil)
	v.Refresh(ctx)
	before := v.Snapshot()

	v.React(ctx, model.ReactionLike)

	snap := v.Snapshot()
	assert.Equal(t, ErrSignInRequired.Error(), snap.LastError)
	// The loaded list is untouched by the failure
	assert.Equal(t, len(before.RootComments), len(snap.RootComments))
	assert.Equal(t, before.ReactionCounts, snap.ReactionCounts)
}

func TestViewWriteSuccessRefetches(t *testing.T) {
	eng, _, _ := newTestEngine()
	ctx := context.Background()

	v := NewView(eng, alice(), testThread, nil)
	v.Refresh(ctx)
	require.Empty(t, v.Snapshot().RootComments)

	v.PostRoot(ctx, "first post")

	snap := v.Snapshot()
	require.Len(t, snap.RootComments, 1)
	assert.Equal(t, "first post", snap.RootComments[0].Body)
	assert.Empty(t, snap.LastError)

	v.React(ctx, model.ReactionLove)
	snap = v.Snapshot()
	assert.Equal(t, 1, snap.ReactionCounts[model.ReactionLove])
	assert.True(t, snap.MyReactions[model.ReactionLove])
}

func TestViewEmitsSnapshotsToCallback(t *testing.T) {
	eng, _, _ := newTestEngine()
	ctx := context.Background()

	snaps := make(chan Snapshot, 16)
	v := NewView(eng, alice(), testThread, func(s Snapshot) { snaps <- s })
	v.Refresh(ctx)

	select {
	case s := <-snaps:
		assert.Equal(t, StateReady, s.State)
	default:
		t.Fatal("expected a snapshot after refresh")
	}
}

func TestViewConvergesOnFeedEvents(t *testing.T) {
	eng, _, _ := newTestEngine()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	snaps := make(chan Snapshot, 32)
	v := NewView(eng, bob(), testThread, func(s Snapshot) { snaps <- s })
	v.Start(ctx)
	defer v.Close()

	// Another session writes; this view must converge without acting itself
	_, err := eng.PostRoot(ctx, alice(), testThread, "news")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snap := v.Snapshot()
		return len(snap.RootComments) == 1 && snap.RootComments[0].Body == "news"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestViewReadFailureKeepsLastGoodRows(t *testing.T) {
	comments := newFakeCommentStore()
	reactions := newFakeReactionStore()
	failing := &failingCommentStore{fakeCommentStore: comments}
	eng := New(failing, reactions, fakeOwners{owner: ownerID}, feed.NewBus())
	ctx := context.Background()

	_, err := eng.PostRoot(ctx, alice(), testThread, "kept")
	require.NoError(t, err)

	v := NewView(eng, bob(), testThread, nil)
	v.Refresh(ctx)
	require.Len(t, v.Snapshot().RootComments, 1)

	failing.fail = true
	v.Refresh(ctx)

	snap := v.Snapshot()
	assert.NotEmpty(t, snap.LastError)
	assert.Equal(t, StateReady, snap.State)
	// Previously loaded rows survive the failed refetch
	require.Len(t, snap.RootComments, 1)
	assert.Equal(t, "kept", snap.RootComments[0].Body)
}

func TestViewInitialLoadFailureSettlesEmpty(t *testing.T) {
	comments := newFakeCommentStore()
	reactions := newFakeReactionStore()
	failing := &failingCommentStore{fakeCommentStore: comments, fail: true}
	eng := New(failing, reactions, fakeOwners{owner: ownerID}, feed.NewBus())
	ctx := context.Background()

	v := NewView(eng, bob(), testThread, nil)
	v.Refresh(ctx)

	// A failed first fetch must not park the view in a loading state
	snap := v.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.False(t, snap.IsLoading)
	assert.Equal(t, "store unavailable", snap.LastError)
	assert.Empty(t, snap.RootComments)

	// Once the store recovers, a refresh clears the error and loads rows
	failing.fail = false
	_, err := eng.PostRoot(ctx, alice(), testThread, "back up")
	require.NoError(t, err)
	v.Refresh(ctx)

	snap = v.Snapshot()
	assert.Empty(t, snap.LastError)
	require.Len(t, snap.RootComments, 1)
	assert.Equal(t, "back up", snap.RootComments[0].Body)
}

// failingCommentStore fails reads on demand.
type failingCommentStore struct {
	*fakeCommentStore
	fail bool
}

func (s *failingCommentStore) ListPage(ctx context.Context, threadID string, ascending bool, limit, offset int) ([]*model.Comment, error) {
	if s.fail {
		return nil, errors.New("store unavailable")
	}
	return s.fakeCommentStore.ListPage(ctx, threadID, ascending, limit, offset)
}
