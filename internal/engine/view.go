package engine

import (
	"context"
	"sync"
	"time"

	"storyloom/internal/content"
	"storyloom/internal/feed"
	"storyloom/internal/model"
	"storyloom/internal/thread"
)

// State is the view's lifecycle: Idle -> Loading -> Ready <-> LoadingMore.
type State string

const (
	StateIdle        State = "idle"
	StateLoading     State = "loading"
	StateReady       State = "ready"
	StateLoadingMore State = "loading_more"
)

// CommentView is one comment decoded for rendering.
type CommentView struct {
	ID         string    `json:"id"`
	AuthorID   *string   `json:"author_id,omitempty"`
	AuthorName string    `json:"author_name"`
	ParentID   *string   `json:"parent_id,omitempty"`
	Body       string    `json:"body"`
	Sticker    bool      `json:"sticker"`
	StickerURL string    `json:"sticker_url,omitempty"`
	Pinned     bool      `json:"pinned"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewCommentView decodes one stored comment for rendering.
func NewCommentView(c *model.Comment) CommentView {
	return newCommentView(c)
}

func newCommentView(c *model.Comment) CommentView {
	v := CommentView{
		ID:         c.ID,
		AuthorID:   c.AuthorID,
		AuthorName: c.AuthorName,
		ParentID:   c.ParentID,
		Body:       content.VisibleBody(c),
		Sticker:    content.IsSticker(c),
		Pinned:     content.IsPinned(c),
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
	if url, ok := content.StickerLocator(c); ok {
		v.StickerURL = url
		v.Body = "" // sticker bodies are locators, never prose
	}
	return v
}

// Snapshot is the reactive view model pushed to the UI after every settled
// refresh. It is always a projection of a server-confirmed fetch, never a
// local guess.
type Snapshot struct {
	ThreadID        string                   `json:"thread_id"`
	RootComments    []CommentView            `json:"root_comments"`
	RepliesByParent map[string][]CommentView `json:"replies_by_parent"`
	ReactionCounts  map[string]int           `json:"reaction_counts"`
	MyReactions     map[string]bool          `json:"my_reactions"`
	SortMode        thread.SortMode          `json:"sort_mode"`
	HasMore         bool                     `json:"has_more"`
	IsLoading       bool                     `json:"is_loading"`
	State           State                    `json:"state"`
	LastError       string                   `json:"last_error,omitempty"`
}

// View is one mounted thread view: it owns the accumulated pages, the sort
// mode, and the feed subscription, and keeps them consistent by refetching.
// The in-memory lists are a disposable projection, always rebuildable from a
// fresh fetch; no optimistic mutation ever touches them.
type View struct {
	engine   *Engine
	sess     Session
	threadID string

	mu       sync.Mutex
	sortMode thread.SortMode
	rows     []*model.Comment
	pages    int
	tally    thread.Tally
	state    State
	hasMore  bool
	lastErr  string
	closed   bool

	sub        *feed.Subscription
	refresh    chan struct{}
	onSnapshot func(Snapshot)
}

// NewView builds a view for one session over one thread. onSnapshot (may be
// nil) is called after every settled state change.
func NewView(e *Engine, sess Session, threadID string, onSnapshot func(Snapshot)) *View {
	return &View{
		engine:     e,
		sess:       sess,
		threadID:   threadID,
		sortMode:   thread.SortNew,
		state:      StateIdle,
		refresh:    make(chan struct{}, 1),
		onSnapshot: onSnapshot,
		tally:      thread.TallyReactions(nil, nil),
	}
}

// Start performs the initial load, subscribes to the change feed, and runs
// the refresh loop until ctx is cancelled or Close is called.
func (v *View) Start(ctx context.Context) {
	v.sub = v.engine.Bus().Subscribe(v.threadID)
	v.Refresh(ctx)
	go v.run(ctx)
}

// Close tears down the feed subscription. A fetch completing afterwards is
// dropped, not applied.
func (v *View) Close() {
	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()
	if v.sub != nil {
		v.sub.Close()
	}
}

func (v *View) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			v.Close()
			return
		case _, ok := <-v.sub.C:
			if !ok {
				return
			}
			v.requestRefresh()
		case <-v.refresh:
			v.Refresh(ctx)
		}
	}
}

// requestRefresh coalesces bursts of change events into a single trailing
// refetch; the trigger channel holds at most one pending request.
func (v *View) requestRefresh() {
	select {
	case v.refresh <- struct{}{}:
	default:
	}
}

// Refresh refetches page one under the current sort and resets pagination.
// On a read failure the previously loaded rows stay intact; a failed initial
// load settles on an empty ready list. Either way the error surfaces inline.
func (v *View) Refresh(ctx context.Context) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed { // a fetch racing Close is dropped, never applied
		return
	}
	if v.state == StateIdle || v.rows == nil {
		v.state = StateLoading
	}

	rows, hasMore, err := v.engine.FetchPage(ctx, v.threadID, v.sortMode, 0)
	if err != nil {
		v.failLocked(err)
		return
	}
	tally, err := v.engine.Reactions(ctx, v.threadID, v.sess.UserID)
	if err != nil {
		v.failLocked(err)
		return
	}

	v.rows = rows
	v.pages = 1
	v.hasMore = hasMore
	v.tally = tally
	v.lastErr = ""
	v.state = StateReady
	v.emitLocked()
}

// failLocked settles a failed fetch. The view never parks in a loading
// state: rows already on screen stay intact, a fresh view lands on an empty
// ready list with the error inline.
func (v *View) failLocked(err error) {
	v.lastErr = err.Error()
	v.state = StateReady
	v.emitLocked()
}

// LoadMore fetches the next page at the current sort and appends it; the
// partition and ordering are recomputed over the full accumulated set.
func (v *View) LoadMore(ctx context.Context) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed || v.state != StateReady || !v.hasMore {
		return
	}
	v.state = StateLoadingMore
	rows, hasMore, err := v.engine.FetchPage(ctx, v.threadID, v.sortMode, v.pages)
	if err != nil {
		v.lastErr = err.Error()
		v.state = StateReady
		v.emitLocked()
		return
	}
	v.rows = append(v.rows, rows...)
	v.pages++
	v.hasMore = hasMore
	v.lastErr = ""
	v.state = StateReady
	v.emitLocked()
}

// ChangeSort discards the accumulated pages and restarts from page one under
// the new order; mixing pages fetched under different orders would break the
// ordering contract.
func (v *View) ChangeSort(ctx context.Context, mode thread.SortMode) {
	if !thread.IsValidSortMode(mode) {
		v.mu.Lock()
		v.lastErr = ErrUnknownSort.Error()
		v.emitLocked()
		v.mu.Unlock()
		return
	}
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.sortMode = mode
	v.rows = nil
	v.pages = 0
	v.state = StateLoading
	v.mu.Unlock()
	v.Refresh(ctx)
}

// PostRoot submits a new root comment and refreshes on success.
func (v *View) PostRoot(ctx context.Context, text string) {
	_, err := v.engine.PostRoot(ctx, v.sess, v.threadID, text)
	v.settle(ctx, err)
}

// PostReply submits a reply and refreshes on success.
func (v *View) PostReply(ctx context.Context, parentID, text string) {
	_, err := v.engine.PostReply(ctx, v.sess, v.threadID, parentID, text)
	v.settle(ctx, err)
}

// PostSticker submits a sticker comment and refreshes on success.
func (v *View) PostSticker(ctx context.Context, locator string, parentID *string) {
	_, err := v.engine.PostSticker(ctx, v.sess, v.threadID, locator, parentID)
	v.settle(ctx, err)
}

// Edit rewrites a comment and refreshes on success.
func (v *View) Edit(ctx context.Context, id, newText string) {
	_, err := v.engine.Edit(ctx, v.sess, id, newText)
	v.settle(ctx, err)
}

// Delete removes a comment and refreshes on success.
func (v *View) Delete(ctx context.Context, id string) {
	v.settle(ctx, v.engine.Delete(ctx, v.sess, id))
}

// TogglePin flips the pin slot and refreshes on success.
func (v *View) TogglePin(ctx context.Context, id string) {
	_, err := v.engine.TogglePin(ctx, v.sess, id)
	v.settle(ctx, err)
}

// React toggles the viewer's reaction and refreshes on success.
func (v *View) React(ctx context.Context, kind string) {
	v.settle(ctx, v.engine.ToggleReaction(ctx, v.sess, v.threadID, kind))
}

// settle resolves a write: failures surface inline and leave the last
// known-good list untouched; successes refetch. The write's own refresh and
// the feed-triggered one for the same event may both fire; the coalesced
// refetch is idempotent so convergence is all that matters.
func (v *View) settle(ctx context.Context, err error) {
	if err != nil {
		v.mu.Lock()
		v.lastErr = err.Error()
		v.emitLocked()
		v.mu.Unlock()
		return
	}
	v.Refresh(ctx)
}

// Snapshot assembles the current view model.
func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked()
}

func (v *View) snapshotLocked() Snapshot {
	asm := thread.Assemble(v.rows, v.sortMode)

	roots := make([]CommentView, 0, len(asm.Roots))
	for _, c := range asm.Roots {
		roots = append(roots, newCommentView(c))
	}
	replies := make(map[string][]CommentView, len(asm.RepliesByParent))
	for parentID, list := range asm.RepliesByParent {
		views := make([]CommentView, 0, len(list))
		for _, c := range list {
			views = append(views, newCommentView(c))
		}
		replies[parentID] = views
	}

	return Snapshot{
		ThreadID:        v.threadID,
		RootComments:    roots,
		RepliesByParent: replies,
		ReactionCounts:  v.tally.Counts,
		MyReactions:     v.tally.Mine,
		SortMode:        v.sortMode,
		HasMore:         v.hasMore,
		IsLoading:       v.state == StateLoading || v.state == StateLoadingMore,
		State:           v.state,
		LastError:       v.lastErr,
	}
}

func (v *View) emitLocked() {
	if v.onSnapshot != nil {
		v.onSnapshot(v.snapshotLocked())
	}
}
