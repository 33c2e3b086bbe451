package feed

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/stretchr/testify/require"

	"github.com/Laisky/laisky-blog-web/internal/web/blog/model"
)

// fakeBackend serves pages of comments split by a cursor.
type fakeBackend struct {
	mu       sync.Mutex
	pages    map[string]*model.CommentsPage
	failNext error
	calls    []string
}

func (b *fakeBackend) fetch(_ context.Context, after string) (*model.CommentsPage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.calls = append(b.calls, after)
	if b.failNext != nil {
		err := b.failNext
		b.failNext = nil
		return nil, err
	}

	page, ok := b.pages[after]
	if !ok {
		return &model.CommentsPage{Comments: []*model.Comment{}, EndOfPaginationReached: true}, nil
	}

	return page, nil
}

func cmt(id string, replies int) *model.Comment {
	return &model.Comment{
		ID:           id,
		Text:         "text of " + id,
		RepliesCount: model.IntPtr(replies),
	}
}

func ids(cs []*model.Comment) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.ID)
	}
	return out
}

func newTwoPageFeed(t *testing.T, opts ...Option) (*Controller, *fakeBackend) {
	t.Helper()

	backend := &fakeBackend{pages: map[string]*model.CommentsPage{
		"":   {Comments: []*model.Comment{cmt("c1", 1), cmt("c2", 0)}},
		"c2": {Comments: []*model.Comment{cmt("c3", 0), cmt("c4", 0)}, EndOfPaginationReached: true},
	}}

	c, err := New("post-1", backend.fetch, opts...)
	require.NoError(t, err)
	return c, backend
}

func TestNewRequiresFetcher(t *testing.T) {
	t.Parallel()

	_, err := New("k", nil)
	require.Error(t, err)

	_, err = New("k", (&fakeBackend{}).fetch, WithPageSize(0))
	require.ErrorContains(t, err, "page size")
}

func TestInitialState(t *testing.T) {
	t.Parallel()

	c, _ := newTwoPageFeed(t)
	require.Equal(t, StateEmpty, c.State())
	require.Empty(t, c.Comments())
	require.Empty(t, c.Cursor())
	require.False(t, c.Loading())
	require.False(t, c.Exhausted())
}

// TestFirstPageReplaces verifies that a load without cursor replaces the list.
func TestFirstPageReplaces(t *testing.T) {
	t.Parallel()

	c, backend := newTwoPageFeed(t)
	c.RecordCreated(cmt("local", 0))

	_, err := c.LoadPage(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, []string{"c1", "c2"}, ids(c.Comments()))
	require.Equal(t, "c2", c.Cursor())
	require.Equal(t, StateLoaded, c.State())

	_, err = c.LoadPage(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, []string{"c1", "c2"}, ids(c.Comments()))
	require.Equal(t, []string{"", ""}, backend.calls)
}

// TestAppendOrder verifies that a load with cursor appends in server order.
func TestAppendOrder(t *testing.T) {
	t.Parallel()

	c, backend := newTwoPageFeed(t)
	_, err := c.LoadPage(context.Background(), "")
	require.NoError(t, err)

	_, err = c.LoadPage(context.Background(), "c2")
	require.NoError(t, err)
	require.Equal(t, []string{"c1", "c2", "c3", "c4"}, ids(c.Comments()))
	require.Equal(t, []string{"", "c2"}, backend.calls)
}

func TestLoadMoreUsesCursor(t *testing.T) {
	t.Parallel()

	c, backend := newTwoPageFeed(t)
	_, err := c.LoadMore(context.Background())
	require.NoError(t, err)
	_, err = c.LoadMore(context.Background())
	require.NoError(t, err)

	require.Equal(t, []string{"", "c2"}, backend.calls)
	require.Equal(t, "c4", c.Cursor())
}

func TestUnknownCursorIsRejected(t *testing.T) {
	t.Parallel()

	c, backend := newTwoPageFeed(t)
	_, err := c.LoadPage(context.Background(), "nope")
	require.True(t, errors.Is(err, ErrUnknownCursor))
	require.Empty(t, backend.calls)
	require.False(t, c.Failed())
}

// TestNoDuplicates verifies that ids stay unique across loads and local changes.
func TestNoDuplicates(t *testing.T) {
	t.Parallel()

	c, _ := newTwoPageFeed(t)
	ctx := context.Background()

	_, err := c.LoadPage(ctx, "")
	require.NoError(t, err)
	c.RecordCreated(cmt("new", 0))
	_, err = c.LoadMore(ctx)
	require.NoError(t, err)
	c.RecordUpdated(&model.Comment{ID: "c3", Text: "edited"})
	c.RecordDeleted("c1")
	c.RecordDeleted("c1")

	seen := map[string]bool{}
	for _, id := range ids(c.Comments()) {
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	require.Equal(t, []string{"new", "c2", "c3", "c4"}, ids(c.Comments()))
}

// TestCreatedIsPrepended verifies that a new comment goes first.
func TestCreatedIsPrepended(t *testing.T) {
	t.Parallel()

	c, _ := newTwoPageFeed(t)
	_, err := c.LoadPage(context.Background(), "")
	require.NoError(t, err)

	c.RecordCreated(cmt("c3", 0))
	require.Equal(t, []string{"c3", "c1", "c2"}, ids(c.Comments()))
	require.Equal(t, "c2", c.Cursor())
}

func TestCreatedAtTail(t *testing.T) {
	t.Parallel()

	c, _ := newTwoPageFeed(t, WithCreatedAtTail())
	_, err := c.LoadPage(context.Background(), "")
	require.NoError(t, err)

	c.RecordCreated(cmt("r9", 0))
	require.Equal(t, []string{"c1", "c2", "r9"}, ids(c.Comments()))
}

// TestUpdatePreservesReplyCount verifies that an update without reply count keeps the old one.
func TestUpdatePreservesReplyCount(t *testing.T) {
	t.Parallel()

	c, _ := newTwoPageFeed(t)
	_, err := c.LoadPage(context.Background(), "")
	require.NoError(t, err)

	require.True(t, c.RecordUpdated(&model.Comment{ID: "c1", Text: "edited"}))
	got, ok := c.Get("c1")
	require.True(t, ok)
	require.Equal(t, "edited", got.Text)
	require.NotNil(t, got.RepliesCount)
	require.Equal(t, 1, *got.RepliesCount)

	require.True(t, c.RecordUpdated(&model.Comment{ID: "c1", Text: "again", RepliesCount: model.IntPtr(7)}))
	got, _ = c.Get("c1")
	require.Equal(t, 7, got.Replies())

	require.False(t, c.RecordUpdated(&model.Comment{ID: "missing"}))
	require.Equal(t, []string{"c1", "c2"}, ids(c.Comments()))
}

// TestDeleteIsIdempotent verifies that deleting twice equals deleting once.
func TestDeleteIsIdempotent(t *testing.T) {
	t.Parallel()

	c, _ := newTwoPageFeed(t)
	_, err := c.LoadPage(context.Background(), "")
	require.NoError(t, err)

	require.True(t, c.RecordDeleted("c1"))
	once := ids(c.Comments())
	require.False(t, c.RecordDeleted("c1"))
	require.Equal(t, once, ids(c.Comments()))
	require.Equal(t, []string{"c2"}, once)

	require.False(t, c.RecordDeleted("never-there"))
	require.False(t, c.RecordDeleted(""))
}

// TestExhaustion verifies the end marker and the optional short-page rule.
func TestExhaustion(t *testing.T) {
	t.Parallel()

	t.Run("end marker", func(t *testing.T) {
		t.Parallel()

		c, _ := newTwoPageFeed(t)
		_, err := c.LoadPage(context.Background(), "")
		require.NoError(t, err)
		require.False(t, c.Exhausted())

		_, err = c.LoadMore(context.Background())
		require.NoError(t, err)
		require.True(t, c.Exhausted())
		require.Equal(t, StateExhausted, c.State())
	})

	t.Run("short page", func(t *testing.T) {
		t.Parallel()

		c, _ := newTwoPageFeed(t, WithPageSize(3))
		_, err := c.LoadPage(context.Background(), "")
		require.NoError(t, err)
		require.True(t, c.Exhausted())
	})

	t.Run("reset by first page", func(t *testing.T) {
		t.Parallel()

		c, backend := newTwoPageFeed(t)
		_, err := c.LoadPage(context.Background(), "")
		require.NoError(t, err)
		_, err = c.LoadMore(context.Background())
		require.NoError(t, err)
		require.True(t, c.Exhausted())

		backend.mu.Lock()
		backend.pages[""] = &model.CommentsPage{Comments: []*model.Comment{cmt("c0", 0)}}
		backend.mu.Unlock()

		_, err = c.LoadPage(context.Background(), "")
		require.NoError(t, err)
		require.False(t, c.Exhausted())
	})
}

// TestFailureIsolation verifies that a failed load keeps the list and raises the error flag.
func TestFailureIsolation(t *testing.T) {
	t.Parallel()

	c, backend := newTwoPageFeed(t)
	ctx := context.Background()
	_, err := c.LoadPage(ctx, "")
	require.NoError(t, err)

	before := c.Snapshot()
	backend.failNext = errors.New("connection reset")

	_, err = c.LoadMore(ctx)
	require.ErrorContains(t, err, "connection reset")
	require.True(t, c.Failed())
	require.Equal(t, StateError, c.State())
	require.ErrorContains(t, c.Err(), "connection reset")

	after := c.Snapshot()
	require.Equal(t, before.Comments, after.Comments)
	require.Equal(t, before.Cursor, after.Cursor)
	require.Equal(t, before.Exhausted, after.Exhausted)
	require.True(t, after.Error)

	// retry clears the error flag
	_, err = c.LoadMore(ctx)
	require.NoError(t, err)
	require.False(t, c.Failed())
	require.Equal(t, []string{"c1", "c2", "c3", "c4"}, ids(c.Comments()))
}

func TestLoadingFlags(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{}, 2)
	c, err := New("post-1", func(ctx context.Context, after string) (*model.CommentsPage, error) {
		started <- struct{}{}
		<-release
		if after == "" {
			return &model.CommentsPage{Comments: []*model.Comment{cmt("c1", 0)}}, nil
		}
		return &model.CommentsPage{Comments: []*model.Comment{cmt("c2", 0)}, EndOfPaginationReached: true}, nil
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := c.LoadPage(context.Background(), "")
		done <- err
	}()
	<-started
	require.True(t, c.Loading())
	require.False(t, c.LoadingMore())
	require.Equal(t, StateLoading, c.State())
	release <- struct{}{}
	require.NoError(t, <-done)
	require.False(t, c.Loading())

	go func() {
		_, err := c.LoadMore(context.Background())
		done <- err
	}()
	<-started
	require.True(t, c.Loading())
	require.True(t, c.LoadingMore())
	require.Equal(t, StateLoadingMore, c.State())
	snap := c.Snapshot()
	require.True(t, snap.LoadingMore)
	release <- struct{}{}
	require.NoError(t, <-done)
	require.False(t, c.LoadingMore())
	require.Equal(t, StateExhausted, c.State())
}

// TestOverlappingLoadsApplyInCompletionOrder verifies that concurrent loads are not serialized.
func TestOverlappingLoadsApplyInCompletionOrder(t *testing.T) {
	t.Parallel()

	gates := map[string]chan struct{}{
		"slow": make(chan struct{}),
		"fast": make(chan struct{}),
	}
	var n int
	var mu sync.Mutex
	c, err := New("post-1", func(ctx context.Context, after string) (*model.CommentsPage, error) {
		mu.Lock()
		n++
		name := "slow"
		if n == 2 {
			name = "fast"
		}
		mu.Unlock()

		<-gates[name]
		return &model.CommentsPage{Comments: []*model.Comment{cmt(name, 0)}}, nil
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = c.LoadPage(context.Background(), "")
	}()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return n == 1
	}, time.Second, time.Millisecond)

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = c.LoadPage(context.Background(), "")
	}()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return n == 2
	}, time.Second, time.Millisecond)

	close(gates["fast"])
	require.Eventually(t, func() bool {
		return len(c.Comments()) == 1 && c.Comments()[0].ID == "fast"
	}, time.Second, time.Millisecond)
	require.True(t, c.Loading())

	close(gates["slow"])
	wg.Wait()
	require.Equal(t, []string{"slow"}, ids(c.Comments()))
	require.False(t, c.Loading())
}

func TestCommentsReturnsCopies(t *testing.T) {
	t.Parallel()

	c, _ := newTwoPageFeed(t)
	_, err := c.LoadPage(context.Background(), "")
	require.NoError(t, err)

	got := c.Comments()
	got[0].Text = "mutated"
	*got[0].RepliesCount = 99

	again, _ := c.Get("c1")
	require.Equal(t, "text of c1", again.Text)
	require.Equal(t, 1, again.Replies())
}

func TestNilPageIsFailure(t *testing.T) {
	t.Parallel()

	c, err := New("k", func(context.Context, string) (*model.CommentsPage, error) { return nil, nil })
	require.NoError(t, err)

	_, err = c.LoadPage(context.Background(), "")
	require.Error(t, err)
	require.True(t, c.Failed())
}

func TestStateString(t *testing.T) {
	t.Parallel()

	for s, want := range map[State]string{
		StateEmpty:       "empty",
		StateLoading:     "loading",
		StateLoadingMore: "loading_more",
		StateLoaded:      "loaded",
		StateExhausted:   "exhausted",
		StateError:       "error",
		State(42):        "unknown",
	} {
		require.Equal(t, want, s.String(), fmt.Sprint(int(s)))
	}
}
