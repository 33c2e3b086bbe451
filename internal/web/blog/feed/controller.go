// Package feed keeps the comment list of one article in memory.
//
// A Controller drives cursor pagination against the backend and folds local
// create, update and delete results into the loaded list without refetching.
package feed

import (
	"context"
	"sync"

	"github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"

	"github.com/Laisky/laisky-blog-web/internal/web/blog/model"
	"github.com/Laisky/laisky-blog-web/library/log"
)

// ErrUnknownCursor is returned when LoadPage is asked to continue after a
// comment that is not in the loaded list.
var ErrUnknownCursor = errors.New("cursor is not a loaded comment")

// Fetcher loads one page. An empty continueAfterID asks for the first page.
type Fetcher func(ctx context.Context, continueAfterID string) (*model.CommentsPage, error)

// Controller owns the comment list of a single article or reply thread.
//
// All methods are safe for concurrent use. Overlapping loads are not
// serialized, their results are applied in completion order.
type Controller struct {
	key           string
	fetch         Fetcher
	logger        logSDK.Logger
	pageSize      int
	appendCreated bool

	mu        sync.RWMutex
	comments  []*model.Comment
	loaded    bool
	exhausted bool
	failed    bool
	lastErr   error
	// loading counts in-flight loads, loadingMore those with a cursor
	loading     int
	loadingMore int
}

// New creates an empty controller.
//
// Parameters: key identifies the feed in logs and registries, fetch loads pages from the backend.
// Returns: the controller, or an error when fetch is nil or an option is invalid.
func New(key string, fetch Fetcher, opts ...Option) (*Controller, error) {
	if fetch == nil {
		return nil, errors.New("fetcher is nil")
	}

	c := &Controller{
		key:    key,
		fetch:  fetch,
		logger: log.Logger.Named("comment_feed"),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(c); err != nil {
			return nil, errors.Wrap(err, "apply option")
		}
	}

	c.logger = c.logger.With(zap.String("feed", key))
	return c, nil
}

// Key returns the feed identifier.
func (c *Controller) Key() string {
	return c.key
}

// LoadPage fetches one page and merges it into the list.
//
// An empty afterID loads the first page and replaces the whole list.
// Otherwise afterID must be a loaded comment and the page is appended as returned.
// On failure the list, cursor and exhausted flag are left untouched and the
// error flag is raised until the next load starts.
func (c *Controller) LoadPage(ctx context.Context, afterID string) (*model.CommentsPage, error) {
	more := afterID != ""

	c.mu.Lock()
	if more && c.indexOf(afterID) < 0 {
		c.mu.Unlock()
		return nil, errors.Wrapf(ErrUnknownCursor, "continue after %q", afterID)
	}
	c.loading++
	if more {
		c.loadingMore++
	}
	c.failed = false
	c.lastErr = nil
	c.mu.Unlock()

	page, err := c.fetch(ctx, afterID)
	if err == nil && page == nil {
		err = errors.New("fetcher returned no page")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.loading--
	if more {
		c.loadingMore--
	}

	if err != nil {
		c.failed = true
		c.lastErr = err
		c.logger.Warn("load comments", zap.Error(err), zap.String("after", afterID))
		return nil, errors.Wrap(err, "load comments")
	}

	fetched := make([]*model.Comment, 0, len(page.Comments))
	for _, cmt := range page.Comments {
		if cmt != nil {
			fetched = append(fetched, cloneComment(cmt))
		}
	}

	if more {
		c.comments = append(c.comments, fetched...)
	} else {
		c.comments = fetched
	}
	c.loaded = true
	c.exhausted = page.EndOfPaginationReached ||
		(c.pageSize > 0 && len(fetched) < c.pageSize)

	c.logger.Debug("comments loaded",
		zap.String("after", afterID),
		zap.Int("fetched", len(fetched)),
		zap.Int("total", len(c.comments)),
		zap.Bool("exhausted", c.exhausted))
	return page, nil
}

// LoadMore continues after the last loaded comment,
// or loads the first page when nothing is loaded.
func (c *Controller) LoadMore(ctx context.Context) (*model.CommentsPage, error) {
	return c.LoadPage(ctx, c.Cursor())
}

// RecordCreated inserts a comment the backend just confirmed.
// Top-level feeds put it first, reply feeds built with WithCreatedAtTail put it last.
func (c *Controller) RecordCreated(cmt *model.Comment) {
	if cmt == nil {
		return
	}

	cmt = cloneComment(cmt)
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.appendCreated {
		c.comments = append(c.comments, cmt)
		return
	}

	c.comments = append([]*model.Comment{cmt}, c.comments...)
}

// RecordUpdated replaces the comment with the same id.
// The previous reply count is kept when the update carries none.
// It returns false when the comment is not loaded.
func (c *Controller) RecordUpdated(cmt *model.Comment) bool {
	if cmt == nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(cmt.ID)
	if idx < 0 {
		return false
	}

	updated := cloneComment(cmt)
	if updated.RepliesCount == nil {
		updated.RepliesCount = c.comments[idx].RepliesCount
	}
	c.comments[idx] = updated
	return true
}

// RecordDeleted drops the comment with id, missing ids are ignored.
func (c *Controller) RecordDeleted(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(id)
	if idx < 0 {
		return false
	}

	c.comments = append(c.comments[:idx:idx], c.comments[idx+1:]...)
	return true
}

// Comments returns a copy of the loaded list.
func (c *Controller) Comments() []*model.Comment {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*model.Comment, len(c.comments))
	for i, cmt := range c.comments {
		out[i] = cloneComment(cmt)
	}

	return out
}

// Get returns the loaded comment with id.
func (c *Controller) Get(id string) (*model.Comment, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	idx := c.indexOf(id)
	if idx < 0 {
		return nil, false
	}

	return cloneComment(c.comments[idx]), true
}

// Cursor returns the id of the last loaded comment, empty when the list is empty.
func (c *Controller) Cursor() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.comments) == 0 {
		return ""
	}

	return c.comments[len(c.comments)-1].ID
}

// Loading reports whether any load is in flight.
func (c *Controller) Loading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading > 0
}

// LoadingMore reports whether a load with a cursor is in flight.
func (c *Controller) LoadingMore() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadingMore > 0
}

// Failed reports whether the latest load failed.
func (c *Controller) Failed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.failed
}

// Err returns the error of the latest failed load.
func (c *Controller) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// Exhausted reports whether the backend has no more pages.
func (c *Controller) Exhausted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.exhausted
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state()
}

func (c *Controller) state() State {
	switch {
	case c.loading > c.loadingMore:
		return StateLoading
	case c.loadingMore > 0:
		return StateLoadingMore
	case c.failed:
		return StateError
	case !c.loaded:
		return StateEmpty
	case c.exhausted:
		return StateExhausted
	default:
		return StateLoaded
	}
}

// Snapshot is a consistent, serializable view of a controller
type Snapshot struct {
	Comments    []*model.Comment `json:"comments"`
	Cursor      string           `json:"cursor,omitempty"`
	State       string           `json:"state"`
	Loading     bool             `json:"loading"`
	LoadingMore bool             `json:"loadingMore"`
	Error       bool             `json:"error"`
	Exhausted   bool             `json:"endOfPaginationReached"`
}

// Snapshot returns every observable field under a single lock.
func (c *Controller) Snapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := &Snapshot{
		Comments:    make([]*model.Comment, len(c.comments)),
		State:       c.state().String(),
		Loading:     c.loading > 0,
		LoadingMore: c.loadingMore > 0,
		Error:       c.failed,
		Exhausted:   c.exhausted,
	}
	for i, cmt := range c.comments {
		s.Comments[i] = cloneComment(cmt)
	}
	if n := len(c.comments); n > 0 {
		s.Cursor = c.comments[n-1].ID
	}

	return s
}

// indexOf must be called with mu held.
func (c *Controller) indexOf(id string) int {
	if id == "" {
		return -1
	}

	for i, cmt := range c.comments {
		if cmt.ID == id {
			return i
		}
	}

	return -1
}

func cloneComment(cmt *model.Comment) *model.Comment {
	cp := *cmt
	if cmt.RepliesCount != nil {
		cp.RepliesCount = model.IntPtr(*cmt.RepliesCount)
	}

	return &cp
}
