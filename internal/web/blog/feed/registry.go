package feed

import (
	"sync"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Registry keeps live controllers between requests of the same session.
// Entries expire after ttl of inactivity or when the registry is full.
type Registry struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, *Controller]
}

// NewRegistry creates a registry holding at most size controllers.
func NewRegistry(size int, ttl time.Duration) (*Registry, error) {
	if size <= 0 {
		return nil, errors.Errorf("registry size must be positive, got %d", size)
	}
	if ttl <= 0 {
		return nil, errors.Errorf("registry ttl must be positive, got %s", ttl)
	}

	return &Registry{
		cache: expirable.NewLRU[string, *Controller](size, nil, ttl),
	}, nil
}

// ArticleKey identifies the top-level feed of a post for a session.
func ArticleKey(sessionID, postID string) string {
	return "article/" + sessionID + "/" + postID
}

// RepliesKey identifies the reply feed of a comment for a session.
func RepliesKey(sessionID, commentID string) string {
	return "replies/" + sessionID + "/" + commentID
}

// Get returns the controller stored under key.
func (r *Registry) Get(key string) (*Controller, bool) {
	return r.cache.Get(key)
}

// GetOrCreate returns the controller under key, creating it with newFn when absent.
// The second return value is true when a new controller was created.
func (r *Registry) GetOrCreate(key string, newFn func() (*Controller, error)) (*Controller, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.cache.Get(key); ok {
		return c, false, nil
	}

	c, err := newFn()
	if err != nil {
		return nil, false, errors.Wrapf(err, "new feed %q", key)
	}

	r.cache.Add(key, c)
	return c, true, nil
}

// Replace stores a fresh controller under key, dropping any previous one.
func (r *Registry) Replace(key string, c *Controller) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cache.Add(key, c)
}

// Discard drops the controller under key.
func (r *Registry) Discard(key string) {
	r.cache.Remove(key)
}

// Len returns the number of live controllers.
func (r *Registry) Len() int {
	return r.cache.Len()
}
