// Package service is the service layer of blog.
//
// It composes backend calls, caches and comment feeds into page data.
// Every operation acting for a visitor receives its session explicitly.
package service

import (
	"context"
	"time"

	"github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"

	"github.com/Laisky/laisky-blog-web/internal/web/blog/draft"
	"github.com/Laisky/laisky-blog-web/internal/web/blog/feed"
	"github.com/Laisky/laisky-blog-web/internal/web/blog/model"
	"github.com/Laisky/laisky-blog-web/internal/web/blog/session"
	"github.com/Laisky/laisky-blog-web/library/blogapi"
	"github.com/Laisky/laisky-blog-web/library/cache"
	"github.com/Laisky/laisky-blog-web/library/log"
	"github.com/Laisky/laisky-blog-web/library/throttle"
)

const (
	defaultRevalidate   = time.Minute
	defaultFeedCapacity = 10000
	defaultFeedTTL      = 30 * time.Minute
	defaultPostCacheCap = 1000
)

// Blog blog service
type Blog struct {
	logger     logSDK.Logger
	api        *blogapi.Client
	posts      cache.Cache
	revalidate time.Duration
	feeds      *feed.Registry
	throttle   *throttle.KeyedThrottle
	drafts     *draft.Service
}

// Option configures Blog
type Option func(*Blog) error

// WithPostCache caches posts in c, each living ttl before the backend is asked again.
func WithPostCache(c cache.Cache, ttl time.Duration) Option {
	return func(b *Blog) error {
		if c == nil || ttl <= 0 {
			return errors.New("post cache requires a cache and a positive ttl")
		}

		b.posts = c
		b.revalidate = ttl
		return nil
	}
}

// WithFeedRegistry keeps comment feeds in reg.
func WithFeedRegistry(reg *feed.Registry) Option {
	return func(b *Blog) error {
		if reg == nil {
			return errors.New("feed registry is nil")
		}

		b.feeds = reg
		return nil
	}
}

// WithCommentThrottle limits how often a user may comment.
func WithCommentThrottle(th *throttle.KeyedThrottle) Option {
	return func(b *Blog) error {
		b.throttle = th
		return nil
	}
}

// WithDrafts enables editor autosave.
func WithDrafts(d *draft.Service) Option {
	return func(b *Blog) error {
		b.drafts = d
		return nil
	}
}

// New new blog service
func New(logger logSDK.Logger, api *blogapi.Client, opts ...Option) (*Blog, error) {
	if api == nil {
		return nil, errors.New("backend client is nil")
	}
	if logger == nil {
		logger = log.Logger.Named("blog_service")
	}

	b := &Blog{logger: logger, api: api}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, errors.Wrap(err, "apply option")
		}
	}

	var err error
	if b.posts == nil {
		if b.posts, err = cache.NewMemory(defaultPostCacheCap, defaultRevalidate); err != nil {
			return nil, errors.Wrap(err, "new post cache")
		}
		b.revalidate = defaultRevalidate
	}
	if b.feeds == nil {
		if b.feeds, err = feed.NewRegistry(defaultFeedCapacity, defaultFeedTTL); err != nil {
			return nil, errors.Wrap(err, "new feed registry")
		}
	}
	if b.drafts == nil {
		if b.drafts, err = draft.NewService(draft.NewMemoryStore(), logger.Named("draft")); err != nil {
			return nil, errors.Wrap(err, "new draft service")
		}
	}

	return b, nil
}

// API returns the backend client authenticated as st.
func (b *Blog) API(st *session.State) *blogapi.Client {
	if st == nil {
		return b.api
	}

	return b.api.WithCookie(st.BackendCookie)
}

// requireLogin fails with model.ErrLoginRequired for anonymous sessions.
func requireLogin(st *session.State) error {
	if st == nil || !st.LoggedIn() {
		return errors.WithStack(model.ErrLoginRequired)
	}

	return nil
}

// translateBackendError maps backend failures onto domain errors,
// keeping the original error in the chain.
func translateBackendError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, blogapi.ErrNotFound):
		return errors.Wrap(model.ErrNotFound, err.Error())
	case errors.Is(err, blogapi.ErrUnauthorized):
		return errors.Wrap(model.ErrLoginRequired, err.Error())
	case errors.Is(err, blogapi.ErrForbidden):
		return errors.Wrap(model.ErrNotAuthor, err.Error())
	case errors.Is(err, blogapi.ErrTooManyRequests):
		return errors.Wrap(model.ErrTooManyRequests, err.Error())
	case errors.Is(err, blogapi.ErrBadRequest), errors.Is(err, blogapi.ErrConflict):
		return errors.Wrap(model.ErrInvalidInput, blogapi.Message(err))
	default:
		return err
	}
}

// Ping checks the backend is reachable.
func (b *Blog) Ping(ctx context.Context) error {
	if _, err := b.api.ListPosts(ctx, 1); err != nil {
		return errors.Wrap(err, "ping backend")
	}

	return nil
}
