// Package draft keeps unsaved editor content between autosaves.
package draft

import (
	"context"
	"time"

	"github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"

	"github.com/Laisky/laisky-blog-web/library/log"
)

// ErrNotFound is returned when no draft is stored
var ErrNotFound = errors.New("draft not found")

// Draft is the editor content of one user for one post.
// Key is "new" for a post not yet published, or the post id when editing.
type Draft struct {
	Owner   string    `bson:"owner" json:"-"`
	Key     string    `bson:"key" json:"key"`
	Slug    string    `bson:"slug" json:"slug"`
	Title   string    `bson:"title" json:"title"`
	Summary string    `bson:"summary" json:"summary"`
	Body    string    `bson:"body" json:"body"`
	SavedAt time.Time `bson:"saved_at" json:"savedAt"`
}

// SameContent reports whether d and o hold the same editor content.
func (d *Draft) SameContent(o *Draft) bool {
	return o != nil &&
		d.Slug == o.Slug &&
		d.Title == o.Title &&
		d.Summary == o.Summary &&
		d.Body == o.Body
}

// Empty reports whether every field is blank.
func (d *Draft) Empty() bool {
	return d.Slug == "" && d.Title == "" && d.Summary == "" && d.Body == ""
}

// Store persists drafts
type Store interface {
	Get(ctx context.Context, owner, key string) (*Draft, error)
	Put(ctx context.Context, d *Draft) error
	Delete(ctx context.Context, owner, key string) error
}

// Service autosaves drafts, skipping writes that change nothing
type Service struct {
	store  Store
	logger logSDK.Logger
	now    func() time.Time
}

// NewService creates a draft service over store.
func NewService(store Store, logger logSDK.Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New("draft store is nil")
	}
	if logger == nil {
		logger = log.Logger.Named("draft")
	}

	return &Service{store: store, logger: logger, now: time.Now}, nil
}

// Load returns the stored draft, or nil when there is none.
func (s *Service) Load(ctx context.Context, owner, key string) (*Draft, error) {
	d, err := s.store.Get(ctx, owner, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "load draft")
	}

	return d, nil
}

// Autosave stores d when it differs from the stored draft.
// It returns whether a write happened.
func (s *Service) Autosave(ctx context.Context, d *Draft) (bool, error) {
	if d == nil || d.Owner == "" || d.Key == "" {
		return false, errors.New("draft owner and key are required")
	}

	prev, err := s.Load(ctx, d.Owner, d.Key)
	if err != nil {
		return false, err
	}
	if prev != nil && d.SameContent(prev) {
		return false, nil
	}
	if prev == nil && d.Empty() {
		return false, nil
	}

	d.SavedAt = s.now().UTC()
	if err = s.store.Put(ctx, d); err != nil {
		return false, errors.Wrap(err, "save draft")
	}

	s.logger.Debug("draft saved",
		zap.String("owner", d.Owner),
		zap.String("key", d.Key),
		zap.Int("body_len", len(d.Body)))
	return true, nil
}

// Discard drops the draft, usually after the post was submitted.
func (s *Service) Discard(ctx context.Context, owner, key string) error {
	if err := s.store.Delete(ctx, owner, key); err != nil {
		return errors.Wrap(err, "discard draft")
	}

	return nil
}
