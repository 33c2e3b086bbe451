package session

import (
	"context"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/google/uuid"

	"github.com/Laisky/laisky-blog-web/library/cache"
	"github.com/Laisky/laisky-blog-web/library/jwt"
)

// Store persists sessions and issues their cookie tokens
type Store struct {
	cache  cache.Cache
	signer *jwt.Signer
}

// NewStore creates a store over c. Sessions live as long as the signer's tokens.
func NewStore(c cache.Cache, signer *jwt.Signer) (*Store, error) {
	if c == nil || signer == nil {
		return nil, errors.New("cache and signer are required")
	}

	return &Store{cache: c, signer: signer}, nil
}

// TTL returns the lifetime of a session.
func (s *Store) TTL() time.Duration {
	return s.signer.TTL()
}

// New creates an anonymous session with a random id.
func (s *Store) New() *State {
	return NewState(uuid.NewString())
}

// Load resolves a cookie token into its session.
// A valid token whose session expired yields a fresh session with the same id.
func (s *Store) Load(ctx context.Context, token string) (*State, error) {
	sid, err := s.signer.Parse(token)
	if err != nil {
		return nil, errors.Wrap(err, "parse session cookie")
	}

	st := new(State)
	found, err := s.cache.Get(ctx, sid, st)
	if err != nil {
		return nil, errors.Wrapf(err, "load session %q", sid)
	}
	if !found || st.ID != sid {
		return NewState(sid), nil
	}

	return st, nil
}

// Save persists st and clears its dirty flag.
func (s *Store) Save(ctx context.Context, st *State) error {
	if err := s.cache.Set(ctx, st.ID, st, s.TTL()); err != nil {
		return errors.Wrapf(err, "save session %q", st.ID)
	}

	st.dirty = false
	return nil
}

// Token signs a cookie token for st.
func (s *Store) Token(st *State) (string, error) {
	return s.signer.Sign(st.ID)
}

// Destroy removes st from the store.
func (s *Store) Destroy(ctx context.Context, st *State) error {
	if err := s.cache.Del(ctx, st.ID); err != nil {
		return errors.Wrapf(err, "destroy session %q", st.ID)
	}

	return nil
}
