package session

import (
	"net/http"

	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
)

// CookieName is the browser cookie carrying the signed session id
const CookieName = "blog_session"

// HandlerFunc is a gin handler that receives the visitor session explicitly.
type HandlerFunc func(ctx *gin.Context, st *State)

// Manager binds sessions to gin requests
type Manager struct {
	store  *Store
	secure bool
}

// NewManager creates a manager. secure marks the cookie https only.
func NewManager(store *Store, secure bool) *Manager {
	return &Manager{store: store, secure: secure}
}

// Store returns the underlying store.
func (m *Manager) Store() *Store {
	return m.store
}

// Wrap loads the session before h and persists it after h when it changed.
func (m *Manager) Wrap(h HandlerFunc) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		logger := gmw.GetLogger(ctx)

		var st *State
		if token, err := ctx.Cookie(CookieName); err == nil && token != "" {
			if st, err = m.store.Load(ctx, token); err != nil {
				logger.Debug("drop invalid session", zap.Error(err))
				st = nil
			}
		}
		if st == nil {
			st = m.store.New()
			if err := m.setCookie(ctx, st); err != nil {
				logger.Error("issue session cookie", zap.Error(err))
				ctx.AbortWithStatus(http.StatusInternalServerError)
				return
			}
		}

		h(ctx, st)

		if st.Dirty() {
			if err := m.store.Save(ctx, st); err != nil {
				logger.Error("save session", zap.Error(err), zap.String("sid", st.ID))
			}
		}
	}
}

// Renew moves st to a new id and reissues the cookie.
// Call it on privilege changes, before the response body is written.
func (m *Manager) Renew(ctx *gin.Context, st *State) error {
	if err := m.store.Destroy(ctx, st); err != nil {
		gmw.GetLogger(ctx).Warn("destroy old session", zap.Error(err))
	}

	fresh := m.store.New()
	st.ID = fresh.ID
	st.dirty = true
	return m.setCookie(ctx, st)
}

func (m *Manager) setCookie(ctx *gin.Context, st *State) error {
	token, err := m.store.Token(st)
	if err != nil {
		return err
	}

	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(CookieName, token, int(m.store.TTL().Seconds()), "/", "", m.secure, true)
	return nil
}
