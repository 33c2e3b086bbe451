// Package controller serves the blog pages and the comment endpoints over gin.
//
// Every handler receives the visitor session as an argument, see session.Manager.Wrap.
package controller

import (
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/Laisky/laisky-blog-web/internal/web/blog/model"
	"github.com/Laisky/laisky-blog-web/internal/web/blog/service"
	"github.com/Laisky/laisky-blog-web/internal/web/blog/session"
	"github.com/Laisky/laisky-blog-web/library/log"
)

const (
	homePath       = "/blog"
	onboardingPath = "/onboarding"
	// maxUploadBytes bounds multipart bodies, images plus form fields
	maxUploadBytes = 12 << 20
)

// Controller blog web controller
type Controller struct {
	svc       *service.Blog
	sessions  *session.Manager
	turnstile *Turnstile
	tmpl      *template.Template
	logger    logSDK.Logger
	baseURL   string
}

// Option configures Controller
type Option func(*Controller) error

// WithTurnstile protects login and sign up with Cloudflare Turnstile.
func WithTurnstile(t *Turnstile) Option {
	return func(c *Controller) error {
		c.turnstile = t
		return nil
	}
}

// WithBaseURL sets the public url used in share meta tags.
func WithBaseURL(u string) Option {
	return func(c *Controller) error {
		c.baseURL = strings.TrimRight(u, "/")
		return nil
	}
}

// WithLogger sets the logger used outside of requests.
func WithLogger(logger logSDK.Logger) Option {
	return func(c *Controller) error {
		if logger == nil {
			return errors.New("logger is nil")
		}

		c.logger = logger
		return nil
	}
}

// New create new blog controller
func New(svc *service.Blog, sessions *session.Manager, opts ...Option) (*Controller, error) {
	if svc == nil || sessions == nil {
		return nil, errors.New("service and session manager are required")
	}

	tmpl, err := parseTemplates()
	if err != nil {
		return nil, errors.Wrap(err, "parse templates")
	}

	c := &Controller{
		svc:      svc,
		sessions: sessions,
		tmpl:     tmpl,
		logger:   log.Logger.Named("blog_controller"),
	}
	for _, opt := range opts {
		if err = opt(c); err != nil {
			return nil, errors.Wrap(err, "apply option")
		}
	}

	return c, nil
}

// Register mounts every blog route on r.
func (c *Controller) Register(r gin.IRouter) {
	r.GET("/", func(ctx *gin.Context) { ctx.Redirect(http.StatusFound, homePath) })

	// pages
	r.GET(homePath, c.page(c.ListPosts))
	r.GET(homePath+"/:slug", c.page(c.ShowPost))
	r.GET("/users/:username", c.page(c.ShowProfile))
	r.POST("/users/me", c.page(c.UpdateProfile))
	r.GET("/editor/new", c.page(c.NewPostEditor))
	r.POST("/editor/new", c.page(c.CreatePost))
	r.GET("/editor/:slug", c.page(c.EditPostEditor))
	r.POST("/editor/:slug", c.page(c.UpdatePost))
	r.POST("/editor/:slug/delete", c.page(c.DeletePost))

	// auth, reachable while onboarding
	r.GET(onboardingPath, c.sessions.Wrap(c.OnboardingPage))
	r.POST(onboardingPath, c.sessions.Wrap(c.CompleteOnboarding))
	r.GET("/login", c.sessions.Wrap(c.OpenLogin))
	r.POST("/login", c.sessions.Wrap(c.Login))
	r.GET("/signup", c.sessions.Wrap(c.OpenSignUp))
	r.POST("/signup", c.sessions.Wrap(c.SignUp))
	r.GET("/modal/close", c.sessions.Wrap(c.CloseModal))
	r.POST("/logout", c.sessions.Wrap(c.Logout))

	// json
	api := r.Group("/api")
	api.GET("/comments/:postId", c.sessions.Wrap(c.LoadComments))
	api.POST("/comments/:postId", c.sessions.Wrap(c.CreateComment))
	api.PATCH("/comments/:postId/:commentId", c.sessions.Wrap(c.UpdateComment))
	api.DELETE("/comments/:postId/:commentId", c.sessions.Wrap(c.DeleteComment))
	api.GET("/replies/:commentId", c.sessions.Wrap(c.LoadReplies))
	api.POST("/verification-code", c.sessions.Wrap(c.RequestVerificationCode))
	api.POST("/drafts", c.sessions.Wrap(c.AutosaveDraft))
	api.POST("/images", c.sessions.Wrap(c.UploadImage))
}

// page wraps a page handler with the session and the onboarding redirect.
func (c *Controller) page(h session.HandlerFunc) gin.HandlerFunc {
	return c.sessions.Wrap(func(ctx *gin.Context, st *session.State) {
		if st.LoggedIn() && st.User.NeedsOnboarding() {
			ctx.Redirect(http.StatusFound, onboardingPath)
			return
		}

		h(ctx, st)
	})
}

// requireLoginPage opens the login dialog over the current page when st is anonymous.
// It returns false when the request was answered.
func (c *Controller) requireLoginPage(ctx *gin.Context, st *session.State, returnTo string) bool {
	if st.LoggedIn() {
		return true
	}

	st.OpenModal(session.ModalLogin, returnTo)
	ctx.Redirect(http.StatusFound, returnTo)
	return false
}

// statusOf maps a service error to an http status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrInvalidCredentials),
		errors.Is(err, model.ErrLoginRequired):
		return http.StatusUnauthorized
	case errors.Is(err, model.ErrNotAuthor):
		return http.StatusForbidden
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrTooManyRequests):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage returns the part of err that may be shown to visitors.
func publicMessage(err error) string {
	status := statusOf(err)
	switch status {
	case http.StatusBadRequest:
		msg := err.Error()
		if i := strings.Index(msg, ": "+model.ErrInvalidInput.Error()); i > 0 {
			msg = msg[:i]
		}
		return msg
	case http.StatusUnauthorized:
		if errors.Is(err, model.ErrInvalidCredentials) {
			return model.ErrInvalidCredentials.Error()
		}
		return "please log in first"
	case http.StatusInternalServerError:
		return "something went wrong, please retry"
	default:
		return http.StatusText(status)
	}
}

// abortJSON answers a json endpoint with err.
func (c *Controller) abortJSON(ctx *gin.Context, st *session.State, err error) {
	status := statusOf(err)
	logger := gmw.GetLogger(ctx)
	if status == http.StatusInternalServerError {
		logger.Error("blog api", zap.Error(err), zap.String("path", ctx.FullPath()))
	} else {
		logger.Debug("blog api rejected", zap.Error(err), zap.Int("status", status))
	}

	body := gin.H{"error": publicMessage(err)}
	if status == http.StatusUnauthorized && !st.LoggedIn() {
		body["modal"] = session.ModalLogin
	}
	ctx.AbortWithStatusJSON(status, body)
}

// abortPage answers a page request with the error page.
func (c *Controller) abortPage(ctx *gin.Context, st *session.State, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		gmw.GetLogger(ctx).Error("blog page", zap.Error(err), zap.String("path", ctx.Request.URL.Path))
	}

	c.render(ctx, st, status, "error.html", &errorPage{
		Status:  status,
		Message: publicMessage(err),
	})
	ctx.Abort()
}

// safeReturnTo keeps redirects on this site.
func safeReturnTo(raw, fallback string) string {
	u, err := url.Parse(raw)
	if err != nil || raw == "" || u.IsAbs() || u.Host != "" ||
		!strings.HasPrefix(u.Path, "/") || strings.HasPrefix(raw, "//") {
		return fallback
	}

	return u.RequestURI()
}

// refererPath returns the same-site page the request came from.
func refererPath(ctx *gin.Context) string {
	u, err := url.Parse(ctx.GetHeader("Referer"))
	if err != nil || u.Host != ctx.Request.Host || u.Path == "" {
		return homePath
	}

	return safeReturnTo(u.RequestURI(), homePath)
}
