// Package web gin server
package web

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/Laisky/laisky-blog-web/internal/web/blog/controller"
	"github.com/Laisky/laisky-blog-web/library/log"
)

const shutdownTimeout = 10 * time.Second

// Pinger reports whether the backend is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// ServerOption configures the http server
type ServerOption func(*serverOption) error

type serverOption struct {
	logger  logSDK.Logger
	origins   *originMatcher
	pinger    Pinger
	staticDir string
}

// WithServerLogger sets the logger of the http server
func WithServerLogger(logger logSDK.Logger) ServerOption {
	return func(o *serverOption) error {
		if logger == nil {
			return errors.New("logger is nil")
		}

		o.logger = logger
		return nil
	}
}

// WithAllowedOrigins allows cross origin calls from origins.
// Each entry is an exact host or `*.suffix`.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(o *serverOption) error {
		o.origins = newOriginMatcher(origins)
		return nil
	}
}

// WithHealthCheck makes /health report the state of p.
func WithHealthCheck(p Pinger) ServerOption {
	return func(o *serverOption) error {
		o.pinger = p
		return nil
	}
}

// WithStaticDir serves the files of dir below /static/.
func WithStaticDir(dir string) ServerOption {
	return func(o *serverOption) error {
		o.staticDir = dir
		return nil
	}
}

// NewEngine builds the gin engine serving ctrl.
func NewEngine(ctrl *controller.Controller, opts ...ServerOption) (*gin.Engine, error) {
	opt := &serverOption{
		logger:  log.Logger.Named("gin"),
		origins: newOriginMatcher(nil),
	}
	for _, f := range opts {
		if err := f(opt); err != nil {
			return nil, errors.Wrap(err, "apply server option")
		}
	}

	server := gin.New()
	server.Use(
		gin.Recovery(),
		gmw.NewLoggerMiddleware(
			gmw.WithLogger(opt.logger),
		),
		opt.origins.middleware,
	)

	status := newStatusHandler(opt.pinger)
	server.GET("/health", status)
	server.HEAD("/health", status)
	server.OPTIONS("/health", status)

	if h := newStaticHandler(opt.logger, opt.staticDir); h != nil {
		h.register(server)
	}

	ctrl.Register(server)
	return server, nil
}

// RunServer serves ctrl on addr until ctx is done.
func RunServer(ctx context.Context, addr string, ctrl *controller.Controller, opts ...ServerOption) error {
	engine, err := NewEngine(ctrl, opts...)
	if err != nil {
		return errors.Wrap(err, "new engine")
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Logger.Info("listening on http", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err = <-errCh:
		return errors.Wrap(err, "http server exit")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err = srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown http server")
	}

	log.Logger.Info("http server stopped")
	return nil
}

// newStatusHandler answers liveness probes.
// GET fails with 503 when the backend can not be reached.
func newStatusHandler(p Pinger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.Header("Allow", "GET, HEAD, OPTIONS")
		if ctx.Request.Method != http.MethodGet {
			ctx.Status(http.StatusOK)
			return
		}

		if p != nil {
			if err := p.Ping(ctx); err != nil {
				gmw.GetLogger(ctx).Warn("health check", zap.Error(err))
				ctx.String(http.StatusServiceUnavailable, "backend unavailable")
				return
			}
		}

		ctx.String(http.StatusOK, "ok")
	}
}

// originMatcher decides which browser origins may call the json api
type originMatcher struct {
	hosts    map[string]struct{}
	suffixes []string
}

func newOriginMatcher(origins []string) *originMatcher {
	m := &originMatcher{hosts: map[string]struct{}{}}
	for _, o := range origins {
		o = strings.ToLower(strings.TrimSpace(o))
		switch {
		case o == "":
		case strings.HasPrefix(o, "*."):
			m.suffixes = append(m.suffixes, o[1:])
		default:
			m.hosts[o] = struct{}{}
		}
	}

	return m
}

func (m *originMatcher) allowed(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" {
		return false
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}
	if _, ok := m.hosts[host]; ok {
		return true
	}
	for _, suffix := range m.suffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}

	return false
}

func (m *originMatcher) middleware(ctx *gin.Context) {
	origin := strings.TrimSpace(ctx.Request.Header.Get("Origin"))
	if origin == "" {
		ctx.Next()
		return
	}

	if !m.allowed(origin) {
		if ctx.Request.Method == http.MethodOptions {
			ctx.AbortWithStatus(http.StatusForbidden)
			return
		}

		ctx.Next()
		return
	}

	ctx.Header("Access-Control-Allow-Origin", origin)
	ctx.Header("Access-Control-Allow-Credentials", "true")
	ctx.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS, HEAD")
	ctx.Header("Access-Control-Allow-Headers", "Content-Type, Accept, Origin, X-Requested-With")
	ctx.Header("Access-Control-Max-Age", "86400")
	ctx.Header("Vary", "Origin")

	if ctx.Request.Method == http.MethodOptions {
		ctx.AbortWithStatus(http.StatusNoContent)
		return
	}

	ctx.Next()
}
