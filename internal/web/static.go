package web

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
)

const (
	staticDirEnvKey = "BLOG_STATIC_DIR"
	staticPrefix    = "/static/"
)

// staticHandler serves files below root, such as stylesheets and the favicon.
type staticHandler struct {
	root   string
	logger logSDK.Logger
}

func newStaticHandler(logger logSDK.Logger, dir string) *staticHandler {
	root := locateStaticDir(logger, dir)
	if root == "" {
		return nil
	}

	return &staticHandler{root: root, logger: logger}
}

func (h *staticHandler) serve(ctx *gin.Context, name string) {
	clean := strings.TrimPrefix(filepath.Clean("/"+name), "/")
	if clean == "" || strings.Contains(clean, "..") {
		h.logger.Warn("reject static path", zap.String("path", name))
		ctx.Status(http.StatusNotFound)
		return
	}

	fsPath := filepath.Join(h.root, clean)
	info, err := os.Stat(fsPath)
	if err != nil || info.IsDir() {
		ctx.Status(http.StatusNotFound)
		return
	}

	ctx.Header("Cache-Control", "public, max-age=3600")
	ctx.File(fsPath)
}

func (h *staticHandler) register(r gin.IRouter) {
	files := func(ctx *gin.Context) {
		h.serve(ctx, ctx.Param("filepath"))
	}
	r.GET(staticPrefix+"*filepath", files)
	r.HEAD(staticPrefix+"*filepath", files)

	favicon := func(ctx *gin.Context) {
		h.serve(ctx, "favicon.ico")
	}
	r.GET("/favicon.ico", favicon)
	r.HEAD("/favicon.ico", favicon)
}

// locateStaticDir returns the first existing directory of
// dir, $BLOG_STATIC_DIR and the static dir beside the executable.
func locateStaticDir(logger logSDK.Logger, dir string) string {
	var candidates []string
	if dir = strings.TrimSpace(dir); dir != "" {
		candidates = append(candidates, dir)
	}
	if override := strings.TrimSpace(os.Getenv(staticDirEnvKey)); override != "" {
		candidates = append(candidates, override)
	}
	if exePath, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exePath), "static"))
	}

	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				logger.Debug("inspect static dir", zap.Error(err), zap.String("path", candidate))
			}
			continue
		}
		if info.IsDir() {
			logger.Info("static assets located", zap.String("path", candidate))
			return candidate
		}
	}

	logger.Debug("static assets not found", zap.String("env", staticDirEnvKey))
	return ""
}
