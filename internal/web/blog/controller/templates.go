package controller

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/Laisky/laisky-blog-web/internal/web/blog/feed"
	"github.com/Laisky/laisky-blog-web/internal/web/blog/model"
	"github.com/Laisky/laisky-blog-web/internal/web/blog/service"
	"github.com/Laisky/laisky-blog-web/internal/web/blog/session"
)

//go:embed templates/*.html
var templateFS embed.FS

// layout is the data shared by every page
type layout struct {
	Title            string
	Meta             template.HTML
	Session          *session.State
	Flash            string
	Path             string
	TurnstileSiteKey string
	Page             any
}

// commentView is the data of the comment partial
type commentView struct {
	C *model.Comment
	S *session.State
}

type errorPage struct {
	Status  int
	Message string
}

var templateFuncs = template.FuncMap{
	"replyParent":  feed.ReplyParentID,
	"replyPrefill": feed.ReplyPrefill,
	"authoredBy": func(c *model.Comment, st *session.State) bool {
		return st != nil && c.IsAuthoredBy(st.User)
	},
	"date": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("Jan 2, 2006")
	},
	"commentView": func(c *model.Comment, st *session.State) *commentView {
		return &commentView{C: c, S: st}
	},
	"truncate": service.Truncate,
}

func parseTemplates() (*template.Template, error) {
	tmpl, err := template.New("blog").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, errors.Wrap(err, "parse embedded templates")
	}

	return tmpl, nil
}

// render executes page name into the response.
// The flash message of st is consumed.
func (c *Controller) render(ctx *gin.Context, st *session.State, status int, name string, page any) {
	c.renderWithMeta(ctx, st, status, name, "", "", page)
}

func (c *Controller) renderWithMeta(ctx *gin.Context, st *session.State,
	status int, name, title string, meta template.HTML, page any) {
	data := &layout{
		Title:   title,
		Meta:    meta,
		Session: st,
		Flash:   st.PopFlash(),
		Path:    ctx.Request.URL.RequestURI(),
		Page:    page,
	}
	if c.turnstile.Enabled() {
		data.TurnstileSiteKey = c.turnstile.SiteKey()
	}

	buf := new(bytes.Buffer)
	if err := c.tmpl.ExecuteTemplate(buf, name, data); err != nil {
		gmw.GetLogger(ctx).Error("render template", zap.Error(err), zap.String("template", name))
		ctx.String(http.StatusInternalServerError, "internal error")
		return
	}

	ctx.Data(status, "text/html; charset=utf-8", buf.Bytes())
}

var metaTemplate = template.Must(template.New("meta").Parse(
	`<meta property="og:type" content="article" />` +
		`<meta property="og:title" content="{{.Title}}" />` +
		`<meta property="og:description" content="{{.Summary}}" />` +
		`<meta property="og:image" content="{{.Image}}" />` +
		`<meta property="og:url" content="{{.URL}}" />` +
		`<meta name="twitter:card" content="summary_large_image" />` +
		`<meta name="twitter:title" content="{{.Title}}" />` +
		`<meta name="twitter:image" content="{{.Image}}" />`))

// postMetaTags renders the share card of post. Every value is attribute escaped.
func (c *Controller) postMetaTags(post *model.Post) template.HTML {
	buf := new(bytes.Buffer)
	if err := metaTemplate.Execute(buf, map[string]string{
		"Title":   post.Title,
		"Summary": service.Truncate(strings.TrimSpace(post.Summary), 200),
		"Image":   post.FeaturedImageURL,
		"URL":     c.baseURL + homePath + "/" + post.Slug,
	}); err != nil {
		c.logger.Warn("render meta tags", zap.Error(err), zap.String("slug", post.Slug))
		return ""
	}

	return template.HTML(buf.String()) //nolint:gosec
}
