package controller

import (
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/Laisky/laisky-blog-web/internal/web/blog/feed"
	"github.com/Laisky/laisky-blog-web/internal/web/blog/model"
	"github.com/Laisky/laisky-blog-web/internal/web/blog/service"
	"github.com/Laisky/laisky-blog-web/internal/web/blog/session"
)

type postListPage struct {
	*service.PostList
	Prev, Next int
}

type postPage struct {
	Post     *service.RenderedPost
	Comments *feed.Snapshot
	CanEdit  bool
}

type editorPage struct {
	Form     *model.PostForm
	PostID   string
	OldSlug  string
	Restored bool
	Error    string
}

func postURL(slug string) string {
	return homePath + "/" + url.PathEscape(slug)
}

// ListPosts renders a page of the post list.
func (c *Controller) ListPosts(ctx *gin.Context, st *session.State) {
	page := 1
	if raw := ctx.Query("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			n = 0
		}
		page = n
	}

	list, err := c.svc.ListPosts(ctx, page)
	if err != nil {
		c.abortPage(ctx, st, err)
		return
	}
	if list.RedirectTo > 0 {
		ctx.Redirect(http.StatusFound, homePath+"?page="+strconv.Itoa(list.RedirectTo))
		return
	}

	data := &postListPage{PostList: list}
	if list.Page > 1 {
		data.Prev = list.Page - 1
	}
	if list.Page < list.TotalPages {
		data.Next = list.Page + 1
	}

	c.renderWithMeta(ctx, st, http.StatusOK, "posts.html", "Blog", "", data)
}

// ShowPost renders an article with the first page of its comments.
func (c *Controller) ShowPost(ctx *gin.Context, st *session.State) {
	post, err := c.svc.GetPost(ctx, ctx.Param("slug"))
	if err != nil {
		c.abortPage(ctx, st, err)
		return
	}

	comments, err := c.svc.OpenComments(ctx, st, post.ID)
	if err != nil {
		gmw.GetLogger(ctx).Warn("load comments", zap.Error(err), zap.String("post", post.ID))
	}

	c.renderWithMeta(ctx, st, http.StatusOK, "post.html", post.Title, c.postMetaTags(post.Post), &postPage{
		Post:     post,
		Comments: comments,
		CanEdit:  st.LoggedIn() && post.Author.ID == st.User.ID,
	})
}

// NewPostEditor renders an empty editor, restoring the autosaved draft.
func (c *Controller) NewPostEditor(ctx *gin.Context, st *session.State) {
	if !c.requireLoginPage(ctx, st, homePath) {
		return
	}

	data := &editorPage{Form: new(model.PostForm)}
	if d, err := c.svc.LoadDraft(ctx, st, ""); err != nil {
		gmw.GetLogger(ctx).Warn("load draft", zap.Error(err))
	} else if d != nil {
		data.Form, data.Restored = d, true
	}

	c.renderWithMeta(ctx, st, http.StatusOK, "editor.html", "New post", "", data)
}

// EditPostEditor renders the editor of an existing post.
func (c *Controller) EditPostEditor(ctx *gin.Context, st *session.State) {
	slug := ctx.Param("slug")
	if !c.requireLoginPage(ctx, st, postURL(slug)) {
		return
	}

	post, err := c.svc.EditablePost(ctx, st, slug)
	if err != nil {
		c.abortPage(ctx, st, err)
		return
	}

	data := &editorPage{
		PostID:  post.ID,
		OldSlug: post.Slug,
		Form: &model.PostForm{
			Slug:    post.Slug,
			Title:   post.Title,
			Summary: post.Summary,
			Body:    post.Body,
		},
	}
	if d, err := c.svc.LoadDraft(ctx, st, post.ID); err != nil {
		gmw.GetLogger(ctx).Warn("load draft", zap.Error(err))
	} else if d != nil {
		data.Form, data.Restored = d, true
	}

	c.renderWithMeta(ctx, st, http.StatusOK, "editor.html", "Edit "+post.Title, "", data)
}

// CreatePost publishes the submitted editor form.
func (c *Controller) CreatePost(ctx *gin.Context, st *session.State) {
	if !c.requireLoginPage(ctx, st, "/editor/new") {
		return
	}

	form, err := readPostForm(ctx)
	if err == nil {
		var post *model.Post
		if post, err = c.svc.CreatePost(ctx, st, form); err == nil {
			st.SetFlash("Post published")
			ctx.Redirect(http.StatusSeeOther, postURL(post.Slug))
			return
		}
	}

	c.editorFailed(ctx, st, &editorPage{Form: form}, err)
}

// UpdatePost saves the editor form of an existing post.
func (c *Controller) UpdatePost(ctx *gin.Context, st *session.State) {
	oldSlug := ctx.Param("slug")
	if !c.requireLoginPage(ctx, st, postURL(oldSlug)) {
		return
	}

	form, err := readPostForm(ctx)
	if err == nil {
		var slug string
		if slug, err = c.svc.UpdatePost(ctx, st, oldSlug, form); err == nil {
			st.SetFlash("Post updated")
			ctx.Redirect(http.StatusSeeOther, postURL(slug))
			return
		}
	}

	c.editorFailed(ctx, st, &editorPage{
		Form:    form,
		OldSlug: oldSlug,
		PostID:  ctx.PostForm("postId"),
	}, err)
}

// DeletePost removes a post and goes back to the list.
func (c *Controller) DeletePost(ctx *gin.Context, st *session.State) {
	slug := ctx.Param("slug")
	if !c.requireLoginPage(ctx, st, postURL(slug)) {
		return
	}

	if err := c.svc.DeletePost(ctx, st, slug); err != nil {
		c.abortPage(ctx, st, err)
		return
	}

	st.SetFlash("Post deleted")
	ctx.Redirect(http.StatusSeeOther, homePath)
}

func (c *Controller) editorFailed(ctx *gin.Context, st *session.State, data *editorPage, err error) {
	status := statusOf(err)
	if status != http.StatusBadRequest {
		c.abortPage(ctx, st, err)
		return
	}

	if data.Form == nil {
		data.Form = new(model.PostForm)
	}
	data.Error = publicMessage(err)
	c.renderWithMeta(ctx, st, status, "editor.html", "Editor", "", data)
}

// UploadImage stores an image for the post body and returns its url.
func (c *Controller) UploadImage(ctx *gin.Context, st *session.State) {
	ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, maxUploadBytes)
	img, err := readUpload(ctx, "inPostImage")
	if err != nil {
		c.abortJSON(ctx, st, err)
		return
	}
	if img == nil {
		c.abortJSON(ctx, st, errors.Wrap(model.ErrInvalidInput, "image is required"))
		return
	}

	u, err := c.svc.UploadImage(ctx, st, img)
	if err != nil {
		c.abortJSON(ctx, st, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"imageUrl": u})
}

type draftRequest struct {
	PostID  string `json:"postId"`
	Slug    string `json:"slug"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Body    string `json:"body"`
}

// AutosaveDraft stores the editor content when it changed.
func (c *Controller) AutosaveDraft(ctx *gin.Context, st *session.State) {
	req := new(draftRequest)
	if err := ctx.ShouldBindJSON(req); err != nil {
		c.abortJSON(ctx, st, errors.Wrap(model.ErrInvalidInput, "invalid draft"))
		return
	}

	saved, err := c.svc.AutosaveDraft(ctx, st, req.PostID, &model.PostForm{
		Slug:    req.Slug,
		Title:   req.Title,
		Summary: req.Summary,
		Body:    req.Body,
	})
	if err != nil {
		c.abortJSON(ctx, st, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"saved": saved})
}

// readPostForm reads the multipart editor form.
// A blank slug is derived from the title.
func readPostForm(ctx *gin.Context) (*model.PostForm, error) {
	ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, maxUploadBytes)

	form := &model.PostForm{
		Slug:    strings.TrimSpace(ctx.PostForm("slug")),
		Title:   ctx.PostForm("title"),
		Summary: ctx.PostForm("summary"),
		Body:    ctx.PostForm("body"),
	}
	if form.Slug == "" {
		form.Slug = service.GenerateSlug(form.Title)
	}

	img, err := readUpload(ctx, "featuredImage")
	if err != nil {
		return form, err
	}
	form.FeaturedImage = img

	return form, nil
}

// readUpload reads the file posted as field, nil when absent.
// The content type is sniffed from the bytes.
func readUpload(ctx *gin.Context, field string) (*model.Upload, error) {
	header, err := ctx.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}

		return nil, errors.Wrapf(model.ErrInvalidInput, "read %s: %s", field, err.Error())
	}

	f, err := header.Open()
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", field)
	}
	defer f.Close() //nolint:errcheck

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", field)
	}
	if len(content) == 0 {
		return nil, nil
	}

	return &model.Upload{
		FieldName:   field,
		FileName:    header.Filename,
		ContentType: http.DetectContentType(content),
		Content:     content,
	}, nil
}
