package service

import (
	"context"
	"html/template"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/jinzhu/copier"
	"golang.org/x/sync/errgroup"

	"github.com/Laisky/laisky-blog-web/internal/web/blog/draft"
	"github.com/Laisky/laisky-blog-web/internal/web/blog/model"
	"github.com/Laisky/laisky-blog-web/internal/web/blog/session"
	"github.com/Laisky/laisky-blog-web/library/blogapi"
	"github.com/Laisky/laisky-blog-web/library/cache"
)

const (
	// prewarmConcurrency bounds parallel post fetches during prewarm
	prewarmConcurrency = 4
	// newPostDraftKey is the draft key of a post not yet published
	newPostDraftKey = "new"
)

// PostList is one page of the post list.
// RedirectTo is set when the requested page is out of range.
type PostList struct {
	*model.PostsPage
	RedirectTo int
}

// RenderedPost is a post ready to display
type RenderedPost struct {
	*model.Post
	HTML template.HTML
	TOC  []TOCEntry
}

func postCacheKey(slug string) string {
	return "slug/" + slug
}

// ListPosts loads page of the post list. Out of range pages ask for a redirect.
func (b *Blog) ListPosts(ctx context.Context, page int) (*PostList, error) {
	if page < 1 {
		return &PostList{RedirectTo: 1}, nil
	}

	got, err := b.api.ListPosts(ctx, page)
	if err != nil {
		return nil, translateBackendError(err)
	}

	if got.TotalPages > 0 && page > got.TotalPages {
		return &PostList{RedirectTo: got.TotalPages}, nil
	}

	return &PostList{PostsPage: got}, nil
}

// getPost reads a post through the revalidating cache.
func (b *Blog) getPost(ctx context.Context, slug string) (*model.Post, error) {
	post, err := cache.GetOrLoad(ctx, b.posts, gmw.GetLogger(ctx), postCacheKey(slug), b.revalidate,
		func(ctx context.Context) (*model.Post, error) {
			return b.api.GetPostBySlug(ctx, slug)
		})
	if err != nil {
		return nil, translateBackendError(err)
	}

	return post, nil
}

// GetPost returns the post with slug rendered to HTML.
func (b *Blog) GetPost(ctx context.Context, slug string) (*RenderedPost, error) {
	post, err := b.getPost(ctx, slug)
	if err != nil {
		return nil, err
	}

	html, toc := RenderMarkdown([]byte(post.Body))
	return &RenderedPost{
		Post: post,
		// markdown output drops raw html from the body
		HTML: template.HTML(html), //nolint:gosec
		TOC:  toc,
	}, nil
}

// InvalidatePost drops cached copies of slug.
func (b *Blog) InvalidatePost(ctx context.Context, slug string) {
	if err := b.posts.Del(ctx, postCacheKey(slug)); err != nil {
		gmw.GetLogger(ctx).Warn("invalidate post cache", zap.Error(err), zap.String("slug", slug))
	}
}

// PrewarmPosts loads every known post into the cache.
// It returns the number of posts loaded.
func (b *Blog) PrewarmPosts(ctx context.Context) (int, error) {
	slugs, err := b.api.ListPostSlugs(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "list slugs")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(prewarmConcurrency)
	for _, slug := range slugs {
		g.Go(func() error {
			if _, err := b.getPost(gctx, slug); err != nil {
				return errors.Wrapf(err, "prewarm %q", slug)
			}
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return 0, err
	}

	b.logger.Info("posts prewarmed", zap.Int("n", len(slugs)))
	return len(slugs), nil
}

// EditablePost returns the post with slug when st may edit it.
func (b *Blog) EditablePost(ctx context.Context, st *session.State, slug string) (*model.Post, error) {
	if err := requireLogin(st); err != nil {
		return nil, err
	}

	post, err := b.API(st).GetPostBySlug(ctx, slug)
	if err != nil {
		return nil, translateBackendError(err)
	}
	if post.Author.ID != st.User.ID {
		return nil, errors.WithStack(model.ErrNotAuthor)
	}

	return post, nil
}

// CreatePost publishes a post for st and drops its draft.
func (b *Blog) CreatePost(ctx context.Context, st *session.State, form *model.PostForm) (*model.Post, error) {
	if err := requireLogin(st); err != nil {
		return nil, err
	}

	form, err := sanitizePostForm(form, true)
	if err != nil {
		return nil, err
	}

	post, err := b.API(st).CreatePost(ctx, form)
	if err != nil {
		return nil, translateBackendError(err)
	}

	b.InvalidatePost(ctx, post.Slug)
	if err = b.drafts.Discard(ctx, st.User.ID, newPostDraftKey); err != nil {
		gmw.GetLogger(ctx).Warn("discard draft", zap.Error(err))
	}

	gmw.GetLogger(ctx).Info("post created",
		zap.String("slug", post.Slug),
		zap.String("author", st.User.ID))
	return post, nil
}

// UpdatePost edits the post currently at oldSlug.
// It returns the slug the post lives at afterwards.
func (b *Blog) UpdatePost(ctx context.Context, st *session.State, oldSlug string, form *model.PostForm) (string, error) {
	post, err := b.EditablePost(ctx, st, oldSlug)
	if err != nil {
		return "", err
	}

	if form, err = sanitizePostForm(form, false); err != nil {
		return "", err
	}

	if err = b.API(st).UpdatePost(ctx, post.ID, form); err != nil {
		return "", translateBackendError(err)
	}

	b.InvalidatePost(ctx, oldSlug)
	b.InvalidatePost(ctx, form.Slug)
	if err = b.drafts.Discard(ctx, st.User.ID, post.ID); err != nil {
		gmw.GetLogger(ctx).Warn("discard draft", zap.Error(err))
	}

	return form.Slug, nil
}

// DeletePost removes the post at slug.
func (b *Blog) DeletePost(ctx context.Context, st *session.State, slug string) error {
	post, err := b.EditablePost(ctx, st, slug)
	if err != nil {
		return err
	}

	if err = b.API(st).DeletePost(ctx, post.ID); err != nil && !blogapi.IsNotFound(err) {
		return translateBackendError(err)
	}

	b.InvalidatePost(ctx, slug)
	return nil
}

// UploadImage stores an image for use inside a post body.
func (b *Blog) UploadImage(ctx context.Context, st *session.State, img *model.Upload) (string, error) {
	if err := requireLogin(st); err != nil {
		return "", err
	}
	if img == nil {
		return "", invalid("image is required")
	}
	if err := sanitizeImage(img, "image"); err != nil {
		return "", err
	}

	u, err := b.API(st).UploadInPostImage(ctx, img)
	if err != nil {
		return "", translateBackendError(err)
	}

	return u, nil
}

// DraftKey returns the draft key of the post with id, or of a new post.
func DraftKey(postID string) string {
	if postID == "" {
		return newPostDraftKey
	}

	return postID
}

// LoadDraft returns the autosaved editor content of st, nil when none.
func (b *Blog) LoadDraft(ctx context.Context, st *session.State, postID string) (*model.PostForm, error) {
	if err := requireLogin(st); err != nil {
		return nil, err
	}

	d, err := b.drafts.Load(ctx, st.User.ID, DraftKey(postID))
	if err != nil || d == nil {
		return nil, err
	}

	form := new(model.PostForm)
	if err = copier.Copy(form, d); err != nil {
		return nil, errors.Wrap(err, "copy draft")
	}

	return form, nil
}

// AutosaveDraft stores the editor content of st when it changed.
func (b *Blog) AutosaveDraft(ctx context.Context, st *session.State, postID string, form *model.PostForm) (bool, error) {
	if err := requireLogin(st); err != nil {
		return false, err
	}
	if form == nil {
		return false, invalid("empty draft")
	}
	if len(form.Body) > maxBodyLength {
		return false, invalid("body exceeds max length %d", maxBodyLength)
	}

	d := &draft.Draft{Owner: st.User.ID, Key: DraftKey(postID)}
	if err := copier.Copy(d, form); err != nil {
		return false, errors.Wrap(err, "copy draft")
	}

	return b.drafts.Autosave(ctx, d)
}
