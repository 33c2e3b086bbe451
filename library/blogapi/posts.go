package blogapi

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/Laisky/errors/v2"

	"github.com/Laisky/laisky-blog-web/internal/web/blog/model"
)

// ListPosts fetches one page of the post list, page is 1-based.
func (c *Client) ListPosts(ctx context.Context, page int) (*model.PostsPage, error) {
	r := &request{method: http.MethodGet, path: "/posts"}
	if page > 0 {
		r.query = url.Values{"page": []string{strconv.Itoa(page)}}
	}

	out := new(model.PostsPage)
	if _, err := c.do(ctx, r, out); err != nil {
		return nil, errors.Wrap(err, "list posts")
	}

	return out, nil
}

// ListPostsByAuthor returns every post written by authorID.
func (c *Client) ListPostsByAuthor(ctx context.Context, authorID string) ([]*model.Post, error) {
	if authorID == "" {
		return nil, errors.New("empty author id")
	}

	var out []*model.Post
	if _, err := c.do(ctx, &request{
		method: http.MethodGet,
		path:   "/posts",
		query:  url.Values{"authorId": []string{authorID}},
	}, &out); err != nil {
		return nil, errors.Wrap(err, "list posts by author")
	}

	return out, nil
}

// ListPostSlugs returns the slug of every post.
func (c *Client) ListPostSlugs(ctx context.Context) ([]string, error) {
	var out []string
	if _, err := c.do(ctx, &request{method: http.MethodGet, path: "/posts/slugs"}, &out); err != nil {
		return nil, errors.Wrap(err, "list post slugs")
	}

	return out, nil
}

// GetPostBySlug fetches a single post.
func (c *Client) GetPostBySlug(ctx context.Context, slug string) (*model.Post, error) {
	if slug == "" {
		return nil, errors.New("empty slug")
	}

	out := new(model.Post)
	if _, err := c.do(ctx, &request{
		method: http.MethodGet,
		path:   "/posts/post/" + url.PathEscape(slug),
	}, out); err != nil {
		return nil, errors.Wrapf(err, "get post %q", slug)
	}

	return out, nil
}

func postFields(form *model.PostForm) map[string]string {
	return map[string]string{
		"slug":    form.Slug,
		"title":   form.Title,
		"summary": form.Summary,
		"body":    form.Body,
	}
}

// CreatePost publishes a new post. The featured image is required.
func (c *Client) CreatePost(ctx context.Context, form *model.PostForm) (*model.Post, error) {
	if form == nil || form.FeaturedImage == nil {
		return nil, errors.New("featured image is required")
	}

	img := *form.FeaturedImage
	img.FieldName = "featuredImage"
	r, err := multipartRequest(http.MethodPost, "/posts", postFields(form), &img)
	if err != nil {
		return nil, err
	}

	out := new(model.Post)
	if _, err = c.do(ctx, r, out); err != nil {
		return nil, errors.Wrap(err, "create post")
	}

	return out, nil
}

// UpdatePost edits a post, the featured image is replaced only when given.
func (c *Client) UpdatePost(ctx context.Context, postID string, form *model.PostForm) error {
	if postID == "" || form == nil {
		return errors.New("empty post id or form")
	}

	var img *model.Upload
	if form.FeaturedImage != nil {
		cp := *form.FeaturedImage
		cp.FieldName = "featuredImage"
		img = &cp
	}

	r, err := multipartRequest(http.MethodPatch, "/posts/"+url.PathEscape(postID), postFields(form), img)
	if err != nil {
		return err
	}

	if _, err = c.do(ctx, r, nil); err != nil {
		return errors.Wrap(err, "update post")
	}

	return nil
}

// DeletePost removes a post.
func (c *Client) DeletePost(ctx context.Context, postID string) error {
	if postID == "" {
		return errors.New("empty post id")
	}

	if _, err := c.do(ctx, &request{
		method: http.MethodDelete,
		path:   "/posts/" + url.PathEscape(postID),
	}, nil); err != nil {
		return errors.Wrap(err, "delete post")
	}

	return nil
}

// UploadInPostImage stores an image used inside a post body and returns its url.
func (c *Client) UploadInPostImage(ctx context.Context, img *model.Upload) (string, error) {
	if img == nil {
		return "", errors.New("empty image")
	}

	cp := *img
	cp.FieldName = "inPostImage"
	r, err := multipartRequest(http.MethodPost, "/posts/images", nil, &cp)
	if err != nil {
		return "", err
	}

	var out struct {
		ImageURL string `json:"imageUrl"`
	}
	if _, err = c.do(ctx, r, &out); err != nil {
		return "", errors.Wrap(err, "upload image")
	}
	if out.ImageURL == "" {
		return "", errors.New("backend returned empty image url")
	}

	return out.ImageURL, nil
}
