package blogapi

import (
	"context"
	"net/http"
	"net/url"

	"github.com/Laisky/errors/v2"

	"github.com/Laisky/laisky-blog-web/internal/web/blog/model"
)

// ListComments fetches one page of top-level comments of a post.
// An empty continueAfterID requests the first page.
func (c *Client) ListComments(ctx context.Context, postID, continueAfterID string) (*model.CommentsPage, error) {
	if postID == "" {
		return nil, errors.New("empty post id")
	}

	return c.listComments(ctx, "/comments/"+url.PathEscape(postID), continueAfterID)
}

// ListReplies fetches one page of replies to a top-level comment.
func (c *Client) ListReplies(ctx context.Context, commentID, continueAfterID string) (*model.CommentsPage, error) {
	if commentID == "" {
		return nil, errors.New("empty comment id")
	}

	return c.listComments(ctx, "/comments/"+url.PathEscape(commentID)+"/replies", continueAfterID)
}

func (c *Client) listComments(ctx context.Context, path, continueAfterID string) (*model.CommentsPage, error) {
	r := &request{method: http.MethodGet, path: path}
	if continueAfterID != "" {
		r.query = url.Values{"continueAfterId": []string{continueAfterID}}
	}

	page := new(model.CommentsPage)
	if _, err := c.do(ctx, r, page); err != nil {
		return nil, errors.Wrap(err, "list comments")
	}
	if page.Comments == nil {
		page.Comments = []*model.Comment{}
	}

	return page, nil
}

// CreateComment posts a new comment, or a reply when parentCommentID is set.
func (c *Client) CreateComment(ctx context.Context, postID, parentCommentID, text string) (*model.Comment, error) {
	if postID == "" {
		return nil, errors.New("empty post id")
	}

	r, err := jsonRequest(http.MethodPost, "/comments/"+url.PathEscape(postID), &model.CreateCommentRequest{
		Text:            text,
		ParentCommentID: parentCommentID,
	})
	if err != nil {
		return nil, err
	}

	cmt := new(model.Comment)
	if _, err = c.do(ctx, r, cmt); err != nil {
		return nil, errors.Wrap(err, "create comment")
	}

	return cmt, nil
}

// UpdateComment replaces the text of a comment.
// The returned comment carries no reply count.
func (c *Client) UpdateComment(ctx context.Context, commentID, text string) (*model.Comment, error) {
	if commentID == "" {
		return nil, errors.New("empty comment id")
	}

	r, err := jsonRequest(http.MethodPatch, "/comments/"+url.PathEscape(commentID), &model.UpdateCommentRequest{
		Text: text,
	})
	if err != nil {
		return nil, err
	}

	cmt := new(model.Comment)
	if _, err = c.do(ctx, r, cmt); err != nil {
		return nil, errors.Wrap(err, "update comment")
	}

	return cmt, nil
}

// DeleteComment removes a comment. A 404 is returned as ErrNotFound,
// callers decide whether that counts as success.
func (c *Client) DeleteComment(ctx context.Context, commentID string) error {
	if commentID == "" {
		return errors.New("empty comment id")
	}

	if _, err := c.do(ctx, &request{
		method: http.MethodDelete,
		path:   "/comments/" + url.PathEscape(commentID),
	}, nil); err != nil {
		return errors.Wrap(err, "delete comment")
	}

	return nil
}
