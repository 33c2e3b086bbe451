package controller

import (
	"net/http"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"

	"github.com/Laisky/laisky-blog-web/internal/web/blog/feed"
	"github.com/Laisky/laisky-blog-web/internal/web/blog/model"
	"github.com/Laisky/laisky-blog-web/internal/web/blog/service"
	"github.com/Laisky/laisky-blog-web/internal/web/blog/session"
)

type commentRequest struct {
	Text            string `json:"text"`
	ParentCommentID string `json:"parentCommentId,omitempty"`
}

// commentResponse carries the affected comment and the feed afterwards.
// Replies also carry their top-level comment with its new reply count.
type commentResponse struct {
	Comment *model.Comment `json:"comment,omitempty"`
	Feed    *feed.Snapshot `json:"feed"`
	Parent  *model.Comment `json:"parent,omitempty"`
}

const cursorQuery = "continueAfterId"

// LoadComments answers one page of top-level comments of a post.
func (c *Controller) LoadComments(ctx *gin.Context, st *session.State) {
	snap, err := c.svc.LoadComments(ctx, st, ctx.Param("postId"), ctx.Query(cursorQuery))
	c.writeSnapshot(ctx, st, snap, err)
}

// LoadReplies answers one page of replies of a comment.
func (c *Controller) LoadReplies(ctx *gin.Context, st *session.State) {
	snap, err := c.svc.LoadReplies(ctx, st, ctx.Param("commentId"), ctx.Query(cursorQuery))
	c.writeSnapshot(ctx, st, snap, err)
}

// writeSnapshot answers a load. A failed fetch still returns the feed,
// flagged with error, so the page keeps what it shows.
func (c *Controller) writeSnapshot(ctx *gin.Context, st *session.State, snap *feed.Snapshot, err error) {
	if err != nil && (snap == nil || statusOf(err) != http.StatusInternalServerError) {
		c.abortJSON(ctx, st, err)
		return
	}

	status := http.StatusOK
	if err != nil {
		status = http.StatusBadGateway
	}

	ctx.JSON(status, snap)
}

// CreateComment posts a comment or a reply.
func (c *Controller) CreateComment(ctx *gin.Context, st *session.State) {
	req := new(commentRequest)
	if err := ctx.ShouldBindJSON(req); err != nil {
		c.abortJSON(ctx, st, errors.Wrap(model.ErrInvalidInput, "invalid comment"))
		return
	}
	if !st.LoggedIn() {
		st.OpenModal(session.ModalLogin, refererPath(ctx))
	}

	postID := ctx.Param("postId")
	cmt, err := c.svc.CreateComment(ctx, st, postID, req.ParentCommentID, req.Text)
	if err != nil {
		c.abortJSON(ctx, st, err)
		return
	}

	c.writeComment(ctx, st, http.StatusCreated, cmt, service.CommentTarget{
		PostID:   postID,
		ParentID: cmt.ParentCommentID,
	})
}

// UpdateComment edits a comment of the signed in user.
func (c *Controller) UpdateComment(ctx *gin.Context, st *session.State) {
	req := new(commentRequest)
	if err := ctx.ShouldBindJSON(req); err != nil {
		c.abortJSON(ctx, st, errors.Wrap(model.ErrInvalidInput, "invalid comment"))
		return
	}

	target := service.CommentTarget{
		PostID:    ctx.Param("postId"),
		ParentID:  req.ParentCommentID,
		CommentID: ctx.Param("commentId"),
	}
	cmt, err := c.svc.UpdateComment(ctx, st, target, req.Text)
	if err != nil {
		c.abortJSON(ctx, st, err)
		return
	}

	c.writeComment(ctx, st, http.StatusOK, cmt, target)
}

// DeleteComment removes a comment of the signed in user.
// Deleting a comment that is already gone succeeds.
func (c *Controller) DeleteComment(ctx *gin.Context, st *session.State) {
	target := service.CommentTarget{
		PostID:    ctx.Param("postId"),
		ParentID:  ctx.Query("parentCommentId"),
		CommentID: ctx.Param("commentId"),
	}
	if err := c.svc.DeleteComment(ctx, st, target); err != nil {
		c.abortJSON(ctx, st, err)
		return
	}

	c.writeComment(ctx, st, http.StatusOK, nil, target)
}

// writeComment answers with cmt and the feed that holds it.
func (c *Controller) writeComment(ctx *gin.Context, st *session.State,
	status int, cmt *model.Comment, target service.CommentTarget) {
	if target.ParentID != "" {
		replies, parent, err := c.svc.ReplyWrite(ctx, st, target.PostID, target.ParentID)
		if err != nil {
			c.abortJSON(ctx, st, err)
			return
		}

		ctx.JSON(status, &commentResponse{Comment: cmt, Feed: replies, Parent: parent})
		return
	}

	fc, _, err := c.svc.CommentFeed(st, target.PostID)
	if err != nil {
		c.abortJSON(ctx, st, err)
		return
	}

	ctx.JSON(status, &commentResponse{Comment: cmt, Feed: fc.Snapshot()})
}
