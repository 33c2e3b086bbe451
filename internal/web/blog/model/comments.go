package model

import (
	"time"
)

// Comment is a comment on a blog post as returned by the backend.
type Comment struct {
	// ID is the opaque comment identifier assigned by the backend
	ID string `json:"_id"`
	// BlogPostID is the post this comment belongs to
	BlogPostID string `json:"blogPostId"`
	// ParentCommentID is empty for top-level comments.
	// Replies always point at a top-level comment, threads are one level deep.
	ParentCommentID string      `json:"parentCommentId,omitempty"`
	Author          UserSummary `json:"author"`
	Text            string      `json:"text"`
	// RepliesCount is nil when the backend omits it, e.g. in update responses
	RepliesCount *int      `json:"repliesCount,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// IsReply reports whether the comment is a reply to another comment.
func (c *Comment) IsReply() bool {
	return c.ParentCommentID != ""
}

// Edited reports whether the comment was modified after creation.
func (c *Comment) Edited() bool {
	return c.UpdatedAt.After(c.CreatedAt)
}

// Replies returns the known reply count, or 0 when unknown.
func (c *Comment) Replies() int {
	if c.RepliesCount == nil {
		return 0
	}

	return *c.RepliesCount
}

// IsAuthoredBy reports whether user wrote this comment.
func (c *Comment) IsAuthoredBy(user *User) bool {
	return user != nil && user.ID != "" && c.Author.ID == user.ID
}

// CommentsPage is one page of comments
type CommentsPage struct {
	Comments               []*Comment `json:"comments"`
	EndOfPaginationReached bool       `json:"endOfPaginationReached"`
}

// CreateCommentRequest is the body of a new comment
type CreateCommentRequest struct {
	Text            string `json:"text"`
	ParentCommentID string `json:"parentCommentId,omitempty"`
}

// UpdateCommentRequest is the body of a comment edit
type UpdateCommentRequest struct {
	Text string `json:"text"`
}

// IntPtr returns a pointer to n.
func IntPtr(n int) *int {
	return &n
}
