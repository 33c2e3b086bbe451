package feed

import "github.com/Laisky/laisky-blog-web/internal/web/blog/model"

// ReplyParentID returns the comment a reply to cmt must point at.
// Threads are one level deep: replying to a reply targets its top-level parent.
func ReplyParentID(cmt *model.Comment) string {
	if cmt.ParentCommentID != "" {
		return cmt.ParentCommentID
	}

	return cmt.ID
}

// ReplyPrefill returns the initial text of a reply to cmt.
// Replies to replies mention the author they answer.
func ReplyPrefill(cmt *model.Comment) string {
	if !cmt.IsReply() || cmt.Author.Username == "" {
		return ""
	}

	return "@" + cmt.Author.Username + " "
}
