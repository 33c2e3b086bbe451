package service

import (
	"context"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"

	"github.com/Laisky/laisky-blog-web/internal/web/blog/feed"
	"github.com/Laisky/laisky-blog-web/internal/web/blog/model"
	"github.com/Laisky/laisky-blog-web/internal/web/blog/session"
	"github.com/Laisky/laisky-blog-web/library/blogapi"
)

// CommentTarget locates a comment inside the feeds of a post.
// ParentID is empty for top-level comments.
type CommentTarget struct {
	PostID    string
	ParentID  string
	CommentID string
}

func (b *Blog) newArticleFeed(postID string) (*feed.Controller, error) {
	return feed.New(postID, func(ctx context.Context, after string) (*model.CommentsPage, error) {
		return b.api.ListComments(ctx, postID, after)
	}, feed.WithLogger(b.logger.Named("comment_feed")))
}

func (b *Blog) newReplyFeed(commentID string) (*feed.Controller, error) {
	return feed.New(commentID, func(ctx context.Context, after string) (*model.CommentsPage, error) {
		return b.api.ListReplies(ctx, commentID, after)
	}, feed.WithLogger(b.logger.Named("reply_feed")), feed.WithCreatedAtTail())
}

// CommentFeed returns the live top-level feed of postID for st.
func (b *Blog) CommentFeed(st *session.State, postID string) (*feed.Controller, bool, error) {
	return b.feeds.GetOrCreate(feed.ArticleKey(st.ID, postID), func() (*feed.Controller, error) {
		return b.newArticleFeed(postID)
	})
}

// ReplyFeed returns the live reply feed of commentID for st.
func (b *Blog) ReplyFeed(st *session.State, commentID string) (*feed.Controller, bool, error) {
	return b.feeds.GetOrCreate(feed.RepliesKey(st.ID, commentID), func() (*feed.Controller, error) {
		return b.newReplyFeed(commentID)
	})
}

// OpenComments starts a fresh feed for postID and loads its first page.
// The snapshot is returned even when the load fails, with its error flag set.
func (b *Blog) OpenComments(ctx context.Context, st *session.State, postID string) (*feed.Snapshot, error) {
	c, err := b.newArticleFeed(postID)
	if err != nil {
		return nil, errors.Wrap(err, "new comment feed")
	}
	b.feeds.Replace(feed.ArticleKey(st.ID, postID), c)

	_, err = c.LoadPage(ctx, "")
	return c.Snapshot(), err
}

// LoadComments loads the page after afterID, or the first page when afterID is empty.
// A feed that expired from the registry is reloaded from the first page.
func (b *Blog) LoadComments(ctx context.Context, st *session.State, postID, afterID string) (*feed.Snapshot, error) {
	c, created, err := b.CommentFeed(st, postID)
	if err != nil {
		return nil, err
	}

	return loadFeed(ctx, c, created, afterID)
}

// LoadReplies loads replies of commentID, paginated like LoadComments.
func (b *Blog) LoadReplies(ctx context.Context, st *session.State, commentID, afterID string) (*feed.Snapshot, error) {
	c, created, err := b.ReplyFeed(st, commentID)
	if err != nil {
		return nil, err
	}

	return loadFeed(ctx, c, created, afterID)
}

func loadFeed(ctx context.Context, c *feed.Controller, created bool, afterID string) (*feed.Snapshot, error) {
	if created {
		afterID = ""
	}

	_, err := c.LoadPage(ctx, afterID)
	if errors.Is(err, feed.ErrUnknownCursor) {
		return c.Snapshot(), errors.Wrap(model.ErrInvalidInput, err.Error())
	}

	return c.Snapshot(), err
}

// CreateComment posts text on postID as st.
// A non-empty parentID makes it a reply. A loaded reply as parent stands for its top-level comment.
func (b *Blog) CreateComment(ctx context.Context, st *session.State, postID, parentID, text string) (*model.Comment, error) {
	if err := requireLogin(st); err != nil {
		return nil, err
	}

	text, err := sanitizeCommentText(text)
	if err != nil {
		return nil, err
	}
	if b.throttle != nil && !b.throttle.Allow(st.User.ID) {
		return nil, errors.WithStack(model.ErrTooManyRequests)
	}

	articleFeed, _, err := b.CommentFeed(st, postID)
	if err != nil {
		return nil, err
	}
	parentID = b.replyParent(st, articleFeed, parentID)

	cmt, err := b.API(st).CreateComment(ctx, postID, parentID, text)
	if err != nil {
		return nil, translateBackendError(err)
	}

	if !cmt.IsReply() {
		articleFeed.RecordCreated(cmt)
	} else {
		replies, err := b.openReplyFeed(ctx, st, cmt.ParentCommentID)
		if err != nil {
			return nil, err
		}
		if _, ok := replies.Get(cmt.ID); !ok {
			replies.RecordCreated(cmt)
		}
		b.adjustReplyCount(articleFeed, cmt.ParentCommentID, 1)
	}

	gmw.GetLogger(ctx).Info("new comment created",
		zap.String("post", postID),
		zap.String("comment", cmt.ID),
		zap.String("parent", cmt.ParentCommentID))
	return cmt, nil
}

// UpdateComment replaces the text of a comment written by st.
// It returns the comment as the feed holds it afterwards.
func (b *Blog) UpdateComment(ctx context.Context, st *session.State, target CommentTarget, text string) (*model.Comment, error) {
	if err := requireLogin(st); err != nil {
		return nil, err
	}

	text, err := sanitizeCommentText(text)
	if err != nil {
		return nil, err
	}

	c, err := b.feedOf(ctx, st, target)
	if err != nil {
		return nil, err
	}
	if loaded, ok := c.Get(target.CommentID); ok && !loaded.IsAuthoredBy(st.User) {
		return nil, errors.WithStack(model.ErrNotAuthor)
	}

	updated, err := b.API(st).UpdateComment(ctx, target.CommentID, text)
	if err != nil {
		return nil, translateBackendError(err)
	}

	if c.RecordUpdated(updated) {
		if merged, ok := c.Get(updated.ID); ok {
			return merged, nil
		}
	}

	return updated, nil
}

// DeleteComment removes a comment written by st.
// A comment the backend no longer knows counts as deleted.
func (b *Blog) DeleteComment(ctx context.Context, st *session.State, target CommentTarget) error {
	if err := requireLogin(st); err != nil {
		return err
	}

	c, err := b.feedOf(ctx, st, target)
	if err != nil {
		return err
	}
	if loaded, ok := c.Get(target.CommentID); ok && !loaded.IsAuthoredBy(st.User) {
		return errors.WithStack(model.ErrNotAuthor)
	}

	deleted := true
	if err = b.API(st).DeleteComment(ctx, target.CommentID); err != nil {
		if !blogapi.IsNotFound(err) {
			return translateBackendError(err)
		}
		deleted = false
		gmw.GetLogger(ctx).Debug("comment already deleted", zap.String("comment", target.CommentID))
	}

	if c.RecordDeleted(target.CommentID) {
		deleted = true
	}
	if deleted && target.ParentID != "" {
		if articleFeed, ok := b.feeds.Get(feed.ArticleKey(st.ID, target.PostID)); ok {
			b.adjustReplyCount(articleFeed, target.ParentID, -1)
		}
	}
	if target.ParentID == "" {
		b.feeds.Discard(feed.RepliesKey(st.ID, target.CommentID))
	}

	return nil
}

// feedOf returns the feed holding target.
func (b *Blog) feedOf(ctx context.Context, st *session.State, target CommentTarget) (*feed.Controller, error) {
	if target.CommentID == "" {
		return nil, invalid("comment id is required")
	}

	if target.ParentID != "" {
		return b.openReplyFeed(ctx, st, target.ParentID)
	}

	c, _, err := b.CommentFeed(st, target.PostID)
	return c, err
}

// openReplyFeed returns the reply feed of parentID, loading the first page
// when the feed is new. A failed load leaves the feed empty with its error flag set.
func (b *Blog) openReplyFeed(ctx context.Context, st *session.State, parentID string) (*feed.Controller, error) {
	c, created, err := b.ReplyFeed(st, parentID)
	if err != nil {
		return nil, err
	}
	if created {
		if _, err = c.LoadPage(ctx, ""); err != nil {
			gmw.GetLogger(ctx).Warn("load replies", zap.String("parent", parentID), zap.Error(err))
		}
	}

	return c, nil
}

// replyParent returns the top-level comment a reply to parentID belongs to.
// parentID may name a reply held by one of the loaded reply feeds of st.
// Unknown ids are returned unchanged.
func (b *Blog) replyParent(st *session.State, articleFeed *feed.Controller, parentID string) string {
	if parentID == "" {
		return ""
	}
	if parent, ok := articleFeed.Get(parentID); ok {
		return feed.ReplyParentID(parent)
	}

	for _, top := range articleFeed.Comments() {
		replies, ok := b.feeds.Get(feed.RepliesKey(st.ID, top.ID))
		if !ok {
			continue
		}
		if reply, ok := replies.Get(parentID); ok {
			return feed.ReplyParentID(reply)
		}
	}

	return parentID
}

// ReplyWrite returns the reply feed of parentID and the parent as the
// top-level feed of postID holds it, nil when not loaded.
func (b *Blog) ReplyWrite(ctx context.Context, st *session.State, postID, parentID string) (*feed.Snapshot, *model.Comment, error) {
	replies, err := b.openReplyFeed(ctx, st, parentID)
	if err != nil {
		return nil, nil, err
	}

	var parent *model.Comment
	if articleFeed, ok := b.feeds.Get(feed.ArticleKey(st.ID, postID)); ok {
		if got, ok := articleFeed.Get(parentID); ok {
			parent = got
		}
	}

	return replies.Snapshot(), parent, nil
}

// adjustReplyCount shifts the reply count of a loaded top-level comment by delta.
func (b *Blog) adjustReplyCount(articleFeed *feed.Controller, commentID string, delta int) {
	parent, ok := articleFeed.Get(commentID)
	if !ok {
		return
	}

	n := parent.Replies() + delta
	if n < 0 {
		n = 0
	}
	parent.RepliesCount = model.IntPtr(n)
	articleFeed.RecordUpdated(parent)
}
