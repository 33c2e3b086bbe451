package tui

import (
	"github.com/Laisky/errors/v2"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Laisky/laisky-blog-web/internal/web/blog/feed"
	"github.com/Laisky/laisky-blog-web/internal/web/blog/model"
	"github.com/Laisky/laisky-blog-web/internal/web/blog/service"
	"github.com/Laisky/laisky-blog-web/internal/web/blog/session"
)

type postsMsg struct {
	page int
	list *service.PostList
	err  error
}

type postMsg struct {
	post *service.RenderedPost
	err  error
}

// commentsMsg reports a load of feed.
// open is set when the feed was loaded from the first page.
type commentsMsg struct {
	postID string
	feed   *feed.Controller
	open   bool
	err    error
}

// repliesMsg reports a load of the reply thread of parent.
// article is the comment feed the thread was opened from.
type repliesMsg struct {
	article *feed.Controller
	parent  *model.Comment
	feed    *feed.Controller
	open    bool
	err     error
}

type mutationMsg struct {
	feed   *feed.Controller
	status string
	err    error
}

type loginMsg struct {
	st  *session.State
	err error
}

func (m Model) loadPosts(page int) tea.Cmd {
	ctx, svc := m.ctx, m.svc
	return func() tea.Msg {
		got, err := svc.ListPosts(ctx, page)
		return postsMsg{page: page, list: got, err: err}
	}
}

func (m Model) loadPost(slug string) tea.Cmd {
	ctx, svc := m.ctx, m.svc
	return func() tea.Msg {
		post, err := svc.GetPost(ctx, slug)
		return postMsg{post: post, err: err}
	}
}

func (m Model) openComments(postID string) tea.Cmd {
	ctx, svc, st := m.ctx, m.svc, m.st
	return func() tea.Msg {
		if _, err := svc.OpenComments(ctx, st, postID); err != nil {
			return commentsMsg{postID: postID, open: true, err: err}
		}

		fc, _, err := svc.CommentFeed(st, postID)
		return commentsMsg{postID: postID, feed: fc, open: true, err: err}
	}
}

func (m Model) loadMore(fc *feed.Controller) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		_, err := fc.LoadMore(ctx)
		return commentsMsg{feed: fc, err: err}
	}
}

func (m Model) openReplies(parent *model.Comment) tea.Cmd {
	ctx, svc, st, fc := m.ctx, m.svc, m.st, m.comments
	return func() tea.Msg {
		rf, _, err := svc.ReplyFeed(st, parent.ID)
		if err != nil {
			return repliesMsg{article: fc, parent: parent, open: true, err: err}
		}

		_, err = svc.LoadReplies(ctx, st, parent.ID, "")
		return repliesMsg{article: fc, parent: parent, feed: rf, open: true, err: err}
	}
}

func (m Model) loadMoreReplies(rf *feed.Controller) tea.Cmd {
	ctx, fc, parent := m.ctx, m.comments, m.thread
	return func() tea.Msg {
		_, err := rf.LoadMore(ctx)
		return repliesMsg{article: fc, parent: parent, feed: rf, err: err}
	}
}

func (m Model) submitComment(target composeTarget, text string) tea.Cmd {
	ctx, svc, st, fc := m.ctx, m.svc, m.st, m.comments
	postID := m.post.ID
	return func() tea.Msg {
		if target.Edit != nil {
			_, err := svc.UpdateComment(ctx, st, *target.Edit, text)
			return mutationMsg{feed: fc, status: "comment updated", err: err}
		}

		_, err := svc.CreateComment(ctx, st, postID, target.ParentID, text)
		if target.ParentID != "" {
			return mutationMsg{feed: fc, status: "reply posted", err: err}
		}
		return mutationMsg{feed: fc, status: "comment posted", err: err}
	}
}

func (m Model) deleteComment(target service.CommentTarget) tea.Cmd {
	ctx, svc, st, fc := m.ctx, m.svc, m.st, m.comments
	return func() tea.Msg {
		err := svc.DeleteComment(ctx, st, target)
		return mutationMsg{feed: fc, status: "comment deleted", err: err}
	}
}

// login signs in on a copy of the session, Update swaps it in.
func (m Model) login(req *model.LoginRequest) tea.Cmd {
	ctx, svc := m.ctx, m.svc
	st := session.NewState(m.st.ID)
	return func() tea.Msg {
		if _, err := svc.Login(ctx, st, req); err != nil {
			return loginMsg{err: err}
		}
		return loginMsg{st: st}
	}
}

func (m Model) onPosts(msg postsMsg) (tea.Model, tea.Cmd) {
	m.busy = false
	if msg.err != nil {
		m.err = msg.err
		return m, nil
	}
	if msg.list.RedirectTo > 0 {
		if msg.list.RedirectTo == msg.page {
			return m, nil
		}
		return m, m.startBusy(m.loadPosts(msg.list.RedirectTo))
	}

	items := make([]list.Item, 0, len(msg.list.Posts))
	for _, p := range msg.list.Posts {
		items = append(items, postItem{post: p})
	}
	m.page = msg.list.Page
	if m.page == 0 {
		m.page = msg.page
	}
	m.totalPages = msg.list.TotalPages
	cmd := m.posts.SetItems(items)
	m.posts.Select(0)
	return m, cmd
}

func (m Model) onPost(msg postMsg) (tea.Model, tea.Cmd) {
	m.busy = false
	if msg.err != nil {
		m.err = msg.err
		return m, nil
	}

	m.post = msg.post
	m.comments = nil
	m.selected = 0
	m.closeThread()
	m.state = ViewArticle
	m.article.SetContent(m.renderArticleBody())
	m.article.GotoTop()
	return m, nil
}

func (m Model) onComments(msg commentsMsg) (tea.Model, tea.Cmd) {
	if msg.open {
		if m.post == nil || m.post.ID != msg.postID {
			return m, nil
		}
	} else if msg.feed != m.comments {
		return m, nil
	}

	m.busy = false
	if msg.feed != nil {
		m.comments = msg.feed
		if msg.open {
			m.state = ViewComments
			m.selected = 0
			m.closeThread()
		}
		m.clampSelection()
	}
	if msg.err != nil {
		m.err = msg.err
	}
	return m, nil
}

func (m Model) onReplies(msg repliesMsg) (tea.Model, tea.Cmd) {
	if msg.article != m.comments || msg.parent == nil || msg.parent.ID != m.threadID {
		return m, nil
	}
	if !msg.open && msg.feed != m.replies {
		return m, nil
	}

	m.busy = false
	if msg.feed != nil {
		m.replies = msg.feed
		if msg.open {
			m.thread = msg.parent
			m.state = ViewReplies
			m.replySelected = 0
		}
		m.clampSelection()
	}
	if msg.err != nil {
		m.err = msg.err
	}
	return m, nil
}

func (m *Model) closeThread() {
	m.thread, m.threadID = nil, ""
	m.replies = nil
	m.replySelected = 0
}

func (m Model) onMutation(msg mutationMsg) (tea.Model, tea.Cmd) {
	if msg.feed != m.comments {
		return m, nil
	}

	m.busy = false
	if msg.err != nil {
		m.err = msg.err
		return m, nil
	}

	m.compose.Blur()
	m.compose.SetValue("")
	if m.state == ViewCompose {
		m.state = m.back
	}
	m.status = msg.status
	m.clampSelection()
	return m, nil
}

func (m Model) onLogin(msg loginMsg) (tea.Model, tea.Cmd) {
	m.busy = false
	if msg.err != nil {
		m.err = msg.err
		m.loginInputs[1].SetValue("")
		m.focusLogin(1)
		return m, nil
	}

	m.st = msg.st
	m.status = "logged in as " + m.st.User.Summary().Name()
	for i := range m.loginInputs {
		m.loginInputs[i].Blur()
	}
	m.state = m.back
	return m, nil
}

// friendlyError turns domain errors into short messages.
func friendlyError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, model.ErrInvalidCredentials):
		return "wrong username or password"
	case errors.Is(err, model.ErrLoginRequired):
		return "log in first"
	case errors.Is(err, model.ErrNotAuthor):
		return "you can only change your own comments"
	case errors.Is(err, model.ErrTooManyRequests):
		return "too many comments, slow down"
	case errors.Is(err, model.ErrInvalidInput):
		return err.Error()
	case errors.Is(err, model.ErrNotFound):
		return "not found"
	case errors.Is(err, feed.ErrUnknownCursor):
		return "comments changed, reopen them"
	default:
		return "request failed, press r to retry"
	}
}
