// Package tui is a terminal reader for the blog.
// It uses the Charm Bubble Tea framework and talks to the backend through service.Blog.
package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Laisky/laisky-blog-web/internal/web/blog/feed"
	"github.com/Laisky/laisky-blog-web/internal/web/blog/model"
	"github.com/Laisky/laisky-blog-web/internal/web/blog/service"
	"github.com/Laisky/laisky-blog-web/internal/web/blog/session"
)

const (
	defaultWidth  = 80
	defaultHeight = 24
	// maxCommentRunes mirrors the backend limit
	maxCommentRunes = 600
)

// ViewState is the screen currently shown
type ViewState int

const (
	// ViewPosts is the paged post list
	ViewPosts ViewState = iota
	// ViewArticle is a single post
	ViewArticle
	// ViewComments is the comment list of the open post
	ViewComments
	// ViewCompose edits a new comment, a reply or an edit
	ViewCompose
	// ViewLogin is the login form
	ViewLogin
	// ViewReplies is the reply thread of one top-level comment
	ViewReplies
)

// postItem shows a post in the list (implements list.Item)
type postItem struct {
	post *model.Post
}

func (i postItem) Title() string { return i.post.Title }

func (i postItem) Description() string {
	return i.post.Author.Name() + " · " + i.post.CreatedAt.Format("2006-01-02") +
		" · " + service.Truncate(i.post.Summary, 60)
}

func (i postItem) FilterValue() string { return i.post.Title }

// composeTarget tells what submitting the compose view does
type composeTarget struct {
	// ParentID makes a new comment a reply
	ParentID string
	// Edit is set when an existing comment is edited
	Edit *service.CommentTarget
}

// Model is the reader following the Bubble Tea architecture.
//
// The session is owned by Update. Commands read it but never modify it,
// login builds a new session that Update swaps in.
type Model struct {
	ctx context.Context
	svc *service.Blog
	st  *session.State

	state ViewState
	// back is where compose and login return to
	back ViewState

	posts      list.Model
	page       int
	totalPages int

	post    *service.RenderedPost
	article viewport.Model

	// comments is the feed of the open post, responses of any other feed are stale
	comments *feed.Controller
	selected int

	// thread is the top-level comment whose replies are shown
	thread *model.Comment
	// threadID is the thread being opened or shown
	threadID      string
	replies       *feed.Controller
	replySelected int

	compose textinput.Model
	target  composeTarget

	loginInputs []textinput.Model
	focusIndex  int

	spinner spinner.Model
	busy    bool
	status  string
	err     error

	width  int
	height int

	quitting bool
}

// keyMap defines the key bindings of the reader
type keyMap struct {
	Up       key.Binding
	Down     key.Binding
	Enter    key.Binding
	Back     key.Binding
	Tab      key.Binding
	Quit     key.Binding
	Next     key.Binding
	Prev     key.Binding
	Comments key.Binding
	More     key.Binding
	Write    key.Binding
	Reply    key.Binding
	Edit     key.Binding
	Delete   key.Binding
	Retry    key.Binding
	Login    key.Binding
}

var keys = keyMap{
	Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Enter:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open")),
	Back:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
	Tab:      key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next field")),
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Next:     key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "next page")),
	Prev:     key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "previous page")),
	Comments: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "comments")),
	More:     key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "more")),
	Write:    key.NewBinding(key.WithKeys("w"), key.WithHelp("w", "write")),
	Reply:    key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "reply")),
	Edit:     key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "edit")),
	Delete:   key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete")),
	Retry:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "retry")),
	Login:    key.NewBinding(key.WithKeys("l"), key.WithHelp("l", "log in")),
}

// forceQuit works even while typing
var forceQuit = key.NewBinding(key.WithKeys("ctrl+c"))

// NewModel creates a reader on svc acting as st.
func NewModel(ctx context.Context, svc *service.Blog, st *session.State) Model {
	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(primaryColor).
		BorderForeground(primaryColor)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(secondaryColor)

	posts := list.New(nil, delegate, defaultWidth-4, defaultHeight-6)
	posts.Title = "Laisky Blog"
	posts.SetShowStatusBar(false)
	posts.SetFilteringEnabled(false)
	posts.SetShowHelp(false)
	posts.Styles.Title = headerStyle
	posts.KeyMap.Quit.SetEnabled(false)
	posts.KeyMap.ForceQuit.SetEnabled(false)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = progressStyle

	compose := newInput("Write a comment", maxCommentRunes, 60)
	compose.Prompt = "✎ "

	username := newInput("username", 64, 30)
	password := newInput("password", 128, 30)
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'

	return Model{
		ctx:         ctx,
		svc:         svc,
		st:          st,
		state:       ViewPosts,
		posts:       posts,
		page:        1,
		article:     viewport.New(defaultWidth-4, defaultHeight-8),
		compose:     compose,
		loginInputs: []textinput.Model{username, password},
		spinner:     sp,
		busy:        true,
		width:       defaultWidth,
		height:      defaultHeight,
	}
}

func newInput(placeholder string, limit, width int) textinput.Model {
	in := textinput.New()
	in.Placeholder = placeholder
	in.CharLimit = limit
	in.Width = width
	in.PromptStyle = inputLabelStyle
	in.Cursor.SetMode(cursor.CursorStatic)
	return in
}

// Session returns the session the reader acts as.
func (m Model) Session() *session.State {
	return m.st
}

// Init loads the first page of posts
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.loadPosts(m.page),
	)
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case postsMsg:
		return m.onPosts(msg)
	case postMsg:
		return m.onPost(msg)
	case commentsMsg:
		return m.onComments(msg)
	case repliesMsg:
		return m.onReplies(msg)
	case mutationMsg:
		return m.onMutation(msg)
	case loginMsg:
		return m.onLogin(msg)

	case tea.KeyMsg:
		if key.Matches(msg, forceQuit) {
			m.quitting = true
			return m, tea.Quit
		}

		switch m.state {
		case ViewPosts:
			return m.handlePostsKey(msg)
		case ViewArticle:
			return m.handleArticleKey(msg)
		case ViewComments, ViewReplies:
			return m.handleCommentsKey(msg)
		case ViewCompose:
			return m.handleComposeKey(msg)
		case ViewLogin:
			return m.handleLoginKey(msg)
		}
	}

	return m, nil
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	m.posts.SetSize(width-4, height-6)
	m.article.Width = width - 4
	m.article.Height = height - 8
	if m.post != nil {
		m.article.SetContent(m.renderArticleBody())
	}
}

// startBusy shows the spinner while cmd runs.
func (m *Model) startBusy(cmd tea.Cmd) tea.Cmd {
	m.busy = true
	m.err = nil
	m.status = ""
	return tea.Batch(cmd, m.spinner.Tick)
}

func (m Model) handlePostsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		m.quitting = true
		return m, tea.Quit
	case m.busy:
		return m, nil
	case key.Matches(msg, keys.Enter):
		item, ok := m.posts.SelectedItem().(postItem)
		if !ok {
			return m, nil
		}
		return m, m.startBusy(m.loadPost(item.post.Slug))
	case key.Matches(msg, keys.Next):
		if m.page >= m.totalPages {
			return m, nil
		}
		return m, m.startBusy(m.loadPosts(m.page + 1))
	case key.Matches(msg, keys.Prev):
		if m.page <= 1 {
			return m, nil
		}
		return m, m.startBusy(m.loadPosts(m.page - 1))
	case key.Matches(msg, keys.Retry):
		return m, m.startBusy(m.loadPosts(m.page))
	case key.Matches(msg, keys.Login):
		return m.openLogin(ViewPosts)
	}

	var cmd tea.Cmd
	m.posts, cmd = m.posts.Update(msg)
	return m, cmd
}

func (m Model) handleArticleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, keys.Back):
		m.state = ViewPosts
		m.busy = false
		m.err, m.status = nil, ""
		return m, nil
	case m.busy:
		return m, nil
	case key.Matches(msg, keys.Comments):
		return m, m.startBusy(m.openComments(m.post.ID))
	}

	var cmd tea.Cmd
	m.article, cmd = m.article.Update(msg)
	return m, cmd
}

// handleCommentsKey serves the comment list and the reply thread.
func (m Model) handleCommentsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	fc, sel := m.shownFeed(), m.selection()
	switch {
	case key.Matches(msg, keys.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, keys.Back):
		if m.state == ViewReplies {
			m.state = ViewComments
		} else {
			m.state = ViewArticle
		}
		m.closeThread()
		m.busy = false
		m.err, m.status = nil, ""
		return m, nil
	case key.Matches(msg, keys.Up):
		if *sel > 0 {
			*sel--
		}
		return m, nil
	case key.Matches(msg, keys.Down):
		if *sel < len(fc.Comments())-1 {
			*sel++
		}
		return m, nil
	case m.busy:
		return m, nil
	case key.Matches(msg, keys.Enter):
		cmt := m.selectedComment()
		if m.state != ViewComments || cmt == nil {
			return m, nil
		}
		m.threadID = cmt.ID
		return m, m.startBusy(m.openReplies(cmt))
	case key.Matches(msg, keys.More):
		if fc.Exhausted() || fc.Failed() {
			return m, nil
		}
		return m, m.startBusy(m.loadMoreShown())
	case key.Matches(msg, keys.Retry):
		if !fc.Failed() {
			return m, nil
		}
		return m, m.startBusy(m.loadMoreShown())
	case key.Matches(msg, keys.Login):
		return m.openLogin(m.state)
	case key.Matches(msg, keys.Write):
		if m.state == ViewReplies {
			return m.openCompose(composeTarget{ParentID: m.thread.ID}, "")
		}
		return m.openCompose(composeTarget{}, "")
	case key.Matches(msg, keys.Reply):
		cmt := m.selectedComment()
		if cmt == nil {
			return m, nil
		}
		return m.openCompose(composeTarget{ParentID: feed.ReplyParentID(cmt)}, feed.ReplyPrefill(cmt))
	case key.Matches(msg, keys.Edit):
		cmt, ok := m.ownSelectedComment()
		if !ok {
			return m, nil
		}
		return m.openCompose(composeTarget{Edit: &service.CommentTarget{
			PostID:    m.post.ID,
			ParentID:  cmt.ParentCommentID,
			CommentID: cmt.ID,
		}}, cmt.Text)
	case key.Matches(msg, keys.Delete):
		cmt, ok := m.ownSelectedComment()
		if !ok {
			return m, nil
		}
		return m, m.startBusy(m.deleteComment(service.CommentTarget{
			PostID:    m.post.ID,
			ParentID:  cmt.ParentCommentID,
			CommentID: cmt.ID,
		}))
	}

	return m, nil
}

// loadMoreShown loads the next page of the feed on screen.
func (m Model) loadMoreShown() tea.Cmd {
	if m.state == ViewReplies {
		return m.loadMoreReplies(m.replies)
	}
	return m.loadMore(m.comments)
}

func (m Model) handleComposeKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Back):
		m.compose.Blur()
		m.state = m.back
		m.err = nil
		return m, nil
	case key.Matches(msg, keys.Enter):
		if m.busy {
			return m, nil
		}
		return m, m.startBusy(m.submitComment(m.target, m.compose.Value()))
	}

	var cmd tea.Cmd
	m.compose, cmd = m.compose.Update(msg)
	return m, cmd
}

func (m Model) handleLoginKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Back):
		m.state = m.back
		m.err = nil
		return m, nil
	case key.Matches(msg, keys.Tab):
		m.focusLogin((m.focusIndex + 1) % len(m.loginInputs))
		return m, nil
	case key.Matches(msg, keys.Enter):
		if m.focusIndex < len(m.loginInputs)-1 {
			m.focusLogin(m.focusIndex + 1)
			return m, nil
		}
		if m.busy {
			return m, nil
		}
		return m, m.startBusy(m.login(&model.LoginRequest{
			Username: m.loginInputs[0].Value(),
			Password: m.loginInputs[1].Value(),
		}))
	}

	var cmd tea.Cmd
	m.loginInputs[m.focusIndex], cmd = m.loginInputs[m.focusIndex].Update(msg)
	return m, cmd
}

func (m *Model) focusLogin(i int) {
	m.focusIndex = i
	for j := range m.loginInputs {
		if j == i {
			m.loginInputs[j].Focus()
		} else {
			m.loginInputs[j].Blur()
		}
	}
}

func (m Model) openLogin(back ViewState) (tea.Model, tea.Cmd) {
	m.back = back
	m.state = ViewLogin
	m.err, m.status = nil, ""
	for i := range m.loginInputs {
		m.loginInputs[i].SetValue("")
	}
	m.focusLogin(0)
	return m, nil
}

// openCompose edits text for target, asking to log in first when anonymous.
// Both return to the current view.
func (m Model) openCompose(target composeTarget, text string) (tea.Model, tea.Cmd) {
	if !m.st.LoggedIn() {
		next, cmd := m.openLogin(m.state)
		mm := next.(Model)
		mm.status = "log in to comment"
		return mm, cmd
	}

	m.back = m.state
	m.state = ViewCompose
	m.target = target
	m.err, m.status = nil, ""
	m.compose.SetValue(text)
	m.compose.CursorEnd()
	m.compose.Focus()
	return m, nil
}

// shownFeed is the feed of the comment list or of the reply thread on screen.
func (m Model) shownFeed() *feed.Controller {
	if m.state == ViewReplies {
		return m.replies
	}
	return m.comments
}

// selection is the cursor into shownFeed.
func (m *Model) selection() *int {
	if m.state == ViewReplies {
		return &m.replySelected
	}
	return &m.selected
}

func (m *Model) selectedComment() *model.Comment {
	comments := m.shownFeed().Comments()
	sel := *m.selection()
	if sel < 0 || sel >= len(comments) {
		return nil
	}

	return comments[sel]
}

// ownSelectedComment returns the selected comment when the user wrote it.
func (m *Model) ownSelectedComment() (*model.Comment, bool) {
	cmt := m.selectedComment()
	if cmt == nil {
		return nil, false
	}
	if !cmt.IsAuthoredBy(m.st.User) {
		m.err = model.ErrNotAuthor
		return nil, false
	}

	return cmt, true
}

// clampSelection keeps the cursor of the shown feed inside its comments.
func (m *Model) clampSelection() {
	fc := m.shownFeed()
	if fc == nil {
		return
	}

	sel := m.selection()
	n := len(fc.Comments())
	if *sel >= n {
		*sel = n - 1
	}
	if *sel < 0 {
		*sel = 0
	}
}
