package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Laisky/laisky-blog-web/internal/web/blog/feed"
	"github.com/Laisky/laisky-blog-web/internal/web/blog/model"
)

// View renders the current screen
func (m Model) View() string {
	if m.quitting {
		return successStyle.Render("Bye!\n")
	}

	var b strings.Builder
	switch m.state {
	case ViewPosts:
		b.WriteString(m.renderPosts())
	case ViewArticle:
		b.WriteString(m.renderArticle())
	case ViewComments:
		b.WriteString(m.renderComments())
	case ViewReplies:
		b.WriteString(m.renderReplies())
	case ViewCompose:
		b.WriteString(m.renderCompose())
	case ViewLogin:
		b.WriteString(m.renderLogin())
	}

	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	return boxStyle.Render(b.String())
}

func (m Model) renderPosts() string {
	var b strings.Builder
	b.WriteString(m.posts.View())
	b.WriteString("\n")
	if m.totalPages > 0 {
		b.WriteString(subtitleStyle.Render(fmt.Sprintf("page %d / %d", m.page, m.totalPages)))
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("enter: read • n/p: page • l: log in • q: quit"))
	return b.String()
}

func (m Model) renderArticleBody() string {
	if m.post == nil {
		return ""
	}

	var b strings.Builder
	if len(m.post.TOC) > 0 {
		b.WriteString(inputLabelStyle.Render("Contents"))
		b.WriteString("\n")
		for _, e := range m.post.TOC {
			b.WriteString(strings.Repeat("  ", max(e.Level-1, 0)))
			b.WriteString("• " + e.Text + "\n")
		}
		b.WriteString("\n")
	}

	width := max(m.article.Width-2, 20)
	b.WriteString(lipgloss.NewStyle().Width(width).Render(m.post.Body))
	return b.String()
}

func (m Model) renderArticle() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.post.Title))
	b.WriteString("\n")

	meta := m.post.Author.Name() + " · " + m.post.CreatedAt.Format("2006-01-02")
	if m.post.Edited() {
		meta += " · edited"
	}
	b.WriteString(subtitleStyle.Render(meta))
	b.WriteString("\n\n")
	b.WriteString(m.article.View())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("↑/↓: scroll • c: comments • esc: back • q: quit"))
	return b.String()
}

func (m Model) renderComments() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Comments · " + m.post.Title))
	b.WriteString("\n")
	b.WriteString(m.renderFeed(m.comments, m.selected, "comments"))

	help := "↑/↓: select • enter: replies • w: write • a: reply • esc: back"
	if m.st.LoggedIn() {
		help = "↑/↓: select • enter: replies • w: write • a: reply • e: edit • d: delete • esc: back"
	}
	b.WriteString(helpStyle.Render(help))
	return b.String()
}

func (m Model) renderReplies() string {
	parent := m.thread
	if loaded, ok := m.comments.Get(parent.ID); ok {
		parent = loaded
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Replies · " + parent.Author.Name()))
	b.WriteString("\n")
	b.WriteString(commentStyle.Render(m.renderComment(parent)))
	b.WriteString("\n")
	b.WriteString(m.renderFeed(m.replies, m.replySelected, "replies"))

	help := "↑/↓: select • w: reply • a: reply to selected • esc: comments"
	if m.st.LoggedIn() {
		help = "↑/↓: select • w: reply • a: reply to selected • e: edit • d: delete • esc: comments"
	}
	b.WriteString(helpStyle.Render(help))
	return b.String()
}

// renderFeed lists the comments of fc with selected highlighted,
// followed by the paging hint. noun names the items, e.g. "replies".
func (m Model) renderFeed(fc *feed.Controller, selected int, noun string) string {
	var b strings.Builder
	comments := fc.Comments()
	if len(comments) == 0 && !fc.Failed() {
		b.WriteString(subtitleStyle.Render("No " + noun + " yet."))
		b.WriteString("\n")
	}
	for i, cmt := range comments {
		line := m.renderComment(cmt)
		if i == selected {
			b.WriteString(selectedCommentStyle.Render("▸ " + line))
		} else {
			b.WriteString(commentStyle.Render("  " + line))
		}
		b.WriteString("\n")
	}

	switch {
	case fc.Failed():
		b.WriteString(errorStyle.Render("Loading " + noun + " failed. r: retry"))
	case fc.Exhausted():
		b.WriteString(subtitleStyle.Render("No more " + noun + "."))
	default:
		b.WriteString(helpStyle.Render("m: more " + noun))
	}
	b.WriteString("\n")
	return b.String()
}

func (m Model) renderComment(cmt *model.Comment) string {
	head := cmt.Author.Name()
	if cmt.IsReply() {
		head = "↳ " + head
	}
	head += " · " + cmt.CreatedAt.Format("2006-01-02 15:04")
	if cmt.Edited() {
		head += " · edited"
	}
	if n := cmt.Replies(); n > 0 {
		head += fmt.Sprintf(" · %d replies", n)
	}

	return inputLabelStyle.Render(head) + "\n    " + cmt.Text
}

func (m Model) renderCompose() string {
	var b strings.Builder
	switch {
	case m.target.Edit != nil:
		b.WriteString(headerStyle.Render("Edit comment"))
	case m.target.ParentID != "":
		b.WriteString(headerStyle.Render("Reply"))
	default:
		b.WriteString(headerStyle.Render("New comment"))
	}
	b.WriteString("\n\n")
	b.WriteString(m.compose.View())
	b.WriteString("\n")
	b.WriteString(subtitleStyle.Render(fmt.Sprintf("%d / %d", len([]rune(m.compose.Value())), maxCommentRunes)))
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("enter: submit • esc: cancel"))
	return b.String()
}

func (m Model) renderLogin() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Log in"))
	b.WriteString("\n\n")

	labels := []string{"Username", "Password"}
	for i, in := range m.loginInputs {
		b.WriteString(inputLabelStyle.Render(labels[i]))
		b.WriteString("\n")
		b.WriteString(in.View())
		b.WriteString("\n\n")
	}
	b.WriteString(helpStyle.Render("tab: next field • enter: submit • esc: cancel"))
	return b.String()
}

func (m Model) renderStatusBar() string {
	var parts []string
	if m.busy {
		parts = append(parts, m.spinner.View()+" loading")
	}
	if m.err != nil {
		parts = append(parts, errorStyle.Render(friendlyError(m.err)))
	} else if m.status != "" {
		parts = append(parts, successStyle.Render(m.status))
	}
	if m.st.LoggedIn() {
		parts = append(parts, m.st.User.Summary().Name())
	} else {
		parts = append(parts, "anonymous")
	}

	return statusBarStyle.Render(strings.Join(parts, " │ "))
}
