// Package blogtest runs an in-memory blog backend for tests.
//
// The fake speaks the same REST contract as the real backend, so tests can
// drive blogapi clients, services and handlers end to end.
package blogtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Laisky/laisky-blog-web/internal/web/blog/model"
	"github.com/Laisky/laisky-blog-web/library/blogapi"
)

const (
	// VerificationCode is the only sign up code the fake accepts
	VerificationCode = "424242"
	// DefaultCommentsPageSize is the comment page size of a new Backend
	DefaultCommentsPageSize = 3
	// DefaultPostsPageSize is the post page size of a new Backend
	DefaultPostsPageSize = 2
)

// Backend is an in-memory blog backend
type Backend struct {
	Server *httptest.Server

	mu               sync.Mutex
	commentsPageSize int
	postsPageSize    int
	seq              int
	now              time.Time
	users            []*model.User
	passwords        map[string]string
	sessions         map[string]string
	posts            []*model.Post
	comments         []*model.Comment
	hits             map[string]int
	failures         map[string]int
	mails            []string
}

// New starts a Backend that is closed when t finishes.
func New(t testing.TB) *Backend {
	t.Helper()

	b := &Backend{
		commentsPageSize: DefaultCommentsPageSize,
		postsPageSize:    DefaultPostsPageSize,
		now:              time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		passwords:        map[string]string{},
		sessions:         map[string]string{},
		hits:             map[string]int{},
		failures:         map[string]int{},
	}

	mux := http.NewServeMux()
	for pattern, h := range map[string]http.HandlerFunc{
		"GET /posts":                    b.listPosts,
		"GET /posts/slugs":              b.listSlugs,
		"GET /posts/post/{slug}":        b.getPost,
		"POST /posts":                   b.createPost,
		"PATCH /posts/{id}":             b.updatePost,
		"DELETE /posts/{id}":            b.deletePost,
		"POST /posts/images":            b.uploadImage,
		"GET /comments/{id}":            b.listComments,
		"GET /comments/{id}/replies":    b.listReplies,
		"POST /comments/{id}":           b.createComment,
		"PATCH /comments/{id}":          b.updateComment,
		"DELETE /comments/{id}":         b.deleteComment,
		"GET /users/me":                 b.me,
		"PATCH /users/me":               b.updateMe,
		"GET /users/profile/{name}":     b.profile,
		"POST /users/signup":            b.signUp,
		"POST /users/verification-code": b.verificationCode,
		"POST /users/login":             b.login,
		"POST /users/logout":            b.logout,
	} {
		mux.HandleFunc(pattern, b.route(pattern, h))
	}

	b.Server = httptest.NewServer(mux)
	t.Cleanup(b.Server.Close)
	return b
}

// URL returns the base url of the backend.
func (b *Backend) URL() string {
	return b.Server.URL
}

// Client returns an anonymous client of the backend.
func (b *Backend) Client(t testing.TB) *blogapi.Client {
	t.Helper()

	cli, err := blogapi.New(b.URL(), blogapi.WithHTTPClient(b.Server.Client()))
	require.NoError(t, err)
	return cli
}

// SetCommentsPageSize changes how many comments a page carries.
func (b *Backend) SetCommentsPageSize(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.commentsPageSize = n
}

// Hits returns how often route was called, e.g. "GET /posts/post/{slug}".
func (b *Backend) Hits(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[route]
}

// FailNext makes the next call of route answer status.
func (b *Backend) FailNext(route string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[route] = status
}

// Mails returns the addresses a verification code was sent to.
func (b *Backend) Mails() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.mails...)
}

// AddUser registers an account.
func (b *Backend) AddUser(username, password string) *model.User {
	b.mu.Lock()
	defer b.mu.Unlock()

	u := &model.User{
		ID:          b.nextID("u"),
		Username:    username,
		Email:       username + "@example.com",
		DisplayName: username,
		CreatedAt:   b.tick(),
	}
	b.users = append(b.users, u)
	b.passwords[u.ID] = password
	return cloneUser(u)
}

// Session returns a backend cookie authenticated as user.
func (b *Backend) Session(user *model.User) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	cookie := b.nextID("sess")
	b.sessions[cookie] = user.ID
	return cookie
}

// AddPost publishes a post written by author.
func (b *Backend) AddPost(author *model.User, slug, title, body string) *model.Post {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.tick()
	p := &model.Post{
		ID:               b.nextID("p"),
		Slug:             slug,
		Title:            title,
		Summary:          "summary of " + title,
		Body:             body,
		FeaturedImageURL: "/uploads/" + slug + ".png",
		Author:           author.Summary(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	b.posts = append(b.posts, p)
	cp := *p
	return &cp
}

// AddComment stores a comment, a reply when parentID is set.
func (b *Backend) AddComment(postID, parentID string, author *model.User, text string) *model.Comment {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addComment(postID, parentID, author.Summary(), text)
}

// RemoveComment deletes a comment behind the clients' back.
func (b *Backend) RemoveComment(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeComment(id)
}

func (b *Backend) addComment(postID, parentID string, author model.UserSummary, text string) *model.Comment {
	now := b.tick()
	c := &model.Comment{
		ID:              b.nextID("c"),
		BlogPostID:      postID,
		ParentCommentID: parentID,
		Author:          author,
		Text:            text,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	b.comments = append(b.comments, c)
	return b.withCount(c)
}

func (b *Backend) removeComment(id string) bool {
	kept := b.comments[:0]
	found := false
	for _, c := range b.comments {
		if c.ID == id {
			found = true
			continue
		}
		if c.ParentCommentID == id {
			continue
		}
		kept = append(kept, c)
	}
	b.comments = kept
	return found
}

func (b *Backend) nextID(prefix string) string {
	b.seq++
	return fmt.Sprintf("%s%d", prefix, b.seq)
}

func (b *Backend) tick() time.Time {
	b.now = b.now.Add(time.Minute)
	return b.now
}

func (b *Backend) route(pattern string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.hits[pattern]++
		status, fail := b.failures[pattern]
		delete(b.failures, pattern)
		b.mu.Unlock()

		if fail {
			writeError(w, status, "injected failure")
			return
		}

		h(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}

	return json.Unmarshal(body, v)
}

// currentUser must be called with mu held.
func (b *Backend) currentUser(r *http.Request) *model.User {
	ck, err := r.Cookie(blogapi.DefaultCookieName)
	if err != nil {
		return nil
	}

	return b.userByID(b.sessions[ck.Value])
}

func (b *Backend) userByID(id string) *model.User {
	for _, u := range b.users {
		if u.ID == id {
			return u
		}
	}

	return nil
}

func (b *Backend) userByName(name string) *model.User {
	for _, u := range b.users {
		if u.Username == name {
			return u
		}
	}

	return nil
}

func (b *Backend) commentByID(id string) *model.Comment {
	for _, c := range b.comments {
		if c.ID == id {
			return c
		}
	}

	return nil
}

func (b *Backend) postBy(match func(*model.Post) bool) *model.Post {
	for _, p := range b.posts {
		if match(p) {
			return p
		}
	}

	return nil
}

func (b *Backend) withCount(c *model.Comment) *model.Comment {
	cp := *c
	if c.ParentCommentID == "" {
		n := 0
		for _, o := range b.comments {
			if o.ParentCommentID == c.ID {
				n++
			}
		}
		cp.RepliesCount = model.IntPtr(n)
	}

	return &cp
}

func cloneUser(u *model.User) *model.User {
	cp := *u
	return &cp
}

// page cuts the page following cursor out of all.
func (b *Backend) page(w http.ResponseWriter, r *http.Request, all []*model.Comment) {
	start := 0
	if cursor := r.URL.Query().Get("continueAfterId"); cursor != "" {
		start = -1
		for i, c := range all {
			if c.ID == cursor {
				start = i + 1
				break
			}
		}
		if start < 0 {
			writeError(w, http.StatusBadRequest, "unknown cursor")
			return
		}
	}

	end := min(start+b.commentsPageSize, len(all))
	out := make([]*model.Comment, 0, end-start)
	for _, c := range all[start:end] {
		out = append(out, b.withCount(c))
	}

	writeJSON(w, http.StatusOK, &model.CommentsPage{
		Comments:               out,
		EndOfPaginationReached: end >= len(all),
	})
}

func (b *Backend) listComments(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	postID := r.PathValue("id")
	var all []*model.Comment
	for i := len(b.comments) - 1; i >= 0; i-- {
		if c := b.comments[i]; c.BlogPostID == postID && c.ParentCommentID == "" {
			all = append(all, c)
		}
	}

	b.page(w, r, all)
}

func (b *Backend) listReplies(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	parentID := r.PathValue("id")
	if b.commentByID(parentID) == nil {
		writeError(w, http.StatusNotFound, "comment not found")
		return
	}

	var all []*model.Comment
	for _, c := range b.comments {
		if c.ParentCommentID == parentID {
			all = append(all, c)
		}
	}

	b.page(w, r, all)
}

func (b *Backend) createComment(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	user := b.currentUser(r)
	if user == nil {
		writeError(w, http.StatusUnauthorized, "login required")
		return
	}

	req := new(model.CreateCommentRequest)
	if err := decodeJSON(r, req); err != nil || req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	postID := r.PathValue("id")
	if b.postBy(func(p *model.Post) bool { return p.ID == postID }) == nil {
		writeError(w, http.StatusNotFound, "post not found")
		return
	}
	if req.ParentCommentID != "" {
		parent := b.commentByID(req.ParentCommentID)
		if parent == nil || parent.IsReply() {
			writeError(w, http.StatusBadRequest, "invalid parent comment")
			return
		}
	}

	writeJSON(w, http.StatusCreated, b.addComment(postID, req.ParentCommentID, user.Summary(), req.Text))
}

func (b *Backend) updateComment(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	user := b.currentUser(r)
	if user == nil {
		writeError(w, http.StatusUnauthorized, "login required")
		return
	}

	c := b.commentByID(r.PathValue("id"))
	if c == nil {
		writeError(w, http.StatusNotFound, "comment not found")
		return
	}
	if c.Author.ID != user.ID {
		writeError(w, http.StatusForbidden, "not the author")
		return
	}

	req := new(model.UpdateCommentRequest)
	if err := decodeJSON(r, req); err != nil || req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	c.Text = req.Text
	c.UpdatedAt = b.tick()
	cp := *c
	cp.RepliesCount = nil
	writeJSON(w, http.StatusOK, &cp)
}

func (b *Backend) deleteComment(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	user := b.currentUser(r)
	if user == nil {
		writeError(w, http.StatusUnauthorized, "login required")
		return
	}

	c := b.commentByID(r.PathValue("id"))
	if c == nil {
		writeError(w, http.StatusNotFound, "comment not found")
		return
	}
	if c.Author.ID != user.ID {
		writeError(w, http.StatusForbidden, "not the author")
		return
	}

	b.removeComment(c.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) listPosts(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if authorID := r.URL.Query().Get("authorId"); authorID != "" {
		out := []*model.Post{}
		for i := len(b.posts) - 1; i >= 0; i-- {
			if b.posts[i].Author.ID == authorID {
				out = append(out, b.posts[i])
			}
		}
		writeJSON(w, http.StatusOK, out)
		return
	}

	page := 1
	if v := r.URL.Query().Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid page")
			return
		}
		page = n
	}

	total := (len(b.posts) + b.postsPageSize - 1) / b.postsPageSize
	out := []*model.Post{}
	for i := len(b.posts) - 1 - (page-1)*b.postsPageSize; i >= 0 && len(out) < b.postsPageSize; i-- {
		out = append(out, b.posts[i])
	}

	writeJSON(w, http.StatusOK, &model.PostsPage{Posts: out, Page: page, TotalPages: total})
}

func (b *Backend) listSlugs(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := []string{}
	for _, p := range b.posts {
		out = append(out, p.Slug)
	}

	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) getPost(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	slug := r.PathValue("slug")
	p := b.postBy(func(p *model.Post) bool { return p.Slug == slug })
	if p == nil {
		writeError(w, http.StatusNotFound, "post not found")
		return
	}

	writeJSON(w, http.StatusOK, p)
}

func (b *Backend) createPost(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	user := b.currentUser(r)
	if user == nil {
		writeError(w, http.StatusUnauthorized, "login required")
		return
	}
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form")
		return
	}
	_, header, err := r.FormFile("featuredImage")
	if err != nil {
		writeError(w, http.StatusBadRequest, "featured image is required")
		return
	}

	slug := r.FormValue("slug")
	if b.postBy(func(p *model.Post) bool { return p.Slug == slug }) != nil {
		writeError(w, http.StatusConflict, "slug already taken")
		return
	}

	now := b.tick()
	p := &model.Post{
		ID:               b.nextID("p"),
		Slug:             slug,
		Title:            r.FormValue("title"),
		Summary:          r.FormValue("summary"),
		Body:             r.FormValue("body"),
		FeaturedImageURL: "/uploads/" + header.Filename,
		Author:           user.Summary(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	b.posts = append(b.posts, p)
	writeJSON(w, http.StatusCreated, p)
}

func (b *Backend) updatePost(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	user := b.currentUser(r)
	if user == nil {
		writeError(w, http.StatusUnauthorized, "login required")
		return
	}

	id := r.PathValue("id")
	p := b.postBy(func(p *model.Post) bool { return p.ID == id })
	if p == nil {
		writeError(w, http.StatusNotFound, "post not found")
		return
	}
	if p.Author.ID != user.ID {
		writeError(w, http.StatusForbidden, "not the author")
		return
	}
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form")
		return
	}

	slug := r.FormValue("slug")
	if other := b.postBy(func(o *model.Post) bool { return o.Slug == slug }); other != nil && other.ID != p.ID {
		writeError(w, http.StatusConflict, "slug already taken")
		return
	}

	p.Slug = slug
	p.Title = r.FormValue("title")
	p.Summary = r.FormValue("summary")
	p.Body = r.FormValue("body")
	if _, header, err := r.FormFile("featuredImage"); err == nil {
		p.FeaturedImageURL = "/uploads/" + header.Filename
	}
	p.UpdatedAt = b.tick()
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) deletePost(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	user := b.currentUser(r)
	if user == nil {
		writeError(w, http.StatusUnauthorized, "login required")
		return
	}

	id := r.PathValue("id")
	for i, p := range b.posts {
		if p.ID != id {
			continue
		}
		if p.Author.ID != user.ID {
			writeError(w, http.StatusForbidden, "not the author")
			return
		}

		b.posts = append(b.posts[:i], b.posts[i+1:]...)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeError(w, http.StatusNotFound, "post not found")
}

func (b *Backend) uploadImage(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.currentUser(r) == nil {
		writeError(w, http.StatusUnauthorized, "login required")
		return
	}
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form")
		return
	}
	_, header, err := r.FormFile("inPostImage")
	if err != nil {
		writeError(w, http.StatusBadRequest, "image is required")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"imageUrl": "/uploads/" + header.Filename})
}

func (b *Backend) me(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	user := b.currentUser(r)
	if user == nil {
		writeError(w, http.StatusUnauthorized, "login required")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func (b *Backend) updateMe(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	user := b.currentUser(r)
	if user == nil {
		writeError(w, http.StatusUnauthorized, "login required")
		return
	}
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form")
		return
	}

	if name := r.FormValue("username"); name != "" {
		if other := b.userByName(name); other != nil && other.ID != user.ID {
			writeError(w, http.StatusConflict, "username already taken")
			return
		}
		user.Username = name
	}
	if v := r.FormValue("displayName"); v != "" {
		user.DisplayName = v
	}
	if v := r.FormValue("about"); v != "" {
		user.About = v
	}
	if _, header, err := r.FormFile("profilePic"); err == nil {
		user.ProfilePicURL = "/uploads/" + header.Filename
	}

	writeJSON(w, http.StatusOK, user)
}

func (b *Backend) profile(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	user := b.userByName(r.PathValue("name"))
	if user == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	public := cloneUser(user)
	public.Email = ""
	writeJSON(w, http.StatusOK, public)
}

func (b *Backend) verificationCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	b.mu.Lock()
	b.mails = append(b.mails, req.Email)
	b.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (b *Backend) signUp(w http.ResponseWriter, r *http.Request) {
	req := new(model.SignUpRequest)
	if err := decodeJSON(r, req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if req.VerificationCode != VerificationCode {
		writeError(w, http.StatusBadRequest, "wrong verification code")
		return
	}
	if b.userByName(req.Username) != nil {
		writeError(w, http.StatusConflict, "username already taken")
		return
	}

	u := &model.User{
		ID:        b.nextID("u"),
		Username:  req.Username,
		Email:     req.Email,
		CreatedAt: b.tick(),
	}
	b.users = append(b.users, u)
	b.passwords[u.ID] = req.Password
	b.authenticated(w, u, http.StatusCreated)
}

func (b *Backend) login(w http.ResponseWriter, r *http.Request) {
	req := new(model.LoginRequest)
	if err := decodeJSON(r, req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	u := b.userByName(req.Username)
	if u == nil || b.passwords[u.ID] != req.Password {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	b.authenticated(w, u, http.StatusOK)
}

// authenticated must be called with mu held.
func (b *Backend) authenticated(w http.ResponseWriter, u *model.User, status int) {
	cookie := b.nextID("sess")
	b.sessions[cookie] = u.ID
	http.SetCookie(w, &http.Cookie{Name: blogapi.DefaultCookieName, Value: cookie, Path: "/", HttpOnly: true})
	writeJSON(w, status, u)
}

func (b *Backend) logout(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ck, err := r.Cookie(blogapi.DefaultCookieName); err == nil {
		delete(b.sessions, ck.Value)
	}

	w.WriteHeader(http.StatusOK)
}
