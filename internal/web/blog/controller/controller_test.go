package controller

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/Laisky/laisky-blog-web/internal/web/blog/blogtest"
	"github.com/Laisky/laisky-blog-web/internal/web/blog/feed"
	"github.com/Laisky/laisky-blog-web/internal/web/blog/model"
	"github.com/Laisky/laisky-blog-web/internal/web/blog/service"
	"github.com/Laisky/laisky-blog-web/internal/web/blog/session"
	"github.com/Laisky/laisky-blog-web/library/cache"
	"github.com/Laisky/laisky-blog-web/library/jwt"
	"github.com/Laisky/laisky-blog-web/library/log"
)

var ginModeOnce sync.Once

func setupGinTestMode() {
	ginModeOnce.Do(func() {
		gin.SetMode(gin.TestMode)
	})
}

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type testSite struct {
	backend  *blogtest.Backend
	sessions *session.Manager
	server   *httptest.Server
}

func newTestSite(t *testing.T, opts ...Option) *testSite {
	t.Helper()
	setupGinTestMode()

	backend := blogtest.New(t)
	svc, err := service.New(nil, backend.Client(t))
	require.NoError(t, err)

	mem, err := cache.NewMemory(100, time.Hour)
	require.NoError(t, err)
	signer, err := jwt.NewSigner([]byte("0123456789abcdef-test"), time.Hour)
	require.NoError(t, err)
	store, err := session.NewStore(mem, signer)
	require.NoError(t, err)
	sessions := session.NewManager(store, false)

	ctrl, err := New(svc, sessions, opts...)
	require.NoError(t, err)

	r := gin.New()
	r.Use(gmw.NewLoggerMiddleware(gmw.WithLogger(log.Logger.Named("controller_test"))))
	ctrl.Register(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testSite{backend: backend, sessions: sessions, server: srv}
}

// browser keeps cookies and does not follow redirects
type browser struct {
	t    *testing.T
	site *testSite
	cli  *http.Client
}

func (s *testSite) browser(t *testing.T) *browser {
	t.Helper()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &browser{t: t, site: s, cli: &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}}
}

type response struct {
	status   int
	location string
	body     string
}

func (b *browser) do(method, path, contentType string, body io.Reader) *response {
	b.t.Helper()

	req, err := http.NewRequest(method, b.site.server.URL+path, body)
	require.NoError(b.t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := b.cli.Do(req)
	require.NoError(b.t, err)
	defer resp.Body.Close() //nolint:errcheck

	content, err := io.ReadAll(resp.Body)
	require.NoError(b.t, err)
	return &response{status: resp.StatusCode, location: resp.Header.Get("Location"), body: string(content)}
}

func (b *browser) get(path string) *response {
	return b.do(http.MethodGet, path, "", nil)
}

func (b *browser) postForm(path string, form url.Values) *response {
	return b.do(http.MethodPost, path, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
}

func (b *browser) json(method, path string, payload any, out any) int {
	b.t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(b.t, err)
		body = bytes.NewReader(raw)
	}

	resp := b.do(method, path, "application/json", body)
	if out != nil {
		require.NoError(b.t, json.Unmarshal([]byte(resp.body), out), resp.body)
	}
	return resp.status
}

func (b *browser) login(username, password, returnTo string) *response {
	return b.postForm("/login", url.Values{
		"username": {username},
		"password": {password},
		"returnTo": {returnTo},
	})
}

// adopt makes the browser carry st.
func (b *browser) adopt(st *session.State) {
	b.t.Helper()

	store := b.site.sessions.Store()
	require.NoError(b.t, store.Save(b.t.Context(), st))
	token, err := store.Token(st)
	require.NoError(b.t, err)

	u, err := url.Parse(b.site.server.URL)
	require.NoError(b.t, err)
	b.cli.Jar.SetCookies(u, []*http.Cookie{{Name: session.CookieName, Value: token, Path: "/"}})
}

func TestPostListRedirectsOutOfRange(t *testing.T) {
	t.Parallel()
	site := newTestSite(t)
	alice := site.backend.AddUser("alice", "secret1")
	for _, slug := range []string{"one", "two", "three"} {
		site.backend.AddPost(alice, slug, "Title "+slug, "body")
	}
	b := site.browser(t)

	resp := b.get("/")
	require.Equal(t, http.StatusFound, resp.status)
	require.Equal(t, homePath, resp.location)

	resp = b.get("/blog?page=9")
	require.Equal(t, http.StatusFound, resp.status)
	require.Equal(t, "/blog?page=2", resp.location)

	resp = b.get("/blog?page=abc")
	require.Equal(t, "/blog?page=1", resp.location)

	resp = b.get("/blog")
	require.Equal(t, http.StatusOK, resp.status)
	require.Contains(t, resp.body, "Title three")
	require.Contains(t, resp.body, "Title two")
	require.NotContains(t, resp.body, "Title one")
	require.Contains(t, resp.body, `href="/blog?page=2"`)
}

func TestShowPost(t *testing.T) {
	t.Parallel()
	site := newTestSite(t)
	alice := site.backend.AddUser("alice", "secret1")
	post := site.backend.AddPost(alice, "hello", `"><script>alert(1)</script>`, "## Intro\n\ntext")
	for _, text := range []string{"c1", "c2", "c3", "c4"} {
		site.backend.AddComment(post.ID, "", alice, text)
	}
	b := site.browser(t)

	resp := b.get("/blog/hello")
	require.Equal(t, http.StatusOK, resp.status)
	require.NotContains(t, resp.body, "<script>alert(1)</script>")
	require.Contains(t, resp.body, `<h2 id="intro">Intro</h2>`)
	require.Contains(t, resp.body, `data-post-id="`+post.ID+`"`)
	require.Contains(t, resp.body, ">c4<")
	require.NotContains(t, resp.body, ">c1<")
	require.NotContains(t, resp.body, `id="more-comments" hidden`)

	resp = b.get("/blog/missing")
	require.Equal(t, http.StatusNotFound, resp.status)
}

func TestCommentEndpoints(t *testing.T) {
	t.Parallel()
	site := newTestSite(t)
	alice := site.backend.AddUser("alice", "secret1")
	post := site.backend.AddPost(alice, "hello", "Hello", "body")
	for _, text := range []string{"c1", "c2", "c3", "c4"} {
		site.backend.AddComment(post.ID, "", alice, text)
	}
	b := site.browser(t)
	base := "/api/comments/" + post.ID

	var errBody map[string]string
	status := b.json(http.MethodPost, base, &commentRequest{Text: "hi"}, &errBody)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, string(session.ModalLogin), errBody["modal"])

	resp := b.login("alice", "secret1", "/blog/hello")
	require.Equal(t, http.StatusSeeOther, resp.status)

	var snap feed.Snapshot
	require.Equal(t, http.StatusOK, b.json(http.MethodGet, base, nil, &snap))
	require.Len(t, snap.Comments, 3)
	require.False(t, snap.Exhausted)

	require.Equal(t, http.StatusOK, b.json(http.MethodGet, base+"?continueAfterId="+snap.Cursor, nil, &snap))
	require.Len(t, snap.Comments, 4)
	require.True(t, snap.Exhausted)

	var created commentResponse
	require.Equal(t, http.StatusCreated, b.json(http.MethodPost, base, &commentRequest{Text: "fresh"}, &created))
	require.Equal(t, "fresh", created.Comment.Text)
	require.Len(t, created.Feed.Comments, 5)
	require.Equal(t, created.Comment.ID, created.Feed.Comments[0].ID)

	status = b.json(http.MethodPost, base, &commentRequest{Text: strings.Repeat("a", 601)}, &errBody)
	require.Equal(t, http.StatusBadRequest, status)
	require.Contains(t, errBody["error"], "comment exceeds max length")

	var reply commentResponse
	require.Equal(t, http.StatusCreated, b.json(http.MethodPost, base,
		&commentRequest{Text: "@alice yes", ParentCommentID: created.Comment.ID}, &reply))
	require.Equal(t, created.Comment.ID, reply.Comment.ParentCommentID)
	require.Len(t, reply.Feed.Comments, 1)
	require.Equal(t, reply.Comment.ID, reply.Feed.Comments[0].ID)
	require.NotNil(t, reply.Parent)
	require.Equal(t, 1, reply.Parent.Replies())

	var replies feed.Snapshot
	require.Equal(t, http.StatusOK, b.json(http.MethodGet, "/api/replies/"+created.Comment.ID, nil, &replies))
	require.Len(t, replies.Comments, 1)

	var updated commentResponse
	require.Equal(t, http.StatusOK, b.json(http.MethodPatch, base+"/"+created.Comment.ID,
		&commentRequest{Text: "fresh, edited"}, &updated))
	require.Equal(t, "fresh, edited", updated.Comment.Text)
	require.Equal(t, 1, updated.Comment.Replies())

	var deleted commentResponse
	require.Equal(t, http.StatusOK, b.json(http.MethodDelete, base+"/"+created.Comment.ID, nil, &deleted))
	require.Len(t, deleted.Feed.Comments, 4)
	require.Equal(t, http.StatusOK, b.json(http.MethodDelete, base+"/"+created.Comment.ID, nil, &deleted))
}

func TestReplyKeepsLoadedComments(t *testing.T) {
	t.Parallel()
	site := newTestSite(t)
	alice := site.backend.AddUser("alice", "secret1")
	post := site.backend.AddPost(alice, "hello", "Hello", "body")
	for _, text := range []string{"c1", "c2", "c3", "c4"} {
		site.backend.AddComment(post.ID, "", alice, text)
	}
	b := site.browser(t)
	require.Equal(t, http.StatusSeeOther, b.login("alice", "secret1", "/blog/hello").status)

	base := "/api/comments/" + post.ID
	var snap feed.Snapshot
	require.Equal(t, http.StatusOK, b.json(http.MethodGet, base, nil, &snap))
	require.Equal(t, http.StatusOK, b.json(http.MethodGet, base+"?continueAfterId="+snap.Cursor, nil, &snap))
	require.Len(t, snap.Comments, 4)
	top := snap.Comments[0]

	// replies of top were never opened
	var reply commentResponse
	require.Equal(t, http.StatusCreated, b.json(http.MethodPost, base,
		&commentRequest{Text: "first", ParentCommentID: top.ID}, &reply))
	require.Len(t, reply.Feed.Comments, 1)
	require.Equal(t, reply.Comment.ID, reply.Feed.Comments[0].ID)
	require.Equal(t, top.ID, reply.Parent.ID)
	require.Equal(t, 1, reply.Parent.Replies())

	// a reply id as parent joins the thread of its top-level comment
	var nested commentResponse
	require.Equal(t, http.StatusCreated, b.json(http.MethodPost, base,
		&commentRequest{Text: "@alice second", ParentCommentID: reply.Comment.ID}, &nested))
	require.Equal(t, top.ID, nested.Comment.ParentCommentID)
	require.Len(t, nested.Feed.Comments, 2)
	require.Equal(t, 2, nested.Parent.Replies())

	var edited commentResponse
	require.Equal(t, http.StatusOK, b.json(http.MethodPatch, base+"/"+reply.Comment.ID,
		&commentRequest{Text: "first, edited", ParentCommentID: top.ID}, &edited))
	require.Equal(t, "first, edited", edited.Feed.Comments[0].Text)
	require.Equal(t, 2, edited.Parent.Replies())

	var deleted commentResponse
	require.Equal(t, http.StatusOK, b.json(http.MethodDelete,
		base+"/"+reply.Comment.ID+"?parentCommentId="+top.ID, nil, &deleted))
	require.Len(t, deleted.Feed.Comments, 1)
	require.Equal(t, 1, deleted.Parent.Replies())

	// every loaded page is still there, the next page continues after c1
	require.Equal(t, http.StatusOK, b.json(http.MethodGet, base+"?continueAfterId="+snap.Cursor, nil, &snap))
	require.Len(t, snap.Comments, 4)
	require.Equal(t, 1, snap.Comments[0].Replies())
	require.True(t, snap.Exhausted)
}

func TestCommentLoadFailureKeepsFeed(t *testing.T) {
	t.Parallel()
	site := newTestSite(t)
	alice := site.backend.AddUser("alice", "secret1")
	post := site.backend.AddPost(alice, "hello", "Hello", "body")
	for _, text := range []string{"c1", "c2", "c3", "c4"} {
		site.backend.AddComment(post.ID, "", alice, text)
	}
	b := site.browser(t)
	require.Equal(t, http.StatusOK, b.get("/blog/hello").status)

	base := "/api/comments/" + post.ID
	var snap feed.Snapshot
	require.Equal(t, http.StatusOK, b.json(http.MethodGet, base, nil, &snap))
	require.Len(t, snap.Comments, 3)

	site.backend.FailNext("GET /comments/{id}", http.StatusInternalServerError)
	require.Equal(t, http.StatusBadGateway, b.json(http.MethodGet, base+"?continueAfterId="+snap.Cursor, nil, &snap))
	require.True(t, snap.Error)
	require.Len(t, snap.Comments, 3)

	var errBody map[string]string
	require.Equal(t, http.StatusBadRequest, b.json(http.MethodGet, base+"?continueAfterId=zzz", nil, &errBody))
}

func TestLoginFailureKeepsDialogOpen(t *testing.T) {
	t.Parallel()
	site := newTestSite(t)
	site.backend.AddUser("alice", "secret1")
	b := site.browser(t)

	resp := b.get("/login?returnTo=/blog")
	require.Equal(t, http.StatusFound, resp.status)
	require.Equal(t, "/blog", resp.location)
	require.Contains(t, b.get("/blog").body, `action="/login"`)

	resp = b.login("alice", "wrong", "/blog")
	require.Equal(t, http.StatusSeeOther, resp.status)
	page := b.get("/blog").body
	require.Contains(t, page, model.ErrInvalidCredentials.Error())
	require.Contains(t, page, `action="/login"`)

	resp = b.get("/modal/close?returnTo=/blog")
	require.Equal(t, "/blog", resp.location)
	require.NotContains(t, b.get("/blog").body, `action="/login"`)

	resp = b.login("alice", "secret1", "https://evil.example/")
	require.Equal(t, homePath, resp.location)
	require.Contains(t, b.get("/blog").body, "Log out")

	resp = b.postForm("/logout", nil)
	require.Equal(t, http.StatusSeeOther, resp.status)
	require.NotContains(t, b.get("/blog").body, "Log out")
}

func TestLoginTurnstile(t *testing.T) {
	t.Parallel()
	endpoint, tokens := newTurnstileEndpoint(t, http.StatusOK, `{"success":false,"error-codes":["bad"]}`)
	ts, err := NewTurnstile("sso-secret", "site-key",
		WithTurnstileEndpoint(endpoint.URL), WithTurnstileHTTPClient(endpoint.Client()))
	require.NoError(t, err)

	site := newTestSite(t, WithTurnstile(ts))
	site.backend.AddUser("alice", "secret1")
	b := site.browser(t)

	resp := b.postForm("/login", url.Values{
		"username":         {"alice"},
		"password":         {"secret1"},
		turnstileFormField: {"tok"},
	})
	require.Equal(t, http.StatusSeeOther, resp.status)
	page := b.get("/blog").body
	require.Contains(t, page, turnstileFailedMsg)
	require.Contains(t, page, `data-sitekey="site-key"`)
	require.Equal(t, []string{"tok"}, *tokens)
	require.Zero(t, site.backend.Hits("POST /users/login"))
}

func TestSignUp(t *testing.T) {
	t.Parallel()
	site := newTestSite(t)
	b := site.browser(t)

	var sent map[string]bool
	require.Equal(t, http.StatusOK, b.json(http.MethodPost, "/api/verification-code",
		map[string]string{"email": "new@example.com"}, &sent))
	require.True(t, sent["sent"])

	resp := b.postForm("/signup", url.Values{
		"username":         {"newbie"},
		"email":            {"new@example.com"},
		"password":         {"secret1"},
		"verificationCode": {blogtest.VerificationCode},
		"returnTo":         {"/users/newbie"},
	})
	require.Equal(t, http.StatusSeeOther, resp.status)
	require.Equal(t, "/users/newbie", resp.location)

	page := b.get("/users/newbie").body
	require.Contains(t, page, "Edit profile")
}

func TestOnboardingRedirect(t *testing.T) {
	t.Parallel()
	site := newTestSite(t)
	fresh := site.backend.AddUser("", "secret1")
	b := site.browser(t)

	st := session.NewState("onboarding-sid")
	st.SignIn(fresh, site.backend.Session(fresh))
	b.adopt(st)

	resp := b.get("/blog")
	require.Equal(t, http.StatusFound, resp.status)
	require.Equal(t, onboardingPath, resp.location)
	require.Equal(t, http.StatusOK, b.get(onboardingPath).status)

	resp = b.postForm(onboardingPath, url.Values{"username": {"bad name"}})
	require.Equal(t, http.StatusBadRequest, resp.status)

	resp = b.postForm(onboardingPath, url.Values{"username": {"fresh_one"}})
	require.Equal(t, http.StatusSeeOther, resp.status)
	require.Equal(t, "/users/fresh_one", resp.location)
	require.Equal(t, http.StatusOK, b.get("/blog").status)
}

func TestEditorFlow(t *testing.T) {
	t.Parallel()
	site := newTestSite(t)
	site.backend.AddUser("alice", "secret1")
	b := site.browser(t)

	resp := b.get("/editor/new")
	require.Equal(t, http.StatusFound, resp.status)
	require.Contains(t, b.get(resp.location).body, `action="/login"`)

	b.login("alice", "secret1", "/editor/new")
	require.Equal(t, http.StatusOK, b.get("/editor/new").status)

	var saved map[string]bool
	require.Equal(t, http.StatusOK, b.json(http.MethodPost, "/api/drafts",
		&draftRequest{Title: "Draft title", Body: "draft body"}, &saved))
	require.True(t, saved["saved"])
	require.Contains(t, b.get("/editor/new").body, "Restored your unsaved draft")

	body := new(bytes.Buffer)
	w := multipart.NewWriter(body)
	require.NoError(t, w.WriteField("title", "Hello World"))
	require.NoError(t, w.WriteField("summary", "greeting"))
	require.NoError(t, w.WriteField("body", "# Hi"))
	part, err := w.CreateFormFile("featuredImage", "cover.png")
	require.NoError(t, err)
	_, err = part.Write(pngBytes)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	resp = b.do(http.MethodPost, "/editor/new", w.FormDataContentType(), body)
	require.Equal(t, http.StatusSeeOther, resp.status)
	require.Equal(t, "/blog/hello-world", resp.location)
	require.NotContains(t, b.get("/editor/new").body, "Restored your unsaved draft")

	page := b.get("/blog/hello-world").body
	require.Contains(t, page, "Post published")
	require.Contains(t, page, `href="/editor/hello-world"`)
	require.Equal(t, http.StatusOK, b.get("/editor/hello-world").status)

	resp = b.postForm("/editor/hello-world", url.Values{
		"slug": {"hello-again"}, "title": {"Hello Again"}, "summary": {"s"}, "body": {"b"},
	})
	require.Equal(t, http.StatusSeeOther, resp.status)
	require.Equal(t, "/blog/hello-again", resp.location)

	resp = b.postForm("/editor/hello-again", url.Values{"slug": {"Bad Slug"}, "title": {"t"}, "summary": {"s"}, "body": {"b"}})
	require.Equal(t, http.StatusBadRequest, resp.status)
	require.Contains(t, resp.body, "slug may only contain")

	resp = b.postForm("/editor/hello-again/delete", nil)
	require.Equal(t, http.StatusSeeOther, resp.status)
	require.Equal(t, http.StatusNotFound, b.get("/blog/hello-again").status)
}

func TestUploadImage(t *testing.T) {
	t.Parallel()
	site := newTestSite(t)
	site.backend.AddUser("alice", "secret1")
	b := site.browser(t)
	b.login("alice", "secret1", "/blog")

	upload := func(name string, content []byte) *response {
		body := new(bytes.Buffer)
		w := multipart.NewWriter(body)
		part, err := w.CreateFormFile("inPostImage", name)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
		require.NoError(t, w.Close())
		return b.do(http.MethodPost, "/api/images", w.FormDataContentType(), body)
	}

	resp := upload("inline.png", pngBytes)
	require.Equal(t, http.StatusOK, resp.status)
	require.Contains(t, resp.body, "/uploads/inline.png")

	resp = upload("evil.png", []byte("<svg onload=alert(1)>"))
	require.Equal(t, http.StatusBadRequest, resp.status)
}

func TestProfilePage(t *testing.T) {
	t.Parallel()
	site := newTestSite(t)
	alice := site.backend.AddUser("alice", "secret1")
	site.backend.AddPost(alice, "a1", "Alice first", "x")
	b := site.browser(t)

	page := b.get("/users/alice")
	require.Equal(t, http.StatusOK, page.status)
	require.Contains(t, page.body, "Alice first")
	require.NotContains(t, page.body, "Edit profile")

	b.login("alice", "secret1", "/users/alice")
	resp := b.postForm("/users/me", url.Values{"displayName": {strings.Repeat("x", 21)}})
	require.Equal(t, http.StatusSeeOther, resp.status)
	require.Contains(t, b.get("/users/alice").body, "display name exceeds max length")

	b.postForm("/users/me", url.Values{"displayName": {"Alice A."}, "about": {"hello there"}})
	page = b.get("/users/alice")
	require.Contains(t, page.body, "Alice A.")
	require.Contains(t, page.body, "hello there")

	require.Equal(t, http.StatusNotFound, b.get("/users/nobody").status)
}

func TestStatusOf(t *testing.T) {
	t.Parallel()

	for err, want := range map[error]int{
		model.ErrInvalidInput:       http.StatusBadRequest,
		model.ErrInvalidCredentials: http.StatusUnauthorized,
		model.ErrLoginRequired:      http.StatusUnauthorized,
		model.ErrNotAuthor:          http.StatusForbidden,
		model.ErrNotFound:           http.StatusNotFound,
		model.ErrTooManyRequests:    http.StatusTooManyRequests,
		io.EOF:                      http.StatusInternalServerError,
	} {
		require.Equal(t, want, statusOf(err), err.Error())
	}

	require.Equal(t, "something went wrong, please retry", publicMessage(io.EOF))
	require.Equal(t, "Too Many Requests", publicMessage(model.ErrTooManyRequests))
}

func TestSafeReturnTo(t *testing.T) {
	t.Parallel()

	for raw, want := range map[string]string{
		"":                     homePath,
		"/blog/x?page=2":       "/blog/x?page=2",
		"https://evil.example": homePath,
		"//evil.example/x":     homePath,
		"blog":                 homePath,
		"javascript:alert(1)":  homePath,
	} {
		require.Equal(t, want, safeReturnTo(raw, homePath), raw)
	}
}

func TestPostMetaTagsEscaping(t *testing.T) {
	t.Parallel()
	c := &Controller{baseURL: "https://blog.example", logger: log.Logger}

	output := string(c.postMetaTags(&model.Post{
		Slug:             `foo"bar`,
		Title:            `"><script>alert(1)</script>`,
		FeaturedImageURL: `"><img src=x onerror=alert(1)>`,
	}))

	require.NotContains(t, output, `"><script>`)
	require.NotContains(t, output, `"><img`)
	require.Contains(t, output, `content="&#34;&gt;&lt;script&gt;alert(1)&lt;/script&gt;"`)
	require.Contains(t, output, `/blog/foo&#34;bar"`)
}
