package blogapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Laisky/errors/v2"
	"github.com/stretchr/testify/require"

	"github.com/Laisky/laisky-blog-web/internal/web/blog/model"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(h)
	t.Cleanup(server.Close)

	cli, err := New(server.URL, WithHTTPClient(server.Client()))
	require.NoError(t, err)
	return cli
}

func TestNewValidatesBaseURL(t *testing.T) {
	t.Parallel()

	_, err := New("")
	require.Error(t, err)

	_, err = New("ftp://example.com")
	require.ErrorContains(t, err, "scheme")

	_, err = New("http://example.com", WithTimeout(0))
	require.ErrorContains(t, err, "invalid timeout")

	cli, err := New("http://example.com/api/")
	require.NoError(t, err)
	require.Equal(t, "http://example.com/api/comments/p1", cli.endpoint("/comments/p1", nil))
}

func TestListCommentsPassesCursor(t *testing.T) {
	t.Parallel()

	var cursors []string
	cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/comments/post-1", r.URL.Path)
		cursors = append(cursors, r.URL.Query().Get("continueAfterId"))
		_, hasCursor := r.URL.Query()["continueAfterId"]

		w.Header().Set("Content-Type", "application/json")
		if !hasCursor {
			_, _ = w.Write([]byte(`{"comments":[{"_id":"c1","text":"hi","repliesCount":2}],"endOfPaginationReached":false}`))
			return
		}
		_, _ = w.Write([]byte(`{"comments":[],"endOfPaginationReached":true}`))
	})

	page, err := cli.ListComments(context.Background(), "post-1", "")
	require.NoError(t, err)
	require.False(t, page.EndOfPaginationReached)
	require.Len(t, page.Comments, 1)
	require.Equal(t, "c1", page.Comments[0].ID)
	require.Equal(t, 2, page.Comments[0].Replies())

	page, err = cli.ListComments(context.Background(), "post-1", "c1")
	require.NoError(t, err)
	require.True(t, page.EndOfPaginationReached)
	require.NotNil(t, page.Comments)
	require.Empty(t, page.Comments)

	require.Equal(t, []string{"", "c1"}, cursors)
}

func TestListReplies(t *testing.T) {
	t.Parallel()

	cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/comments/c1/replies", r.URL.Path)
		_, _ = w.Write([]byte(`{"comments":[{"_id":"r1","parentCommentId":"c1"}],"endOfPaginationReached":true}`))
	})

	page, err := cli.ListReplies(context.Background(), "c1", "")
	require.NoError(t, err)
	require.Len(t, page.Comments, 1)
	require.True(t, page.Comments[0].IsReply())
}

func TestCreateCommentSendsBodyAndCookie(t *testing.T) {
	t.Parallel()

	cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/comments/post-1", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		ck, err := r.Cookie(DefaultCookieName)
		require.NoError(t, err)
		require.Equal(t, "s3cret", ck.Value)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, map[string]string{"text": "hello", "parentCommentId": "c1"}, body)

		_, _ = w.Write([]byte(`{"_id":"c9","parentCommentId":"c1","text":"hello"}`))
	})

	cmt, err := cli.WithCookie("s3cret").CreateComment(context.Background(), "post-1", "c1", "hello")
	require.NoError(t, err)
	require.Equal(t, "c9", cmt.ID)
	require.Equal(t, "c1", cmt.ParentCommentID)
}

func TestUpdateCommentOmitsReplyCount(t *testing.T) {
	t.Parallel()

	cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		_, _ = w.Write([]byte(`{"_id":"c1","text":"edited"}`))
	})

	cmt, err := cli.UpdateComment(context.Background(), "c1", "edited")
	require.NoError(t, err)
	require.Nil(t, cmt.RepliesCount)
}

func TestHTTPErrorMapping(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		status int
		want   error
	}{
		{http.StatusBadRequest, ErrBadRequest},
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrForbidden},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusConflict, ErrConflict},
		{http.StatusTooManyRequests, ErrTooManyRequests},
		{http.StatusBadGateway, ErrServer},
	} {
		tc := tc
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			t.Parallel()

			cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"error":"boom"}`))
			})

			err := cli.DeleteComment(context.Background(), "c1")
			require.Error(t, err)
			require.True(t, errors.Is(err, tc.want))

			var herr *HTTPError
			require.True(t, errors.As(err, &herr))
			require.Equal(t, tc.status, herr.Status)
			require.Equal(t, "boom", Message(err))
		})
	}
}

func TestLoginCapturesCookie(t *testing.T) {
	t.Parallel()

	cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/users/login", r.URL.Path)
		http.SetCookie(w, &http.Cookie{Name: DefaultCookieName, Value: "backend-session"})
		_, _ = w.Write([]byte(`{"_id":"u1","username":"alice"}`))
	})

	user, cookie, err := cli.Login(context.Background(), &model.LoginRequest{Username: "alice", Password: "123456"})
	require.NoError(t, err)
	require.Equal(t, "alice", user.Username)
	require.Equal(t, "backend-session", cookie)
}

func TestLoginWithoutCookieFails(t *testing.T) {
	t.Parallel()

	cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"_id":"u1"}`))
	})

	_, _, err := cli.Login(context.Background(), &model.LoginRequest{Username: "alice", Password: "x"})
	require.ErrorContains(t, err, "did not set cookie")
}

func TestCreatePostMultipart(t *testing.T) {
	t.Parallel()

	cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, "hello-world", r.FormValue("slug"))
		require.Equal(t, "Hello", r.FormValue("title"))

		f, hdr, err := r.FormFile("featuredImage")
		require.NoError(t, err)
		defer f.Close()
		require.Equal(t, "cover.png", hdr.Filename)
		require.Equal(t, "image/png", hdr.Header.Get("Content-Type"))
		content, err := io.ReadAll(f)
		require.NoError(t, err)
		require.Equal(t, []byte("png"), content)

		_, _ = w.Write([]byte(`{"_id":"p1","slug":"hello-world"}`))
	})

	post, err := cli.CreatePost(context.Background(), &model.PostForm{
		Slug:    "hello-world",
		Title:   "Hello",
		Summary: "s",
		Body:    "b",
		FeaturedImage: &model.Upload{
			FileName:    "cover.png",
			ContentType: "image/png",
			Content:     []byte("png"),
		},
	})
	require.NoError(t, err)
	require.Equal(t, "p1", post.ID)

	_, err = cli.CreatePost(context.Background(), &model.PostForm{Slug: "x"})
	require.ErrorContains(t, err, "featured image")
}

func TestUploadInPostImage(t *testing.T) {
	t.Parallel()

	cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/posts/images", r.URL.Path)
		_, _, err := r.FormFile("inPostImage")
		require.NoError(t, err)
		_, _ = w.Write([]byte(`{"imageUrl":"https://cdn.example.com/a.png"}`))
	})

	u, err := cli.UploadInPostImage(context.Background(), &model.Upload{FileName: "a.png", Content: []byte("x")})
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/a.png", u)
}
