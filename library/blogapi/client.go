// Package blogapi is the REST client of the blog backend.
//
// The client is stateless. Credentials travel as the backend session cookie,
// bound to a copy of the client by WithCookie.
package blogapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	gutils "github.com/Laisky/go-utils/v6"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"

	"github.com/Laisky/laisky-blog-web/library/log"
)

const (
	// DefaultTimeout matches the request timeout of the browser client
	DefaultTimeout = 5 * time.Second
	// DefaultCookieName is the session cookie set by the backend
	DefaultCookieName = "connect.sid"
	// logBodyLimit caps the number of response bytes logged for debugging.
	logBodyLimit = 2048
)

// Option configures the Client.
type Option func(*Client) error

// WithHTTPClient overrides the HTTP client used to talk to the backend.
func WithHTTPClient(cli *http.Client) Option {
	return func(c *Client) error {
		if cli == nil {
			return errors.New("http client is nil")
		}

		c.httpcli = cli
		return nil
	}
}

// WithTimeout sets the request timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) error {
		if timeout <= 0 {
			return errors.Errorf("invalid timeout %s", timeout)
		}

		c.timeout = timeout
		return nil
	}
}

// WithCookieName changes the name of the backend session cookie.
func WithCookieName(name string) Option {
	return func(c *Client) error {
		name = strings.TrimSpace(name)
		if name == "" {
			return errors.New("cookie name is empty")
		}

		c.cookieName = name
		return nil
	}
}

// WithLogger overrides the fallback logger used when the context carries none.
func WithLogger(logger logSDK.Logger) Option {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// Client talks to the blog backend
type Client struct {
	baseURL    *url.URL
	httpcli    *http.Client
	timeout    time.Duration
	cookieName string
	cookie     string
	logger     logSDK.Logger
}

// New creates a client for the backend at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("backend url is empty")
	}

	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrapf(err, "parse backend url %q", baseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("unsupported backend url scheme %q", u.Scheme)
	}

	c := &Client{
		baseURL:    u,
		timeout:    DefaultTimeout,
		cookieName: DefaultCookieName,
		logger:     log.Logger.Named("blogapi"),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err = opt(c); err != nil {
			return nil, errors.Wrap(err, "apply option")
		}
	}

	if c.httpcli == nil {
		if c.httpcli, err = gutils.NewHTTPClient(
			gutils.WithHTTPClientTimeout(c.timeout),
		); err != nil {
			return nil, errors.Wrap(err, "new http client")
		}
	}

	return c, nil
}

// WithCookie returns a copy of the client that authenticates with cookie.
// An empty cookie yields an anonymous client.
func (c *Client) WithCookie(cookie string) *Client {
	cp := *c
	cp.cookie = cookie
	return &cp
}

// Cookie returns the backend session cookie bound to this client.
func (c *Client) Cookie() string {
	return c.cookie
}

// CookieName returns the name of the backend session cookie.
func (c *Client) CookieName() string {
	return c.cookieName
}

func (c *Client) loggerFromCtx(ctx context.Context) logSDK.Logger {
	if ctx != nil {
		if _, ok := gmw.GetGinCtxFromStdCtx(ctx); ok {
			if ctxLogger := gmw.GetLogger(ctx); ctxLogger != nil {
				return ctxLogger.Named("blogapi")
			}
		}
	}

	return c.logger
}

// endpoint resolves path against the base url.
func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	return u.String()
}

// request is one backend call
type request struct {
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
}

// jsonRequest builds a request with a JSON encoded body.
func jsonRequest(method, path string, payload any) (*request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "marshal request body")
	}

	return &request{
		method:      method,
		path:        path,
		body:        bytes.NewReader(body),
		contentType: "application/json",
	}, nil
}

// do sends r and decodes a JSON response into out when out is not nil.
// Non-2xx responses are returned as *HTTPError.
func (c *Client) do(ctx context.Context, r *request, out any) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, r.method, c.endpoint(r.path, r.query), r.body)
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	if c.cookie != "" {
		req.AddCookie(&http.Cookie{Name: c.cookieName, Value: c.cookie})
	}

	logger := c.loggerFromCtx(ctx)
	logger.Debug("outgoing http request",
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
	)

	startAt := time.Now()
	resp, err := c.httpcli.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", r.method, r.path)
	}
	defer gutils.CloseWithLog(resp.Body, logger)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response body")
	}

	truncatedBody, truncated := truncateForLog(body, logBodyLimit)
	logger.Debug("incoming http response",
		zap.Int("status", resp.StatusCode),
		zap.String("body", truncatedBody),
		zap.Bool("body_truncated", truncated),
		zap.Duration("cost", time.Since(startAt)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, newHTTPError(resp.StatusCode, body)
	}

	if out != nil && len(bytes.TrimSpace(body)) > 0 {
		if err = json.Unmarshal(body, out); err != nil {
			return resp, errors.Wrapf(err, "decode response of %s %s", r.method, r.path)
		}
	}

	return resp, nil
}

func truncateForLog(body []byte, limit int) (string, bool) {
	if len(body) <= limit {
		return string(body), false
	}
	return string(body[:limit]), true
}
