package controller

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	gutils "github.com/Laisky/go-utils/v6"
)

const (
	turnstileVerifyEndpoint    = "https://challenges.cloudflare.com/turnstile/v0/siteverify"
	turnstileTokenLengthLimit  = 5000
	turnstileVerifyHTTPTimeout = 8 * time.Second
	// turnstileFormField is the form field the Turnstile widget fills in
	turnstileFormField = "cf-turnstile-response"
)

// turnstileVerifyResult describes the response payload from Cloudflare Turnstile verification API.
// Parameters: The fields map JSON response keys returned by the siteverify endpoint.
// Returns: The struct is used for decoding verification responses.
type turnstileVerifyResult struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

// Turnstile verifies Cloudflare Turnstile challenges.
// A nil or secretless Turnstile accepts every request.
type Turnstile struct {
	secret   string
	siteKey  string
	endpoint string
	httpcli  *http.Client
}

// TurnstileOption configures Turnstile
type TurnstileOption func(*Turnstile) error

// WithTurnstileEndpoint overrides the siteverify url.
func WithTurnstileEndpoint(endpoint string) TurnstileOption {
	return func(t *Turnstile) error {
		if _, err := url.ParseRequestURI(endpoint); err != nil {
			return errors.Wrapf(err, "invalid endpoint %q", endpoint)
		}

		t.endpoint = endpoint
		return nil
	}
}

// WithTurnstileHTTPClient sets the client used to reach siteverify.
func WithTurnstileHTTPClient(cli *http.Client) TurnstileOption {
	return func(t *Turnstile) error {
		if cli == nil {
			return errors.New("http client is nil")
		}

		t.httpcli = cli
		return nil
	}
}

// NewTurnstile creates a verifier.
//
// Parameters: secret is the Turnstile secret key, siteKey is the public widget key.
// Returns: A verifier, disabled when secret is empty.
func NewTurnstile(secret, siteKey string, opts ...TurnstileOption) (*Turnstile, error) {
	t := &Turnstile{
		secret:   strings.TrimSpace(secret),
		siteKey:  strings.TrimSpace(siteKey),
		endpoint: turnstileVerifyEndpoint,
	}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, errors.Wrap(err, "apply turnstile option")
		}
	}

	if t.httpcli == nil {
		cli, err := gutils.NewHTTPClient(gutils.WithHTTPClientTimeout(turnstileVerifyHTTPTimeout))
		if err != nil {
			return nil, errors.Wrap(err, "new http client")
		}
		t.httpcli = cli
	}

	return t, nil
}

// Enabled reports whether challenges are checked.
func (t *Turnstile) Enabled() bool {
	return t != nil && t.secret != ""
}

// SiteKey returns the public widget key.
func (t *Turnstile) SiteKey() string {
	if t == nil {
		return ""
	}

	return t.siteKey
}

// Verify validates Turnstile token before allowing login or sign up.
// Parameters: ctx carries request context and metadata, token is the token posted by the widget.
// Returns: Nil when verification is disabled or succeeds; otherwise returns a wrapped error.
func (t *Turnstile) Verify(ctx context.Context, token string) error {
	if !t.Enabled() {
		return nil
	}

	token = strings.TrimSpace(token)
	if err := validateInputLength(turnstileTokenLengthLimit, token); err != nil {
		return errors.Wrap(err, "validate turnstile token length")
	}

	if token == "" {
		return errors.New("turnstile token is required")
	}

	if err := t.verifyToken(ctx, token, resolveTurnstileClientIP(ctx)); err != nil {
		return errors.Wrap(err, "verify turnstile token")
	}

	return nil
}

// verifyToken verifies a Turnstile token with Cloudflare siteverify endpoint.
// Parameters: ctx controls request lifecycle, token is the challenge token, remoteIP is the optional client IP.
// Returns: Nil when verification succeeds; otherwise returns a wrapped error.
func (t *Turnstile) verifyToken(ctx context.Context, token string, remoteIP string) error {
	form := url.Values{}
	form.Set("secret", t.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Wrap(err, "create turnstile verify request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.httpcli.Do(req)
	if err != nil {
		return errors.Wrap(err, "request turnstile verify endpoint")
	}
	defer gutils.CloseWithLog(resp.Body, gmw.GetLogger(ctx))

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("turnstile verify endpoint returned status %d", resp.StatusCode)
	}

	var result turnstileVerifyResult
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return errors.Wrap(err, "decode turnstile verify response")
	}

	if !result.Success {
		return errors.Errorf("turnstile verification rejected: %s", strings.Join(result.ErrorCodes, ","))
	}

	return nil
}

// resolveTurnstileClientIP extracts a validated client IP from context.
// Parameters: ctx carries optional Gin request context.
// Returns: A canonical client IP string, or empty string when unavailable.
func resolveTurnstileClientIP(ctx context.Context) string {
	gctx, ok := gmw.GetGinCtxFromStdCtx(ctx)
	if !ok || gctx == nil {
		return ""
	}

	ip := strings.TrimSpace(gctx.ClientIP())
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ""
	}

	return parsed.String()
}
