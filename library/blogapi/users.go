package blogapi

import (
	"context"
	"net/http"
	"net/url"

	"github.com/Laisky/errors/v2"

	"github.com/Laisky/laisky-blog-web/internal/web/blog/model"
)

// Me returns the user owning the bound session cookie.
func (c *Client) Me(ctx context.Context) (*model.User, error) {
	out := new(model.User)
	if _, err := c.do(ctx, &request{method: http.MethodGet, path: "/users/me"}, out); err != nil {
		return nil, errors.Wrap(err, "get current user")
	}

	return out, nil
}

// GetUserByUsername returns a public profile.
func (c *Client) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	if username == "" {
		return nil, errors.New("empty username")
	}

	out := new(model.User)
	if _, err := c.do(ctx, &request{
		method: http.MethodGet,
		path:   "/users/profile/" + url.PathEscape(username),
	}, out); err != nil {
		return nil, errors.Wrapf(err, "get user %q", username)
	}

	return out, nil
}

// RequestVerificationCode asks the backend to mail a sign-up code to email.
func (c *Client) RequestVerificationCode(ctx context.Context, email string) error {
	r, err := jsonRequest(http.MethodPost, "/users/verification-code", map[string]string{"email": email})
	if err != nil {
		return err
	}

	if _, err = c.do(ctx, r, nil); err != nil {
		return errors.Wrap(err, "request verification code")
	}

	return nil
}

// SignUp creates an account and logs it in.
// It returns the new user and the backend session cookie.
func (c *Client) SignUp(ctx context.Context, req *model.SignUpRequest) (*model.User, string, error) {
	r, err := jsonRequest(http.MethodPost, "/users/signup", req)
	if err != nil {
		return nil, "", err
	}

	return c.authenticate(ctx, r, "sign up")
}

// Login authenticates and returns the user and the backend session cookie.
func (c *Client) Login(ctx context.Context, req *model.LoginRequest) (*model.User, string, error) {
	r, err := jsonRequest(http.MethodPost, "/users/login", req)
	if err != nil {
		return nil, "", err
	}

	return c.authenticate(ctx, r, "login")
}

func (c *Client) authenticate(ctx context.Context, r *request, action string) (*model.User, string, error) {
	out := new(model.User)
	resp, err := c.do(ctx, r, out)
	if err != nil {
		return nil, "", errors.Wrap(err, action)
	}

	for _, ck := range resp.Cookies() {
		if ck.Name == c.cookieName && ck.Value != "" {
			return out, ck.Value, nil
		}
	}

	return nil, "", errors.Errorf("%s: backend did not set cookie %q", action, c.cookieName)
}

// Logout ends the backend session of the bound cookie.
func (c *Client) Logout(ctx context.Context) error {
	if _, err := c.do(ctx, &request{method: http.MethodPost, path: "/users/logout"}, nil); err != nil {
		return errors.Wrap(err, "logout")
	}

	return nil
}

// UpdateProfile changes the profile of the bound user.
func (c *Client) UpdateProfile(ctx context.Context, form *model.ProfileForm) (*model.User, error) {
	if form == nil {
		return nil, errors.New("empty profile form")
	}

	var pic *model.Upload
	if form.ProfilePic != nil {
		cp := *form.ProfilePic
		cp.FieldName = "profilePic"
		pic = &cp
	}

	r, err := multipartRequest(http.MethodPatch, "/users/me", map[string]string{
		"username":    form.Username,
		"displayName": form.DisplayName,
		"about":       form.About,
	}, pic)
	if err != nil {
		return nil, err
	}

	out := new(model.User)
	if _, err = c.do(ctx, r, out); err != nil {
		return nil, errors.Wrap(err, "update profile")
	}

	return out, nil
}
