package service

import (
	"context"
	"strings"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Laisky/laisky-blog-web/internal/web/blog/model"
	"github.com/Laisky/laisky-blog-web/internal/web/blog/session"
	"github.com/Laisky/laisky-blog-web/library/blogapi"
)

// Profile is the data of a user page
type Profile struct {
	User  *model.User
	Posts []*model.Post
	// Own is true when the viewer is the profile owner
	Own bool
}

// RequestVerificationCode asks the backend to mail a sign up code to email.
func (b *Blog) RequestVerificationCode(ctx context.Context, email string) error {
	email, err := sanitizeEmail(email)
	if err != nil {
		return err
	}

	if err = b.api.RequestVerificationCode(ctx, email); err != nil {
		return translateBackendError(err)
	}

	return nil
}

// SignUp registers a new account and signs st in.
func (b *Blog) SignUp(ctx context.Context, st *session.State, req *model.SignUpRequest) (*model.User, error) {
	if req == nil {
		return nil, invalid("empty sign up request")
	}

	var (
		clean = *req
		err   error
	)
	if clean.Username, err = sanitizeUsername(req.Username); err != nil {
		return nil, err
	}
	if clean.Email, err = sanitizeEmail(req.Email); err != nil {
		return nil, err
	}
	if clean.Password, err = sanitizePassword(req.Password); err != nil {
		return nil, err
	}
	if clean.VerificationCode, err = sanitizeRequiredText(req.VerificationCode,
		maxVerificationCodeLength, "verification code"); err != nil {
		return nil, err
	}

	user, cookie, err := b.api.SignUp(ctx, &clean)
	if err != nil {
		return nil, translateBackendError(err)
	}

	st.SignIn(user, cookie)
	gmw.GetLogger(ctx).Info("user signed up", zap.String("user", user.ID))
	return user, nil
}

// Login authenticates st with username and password.
func (b *Blog) Login(ctx context.Context, st *session.State, req *model.LoginRequest) (*model.User, error) {
	if req == nil || strings.TrimSpace(req.Username) == "" || req.Password == "" {
		return nil, invalid("username and password are required")
	}

	user, cookie, err := b.api.Login(ctx, &model.LoginRequest{
		Username: strings.TrimSpace(req.Username),
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, blogapi.ErrUnauthorized) || errors.Is(err, blogapi.ErrNotFound) {
			return nil, errors.Wrap(model.ErrInvalidCredentials, err.Error())
		}

		return nil, translateBackendError(err)
	}

	st.SignIn(user, cookie)
	gmw.GetLogger(ctx).Info("user logged in", zap.String("user", user.ID))
	return user, nil
}

// Logout signs st out. The backend session is closed on a best effort basis.
func (b *Blog) Logout(ctx context.Context, st *session.State) {
	if st.BackendCookie != "" {
		if err := b.API(st).Logout(ctx); err != nil {
			gmw.GetLogger(ctx).Warn("backend logout failed", zap.Error(err))
		}
	}

	st.SignOut()
}

// RefreshUser reloads the signed in user of st from the backend.
// A rejected backend cookie signs st out.
func (b *Blog) RefreshUser(ctx context.Context, st *session.State) (*model.User, error) {
	if err := requireLogin(st); err != nil {
		return nil, err
	}

	user, err := b.API(st).Me(ctx)
	if err != nil {
		if errors.Is(err, blogapi.ErrUnauthorized) {
			st.SignOut()
		}

		return nil, translateBackendError(err)
	}

	st.SetUser(user)
	return user, nil
}

// Profile loads the page of username.
//
// The author's posts and the viewer's account are fetched in parallel
// once the profile owner is known.
func (b *Blog) Profile(ctx context.Context, st *session.State, username string) (*Profile, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, invalid("username is required")
	}

	user, err := b.api.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, translateBackendError(err)
	}

	profile := &Profile{User: user}
	viewer := st.User

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		posts, err := b.api.ListPostsByAuthor(gctx, user.ID)
		if err != nil {
			return errors.Wrap(translateBackendError(err), "list posts of author")
		}

		profile.Posts = posts
		return nil
	})
	if st.LoggedIn() {
		g.Go(func() error {
			me, err := b.API(st).Me(gctx)
			if err != nil {
				gmw.GetLogger(ctx).Debug("refresh viewer", zap.Error(err))
				return nil
			}

			viewer = me
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return nil, err
	}

	if viewer != nil && viewer.ID == user.ID {
		profile.Own = true
		st.SetUser(viewer)
	}

	return profile, nil
}

// UpdateProfile changes the profile of the signed in user.
func (b *Blog) UpdateProfile(ctx context.Context, st *session.State, form *model.ProfileForm) (*model.User, error) {
	if err := requireLogin(st); err != nil {
		return nil, err
	}

	form, err := sanitizeProfileForm(form)
	if err != nil {
		return nil, err
	}

	user, err := b.API(st).UpdateProfile(ctx, form)
	if err != nil {
		return nil, translateBackendError(err)
	}

	st.SetUser(user)
	return user, nil
}

// CompleteOnboarding picks the username of a freshly created account.
func (b *Blog) CompleteOnboarding(ctx context.Context, st *session.State, username, displayName string) (*model.User, error) {
	if strings.TrimSpace(username) == "" {
		return nil, invalid("username is required")
	}

	return b.UpdateProfile(ctx, st, &model.ProfileForm{
		Username:    username,
		DisplayName: displayName,
	})
}
