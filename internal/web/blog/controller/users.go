package controller

import (
	"net/http"
	"net/url"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/Laisky/laisky-blog-web/internal/web/blog/model"
	"github.com/Laisky/laisky-blog-web/internal/web/blog/service"
	"github.com/Laisky/laisky-blog-web/internal/web/blog/session"
)

const turnstileFailedMsg = "verification failed, please retry"

type profilePage struct {
	*service.Profile
	Error string
}

type onboardingPage struct {
	Username    string
	DisplayName string
	Error       string
}

func profileURL(username string) string {
	return "/users/" + url.PathEscape(username)
}

// OpenLogin shows the login dialog over the page the visitor came from.
func (c *Controller) OpenLogin(ctx *gin.Context, st *session.State) {
	c.openModal(ctx, st, session.ModalLogin)
}

// OpenSignUp shows the sign up dialog over the page the visitor came from.
func (c *Controller) OpenSignUp(ctx *gin.Context, st *session.State) {
	c.openModal(ctx, st, session.ModalSignUp)
}

func (c *Controller) openModal(ctx *gin.Context, st *session.State, m session.Modal) {
	returnTo := safeReturnTo(ctx.Query("returnTo"), homePath)
	if st.LoggedIn() {
		ctx.Redirect(http.StatusFound, returnTo)
		return
	}

	st.OpenModal(m, returnTo)
	ctx.Redirect(http.StatusFound, returnTo)
}

// CloseModal hides the auth dialog.
func (c *Controller) CloseModal(ctx *gin.Context, st *session.State) {
	st.CloseModal()
	ctx.Redirect(http.StatusFound, st.PopReturnTo(safeReturnTo(ctx.Query("returnTo"), homePath)))
}

// authFailed keeps dialog m open and reports msg on the page behind it.
func (c *Controller) authFailed(ctx *gin.Context, st *session.State, m session.Modal, returnTo, msg string) {
	st.OpenModal(m, returnTo)
	st.SetFlash(msg)
	ctx.Redirect(http.StatusSeeOther, returnTo)
}

// signedIn finishes a successful login or sign up.
func (c *Controller) signedIn(ctx *gin.Context, st *session.State, returnTo, flash string) {
	if err := c.sessions.Renew(ctx, st); err != nil {
		c.abortPage(ctx, st, errors.Wrap(err, "renew session"))
		return
	}

	st.SetFlash(flash)
	to := st.PopReturnTo(returnTo)
	if st.User.NeedsOnboarding() {
		to = onboardingPath
	}
	ctx.Redirect(http.StatusSeeOther, to)
}

// Login authenticates the login dialog form.
func (c *Controller) Login(ctx *gin.Context, st *session.State) {
	returnTo := safeReturnTo(ctx.PostForm("returnTo"), homePath)
	username, password := ctx.PostForm("username"), ctx.PostForm("password")
	if checkCredentialLength(username, password) != nil {
		c.authFailed(ctx, st, session.ModalLogin, returnTo, "input too long")
		return
	}

	if err := c.turnstile.Verify(ctx, ctx.PostForm(turnstileFormField)); err != nil {
		gmw.GetLogger(ctx).Info("login turnstile rejected", zap.Error(err))
		c.authFailed(ctx, st, session.ModalLogin, returnTo, turnstileFailedMsg)
		return
	}

	user, err := c.svc.Login(ctx, st, &model.LoginRequest{Username: username, Password: password})
	if err != nil {
		if statusOf(err) == http.StatusInternalServerError {
			gmw.GetLogger(ctx).Error("login", zap.Error(err))
		}
		c.authFailed(ctx, st, session.ModalLogin, returnTo, loginFailureMessage(err))
		return
	}

	c.signedIn(ctx, st, returnTo, "Welcome back, "+user.Summary().Name())
}

// SignUp registers an account from the sign up dialog form.
func (c *Controller) SignUp(ctx *gin.Context, st *session.State) {
	returnTo := safeReturnTo(ctx.PostForm("returnTo"), homePath)
	if err := c.turnstile.Verify(ctx, ctx.PostForm(turnstileFormField)); err != nil {
		gmw.GetLogger(ctx).Info("sign up turnstile rejected", zap.Error(err))
		c.authFailed(ctx, st, session.ModalSignUp, returnTo, turnstileFailedMsg)
		return
	}

	_, err := c.svc.SignUp(ctx, st, &model.SignUpRequest{
		Username:         ctx.PostForm("username"),
		Email:            ctx.PostForm("email"),
		Password:         ctx.PostForm("password"),
		VerificationCode: ctx.PostForm("verificationCode"),
	})
	if err != nil {
		if statusOf(err) == http.StatusInternalServerError {
			gmw.GetLogger(ctx).Error("sign up", zap.Error(err))
		}
		c.authFailed(ctx, st, session.ModalSignUp, returnTo, publicMessage(err))
		return
	}

	c.signedIn(ctx, st, returnTo, "Welcome!")
}

// RequestVerificationCode mails a sign up code.
func (c *Controller) RequestVerificationCode(ctx *gin.Context, st *session.State) {
	var req struct {
		Email string `json:"email"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		c.abortJSON(ctx, st, errors.Wrap(model.ErrInvalidInput, "invalid request"))
		return
	}

	if err := c.svc.RequestVerificationCode(ctx, req.Email); err != nil {
		c.abortJSON(ctx, st, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"sent": true})
}

// Logout signs the visitor out.
func (c *Controller) Logout(ctx *gin.Context, st *session.State) {
	c.svc.Logout(ctx, st)
	if err := c.sessions.Renew(ctx, st); err != nil {
		gmw.GetLogger(ctx).Warn("renew session on logout", zap.Error(err))
	}

	ctx.Redirect(http.StatusSeeOther, homePath)
}

// ShowProfile renders the page of a user.
func (c *Controller) ShowProfile(ctx *gin.Context, st *session.State) {
	profile, err := c.svc.Profile(ctx, st, ctx.Param("username"))
	if err != nil {
		c.abortPage(ctx, st, err)
		return
	}

	c.renderWithMeta(ctx, st, http.StatusOK, "profile.html",
		profile.User.Summary().Name(), "", &profilePage{Profile: profile})
}

// UpdateProfile saves the profile form of the signed in user.
func (c *Controller) UpdateProfile(ctx *gin.Context, st *session.State) {
	if !c.requireLoginPage(ctx, st, homePath) {
		return
	}

	ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, maxUploadBytes)
	form := &model.ProfileForm{
		Username:    ctx.PostForm("username"),
		DisplayName: ctx.PostForm("displayName"),
		About:       ctx.PostForm("about"),
	}
	pic, err := readUpload(ctx, "profilePic")
	if err == nil {
		form.ProfilePic = pic
		_, err = c.svc.UpdateProfile(ctx, st, form)
	}
	if err != nil {
		if statusOf(err) != http.StatusBadRequest {
			c.abortPage(ctx, st, err)
			return
		}

		st.SetFlash(publicMessage(err))
	} else {
		st.SetFlash("Profile updated")
	}

	ctx.Redirect(http.StatusSeeOther, profileURL(st.User.Username))
}

// OnboardingPage asks a new user to pick a username.
func (c *Controller) OnboardingPage(ctx *gin.Context, st *session.State) {
	if !st.LoggedIn() {
		ctx.Redirect(http.StatusFound, homePath)
		return
	}
	if !st.User.NeedsOnboarding() {
		ctx.Redirect(http.StatusFound, profileURL(st.User.Username))
		return
	}

	c.renderWithMeta(ctx, st, http.StatusOK, "onboarding.html", "Welcome", "", &onboardingPage{
		DisplayName: st.User.DisplayName,
	})
}

// CompleteOnboarding saves the picked username.
func (c *Controller) CompleteOnboarding(ctx *gin.Context, st *session.State) {
	if !st.LoggedIn() {
		ctx.Redirect(http.StatusSeeOther, homePath)
		return
	}

	username, displayName := ctx.PostForm("username"), ctx.PostForm("displayName")
	user, err := c.svc.CompleteOnboarding(ctx, st, username, displayName)
	if err != nil {
		if statusOf(err) != http.StatusBadRequest {
			c.abortPage(ctx, st, err)
			return
		}

		c.renderWithMeta(ctx, st, http.StatusBadRequest, "onboarding.html", "Welcome", "", &onboardingPage{
			Username:    username,
			DisplayName: displayName,
			Error:       publicMessage(err),
		})
		return
	}

	st.SetFlash("You are all set")
	ctx.Redirect(http.StatusSeeOther, profileURL(user.Username))
}
