// Package session holds the per-visitor state of the web front end.
//
// A State is loaded for every request and handed to handlers as an argument.
// It carries the signed-in user, the backend credentials and which auth
// dialog is open.
package session

import (
	"time"

	"github.com/Laisky/laisky-blog-web/internal/web/blog/model"
)

// Modal is the auth dialog shown on top of the current page
type Modal string

const (
	ModalNone   Modal = ""
	ModalLogin  Modal = "login"
	ModalSignUp Modal = "signup"
)

// State is the session of one visitor
type State struct {
	ID   string      `json:"id"`
	User *model.User `json:"user,omitempty"`
	// BackendCookie authenticates calls to the backend on behalf of User
	BackendCookie string    `json:"backendCookie,omitempty"`
	Modal         Modal     `json:"modal,omitempty"`
	ReturnTo      string    `json:"returnTo,omitempty"`
	Flash         string    `json:"flash,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`

	dirty bool
}

// NewState creates an anonymous session.
func NewState(id string) *State {
	return &State{ID: id, CreatedAt: time.Now().UTC(), dirty: true}
}

// LoggedIn reports whether a user is signed in.
func (s *State) LoggedIn() bool {
	return s.User != nil && s.BackendCookie != ""
}

// Dirty reports whether the state changed since it was loaded.
func (s *State) Dirty() bool {
	return s.dirty
}

// SignIn binds user and its backend cookie and closes any auth dialog.
func (s *State) SignIn(user *model.User, backendCookie string) {
	s.User = user
	s.BackendCookie = backendCookie
	s.Modal = ModalNone
	s.dirty = true
}

// SetUser refreshes the signed-in user, e.g. after a profile update.
func (s *State) SetUser(user *model.User) {
	s.User = user
	s.dirty = true
}

// SignOut forgets the user and the backend credentials.
func (s *State) SignOut() {
	s.User = nil
	s.BackendCookie = ""
	s.Modal = ModalNone
	s.ReturnTo = ""
	s.dirty = true
}

// OpenModal asks the next page render to show an auth dialog,
// returning to returnTo once it completes.
func (s *State) OpenModal(m Modal, returnTo string) {
	s.Modal = m
	s.ReturnTo = returnTo
	s.dirty = true
}

// CloseModal hides the auth dialog.
func (s *State) CloseModal() {
	if s.Modal == ModalNone {
		return
	}

	s.Modal = ModalNone
	s.dirty = true
}

// SetFlash stores a one-shot notification.
func (s *State) SetFlash(msg string) {
	s.Flash = msg
	s.dirty = true
}

// PopFlash returns and clears the notification.
func (s *State) PopFlash() string {
	msg := s.Flash
	if msg != "" {
		s.Flash = ""
		s.dirty = true
	}

	return msg
}

// PopReturnTo returns and clears the page to go back to after auth.
func (s *State) PopReturnTo(fallback string) string {
	to := s.ReturnTo
	if to == "" {
		return fallback
	}

	s.ReturnTo = ""
	s.dirty = true
	return to
}
