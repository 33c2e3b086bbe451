package model

import "time"

// UserSummary is the public author reference embedded in posts and comments.
type UserSummary struct {
	ID            string `json:"_id"`
	Username      string `json:"username,omitempty"`
	DisplayName   string `json:"displayName,omitempty"`
	ProfilePicURL string `json:"profilePicUrl,omitempty"`
}

// Name returns the name to show for the author.
func (u UserSummary) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	if u.Username != "" {
		return u.Username
	}

	return "anonymous"
}

// User is a blog account
type User struct {
	ID            string    `json:"_id"`
	Username      string    `json:"username,omitempty"`
	Email         string    `json:"email,omitempty"`
	DisplayName   string    `json:"displayName,omitempty"`
	About         string    `json:"about,omitempty"`
	ProfilePicURL string    `json:"profilePicUrl,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Summary returns the public reference of the user.
func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:            u.ID,
		Username:      u.Username,
		DisplayName:   u.DisplayName,
		ProfilePicURL: u.ProfilePicURL,
	}
}

// NeedsOnboarding reports whether the user still has to pick a username.
func (u *User) NeedsOnboarding() bool {
	return u != nil && u.Username == ""
}

// SignUpRequest registers a new account
type SignUpRequest struct {
	Username         string `json:"username"`
	Email            string `json:"email"`
	Password         string `json:"password"`
	VerificationCode string `json:"verificationCode"`
}

// LoginRequest authenticates with username and password
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ProfileForm carries profile updates, empty fields are left untouched
type ProfileForm struct {
	Username    string
	DisplayName string
	About       string
	ProfilePic  *Upload
}
