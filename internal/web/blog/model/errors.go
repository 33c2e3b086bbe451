package model

import "github.com/Laisky/errors/v2"

var (
	// ErrInvalidCredentials is returned when username or password is wrong
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrLoginRequired is returned when an anonymous session calls an authenticated action
	ErrLoginRequired = errors.New("login required")
	// ErrNotAuthor is returned when a user edits content written by someone else
	ErrNotAuthor = errors.New("not the author")
	// ErrInvalidInput wraps every validation failure
	ErrInvalidInput = errors.New("invalid input")
	// ErrTooManyRequests is returned when a session is throttled
	ErrTooManyRequests = errors.New("too many requests")
	// ErrNotFound is returned when the requested resource does not exist
	ErrNotFound = errors.New("not found")
)
