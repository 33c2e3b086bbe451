package controller

import (
	"unicode/utf8"

	"github.com/Laisky/errors/v2"

	"github.com/Laisky/laisky-blog-web/internal/web/blog/model"
)

const (
	loginFailedMessage = "login failed"
	// authInputLengthLimit bounds credentials before they reach the backend
	authInputLengthLimit = 1024
)

// loginFailureMessage is the text the login dialog shows for err.
// Only wrong credentials and validation problems are spelled out,
// anything else reads as a generic failure.
func loginFailureMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, model.ErrInvalidCredentials):
		return model.ErrInvalidCredentials.Error()
	case errors.Is(err, model.ErrInvalidInput):
		return publicMessage(err)
	default:
		return loginFailedMessage
	}
}

// checkCredentialLength rejects a username or password longer than
// authInputLengthLimit runes.
func checkCredentialLength(username, password string) error {
	if err := validateInputLength(authInputLengthLimit, username); err != nil {
		return errors.Wrap(err, "username")
	}
	if err := validateInputLength(authInputLengthLimit, password); err != nil {
		return errors.Wrap(err, "password")
	}

	return nil
}

func validateInputLength(limit int, input string) error {
	if n := utf8.RuneCountInString(input); n > limit {
		return errors.Errorf("%d characters exceed limit %d", n, limit)
	}

	return nil
}
