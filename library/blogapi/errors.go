package blogapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/Laisky/errors/v2"
)

var (
	ErrBadRequest      = errors.New("bad request")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrTooManyRequests = errors.New("too many requests")
	ErrServer          = errors.New("server error")
)

// HTTPError is a non-2xx response of the backend.
// It unwraps to the sentinel matching its status.
type HTTPError struct {
	Status  int
	Message string
}

func newHTTPError(status int, body []byte) *HTTPError {
	e := &HTTPError{Status: status}

	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		e.Message = payload.Error
		if e.Message == "" {
			e.Message = payload.Message
		}
	}
	if e.Message == "" {
		msg, _ := truncateForLog(body, 200)
		e.Message = strings.TrimSpace(msg)
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}

	return e
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
}

// Unwrap maps the status code to a sentinel error.
func (e *HTTPError) Unwrap() error {
	switch {
	case e.Status == http.StatusBadRequest:
		return ErrBadRequest
	case e.Status == http.StatusUnauthorized:
		return ErrUnauthorized
	case e.Status == http.StatusForbidden:
		return ErrForbidden
	case e.Status == http.StatusNotFound:
		return ErrNotFound
	case e.Status == http.StatusConflict:
		return ErrConflict
	case e.Status == http.StatusTooManyRequests:
		return ErrTooManyRequests
	case e.Status >= http.StatusInternalServerError:
		return ErrServer
	default:
		return nil
	}
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Message returns the backend message of err, or a generic text.
func Message(err error) string {
	var herr *HTTPError
	if errors.As(err, &herr) {
		return herr.Message
	}

	return "unexpected error"
}
