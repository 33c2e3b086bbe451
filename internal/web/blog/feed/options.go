package feed

import (
	"github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
)

// Option configures a Controller
type Option func(*Controller) error

// WithLogger sets the controller logger.
func WithLogger(logger logSDK.Logger) Option {
	return func(c *Controller) error {
		if logger == nil {
			return errors.New("logger is nil")
		}

		c.logger = logger
		return nil
	}
}

// WithPageSize marks the feed exhausted whenever a page comes back shorter than n.
// Without it only the backend end marker ends pagination.
func WithPageSize(n int) Option {
	return func(c *Controller) error {
		if n <= 0 {
			return errors.Errorf("page size must be positive, got %d", n)
		}

		c.pageSize = n
		return nil
	}
}

// WithCreatedAtTail makes RecordCreated append instead of prepend.
// Reply threads read oldest first, so new replies go last.
func WithCreatedAtTail() Option {
	return func(c *Controller) error {
		c.appendCreated = true
		return nil
	}
}
