package service

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/Laisky/errors/v2"

	"github.com/Laisky/laisky-blog-web/internal/web/blog/model"
)

const (
	// maxCommentLength caps the length of a comment
	maxCommentLength = 600
	// maxDisplayNameLength caps the length of a display name
	maxDisplayNameLength = 20
	// maxAboutLength caps the length of a profile bio
	maxAboutLength = 160
	// maxUsernameLength caps the length of a username
	maxUsernameLength = 20
	// minPasswordLength is the shortest accepted password
	minPasswordLength = 6
	// maxPasswordLength caps the length of a password
	maxPasswordLength = 1024
	// maxEmailLength caps the length of an email address
	maxEmailLength = 254
	// maxSlugLength caps the length of a post slug
	maxSlugLength = 200
	// maxTitleLength caps the length of a post title
	maxTitleLength = 200
	// maxSummaryLength caps the length of a post summary
	maxSummaryLength = 500
	// maxBodyLength caps the length of a post body
	maxBodyLength = 200000
	// maxImageSize caps uploaded images
	maxImageSize = 10 << 20
	// maxVerificationCodeLength caps the length of a sign up code
	maxVerificationCodeLength = 32
)

var (
	usernameRegexp = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	slugRegexp     = regexp.MustCompile(`^[a-z0-9-]+$`)

	allowedImageTypes = map[string]bool{
		"image/png":  true,
		"image/jpeg": true,
	}
)

// invalid wraps a validation failure so callers can match model.ErrInvalidInput.
func invalid(format string, args ...any) error {
	return errors.Wrapf(model.ErrInvalidInput, format, args...)
}

// sanitizeOptionalText trims input, checks for null bytes, enforces maxLen runes, and returns the sanitized value.
func sanitizeOptionalText(input string, maxLen int, field string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", nil
	}
	if strings.ContainsRune(trimmed, '\x00') {
		return "", invalid("%s contains invalid null byte", field)
	}
	if utf8.RuneCountInString(trimmed) > maxLen {
		return "", invalid("%s exceeds max length %d", field, maxLen)
	}

	return trimmed, nil
}

// sanitizeRequiredText is sanitizeOptionalText rejecting blank input.
func sanitizeRequiredText(input string, maxLen int, field string) (string, error) {
	trimmed, err := sanitizeOptionalText(input, maxLen, field)
	if err != nil {
		return "", err
	}
	if trimmed == "" {
		return "", invalid("%s is required", field)
	}

	return trimmed, nil
}

func sanitizeCommentText(text string) (string, error) {
	return sanitizeRequiredText(text, maxCommentLength, "comment")
}

func sanitizeUsername(username string) (string, error) {
	trimmed, err := sanitizeRequiredText(username, maxUsernameLength, "username")
	if err != nil {
		return "", err
	}
	if !usernameRegexp.MatchString(trimmed) {
		return "", invalid("username may only contain letters, numbers and underscores")
	}

	return trimmed, nil
}

func sanitizePassword(password string) (string, error) {
	if strings.ContainsRune(password, '\x00') {
		return "", invalid("password contains invalid null byte")
	}
	n := utf8.RuneCountInString(password)
	if n < minPasswordLength {
		return "", invalid("password must be at least %d characters", minPasswordLength)
	}
	if n > maxPasswordLength {
		return "", invalid("password exceeds max length %d", maxPasswordLength)
	}

	return password, nil
}

func sanitizeEmail(email string) (string, error) {
	trimmed, err := sanitizeRequiredText(email, maxEmailLength, "email")
	if err != nil {
		return "", err
	}
	parsed, err := mail.ParseAddress(trimmed)
	if err != nil {
		return "", invalid("invalid email")
	}

	return parsed.Address, nil
}

func sanitizeSlug(slug string) (string, error) {
	trimmed, err := sanitizeRequiredText(slug, maxSlugLength, "slug")
	if err != nil {
		return "", err
	}
	if !slugRegexp.MatchString(trimmed) {
		return "", invalid("slug may only contain lowercase letters, numbers and dashes")
	}

	return trimmed, nil
}

func sanitizeImage(img *model.Upload, field string) error {
	if img == nil {
		return nil
	}
	if len(img.Content) == 0 {
		return invalid("%s is empty", field)
	}
	if len(img.Content) > maxImageSize {
		return invalid("%s exceeds %d bytes", field, maxImageSize)
	}
	if !allowedImageTypes[img.ContentType] {
		return invalid("%s must be png or jpeg", field)
	}

	return nil
}

// sanitizePostForm validates a post. The featured image is required when creating.
func sanitizePostForm(form *model.PostForm, creating bool) (*model.PostForm, error) {
	if form == nil {
		return nil, invalid("empty post")
	}

	var (
		out = *form
		err error
	)
	if out.Slug, err = sanitizeSlug(form.Slug); err != nil {
		return nil, err
	}
	if out.Title, err = sanitizeRequiredText(form.Title, maxTitleLength, "title"); err != nil {
		return nil, err
	}
	if out.Summary, err = sanitizeRequiredText(form.Summary, maxSummaryLength, "summary"); err != nil {
		return nil, err
	}
	if out.Body, err = sanitizeRequiredText(form.Body, maxBodyLength, "body"); err != nil {
		return nil, err
	}
	if creating && form.FeaturedImage == nil {
		return nil, invalid("featured image is required")
	}
	if err = sanitizeImage(form.FeaturedImage, "featured image"); err != nil {
		return nil, err
	}

	return &out, nil
}

// sanitizeProfileForm validates a profile update, empty fields stay untouched.
func sanitizeProfileForm(form *model.ProfileForm) (*model.ProfileForm, error) {
	if form == nil {
		return nil, invalid("empty profile")
	}

	var (
		out = *form
		err error
	)
	if strings.TrimSpace(form.Username) != "" {
		if out.Username, err = sanitizeUsername(form.Username); err != nil {
			return nil, err
		}
	}
	if out.DisplayName, err = sanitizeOptionalText(form.DisplayName, maxDisplayNameLength, "display name"); err != nil {
		return nil, err
	}
	if out.About, err = sanitizeOptionalText(form.About, maxAboutLength, "about"); err != nil {
		return nil, err
	}
	if err = sanitizeImage(form.ProfilePic, "profile picture"); err != nil {
		return nil, err
	}

	return &out, nil
}
