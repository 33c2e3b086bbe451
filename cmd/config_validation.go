package cmd

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	errors "github.com/Laisky/errors/v2"
	gconfig "github.com/Laisky/go-config/v2"
)

// minSecretLength is the shortest accepted session signing secret
const minSecretLength = 16

// configGetter retrieves raw configuration values by dotted key path.
type configGetter func(key string) any

// validateStartupConfig validates startup configuration from the shared config source.
// It returns an error when any configured value is malformed or violates constraints.
func validateStartupConfig() error {
	return validateStartupConfigWithGetter(func(key string) any {
		return gconfig.Shared.Get(key)
	})
}

// validateStartupConfigWithGetter validates startup configuration via a key-value getter.
// It accepts a value getter and returns nil when all configured values are valid.
func validateStartupConfigWithGetter(get configGetter) error {
	if get == nil {
		return errors.New("config getter is nil")
	}

	validationErrs := make([]string, 0)

	validateBackendConfig(get, &validationErrs)
	validateWebConfig(get, &validationErrs)
	validateTurnstileConfig(get, &validationErrs)
	validateRedisConfig(get, &validationErrs)
	validateDraftsConfig(get, &validationErrs)

	if len(validationErrs) == 0 {
		return nil
	}

	return errors.Errorf("invalid configuration:\n - %s", strings.Join(validationErrs, "\n - "))
}

// validateBackendConfig validates the REST backend settings.
func validateBackendConfig(get configGetter, errs *[]string) {
	if get("settings.backend.url") == nil {
		appendValidationError(errs, "settings.backend.url is required")
	} else {
		validateOptionalURL(get, "settings.backend.url", errs)
	}

	validateOptionalDuration(get, "settings.backend.timeout", errs)
	validateOptionalStringNonEmpty(get, "settings.backend.cookie_name", errs)
}

// validateWebConfig validates the web host settings.
func validateWebConfig(get configGetter, errs *[]string) {
	secret, err := parseStrictString(get("settings.web.secret"))
	switch {
	case get("settings.web.secret") == nil:
		appendValidationError(errs, "settings.web.secret is required")
	case err != nil:
		appendValidationError(errs, "settings.web.secret must be a string")
	case len(secret) < minSecretLength:
		appendValidationError(errs, "settings.web.secret must be at least %d characters", minSecretLength)
	}

	validateOptionalBool(get, "settings.web.cookie_secure", errs)
	validateOptionalURL(get, "settings.web.base_url", errs)
	validateOptionalDuration(get, "settings.web.revalidate", errs)
	validateOptionalDuration(get, "settings.web.session_ttl", errs)
	validateOptionalIntMin(get, "settings.web.comments.per_minute", 1, errs)
	validateOptionalIntMin(get, "settings.web.comments.burst", 1, errs)
	validateAllowedOrigins(get, errs)
}

// validateAllowedOrigins validates the CORS origin list, entries are hosts or `*.suffix`.
func validateAllowedOrigins(get configGetter, errs *[]string) {
	const key = "settings.web.allowed_origins"
	raw := get(key)
	if raw == nil {
		return
	}

	var origins []string
	switch v := raw.(type) {
	case []string:
		origins = v
	case []any:
		for _, item := range v {
			s, err := parseStrictString(item)
			if err != nil {
				appendValidationError(errs, "%s must be a list of hosts", key)
				return
			}
			origins = append(origins, s)
		}
	default:
		appendValidationError(errs, "%s must be a list of hosts", key)
		return
	}

	for i, origin := range origins {
		if !isValidHost(strings.TrimPrefix(origin, "*.")) {
			appendValidationError(errs, "%s[%d] must be a host or *.suffix", key, i)
		}
	}
}

// validateTurnstileConfig requires both turnstile keys once either is set.
func validateTurnstileConfig(get configGetter, errs *[]string) {
	secret := get("settings.web.turnstile.secret_key")
	siteKey := get("settings.web.turnstile.site_key")
	if secret == nil && siteKey == nil {
		return
	}

	validateOptionalStringNonEmpty(get, "settings.web.turnstile.secret_key", errs)
	validateOptionalStringNonEmpty(get, "settings.web.turnstile.site_key", errs)
	if secret == nil || siteKey == nil {
		appendValidationError(errs, "settings.web.turnstile needs both secret_key and site_key")
	}
}

// validateRedisConfig validates redis-related startup configuration values.
// It accepts a getter and an error collector pointer and appends validation errors.
func validateRedisConfig(get configGetter, errs *[]string) {
	validateOptionalStringNonEmpty(get, "settings.db.redis.addr", errs)
	validateOptionalIntMin(get, "settings.db.redis.db", 0, errs)
}

// validateDraftsConfig validates the optional mongo draft store.
func validateDraftsConfig(get configGetter, errs *[]string) {
	if get("settings.db.drafts.addr") == nil {
		return
	}

	validateOptionalStringNonEmpty(get, "settings.db.drafts.addr", errs)
	if get("settings.db.drafts.db") == nil {
		appendValidationError(errs, "settings.db.drafts.db is required with settings.db.drafts.addr")
		return
	}
	validateOptionalStringNonEmpty(get, "settings.db.drafts.db", errs)
}

// validateOptionalBool validates an optionally configured boolean key.
func validateOptionalBool(get configGetter, key string, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	if _, ok := parseStrictBool(raw); !ok {
		appendValidationError(errs, "%s must be a boolean", key)
	}
}

// validateOptionalIntMin validates an optionally configured integer key against a lower bound.
// It accepts a getter, the key, the minimum, and an error collector pointer.
func validateOptionalIntMin(get configGetter, key string, min int, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	value, parseErr := parseStrictInt(raw)
	if parseErr != nil {
		appendValidationError(errs, "%s must be an integer", key)
		return
	}

	if value < min {
		appendValidationError(errs, "%s must be >= %d", key, min)
	}
}

// validateOptionalDuration validates an optionally configured positive duration,
// given as a Go duration string or as seconds.
func validateOptionalDuration(get configGetter, key string, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	value, parseErr := parseStrictDuration(raw)
	if parseErr != nil {
		appendValidationError(errs, "%s must be a duration like 30s", key)
		return
	}

	if value <= 0 {
		appendValidationError(errs, "%s must be > 0", key)
	}
}

// validateOptionalURL validates an optionally configured absolute URL key.
// It accepts a getter, the key, and an error collector pointer and appends validation errors.
func validateOptionalURL(get configGetter, key string, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	value, parseErr := parseStrictString(raw)
	if parseErr != nil {
		appendValidationError(errs, "%s must be a string URL", key)
		return
	}

	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		appendValidationError(errs, "%s must not be empty", key)
		return
	}

	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		appendValidationError(errs, "%s must be a valid absolute URL", key)
	}
}

// validateOptionalStringNonEmpty validates an optionally configured non-empty string key.
func validateOptionalStringNonEmpty(get configGetter, key string, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	value, parseErr := parseStrictString(raw)
	if parseErr != nil {
		appendValidationError(errs, "%s must be a string", key)
		return
	}

	if strings.TrimSpace(value) == "" {
		appendValidationError(errs, "%s must not be empty", key)
	}
}

// parseStrictBool parses a value as boolean using strict conversion rules.
// It accepts a raw value and returns the parsed boolean and whether parsing succeeded.
func parseStrictBool(value any) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case int:
		return v != 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes":
			return true, true
		case "false", "0", "no":
			return false, true
		default:
			return false, false
		}
	default:
		return false, false
	}
}

// parseStrictInt parses a value as a strict integer.
// It accepts a raw value and returns the parsed int and an error when parsing fails.
func parseStrictInt(value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if math.Trunc(v) != v {
			return 0, errors.Errorf("%v is not an integer", v)
		}
		return int(v), nil
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, errors.New("empty integer string")
		}
		parsed, err := strconv.Atoi(trimmed)
		if err != nil {
			return 0, errors.Wrap(err, "atoi")
		}
		return parsed, nil
	default:
		return 0, errors.Errorf("unsupported int type %T", value)
	}
}

// parseStrictDuration parses a duration string, a bare number counts as seconds.
func parseStrictDuration(value any) (time.Duration, error) {
	if s, ok := value.(string); ok {
		d, err := time.ParseDuration(strings.TrimSpace(s))
		if err == nil {
			return d, nil
		}
	}

	secs, err := parseStrictInt(value)
	if err != nil {
		return 0, errors.Wrap(err, "parse duration")
	}
	return time.Duration(secs) * time.Second, nil
}

// parseStrictString parses a value as a strict string.
func parseStrictString(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", errors.Errorf("unsupported string type %T", value)
	}
}

// isValidHost validates a host string without scheme or path components.
// It accepts a host string and returns true when the host is syntactically acceptable.
func isValidHost(host string) bool {
	trimmed := strings.TrimSpace(host)
	if trimmed == "" {
		return false
	}
	if strings.Contains(trimmed, "://") || strings.Contains(trimmed, "/") {
		return false
	}
	return true
}

// appendValidationError appends a formatted validation error to the collector.
func appendValidationError(errs *[]string, format string, args ...any) {
	if errs == nil {
		return
	}
	*errs = append(*errs, fmt.Sprintf(format, args...))
}
