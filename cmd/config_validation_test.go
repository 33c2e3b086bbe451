package cmd

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func validConfig() map[string]any {
	return map[string]any{
		"settings": map[string]any{
			"backend": map[string]any{
				"url":     "http://localhost:5000",
				"timeout": "5s",
			},
			"web": map[string]any{
				"secret":          "0123456789abcdef0123",
				"cookie_secure":   true,
				"allowed_origins": []any{"blog.example.com", "*.laisky.com"},
				"revalidate":      60,
				"comments": map[string]any{
					"per_minute": 6,
					"burst":      3,
				},
			},
			"db": map[string]any{
				"redis": map[string]any{"addr": "localhost:6379", "db": 0},
			},
		},
	}
}

// TestValidateStartupConfigWithGetterValidConfig verifies valid explicit configuration passes validation.
func TestValidateStartupConfigWithGetterValidConfig(t *testing.T) {
	err := validateStartupConfigWithGetter(newMapConfigGetter(validConfig()))
	require.NoError(t, err)
}

// TestValidateStartupConfigWithGetterEmpty verifies the backend url and secret are required.
func TestValidateStartupConfigWithGetterEmpty(t *testing.T) {
	err := validateStartupConfigWithGetter(newMapConfigGetter(map[string]any{}))
	require.Error(t, err)
	require.Contains(t, err.Error(), "settings.backend.url is required")
	require.Contains(t, err.Error(), "settings.web.secret is required")
}

func TestValidateStartupConfigWithGetterNilGetter(t *testing.T) {
	require.Error(t, validateStartupConfigWithGetter(nil))
}

// TestValidateStartupConfigWithGetterInvalidValues verifies each malformed key is reported.
func TestValidateStartupConfigWithGetterInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		section string
		key     string
		value   any
		want    string
	}{
		{"relative backend url", "backend", "url", "/api", "settings.backend.url must be a valid absolute URL"},
		{"bad timeout", "backend", "timeout", "soon", "settings.backend.timeout must be a duration"},
		{"negative timeout", "backend", "timeout", "-1s", "settings.backend.timeout must be > 0"},
		{"empty cookie name", "backend", "cookie_name", " ", "settings.backend.cookie_name must not be empty"},
		{"short secret", "web", "secret", "short", "settings.web.secret must be at least 16 characters"},
		{"bad cookie flag", "web", "cookie_secure", "maybe", "settings.web.cookie_secure must be a boolean"},
		{"origin with scheme", "web", "allowed_origins", []any{"https://a.com"}, "settings.web.allowed_origins[0]"},
		{"origins not a list", "web", "allowed_origins", "a.com", "settings.web.allowed_origins must be a list"},
		{"session ttl", "web", "session_ttl", 0, "settings.web.session_ttl must be > 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			section := cfg["settings"].(map[string]any)[tt.section].(map[string]any)
			section[tt.key] = tt.value

			err := validateStartupConfigWithGetter(newMapConfigGetter(cfg))
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}

// TestValidateStartupConfigWithGetterCommentThrottle verifies throttle limits must be positive.
func TestValidateStartupConfigWithGetterCommentThrottle(t *testing.T) {
	cfg := validConfig()
	web := cfg["settings"].(map[string]any)["web"].(map[string]any)
	web["comments"] = map[string]any{"per_minute": 0, "burst": "x"}

	err := validateStartupConfigWithGetter(newMapConfigGetter(cfg))
	require.Error(t, err)
	require.Contains(t, err.Error(), "settings.web.comments.per_minute must be >= 1")
	require.Contains(t, err.Error(), "settings.web.comments.burst must be an integer")
}

// TestValidateStartupConfigWithGetterTurnstilePair verifies turnstile keys come in pairs.
func TestValidateStartupConfigWithGetterTurnstilePair(t *testing.T) {
	cfg := validConfig()
	web := cfg["settings"].(map[string]any)["web"].(map[string]any)
	web["turnstile"] = map[string]any{"site_key": "site"}

	err := validateStartupConfigWithGetter(newMapConfigGetter(cfg))
	require.Error(t, err)
	require.Contains(t, err.Error(), "needs both secret_key and site_key")

	web["turnstile"] = map[string]any{"site_key": "site", "secret_key": "secret"}
	require.NoError(t, validateStartupConfigWithGetter(newMapConfigGetter(cfg)))
}

// TestValidateStartupConfigWithGetterDrafts verifies the mongo draft store needs a database.
func TestValidateStartupConfigWithGetterDrafts(t *testing.T) {
	cfg := validConfig()
	db := cfg["settings"].(map[string]any)["db"].(map[string]any)
	db["drafts"] = map[string]any{"addr": "localhost:27017"}

	err := validateStartupConfigWithGetter(newMapConfigGetter(cfg))
	require.Error(t, err)
	require.Contains(t, err.Error(), "settings.db.drafts.db is required")

	db["drafts"] = map[string]any{"addr": "localhost:27017", "db": "blog"}
	require.NoError(t, validateStartupConfigWithGetter(newMapConfigGetter(cfg)))
}

func TestParseStrictDuration(t *testing.T) {
	for raw, want := range map[any]string{
		"90s":   "1m30s",
		30:      "30s",
		"45":    "45s",
		2.0:     "2s",
		"1h30m": "1h30m0s",
	} {
		got, err := parseStrictDuration(raw)
		require.NoError(t, err, raw)
		require.Equal(t, want, got.String(), raw)
	}

	_, err := parseStrictDuration(true)
	require.Error(t, err)
}

// newMapConfigGetter builds a dotted-key getter over a nested map.
func newMapConfigGetter(root map[string]any) configGetter {
	return func(key string) any {
		if key == "" {
			return nil
		}

		parts := strings.Split(key, ".")
		var current any = root
		for _, part := range parts {
			nextMap, ok := current.(map[string]any)
			if !ok {
				return nil
			}

			next, exists := nextMap[part]
			if !exists {
				return nil
			}
			current = next
		}

		return current
	}
}
