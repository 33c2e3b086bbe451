package cmd

import (
	"context"
	"testing"
	"time"

	gconfig "github.com/Laisky/go-config/v2"
	"github.com/stretchr/testify/require"

	"github.com/Laisky/laisky-blog-web/internal/web/blog/draft"
	"github.com/Laisky/laisky-blog-web/library/cache"
)

// setConfig overrides key for the duration of the test.
func setConfig(t *testing.T, key string, value any) {
	t.Helper()
	old := gconfig.Shared.Get(key)
	gconfig.Shared.Set(key, value)
	t.Cleanup(func() { gconfig.Shared.Set(key, old) })
}

func TestDurationSetting(t *testing.T) {
	require.Equal(t, time.Minute, durationSetting("settings.test.duration_missing", time.Minute))

	setConfig(t, "settings.test.duration", "90s")
	require.Equal(t, 90*time.Second, durationSetting("settings.test.duration", time.Minute))

	setConfig(t, "settings.test.duration_secs", 30)
	require.Equal(t, 30*time.Second, durationSetting("settings.test.duration_secs", time.Minute))

	setConfig(t, "settings.test.duration_bad", "-5s")
	require.Equal(t, time.Minute, durationSetting("settings.test.duration_bad", time.Minute))
}

func TestIntSetting(t *testing.T) {
	require.Equal(t, 6, intSetting("settings.test.int_missing", 6))

	setConfig(t, "settings.test.int", "12")
	require.Equal(t, 12, intSetting("settings.test.int", 6))

	setConfig(t, "settings.test.int_zero", 0)
	require.Equal(t, 6, intSetting("settings.test.int_zero", 6))
}

func TestMemoryFallbacks(t *testing.T) {
	setConfig(t, "settings.db.redis.addr", "")
	setConfig(t, "settings.db.drafts.addr", "")

	db := newRedisDB()
	require.Nil(t, db)

	c, err := newCache(db, "blog/test/", time.Minute)
	require.NoError(t, err)
	require.IsType(t, &cache.Memory{}, c)

	ctx := context.Background()
	drafts, closeDrafts, err := newDraftService(ctx)
	require.NoError(t, err)
	defer closeDrafts()

	saved, err := drafts.Autosave(ctx, &draft.Draft{Owner: "u1", Key: "new", Title: "t"})
	require.NoError(t, err)
	require.True(t, saved)
}

func TestNewBackendClient(t *testing.T) {
	setConfig(t, "settings.backend.url", "http://localhost:5000")
	setConfig(t, "settings.backend.cookie_name", "sid")

	cli, err := newBackendClient()
	require.NoError(t, err)
	require.Equal(t, "sid", cli.CookieName())
}

func TestNewCommentThrottle(t *testing.T) {
	setConfig(t, "settings.web.comments.per_minute", 1)
	setConfig(t, "settings.web.comments.burst", 1)

	th, err := newCommentThrottle()
	require.NoError(t, err)
	require.True(t, th.Allow("u1"))
	require.False(t, th.Allow("u1"))
	require.True(t, th.Allow("u2"))
}
