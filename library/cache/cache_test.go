package cache

import (
	"context"
	"testing"
	"time"

	"github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID   string `json:"id"`
	Tags []string
}

func TestMemoryGetSetDel(t *testing.T) {
	t.Parallel()

	c, err := NewMemory(4, time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	var got item
	found, err := c.Get(ctx, "a", &got)
	require.NoError(t, err)
	require.False(t, found)

	in := &item{ID: "a", Tags: []string{"x"}}
	require.NoError(t, c.Set(ctx, "a", in, 0))
	in.Tags[0] = "mutated"

	found, err = c.Get(ctx, "a", &got)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []string{"x"}, got.Tags)

	require.NoError(t, c.Del(ctx, "a"))
	found, err = c.Get(ctx, "a", &got)
	require.NoError(t, err)
	require.False(t, found)
}

func TestMemoryPerEntryTTL(t *testing.T) {
	t.Parallel()

	c, err := NewMemory(4, time.Hour)
	require.NoError(t, err)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", "v", time.Second))

	var got string
	found, err := c.Get(ctx, "k", &got)
	require.NoError(t, err)
	require.True(t, found)

	now = now.Add(2 * time.Second)
	found, err = c.Get(ctx, "k", &got)
	require.NoError(t, err)
	require.False(t, found)
}

func TestMemoryEvictsOldest(t *testing.T) {
	t.Parallel()

	c, err := NewMemory(2, time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", 1, 0))
	require.NoError(t, c.Set(ctx, "b", 2, 0))
	require.NoError(t, c.Set(ctx, "c", 3, 0))

	var n int
	found, _ := c.Get(ctx, "a", &n)
	require.False(t, found)
	found, _ = c.Get(ctx, "c", &n)
	require.True(t, found)
	require.Equal(t, 3, n)
}

func TestGetOrLoad(t *testing.T) {
	t.Parallel()

	c, err := NewMemory(4, time.Minute)
	require.NoError(t, err)
	ctx := context.Background()
	logger := logSDK.Shared.Named("test_cache")

	var loads int
	load := func(context.Context) (*item, error) {
		loads++
		return &item{ID: "post"}, nil
	}

	got, err := GetOrLoad(ctx, c, logger, "post", 0, load)
	require.NoError(t, err)
	require.Equal(t, "post", got.ID)
	got, err = GetOrLoad(ctx, c, logger, "post", 0, load)
	require.NoError(t, err)
	require.Equal(t, "post", got.ID)
	require.Equal(t, 1, loads)

	_, err = GetOrLoad(ctx, c, logger, "broken", 0, func(context.Context) (*item, error) {
		return nil, errors.New("backend down")
	})
	require.ErrorContains(t, err, "backend down")
	var miss item
	found, _ := c.Get(ctx, "broken", &miss)
	require.False(t, found)
}
