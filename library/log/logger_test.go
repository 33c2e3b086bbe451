package log

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetLevel(t *testing.T) {
	t.Cleanup(func() { require.NoError(t, SetLevel("info")) })

	require.NoError(t, SetLevel("debug"))
	require.NoError(t, SetLevel(" ERROR "))
	require.NoError(t, SetLevel(""))
	require.ErrorContains(t, SetLevel("verbose"), "unknown log level")
}
