package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestFull ensures the full version string carries all three build fields.
func TestFull(t *testing.T) {
	t.Parallel()

	full := Full()
	require.True(t, strings.HasPrefix(full, "ffmpeg-fetcher "))
	require.Contains(t, full, "commit "+Commit)
	require.Contains(t, full, "built "+BuildTime)
	require.Contains(t, full, Short())
}
