package source

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avtools/ffmpeg-fetcher/internal/config"
	"github.com/avtools/ffmpeg-fetcher/internal/platform"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := &config.Config{
		ReleaseTag:       "b7.0",
		PrimaryBaseURL:   "https://primary.example/releases/download",
		SecondaryBaseURL: "https://secondary.example/releases/download",
	}
	require.NoError(t, config.Validate(cfg))

	return cfg
}

// TestSelectProberAlwaysPrimary checks the prober resolves to the primary
// source with a direct gzip payload on every family.
func TestSelectProberAlwaysPrimary(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)

	for _, os := range []platform.OS{platform.Darwin, platform.Linux, platform.Windows} {
		d, err := Select(Prober, platform.Target{OS: os, Arch: platform.X64}, cfg)
		require.NoError(t, err)
		require.Equal(t, FormatNone, d.Format)
		require.False(t, d.RequiresExtraction)
		require.True(t, d.GzipEncoded)
		require.Equal(t,
			"https://primary.example/releases/download/b7.0/ffprobe-"+string(os)+"-x64.gz",
			d.URL)
	}
}

// TestSelectTranscoderDarwin checks the darwin transcoder stays on the primary source.
func TestSelectTranscoderDarwin(t *testing.T) {
	t.Parallel()

	d, err := Select(Transcoder, platform.Target{OS: platform.Darwin, Arch: platform.Arm64}, testConfig(t))
	require.NoError(t, err)
	require.Equal(t, FormatNone, d.Format)
	require.False(t, d.RequiresExtraction)
	require.Equal(t,
		"https://primary.example/releases/download/b7.0/ffmpeg-darwin-arm64.gz",
		d.URL)
}

// TestSelectTranscoderWindowsZip checks the windows transcoder resolves to the
// secondary zip archive with its own naming tokens.
func TestSelectTranscoderWindowsZip(t *testing.T) {
	t.Parallel()

	d, err := Select(Transcoder, platform.Target{OS: platform.Windows, Arch: platform.X64}, testConfig(t))
	require.NoError(t, err)
	require.Equal(t, FormatZip, d.Format)
	require.True(t, d.RequiresExtraction)
	require.False(t, d.GzipEncoded)
	require.Equal(t,
		"https://secondary.example/releases/download/latest/ffmpeg-master-latest-win64-gpl.zip",
		d.URL)
	require.Equal(t, "bin/ffmpeg.exe", d.ExtractedPath)
}

// TestSelectTranscoderLinuxTarXz checks the linux transcoder resolves to the
// secondary tar.xz archive restricted to the single wanted entry.
func TestSelectTranscoderLinuxTarXz(t *testing.T) {
	t.Parallel()

	d, err := Select(Transcoder, platform.Target{OS: platform.Linux, Arch: platform.Arm64}, testConfig(t))
	require.NoError(t, err)
	require.Equal(t, FormatTarXz, d.Format)
	require.True(t, d.RequiresExtraction)
	require.Equal(t,
		"https://secondary.example/releases/download/latest/ffmpeg-master-latest-linuxarm64-gpl.tar.xz",
		d.URL)
	require.Equal(t, "ffmpeg-master-latest-linuxarm64-gpl/bin/ffmpeg", d.WantedEntry)
	require.Equal(t, 2, d.StripComponents)
	require.Equal(t, "ffmpeg", d.ExtractedPath)
}

// TestSelectUnsupportedFailsBeforeURL asserts unknown pairs fail with the
// typed platform error and produce no plan at all.
func TestSelectUnsupportedFailsBeforeURL(t *testing.T) {
	t.Parallel()

	d, err := Select(Transcoder, platform.Target{OS: "plan9", Arch: platform.X64}, testConfig(t))
	require.Nil(t, d)

	var unsupported *platform.UnsupportedError
	require.ErrorAs(t, err, &unsupported)
}

// TestDocURLs checks companion documentation locations on the primary source.
func TestDocURLs(t *testing.T) {
	t.Parallel()

	readme, license := DocURLs(Transcoder, platform.Target{OS: platform.Linux, Arch: platform.X64}, testConfig(t))
	require.Equal(t, "https://primary.example/releases/download/b7.0/ffmpeg-linux-x64.README", readme)
	require.Equal(t, "https://primary.example/releases/download/b7.0/ffmpeg-linux-x64.LICENSE", license)
}
