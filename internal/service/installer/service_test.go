package installer

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/avtools/ffmpeg-fetcher/internal/config"
)

func zipBytes(t *testing.T, entries map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer

	w := zip.NewWriter(&buf)
	for name, content := range entries {
		entry, err := w.Create(name)
		require.NoError(t, err)

		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}

	require.NoError(t, w.Close())

	return buf.Bytes()
}

func gzipBytes(t *testing.T, content string) []byte {
	t.Helper()

	var buf bytes.Buffer

	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	return buf.Bytes()
}

// primaryServer serves gzip payloads the way the primary release host does
// and records every request path in order.
type primaryServer struct {
	*httptest.Server

	mu        sync.Mutex
	requests  []string
	payloads  map[string][]byte
	onRequest func(path string)
}

func newPrimaryServer(t *testing.T) *primaryServer {
	t.Helper()

	s := &primaryServer{payloads: make(map[string][]byte)}

	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r.URL.Path)
		payload, ok := s.payloads[r.URL.Path]
		hook := s.onRequest
		s.mu.Unlock()

		if hook != nil {
			hook(r.URL.Path)
		}

		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		_, _ = w.Write(payload)
	}))

	t.Cleanup(s.Close)

	return s
}

func (s *primaryServer) serve(path string, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.payloads[path] = payload
}

func (s *primaryServer) requestPaths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.requests...)
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()

	return &config.Config{
		Platform:         "darwin",
		Arch:             "x64",
		ReleaseTag:       "b7.0",
		PrimaryBaseURL:   baseURL,
		SecondaryBaseURL: baseURL,
		InstallDir:       filepath.Join(t.TempDir(), "bin"),
		CacheDir:         t.TempDir(),
		DownloadTimeout:  5 * time.Second,
		MaxRetries:       0,
	}
}

func TestRunInstallsBothBinaries(t *testing.T) {
	t.Parallel()

	server := newPrimaryServer(t)
	cfg := testConfig(t, server.URL)

	server.serve("/b7.0/ffmpeg-darwin-x64.gz", gzipBytes(t, "transcoder payload"))
	server.serve("/b7.0/ffprobe-darwin-x64.gz", gzipBytes(t, "prober payload"))

	err := RunWithConfig(context.Background(), cfg, &Options{SkipDocs: true, Quiet: true})
	require.NoError(t, err)

	transcoder := filepath.Join(cfg.InstallDir, "ffmpeg")
	prober := filepath.Join(cfg.InstallDir, "ffprobe")

	content, err := os.ReadFile(transcoder)
	require.NoError(t, err)
	require.Equal(t, "transcoder payload", string(content))

	content, err = os.ReadFile(prober)
	require.NoError(t, err)
	require.Equal(t, "prober payload", string(content))

	if runtime.GOOS != "windows" {
		info, statErr := os.Stat(transcoder)
		require.NoError(t, statErr)
		require.NotZero(t, info.Mode()&0o111)
	}

	// The transcoder is fetched and installed before the prober is touched.
	require.Equal(t, []string{"/b7.0/ffmpeg-darwin-x64.gz", "/b7.0/ffprobe-darwin-x64.gz"}, server.requestPaths())
}

// TestRunInstallsArchivedTranscoder drives the archive branch of the
// pipeline: on the windows family the transcoder arrives as a zip that must
// be staged, extracted and only then installed.
func TestRunInstallsArchivedTranscoder(t *testing.T) {
	t.Parallel()

	server := newPrimaryServer(t)
	cfg := testConfig(t, server.URL)
	cfg.Platform = "win32"

	archive := zipBytes(t, map[string]string{
		"ffmpeg-master-latest-win64-gpl/bin/ffmpeg.exe": "archived transcoder",
		"ffmpeg-master-latest-win64-gpl/doc/readme.txt": "irrelevant",
	})

	server.serve("/latest/ffmpeg-master-latest-win64-gpl.zip", archive)
	server.serve("/b7.0/ffprobe-win32-x64.gz", gzipBytes(t, "prober payload"))

	err := RunWithConfig(context.Background(), cfg, &Options{SkipDocs: true, Quiet: true})
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(cfg.InstallDir, "ffmpeg.exe"))
	require.NoError(t, err)
	require.Equal(t, "archived transcoder", string(content))

	content, err = os.ReadFile(filepath.Join(cfg.InstallDir, "ffprobe.exe"))
	require.NoError(t, err)
	require.Equal(t, "prober payload", string(content))

	if runtime.GOOS != "windows" {
		info, statErr := os.Stat(filepath.Join(cfg.InstallDir, "ffmpeg.exe"))
		require.NoError(t, statErr)
		require.Zero(t, info.Mode()&0o111)
	}

	require.Equal(t,
		[]string{"/latest/ffmpeg-master-latest-win64-gpl.zip", "/b7.0/ffprobe-win32-x64.gz"},
		server.requestPaths())
}

func TestRunTranscoderInstalledBeforeProberDownload(t *testing.T) {
	t.Parallel()

	server := newPrimaryServer(t)
	cfg := testConfig(t, server.URL)
	transcoder := filepath.Join(cfg.InstallDir, "ffmpeg")

	var transcoderPresent bool

	server.onRequest = func(path string) {
		if filepath.Base(path) == "ffprobe-darwin-x64.gz" {
			_, statErr := os.Stat(transcoder)
			transcoderPresent = statErr == nil
		}
	}

	server.serve("/b7.0/ffmpeg-darwin-x64.gz", gzipBytes(t, "transcoder payload"))
	server.serve("/b7.0/ffprobe-darwin-x64.gz", gzipBytes(t, "prober payload"))

	err := RunWithConfig(context.Background(), cfg, &Options{SkipDocs: true, Quiet: true})
	require.NoError(t, err)
	require.True(t, transcoderPresent)
}

func TestRunSkipsWhenAlreadyInstalled(t *testing.T) {
	t.Parallel()

	server := newPrimaryServer(t)
	cfg := testConfig(t, server.URL)

	require.NoError(t, os.MkdirAll(cfg.InstallDir, 0o755))

	for _, name := range []string{"ffmpeg", "ffprobe"} {
		require.NoError(t, os.WriteFile(filepath.Join(cfg.InstallDir, name), []byte("existing"), 0o755))
	}

	err := RunWithConfig(context.Background(), cfg, &Options{SkipDocs: true, Quiet: true})
	require.NoError(t, err)
	require.Empty(t, server.requestPaths())
}

func TestRunFetchesDocumentationCompanions(t *testing.T) {
	t.Parallel()

	server := newPrimaryServer(t)
	cfg := testConfig(t, server.URL)

	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		server.serve("/b7.0/"+bin+"-darwin-x64.gz", gzipBytes(t, bin))
		server.serve("/b7.0/"+bin+"-darwin-x64.README", []byte(bin+" readme"))
		server.serve("/b7.0/"+bin+"-darwin-x64.LICENSE", []byte(bin+" license"))
	}

	err := RunWithConfig(context.Background(), cfg, &Options{Quiet: true})
	require.NoError(t, err)

	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		content, readErr := os.ReadFile(filepath.Join(cfg.InstallDir, bin+".README"))
		require.NoError(t, readErr)
		require.Equal(t, bin+" readme", string(content))

		content, readErr = os.ReadFile(filepath.Join(cfg.InstallDir, bin+".LICENSE"))
		require.NoError(t, readErr)
		require.Equal(t, bin+" license", string(content))
	}
}

func TestRunToleratesMissingDocumentation(t *testing.T) {
	t.Parallel()

	server := newPrimaryServer(t)
	cfg := testConfig(t, server.URL)

	server.serve("/b7.0/ffmpeg-darwin-x64.gz", gzipBytes(t, "transcoder payload"))
	server.serve("/b7.0/ffprobe-darwin-x64.gz", gzipBytes(t, "prober payload"))

	err := RunWithConfig(context.Background(), cfg, &Options{Quiet: true})
	require.NoError(t, err)

	require.NoFileExists(t, filepath.Join(cfg.InstallDir, "ffmpeg.README"))
	require.FileExists(t, filepath.Join(cfg.InstallDir, "ffmpeg"))
}

func TestRunFailsWhenPayloadMissing(t *testing.T) {
	t.Parallel()

	server := newPrimaryServer(t)
	cfg := testConfig(t, server.URL)

	err := RunWithConfig(context.Background(), cfg, &Options{SkipDocs: true, Quiet: true})
	require.Error(t, err)
	require.NoFileExists(t, filepath.Join(cfg.InstallDir, "ffmpeg"))
}

func TestRunFailsOnUnsupportedPlatform(t *testing.T) {
	t.Parallel()

	server := newPrimaryServer(t)
	cfg := testConfig(t, server.URL)
	cfg.Arch = "mips"

	err := RunWithConfig(context.Background(), cfg, &Options{SkipDocs: true, Quiet: true})
	require.Error(t, err)
	require.Empty(t, server.requestPaths())
}

func TestRunRefusesConcurrentInstaller(t *testing.T) {
	t.Parallel()

	server := newPrimaryServer(t)
	cfg := testConfig(t, server.URL)

	require.NoError(t, os.WriteFile(markerPath(cfg.CacheDir), nil, 0o644))

	err := RunWithConfig(context.Background(), cfg, &Options{SkipDocs: true, Quiet: true})
	require.ErrorIs(t, err, errInstallerAlreadyRunning)

	// The marker belongs to the other run and must survive.
	require.FileExists(t, markerPath(cfg.CacheDir))
}

func TestRunRemovesMarkerAndScratchDirectory(t *testing.T) {
	t.Parallel()

	server := newPrimaryServer(t)
	cfg := testConfig(t, server.URL)

	server.serve("/b7.0/ffmpeg-darwin-x64.gz", gzipBytes(t, "transcoder payload"))
	server.serve("/b7.0/ffprobe-darwin-x64.gz", gzipBytes(t, "prober payload"))

	err := RunWithConfig(context.Background(), cfg, &Options{SkipDocs: true, Quiet: true})
	require.NoError(t, err)
	require.NoFileExists(t, markerPath(cfg.CacheDir))
}
