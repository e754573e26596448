package downloader

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/avtools/ffmpeg-fetcher/internal/cache"
	"github.com/avtools/ffmpeg-fetcher/internal/config"
	"github.com/avtools/ffmpeg-fetcher/internal/logger"
)

// TotalUnknown is passed to a Progress callback when the payload size is not
// known, matching http.Response.ContentLength semantics.
const TotalUnknown int64 = -1

const (
	// maxRedirects bounds redirect following per request.
	maxRedirects = 3

	// defaultRetryDelay is the base delay between attempts; it grows
	// linearly with the attempt number.
	defaultRetryDelay = time.Second

	userAgent = "ffmpeg-fetcher/1.0 (+https://github.com/avtools/ffmpeg-fetcher)"
)

var errTooManyRedirects = errors.New("too many redirects")

// Progress receives incremental byte counts as a payload arrives. total is
// TotalUnknown when no content length is available. Cache hits report a
// single (0, TotalUnknown) call: no bytes travel, no percentage can be shown.
type Progress func(delta, total int64)

// Request describes a single fetch; it is consumed once.
type Request struct {
	// URL is the payload location.
	URL string
	// Dest is the local file path receiving the payload.
	Dest string
	// GzipEncoded marks payloads that arrive gzip-compressed and must be
	// decoded while writing, unless the transport already decoded them.
	GzipEncoded bool
}

// NetworkError is the terminal failure of a fetch. StatusCode is zero when
// no response was received at all.
type NetworkError struct {
	URL        string
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("download %s: HTTP %d: %v", e.URL, e.StatusCode, e.Err)
	}

	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Downloader performs cached, retrying HTTP retrievals. Proxy configuration
// is taken from the standard proxy environment variables (both upper and
// lower case variants) through the transport.
type Downloader struct {
	store      cache.Store
	client     *http.Client
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
}

// Option customizes a Downloader.
type Option func(*Downloader)

// WithTimeout bounds a single download attempt.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Downloader) {
		d.timeout = timeout
	}
}

// WithMaxRetries sets the number of retry attempts after the first failure.
func WithMaxRetries(retries int) Option {
	return func(d *Downloader) {
		d.maxRetries = retries
	}
}

// WithRetryDelay sets the base delay between attempts.
func WithRetryDelay(delay time.Duration) Option {
	return func(d *Downloader) {
		d.retryDelay = delay
	}
}

// New creates a Downloader backed by the provided cache store.
func New(store cache.Store, opts ...Option) *Downloader {
	d := &Downloader{
		store:      store,
		timeout:    config.DefaultDownloadTimeout,
		maxRetries: config.DefaultMaxRetries,
		retryDelay: defaultRetryDelay,
	}

	for _, opt := range opts {
		opt(d)
	}

	d.client = &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
		},
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errTooManyRedirects
			}

			return nil
		},
	}

	return d
}

// Fetch retrieves the payload into req.Dest. The shared cache is consulted
// first using the normalized URL; a hit skips network transfer entirely.
// Transient failures are retried up to the configured budget; the terminal
// error is a *NetworkError carrying the response URL and status when one
// was received.
func (d *Downloader) Fetch(ctx context.Context, req Request, onProgress Progress) error {
	key := d.store.DeriveKey(req.URL)

	if cached, ok := d.store.Get(key); ok {
		logger.DebugKV(ctx, "Cache hit", "url", req.URL)

		if err := copyFile(cached, req.Dest); err != nil {
			return fmt.Errorf("restore cached payload: %w", err)
		}

		if onProgress != nil {
			onProgress(0, TotalUnknown)
		}

		return nil
	}

	var lastErr error

	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		if attempt > 0 {
			logger.Warnf(ctx, "Retrying download (%d/%d): %v", attempt, d.maxRetries, lastErr)

			select {
			case <-time.After(d.retryDelay * time.Duration(attempt)):
			case <-ctx.Done():
				return fmt.Errorf("download canceled while waiting to retry: %w", ctx.Err())
			}
		}

		err := d.attempt(ctx, key, req, onProgress)
		if err == nil {
			return nil
		}

		lastErr = err

		// A canceled parent context makes further attempts pointless.
		if ctx.Err() != nil {
			break
		}
	}

	return fmt.Errorf("download failed after %d attempts: %w", d.maxRetries+1, lastErr)
}

// attempt performs one download attempt and populates the cache on success.
func (d *Downloader) attempt(ctx context.Context, key string, req Request, onProgress Progress) error {
	attemptCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, req.URL, http.NoBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	httpReq.Header.Set("User-Agent", userAgent)

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return &NetworkError{URL: req.URL, Err: err}
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	finalURL := resp.Request.URL.String()

	if resp.StatusCode != http.StatusOK {
		return &NetworkError{
			URL:        finalURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	// Progress counts raw network bytes so deltas line up with the
	// reported content length even for compressed payloads.
	var src io.Reader = &progressReader{
		r:          resp.Body,
		total:      resp.ContentLength,
		onProgress: onProgress,
	}

	if req.GzipEncoded && !resp.Uncompressed {
		gz, gzErr := gzip.NewReader(src)
		if gzErr != nil {
			return &NetworkError{
				URL:        finalURL,
				StatusCode: resp.StatusCode,
				Err:        fmt.Errorf("decode gzip payload: %w", gzErr),
			}
		}

		defer func() {
			_ = gz.Close()
		}()

		src = gz
	}

	if err = writeToFile(req.Dest, src); err != nil {
		return &NetworkError{URL: finalURL, StatusCode: resp.StatusCode, Err: err}
	}

	d.populateCache(ctx, key, req, resp.Header.Get("Content-Type"))

	return nil
}

// populateCache stores the decoded payload. Cache write failures only cost
// future hits, so they are logged and swallowed.
func (d *Downloader) populateCache(ctx context.Context, key string, req Request, contentType string) {
	payload, err := os.Open(req.Dest)
	if err != nil {
		logger.Warnf(ctx, "Unable to reopen payload for caching: %v", err)

		return
	}

	defer func() {
		_ = payload.Close()
	}()

	err = d.store.Put(key, payload, cache.Metadata{
		URL:         req.URL,
		ContentType: contentType,
	})
	if err != nil {
		logger.Warnf(ctx, "Unable to populate download cache: %v", err)
	}
}

// writeToFile streams src into dest via a partial file renamed into place.
func writeToFile(dest string, src io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}

	partial := dest + ".partial"

	out, err := os.Create(partial)
	if err != nil {
		return fmt.Errorf("create destination file: %w", err)
	}

	if _, err = io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(partial)

		return fmt.Errorf("write payload: %w", err)
	}

	if err = out.Close(); err != nil {
		os.Remove(partial)

		return fmt.Errorf("close destination file: %w", err)
	}

	if err = os.Rename(partial, dest); err != nil {
		os.Remove(partial)

		return fmt.Errorf("finalize destination file: %w", err)
	}

	return nil
}

// copyFile duplicates a cached payload to the destination path.
func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}

	defer func() {
		_ = in.Close()
	}()

	return writeToFile(dest, in)
}

// progressReader reports incremental byte counts while reading.
type progressReader struct {
	r          io.Reader
	total      int64
	onProgress Progress
}

// Read implements io.Reader.
func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 && p.onProgress != nil {
		p.onProgress(int64(n), p.total)
	}

	return n, err
}
