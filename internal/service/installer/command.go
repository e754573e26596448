package installer

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/avtools/ffmpeg-fetcher/internal/cache"
	"github.com/avtools/ffmpeg-fetcher/internal/config"
	"github.com/avtools/ffmpeg-fetcher/internal/downloader"
	"github.com/avtools/ffmpeg-fetcher/internal/extract"
	"github.com/avtools/ffmpeg-fetcher/internal/logger"
	"github.com/avtools/ffmpeg-fetcher/internal/platform"
	"github.com/avtools/ffmpeg-fetcher/internal/source"
)

// Options are inputs accepted by the installer entry point.
type Options struct {
	// ConfigPath is the optional path to a settings YAML file.
	ConfigPath string
	// LogLevel overrides the configured log level when set.
	LogLevel string
	// SkipDocs disables the best-effort README/LICENSE companion fetches.
	SkipDocs bool
	// Quiet suppresses terminal progress rendering.
	Quiet bool
}

// step enumerates the pipeline states. Any required step can fail the run;
// documentation fetches and cleanup cannot.
type step int

const (
	stepCheckExisting step = iota
	stepResolve
	stepDownloadPrimary
	stepExtractPrimary
	stepInstallPrimary
	stepPrimaryDocs
	stepDownloadSecondary
	stepInstallSecondary
	stepSecondaryDocs
	stepDone
)

// runner holds the state for a single installation run.
// It is intentionally unexported. Call Run(ctx, Options) from callers.
type runner struct {
	opts     *Options
	cfg      *config.Config
	target   platform.Target                // Resolved platform/architecture pair.
	installs map[source.Binary]platform.InstallTarget
	plans    map[source.Binary]*source.Download
	payloads map[source.Binary]string // Binary -> staged executable path in tempDir.
	dl       *downloader.Downloader
	tempDir  string
	marker   string
	ownsMark bool
}

// Run executes the installation pipeline and is the public entry point for
// the CLI. It loads configuration from the environment and optional settings
// file before delegating to RunWithConfig.
func Run(ctx context.Context, opts *Options) error {
	var (
		cfg *config.Config
		err error
	)

	if opts.ConfigPath == "" {
		cfg, err = config.Capture()
	} else {
		cfg, err = config.Load(opts.ConfigPath)
	}

	if err != nil {
		return err
	}

	return RunWithConfig(ctx, cfg, opts)
}

// RunWithConfig executes the installation pipeline against a prepared
// configuration.
func RunWithConfig(ctx context.Context, cfg *config.Config, opts *Options) error {
	ctx = logger.WithName(ctx, baseExecutableName)

	applyLogLevel(cfg, opts)

	r, err := newRunner(ctx, cfg, opts)
	if err != nil {
		return err
	}

	defer r.cleanup(ctx)

	if err = r.run(ctx); err != nil {
		logger.ErrorKV(ctx, "Installation failed", "error", err)
		return err
	}

	logger.Info(ctx, "Installation completed")

	return nil
}

// applyLogLevel applies the configured level, with the CLI flag winning.
func applyLogLevel(cfg *config.Config, opts *Options) {
	effective := cfg.LogLevel
	if opts.LogLevel != "" {
		effective = opts.LogLevel
	}

	if effective == "" {
		return
	}

	if level, ok := logger.ParseLogLevel(effective); ok {
		logger.SetLevel(level)
	}
}

// newRunner resolves the target platform, wires the downloader to the shared
// cache and claims the single-instance marker. Platform resolution failures
// surface here, before any network activity.
func newRunner(ctx context.Context, cfg *config.Config, opts *Options) (*runner, error) {
	r := &runner{
		opts:     opts,
		cfg:      cfg,
		installs: make(map[source.Binary]platform.InstallTarget, 2),
		plans:    make(map[source.Binary]*source.Download, 2),
		payloads: make(map[source.Binary]string, 2),
	}

	target, err := platform.Resolve(cfg)
	if err != nil {
		return nil, err
	}

	r.target = target

	for _, install := range platform.InstallTargets(cfg.InstallDir, target.OS) {
		r.installs[source.Binary(install.Name)] = install
	}

	store, err := cache.NewFileStore(cfg.CacheDir)
	if err != nil {
		return nil, err
	}

	r.dl = downloader.New(store,
		downloader.WithTimeout(cfg.DownloadTimeout),
		downloader.WithMaxRetries(cfg.MaxRetries),
	)

	r.marker = markerPath(cfg.CacheDir)
	if isInstallerRunningNow(ctx, r.marker) {
		return r, errInstallerAlreadyRunning
	}

	marker, err := os.Create(r.marker)
	if err != nil {
		return r, fmt.Errorf("create install marker: %w", err)
	}

	if err = marker.Close(); err != nil {
		return r, fmt.Errorf("close install marker: %w", err)
	}

	r.ownsMark = true

	return r, nil
}

// run drives the state machine to completion. The first failing required
// step terminates the pipeline.
func (r *runner) run(ctx context.Context) error {
	logger.InfoKV(ctx, "Starting installation", "platform", r.target.String())

	for current := stepCheckExisting; current != stepDone; {
		next, err := r.advance(ctx, current)
		if err != nil {
			return err
		}

		current = next
	}

	return nil
}

// advance executes one step and returns the next one.
func (r *runner) advance(ctx context.Context, current step) (step, error) {
	switch current {
	case stepCheckExisting:
		if r.alreadyInstalled() {
			logger.Info(ctx, "Both binaries are already installed, nothing to do")
			return stepDone, nil
		}

		return stepResolve, nil

	case stepResolve:
		if err := r.resolve(ctx); err != nil {
			return 0, err
		}

		return stepDownloadPrimary, nil

	case stepDownloadPrimary:
		if err := r.download(ctx, source.Transcoder); err != nil {
			return 0, err
		}

		if r.plans[source.Transcoder].RequiresExtraction {
			return stepExtractPrimary, nil
		}

		return stepInstallPrimary, nil

	case stepExtractPrimary:
		if err := r.extract(ctx, source.Transcoder); err != nil {
			return 0, err
		}

		return stepInstallPrimary, nil

	case stepInstallPrimary:
		if err := r.install(ctx, source.Transcoder); err != nil {
			return 0, err
		}

		return stepPrimaryDocs, nil

	case stepPrimaryDocs:
		r.fetchDocs(ctx, source.Transcoder)

		return stepDownloadSecondary, nil

	case stepDownloadSecondary:
		if err := r.download(ctx, source.Prober); err != nil {
			return 0, err
		}

		return stepInstallSecondary, nil

	case stepInstallSecondary:
		if err := r.install(ctx, source.Prober); err != nil {
			return 0, err
		}

		return stepSecondaryDocs, nil

	case stepSecondaryDocs:
		r.fetchDocs(ctx, source.Prober)

		return stepDone, nil

	default:
		return 0, fmt.Errorf("unknown pipeline step %d", current)
	}
}

// alreadyInstalled reports whether both final paths exist as regular files.
func (r *runner) alreadyInstalled() bool {
	for _, install := range r.installs {
		if !isRegularFile(install.Path) {
			return false
		}
	}

	return true
}

// resolve runs source selection for both binaries and creates the run's
// scratch directory.
func (r *runner) resolve(ctx context.Context) error {
	for _, bin := range []source.Binary{source.Transcoder, source.Prober} {
		plan, err := source.Select(bin, r.target, r.cfg)
		if err != nil {
			return err
		}

		r.plans[bin] = plan
		logger.DebugKV(ctx, "Resolved source", "binary", bin, "url", plan.URL, "format", plan.Format)
	}

	tempDir, err := os.MkdirTemp("", time.Now().Format(tempDirPattern)+"-")
	if err != nil {
		return fmt.Errorf("create temporary directory: %w", err)
	}

	r.tempDir = tempDir

	return nil
}

// download fetches a binary's payload into the scratch directory. Archives
// keep their remote names; direct payloads are staged under the binary name.
func (r *runner) download(ctx context.Context, bin source.Binary) error {
	plan := r.plans[bin]

	dest := filepath.Join(r.tempDir, stagedName(bin, plan, r.target.OS))
	logger.InfoKV(ctx, "Downloading", "binary", bin, "url", plan.URL)

	onProgress, finish := r.progressFor(string(bin))
	defer finish()

	err := r.dl.Fetch(ctx, downloader.Request{
		URL:         plan.URL,
		Dest:        dest,
		GzipEncoded: plan.GzipEncoded,
	}, onProgress)
	if err != nil {
		return err
	}

	r.payloads[bin] = dest

	return nil
}

// stagedName picks the scratch filename for a download.
func stagedName(bin source.Binary, plan *source.Download, targetOS platform.OS) string {
	if plan.RequiresExtraction {
		if u, err := url.Parse(plan.URL); err == nil {
			return path.Base(u.Path)
		}
	}

	return string(bin) + platform.ExecutableExtension(targetOS)
}

// extract unpacks the downloaded archive and points the staged payload at
// the executable inside it.
func (r *runner) extract(ctx context.Context, bin source.Binary) error {
	plan := r.plans[bin]

	extractor, err := extract.ForDownload(plan)
	if err != nil {
		return err
	}

	outDir := filepath.Join(r.tempDir, "extracted-"+string(bin))
	if err = os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create extraction directory: %w", err)
	}

	logger.InfoKV(ctx, "Extracting", "binary", bin, "archive", r.payloads[bin])

	if err = extractor.Extract(ctx, r.payloads[bin], outDir); err != nil {
		return err
	}

	executable := filepath.Join(outDir, filepath.FromSlash(plan.ExtractedPath))
	if !isRegularFile(executable) {
		return fmt.Errorf("archive did not contain expected executable %s", plan.ExtractedPath)
	}

	r.payloads[bin] = executable

	return nil
}

// install moves the staged executable into its final path and applies
// executable permission bits on non-Windows targets.
func (r *runner) install(ctx context.Context, bin source.Binary) error {
	install := r.installs[bin]

	logger.InfoKV(ctx, "Installing", "binary", bin, "path", install.Path)

	if err := os.MkdirAll(filepath.Dir(install.Path), 0o755); err != nil {
		return fmt.Errorf("create install directory: %w", err)
	}

	if _, err := os.Stat(install.Path); err != nil && os.IsNotExist(err) {
		placeholder, createErr := os.Create(install.Path)
		if createErr != nil {
			return fmt.Errorf("create install target: %w", createErr)
		}

		if createErr = placeholder.Close(); createErr != nil {
			return fmt.Errorf("close install target: %w", createErr)
		}
	}

	payload, err := os.Open(r.payloads[bin])
	if err != nil {
		return fmt.Errorf("open staged payload: %w", err)
	}

	defer func() {
		_ = payload.Close()
	}()

	mode := regularMode
	if install.Executable {
		mode = executableMode
	}

	err = goupdate.Apply(payload, goupdate.Options{
		TargetPath: install.Path,
		TargetMode: mode,
	})
	if err != nil {
		return fmt.Errorf("install %s: %w", bin, err)
	}

	oldPath := install.Path + ".old"
	if _, err = os.Stat(oldPath); err == nil {
		_ = os.Remove(oldPath)
	}

	return nil
}

// fetchDocs downloads README/LICENSE companions next to an installed binary.
// The two fetches run concurrently; failures are warnings and never fail the
// pipeline.
func (r *runner) fetchDocs(ctx context.Context, bin source.Binary) {
	if r.opts.SkipDocs || r.cfg.SkipDocs {
		return
	}

	install := r.installs[bin]
	readmeURL, licenseURL := source.DocURLs(bin, r.target, r.cfg)

	companions := []downloader.Request{
		{URL: readmeURL, Dest: install.Path + readmeSuffix},
		{URL: licenseURL, Dest: install.Path + licenseSuffix},
	}

	var wg sync.WaitGroup

	for _, companion := range companions {
		wg.Add(1)

		go func(req downloader.Request) {
			defer wg.Done()

			if err := r.dl.Fetch(ctx, req, nil); err != nil {
				logger.Warnf(ctx, "Skipping companion %s: %v", req.URL, err)
			}
		}(companion)
	}

	wg.Wait()
}

// cleanup removes the run's scratch directory and the install marker. It is
// always attempted, even after failures, and its own failures only warn.
func (r *runner) cleanup(ctx context.Context) {
	if r.tempDir != "" {
		if err := os.RemoveAll(r.tempDir); err != nil {
			logger.Warnf(ctx, "Unable to remove temporary directory %s: %v", r.tempDir, err)
		}
	}

	if r.ownsMark {
		if err := os.Remove(r.marker); err != nil && !os.IsNotExist(err) {
			logger.Warnf(ctx, "Unable to remove install marker: %v", err)
		}
	}

	logger.Debug(ctx, "Cleanup finished")
}
