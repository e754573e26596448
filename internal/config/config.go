package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the immutable run configuration for the installation pipeline.
// It is captured once at startup (optional settings file first, environment
// variables on top) and threaded through every component; nothing re-reads
// the environment afterwards.
type Config struct {
	// Platform overrides the detected operating system token.
	Platform string `yaml:"platform"`
	// Arch overrides the detected CPU architecture token.
	Arch string `yaml:"arch"`
	// ReleaseTag is the pinned release identifier for the primary source.
	ReleaseTag string `yaml:"release_tag"`
	// PrimaryBaseURL is the base URL of the versioned primary release source.
	PrimaryBaseURL string `yaml:"primary_base_url"`
	// SecondaryBaseURL is the base URL of the archive-packaged build source.
	SecondaryBaseURL string `yaml:"secondary_base_url"`
	// InstallDir is the directory receiving the installed executables.
	InstallDir string `yaml:"install_dir"`
	// CacheDir is the shared on-disk download cache location.
	CacheDir string `yaml:"cache_dir"`
	// LogLevel is the minimum log level (debug, info, warn, error, fatal).
	LogLevel string `yaml:"log_level"`
	// DownloadTimeout bounds a single download attempt.
	DownloadTimeout time.Duration `yaml:"download_timeout"`
	// MaxRetries is the number of retry attempts after a failed download attempt.
	MaxRetries int `yaml:"max_retries"`
	// SkipDocs disables the best-effort README/LICENSE companion fetches.
	SkipDocs bool `yaml:"skip_docs"`
}

// Environment variable names recognized by Capture. Proxy settings
// (HTTPS_PROXY, https_proxy, HTTP_PROXY, http_proxy) are honored by the
// downloader transport directly and are not part of this list.
const (
	EnvPlatform         = "FFMPEG_FETCHER_PLATFORM"
	EnvArch             = "FFMPEG_FETCHER_ARCH"
	EnvRelease          = "FFMPEG_FETCHER_RELEASE"
	EnvBaseURL          = "FFMPEG_FETCHER_BASE_URL"
	EnvSecondaryBaseURL = "FFMPEG_FETCHER_SECONDARY_BASE_URL"
	EnvInstallDir       = "FFMPEG_FETCHER_INSTALL_DIR"
	EnvCacheDir         = "FFMPEG_FETCHER_CACHE_DIR"
	EnvLogLevel         = "FFMPEG_FETCHER_LOG_LEVEL"
)

const (
	// DefaultConfigFilename is the default filename for the optional settings file.
	DefaultConfigFilename = "ffmpeg-fetcher-settings.yaml"

	// DefaultReleaseTag is the pinned primary-source release installed by default.
	DefaultReleaseTag = "b7.0"

	// DefaultPrimaryBaseURL hosts directly-executable, gzip-compressed binaries
	// under a pinned release tag.
	DefaultPrimaryBaseURL = "https://github.com/avtools/static-builds/releases/download"

	// DefaultSecondaryBaseURL hosts archive-packaged builds under a floating
	// "latest" tag.
	DefaultSecondaryBaseURL = "https://github.com/BtbN/FFmpeg-Builds/releases/download"

	// DefaultDownloadTimeout bounds a single download attempt.
	DefaultDownloadTimeout = 30 * time.Second

	// DefaultMaxRetries is the default retry budget per download.
	DefaultMaxRetries = 3

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
)

// Capture builds the run configuration without a settings file:
// environment variables over built-in defaults.
func Capture() (*Config, error) {
	return Load("")
}

// Load reads the optional settings file, layers environment variables on top
// and validates the result. An empty path skips the file entirely.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		contents, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return nil, fmt.Errorf("read settings: %w", err)
		}

		if err := yaml.Unmarshal(contents, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal settings: %w", err)
		}
	}

	applyEnvironment(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// applyEnvironment overlays environment variables onto the configuration.
// Set variables always win over file contents.
func applyEnvironment(cfg *Config) {
	overlay := func(dst *string, envVar string) {
		if v := os.Getenv(envVar); v != "" {
			*dst = v
		}
	}

	overlay(&cfg.Platform, EnvPlatform)
	overlay(&cfg.Arch, EnvArch)
	overlay(&cfg.ReleaseTag, EnvRelease)
	overlay(&cfg.PrimaryBaseURL, EnvBaseURL)
	overlay(&cfg.SecondaryBaseURL, EnvSecondaryBaseURL)
	overlay(&cfg.InstallDir, EnvInstallDir)
	overlay(&cfg.CacheDir, EnvCacheDir)
	overlay(&cfg.LogLevel, EnvLogLevel)
}

// Validate checks the provided configuration and fills in defaults for
// everything left unset.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.ReleaseTag == "" {
		cfg.ReleaseTag = DefaultReleaseTag
	}

	if cfg.PrimaryBaseURL == "" {
		cfg.PrimaryBaseURL = DefaultPrimaryBaseURL
	}

	if cfg.SecondaryBaseURL == "" {
		cfg.SecondaryBaseURL = DefaultSecondaryBaseURL
	}

	for _, baseURL := range []string{cfg.PrimaryBaseURL, cfg.SecondaryBaseURL} {
		if _, err := url.ParseRequestURI(baseURL); err != nil {
			return fmt.Errorf("invalid base URL: %w", err)
		}
	}

	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = DefaultDownloadTimeout
	}

	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	if cfg.InstallDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home directory: %w", err)
		}

		cfg.InstallDir = filepath.Join(home, ".ffmpeg-fetcher", "bin")
	}

	if cfg.CacheDir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return fmt.Errorf("resolve cache directory: %w", err)
		}

		cfg.CacheDir = filepath.Join(base, "ffmpeg-fetcher")
	}

	return nil
}
