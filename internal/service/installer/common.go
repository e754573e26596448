package installer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/avtools/ffmpeg-fetcher/internal/logger"
)

const (
	// MarkerFilename marks that an installer run is in flight to avoid
	// parallel execution against the shared cache and temp directories.
	MarkerFilename = "ffmpeg-fetcher-install-marker.bin"

	// markerLifetime is the period after which a marker with no matching
	// live process is considered stale and recovered.
	markerLifetime = 30 * time.Second

	// tempDirPattern namespaces the run's scratch directory; the timestamp
	// qualifies it uniquely per run.
	tempDirPattern = "ffmpeg-fetcher-20060102-150405"

	// executableMode is applied to installed binaries on targets that honor
	// execute bits; regularMode covers the windows family, which ignores
	// mode semantics entirely.
	executableMode os.FileMode = 0o755
	regularMode    os.FileMode = 0o644

	// Companion documentation suffixes placed next to each installed binary.
	readmeSuffix  = ".README"
	licenseSuffix = ".LICENSE"

	// baseExecutableName is this installer's own process name, used by the
	// single-instance guard.
	baseExecutableName = "ffmpeg-fetcher"
)

var errInstallerAlreadyRunning = errors.New("another installer run is in progress")

// markerPath places the run marker inside the cache directory, next to the
// shared state it guards.
func markerPath(cacheDir string) string {
	return filepath.Join(cacheDir, MarkerFilename)
}

// isInstallerRunningNow checks presence of a marker file and attempts
// recovery when it looks stale and no other installer process is alive.
func isInstallerRunningNow(ctx context.Context, marker string) bool {
	info, err := os.Stat(marker)
	if err == nil {
		if time.Since(info.ModTime()) <= markerLifetime {
			return true
		}

		logger.Info(ctx, "The install marker is stale, attempting recovery")

		if anotherInstallerAlive() {
			return true
		}

		if err = os.Remove(marker); err != nil {
			return true
		}

		return false
	}

	if errors.Is(err, os.ErrNotExist) {
		return false
	}

	logger.Infof(ctx, "Unable to read install marker: %v", err)

	return false
}

// anotherInstallerAlive scans the process table for a second installer.
// When the table cannot be read the guard stays conservative.
func anotherInstallerAlive() bool {
	processList, err := ps.Processes()
	if err != nil {
		return true
	}

	thisProcessID := os.Getpid()
	wanted := installerExecutableName()

	for _, process := range processList {
		if process.Pid() == thisProcessID {
			continue
		}

		if process.Executable() == wanted {
			return true
		}
	}

	return false
}

// installerExecutableName returns this installer's process name for the host OS.
func installerExecutableName() string {
	if runtime.GOOS == "windows" {
		return baseExecutableName + ".exe"
	}

	return baseExecutableName
}

// isRegularFile reports whether path exists as a regular file.
func isRegularFile(path string) bool {
	info, err := os.Stat(path)

	return err == nil && info.Mode().IsRegular()
}
