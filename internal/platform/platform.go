package platform

import (
	"fmt"
	"runtime"

	"github.com/avtools/ffmpeg-fetcher/internal/config"
)

// OS is the platform token used by the primary source naming scheme.
type OS string

// Arch is the architecture token used by the primary source naming scheme.
type Arch string

// Platform tokens. The windows family uses the historical "win32" token
// regardless of pointer width.
const (
	Darwin  OS = "darwin"
	Linux   OS = "linux"
	Windows OS = "win32"
)

// Architecture tokens.
const (
	X64   Arch = "x64"
	Arm64 Arch = "arm64"
)

// Target is the resolved (platform, architecture) pair all downstream
// components key their decisions on.
type Target struct {
	OS   OS
	Arch Arch
}

// String returns the "<os>-<arch>" form used in asset names and logs.
func (t Target) String() string {
	return string(t.OS) + "-" + string(t.Arch)
}

// UnsupportedError reports a platform/architecture pair outside the support
// matrix. It is always produced before any network activity.
type UnsupportedError struct {
	OS   OS
	Arch Arch
}

// Error implements the error interface.
func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("platform %s-%s is not supported", e.OS, e.Arch)
}

// supportMatrix maps each operating system family to its supported
// architectures. Both distribution sources can serve every pair listed here.
//
//nolint:gochecknoglobals // Static read-only table.
var supportMatrix = map[OS][]Arch{
	Darwin:  {X64, Arm64},
	Linux:   {X64, Arm64},
	Windows: {X64, Arm64},
}

// Supported reports whether the pair appears in the support matrix.
func Supported(os OS, arch Arch) bool {
	for _, a := range supportMatrix[os] {
		if a == arch {
			return true
		}
	}

	return false
}

// Resolve determines the target platform and architecture. Configuration
// overrides take precedence over runtime introspection; the result is
// validated against the support matrix before anything else runs.
func Resolve(cfg *config.Config) (Target, error) {
	target := Target{
		OS:   fromGOOS(runtime.GOOS),
		Arch: fromGOARCH(runtime.GOARCH),
	}

	if cfg.Platform != "" {
		target.OS = OS(cfg.Platform)
	}

	if cfg.Arch != "" {
		target.Arch = Arch(cfg.Arch)
	}

	if !Supported(target.OS, target.Arch) {
		return Target{}, &UnsupportedError{OS: target.OS, Arch: target.Arch}
	}

	return target, nil
}

// fromGOOS maps a Go runtime OS identifier to the source naming token.
func fromGOOS(goos string) OS {
	switch goos {
	case "darwin":
		return Darwin
	case "linux":
		return Linux
	case "windows":
		return Windows
	default:
		return OS(goos)
	}
}

// fromGOARCH maps a Go runtime architecture identifier to the source naming token.
func fromGOARCH(goarch string) Arch {
	switch goarch {
	case "amd64":
		return X64
	case "arm64":
		return Arm64
	default:
		return Arch(goarch)
	}
}
