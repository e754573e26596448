package platform

import "path/filepath"

// Binary names installed by the pipeline.
const (
	TranscoderName = "ffmpeg"
	ProberName     = "ffprobe"
)

// InstallTarget identifies where a binary must end up. Built once per run
// from the support matrix and never mutated afterwards.
type InstallTarget struct {
	// Name is the base executable name without platform extension.
	Name string
	// Path is the final installed location including the extension.
	Path string
	// Executable marks targets that receive execute permission bits
	// on non-Windows platforms.
	Executable bool
}

// ExecutableExtension returns ".exe" for the windows family and "" elsewhere.
func ExecutableExtension(os OS) string {
	if os == Windows {
		return ".exe"
	}

	return ""
}

// InstallTargets computes the final install locations for both binaries
// under the configured install directory.
func InstallTargets(installDir string, os OS) []InstallTarget {
	ext := ExecutableExtension(os)

	return []InstallTarget{
		{
			Name:       TranscoderName,
			Path:       filepath.Join(installDir, TranscoderName+ext),
			Executable: os != Windows,
		},
		{
			Name:       ProberName,
			Path:       filepath.Join(installDir, ProberName+ext),
			Executable: os != Windows,
		},
	}
}
