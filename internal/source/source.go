package source

import (
	"fmt"

	"github.com/avtools/ffmpeg-fetcher/internal/config"
	"github.com/avtools/ffmpeg-fetcher/internal/platform"
)

// Binary identifies one of the two tools the pipeline installs.
type Binary string

// Installed binaries.
const (
	Transcoder Binary = platform.TranscoderName
	Prober     Binary = platform.ProberName
)

// Format is the archive format of a download payload.
type Format string

// Payload formats.
const (
	FormatNone  Format = "none"
	FormatZip   Format = "zip"
	FormatTarXz Format = "tar.xz"
)

// secondaryTag is the floating tag the secondary source publishes under.
// Unlike the pinned primary release this moves over time, so repeated
// installs may fetch different build revisions.
const secondaryTag = "latest"

// Download describes a single payload fetch and how to turn it into the
// wanted executable. Constructed by Select, consumed once.
type Download struct {
	// URL is the fully resolved payload location.
	URL string
	// Format is the archive format of the payload.
	Format Format
	// GzipEncoded marks payloads that arrive gzip-compressed and must be
	// decoded while writing to disk.
	GzipEncoded bool
	// RequiresExtraction is true when the payload is an archive.
	RequiresExtraction bool
	// WantedEntry restricts tar extraction to the single required entry.
	WantedEntry string
	// StripComponents is the number of leading path components removed
	// during extraction.
	StripComponents int
	// ExtractedPath is where the executable sits inside the extraction
	// directory, relative, after stripping. Empty for direct payloads.
	ExtractedPath string
}

// Select maps (binary, platform, arch) to a distribution source.
//
// The prober always comes from the primary source as a directly-executable
// gzip-compressed payload. The transcoder comes from the primary source on
// darwin only; windows and linux builds are packaged by the secondary source
// as a zip and a tar.xz archive respectively, under its floating tag.
func Select(bin Binary, target platform.Target, cfg *config.Config) (*Download, error) {
	if !platform.Supported(target.OS, target.Arch) {
		return nil, &platform.UnsupportedError{OS: target.OS, Arch: target.Arch}
	}

	if bin == Prober || target.OS == platform.Darwin {
		return primaryDownload(bin, target, cfg), nil
	}

	return secondaryDownload(target, cfg)
}

// DocURLs returns the README and LICENSE companion locations for a binary.
// Companions live next to the primary-source assets for every platform.
func DocURLs(bin Binary, target platform.Target, cfg *config.Config) (readme, license string) {
	asset := primaryAssetName(bin, target)
	readme = fmt.Sprintf("%s/%s/%s.README", cfg.PrimaryBaseURL, cfg.ReleaseTag, asset)
	license = fmt.Sprintf("%s/%s/%s.LICENSE", cfg.PrimaryBaseURL, cfg.ReleaseTag, asset)

	return readme, license
}

// primaryAssetName builds the primary source asset name, e.g. "ffmpeg-darwin-arm64".
func primaryAssetName(bin Binary, target platform.Target) string {
	return fmt.Sprintf("%s-%s-%s", bin, target.OS, target.Arch)
}

// primaryDownload builds the plan for a directly-executable primary payload.
func primaryDownload(bin Binary, target platform.Target, cfg *config.Config) *Download {
	return &Download{
		URL:         fmt.Sprintf("%s/%s/%s.gz", cfg.PrimaryBaseURL, cfg.ReleaseTag, primaryAssetName(bin, target)),
		Format:      FormatNone,
		GzipEncoded: true,
	}
}

// secondaryDownload builds the plan for an archive-packaged transcoder build.
func secondaryDownload(target platform.Target, cfg *config.Config) (*Download, error) {
	token, err := secondaryToken(target)
	if err != nil {
		return nil, err
	}

	asset := fmt.Sprintf("ffmpeg-master-%s-%s-gpl", secondaryTag, token)
	base := fmt.Sprintf("%s/%s/%s", cfg.SecondaryBaseURL, secondaryTag, asset)

	if target.OS == platform.Windows {
		return &Download{
			URL:                base + ".zip",
			Format:             FormatZip,
			RequiresExtraction: true,
			StripComponents:    1,
			ExtractedPath:      "bin/ffmpeg.exe",
		}, nil
	}

	return &Download{
		URL:                base + ".tar.xz",
		Format:             FormatTarXz,
		RequiresExtraction: true,
		WantedEntry:        asset + "/bin/ffmpeg",
		StripComponents:    2,
		ExtractedPath:      "ffmpeg",
	}, nil
}

// secondaryToken maps the target to the secondary source's naming scheme,
// which differs from the primary tokens.
func secondaryToken(target platform.Target) (string, error) {
	switch target.OS {
	case platform.Windows:
		switch target.Arch {
		case platform.X64:
			return "win64", nil
		case platform.Arm64:
			return "winarm64", nil
		}
	case platform.Linux:
		switch target.Arch {
		case platform.X64:
			return "linux64", nil
		case platform.Arm64:
			return "linuxarm64", nil
		}
	}

	return "", &platform.UnsupportedError{OS: target.OS, Arch: target.Arch}
}
