package extract

import (
	"context"
	"fmt"

	"github.com/avtools/ffmpeg-fetcher/internal/source"
)

// Extractor pulls the wanted executable out of a downloaded archive.
type Extractor interface {
	// Extract unpacks the archive into outDir. Any failure is fatal for
	// the extraction; nothing partial is cleaned up here because outDir
	// lives inside the run's temporary directory.
	Extract(ctx context.Context, archivePath, outDir string) error
}

// Error reports an extraction failure. Tool names the external process
// ("xz" or "tar") when a subprocess failed; it is empty for archive stream
// errors handled in-process.
type Error struct {
	Tool string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Tool != "" {
		return fmt.Sprintf("extract: %s failed: %v", e.Tool, e.Err)
	}

	return fmt.Sprintf("extract: %v", e.Err)
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// ForDownload picks the extraction strategy matching a download plan.
func ForDownload(d *source.Download) (Extractor, error) {
	switch d.Format {
	case source.FormatZip:
		return &Zip{}, nil
	case source.FormatTarXz:
		return &TarXz{
			WantedEntry:     d.WantedEntry,
			StripComponents: d.StripComponents,
		}, nil
	case source.FormatNone:
		return nil, &Error{Err: fmt.Errorf("payload %q needs no extraction", d.URL)}
	default:
		return nil, &Error{Err: fmt.Errorf("unsupported archive format %q", d.Format)}
	}
}
