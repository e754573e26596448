package extract

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Zip extracts every entry of a zip archive, stripping the archive's
// synthetic top-level directory from each name. Entries are processed one at
// a time to bound memory.
type Zip struct{}

// Extract implements Extractor.
func (z *Zip) Extract(ctx context.Context, archivePath, outDir string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return &Error{Err: fmt.Errorf("open archive: %w", err)}
	}

	defer func() {
		_ = reader.Close()
	}()

	for _, entry := range reader.File {
		if err = ctx.Err(); err != nil {
			return &Error{Err: err}
		}

		if err = z.extractEntry(entry, outDir); err != nil {
			return err
		}
	}

	return nil
}

// extractEntry writes a single archive entry beneath outDir.
func (z *Zip) extractEntry(entry *zip.File, outDir string) error {
	name := stripFirstComponent(entry.Name)
	if name == "" {
		// The synthetic top-level directory itself.
		return nil
	}

	dest, err := securePath(outDir, name)
	if err != nil {
		return &Error{Err: err}
	}

	if entry.FileInfo().IsDir() {
		if err = os.MkdirAll(dest, 0o755); err != nil {
			return &Error{Err: fmt.Errorf("create directory %s: %w", name, err)}
		}

		return nil
	}

	if err = os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return &Error{Err: fmt.Errorf("create parent of %s: %w", name, err)}
	}

	src, err := entry.Open()
	if err != nil {
		return &Error{Err: fmt.Errorf("open entry %s: %w", entry.Name, err)}
	}

	defer func() {
		_ = src.Close()
	}()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, entry.Mode().Perm())
	if err != nil {
		return &Error{Err: fmt.Errorf("create %s: %w", name, err)}
	}

	if _, err = io.Copy(out, src); err != nil {
		out.Close()

		return &Error{Err: fmt.Errorf("write %s: %w", name, err)}
	}

	if err = out.Close(); err != nil {
		return &Error{Err: fmt.Errorf("close %s: %w", name, err)}
	}

	return nil
}

// stripFirstComponent removes the leading path segment from an archive entry
// name. It returns "" when nothing remains.
func stripFirstComponent(name string) string {
	name = strings.TrimPrefix(name, "./")
	if idx := strings.Index(name, "/"); idx >= 0 {
		return strings.TrimSuffix(name[idx+1:], "/")
	}

	return ""
}

// securePath joins an entry name under base, rejecting traversal outside it.
func securePath(base, name string) (string, error) {
	dest := filepath.Join(base, filepath.FromSlash(name))
	if !strings.HasPrefix(dest, filepath.Clean(base)+string(os.PathSeparator)) {
		return "", fmt.Errorf("entry %q escapes extraction directory", name)
	}

	return dest, nil
}
