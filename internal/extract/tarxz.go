package extract

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// TarXz extracts a single wanted entry from an xz-compressed tar archive by
// piping an external decompressor into an external tar process. Restricting
// extraction to one entry keeps disk and time cost bounded for the large
// upstream archives.
type TarXz struct {
	// WantedEntry is the full archive path of the single entry to extract.
	WantedEntry string
	// StripComponents removes this many leading path components.
	StripComponents int
}

// Extract implements Extractor. Completion is signaled by the tar process's
// exit; a nonzero exit or launch failure of either process is surfaced with
// the failing process named, and both processes are always reaped.
func (t *TarXz) Extract(ctx context.Context, archivePath, outDir string) error {
	var xzStderr, tarStderr bytes.Buffer

	xzCmd := exec.CommandContext(ctx, "xz", "-dc", archivePath)
	xzCmd.Stderr = &xzStderr

	tarArgs := []string{"-x", "-C", outDir, "--strip-components", strconv.Itoa(t.StripComponents)}
	if t.WantedEntry != "" {
		tarArgs = append(tarArgs, t.WantedEntry)
	}

	tarCmd := exec.CommandContext(ctx, "tar", tarArgs...)
	tarCmd.Stderr = &tarStderr

	pipe, err := xzCmd.StdoutPipe()
	if err != nil {
		return &Error{Tool: "xz", Err: fmt.Errorf("connect pipe: %w", err)}
	}

	tarCmd.Stdin = pipe

	if err = xzCmd.Start(); err != nil {
		return &Error{Tool: "xz", Err: fmt.Errorf("start: %w", err)}
	}

	if err = tarCmd.Start(); err != nil {
		// The decompressor is already running; reap it before returning.
		_ = xzCmd.Process.Kill()
		_ = xzCmd.Wait()

		return &Error{Tool: "tar", Err: fmt.Errorf("start: %w", err)}
	}

	xzErr := xzCmd.Wait()
	tarErr := tarCmd.Wait()

	// Attribute the failure to whichever process died first. A broken pipe
	// on the decompressor means the tar side went away under it.
	if xzErr != nil && !isBrokenPipe(xzErr) {
		return &Error{Tool: "xz", Err: withStderr(xzErr, &xzStderr)}
	}

	if tarErr != nil {
		return &Error{Tool: "tar", Err: withStderr(tarErr, &tarStderr)}
	}

	if xzErr != nil {
		return &Error{Tool: "xz", Err: withStderr(xzErr, &xzStderr)}
	}

	return nil
}

// withStderr attaches captured process output to an exit error.
func withStderr(err error, stderr *bytes.Buffer) error {
	msg := strings.TrimSpace(stderr.String())
	if msg == "" {
		return err
	}

	return fmt.Errorf("%w: %s", err, msg)
}

// isBrokenPipe reports whether a process was killed by a broken pipe.
func isBrokenPipe(err error) bool {
	return strings.Contains(err.Error(), "broken pipe")
}
