package installer

import (
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/avtools/ffmpeg-fetcher/internal/downloader"
)

// progressRenderer draws a terminal progress bar fed by the downloader's
// byte-progress callback. The bar is created lazily on the first report so
// its total reflects what the response actually announced; an unknown total
// renders as a spinner without a percentage.
type progressRenderer struct {
	description string
	bar         *progressbar.ProgressBar
}

// update implements the downloader.Progress contract.
func (p *progressRenderer) update(delta, total int64) {
	if p.bar == nil {
		p.bar = progressbar.NewOptions64(
			total,
			progressbar.OptionSetDescription(p.description),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(30),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprint(os.Stderr, "\n")
			}),
		)
	}

	_ = p.bar.Add64(delta)
}

// finish completes the bar, if one was ever drawn.
func (p *progressRenderer) finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

// progressFor returns the progress callback for a named download, or nil in
// quiet mode, plus a finisher to call once the fetch settles.
func (r *runner) progressFor(name string) (downloader.Progress, func()) {
	if r.opts.Quiet {
		return nil, func() {}
	}

	renderer := &progressRenderer{description: name}

	return renderer.update, renderer.finish
}
