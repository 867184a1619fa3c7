// Package progress provides progress indicators for sync rounds.
package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/kettleworks/storysync/internal/logging"
	syncpkg "github.com/kettleworks/storysync/internal/sync"
	"github.com/kettleworks/storysync/internal/ui"
)

// Bar wraps progressbar functionality with integration to storysync's UI and logging.
type Bar struct {
	bar     *progressbar.ProgressBar
	enabled bool
	desc    string
}

// Options configures the progress bar behavior.
type Options struct {
	// Max is the maximum value for the progress bar (total steps).
	Max int64
	// Description is the prefix text shown before the progress bar.
	Description string
	// Writer is the output destination. Defaults to os.Stderr.
	Writer io.Writer
}

// DefaultOptions returns sensible defaults for CLI progress bars.
func DefaultOptions() Options {
	return Options{
		Max:         100,
		Description: "Syncing",
		Writer:      os.Stderr,
	}
}

// New creates a new progress bar with the given options.
// The bar is only shown if:
//   - Colors are enabled (respects NO_COLOR and --no-color)
//   - Output is a terminal
//   - Not in debug/verbose mode (to avoid interfering with logs)
func New(opts Options) *Bar {
	if opts.Writer == nil {
		opts.Writer = os.Stderr
	}

	enabled := shouldShowProgress(opts.Writer)

	b := &Bar{
		enabled: enabled,
		desc:    opts.Description,
	}

	if !enabled {
		logging.Debug(fmt.Sprintf("%s started", opts.Description),
			logging.Count(int(opts.Max)))
		return b
	}

	b.bar = progressbar.NewOptions64(
		opts.Max,
		progressbar.OptionSetDescription(opts.Description),
		progressbar.OptionSetWriter(opts.Writer),
		progressbar.OptionSetWidth(15),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(opts.Writer, "\n")
		}),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionEnableColorCodes(ui.IsColorEnabled()),
	)

	return b
}

// Set sets the progress bar to a specific value.
func (b *Bar) Set(n int) error {
	if !b.enabled {
		return nil
	}
	return b.bar.Set(n)
}

// Describe updates the progress bar description.
func (b *Bar) Describe(desc string) {
	b.desc = desc
	if !b.enabled {
		return
	}
	b.bar.Describe(desc)
}

// Finish completes the progress bar and logs completion.
func (b *Bar) Finish() error {
	if !b.enabled {
		logging.Debug(fmt.Sprintf("%s completed", b.desc))
		return nil
	}
	return b.bar.Finish()
}

// Clear removes the progress bar from the terminal.
func (b *Bar) Clear() error {
	if !b.enabled {
		return nil
	}
	return b.bar.Clear()
}

// phaseLabels map engine phases to bar descriptions.
var phaseLabels = map[syncpkg.Phase]string{
	syncpkg.PhaseConnecting:  "Connecting",
	syncpkg.PhaseChecking:    "Checking remote",
	syncpkg.PhaseComparing:   "Comparing",
	syncpkg.PhaseResolving:   "Resolving conflicts",
	syncpkg.PhaseUploading:   "Uploading",
	syncpkg.PhaseDownloading: "Downloading",
	syncpkg.PhaseDeleting:    "Deleting",
	syncpkg.PhaseFinalizing:  "Finalizing",
	syncpkg.PhaseDone:        "Done",
	syncpkg.PhaseError:       "Failed",
}

// Observer returns a progress callback for the sync engine that drives
// the bar: the phase becomes the description, the percent the position.
func (b *Bar) Observer() syncpkg.ProgressFunc {
	return func(p syncpkg.Progress) {
		label, ok := phaseLabels[p.Phase]
		if !ok {
			label = string(p.Phase)
		}
		if p.Category != "" {
			label = fmt.Sprintf("%s %s", label, p.Category.PluralKey())
		}
		b.Describe(label)
		_ = b.Set(p.Percent)
	}
}

// shouldShowProgress determines if progress bars should be displayed.
// Progress is disabled if:
//   - Not outputting to a terminal
//   - Colors are disabled (NO_COLOR, --no-color)
//   - Logger is at debug level (to avoid interfering with debug output)
func shouldShowProgress(w io.Writer) bool {
	if !ui.IsColorEnabled() {
		return false
	}

	if f, ok := w.(*os.File); ok {
		if !term.IsTerminal(int(f.Fd())) {
			return false
		}
	}

	if logging.Default().Enabled(context.Background(), logging.LevelDebug) {
		return false
	}

	return true
}

// Simple creates a progress bar without needing to configure options.
func Simple(max int64, description string) *Bar {
	return New(Options{
		Max:         max,
		Description: description,
		Writer:      os.Stderr,
	})
}
