package sync

import (
	"fmt"
	"strings"
	"time"

	"github.com/kettleworks/storysync/internal/model"
)

// Direction summarizes which way data moved during a round.
type Direction string

const (
	// DirectionNone means nothing changed on either side.
	DirectionNone Direction = "none"

	// DirectionPush means only uploads happened.
	DirectionPush Direction = "push"

	// DirectionPull means only downloads or local deletions happened.
	DirectionPull Direction = "pull"

	// DirectionMerge means data moved both ways.
	DirectionMerge Direction = "merge"
)

// CategoryCounts tallies what happened to one category during a round.
type CategoryCounts struct {
	Uploaded   int
	Downloaded int
	Deleted    int
}

// Result reports the outcome of one sync round. A round always produces
// a result; failures are carried in Errors rather than panicking out of
// the engine.
type Result struct {
	// Success is true when the round completed with no errors.
	Success bool

	// Direction summarizes the net data movement.
	Direction Direction

	// Counts tallies transfers per category.
	Counts map[model.Category]CategoryCounts

	// Conflicts is how many conflicts the round had to resolve.
	Conflicts int

	// DryRun is true when the round planned but did not transfer.
	DryRun bool

	// Skipped is true when the round never ran, either because another
	// round was in flight or the minimum interval had not elapsed.
	Skipped bool

	// Errors collects everything that went wrong, item-level failures
	// included.
	Errors []error

	// StartedAt and FinishedAt bound the round.
	StartedAt  time.Time
	FinishedAt time.Time
}

func newResult() *Result {
	return &Result{
		Counts:    make(map[model.Category]CategoryCounts),
		StartedAt: time.Now(),
	}
}

func (r *Result) addError(err error) {
	if err != nil {
		r.Errors = append(r.Errors, err)
	}
}

func (r *Result) countUpload(cat model.Category) {
	c := r.Counts[cat]
	c.Uploaded++
	r.Counts[cat] = c
}

func (r *Result) countDownload(cat model.Category) {
	c := r.Counts[cat]
	c.Downloaded++
	r.Counts[cat] = c
}

func (r *Result) countDelete(cat model.Category) {
	c := r.Counts[cat]
	c.Deleted++
	r.Counts[cat] = c
}

// Uploaded returns total uploads across categories.
func (r *Result) Uploaded() int {
	n := 0
	for _, c := range r.Counts {
		n += c.Uploaded
	}
	return n
}

// Downloaded returns total downloads across categories.
func (r *Result) Downloaded() int {
	n := 0
	for _, c := range r.Counts {
		n += c.Downloaded
	}
	return n
}

// Deleted returns total deletions across categories, both sides.
func (r *Result) Deleted() int {
	n := 0
	for _, c := range r.Counts {
		n += c.Deleted
	}
	return n
}

// finish stamps the end time and derives Success and Direction from the
// tallies.
func (r *Result) finish() *Result {
	r.FinishedAt = time.Now()
	r.Success = len(r.Errors) == 0

	up, down := r.Uploaded() > 0, r.Downloaded() > 0 || r.Deleted() > 0
	switch {
	case up && down:
		r.Direction = DirectionMerge
	case up:
		r.Direction = DirectionPush
	case down:
		r.Direction = DirectionPull
	default:
		r.Direction = DirectionNone
	}
	return r
}

// Summary renders a one-line human-readable account of the round.
func (r *Result) Summary() string {
	if r.Skipped {
		return "Sync skipped"
	}
	if r.Direction == DirectionNone && r.Success {
		return "Already in sync"
	}

	var b strings.Builder
	if r.DryRun {
		b.WriteString("Dry run: ")
	}
	parts := make([]string, 0, 4)
	if n := r.Uploaded(); n > 0 {
		parts = append(parts, fmt.Sprintf("%d uploaded", n))
	}
	if n := r.Downloaded(); n > 0 {
		parts = append(parts, fmt.Sprintf("%d downloaded", n))
	}
	if n := r.Deleted(); n > 0 {
		parts = append(parts, fmt.Sprintf("%d deleted", n))
	}
	if r.Conflicts > 0 {
		parts = append(parts, fmt.Sprintf("%d conflicts resolved", r.Conflicts))
	}
	if len(parts) == 0 {
		parts = append(parts, "no changes")
	}
	b.WriteString(strings.Join(parts, ", "))

	if !r.Success {
		fmt.Fprintf(&b, " (%d errors)", len(r.Errors))
	}
	return b.String()
}
