package sync

import (
	"context"
	stdsync "sync"
	"time"

	"github.com/kettleworks/storysync/internal/logging"
)

// Scheduler defaults.
const (
	defaultStartupDelay   = 5 * time.Second
	defaultChangeDebounce = 3 * time.Second
	defaultActivationGap  = 30 * time.Second
)

// SchedulerOptions configures when automatic rounds run.
type SchedulerOptions struct {
	// SyncOnStartup runs a round shortly after Start.
	SyncOnStartup bool

	// StartupDelay is how long after Start the startup round runs.
	// Zero means the default of five seconds.
	StartupDelay time.Duration

	// Interval spaces periodic rounds. Zero disables them.
	Interval time.Duration

	// ChangeDebounce is the quiet period after the last data change
	// before a round runs. Zero means the default of three seconds.
	ChangeDebounce time.Duration

	// ActivationGap is the minimum spacing between rounds triggered by
	// activation signals. Zero means the default of thirty seconds.
	ActivationGap time.Duration
}

// Scheduler drives automatic sync rounds from timers and app events.
// Every trigger funnels into the engine, which enforces single-flight
// and the minimum interval; the scheduler never needs to coordinate
// with manual syncs.
type Scheduler struct {
	engine *Engine
	opts   SchedulerOptions

	changes  chan struct{}
	activity chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce stdsync.Once
}

// NewScheduler creates a scheduler over the engine.
func NewScheduler(engine *Engine, opts SchedulerOptions) *Scheduler {
	if opts.StartupDelay <= 0 {
		opts.StartupDelay = defaultStartupDelay
	}
	if opts.ChangeDebounce <= 0 {
		opts.ChangeDebounce = defaultChangeDebounce
	}
	if opts.ActivationGap <= 0 {
		opts.ActivationGap = defaultActivationGap
	}
	return &Scheduler{
		engine:   engine,
		opts:     opts,
		changes:  make(chan struct{}, 1),
		activity: make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the scheduling loop. It returns immediately; rounds run
// on a background goroutine until Stop is called or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go s.loop(ctx)
}

// Stop ends the scheduling loop and waits for it to exit. A round
// already in flight is not interrupted.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

// NotifyDataChanged signals that local records changed. Rapid-fire
// changes are coalesced; a round runs once they quiet down.
func (s *Scheduler) NotifyDataChanged() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// NotifyActivated signals that the app came to the foreground.
// Activations within the configured gap of the last one are ignored.
func (s *Scheduler) NotifyActivated() {
	select {
	case s.activity <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	var startup <-chan time.Time
	if s.opts.SyncOnStartup {
		t := time.NewTimer(s.opts.StartupDelay)
		defer t.Stop()
		startup = t.C
	}

	var periodic <-chan time.Time
	if s.opts.Interval > 0 {
		ticker := time.NewTicker(s.opts.Interval)
		defer ticker.Stop()
		periodic = ticker.C
	}

	// The debounce timer is armed on the first change and re-armed on
	// each subsequent one until it fires.
	debounce := time.NewTimer(s.opts.ChangeDebounce)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()

	var lastActivation time.Time

	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return

		case <-startup:
			s.run(ctx, "startup")
		case <-periodic:
			s.run(ctx, "interval")

		case <-s.changes:
			if !debounce.Stop() {
				select {
				case <-debounce.C:
				default:
				}
			}
			debounce.Reset(s.opts.ChangeDebounce)
		case <-debounce.C:
			s.run(ctx, "data changed")

		case <-s.activity:
			if !lastActivation.IsZero() && time.Since(lastActivation) < s.opts.ActivationGap {
				logging.Debug("activation within gap, ignored")
				continue
			}
			lastActivation = time.Now()
			s.run(ctx, "activated")
		}
	}
}

func (s *Scheduler) run(ctx context.Context, trigger string) {
	logging.Debug("scheduled sync", logging.Operation(trigger))
	res := s.engine.Sync(ctx, RunOptions{})
	if res.Skipped {
		return
	}
	if !res.Success {
		logging.Warn("scheduled sync failed",
			logging.Operation(trigger),
			logging.Count(len(res.Errors)),
		)
	}
}
