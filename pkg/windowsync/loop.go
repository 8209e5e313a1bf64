package windowsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/ava-labs/stateroot-syncer/pkg/checkpointer"
	"github.com/ava-labs/stateroot-syncer/pkg/metrics"
	"github.com/ava-labs/stateroot-syncer/pkg/stateroot"
)

const (
	defaultCycleTimeout = 2 * time.Minute

	// maxUndelivered bounds the window updates kept for a failing notifier.
	maxUndelivered = 1024
)

// Notifier is told about every cycle that changed the window.
type Notifier interface {
	Notify(ctx context.Context, update stateroot.WindowUpdate) error
}

// LoopOption configures optional Loop collaborators.
type LoopOption func(*Loop)

// WithCheckpointer records the target of every cycle before it writes to the
// oracle and the cursor once it completed. On start the Loop finishes the
// cycle the checkpoint shows in flight, then advances from there instead of
// bootstrapping.
func WithCheckpointer(cp checkpointer.Checkpointer, cfg checkpointer.Config, evmChainID uint64) LoopOption {
	return func(l *Loop) {
		l.checkpointer = cp
		l.checkpointCfg = cfg
		l.evmChainID = evmChainID
	}
}

// WithNotifier sets the receiver of window updates. Updates are delivered in
// order; one the notifier rejected is offered again on the next cycle, ahead of
// newer ones.
func WithNotifier(n Notifier) LoopOption {
	return func(l *Loop) { l.notifier = n }
}

// WithMetrics records cycle and window metrics.
func WithMetrics(m *metrics.Metrics) LoopOption {
	return func(l *Loop) { l.metrics = m }
}

// WithCycleTimeout caps the duration of a single cycle.
func WithCycleTimeout(d time.Duration) LoopOption {
	return func(l *Loop) { l.cycleTimeout = d }
}

// Loop drives a Synchronizer on a fixed interval. Cycles run one at a time on
// the goroutine that called Run; the cursor returned by one cycle is the input
// of the next.
type Loop struct {
	sync         *Synchronizer
	interval     time.Duration
	cycleTimeout time.Duration
	log          *zap.SugaredLogger

	checkpointer  checkpointer.Checkpointer
	checkpointCfg checkpointer.Config
	evmChainID    uint64
	notifier      Notifier
	metrics       *metrics.Metrics

	// Owned by the goroutine running cycles.
	cursor            stateroot.Cursor
	loaded            bool
	inFlight          *inFlightCycle
	pendingCheckpoint bool
	undelivered       []stateroot.WindowUpdate

	// Mirrors for readers on other goroutines.
	current     atomic.Uint64
	initialized atomic.Bool
	lastSuccess atomic.Time
}

// inFlightCycle is a cycle that may have written part of its changes to the
// oracle. It is repeated as is until it completes.
type inFlightCycle struct {
	state  checkpointer.State
	result string
}

// NewLoop creates a Loop that runs a cycle every interval.
func NewLoop(sync *Synchronizer, interval time.Duration, log *zap.SugaredLogger, opts ...LoopOption) (*Loop, error) {
	if sync == nil {
		return nil, errors.New("synchronizer is required")
	}
	if interval <= 0 {
		return nil, errors.New("invalid poll interval: must be greater than 0")
	}
	l := &Loop{
		sync:         sync,
		interval:     interval,
		cycleTimeout: defaultCycleTimeout,
		log:          log,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.cycleTimeout <= 0 {
		return nil, errors.New("invalid cycle timeout: must be greater than 0")
	}
	return l, nil
}

// Run executes a cycle immediately and then on every tick until ctx is done.
// Cycle failures are logged and retried on the next tick, so Run only returns
// once ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.log.Infow("starting window sync loop",
		"windowSize", l.sync.WindowSize(),
		"interval", l.interval,
		"cycleTimeout", l.cycleTimeout,
		"checkpointing", l.checkpointer != nil,
	)

	_ = l.Step(ctx)
	for {
		select {
		case <-ctx.Done():
			l.log.Infow("window sync loop stopped", "cursor", l.cursor.LastFinalized)
			return nil
		case <-ticker.C:
			_ = l.Step(ctx)
		}
	}
}

// Step runs a single cycle. Cancellation of ctx is only observed before the
// cycle starts: a started cycle runs to completion, bounded by the cycle
// timeout, so a publish is never left without its purge.
func (l *Loop) Step(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cycleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.cycleTimeout)
	defer cancel()

	start := time.Now()
	result, update, err := l.cycle(cycleCtx)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		l.fail(err, elapsed)
		return err
	}
	l.commit(cycleCtx, result, update, elapsed)
	return nil
}

func (l *Loop) cycle(ctx context.Context) (string, stateroot.WindowUpdate, error) {
	if !l.loaded {
		if err := l.load(ctx); err != nil {
			return "", stateroot.WindowUpdate{}, err
		}
	}

	if l.inFlight != nil {
		c := *l.inFlight
		l.log.Infow("completing interrupted cycle",
			"lastFinalized", c.state.LastFinalized,
			"target", c.state.Target,
		)
		_, update, err := l.replay(ctx, c.state)
		if err != nil {
			return "", update, err
		}
		l.inFlight = nil
		return c.result, update, nil
	}

	fb, err := l.sync.finalized(ctx)
	if err != nil {
		return "", stateroot.WindowUpdate{}, err
	}

	if !l.initialized.Load() {
		return l.start(ctx, checkpointer.State{LastFinalized: fb, Target: fb}, metrics.CycleResultBootstrap)
	}
	if fb <= l.cursor.LastFinalized {
		_, update, err := l.sync.advanceTo(ctx, l.cursor, fb)
		return metrics.CycleResultNoop, update, err
	}
	return l.start(ctx, checkpointer.State{LastFinalized: l.cursor.LastFinalized, Target: fb}, metrics.CycleResultAdvanced)
}

// load reads the checkpoint once. A checkpoint turns the first cycle into the
// completion of the cycle it recorded.
func (l *Loop) load(ctx context.Context) error {
	if l.checkpointer != nil {
		state, exists, err := l.checkpointer.Read(ctx, l.evmChainID)
		if err != nil {
			// Bootstrapping here could leave roots from an earlier run in the oracle.
			return stageErr(StageResume, fmt.Errorf("read checkpoint: %w", err))
		}
		if exists {
			l.log.Infow("resuming from checkpoint",
				"lastFinalized", state.LastFinalized,
				"target", state.Target,
			)
			l.inFlight = &inFlightCycle{state: state, result: metrics.CycleResultResumed}
		}
	}
	l.loaded = true
	return nil
}

// start records the target of a new cycle and runs it.
func (l *Loop) start(ctx context.Context, state checkpointer.State, result string) (string, stateroot.WindowUpdate, error) {
	if l.checkpointer != nil {
		if err := checkpointer.WriteWithRetry(ctx, l.checkpointer, l.checkpointCfg, l.evmChainID, state); err != nil {
			return "", stateroot.WindowUpdate{}, stageErr(StageCheckpoint, fmt.Errorf("record cycle target %d: %w", state.Target, err))
		}
		// The record carries the committed cursor as well.
		l.pendingCheckpoint = false
	}

	_, update, err := l.replay(ctx, state)
	if err != nil {
		if mayHaveWritten(err) {
			l.inFlight = &inFlightCycle{state: state, result: result}
		}
		return "", update, err
	}
	return result, update, nil
}

// replay runs the cycle recorded by state. A settled state may be a bootstrap
// that never completed, so its whole window is published again.
func (l *Loop) replay(ctx context.Context, state checkpointer.State) (stateroot.Cursor, stateroot.WindowUpdate, error) {
	if state.Settled() {
		return l.sync.bootstrapTo(ctx, state.Target)
	}
	return l.sync.advanceTo(ctx, stateroot.Cursor{LastFinalized: state.LastFinalized}, state.Target)
}

func (l *Loop) commit(ctx context.Context, result string, update stateroot.WindowUpdate, elapsed float64) {
	next := update.Current.LastFinalized
	l.cursor = update.Current
	l.current.Store(next)
	l.initialized.Store(true)
	l.lastSuccess.Store(time.Now())

	window := InitialRange(next, l.sync.WindowSize())
	l.metrics.RecordCycle(result, elapsed)
	l.metrics.CommitWindow(len(update.Added), len(update.Evicted), window.Lower, window.Upper)

	if l.checkpointer != nil && (update.Changed() || l.pendingCheckpoint) {
		state := checkpointer.State{LastFinalized: next, Target: next}
		if err := checkpointer.WriteWithRetry(ctx, l.checkpointer, l.checkpointCfg, l.evmChainID, state); err != nil {
			l.pendingCheckpoint = true
			l.metrics.RecordCycleFailure(StageCheckpoint)
			l.log.Warnw("failed to write checkpoint, will retry next cycle",
				"lastFinalized", next,
				"error", err,
			)
		} else {
			l.pendingCheckpoint = false
		}
	}

	if l.notifier != nil {
		if update.Changed() {
			l.undelivered = append(l.undelivered, update)
		}
		l.deliver(ctx)
	}

	if result == metrics.CycleResultNoop {
		l.log.Debugw("window unchanged", "cursor", next)
		return
	}
	l.log.Infow("window advanced",
		"result", result,
		"previous", update.Previous.LastFinalized,
		"cursor", next,
		"window", window.String(),
		"added", len(update.Added),
		"evicted", len(update.Evicted),
		"durationSeconds", elapsed,
	)
}

// deliver hands undelivered updates to the notifier, oldest first, and stops
// at the first failure.
func (l *Loop) deliver(ctx context.Context) {
	if n := len(l.undelivered) - maxUndelivered; n > 0 {
		l.log.Errorw("dropping undelivered window updates",
			"dropped", n,
			"oldestSequence", l.undelivered[0].Current.LastFinalized,
		)
		l.undelivered = l.undelivered[n:]
	}

	for len(l.undelivered) > 0 {
		u := l.undelivered[0]
		if err := l.notifier.Notify(ctx, u); err != nil {
			l.log.Errorw("failed to notify window update, will retry next cycle",
				"sequence", u.Current.LastFinalized,
				"undelivered", len(l.undelivered),
				"error", err,
			)
			return
		}
		l.undelivered[0] = stateroot.WindowUpdate{}
		l.undelivered = l.undelivered[1:]
	}
	l.undelivered = nil
}

func (l *Loop) fail(err error, elapsed float64) {
	stage := "unknown"
	var se *StageError
	if errors.As(err, &se) {
		stage = se.Stage
	}
	kind := stateroot.Kind(err)

	l.metrics.RecordCycle(metrics.CycleResultFailed, elapsed)
	l.metrics.RecordCycleFailure(stage)
	l.metrics.IncError(kind)
	l.log.Warnw("sync cycle failed, will retry next tick",
		"stage", stage,
		"kind", kind,
		"cursor", l.cursor.LastFinalized,
		"initialized", l.initialized.Load(),
		"error", err,
	)
}

// Cursor returns the last finalized block mirrored into the oracle. The second
// result is false until the first successful bootstrap or resume.
func (l *Loop) Cursor() (uint64, bool) {
	if !l.initialized.Load() {
		return 0, false
	}
	return l.current.Load(), true
}

// Health reports an error when the window was never initialized or no cycle
// succeeded for several intervals.
func (l *Loop) Health() error {
	if !l.initialized.Load() {
		return errors.New("window not initialized")
	}
	staleAfter := 3*l.interval + l.cycleTimeout
	if age := time.Since(l.lastSuccess.Load()); age > staleAfter {
		return fmt.Errorf("no successful sync cycle in %s", age.Round(time.Second))
	}
	return nil
}
