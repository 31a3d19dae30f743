package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/tickhost"
	"github.com/wippyai/tickhost/errors"
	"github.com/wippyai/tickhost/events"
)

// DefaultPeriod is the advance period of the hosted application.
const DefaultPeriod = 33 * time.Millisecond

// State is the scheduler lifecycle state.
type State int

const (
	StateIdle     State = iota
	StateStarting       // creating or awaiting the application
	StateRunning        // tick loop armed
	StateFailed         // startup failed; no tick loop exists
	StateHalted         // tick loop stopped by an advance failure
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateFailed:
		return "failed"
	case StateHalted:
		return "halted"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s State) terminal() bool {
	return s == StateFailed || s == StateHalted || s == StateStopped
}

// Stats is a point-in-time snapshot of the scheduler.
type Stats struct {
	StartedAt           time.Time       `json:"startedAt"`
	ArmedAt             time.Time       `json:"armedAt"`
	LastTick            time.Time       `json:"lastTick"`
	LastError           string          `json:"lastError,omitempty"`
	Overlap             string          `json:"overlap"`
	OnFailure           string          `json:"onFailure"`
	Period              time.Duration   `json:"period"`
	Ticks               uint64          `json:"ticks"`
	Failures            uint64          `json:"failures"`
	ConsecutiveFailures uint64          `json:"consecutiveFailures"`
	Dropped             uint64          `json:"dropped"`
	Handle              tickhost.Handle `json:"handle"`
	State               State           `json:"state"`
	HasHandle           bool            `json:"hasHandle"`
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithPeriod sets the tick period. Non-positive values are ignored.
func WithPeriod(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.period = d
		}
	}
}

func WithOverlapPolicy(p OverlapPolicy) Option {
	return func(s *Scheduler) {
		s.overlap = p
	}
}

func WithFailurePolicy(p FailurePolicy) Option {
	return func(s *Scheduler) {
		s.onFailure = p
	}
}

// WithMaxConsecutiveFailures halts a Continue loop after n failures in a
// row. Zero means never.
func WithMaxConsecutiveFailures(n uint64) Option {
	return func(s *Scheduler) {
		s.maxConsecutive = n
	}
}

func WithClock(c Clock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// WithEmitter receives lifecycle events.
func WithEmitter(e events.Emitter) Option {
	return func(s *Scheduler) {
		s.emitter = e
	}
}

// Scheduler creates the hosted application once and then advances it at a
// fixed period until stopped.
//
// Start and Stop may be called from different goroutines. Activations run
// on a single goroutine and never overlap.
type Scheduler struct {
	err     error
	ns      tickhost.Namespace
	clock   Clock
	emitter events.Emitter
	logger  *zap.Logger

	cancel    context.CancelFunc
	startDone chan struct{}
	loopDone  chan struct{}
	done      chan struct{}

	stats          Stats
	period         time.Duration
	maxConsecutive uint64
	overlap        OverlapPolicy
	onFailure      FailurePolicy

	mu       sync.Mutex
	doneOnce sync.Once
	started  bool
	closed   bool
}

// New creates a scheduler that owns ns. ns is closed by Stop.
func New(ns tickhost.Namespace, opts ...Option) *Scheduler {
	s := &Scheduler{
		ns:      ns,
		clock:   SystemClock{},
		emitter: events.Nop{},
		period:  DefaultPeriod,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = Logger()
	}
	s.stats.Period = s.period
	s.stats.Overlap = s.overlap.String()
	s.stats.OnFailure = s.onFailure.String()
	return s
}

// Start creates the application and arms the tick loop. It blocks while a
// pending creation is awaited and returns once ticking has begun or
// startup has failed. The loop runs until Stop or until ctx is done.
//
// Start may be called once; later calls fail with an already_started
// startup error.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.Startup(errors.KindAlreadyStarted, "scheduler already started", nil)
	}
	s.started = true
	if s.stats.State == StateStopped {
		s.mu.Unlock()
		return errors.Startup(errors.KindCanceled, "scheduler stopped", nil)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.startDone = make(chan struct{})
	s.stats.State = StateStarting
	s.stats.StartedAt = s.clock.Now()
	s.mu.Unlock()

	defer close(s.startDone)

	creation, err := s.ns.CreateApplication(runCtx)
	if err != nil {
		return s.failStartup(runCtx, startupError(runCtx, errors.KindCreateFailed, "create application", err))
	}

	pending := creation.IsPending()
	if pending {
		s.logger.Debug("awaiting application")
	}
	h, err := creation.Resolve(runCtx)
	if err != nil {
		return s.failStartup(runCtx, startupError(runCtx, errors.KindRejected, "application creation rejected", err))
	}

	s.emitter.Emit(runCtx, events.TypeApplicationCreated, events.Lifecycle{Handle: uint64(h), Pending: pending})

	if err := s.startTicking(runCtx, h); err != nil {
		return err
	}

	s.logger.Info("ticking started",
		zap.Uint64("handle", uint64(h)),
		zap.Duration("period", s.period),
		zap.Stringer("overlap", s.overlap),
		zap.Stringer("on_failure", s.onFailure))
	s.emitter.Emit(runCtx, events.TypeTickingStarted, events.Lifecycle{Handle: uint64(h), Period: s.period.String()})
	return nil
}

// startupError keeps structured startup errors and classifies the rest.
func startupError(ctx context.Context, kind errors.Kind, detail string, err error) error {
	if errors.IsStartup(err) {
		return err
	}
	if ctx.Err() != nil {
		return errors.Startup(errors.KindCanceled, detail, err)
	}
	return errors.Startup(kind, detail, err)
}

func (s *Scheduler) failStartup(ctx context.Context, err error) error {
	s.mu.Lock()
	if s.stats.State == StateStopped {
		s.mu.Unlock()
		return errors.Startup(errors.KindCanceled, "scheduler stopped during startup", err)
	}
	s.stats.State = StateFailed
	s.stats.LastError = err.Error()
	s.err = err
	s.cancel()
	s.mu.Unlock()

	s.closeDone()
	s.logger.Error("startup failed", zap.Error(err))
	s.emitter.Emit(context.WithoutCancel(ctx), events.TypeStartupFailed, events.Lifecycle{Error: err.Error()})
	return err
}

// startTicking arms the single tick loop for h.
func (s *Scheduler) startTicking(ctx context.Context, h tickhost.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stats.State != StateStarting {
		return errors.Startup(errors.KindCanceled, "scheduler stopped during startup", nil)
	}

	ticker := s.clock.NewTicker(s.period)
	s.stats.State = StateRunning
	s.stats.Handle = h
	s.stats.HasHandle = true
	s.stats.ArmedAt = s.clock.Now()
	s.loopDone = make(chan struct{})

	go s.loop(ctx, ticker, h)
	return nil
}

func (s *Scheduler) loop(ctx context.Context, ticker Ticker, h tickhost.Handle) {
	defer close(s.loopDone)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.finish()
			return

		case <-ticker.C():
			if ctx.Err() != nil {
				s.finish()
				return
			}
			if !s.activate(ctx, h) {
				return
			}
			if s.overlap == Skip {
				select {
				case <-ticker.C():
					s.mu.Lock()
					s.stats.Dropped++
					s.mu.Unlock()
				default:
				}
			}
		}
	}
}

// activate runs one advance and reports whether the loop continues.
func (s *Scheduler) activate(ctx context.Context, h tickhost.Handle) bool {
	s.mu.Lock()
	s.stats.Ticks++
	tick := s.stats.Ticks
	s.mu.Unlock()

	err := s.ns.Advance(ctx, h)
	now := s.clock.Now()

	s.mu.Lock()
	s.stats.LastTick = now
	if err == nil {
		s.stats.ConsecutiveFailures = 0
		s.mu.Unlock()
		return true
	}
	if ctx.Err() != nil {
		s.mu.Unlock()
		s.logger.Debug("tick interrupted", zap.Uint64("tick", tick), zap.Error(err))
		return true
	}

	aerr := errors.Advance(tick, err)
	s.stats.Failures++
	s.stats.ConsecutiveFailures++
	s.stats.LastError = aerr.Error()
	halt := s.onFailure == Halt ||
		(s.maxConsecutive > 0 && s.stats.ConsecutiveFailures >= s.maxConsecutive)
	data := events.Lifecycle{
		Handle:   uint64(h),
		Ticks:    tick,
		Failures: s.stats.Failures,
		Error:    aerr.Error(),
	}
	if halt {
		s.stats.State = StateHalted
		s.err = aerr
		s.cancel()
	}
	s.mu.Unlock()

	if !halt {
		s.logger.Warn("tick failed", zap.Uint64("tick", tick), zap.Error(aerr))
		s.emitter.Emit(ctx, events.TypeTickFailed, data)
		return true
	}

	s.logger.Error("tick loop halted", zap.Uint64("tick", tick), zap.Error(aerr))
	s.closeDone()
	s.emitter.Emit(context.WithoutCancel(ctx), events.TypeHalted, data)
	return false
}

// finish records a loop exit caused by context cancellation.
func (s *Scheduler) finish() {
	s.mu.Lock()
	if s.stats.State == StateRunning {
		s.stats.State = StateStopped
	}
	s.mu.Unlock()
	s.closeDone()
}

func (s *Scheduler) closeDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

// Stop cancels a pending startup or the tick loop, waits for an in-flight
// activation to return, releases the handle and closes the namespace.
// It is safe to call more than once and before Start.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	if !s.stats.State.terminal() {
		s.stats.State = StateStopped
	}
	cancel, startDone, loopDone := s.cancel, s.startDone, s.loopDone
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if err := wait(ctx, startDone); err != nil {
		return err
	}

	// Start may have armed the loop before observing the stop.
	s.mu.Lock()
	loopDone = s.loopDone
	s.mu.Unlock()
	if err := wait(ctx, loopDone); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.stats.HasHandle = false
	s.stats.Handle = 0
	data := events.Lifecycle{Ticks: s.stats.Ticks, Failures: s.stats.Failures}
	s.mu.Unlock()

	s.closeDone()
	err := s.ns.Close(ctx)
	if err != nil {
		err = fmt.Errorf("close namespace: %w", err)
	}

	s.logger.Info("scheduler stopped", zap.Uint64("ticks", data.Ticks), zap.Uint64("failures", data.Failures))
	s.emitter.Emit(context.WithoutCancel(ctx), events.TypeStopped, data)
	return err
}

func wait(ctx context.Context, ch <-chan struct{}) error {
	if ch == nil {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop scheduler: %w", ctx.Err())
	}
}

// Done is closed when the scheduler reaches a terminal state: startup
// failure, halt, context cancellation or Stop.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// Err returns the startup or advance error that ended the scheduler, or nil.
func (s *Scheduler) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats.State
}

func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Wait blocks until Done is closed or ctx ends and returns Err.
func (s *Scheduler) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
