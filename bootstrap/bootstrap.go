package bootstrap

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/wippyai/tickhost/config"
	"github.com/wippyai/tickhost/events"
	"github.com/wippyai/tickhost/loader"
	"github.com/wippyai/tickhost/scheduler"
	"github.com/wippyai/tickhost/status"
)

// Option configures a Host.
type Option func(*Host)

func WithLogger(l *zap.Logger) Option {
	return func(h *Host) {
		h.logger = l
	}
}

// WithSource replaces the source derived from the configuration.
func WithSource(src loader.Source) Option {
	return func(h *Host) {
		h.source = src
	}
}

// WithClock replaces the scheduler's clock.
func WithClock(c scheduler.Clock) Option {
	return func(h *Host) {
		h.clock = c
	}
}

// WithObserver registers an additional lifecycle observer.
func WithObserver(o events.Observer, eventTypes ...string) Option {
	return func(h *Host) {
		h.observers = append(h.observers, observerReg{o, eventTypes})
	}
}

type observerReg struct {
	observer events.Observer
	types    []string
}

// Host composes the loader, the scheduler and the ambient services around
// them for one hosted application.
type Host struct {
	cfg       *config.Config
	logger    *zap.Logger
	source    loader.Source
	clock     scheduler.Clock
	observers []observerReg

	bus       *events.Bus
	sink      *events.HTTPSink
	ns        *loader.Namespace
	scheduler *scheduler.Scheduler
	status    *status.Server
	reporter  *cron.Cron

	mu       sync.Mutex
	shutdown bool
}

// New prepares a host for cfg. cfg must be valid.
func New(cfg *config.Config, opts ...Option) *Host {
	h := &Host{cfg: cfg}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	if h.source == nil {
		h.source = SourceFor(cfg)
	}
	return h
}

// SourceFor returns the artifact source named by cfg.
func SourceFor(cfg *config.Config) loader.Source {
	if cfg.Source.URL != "" {
		return loader.HTTPSource{URL: cfg.Source.URL}
	}
	return loader.FileSource{Path: cfg.Source.Path, Wait: cfg.Source.Wait}
}

// Start loads the module, starts ticking and brings up the status server,
// events sink and stats reporter. It blocks through module loading and any
// pending application creation.
func (h *Host) Start(ctx context.Context) error {
	if err := h.startEvents(); err != nil {
		return err
	}

	ld := loader.New(h.source,
		loader.WithLogger(h.logger.Named("loader")),
		loader.WithExports(h.cfg.LoaderExports()),
		loader.WithWASI(h.cfg.WASI),
		loader.WithCacheDir(h.cfg.CacheDir),
		loader.WithMemoryLimitPages(h.cfg.MemoryLimitPages),
		loader.WithPollInterval(h.cfg.PollInterval))

	ns, err := ld.Load(ctx)
	if err != nil {
		h.logger.Error("module load failed", zap.Error(err))
		h.bus.Emit(ctx, events.TypeModuleLoadFailed, events.Lifecycle{Source: h.source.String(), Error: err.Error()})
		return err
	}
	h.bus.Emit(ctx, events.TypeModuleLoaded, events.Lifecycle{Source: ns.Source(), Pending: ns.Polling()})

	opts := append(h.cfg.SchedulerOptions(),
		scheduler.WithLogger(h.logger.Named("scheduler")),
		scheduler.WithEmitter(h.bus))
	if h.clock != nil {
		opts = append(opts, scheduler.WithClock(h.clock))
	}

	h.mu.Lock()
	h.ns = ns
	h.scheduler = scheduler.New(ns, opts...)
	h.mu.Unlock()

	if h.cfg.StatusAddr != "" {
		info := &status.Info{Source: ns.Source(), Exports: ns.ExportNames(), Polling: ns.Polling()}
		router := status.NewRouter(h.scheduler, info, h.logger.Named("status"))
		srv, err := status.Listen(h.cfg.StatusAddr, router, h.logger.Named("status"))
		if err != nil {
			return err
		}
		h.status = srv
	}

	if err := h.scheduler.Start(ctx); err != nil {
		return err
	}

	if h.cfg.ReportInterval > 0 {
		if err := h.startReporter(h.cfg.ReportInterval); err != nil {
			return err
		}
	}
	return nil
}

func (h *Host) startEvents() error {
	h.bus = events.NewBus(h.logger.Named("events"))
	h.bus.RegisterObserver(events.NewLogObserver(h.logger.Named("events")))

	if h.cfg.EventsURL != "" {
		sink, err := events.NewHTTPSink(h.cfg.EventsURL, h.logger.Named("events"))
		if err != nil {
			return err
		}
		h.sink = sink
		h.bus.RegisterObserver(sink)
	}

	for _, reg := range h.observers {
		h.bus.RegisterObserver(reg.observer, reg.types...)
	}
	return nil
}

// startReporter logs scheduler stats periodically. Intervals below one
// second are rounded up to one second.
func (h *Host) startReporter(interval time.Duration) error {
	h.reporter = cron.New()
	_, err := h.reporter.AddFunc("@every "+interval.String(), h.report)
	if err != nil {
		return fmt.Errorf("schedule stats reporter: %w", err)
	}
	h.reporter.Start()
	return nil
}

func (h *Host) report() {
	s := h.Stats()
	h.logger.Info("scheduler stats",
		zap.Stringer("state", s.State),
		zap.Uint64("ticks", s.Ticks),
		zap.Uint64("failures", s.Failures),
		zap.Uint64("dropped", s.Dropped),
		zap.Time("last_tick", s.LastTick))
}

// Scheduler returns the scheduler, or nil before the module is loaded.
func (h *Host) Scheduler() *scheduler.Scheduler {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.scheduler
}

// Stats returns scheduler statistics; zero before the module is loaded.
func (h *Host) Stats() scheduler.Stats {
	if s := h.Scheduler(); s != nil {
		return s.Stats()
	}
	return scheduler.Stats{}
}

// StatusAddr is the bound status server address, or empty.
func (h *Host) StatusAddr() string {
	if h.status == nil {
		return ""
	}
	return h.status.Addr()
}

// Done is closed when the scheduler stops, halts or fails. It is nil
// before Start has created the scheduler.
func (h *Host) Done() <-chan struct{} {
	if s := h.Scheduler(); s != nil {
		return s.Done()
	}
	return nil
}

// Err returns the error that ended the scheduler, or nil.
func (h *Host) Err() error {
	if s := h.Scheduler(); s != nil {
		return s.Err()
	}
	return nil
}

// Shutdown stops everything Start brought up, in reverse order.
// It is safe to call after a failed Start and more than once.
func (h *Host) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	if h.shutdown {
		h.mu.Unlock()
		return nil
	}
	h.shutdown = true
	h.mu.Unlock()

	var errs []error

	if h.reporter != nil {
		select {
		case <-h.reporter.Stop().Done():
		case <-ctx.Done():
		}
	}

	if s := h.Scheduler(); s != nil {
		if err := s.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if h.status != nil {
		if err := h.status.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown status server: %w", err))
		}
	}

	if h.sink != nil {
		if err := h.sink.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush events: %w", err))
		}
	}

	return stderrors.Join(errs...)
}

// DefaultShutdownTimeout bounds Run's shutdown.
const DefaultShutdownTimeout = 10 * time.Second

// Run starts a host for cfg and blocks until ctx is done or the scheduler
// ends on its own. It returns the startup error, the advance error that
// halted the loop, or nil after a clean stop.
func Run(ctx context.Context, cfg *config.Config, opts ...Option) error {
	h := New(cfg, opts...)

	err := h.Start(ctx)
	if err == nil {
		select {
		case <-ctx.Done():
		case <-h.Done():
			err = h.Err()
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultShutdownTimeout)
	defer cancel()
	if serr := h.Shutdown(shutdownCtx); serr != nil {
		h.logger.Warn("shutdown incomplete", zap.Error(serr))
	}
	return err
}
