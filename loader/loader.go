package loader

import (
	"context"
	stderrors "errors"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/tickhost/engine"
	"github.com/wippyai/tickhost/errors"
)

// DefaultPollInterval is the delay between poll calls while creation is pending.
const DefaultPollInterval = 5 * time.Millisecond

// Loader fetches, compiles and instantiates an application module.
type Loader struct {
	source       Source
	logger       *zap.Logger
	exports      Exports
	cacheDir     string
	pollInterval time.Duration
	memoryPages  uint32
	wasi         bool
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger for loading and guest output.
func WithLogger(l *zap.Logger) Option {
	return func(ld *Loader) {
		ld.logger = l
	}
}

// WithExports overrides the entry point names.
func WithExports(e Exports) Option {
	return func(ld *Loader) {
		ld.exports = e
	}
}

// WithWASI instantiates WASI preview1 even when the module does not import it.
func WithWASI(enabled bool) Option {
	return func(ld *Loader) {
		ld.wasi = enabled
	}
}

// WithCacheDir enables the on-disk compilation cache.
func WithCacheDir(dir string) Option {
	return func(ld *Loader) {
		ld.cacheDir = dir
	}
}

// WithMemoryLimitPages caps linear memory in 64KB pages.
func WithMemoryLimitPages(pages uint32) Option {
	return func(ld *Loader) {
		ld.memoryPages = pages
	}
}

// WithPollInterval sets the delay between poll calls.
func WithPollInterval(d time.Duration) Option {
	return func(ld *Loader) {
		if d > 0 {
			ld.pollInterval = d
		}
	}
}

func New(src Source, opts ...Option) *Loader {
	ld := &Loader{
		source:       src,
		exports:      DefaultExports,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(ld)
	}
	if ld.logger == nil {
		ld.logger = Logger()
	}
	return ld
}

// Load performs the one-time module initialization and returns its entry
// points. It blocks until the artifact is fetched and instantiated or ctx is
// done. Every failure is a module load error; nothing is retried.
func (l *Loader) Load(ctx context.Context) (*Namespace, error) {
	if l.source == nil {
		return nil, errors.InvalidInput(errors.PhaseLoad, "no module source")
	}
	if l.exports.Create == "" || l.exports.Advance == "" {
		return nil, errors.InvalidInput(errors.PhaseLoad, "create and advance export names are required")
	}

	started := time.Now()
	src := l.source.String()
	log := l.logger.With(zap.String("source", src))

	log.Info("fetching module")
	wasm, err := l.source.Fetch(ctx)
	if err != nil {
		var e *errors.Error
		if stderrors.As(err, &e) && e.Phase == errors.PhaseLoad {
			return nil, err
		}
		return nil, errors.Fetch(src, err)
	}

	eng, err := engine.NewWazeroEngineWithConfig(ctx, &engine.Config{
		Logger:           log.Named("guest"),
		CacheDir:         l.cacheDir,
		MemoryLimitPages: l.memoryPages,
	})
	if err != nil {
		return nil, errors.Load(errors.KindCompile, "create engine", err)
	}

	mod, err := eng.Compile(ctx, wasm)
	if err != nil {
		eng.Close(ctx)
		return nil, errors.Load(errors.KindCompile, "compile module", err)
	}

	resolved, err := resolveABI(mod, l.exports)
	if err != nil {
		eng.Close(ctx)
		return nil, err
	}

	inst, err := mod.InstantiateWithConfig(ctx, &engine.InstanceConfig{EnableWASI: l.wasi})
	if err != nil {
		eng.Close(ctx)
		return nil, errors.Instantiation(err)
	}

	log.Info("module loaded",
		zap.Int("bytes", len(wasm)),
		zap.Bool("polling", resolved.hasPolling),
		zap.Duration("elapsed", time.Since(started)))

	return &Namespace{
		engine:       eng,
		instance:     inst,
		abi:          resolved,
		logger:       log,
		source:       src,
		exports:      mod.ExportNames(),
		pollInterval: l.pollInterval,
	}, nil
}
