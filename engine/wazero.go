package engine

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

// WazeroEngine compiles and instantiates application modules on a wazero runtime
type WazeroEngine struct {
	runtime  wazero.Runtime
	cache    wazero.CompilationCache
	started  time.Time
	logger   *zap.Logger
	stdout   io.Writer
	stderr   io.Writer
	hostMu   sync.Mutex
	hostDone bool
	wasiDone bool
}

// Config holds configuration for engine creation
type Config struct {
	// Logger receives guest log output. Defaults to Logger().
	Logger *zap.Logger

	// Stdout and Stderr receive WASI stdio. Default to the guest logger.
	Stdout io.Writer
	Stderr io.Writer

	// CacheDir enables an on-disk compilation cache shared across processes.
	CacheDir string

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	// 256 = 16MB, 1024 = 64MB, 4096 = 256MB
	MemoryLimitPages uint32
}

// NewWazeroEngineWithConfig creates a new engine with custom configuration
func NewWazeroEngineWithConfig(ctx context.Context, cfg *Config) (*WazeroEngine, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	// Guest calls must be interruptible so that stopping the host does not
	// wait on a runaway tick.
	runtimeCfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)

	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}

	var cache wazero.CompilationCache
	if cfg.CacheDir != "" {
		c, err := wazero.NewCompilationCacheWithDir(cfg.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("open compilation cache %s: %w", cfg.CacheDir, err)
		}
		cache = c
		runtimeCfg = runtimeCfg.WithCompilationCache(cache)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = Logger()
	}

	return &WazeroEngine{
		runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		cache:   cache,
		started: time.Now(),
		logger:  logger,
		stdout:  cfg.Stdout,
		stderr:  cfg.Stderr,
	}, nil
}

// Compile validates and compiles a core WebAssembly binary.
func (e *WazeroEngine) Compile(ctx context.Context, wasmBytes []byte) (*WazeroModule, error) {
	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("compile failed: %w", err)
	}

	debugf("compiled module: %d bytes, %d exports", len(wasmBytes), len(compiled.ExportedFunctions()))

	return &WazeroModule{
		engine:   e,
		compiled: compiled,
	}, nil
}

func (e *WazeroEngine) Close(ctx context.Context) error {
	err := e.runtime.Close(ctx)
	if e.cache != nil {
		if cerr := e.cache.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// WazeroModule is a compiled application module
type WazeroModule struct {
	engine   *WazeroEngine
	compiled wazero.CompiledModule
}

// ExportedFunction returns the definition of an exported function.
func (m *WazeroModule) ExportedFunction(name string) (api.FunctionDefinition, bool) {
	def, ok := m.compiled.ExportedFunctions()[name]
	return def, ok
}

// ExportNames returns the sorted names of all exported functions
func (m *WazeroModule) ExportNames() []string {
	defs := m.compiled.ExportedFunctions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Imports reports whether the module imports any function from moduleName.
func (m *WazeroModule) Imports(moduleName string) bool {
	for _, def := range m.compiled.ImportedFunctions() {
		if mod, _, ok := def.Import(); ok && mod == moduleName {
			return true
		}
	}
	return false
}

// InstanceConfig holds configuration for module instantiation
type InstanceConfig struct {
	Name string

	// StartFunctions run in order during instantiation when exported.
	// Defaults to the reactor and command entry points.
	StartFunctions []string

	// EnableWASI instantiates wasi_snapshot_preview1 even when the module
	// does not import it directly.
	EnableWASI bool
}

// DefaultStartFunctions covers reactor (_initialize) and command (_start) modules.
var DefaultStartFunctions = []string{"_initialize", "_start"}

// InstantiateWithConfig creates an instance with custom configuration
func (m *WazeroModule) InstantiateWithConfig(ctx context.Context, cfg *InstanceConfig) (*WazeroInstance, error) {
	if cfg == nil {
		cfg = &InstanceConfig{}
	}

	if err := m.engine.initHostModule(ctx); err != nil {
		return nil, err
	}

	wasi := cfg.EnableWASI || m.Imports(wasiModuleName)
	if wasi {
		if err := m.engine.initWASI(ctx); err != nil {
			return nil, err
		}
	}

	start := cfg.StartFunctions
	if start == nil {
		start = DefaultStartFunctions
	}

	modConfig := wazero.NewModuleConfig().
		WithName(cfg.Name).
		WithStartFunctions(start...).
		WithSysNanotime().
		WithSysWalltime()

	if wasi {
		modConfig = modConfig.
			WithStdout(m.engine.stdoutWriter()).
			WithStderr(m.engine.stderrWriter())
	}

	instance, err := m.engine.runtime.InstantiateModule(ctx, m.compiled, modConfig)
	if err != nil {
		return nil, fmt.Errorf("instantiate failed: %w", err)
	}

	return &WazeroInstance{
		instance:  instance,
		funcCache: make(map[string]api.Function),
	}, nil
}

// WazeroInstance is a running application module.
// It is NOT safe for concurrent use.
type WazeroInstance struct {
	instance  api.Module
	funcCache map[string]api.Function
}

// ExportedFunction returns an exported function, or nil if not found.
func (i *WazeroInstance) ExportedFunction(name string) api.Function {
	if fn, ok := i.funcCache[name]; ok {
		return fn
	}
	fn := i.instance.ExportedFunction(name)
	if fn != nil {
		i.funcCache[name] = fn
	}
	return fn
}

// Call invokes an exported function with raw core wasm values.
func (i *WazeroInstance) Call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	if i.instance == nil {
		return nil, fmt.Errorf("call %s: instance closed", name)
	}
	fn := i.ExportedFunction(name)
	if fn == nil {
		return nil, fmt.Errorf("call %s: function not exported", name)
	}
	return fn.Call(ctx, params...)
}

func (i *WazeroInstance) Close(ctx context.Context) error {
	if i.instance == nil {
		return nil
	}
	err := i.instance.Close(ctx)
	i.instance = nil
	i.funcCache = nil
	return err
}
