package engine

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/tickhost/internal/wasmtest"
)

func TestNewWazeroEngineWithConfig(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		cfg  *Config
		name string
	}{
		{nil, "nil config"},
		{&Config{}, "default config"},
		{&Config{MemoryLimitPages: 256}, "16MB limit"},
		{&Config{CacheDir: t.TempDir()}, "compilation cache"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			engine, err := NewWazeroEngineWithConfig(ctx, tc.cfg)
			require.NoError(t, err)
			defer engine.Close(ctx)

			assert.NotNil(t, engine.runtime)
			if tc.cfg != nil && tc.cfg.CacheDir != "" {
				assert.NotNil(t, engine.cache)
			}
		})
	}
}

func TestWazeroEngine_Compile(t *testing.T) {
	ctx := context.Background()
	engine, err := NewWazeroEngineWithConfig(ctx, nil)
	require.NoError(t, err)
	defer engine.Close(ctx)

	mod, err := engine.Compile(ctx, wasmtest.SyncApp(7))
	require.NoError(t, err)

	assert.Equal(t, []string{"last_handle", "polls", "ticks", "web_startup", "web_update"}, mod.ExportNames())

	def, ok := mod.ExportedFunction("web_startup")
	require.True(t, ok)
	assert.Empty(t, def.ParamTypes())
	assert.Len(t, def.ResultTypes(), 1)

	_, ok = mod.ExportedFunction("missing")
	assert.False(t, ok)
	assert.False(t, mod.Imports(HostModuleName))
}

func TestWazeroEngine_CompileInvalid(t *testing.T) {
	ctx := context.Background()
	engine, err := NewWazeroEngineWithConfig(ctx, nil)
	require.NoError(t, err)
	defer engine.Close(ctx)

	_, err = engine.Compile(ctx, []byte("not wasm"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compile failed")
}

func TestWazeroInstance_Call(t *testing.T) {
	ctx := context.Background()
	engine, err := NewWazeroEngineWithConfig(ctx, nil)
	require.NoError(t, err)
	defer engine.Close(ctx)

	mod, err := engine.Compile(ctx, wasmtest.SyncApp(7))
	require.NoError(t, err)

	inst, err := mod.InstantiateWithConfig(ctx, nil)
	require.NoError(t, err)
	defer inst.Close(ctx)

	res, err := inst.Call(ctx, "web_startup")
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, uint64(7), res[0])

	for i := 0; i < 3; i++ {
		_, err = inst.Call(ctx, "web_update", res[0])
		require.NoError(t, err)
	}

	ticks, err := inst.Call(ctx, "ticks")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), ticks[0])

	_, err = inst.Call(ctx, "nope")
	assert.Error(t, err)
}

func TestWazeroInstance_ParallelInstances(t *testing.T) {
	ctx := context.Background()
	engine, err := NewWazeroEngineWithConfig(ctx, nil)
	require.NoError(t, err)
	defer engine.Close(ctx)

	mod, err := engine.Compile(ctx, wasmtest.SyncApp(1))
	require.NoError(t, err)

	a, err := mod.InstantiateWithConfig(ctx, nil)
	require.NoError(t, err)
	defer a.Close(ctx)
	b, err := mod.InstantiateWithConfig(ctx, nil)
	require.NoError(t, err)
	defer b.Close(ctx)

	_, err = a.Call(ctx, "web_update", 1)
	require.NoError(t, err)

	ticks, err := b.Call(ctx, "ticks")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), ticks[0], "instances must not share globals")
}

func TestWazeroInstance_CloseTwice(t *testing.T) {
	ctx := context.Background()
	engine, err := NewWazeroEngineWithConfig(ctx, nil)
	require.NoError(t, err)
	defer engine.Close(ctx)

	mod, err := engine.Compile(ctx, wasmtest.SyncApp(1))
	require.NoError(t, err)
	inst, err := mod.InstantiateWithConfig(ctx, nil)
	require.NoError(t, err)

	require.NoError(t, inst.Close(ctx))
	require.NoError(t, inst.Close(ctx))

	_, err = inst.Call(ctx, "web_startup")
	assert.Error(t, err)
}

func TestHostLog(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zap.InfoLevel)

	engine, err := NewWazeroEngineWithConfig(ctx, &Config{Logger: zap.New(core)})
	require.NoError(t, err)
	defer engine.Close(ctx)

	mod, err := engine.Compile(ctx, wasmtest.LoggingApp("HELLO FROM THE USER FACING SIDE", 3))
	require.NoError(t, err)
	assert.True(t, mod.Imports(HostModuleName))

	inst, err := mod.InstantiateWithConfig(ctx, nil)
	require.NoError(t, err)
	defer inst.Close(ctx)

	res, err := inst.Call(ctx, "web_startup")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), res[0])

	entries := logs.FilterMessage("HELLO FROM THE USER FACING SIDE").All()
	require.Len(t, entries, 1)
	assert.Equal(t, true, entries[0].ContextMap()["guest"])
}

func TestHostNowMillis(t *testing.T) {
	ctx := context.Background()
	engine, err := NewWazeroEngineWithConfig(ctx, nil)
	require.NoError(t, err)
	defer engine.Close(ctx)

	mod, err := engine.Compile(ctx, wasmtest.ClockApp())
	require.NoError(t, err)
	inst, err := mod.InstantiateWithConfig(ctx, nil)
	require.NoError(t, err)
	defer inst.Close(ctx)

	res, err := inst.Call(ctx, "now")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, int64(res[0]), int64(0))
}

func TestStdioWriters(t *testing.T) {
	ctx := context.Background()
	var out, errOut bytes.Buffer

	engine, err := NewWazeroEngineWithConfig(ctx, &Config{Stdout: &out, Stderr: &errOut})
	require.NoError(t, err)
	defer engine.Close(ctx)

	assert.Same(t, &out, engine.stdoutWriter())
	assert.Same(t, &errOut, engine.stderrWriter())

	plain, err := NewWazeroEngineWithConfig(ctx, nil)
	require.NoError(t, err)
	defer plain.Close(ctx)
	assert.NotNil(t, plain.stdoutWriter())
}

func TestInstantiateWithWASI(t *testing.T) {
	ctx := context.Background()
	engine, err := NewWazeroEngineWithConfig(ctx, nil)
	require.NoError(t, err)
	defer engine.Close(ctx)

	mod, err := engine.Compile(ctx, wasmtest.SyncApp(1))
	require.NoError(t, err)

	inst, err := mod.InstantiateWithConfig(ctx, &InstanceConfig{EnableWASI: true})
	require.NoError(t, err)
	defer inst.Close(ctx)

	assert.NotNil(t, engine.runtime.Module(wasiModuleName))
	assert.True(t, engine.wasiDone)
}
