package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/tickhost/config"
	"github.com/wippyai/tickhost/errors"
	"github.com/wippyai/tickhost/events"
	"github.com/wippyai/tickhost/internal/wasmtest"
	"github.com/wippyai/tickhost/loader"
	"github.com/wippyai/tickhost/scheduler"
	"github.com/wippyai/tickhost/status"
)

type eventLog struct {
	types []string
	mu    sync.Mutex
}

func (l *eventLog) observer() events.Observer {
	return events.NewFuncObserver("test", func(_ context.Context, e cloudevents.Event) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.types = append(l.types, e.Type())
		return nil
	})
}

func (l *eventLog) Types() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.types...)
}

func testConfig(t *testing.T, wasm []byte) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.wasm")
	require.NoError(t, os.WriteFile(path, wasm, 0o644))

	cfg := config.Default()
	cfg.Source.Path = path
	cfg.Period = 5 * time.Millisecond
	cfg.PollInterval = time.Millisecond
	require.NoError(t, cfg.Validate())
	return cfg
}

func shutdown(t *testing.T, h *Host) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.Shutdown(ctx))
}

func TestSourceFor(t *testing.T) {
	cfg := config.Default()
	cfg.Source.Path = "app.wasm"
	cfg.Source.Wait = true
	assert.Equal(t, loader.FileSource{Path: "app.wasm", Wait: true}, SourceFor(cfg))

	cfg.Source = config.Source{URL: "https://example.com/app.wasm"}
	assert.Equal(t, loader.HTTPSource{URL: "https://example.com/app.wasm"}, SourceFor(cfg))
}

func TestHost_TicksAndServesStatus(t *testing.T) {
	cfg := testConfig(t, wasmtest.SyncApp(42))
	cfg.StatusAddr = "127.0.0.1:0"
	cfg.ReportInterval = time.Second

	log := &eventLog{}
	h := New(cfg, WithObserver(log.observer()))
	require.NoError(t, h.Start(context.Background()))

	require.Eventually(t, func() bool { return h.Stats().Ticks >= 3 }, 5*time.Second, time.Millisecond)
	assert.Equal(t, scheduler.StateRunning, h.Stats().State)
	assert.Len(t, h.reporter.Entries(), 1)

	resp, err := http.Get(fmt.Sprintf("http://%s/status", h.StatusAddr()))
	require.NoError(t, err)
	defer resp.Body.Close()

	var report status.Report
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.Equal(t, "running", report.State)
	assert.Equal(t, uint64(42), report.Handle)
	require.NotNil(t, report.Module)
	assert.Contains(t, report.Module.Exports, wasmtest.AdvanceExport)

	shutdown(t, h)
	shutdown(t, h)

	assert.Equal(t, scheduler.StateStopped, h.Stats().State)
	assert.Equal(t, []string{
		events.TypeModuleLoaded,
		events.TypeApplicationCreated,
		events.TypeTickingStarted,
		events.TypeStopped,
	}, log.Types())
}

func TestHost_PendingCreation(t *testing.T) {
	h := New(testConfig(t, wasmtest.AsyncApp(9, 4)))
	require.NoError(t, h.Start(context.Background()))
	defer shutdown(t, h)

	require.Eventually(t, func() bool { return h.Stats().Ticks >= 1 }, 5*time.Second, time.Millisecond)
	assert.Equal(t, uint64(9), uint64(h.Stats().Handle))
}

func TestHost_LoadFailure(t *testing.T) {
	cfg := testConfig(t, []byte("garbage"))
	log := &eventLog{}
	h := New(cfg, WithObserver(log.observer(), events.TypeModuleLoadFailed))

	err := h.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsModuleLoad(err))
	assert.Nil(t, h.Scheduler())
	assert.Nil(t, h.Done())
	assert.Equal(t, []string{events.TypeModuleLoadFailed}, log.Types())

	shutdown(t, h)
}

func TestHost_RejectedCreation(t *testing.T) {
	h := New(testConfig(t, wasmtest.RejectingApp(5)))

	err := h.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsStartup(err))
	assert.Equal(t, uint64(0), h.Stats().Ticks)
	assert.Equal(t, scheduler.StateFailed, h.Stats().State)

	shutdown(t, h)
}

func TestHost_WithSource(t *testing.T) {
	cfg := testConfig(t, []byte("garbage"))
	h := New(cfg, WithSource(loader.BytesSource{Name: "inline", Data: wasmtest.SyncApp(1)}))
	require.NoError(t, h.Start(context.Background()))
	shutdown(t, h)
}

func TestHost_EventsSink(t *testing.T) {
	var (
		mu    sync.Mutex
		types []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		types = append(types, r.Header.Get("Ce-Type"))
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	cfg := testConfig(t, wasmtest.SyncApp(1))
	cfg.EventsURL = srv.URL

	h := New(cfg)
	require.NoError(t, h.Start(context.Background()))
	shutdown(t, h)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, types, events.TypeTickingStarted)
	assert.Contains(t, types, events.TypeStopped)
}

func TestHost_Logging(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	h := New(testConfig(t, wasmtest.LoggingApp("hello from guest", 1)), WithLogger(zap.New(core)))
	require.NoError(t, h.Start(context.Background()))
	shutdown(t, h)

	guest := logs.FilterField(zap.Bool("guest", true)).All()
	require.NotEmpty(t, guest)
	assert.Equal(t, "hello from guest", guest[0].Message)
	assert.NotZero(t, logs.FilterMessage("ticking started").Len())
}

func TestRun_HaltsOnTrap(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := Run(ctx, testConfig(t, wasmtest.TrappingApp(1)))
	require.Error(t, err)
	assert.True(t, errors.IsAdvance(err))
}

func TestRun_ContinuePolicyUntilCanceled(t *testing.T) {
	cfg := testConfig(t, wasmtest.TrappingApp(1))
	cfg.OnFailure = "continue"

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	assert.NoError(t, Run(ctx, cfg))
}

func TestRun_StartupError(t *testing.T) {
	err := Run(context.Background(), testConfig(t, wasmtest.NoAdvanceApp()))
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseLoad, Kind: errors.KindMissingExport})
}
