package main

import (
	"flag"
	"io"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/tickhost/errors"
	"github.com/wippyai/tickhost/scheduler"
)

func parse(t *testing.T, args ...string) (*options, map[string]bool) {
	t.Helper()
	fs := flag.NewFlagSet("tickhost", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	o, set, err := parseFlags(fs, args)
	require.NoError(t, err)
	return o, set
}

func TestParseFlags(t *testing.T) {
	o, set := parse(t, "-wasm", "app.wasm", "-period", "20ms", "-i")

	assert.Equal(t, "app.wasm", o.wasmFile)
	assert.Equal(t, 20*time.Millisecond, o.period)
	assert.True(t, o.interactive)
	assert.True(t, set["wasm"])
	assert.True(t, set["period"])
	assert.False(t, set["url"])
}

func TestParseFlagsUnknown(t *testing.T) {
	fs := flag.NewFlagSet("tickhost", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	_, _, err := parseFlags(fs, []string{"-nope"})
	assert.Error(t, err)
}

func TestBuildConfig(t *testing.T) {
	o, set := parse(t, "-wasm", "app.wasm", "-overlap", "skip", "-on-failure", "continue")

	cfg, err := buildConfig(o, set)
	require.NoError(t, err)
	assert.Equal(t, "app.wasm", cfg.Source.Path)
	assert.Equal(t, "skip", cfg.Overlap)
	assert.Equal(t, "continue", cfg.OnFailure)
	assert.Equal(t, scheduler.DefaultPeriod, cfg.Period)
}

func TestBuildConfigFlagsOverrideEnv(t *testing.T) {
	t.Setenv("TICKHOST_PERIOD", "50ms")
	t.Setenv("TICKHOST_LOG_LEVEL", "debug")

	o, set := parse(t, "-wasm", "app.wasm", "-period", "10ms")
	cfg, err := buildConfig(o, set)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Millisecond, cfg.Period)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestBuildConfigURLReplacesPath(t *testing.T) {
	t.Setenv("TICKHOST_SOURCE_PATH", "env.wasm")

	o, set := parse(t, "-url", "https://example.com/app.wasm")
	cfg, err := buildConfig(o, set)
	require.NoError(t, err)
	assert.Empty(t, cfg.Source.Path)
	assert.Equal(t, "https://example.com/app.wasm", cfg.Source.URL)
}

func TestBuildConfigInvalid(t *testing.T) {
	o, set := parse(t, "-overlap", "skip")
	_, err := buildConfig(o, set)
	var e *errors.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errors.PhaseConfig, e.Phase)
	assert.Equal(t, errors.KindInvalidInput, e.Kind)
}

func TestBuildLogger(t *testing.T) {
	for _, format := range []string{"console", "json"} {
		logger, err := buildLogger("warn", format)
		require.NoError(t, err, format)
		assert.False(t, logger.Core().Enabled(-1), format)
		assert.True(t, logger.Core().Enabled(1), format)
	}

	_, err := buildLogger("loud", "console")
	assert.Error(t, err)
}

func TestDescribe(t *testing.T) {
	load := errors.MissingExport("web_update")
	assert.True(t, strings.HasPrefix(describe(load), "module load failed: "))

	startup := errors.Rejected(3)
	assert.True(t, strings.HasPrefix(describe(startup), "application startup failed: "))

	advance := errors.Advance(4, io.ErrUnexpectedEOF)
	assert.True(t, strings.HasPrefix(describe(advance), "application halted: "))

	assert.Equal(t, "short write", describe(io.ErrShortWrite))
}

func TestLogBuffer(t *testing.T) {
	buf := newLogBuffer(3)
	_, err := buf.Write([]byte("one\ntwo\n"))
	require.NoError(t, err)
	_, err = buf.Write([]byte("three\nfour\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"two", "three", "four"}, buf.Lines())
}

func TestBufferLogger(t *testing.T) {
	buf := newLogBuffer(10)
	logger, err := newBufferLogger(buf, "info")
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("ticking started")

	lines := buf.Lines()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "ticking started")
}

type stubHost struct {
	err   error
	stats scheduler.Stats
}

func (h *stubHost) Stats() scheduler.Stats { return h.stats }
func (h *stubHost) Err() error             { return h.err }

func TestInteractiveModel(t *testing.T) {
	h := &stubHost{}
	logs := newLogBuffer(4)
	m := newInteractiveModel(h, logs, "file:app.wasm")

	assert.Contains(t, m.View(), "loading module")

	_, _ = m.Update(startedMsg{})
	assert.NotContains(t, m.View(), "loading module")

	at := time.Now()
	h.stats = scheduler.Stats{State: scheduler.StateRunning, Ticks: 10, Handle: 7, HasHandle: true, Period: 33 * time.Millisecond}
	_, cmd := m.Update(refreshMsg(at))
	assert.NotNil(t, cmd)

	h.stats.Ticks = 40
	_, _ = m.Update(refreshMsg(at.Add(time.Second)))
	assert.InDelta(t, 30.0, m.rate, 0.001)

	_, _ = logs.Write([]byte("guest says hi\n"))
	view := m.View()
	assert.Contains(t, view, "running")
	assert.Contains(t, view, "40")
	assert.Contains(t, view, "guest says hi")
}

func TestInteractiveModelShowsStartupError(t *testing.T) {
	m := newInteractiveModel(&stubHost{}, newLogBuffer(4), "bytes")

	_, _ = m.Update(startedMsg{err: errors.Rejected(9)})
	assert.Contains(t, m.View(), "application startup failed")
}

func TestInteractiveModelQuit(t *testing.T) {
	m := newInteractiveModel(&stubHost{}, newLogBuffer(4), "bytes")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}
