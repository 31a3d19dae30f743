package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseLoad,
				Kind:   KindSignature,
				Export: "web_update",
				Detail: "want 1 param, got 0",
			},
			contains: []string{"[load]", "signature", "at web_update", "want 1 param"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseAdvance,
				Kind:  KindTrap,
			},
			contains: []string{"[advance]", "trap"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseStartup,
				Kind:   KindCreateFailed,
				Detail: "call web_startup",
				Cause:  errors.New("unreachable"),
			},
			contains: []string{"[startup]", "create_failed", "call web_startup", "caused by", "unreachable"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				assert.Contains(t, msg, s)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseLoad,
		Kind:  KindFetch,
		Cause: cause,
	}

	assert.ErrorIs(t, err.Unwrap(), cause)
	assert.ErrorIs(t, err, cause)

	wrapped := Startup(KindCanceled, "await application", context.Canceled)
	assert.ErrorIs(t, wrapped, context.Canceled)
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase:  PhaseLoad,
		Kind:   KindMissingExport,
		Export: "web_startup",
	}

	assert.True(t, err.Is(&Error{Phase: PhaseLoad, Kind: KindMissingExport}))
	assert.False(t, err.Is(&Error{Phase: PhaseStartup, Kind: KindMissingExport}))
	assert.False(t, err.Is(&Error{Phase: PhaseLoad, Kind: KindCompile}))
	assert.True(t, err.Is(&Error{Phase: PhaseLoad}), "empty kind matches the whole phase")
	assert.False(t, err.Is(errors.New("other")))
}

func TestTaxonomyHelpers(t *testing.T) {
	tests := []struct {
		err     error
		name    string
		load    bool
		startup bool
		advance bool
	}{
		{name: "fetch", err: Fetch("file app.wasm", errors.New("no such file")), load: true},
		{name: "instantiation", err: Instantiation(errors.New("bad import")), load: true},
		{name: "missing export", err: MissingExport("web_update"), load: true},
		{name: "rejected", err: Rejected(5), startup: true},
		{name: "advance", err: Advance(3, errors.New("trap")), advance: true},
		{name: "wrapped startup", err: fmt.Errorf("bootstrap: %w", Startup(KindCreateFailed, "x", nil)), startup: true},
		{name: "plain", err: errors.New("plain")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.load, IsModuleLoad(tt.err))
			assert.Equal(t, tt.startup, IsStartup(tt.err))
			assert.Equal(t, tt.advance, IsAdvance(tt.err))
		})
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseLoad, KindSignature).
		Export("web_poll").
		Value(2).
		Cause(cause).
		Detail("want %s, got %s", "i64", "i32").
		Build()

	require.NotNil(t, err)
	assert.Equal(t, PhaseLoad, err.Phase)
	assert.Equal(t, KindSignature, err.Kind)
	assert.Equal(t, "web_poll", err.Export)
	assert.Equal(t, 2, err.Value)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "want i64, got i32", err.Detail)

	plain := New(PhaseConfig, KindInvalidInput).Detail("period must be positive").Build()
	assert.Equal(t, "period must be positive", plain.Detail)
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("Rejected", func(t *testing.T) {
		err := Rejected(7)
		assert.Equal(t, KindRejected, err.Kind)
		assert.Equal(t, uint32(7), err.Value)
		assert.Contains(t, err.Detail, "7")
	})

	t.Run("Advance", func(t *testing.T) {
		err := Advance(42, errors.New("boom"))
		assert.Equal(t, PhaseAdvance, err.Phase)
		assert.Equal(t, uint64(42), err.Value)
		assert.Contains(t, err.Error(), "tick 42")
	})

	t.Run("Signature", func(t *testing.T) {
		err := Signature("web_startup", "() -> i32|i64", "(i32) -> ()")
		assert.Equal(t, "web_startup", err.Export)
		assert.Contains(t, err.Detail, "(i32) -> ()")
	})

	t.Run("ParseFailed", func(t *testing.T) {
		err := ParseFailed("tickhost.toml", errors.New("bad key"))
		assert.Equal(t, PhaseConfig, err.Phase)
		assert.Equal(t, KindParse, err.Kind)
	})

	t.Run("Registration", func(t *testing.T) {
		err := Registration("tickhost", "log", errors.New("dup"))
		assert.Equal(t, PhaseHost, err.Phase)
		assert.Contains(t, err.Detail, "tickhost#log")
	})
}
