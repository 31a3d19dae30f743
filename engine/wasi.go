package engine

import (
	"context"
	"fmt"
	"io"

	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"
	"go.uber.org/zap/zapio"
)

const wasiModuleName = wasi_snapshot_preview1.ModuleName

// initWASI instantiates WASI preview1 once per engine.
func (e *WazeroEngine) initWASI(ctx context.Context) error {
	e.hostMu.Lock()
	defer e.hostMu.Unlock()

	if e.wasiDone {
		return nil
	}

	if e.runtime.Module(wasiModuleName) == nil {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, e.runtime); err != nil {
			return fmt.Errorf("instantiate WASI: %w", err)
		}
	}

	e.wasiDone = true
	return nil
}

func (e *WazeroEngine) stdoutWriter() io.Writer {
	if e.stdout != nil {
		return e.stdout
	}
	return &zapio.Writer{Log: e.logger.With(zap.String("stream", "stdout")), Level: zap.InfoLevel}
}

func (e *WazeroEngine) stderrWriter() io.Writer {
	if e.stderr != nil {
		return e.stderr
	}
	return &zapio.Writer{Log: e.logger.With(zap.String("stream", "stderr")), Level: zap.WarnLevel}
}
