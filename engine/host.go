package engine

import (
	"context"
	"time"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/tickhost/errors"
)

// HostModuleName is the import module under which host functions are exposed.
const HostModuleName = "tickhost"

// Host function names.
const (
	// HostLog writes a UTF-8 message from guest memory to the host log.
	// Signature: log(ptr: i32, len: i32)
	HostLog = "log"

	// HostNowMillis returns monotonic milliseconds since the engine started.
	// Signature: now_ms() -> i64
	HostNowMillis = "now_ms"
)

// initHostModule instantiates the tickhost import module once per engine.
func (e *WazeroEngine) initHostModule(ctx context.Context) error {
	e.hostMu.Lock()
	defer e.hostMu.Unlock()

	if e.hostDone {
		return nil
	}

	_, err := e.runtime.NewHostModuleBuilder(HostModuleName).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(e.hostLog), []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, nil).
		WithParameterNames("ptr", "len").
		Export(HostLog).
		NewFunctionBuilder().
		WithGoFunction(api.GoFunc(e.hostNowMillis), nil, []api.ValueType{api.ValueTypeI64}).
		Export(HostNowMillis).
		Instantiate(ctx)
	if err != nil {
		return errors.Registration(HostModuleName, HostLog, err)
	}

	e.hostDone = true
	return nil
}

func (e *WazeroEngine) hostLog(_ context.Context, mod api.Module, stack []uint64) {
	ptr := api.DecodeU32(stack[0])
	length := api.DecodeU32(stack[1])

	mem := mod.Memory()
	if mem == nil {
		e.logger.Warn("guest log without exported memory", zap.String("module", mod.Name()))
		return
	}

	data, ok := mem.Read(ptr, length)
	if !ok {
		e.logger.Warn("guest log out of bounds",
			zap.Uint32("ptr", ptr),
			zap.Uint32("len", length))
		return
	}

	e.logger.Info(string(data), zap.Bool("guest", true))
}

func (e *WazeroEngine) hostNowMillis(_ context.Context, stack []uint64) {
	stack[0] = api.EncodeI64(time.Since(e.started).Milliseconds())
}
