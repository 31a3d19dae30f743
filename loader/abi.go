package loader

import (
	"strings"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/tickhost/engine"
	"github.com/wippyai/tickhost/errors"
)

// Exports names the module entry points.
type Exports struct {
	// Create requests the application instance.
	// Signature: () -> i32|i64
	// Returns a handle, or a ticket for Poll when Poll is exported.
	Create string

	// Advance performs one simulation step.
	// Signature: (handle: i32|i64) -> any; results are ignored.
	// The handle parameter must be at least as wide as create's result.
	Advance string

	// Poll settles a pending creation. Optional; an empty name disables it.
	// Signature: (ticket: i32|i64) -> i64
	// Returns status<<32 | value, see PollStatus. A handle resolved
	// through Poll is therefore limited to 32 bits.
	Poll string
}

// DefaultExports matches the entry points generated for the web host.
var DefaultExports = Exports{
	Create:  "web_startup",
	Advance: "web_update",
	Poll:    "web_poll",
}

// PollStatus is the upper half of a poll result.
type PollStatus uint32

const (
	PollPending  PollStatus = 0 // value unused
	PollReady    PollStatus = 1 // value is the handle
	PollRejected PollStatus = 2 // value is a guest error code
)

func decodePoll(raw uint64) (PollStatus, uint32) {
	return PollStatus(raw >> 32), uint32(raw)
}

// abi is the resolved calling convention of a loaded module.
type abi struct {
	exports    Exports
	create64   bool
	advance64  bool
	ticket64   bool
	hasPolling bool
}

func resolveABI(mod *engine.WazeroModule, exports Exports) (*abi, error) {
	a := &abi{exports: exports}

	create, ok := mod.ExportedFunction(exports.Create)
	if !ok {
		return nil, errors.MissingExport(exports.Create)
	}
	if len(create.ParamTypes()) != 0 || len(create.ResultTypes()) != 1 || !isInt(create.ResultTypes()[0]) {
		return nil, errors.Signature(exports.Create, "() -> i32|i64", signature(create))
	}
	a.create64 = create.ResultTypes()[0] == api.ValueTypeI64

	advance, ok := mod.ExportedFunction(exports.Advance)
	if !ok {
		return nil, errors.MissingExport(exports.Advance)
	}
	if len(advance.ParamTypes()) != 1 || !isInt(advance.ParamTypes()[0]) {
		return nil, errors.Signature(exports.Advance, "(i32|i64) -> any", signature(advance))
	}
	a.advance64 = advance.ParamTypes()[0] == api.ValueTypeI64
	if a.create64 && !a.advance64 {
		return nil, errors.Signature(exports.Advance, "(i64) -> any", signature(advance))
	}

	if exports.Poll == "" {
		return a, nil
	}
	poll, ok := mod.ExportedFunction(exports.Poll)
	if !ok {
		return a, nil
	}
	if len(poll.ParamTypes()) != 1 || !isInt(poll.ParamTypes()[0]) ||
		len(poll.ResultTypes()) != 1 || poll.ResultTypes()[0] != api.ValueTypeI64 {
		return nil, errors.Signature(exports.Poll, "(i32|i64) -> i64", signature(poll))
	}
	a.ticket64 = poll.ParamTypes()[0] == api.ValueTypeI64
	a.hasPolling = true

	return a, nil
}

// decodeCreate normalizes create's raw result to the declared width.
func (a *abi) decodeCreate(raw uint64) uint64 {
	if a.create64 {
		return raw
	}
	return uint64(api.DecodeU32(raw))
}

func (a *abi) encodeHandle(h uint64) uint64 {
	if a.advance64 {
		return h
	}
	return api.EncodeU32(uint32(h))
}

func (a *abi) encodeTicket(t uint64) uint64 {
	if a.ticket64 {
		return t
	}
	return api.EncodeU32(uint32(t))
}

func isInt(t api.ValueType) bool {
	return t == api.ValueTypeI32 || t == api.ValueTypeI64
}

func signature(def api.FunctionDefinition) string {
	return "(" + typeList(def.ParamTypes()) + ") -> (" + typeList(def.ResultTypes()) + ")"
}

func typeList(types []api.ValueType) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = api.ValueTypeName(t)
	}
	return strings.Join(names, ", ")
}
