package wasmtest

// Export names used by the fixtures; they match the host's defaults.
const (
	CreateExport  = "web_startup"
	AdvanceExport = "web_update"
	PollExport    = "web_poll"

	// TicksExport returns how many times advance ran.
	TicksExport = "ticks"

	// LastHandleExport returns the handle passed to the latest advance.
	LastHandleExport = "last_handle"

	// PollsExport returns how many times poll ran.
	PollsExport = "polls"
)

const (
	globalTicks uint32 = iota
	globalLastHandle
	globalPolls
)

// Poll status codes, encoded in the upper 32 bits of poll's i64 result.
const (
	PollPending  int64 = 0
	PollReady    int64 = 1
	PollRejected int64 = 2
)

var (
	noArgsI32 = FuncType{Results: []ValType{I32}}
	i32ToNone = FuncType{Params: []ValType{I32}}
	i32ToI64  = FuncType{Params: []ValType{I32}, Results: []ValType{I64}}
)

func advanceFunc() Func {
	return Func{
		Name: AdvanceExport,
		Type: i32ToNone,
		Body: Seq(
			GlobalGet(globalTicks), I32Const(1), []byte{OpI32Add}, GlobalSet(globalTicks),
			LocalGet(0), GlobalSet(globalLastHandle),
		),
	}
}

func inspectFuncs() []Func {
	return []Func{
		{Name: TicksExport, Type: noArgsI32, Body: GlobalGet(globalTicks)},
		{Name: LastHandleExport, Type: noArgsI32, Body: GlobalGet(globalLastHandle)},
		{Name: PollsExport, Type: noArgsI32, Body: GlobalGet(globalPolls)},
	}
}

// SyncApp returns a module whose create export returns handle directly.
func SyncApp(handle int32) []byte {
	funcs := []Func{
		{Name: CreateExport, Type: noArgsI32, Body: I32Const(handle)},
		advanceFunc(),
	}
	return Module{Funcs: append(funcs, inspectFuncs()...), Globals: 3}.Encode()
}

// AsyncApp returns a module whose create export returns a ticket that
// becomes ready with handle on the readyAfter-th poll.
func AsyncApp(handle int32, readyAfter int32) []byte {
	return pollingApp(PollReady<<32|int64(uint32(handle)), readyAfter)
}

// RejectingApp returns a module whose pending creation rejects with code on
// the first poll.
func RejectingApp(code int32) []byte {
	return pollingApp(PollRejected<<32|int64(uint32(code)), 1)
}

func pollingApp(settled int64, after int32) []byte {
	funcs := []Func{
		{Name: CreateExport, Type: noArgsI32, Body: I32Const(1)},
		advanceFunc(),
		{
			Name: PollExport,
			Type: i32ToI64,
			Body: Seq(
				GlobalGet(globalPolls), I32Const(1), []byte{OpI32Add}, GlobalSet(globalPolls),
				I64Const(settled), I64Const(PollPending),
				GlobalGet(globalPolls), I32Const(after), []byte{OpI32GeU},
				[]byte{OpSelect},
			),
		},
	}
	return Module{Funcs: append(funcs, inspectFuncs()...), Globals: 3}.Encode()
}

// TrappingApp returns a module whose advance export always traps.
func TrappingApp(handle int32) []byte {
	funcs := []Func{
		{Name: CreateExport, Type: noArgsI32, Body: I32Const(handle)},
		{Name: AdvanceExport, Type: i32ToNone, Body: []byte{OpUnreachable}},
	}
	return Module{Funcs: funcs, Globals: 3}.Encode()
}

// CreateTrapApp returns a module whose create export traps.
func CreateTrapApp() []byte {
	funcs := []Func{
		{Name: CreateExport, Type: noArgsI32, Body: []byte{OpUnreachable}},
		advanceFunc(),
	}
	return Module{Funcs: funcs, Globals: 3}.Encode()
}

// LoggingApp returns a module whose create export logs msg through the
// tickhost.log import before returning handle.
func LoggingApp(msg string, handle int32) []byte {
	funcs := []Func{
		{
			Name: CreateExport,
			Type: noArgsI32,
			Body: Seq(I32Const(0), I32Const(int32(len(msg))), Call(0), I32Const(handle)),
		},
		advanceFunc(),
	}
	return Module{
		Imports: []Import{{Module: "tickhost", Name: "log", Type: FuncType{Params: []ValType{I32, I32}}}},
		Funcs:   funcs,
		Data:    []byte(msg),
		Globals: 3,
	}.Encode()
}

// ClockApp returns a module exporting now() backed by the tickhost.now_ms import.
func ClockApp() []byte {
	funcs := []Func{
		{Name: CreateExport, Type: noArgsI32, Body: I32Const(1)},
		advanceFunc(),
		{Name: "now", Type: FuncType{Results: []ValType{I64}}, Body: Call(0)},
	}
	return Module{
		Imports: []Import{{Module: "tickhost", Name: "now_ms", Type: FuncType{Results: []ValType{I64}}}},
		Funcs:   funcs,
		Globals: 3,
	}.Encode()
}

// BadCreateApp returns a module whose create export takes a parameter.
func BadCreateApp() []byte {
	funcs := []Func{
		{Name: CreateExport, Type: i32ToNone},
		advanceFunc(),
	}
	return Module{Funcs: funcs, Globals: 3}.Encode()
}

// WideCreateApp returns a module whose create export returns an i64 handle
// while advance only accepts an i32.
func WideCreateApp(handle int64) []byte {
	funcs := []Func{
		{Name: CreateExport, Type: FuncType{Results: []ValType{I64}}, Body: I64Const(handle)},
		advanceFunc(),
	}
	return Module{Funcs: funcs, Globals: 3}.Encode()
}

// NoAdvanceApp returns a module without an advance export.
func NoAdvanceApp() []byte {
	return Module{Funcs: []Func{{Name: CreateExport, Type: noArgsI32, Body: I32Const(1)}}}.Encode()
}
