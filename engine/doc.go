// Package engine provides the low-level wazero integration for tickhost.
//
// # Architecture
//
// The engine package provides three main types:
//
//	WazeroEngine   - Owns a wazero runtime, host imports and the compilation cache
//	WazeroModule   - A compiled application module, can create instances
//	WazeroInstance - A running module with callable exports
//
// # Instantiation Flow
//
//  1. WazeroEngine.Compile() validates and compiles the core wasm binary
//  2. WazeroModule.InstantiateWithConfig() registers host imports, WASI when
//     needed, and runs _initialize/_start if exported
//  3. WazeroInstance.Call() invokes exports with raw core values
//
// # Host Imports
//
// Modules may import the following functions from the "tickhost" module:
//
//	log(ptr: i32, len: i32)   write a message from linear memory to the host log
//	now_ms() -> i64           monotonic milliseconds since the engine started
//
// # WASI
//
// Modules importing wasi_snapshot_preview1 get it instantiated automatically;
// guest stdout and stderr are written to the engine logger line by line.
//
// # Thread Safety
//
// WazeroEngine and WazeroModule are safe for concurrent use.
// WazeroInstance is NOT thread-safe and should be used by a single goroutine.
package engine
