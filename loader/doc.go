// Package loader performs the one-time acquisition of the hosted application
// module: fetch the artifact, compile it, instantiate it with host imports and
// resolve its entry points into a Namespace.
//
// # Sources
//
//	FileSource   local file; with Wait, blocks until the file appears
//	HTTPSource   GET over HTTP/1.1 or HTTP/2
//	BytesSource  in-memory artifact
//
// # Module ABI
//
// Entry point names are configurable through Exports; the defaults are:
//
//	web_startup() -> i32|i64         create the application (handle or ticket)
//	web_update(handle: i32|i64)      advance one step
//	web_poll(ticket: i32|i64) -> i64 optional; settle a pending creation
//
// A module that exports web_poll uses the asynchronous startup contract:
// web_startup returns a ticket and the host calls web_poll until the upper
// 32 bits of its result report ready (1) or rejected (2). The lower 32 bits
// carry the handle or the guest's error code.
//
// # Failure
//
// Load returns errors from the load phase (see errors.IsModuleLoad). There
// is no retry; callers treat a load failure as fatal.
package loader
