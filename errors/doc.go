// Package errors provides structured error types for tickhost.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The three phases that matter to callers map to the host's failure taxonomy:
//
//	PhaseLoad     ModuleLoadError  fetch, compile or instantiate failed; fatal
//	PhaseStartup  StartupError     application creation failed or was rejected; fatal
//	PhaseAdvance  AdvanceError     a single tick failed
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseLoad, errors.KindSignature).
//		Export("web_update").
//		Detail("want 1 param, got %d", n).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.MissingExport("web_startup")
//	err := errors.Rejected(code)
//
// Match a whole phase with the sentinels or helpers:
//
//	if errors.IsStartup(err) { ... }
//	if stderrors.Is(err, errors.AdvanceError) { ... }
package errors
