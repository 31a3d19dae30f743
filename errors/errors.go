package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Phase indicates where in the host lifecycle the error occurred
type Phase string

const (
	PhaseConfig  Phase = "config"  // configuration loading
	PhaseLoad    Phase = "load"    // artifact fetch, compile, instantiate
	PhaseStartup Phase = "startup" // application creation handshake
	PhaseAdvance Phase = "advance" // a single tick
	PhaseHost    Phase = "host"    // host import registration
)

// Kind categorizes the error
type Kind string

const (
	KindFetch          Kind = "fetch"
	KindCompile        Kind = "compile"
	KindInstantiation  Kind = "instantiation"
	KindMissingExport  Kind = "missing_export"
	KindSignature      Kind = "signature"
	KindInvalidInput   Kind = "invalid_input"
	KindParse          Kind = "parse"
	KindCreateFailed   Kind = "create_failed"
	KindRejected       Kind = "rejected"
	KindCanceled       Kind = "canceled"
	KindAlreadyStarted Kind = "already_started"
	KindTrap           Kind = "trap"
	KindRegistration   Kind = "registration"
)

// Error is the structured error type used throughout tickhost
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Export string
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Export != "" {
		b.WriteString(" at ")
		b.WriteString(e.Export)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target with an empty Kind matches any error of the same Phase.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind == "" {
		return e.Phase == t.Phase
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Export sets the module export the error relates to
func (b *Builder) Export(name string) *Builder {
	b.err.Export = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Phase sentinels for errors.Is matching on the whole taxonomy.
var (
	ModuleLoadError = &Error{Phase: PhaseLoad}
	StartupError    = &Error{Phase: PhaseStartup}
	AdvanceError    = &Error{Phase: PhaseAdvance}
)

// IsModuleLoad reports whether err is a module load failure
func IsModuleLoad(err error) bool {
	return errors.Is(err, ModuleLoadError)
}

// IsStartup reports whether err is an application startup failure
func IsStartup(err error) bool {
	return errors.Is(err, StartupError)
}

// IsAdvance reports whether err is a failed tick
func IsAdvance(err error) bool {
	return errors.Is(err, AdvanceError)
}

// Load creates a module loading error
func Load(kind Kind, detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Fetch creates an artifact fetch error
func Fetch(source string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindFetch,
		Detail: fmt.Sprintf("fetch %s", source),
		Cause:  cause,
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInstantiation,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// MissingExport creates an error for a required export the module lacks
func MissingExport(name string) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindMissingExport,
		Export: name,
		Detail: fmt.Sprintf("function %q not exported", name),
	}
}

// Signature creates an error for an export with an unusable signature
func Signature(name, want, got string) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindSignature,
		Export: name,
		Detail: fmt.Sprintf("want %s, got %s", want, got),
	}
}

// Startup creates an application startup error
func Startup(kind Kind, detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseStartup,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Rejected creates an error for a pending creation that settled with a failure
func Rejected(code uint32) *Error {
	return &Error{
		Phase:  PhaseStartup,
		Kind:   KindRejected,
		Detail: fmt.Sprintf("application creation rejected with code %d", code),
		Value:  code,
	}
}

// Advance creates a tick failure error
func Advance(tick uint64, cause error) *Error {
	return &Error{
		Phase:  PhaseAdvance,
		Kind:   KindTrap,
		Detail: fmt.Sprintf("tick %d", tick),
		Value:  tick,
		Cause:  cause,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// ParseFailed creates a parsing error
func ParseFailed(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseConfig,
		Kind:   KindParse,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
	}
}

// Registration creates a host import registration error
func Registration(namespace, name string, cause error) *Error {
	return &Error{
		Phase:  PhaseHost,
		Kind:   KindRegistration,
		Detail: fmt.Sprintf("register %s#%s", namespace, name),
		Cause:  cause,
	}
}
