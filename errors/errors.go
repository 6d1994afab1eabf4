package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Phase indicates where in the bootstrap pipeline the error occurred
type Phase string

const (
	PhaseLocate    Phase = "locate"    // hosting library discovery
	PhaseLoad      Phase = "load"      // shared library loading
	PhaseBind      Phase = "bind"      // export resolution
	PhaseInit      Phase = "init"      // runtime initialization
	PhaseDelegate  Phase = "delegate"  // runtime delegate retrieval
	PhaseComponent Phase = "component" // managed assembly loading
	PhaseResolve   Phase = "resolve"   // managed method resolution
	PhaseInvoke    Phase = "invoke"    // calls through resolved pointers
	PhaseProperty  Phase = "property"  // runtime property access
	PhaseShutdown  Phase = "shutdown"  // runtime teardown
	PhaseConfig    Phase = "config"    // host profile handling
)

// Kind categorizes the error
type Kind string

const (
	KindLibraryLoad         Kind = "library_load"
	KindSymbolMissing       Kind = "symbol_missing"
	KindRuntimeInit         Kind = "runtime_init"
	KindDelegateUnavailable Kind = "delegate_unavailable"
	KindComponentLoad       Kind = "component_load"
	KindMethodResolution    Kind = "method_resolution"
	KindHostNotFound        Kind = "host_not_found"
	KindSignature           Kind = "signature"
	KindStatus              Kind = "status"
	KindNullHandle          Kind = "null_handle"
	KindNotInitialized      Kind = "not_initialized"
	KindClosed              Kind = "closed"
	KindInvalidInput        Kind = "invalid_input"
	KindInvalidConfig       Kind = "invalid_config"
)

// Sentinel targets for errors.Is. They carry no phase, so they match
// any *Error of the same kind.
var (
	ErrLibraryLoad         = &Error{Kind: KindLibraryLoad}
	ErrSymbolMissing       = &Error{Kind: KindSymbolMissing}
	ErrRuntimeInit         = &Error{Kind: KindRuntimeInit}
	ErrDelegateUnavailable = &Error{Kind: KindDelegateUnavailable}
	ErrComponentLoad       = &Error{Kind: KindComponentLoad}
	ErrMethodResolution    = &Error{Kind: KindMethodResolution}
	ErrHostNotFound        = &Error{Kind: KindHostNotFound}
	ErrSignature           = &Error{Kind: KindSignature}
	ErrNullHandle          = &Error{Kind: KindNullHandle}
	ErrNotInitialized      = &Error{Kind: KindNotInitialized}
	ErrClosed              = &Error{Kind: KindClosed}
	ErrInvalidInput        = &Error{Kind: KindInvalidInput}
	ErrInvalidConfig       = &Error{Kind: KindInvalidConfig}
)

// Error is the structured error type used throughout the host
type Error struct {
	Cause  error
	Phase  Phase
	Kind   Kind
	Path   string // library, runtimeconfig or assembly path
	Symbol string // export, type or method name
	Detail string
	Code   uint32 // raw hosting status; zero when not applicable
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Symbol != "" {
		b.WriteString(" ")
		b.WriteString(e.Symbol)
	}

	if e.Path != "" {
		b.WriteString(" in ")
		b.WriteString(e.Path)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Code != 0 {
		fmt.Fprintf(&b, " (status 0x%08X)", e.Code)
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

// Is reports whether target matches this error. A target without a
// phase matches on kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase != "" && t.Phase != e.Phase {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CodeOf returns the hosting status carried by err, or 0.
func CodeOf(err error) uint32 {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
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

// Path sets the file path the error refers to
func (b *Builder) Path(path string) *Builder {
	b.err.Path = path
	return b
}

// Symbol sets the export, type or method name
func (b *Builder) Symbol(name string) *Builder {
	b.err.Symbol = name
	return b
}

// Code sets the raw hosting status code
func (b *Builder) Code(code uint32) *Builder {
	b.err.Code = code
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

// Convenience constructors, one per failure kind

// LibraryLoad creates a shared library load failure
func LibraryLoad(path string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindLibraryLoad,
		Path:   path,
		Detail: "cannot load shared library",
		Cause:  cause,
	}
}

// SymbolMissing creates an export resolution failure naming the symbol
func SymbolMissing(library, symbol string, cause error) *Error {
	return &Error{
		Phase:  PhaseBind,
		Kind:   KindSymbolMissing,
		Path:   library,
		Symbol: symbol,
		Cause:  cause,
	}
}

// RuntimeInit creates an initialization failure carrying the runtime status
func RuntimeInit(target string, code uint32, detail string) *Error {
	return &Error{
		Phase:  PhaseInit,
		Kind:   KindRuntimeInit,
		Path:   target,
		Code:   code,
		Detail: detail,
	}
}

// DelegateUnavailable creates a delegate retrieval failure
func DelegateUnavailable(delegate string, code uint32) *Error {
	return &Error{
		Phase:  PhaseDelegate,
		Kind:   KindDelegateUnavailable,
		Symbol: delegate,
		Code:   code,
		Detail: "runtime does not provide this delegate",
	}
}

// ComponentLoad creates a managed assembly load failure
func ComponentLoad(path string, code uint32, detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseComponent,
		Kind:   KindComponentLoad,
		Path:   path,
		Code:   code,
		Detail: detail,
		Cause:  cause,
	}
}

// MethodResolution creates a failure to resolve typeName::method
func MethodResolution(typeName, method string, code uint32) *Error {
	return &Error{
		Phase:  PhaseResolve,
		Kind:   KindMethodResolution,
		Symbol: typeName + "::" + method,
		Code:   code,
	}
}

// HostNotFound creates a hosting library discovery failure
func HostNotFound(code uint32, detail string) *Error {
	return &Error{
		Phase:  PhaseLocate,
		Kind:   KindHostNotFound,
		Code:   code,
		Detail: detail,
	}
}

// Signature creates a native signature binding failure
func Signature(symbol, detail string) *Error {
	return &Error{
		Phase:  PhaseBind,
		Kind:   KindSignature,
		Symbol: symbol,
		Detail: detail,
	}
}

// Status creates a generic failure of a hosting call
func Status(phase Phase, op string, code uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindStatus,
		Symbol: op,
		Code:   code,
	}
}

// NullHandle creates an error for a native call that returned a null handle
func NullHandle(phase Phase, op string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNullHandle,
		Symbol: op,
		Detail: "returned a null handle",
	}
}

// NotInitialized creates a not-initialized error
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// Closed creates an error for use of a released resource
func Closed(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s is closed", component),
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

// InvalidConfig creates a host profile error
func InvalidConfig(path string, cause error) *Error {
	return &Error{
		Phase: PhaseConfig,
		Kind:  KindInvalidConfig,
		Path:  path,
		Cause: cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
