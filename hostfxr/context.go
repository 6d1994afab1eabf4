package hostfxr

import (
	"os"
	"runtime"
	"sync"
	"unsafe"

	"go.uber.org/zap"

	"github.com/wippyai/clr-host/errors"
	"github.com/wippyai/clr-host/native"
)

// State is the position of a Context in the initialization protocol.
type State int

const (
	StateUnstarted State = iota
	StateInitialized
	StateDelegateObtained
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateInitialized:
		return "initialized"
	case StateDelegateObtained:
		return "delegate_obtained"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Mode records which initialize entry point produced a Context.
type Mode int

const (
	ModeRuntimeConfig Mode = iota + 1
	ModeCommandLine
)

func (m Mode) String() string {
	switch m {
	case ModeRuntimeConfig:
		return "runtime_config"
	case ModeCommandLine:
		return "command_line"
	default:
		return "none"
	}
}

// callMu serializes hosting ABI calls process-wide. The runtime allows a
// single active runtime per process and the host tracks its contexts in
// global state.
var callMu sync.Mutex

// Serialized runs fn while holding the process-wide hosting lock. Code
// that calls into native hosting entry points outside this package (for
// example a component's own loader) uses it to stay ordered with the rest.
func Serialized(fn func()) {
	callMu.Lock()
	defer callMu.Unlock()
	fn()
}

type initOptions struct {
	hostPath   string
	dotnetRoot string
}

// InitOption adjusts hostfxr_initialize_parameters.
type InitOption func(*initOptions)

// WithHostPath sets the path reported to the runtime as the native host.
func WithHostPath(path string) InitOption {
	return func(o *initOptions) { o.hostPath = path }
}

// WithDotnetRoot sets the .NET install root used for framework resolution.
func WithDotnetRoot(root string) InitOption {
	return func(o *initOptions) { o.dotnetRoot = root }
}

func buildParams(opts []InitOption) (*initParams, error) {
	var o initOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.hostPath == "" && o.dotnetRoot == "" {
		return nil, nil
	}

	p := &initParams{size: unsafe.Sizeof(initParams{})}
	if o.hostPath != "" {
		s, err := native.StringPtr(o.hostPath)
		if err != nil {
			return nil, errors.InvalidInput(errors.PhaseInit, "host path: "+err.Error())
		}
		p.hostPath = s
	}
	if o.dotnetRoot != "" {
		s, err := native.StringPtr(o.dotnetRoot)
		if err != nil {
			return nil, errors.InvalidInput(errors.PhaseInit, "dotnet root: "+err.Error())
		}
		p.dotnetRoot = s
	}
	return p, nil
}

// Context is an initialized hostfxr host context. It moves through
// Initialized and DelegateObtained to Closed; every capability obtained
// from it stays valid after Close.
type Context struct {
	lib    *Library
	target string
	mode   Mode
	status StatusCode

	mu      sync.Mutex
	handle  uintptr
	state   State
	started bool
}

// InitializeForRuntimeConfig initializes a context from a
// *.runtimeconfig.json file. The file is checked before the runtime sees
// it so that a missing or malformed artifact fails without touching
// native state.
func (l *Library) InitializeForRuntimeConfig(path string, opts ...InitOption) (*Context, error) {
	if l == nil || l.initializeForRuntimeConfig == nil {
		return nil, errors.NotInitialized(errors.PhaseInit, "hostfxr library")
	}
	if _, err := ReadRuntimeConfig(path); err != nil {
		return nil, errors.New(errors.PhaseInit, errors.KindRuntimeInit).
			Path(path).
			Cause(err).
			Detail("unusable runtime config").
			Build()
	}

	cpath, err := native.StringPtr(path)
	if err != nil {
		return nil, errors.InvalidInput(errors.PhaseInit, "runtime config path: "+err.Error())
	}
	params, err := buildParams(opts)
	if err != nil {
		return nil, err
	}

	var handle uintptr
	callMu.Lock()
	rc := l.initializeForRuntimeConfig(cpath, params, &handle)
	callMu.Unlock()
	runtime.KeepAlive(cpath)
	runtime.KeepAlive(params)

	return l.newContext(path, ModeRuntimeConfig, SymInitializeForRuntimeConfig, statusOf(rc), handle)
}

// InitializeForCommandLine initializes a context as if the host was
// started with args. args[0] is the managed entry assembly and must exist.
func (l *Library) InitializeForCommandLine(args []string, opts ...InitOption) (*Context, error) {
	if l == nil || l.initializeForCommandLine == nil {
		return nil, errors.NotInitialized(errors.PhaseInit, "hostfxr library")
	}
	if len(args) == 0 || args[0] == "" {
		return nil, errors.InvalidInput(errors.PhaseInit, "command line needs the entry assembly as its first argument")
	}
	if _, err := os.Stat(args[0]); err != nil {
		return nil, errors.New(errors.PhaseInit, errors.KindRuntimeInit).
			Path(args[0]).
			Cause(err).
			Detail("entry assembly not found").
			Build()
	}

	argv, err := native.StringArray(args)
	if err != nil {
		return nil, errors.InvalidInput(errors.PhaseInit, "command line: "+err.Error())
	}
	params, err := buildParams(opts)
	if err != nil {
		return nil, err
	}

	var handle uintptr
	callMu.Lock()
	rc := l.initializeForCommandLine(int32(len(argv)), native.First(argv), params, &handle)
	callMu.Unlock()
	runtime.KeepAlive(argv)
	runtime.KeepAlive(params)

	return l.newContext(args[0], ModeCommandLine, SymInitializeForCommandLine, statusOf(rc), handle)
}

func (l *Library) newContext(target string, mode Mode, op string, status StatusCode, handle uintptr) (*Context, error) {
	if !status.Succeeded() {
		Logger().Warn("runtime initialization failed",
			zap.String("target", target),
			zap.String("op", op),
			zap.Stringer("status", status))
		return nil, errors.RuntimeInit(target, uint32(status), op+" failed")
	}
	if handle == 0 {
		return nil, errors.RuntimeInit(target, uint32(status), op+" returned a null host context")
	}

	l.initialized.Store(true)
	Logger().Info("runtime initialized",
		zap.String("target", target),
		zap.Stringer("mode", mode),
		zap.Stringer("status", status))

	return &Context{
		lib:    l,
		target: target,
		mode:   mode,
		status: status,
		handle: handle,
		state:  StateInitialized,
	}, nil
}

// Delegate returns the raw function pointer of a runtime delegate.
// The first successful call starts the runtime.
func (c *Context) Delegate(kind DelegateKind) (uintptr, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.usable(errors.PhaseDelegate); err != nil {
		return 0, err
	}

	var fn uintptr
	callMu.Lock()
	rc := c.lib.getRuntimeDelegate(c.handle, int32(kind), &fn)
	callMu.Unlock()

	status := statusOf(rc)
	if !status.Succeeded() || fn == 0 {
		Logger().Debug("runtime delegate unavailable",
			zap.Stringer("kind", kind),
			zap.Stringer("status", status))
		return 0, errors.DelegateUnavailable(kind.String(), uint32(status))
	}

	c.started = true
	c.state = StateDelegateObtained
	return fn, nil
}

// RunApp runs the managed application's Main and returns its exit code.
// Only contexts initialized from a command line can run an app. The call
// blocks until Main returns; other uses of the context wait for it.
func (c *Context) RunApp() (int32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.usable(errors.PhaseInvoke); err != nil {
		return 0, err
	}
	if c.mode != ModeCommandLine {
		return 0, errors.InvalidInput(errors.PhaseInvoke, "run_app requires a context initialized from a command line")
	}

	c.started = true
	// Not under callMu: Main may call back into code that resolves
	// more entry points.
	rc := c.lib.runApp(c.handle)
	if status := statusOf(rc); status.IsHostFailure() {
		return rc, errors.Status(errors.PhaseInvoke, SymRunApp, uint32(status))
	}
	return rc, nil
}

// Close releases the host context. It is idempotent and leaves issued
// capabilities usable. The runtime itself stays loaded.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed || c.handle == 0 {
		c.state = StateClosed
		return nil
	}

	callMu.Lock()
	rc := c.lib.closeHandle(c.handle)
	callMu.Unlock()

	c.handle = 0
	c.state = StateClosed
	if status := statusOf(rc); !status.Succeeded() {
		return errors.Status(errors.PhaseShutdown, SymClose, uint32(status))
	}
	Logger().Debug("host context closed", zap.String("target", c.target))
	return nil
}

func (c *Context) usable(phase errors.Phase) error {
	if c.state == StateClosed {
		return errors.Closed(phase, "host context")
	}
	if c.handle == 0 || c.lib == nil {
		return errors.NotInitialized(phase, "host context")
	}
	return nil
}

// State reports the protocol state.
func (c *Context) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Mode reports which initialize entry point created the context.
func (c *Context) Mode() Mode { return c.mode }

// Status is the status initialization returned. SuccessHostAlreadyInitialized
// and SuccessDifferentRuntimeProperties mark a secondary context.
func (c *Context) Status() StatusCode { return c.status }

// Target is the runtime config or entry assembly the context was created from.
func (c *Context) Target() string { return c.target }

// Handle returns the raw hostfxr_handle, or 0 once closed.
func (c *Context) Handle() uintptr {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle
}
