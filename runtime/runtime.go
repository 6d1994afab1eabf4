package runtime

import (
	"context"
	goruntime "runtime"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/clr-host/assembly"
	"github.com/wippyai/clr-host/coreclr"
	"github.com/wippyai/clr-host/dl"
	"github.com/wippyai/clr-host/errors"
	"github.com/wippyai/clr-host/facade"
	"github.com/wippyai/clr-host/hostfxr"
	"github.com/wippyai/clr-host/nethost"
)

// Config describes how to bring up the runtime. Exactly one of
// RuntimeConfig and CommandLine must be set.
type Config struct {
	// Hostfxr is an already loaded hostfxr library. It takes precedence
	// over HostfxrPath and discovery.
	Hostfxr dl.Symbols
	// HostfxrPath is the hostfxr library to load.
	HostfxrPath string

	// Nethost and NethostPath locate hostfxr through nethost when no
	// hostfxr is given. Without either, DotnetRoot (or the platform
	// default install) is scanned for the newest hostfxr.
	Nethost     dl.Symbols
	NethostPath string
	DotnetRoot  string

	// RuntimeConfig is a *.runtimeconfig.json for component hosting.
	RuntimeConfig string
	// CommandLine starts an application; CommandLine[0] is its entry
	// assembly. The context is kept open for RunApp.
	CommandLine []string

	// HostPath is reported to the runtime as the native host path.
	HostPath string
	// Properties are set on the context before the runtime starts.
	Properties map[string]string
	// KeepContext keeps the host context open after the capabilities
	// have been obtained.
	KeepContext bool

	// ErrorWriter receives hostfxr diagnostics during initialization.
	// nil sends them to the hostfxr logger.
	ErrorWriter func(string)
	// Logger, when set, becomes the logger of every hosting package.
	Logger *zap.Logger
}

func (c *Config) validate() error {
	switch {
	case c.RuntimeConfig == "" && len(c.CommandLine) == 0:
		return errors.InvalidInput(errors.PhaseInit, "either a runtime config or a command line is required")
	case c.RuntimeConfig != "" && len(c.CommandLine) > 0:
		return errors.InvalidInput(errors.PhaseInit, "runtime config and command line are mutually exclusive")
	}
	return nil
}

// Runtime is an initialized .NET runtime with the capabilities needed to
// load components and call into them.
type Runtime struct {
	lib   *hostfxr.Library
	mode  hostfxr.Mode
	props []hostfxr.Property

	load  *hostfxr.LoadAssemblyAndGetFunctionPointer
	get   *hostfxr.GetFunctionPointer
	bytes *hostfxr.LoadAssemblyBytes

	loadErr  error
	getErr   error
	bytesErr error

	mu     sync.Mutex
	hctx   *hostfxr.Context
	closed bool
}

// New locates and binds hostfxr, initializes the runtime and obtains its
// loader capabilities. ctx is checked between steps; a native call that
// has started runs to completion.
func New(ctx context.Context, cfg Config) (*Runtime, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Logger != nil {
		propagateLogger(cfg.Logger)
	}

	if err := ctx.Err(); err != nil {
		return nil, cancelled(err)
	}
	lib, err := openHostfxr(cfg)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		release(lib, cfg)
		return nil, cancelled(err)
	}
	hctx, err := initialize(lib, cfg)
	if err != nil {
		release(lib, cfg)
		return nil, err
	}

	r := &Runtime{lib: lib, mode: hctx.Mode(), hctx: hctx}
	if err := r.setProperties(cfg.Properties); err != nil {
		_ = hctx.Close()
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		_ = hctx.Close()
		return nil, cancelled(err)
	}
	if err := r.obtainCapabilities(); err != nil {
		_ = hctx.Close()
		return nil, err
	}

	if props, err := hctx.Properties(); err == nil {
		r.props = props
	} else {
		Logger().Debug("runtime properties unavailable", zap.Error(err))
	}

	if !cfg.KeepContext && r.mode != hostfxr.ModeCommandLine {
		if err := hctx.Close(); err != nil {
			return nil, err
		}
		r.hctx = nil
	}

	Logger().Info("runtime ready",
		zap.String("hostfxr", lib.Path()),
		zap.String("target", hctx.Target()),
		zap.Stringer("mode", r.mode),
		zap.Bool("context_kept", r.hctx != nil))
	return r, nil
}

func propagateLogger(l *zap.Logger) {
	SetLogger(l)
	hostfxr.SetLogger(l.Named("hostfxr"))
	coreclr.SetLogger(l.Named("coreclr"))
	nethost.SetLogger(l.Named("nethost"))
	assembly.SetLogger(l.Named("assembly"))
	facade.SetLogger(l.Named("facade"))
}

// release unloads a hostfxr that New opened itself and never initialized
// a runtime from. Injected libraries belong to the caller.
func release(lib *hostfxr.Library, cfg Config) {
	if cfg.Hostfxr != nil {
		return
	}
	if err := lib.Close(); err != nil {
		Logger().Warn("hostfxr unload failed", zap.String("path", lib.Path()), zap.Error(err))
		return
	}
	Logger().Debug("hostfxr unloaded", zap.String("path", lib.Path()))
}

func cancelled(err error) error {
	return errors.Wrap(errors.PhaseInit, errors.KindRuntimeInit, err, "runtime start cancelled")
}

// initialize runs the init call with cfg.ErrorWriter installed. hostfxr
// keeps error writers per thread, so the goroutine stays on one thread
// until the writer is restored.
func initialize(lib *hostfxr.Library, cfg Config) (*hostfxr.Context, error) {
	var opts []hostfxr.InitOption
	if cfg.HostPath != "" {
		opts = append(opts, hostfxr.WithHostPath(cfg.HostPath))
	}
	if cfg.DotnetRoot != "" {
		opts = append(opts, hostfxr.WithDotnetRoot(cfg.DotnetRoot))
	}

	if lib.HasErrorWriter() {
		goruntime.LockOSThread()
		defer goruntime.UnlockOSThread()
		restore, err := lib.SetErrorWriter(cfg.ErrorWriter)
		if err != nil {
			Logger().Debug("hostfxr error writer not installed", zap.Error(err))
		} else {
			defer restore()
		}
	}

	if len(cfg.CommandLine) > 0 {
		return lib.InitializeForCommandLine(cfg.CommandLine, opts...)
	}
	return lib.InitializeForRuntimeConfig(cfg.RuntimeConfig, opts...)
}

func (r *Runtime) setProperties(props map[string]string) error {
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := r.hctx.SetProperty(name, props[name]); err != nil {
			return err
		}
	}
	return nil
}

// obtainCapabilities fetches the loader delegates. A runtime config host
// needs load_assembly_and_get_function_pointer, an application host needs
// get_function_pointer; the rest are kept as errors for later use.
func (r *Runtime) obtainCapabilities() error {
	r.load, r.loadErr = r.hctx.LoadAssemblyAndGetFunctionPointer()
	if r.loadErr != nil && r.mode == hostfxr.ModeRuntimeConfig {
		return r.loadErr
	}
	r.get, r.getErr = r.hctx.GetFunctionPointer()
	if r.getErr != nil && r.mode == hostfxr.ModeCommandLine {
		return r.getErr
	}
	r.bytes, r.bytesErr = r.hctx.LoadAssemblyBytes()
	return nil
}

// Library returns the bound hostfxr library.
func (r *Runtime) Library() *hostfxr.Library { return r.lib }

// Mode reports how the runtime was initialized.
func (r *Runtime) Mode() hostfxr.Mode { return r.mode }

// Context returns the host context, or nil once it has been closed.
func (r *Runtime) Context() *hostfxr.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hctx
}

// LoadAssemblyAndGetFunctionPointer returns the from-path capability.
func (r *Runtime) LoadAssemblyAndGetFunctionPointer() (*hostfxr.LoadAssemblyAndGetFunctionPointer, error) {
	if err := r.usable(errors.PhaseComponent); err != nil {
		return nil, err
	}
	return r.load, r.loadErr
}

// GetFunctionPointer returns the default-context resolution capability.
func (r *Runtime) GetFunctionPointer() (*hostfxr.GetFunctionPointer, error) {
	if err := r.usable(errors.PhaseResolve); err != nil {
		return nil, err
	}
	return r.get, r.getErr
}

// LoadFromPath prepares the from-path strategy for the assembly at path.
func (r *Runtime) LoadFromPath(path string) (*assembly.PathLoader, error) {
	load, err := r.LoadAssemblyAndGetFunctionPointer()
	if err != nil {
		return nil, err
	}
	return assembly.FromPath(load, path)
}

// LoadHelper loads a component-provided in-memory loader and returns the
// from-memory strategy built on it.
func (r *Runtime) LoadHelper(helperPath, typeName, methodName string) (*assembly.MemoryLoader, error) {
	load, err := r.LoadAssemblyAndGetFunctionPointer()
	if err != nil {
		return nil, err
	}
	get, err := r.GetFunctionPointer()
	if err != nil {
		return nil, err
	}
	entry, err := assembly.LoadHelper(load, helperPath, typeName, methodName)
	if err != nil {
		return nil, err
	}
	return assembly.NewMemoryLoader(entry, get)
}

// RuntimeBytesLoader returns the from-memory strategy built on the
// runtime's own load_assembly_bytes (.NET 8+).
func (r *Runtime) RuntimeBytesLoader() (*assembly.MemoryLoader, error) {
	if err := r.usable(errors.PhaseComponent); err != nil {
		return nil, err
	}
	if r.bytesErr != nil {
		return nil, r.bytesErr
	}
	get, err := r.GetFunctionPointer()
	if err != nil {
		return nil, err
	}
	return assembly.NewMemoryLoader(assembly.NewRuntimeBytes(r.bytes), get)
}

// Interface resolves the Create/Configure/Invoke table of a component.
func (r *Runtime) Interface(resolver assembly.Resolver, names facade.Names) (*facade.Table, error) {
	if err := r.usable(errors.PhaseResolve); err != nil {
		return nil, err
	}
	return facade.Build(resolver, names)
}

// RunApp runs the application given on the command line and returns its
// exit code.
func (r *Runtime) RunApp() (int32, error) {
	r.mu.Lock()
	hctx, closed := r.hctx, r.closed
	r.mu.Unlock()

	if closed {
		return 0, errors.Closed(errors.PhaseInvoke, "runtime")
	}
	if hctx == nil || r.mode != hostfxr.ModeCommandLine {
		return 0, errors.InvalidInput(errors.PhaseInvoke, "run_app requires a runtime started from a command line")
	}
	Logger().Info("running application", zap.String("app", hctx.Target()))
	code, err := hctx.RunApp()
	if err != nil {
		return code, err
	}
	Logger().Info("application exited", zap.Int32("exit_code", code))
	return code, nil
}

// Properties returns the runtime properties as resolved at startup,
// sorted by name.
func (r *Runtime) Properties() []hostfxr.Property {
	out := make([]hostfxr.Property, len(r.props))
	copy(out, r.props)
	return out
}

// Property looks up one startup property.
func (r *Runtime) Property(name string) (string, bool) {
	i := sort.Search(len(r.props), func(i int) bool { return r.props[i].Name >= name })
	if i < len(r.props) && r.props[i].Name == name {
		return r.props[i].Value, true
	}
	return "", false
}

// Close releases the host context if it is still open. The runtime stays
// loaded until the process exits, and loaders and tables obtained
// earlier keep working.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.hctx == nil {
		return nil
	}
	err := r.hctx.Close()
	r.hctx = nil
	return err
}

func (r *Runtime) usable(phase errors.Phase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.Closed(phase, "runtime")
	}
	return nil
}
