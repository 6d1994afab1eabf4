package coreclr

import (
	"os"
	"runtime"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/clr-host/errors"
	"github.com/wippyai/clr-host/native"
)

// Well-known runtime property keys.
const (
	PropTrustedPlatformAssemblies    = "TRUSTED_PLATFORM_ASSEMBLIES"
	PropAppPaths                     = "APP_PATHS"
	PropAppContextBaseDirectory      = "APP_CONTEXT_BASE_DIRECTORY"
	PropNativeDllSearchDirectories   = "NATIVE_DLL_SEARCH_DIRECTORIES"
	PropPlatformResourceRoots        = "PLATFORM_RESOURCE_ROOTS"
	PropSystemGCServer               = "System.GC.Server"
	PropSystemGlobalizationInvariant = "System.Globalization.Invariant"
)

// DefaultAppDomainName is used when Start gets an empty name.
const DefaultAppDomainName = "clrhost"

// Host is a running CoreCLR instance.
type Host struct {
	lib *Library

	mu       sync.Mutex
	handle   uintptr
	domainID uint32
	closed   bool
	exitCode int32
}

func succeeded(rc int32) bool { return rc >= 0 }

// Start initializes CoreCLR and creates the default app domain.
// Properties are passed to the runtime sorted by key.
func (l *Library) Start(exePath, appDomainName string, properties map[string]string) (*Host, error) {
	if l == nil || l.initialize == nil {
		return nil, errors.NotInitialized(errors.PhaseInit, "coreclr library")
	}
	if exePath == "" {
		return nil, errors.InvalidInput(errors.PhaseInit, "executable path is required")
	}
	if appDomainName == "" {
		appDomainName = DefaultAppDomainName
	}

	keys := make([]string, 0, len(properties))
	for k := range properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = properties[k]
	}

	ckeys, err := native.CStringArray(keys)
	if err != nil {
		return nil, errors.InvalidInput(errors.PhaseInit, "property key "+err.Error())
	}
	cvalues, err := native.CStringArray(values)
	if err != nil {
		return nil, errors.InvalidInput(errors.PhaseInit, "property value "+err.Error())
	}
	exe, err := native.CString(exePath)
	if err != nil {
		return nil, errors.InvalidInput(errors.PhaseInit, "executable path: "+err.Error())
	}
	domain, err := native.CString(appDomainName)
	if err != nil {
		return nil, errors.InvalidInput(errors.PhaseInit, "app domain name: "+err.Error())
	}

	var handle uintptr
	var domainID uint32
	callMu.Lock()
	rc := l.initialize(exe, domain, int32(len(keys)), native.First(ckeys), native.First(cvalues), &handle, &domainID)
	callMu.Unlock()
	runtime.KeepAlive(ckeys)
	runtime.KeepAlive(cvalues)
	runtime.KeepAlive(exe)
	runtime.KeepAlive(domain)

	if !succeeded(rc) {
		Logger().Warn("coreclr initialization failed",
			zap.String("exe", exePath),
			zap.Uint32("status", uint32(rc)))
		return nil, errors.RuntimeInit(exePath, uint32(rc), SymInitialize+" failed")
	}
	if handle == 0 {
		return nil, errors.RuntimeInit(exePath, uint32(rc), SymInitialize+" returned a null host handle")
	}

	l.initialized.Store(true)
	Logger().Info("coreclr started",
		zap.String("exe", exePath),
		zap.String("domain", appDomainName),
		zap.Uint32("domain_id", domainID),
		zap.Int("properties", len(keys)))
	return &Host{lib: l, handle: handle, domainID: domainID}, nil
}

// CreateDelegate returns a native pointer to a static managed method.
// typeName is not assembly-qualified; the assembly is named separately.
func (h *Host) CreateDelegate(assemblyName, typeName, methodName string) (uintptr, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.usable(errors.PhaseResolve); err != nil {
		return 0, err
	}
	if assemblyName == "" || typeName == "" || methodName == "" {
		return 0, errors.InvalidInput(errors.PhaseResolve, "assembly, type and method name are required")
	}

	strs, err := native.CStringArray([]string{assemblyName, typeName, methodName})
	if err != nil {
		return 0, errors.InvalidInput(errors.PhaseResolve, err.Error())
	}

	var fn uintptr
	callMu.Lock()
	rc := h.lib.createDelegate(h.handle, h.domainID, strs[0], strs[1], strs[2], &fn)
	callMu.Unlock()
	runtime.KeepAlive(strs)

	if !succeeded(rc) || fn == 0 {
		err := errors.MethodResolution(typeName, methodName, uint32(rc))
		err.Path = assemblyName
		return 0, err
	}
	return fn, nil
}

// ExecuteAssembly runs the entry point of the assembly at path with args
// and returns its exit code.
func (h *Host) ExecuteAssembly(path string, args []string) (uint32, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.usable(errors.PhaseInvoke); err != nil {
		return 0, err
	}
	if _, err := os.Stat(path); err != nil {
		return 0, errors.ComponentLoad(path, 0, "assembly not found", err)
	}

	cpath, err := native.CString(path)
	if err != nil {
		return 0, errors.InvalidInput(errors.PhaseInvoke, "assembly path: "+err.Error())
	}
	argv, err := native.CStringArray(args)
	if err != nil {
		return 0, errors.InvalidInput(errors.PhaseInvoke, err.Error())
	}

	var exit uint32
	// Main may call back into code that creates delegates, so the
	// process-wide lock is not held here.
	rc := h.lib.executeAssembly(h.handle, h.domainID, int32(len(argv)), native.First(argv), cpath, &exit)
	runtime.KeepAlive(cpath)
	runtime.KeepAlive(argv)

	if !succeeded(rc) {
		return 0, errors.ComponentLoad(path, uint32(rc), SymExecuteAssembly+" failed", nil)
	}
	Logger().Debug("assembly executed", zap.String("path", path), zap.Uint32("exit_code", exit))
	return exit, nil
}

// Shutdown stops the runtime and returns the latched exit code. Further
// calls return the same code.
func (h *Host) Shutdown() (int32, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return h.exitCode, nil
	}
	if h.lib == nil || h.handle == 0 {
		return 0, errors.NotInitialized(errors.PhaseShutdown, "coreclr host")
	}

	var exit int32
	callMu.Lock()
	rc := h.lib.shutdown2(h.handle, h.domainID, &exit)
	callMu.Unlock()

	h.closed = true
	h.exitCode = exit
	if !succeeded(rc) {
		return exit, errors.Status(errors.PhaseShutdown, SymShutdown2, uint32(rc))
	}
	return exit, nil
}

// Close stops the runtime without collecting an exit code.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.lib == nil || h.handle == 0 {
		h.closed = true
		return nil
	}

	callMu.Lock()
	rc := h.lib.shutdown(h.handle, h.domainID)
	callMu.Unlock()

	h.closed = true
	if !succeeded(rc) {
		return errors.Status(errors.PhaseShutdown, SymShutdown, uint32(rc))
	}
	return nil
}

// Handle returns the runtime's host handle.
func (h *Host) Handle() uintptr { return h.handle }

// DomainID returns the default app domain id.
func (h *Host) DomainID() uint32 { return h.domainID }

func (h *Host) usable(phase errors.Phase) error {
	if h.closed {
		return errors.Closed(phase, "coreclr host")
	}
	if h.lib == nil || h.handle == 0 {
		return errors.NotInitialized(phase, "coreclr host")
	}
	return nil
}
