//go:build (darwin || linux) && (amd64 || arm64)

// Package fakehost imitates the native .NET hosting libraries for tests.
//
// A Host owns in-memory state for a fake hostfxr, coreclr and nethost and
// hands out export tables whose entries are real C-callable function
// pointers (purego callbacks). The binding, protocol and loader code runs
// unchanged against them.
//
// Fake assemblies are text: a "fakeasm" header line followed by one type
// name per line. Loading an assembly makes its types visible to
// get_function_pointer. Managed methods are attached to types with
// DefineComponent or DefineHelper.
package fakehost

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/wippyai/clr-host/errors"
)

// Status codes the fake returns.
const (
	StatusSuccess         uint32 = 0
	StatusBufferTooSmall  uint32 = 0x80008098
	StatusInvalidArg      uint32 = 0x80008081
	StatusInvalidState    uint32 = 0x800080a3
	StatusPropertyMissing uint32 = 0x800080a4
	StatusLibMissing      uint32 = 0x80008083
	StatusFileNotFound    uint32 = 0x80070002
	StatusBadImage        uint32 = 0x8007000b
	StatusMissingMethod   uint32 = 0x80131513
	StatusTypeLoad        uint32 = 0x80131522
	StatusUnexpected      uint32 = 0x8000ffff
	StatusFail            uint32 = 0x80004005
)

const assemblyHeader = "fakeasm"

var active atomic.Pointer[Host]

func current() *Host {
	return active.Load()
}

// Session records what a fake component instance received.
type Session struct {
	Inputs  []string
	Invokes int
}

// Host is the fake hosting environment. Exported fields may be changed
// between calls to steer the next native call.
type Host struct {
	// InitStatus is returned by a successful initialize (0, 1 or 2).
	InitStatus uint32
	// InitFailure, when nonzero, makes initialize fail with this status.
	InitFailure uint32
	// NullHandle makes initialize succeed without producing a handle.
	NullHandle bool
	// Unavailable lists delegate kinds get_runtime_delegate refuses.
	Unavailable map[int32]bool
	// ExitCode is what run_app and execute_assembly report.
	ExitCode int32
	// HostfxrPath is what get_hostfxr_path returns; empty means not found.
	HostfxrPath string

	t   testing.TB
	dir string

	mu           sync.Mutex
	nextHandle   uintptr
	handles      map[uintptr]bool
	closes       int
	started      bool
	props        map[string]string
	loaded       map[string]bool
	methods      map[string]uintptr
	sessions     map[uintptr]*Session
	nextSession  uintptr
	lastArgs     []string
	lastDelegate uintptr
	lastRoot     string
	lastHostPath string
	lastAsmPath  string
	errorWriter  uintptr
	calls        []string
	keep         [][]byte
}

// New installs a fresh fake as the active host for the duration of t.
func New(t testing.TB) *Host {
	t.Helper()
	initCallbacks()

	dir := t.TempDir()
	h := &Host{
		Unavailable: map[int32]bool{},
		HostfxrPath: filepath.Join(dir, "host", "fxr", "8.0.0", "libhostfxr.so"),
		t:           t,
		dir:         dir,
		nextHandle:  0x1000,
		nextSession: 0x7000,
		handles:     map[uintptr]bool{},
		props: map[string]string{
			"APP_CONTEXT_BASE_DIRECTORY": dir + string(filepath.Separator),
			"RUNTIME_IDENTIFIER":         "linux-x64",
		},
		loaded:   map[string]bool{},
		methods:  map[string]uintptr{},
		sessions: map[uintptr]*Session{},
	}
	if !active.CompareAndSwap(nil, h) {
		t.Fatal("fakehost: another fake host is active; fake hosts cannot run in parallel")
	}
	t.Cleanup(func() { active.CompareAndSwap(h, nil) })
	return h
}

// Dir is a scratch directory owned by the fake.
func (h *Host) Dir() string { return h.dir }

// WriteAssembly writes a fake assembly declaring types and returns its path.
func (h *Host) WriteAssembly(name string, types ...string) string {
	h.t.Helper()
	path := filepath.Join(h.dir, name)
	if err := os.WriteFile(path, AssemblyBytes(types...), 0o644); err != nil {
		h.t.Fatalf("fakehost: write assembly: %v", err)
	}
	return path
}

// WriteRuntimeConfig writes a minimal framework-dependent runtime config.
func (h *Host) WriteRuntimeConfig(name string) string {
	h.t.Helper()
	path := filepath.Join(h.dir, name)
	doc := `{
  "runtimeOptions": {
    "tfm": "net8.0",
    "framework": { "name": "Microsoft.NETCore.App", "version": "8.0.0" },
    "configProperties": { "System.GC.Server": false }
  }
}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		h.t.Fatalf("fakehost: write runtime config: %v", err)
	}
	return path
}

// AssemblyBytes renders a fake assembly image declaring types.
func AssemblyBytes(types ...string) []byte {
	return []byte(assemblyHeader + "\n" + strings.Join(types, "\n") + "\n")
}

func parseAssembly(data []byte) ([]string, bool) {
	lines := strings.Split(string(data), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != assemblyHeader {
		return nil, false
	}
	var types []string
	for _, l := range lines[1:] {
		l = strings.TrimSpace(l)
		if l == "" || strings.HasPrefix(l, "#") {
			continue
		}
		types = append(types, l)
	}
	return types, true
}

func (h *Host) loadTypes(types []string) {
	for _, t := range types {
		h.loaded[t] = true
	}
}

// Loaded reports whether a type has been loaded into the fake runtime.
func (h *Host) Loaded(typeName string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loaded[typeName]
}

// SetProperty seeds a runtime property.
func (h *Host) SetProperty(name, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.props[name] = value
}

// PropertyValue returns a runtime property as the fake holds it.
func (h *Host) PropertyValue(name string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.props[name]
	return v, ok
}

// Started reports whether a delegate was handed out or an app was run.
func (h *Host) Started() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.started
}

// Closes counts successful hostfxr_close calls.
func (h *Host) Closes() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closes
}

// OpenHandles counts host contexts not yet closed.
func (h *Host) OpenHandles() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handles)
}

// LastArgs is the command line of the last initialize call.
func (h *Host) LastArgs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.lastArgs...)
}

// LastInitParams returns host_path and dotnet_root of the last initialize.
func (h *Host) LastInitParams() (hostPath, dotnetRoot string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastHostPath, h.lastRoot
}

// LastNethostParams returns assembly_path and dotnet_root of the last
// get_hostfxr_path call.
func (h *Host) LastNethostParams() (assemblyPath, dotnetRoot string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastAsmPath, h.lastRoot
}

// LastDelegateType is the delegate_type_name argument of the last resolution.
func (h *Host) LastDelegateType() uintptr {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastDelegate
}

// ErrorWriter is the writer last installed with hostfxr_set_error_writer.
func (h *Host) ErrorWriter() uintptr {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.errorWriter
}

// Calls lists the exports invoked so far, in order.
func (h *Host) Calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

// Session returns the record of a component instance.
func (h *Host) Session(handle uintptr) *Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessions[handle]
}

func (h *Host) record(call string) {
	h.calls = append(h.calls, call)
}

// cstr keeps a NUL-terminated copy of s alive for the life of the fake.
func (h *Host) cstr(s string) *byte {
	b := append([]byte(s), 0)
	h.keep = append(h.keep, b)
	return &b[0]
}

func (h *Host) sortedProps() []string {
	keys := make([]string, 0, len(h.props))
	for k := range h.props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Exports is a fake export table. It satisfies dl.Symbols.
type Exports struct {
	path string
	syms map[string]uintptr
}

// Lookup returns the address of a fake export.
func (e *Exports) Lookup(name string) (uintptr, error) {
	if addr, ok := e.syms[name]; ok && addr != 0 {
		return addr, nil
	}
	return 0, errors.SymbolMissing(e.path, name, nil)
}

// Path returns the pretend library path.
func (e *Exports) Path() string { return e.path }

// Without returns a copy of the table lacking the named exports.
func (e *Exports) Without(names ...string) *Exports {
	out := &Exports{path: e.path, syms: make(map[string]uintptr, len(e.syms))}
	for k, v := range e.syms {
		out.syms[k] = v
	}
	for _, n := range names {
		delete(out.syms, n)
	}
	return out
}
