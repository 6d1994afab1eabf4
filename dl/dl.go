// Package dl loads shared libraries and resolves their exports.
//
// It is a thin, platform-uniform layer over dlopen/dlsym on Unix (through
// purego, no cgo required) and LoadLibrary/GetProcAddress on Windows.
// Nothing is cached or reference counted: every Open maps the library
// again and every Lookup asks the platform loader.
//
// Paths are taken as given. The package never searches standard library
// locations; discovering where a hosting library lives is the caller's job.
package dl

import (
	"fmt"
	"os"
	"sync"

	"github.com/wippyai/clr-host/errors"
)

// Symbols resolves named exports to raw addresses. *Library implements it;
// bindings accept it so export tables can be substituted in tests.
type Symbols interface {
	Lookup(name string) (uintptr, error)
	Path() string
}

// Library is an open handle to a dynamically loaded library.
//
// Addresses returned by Lookup are only valid while the library stays
// loaded, so a Library must outlive every function pointer resolved from it.
type Library struct {
	path   string
	handle uintptr
	mu     sync.RWMutex
	closed bool
}

// Open loads the shared library at path.
func Open(path string) (*Library, error) {
	if path == "" {
		return nil, errors.LibraryLoad(path, fmt.Errorf("empty path"))
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.LibraryLoad(path, err)
	}
	if info.IsDir() {
		return nil, errors.LibraryLoad(path, fmt.Errorf("is a directory"))
	}

	handle, err := openLibrary(path)
	if err != nil {
		return nil, errors.LibraryLoad(path, err)
	}
	if handle == 0 {
		return nil, errors.LibraryLoad(path, fmt.Errorf("loader returned a null handle"))
	}

	return &Library{path: path, handle: handle}, nil
}

// Path returns the path the library was loaded from.
func (l *Library) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Handle returns the platform handle, or 0 once closed.
func (l *Library) Handle() uintptr {
	if l == nil {
		return 0
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return 0
	}
	return l.handle
}

// Lookup resolves the export name to its address. A nil or closed library
// reports an error instead of dereferencing a null handle.
func (l *Library) Lookup(name string) (uintptr, error) {
	if l == nil {
		return 0, errors.SymbolMissing("", name, fmt.Errorf("library not loaded"))
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed || l.handle == 0 {
		return 0, errors.SymbolMissing(l.path, name, fmt.Errorf("library is closed"))
	}

	addr, err := lookupSymbol(l.handle, name)
	if err != nil {
		return 0, errors.SymbolMissing(l.path, name, err)
	}
	if addr == 0 {
		return 0, errors.SymbolMissing(l.path, name, fmt.Errorf("null address"))
	}
	return addr, nil
}

// Close unloads the library. Calling Close more than once is a no-op.
// Any address previously returned by Lookup becomes invalid.
func (l *Library) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if l.handle == 0 {
		return nil
	}
	if err := closeLibrary(l.handle); err != nil {
		return errors.Wrap(errors.PhaseLoad, errors.KindLibraryLoad, err, "unload "+l.path)
	}
	return nil
}
