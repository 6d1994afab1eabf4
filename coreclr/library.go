package coreclr

import (
	stderrors "errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/clr-host/dl"
	"github.com/wippyai/clr-host/errors"
	"github.com/wippyai/clr-host/native"
)

// Exported entry points of the coreclr library.
const (
	SymInitialize      = "coreclr_initialize"
	SymShutdown        = "coreclr_shutdown"
	SymShutdown2       = "coreclr_shutdown_2"
	SymCreateDelegate  = "coreclr_create_delegate"
	SymExecuteAssembly = "coreclr_execute_assembly"
)

// RequiredSymbols lists the exports Bind resolves, in order.
var RequiredSymbols = []string{
	SymInitialize,
	SymShutdown,
	SymShutdown2,
	SymCreateDelegate,
	SymExecuteAssembly,
}

// callMu serializes calls into coreclr.
var callMu sync.Mutex

// Library is a bound coreclr library.
type Library struct {
	symbols dl.Symbols
	owned   *dl.Library

	initialize      func(exePath, appDomainName *byte, propertyCount int32, keys, values **byte, hostHandle *uintptr, domainID *uint32) int32
	shutdown        func(hostHandle uintptr, domainID uint32) int32
	shutdown2       func(hostHandle uintptr, domainID uint32, latchedExitCode *int32) int32
	createDelegate  func(hostHandle uintptr, domainID uint32, assemblyName, typeName, methodName *byte, delegate *uintptr) int32
	executeAssembly func(hostHandle uintptr, domainID uint32, argc int32, argv **byte, assemblyPath *byte, exitCode *uint32) int32

	initialized atomic.Bool
}

// Open loads the coreclr library at path and binds its exports.
func Open(path string) (*Library, error) {
	lib, err := dl.Open(path)
	if err != nil {
		return nil, err
	}
	clr, err := Bind(lib)
	if err != nil {
		_ = lib.Close()
		return nil, err
	}
	clr.owned = lib
	return clr, nil
}

// Bind resolves the coreclr exports from an already loaded library.
func Bind(symbols dl.Symbols) (*Library, error) {
	if symbols == nil {
		return nil, errors.NotInitialized(errors.PhaseBind, "coreclr library")
	}

	l := &Library{symbols: symbols}
	exports := []struct {
		fn   any
		name string
	}{
		{&l.initialize, SymInitialize},
		{&l.shutdown, SymShutdown},
		{&l.shutdown2, SymShutdown2},
		{&l.createDelegate, SymCreateDelegate},
		{&l.executeAssembly, SymExecuteAssembly},
	}
	for _, e := range exports {
		addr, err := symbols.Lookup(e.name)
		if err != nil {
			var se *errors.Error
			if !stderrors.As(err, &se) || se.Kind != errors.KindSymbolMissing {
				err = errors.SymbolMissing(symbols.Path(), e.name, err)
			}
			return nil, err
		}
		if err := native.Register(e.fn, e.name, addr); err != nil {
			return nil, err
		}
	}

	Logger().Debug("coreclr bound", zap.String("library", symbols.Path()))
	return l, nil
}

// Path returns the path of the bound library.
func (l *Library) Path() string {
	if l == nil || l.symbols == nil {
		return ""
	}
	return l.symbols.Path()
}

// Close unloads a library opened with Open. A library that started a
// runtime cannot be unloaded.
func (l *Library) Close() error {
	if l == nil || l.owned == nil {
		return nil
	}
	if l.initialized.Load() {
		return errors.InvalidInput(errors.PhaseShutdown,
			"coreclr cannot be unloaded after a runtime was started from it")
	}
	return l.owned.Close()
}
