package hostfxr

import (
	stderrors "errors"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/clr-host/dl"
	"github.com/wippyai/clr-host/errors"
	"github.com/wippyai/clr-host/native"
)

// Exported entry points of the hostfxr library.
const (
	SymInitializeForCommandLine   = "hostfxr_initialize_for_dotnet_command_line"
	SymInitializeForRuntimeConfig = "hostfxr_initialize_for_runtime_config"
	SymGetRuntimePropertyValue    = "hostfxr_get_runtime_property_value"
	SymSetRuntimePropertyValue    = "hostfxr_set_runtime_property_value"
	SymGetRuntimeProperties       = "hostfxr_get_runtime_properties"
	SymRunApp                     = "hostfxr_run_app"
	SymGetRuntimeDelegate         = "hostfxr_get_runtime_delegate"
	SymClose                      = "hostfxr_close"
	SymSetErrorWriter             = "hostfxr_set_error_writer"
)

// RequiredSymbols lists the exports Bind resolves, in order. A library
// missing any of them cannot be used.
var RequiredSymbols = []string{
	SymInitializeForCommandLine,
	SymInitializeForRuntimeConfig,
	SymGetRuntimePropertyValue,
	SymSetRuntimePropertyValue,
	SymGetRuntimeProperties,
	SymRunApp,
	SymGetRuntimeDelegate,
	SymClose,
}

// initParams mirrors hostfxr_initialize_parameters.
type initParams struct {
	size       uintptr
	hostPath   *native.Char
	dotnetRoot *native.Char
}

// Library is a bound hostfxr resolver library. It is immutable once Bind
// returns: either every required export is resolved or no Library exists.
//
// The load-assembly and get-function-pointer capabilities are not part of
// the binding. They come from the runtime through a Context.
type Library struct {
	symbols dl.Symbols
	owned   *dl.Library

	initializeForCommandLine   func(argc int32, argv **native.Char, params *initParams, handle *uintptr) int32
	initializeForRuntimeConfig func(path *native.Char, params *initParams, handle *uintptr) int32
	getRuntimePropertyValue    func(handle uintptr, name *native.Char, value **native.Char) int32
	setRuntimePropertyValue    func(handle uintptr, name, value *native.Char) int32
	getRuntimeProperties       func(handle uintptr, count *uintptr, keys, values **native.Char) int32
	runApp                     func(handle uintptr) int32
	getRuntimeDelegate         func(handle uintptr, kind int32, delegate *uintptr) int32
	closeHandle                func(handle uintptr) int32
	setErrorWriter             func(writer uintptr) uintptr

	initialized atomic.Bool
}

// Open loads the hostfxr library at path and binds its exports. The
// library is unloaded again if binding fails.
func Open(path string) (*Library, error) {
	lib, err := dl.Open(path)
	if err != nil {
		return nil, err
	}
	fxr, err := Bind(lib)
	if err != nil {
		_ = lib.Close()
		return nil, err
	}
	fxr.owned = lib
	return fxr, nil
}

// Bind resolves the hostfxr exports from an already loaded library.
// It fails on the first missing export and names it.
func Bind(symbols dl.Symbols) (*Library, error) {
	if symbols == nil {
		return nil, errors.NotInitialized(errors.PhaseBind, "hostfxr library")
	}

	l := &Library{symbols: symbols}
	exports := []struct {
		fn   any
		name string
	}{
		{&l.initializeForCommandLine, SymInitializeForCommandLine},
		{&l.initializeForRuntimeConfig, SymInitializeForRuntimeConfig},
		{&l.getRuntimePropertyValue, SymGetRuntimePropertyValue},
		{&l.setRuntimePropertyValue, SymSetRuntimePropertyValue},
		{&l.getRuntimeProperties, SymGetRuntimeProperties},
		{&l.runApp, SymRunApp},
		{&l.getRuntimeDelegate, SymGetRuntimeDelegate},
		{&l.closeHandle, SymClose},
	}

	for _, e := range exports {
		if err := bindExport(symbols, e.name, e.fn); err != nil {
			Logger().Debug("hostfxr export missing",
				zap.String("library", symbols.Path()),
				zap.String("symbol", e.name),
				zap.Error(err))
			return nil, err
		}
	}

	// Optional: older hosts predate the error writer.
	if addr, err := symbols.Lookup(SymSetErrorWriter); err == nil {
		if err := native.Register(&l.setErrorWriter, SymSetErrorWriter, addr); err != nil {
			return nil, err
		}
	}

	Logger().Debug("hostfxr bound", zap.String("library", symbols.Path()))
	return l, nil
}

func bindExport(symbols dl.Symbols, name string, fn any) error {
	addr, err := symbols.Lookup(name)
	if err != nil {
		var e *errors.Error
		if stderrors.As(err, &e) && e.Kind == errors.KindSymbolMissing {
			return e
		}
		return errors.SymbolMissing(symbols.Path(), name, err)
	}
	return native.Register(fn, name, addr)
}

// Path returns the path of the bound library.
func (l *Library) Path() string {
	if l == nil || l.symbols == nil {
		return ""
	}
	return l.symbols.Path()
}

// HasErrorWriter reports whether the library exports hostfxr_set_error_writer.
func (l *Library) HasErrorWriter() bool {
	return l != nil && l.setErrorWriter != nil
}

// Close unloads a library opened with Open. Once a runtime has been
// initialized from it the library stays mapped for the life of the
// process, because capabilities and resolved methods point into code it
// loaded.
func (l *Library) Close() error {
	if l == nil || l.owned == nil {
		return nil
	}
	if l.initialized.Load() {
		return errors.InvalidInput(errors.PhaseShutdown,
			"hostfxr cannot be unloaded after a runtime was initialized from it")
	}
	return l.owned.Close()
}
