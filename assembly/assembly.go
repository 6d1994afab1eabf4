// Package assembly loads managed components into a running runtime and
// resolves their unmanaged-callable entry points.
//
// Two strategies are available and both produce the same Method values:
//
//   - PathLoader hands an assembly path to the runtime's
//     load_assembly_and_get_function_pointer delegate, which loads the
//     assembly into an isolated load context on first use.
//   - MemoryLoader reads the assembly image itself, passes the bytes to a
//     BytesLoader (a component-provided helper or the runtime's own
//     load_assembly_bytes) and resolves methods with get_function_pointer
//     from the default load context.
package assembly

import (
	"math"
	"os"

	"go.uber.org/zap"

	"github.com/wippyai/clr-host/errors"
	"github.com/wippyai/clr-host/hostfxr"
	"github.com/wippyai/clr-host/native"
)

// Method is a resolved managed method. Addr is callable for as long as
// the process lives.
type Method struct {
	TypeName   string
	MethodName string
	Addr       uintptr
}

func (m Method) String() string {
	return m.TypeName + "::" + m.MethodName
}

// Bind attaches the signature F to a resolved method. F must match the
// managed method's unmanaged signature; nothing checks that for you.
func Bind[F any](m Method) (native.Proc[F], error) {
	return native.NewProc[F](m.String(), m.Addr)
}

// Resolver resolves methods of a loaded component.
type Resolver interface {
	Resolve(typeName, methodName string) (Method, error)
}

// PathLoader resolves methods of an assembly on disk.
type PathLoader struct {
	load *hostfxr.LoadAssemblyAndGetFunctionPointer
	path string
	conv hostfxr.CallingConvention
}

// FromPath prepares loading the assembly at path. The file must exist;
// the runtime loads it on the first Resolve.
func FromPath(load *hostfxr.LoadAssemblyAndGetFunctionPointer, path string) (*PathLoader, error) {
	if load == nil {
		return nil, errors.NotInitialized(errors.PhaseComponent, "load_assembly_and_get_function_pointer")
	}
	if err := checkFile(path); err != nil {
		return nil, err
	}
	return &PathLoader{load: load, path: path, conv: hostfxr.UnmanagedCallersOnly}, nil
}

// WithConvention returns a copy of the loader resolving with conv
// instead of UnmanagedCallersOnly.
func (p *PathLoader) WithConvention(conv hostfxr.CallingConvention) *PathLoader {
	cp := *p
	cp.conv = conv
	return &cp
}

// Path returns the assembly path.
func (p *PathLoader) Path() string { return p.path }

// Resolve returns typeName::methodName from the assembly.
func (p *PathLoader) Resolve(typeName, methodName string) (Method, error) {
	addr, err := p.load.Call(p.path, typeName, methodName, p.conv)
	if err != nil {
		return Method{}, err
	}
	Logger().Debug("method resolved",
		zap.String("assembly", p.path),
		zap.String("type", typeName),
		zap.String("method", methodName))
	return Method{TypeName: typeName, MethodName: methodName, Addr: addr}, nil
}

// BytesLoader loads an assembly image into the default load context.
type BytesLoader interface {
	LoadBytes(data []byte) error
}

// MemoryLoader loads assembly images from memory and resolves methods
// from the default load context.
type MemoryLoader struct {
	loader BytesLoader
	get    *hostfxr.GetFunctionPointer
	conv   hostfxr.CallingConvention
}

// NewMemoryLoader combines an image loader with get_function_pointer.
func NewMemoryLoader(loader BytesLoader, get *hostfxr.GetFunctionPointer) (*MemoryLoader, error) {
	if loader == nil {
		return nil, errors.NotInitialized(errors.PhaseComponent, "assembly bytes loader")
	}
	if get == nil {
		return nil, errors.NotInitialized(errors.PhaseComponent, "get_function_pointer")
	}
	return &MemoryLoader{loader: loader, get: get, conv: hostfxr.UnmanagedCallersOnly}, nil
}

// Load loads the assembly image in data. The whole buffer is handed over
// in one call.
func (m *MemoryLoader) Load(data []byte) error {
	if err := checkImage(uint64(len(data))); err != nil {
		return err
	}
	if err := m.loader.LoadBytes(data); err != nil {
		return err
	}
	Logger().Debug("assembly image loaded", zap.Int("bytes", len(data)))
	return nil
}

// checkImage rejects image sizes the native loaders cannot take: an int32
// carries the length.
func checkImage(size uint64) error {
	if size == 0 {
		return errors.ComponentLoad("", 0, "empty assembly image", nil)
	}
	if size > math.MaxInt32 {
		return errors.ComponentLoad("", 0, "assembly image exceeds 2 GiB", nil)
	}
	return nil
}

// LoadFile reads the assembly at path and loads it from memory. The
// buffer is released once the runtime has it.
func (m *MemoryLoader) LoadFile(path string) error {
	if err := checkFile(path); err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.ComponentLoad(path, 0, "cannot read assembly", err)
	}
	if err := m.Load(data); err != nil {
		if e, ok := err.(*errors.Error); ok && e.Path == "" {
			e.Path = path
		}
		return err
	}
	Logger().Info("assembly loaded from memory", zap.String("path", path), zap.Int("bytes", len(data)))
	return nil
}

// Resolve returns typeName::methodName from an already loaded assembly.
func (m *MemoryLoader) Resolve(typeName, methodName string) (Method, error) {
	addr, err := m.get.Call(typeName, methodName, m.conv)
	if err != nil {
		return Method{}, err
	}
	return Method{TypeName: typeName, MethodName: methodName, Addr: addr}, nil
}

func checkFile(path string) error {
	if path == "" {
		return errors.ComponentLoad(path, 0, "assembly path is required", nil)
	}
	info, err := os.Stat(path)
	if err != nil {
		return errors.ComponentLoad(path, 0, "assembly not found", err)
	}
	if info.IsDir() {
		return errors.ComponentLoad(path, 0, "assembly path is a directory", nil)
	}
	return nil
}
