package hostfxr

import (
	"math"
	"runtime"

	"go.uber.org/zap"

	"github.com/wippyai/clr-host/errors"
	"github.com/wippyai/clr-host/native"
)

// load_assembly_and_get_function_pointer_fn
type loadAndGetFn = func(assemblyPath, typeName, methodName *native.Char, delegateTypeName, reserved uintptr, delegate *uintptr) int32

// get_function_pointer_fn
type getFunctionPointerFn = func(typeName, methodName *native.Char, delegateTypeName, loadContext, reserved uintptr, delegate *uintptr) int32

// load_assembly_fn
type loadAssemblyFn = func(assemblyPath *native.Char, loadContext, reserved uintptr) int32

// load_assembly_bytes_fn
type loadAssemblyBytesFn = func(assembly *byte, assemblySize uintptr, symbols *byte, symbolsSize uintptr, loadContext, reserved uintptr) int32

// LoadAssemblyAndGetFunctionPointer loads an assembly from disk into an
// isolated load context and returns a pointer to one of its methods.
type LoadAssemblyAndGetFunctionPointer struct {
	proc native.Proc[loadAndGetFn]
}

// NewLoadAssemblyAndGetFunctionPointer wraps a raw delegate address.
func NewLoadAssemblyAndGetFunctionPointer(addr uintptr) (*LoadAssemblyAndGetFunctionPointer, error) {
	p, err := native.NewProc[loadAndGetFn](DelegateLoadAssemblyAndGetFunctionPointer.String(), addr)
	if err != nil {
		return nil, err
	}
	return &LoadAssemblyAndGetFunctionPointer{proc: p}, nil
}

// LoadAssemblyAndGetFunctionPointer obtains the capability from the runtime.
func (c *Context) LoadAssemblyAndGetFunctionPointer() (*LoadAssemblyAndGetFunctionPointer, error) {
	addr, err := c.Delegate(DelegateLoadAssemblyAndGetFunctionPointer)
	if err != nil {
		return nil, err
	}
	return NewLoadAssemblyAndGetFunctionPointer(addr)
}

// Addr is the delegate's native address.
func (f *LoadAssemblyAndGetFunctionPointer) Addr() uintptr { return f.proc.Addr }

// Call loads assemblyPath (once per runtime) and resolves typeName::methodName.
func (f *LoadAssemblyAndGetFunctionPointer) Call(assemblyPath, typeName, methodName string, conv CallingConvention) (uintptr, error) {
	asm, err := native.StringPtr(assemblyPath)
	if err != nil {
		return 0, errors.InvalidInput(errors.PhaseResolve, "assembly path: "+err.Error())
	}
	typ, meth, err := methodStrings(typeName, methodName)
	if err != nil {
		return 0, err
	}
	dtn, keep, err := conv.argument()
	if err != nil {
		return 0, errors.InvalidInput(errors.PhaseResolve, "delegate type: "+err.Error())
	}

	var fn uintptr
	callMu.Lock()
	rc := f.proc.Fn(asm, typ, meth, dtn, 0, &fn)
	callMu.Unlock()
	runtime.KeepAlive(asm)
	runtime.KeepAlive(typ)
	runtime.KeepAlive(meth)
	runtime.KeepAlive(keep)

	return resolved(typeName, methodName, assemblyPath, statusOf(rc), fn)
}

// GetFunctionPointer resolves a method of an assembly that is already
// loaded in the default load context.
type GetFunctionPointer struct {
	proc native.Proc[getFunctionPointerFn]
}

// NewGetFunctionPointer wraps a raw delegate address.
func NewGetFunctionPointer(addr uintptr) (*GetFunctionPointer, error) {
	p, err := native.NewProc[getFunctionPointerFn](DelegateGetFunctionPointer.String(), addr)
	if err != nil {
		return nil, err
	}
	return &GetFunctionPointer{proc: p}, nil
}

// GetFunctionPointer obtains the capability from the runtime.
func (c *Context) GetFunctionPointer() (*GetFunctionPointer, error) {
	addr, err := c.Delegate(DelegateGetFunctionPointer)
	if err != nil {
		return nil, err
	}
	return NewGetFunctionPointer(addr)
}

// Addr is the delegate's native address.
func (f *GetFunctionPointer) Addr() uintptr { return f.proc.Addr }

// Call resolves typeName::methodName. A type whose assembly was never
// loaded fails with the runtime's status.
func (f *GetFunctionPointer) Call(typeName, methodName string, conv CallingConvention) (uintptr, error) {
	typ, meth, err := methodStrings(typeName, methodName)
	if err != nil {
		return 0, err
	}
	dtn, keep, err := conv.argument()
	if err != nil {
		return 0, errors.InvalidInput(errors.PhaseResolve, "delegate type: "+err.Error())
	}

	var fn uintptr
	callMu.Lock()
	rc := f.proc.Fn(typ, meth, dtn, 0, 0, &fn)
	callMu.Unlock()
	runtime.KeepAlive(typ)
	runtime.KeepAlive(meth)
	runtime.KeepAlive(keep)

	return resolved(typeName, methodName, "", statusOf(rc), fn)
}

// LoadAssembly loads an assembly from disk into the default load context
// (.NET 8+).
type LoadAssembly struct {
	proc native.Proc[loadAssemblyFn]
}

// NewLoadAssembly wraps a raw delegate address.
func NewLoadAssembly(addr uintptr) (*LoadAssembly, error) {
	p, err := native.NewProc[loadAssemblyFn](DelegateLoadAssembly.String(), addr)
	if err != nil {
		return nil, err
	}
	return &LoadAssembly{proc: p}, nil
}

// LoadAssembly obtains the capability from the runtime.
func (c *Context) LoadAssembly() (*LoadAssembly, error) {
	addr, err := c.Delegate(DelegateLoadAssembly)
	if err != nil {
		return nil, err
	}
	return NewLoadAssembly(addr)
}

// Call loads the assembly at path.
func (f *LoadAssembly) Call(path string) error {
	p, err := native.StringPtr(path)
	if err != nil {
		return errors.InvalidInput(errors.PhaseComponent, "assembly path: "+err.Error())
	}

	callMu.Lock()
	rc := f.proc.Fn(p, 0, 0)
	callMu.Unlock()
	runtime.KeepAlive(p)

	if status := statusOf(rc); status != Success {
		return errors.ComponentLoad(path, uint32(status), "load_assembly failed", nil)
	}
	return nil
}

// LoadAssemblyBytes loads an assembly image from memory into the default
// load context (.NET 8+).
type LoadAssemblyBytes struct {
	proc native.Proc[loadAssemblyBytesFn]
}

// NewLoadAssemblyBytes wraps a raw delegate address.
func NewLoadAssemblyBytes(addr uintptr) (*LoadAssemblyBytes, error) {
	p, err := native.NewProc[loadAssemblyBytesFn](DelegateLoadAssemblyBytes.String(), addr)
	if err != nil {
		return nil, err
	}
	return &LoadAssemblyBytes{proc: p}, nil
}

// LoadAssemblyBytes obtains the capability from the runtime.
func (c *Context) LoadAssemblyBytes() (*LoadAssemblyBytes, error) {
	addr, err := c.Delegate(DelegateLoadAssemblyBytes)
	if err != nil {
		return nil, err
	}
	return NewLoadAssemblyBytes(addr)
}

// Call loads the image in data. symbols holds optional PDB bytes.
// The runtime copies both buffers before returning.
func (f *LoadAssemblyBytes) Call(data, symbols []byte) error {
	if len(data) == 0 {
		return errors.ComponentLoad("", 0, "empty assembly image", nil)
	}
	if uint64(len(data)) > math.MaxInt32 || uint64(len(symbols)) > math.MaxInt32 {
		return errors.ComponentLoad("", 0, "assembly image too large", nil)
	}

	callMu.Lock()
	rc := f.proc.Fn(native.First(data), uintptr(len(data)), native.First(symbols), uintptr(len(symbols)), 0, 0)
	callMu.Unlock()
	runtime.KeepAlive(data)
	runtime.KeepAlive(symbols)

	if status := statusOf(rc); status != Success {
		return errors.ComponentLoad("", uint32(status), "load_assembly_bytes failed", nil)
	}
	return nil
}

func methodStrings(typeName, methodName string) (*native.Char, *native.Char, error) {
	if typeName == "" || methodName == "" {
		return nil, nil, errors.InvalidInput(errors.PhaseResolve, "type and method name are required")
	}
	typ, err := native.StringPtr(typeName)
	if err != nil {
		return nil, nil, errors.InvalidInput(errors.PhaseResolve, "type name: "+err.Error())
	}
	meth, err := native.StringPtr(methodName)
	if err != nil {
		return nil, nil, errors.InvalidInput(errors.PhaseResolve, "method name: "+err.Error())
	}
	return typ, meth, nil
}

func resolved(typeName, methodName, assemblyPath string, status StatusCode, fn uintptr) (uintptr, error) {
	if status != Success || fn == 0 {
		Logger().Debug("method resolution failed",
			zap.String("type", typeName),
			zap.String("method", methodName),
			zap.String("assembly", assemblyPath),
			zap.Stringer("status", status))
		err := errors.MethodResolution(typeName, methodName, uint32(status))
		err.Path = assemblyPath
		if status == Success {
			err.Detail = "runtime returned a null function pointer"
		}
		return 0, err
	}
	return fn, nil
}
