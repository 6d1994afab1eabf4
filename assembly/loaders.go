package assembly

import (
	"runtime"

	"github.com/wippyai/clr-host/errors"
	"github.com/wippyai/clr-host/hostfxr"
	"github.com/wippyai/clr-host/native"
)

// DefaultHelperMethod is the conventional name of a component's
// in-memory loader entry point.
const DefaultHelperMethod = "LoadAssemblyFromMemory"

type helperFn = func(data *byte, size int32)

// HelperEntry is a component-provided loader with the unmanaged
// signature void(uint8_t* data, int32_t size). It reports no status: a
// bad image shows up as a resolution failure afterwards.
type HelperEntry struct {
	proc native.Proc[helperFn]
}

// NewHelperEntry wraps a resolved loader method.
func NewHelperEntry(m Method) (*HelperEntry, error) {
	p, err := Bind[helperFn](m)
	if err != nil {
		return nil, err
	}
	return &HelperEntry{proc: p}, nil
}

// LoadHelper loads the helper assembly at helperPath and resolves its
// loader entry point. An empty methodName means DefaultHelperMethod.
func LoadHelper(load *hostfxr.LoadAssemblyAndGetFunctionPointer, helperPath, typeName, methodName string) (*HelperEntry, error) {
	if methodName == "" {
		methodName = DefaultHelperMethod
	}
	pl, err := FromPath(load, helperPath)
	if err != nil {
		return nil, err
	}
	m, err := pl.Resolve(typeName, methodName)
	if err != nil {
		return nil, err
	}
	return NewHelperEntry(m)
}

// LoadBytes passes data to the helper.
func (h *HelperEntry) LoadBytes(data []byte) error {
	if err := checkImage(uint64(len(data))); err != nil {
		return err
	}
	if h == nil || !h.proc.Valid() {
		return errors.NotInitialized(errors.PhaseComponent, "assembly helper")
	}
	hostfxr.Serialized(func() {
		h.proc.Fn(native.First(data), int32(len(data)))
	})
	runtime.KeepAlive(data)
	return nil
}

// RuntimeBytes loads images through the runtime's load_assembly_bytes
// delegate (.NET 8+).
type RuntimeBytes struct {
	load *hostfxr.LoadAssemblyBytes
}

// NewRuntimeBytes adapts the delegate to BytesLoader.
func NewRuntimeBytes(load *hostfxr.LoadAssemblyBytes) *RuntimeBytes {
	return &RuntimeBytes{load: load}
}

// LoadBytes loads data without debug symbols.
func (r *RuntimeBytes) LoadBytes(data []byte) error {
	if r == nil || r.load == nil {
		return errors.NotInitialized(errors.PhaseComponent, "load_assembly_bytes")
	}
	return r.load.Call(data, nil)
}
