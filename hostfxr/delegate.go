package hostfxr

import (
	"fmt"
	"unsafe"

	"github.com/wippyai/clr-host/native"
)

// DelegateKind selects which runtime delegate get_runtime_delegate returns.
type DelegateKind int32

const (
	DelegateComActivation                     DelegateKind = 0
	DelegateLoadInMemoryAssembly              DelegateKind = 1
	DelegateWinRTActivation                   DelegateKind = 2
	DelegateComRegister                       DelegateKind = 3
	DelegateComUnregister                     DelegateKind = 4
	DelegateLoadAssemblyAndGetFunctionPointer DelegateKind = 5
	DelegateGetFunctionPointer                DelegateKind = 6
	DelegateLoadAssembly                      DelegateKind = 7 // .NET 8+
	DelegateLoadAssemblyBytes                 DelegateKind = 8 // .NET 8+
)

func (k DelegateKind) String() string {
	switch k {
	case DelegateComActivation:
		return "com_activation"
	case DelegateLoadInMemoryAssembly:
		return "load_in_memory_assembly"
	case DelegateWinRTActivation:
		return "winrt_activation"
	case DelegateComRegister:
		return "com_register"
	case DelegateComUnregister:
		return "com_unregister"
	case DelegateLoadAssemblyAndGetFunctionPointer:
		return "load_assembly_and_get_function_pointer"
	case DelegateGetFunctionPointer:
		return "get_function_pointer"
	case DelegateLoadAssembly:
		return "load_assembly"
	case DelegateLoadAssemblyBytes:
		return "load_assembly_bytes"
	default:
		return fmt.Sprintf("delegate(%d)", int32(k))
	}
}

type conventionKind int

const (
	conventionUnmanagedCallersOnly conventionKind = iota
	conventionComponentEntryPoint
	conventionDelegateType
)

// unmanagedCallersOnlyMarker is UNMANAGEDCALLERSONLY_METHOD, (const char_t*)-1.
const unmanagedCallersOnlyMarker = ^uintptr(0)

// CallingConvention tells the runtime how the target method is exposed.
// The zero value is UnmanagedCallersOnly.
type CallingConvention struct {
	delegateType string
	kind         conventionKind
}

var (
	// UnmanagedCallersOnly targets a method marked [UnmanagedCallersOnly].
	UnmanagedCallersOnly = CallingConvention{kind: conventionUnmanagedCallersOnly}

	// ComponentEntryPoint targets a method with the default
	// int (void* args, int32 sizeBytes) delegate shape.
	ComponentEntryPoint = CallingConvention{kind: conventionComponentEntryPoint}
)

// DelegateType targets a method through the named managed delegate type
// ("Namespace.Type+Delegate, Assembly").
func DelegateType(name string) CallingConvention {
	return CallingConvention{kind: conventionDelegateType, delegateType: name}
}

func (c CallingConvention) String() string {
	switch c.kind {
	case conventionComponentEntryPoint:
		return "component_entry_point"
	case conventionDelegateType:
		return "delegate_type(" + c.delegateType + ")"
	default:
		return "unmanaged_callers_only"
	}
}

// argument returns the delegate_type_name argument. The returned string
// pointer, when non-nil, must be kept alive until the call returns.
func (c CallingConvention) argument() (uintptr, *native.Char, error) {
	switch c.kind {
	case conventionComponentEntryPoint:
		return 0, nil, nil
	case conventionDelegateType:
		p, err := native.StringPtr(c.delegateType)
		if err != nil {
			return 0, nil, err
		}
		return uintptr(unsafe.Pointer(p)), p, nil
	default:
		return unmanagedCallersOnlyMarker, nil, nil
	}
}
