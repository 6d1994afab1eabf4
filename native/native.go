// Package native binds raw function addresses to typed Go functions and
// converts strings to and from the hosting ABI's character type.
//
// Every native call in the host goes through a Proc: a function pointer
// tagged with its symbol name and a declared Go signature. Construction
// rejects anything that is not a func type or that purego cannot marshal,
// so a bad signature is reported when the Proc is built instead of at call
// time.
package native

import (
	"fmt"
	"reflect"

	"github.com/ebitengine/purego"

	"github.com/wippyai/clr-host/errors"
)

// Proc is a resolved native function with a declared signature F.
// Caller and callee must agree on F out of band; the address carries no
// type information.
type Proc[F any] struct {
	Fn   F
	Name string
	Addr uintptr
}

// NewProc binds addr to a Go function of type F.
func NewProc[F any](name string, addr uintptr) (Proc[F], error) {
	var p Proc[F]
	if err := Register(&p.Fn, name, addr); err != nil {
		return Proc[F]{}, err
	}
	p.Name = name
	p.Addr = addr
	return p, nil
}

// Valid reports whether the Proc was bound to a non-null address.
func (p Proc[F]) Valid() bool {
	return p.Addr != 0
}

// Signature describes the declared Go signature, for diagnostics.
func (p Proc[F]) Signature() string {
	return reflect.TypeOf(p.Fn).String()
}

// Register binds addr into the func variable fptr points to. It is the
// reflective form of NewProc used to populate binding structs.
func Register(fptr any, name string, addr uintptr) (err error) {
	v := reflect.ValueOf(fptr)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Func {
		return errors.Signature(name, fmt.Sprintf("%T is not a pointer to a func", fptr))
	}
	if addr == 0 {
		return errors.Signature(name, "null function pointer")
	}

	defer func() {
		if r := recover(); r != nil {
			err = errors.Signature(name, fmt.Sprint(r))
		}
	}()
	purego.RegisterFunc(fptr, addr)
	return nil
}

// StringArray converts ss to a slice of char_t pointers. The slice and the
// strings it points to must be kept alive for the duration of the call.
func StringArray(ss []string) ([]*Char, error) {
	out := make([]*Char, len(ss))
	for i, s := range ss {
		p, err := StringPtr(s)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = p
	}
	return out, nil
}

// CStringArray is StringArray for always-UTF-8 APIs.
func CStringArray(ss []string) ([]*byte, error) {
	out := make([]*byte, len(ss))
	for i, s := range ss {
		p, err := CString(s)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = p
	}
	return out, nil
}

// First returns a pointer to the first element of s, or nil when empty.
func First[T any](s []T) *T {
	if len(s) == 0 {
		return nil
	}
	return &s[0]
}
