// Package facade exposes a managed component as a three-entry native
// interface table: Create returns an opaque instance, Configure feeds it
// a UTF-8 string, Invoke runs it.
package facade

import (
	"runtime"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/wippyai/clr-host/assembly"
	"github.com/wippyai/clr-host/errors"
	"github.com/wippyai/clr-host/native"
)

// Names identifies the managed type and its three entry points.
type Names struct {
	TypeName  string `validate:"required" json:"type" yaml:"type"`
	Create    string `validate:"required" json:"create" yaml:"create"`
	Configure string `validate:"required" json:"configure" yaml:"configure"`
	Invoke    string `validate:"required" json:"invoke" yaml:"invoke"`
}

// DefaultNames uses Create, Configure and Invoke on typeName.
func DefaultNames(typeName string) Names {
	return Names{
		TypeName:  typeName,
		Create:    "Create",
		Configure: "Configure",
		Invoke:    "Invoke",
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate reports the first missing name.
func (n Names) Validate() error {
	if err := validate.Struct(n); err != nil {
		return errors.New(errors.PhaseResolve, errors.KindInvalidInput).
			Cause(err).
			Detail("incomplete interface names").
			Build()
	}
	return nil
}

type (
	createFn    = func() uintptr
	configureFn = func(instance uintptr, input *byte)
	invokeFn    = func(instance uintptr)
)

// Table is a fully resolved interface. It holds no mutable state and may
// be shared; instances it creates may not.
type Table struct {
	names     Names
	create    native.Proc[createFn]
	configure native.Proc[configureFn]
	invoke    native.Proc[invokeFn]
}

// Build resolves all three entry points. Either all resolve or no table
// is returned.
func Build(r assembly.Resolver, names Names) (*Table, error) {
	if r == nil {
		return nil, errors.NotInitialized(errors.PhaseResolve, "component resolver")
	}
	if err := names.Validate(); err != nil {
		return nil, err
	}

	t := &Table{names: names}
	var err error
	if t.create, err = resolve[createFn](r, names.TypeName, names.Create); err != nil {
		return nil, err
	}
	if t.configure, err = resolve[configureFn](r, names.TypeName, names.Configure); err != nil {
		return nil, err
	}
	if t.invoke, err = resolve[invokeFn](r, names.TypeName, names.Invoke); err != nil {
		return nil, err
	}

	Logger().Debug("interface table built",
		zap.String("type", names.TypeName),
		zap.String("create", names.Create),
		zap.String("configure", names.Configure),
		zap.String("invoke", names.Invoke))
	return t, nil
}

func resolve[F any](r assembly.Resolver, typeName, method string) (native.Proc[F], error) {
	m, err := r.Resolve(typeName, method)
	if err != nil {
		return native.Proc[F]{}, err
	}
	return assembly.Bind[F](m)
}

// Names returns the names the table was built from.
func (t *Table) Names() Names { return t.names }

// Create makes a new component instance.
func (t *Table) Create() (*Session, error) {
	handle := t.create.Fn()
	if handle == 0 {
		return nil, errors.NullHandle(errors.PhaseInvoke, t.create.Name)
	}
	return &Session{table: t, handle: handle}, nil
}

// Session is one component instance. It is not safe for concurrent use.
type Session struct {
	table  *Table
	handle uintptr
}

// Handle returns the opaque instance handle.
func (s *Session) Handle() uintptr { return s.handle }

// Configure passes input to the instance.
func (s *Session) Configure(input string) error {
	if err := s.check(); err != nil {
		return err
	}
	cs, err := native.CString(input)
	if err != nil {
		return errors.InvalidInput(errors.PhaseInvoke, "configure input: "+err.Error())
	}
	s.table.configure.Fn(s.handle, cs)
	runtime.KeepAlive(cs)
	return nil
}

// Invoke runs the instance with everything configured so far.
func (s *Session) Invoke() error {
	if err := s.check(); err != nil {
		return err
	}
	s.table.invoke.Fn(s.handle)
	return nil
}

func (s *Session) check() error {
	if s == nil || s.table == nil || s.handle == 0 {
		return errors.NotInitialized(errors.PhaseInvoke, "component instance")
	}
	return nil
}
