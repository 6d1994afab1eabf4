package hostfxr

import (
	"runtime"
	"sort"

	"github.com/wippyai/clr-host/errors"
	"github.com/wippyai/clr-host/native"
)

// Property is one runtime property as the host resolved it.
type Property struct {
	Name  string
	Value string
}

// Property returns the value of a runtime property.
func (c *Context) Property(name string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.usable(errors.PhaseProperty); err != nil {
		return "", err
	}
	key, err := native.StringPtr(name)
	if err != nil {
		return "", errors.InvalidInput(errors.PhaseProperty, "property name: "+err.Error())
	}

	var value *native.Char
	var out string
	callMu.Lock()
	rc := c.lib.getRuntimePropertyValue(c.handle, key, &value)
	if statusOf(rc) == Success {
		// value belongs to the host and is only stable while we hold the lock.
		out = native.GoString(value)
	}
	callMu.Unlock()
	runtime.KeepAlive(key)

	if status := statusOf(rc); status != Success {
		err := errors.Status(errors.PhaseProperty, SymGetRuntimePropertyValue, uint32(status))
		err.Detail = name
		return "", err
	}
	return out, nil
}

// SetProperty sets a runtime property. It is only accepted before the
// runtime starts, that is before the first delegate or RunApp.
func (c *Context) SetProperty(name, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.usable(errors.PhaseProperty); err != nil {
		return err
	}
	if c.started || c.state != StateInitialized {
		return errors.InvalidInput(errors.PhaseProperty, "runtime properties are read-only once the runtime has started")
	}
	if name == "" {
		return errors.InvalidInput(errors.PhaseProperty, "property name is required")
	}
	key, err := native.StringPtr(name)
	if err != nil {
		return errors.InvalidInput(errors.PhaseProperty, "property name: "+err.Error())
	}
	val, err := native.StringPtr(value)
	if err != nil {
		return errors.InvalidInput(errors.PhaseProperty, "property value: "+err.Error())
	}

	callMu.Lock()
	rc := c.lib.setRuntimePropertyValue(c.handle, key, val)
	callMu.Unlock()
	runtime.KeepAlive(key)
	runtime.KeepAlive(val)

	if status := statusOf(rc); status != Success {
		err := errors.Status(errors.PhaseProperty, SymSetRuntimePropertyValue, uint32(status))
		err.Detail = name
		return err
	}
	return nil
}

// Properties returns every runtime property sorted by name.
func (c *Context) Properties() ([]Property, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.usable(errors.PhaseProperty); err != nil {
		return nil, err
	}

	callMu.Lock()
	defer callMu.Unlock()

	var count uintptr
	rc := c.lib.getRuntimeProperties(c.handle, &count, nil, nil)
	status := statusOf(rc)
	if status == Success {
		return nil, nil
	}
	if status != HostApiBufferTooSmall {
		return nil, errors.Status(errors.PhaseProperty, SymGetRuntimeProperties, uint32(status))
	}

	// The count can grow between calls if another context sets a property,
	// so retry until the buffers are large enough.
	for {
		keys := make([]*native.Char, count)
		values := make([]*native.Char, count)
		n := count
		rc = c.lib.getRuntimeProperties(c.handle, &n, native.First(keys), native.First(values))
		status = statusOf(rc)
		if status == HostApiBufferTooSmall && n > count {
			count = n
			continue
		}
		if status != Success {
			return nil, errors.Status(errors.PhaseProperty, SymGetRuntimeProperties, uint32(status))
		}

		props := make([]Property, 0, n)
		for i := uintptr(0); i < n && i < count; i++ {
			props = append(props, Property{
				Name:  native.GoString(keys[i]),
				Value: native.GoString(values[i]),
			})
		}
		sort.Slice(props, func(i, j int) bool { return props[i].Name < props[j].Name })
		return props, nil
	}
}
