package native

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/clr-host/errors"
)

func TestNewProc_RejectsNonFunc(t *testing.T) {
	_, err := NewProc[int]("not_a_func", 0x1000)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrSignature)
	assert.Contains(t, err.Error(), "not_a_func")
}

func TestNewProc_RejectsNullAddress(t *testing.T) {
	p, err := NewProc[func() int32]("hostfxr_close", 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrSignature)
	assert.False(t, p.Valid())
}

func TestNewProc_RejectsUnsupportedArguments(t *testing.T) {
	_, err := NewProc[func(map[string]int) int32]("bad_args", 0x1000)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrSignature)
}

func TestRegister_RejectsNonPointer(t *testing.T) {
	var fn func() int32
	err := Register(fn, "by_value", 0x1000)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrSignature)

	err = Register((*func() int32)(nil), "nil_ptr", 0x1000)
	require.Error(t, err)
}

func TestStringRoundTrip(t *testing.T) {
	for _, s := range []string{"", "hostfxr", "/opt/dotnet/shared/Microsoft.NETCore.App/8.0.0", "Grüße"} {
		p, err := StringPtr(s)
		require.NoError(t, err)
		assert.Equal(t, s, GoString(p))

		c, err := CString(s)
		require.NoError(t, err)
		assert.Equal(t, s, GoCString(c))
	}
	assert.Equal(t, "", GoString(nil))
	assert.Equal(t, "", GoCString(nil))
}

func TestStringPtr_RejectsEmbeddedNUL(t *testing.T) {
	_, err := StringPtr("a\x00b")
	assert.Error(t, err)
	_, err = CString("a\x00b")
	assert.Error(t, err)
}

func TestStringArray(t *testing.T) {
	arr, err := StringArray([]string{"pwsh.dll", "-NoLogo"})
	require.NoError(t, err)
	require.Len(t, arr, 2)
	assert.Equal(t, "pwsh.dll", GoString(arr[0]))
	assert.Equal(t, "-NoLogo", GoString(arr[1]))

	_, err = StringArray([]string{"ok", "bad\x00"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "argument 1")

	carr, err := CStringArray([]string{"x"})
	require.NoError(t, err)
	assert.Equal(t, "x", GoCString(carr[0]))
}

func TestFirst(t *testing.T) {
	assert.Nil(t, First[int](nil))
	s := []int{7, 8}
	assert.Same(t, &s[0], First(s))
}
