package hostfxr

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wippyai/clr-host/errors"
)

func TestStatusCode_Succeeded(t *testing.T) {
	tests := []struct {
		code StatusCode
		want bool
	}{
		{Success, true},
		{SuccessHostAlreadyInitialized, true},
		{SuccessDifferentRuntimeProperties, true},
		{StatusCode(0x7fffffff), true},
		{InvalidArgFailure, false},
		{HostApiBufferTooSmall, false},
		{TypeLoad, false},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.Succeeded())
		})
	}
}

func TestStatusCode_IsHostFailure(t *testing.T) {
	assert.True(t, InvalidArgFailure.IsHostFailure())
	assert.True(t, FrameworkMissingFailure.IsHostFailure())
	assert.True(t, HostFeatureDisabled.IsHostFailure())
	assert.False(t, Success.IsHostFailure())
	assert.False(t, TypeLoad.IsHostFailure())
	assert.False(t, StatusCode(42).IsHostFailure())
}

func TestStatusCode_String(t *testing.T) {
	assert.Equal(t, "HostApiBufferTooSmall (0x80008098)", HostApiBufferTooSmall.String())
	assert.Equal(t, "COR_E_TYPELOAD (0x80131522)", TypeLoad.String())
	assert.Equal(t, "0x00000007", StatusCode(7).String())
}

func TestDelegateKind_String(t *testing.T) {
	assert.Equal(t, "load_assembly_and_get_function_pointer", DelegateLoadAssemblyAndGetFunctionPointer.String())
	assert.Equal(t, "get_function_pointer", DelegateGetFunctionPointer.String())
	assert.Equal(t, "load_assembly_bytes", DelegateLoadAssemblyBytes.String())
	assert.Equal(t, "delegate(42)", DelegateKind(42).String())
}

func TestCallingConvention_Argument(t *testing.T) {
	arg, keep, err := UnmanagedCallersOnly.argument()
	require.NoError(t, err)
	assert.Equal(t, ^uintptr(0), arg)
	assert.Nil(t, keep)

	var zero CallingConvention
	arg, _, err = zero.argument()
	require.NoError(t, err)
	assert.Equal(t, ^uintptr(0), arg, "zero value is UnmanagedCallersOnly")

	arg, _, err = ComponentEntryPoint.argument()
	require.NoError(t, err)
	assert.Zero(t, arg)

	arg, keep, err = DelegateType("Sample.Api+CreateFn, Sample").argument()
	require.NoError(t, err)
	assert.NotZero(t, arg)
	assert.NotEqual(t, ^uintptr(0), arg)
	assert.NotNil(t, keep)

	_, _, err = DelegateType("bad\x00name").argument()
	assert.Error(t, err)

	assert.Equal(t, "delegate_type(X+D, X)", DelegateType("X+D, X").String())
}

func TestBind_NilSymbols(t *testing.T) {
	_, err := Bind(nil)
	assert.ErrorIs(t, err, errors.ErrNotInitialized)
}

func TestOpen_MissingLibrary(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "libhostfxr.so"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrLibraryLoad)
}

func TestNilLibrary(t *testing.T) {
	var l *Library
	_, err := l.InitializeForRuntimeConfig("x.runtimeconfig.json")
	assert.ErrorIs(t, err, errors.ErrNotInitialized)
	_, err = l.InitializeForCommandLine([]string{"x.dll"})
	assert.ErrorIs(t, err, errors.ErrNotInitialized)
	assert.NoError(t, l.Close())
	assert.Equal(t, "", l.Path())
	assert.False(t, l.HasErrorWriter())
}

func TestZeroContext(t *testing.T) {
	var c Context
	_, err := c.Delegate(DelegateGetFunctionPointer)
	assert.ErrorIs(t, err, errors.ErrNotInitialized)
	assert.NoError(t, c.Close())
	assert.Equal(t, StateClosed, c.State())
	_, err = c.Delegate(DelegateGetFunctionPointer)
	assert.ErrorIs(t, err, errors.ErrClosed)
}

func TestParseRuntimeConfig(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr bool
		check   func(t *testing.T, cfg *RuntimeConfig)
	}{
		{
			name: "single framework",
			doc: `{"runtimeOptions":{"tfm":"net8.0","framework":{"name":"Microsoft.NETCore.App","version":"8.0.0"},
				"configProperties":{"System.GC.Server":true,"System.Globalization.Invariant":"true","Answer":42}}}`,
			check: func(t *testing.T, cfg *RuntimeConfig) {
				assert.Equal(t, "net8.0", cfg.RuntimeOptions.TFM)
				assert.Equal(t, []Framework{{Name: "Microsoft.NETCore.App", Version: "8.0.0"}}, cfg.FrameworkReferences())
				assert.False(t, cfg.SelfContained())
				assert.Equal(t, []Property{
					{Name: "Answer", Value: "42"},
					{Name: "System.GC.Server", Value: "true"},
					{Name: "System.Globalization.Invariant", Value: "true"},
				}, cfg.Properties())
			},
		},
		{
			name: "multiple frameworks",
			doc: `{"runtimeOptions":{"frameworks":[{"name":"Microsoft.NETCore.App","version":"8.0.0"},
				{"name":"Microsoft.AspNetCore.App","version":"8.0.0"}]}}`,
			check: func(t *testing.T, cfg *RuntimeConfig) {
				assert.Len(t, cfg.FrameworkReferences(), 2)
			},
		},
		{
			name: "self contained",
			doc:  `{"runtimeOptions":{"includedFrameworks":[{"name":"Microsoft.NETCore.App","version":"8.0.1"}]}}`,
			check: func(t *testing.T, cfg *RuntimeConfig) {
				assert.True(t, cfg.SelfContained())
			},
		},
		{name: "not json", doc: `runtimeOptions: {}`, wantErr: true},
		{name: "trailing garbage", doc: `{"runtimeOptions":`, wantErr: true},
		{name: "no runtimeOptions", doc: `{}`, wantErr: true},
		{name: "no framework", doc: `{"runtimeOptions":{"tfm":"net8.0"}}`, wantErr: true},
		{name: "unnamed framework", doc: `{"runtimeOptions":{"framework":{"version":"8.0.0"}}}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseRuntimeConfig([]byte(tt.doc))
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, errors.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestReadRuntimeConfig(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadRuntimeConfig("")
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	missing := filepath.Join(dir, "missing.runtimeconfig.json")
	_, err = ReadRuntimeConfig(missing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), missing)

	bad := filepath.Join(dir, "bad.runtimeconfig.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{}`), 0o644))
	_, err = ReadRuntimeConfig(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), bad)

	good := filepath.Join(dir, "good.runtimeconfig.json")
	require.NoError(t, os.WriteFile(good, []byte(`{"runtimeOptions":{"framework":{"name":"Microsoft.NETCore.App","version":"8.0.0"}}}`), 0o644))
	cfg, err := ReadRuntimeConfig(good)
	require.NoError(t, err)
	assert.Equal(t, good, cfg.Path)
}

func TestWriteError_DefaultsToLogger(t *testing.T) {
	errorWriter.Store(nil)
	// Must not panic with the nop logger.
	writeError("framework not found")

	var got []string
	w := func(msg string) { got = append(got, msg) }
	errorWriter.Store(&w)
	defer errorWriter.Store(nil)

	writeError("first")
	writeError("second")
	assert.Equal(t, []string{"first", "second"}, got)
}

func TestSetLogger_ConcurrentWithLogging(t *testing.T) {
	defer SetLogger(nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			SetLogger(zap.NewNop().Named("hostfxr"))
		}()
		go func() {
			defer wg.Done()
			Logger().Debug("concurrent")
		}()
	}
	wg.Wait()

	SetLogger(nil)
	assert.NotNil(t, Logger())
}
