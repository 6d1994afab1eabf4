//go:build (darwin || linux) && (amd64 || arm64)

package hostfxr

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/clr-host/dl"
	"github.com/wippyai/clr-host/errors"
	"github.com/wippyai/clr-host/internal/fakehost"
)

const sampleType = "Sample.Api, Sample"

func setup(t *testing.T) (*fakehost.Host, *Library) {
	t.Helper()
	h := fakehost.New(t)
	lib, err := Bind(h.Hostfxr())
	require.NoError(t, err)
	return h, lib
}

func initialized(t *testing.T) (*fakehost.Host, *Context) {
	t.Helper()
	h, lib := setup(t)
	ctx, err := lib.InitializeForRuntimeConfig(h.WriteRuntimeConfig("app.runtimeconfig.json"))
	require.NoError(t, err)
	return h, ctx
}

func TestBind_FailsNamingMissingSymbol(t *testing.T) {
	for _, sym := range RequiredSymbols {
		t.Run(sym, func(t *testing.T) {
			h := fakehost.New(t)
			lib, err := Bind(h.Hostfxr().Without(sym))
			require.Error(t, err)
			assert.Nil(t, lib)
			assert.ErrorIs(t, err, errors.ErrSymbolMissing)
			assert.Contains(t, err.Error(), sym)
		})
	}
}

func TestBind_ErrorWriterIsOptional(t *testing.T) {
	h := fakehost.New(t)
	lib, err := Bind(h.Hostfxr().Without(SymSetErrorWriter))
	require.NoError(t, err)
	assert.False(t, lib.HasErrorWriter())

	_, err = lib.SetErrorWriter(func(string) {})
	assert.ErrorIs(t, err, errors.ErrSymbolMissing)
}

func TestInitializeForRuntimeConfig(t *testing.T) {
	h, lib := setup(t)
	path := h.WriteRuntimeConfig("app.runtimeconfig.json")

	ctx, err := lib.InitializeForRuntimeConfig(path,
		WithDotnetRoot("/usr/share/dotnet"),
		WithHostPath("/usr/bin/clrhost"))
	require.NoError(t, err)

	assert.Equal(t, StateInitialized, ctx.State())
	assert.Equal(t, ModeRuntimeConfig, ctx.Mode())
	assert.Equal(t, Success, ctx.Status())
	assert.Equal(t, path, ctx.Target())
	assert.NotZero(t, ctx.Handle())
	assert.Equal(t, 1, h.OpenHandles())
	assert.Equal(t, []string{path}, h.LastArgs())

	hostPath, root := h.LastInitParams()
	assert.Equal(t, "/usr/bin/clrhost", hostPath)
	assert.Equal(t, "/usr/share/dotnet", root)
}

func TestInitializeForRuntimeConfig_PrecheckFailsBeforeNativeCall(t *testing.T) {
	h, lib := setup(t)

	_, err := lib.InitializeForRuntimeConfig(filepath.Join(h.Dir(), "missing.runtimeconfig.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrRuntimeInit)
	assert.Empty(t, h.Calls())
}

func TestInitialize_SecondaryContextStatus(t *testing.T) {
	h, lib := setup(t)
	h.InitStatus = uint32(SuccessHostAlreadyInitialized)

	ctx, err := lib.InitializeForRuntimeConfig(h.WriteRuntimeConfig("app.runtimeconfig.json"))
	require.NoError(t, err)
	assert.Equal(t, SuccessHostAlreadyInitialized, ctx.Status())
}

func TestInitialize_Failures(t *testing.T) {
	t.Run("failure status", func(t *testing.T) {
		h, lib := setup(t)
		h.InitFailure = uint32(FrameworkMissingFailure)

		_, err := lib.InitializeForRuntimeConfig(h.WriteRuntimeConfig("app.runtimeconfig.json"))
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrRuntimeInit)
		assert.Equal(t, uint32(FrameworkMissingFailure), errors.CodeOf(err))
		assert.Contains(t, err.Error(), "0x80008096")
	})

	t.Run("null handle", func(t *testing.T) {
		h, lib := setup(t)
		h.NullHandle = true

		_, err := lib.InitializeForRuntimeConfig(h.WriteRuntimeConfig("app.runtimeconfig.json"))
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrRuntimeInit)
	})
}

func TestInitializeForCommandLine(t *testing.T) {
	h, lib := setup(t)
	entry := h.WriteAssembly("app.dll", sampleType)

	_, err := lib.InitializeForCommandLine(nil)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	_, err = lib.InitializeForCommandLine([]string{filepath.Join(h.Dir(), "nope.dll")})
	assert.ErrorIs(t, err, errors.ErrRuntimeInit)

	args := []string{entry, "-NoLogo", "-Command", "Get-Date"}
	ctx, err := lib.InitializeForCommandLine(args)
	require.NoError(t, err)
	assert.Equal(t, ModeCommandLine, ctx.Mode())
	assert.Equal(t, args, h.LastArgs())
}

func TestLibraryClose_RefusedAfterInitialize(t *testing.T) {
	h, lib := setup(t)
	assert.NoError(t, lib.Close(), "bound tables are not owned")

	lib.owned = new(dl.Library)
	_, err := lib.InitializeForRuntimeConfig(h.WriteRuntimeConfig("app.runtimeconfig.json"))
	require.NoError(t, err)

	err = lib.Close()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestContext_CapabilitySurvivesClose(t *testing.T) {
	h, ctx := initialized(t)
	h.DefineComponent(sampleType)
	asm := h.WriteAssembly("Sample.dll", sampleType)

	load, err := ctx.LoadAssemblyAndGetFunctionPointer()
	require.NoError(t, err)
	assert.Equal(t, StateDelegateObtained, ctx.State())

	require.NoError(t, ctx.Close())
	assert.Equal(t, StateClosed, ctx.State())
	assert.Zero(t, ctx.Handle())
	require.NoError(t, ctx.Close(), "close is idempotent")
	assert.Equal(t, 1, h.Closes())

	fn, err := load.Call(asm, sampleType, "Create", UnmanagedCallersOnly)
	require.NoError(t, err)
	assert.NotZero(t, fn)
	assert.Equal(t, ^uintptr(0), h.LastDelegateType())

	_, err = ctx.GetFunctionPointer()
	assert.ErrorIs(t, err, errors.ErrClosed)
}

func TestContext_DelegateUnavailable(t *testing.T) {
	h, ctx := initialized(t)
	h.Unavailable[int32(DelegateGetFunctionPointer)] = true

	_, err := ctx.GetFunctionPointer()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrDelegateUnavailable)
	assert.Contains(t, err.Error(), "get_function_pointer")
	assert.Equal(t, StateInitialized, ctx.State())

	_, err = ctx.Delegate(DelegateComActivation)
	assert.ErrorIs(t, err, errors.ErrDelegateUnavailable)
}

func TestLoadAssemblyAndGetFunctionPointer_Failures(t *testing.T) {
	h, ctx := initialized(t)
	h.DefineComponent(sampleType)
	asm := h.WriteAssembly("Sample.dll", sampleType)

	load, err := ctx.LoadAssemblyAndGetFunctionPointer()
	require.NoError(t, err)

	_, err = load.Call(filepath.Join(h.Dir(), "Missing.dll"), sampleType, "Create", UnmanagedCallersOnly)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMethodResolution)
	assert.Equal(t, uint32(FileNotFound), errors.CodeOf(err))

	_, err = load.Call(asm, sampleType, "Destroy", UnmanagedCallersOnly)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMethodResolution)
	assert.Equal(t, uint32(MissingMethod), errors.CodeOf(err))
	assert.Contains(t, err.Error(), sampleType+"::Destroy")

	_, err = load.Call(asm, "", "Create", UnmanagedCallersOnly)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestGetFunctionPointer(t *testing.T) {
	h, ctx := initialized(t)
	h.DefineComponent(sampleType)

	get, err := ctx.GetFunctionPointer()
	require.NoError(t, err)

	_, err = get.Call(sampleType, "Create", UnmanagedCallersOnly)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMethodResolution)
	assert.Equal(t, uint32(TypeLoad), errors.CodeOf(err))

	loadAsm, err := ctx.LoadAssembly()
	require.NoError(t, err)
	require.NoError(t, loadAsm.Call(h.WriteAssembly("Sample.dll", sampleType)))

	fn, err := get.Call(sampleType, "Create", ComponentEntryPoint)
	require.NoError(t, err)
	assert.NotZero(t, fn)
	assert.Zero(t, h.LastDelegateType())

	_, err = get.Call(sampleType, "Invoke", DelegateType("Sample.Api+InvokeFn, Sample"))
	require.NoError(t, err)
	assert.NotEqual(t, ^uintptr(0), h.LastDelegateType())
	assert.NotZero(t, h.LastDelegateType())
}

func TestLoadAssembly_MissingFile(t *testing.T) {
	h, ctx := initialized(t)

	loadAsm, err := ctx.LoadAssembly()
	require.NoError(t, err)

	err = loadAsm.Call(filepath.Join(h.Dir(), "Missing.dll"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrComponentLoad)
	assert.Equal(t, uint32(FileNotFound), errors.CodeOf(err))
}

func TestLoadAssemblyBytes(t *testing.T) {
	h, ctx := initialized(t)
	h.DefineComponent(sampleType)

	loadBytes, err := ctx.LoadAssemblyBytes()
	require.NoError(t, err)

	calls := len(h.Calls())
	err = loadBytes.Call(nil, nil)
	assert.ErrorIs(t, err, errors.ErrComponentLoad)
	assert.Len(t, h.Calls(), calls, "empty image never reaches the runtime")

	err = loadBytes.Call([]byte("MZ garbage"), nil)
	assert.ErrorIs(t, err, errors.ErrComponentLoad)
	assert.Equal(t, uint32(BadImageFormat), errors.CodeOf(err))

	require.NoError(t, loadBytes.Call(fakehost.AssemblyBytes(sampleType), nil))
	assert.True(t, h.Loaded(sampleType))
}

func TestProperties(t *testing.T) {
	h, ctx := initialized(t)

	v, err := ctx.Property("RUNTIME_IDENTIFIER")
	require.NoError(t, err)
	assert.Equal(t, "linux-x64", v)

	_, err = ctx.Property("NO_SUCH_PROPERTY")
	require.Error(t, err)
	assert.Equal(t, uint32(HostPropertyNotFound), errors.CodeOf(err))
	assert.Contains(t, err.Error(), "NO_SUCH_PROPERTY")

	require.NoError(t, ctx.SetProperty("APP_PATHS", "/srv/app"))
	got, ok := h.PropertyValue("APP_PATHS")
	require.True(t, ok)
	assert.Equal(t, "/srv/app", got)

	props, err := ctx.Properties()
	require.NoError(t, err)
	require.Len(t, props, 3)
	assert.Equal(t, "APP_CONTEXT_BASE_DIRECTORY", props[0].Name)
	assert.Equal(t, Property{Name: "APP_PATHS", Value: "/srv/app"}, props[1])
	assert.Equal(t, Property{Name: "RUNTIME_IDENTIFIER", Value: "linux-x64"}, props[2])

	_, err = ctx.GetFunctionPointer()
	require.NoError(t, err)
	err = ctx.SetProperty("APP_PATHS", "/elsewhere")
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	require.NoError(t, ctx.Close())
	_, err = ctx.Property("RUNTIME_IDENTIFIER")
	assert.ErrorIs(t, err, errors.ErrClosed)
}

func TestRunApp(t *testing.T) {
	h, lib := setup(t)
	entry := h.WriteAssembly("app.dll", sampleType)

	ctx, err := lib.InitializeForCommandLine([]string{entry})
	require.NoError(t, err)

	h.ExitCode = 3
	rc, err := ctx.RunApp()
	require.NoError(t, err)
	assert.Equal(t, int32(3), rc)
	assert.True(t, h.Started())

	err = ctx.SetProperty("X", "y")
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	notRunnable := uint32(AppArgNotRunnable)
	h.ExitCode = int32(notRunnable)
	_, err = ctx.RunApp()
	require.Error(t, err)
	assert.Equal(t, uint32(AppArgNotRunnable), errors.CodeOf(err))
}

func TestRunApp_RequiresCommandLine(t *testing.T) {
	_, ctx := initialized(t)

	_, err := ctx.RunApp()
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestSetErrorWriter(t *testing.T) {
	h, lib := setup(t)
	require.True(t, lib.HasErrorWriter())

	restore, err := lib.SetErrorWriter(func(string) {})
	require.NoError(t, err)
	assert.NotZero(t, h.ErrorWriter())
	assert.NotNil(t, errorWriter.Load())

	restore()
	assert.Zero(t, h.ErrorWriter())
	assert.Nil(t, errorWriter.Load())
}
