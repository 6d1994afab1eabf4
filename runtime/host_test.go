//go:build (darwin || linux) && (amd64 || arm64)

package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/clr-host/assembly"
	"github.com/wippyai/clr-host/errors"
	"github.com/wippyai/clr-host/facade"
	"github.com/wippyai/clr-host/hostfxr"
	"github.com/wippyai/clr-host/internal/fakehost"
)

const (
	componentType = "Sample.Api, Sample"
	helperType    = "Sample.Loader, Helper"
)

func start(t *testing.T, fh *fakehost.Host, mutate func(*Config)) *Runtime {
	t.Helper()
	cfg := Config{
		Hostfxr:       fh.Hostfxr(),
		RuntimeConfig: fh.WriteRuntimeConfig("Sample.runtimeconfig.json"),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	rt, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func exercise(t *testing.T, fh *fakehost.Host, rt *Runtime, r assembly.Resolver) {
	t.Helper()
	table, err := rt.Interface(r, facade.DefaultNames(componentType))
	require.NoError(t, err)

	s, err := table.Create()
	require.NoError(t, err)
	require.NoError(t, s.Configure("Get-Process"))
	require.NoError(t, s.Invoke())

	rec := fh.Session(s.Handle())
	require.NotNil(t, rec)
	assert.Equal(t, []string{"Get-Process"}, rec.Inputs)
	assert.Equal(t, 1, rec.Invokes)
}

func TestNew_RuntimeConfig(t *testing.T) {
	fh := fakehost.New(t)
	rt := start(t, fh, func(c *Config) {
		c.Properties = map[string]string{"APP_SETTING": "on", "System.GC.Server": "false"}
		c.HostPath = "/usr/bin/clrhost"
	})

	assert.Equal(t, hostfxr.ModeRuntimeConfig, rt.Mode())
	assert.Nil(t, rt.Context(), "context is released once capabilities are obtained")
	assert.Equal(t, 1, fh.Closes())
	assert.Zero(t, fh.OpenHandles())
	assert.True(t, fh.Started())

	v, ok := rt.Property("APP_SETTING")
	assert.True(t, ok)
	assert.Equal(t, "on", v)
	_, ok = rt.Property("RUNTIME_IDENTIFIER")
	assert.True(t, ok)

	hostPath, _ := fh.LastInitParams()
	assert.Equal(t, "/usr/bin/clrhost", hostPath)
}

func TestNew_KeepContext(t *testing.T) {
	fh := fakehost.New(t)
	rt := start(t, fh, func(c *Config) { c.KeepContext = true })

	require.NotNil(t, rt.Context())
	assert.Equal(t, 1, fh.OpenHandles())

	require.NoError(t, rt.Close())
	assert.Nil(t, rt.Context())
	assert.Zero(t, fh.OpenHandles())
	require.NoError(t, rt.Close())
	assert.Equal(t, 1, fh.Closes())
}

func TestNew_RequiredDelegateUnavailable(t *testing.T) {
	fh := fakehost.New(t)
	fh.Unavailable[int32(hostfxr.DelegateLoadAssemblyAndGetFunctionPointer)] = true

	_, err := New(context.Background(), Config{
		Hostfxr:       fh.Hostfxr(),
		RuntimeConfig: fh.WriteRuntimeConfig("Sample.runtimeconfig.json"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrDelegateUnavailable)
	assert.Zero(t, fh.OpenHandles())
}

func TestNew_InitFailure(t *testing.T) {
	fh := fakehost.New(t)
	fh.InitFailure = fakehost.StatusLibMissing

	_, err := New(context.Background(), Config{
		Hostfxr:       fh.Hostfxr(),
		RuntimeConfig: fh.WriteRuntimeConfig("Sample.runtimeconfig.json"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrRuntimeInit)
	assert.Equal(t, uint32(fakehost.StatusLibMissing), errors.CodeOf(err))
}

func TestNew_InitFailureReleasesOpenedHostfxr(t *testing.T) {
	fh := fakehost.New(t)
	fh.InitFailure = fakehost.StatusLibMissing

	var opened []string
	orig := openLibrary
	openLibrary = func(path string) (*hostfxr.Library, error) {
		opened = append(opened, path)
		return hostfxr.Bind(fh.Hostfxr())
	}
	t.Cleanup(func() { openLibrary = orig })

	core, logs := observer.New(zap.DebugLevel)
	t.Cleanup(func() { propagateLogger(zap.NewNop()) })
	cfg := Config{
		HostfxrPath:   fh.HostfxrPath,
		RuntimeConfig: fh.WriteRuntimeConfig("Sample.runtimeconfig.json"),
		Logger:        zap.New(core),
	}

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrRuntimeInit)
	assert.Equal(t, []string{fh.HostfxrPath}, opened)
	assert.Equal(t, 1, logs.FilterMessage("hostfxr unloaded").Len())

	logs.TakeAll()
	cfg.HostfxrPath = ""
	cfg.Hostfxr = fh.Hostfxr()
	_, err = New(context.Background(), cfg)
	require.Error(t, err)
	assert.Zero(t, logs.FilterMessage("hostfxr unloaded").Len())
}

func TestNew_ErrorWriterRestored(t *testing.T) {
	fh := fakehost.New(t)
	start(t, fh, func(c *Config) { c.ErrorWriter = func(string) {} })

	assert.Zero(t, fh.ErrorWriter())
	n := 0
	for _, c := range fh.Calls() {
		if c == hostfxr.SymSetErrorWriter {
			n++
		}
	}
	assert.Equal(t, 2, n)
}

func TestRuntime_FromPath(t *testing.T) {
	fh := fakehost.New(t)
	fh.DefineComponent(componentType)
	rt := start(t, fh, nil)

	loader, err := rt.LoadFromPath(fh.WriteAssembly("Sample.dll", componentType))
	require.NoError(t, err)
	exercise(t, fh, rt, loader)
}

func TestRuntime_FromPathMissingAssembly(t *testing.T) {
	fh := fakehost.New(t)
	rt := start(t, fh, nil)

	_, err := rt.LoadFromPath(fh.Dir() + "/Missing.dll")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrComponentLoad)
}

func TestRuntime_FromMemoryHelper(t *testing.T) {
	fh := fakehost.New(t)
	fh.DefineComponent(componentType)
	fh.DefineHelper(helperType, assembly.DefaultHelperMethod)
	rt := start(t, fh, nil)

	ml, err := rt.LoadHelper(fh.WriteAssembly("Helper.dll", helperType), helperType, "")
	require.NoError(t, err)

	_, err = ml.Resolve(componentType, "Create")
	assert.ErrorIs(t, err, errors.ErrMethodResolution, "component is not loaded yet")

	require.NoError(t, ml.Load(fakehost.AssemblyBytes(componentType)))
	exercise(t, fh, rt, ml)
}

func TestRuntime_FromMemoryRuntimeBytes(t *testing.T) {
	fh := fakehost.New(t)
	fh.DefineComponent(componentType)
	rt := start(t, fh, nil)

	ml, err := rt.RuntimeBytesLoader()
	require.NoError(t, err)
	require.NoError(t, ml.LoadFile(fh.WriteAssembly("Sample.dll", componentType)))
	exercise(t, fh, rt, ml)
}

func TestRuntime_RuntimeBytesUnavailable(t *testing.T) {
	fh := fakehost.New(t)
	fh.Unavailable[int32(hostfxr.DelegateLoadAssemblyBytes)] = true
	rt := start(t, fh, nil)

	_, err := rt.RuntimeBytesLoader()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrDelegateUnavailable)
}

func TestRuntime_TablesOutliveClose(t *testing.T) {
	fh := fakehost.New(t)
	fh.DefineComponent(componentType)
	rt := start(t, fh, func(c *Config) { c.KeepContext = true })

	loader, err := rt.LoadFromPath(fh.WriteAssembly("Sample.dll", componentType))
	require.NoError(t, err)
	table, err := rt.Interface(loader, facade.DefaultNames(componentType))
	require.NoError(t, err)
	require.NoError(t, rt.Close())

	s, err := table.Create()
	require.NoError(t, err)
	require.NoError(t, s.Invoke())

	_, err = rt.Interface(loader, facade.DefaultNames(componentType))
	assert.ErrorIs(t, err, errors.ErrClosed)
}

func TestRuntime_RunApp(t *testing.T) {
	fh := fakehost.New(t)
	fh.ExitCode = 3
	app := fh.WriteAssembly("App.dll", "App.Program, App")

	rt, err := New(context.Background(), Config{
		Hostfxr:     fh.Hostfxr(),
		CommandLine: []string{app, "--verbose"},
	})
	require.NoError(t, err)
	assert.Equal(t, hostfxr.ModeCommandLine, rt.Mode())
	require.NotNil(t, rt.Context())

	code, err := rt.RunApp()
	require.NoError(t, err)
	assert.Equal(t, int32(3), code)
	assert.Equal(t, []string{app, "--verbose"}, fh.LastArgs())

	require.NoError(t, rt.Close())
	_, err = rt.RunApp()
	assert.ErrorIs(t, err, errors.ErrClosed)
}

func TestRuntime_RunAppNeedsCommandLine(t *testing.T) {
	fh := fakehost.New(t)
	rt := start(t, fh, func(c *Config) { c.KeepContext = true })

	_, err := rt.RunApp()
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestNew_ViaNethost(t *testing.T) {
	fh := fakehost.New(t)

	cfg := Config{
		Nethost:       fh.Nethost(),
		DotnetRoot:    "/opt/dotnet",
		RuntimeConfig: fh.WriteRuntimeConfig("Sample.runtimeconfig.json"),
	}
	path, err := LocateHostfxr(cfg)
	require.NoError(t, err)
	assert.Equal(t, fh.HostfxrPath, path)
	_, root := fh.LastNethostParams()
	assert.Equal(t, "/opt/dotnet", root)

	// The fake path does not exist, so loading stops at the adapter.
	_, err = New(context.Background(), cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrLibraryLoad)
	assert.Contains(t, err.Error(), fh.HostfxrPath)
}
