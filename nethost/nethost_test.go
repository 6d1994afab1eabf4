package nethost

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/clr-host/errors"
)

func installFxr(t *testing.T, root string, versions ...string) {
	t.Helper()
	for _, v := range versions {
		dir := filepath.Join(root, "host", "fxr", v)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, HostfxrLibraryName()), nil, 0o644))
	}
}

func TestFindHostfxr_PicksHighestVersion(t *testing.T) {
	root := t.TempDir()
	installFxr(t, root, "6.0.25", "8.0.0", "10.0.1", "11.0.0-preview.1", "latest")
	// A version directory without the library is skipped.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "host", "fxr", "12.0.0"), 0o755))

	path, err := FindHostfxr(root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "host", "fxr", "11.0.0-preview.1", HostfxrLibraryName()), path)
}

func TestFindHostfxr_ReleaseBeatsPrerelease(t *testing.T) {
	root := t.TempDir()
	installFxr(t, root, "9.0.0-rc.2", "9.0.0")

	path, err := FindHostfxr(root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "host", "fxr", "9.0.0", HostfxrLibraryName()), path)
}

func TestFindHostfxr_NotFound(t *testing.T) {
	_, err := FindHostfxr("")
	assert.ErrorIs(t, err, errors.ErrHostNotFound)

	_, err = FindHostfxr(t.TempDir())
	assert.ErrorIs(t, err, errors.ErrHostNotFound)

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "host", "fxr", "not-a-version"), 0o755))
	_, err = FindHostfxr(root)
	assert.ErrorIs(t, err, errors.ErrHostNotFound)
}

func TestDefaultDotnetRoot_PrefersEnvironment(t *testing.T) {
	t.Setenv("DOTNET_ROOT", "/opt/dotnet-custom")
	assert.Equal(t, "/opt/dotnet-custom", DefaultDotnetRoot())
}

func TestLibraryNames(t *testing.T) {
	assert.Contains(t, HostfxrLibraryName(), "hostfxr")
	assert.Contains(t, NethostLibraryName(), "nethost")
}

func TestBind_Nil(t *testing.T) {
	_, err := Bind(nil)
	assert.ErrorIs(t, err, errors.ErrNotInitialized)

	var l *Library
	_, err = l.HostfxrPath()
	assert.ErrorIs(t, err, errors.ErrNotInitialized)
	assert.NoError(t, l.Close())
}
