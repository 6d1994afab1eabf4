package coreclr

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/coreos/go-semver/semver"
	"go.uber.org/zap"

	"github.com/wippyai/clr-host/errors"
)

// NetCoreApp is the name of the base shared framework.
const NetCoreApp = "Microsoft.NETCore.App"

// LibraryName is the file name of coreclr on this platform.
func LibraryName() string {
	switch runtime.GOOS {
	case "windows":
		return "coreclr.dll"
	case "darwin":
		return "libcoreclr.dylib"
	default:
		return "libcoreclr.so"
	}
}

// FindFramework returns the directory of the highest installed version of
// the shared framework name under root/shared that contains coreclr.
// An empty name means NetCoreApp.
func FindFramework(root, name string) (string, error) {
	if name == "" {
		name = NetCoreApp
	}
	base := filepath.Join(root, "shared", name)
	entries, err := os.ReadDir(base)
	if err != nil {
		return "", errors.New(errors.PhaseLocate, errors.KindHostNotFound).
			Path(base).
			Cause(err).
			Detail("shared framework not installed").
			Build()
	}

	var best *semver.Version
	var bestDir string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		v, err := semver.NewVersion(e.Name())
		if err != nil {
			continue
		}
		dir := filepath.Join(base, e.Name())
		if _, err := os.Stat(filepath.Join(dir, LibraryName())); err != nil {
			continue
		}
		if best == nil || best.LessThan(*v) {
			best, bestDir = v, dir
		}
	}
	if best == nil {
		return "", errors.New(errors.PhaseLocate, errors.KindHostNotFound).
			Path(base).
			Detail("no framework version contains %s", LibraryName()).
			Build()
	}
	Logger().Debug("shared framework found", zap.String("dir", bestDir), zap.Stringer("version", best))
	return bestDir, nil
}
