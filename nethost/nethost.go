// Package nethost locates the hostfxr library.
//
// It binds get_hostfxr_path from the nethost library that ships with the
// .NET SDK, and also offers FindHostfxr, which scans a .NET install root
// directly when nethost is not available.
package nethost

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"runtime"
	"unsafe"

	"github.com/coreos/go-semver/semver"
	"go.uber.org/zap"

	"github.com/wippyai/clr-host/dl"
	"github.com/wippyai/clr-host/errors"
	"github.com/wippyai/clr-host/native"
)

// SymGetHostfxrPath is the single export nethost provides.
const SymGetHostfxrPath = "get_hostfxr_path"

const bufferTooSmall uint32 = 0x80008098

// get_hostfxr_parameters
type params struct {
	size         uintptr
	assemblyPath *native.Char
	dotnetRoot   *native.Char
}

// Library is a bound nethost library.
type Library struct {
	symbols        dl.Symbols
	owned          *dl.Library
	getHostfxrPath func(buffer *native.Char, bufferSize *uintptr, parameters *params) int32
}

// Open loads and binds the nethost library at path.
func Open(path string) (*Library, error) {
	lib, err := dl.Open(path)
	if err != nil {
		return nil, err
	}
	nh, err := Bind(lib)
	if err != nil {
		_ = lib.Close()
		return nil, err
	}
	nh.owned = lib
	return nh, nil
}

// Bind resolves get_hostfxr_path from an already loaded library.
func Bind(symbols dl.Symbols) (*Library, error) {
	if symbols == nil {
		return nil, errors.NotInitialized(errors.PhaseBind, "nethost library")
	}
	addr, err := symbols.Lookup(SymGetHostfxrPath)
	if err != nil {
		var e *errors.Error
		if !stderrors.As(err, &e) || e.Kind != errors.KindSymbolMissing {
			err = errors.SymbolMissing(symbols.Path(), SymGetHostfxrPath, err)
		}
		return nil, err
	}
	l := &Library{symbols: symbols}
	if err := native.Register(&l.getHostfxrPath, SymGetHostfxrPath, addr); err != nil {
		return nil, err
	}
	return l, nil
}

// Close unloads a library opened with Open. Nothing obtained from nethost
// points into it, so it can always be unloaded.
func (l *Library) Close() error {
	if l == nil || l.owned == nil {
		return nil
	}
	return l.owned.Close()
}

type options struct {
	assemblyPath string
	dotnetRoot   string
}

// Option adjusts get_hostfxr_parameters.
type Option func(*options)

// WithAssemblyPath makes nethost look for hostfxr next to an app first,
// as for a self-contained app.
func WithAssemblyPath(path string) Option {
	return func(o *options) { o.assemblyPath = path }
}

// WithDotnetRoot makes nethost use the install at root instead of the
// global one.
func WithDotnetRoot(root string) Option {
	return func(o *options) { o.dotnetRoot = root }
}

// HostfxrPath asks nethost for the path of the hostfxr library.
func (l *Library) HostfxrPath(opts ...Option) (string, error) {
	if l == nil || l.getHostfxrPath == nil {
		return "", errors.NotInitialized(errors.PhaseLocate, "nethost library")
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	var p *params
	if o.assemblyPath != "" || o.dotnetRoot != "" {
		p = &params{size: unsafe.Sizeof(params{})}
		var err error
		if o.assemblyPath != "" {
			if p.assemblyPath, err = native.StringPtr(o.assemblyPath); err != nil {
				return "", errors.InvalidInput(errors.PhaseLocate, "assembly path: "+err.Error())
			}
		}
		if o.dotnetRoot != "" {
			if p.dotnetRoot, err = native.StringPtr(o.dotnetRoot); err != nil {
				return "", errors.InvalidInput(errors.PhaseLocate, "dotnet root: "+err.Error())
			}
		}
	}

	// First call sizes the buffer, the second fills it. The size is in
	// char_t units and includes the terminator.
	var size uintptr
	var buf []native.Char
	for attempt := 0; attempt < 3; attempt++ {
		rc := uint32(l.getHostfxrPath(native.First(buf), &size, p))
		runtime.KeepAlive(p)
		switch {
		case rc == 0:
			path := native.GoString(native.First(buf))
			Logger().Debug("hostfxr located", zap.String("path", path))
			return path, nil
		case rc == bufferTooSmall && size > uintptr(len(buf)):
			buf = make([]native.Char, size)
		default:
			return "", errors.HostNotFound(rc, SymGetHostfxrPath+" failed")
		}
	}
	return "", errors.HostNotFound(bufferTooSmall, SymGetHostfxrPath+" kept asking for a larger buffer")
}

// HostfxrLibraryName is the file name of hostfxr on this platform.
func HostfxrLibraryName() string {
	switch runtime.GOOS {
	case "windows":
		return "hostfxr.dll"
	case "darwin":
		return "libhostfxr.dylib"
	default:
		return "libhostfxr.so"
	}
}

// NethostLibraryName is the file name of nethost on this platform.
func NethostLibraryName() string {
	switch runtime.GOOS {
	case "windows":
		return "nethost.dll"
	case "darwin":
		return "libnethost.dylib"
	default:
		return "libnethost.so"
	}
}

// DefaultDotnetRoot returns DOTNET_ROOT when set, otherwise the platform's
// default install location if it exists, otherwise "".
func DefaultDotnetRoot() string {
	if root := os.Getenv("DOTNET_ROOT"); root != "" {
		return root
	}
	var candidates []string
	switch runtime.GOOS {
	case "windows":
		candidates = []string{filepath.Join(os.Getenv("ProgramFiles"), "dotnet")}
	case "darwin":
		candidates = []string{"/usr/local/share/dotnet"}
	default:
		candidates = []string{"/usr/share/dotnet", "/usr/lib/dotnet", "/usr/local/share/dotnet"}
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.IsDir() {
			return c
		}
	}
	return ""
}

// FindHostfxr returns the hostfxr of the highest version installed under
// root/host/fxr. Directories that are not semantic versions are ignored.
func FindHostfxr(root string) (string, error) {
	if root == "" {
		return "", errors.HostNotFound(0, "no .NET install root given")
	}
	fxrDir := filepath.Join(root, "host", "fxr")
	entries, err := os.ReadDir(fxrDir)
	if err != nil {
		return "", errors.New(errors.PhaseLocate, errors.KindHostNotFound).
			Path(fxrDir).
			Cause(err).
			Detail("no hostfxr versions installed").
			Build()
	}

	var best *semver.Version
	var bestPath string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		v, err := semver.NewVersion(e.Name())
		if err != nil {
			continue
		}
		candidate := filepath.Join(fxrDir, e.Name(), HostfxrLibraryName())
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		if best == nil || best.LessThan(*v) {
			best, bestPath = v, candidate
		}
	}
	if best == nil {
		return "", errors.New(errors.PhaseLocate, errors.KindHostNotFound).
			Path(fxrDir).
			Detail("no hostfxr versions installed").
			Build()
	}
	Logger().Debug("hostfxr found", zap.String("path", bestPath), zap.Stringer("version", best))
	return bestPath, nil
}
