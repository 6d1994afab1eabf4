package runtime

import (
	"go.uber.org/zap"

	"github.com/wippyai/clr-host/hostfxr"
	"github.com/wippyai/clr-host/nethost"
)

var openLibrary = hostfxr.Open

func openHostfxr(cfg Config) (*hostfxr.Library, error) {
	if cfg.Hostfxr != nil {
		return hostfxr.Bind(cfg.Hostfxr)
	}
	path := cfg.HostfxrPath
	if path == "" {
		var err error
		if path, err = LocateHostfxr(cfg); err != nil {
			return nil, err
		}
	}
	return openLibrary(path)
}

// LocateHostfxr finds the hostfxr library cfg refers to: the explicit
// path, then nethost, then the newest version under the install root.
func LocateHostfxr(cfg Config) (string, error) {
	if cfg.HostfxrPath != "" {
		return cfg.HostfxrPath, nil
	}

	if cfg.Nethost != nil || cfg.NethostPath != "" {
		nh, err := openNethost(cfg)
		if err != nil {
			return "", err
		}
		defer nh.Close()

		var opts []nethost.Option
		if cfg.DotnetRoot != "" {
			opts = append(opts, nethost.WithDotnetRoot(cfg.DotnetRoot))
		}
		if len(cfg.CommandLine) > 0 {
			opts = append(opts, nethost.WithAssemblyPath(cfg.CommandLine[0]))
		}
		return nh.HostfxrPath(opts...)
	}

	root := cfg.DotnetRoot
	if root == "" {
		root = nethost.DefaultDotnetRoot()
	}
	Logger().Debug("scanning install root for hostfxr", zap.String("root", root))
	return nethost.FindHostfxr(root)
}

func openNethost(cfg Config) (*nethost.Library, error) {
	if cfg.Nethost != nil {
		return nethost.Bind(cfg.Nethost)
	}
	return nethost.Open(cfg.NethostPath)
}
