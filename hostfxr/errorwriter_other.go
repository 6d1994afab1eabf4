//go:build !(darwin || freebsd || (linux && (amd64 || arm64)) || windows)

package hostfxr

import "github.com/wippyai/clr-host/errors"

func errorWriterCallback() (uintptr, error) {
	return 0, errors.Signature(SymSetErrorWriter, "native callbacks are not supported on this platform")
}
