//go:build darwin || freebsd || (linux && (amd64 || arm64)) || windows

package hostfxr

import (
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"

	"github.com/wippyai/clr-host/native"
)

var (
	writerCallback     uintptr
	writerCallbackOnce sync.Once
)

// errorWriterCallback returns the single native trampoline for
// hostfxr_error_writer_fn. Callbacks are a finite resource, so it is
// created once per process.
func errorWriterCallback() (uintptr, error) {
	writerCallbackOnce.Do(func() {
		writerCallback = purego.NewCallback(func(message uintptr) uintptr {
			writeError(native.GoString((*native.Char)(unsafe.Pointer(message))))
			return 0
		})
	})
	return writerCallback, nil
}
