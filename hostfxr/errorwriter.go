package hostfxr

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/clr-host/errors"
)

var errorWriter atomic.Pointer[func(string)]

func writeError(msg string) {
	if w := errorWriter.Load(); w != nil {
		(*w)(msg)
		return
	}
	Logger().Warn("hostfxr", zap.String("message", msg))
}

// SetErrorWriter routes hostfxr diagnostics to w; nil routes them to the
// package logger. hostfxr keeps the writer per OS thread, so callers lock
// the goroutine to its thread around the calls they want covered. The
// returned func reinstalls the previous writer.
func (l *Library) SetErrorWriter(w func(string)) (restore func(), err error) {
	if !l.HasErrorWriter() {
		return func() {}, errors.SymbolMissing(l.Path(), SymSetErrorWriter, nil)
	}
	cb, err := errorWriterCallback()
	if err != nil {
		return func() {}, err
	}

	var next *func(string)
	if w != nil {
		next = &w
	}
	prevGo := errorWriter.Swap(next)

	callMu.Lock()
	prevNative := l.setErrorWriter(cb)
	callMu.Unlock()

	return func() {
		callMu.Lock()
		l.setErrorWriter(prevNative)
		callMu.Unlock()
		errorWriter.Store(prevGo)
	}, nil
}
