//go:build darwin || freebsd || linux

package native

import "golang.org/x/sys/unix"

// Char is the hosting ABI's char_t: UTF-8 bytes on Unix.
type Char = byte

// StringPtr returns a NUL-terminated char_t copy of s.
func StringPtr(s string) (*Char, error) {
	return unix.BytePtrFromString(s)
}

// GoString copies a NUL-terminated char_t string.
func GoString(p *Char) string {
	if p == nil {
		return ""
	}
	return unix.BytePtrToString(p)
}

// CString returns a NUL-terminated UTF-8 copy of s.
func CString(s string) (*byte, error) {
	return unix.BytePtrFromString(s)
}

// GoCString copies a NUL-terminated UTF-8 string.
func GoCString(p *byte) string {
	if p == nil {
		return ""
	}
	return unix.BytePtrToString(p)
}
