//go:build windows

package native

import "golang.org/x/sys/windows"

// Char is the hosting ABI's char_t: UTF-16 code units on Windows.
type Char = uint16

// StringPtr returns a NUL-terminated char_t copy of s.
func StringPtr(s string) (*Char, error) {
	return windows.UTF16PtrFromString(s)
}

// GoString copies a NUL-terminated char_t string.
func GoString(p *Char) string {
	if p == nil {
		return ""
	}
	return windows.UTF16PtrToString(p)
}

// CString returns a NUL-terminated UTF-8 copy of s.
func CString(s string) (*byte, error) {
	return windows.BytePtrFromString(s)
}

// GoCString copies a NUL-terminated UTF-8 string.
func GoCString(p *byte) string {
	if p == nil {
		return ""
	}
	return windows.BytePtrToString(p)
}
