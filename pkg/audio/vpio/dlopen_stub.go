//go:build !darwin && !linux && !freebsd

package vpio

import (
	"errors"
	"runtime"
)

// Bind is unavailable on platforms without dlopen support.
func Bind(path string) (*Binding, error) {
	return nil, errors.New("vpio: native engine binding not supported on " + runtime.GOOS)
}

// DefaultLibraryPath returns an empty path on unsupported platforms.
func DefaultLibraryPath() string { return "" }
