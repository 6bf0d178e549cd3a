//go:build darwin || linux || freebsd

package vpio

import (
	"fmt"
	"os"

	"github.com/ebitengine/purego"
)

// DefaultLibraryPath returns the library path from the VPIO_LIB environment
// variable, or the conventional in-tree build location when unset.
func DefaultLibraryPath() string {
	if p := os.Getenv("VPIO_LIB"); p != "" {
		return p
	}
	return "./native/libvpio.dylib"
}

// Bind loads the native engine library at path and resolves its entry points.
// An empty path falls back to [DefaultLibraryPath].
//
// Bind fails only when the library itself cannot be loaded or a required
// symbol is missing; optional symbol groups degrade to cleared capability
// flags. Build the helper with:
//
//	clang -dynamiclib -o native/libvpio.dylib native/vpio_helper.c \
//	    -framework AudioToolbox -framework AudioUnit
func Bind(path string) (*Binding, error) {
	if path == "" {
		path = DefaultLibraryPath()
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("vpio: library not found at %q: %w", path, err)
	}
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("vpio: load %q: %w", path, err)
	}
	return newBinding(path, dlopenResolver(handle))
}

// dlopenResolver adapts dlsym lookups on handle into a [SymbolResolver].
// Symbols present in the library are registered as directly callable Go
// functions via purego.
func dlopenResolver(handle uintptr) SymbolResolver {
	return func(name string, fn any) error {
		addr, err := purego.Dlsym(handle, name)
		if err != nil {
			return err
		}
		purego.RegisterFunc(fn, addr)
		return nil
	}
}
