// SPDX-License-Identifier: MPL-2.0

package platform

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyName is returned for an empty file name.
	ErrEmptyName = errors.New("name is empty")
	// ErrNotBaseName is returned for a name that is a path rather than a
	// single path element.
	ErrNotBaseName = errors.New("name must not contain a path separator")
	// ErrReservedName is returned for a name Windows cannot create.
	ErrReservedName = errors.New("name is reserved on Windows")
)

// windowsReservedNames are device names Windows reserves regardless of
// extension.
var windowsReservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true,
	"COM5": true, "COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true,
	"LPT5": true, "LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// IsWindowsReservedName reports whether name, ignoring its extension, is a
// Windows device name.
func IsWindowsReservedName(name string) bool {
	upper := strings.ToUpper(name)
	if idx := strings.LastIndex(upper, "."); idx != -1 {
		upper = upper[:idx]
	}
	return windowsReservedNames[upper]
}

// ValidateBaseName checks that name can be used as a manifest, descriptor or
// modules directory name on every supported platform.
func ValidateBaseName(name string) error {
	switch {
	case name == "":
		return ErrEmptyName
	case name == "." || name == ".." || strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%w: %q", ErrNotBaseName, name)
	case IsWindowsReservedName(name):
		return fmt.Errorf("%w: %q", ErrReservedName, name)
	}
	return nil
}
