// SPDX-License-Identifier: MPL-2.0

package platform

import (
	"errors"
	"path/filepath"
	"runtime"
)

// Operating systems with their own per-user configuration layout.
const (
	Windows OS = "windows"
	Darwin  OS = "darwin"
	Linux   OS = "linux"
)

// ErrNoHome is returned when no base for user configuration can be derived.
var ErrNoHome = errors.New("cannot determine user configuration directory")

type (
	// OS is an operating system name as reported by runtime.GOOS.
	OS string

	// Env reads the variables and home directory a configuration lookup
	// depends on. os.Getenv and os.UserHomeDir satisfy it in production.
	Env struct {
		Getenv func(string) string
		Home   func() (string, error)
	}
)

// Current returns the running operating system.
func Current() OS { return OS(runtime.GOOS) }

// ConfigBase returns the per-user configuration base directory on goos:
// %APPDATA% on Windows, ~/Library/Application Support on macOS, and
// $XDG_CONFIG_HOME or ~/.config elsewhere.
func ConfigBase(goos OS, env Env) (string, error) {
	switch goos {
	case Windows:
		if dir := env.Getenv("APPDATA"); dir != "" {
			return dir, nil
		}
		if profile := env.Getenv("USERPROFILE"); profile != "" {
			return filepath.Join(profile, "AppData", "Roaming"), nil
		}
		return "", ErrNoHome
	case Darwin:
		home, err := env.home()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support"), nil
	default:
		if dir := env.Getenv("XDG_CONFIG_HOME"); dir != "" {
			return dir, nil
		}
		home, err := env.home()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config"), nil
	}
}

func (e Env) home() (string, error) {
	if e.Home == nil {
		return "", ErrNoHome
	}
	home, err := e.Home()
	if err != nil {
		return "", errors.Join(ErrNoHome, err)
	}
	if home == "" {
		return "", ErrNoHome
	}
	return home, nil
}
