// Copyright (c) 2025 Rowbase
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package xdg resolves the rowbase config directory following the XDG Base
// Directory convention, falling back to ~/.config when XDG_CONFIG_HOME is
// unset.
package xdg

import (
	"os"
	"path/filepath"
)

// AppName is the directory name used under the XDG base.
const AppName = "rowbase"

// ConfigDir returns the rowbase config directory, creating it with private
// permissions (0700) if missing.
func ConfigDir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	dir := filepath.Join(base, AppName)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}
