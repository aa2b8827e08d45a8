// Copyright 2024 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"path/filepath"
)

var (
	configDir string // Directory for configuration files
	stateDir  string // Directory for scheduler state and probe staging
)

func init() {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		panic(fmt.Sprintf("failed to get home directory: %v", err))
	}

	if os.Geteuid() == 0 {
		configDir = "/etc/drive-revenant"
	} else {
		configDir = filepath.Join(homeDir, ".drive-revenant")
	}
	stateDir = filepath.Join(configDir, "state")

	if err := EnsureDirectories(); err != nil {
		panic(fmt.Sprintf("failed to ensure configuration directories: %v", err))
	}
}

// GetConfigDir returns the appropriate configuration directory.
// If running as root, it returns the system config directory,
// otherwise the user config directory.
func GetConfigDir() string {
	return configDir
}

// GetStateDir returns the directory used for scheduler state persistence.
func GetStateDir() string {
	return stateDir
}

// EnsureDirectories creates necessary directories if they do not exist.
func EnsureDirectories() error {
	dirs := []string{configDir, stateDir}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
