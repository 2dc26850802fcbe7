// Package config handles configuration file loading and parsing.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
)

// AppName is used for config, data and runtime directory names.
const AppName = "deckd"

// ConfigPath returns the path to the config file.
// Uses XDG_CONFIG_HOME if set, otherwise the OS user config directory.
func ConfigPath() (string, error) {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return "", err
		}
		configHome = dir
	}
	return filepath.Join(configHome, AppName, "deckd.toml"), nil
}

// DataPath returns the path to the data directory.
// Uses XDG_DATA_HOME if set, otherwise ~/.local/share.
func DataPath() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, AppName)
}

// HistoryPath returns the default path of the resolution history database.
func HistoryPath() string {
	return filepath.Join(DataPath(), "history.db")
}

// SocketPath returns the default daemon socket path.
// Uses XDG_RUNTIME_DIR if set, otherwise the temp directory with the uid.
func SocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, AppName+".sock")
	}
	return filepath.Join(os.TempDir(), AppName+"-"+strconv.Itoa(os.Getuid())+".sock")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	path := DataPath()
	if path == "" {
		return errors.New("unable to determine data directory")
	}
	return os.MkdirAll(path, 0755)
}
