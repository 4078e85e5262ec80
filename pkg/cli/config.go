package cli

import (
	"os"
	"path/filepath"
)

// Config holds the resolved CLI settings. Flags, CONDUCTOR_* environment
// variables and the optional settings file are merged into it by viper
// before any command runs.
type Config struct {
	ConfigFile string
	Workspace  string
	StateDir   string
	LogLevel   string
	LogFile    string
	Version    string
}

// NewConfig creates a new CLI configuration with defaults
func NewConfig() *Config {
	return &Config{
		Workspace: ".",
		LogLevel:  "info",
	}
}

// DefaultStateDir is where builds are recorded when --state-dir is not set
func DefaultStateDir(workspace string) string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".conductor", "builds")
	}
	return filepath.Join(workspace, ".conductor")
}
