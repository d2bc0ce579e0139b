package config

import (
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// Settings holds all server configuration, loaded from TERMHUB_* environment
// variables with sensible defaults for local development.
type Settings struct {
	Host        string `envconfig:"HOST" default:"127.0.0.1"`
	Port        int    `envconfig:"PORT" default:"8420"`
	CommandPath string `envconfig:"COMMAND_PATH" default:"bash"`
	MaxSessions int    `envconfig:"MAX_SESSIONS" default:"10"`

	// AllowedDirs is the list of directory prefixes under which sessions may
	// be created. The single entry "*" allows any directory.
	AllowedDirs []string `envconfig:"ALLOWED_DIRS" default:"/tmp"`

	// WorkspaceRoot is the directory whose immediate children are offered
	// to clients as session working directories.
	WorkspaceRoot string `envconfig:"WORKSPACE_ROOT" default:"/tmp/workspace"`

	// ControlQueueDepth bounds the control-plane request queue. Submissions
	// beyond this depth fail fast instead of blocking.
	ControlQueueDepth int `envconfig:"CONTROL_QUEUE_DEPTH" default:"64"`

	StaticDir string `envconfig:"STATIC_DIR" default:""`
	LogPath   string `envconfig:"LOG_PATH" default:""`
}

// Load reads settings from the environment.
func Load() (Settings, error) {
	var s Settings
	if err := envconfig.Process("TERMHUB", &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// DirectoryAllowed reports whether path falls under one of the allowed
// directory prefixes. A configured "*" allows everything.
func (s Settings) DirectoryAllowed(path string) bool {
	clean := filepath.Clean(path)
	for _, prefix := range s.AllowedDirs {
		if prefix == "*" {
			return true
		}
		p := filepath.Clean(prefix)
		if clean == p || strings.HasPrefix(clean, p+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
