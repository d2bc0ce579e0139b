package session

import (
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"termhub/internal/term"
)

const maxNameLength = 100

// State represents the lifecycle state of a session.
type State string

const (
	// StatePending exists only during the validation/spawn window; a
	// pending session is never visible through the registry.
	StatePending State = "pending"
	StateRunning State = "running"
	StateClosing State = "closing"
	StateRemoved State = "removed"
)

// Session is the full server-side state of one terminal session. It is
// exclusively owned by the Registry; other components see only Metadata
// or Info projections.
type Session struct {
	ID        string
	Name      string
	Directory string
	CreatedAt time.Time

	state      State
	handle     *term.Handle
	scrollback *Scrollback
}

// Metadata is the reduced, cheaply copied projection of a Session shared
// with the streaming plane.
type Metadata struct {
	ID        string
	Name      string
	Directory string
	CreatedAt time.Time
}

func (s *Session) metadata() Metadata {
	return Metadata{
		ID:        s.ID,
		Name:      s.Name,
		Directory: s.Directory,
		CreatedAt: s.CreatedAt,
	}
}

// Info is the wire representation of a session sent to clients.
type Info struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Directory string `json:"directory"`
	CreatedAt string `json:"created_at"`
}

func (s *Session) info() Info {
	return Info{
		ID:        s.ID,
		Name:      s.Name,
		Directory: s.Directory,
		CreatedAt: s.CreatedAt.Format(time.RFC3339),
	}
}

// Config is the input for creating a session. Command is optional; the
// registry falls back to its configured default.
type Config struct {
	Name      string `json:"name"`
	Directory string `json:"directory"`
	Command   string `json:"command,omitempty"`
}

// Validate checks the config shape: non-empty trimmed name within the
// length limit, and a directory that exists and is a directory.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: session name cannot be empty", ErrValidation)
	}
	if utf8.RuneCountInString(c.Name) > maxNameLength {
		return fmt.Errorf("%w: session name too long (max %d characters)", ErrValidation, maxNameLength)
	}
	if strings.TrimSpace(c.Directory) == "" {
		return fmt.Errorf("%w: directory cannot be empty", ErrValidation)
	}
	info, err := os.Stat(c.Directory)
	if err != nil {
		return fmt.Errorf("%w: directory does not exist: %s", ErrValidation, c.Directory)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: path is not a directory: %s", ErrValidation, c.Directory)
	}
	return nil
}
