package session

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"termhub/internal/term"

	"github.com/google/uuid"
)

// DirectoryPolicy decides which working directories sessions may use.
type DirectoryPolicy interface {
	DirectoryAllowed(path string) bool
}

// Limits bounds and defaults applied by the registry at creation time.
type Limits struct {
	// MaxSessions caps the number of concurrently running sessions.
	MaxSessions int
	// DefaultCommand is spawned when a session config names no command.
	DefaultCommand string
}

// Registry is the single source of truth for which sessions exist. It
// linearizes creation against the capacity check and keeps the metadata
// mirror in sync with every existence change.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	// reserved counts creations that passed the capacity check but have
	// not yet spawned; it keeps concurrent creations under the cap.
	reserved int

	limits Limits
	policy DirectoryPolicy
	mirror *MetadataStore
}

// NewRegistry creates an empty registry writing to the given mirror.
func NewRegistry(limits Limits, policy DirectoryPolicy, mirror *MetadataStore) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		limits:   limits,
		policy:   policy,
		mirror:   mirror,
	}
}

// Create validates the config, applies the directory policy and capacity
// cap, spawns the process, and inserts the session. The capacity check and
// the slot reservation happen under one exclusive section, so concurrent
// creations can never exceed the cap. A failed spawn releases the slot and
// never leaves a visible entry.
func (r *Registry) Create(cfg Config) (Info, error) {
	if err := cfg.Validate(); err != nil {
		return Info{}, err
	}
	if !r.policy.DirectoryAllowed(cfg.Directory) {
		return Info{}, fmt.Errorf("%w: %s", ErrPolicy, cfg.Directory)
	}

	r.mu.Lock()
	if len(r.sessions)+r.reserved >= r.limits.MaxSessions {
		r.mu.Unlock()
		return Info{}, fmt.Errorf("%w (%d)", ErrCapacity, r.limits.MaxSessions)
	}
	r.reserved++
	r.mu.Unlock()

	command := cfg.Command
	if command == "" {
		command = r.limits.DefaultCommand
	}

	handle, err := term.Spawn(command, cfg.Directory)
	if err != nil {
		r.mu.Lock()
		r.reserved--
		r.mu.Unlock()
		return Info{}, err
	}

	sess := &Session{
		ID:         uuid.New().String(),
		Name:       cfg.Name,
		Directory:  cfg.Directory,
		CreatedAt:  time.Now().UTC(),
		state:      StatePending,
		handle:     handle,
		scrollback: NewScrollback(),
	}

	// Insert and mirror publish happen in the same exclusive section, so a
	// concurrent Close can never observe the session in only one of them.
	r.mu.Lock()
	r.reserved--
	sess.state = StateRunning
	r.sessions[sess.ID] = sess
	r.mirror.Upsert(sess.ID, sess.metadata())
	r.mu.Unlock()

	log.Printf("session %s created (name=%q dir=%s command=%s)", sess.ID, sess.Name, sess.Directory, command)
	return sess.info(), nil
}

// List returns a snapshot of all running sessions, sorted by id for
// stable output.
func (r *Registry) List() []Info {
	r.mu.RLock()
	infos := make([]Info, 0, len(r.sessions))
	for _, sess := range r.sessions {
		infos = append(infos, sess.info())
	}
	r.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Close transitions the session to closing, removes it from the registry
// and the mirror, and terminates its process. Once removal begins no
// lookup observes the session as running.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	sess.state = StateClosing
	delete(r.sessions, id)
	r.mirror.Remove(id)
	r.mu.Unlock()

	sess.handle.Terminate()
	sess.state = StateRemoved

	log.Printf("session %s closed", id)
	return nil
}

// AppendOutput appends one chunk to the session's scrollback.
func (r *Registry) AppendOutput(id, chunk string) error {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	sess.scrollback.Append(chunk)
	return nil
}

// Output returns a copy of the session's buffered output in append order.
func (r *Registry) Output(id string) ([]string, error) {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return sess.scrollback.Snapshot(), nil
}

// WriteInput forwards data to the session's PTY. The process handle is
// borrowed only for the duration of this call.
func (r *Registry) WriteInput(id string, data []byte) error {
	handle, err := r.borrowHandle(id)
	if err != nil {
		return err
	}
	return handle.WriteInput(data)
}

// ReadAvailable performs one bounded read from the session's PTY.
func (r *Registry) ReadAvailable(id string) ([]byte, error) {
	handle, err := r.borrowHandle(id)
	if err != nil {
		return nil, err
	}
	return handle.ReadAvailable()
}

// Resize changes the session's PTY window size.
func (r *Registry) Resize(id string, cols, rows uint16) error {
	handle, err := r.borrowHandle(id)
	if err != nil {
		return err
	}
	return handle.Resize(cols, rows)
}

func (r *Registry) borrowHandle(id string) (*term.Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[id]
	if !ok || sess.state != StateRunning {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return sess.handle, nil
}

// Count returns the number of running sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Shutdown closes every session. Used on server exit.
func (r *Registry) Shutdown() {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		r.Close(id)
	}
}
