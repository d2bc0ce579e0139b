package session

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

// prefixPolicy allows directories under any of its prefixes; "*" allows all.
type prefixPolicy []string

func (p prefixPolicy) DirectoryAllowed(path string) bool {
	for _, prefix := range p {
		if prefix == "*" {
			return true
		}
		if path == prefix || len(path) > len(prefix) && path[:len(prefix)+1] == prefix+"/" {
			return true
		}
	}
	return false
}

func newTestRegistry(maxSessions int) (*Registry, *MetadataStore) {
	mirror := NewMetadataStore()
	reg := NewRegistry(Limits{MaxSessions: maxSessions, DefaultCommand: "cat"}, prefixPolicy{"*"}, mirror)
	return reg, mirror
}

func TestCreateAndList(t *testing.T) {
	reg, mirror := newTestRegistry(10)
	defer reg.Shutdown()

	info, err := reg.Create(Config{Name: "build", Directory: os.TempDir()})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if info.ID == "" {
		t.Error("expected non-empty session id")
	}
	if info.Name != "build" {
		t.Errorf("expected name 'build', got %q", info.Name)
	}
	if _, err := time.Parse(time.RFC3339, info.CreatedAt); err != nil {
		t.Errorf("created_at is not RFC3339: %q", info.CreatedAt)
	}

	list := reg.List()
	if len(list) != 1 {
		t.Fatalf("expected 1 session, got %d", len(list))
	}
	if list[0].ID != info.ID {
		t.Errorf("expected listed id %s, got %s", info.ID, list[0].ID)
	}

	if !mirror.Exists(info.ID) {
		t.Error("expected mirror to know the session before Create returned")
	}
}

func TestCreateIDsAreUnique(t *testing.T) {
	reg, _ := newTestRegistry(3)
	defer reg.Shutdown()

	seen := make(map[string]bool)
	for i := 0; i < 3; i++ {
		info, err := reg.Create(Config{Name: fmt.Sprintf("s%d", i), Directory: os.TempDir()})
		if err != nil {
			t.Fatalf("Create %d failed: %v", i, err)
		}
		if seen[info.ID] {
			t.Fatalf("duplicate session id: %s", info.ID)
		}
		seen[info.ID] = true
	}
}

func TestSessionIDGeneratorNoCollisions(t *testing.T) {
	const draws = 10000
	seen := make(map[string]struct{}, draws)
	for i := 0; i < draws; i++ {
		id := uuid.New().String()
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id after %d draws: %s", i, id)
		}
		seen[id] = struct{}{}
	}
}

func TestConcurrentCreateCloseMirrorStaysInSync(t *testing.T) {
	reg, mirror := newTestRegistry(20)

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			info, err := reg.Create(Config{Name: fmt.Sprintf("w%d", n), Directory: os.TempDir()})
			if err != nil {
				t.Errorf("Create failed: %v", err)
				return
			}
			if err := reg.Close(info.ID); err != nil {
				t.Errorf("Close failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if reg.Count() != 0 {
		t.Errorf("expected no sessions, got %d", reg.Count())
	}
	if mirror.Len() != 0 {
		t.Errorf("mirror out of sync after concurrent create/close: %d entries left", mirror.Len())
	}
}

func TestCreateValidationErrors(t *testing.T) {
	reg, _ := newTestRegistry(10)
	defer reg.Shutdown()

	longName := ""
	for i := 0; i < 101; i++ {
		longName += "x"
	}

	cases := []struct {
		name string
		cfg  Config
	}{
		{"empty name", Config{Name: "  ", Directory: os.TempDir()}},
		{"long name", Config{Name: longName, Directory: os.TempDir()}},
		{"empty directory", Config{Name: "ok", Directory: " "}},
		{"missing directory", Config{Name: "ok", Directory: "/nonexistent/path/xyz"}},
	}

	for _, tc := range cases {
		_, err := reg.Create(tc.cfg)
		if !errors.Is(err, ErrValidation) {
			t.Errorf("%s: expected ErrValidation, got %v", tc.name, err)
		}
	}

	if reg.Count() != 0 {
		t.Errorf("expected no sessions after failed creates, got %d", reg.Count())
	}
}

func TestCreateDirectoryIsFile(t *testing.T) {
	f, err := os.CreateTemp("", "registry-test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(f.Name())
	f.Close()

	reg, _ := newTestRegistry(10)
	defer reg.Shutdown()

	if _, err := reg.Create(Config{Name: "ok", Directory: f.Name()}); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for file path, got %v", err)
	}
}

func TestCreatePolicyDenied(t *testing.T) {
	mirror := NewMetadataStore()
	reg := NewRegistry(Limits{MaxSessions: 10, DefaultCommand: "cat"}, prefixPolicy{"/definitely-not-tmp"}, mirror)
	defer reg.Shutdown()

	_, err := reg.Create(Config{Name: "ok", Directory: os.TempDir()})
	if !errors.Is(err, ErrPolicy) {
		t.Fatalf("expected ErrPolicy, got %v", err)
	}
	if reg.Count() != 0 || mirror.Len() != 0 {
		t.Error("policy failure must not leave a session behind")
	}
}

func TestCreateSpawnFailure(t *testing.T) {
	mirror := NewMetadataStore()
	reg := NewRegistry(Limits{MaxSessions: 10, DefaultCommand: "no-such-binary-xyz"}, prefixPolicy{"*"}, mirror)

	_, err := reg.Create(Config{Name: "ok", Directory: os.TempDir()})
	if err == nil {
		t.Fatal("expected spawn failure")
	}
	if reg.Count() != 0 || mirror.Len() != 0 {
		t.Error("failed spawn must not leave a visible entry")
	}

	// The reserved slot must be released: a later valid create succeeds.
	reg.limits.DefaultCommand = "cat"
	if _, err := reg.Create(Config{Name: "ok", Directory: os.TempDir()}); err != nil {
		t.Errorf("create after failed spawn: %v", err)
	}
	reg.Shutdown()
}

func TestCreateConcurrentRespectsCapacity(t *testing.T) {
	const workers = 8
	const capacity = 3

	reg, _ := newTestRegistry(capacity)
	defer reg.Shutdown()

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := reg.Create(Config{Name: fmt.Sprintf("w%d", n), Directory: os.TempDir()})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	succeeded, capacityErrs := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrCapacity):
			capacityErrs++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}

	if succeeded != capacity {
		t.Errorf("expected exactly %d successes, got %d", capacity, succeeded)
	}
	if capacityErrs != workers-capacity {
		t.Errorf("expected %d capacity errors, got %d", workers-capacity, capacityErrs)
	}
	if reg.Count() != capacity {
		t.Errorf("expected %d running sessions, got %d", capacity, reg.Count())
	}
}

func TestCloseTwice(t *testing.T) {
	reg, mirror := newTestRegistry(10)

	info, err := reg.Create(Config{Name: "build", Directory: os.TempDir()})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := reg.Close(info.ID); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if mirror.Exists(info.ID) {
		t.Error("expected mirror entry removed on close")
	}
	if err := reg.Close(info.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second close, got %v", err)
	}
}

func TestCloseUnknown(t *testing.T) {
	reg, _ := newTestRegistry(10)
	if err := reg.Close("nonexistent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAppendAndReadOutput(t *testing.T) {
	reg, _ := newTestRegistry(10)
	defer reg.Shutdown()

	info, err := reg.Create(Config{Name: "build", Directory: os.TempDir()})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	chunks := []string{"one", "two", "three"}
	for _, c := range chunks {
		if err := reg.AppendOutput(info.ID, c); err != nil {
			t.Fatalf("AppendOutput failed: %v", err)
		}
	}

	got, err := reg.Output(info.ID)
	if err != nil {
		t.Fatalf("Output failed: %v", err)
	}
	if len(got) != len(chunks) {
		t.Fatalf("expected %d chunks, got %d", len(chunks), len(got))
	}
	for i, c := range chunks {
		if got[i] != c {
			t.Errorf("chunk %d: expected %q, got %q", i, c, got[i])
		}
	}
}

func TestOutputUnknownSession(t *testing.T) {
	reg, _ := newTestRegistry(10)
	if err := reg.AppendOutput("nope", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := reg.Output("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestWriteInputAfterClose(t *testing.T) {
	reg, _ := newTestRegistry(10)

	info, err := reg.Create(Config{Name: "build", Directory: os.TempDir()})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := reg.WriteInput(info.ID, []byte("hello\n")); err != nil {
		t.Errorf("WriteInput on running session failed: %v", err)
	}

	reg.Close(info.ID)
	if err := reg.WriteInput(info.ID, []byte("x")); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after close, got %v", err)
	}
	if _, err := reg.ReadAvailable(info.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after close, got %v", err)
	}
}

func TestShutdownClosesAll(t *testing.T) {
	reg, mirror := newTestRegistry(10)

	for i := 0; i < 3; i++ {
		if _, err := reg.Create(Config{Name: fmt.Sprintf("s%d", i), Directory: os.TempDir()}); err != nil {
			t.Fatalf("Create %d failed: %v", i, err)
		}
	}

	reg.Shutdown()
	if reg.Count() != 0 {
		t.Errorf("expected no sessions after shutdown, got %d", reg.Count())
	}
	if mirror.Len() != 0 {
		t.Errorf("expected empty mirror after shutdown, got %d", mirror.Len())
	}
}
