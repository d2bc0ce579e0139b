package term

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
)

const (
	defaultCols = 80
	defaultRows = 24

	// readChunkSize bounds a single ReadAvailable call.
	readChunkSize = 4096

	// readPollInterval is how long a ReadAvailable call waits for data
	// before reporting an empty result.
	readPollInterval = 50 * time.Millisecond
)

// Sentinel errors for PTY failures. Callers match with errors.Is.
var (
	ErrSpawn = errors.New("process spawn failed")
	ErrRead  = errors.New("pty read failed")
	ErrWrite = errors.New("pty write failed")
)

// Handle owns the master side of a PTY and the lifetime of the child
// process running on its slave side. A Handle is never shared: callers
// borrow it from the session registry for the duration of one call.
type Handle struct {
	mu     sync.Mutex
	ptmx   *os.File
	cmd    *exec.Cmd
	closed bool
}

// Spawn starts command inside dir on a freshly allocated PTY of the
// default terminal size. The command is split on whitespace; the first
// field is the executable, the rest are its arguments.
func Spawn(command, dir string) (*Handle, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty command", ErrSpawn)
	}
	path, err := exec.LookPath(fields[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %q not found in PATH", ErrSpawn, fields[0])
	}

	cmd := exec.Command(path, fields[1:]...)
	cmd.Dir = dir

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: defaultCols, Rows: defaultRows})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
	}

	return &Handle{ptmx: ptmx, cmd: cmd}, nil
}

// ReadAvailable performs one bounded read from the PTY master. When no data
// arrives within the poll interval it returns an empty result and no error.
// io.EOF is returned once the child has exited and the slave side is gone;
// anything else is a genuine I/O failure.
func (h *Handle) ReadAvailable() ([]byte, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, io.EOF
	}
	ptmx := h.ptmx
	h.mu.Unlock()

	if err := ptmx.SetReadDeadline(time.Now().Add(readPollInterval)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRead, err)
	}

	buf := make([]byte, readChunkSize)
	n, err := ptmx.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	switch {
	case err == nil:
		return nil, nil
	case errors.Is(err, os.ErrDeadlineExceeded):
		// Would-block is a normal outcome, not an error.
		return nil, nil
	case errors.Is(err, io.EOF), errors.Is(err, syscall.EIO), errors.Is(err, os.ErrClosed):
		// Linux reports EIO on the master once the child side is closed.
		return nil, io.EOF
	default:
		return nil, fmt.Errorf("%w: %v", ErrRead, err)
	}
}

// WriteInput writes data to the PTY master. The PTY layer flushes on write.
func (h *Handle) WriteInput(data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return fmt.Errorf("%w: pty closed", ErrWrite)
	}
	if _, err := h.ptmx.Write(data); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return nil
}

// Resize changes the PTY window size.
func (h *Handle) Resize(cols, rows uint16) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return fmt.Errorf("%w: pty closed", ErrWrite)
	}
	return pty.Setsize(h.ptmx, &pty.Winsize{Cols: cols, Rows: rows})
}

// Terminate releases the PTY and kills the child. It is idempotent and
// never blocks on an unresponsive child: the reap happens in the background.
func (h *Handle) Terminate() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	h.ptmx.Close()
	if h.cmd.Process != nil {
		h.cmd.Process.Kill()
	}
	go h.cmd.Wait()
}
