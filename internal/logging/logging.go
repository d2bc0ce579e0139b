// Package logging configures the process-wide logger: always stdout,
// optionally duplicated to an append-mode log file.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"
)

// Init points the standard logger at stdout plus the given file. An empty
// path leaves the stdout-only default in place; file errors are logged
// and otherwise ignored so a bad path never prevents startup.
func Init(path string) {
	if path == "" {
		return
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Printf("WARNING: cannot create log directory: %v", err)
		return
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Printf("WARNING: cannot open log file %s: %v", path, err)
		return
	}

	log.SetOutput(io.MultiWriter(os.Stdout, f))
	log.Printf("logging to file: %s", path)
}
