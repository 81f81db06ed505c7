// Package hostlog provides the file-backed logger for bridge
// processes. The native-messaging host owns stdout as its wire
// protocol, so every diagnostic line must go to host.log under the
// queue root instead.
package hostlog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Open appends to host.log under the queue root and returns a slog
// logger writing text records to it. The caller closes the returned
// Closer on shutdown.
func Open(queueRoot string) (*slog.Logger, io.Closer, error) {
	path := filepath.Join(queueRoot, "host.log")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening host log %s: %w", path, err)
	}

	logger := slog.New(slog.NewTextHandler(f, nil))
	return logger, f, nil
}

// Discard returns a logger that drops everything; used by client-side
// callers and tests that have no log file.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
