package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// ErrLockContention means another live host already owns the queue.
var ErrLockContention = errors.New("queue is locked by another running host")

// lockRecord is the JSON body of the lock file.
type lockRecord struct {
	OwnerPID   int       `json:"ownerPid"`
	AcquiredAt time.Time `json:"acquiredAt"`
}

// LockHandle represents held ownership of a queue directory. Release
// must run on every shutdown path; callers defer it immediately after
// acquisition.
type LockHandle struct {
	path string
	log  *slog.Logger
}

// AcquireLock takes exclusive ownership of the queue at root via a
// create-exclusive lock file. A lock record whose owner process is no
// longer running is stale and gets reclaimed (logged as a recovery
// event); a record owned by a live process yields ErrLockContention.
func AcquireLock(root string, logger *slog.Logger) (*LockHandle, error) {
	path := filepath.Join(root, LockFileName)

	for attempt := 0; attempt < 2; attempt++ {
		err := createLockFile(path)
		if err == nil {
			logger.Info("instance lock acquired", "pid", os.Getpid())
			return &LockHandle{path: path, log: logger}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("creating lock file: %w", err)
		}

		rec, readErr := readLockRecord(path)
		if readErr == nil && pidAlive(rec.OwnerPID) {
			return nil, fmt.Errorf("%w (pid %d since %s)",
				ErrLockContention, rec.OwnerPID, rec.AcquiredAt.Format(time.RFC3339))
		}

		// Stale or unreadable record: reclaim and retry once.
		if readErr != nil {
			logger.Warn("reclaiming unreadable lock record", "error", readErr)
		} else {
			logger.Warn("reclaiming stale lock", "ownerPid", rec.OwnerPID,
				"acquiredAt", rec.AcquiredAt)
		}
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			return nil, fmt.Errorf("removing stale lock: %w", rmErr)
		}
	}

	return nil, ErrLockContention
}

// Release gives up queue ownership by removing the lock file.
func (h *LockHandle) Release() error {
	if err := os.Remove(h.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing lock file: %w", err)
	}
	h.log.Info("instance lock released", "pid", os.Getpid())
	return nil
}

func createLockFile(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}

	rec := lockRecord{OwnerPID: os.Getpid(), AcquiredAt: time.Now().UTC()}
	if err := json.NewEncoder(f).Encode(rec); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("writing lock record: %w", err)
	}
	return f.Close()
}

func readLockRecord(path string) (lockRecord, error) {
	var rec lockRecord
	data, err := os.ReadFile(path)
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("parsing lock record: %w", err)
	}
	if rec.OwnerPID <= 0 {
		return rec, errors.New("lock record has no owner pid")
	}
	return rec, nil
}

// pidAlive reports whether a process with the given pid exists. An
// EPERM probe result still means the process is there.
func pidAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return errors.Is(err, os.ErrPermission)
}
