package queue

import (
	"errors"
	"fmt"
	"io/fs"
	"time"
)

// Filesystem operations on the queue can transiently fail while an
// antivirus scanner or indexer holds the file open. Each operation is
// retried with delays that double per attempt up to a cap, then the
// budget is surfaced as ErrFileLockTimeout.
const (
	retryAttempts  = 5
	retryBaseDelay = 200 * time.Millisecond
	retryMaxDelay  = time.Second
)

// ErrFileLockTimeout means an operation kept failing after the full
// retry budget (~3s) was spent.
var ErrFileLockTimeout = errors.New("file lock retry budget exhausted")

func retryDelay(attempt int) time.Duration {
	delay := retryBaseDelay * (1 << attempt)
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}

// withRetry runs op, retrying transient failures with progressive
// backoff. A not-exist error returns immediately: a vanished source
// file means another claimant already moved it, which callers treat
// as benign.
func withRetry(op func() error) error {
	var err error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if errors.Is(err, fs.ErrNotExist) {
			return err
		}
		if attempt < retryAttempts-1 {
			time.Sleep(retryDelay(attempt))
		}
	}
	return fmt.Errorf("%w: %v", ErrFileLockTimeout, err)
}
