package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/faizalindrak/mass-email-sender-desktop/internal/model"
	"github.com/faizalindrak/mass-email-sender-desktop/internal/queue"
)

// ErrAwaitTimeout means no resolution appeared within the wait budget.
// The job itself keeps running; its eventual resolution stays readable.
var ErrAwaitTimeout = errors.New("timed out waiting for job resolution")

// Client is the desktop application's side of the bridge: it submits
// jobs into the mailbox and waits for their resolutions. It never
// talks to the extension directly.
type Client struct {
	store *queue.Store
	log   *slog.Logger

	// pollFallback is the resolution-check cadence when filesystem
	// notifications are unavailable or swallowed.
	pollFallback time.Duration
}

// NewClient creates a client over the shared job store.
func NewClient(store *queue.Store, logger *slog.Logger) *Client {
	return &Client{
		store:        store,
		log:          logger,
		pollFallback: 200 * time.Millisecond,
	}
}

// Submit enqueues a new job for the payload and returns its id.
func (c *Client) Submit(payload model.EmailPayload) (string, error) {
	job := model.NewJob(payload)
	if err := c.store.Enqueue(job); err != nil {
		return "", err
	}
	return job.ID, nil
}

// AwaitResolution blocks until the resolution for id exists, the
// timeout elapses, or ctx is cancelled. It always returns a definitive
// answer: a resolution, ErrAwaitTimeout, or the context's error.
// Callers wanting a non-blocking wait run it in a goroutine;
// cancelling ctx releases it immediately and abandons only the
// observation, never the job.
func (c *Client) AwaitResolution(ctx context.Context, id string, timeout time.Duration) (*model.Resolution, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// Resolutions become visible only through a completed rename, so a
	// positive check can never observe a partial file.
	if res, err := c.store.Resolution(id); err != nil {
		return nil, err
	} else if res != nil {
		return res, nil
	}

	wake := c.watchResolved(ctx)

	ticker := time.NewTicker(c.pollFallback)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: job %s", ErrAwaitTimeout, id)
			}
			return nil, ctx.Err()
		case <-ticker.C:
		case <-wake:
		}

		res, err := c.store.Resolution(id)
		if err != nil {
			return nil, err
		}
		if res != nil {
			return res, nil
		}
	}
}

// watchResolved returns a channel firing on changes to the resolved
// area; the ticker remains the fallback when watching fails.
func (c *Client) watchResolved(ctx context.Context) <-chan struct{} {
	wake := make(chan struct{}, 1)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		c.log.Warn("fsnotify unavailable, polling for resolutions", "error", err)
		return wake
	}
	if err := watcher.Add(filepath.Join(c.store.Root(), queue.DirResolved)); err != nil {
		c.log.Warn("cannot watch resolved dir, polling for resolutions", "error", err)
		watcher.Close()
		return wake
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-watcher.Events:
				if !ok {
					return
				}
				select {
				case wake <- struct{}{}:
				default:
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return wake
}
