// Package bridge connects the filesystem job queue to the mail-client
// extension over the native-messaging channel. The orchestrator side
// runs inside the native host process; the client side (Submitter and
// Waiter) runs inside the desktop application.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/faizalindrak/mass-email-sender-desktop/internal/frame"
	"github.com/faizalindrak/mass-email-sender-desktop/internal/model"
	"github.com/faizalindrak/mass-email-sender-desktop/internal/queue"
)

// Config tunes the orchestrator loops.
type Config struct {
	// PollInterval is the cadence of the pending-area scan. fsnotify
	// events wake the scan earlier; the tick is the fallback.
	PollInterval time.Duration

	// ResponseTimeout is how long a forwarded job may await the
	// extension's verdict before being resolved as timed out.
	ResponseTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.ResponseTimeout <= 0 {
		c.ResponseTimeout = 30 * time.Second
	}
	return c
}

// Orchestrator claims pending jobs, forwards them to the extension,
// correlates verdicts by request id, enforces per-job deadlines, and
// writes resolutions back to the store.
//
// The frame read side is strictly single-consumer: exactly one
// goroutine calls Receive. Claiming and deadline sweeping run as
// separate goroutines and share only the store (via the filesystem)
// and the pending-response table (via mu).
type Orchestrator struct {
	store *queue.Store
	codec *frame.Codec
	cfg   Config
	log   *slog.Logger

	mu      sync.Mutex
	awaited map[string]time.Time // request id -> response deadline
}

// New creates an orchestrator over the given store and transport.
func New(store *queue.Store, codec *frame.Codec, cfg Config, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:   store,
		codec:   codec,
		cfg:     cfg.withDefaults(),
		log:     logger,
		awaited: make(map[string]time.Time),
	}
}

// Run executes the bridge until the context is cancelled, the channel
// closes cleanly (nil), or a channel-fatal frame error occurs (the
// error is returned and the process must exit non-zero; stranded
// in-flight jobs are reclaimed by the recovery sweep on next start).
func (o *Orchestrator) Run(ctx context.Context) error {
	recovered, err := o.store.Recover()
	if err != nil {
		return fmt.Errorf("startup recovery sweep: %w", err)
	}
	if recovered > 0 {
		o.log.Info("recovery sweep requeued stranded jobs", "count", recovered)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		o.claimLoop(ctx, errCh)
	}()
	go func() {
		defer wg.Done()
		o.sweepLoop(ctx)
	}()

	// The read loop is not context-aware (Receive blocks on the pipe),
	// so it runs detached; process exit reaps it.
	go o.readLoop(errCh)

	select {
	case <-ctx.Done():
		cancel()
		wg.Wait()
		return nil
	case err := <-errCh:
		cancel()
		wg.Wait()
		if err == nil || errors.Is(err, io.EOF) {
			o.log.Info("channel closed, shutting down")
			return nil
		}
		o.log.Error("fatal channel error", "error", err)
		return err
	}
}

// claimLoop scans the pending area on every tick and on filesystem
// change notification, forwarding each claimed job.
func (o *Orchestrator) claimLoop(ctx context.Context, errCh chan<- error) {
	wake := o.watchPending(ctx)

	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		o.claimAll(errCh)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-wake:
		}
	}
}

// watchPending returns a channel that fires when the pending area
// changes. Falls back to tick-only discovery if the watcher cannot be
// established.
func (o *Orchestrator) watchPending(ctx context.Context) <-chan struct{} {
	wake := make(chan struct{}, 1)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		o.log.Warn("fsnotify unavailable, using poll-only discovery", "error", err)
		return wake
	}
	if err := watcher.Add(o.store.Root() + "/" + queue.DirPending); err != nil {
		o.log.Warn("cannot watch pending dir, using poll-only discovery", "error", err)
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

// claimAll drains the pending area, forwarding every claimable job.
func (o *Orchestrator) claimAll(errCh chan<- error) {
	for {
		job, err := o.store.Claim()
		if err != nil {
			// Filesystem contention is local trouble, not a channel
			// fault; log and retry on the next tick.
			o.log.Error("claim failed", "error", err)
			return
		}
		if job == nil {
			return
		}
		if err := o.forward(*job); err != nil {
			select {
			case errCh <- err:
			default:
			}
			return
		}
	}
}

// forward sends a claimed job to the extension and registers its
// response deadline. The deadline entry is registered before the
// write so a fast reply can never miss it.
func (o *Orchestrator) forward(job model.Job) error {
	o.mu.Lock()
	o.awaited[job.ID] = time.Now().Add(o.cfg.ResponseTimeout)
	o.mu.Unlock()

	o.log.Info("forwarding job", "id", job.ID, "state", model.StateForwarded)

	err := o.codec.Send(frame.SendEmailRequest{
		RequestID: job.ID,
		EmailData: job.Payload,
	})
	if err != nil {
		o.mu.Lock()
		delete(o.awaited, job.ID)
		o.mu.Unlock()
		return fmt.Errorf("forwarding job %s: %w", job.ID, err)
	}

	o.log.Info("awaiting response", "id", job.ID, "state", model.StateAwaitingResponse)
	return nil
}

// readLoop is the single consumer of the channel's read side.
func (o *Orchestrator) readLoop(errCh chan<- error) {
	for {
		msg, err := o.codec.Receive()
		if err != nil {
			select {
			case errCh <- err:
			default:
			}
			return
		}

		switch m := msg.(type) {
		case frame.Ping:
			if err := o.codec.Send(frame.Pong{Timestamp: m.Timestamp}); err != nil {
				select {
				case errCh <- err:
				default:
				}
				return
			}
		case frame.SendResult:
			o.handleResult(m)
		}
	}
}

// handleResult correlates an extension verdict with its awaited entry
// and resolves the job. A verdict for an id that is no longer awaited
// (already timed out, or unknown) is logged and discarded; the
// existing resolution stands.
func (o *Orchestrator) handleResult(res frame.SendResult) {
	o.mu.Lock()
	_, awaited := o.awaited[res.ID]
	delete(o.awaited, res.ID)
	o.mu.Unlock()

	if !awaited {
		existing, err := o.store.Resolution(res.ID)
		if err == nil && existing != nil {
			o.log.Warn("late reply for already-resolved job discarded", "id", res.ID)
		} else {
			o.log.Warn("reply for unknown request discarded", "id", res.ID)
		}
		return
	}

	state := model.StateCompleted
	if !res.Success {
		state = model.StateFailed
	}
	o.log.Info("extension verdict received", "id", res.ID, "state", state)

	err := o.store.Resolve(res.ID, model.Resolution{
		Success:   res.Success,
		MessageID: res.MessageID,
		Error:     res.Error,
	})
	if err != nil {
		// The resolution is lost for now; the job stays in-flight and
		// the next start's recovery sweep requeues it.
		o.log.Error("failed to write resolution", "id", res.ID, "error", err)
	}
}

// sweepLoop expires awaited entries whose deadline has passed,
// resolving them as timed out.
func (o *Orchestrator) sweepLoop(ctx context.Context) {
	interval := o.cfg.PollInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			o.expire(now)
		}
	}
}

// expire resolves every awaited job whose deadline is behind now.
func (o *Orchestrator) expire(now time.Time) {
	o.mu.Lock()
	var expired []string
	for id, deadline := range o.awaited {
		if now.After(deadline) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(o.awaited, id)
	}
	o.mu.Unlock()

	for _, id := range expired {
		o.log.Warn("job timed out", "id", id, "state", model.StateTimedOut)
		err := o.store.Resolve(id, model.Resolution{
			Success: false,
			Error:   fmt.Sprintf("timeout: no extension reply within %s", o.cfg.ResponseTimeout),
		})
		if err != nil {
			o.log.Error("failed to write timeout resolution", "id", id, "error", err)
		}
	}
}
