// tbhost is the native-messaging host the mail-client extension
// launches. It speaks length-prefixed JSON frames on stdin/stdout and
// drives the filesystem job queue; all diagnostics go to host.log
// because stdout belongs to the protocol.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/faizalindrak/mass-email-sender-desktop/internal/bridge"
	"github.com/faizalindrak/mass-email-sender-desktop/internal/frame"
	"github.com/faizalindrak/mass-email-sender-desktop/internal/hostlog"
	"github.com/faizalindrak/mass-email-sender-desktop/internal/model"
	"github.com/faizalindrak/mass-email-sender-desktop/internal/queue"
)

const (
	exitFatal      = 1
	exitContention = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	// Browsers pass extension metadata as arguments; a plain path as
	// the first argument overrides the queue root for manual runs.
	root := model.DefaultQueueRoot()
	if len(os.Args) > 1 && !isExtensionArg(os.Args[1]) {
		root = os.Args[1]
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "creating queue root %s: %v\n", root, err)
		return exitFatal
	}

	logger, closer, err := hostlog.Open(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening host log: %v\n", err)
		return exitFatal
	}
	defer closer.Close()

	store, err := queue.NewStore(root, logger)
	if err != nil {
		logger.Error("initializing queue", "error", err)
		return exitFatal
	}

	lock, err := queue.AcquireLock(root, logger)
	if err != nil {
		if errors.Is(err, queue.ErrLockContention) {
			logger.Error("another host instance owns the queue", "error", err)
			return exitContention
		}
		logger.Error("acquiring instance lock", "error", err)
		return exitFatal
	}
	defer lock.Release()

	cfg, err := model.LoadConfig(model.DefaultConfigPath())
	if err != nil {
		logger.Error("loading config", "error", err)
		return exitFatal
	}

	codec := frame.NewCodec(os.Stdin, os.Stdout, cfg.Queue.MaxFrameBytes)
	orch := bridge.New(store, codec, bridge.Config{
		PollInterval:    time.Duration(cfg.Queue.PollIntervalMS) * time.Millisecond,
		ResponseTimeout: time.Duration(cfg.Queue.ResponseTimeoutSec) * time.Second,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("host started", "queue", root, "pid", os.Getpid())
	if err := orch.Run(ctx); err != nil {
		logger.Error("host stopped on error", "error", err)
		return exitFatal
	}
	logger.Info("host stopped")
	return 0
}

// isExtensionArg reports whether an argument looks like the extension
// origin or id the browser appends rather than a queue path.
func isExtensionArg(arg string) bool {
	if len(arg) == 0 {
		return true
	}
	if arg[0] == '-' {
		return true
	}
	for _, prefix := range []string{"chrome-extension://", "moz-extension://"} {
		if len(arg) >= len(prefix) && arg[:len(prefix)] == prefix {
			return true
		}
	}
	// Thunderbird passes the manifest path followed by the extension id.
	return len(arg) > 5 && arg[len(arg)-5:] == ".json"
}
