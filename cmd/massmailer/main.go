// massmailer watches the drop folder and emails each new document to
// the supplier matched by its filename key. Delivery goes through the
// mail-client bridge or, when the bridge is disabled, directly over
// SMTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/faizalindrak/mass-email-sender-desktop/internal/audit"
	"github.com/faizalindrak/mass-email-sender-desktop/internal/bridge"
	"github.com/faizalindrak/mass-email-sender-desktop/internal/dispatch"
	"github.com/faizalindrak/mass-email-sender-desktop/internal/hostlog"
	"github.com/faizalindrak/mass-email-sender-desktop/internal/model"
	"github.com/faizalindrak/mass-email-sender-desktop/internal/monitor"
	"github.com/faizalindrak/mass-email-sender-desktop/internal/queue"
	"github.com/faizalindrak/mass-email-sender-desktop/internal/sender"
)

func main() {
	configPath := flag.String("config", model.DefaultConfigPath(), "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "massmailer: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Monitor.Folder == "" {
		return fmt.Errorf("monitor.folder is not configured; edit %s", configPath)
	}

	store, err := audit.NewSQLiteStore(cfg.AuditDBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	deliverer, err := buildDeliverer(cfg, logger)
	if err != nil {
		return err
	}

	mon, err := monitor.New(cfg.Monitor, logger)
	if err != nil {
		return err
	}

	d := dispatch.New(store, deliverer, mon, cfg.Template, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- mon.Run(ctx) }()
	go func() { errCh <- d.Run(ctx) }()

	logger.Info("massmailer started",
		"folder", cfg.Monitor.Folder,
		"channel", deliverer.Name())

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// buildDeliverer picks the delivery channel from configuration.
func buildDeliverer(cfg *model.AppConfig, logger *slog.Logger) (dispatch.Deliverer, error) {
	if !cfg.UseBridge {
		return dispatch.NewSMTPDeliverer(sender.NewSMTP(cfg.SMTP, logger)), nil
	}

	store, err := queue.NewStore(cfg.Queue.Root, hostlog.Discard())
	if err != nil {
		return nil, err
	}
	client := bridge.NewClient(store, logger)
	timeout := 2 * time.Duration(cfg.Queue.ResponseTimeoutSec) * time.Second
	return dispatch.NewBridgeDeliverer(client, timeout), nil
}
