// Package dispatch turns a detected drop-folder file into a sent
// email: supplier lookup, template rendering, delivery and audit
// logging.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/faizalindrak/mass-email-sender-desktop/internal/audit"
	"github.com/faizalindrak/mass-email-sender-desktop/internal/bridge"
	"github.com/faizalindrak/mass-email-sender-desktop/internal/model"
	"github.com/faizalindrak/mass-email-sender-desktop/internal/monitor"
	"github.com/faizalindrak/mass-email-sender-desktop/internal/sender"
	"github.com/faizalindrak/mass-email-sender-desktop/internal/template"
)

// Receipt identifies a completed delivery.
type Receipt struct {
	// JobID is set when delivery went through the job queue.
	JobID string

	// MessageID is the message id the email was sent under, when the
	// delivery channel reports one.
	MessageID string
}

// Deliverer is one way of getting an email out the door.
type Deliverer interface {
	// Deliver sends the payload and blocks until a definitive outcome.
	Deliver(ctx context.Context, payload model.EmailPayload) (*Receipt, error)

	// Name identifies the channel in audit logs.
	Name() string
}

// BridgeDeliverer sends through the mail-client bridge: submit a job,
// wait for its resolution.
type BridgeDeliverer struct {
	client  *bridge.Client
	timeout time.Duration
}

// NewBridgeDeliverer wraps a bridge client. timeout bounds how long a
// single delivery waits for the resolution; zero means wait until ctx
// ends.
func NewBridgeDeliverer(client *bridge.Client, timeout time.Duration) *BridgeDeliverer {
	return &BridgeDeliverer{client: client, timeout: timeout}
}

func (b *BridgeDeliverer) Name() string { return "thunderbird" }

func (b *BridgeDeliverer) Deliver(ctx context.Context, payload model.EmailPayload) (*Receipt, error) {
	id, err := b.client.Submit(payload)
	if err != nil {
		return nil, fmt.Errorf("submitting job: %w", err)
	}

	res, err := b.client.AwaitResolution(ctx, id, b.timeout)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, fmt.Errorf("job %s failed: %s", id, res.Error)
	}
	return &Receipt{JobID: id, MessageID: res.MessageID}, nil
}

// SMTPDeliverer sends directly over SMTP.
type SMTPDeliverer struct {
	sender sender.Sender
}

// NewSMTPDeliverer wraps a direct sender.
func NewSMTPDeliverer(s sender.Sender) *SMTPDeliverer {
	return &SMTPDeliverer{sender: s}
}

func (s *SMTPDeliverer) Name() string { return "smtp" }

func (s *SMTPDeliverer) Deliver(ctx context.Context, payload model.EmailPayload) (*Receipt, error) {
	msgID, err := s.sender.Send(ctx, payload)
	if err != nil {
		return nil, err
	}
	return &Receipt{MessageID: msgID}, nil
}

// Dispatcher consumes monitor events and runs each file through the
// full pipeline. Every attempt, successful or not, lands in the audit
// log.
type Dispatcher struct {
	store     audit.Store
	deliverer Deliverer
	mon       *monitor.Monitor
	tmpl      model.TemplateConfig
	log       *slog.Logger
}

// New assembles a dispatcher.
func New(store audit.Store, deliverer Deliverer, mon *monitor.Monitor, tmpl model.TemplateConfig, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:     store,
		deliverer: deliverer,
		mon:       mon,
		tmpl:      tmpl,
		log:       logger,
	}
}

// Run processes monitor events until ctx is cancelled. A failed file
// is logged and left in place; it never stops the loop.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-d.mon.Events():
			if err := d.HandleFile(ctx, ev); err != nil {
				d.log.Error("dispatch failed", "file", ev.Path, "key", ev.Key, "error", err)
			}
		}
	}
}

// HandleFile sends one detected file to its supplier and moves it into
// the sent/ subfolder on success. On failure the file stays put so an
// operator can retry by touching it again.
func (d *Dispatcher) HandleFile(ctx context.Context, ev monitor.Event) error {
	sup, err := d.store.GetSupplierByKey(ctx, ev.Key)
	if err != nil {
		return fmt.Errorf("looking up supplier %s: %w", ev.Key, err)
	}
	if sup == nil {
		d.recordAttempt(ctx, ev, nil, "", "", nil, fmt.Errorf("no active supplier for key %s", ev.Key))
		return fmt.Errorf("no active supplier for key %s", ev.Key)
	}

	vars := template.BuildVars(ev.Path, *sup, nil)
	subject := template.Render(d.tmpl.Subject, vars)
	body, err := d.renderBody(vars)
	if err != nil {
		d.recordAttempt(ctx, ev, sup, subject, "", nil, err)
		return err
	}

	payload := model.EmailPayload{
		To:       sup.Emails,
		Cc:       sup.CcEmails,
		Bcc:      sup.BccEmails,
		Subject:  subject,
		BodyHTML: body,
		Attachments: []model.Attachment{
			{Path: ev.Path, Name: filepath.Base(ev.Path)},
		},
	}

	receipt, err := d.deliverer.Deliver(ctx, payload)
	d.recordAttempt(ctx, ev, sup, subject, body, receipt, err)
	if err != nil {
		return fmt.Errorf("delivering %s: %w", filepath.Base(ev.Path), err)
	}

	d.log.Info("email dispatched",
		"file", filepath.Base(ev.Path),
		"supplier", sup.Key,
		"channel", d.deliverer.Name(),
		"messageId", receipt.MessageID)

	if err := os.Rename(ev.Path, d.mon.SentPath(ev.Path)); err != nil {
		return fmt.Errorf("moving %s to sent folder: %w", filepath.Base(ev.Path), err)
	}
	return nil
}

// renderBody uses the inline template unless it names a .tmpl file in
// the template directory.
func (d *Dispatcher) renderBody(vars map[string]string) (string, error) {
	if d.tmpl.Dir != "" && strings.HasSuffix(d.tmpl.Body, ".tmpl") {
		return template.RenderFile(d.tmpl.Dir, d.tmpl.Body, vars)
	}
	return template.Render(d.tmpl.Body, vars), nil
}

// recordAttempt writes the audit entry for one delivery attempt. Audit
// failures are logged, not propagated; the email outcome is what
// matters.
func (d *Dispatcher) recordAttempt(ctx context.Context, ev monitor.Event, sup *model.Supplier, subject, body string, receipt *Receipt, deliveryErr error) {
	entry := model.EmailLog{
		FilePath:    ev.Path,
		Filename:    filepath.Base(ev.Path),
		SupplierKey: ev.Key,
		Subject:     subject,
		Body:        body,
		Status:      model.EmailStatusSent,
		EmailClient: d.deliverer.Name(),
		SentAt:      time.Now().UTC(),
	}
	if sup != nil {
		entry.Recipients = sup.Emails
		entry.CcEmails = sup.CcEmails
		entry.BccEmails = sup.BccEmails
	}
	if receipt != nil {
		entry.JobID = receipt.JobID
	}
	if deliveryErr != nil {
		entry.Status = model.EmailStatusFailed
		entry.ErrorMessage = deliveryErr.Error()
	}

	if err := d.store.LogEmail(ctx, entry); err != nil {
		d.log.Error("writing audit log entry", "file", entry.Filename, "error", err)
	}
}
