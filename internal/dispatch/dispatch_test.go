package dispatch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faizalindrak/mass-email-sender-desktop/internal/hostlog"
	"github.com/faizalindrak/mass-email-sender-desktop/internal/model"
	"github.com/faizalindrak/mass-email-sender-desktop/internal/monitor"
	"github.com/faizalindrak/mass-email-sender-desktop/tests/testutil"
)

type fakeDeliverer struct {
	payloads []model.EmailPayload
	receipt  *Receipt
	err      error
}

func (f *fakeDeliverer) Deliver(_ context.Context, payload model.EmailPayload) (*Receipt, error) {
	f.payloads = append(f.payloads, payload)
	if f.err != nil {
		return nil, f.err
	}
	return f.receipt, nil
}

func (f *fakeDeliverer) Name() string { return "fake" }

func newTestDispatcher(t *testing.T, folder string, deliverer Deliverer) *Dispatcher {
	t.Helper()
	store := testutil.NewAuditStore(t)

	require.NoError(t, store.UpsertSupplier(context.Background(), model.Supplier{
		Key:          "ACME",
		SupplierCode: "SUP-001",
		SupplierName: "Acme Industries",
		ContactName:  "Jordan",
		Emails:       []string{"orders@acme.example"},
		CcEmails:     []string{"audit@acme.example"},
		Active:       true,
	}))

	mon, err := monitor.New(model.MonitorConfig{
		Folder:     folder,
		KeyPattern: `^([A-Z0-9]+)_`,
		Extensions: []string{".pdf"},
	}, hostlog.Discard())
	require.NoError(t, err)

	tmpl := model.TemplateConfig{
		Subject: "Document [filename] for [supplier_name]",
		Body:    "<p>Dear [contact_name],</p>",
	}
	return New(store, deliverer, mon, tmpl, hostlog.Discard())
}

func dropFile(t *testing.T, folder, name string) string {
	t.Helper()
	path := filepath.Join(folder, name)
	require.NoError(t, os.WriteFile(path, []byte("content"), 0o644))
	return path
}

func TestHandleFileSuccess(t *testing.T) {
	folder := t.TempDir()
	fake := &fakeDeliverer{receipt: &Receipt{JobID: "job-1", MessageID: "<m1@test>"}}
	d := newTestDispatcher(t, folder, fake)
	path := dropFile(t, folder, "ACME_invoice.pdf")

	require.NoError(t, d.HandleFile(context.Background(), monitor.Event{Path: path, Key: "ACME"}))

	require.Len(t, fake.payloads, 1)
	payload := fake.payloads[0]
	assert.Equal(t, []string{"orders@acme.example"}, payload.To)
	assert.Equal(t, []string{"audit@acme.example"}, payload.Cc)
	assert.Equal(t, "Document ACME_invoice.pdf for Acme Industries", payload.Subject)
	assert.Equal(t, "<p>Dear Jordan,</p>", payload.BodyHTML)
	require.Len(t, payload.Attachments, 1)
	assert.Equal(t, path, payload.Attachments[0].Path)
	assert.Equal(t, "ACME_invoice.pdf", payload.Attachments[0].Name)

	// Moved to sent/.
	assert.NoFileExists(t, path)
	assert.FileExists(t, filepath.Join(folder, monitor.SentSubfolder, "ACME_invoice.pdf"))

	logs, err := d.store.RecentLogs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.EmailStatusSent, logs[0].Status)
	assert.Equal(t, "job-1", logs[0].JobID)
	assert.Equal(t, "fake", logs[0].EmailClient)
	assert.Equal(t, []string{"orders@acme.example"}, logs[0].Recipients)
}

func TestHandleFileDeliveryFailureLeavesFile(t *testing.T) {
	folder := t.TempDir()
	fake := &fakeDeliverer{err: errors.New("send window closed")}
	d := newTestDispatcher(t, folder, fake)
	path := dropFile(t, folder, "ACME_invoice.pdf")

	err := d.HandleFile(context.Background(), monitor.Event{Path: path, Key: "ACME"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send window closed")

	// File stays for a manual retry.
	assert.FileExists(t, path)

	logs, err := d.store.RecentLogs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.EmailStatusFailed, logs[0].Status)
	assert.Contains(t, logs[0].ErrorMessage, "send window closed")
}

func TestHandleFileUnknownSupplier(t *testing.T) {
	folder := t.TempDir()
	fake := &fakeDeliverer{receipt: &Receipt{}}
	d := newTestDispatcher(t, folder, fake)
	path := dropFile(t, folder, "NOPE_invoice.pdf")

	err := d.HandleFile(context.Background(), monitor.Event{Path: path, Key: "NOPE"})
	require.Error(t, err)
	assert.Empty(t, fake.payloads)

	logs, err := d.store.RecentLogs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.EmailStatusFailed, logs[0].Status)
	assert.Equal(t, "NOPE", logs[0].SupplierKey)
}

func TestRenderBodyFromTemplateFile(t *testing.T) {
	folder := t.TempDir()
	tmplDir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(tmplDir, "body.tmpl"),
		[]byte("Dear {{.contact_name}}"), 0o644))

	fake := &fakeDeliverer{receipt: &Receipt{}}
	d := newTestDispatcher(t, folder, fake)
	d.tmpl.Dir = tmplDir
	d.tmpl.Body = "body.tmpl"
	path := dropFile(t, folder, "ACME_invoice.pdf")

	require.NoError(t, d.HandleFile(context.Background(), monitor.Event{Path: path, Key: "ACME"}))
	require.Len(t, fake.payloads, 1)
	assert.Equal(t, "Dear Jordan", fake.payloads[0].BodyHTML)
}
