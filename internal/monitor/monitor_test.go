package monitor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faizalindrak/mass-email-sender-desktop/internal/hostlog"
	"github.com/faizalindrak/mass-email-sender-desktop/internal/model"
)

func newTestMonitor(t *testing.T, folder string) *Monitor {
	t.Helper()
	m, err := New(model.MonitorConfig{
		Folder:     folder,
		KeyPattern: `^([A-Z0-9]+)_`,
		Extensions: []string{".pdf", ".txt"},
	}, hostlog.Discard())
	require.NoError(t, err)
	return m
}

func TestNewCreatesSentFolder(t *testing.T) {
	dir := t.TempDir()
	newTestMonitor(t, dir)
	assert.DirExists(t, filepath.Join(dir, SentSubfolder))
}

func TestNewRejectsMissingFolder(t *testing.T) {
	_, err := New(model.MonitorConfig{
		Folder:     "/definitely/not/here",
		KeyPattern: `x`,
	}, hostlog.Discard())
	require.Error(t, err)
}

func TestNewRejectsBadPattern(t *testing.T) {
	_, err := New(model.MonitorConfig{
		Folder:     t.TempDir(),
		KeyPattern: `([`,
	}, hostlog.Discard())
	require.Error(t, err)
}

func TestExtractKey(t *testing.T) {
	m := newTestMonitor(t, t.TempDir())

	key, ok := m.ExtractKey("ACME_invoice.pdf")
	require.True(t, ok)
	assert.Equal(t, "ACME", key)

	_, ok = m.ExtractKey("lowercase_invoice.pdf")
	assert.False(t, ok)
}

func TestRunEmitsStableFiles(t *testing.T) {
	dir := t.TempDir()
	m := newTestMonitor(t, dir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := m.Run(ctx); err != nil {
			t.Errorf("monitor run: %v", err)
		}
	}()

	// Give the watcher a moment to register.
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(dir, "ACME_invoice.pdf")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0o644))

	select {
	case ev := <-m.Events():
		assert.Equal(t, path, ev.Path)
		assert.Equal(t, "ACME", ev.Key)
	case <-time.After(5 * time.Second):
		t.Fatal("no event for new file")
	}
}

func TestRunIgnoresDisallowedExtension(t *testing.T) {
	dir := t.TempDir()
	m := newTestMonitor(t, dir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "ACME_notes.xlsm"), []byte("x"), 0o644))

	select {
	case ev := <-m.Events():
		t.Fatalf("unexpected event for %s", ev.Path)
	case <-time.After(500 * time.Millisecond):
	}
}
