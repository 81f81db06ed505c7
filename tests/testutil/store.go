package testutil

import (
	"testing"

	"github.com/faizalindrak/mass-email-sender-desktop/internal/audit"
	"github.com/faizalindrak/mass-email-sender-desktop/internal/hostlog"
	"github.com/faizalindrak/mass-email-sender-desktop/internal/queue"
)

// NewAuditStore creates an in-memory SQLite audit store with all
// migrations applied. It automatically closes the store when the test
// completes.
func NewAuditStore(t *testing.T) *audit.SQLiteStore {
	t.Helper()

	s, err := audit.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("creating test audit store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test audit store: %v", err)
		}
	})

	return s
}

// NewQueueStore creates a job store rooted in a fresh temp directory.
func NewQueueStore(t *testing.T) *queue.Store {
	t.Helper()

	s, err := queue.NewStore(t.TempDir(), hostlog.Discard())
	if err != nil {
		t.Fatalf("creating test queue store: %v", err)
	}

	return s
}
