package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faizalindrak/mass-email-sender-desktop/internal/model"
	"github.com/faizalindrak/mass-email-sender-desktop/tests/testutil"
)

func TestSupplierRoundTrip(t *testing.T) {
	s := testutil.NewAuditStore(t)
	ctx := context.Background()

	sup := model.Supplier{
		Key:          "ACME",
		SupplierCode: "SUP-001",
		SupplierName: "Acme Industries",
		ContactName:  "Jordan",
		Emails:       []string{"po@acme.example"},
		CcEmails:     []string{"cc@acme.example"},
		Active:       true,
	}
	require.NoError(t, s.UpsertSupplier(ctx, sup))

	got, err := s.GetSupplierByKey(ctx, "ACME")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "SUP-001", got.SupplierCode)
	assert.Equal(t, "Acme Industries", got.SupplierName)
	assert.Equal(t, []string{"po@acme.example"}, got.Emails)
	assert.Equal(t, []string{"cc@acme.example"}, got.CcEmails)
	assert.Empty(t, got.BccEmails)
}

func TestGetSupplierByKeyMissing(t *testing.T) {
	s := testutil.NewAuditStore(t)

	got, err := s.GetSupplierByKey(context.Background(), "NOPE")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetSupplierByKeySkipsInactive(t *testing.T) {
	s := testutil.NewAuditStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertSupplier(ctx, model.Supplier{
		Key:          "GONE",
		SupplierCode: "SUP-002",
		SupplierName: "Closed Co",
		Emails:       []string{"x@gone.example"},
		Active:       false,
	}))

	got, err := s.GetSupplierByKey(ctx, "GONE")
	require.NoError(t, err)
	assert.Nil(t, got)

	all, err := s.GetSuppliers(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	active, err := s.GetSuppliers(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestUpsertSupplierReplacesByID(t *testing.T) {
	s := testutil.NewAuditStore(t)
	ctx := context.Background()

	sup := model.Supplier{
		Key:          "ACME",
		SupplierCode: "SUP-001",
		SupplierName: "Acme Industries",
		Emails:       []string{"old@acme.example"},
		Active:       true,
	}
	require.NoError(t, s.UpsertSupplier(ctx, sup))

	stored, err := s.GetSupplierByKey(ctx, "ACME")
	require.NoError(t, err)
	require.NotNil(t, stored)

	stored.Emails = []string{"new@acme.example"}
	require.NoError(t, s.UpsertSupplier(ctx, *stored))

	got, err := s.GetSupplierByKey(ctx, "ACME")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"new@acme.example"}, got.Emails)

	all, err := s.GetSuppliers(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestLogEmailAndRecentLogs(t *testing.T) {
	s := testutil.NewAuditStore(t)
	ctx := context.Background()

	for i, status := range []string{model.EmailStatusSent, model.EmailStatusFailed} {
		require.NoError(t, s.LogEmail(ctx, model.EmailLog{
			JobID:       "job-x",
			FilePath:    "/drop/ACME_invoice.pdf",
			Filename:    "ACME_invoice.pdf",
			SupplierKey: "ACME",
			Recipients:  []string{"po@acme.example"},
			Subject:     "Invoice",
			Status:      status,
			EmailClient: "bridge",
			SentAt:      time.Now().Add(time.Duration(i) * time.Second),
		}))
	}

	logs, err := s.RecentLogs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	// Newest first.
	assert.Equal(t, model.EmailStatusFailed, logs[0].Status)
	assert.Equal(t, model.EmailStatusSent, logs[1].Status)
	assert.Equal(t, []string{"po@acme.example"}, logs[0].Recipients)
	assert.Equal(t, "bridge", logs[0].EmailClient)
}
