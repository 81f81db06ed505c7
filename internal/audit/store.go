// Package audit persists the supplier directory and the per-send audit
// trail in a local SQLite database. The bridge core never depends on
// it; the desktop daemon records outcomes here and the queue inspector
// reads them back.
package audit

import (
	"context"

	"github.com/faizalindrak/mass-email-sender-desktop/internal/model"
)

// Store defines the persistence interface for suppliers and email logs.
type Store interface {
	// === Suppliers ===

	UpsertSupplier(ctx context.Context, s model.Supplier) error
	GetSupplierByKey(ctx context.Context, key string) (*model.Supplier, error)
	GetSuppliers(ctx context.Context, includeInactive bool) ([]model.Supplier, error)
	DeleteSupplier(ctx context.Context, id string) error

	// === Email logs ===

	LogEmail(ctx context.Context, entry model.EmailLog) error
	RecentLogs(ctx context.Context, limit int) ([]model.EmailLog, error)

	Close() error
}
