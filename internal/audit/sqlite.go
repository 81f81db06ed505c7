package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/faizalindrak/mass-email-sender-desktop/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// UpsertSupplier inserts or replaces a supplier entry.
// If the supplier has no ID, a new UUID is generated.
func (s *SQLiteStore) UpsertSupplier(ctx context.Context, sup model.Supplier) error {
	if sup.ID == "" {
		sup.ID = uuid.New().String()
	}

	emails, err := json.Marshal(sup.Emails)
	if err != nil {
		return fmt.Errorf("marshaling supplier emails: %w", err)
	}
	ccEmails, err := json.Marshal(sup.CcEmails)
	if err != nil {
		return fmt.Errorf("marshaling supplier cc emails: %w", err)
	}
	bccEmails, err := json.Marshal(sup.BccEmails)
	if err != nil {
		return fmt.Errorf("marshaling supplier bcc emails: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO suppliers (
			id, key, supplier_code, supplier_name, contact_name,
			emails, cc_emails, bcc_emails, active, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sup.ID, sup.Key, sup.SupplierCode, sup.SupplierName, sup.ContactName,
		string(emails), string(ccEmails), string(bccEmails),
		boolToInt(sup.Active), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upserting supplier %s: %w", sup.Key, err)
	}

	return nil
}

// GetSupplierByKey retrieves the active supplier matching a filename key,
// or nil if no such supplier exists.
func (s *SQLiteStore) GetSupplierByKey(ctx context.Context, key string) (*model.Supplier, error) {
	row := s.db.QueryRowxContext(ctx,
		"SELECT * FROM suppliers WHERE key = ? AND active = 1", key,
	)

	sup, err := scanSupplier(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting supplier %s: %w", key, err)
	}

	return &sup, nil
}

// GetSuppliers retrieves all supplier entries, ordered by name.
func (s *SQLiteStore) GetSuppliers(ctx context.Context, includeInactive bool) ([]model.Supplier, error) {
	query := "SELECT * FROM suppliers"
	if !includeInactive {
		query += " WHERE active = 1"
	}
	query += " ORDER BY supplier_name"

	rows, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying suppliers: %w", err)
	}
	defer rows.Close()

	var suppliers []model.Supplier
	for rows.Next() {
		sup, err := scanSupplier(rows)
		if err != nil {
			return nil, err
		}
		suppliers = append(suppliers, sup)
	}

	return suppliers, rows.Err()
}

// DeleteSupplier removes a supplier by ID.
func (s *SQLiteStore) DeleteSupplier(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM suppliers WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting supplier %s: %w", id, err)
	}
	return nil
}

// LogEmail inserts one audit row for a send attempt.
func (s *SQLiteStore) LogEmail(ctx context.Context, entry model.EmailLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.SentAt.IsZero() {
		entry.SentAt = time.Now().UTC()
	}

	recipients, err := json.Marshal(entry.Recipients)
	if err != nil {
		return fmt.Errorf("marshaling log recipients: %w", err)
	}
	ccEmails, err := json.Marshal(entry.CcEmails)
	if err != nil {
		return fmt.Errorf("marshaling log cc emails: %w", err)
	}
	bccEmails, err := json.Marshal(entry.BccEmails)
	if err != nil {
		return fmt.Errorf("marshaling log bcc emails: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO email_logs (
			id, job_id, file_path, filename, supplier_key,
			recipients, cc_emails, bcc_emails,
			subject, body, status, error_message, email_client, sent_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.JobID, entry.FilePath, entry.Filename, entry.SupplierKey,
		string(recipients), string(ccEmails), string(bccEmails),
		entry.Subject, entry.Body, entry.Status, entry.ErrorMessage,
		entry.EmailClient, entry.SentAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting email log: %w", err)
	}

	return nil
}

// RecentLogs retrieves the most recent audit rows, newest first.
func (s *SQLiteStore) RecentLogs(ctx context.Context, limit int) ([]model.EmailLog, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryxContext(ctx,
		"SELECT * FROM email_logs ORDER BY sent_at DESC LIMIT ?", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying email logs: %w", err)
	}
	defer rows.Close()

	var logs []model.EmailLog
	for rows.Next() {
		entry, err := scanEmailLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}

	return logs, rows.Err()
}

// rowScanner is satisfied by both sqlx.Row and sqlx.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanSupplier scans a supplier row.
func scanSupplier(row rowScanner) (model.Supplier, error) {
	var (
		sup       model.Supplier
		emails    string
		ccEmails  string
		bccEmails string
		active    int
		createdAt time.Time
		updatedAt time.Time
	)

	err := row.Scan(
		&sup.ID, &sup.Key, &sup.SupplierCode, &sup.SupplierName, &sup.ContactName,
		&emails, &ccEmails, &bccEmails, &active, &createdAt, &updatedAt,
	)
	if err != nil {
		return model.Supplier{}, err
	}

	sup.Active = active != 0
	sup.CreatedAt = createdAt
	sup.UpdatedAt = updatedAt

	lists := []struct {
		raw string
		dst *[]string
	}{
		{emails, &sup.Emails},
		{ccEmails, &sup.CcEmails},
		{bccEmails, &sup.BccEmails},
	}
	for _, l := range lists {
		if l.raw == "" {
			continue
		}
		if err := json.Unmarshal([]byte(l.raw), l.dst); err != nil {
			return model.Supplier{}, fmt.Errorf("unmarshaling supplier emails: %w", err)
		}
	}

	return sup, nil
}

// scanEmailLog scans an email log row.
func scanEmailLog(rows *sqlx.Rows) (model.EmailLog, error) {
	var (
		entry      model.EmailLog
		recipients string
		ccEmails   string
		bccEmails  string
		sentAt     time.Time
	)

	err := rows.Scan(
		&entry.ID, &entry.JobID, &entry.FilePath, &entry.Filename, &entry.SupplierKey,
		&recipients, &ccEmails, &bccEmails,
		&entry.Subject, &entry.Body, &entry.Status, &entry.ErrorMessage,
		&entry.EmailClient, &sentAt,
	)
	if err != nil {
		return model.EmailLog{}, fmt.Errorf("scanning email log row: %w", err)
	}

	entry.SentAt = sentAt

	lists := []struct {
		raw string
		dst *[]string
	}{
		{recipients, &entry.Recipients},
		{ccEmails, &entry.CcEmails},
		{bccEmails, &entry.BccEmails},
	}
	for _, l := range lists {
		if l.raw == "" {
			continue
		}
		if err := json.Unmarshal([]byte(l.raw), l.dst); err != nil {
			return model.EmailLog{}, fmt.Errorf("unmarshaling log emails: %w", err)
		}
	}

	return entry, nil
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
