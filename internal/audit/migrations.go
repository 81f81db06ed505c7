package audit

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS suppliers (
	id            TEXT PRIMARY KEY,
	key           TEXT NOT NULL UNIQUE,
	supplier_code TEXT NOT NULL,
	supplier_name TEXT NOT NULL,
	contact_name  TEXT NOT NULL DEFAULT '',
	emails        TEXT NOT NULL,
	cc_emails     TEXT NOT NULL DEFAULT '[]',
	bcc_emails    TEXT NOT NULL DEFAULT '[]',
	active        INTEGER NOT NULL DEFAULT 1,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS email_logs (
	id            TEXT PRIMARY KEY,
	job_id        TEXT NOT NULL DEFAULT '',
	file_path     TEXT NOT NULL,
	filename      TEXT NOT NULL,
	supplier_key  TEXT NOT NULL,
	recipients    TEXT NOT NULL,
	cc_emails     TEXT NOT NULL DEFAULT '[]',
	bcc_emails    TEXT NOT NULL DEFAULT '[]',
	subject       TEXT NOT NULL,
	body          TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'sent',
	error_message TEXT NOT NULL DEFAULT '',
	email_client  TEXT NOT NULL DEFAULT '',
	sent_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_email_logs_supplier_key ON email_logs(supplier_key);
CREATE INDEX IF NOT EXISTS idx_email_logs_sent_at ON email_logs(sent_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
