package model

import "time"

// Supplier is a directory entry mapping a filename key to the
// recipients that should receive documents carrying that key.
type Supplier struct {
	// ID is the unique identifier for this supplier entry.
	ID string `json:"id"`

	// Key is the token extracted from a monitored filename that
	// selects this supplier.
	Key string `json:"key"`

	// SupplierCode is the business identifier of the supplier.
	SupplierCode string `json:"supplier_code"`

	// SupplierName is the display name of the supplier.
	SupplierName string `json:"supplier_name"`

	// ContactName is the addressee used in templates.
	ContactName string `json:"contact_name"`

	// Emails, CcEmails and BccEmails are the recipient lists.
	Emails    []string `json:"emails"`
	CcEmails  []string `json:"cc_emails"`
	BccEmails []string `json:"bcc_emails"`

	// Active controls whether this supplier receives mail.
	Active bool `json:"active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Email log status values.
const (
	EmailStatusSent   = "sent"
	EmailStatusFailed = "failed"
)

// EmailLog is one audit row recording a send attempt and its outcome.
type EmailLog struct {
	ID string `json:"id"`

	// JobID links the row to the bridge job that carried the email;
	// empty for direct SMTP sends.
	JobID string `json:"job_id"`

	FilePath    string   `json:"file_path"`
	Filename    string   `json:"filename"`
	SupplierKey string   `json:"supplier_key"`
	Recipients  []string `json:"recipients"`
	CcEmails    []string `json:"cc_emails"`
	BccEmails   []string `json:"bcc_emails"`
	Subject     string   `json:"subject"`
	Body        string   `json:"body"`

	// Status is EmailStatusSent or EmailStatusFailed.
	Status string `json:"status"`

	// ErrorMessage holds the failure reason when Status is failed.
	ErrorMessage string `json:"error_message"`

	// EmailClient records the delivery path ("thunderbird" or "smtp").
	EmailClient string `json:"email_client"`

	SentAt time.Time `json:"sent_at"`
}
