package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// JobState tracks a job's position in the bridge state machine.
type JobState string

const (
	StateQueued           JobState = "queued"
	StateClaimed          JobState = "claimed"
	StateForwarded        JobState = "forwarded"
	StateAwaitingResponse JobState = "awaiting_response"
	StateCompleted        JobState = "completed"
	StateFailed           JobState = "failed"
	StateTimedOut         JobState = "timed_out"
)

// Attachment is a single file to attach to an outgoing email.
type Attachment struct {
	// Path is the absolute path of the file on disk.
	Path string `json:"path"`

	// Name is the filename presented to the recipient.
	Name string `json:"name"`
}

// EmailPayload holds everything the mail client needs to compose
// and transmit one message.
type EmailPayload struct {
	To          []string     `json:"to"`
	Cc          []string     `json:"cc"`
	Bcc         []string     `json:"bcc"`
	Subject     string       `json:"subject"`
	BodyHTML    string       `json:"bodyHtml"`
	Attachments []Attachment `json:"attachments"`
}

// Job is one outbound email-send request awaiting a verdict.
// Its identity is the ID, generated once by the submitter.
type Job struct {
	ID        string       `json:"id"`
	Payload   EmailPayload `json:"payload"`
	CreatedAt time.Time    `json:"createdAt"`
}

// Resolution is the terminal success/failure record for a job.
// Exactly one resolution is meaningful per job id; a duplicate write
// is deterministic (last write wins) and logged as an anomaly.
type Resolution struct {
	ID         string    `json:"id"`
	Success    bool      `json:"success"`
	MessageID  string    `json:"messageId,omitempty"`
	Error      string    `json:"error,omitempty"`
	ResolvedAt time.Time `json:"resolvedAt"`
}

// NewJob creates a job with a fresh UUID and creation timestamp.
func NewJob(payload EmailPayload) Job {
	return Job{
		ID:        uuid.New().String(),
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
}

var (
	ErrMissingJobID   = errors.New("job has no id")
	ErrInvalidJobID   = errors.New("job id is not a valid UUID")
	ErrNoRecipients   = errors.New("job has no recipients")
	ErrMissingSubject = errors.New("job has no subject")
)

// Validate checks the structural invariants a job file must satisfy
// before it may be forwarded. Files failing validation are quarantined,
// never silently dropped.
func (j Job) Validate() error {
	if j.ID == "" {
		return ErrMissingJobID
	}
	if _, err := uuid.Parse(j.ID); err != nil {
		return ErrInvalidJobID
	}
	if len(j.Payload.To) == 0 {
		return ErrNoRecipients
	}
	if j.Payload.Subject == "" {
		return ErrMissingSubject
	}
	return nil
}
