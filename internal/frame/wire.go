// Package frame implements the length-prefixed JSON codec used on the
// native-messaging channel between the bridge host and the mail-client
// extension, plus the closed set of messages that travel over it.
package frame

import (
	"encoding/json"
	"fmt"

	"github.com/faizalindrak/mass-email-sender-desktop/internal/model"
)

// Outbound is implemented by every message the host can send to the
// extension. The set is closed; encoding switches over it exhaustively.
type Outbound interface {
	isOutbound()
}

// SendEmailRequest asks the extension to transmit one email. The
// RequestID is the job id; the extension echoes it back in its verdict.
type SendEmailRequest struct {
	RequestID string
	EmailData model.EmailPayload
}

// Pong answers a liveness probe from the extension.
type Pong struct {
	Timestamp int64
}

func (SendEmailRequest) isOutbound() {}
func (Pong) isOutbound() {}

// Inbound is implemented by every message the extension can send to
// the host. Decoding is exhaustive: a frame that matches none of the
// variants is a malformed payload, never a silent no-op.
type Inbound interface {
	isInbound()
}

// SendResult is the extension's final verdict for one job.
type SendResult struct {
	ID        string
	Success   bool
	MessageID string
	Error     string
}

// Ping is a liveness probe; it never touches the job store.
type Ping struct {
	Timestamp int64
}

func (SendResult) isInbound() {}
func (Ping) isInbound() {}

// sendEmailWire is the host→extension JSON schema for a send request.
type sendEmailWire struct {
	Type      string             `json:"type"`
	RequestID string             `json:"requestId"`
	EmailData model.EmailPayload `json:"emailData"`
}

// pongWire is the host→extension JSON schema for a pong.
type pongWire struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// inboundWire is a superset probe of every extension→host schema.
type inboundWire struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	Success   *bool  `json:"success"`
	MessageID string `json:"messageId"`
	Error     string `json:"error"`
	Timestamp int64  `json:"timestamp"`
}

// encodeOutbound serializes an outbound message to its wire JSON.
func encodeOutbound(msg Outbound) ([]byte, error) {
	switch m := msg.(type) {
	case SendEmailRequest:
		return json.Marshal(sendEmailWire{
			Type:      "sendEmail",
			RequestID: m.RequestID,
			EmailData: m.EmailData,
		})
	case Pong:
		return json.Marshal(pongWire{Type: "pong", Timestamp: m.Timestamp})
	default:
		return nil, fmt.Errorf("unencodable outbound message %T", msg)
	}
}

// decodeInbound parses extension→host wire JSON into its variant.
func decodeInbound(data []byte) (Inbound, error) {
	var w inboundWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	switch {
	case w.Type == "ping":
		return Ping{Timestamp: w.Timestamp}, nil
	case w.ID != "" && (w.Success != nil || w.Error != ""):
		res := SendResult{
			ID:        w.ID,
			MessageID: w.MessageID,
			Error:     w.Error,
		}
		if w.Success != nil {
			res.Success = *w.Success
		}
		return res, nil
	default:
		return nil, fmt.Errorf("%w: unrecognized message (type=%q)", ErrMalformedPayload, w.Type)
	}
}
