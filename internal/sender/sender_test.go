package sender

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faizalindrak/mass-email-sender-desktop/internal/model"
)

func TestBuildMessageHeaders(t *testing.T) {
	payload := model.EmailPayload{
		To:       []string{"orders@acme.example"},
		Cc:       []string{"audit@acme.example"},
		Subject:  "Invoice ACME_001",
		BodyHTML: "<p>See attached.</p>",
	}

	msgID, raw, err := buildMessage("sender@corp.example", payload)
	require.NoError(t, err)
	require.NotEmpty(t, msgID)

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	require.NoError(t, err)

	from, err := mr.Header.AddressList("From")
	require.NoError(t, err)
	require.Len(t, from, 1)
	assert.Equal(t, "sender@corp.example", from[0].Address)

	to, err := mr.Header.AddressList("To")
	require.NoError(t, err)
	require.Len(t, to, 1)
	assert.Equal(t, "orders@acme.example", to[0].Address)

	subject, err := mr.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, "Invoice ACME_001", subject)

	ids, err := mr.Header.MsgIDList("Message-Id")
	require.NoError(t, err)
	assert.Equal(t, []string{msgID}, ids)
}

func TestBuildMessageParts(t *testing.T) {
	dir := t.TempDir()
	attPath := filepath.Join(dir, "ACME_invoice.pdf")
	require.NoError(t, os.WriteFile(attPath, []byte("pdf bytes"), 0o644))

	payload := model.EmailPayload{
		To:       []string{"orders@acme.example"},
		Subject:  "Invoice",
		BodyHTML: "<p>Hello Acme</p>",
		Attachments: []model.Attachment{
			{Path: attPath, Name: "ACME_invoice.pdf"},
		},
	}

	_, raw, err := buildMessage("sender@corp.example", payload)
	require.NoError(t, err)

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	require.NoError(t, err)

	var sawBody, sawAttachment bool
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			ct, _, err := h.ContentType()
			require.NoError(t, err)
			assert.Equal(t, "text/html", ct)
			body, err := io.ReadAll(part.Body)
			require.NoError(t, err)
			assert.True(t, strings.Contains(string(body), "Hello Acme"))
			sawBody = true
		case *mail.AttachmentHeader:
			name, err := h.Filename()
			require.NoError(t, err)
			assert.Equal(t, "ACME_invoice.pdf", name)
			data, err := io.ReadAll(part.Body)
			require.NoError(t, err)
			assert.Equal(t, "pdf bytes", string(data))
			sawAttachment = true
		}
	}
	assert.True(t, sawBody, "html body part missing")
	assert.True(t, sawAttachment, "attachment part missing")
}

func TestBuildMessageMissingAttachment(t *testing.T) {
	payload := model.EmailPayload{
		To:          []string{"orders@acme.example"},
		Subject:     "Invoice",
		BodyHTML:    "<p>x</p>",
		Attachments: []model.Attachment{{Path: "/no/such/file.pdf", Name: "file.pdf"}},
	}

	_, _, err := buildMessage("sender@corp.example", payload)
	require.Error(t, err)
}
