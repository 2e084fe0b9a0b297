package email

import (
	"bytes"
	"fmt"
	"mime"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

// message is a single-part plain text email.
type message struct {
	From    *mail.Address
	To      *mail.Address
	Subject string
	Body    string
	Date    time.Time
}

func (m message) messageID() string {
	domain := "localhost"
	if at := strings.LastIndexByte(m.From.Address, '@'); at >= 0 && at < len(m.From.Address)-1 {
		domain = m.From.Address[at+1:]
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}

// Bytes renders the message with CRLF line endings.
func (m message) Bytes() []byte {
	var buf bytes.Buffer
	header := func(name, value string) {
		buf.WriteString(name)
		buf.WriteString(": ")
		buf.WriteString(value)
		buf.WriteString("\r\n")
	}

	header("From", m.From.String())
	header("To", m.To.String())
	header("Subject", mime.QEncoding.Encode("utf-8", m.Subject))
	header("Date", m.Date.Format(time.RFC1123Z))
	header("Message-ID", m.messageID())
	header("MIME-Version", "1.0")
	header("Content-Type", `text/plain; charset="utf-8"`)
	header("Content-Transfer-Encoding", "8bit")
	buf.WriteString("\r\n")

	body := strings.ReplaceAll(m.Body, "\r\n", "\n")
	buf.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return buf.Bytes()
}
