package mailer

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// Credentials authenticate one relay session. Each sender role has its
// own mailbox and token, so the dialer is built per send rather than
// shared.
type Credentials struct {
	Email string
	Token string
}

type Message struct {
	To          string
	Subject     string
	Body        string
	ContentType string
	Attachments []string
}

// Transport abstracts the relay: a send either succeeds or fails with
// a classified *SendError.
type Transport interface {
	Send(ctx context.Context, creds Credentials, msg *Message) error
}

type SMTPTransport struct {
	host   string
	port   int
	logger *zap.Logger
}

func NewSMTPTransport(host string, port int, logger *zap.Logger) *SMTPTransport {
	logger.Info("Initializing SMTP transport",
		zap.String("host", host),
		zap.Int("port", port),
	)
	return &SMTPTransport{host: host, port: port, logger: logger}
}

func (t *SMTPTransport) Send(ctx context.Context, creds Credentials, msg *Message) error {
	m := gomail.NewMessage()
	m.SetHeader("From", creds.Email)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)

	if msg.ContentType == "text/html" {
		m.SetBody("text/html", msg.Body)
	} else {
		m.SetBody("text/plain", msg.Body)
	}

	for _, path := range msg.Attachments {
		info, err := os.Stat(path)
		if err != nil {
			t.logger.Warn("Attachment file not found, skipping",
				zap.String("path", path),
			)
			continue
		}
		if info.Size() == 0 {
			t.logger.Warn("Attachment file is empty, skipping",
				zap.String("path", path),
			)
			continue
		}
		m.Attach(path)
		t.logger.Debug("Attached file",
			zap.String("filename", filepath.Base(path)),
			zap.Int64("bytes", info.Size()),
		)
	}

	d := gomail.NewDialer(t.host, t.port, creds.Email, creds.Token)

	if err := d.DialAndSend(m); err != nil {
		return Classify(err)
	}
	return nil
}
