package reports

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/gomail.v2"
)

// Message is one outbound report email.
type Message struct {
	From        string
	To          []string
	Subject     string
	Body        string
	Attachments []Attachment
}

type Attachment struct {
	Name string
	Data []byte
}

// Mailer delivers report emails. Delivery is at-most-once; a failure is
// recorded on the report run, never retried here.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPMailer sends via a plain SMTP transport.
type SMTPMailer struct {
	host     string
	port     int
	username string
	password string
}

func NewSMTPMailer(host string, port int, username, password string) *SMTPMailer {
	return &SMTPMailer{host: host, port: port, username: username, password: password}
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("no recipients")
	}

	gm := gomail.NewMessage()
	gm.SetHeader("From", msg.From)
	gm.SetHeader("To", msg.To...)
	gm.SetHeader("Subject", msg.Subject)
	gm.SetBody("text/plain", msg.Body)

	for _, att := range msg.Attachments {
		data := att.Data
		gm.Attach(att.Name, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(data)
			return err
		}))
	}

	dialer := gomail.NewDialer(m.host, m.port, m.username, m.password)
	if err := dialer.DialAndSend(gm); err != nil {
		return fmt.Errorf("sending mail: %w", err)
	}
	return nil
}

// NoopMailer discards messages. Used in tests and when SMTP is unset.
type NoopMailer struct{}

func (NoopMailer) Send(ctx context.Context, msg Message) error { return nil }
