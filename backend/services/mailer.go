package services

import (
	"fmt"
	"net/smtp"
)

// Mailer sends one message. The notifier is the only caller.
type Mailer interface {
	Send(to, subject, body string) error
}

// SMTPMailer delivers through a plain SMTP relay.
type SMTPMailer struct {
	Addr string
	From string
}

func (m *SMTPMailer) Send(to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		m.From, to, subject, body)
	return smtp.SendMail(m.Addr, nil, m.From, []string{to}, []byte(msg))
}

// NoopMailer is used when SMTP is not configured; notifications still get
// persisted, just not mailed.
type NoopMailer struct{}

func (NoopMailer) Send(to, subject, body string) error {
	return nil
}

// NewMailer picks the SMTP implementation when an address is configured.
func NewMailer(addr, from string) Mailer {
	if addr == "" {
		return NoopMailer{}
	}
	return &SMTPMailer{Addr: addr, From: from}
}
