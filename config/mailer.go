package config

import (
	"fmt"
	"net/smtp"
	"os"
	"strings"
)

// Mailer sends application mail. The SMTP implementation is swapped out
// for a no-op in tests and in environments without SMTP credentials.
type Mailer interface {
	Send(to string, subject string, body string) error
}

var mailer Mailer

func GetMailer() Mailer {
	if mailer == nil {
		mailer = NewSMTPMailer()
	}
	return mailer
}

func SetMailer(m Mailer) {
	mailer = m
}

type smtpMailer struct {
	host string
	port string
	user string
	pass string
	from string
}

func NewSMTPMailer() Mailer {
	return &smtpMailer{
		host: os.Getenv("SMTP_HOST"),
		port: os.Getenv("SMTP_PORT"),
		user: os.Getenv("SMTP_USERNAME"),
		pass: os.Getenv("SMTP_PASSWORD"),
		from: os.Getenv("SMTP_FROM"),
	}
}

func (m *smtpMailer) Send(to string, subject string, body string) error {
	if m.host == "" {
		return fmt.Errorf("SMTP_HOST not configured")
	}
	port := m.port
	if port == "" {
		port = "587"
	}
	from := m.from
	if from == "" {
		from = m.user
	}

	var msg strings.Builder
	msg.WriteString("From: " + from + "\r\n")
	msg.WriteString("To: " + to + "\r\n")
	msg.WriteString("Subject: " + subject + "\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	var auth smtp.Auth
	if m.user != "" {
		auth = smtp.PlainAuth("", m.user, m.pass, m.host)
	}
	return smtp.SendMail(m.host+":"+port, auth, from, []string{to}, []byte(msg.String()))
}

// NoopMailer drops mail. Used by tests and local development.
type NoopMailer struct {
	Sent []string
}

func (m *NoopMailer) Send(to string, subject string, body string) error {
	m.Sent = append(m.Sent, to+"|"+subject)
	return nil
}
