// Package mailer delivers the password reset mail. With SMTP configured it
// sends over STARTTLS; without, the reset link is only logged, which is what
// you want during development.
package mailer

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/smtp"
	"text/template"

	"github.com/jordan-wright/email"
)

type Mailer interface {
	SendPasswordReset(to, userName, link string) error
}

const resetMailText = `Hello {{.UserName}},

you requested a password reset for your {{.AppName}} account.

Open the link below to choose a new password:

{{.Link}}

If you did not request this, you can ignore this mail.
`

var resetMailTmpl = template.Must(template.New("password_reset").Parse(resetMailText))

type resetMailData struct {
	UserName string
	Link     string
	AppName  string
}

type SMTPMailer struct {
	Host      string
	Port      string
	Username  string
	Password  string
	FromEmail string
	FromName  string
}

func (m *SMTPMailer) SendPasswordReset(to, userName, link string) error {
	var body bytes.Buffer
	if err := resetMailTmpl.Execute(&body, resetMailData{UserName: userName, Link: link, AppName: "Sensor-Dashboard"}); err != nil {
		return fmt.Errorf("render reset mail: %w", err)
	}

	e := email.NewEmail()
	e.From = fmt.Sprintf("%s <%s>", m.FromName, m.FromEmail)
	e.To = []string{to}
	e.Subject = "Password reset"
	e.Text = body.Bytes()

	auth := smtp.PlainAuth("", m.Username, m.Password, m.Host)
	return e.SendWithStartTLS(
		m.Host+":"+m.Port,
		auth,
		&tls.Config{ServerName: m.Host},
	)
}

// LogMailer stands in when SMTP is not configured.
type LogMailer struct{}

func (LogMailer) SendPasswordReset(to, userName, link string) error {
	slog.Info("password reset mail (smtp not configured)", "to", to, "link", link)
	return nil
}
