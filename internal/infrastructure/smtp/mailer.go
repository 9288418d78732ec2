package smtp

import (
	"fmt"
	"net/smtp"

	"github.com/carpschool/access-api/internal/domain"
)

// Mailer sends email through an institution's own SMTP transport. Each
// institution configures its server; there is no platform-wide relay.
type Mailer interface {
	SendEmail(settings *domain.SMTPSettings, to, subject, body string) error
}

type mailer struct{}

func NewMailer() Mailer {
	return &mailer{}
}

func (m *mailer) SendEmail(settings *domain.SMTPSettings, to, subject, body string) error {
	if settings == nil || !settings.Enabled {
		return fmt.Errorf("smtp disabled: %w", domain.ErrTransportUnavailable)
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		settings.From, to, subject, body)
	addr := fmt.Sprintf("%s:%s", settings.Host, settings.Port)

	var auth smtp.Auth
	if settings.Username != "" {
		auth = smtp.PlainAuth("", settings.Username, settings.Password, settings.Host)
	}

	return smtp.SendMail(addr, auth, settings.From, []string{to}, []byte(msg))
}
