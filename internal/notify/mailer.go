// Package notify sends plain-text mail with an optional attachment over
// SMTP with implicit TLS.
package notify

import (
	"fmt"

	"github.com/sirupsen/logrus"
	gomail "gopkg.in/gomail.v2"

	"suptrading/internal/config"
)

// Mailer loads its SMTP settings from the JSON document at configPath on
// every send, so a fixed credential file can be rotated without a restart.
type Mailer struct {
	configPath string
	log        *logrus.Logger
}

func NewMailer(configPath string, log *logrus.Logger) *Mailer {
	return &Mailer{configPath: configPath, log: log}
}

// Send submits one message. attachment may be empty. Any failure — config,
// message build, SMTP exchange — comes back as an error for the caller to
// branch on.
func (m *Mailer) Send(subject, body, attachment string) error {
	cfg, err := config.LoadMail(m.configPath)
	if err != nil {
		return fmt.Errorf("mail config: %w", err)
	}
	recipients := cfg.Recipients()
	if len(recipients) == 0 {
		return fmt.Errorf("mail config: no recipients in %s", m.configPath)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", cfg.User)
	msg.SetHeader("To", recipients...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)
	if attachment != "" {
		msg.Attach(attachment)
	}

	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	d.SSL = true

	if err := d.DialAndSend(msg); err != nil {
		return fmt.Errorf("send mail via %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	m.log.Infof("mail %q sent to %d recipients", subject, len(recipients))
	return nil
}
