package config

import (
	"crypto/tls"
	"fmt"
	"os"
	"strconv"

	mail "github.com/go-mail/mail/v2"
)

// MailerConfig holds the SMTP settings read from the environment.
type MailerConfig struct {
	Host          string
	Port          int
	User          string
	Pass          string
	From          string // e.g. "CERBO <no-reply@your.org>"
	SkipTLSVerify bool
}

// LoadMailerConfig reads SMTP_* variables. It is called after godotenv has
// populated the environment, not at package init.
func LoadMailerConfig() MailerConfig {
	port, _ := strconv.Atoi(os.Getenv("SMTP_PORT"))
	if port == 0 {
		port = 587
	}
	return MailerConfig{
		Host:          os.Getenv("SMTP_HOST"),
		Port:          port,
		User:          os.Getenv("SMTP_USER"),
		Pass:          os.Getenv("SMTP_PASS"),
		From:          os.Getenv("SMTP_FROM"),
		SkipTLSVerify: os.Getenv("SMTP_SKIP_TLS_VERIFY") == "1",
	}
}

// Configured reports whether enough settings exist to send mail.
func (c MailerConfig) Configured() bool {
	return c.Host != "" && c.From != ""
}

// SendMail delivers an HTML message over STARTTLS.
func (c MailerConfig) SendMail(to []string, subject, html string) error {
	if len(to) == 0 {
		return nil
	}
	if !c.Configured() {
		return fmt.Errorf("smtp not configured (SMTP_HOST/SMTP_FROM)")
	}

	m := mail.NewMessage()
	m.SetHeader("From", c.From)
	m.SetHeader("To", to...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", html)

	d := mail.NewDialer(c.Host, c.Port, c.User, c.Pass)
	d.StartTLSPolicy = mail.MandatoryStartTLS
	d.TLSConfig = &tls.Config{
		ServerName:         c.Host,
		InsecureSkipVerify: c.SkipTLSVerify, // dev only
	}

	return d.DialAndSend(m)
}
