package notify

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/pkg/errors"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SMTPEmailSender struct {
	cfg SMTPConfig
	// seam для тестов вместо живого SMTP-соединения
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPEmailSender(cfg SMTPConfig) *SMTPEmailSender {
	return &SMTPEmailSender{cfg: cfg, sendMail: smtp.SendMail}
}

func (s *SMTPEmailSender) Send(ctx context.Context, to string, p PriceAlert) error {
	if s.cfg.Host == "" || s.cfg.From == "" {
		return errors.New("smtp transport is not configured")
	}

	subject := fmt.Sprintf("Price Alert: %s -> %s - %s%.2f",
		p.Origin, p.Destination, p.Currency, p.CurrentPrice)
	body := fmt.Sprintf(
		"The price for %s -> %s on %s dropped to %s%.2f (your target: %s%.2f). Book now to secure this price!",
		p.Origin, p.Destination, p.DepartDate,
		p.Currency, p.CurrentPrice, p.Currency, p.TargetPrice)

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		s.cfg.From, to, subject, body)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	if err := s.sendMail(addr, auth, s.cfg.From, []string{to}, []byte(msg)); err != nil {
		return errors.Wrap(err, "smtp send")
	}
	return nil
}
