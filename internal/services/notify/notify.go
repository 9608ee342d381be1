package notify

import (
	"context"
	"log/slog"
)

type PriceAlert struct {
	AlertID      uint64  `json:"alertId"`
	Origin       string  `json:"origin"`
	Destination  string  `json:"destination"`
	DepartDate   string  `json:"departDate"`
	CurrentPrice float64 `json:"currentPrice"`
	TargetPrice  float64 `json:"targetPrice"`
	Currency     string  `json:"currency"`
}

type Result struct {
	EmailDelivered   bool `json:"emailDelivered"`
	WebhookDelivered bool `json:"webhookDelivered"`
}

type EmailSender interface {
	Send(ctx context.Context, to string, p PriceAlert) error
}

type WebhookSender interface {
	Send(ctx context.Context, url string, p PriceAlert) error
}

// Dispatcher доставляет алерт по настроенным каналам. Каналы независимы:
// падение одного не блокирует и не откатывает другой. Ровно одна попытка
// на канал, все ошибки гасятся и репортятся как false.
type Dispatcher struct {
	email   EmailSender
	webhook WebhookSender
}

func NewDispatcher(email EmailSender, webhook WebhookSender) *Dispatcher {
	return &Dispatcher{email: email, webhook: webhook}
}

func (d *Dispatcher) SendAlert(ctx context.Context, emailAddr, webhookURL *string, p PriceAlert) Result {
	var res Result

	if emailAddr != nil && *emailAddr != "" && d.email != nil {
		if err := d.email.Send(ctx, *emailAddr, p); err != nil {
			slog.Error("send alert email", "alert_id", p.AlertID, "error", err.Error())
		} else {
			res.EmailDelivered = true
		}
	}

	if webhookURL != nil && *webhookURL != "" && d.webhook != nil {
		if err := d.webhook.Send(ctx, *webhookURL, p); err != nil {
			slog.Error("send alert webhook", "alert_id", p.AlertID, "error", err.Error())
		} else {
			res.WebhookDelivered = true
		}
	}

	return res
}
