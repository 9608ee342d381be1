package messages

import "time"

// Итоги проверки алерта.
const (
	CheckOutcomeTriggered = "TRIGGERED"
	CheckOutcomeChecked   = "CHECKED"
	CheckOutcomeNoOffers  = "NO_OFFERS"
	CheckOutcomeFailed    = "FAILED"
)

// AlertChecked публикуется воркером после каждой попытки проверки цены.
// Событие best-effort: основной путь (store + нотификации) от него не зависит.
type AlertChecked struct {
	AlertID   uint64    `json:"alert_id"`
	CheckedAt time.Time `json:"checked_at"`

	Outcome string `json:"outcome"`

	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	DepartDate  string `json:"depart_date"`

	MinPrice    *float64 `json:"min_price,omitempty"`
	TargetPrice float64  `json:"target_price"`
	Currency    string   `json:"currency,omitempty"`
	OfferCount  int      `json:"offer_count"`

	EmailDelivered   *bool `json:"email_delivered,omitempty"`
	WebhookDelivered *bool `json:"webhook_delivered,omitempty"`

	Error *string `json:"error,omitempty"`
}
