package models

import "time"

// Статусы алерта. TRIGGERED — терминальный: алерт больше не проверяется.
const (
	AlertStatusActive    = "ACTIVE"
	AlertStatusPaused    = "PAUSED"
	AlertStatusExpired   = "EXPIRED"
	AlertStatusTriggered = "TRIGGERED"
)

type Alert struct {
	ID            uint64     `json:"id"`
	Origin        string     `json:"origin"`
	Destination   string     `json:"destination"`
	DepartDate    time.Time  `json:"departDate"`
	Passengers    int        `json:"passengers"`
	TargetPrice   float64    `json:"targetPrice"`
	Currency      string     `json:"currency"`
	Email         *string    `json:"email,omitempty"`
	Webhook       *string    `json:"webhook,omitempty"`
	Status        string     `json:"status"`
	LastCheckedAt *time.Time `json:"lastCheckedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

type AlertCreateInput struct {
	Origin      string
	Destination string
	DepartDate  time.Time
	Passengers  int
	TargetPrice float64
	Currency    string
	Email       *string
	Webhook     *string
}

// NotificationRecord — append-only запись о сработавшем алерте.
type NotificationRecord struct {
	ID           uint64    `json:"id"`
	AlertID      uint64    `json:"alertId"`
	CurrentPrice float64   `json:"currentPrice"`
	Message      string    `json:"message"`
	SentAt       time.Time `json:"sentAt"`
}

type FlightSegment struct {
	From         string `json:"from"`
	To           string `json:"to"`
	DepartAt     string `json:"departAt"`
	ArriveAt     string `json:"arriveAt"`
	Carrier      string `json:"carrier"`
	FlightNumber string `json:"flightNumber"`
}

type Offer struct {
	Provider        string          `json:"provider"`
	Price           float64         `json:"price"`
	Currency        string          `json:"currency"`
	DurationMinutes int             `json:"durationMinutes"`
	Stops           int             `json:"stops"`
	Segments        []FlightSegment `json:"segments"`
}

type Airport struct {
	Code    string `json:"code"`
	Name    string `json:"name"`
	City    string `json:"city"`
	Country string `json:"country"`
}
