package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/BearBump/FareWatch/internal/models"
)

const (
	DefaultMaxAttempts = 3
	defaultRetryBase   = 5 * time.Second
)

// Job — замороженный снапшот алерта на момент постановки в очередь.
// Правки алерта после enqueue не влияют на уже идущую проверку.
type Job struct {
	ID          string  `json:"id"`
	AlertID     uint64  `json:"alert_id"`
	Origin      string  `json:"origin"`
	Destination string  `json:"destination"`
	DepartDate  string  `json:"depart_date"` // YYYY-MM-DD
	Passengers  int     `json:"passengers"`
	TargetPrice float64 `json:"target_price"`
	Currency    string  `json:"currency"`
	Email       *string `json:"email,omitempty"`
	Webhook     *string `json:"webhook,omitempty"`

	// Attempt — номер текущей попытки, с единицы.
	Attempt     int       `json:"attempt"`
	MaxAttempts int       `json:"max_attempts"`
	RunAt       time.Time `json:"run_at"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// Queue — абстракция рабочей очереди с at-least-once доставкой.
// Конкретный backing store (redis) — внешний коллаборатор.
type Queue interface {
	Enqueue(ctx context.Context, j Job) error
	// Dequeue отдаёт одну готовую джобу и берёт на неё lease.
	// Возвращает nil, когда готовых джоб нет.
	Dequeue(ctx context.Context, now time.Time, lease time.Duration) (*Job, error)
	Ack(ctx context.Context, id string) error
	// Retry перепланирует джобу с backoff либо хоронит её после
	// исчерпания попыток. Возвращает true, если джоба будет доставлена снова.
	Retry(ctx context.Context, j Job, cause error) (bool, error)
}

// NewJob снимает снапшот алерта. maxAttempts=1 — ручная проверка без ретраев.
func NewJob(a *models.Alert, maxAttempts int, now time.Time) Job {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return Job{
		ID:          fmt.Sprintf("%d:%d", a.ID, now.UnixNano()),
		AlertID:     a.ID,
		Origin:      a.Origin,
		Destination: a.Destination,
		DepartDate:  a.DepartDate.UTC().Format("2006-01-02"),
		Passengers:  a.Passengers,
		TargetPrice: a.TargetPrice,
		Currency:    a.Currency,
		Email:       a.Email,
		Webhook:     a.Webhook,
		Attempt:     1,
		MaxAttempts: maxAttempts,
		RunAt:       now,
		EnqueuedAt:  now,
	}
}

// Backoff — экспоненциальная задержка перед повтором: 5s, 10s, 20s, ...
// failedAttempt — номер только что провалившейся попытки.
func Backoff(failedAttempt int) time.Duration {
	if failedAttempt < 1 {
		failedAttempt = 1
	}
	d := defaultRetryBase
	for i := 1; i < failedAttempt; i++ {
		d *= 2
	}
	return d
}
