package pricecheck

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/FareWatch/internal/broker/messages"
	"github.com/BearBump/FareWatch/internal/integrations/flights"
	"github.com/BearBump/FareWatch/internal/queue"
	"github.com/BearBump/FareWatch/internal/services/notify"
)

type Repository interface {
	MarkChecked(ctx context.Context, alertID uint64) error
	MarkTriggered(ctx context.Context, alertID uint64) error
	AppendNotificationRecord(ctx context.Context, alertID uint64, price float64, message string) error
}

type Notifier interface {
	SendAlert(ctx context.Context, emailAddr, webhookURL *string, p notify.PriceAlert) notify.Result
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// Locker — опциональный single-flight per alert (redis SETNX),
// против дублей нотификаций при перекрывающихся проверках.
type Locker interface {
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
}

// Worker — пул консюмеров очереди. Машина состояний одной джобы:
// RECEIVED -> SEARCHING -> (NO_OFFERS | PRICED); PRICED при min<=target
// идёт через нотификации в TRIGGERED, иначе просто отмечает проверку.
type Worker struct {
	q          queue.Queue
	provider   flights.Client
	repo       Repository
	dispatcher Notifier
	producer   Producer
	rl         RateLimiter
	locker     Locker

	topic              string
	concurrency        int
	pollInterval       time.Duration
	lease              time.Duration
	rateLimitPerMinute int64
	providerName       string

	totalProcessed atomic.Int64
	totalTriggered atomic.Int64
	totalRetried   atomic.Int64
	totalErrors    atomic.Int64
	inFlight       atomic.Int64
	lastErrorMu    sync.Mutex
	lastError      string
}

func New(q queue.Queue, provider flights.Client, repo Repository, dispatcher Notifier) *Worker {
	return &Worker{
		q:            q,
		provider:     provider,
		repo:         repo,
		dispatcher:   dispatcher,
		concurrency:  10,
		pollInterval: time.Second,
		lease:        2 * time.Minute,
		providerName: "flights",
	}
}

func (w *Worker) WithSettings(concurrency int, pollInterval, lease time.Duration) *Worker {
	if concurrency > 0 {
		w.concurrency = concurrency
	}
	if pollInterval > 0 {
		w.pollInterval = pollInterval
	}
	if lease > 0 {
		w.lease = lease
	}
	return w
}

// WithEvents включает best-effort публикацию итогов проверки в kafka.
func (w *Worker) WithEvents(p Producer, topic string) *Worker {
	w.producer = p
	w.topic = topic
	return w
}

func (w *Worker) WithRateLimit(rl RateLimiter, perMinute int64) *Worker {
	w.rl = rl
	w.rateLimitPerMinute = perMinute
	return w
}

func (w *Worker) WithSingleFlight(l Locker) *Worker {
	w.locker = l
	return w
}

type Stats struct {
	TotalProcessed int64  `json:"totalProcessed"`
	TotalTriggered int64  `json:"totalTriggered"`
	TotalRetried   int64  `json:"totalRetried"`
	TotalErrors    int64  `json:"totalErrors"`
	InFlight       int64  `json:"inFlight"`
	LastError      string `json:"lastError,omitempty"`
}

func (w *Worker) Stats() Stats {
	st := Stats{
		TotalProcessed: w.totalProcessed.Load(),
		TotalTriggered: w.totalTriggered.Load(),
		TotalRetried:   w.totalRetried.Load(),
		TotalErrors:    w.totalErrors.Load(),
		InFlight:       w.inFlight.Load(),
	}
	w.lastErrorMu.Lock()
	st.LastError = w.lastError
	w.lastErrorMu.Unlock()
	return st
}

// Run запускает consumerLoop в N горутин и ждёт их завершения.
// Джоба, взятая в работу на момент отмены контекста, не доделывается:
// её исходящие вызовы откажут вместе с контекстом, а сама она вернётся
// другому консюмеру по истечении lease.
func (w *Worker) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.consumerLoop(ctx)
		}()
	}
	wg.Wait()
	return ctx.Err()
}

func (w *Worker) consumerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		j, err := w.q.Dequeue(ctx, time.Now().UTC(), w.lease)
		if err != nil {
			slog.Error("dequeue price check", "error", err.Error())
			w.totalErrors.Add(1)
			w.setLastError(err.Error())
			w.sleep(ctx)
			continue
		}
		if j == nil {
			w.sleep(ctx)
			continue
		}

		w.inFlight.Add(1)
		w.processJob(ctx, j)
		w.inFlight.Add(-1)
		w.totalProcessed.Add(1)
	}
}

func (w *Worker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.pollInterval):
	}
}

func (w *Worker) processJob(ctx context.Context, j *queue.Job) {
	now := time.Now().UTC()

	if w.locker != nil {
		key := fmt.Sprintf("check:alert:%d", j.AlertID)
		ok, err := w.locker.SetNX(ctx, key, []byte(j.ID), w.lease)
		if err == nil && !ok {
			// Другой воркер уже проверяет этот алерт — дубль гасим.
			slog.Info("skip concurrent check", "alert_id", j.AlertID, "job_id", j.ID)
			w.ack(ctx, j)
			return
		}
	}

	if w.rl != nil && w.rateLimitPerMinute > 0 {
		minuteKey := fmt.Sprintf("rl:flights:%s:%s", w.providerName, now.Format("200601021504"))
		allowed, n, err := w.rl.Allow(ctx, minuteKey, w.rateLimitPerMinute, 70*time.Second)
		if err == nil && !allowed {
			// Слишком много запросов в минуту: подождём немного, чтобы разгрузить апстрим.
			slog.Warn("rate limit exceeded", "provider", w.providerName, "count", n)
			time.Sleep(500 * time.Millisecond)
		}
	}

	offers, err := w.provider.SearchOffers(ctx, flights.SearchCriteria{
		Origin:      j.Origin,
		Destination: j.Destination,
		DepartDate:  j.DepartDate,
		Passengers:  j.Passengers,
	})
	if err != nil {
		// Ошибка поиска уходит в ретрай-бюджет очереди.
		// last_checked_at не трогаем: алерт останется eligible на следующий тик.
		slog.Error("search offers", "alert_id", j.AlertID, "attempt", j.Attempt, "error", err.Error())
		w.totalErrors.Add(1)
		w.setLastError(err.Error())
		w.publishOutcome(ctx, j, messages.AlertChecked{
			AlertID: j.AlertID, CheckedAt: now, Outcome: messages.CheckOutcomeFailed,
			Origin: j.Origin, Destination: j.Destination, DepartDate: j.DepartDate,
			TargetPrice: j.TargetPrice, Error: strPtr(err.Error()),
		})
		requeued, rerr := w.q.Retry(ctx, *j, err)
		if rerr != nil {
			slog.Error("retry price check", "alert_id", j.AlertID, "error", rerr.Error())
		}
		if requeued {
			w.totalRetried.Add(1)
		}
		return
	}

	if len(offers) == 0 {
		// NO_OFFERS — нормальный исход, не ошибка.
		slog.Info("no offers found", "alert_id", j.AlertID)
		if err := w.repo.MarkChecked(ctx, j.AlertID); err != nil {
			w.retryOnStoreError(ctx, j, err)
			return
		}
		w.publishOutcome(ctx, j, messages.AlertChecked{
			AlertID: j.AlertID, CheckedAt: now, Outcome: messages.CheckOutcomeNoOffers,
			Origin: j.Origin, Destination: j.Destination, DepartDate: j.DepartDate,
			TargetPrice: j.TargetPrice,
		})
		w.ack(ctx, j)
		return
	}

	minPrice := offers[0].Price
	currency := offers[0].Currency
	for _, o := range offers[1:] {
		if o.Price < minPrice {
			minPrice = o.Price
			currency = o.Currency
		}
	}

	if minPrice <= j.TargetPrice {
		w.triggerAlert(ctx, j, minPrice, currency, len(offers), now)
		return
	}

	if err := w.repo.MarkChecked(ctx, j.AlertID); err != nil {
		w.retryOnStoreError(ctx, j, err)
		return
	}
	slog.Debug("price above target",
		"alert_id", j.AlertID, "min_price", minPrice, "target", j.TargetPrice)
	w.publishOutcome(ctx, j, messages.AlertChecked{
		AlertID: j.AlertID, CheckedAt: now, Outcome: messages.CheckOutcomeChecked,
		Origin: j.Origin, Destination: j.Destination, DepartDate: j.DepartDate,
		MinPrice: &minPrice, TargetPrice: j.TargetPrice, Currency: currency,
		OfferCount: len(offers),
	})
	w.ack(ctx, j)
}

// triggerAlert: запись нотификации -> доставка -> TRIGGERED.
// Статус выставляется независимо от итогов доставки: сработавший алерт
// не перепроверяется, даже если оба канала упали.
func (w *Worker) triggerAlert(ctx context.Context, j *queue.Job, minPrice float64, currency string, offerCount int, now time.Time) {
	slog.Info("price alert triggered",
		"alert_id", j.AlertID, "min_price", minPrice, "target", j.TargetPrice)

	msg := fmt.Sprintf("Price dropped to %s%.2f! Target was %s%.2f",
		currency, minPrice, currency, j.TargetPrice)
	if err := w.repo.AppendNotificationRecord(ctx, j.AlertID, minPrice, msg); err != nil {
		// Запись истории best-effort: доставку из-за неё не срываем.
		slog.Error("append notification record", "alert_id", j.AlertID, "error", err.Error())
	}

	res := w.dispatcher.SendAlert(ctx, j.Email, j.Webhook, notify.PriceAlert{
		AlertID:      j.AlertID,
		Origin:       j.Origin,
		Destination:  j.Destination,
		DepartDate:   j.DepartDate,
		CurrentPrice: minPrice,
		TargetPrice:  j.TargetPrice,
		Currency:     currency,
	})
	slog.Info("notifications sent",
		"alert_id", j.AlertID, "email", res.EmailDelivered, "webhook", res.WebhookDelivered)

	if err := w.repo.MarkTriggered(ctx, j.AlertID); err != nil {
		// Статус не записался — джоба уходит в ретрай; возможный дубль
		// нотификации терпим (см. single-flight).
		w.retryOnStoreError(ctx, j, err)
		return
	}
	w.totalTriggered.Add(1)

	w.publishOutcome(ctx, j, messages.AlertChecked{
		AlertID: j.AlertID, CheckedAt: now, Outcome: messages.CheckOutcomeTriggered,
		Origin: j.Origin, Destination: j.Destination, DepartDate: j.DepartDate,
		MinPrice: &minPrice, TargetPrice: j.TargetPrice, Currency: currency,
		OfferCount:       offerCount,
		EmailDelivered:   &res.EmailDelivered,
		WebhookDelivered: &res.WebhookDelivered,
	})
	w.ack(ctx, j)
}

func (w *Worker) retryOnStoreError(ctx context.Context, j *queue.Job, err error) {
	slog.Error("alert store write", "alert_id", j.AlertID, "error", err.Error())
	w.totalErrors.Add(1)
	w.setLastError(err.Error())
	requeued, rerr := w.q.Retry(ctx, *j, err)
	if rerr != nil {
		slog.Error("retry price check", "alert_id", j.AlertID, "error", rerr.Error())
	}
	if requeued {
		w.totalRetried.Add(1)
	}
}

func (w *Worker) ack(ctx context.Context, j *queue.Job) {
	if err := w.q.Ack(ctx, j.ID); err != nil {
		slog.Error("ack price check", "job_id", j.ID, "error", err.Error())
	}
}

func (w *Worker) publishOutcome(ctx context.Context, j *queue.Job, msg messages.AlertChecked) {
	if w.producer == nil || w.topic == "" {
		return
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	key := []byte(fmt.Sprintf("%d", j.AlertID))
	if err := w.producer.Publish(ctx, w.topic, key, b); err != nil {
		// Событие best-effort, основной путь от него не зависит.
		slog.Warn("publish alert.checked", "alert_id", j.AlertID, "error", err.Error())
	}
}

func (w *Worker) setLastError(msg string) {
	w.lastErrorMu.Lock()
	w.lastError = msg
	w.lastErrorMu.Unlock()
}

func strPtr(s string) *string { return &s }
