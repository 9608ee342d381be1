package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/FareWatch/internal/models"
	"github.com/BearBump/FareWatch/internal/queue"
)

type Repository interface {
	ListDueAlerts(ctx context.Context, now time.Time, freshness time.Duration, limit int) ([]*models.Alert, error)
}

// Scheduler раз в интервал выбирает due-алерты и ставит по одной джобе
// на каждый. Снапшот замораживается на момент enqueue: правки алерта
// по ходу проверки на неё не влияют.
type Scheduler struct {
	repo Repository
	q    queue.Queue

	interval    time.Duration
	freshness   time.Duration
	batchSize   int
	maxAttempts int

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastTickUnixNano    atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalSelected       atomic.Int64
	totalEnqueued       atomic.Int64
	totalErrors         atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(repo Repository, q queue.Queue) *Scheduler {
	return &Scheduler{
		repo:              repo,
		q:                 q,
		interval:          time.Hour,
		freshness:         time.Hour,
		batchSize:         50,
		maxAttempts:       queue.DefaultMaxAttempts,
		triggerCh:         make(chan struct{}, 1),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (s *Scheduler) WithSettings(interval, freshness time.Duration, batchSize, maxAttempts int) *Scheduler {
	if interval > 0 {
		s.interval = interval
	}
	if freshness > 0 {
		s.freshness = freshness
	}
	if batchSize > 0 {
		s.batchSize = batchSize
	}
	if maxAttempts > 0 {
		s.maxAttempts = maxAttempts
	}
	return s
}

// Trigger forces an immediate tick (best-effort, non-blocking).
func (s *Scheduler) Trigger() {
	s.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case s.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt     time.Time  `json:"startedAt"`
	LastTickAt    *time.Time `json:"lastTickAt,omitempty"`
	LastTriggerAt *time.Time `json:"lastTriggerAt,omitempty"`
	TotalSelected int64      `json:"totalSelected"`
	TotalEnqueued int64      `json:"totalEnqueued"`
	TotalErrors   int64      `json:"totalErrors"`
	LastError     string     `json:"lastError,omitempty"`
}

func (s *Scheduler) Stats() Stats {
	st := Stats{
		StartedAt:     time.Unix(0, s.startedAtUnixNano).UTC(),
		TotalSelected: s.totalSelected.Load(),
		TotalEnqueued: s.totalEnqueued.Load(),
		TotalErrors:   s.totalErrors.Load(),
	}
	if n := s.lastTickUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTickAt = &t
	}
	if n := s.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	s.lastErrorMu.Lock()
	st.LastError = s.lastError
	s.lastErrorMu.Unlock()
	return st
}

func (s *Scheduler) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.runOnce(ctx)
		case <-s.triggerCh:
			s.runOnce(ctx)
		}
	}
}

// runOnce: ошибка выборки роняет весь тик (следующий tick повторит),
// ошибка enqueue одного алерта — только его.
func (s *Scheduler) runOnce(ctx context.Context) {
	now := time.Now().UTC()
	s.lastTickUnixNano.Store(now.UnixNano())

	alerts, err := s.repo.ListDueAlerts(ctx, now, s.freshness, s.batchSize)
	if err != nil {
		slog.Error("list due alerts", "error", err.Error())
		s.totalErrors.Add(1)
		s.setLastError(err.Error())
		return
	}
	s.totalSelected.Add(int64(len(alerts)))
	if len(alerts) == 0 {
		return
	}

	enqueued := 0
	for _, a := range alerts {
		j := queue.NewJob(a, s.maxAttempts, now)
		if err := s.q.Enqueue(ctx, j); err != nil {
			slog.Error("enqueue price check", "alert_id", a.ID, "error", err.Error())
			s.totalErrors.Add(1)
			s.setLastError(err.Error())
			continue
		}
		enqueued++
	}
	s.totalEnqueued.Add(int64(enqueued))
	slog.Info("scheduled price checks", "selected", len(alerts), "enqueued", enqueued)
}

func (s *Scheduler) setLastError(msg string) {
	s.lastErrorMu.Lock()
	s.lastError = msg
	s.lastErrorMu.Unlock()
}
