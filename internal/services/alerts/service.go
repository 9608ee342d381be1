package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/BearBump/FareWatch/internal/broker/messages"
	"github.com/BearBump/FareWatch/internal/cache"
	"github.com/BearBump/FareWatch/internal/models"
	"github.com/BearBump/FareWatch/internal/queue"
	"github.com/pkg/errors"
)

var ErrNotFound = errors.New("alert not found")

type Repository interface {
	CreateAlerts(ctx context.Context, items []models.AlertCreateInput) ([]*models.Alert, error)
	GetAlertsByIDs(ctx context.Context, ids []uint64) ([]*models.Alert, error)
	UpdateAlertStatus(ctx context.Context, alertID uint64, status string) error
	ListNotifications(ctx context.Context, alertID uint64, limit, offset int) ([]*models.NotificationRecord, error)
}

type Service struct {
	repo       Repository
	cache      cache.BytesCache
	q          queue.Queue
	currentTTL time.Duration
}

func New(repo Repository, c cache.BytesCache, q queue.Queue, currentTTL time.Duration) *Service {
	return &Service{repo: repo, cache: c, q: q, currentTTL: currentTTL}
}

func (s *Service) CreateAlerts(ctx context.Context, items []models.AlertCreateInput) ([]*models.Alert, error) {
	if len(items) == 0 {
		return nil, errors.New("items is empty")
	}
	if len(items) > 1000 {
		return nil, errors.New("too many items (max 1000)")
	}

	now := time.Now().UTC()
	for _, it := range items {
		if it.Origin == "" {
			return nil, errors.New("origin is required")
		}
		if it.Destination == "" {
			return nil, errors.New("destination is required")
		}
		if it.Passengers <= 0 {
			return nil, errors.New("passengers must be positive")
		}
		if it.TargetPrice <= 0 {
			return nil, errors.New("targetPrice must be positive")
		}
		if !it.DepartDate.After(now) {
			return nil, errors.New("departDate must be in the future")
		}
		// Инвариант: хотя бы один канал доставки.
		if !hasChannel(it.Email) && !hasChannel(it.Webhook) {
			return nil, errors.New("either email or webhook must be provided")
		}
	}

	return s.repo.CreateAlerts(ctx, items)
}

func hasChannel(v *string) bool { return v != nil && *v != "" }

func (s *Service) GetAlertsByIDs(ctx context.Context, ids []uint64) ([]*models.Alert, error) {
	if len(ids) == 0 {
		return []*models.Alert{}, nil
	}
	// Кэшируем текущее состояние целиком как JSON алерта, best-effort.
	miss := make([]uint64, 0, len(ids))
	got := make(map[uint64]*models.Alert, len(ids))

	if s.cache != nil && s.currentTTL > 0 {
		for _, id := range ids {
			b, ok, err := s.cache.Get(ctx, currentKey(id))
			if err != nil || !ok {
				miss = append(miss, id)
				continue
			}
			var a models.Alert
			if json.Unmarshal(b, &a) != nil {
				miss = append(miss, id)
				continue
			}
			got[id] = &a
		}
	} else {
		miss = ids
	}

	if len(miss) > 0 {
		fromDB, err := s.repo.GetAlertsByIDs(ctx, miss)
		if err != nil {
			return nil, err
		}
		for _, a := range fromDB {
			got[a.ID] = a
			if s.cache != nil && s.currentTTL > 0 {
				b, _ := json.Marshal(a)
				_ = s.cache.Set(ctx, currentKey(a.ID), b, s.currentTTL)
			}
		}
	}

	// Собираем ответ в том же порядке, что ids.
	out := make([]*models.Alert, 0, len(ids))
	for _, id := range ids {
		if a, ok := got[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Service) GetAlert(ctx context.Context, id uint64) (*models.Alert, error) {
	as, err := s.GetAlertsByIDs(ctx, []uint64{id})
	if err != nil {
		return nil, err
	}
	if len(as) == 0 {
		return nil, ErrNotFound
	}
	return as[0], nil
}

// UpdateStatus — ручной pause/resume/expire. TRIGGERED выставляет только
// воркер, и из него алерт руками не возвращается.
func (s *Service) UpdateStatus(ctx context.Context, alertID uint64, status string) error {
	switch status {
	case models.AlertStatusActive, models.AlertStatusPaused, models.AlertStatusExpired:
	default:
		return errors.Errorf("invalid status %q", status)
	}

	a, err := s.GetAlert(ctx, alertID)
	if err != nil {
		return err
	}
	if a.Status == models.AlertStatusTriggered {
		return errors.New("triggered alert is final")
	}

	if err := s.repo.UpdateAlertStatus(ctx, alertID, status); err != nil {
		return err
	}
	if s.cache != nil {
		_ = s.cache.Del(ctx, currentKey(alertID))
	}
	return nil
}

func (s *Service) ListNotifications(ctx context.Context, alertID uint64, limit, offset int) ([]*models.NotificationRecord, error) {
	return s.repo.ListNotifications(ctx, alertID, limit, offset)
}

// ManualCheck ставит одну джобу в обход due-фильтра, с бюджетом в одну
// попытку — для ad-hoc проверок из операционного слоя.
func (s *Service) ManualCheck(ctx context.Context, alertID uint64) error {
	if alertID == 0 {
		return errors.New("alertId is required")
	}
	a, err := s.GetAlert(ctx, alertID)
	if err != nil {
		return err
	}
	j := queue.NewJob(a, 1, time.Now().UTC())
	if err := s.q.Enqueue(ctx, j); err != nil {
		return errors.Wrap(err, "enqueue manual check")
	}
	slog.Info("manual price check enqueued", "alert_id", alertID, "job_id", j.ID)
	return nil
}

// ApplyCheckedEvent обрабатывает alert.checked из kafka: статус в БД уже
// записал воркер, здесь только освежаем кэш текущего состояния.
func (s *Service) ApplyCheckedEvent(ctx context.Context, msg messages.AlertChecked) error {
	if msg.AlertID == 0 {
		return errors.New("alert_id is required")
	}
	if s.cache == nil || s.currentTTL <= 0 {
		return nil
	}
	as, err := s.repo.GetAlertsByIDs(ctx, []uint64{msg.AlertID})
	if err != nil {
		return err
	}
	if len(as) == 1 {
		b, _ := json.Marshal(as[0])
		_ = s.cache.Set(ctx, currentKey(msg.AlertID), b, s.currentTTL)
	}
	return nil
}

func currentKey(id uint64) string {
	return fmt.Sprintf("alert:%d:current", id)
}
