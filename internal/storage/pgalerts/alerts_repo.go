package pgalerts

import (
	"context"
	"time"

	"github.com/BearBump/FareWatch/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const alertColumns = `
  id, origin, destination, depart_date, passengers,
  target_price, currency, email, webhook,
  status, last_checked_at, created_at, updated_at`

func (s *Storage) CreateAlerts(ctx context.Context, items []models.AlertCreateInput) ([]*models.Alert, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ids := make([]uint64, 0, len(items))
	for _, it := range items {
		currency := it.Currency
		if currency == "" {
			currency = "USD"
		}
		var id uint64
		err := tx.QueryRow(ctx, `
INSERT INTO price_alerts (
  origin, destination, depart_date, passengers,
  target_price, currency, email, webhook,
  status, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10)
RETURNING id
`, it.Origin, it.Destination, it.DepartDate.UTC(), it.Passengers,
			it.TargetPrice, currency, it.Email, it.Webhook,
			models.AlertStatusActive, now).Scan(&id)
		if err != nil {
			return nil, errors.Wrap(err, "insert alert")
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}

	return s.GetAlertsByIDs(ctx, ids)
}

func (s *Storage) GetAlertsByIDs(ctx context.Context, ids []uint64) ([]*models.Alert, error) {
	if len(ids) == 0 {
		return []*models.Alert{}, nil
	}

	rows, err := s.db.Query(ctx, `
SELECT`+alertColumns+`
FROM price_alerts
WHERE id = ANY($1)
`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "select alerts")
	}
	defer rows.Close()

	return scanAlerts(rows, len(ids))
}

// ListDueAlerts выбирает ACTIVE алерты с датой вылета в будущем и
// last_checked_at старше окна свежести (или вовсе пустым).
// Упорядочены по давности проверки, самые залежавшиеся — первыми.
func (s *Storage) ListDueAlerts(ctx context.Context, now time.Time, freshness time.Duration, limit int) ([]*models.Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	staleBefore := now.UTC().Add(-freshness)

	rows, err := s.db.Query(ctx, `
SELECT`+alertColumns+`
FROM price_alerts
WHERE status = $1
  AND depart_date >= $2
  AND (last_checked_at IS NULL OR last_checked_at <= $3)
ORDER BY last_checked_at ASC NULLS FIRST
LIMIT $4
`, models.AlertStatusActive, now.UTC(), staleBefore, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select due alerts")
	}
	defer rows.Close()

	return scanAlerts(rows, limit)
}

// UpdateAlertStatus — ручной pause/resume/expire. Возвращает ErrNoAlert,
// если алерта нет.
func (s *Storage) UpdateAlertStatus(ctx context.Context, alertID uint64, status string) error {
	tag, err := s.db.Exec(ctx, `
UPDATE price_alerts
SET status = $2, updated_at = now()
WHERE id = $1
`, alertID, status)
	if err != nil {
		return errors.Wrap(err, "update alert status")
	}
	if tag.RowsAffected() == 0 {
		return ErrNoAlert
	}
	return nil
}

func (s *Storage) MarkChecked(ctx context.Context, alertID uint64) error {
	_, err := s.db.Exec(ctx,
		`UPDATE price_alerts SET last_checked_at = now(), updated_at = now() WHERE id = $1`, alertID)
	return errors.Wrap(err, "mark checked")
}

func (s *Storage) MarkTriggered(ctx context.Context, alertID uint64) error {
	_, err := s.db.Exec(ctx, `
UPDATE price_alerts
SET status = $2, last_checked_at = now(), updated_at = now()
WHERE id = $1
`, alertID, models.AlertStatusTriggered)
	return errors.Wrap(err, "mark triggered")
}

func scanAlerts(rows pgx.Rows, sizeHint int) ([]*models.Alert, error) {
	out := make([]*models.Alert, 0, sizeHint)
	for rows.Next() {
		var a models.Alert
		var email, webhook *string
		var lastCheckedAt *time.Time
		if err := rows.Scan(
			&a.ID, &a.Origin, &a.Destination, &a.DepartDate, &a.Passengers,
			&a.TargetPrice, &a.Currency, &email, &webhook,
			&a.Status, &lastCheckedAt, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan alert")
		}
		a.Email = email
		a.Webhook = webhook
		a.LastCheckedAt = lastCheckedAt
		out = append(out, &a)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
