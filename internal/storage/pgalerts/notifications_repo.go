package pgalerts

import (
	"context"

	"github.com/BearBump/FareWatch/internal/models"
	"github.com/pkg/errors"
)

// AppendNotificationRecord — append-only история срабатываний.
func (s *Storage) AppendNotificationRecord(ctx context.Context, alertID uint64, price float64, message string) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO alert_notifications (alert_id, current_price, message, sent_at)
VALUES ($1, $2, $3, now())
`, alertID, price, message)
	return errors.Wrap(err, "insert notification record")
}

func (s *Storage) ListNotifications(ctx context.Context, alertID uint64, limit, offset int) ([]*models.NotificationRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT id, alert_id, current_price, message, sent_at
FROM alert_notifications
WHERE alert_id = $1
ORDER BY sent_at DESC
LIMIT $2 OFFSET $3
`, alertID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select notifications")
	}
	defer rows.Close()

	var out []*models.NotificationRecord
	for rows.Next() {
		var n models.NotificationRecord
		if err := rows.Scan(&n.ID, &n.AlertID, &n.CurrentPrice, &n.Message, &n.SentAt); err != nil {
			return nil, errors.Wrap(err, "scan notification")
		}
		out = append(out, &n)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
