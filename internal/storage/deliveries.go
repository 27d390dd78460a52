package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"coinalerts/internal/notify"
)

const (
	insertDeliverySQL = `INSERT INTO alert_deliveries (
        alert_id,
        channel,
        status,
        send_at,
        delivered_at
    ) VALUES (
        $1,$2,$3,$4,$5
    );`

	updateDeliveryStatusSQL = `UPDATE alert_deliveries
    SET status = $3,
        delivered_at = CASE WHEN $3 = 'DELIVERED' THEN now() ELSE delivered_at END
    WHERE alert_id = $1
      AND channel = $2
      AND status = 'PENDING';`

	listRecentDeliveriesSQL = `SELECT
        id, alert_id, channel, status, send_at, delivered_at, created_at
    FROM alert_deliveries
    ORDER BY created_at DESC
    LIMIT $1;`
)

// DeliveryStore defines the durable delivery ledger rows.
type DeliveryStore interface {
	InsertDeliveries(ctx context.Context, deliveries []Delivery) error
	UpdateDeliveryStatus(ctx context.Context, alertID int64, channel notify.Channel, status DeliveryStatus) (int64, error)
	ListRecentDeliveries(ctx context.Context, limit int) ([]Delivery, error)
}

// InsertDeliveries appends delivery attempt rows in one batched round trip.
func (s *Store) InsertDeliveries(ctx context.Context, deliveries []Delivery) error {
	if len(deliveries) == 0 {
		return nil
	}
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, d := range deliveries {
		batch.Queue(insertDeliverySQL, d.AlertID, string(d.Channel), string(d.Status), d.SendAt, d.DeliveredAt)
	}

	results := pool.SendBatch(ctx, batch)
	defer results.Close()

	for range deliveries {
		if _, execErr := results.Exec(); execErr != nil {
			return fmt.Errorf("insert deliveries: %w", execErr)
		}
	}
	return nil
}

// UpdateDeliveryStatus upgrades a PENDING outcome for (alert, channel) and
// returns how many rows matched. Zero means the callback was unmatched or stale.
func (s *Store) UpdateDeliveryStatus(ctx context.Context, alertID int64, channel notify.Channel, status DeliveryStatus) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	cmdTag, execErr := pool.Exec(ctx, updateDeliveryStatusSQL, alertID, string(channel), string(status))
	if execErr != nil {
		return 0, fmt.Errorf("update delivery status: %w", execErr)
	}
	return cmdTag.RowsAffected(), nil
}

// ListRecentDeliveries lists the most recent ledger rows.
func (s *Store) ListRecentDeliveries(ctx context.Context, limit int) ([]Delivery, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	rows, queryErr := pool.Query(ctx, listRecentDeliveriesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent deliveries: %w", queryErr)
	}
	defer rows.Close()

	deliveries := make([]Delivery, 0, limit)
	for rows.Next() {
		var (
			d       Delivery
			channel string
			status  string
		)
		if err := rows.Scan(&d.ID, &d.AlertID, &channel, &status, &d.SendAt, &d.DeliveredAt, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.Channel = notify.Channel(channel)
		d.Status = DeliveryStatus(status)
		deliveries = append(deliveries, d)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return deliveries, nil
}

var _ DeliveryStore = (*Store)(nil)
