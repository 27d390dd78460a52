package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"coinalerts/internal/errs"
	"coinalerts/internal/watch"
)

const (
	insertAlertSQL = `INSERT INTO alerts (
        user_id,
        crypto_id,
        condition,
        threshold,
        notify_push,
        notify_email,
        notify_sms
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    RETURNING id, created_at, updated_at;`

	updateAlertSQL = `UPDATE alerts
    SET crypto_id    = $2,
        condition    = $3,
        threshold    = $4,
        notify_push  = $5,
        notify_email = $6,
        notify_sms   = $7,
        updated_at   = now()
    WHERE id = $1;`

	deleteAlertSQL = `DELETE FROM alerts WHERE id = $1;`

	alertColumns = `id, user_id, crypto_id, condition, threshold,
        notify_push, notify_email, notify_sms, triggered_at, created_at, updated_at`

	getAlertSQL = `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1;`

	getAlertsByIDsSQL = `SELECT ` + alertColumns + ` FROM alerts WHERE id = ANY($1);`

	countActiveAlertsSQL = `SELECT COUNT(*) FROM alerts
    WHERE user_id = $1 AND triggered_at IS NULL;`

	alertExistsSQL = `SELECT EXISTS (
        SELECT 1 FROM alerts
        WHERE user_id = $1
          AND crypto_id = $2
          AND condition = $3
          AND threshold = $4
          AND triggered_at IS NULL
    );`

	markTriggeredSQL = `UPDATE alerts
    SET triggered_at = $2
    WHERE id = ANY($1)
      AND triggered_at IS NULL;`

	listActiveAlertsSQL = `SELECT ` + alertColumns + ` FROM alerts
    WHERE user_id = $1
      AND triggered_at IS NULL
      AND ($2 = '' OR crypto_id = $2)
    ORDER BY created_at DESC
    LIMIT $3 OFFSET $4;`

	listTriggeredAlertsSQL = `SELECT ` + alertColumns + ` FROM alerts
    WHERE user_id = $1
      AND triggered_at IS NOT NULL
      AND ($2 = '' OR crypto_id = $2)
    ORDER BY triggered_at DESC
    LIMIT $3 OFFSET $4;`
)

// AlertStore defines durable alert persistence used by the management surface
// and delivery-recording batch resolution.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert Alert) (Alert, error)
	UpdateAlert(ctx context.Context, alert Alert) error
	DeleteAlert(ctx context.Context, alertID int64) error
	GetAlert(ctx context.Context, alertID int64) (Alert, error)
	GetAlerts(ctx context.Context, alertIDs []int64) ([]Alert, error)
	CountActiveAlerts(ctx context.Context, userID int64) (int, error)
	AlertExists(ctx context.Context, userID int64, assetID string, condition watch.Condition, threshold decimal.Decimal) (bool, error)
	MarkTriggered(ctx context.Context, alertIDs []int64, at time.Time) (int64, error)
	ListActiveAlerts(ctx context.Context, userID int64, assetID string, limit, offset int) ([]Alert, error)
	ListTriggeredAlerts(ctx context.Context, userID int64, assetID string, limit, offset int) ([]Alert, error)
}

// InsertAlert persists a new alert definition.
func (s *Store) InsertAlert(ctx context.Context, alert Alert) (Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return Alert{}, err
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.UserID,
		alert.AssetID,
		string(alert.Condition),
		alert.Threshold.String(),
		alert.PushOn,
		alert.EmailOn,
		alert.SMSOn,
	)
	if err := row.Scan(&alert.ID, &alert.CreatedAt, &alert.UpdatedAt); err != nil {
		return Alert{}, fmt.Errorf("insert alert: %w", err)
	}
	return alert, nil
}

// UpdateAlert overwrites the mutable fields of an alert definition.
func (s *Store) UpdateAlert(ctx context.Context, alert Alert) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	cmdTag, execErr := pool.Exec(ctx, updateAlertSQL,
		alert.ID,
		alert.AssetID,
		string(alert.Condition),
		alert.Threshold.String(),
		alert.PushOn,
		alert.EmailOn,
		alert.SMSOn,
	)
	if execErr != nil {
		return fmt.Errorf("update alert: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return errs.NotFound("alert %d", alert.ID)
	}
	return nil
}

// DeleteAlert removes an alert definition.
func (s *Store) DeleteAlert(ctx context.Context, alertID int64) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, deleteAlertSQL, alertID)
	if execErr != nil {
		return fmt.Errorf("delete alert: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return errs.NotFound("alert %d", alertID)
	}
	return nil
}

// GetAlert fetches one alert by id.
func (s *Store) GetAlert(ctx context.Context, alertID int64) (Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return Alert{}, err
	}

	alert, scanErr := scanAlert(pool.QueryRow(ctx, getAlertSQL, alertID))
	if errors.Is(scanErr, pgx.ErrNoRows) {
		return Alert{}, errs.NotFound("alert %d", alertID)
	}
	if scanErr != nil {
		return Alert{}, fmt.Errorf("get alert: %w", scanErr)
	}
	return alert, nil
}

// GetAlerts fetches a batch of alerts by ids in one query.
func (s *Store) GetAlerts(ctx context.Context, alertIDs []int64) ([]Alert, error) {
	if len(alertIDs) == 0 {
		return nil, nil
	}
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, getAlertsByIDsSQL, alertIDs)
	if queryErr != nil {
		return nil, fmt.Errorf("get alerts by ids: %w", queryErr)
	}
	defer rows.Close()

	return collectAlerts(rows)
}

// CountActiveAlerts counts un-triggered alerts for one user.
func (s *Store) CountActiveAlerts(ctx context.Context, userID int64) (int, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int
	if scanErr := pool.QueryRow(ctx, countActiveAlertsSQL, userID).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count active alerts: %w", scanErr)
	}
	return count, nil
}

// AlertExists reports whether an identical active condition already exists.
func (s *Store) AlertExists(ctx context.Context, userID int64, assetID string, condition watch.Condition, threshold decimal.Decimal) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}
	var exists bool
	if scanErr := pool.QueryRow(ctx, alertExistsSQL, userID, assetID, string(condition), threshold.String()).Scan(&exists); scanErr != nil {
		return false, fmt.Errorf("alert exists: %w", scanErr)
	}
	return exists, nil
}

// MarkTriggered flips the given alerts to triggered, skipping already-triggered
// ids, and returns how many rows actually transitioned. Re-invoking on an
// already-triggered id is a no-op.
func (s *Store) MarkTriggered(ctx context.Context, alertIDs []int64, at time.Time) (int64, error) {
	if len(alertIDs) == 0 {
		return 0, nil
	}
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	cmdTag, execErr := pool.Exec(ctx, markTriggeredSQL, alertIDs, at)
	if execErr != nil {
		return 0, fmt.Errorf("mark alerts triggered: %w", execErr)
	}
	return cmdTag.RowsAffected(), nil
}

// ListActiveAlerts pages through a user's active alerts, optionally scoped to
// one asset.
func (s *Store) ListActiveAlerts(ctx context.Context, userID int64, assetID string, limit, offset int) ([]Alert, error) {
	return s.listAlerts(ctx, listActiveAlertsSQL, userID, assetID, limit, offset)
}

// ListTriggeredAlerts pages through a user's past (triggered) alerts.
func (s *Store) ListTriggeredAlerts(ctx context.Context, userID int64, assetID string, limit, offset int) ([]Alert, error) {
	return s.listAlerts(ctx, listTriggeredAlertsSQL, userID, assetID, limit, offset)
}

func (s *Store) listAlerts(ctx context.Context, sql string, userID int64, assetID string, limit, offset int) ([]Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	rows, queryErr := pool.Query(ctx, sql, userID, assetID, limit, offset)
	if queryErr != nil {
		return nil, fmt.Errorf("list alerts: %w", queryErr)
	}
	defer rows.Close()

	return collectAlerts(rows)
}

func collectAlerts(rows pgx.Rows) ([]Alert, error) {
	alerts := make([]Alert, 0)
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

func scanAlert(row pgx.Row) (Alert, error) {
	var (
		alert        Alert
		condition    string
		thresholdStr string
	)
	if err := row.Scan(
		&alert.ID,
		&alert.UserID,
		&alert.AssetID,
		&condition,
		&thresholdStr,
		&alert.PushOn,
		&alert.EmailOn,
		&alert.SMSOn,
		&alert.TriggeredAt,
		&alert.CreatedAt,
		&alert.UpdatedAt,
	); err != nil {
		return Alert{}, err
	}

	threshold, err := decimal.NewFromString(thresholdStr)
	if err != nil {
		return Alert{}, fmt.Errorf("parse threshold: %w", err)
	}
	alert.Condition = watch.Condition(condition)
	alert.Threshold = threshold
	return alert, nil
}

var _ AlertStore = (*Store)(nil)
