package alert

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"coinalerts/internal/errs"
	"coinalerts/internal/storage"
	"coinalerts/internal/watch"
)

// IndexWriter is the write side of the watch index kept consistent with the
// durable alert store on every mutation.
type IndexWriter interface {
	Put(ctx context.Context, alert watch.WatchedAlert) error
	Remove(ctx context.Context, assetID string, alertID int64) error
}

// Request carries the user-supplied alert definition fields.
type Request struct {
	AssetID   string
	Condition watch.Condition
	Threshold decimal.Decimal
	PushOn    bool
	EmailOn   bool
	SMSOn     bool
}

func (r Request) validate() error {
	if r.AssetID == "" {
		return fmt.Errorf("asset id is required")
	}
	if !r.Condition.Valid() {
		return fmt.Errorf("unknown condition %q", r.Condition)
	}
	if !r.Threshold.IsPositive() {
		return fmt.Errorf("threshold must be positive")
	}
	return nil
}

// Manager is the alert management surface consumed by the external CRUD layer.
// Every mutation keeps the watch index consistent with the durable store.
type Manager struct {
	store     storage.AlertStore
	contacts  storage.ContactStore
	index     IndexWriter
	freeLimit int
	logger    zerolog.Logger
}

// NewManager constructs the alert management surface.
func NewManager(store storage.AlertStore, contacts storage.ContactStore, index IndexWriter, freeLimit int, logger zerolog.Logger) *Manager {
	return &Manager{
		store:     store,
		contacts:  contacts,
		index:     index,
		freeLimit: freeLimit,
		logger:    logger.With().Str("component", "alert_manager").Logger(),
	}
}

// Create persists a new alert and registers it in the watch index.
func (m *Manager) Create(ctx context.Context, userID int64, req Request) (storage.Alert, error) {
	if err := req.validate(); err != nil {
		return storage.Alert{}, err
	}
	if err := m.checkUserLimit(ctx, userID); err != nil {
		return storage.Alert{}, err
	}
	if err := m.checkDuplicate(ctx, userID, req); err != nil {
		return storage.Alert{}, err
	}

	alert, err := m.store.InsertAlert(ctx, storage.Alert{
		UserID:    userID,
		AssetID:   req.AssetID,
		Condition: req.Condition,
		Threshold: req.Threshold,
		PushOn:    req.PushOn,
		EmailOn:   req.EmailOn,
		SMSOn:     req.SMSOn,
	})
	if err != nil {
		return storage.Alert{}, err
	}

	if err := m.index.Put(ctx, alert.Watched()); err != nil {
		m.logger.Error().Err(err).Int64("alert_id", alert.ID).Msg("failed to cache watched alert")
	}

	m.logger.Info().Int64("alert_id", alert.ID).Int64("user_id", userID).Str("asset_id", req.AssetID).Msg("alert created")
	return alert, nil
}

// Update overwrites an existing alert, re-homing its index entry if the
// watched asset changed.
func (m *Manager) Update(ctx context.Context, alertID, userID int64, req Request) error {
	if err := req.validate(); err != nil {
		return err
	}

	existing, err := m.ownedAlert(ctx, alertID, userID)
	if err != nil {
		return err
	}
	if err := m.checkDuplicate(ctx, userID, req); err != nil {
		return err
	}

	updated := existing
	updated.AssetID = req.AssetID
	updated.Condition = req.Condition
	updated.Threshold = req.Threshold
	updated.PushOn = req.PushOn
	updated.EmailOn = req.EmailOn
	updated.SMSOn = req.SMSOn

	if err := m.store.UpdateAlert(ctx, updated); err != nil {
		return err
	}

	if existing.AssetID != updated.AssetID {
		if err := m.index.Remove(ctx, existing.AssetID, alertID); err != nil {
			m.logger.Error().Err(err).Int64("alert_id", alertID).Msg("failed to evict stale watch entry")
		}
	}
	if err := m.index.Put(ctx, updated.Watched()); err != nil {
		m.logger.Error().Err(err).Int64("alert_id", alertID).Msg("failed to cache watched alert")
	}
	return nil
}

// Delete removes an alert and its watch entry.
func (m *Manager) Delete(ctx context.Context, alertID, userID int64) error {
	existing, err := m.ownedAlert(ctx, alertID, userID)
	if err != nil {
		return err
	}

	if err := m.store.DeleteAlert(ctx, alertID); err != nil {
		return err
	}
	if err := m.index.Remove(ctx, existing.AssetID, alertID); err != nil {
		m.logger.Error().Err(err).Int64("alert_id", alertID).Msg("failed to evict watch entry")
	}
	return nil
}

// ActiveAlerts pages a user's active alerts, optionally scoped to one asset.
func (m *Manager) ActiveAlerts(ctx context.Context, userID int64, assetID string, limit, offset int) ([]storage.Alert, error) {
	return m.store.ListActiveAlerts(ctx, userID, assetID, limit, offset)
}

// PastAlerts pages a user's triggered alerts.
func (m *Manager) PastAlerts(ctx context.Context, userID int64, assetID string, limit, offset int) ([]storage.Alert, error) {
	return m.store.ListTriggeredAlerts(ctx, userID, assetID, limit, offset)
}

func (m *Manager) ownedAlert(ctx context.Context, alertID, userID int64) (storage.Alert, error) {
	alert, err := m.store.GetAlert(ctx, alertID)
	if err != nil {
		return storage.Alert{}, err
	}
	if alert.UserID != userID {
		return storage.Alert{}, errs.ErrAccessDenied
	}
	return alert, nil
}

func (m *Manager) checkDuplicate(ctx context.Context, userID int64, req Request) error {
	exists, err := m.store.AlertExists(ctx, userID, req.AssetID, req.Condition, req.Threshold)
	if err != nil {
		return err
	}
	if exists {
		return errs.ErrDuplicateAlert
	}
	return nil
}

func (m *Manager) checkUserLimit(ctx context.Context, userID int64) error {
	contact, err := m.contacts.GetContact(ctx, userID)
	if err != nil {
		return err
	}
	// Premium subscribers have no cap.
	if contact.Premium && contact.Subscribed {
		return nil
	}

	active, err := m.store.CountActiveAlerts(ctx, userID)
	if err != nil {
		return err
	}
	if active >= m.freeLimit {
		return errs.ErrAlertLimit
	}
	return nil
}
