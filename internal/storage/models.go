package storage

import (
	"time"

	"github.com/shopspring/decimal"

	"coinalerts/internal/notify"
	"coinalerts/internal/watch"
)

// DeliveryStatus is the lifecycle of one delivery attempt.
type DeliveryStatus string

const (
	StatusPending   DeliveryStatus = "PENDING"
	StatusDelivered DeliveryStatus = "DELIVERED"
	StatusFailed    DeliveryStatus = "FAILED"
)

// Alert is the durable alert definition. TriggeredAt is the one-time,
// irreversible trigger marker: a nil TriggeredAt means the alert is active.
type Alert struct {
	ID          int64
	UserID      int64
	AssetID     string
	Condition   watch.Condition
	Threshold   decimal.Decimal
	PushOn      bool
	EmailOn     bool
	SMSOn       bool
	TriggeredAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Watched projects the durable alert into its evaluation-ready cache form.
func (a Alert) Watched() watch.WatchedAlert {
	return watch.WatchedAlert{
		AlertID:   a.ID,
		UserID:    a.UserID,
		AssetID:   a.AssetID,
		Threshold: a.Threshold,
		Condition: a.Condition,
		PushOn:    a.PushOn,
		EmailOn:   a.EmailOn,
		SMSOn:     a.SMSOn,
	}
}

// Delivery is one row of the delivery ledger: one attempt on one channel for
// one alert.
type Delivery struct {
	ID          int64
	AlertID     int64
	Channel     notify.Channel
	Status      DeliveryStatus
	SendAt      time.Time
	DeliveredAt *time.Time
	CreatedAt   time.Time
}

// ContentLog is the audit record of rendered channel content, persisted
// independently of delivery outcomes.
type ContentLog struct {
	ID          int64
	UserID      int64
	AlertID     *int64
	Channel     notify.Channel
	Content     string
	ProviderRef *string
	CreatedAt   time.Time
}

// Template is a channel-specific message template addressed by channel + code.
type Template struct {
	ID      int64
	Channel notify.Channel
	Code    string
	Subject string
	Content string
}

// UserContact is the contact/subscription projection the channel workers
// resolve per notification.
type UserContact struct {
	UserID      int64
	Name        string
	Email       string
	PhoneNumber string
	Subscribed  bool
	Premium     bool
}
