package notify

import (
	"github.com/shopspring/decimal"

	"coinalerts/internal/market"
	"coinalerts/internal/watch"
)

// Channel is a delivery mechanism for evaluated notifications.
type Channel string

const (
	ChannelPush  Channel = "PUSH"
	ChannelSMS   Channel = "SMS"
	ChannelEmail Channel = "EMAIL"
)

// Notification is one evaluated alert paired with the market observation that
// satisfied it. Ephemeral: produced by the evaluator, consumed by channel
// workers, never persisted directly.
type Notification struct {
	AlertID       int64           `json:"alertId"`
	UserID        int64           `json:"userId"`
	AssetID       string          `json:"cryptoId"`
	AssetName     string          `json:"cryptoName"`
	AssetImage    string          `json:"cryptoImage"`
	Threshold     decimal.Decimal `json:"thresholdValue"`
	Condition     watch.Condition `json:"alertCondition"`
	ObservedPrice decimal.Decimal `json:"currentPrice"`
	PushOn        bool            `json:"pushSubscribed"`
	SMSOn         bool            `json:"smsSubscribed"`
	EmailOn       bool            `json:"emailSubscribed"`
}

// FromWatched builds a notification from a satisfied watch entry and the asset
// observation that satisfied it.
func FromWatched(alert watch.WatchedAlert, asset market.AssetLite) Notification {
	return Notification{
		AlertID:       alert.AlertID,
		UserID:        alert.UserID,
		AssetID:       asset.ID,
		AssetName:     asset.Name,
		AssetImage:    asset.Image,
		Threshold:     alert.Threshold,
		Condition:     alert.Condition,
		ObservedPrice: asset.CurrentPrice,
		PushOn:        alert.PushOn,
		SMSOn:         alert.SMSOn,
		EmailOn:       alert.EmailOn,
	}
}

// GroupByUser buckets notifications by owning user id.
func GroupByUser(notifications []Notification) map[int64][]Notification {
	grouped := make(map[int64][]Notification)
	for _, n := range notifications {
		grouped[n.UserID] = append(grouped[n.UserID], n)
	}
	return grouped
}

// GroupByAsset buckets alert ids by asset id, for batched index eviction.
func GroupByAsset(notifications []Notification) map[string][]int64 {
	grouped := make(map[string][]int64)
	for _, n := range notifications {
		grouped[n.AssetID] = append(grouped[n.AssetID], n.AlertID)
	}
	return grouped
}

// AlertIDs returns the distinct alert ids in a batch.
func AlertIDs(notifications []Notification) []int64 {
	seen := make(map[int64]struct{}, len(notifications))
	ids := make([]int64, 0, len(notifications))
	for _, n := range notifications {
		if _, ok := seen[n.AlertID]; ok {
			continue
		}
		seen[n.AlertID] = struct{}{}
		ids = append(ids, n.AlertID)
	}
	return ids
}
