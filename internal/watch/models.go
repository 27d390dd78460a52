package watch

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Condition is the closed set of price conditions an alert can watch.
type Condition string

const (
	ConditionAbove  Condition = "ABOVE"
	ConditionBelow  Condition = "BELOW"
	ConditionEquals Condition = "EQUALS"
)

// Valid reports whether the condition is a known member of the set.
func (c Condition) Valid() bool {
	switch c {
	case ConditionAbove, ConditionBelow, ConditionEquals:
		return true
	}
	return false
}

// Met evaluates the condition for a price against a threshold. Both sides are
// truncated toward zero at the threshold's own scale first, so a price of
// 100.009 never satisfies ABOVE 100.00 — only a move past 100.01 does, and a
// price sitting exactly on the threshold satisfies only EQUALS.
func (c Condition) Met(price, threshold decimal.Decimal) bool {
	scale := int32(0)
	if threshold.Exponent() < 0 {
		scale = -threshold.Exponent()
	}

	truncPrice := price.Truncate(scale)
	truncThreshold := threshold.Truncate(scale)

	switch c {
	case ConditionAbove:
		return truncPrice.GreaterThan(truncThreshold)
	case ConditionBelow:
		return truncPrice.LessThan(truncThreshold)
	case ConditionEquals:
		return truncPrice.Equal(truncThreshold)
	}
	return false
}

// WatchedAlert is the cached, evaluation-ready projection of an alert
// definition. Index entries are the single source of truth for "is this alert
// still active and what does it want"; the hot path never reads the durable
// alert store.
type WatchedAlert struct {
	AlertID   int64           `json:"alertId"`
	UserID    int64           `json:"userId"`
	AssetID   string          `json:"cryptoId"`
	Threshold decimal.Decimal `json:"thresholdValue"`
	Condition Condition       `json:"alertCondition"`
	PushOn    bool            `json:"notificationPush"`
	EmailOn   bool            `json:"notificationEmail"`
	SMSOn     bool            `json:"notificationSms"`
}

// Validate rejects entries that cannot be evaluated.
func (w WatchedAlert) Validate() error {
	if w.AlertID <= 0 {
		return fmt.Errorf("watched alert has invalid alert id %d", w.AlertID)
	}
	if w.AssetID == "" {
		return fmt.Errorf("watched alert %d has empty asset id", w.AlertID)
	}
	if !w.Condition.Valid() {
		return fmt.Errorf("watched alert %d has unknown condition %q", w.AlertID, w.Condition)
	}
	return nil
}
