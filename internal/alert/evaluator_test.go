package alert

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"coinalerts/internal/market"
	"coinalerts/internal/watch"
)

type fakeLookup struct {
	buckets map[string][]watch.WatchedAlert
	err     error
	calls   int
}

func (f *fakeLookup) Lookup(_ context.Context, assetIDs []string) (map[string][]watch.WatchedAlert, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.buckets, nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestEvaluateEmitsOnlySatisfiedAlerts(t *testing.T) {
	lookup := &fakeLookup{buckets: map[string][]watch.WatchedAlert{
		"bitcoin": {
			{AlertID: 1, UserID: 10, AssetID: "bitcoin", Condition: watch.ConditionAbove, Threshold: dec("50000"), PushOn: true, SMSOn: true},
			{AlertID: 2, UserID: 11, AssetID: "bitcoin", Condition: watch.ConditionBelow, Threshold: dec("50000")},
		},
		"ethereum": {
			{AlertID: 3, UserID: 10, AssetID: "ethereum", Condition: watch.ConditionEquals, Threshold: dec("3000")},
		},
	}}
	eval := NewEvaluator(lookup, zerolog.Nop())

	updated := []market.AssetLite{
		{ID: "bitcoin", Name: "Bitcoin", CurrentPrice: dec("50001")},
		{ID: "ethereum", Name: "Ethereum", CurrentPrice: dec("3000.5")},
	}

	notifications, err := eval.Evaluate(context.Background(), updated)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(notifications) != 2 {
		t.Fatalf("notifications = %d, want 2", len(notifications))
	}
	if lookup.calls != 1 {
		t.Fatalf("lookup calls = %d, want a single batched round trip", lookup.calls)
	}

	byAlert := make(map[int64]bool, len(notifications))
	for _, n := range notifications {
		byAlert[n.AlertID] = true
	}
	if !byAlert[1] || !byAlert[3] || byAlert[2] {
		t.Fatalf("wrong alerts satisfied: %+v", byAlert)
	}
}

func TestEvaluateCarriesAssetContext(t *testing.T) {
	lookup := &fakeLookup{buckets: map[string][]watch.WatchedAlert{
		"bitcoin": {
			{AlertID: 1, UserID: 10, AssetID: "bitcoin", Condition: watch.ConditionAbove, Threshold: dec("100"), SMSOn: true},
		},
	}}
	eval := NewEvaluator(lookup, zerolog.Nop())

	notifications, err := eval.Evaluate(context.Background(), []market.AssetLite{
		{ID: "bitcoin", Name: "Bitcoin", Image: "https://img/btc.png", CurrentPrice: dec("101")},
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(notifications) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notifications))
	}

	n := notifications[0]
	if n.AssetName != "Bitcoin" || n.AssetImage != "https://img/btc.png" {
		t.Fatalf("asset context missing: %+v", n)
	}
	if !n.ObservedPrice.Equal(dec("101")) {
		t.Fatalf("observed price = %s", n.ObservedPrice)
	}
	if !n.SMSOn || n.PushOn {
		t.Fatalf("channel flags not carried: %+v", n)
	}
}

func TestEvaluateEmptyInput(t *testing.T) {
	lookup := &fakeLookup{}
	eval := NewEvaluator(lookup, zerolog.Nop())

	notifications, err := eval.Evaluate(context.Background(), nil)
	if err != nil || notifications != nil {
		t.Fatalf("empty input should be a no-op, got %v, %v", notifications, err)
	}
	if lookup.calls != 0 {
		t.Fatal("empty input should not hit the index")
	}
}

func TestEvaluateLookupFailure(t *testing.T) {
	lookup := &fakeLookup{err: errors.New("redis down")}
	eval := NewEvaluator(lookup, zerolog.Nop())

	if _, err := eval.Evaluate(context.Background(), []market.AssetLite{{ID: "bitcoin"}}); err == nil {
		t.Fatal("expected lookup error to surface")
	}
}
