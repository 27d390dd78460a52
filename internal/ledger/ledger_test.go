package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"coinalerts/internal/notify"
	"coinalerts/internal/storage"
)

type fakeResolver struct {
	known     map[int64]storage.Alert
	triggered [][]int64
}

func (f *fakeResolver) GetAlerts(_ context.Context, alertIDs []int64) ([]storage.Alert, error) {
	var out []storage.Alert
	for _, id := range alertIDs {
		if alert, ok := f.known[id]; ok {
			out = append(out, alert)
		}
	}
	return out, nil
}

func (f *fakeResolver) MarkTriggered(_ context.Context, alertIDs []int64, _ time.Time) (int64, error) {
	f.triggered = append(f.triggered, alertIDs)
	var n int64
	for _, id := range alertIDs {
		if _, ok := f.known[id]; ok {
			n++
		}
	}
	return n, nil
}

type fakeDeliveries struct {
	inserted []storage.Delivery
	updated  []struct {
		alertID int64
		channel notify.Channel
		status  storage.DeliveryStatus
	}
	matchRows int64
}

func (f *fakeDeliveries) InsertDeliveries(_ context.Context, deliveries []storage.Delivery) error {
	f.inserted = append(f.inserted, deliveries...)
	return nil
}

func (f *fakeDeliveries) UpdateDeliveryStatus(_ context.Context, alertID int64, channel notify.Channel, status storage.DeliveryStatus) (int64, error) {
	f.updated = append(f.updated, struct {
		alertID int64
		channel notify.Channel
		status  storage.DeliveryStatus
	}{alertID, channel, status})
	return f.matchRows, nil
}

func (f *fakeDeliveries) ListRecentDeliveries(context.Context, int) ([]storage.Delivery, error) {
	return nil, nil
}

type fakeEvicter struct {
	evicted map[string][]int64
}

func (f *fakeEvicter) RemoveAll(_ context.Context, assetID string, alertIDs []int64) error {
	if f.evicted == nil {
		f.evicted = make(map[string][]int64)
	}
	f.evicted[assetID] = append(f.evicted[assetID], alertIDs...)
	return nil
}

func newTestLedger(known ...int64) (*Ledger, *fakeResolver, *fakeDeliveries, *fakeEvicter) {
	resolver := &fakeResolver{known: make(map[int64]storage.Alert)}
	for _, id := range known {
		resolver.known[id] = storage.Alert{ID: id}
	}
	deliveries := &fakeDeliveries{matchRows: 1}
	evicter := &fakeEvicter{}
	return New(resolver, deliveries, evicter, zerolog.Nop()), resolver, deliveries, evicter
}

func TestRecordSkipsUnknownAlerts(t *testing.T) {
	ldg, _, deliveries, _ := newTestLedger(1, 2)
	now := time.Now()

	err := ldg.Record(context.Background(), []Outcome{
		{AlertID: 1, Channel: notify.ChannelPush, Status: storage.StatusDelivered, SendAt: now},
		{AlertID: 99, Channel: notify.ChannelPush, Status: storage.StatusDelivered, SendAt: now},
		{AlertID: 2, Channel: notify.ChannelSMS, Status: storage.StatusPending, SendAt: now},
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	if len(deliveries.inserted) != 2 {
		t.Fatalf("inserted = %d rows, want 2", len(deliveries.inserted))
	}
	for _, row := range deliveries.inserted {
		if row.AlertID == 99 {
			t.Fatal("unknown alert should be skipped")
		}
	}
}

func TestRecordSetsDeliveredAt(t *testing.T) {
	ldg, _, deliveries, _ := newTestLedger(1, 2)
	now := time.Now()

	err := ldg.Record(context.Background(), []Outcome{
		{AlertID: 1, Channel: notify.ChannelPush, Status: storage.StatusDelivered, SendAt: now},
		{AlertID: 2, Channel: notify.ChannelSMS, Status: storage.StatusPending, SendAt: now},
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	if deliveries.inserted[0].DeliveredAt == nil {
		t.Fatal("delivered row should carry delivered_at")
	}
	if deliveries.inserted[1].DeliveredAt != nil {
		t.Fatal("pending row must not carry delivered_at")
	}
}

func TestUpdateStatusUnmatchedIsDropped(t *testing.T) {
	ldg, _, deliveries, _ := newTestLedger()
	deliveries.matchRows = 0

	if err := ldg.UpdateStatus(context.Background(), 42, notify.ChannelSMS, storage.StatusDelivered); err != nil {
		t.Fatalf("unmatched callback must not error: %v", err)
	}
	if len(deliveries.updated) != 1 {
		t.Fatal("update should still be attempted")
	}
}

func TestMarkTriggeredPassesThrough(t *testing.T) {
	ldg, resolver, _, _ := newTestLedger(1)

	if err := ldg.MarkTriggered(context.Background(), []int64{1, 2}); err != nil {
		t.Fatalf("mark triggered: %v", err)
	}
	if len(resolver.triggered) != 1 || len(resolver.triggered[0]) != 2 {
		t.Fatalf("triggered = %+v", resolver.triggered)
	}
}

func TestEvictWatchedGroupsByAsset(t *testing.T) {
	ldg, _, _, evicter := newTestLedger()

	ldg.EvictWatched(context.Background(), []notify.Notification{
		{AlertID: 1, AssetID: "bitcoin"},
		{AlertID: 2, AssetID: "bitcoin"},
		{AlertID: 3, AssetID: "ethereum"},
	})

	if len(evicter.evicted["bitcoin"]) != 2 || len(evicter.evicted["ethereum"]) != 1 {
		t.Fatalf("evicted = %+v", evicter.evicted)
	}
}
