package delivery

import (
	"context"
	"sync"

	"coinalerts/internal/ledger"
	"coinalerts/internal/notify"
	"coinalerts/internal/storage"
)

// Shared fakes for the channel worker tests.

type fakeLedger struct {
	mu        sync.Mutex
	ops       []string
	outcomes  []ledger.Outcome
	triggered [][]int64
	evicted   []notify.Notification
	updated   []int64
}

func (f *fakeLedger) Record(_ context.Context, outcomes []ledger.Outcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "record")
	f.outcomes = append(f.outcomes, outcomes...)
	return nil
}

func (f *fakeLedger) UpdateStatus(_ context.Context, alertID int64, _ notify.Channel, _ storage.DeliveryStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "update")
	f.updated = append(f.updated, alertID)
	return nil
}

func (f *fakeLedger) MarkTriggered(_ context.Context, alertIDs []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "trigger")
	f.triggered = append(f.triggered, alertIDs)
	return nil
}

func (f *fakeLedger) EvictWatched(_ context.Context, notifications []notify.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "evict")
	f.evicted = append(f.evicted, notifications...)
}

type fakeContactSource struct {
	contacts map[int64]storage.UserContact
}

func (f *fakeContactSource) GetContacts(context.Context, []int64) (map[int64]storage.UserContact, error) {
	return f.contacts, nil
}

type fakeTemplateSource struct {
	tpl storage.Template
}

func (f *fakeTemplateSource) Get(context.Context, notify.Channel, string) (storage.Template, error) {
	return f.tpl, nil
}

type fakeContentLogs struct {
	mu   sync.Mutex
	logs []storage.ContentLog
}

func (f *fakeContentLogs) InsertContentLogs(_ context.Context, logs []storage.ContentLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, logs...)
	return nil
}
