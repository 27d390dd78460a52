package notify_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"coinalerts/internal/notify"
	"coinalerts/internal/queue"
)

type capturePublisher struct {
	published map[string][][]notify.Notification
	failTopic string
}

func newCapturePublisher() *capturePublisher {
	return &capturePublisher{published: make(map[string][][]notify.Notification)}
}

func (p *capturePublisher) Publish(_ context.Context, topic string, batch []notify.Notification) error {
	if topic == p.failTopic {
		return errors.New("queue unavailable")
	}
	p.published[topic] = append(p.published[topic], batch)
	return nil
}

func testBatch() []notify.Notification {
	return []notify.Notification{
		{AlertID: 1, UserID: 10, AssetID: "bitcoin", PushOn: true, SMSOn: true},
		{AlertID: 2, UserID: 11, AssetID: "bitcoin", PushOn: true},
		{AlertID: 3, UserID: 12, AssetID: "ethereum", PushOn: true, EmailOn: true},
	}
}

func TestRouteFansOutPerChannel(t *testing.T) {
	pub := newCapturePublisher()
	router := notify.NewRouter(pub, zerolog.Nop())

	if err := router.Route(context.Background(), testBatch()); err != nil {
		t.Fatalf("route: %v", err)
	}

	if got := pub.published[queue.TopicPush]; len(got) != 1 || len(got[0]) != 3 {
		t.Fatalf("push queue should receive the full batch, got %+v", got)
	}
	sms := pub.published[queue.TopicSMS]
	if len(sms) != 1 || len(sms[0]) != 1 || sms[0][0].AlertID != 1 {
		t.Fatalf("sms subset wrong: %+v", sms)
	}
	email := pub.published[queue.TopicEmail]
	if len(email) != 1 || len(email[0]) != 1 || email[0][0].AlertID != 3 {
		t.Fatalf("email subset wrong: %+v", email)
	}
}

func TestRouteSkipsEmptySubsets(t *testing.T) {
	pub := newCapturePublisher()
	router := notify.NewRouter(pub, zerolog.Nop())

	batch := []notify.Notification{{AlertID: 1, UserID: 10, PushOn: true}}
	if err := router.Route(context.Background(), batch); err != nil {
		t.Fatalf("route: %v", err)
	}

	if len(pub.published[queue.TopicSMS]) != 0 || len(pub.published[queue.TopicEmail]) != 0 {
		t.Fatal("empty subsets must not be published")
	}
	if len(pub.published[queue.TopicPush]) != 1 {
		t.Fatal("push batch missing")
	}
}

func TestRouteQueueFailureDoesNotBlockOthers(t *testing.T) {
	pub := newCapturePublisher()
	pub.failTopic = queue.TopicSMS
	router := notify.NewRouter(pub, zerolog.Nop())

	err := router.Route(context.Background(), testBatch())
	if err == nil {
		t.Fatal("expected the sms publish failure to surface")
	}
	if len(pub.published[queue.TopicPush]) != 1 || len(pub.published[queue.TopicEmail]) != 1 {
		t.Fatal("other queues should still be published")
	}
}

func TestRouteEmptyBatch(t *testing.T) {
	pub := newCapturePublisher()
	router := notify.NewRouter(pub, zerolog.Nop())

	if err := router.Route(context.Background(), nil); err != nil {
		t.Fatalf("empty batch should be a no-op: %v", err)
	}
	if len(pub.published) != 0 {
		t.Fatal("nothing should be published for an empty batch")
	}
}

func TestGroupHelpers(t *testing.T) {
	batch := testBatch()

	byUser := notify.GroupByUser(batch)
	if len(byUser) != 3 || len(byUser[10]) != 1 {
		t.Fatalf("group by user wrong: %+v", byUser)
	}

	byAsset := notify.GroupByAsset(batch)
	if len(byAsset["bitcoin"]) != 2 || len(byAsset["ethereum"]) != 1 {
		t.Fatalf("group by asset wrong: %+v", byAsset)
	}

	ids := notify.AlertIDs(append(batch, batch[0]))
	if len(ids) != 3 {
		t.Fatalf("alert ids should be distinct, got %v", ids)
	}
}
