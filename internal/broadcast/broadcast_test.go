package broadcast

import (
	"context"
	"errors"
	"testing"
)

func TestNoopPublisher_Publish(t *testing.T) {
	pub := &NoopPublisher{}
	if err := pub.Publish(context.Background(), TopicEventClosed, EventClosed{}); err != nil {
		t.Fatalf("NoopPublisher.Publish returned unexpected error: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("NoopPublisher.Close returned unexpected error: %v", err)
	}
}

func TestPublishersImplementPublisher(t *testing.T) {
	var _ Publisher = (*NoopPublisher)(nil)
	var _ Publisher = (*NATSPublisher)(nil)
	var _ Publisher = (*Recorder)(nil)
	var _ Publisher = Multi(nil)
}

func TestRecorderFiltersByTopic(t *testing.T) {
	rec := &Recorder{}
	ctx := context.Background()
	_ = rec.Publish(ctx, TopicActivityPurged, ActivityPurged{Tier: "gamma", Deleted: 3})
	_ = rec.Publish(ctx, TopicEventClosed, EventClosed{Title: "raid"})
	_ = rec.Publish(ctx, TopicActivityPurged, ActivityPurged{Tier: "beta", Deleted: 1})

	got := rec.Topic(TopicActivityPurged)
	if len(got) != 2 {
		t.Fatalf("purged events got=%d want=2", len(got))
	}
	if ev, ok := got[1].(ActivityPurged); !ok || ev.Tier != "beta" {
		t.Fatalf("unexpected second event: %#v", got[1])
	}
	if len(rec.Topic(TopicAwardCycleCompleted)) != 0 {
		t.Fatalf("no award events expected")
	}
}

func TestNewNATSPublisherUnreachable(t *testing.T) {
	if _, err := NewNATSPublisher("nats://127.0.0.1:1"); err == nil {
		t.Fatalf("expected connection error for unreachable server")
	}
}

type failingPublisher struct{ err error }

func (f failingPublisher) Publish(context.Context, string, any) error { return f.err }
func (f failingPublisher) Close() error                                { return f.err }

func TestMultiDeliversToAll(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	boom := errors.New("boom")
	m := Multi{a, failingPublisher{err: boom}, b}

	err := m.Publish(context.Background(), TopicEventClosed, EventClosed{Title: "Raid"})
	if !errors.Is(err, boom) {
		t.Fatalf("got=%v want=%v", err, boom)
	}
	if len(a.Topic(TopicEventClosed)) != 1 || len(b.Topic(TopicEventClosed)) != 1 {
		t.Fatalf("every publisher should receive the event")
	}
	if err := m.Close(); !errors.Is(err, boom) {
		t.Fatalf("Close got=%v want=%v", err, boom)
	}
	if err := (Multi{}).Publish(context.Background(), TopicEventClosed, nil); err != nil {
		t.Fatalf("empty Multi should not fail: %v", err)
	}
}
