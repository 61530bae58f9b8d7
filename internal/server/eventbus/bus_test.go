package eventbus

import (
	"testing"
	"time"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for event")
		return Event{}
	}
}

func TestPublish_DeliversToSubscriber(t *testing.T) {
	bus := NewInProcBus(4)

	ch, cancel := bus.Subscribe(TopicDataUpdated, Filter{})
	defer cancel()

	bus.Publish(TopicDataUpdated, Event{DataID: "tx-1", UserID: "alice"})

	e := receive(t, ch)
	if e.Topic != TopicDataUpdated || e.DataID != "tx-1" {
		t.Fatalf("unexpected event: %+v", e)
	}
	if e.At.IsZero() {
		t.Fatalf("publish must stamp the event time")
	}
}

func TestPublish_TopicIsolation(t *testing.T) {
	bus := NewInProcBus(4)

	ch, cancel := bus.Subscribe(TopicUsageTracked, Filter{})
	defer cancel()

	bus.Publish(TopicDataUpdated, Event{DataID: "tx-1"})

	select {
	case e := <-ch:
		t.Fatalf("unexpected delivery: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribe_FilterNarrowsDelivery(t *testing.T) {
	bus := NewInProcBus(4)

	ch, cancel := bus.Subscribe(TopicDataUpdated, Filter{DataType: "LOCATION"})
	defer cancel()

	bus.Publish(TopicDataUpdated, Event{DataID: "tx-1", DataType: "SENSOR"})
	bus.Publish(TopicDataUpdated, Event{DataID: "tx-2", DataType: "LOCATION"})

	e := receive(t, ch)
	if e.DataID != "tx-2" {
		t.Fatalf("filter leaked: %+v", e)
	}
}

func TestPublish_FullBufferDropsEvent(t *testing.T) {
	bus := NewInProcBus(1)

	ch, cancel := bus.Subscribe(TopicBalanceChanged, Filter{})
	defer cancel()

	bus.Publish(TopicBalanceChanged, Event{UserID: "u1"})
	bus.Publish(TopicBalanceChanged, Event{UserID: "u2"})

	e := receive(t, ch)
	if e.UserID != "u1" {
		t.Fatalf("unexpected first event: %+v", e)
	}
	select {
	case e := <-ch:
		t.Fatalf("second event should have been dropped, got %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCancel_ClosesChannelAndStopsDelivery(t *testing.T) {
	bus := NewInProcBus(4)

	ch, cancel := bus.Subscribe(TopicDataUpdated, Filter{})
	cancel()
	cancel() // second call must be a no-op

	if _, ok := <-ch; ok {
		t.Fatalf("channel must be closed after cancel")
	}

	// Publishing after cancel must not panic.
	bus.Publish(TopicDataUpdated, Event{DataID: "tx-1"})
}

func TestFilter_Matches(t *testing.T) {
	e := Event{DataID: "tx-1", DataType: "SENSOR", UserID: "alice"}

	cases := []struct {
		filter Filter
		want   bool
	}{
		{Filter{}, true},
		{Filter{DataID: "tx-1"}, true},
		{Filter{DataID: "tx-2"}, false},
		{Filter{DataType: "SENSOR", UserID: "alice"}, true},
		{Filter{DataType: "SENSOR", UserID: "bob"}, false},
	}
	for i, tc := range cases {
		if got := tc.filter.Matches(e); got != tc.want {
			t.Fatalf("case %d: got %v want %v", i, got, tc.want)
		}
	}
}
