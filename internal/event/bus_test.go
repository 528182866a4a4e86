package event

import (
	"sync"
	"testing"
)

func TestPublishDispatchesToSubscribers(t *testing.T) {
	bus := NewBus()

	var got []MetricScalarEvent
	bus.Subscribe(TypeMetricScalar, func(e Event) {
		got = append(got, e.(MetricScalarEvent))
	})

	bus.Publish(NewMetricScalarEvent("train_loss/loss", 0.5, 1))
	bus.Publish(NewMetricScalarEvent("train_loss/loss", 0.4, 2))

	if len(got) != 2 {
		t.Fatalf("received %d events, want 2", len(got))
	}
	if got[0].Value != 0.5 || got[0].Step != 1 {
		t.Errorf("first event = %+v", got[0])
	}
	if got[1].Tag != "train_loss/loss" {
		t.Errorf("Tag = %q", got[1].Tag)
	}
}

func TestPublishSkipsOtherTypes(t *testing.T) {
	bus := NewBus()

	calls := 0
	bus.Subscribe(TypeMetricArtifact, func(Event) { calls++ })

	bus.Publish(NewMetricScalarEvent("valid/loss", 0.1, 10))

	if calls != 0 {
		t.Errorf("artifact subscriber called %d times for a scalar event", calls)
	}
}

func TestSubscribeAll(t *testing.T) {
	bus := NewBus()

	var order []string
	bus.Subscribe(TypeRunStarted, func(Event) { order = append(order, "specific") })
	bus.SubscribeAll(func(Event) { order = append(order, "wildcard") })

	bus.Publish(NewRunStartedEvent("exp", 1, 100))

	if len(order) != 2 || order[0] != "specific" || order[1] != "wildcard" {
		t.Errorf("dispatch order = %v, want [specific wildcard]", order)
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus()

	calls := 0
	id := bus.Subscribe(TypeMetricScalar, func(Event) { calls++ })

	bus.Publish(NewMetricScalarEvent("train_loss/loss", 1, 0))
	if !bus.Unsubscribe(id) {
		t.Fatal("Unsubscribe should find the subscription")
	}
	bus.Publish(NewMetricScalarEvent("train_loss/loss", 1, 1))

	if calls != 1 {
		t.Errorf("handler called %d times, want 1", calls)
	}
	if bus.Unsubscribe(id) {
		t.Error("second Unsubscribe should return false")
	}
}

func TestPanickingHandlerDoesNotBlockOthers(t *testing.T) {
	bus := NewBus()

	bus.Subscribe(TypeMetricScalar, func(Event) { panic("observer bug") })

	called := false
	bus.Subscribe(TypeMetricScalar, func(Event) { called = true })

	bus.Publish(NewMetricScalarEvent("train_loss/loss", 0.5, 1))

	if !called {
		t.Error("second handler should run despite first handler panicking")
	}
}

func TestConcurrentPublish(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	count := 0
	bus.Subscribe(TypeMetricScalar, func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(step int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				bus.Publish(NewMetricScalarEvent("train_loss/loss", 0.1, step))
			}
		}(i)
	}
	wg.Wait()

	if count != 800 {
		t.Errorf("count = %d, want 800", count)
	}
}

func TestClear(t *testing.T) {
	bus := NewBus()
	bus.Subscribe(TypeMetricScalar, func(Event) {})
	bus.SubscribeAll(func(Event) {})

	if got := bus.SubscriptionCount(); got != 2 {
		t.Errorf("SubscriptionCount = %d, want 2", got)
	}

	bus.Clear()
	if got := bus.SubscriptionCount(); got != 0 {
		t.Errorf("SubscriptionCount after Clear = %d, want 0", got)
	}
}
