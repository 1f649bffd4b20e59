package eventbus_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bioinfoflow/bioinfoflow/infrastructure/eventbus"
)

func TestBus_DeliversToSubscriber(t *testing.T) {
	bus := eventbus.New()

	var mutex sync.Mutex
	var received eventbus.Event
	done := make(chan struct{})

	bus.Subscribe(eventbus.EventStepCompleted, func(e eventbus.Event) error {
		mutex.Lock()
		received = e
		mutex.Unlock()
		close(done)
		return nil
	})

	bus.Publish(context.Background(), eventbus.Event{
		Type:     eventbus.EventStepCompleted,
		RunID:    "run-1",
		StepName: "align",
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}

	mutex.Lock()
	defer mutex.Unlock()
	assert.Equal(t, "run-1", received.RunID)
	assert.Equal(t, "align", received.StepName)
	assert.False(t, received.Timestamp.IsZero())
}

func TestBus_UnrelatedEventTypeNotDelivered(t *testing.T) {
	bus := eventbus.New()

	called := false
	bus.Subscribe(eventbus.EventStepFailed, func(e eventbus.Event) error {
		called = true
		return nil
	})

	bus.Publish(context.Background(), eventbus.Event{Type: eventbus.EventStepCompleted})
	time.Sleep(50 * time.Millisecond)

	assert.False(t, called)
}

func TestBus_MultipleHandlersAllRun(t *testing.T) {
	bus := eventbus.New()

	var count int32
	var mutex sync.Mutex
	wg := sync.WaitGroup{}
	wg.Add(2)

	for i := 0; i < 2; i++ {
		bus.Subscribe(eventbus.EventRunStarted, func(e eventbus.Event) error {
			mutex.Lock()
			count++
			mutex.Unlock()
			wg.Done()
			return nil
		})
	}

	bus.Publish(context.Background(), eventbus.Event{Type: eventbus.EventRunStarted})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("not all handlers ran")
	}

	mutex.Lock()
	defer mutex.Unlock()
	require.Equal(t, int32(2), count)
}
