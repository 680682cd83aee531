package events

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	ch := bus.Subscribe(TopicTask, 10)

	bus.Publish(TopicTask, TaskStartedEvent{ID: "task-1", Title: "Fetch news", Mode: "immediate", Timestamp: time.Now()})

	select {
	case received := <-ch:
		if received.TaskID() != "task-1" {
			t.Errorf("expected task ID 'task-1', got '%s'", received.TaskID())
		}
		if received.EventType() != EventTypeTaskStarted {
			t.Errorf("expected event type '%s', got '%s'", EventTypeTaskStarted, received.EventType())
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
}

func TestIndependentListeners(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	retry := bus.Subscribe(TopicTask, 10)
	metrics := bus.Subscribe(TopicTask, 10)

	bus.Publish(TopicTask, TaskFailedEvent{ID: "task-2", Err: errors.New("boom"), Timestamp: time.Now()})

	for i, ch := range []<-chan Event{retry, metrics} {
		select {
		case received := <-ch:
			failed, ok := received.(TaskFailedEvent)
			if !ok {
				t.Fatalf("listener %d: expected TaskFailedEvent, got %T", i+1, received)
			}
			if failed.Err == nil || failed.Err.Error() != "boom" {
				t.Errorf("listener %d: expected error 'boom', got %v", i+1, failed.Err)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("listener %d: timeout waiting for event", i+1)
		}
	}
}

func TestNonBlockingSend(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	ch := bus.Subscribe(TopicTask, 1)

	done := make(chan bool)
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(TopicTask, TaskQueuedEvent{ID: fmt.Sprintf("task-%d", i), Timestamp: time.Now()})
		}
		done <- true
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("publisher blocked (expected non-blocking behavior)")
	}

	select {
	case received := <-ch:
		if received.TaskID() != "task-0" {
			t.Errorf("expected first event to be kept, got %s", received.TaskID())
		}
	default:
		t.Error("expected at least one event in buffer")
	}
}

func TestCloseSignalsSubscribers(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe(TopicChoice, 10)
	all := bus.SubscribeAll(10)

	bus.Close()
	bus.Close()

	for range ch {
		t.Error("unexpected event on closed topic channel")
	}
	for range all {
		t.Error("unexpected event on closed all channel")
	}
}

func TestSubscribeAfterCloseReturnsClosedChannel(t *testing.T) {
	bus := NewEventBus()
	bus.Close()

	ch := bus.Subscribe(TopicTask, 1)
	if _, ok := <-ch; ok {
		t.Error("expected closed channel")
	}
}

func TestPublishAfterClose(t *testing.T) {
	bus := NewEventBus()
	bus.Close()

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("publishing after close caused panic: %v", r)
		}
	}()
	bus.Publish(TopicTask, TaskStartedEvent{ID: "task-1"})
}

func TestTopicIsolation(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	taskCh := bus.Subscribe(TopicTask, 10)
	choiceCh := bus.Subscribe(TopicChoice, 10)

	bus.Publish(TopicTask, TaskCompletedEvent{ID: "task-1", Result: "ok", Timestamp: time.Now()})
	bus.Publish(TopicChoice, ChoiceOpenedEvent{ChoiceID: "c1", Kind: "oversplit", Timestamp: time.Now()})

	select {
	case received := <-taskCh:
		if received.EventType() != EventTypeTaskCompleted {
			t.Errorf("task channel: expected task event, got %s", received.EventType())
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("task channel: timeout waiting for event")
	}

	select {
	case received := <-choiceCh:
		if received.EventType() != EventTypeChoiceOpened {
			t.Errorf("choice channel: expected choice event, got %s", received.EventType())
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("choice channel: timeout waiting for event")
	}

	select {
	case <-taskCh:
		t.Error("task channel received unexpected event")
	case <-choiceCh:
		t.Error("choice channel received unexpected event")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestSubscribeAll(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	allCh := bus.SubscribeAll(20)

	bus.Publish(TopicTask, TaskCancelledEvent{ID: "child", ParentID: "parent", Timestamp: time.Now()})
	bus.Publish(TopicScheduler, SchedulerProgressEvent{Total: 3, Queued: 1, Running: 1, Completed: 1, Timestamp: time.Now()})
	bus.Publish(TopicConversation, MessageEvent{ID: "m1", Role: "assistant", Content: "hi", Timestamp: time.Now()})

	receivedTypes := make(map[string]bool)
	for i := 0; i < 3; i++ {
		select {
		case received := <-allCh:
			receivedTypes[received.EventType()] = true
		case <-time.After(100 * time.Millisecond):
			t.Fatal("timeout waiting for event")
		}
	}

	for _, want := range []string{EventTypeTaskCancelled, EventTypeSchedulerProgress, EventTypeMessage} {
		if !receivedTypes[want] {
			t.Errorf("SubscribeAll did not receive %s", want)
		}
	}
}

func TestDiscardPublisher(t *testing.T) {
	Discard.Publish(TopicTask, TaskStartedEvent{ID: "x"})
}

func TestUnsubscribe(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	taskCh := bus.Subscribe(TopicTask, 10)
	allCh := bus.SubscribeAll(10)

	bus.Unsubscribe(taskCh)
	bus.Unsubscribe(allCh)
	bus.Unsubscribe(taskCh)

	if _, ok := <-taskCh; ok {
		t.Error("expected topic channel to be closed")
	}
	if _, ok := <-allCh; ok {
		t.Error("expected all-topics channel to be closed")
	}

	// Publishing after unsubscribe must not panic on a closed channel.
	bus.Publish(TopicTask, TaskStartedEvent{ID: "task-1", Timestamp: time.Now()})
}
