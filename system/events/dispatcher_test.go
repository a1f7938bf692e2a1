package events

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestDispatcher_Creation(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{
		QueueSize:   100,
		WorkerCount: 2,
	})

	if d == nil {
		t.Fatal("expected dispatcher, got nil")
	}

	stats := d.Stats()
	if stats.QueueCapacity != 100 {
		t.Errorf("expected queue capacity 100, got %d", stats.QueueCapacity)
	}
}

func TestDispatcher_RegisterHandler(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{})

	handler := &testEventHandler{
		topics:  []string{"chat.message.created"},
		sources: []string{"chat"},
	}

	d.RegisterHandler("test-handler", handler)

	stats := d.Stats()
	if stats.HandlersCount != 1 {
		t.Errorf("expected 1 handler, got %d", stats.HandlersCount)
	}
}

func TestDispatcher_UnregisterHandler(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{})

	handler := &testEventHandler{
		topics:  []string{"chat.message.created"},
		sources: []string{"chat"},
	}

	d.RegisterHandler("test-handler", handler)
	d.UnregisterHandler("test-handler")

	stats := d.Stats()
	if stats.HandlersCount != 0 {
		t.Errorf("expected 0 handlers, got %d", stats.HandlersCount)
	}
}

func TestDispatcher_DispatchSync(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{})

	received := false
	handler := &testEventHandler{
		topics:  []string{"chat.message.created"},
		sources: []string{},
		callback: func(ctx context.Context, event *Event) error {
			received = true
			return nil
		},
	}

	d.RegisterHandler("test-handler", handler)

	event := &Event{
		Topic:     "chat.message.created",
		Source:    "chat",
		Payload:   map[string]any{"room_id": "room-1"},
		Timestamp: time.Now(),
	}

	errs := d.DispatchSync(context.Background(), event)
	if len(errs) > 0 {
		t.Errorf("unexpected errors: %v", errs)
	}

	if !received {
		t.Error("expected handler to receive event")
	}
}

func TestDispatcher_StartStop(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{
		QueueSize:   10,
		WorkerCount: 2,
	})

	ctx := context.Background()
	if err := d.Start(ctx, 2); err != nil {
		t.Fatalf("failed to start: %v", err)
	}

	if err := d.Dispatch(&Event{Topic: "chat.message.created"}); err != nil {
		t.Errorf("dispatch failed while running: %v", err)
	}

	d.Stop()

	if err := d.Dispatch(&Event{Topic: "chat.message.created"}); err == nil {
		t.Error("expected error after stop")
	}
}

func TestDispatcher_AsyncProcessing(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{
		QueueSize:   100,
		WorkerCount: 2,
	})

	var mu sync.Mutex
	receivedCount := 0

	handler := &testEventHandler{
		topics:  []string{"sync.run.completed"},
		sources: []string{},
		callback: func(ctx context.Context, event *Event) error {
			mu.Lock()
			receivedCount++
			mu.Unlock()
			return nil
		},
	}

	d.RegisterHandler("test-handler", handler)

	ctx := context.Background()
	d.Start(ctx, 2)
	defer d.Stop()

	for i := 0; i < 10; i++ {
		d.Dispatch(&Event{
			Topic:   "sync.run.completed",
			Payload: map[string]any{"index": i},
		})
	}

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	count := receivedCount
	mu.Unlock()

	if count != 10 {
		t.Errorf("expected 10 events processed, got %d", count)
	}
}

func TestEventFilter_Match(t *testing.T) {
	tests := []struct {
		name     string
		filter   *EventFilter
		event    *Event
		expected bool
	}{
		{
			name:     "empty filter matches all",
			filter:   &EventFilter{},
			event:    &Event{Source: "chat", Topic: "Test"},
			expected: true,
		},
		{
			name:     "source match",
			filter:   &EventFilter{Sources: []string{"chat"}},
			event:    &Event{Source: "chat", Topic: "Test"},
			expected: true,
		},
		{
			name:     "source mismatch",
			filter:   &EventFilter{Sources: []string{"sync"}},
			event:    &Event{Source: "chat", Topic: "Test"},
			expected: false,
		},
		{
			name:     "topic match",
			filter:   &EventFilter{Topics: []string{"chat.message.created"}},
			event:    &Event{Source: "chat", Topic: "chat.message.created"},
			expected: true,
		},
		{
			name:     "topic mismatch",
			filter:   &EventFilter{Topics: []string{"chat.room.created"}},
			event:    &Event{Source: "chat", Topic: "chat.message.created"},
			expected: false,
		},
		{
			name:     "both match",
			filter:   &EventFilter{Sources: []string{"chat"}, Topics: []string{"chat.message.created"}},
			event:    &Event{Source: "chat", Topic: "chat.message.created"},
			expected: true,
		},
		{
			name:     "case insensitive source",
			filter:   &EventFilter{Sources: []string{"CHAT"}},
			event:    &Event{Source: "chat", Topic: "Test"},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.filter.Match(tt.event)
			if result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

// Test helper

type testEventHandler struct {
	topics   []string
	sources  []string
	callback func(ctx context.Context, event *Event) error
}

func (h *testEventHandler) SupportedTopics() []string {
	return h.topics
}

func (h *testEventHandler) SupportedSources() []string {
	return h.sources
}

func (h *testEventHandler) HandleEvent(ctx context.Context, event *Event) error {
	if h.callback != nil {
		return h.callback(ctx, event)
	}
	return nil
}
