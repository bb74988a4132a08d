package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/garyjia/travel-approval/internal/domain/event"
)

// mockLogger implements Logger for testing
type mockLogger struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, msg)
}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

func (m *mockLogger) ErrorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.errors)
}

func (m *mockLogger) HasInfo(msg string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, info := range m.infos {
		if info == msg {
			return true
		}
	}
	return false
}

func newStatusChanged() *event.Event {
	return event.NewEvent(event.TypeStatusChanged, 1, "TO-2026-0001", map[string]interface{}{"new_status": "pending_hr"})
}

func TestSubscribe(t *testing.T) {
	t.Run("auto-generates a name when empty", func(t *testing.T) {
		d := NewDispatcher()
		d.Subscribe(event.TypeStatusChanged, "", func(ctx context.Context, evt *event.Event) error { return nil })

		handlers := d.ListHandlers(event.TypeStatusChanged)
		if len(handlers) != 1 || handlers[0].Name != "handler-0" {
			t.Fatalf("unexpected handlers: %+v", handlers)
		}
		if handlers[0].Handler != nil {
			t.Error("ListHandlers should not expose handler functions")
		}
	})

	t.Run("logs registration", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))
		d.Subscribe(event.TypeStatusChanged, "change-feed", func(ctx context.Context, evt *event.Event) error { return nil })

		if !logger.HasInfo("Handler registered") {
			t.Error("expected registration to be logged")
		}
	})
}

func TestSubscribeAll(t *testing.T) {
	d := NewDispatcher()
	var calls atomic.Int32

	d.SubscribeAll(event.AllTypes(), "change-feed", func(ctx context.Context, evt *event.Event) error {
		calls.Add(1)
		return nil
	})

	for _, typ := range event.AllTypes() {
		if err := d.Dispatch(context.Background(), event.NewEvent(typ, 1, "", nil)); err != nil {
			t.Fatalf("dispatch %s failed: %v", typ, err)
		}
	}

	if int(calls.Load()) != len(event.AllTypes()) {
		t.Errorf("expected %d calls, got %d", len(event.AllTypes()), calls.Load())
	}
}

func TestDispatch(t *testing.T) {
	t.Run("dispatches to all handlers in order", func(t *testing.T) {
		d := NewDispatcher()
		var order []int

		d.Subscribe(event.TypeStatusChanged, "first", func(ctx context.Context, evt *event.Event) error {
			order = append(order, 1)
			return nil
		})
		d.Subscribe(event.TypeStatusChanged, "second", func(ctx context.Context, evt *event.Event) error {
			order = append(order, 2)
			return nil
		})

		if err := d.Dispatch(context.Background(), newStatusChanged()); err != nil {
			t.Fatalf("dispatch failed: %v", err)
		}

		if len(order) != 2 || order[0] != 1 || order[1] != 2 {
			t.Errorf("expected handlers to run in order [1, 2], got %v", order)
		}
	})

	t.Run("returns first error encountered", func(t *testing.T) {
		d := NewDispatcher()
		expectedErr := errors.New("handler error")
		called := false

		d.Subscribe(event.TypeStatusChanged, "failing", func(ctx context.Context, evt *event.Event) error {
			return expectedErr
		})
		d.Subscribe(event.TypeStatusChanged, "after", func(ctx context.Context, evt *event.Event) error {
			called = true
			return nil
		})

		err := d.Dispatch(context.Background(), newStatusChanged())
		if !errors.Is(err, expectedErr) {
			t.Errorf("expected error to wrap %v, got %v", expectedErr, err)
		}
		if called {
			t.Error("expected second handler not to be called after first error")
		}
	})

	t.Run("recovers from handler panic", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))

		d.Subscribe(event.TypeStatusChanged, "panicky", func(ctx context.Context, evt *event.Event) error {
			panic("boom")
		})

		err := d.Dispatch(context.Background(), newStatusChanged())
		if err == nil {
			t.Fatal("expected error from panicking handler")
		}
		if logger.ErrorCount() == 0 {
			t.Error("expected panic to be logged")
		}
	})

	t.Run("ignores events without handlers", func(t *testing.T) {
		d := NewDispatcher()
		if err := d.Dispatch(context.Background(), event.NewEvent(event.TypeRequestReturned, 1, "", nil)); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})
}

func TestDispatchAsync(t *testing.T) {
	t.Run("runs handlers in background", func(t *testing.T) {
		d := NewDispatcher()
		var called atomic.Int32

		for i := 0; i < 3; i++ {
			d.Subscribe(event.TypeStatusChanged, fmt.Sprintf("h%d", i), func(ctx context.Context, evt *event.Event) error {
				called.Add(1)
				return nil
			})
		}

		d.DispatchAsync(context.Background(), newStatusChanged())
		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}

		if called.Load() != 3 {
			t.Errorf("expected 3 calls, got %d", called.Load())
		}
	})

	t.Run("logs handler errors without propagating", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))

		d.Subscribe(event.TypeStatusChanged, "failing", func(ctx context.Context, evt *event.Event) error {
			return errors.New("redis down")
		})

		d.DispatchAsync(context.Background(), newStatusChanged())
		_ = d.Close()

		if logger.ErrorCount() != 1 {
			t.Errorf("expected 1 logged error, got %d", logger.ErrorCount())
		}
	})

	t.Run("respects max in flight", func(t *testing.T) {
		d := NewDispatcher(WithMaxInFlight(1))
		var current, peak atomic.Int32

		for i := 0; i < 4; i++ {
			d.Subscribe(event.TypeStatusChanged, fmt.Sprintf("h%d", i), func(ctx context.Context, evt *event.Event) error {
				n := current.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				current.Add(-1)
				return nil
			})
		}

		d.DispatchAsync(context.Background(), newStatusChanged())
		_ = d.Close()

		if peak.Load() != 1 {
			t.Errorf("expected at most 1 concurrent handler, got %d", peak.Load())
		}
	})
}

func TestClose(t *testing.T) {
	t.Run("waits for async handlers to complete", func(t *testing.T) {
		d := NewDispatcher()
		var completed atomic.Bool

		d.Subscribe(event.TypeStatusChanged, "slow", func(ctx context.Context, evt *event.Event) error {
			time.Sleep(50 * time.Millisecond)
			completed.Store(true)
			return nil
		})

		d.DispatchAsync(context.Background(), newStatusChanged())

		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}
		if !completed.Load() {
			t.Error("expected async handler to complete before Close returns")
		}
	})

	t.Run("returns error on double close", func(t *testing.T) {
		d := NewDispatcher()
		if err := d.Close(); err != nil {
			t.Fatalf("first close failed: %v", err)
		}
		if err := d.Close(); err == nil {
			t.Fatal("expected error on second close")
		}
	})

	t.Run("rejects dispatch after close", func(t *testing.T) {
		d := NewDispatcher()
		var called atomic.Int32

		d.Subscribe(event.TypeStatusChanged, "counter", func(ctx context.Context, evt *event.Event) error {
			called.Add(1)
			return nil
		})

		_ = d.Close()

		d.DispatchAsync(context.Background(), newStatusChanged())
		if err := d.Dispatch(context.Background(), newStatusChanged()); err == nil {
			t.Error("expected Dispatch to fail after close")
		}
		if called.Load() > 0 {
			t.Error("expected no handlers to be called after close")
		}
	})
}

func TestConcurrentSubscribe(t *testing.T) {
	d := NewDispatcher()
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			d.Subscribe(event.TypeStatusChanged, fmt.Sprintf("handler-%d", id), func(ctx context.Context, evt *event.Event) error {
				return nil
			})
		}(i)
	}
	wg.Wait()

	if got := len(d.ListHandlers(event.TypeStatusChanged)); got != 10 {
		t.Errorf("expected 10 handlers, got %d", got)
	}
}
