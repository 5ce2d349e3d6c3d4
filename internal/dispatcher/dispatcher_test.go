package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// testLogger implements Logger for testing
type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *testLogger) Debug(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("DEBUG: %s %v", msg, keysAndValues))
}

func (l *testLogger) Info(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("INFO: %s %v", msg, keysAndValues))
}

func (l *testLogger) Error(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("ERROR: %s %v", msg, keysAndValues))
}

func (l *testLogger) count(prefix string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, msg := range l.messages {
		if len(msg) >= len(prefix) && msg[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func newTestDispatcher(t *testing.T, size int) (*Dispatcher, *testLogger) {
	logger := &testLogger{}

	d, err := New(logger, size)
	if err != nil {
		t.Fatalf("failed to create dispatcher: %v", err)
	}

	return d, logger
}

func TestNew_RejectsZeroQueue(t *testing.T) {
	if _, err := New(&testLogger{}, 0); err == nil {
		t.Error("expected error for zero queue size")
	}
}

func TestDispatcher_SyncHandler(t *testing.T) {
	d, _ := newTestDispatcher(t, 1)

	called := false
	d.Register(":TEST:", func(e Event) (any, error) {
		called = true
		return "result", nil
	})

	result, err := d.Dispatch(Event{Command: ":TEST:", Args: []string{"arg1"}})

	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !called {
		t.Error("handler was not called")
	}
	if result != "result" {
		t.Errorf("expected 'result', got %v", result)
	}
}

func TestDispatcher_UnknownCommand(t *testing.T) {
	d, _ := newTestDispatcher(t, 1)

	if _, err := d.Dispatch(Event{Command: ":UNKNOWN:"}); err == nil {
		t.Error("expected error for unknown command")
	}
	if err := d.Submit(Event{Command: ":UNKNOWN:"}); err == nil {
		t.Error("expected error submitting unknown command")
	}
}

func TestDispatcher_RunPreservesOrder(t *testing.T) {
	d, _ := newTestDispatcher(t, 100)

	var got []string
	d.Register(":A:", func(e Event) (any, error) {
		got = append(got, "a"+e.Args[0])
		return nil, nil
	})
	d.Register(":B:", func(e Event) (any, error) {
		got = append(got, "b"+e.Args[0])
		return nil, nil
	}, Blocking())

	for i := 0; i < 3; i++ {
		arg := fmt.Sprint(i)
		if err := d.Submit(Event{Command: ":A:", Args: []string{arg}}); err != nil {
			t.Fatalf("submit: %v", err)
		}
		if err := d.Submit(Event{Command: ":B:", Args: []string{arg}}); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	d.Close()
	d.Run(context.Background())

	want := []string{"a0", "b0", "a1", "b1", "a2", "b2"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	d, _ := newTestDispatcher(t, 2)
	d.Register(":FULL:", func(e Event) (any, error) { return nil, nil })

	// Run is not started, so the inbox fills up.
	d.Submit(Event{Command: ":FULL:"})
	d.Submit(Event{Command: ":FULL:"})

	if err := d.Submit(Event{Command: ":FULL:"}); err == nil {
		t.Error("expected error when queue is full")
	}
}

func TestDispatcher_BlockingWaitsForRoom(t *testing.T) {
	d, _ := newTestDispatcher(t, 1)

	d.Register(":BLOCKING:", func(e Event) (any, error) { return nil, nil }, Blocking())

	d.Submit(Event{Command: ":BLOCKING:"})

	done := make(chan struct{})
	go func() {
		d.Submit(Event{Command: ":BLOCKING:"})
		close(done)
	}()

	select {
	case <-done:
		t.Error("submit should have blocked")
	case <-time.After(50 * time.Millisecond):
		// Expected - submit is blocking
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("submit did not unblock once Run drained the inbox")
	}
}

func TestDispatcher_BlockingReleasedByClose(t *testing.T) {
	d, _ := newTestDispatcher(t, 1)
	d.Register(":BLOCKING:", func(e Event) (any, error) { return nil, nil }, Blocking())
	d.Submit(Event{Command: ":BLOCKING:"})

	errCh := make(chan error, 1)
	go func() {
		errCh <- d.Submit(Event{Command: ":BLOCKING:"})
	}()

	d.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Error("blocked submit was not released by Close")
	}
}

func TestDispatcher_AcceptedEventsHandledAcrossClose(t *testing.T) {
	for i := 0; i < 200; i++ {
		d, _ := newTestDispatcher(t, 2)

		var mu sync.Mutex
		handled := 0
		d.Register(":BLOCKING:", func(e Event) (any, error) {
			mu.Lock()
			handled++
			mu.Unlock()
			return nil, nil
		}, Blocking())

		runDone := make(chan struct{})
		go func() {
			d.Run(context.Background())
			close(runDone)
		}()

		var wg sync.WaitGroup
		var accepted sync.Map
		for j := 0; j < 8; j++ {
			wg.Add(1)
			go func(j int) {
				defer wg.Done()
				if d.Submit(Event{Command: ":BLOCKING:"}) == nil {
					accepted.Store(j, true)
				}
			}(j)
		}

		d.Close()
		wg.Wait()
		<-runDone

		want := 0
		accepted.Range(func(_, _ any) bool {
			want++
			return true
		})
		mu.Lock()
		got := handled
		mu.Unlock()
		if got != want {
			t.Fatalf("iteration %d: %d events accepted, %d handled", i, want, got)
		}
	}
}

func TestDispatcher_SubmitAfterClose(t *testing.T) {
	d, _ := newTestDispatcher(t, 4)
	d.Register(":X:", func(e Event) (any, error) { return nil, nil })
	d.Close()
	d.Close()

	if err := d.Submit(Event{Command: ":X:"}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestDispatcher_RunStopsOnCancel(t *testing.T) {
	d, _ := newTestDispatcher(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("Run did not return after cancel")
	}
}

func TestDispatcher_RunLogsHandlerError(t *testing.T) {
	d, logger := newTestDispatcher(t, 1)
	d.Register(":ERR:", func(e Event) (any, error) {
		return nil, fmt.Errorf("bad sample")
	})

	d.Submit(Event{Command: ":ERR:"})
	d.Close()
	d.Run(context.Background())

	if logger.count("ERROR") != 1 {
		t.Errorf("expected one error log, got %d", logger.count("ERROR"))
	}
}

func TestDispatcher_LoggedHandler(t *testing.T) {
	d, logger := newTestDispatcher(t, 1)

	d.Register(":LOGGED:", func(e Event) (any, error) {
		return "ok", nil
	}, Logged())

	d.Dispatch(Event{Command: ":LOGGED:", Args: []string{"a", "b"}})

	if logger.count("DEBUG") < 2 {
		t.Errorf("expected at least 2 debug messages, got %d", logger.count("DEBUG"))
	}
}

func TestDispatcher_LoggedHandlerErrorLoggedOnce(t *testing.T) {
	d, logger := newTestDispatcher(t, 1)

	d.Register(":ERROR:", func(e Event) (any, error) {
		return nil, fmt.Errorf("test error")
	}, Logged())

	d.Submit(Event{Command: ":ERROR:"})
	d.Close()
	d.Run(context.Background())

	if logger.count("ERROR") != 1 {
		t.Errorf("expected exactly one error log, got %d", logger.count("ERROR"))
	}
}

func TestDispatcher_HasHandler(t *testing.T) {
	d, _ := newTestDispatcher(t, 1)

	d.Register(":EXISTS:", func(e Event) (any, error) { return nil, nil })

	if !d.HasHandler(":EXISTS:") {
		t.Error("expected handler to exist")
	}

	if d.HasHandler(":NOT_EXISTS:") {
		t.Error("expected handler to not exist")
	}
}
