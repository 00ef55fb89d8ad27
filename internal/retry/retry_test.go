package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTransient = errors.New("transient")
var errTerminal = errors.New("terminal")

func recordingPolicy(max int, waits *[]time.Duration) Policy {
	return Policy{
		MaxAttempts: max,
		Backoff:     Linear(100 * time.Millisecond),
		Retryable:   func(err error) bool { return errors.Is(err, errTransient) },
		Sleep: func(ctx context.Context, d time.Duration) error {
			*waits = append(*waits, d)
			return nil
		},
	}
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	var waits []time.Duration
	p := recordingPolicy(3, &waits)

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}
	if len(waits) != len(want) {
		t.Fatalf("waits = %v, want %v", waits, want)
	}
	for i := range want {
		if waits[i] != want[i] {
			t.Errorf("waits[%d] = %v, want %v", i, waits[i], want[i])
		}
	}
}

func TestDo_Exhausted(t *testing.T) {
	var waits []time.Duration
	p := recordingPolicy(3, &waits)

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errTransient
	})

	var ex *ExhaustedError
	if !errors.As(err, &ex) {
		t.Fatalf("error = %v, want *ExhaustedError", err)
	}
	if ex.Attempts != 3 || calls != 3 {
		t.Errorf("attempts = %d calls = %d, want 3", ex.Attempts, calls)
	}
	if !errors.Is(err, errTransient) {
		t.Error("exhausted error should unwrap to the last failure")
	}
}

func TestDo_TerminalErrorStopsImmediately(t *testing.T) {
	var waits []time.Duration
	p := recordingPolicy(5, &waits)

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errTerminal
	})
	if err != errTerminal {
		t.Errorf("error = %v, want terminal error unchanged", err)
	}
	if calls != 1 || len(waits) != 0 {
		t.Errorf("calls = %d waits = %d, want 1 and 0", calls, len(waits))
	}
}

func TestDo_ContextCancelledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := Policy{MaxAttempts: 3, Backoff: Linear(time.Hour)}
	err := p.Do(ctx, func(ctx context.Context) error { return errTransient })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
