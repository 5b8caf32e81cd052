package retry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func fastBackoff(attempts int) *Backoff {
	return &Backoff{InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, MaxAttempts: attempts}
}

func TestBackoff_Do(t *testing.T) {
	errRefused := errors.New("connection refused")

	tests := []struct {
		name      string
		attempts  int
		failUntil int  // fn fails while attempt < failUntil
		permanent bool // fn returns Permanent(errRefused)
		wantCalls int
		wantErr   string
	}{
		{name: "first try", attempts: 3, failUntil: 1, wantCalls: 1},
		{name: "third try", attempts: 5, failUntil: 3, wantCalls: 3},
		{name: "budget spent", attempts: 3, failUntil: 99, wantCalls: 3, wantErr: "max retries (3) exceeded: connection refused"},
		{name: "permanent", attempts: 5, failUntil: 99, permanent: true, wantCalls: 1, wantErr: "connection refused"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := fastBackoff(tt.attempts).Do(context.Background(), func(attempt int) error {
				calls++
				if attempt != calls {
					t.Errorf("attempt = %d on call %d", attempt, calls)
				}
				if attempt >= tt.failUntil {
					return nil
				}
				if tt.permanent {
					return Permanent(errRefused)
				}
				return errRefused
			})

			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			switch {
			case tt.wantErr == "" && err != nil:
				t.Errorf("unexpected error: %v", err)
			case tt.wantErr != "" && (err == nil || err.Error() != tt.wantErr):
				t.Errorf("err = %v, want %q", err, tt.wantErr)
			}
			if tt.wantErr != "" && !errors.Is(err, errRefused) {
				t.Errorf("err %v does not wrap the operation error", err)
			}
		})
	}
}

func TestBackoff_DoStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Backoff{InitialDelay: time.Hour}

	err := b.Do(ctx, func(int) error {
		cancel()
		return errors.New("no reply to hello")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if !strings.HasPrefix(err.Error(), "retry cancelled") {
		t.Errorf("err = %q", err)
	}
}

func TestPermanent(t *testing.T) {
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) != nil")
	}
	base := errors.New("bad address")
	if !IsPermanent(Permanent(base)) {
		t.Error("Permanent error not detected")
	}
	if IsPermanent(base) {
		t.Error("plain error reported permanent")
	}
	if !errors.Is(Permanent(base), base) {
		t.Error("Permanent does not unwrap")
	}
}

func TestBackoff_Delay(t *testing.T) {
	b := &Backoff{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}
	for attempt, want := range map[int]time.Duration{
		0:   100 * time.Millisecond,
		1:   100 * time.Millisecond,
		2:   200 * time.Millisecond,
		4:   800 * time.Millisecond,
		5:   time.Second,
		500: time.Second,
	} {
		if got := b.Delay(attempt); got != want {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, want)
		}
	}
}

func TestBackoff_DelayZeroValue(t *testing.T) {
	var b Backoff
	if got := b.Delay(1); got != time.Second {
		t.Errorf("Delay(1) = %v, want 1s", got)
	}
	if got := b.Delay(100); got != time.Minute {
		t.Errorf("Delay(100) = %v, want 1m", got)
	}
}

func TestBackoff_DelayJitter(t *testing.T) {
	b := &Backoff{InitialDelay: 400 * time.Millisecond, Jitter: true}
	for i := 0; i < 200; i++ {
		d := b.Delay(1)
		if d < 300*time.Millisecond || d > 500*time.Millisecond {
			t.Fatalf("jittered delay %v outside ±25%% of 400ms", d)
		}
	}
}

func TestReceiveBackoff(t *testing.T) {
	b := ReceiveBackoff()
	if b.MaxAttempts != 0 {
		t.Errorf("receive loop must retry forever, MaxAttempts = %d", b.MaxAttempts)
	}
	if d := b.Delay(1); d != 10*time.Millisecond {
		t.Errorf("first delay = %v", d)
	}
	if d := b.Delay(50); d != time.Second {
		t.Errorf("capped delay = %v", d)
	}
}

func TestSleep(t *testing.T) {
	if err := Sleep(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("Sleep: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Sleep ignored cancellation")
	}
}
