package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

type statusErr int

func (s statusErr) Error() string       { return fmt.Sprintf("status %d", int(s)) }
func (s statusErr) HTTPStatusCode() int { return int(s) }

func TestIsRetryableError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"429", statusErr(429), true},
		{"503", statusErr(503), true},
		{"400", statusErr(400), false},
		{"401 wrapped", fmt.Errorf("call: %w", statusErr(401)), false},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"reset", errors.New("read: connection reset by peer"), true},
	}
	for _, tc := range cases {
		if got := IsRetryableError(tc.err); got != tc.want {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Base: 5 * time.Second, Max: 60 * time.Second, RateLimitFactor: 2}
	if got := b.Delay(0, statusErr(503)); got != 5*time.Second {
		t.Fatalf("attempt 0: %v", got)
	}
	if got := b.Delay(2, statusErr(503)); got != 20*time.Second {
		t.Fatalf("attempt 2: %v", got)
	}
	if got := b.Delay(2, statusErr(429)); got != 40*time.Second {
		t.Fatalf("attempt 2 rate limited: %v", got)
	}
	if got := b.Delay(5, statusErr(429)); got != 60*time.Second {
		t.Fatalf("cap: %v", got)
	}
}

func TestRetryAfterDuration(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	resp.Header.Set("Retry-After", "3")
	if got := RetryAfterDuration(resp, time.Second, 10*time.Second); got != 3*time.Second {
		t.Fatalf("got %v", got)
	}
	resp.Header.Set("Retry-After", "120")
	if got := RetryAfterDuration(resp, time.Second, 10*time.Second); got != 10*time.Second {
		t.Fatalf("clamp: %v", got)
	}
	if got := RetryAfterDuration(nil, 2*time.Second, 10*time.Second); got != 2*time.Second {
		t.Fatalf("nil resp: %v", got)
	}
}

func TestJitterSleepBounds(t *testing.T) {
	for i := 0; i < 50; i++ {
		got := JitterSleep(10 * time.Second)
		if got < 8*time.Second || got > 12*time.Second {
			t.Fatalf("out of bounds: %v", got)
		}
	}
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
}
