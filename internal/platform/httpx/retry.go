package httpx

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HTTPStatusCoder is implemented by client errors that carry the upstream status.
type HTTPStatusCoder interface {
	HTTPStatusCode() int
}

func IsRetryableHTTPStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500
}

func IsRateLimited(err error) bool {
	var sc HTTPStatusCoder
	return errors.As(err, &sc) && sc.HTTPStatusCode() == http.StatusTooManyRequests
}

// IsRetryableError reports whether a failed call is worth another attempt.
// Cancellation by the caller is not retryable; a per-call deadline is.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var sc HTTPStatusCoder
	if errors.As(err, &sc) {
		return IsRetryableHTTPStatus(sc.HTTPStatusCode())
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "unexpected eof")
}

// RetryAfterDuration honours a Retry-After header (seconds or HTTP date),
// clamped to max. Without one it returns fallback.
func RetryAfterDuration(resp *http.Response, fallback, max time.Duration) time.Duration {
	if resp == nil {
		return fallback
	}
	raw := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if raw == "" {
		return fallback
	}
	var d time.Duration
	if secs, err := strconv.Atoi(raw); err == nil {
		d = time.Duration(secs) * time.Second
	} else if at, err := http.ParseTime(raw); err == nil {
		d = time.Until(at)
	} else {
		return fallback
	}
	if d <= 0 {
		return fallback
	}
	if max > 0 && d > max {
		return max
	}
	return d
}

// JitterSleep spreads d by +/-20%.
func JitterSleep(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	spread := int64(d) / 5
	if spread <= 0 {
		return d
	}
	return d - time.Duration(spread) + time.Duration(rand.Int63n(2*spread+1))
}

// Backoff is the exponential schedule used for upstream model calls.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
	// RateLimitFactor multiplies the delay when the last error was a 429.
	RateLimitFactor int
}

// Delay returns the wait before retry number attempt (0-based).
func (b Backoff) Delay(attempt int, err error) time.Duration {
	base := b.Base
	if base <= 0 {
		base = time.Second
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			d = b.Max
			break
		}
	}
	if IsRateLimited(err) && b.RateLimitFactor > 1 {
		d *= time.Duration(b.RateLimitFactor)
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
