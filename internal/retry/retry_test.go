package retry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/amishk599/autoapply/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// counter calls fn on each invocation, tracking call count.
type counter struct {
	calls int
	fn    func(attempt int) (string, error)
}

func (c *counter) call(_ context.Context) (string, error) {
	c.calls++
	return c.fn(c.calls)
}

func testPolicy(maxRetries int, base time.Duration) Policy {
	return Policy{MaxRetries: maxRetries, BaseDelay: base, Logger: discardLogger()}
}

func TestDo_SucceedsOnFirstAttempt(t *testing.T) {
	c := &counter{fn: func(_ int) (string, error) { return "page-1", nil }}

	got, err := Do(context.Background(), testPolicy(2, 10*time.Millisecond), "search", c.call)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "page-1" {
		t.Fatalf("got %q, want page-1", got)
	}
	if c.calls != 1 {
		t.Fatalf("expected 1 call, got %d", c.calls)
	}
}

func TestDo_RetriesOn5xx_SucceedsOnSecondAttempt(t *testing.T) {
	c := &counter{fn: func(attempt int) (string, error) {
		if attempt == 1 {
			return "", &model.HTTPError{StatusCode: 503, Err: errors.New("service unavailable")}
		}
		return "ok", nil
	}}

	got, err := Do(context.Background(), testPolicy(2, 10*time.Millisecond), "search", c.call)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Fatalf("got %q, want ok", got)
	}
	if c.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", c.calls)
	}
}

func TestDo_DoesNotRetryOn4xx(t *testing.T) {
	c := &counter{fn: func(_ int) (string, error) {
		return "", &model.HTTPError{StatusCode: 404, Err: errors.New("not found")}
	}}

	_, err := Do(context.Background(), testPolicy(2, 10*time.Millisecond), "search", c.call)
	var httpErr *model.HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != 404 {
		t.Fatalf("expected HTTPError with status 404, got %v", err)
	}
	if c.calls != 1 {
		t.Fatalf("expected 1 call (no retry), got %d", c.calls)
	}
}

func TestDo_DoesNotRetrySiteAuth(t *testing.T) {
	c := &counter{fn: func(_ int) (string, error) {
		return "", model.SiteAuth("login rejected", nil)
	}}

	_, err := Do(context.Background(), testPolicy(3, 10*time.Millisecond), "login", c.call)
	if !errors.Is(err, model.ErrSiteAuth) {
		t.Fatalf("expected SiteAuth error, got %v", err)
	}
	if c.calls != 1 {
		t.Fatalf("expected 1 call, got %d", c.calls)
	}
}

func TestDo_RetriesTransientNetworkKind(t *testing.T) {
	c := &counter{fn: func(attempt int) (string, error) {
		if attempt < 3 {
			return "", model.TransientNetwork("captcha page", nil)
		}
		return "ok", nil
	}}

	if _, err := Do(context.Background(), testPolicy(3, time.Millisecond), "search", c.call); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", c.calls)
	}
}

func TestDo_GivesUpAfterMaxRetries(t *testing.T) {
	c := &counter{fn: func(_ int) (string, error) {
		return "", &model.HTTPError{StatusCode: 500, Err: errors.New("internal error")}
	}}

	_, err := Do(context.Background(), testPolicy(2, 10*time.Millisecond), "search", c.call)
	if err == nil {
		t.Fatal("expected error after max retries, got nil")
	}
	// 1 initial + 2 retries = 3
	if c.calls != 3 {
		t.Fatalf("expected 3 calls (1 + 2 retries), got %d", c.calls)
	}
}

func TestDo_CustomRetryable(t *testing.T) {
	c := &counter{fn: func(_ int) (string, error) {
		return "", errors.New("anything")
	}}
	p := testPolicy(5, time.Millisecond)
	p.Retryable = func(error) bool { return false }

	if _, err := Do(context.Background(), p, "op", c.call); err == nil {
		t.Fatal("expected error")
	}
	if c.calls != 1 {
		t.Fatalf("expected 1 call, got %d", c.calls)
	}
}

func TestDo_RespectsContextCancellation(t *testing.T) {
	c := &counter{fn: func(_ int) (string, error) {
		return "", &model.HTTPError{StatusCode: 500, Err: errors.New("internal error")}
	}}

	ctx, cancel := context.WithCancel(context.Background())
	// Cancel immediately so the backoff sleep is interrupted.
	cancel()

	_, err := Do(ctx, testPolicy(2, time.Second), "search", c.call)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if c.calls != 1 {
		t.Fatalf("expected 1 call before cancellation, got %d", c.calls)
	}
}

func TestBackoffDelay_PrefersRetryAfter(t *testing.T) {
	p := testPolicy(2, time.Second)
	err := &model.HTTPError{StatusCode: 429, RetryAfter: 7 * time.Second}
	if d := p.backoffDelay(1, err); d != 7*time.Second {
		t.Errorf("delay = %v, want 7s", d)
	}
}

func TestBackoffDelay_CapsAtMaxDelay(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: 2 * time.Second}
	d := p.backoffDelay(5, errors.New("x"))
	// 2s ± 30%
	if d < 1400*time.Millisecond || d > 2600*time.Millisecond {
		t.Errorf("delay = %v, want within 30%% of 2s", d)
	}
}
