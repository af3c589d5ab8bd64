package budget

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/amishk599/autoapply/internal/model"
)

// Ceiling names reported in QuotaExceeded errors.
const (
	CeilingPerMinuteCalls = "per_minute_calls"
	CeilingPerDayCalls    = "per_day_calls"
	CeilingDailySpend     = "daily_spend_usd"
)

const minuteWindow = 60 * time.Second

// spendEpsilon absorbs float rounding when comparing spend to its ceiling.
const spendEpsilon = 1e-9

// Ceilings bound AI usage. A zero value disables that ceiling.
type Ceilings struct {
	PerMinuteCalls int
	PerDayCalls    int
	DailySpendUSD  float64
}

// CounterStore persists one counter row per UTC day.
type CounterStore interface {
	LoadQuota(ctx context.Context, day string) (model.QuotaCounter, bool, error)
	SaveQuota(ctx context.Context, q model.QuotaCounter) error
}

// Usage is a point-in-time view of the tracker.
type Usage struct {
	Day            string
	PerMinuteUsed  int
	PerDayUsed     int
	SpendUSD       float64
	ReservedUSD    float64
	Ceilings       Ceilings
	AlertThreshold float64
}

// Reservation is a granted slot. Exactly one of Commit or Release takes effect.
type Reservation struct {
	day       string
	estimated float64
	done      bool
}

// Tracker gates every provider call. All counter checks and updates happen
// under mu, which is never held across a provider call.
type Tracker struct {
	mu       sync.Mutex
	ceilings Ceilings
	alertAt  float64 // fraction of DailySpendUSD that triggers the alert log
	store    CounterStore
	logger   *slog.Logger
	now      func() time.Time

	day      string
	calls    int
	spend    float64
	reserved float64
	recent   []time.Time
	alerted  bool
}

// Option customizes a Tracker.
type Option func(*Tracker)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithAlertThreshold sets the spend fraction (0..1) that logs a budget alert.
func WithAlertThreshold(ratio float64) Option {
	return func(t *Tracker) { t.alertAt = ratio }
}

// NewTracker creates a tracker and reloads today's persisted counters, which
// take precedence over zero-valued defaults so a restart never resets spend.
func NewTracker(ctx context.Context, store CounterStore, ceilings Ceilings, logger *slog.Logger, opts ...Option) (*Tracker, error) {
	t := &Tracker{
		ceilings: ceilings,
		alertAt:  0.8,
		store:    store,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}

	now := t.now().UTC()
	t.day = dayOf(now)
	q, ok, err := store.LoadQuota(ctx, t.day)
	if err != nil {
		return nil, fmt.Errorf("loading quota counters: %w", err)
	}
	if ok {
		t.calls = q.Calls
		t.spend = q.SpendUSD
		t.recent = q.RecentCalls
		t.prune(now)
		t.alerted = t.overAlert()
		logger.Info("restored quota counters", "day", t.day, "calls", t.calls, "spend_usd", t.spend)
	}
	return t, nil
}

// Reserve atomically checks every ceiling and, if all allow one more call of
// estimatedCostUSD, counts the call. It returns a QuotaExceeded error naming
// the first ceiling that would be exceeded.
func (t *Tracker) Reserve(ctx context.Context, estimatedCostUSD float64) (*Reservation, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now().UTC()
	t.rollover(now)
	t.prune(now)

	if c := t.ceilings.PerMinuteCalls; c > 0 && len(t.recent)+1 > c {
		return nil, t.deny(CeilingPerMinuteCalls, fmt.Sprintf("%d/%d calls in the last minute", len(t.recent), c))
	}
	if c := t.ceilings.PerDayCalls; c > 0 && t.calls+1 > c {
		return nil, t.deny(CeilingPerDayCalls, fmt.Sprintf("%d/%d calls today", t.calls, c))
	}
	if c := t.ceilings.DailySpendUSD; c > 0 && t.spend+t.reserved+estimatedCostUSD > c+spendEpsilon {
		return nil, t.deny(CeilingDailySpend, fmt.Sprintf("$%.4f spent + $%.4f reserved + $%.4f estimated exceeds $%.2f",
			t.spend, t.reserved, estimatedCostUSD, c))
	}

	t.calls++
	t.recent = append(t.recent, now)
	t.reserved += estimatedCostUSD
	if err := t.persist(ctx, now); err != nil {
		t.calls--
		t.recent = t.recent[:len(t.recent)-1]
		t.reserved -= estimatedCostUSD
		return nil, err
	}
	return &Reservation{day: t.day, estimated: estimatedCostUSD}, nil
}

// Commit records the actual cost of a completed call. With a spend ceiling
// configured, the charge is capped at the reservation (or at the remaining
// headroom when the day rolled over) so committed spend never passes the
// ceiling; the overage is logged.
func (t *Tracker) Commit(ctx context.Context, r *Reservation, actualCostUSD float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if r == nil || r.done {
		return nil
	}
	r.done = true

	now := t.now().UTC()
	t.rollover(now)
	if r.day == t.day {
		t.reserved -= r.estimated
	}

	charged := actualCostUSD
	if c := t.ceilings.DailySpendUSD; c > 0 {
		limit := max(c-t.spend-t.reserved, 0)
		if r.day == t.day {
			limit = min(limit, r.estimated)
		}
		if charged > limit+spendEpsilon {
			t.logger.Warn("provider cost exceeded reservation",
				"actual_usd", actualCostUSD,
				"reserved_usd", r.estimated,
				"charged_usd", limit,
			)
			charged = limit
		}
	}
	t.spend += charged

	if !t.alerted && t.overAlert() {
		t.alerted = true
		t.logger.Warn("daily AI budget alert",
			"spend_usd", t.spend,
			"ceiling_usd", t.ceilings.DailySpendUSD,
			"threshold", t.alertAt,
		)
	}
	return t.persist(ctx, now)
}

// Release frees the spend held by an aborted reservation. The call itself
// stays counted: counters are only ever reduced by window expiry.
func (t *Tracker) Release(r *Reservation) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if r == nil || r.done {
		return
	}
	r.done = true
	t.rollover(t.now().UTC())
	if r.day == t.day {
		t.reserved -= r.estimated
	}
}

// Usage returns current counters.
func (t *Tracker) Usage() Usage {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now().UTC()
	t.rollover(now)
	t.prune(now)
	return Usage{
		Day:            t.day,
		PerMinuteUsed:  len(t.recent),
		PerDayUsed:     t.calls,
		SpendUSD:       t.spend,
		ReservedUSD:    t.reserved,
		Ceilings:       t.ceilings,
		AlertThreshold: t.alertAt,
	}
}

func (t *Tracker) deny(ceiling, msg string) error {
	t.logger.Warn("quota exceeded", "ceiling", ceiling, "detail", msg)
	return model.QuotaExceeded(ceiling, msg)
}

// rollover resets daily counters at UTC midnight. Must hold mu.
func (t *Tracker) rollover(now time.Time) {
	day := dayOf(now)
	if day == t.day {
		return
	}
	t.day = day
	t.calls = 0
	t.spend = 0
	t.reserved = 0
	t.alerted = false
}

// prune drops calls older than the rolling minute window. Must hold mu.
func (t *Tracker) prune(now time.Time) {
	cutoff := now.Add(-minuteWindow)
	i := 0
	for i < len(t.recent) && !t.recent[i].After(cutoff) {
		i++
	}
	t.recent = t.recent[i:]
}

func (t *Tracker) overAlert() bool {
	c := t.ceilings.DailySpendUSD
	return c > 0 && t.alertAt > 0 && t.spend >= c*t.alertAt
}

// persist writes the counters. Must hold mu so rows are written in order.
func (t *Tracker) persist(ctx context.Context, now time.Time) error {
	recent := make([]time.Time, len(t.recent))
	copy(recent, t.recent)
	err := t.store.SaveQuota(ctx, model.QuotaCounter{
		Day:         t.day,
		Calls:       t.calls,
		SpendUSD:    t.spend,
		RecentCalls: recent,
		UpdatedAt:   now,
	})
	if err != nil {
		return fmt.Errorf("persisting quota counters: %w", err)
	}
	return nil
}

func dayOf(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
