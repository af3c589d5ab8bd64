package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/amishk599/autoapply/internal/model"
)

// LoadQuota returns the persisted counters for a UTC day. ok is false if the
// day has no row yet.
func (s *SQLiteStore) LoadQuota(ctx context.Context, day string) (model.QuotaCounter, bool, error) {
	var (
		q              model.QuotaCounter
		recent, update string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT day, calls, spend_usd, recent_calls, updated_at FROM quota_counters WHERE day = ?", day).
		Scan(&q.Day, &q.Calls, &q.SpendUSD, &recent, &update)
	if errors.Is(err, sql.ErrNoRows) {
		return model.QuotaCounter{}, false, nil
	}
	if err != nil {
		return model.QuotaCounter{}, false, fmt.Errorf("loading quota for %s: %w", day, err)
	}

	var nanos []int64
	if err := json.Unmarshal([]byte(recent), &nanos); err != nil {
		return model.QuotaCounter{}, false, fmt.Errorf("decoding recent calls: %w", err)
	}
	for _, n := range nanos {
		q.RecentCalls = append(q.RecentCalls, time.Unix(0, n).UTC())
	}
	if q.UpdatedAt, err = parseTime(update); err != nil {
		return model.QuotaCounter{}, false, err
	}
	return q, true, nil
}

// SaveQuota writes the counters for q.Day.
func (s *SQLiteStore) SaveQuota(ctx context.Context, q model.QuotaCounter) error {
	nanos := make([]int64, 0, len(q.RecentCalls))
	for _, t := range q.RecentCalls {
		nanos = append(nanos, t.UnixNano())
	}
	recent, err := json.Marshal(nanos)
	if err != nil {
		return fmt.Errorf("encoding recent calls: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO quota_counters (day, calls, spend_usd, recent_calls, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(day) DO UPDATE SET
			calls = excluded.calls,
			spend_usd = excluded.spend_usd,
			recent_calls = excluded.recent_calls,
			updated_at = excluded.updated_at`,
		q.Day, q.Calls, q.SpendUSD, string(recent), formatTime(q.UpdatedAt))
	if err != nil {
		return fmt.Errorf("saving quota for %s: %w", q.Day, err)
	}
	return nil
}
