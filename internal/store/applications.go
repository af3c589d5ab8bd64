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

// SaveApplication inserts or replaces the application record of a posting.
func (s *SQLiteStore) SaveApplication(ctx context.Context, r model.ApplicationRecord) error {
	artifactIDs, err := json.Marshal(r.ArtifactIDs)
	if err != nil {
		return fmt.Errorf("encoding artifact ids: %w", err)
	}
	transitions, err := json.Marshal(r.Transitions)
	if err != nil {
		return fmt.Errorf("encoding transitions: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO application_records
		(id, posting_id, level, artifact_ids, status, transitions, follow_up_at, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(posting_id) DO UPDATE SET
			level = excluded.level,
			artifact_ids = excluded.artifact_ids,
			status = excluded.status,
			transitions = excluded.transitions,
			follow_up_at = excluded.follow_up_at,
			notes = excluded.notes,
			updated_at = excluded.updated_at`,
		r.ID, r.PostingID, string(r.Level), string(artifactIDs), string(r.Status), string(transitions),
		formatNullableTime(r.FollowUpAt), r.Notes, formatTime(r.CreatedAt), formatTime(r.UpdatedAt))
	if err != nil {
		return fmt.Errorf("saving application for %s: %w", r.PostingID, err)
	}
	return nil
}

const applicationColumns = `id, posting_id, level, artifact_ids, status, transitions,
	follow_up_at, notes, created_at, updated_at`

func scanApplication(row rowScanner) (model.ApplicationRecord, error) {
	var (
		r                        model.ApplicationRecord
		level, status            string
		artifactIDs, transitions string
		followUp                 sql.NullString
		created, updated         string
	)
	if err := row.Scan(&r.ID, &r.PostingID, &level, &artifactIDs, &status, &transitions,
		&followUp, &r.Notes, &created, &updated); err != nil {
		return model.ApplicationRecord{}, err
	}

	r.Level = model.TailoringLevel(level)
	r.Status = model.Status(status)
	if err := json.Unmarshal([]byte(artifactIDs), &r.ArtifactIDs); err != nil {
		return model.ApplicationRecord{}, fmt.Errorf("decoding artifact ids: %w", err)
	}
	if err := json.Unmarshal([]byte(transitions), &r.Transitions); err != nil {
		return model.ApplicationRecord{}, fmt.Errorf("decoding transitions: %w", err)
	}
	var err error
	if r.FollowUpAt, err = parseNullableTime(followUp); err != nil {
		return model.ApplicationRecord{}, err
	}
	if r.CreatedAt, err = parseTime(created); err != nil {
		return model.ApplicationRecord{}, err
	}
	if r.UpdatedAt, err = parseTime(updated); err != nil {
		return model.ApplicationRecord{}, err
	}
	return r, nil
}

// GetApplication returns the application record of a posting, or a NotFound error.
func (s *SQLiteStore) GetApplication(ctx context.Context, postingID string) (model.ApplicationRecord, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+applicationColumns+
		" FROM application_records WHERE posting_id = ?", postingID)
	r, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ApplicationRecord{}, model.NotFound(fmt.Sprintf("application for posting %s", postingID))
	}
	if err != nil {
		return model.ApplicationRecord{}, fmt.Errorf("loading application for %s: %w", postingID, err)
	}
	return r, nil
}

// followUpStatuses are the states in which a due follow-up is pending.
var followUpStatuses = []any{string(model.StatusApplied), string(model.StatusInterview)}

// PendingFollowUps returns applications still awaiting a reply whose
// follow-up is due at or before now, earliest first.
func (s *SQLiteStore) PendingFollowUps(ctx context.Context, now time.Time) ([]model.ApplicationRecord, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+applicationColumns+
		` FROM application_records
		WHERE follow_up_at IS NOT NULL AND follow_up_at <= ? AND status IN (?, ?)
		ORDER BY follow_up_at`,
		append([]any{formatTime(now)}, followUpStatuses...)...)
	if err != nil {
		return nil, fmt.Errorf("querying follow-ups: %w", err)
	}
	defer rows.Close()

	var out []model.ApplicationRecord
	for rows.Next() {
		r, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning follow-up: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ApplicationStats counts application records by status and derives the
// response rate over submitted applications.
func (s *SQLiteStore) ApplicationStats(ctx context.Context, now time.Time) (model.ApplicationStats, error) {
	stats := model.ApplicationStats{ByStatus: make(map[model.Status]int)}

	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM application_records GROUP BY status")
	if err != nil {
		return stats, fmt.Errorf("counting applications: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return stats, fmt.Errorf("scanning application count: %w", err)
		}
		st := model.Status(status)
		stats.ByStatus[st] = n
		stats.Total += n
		switch st {
		case model.StatusApplied, model.StatusWithdrawn:
			stats.Submitted += n
		case model.StatusInterview, model.StatusOffer, model.StatusRejected:
			stats.Submitted += n
			stats.Responses += n
		}
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}
	if stats.Submitted > 0 {
		stats.ResponseRate = float64(stats.Responses) / float64(stats.Submitted) * 100
	}

	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM application_records
		WHERE follow_up_at IS NOT NULL AND follow_up_at <= ? AND status IN (?, ?)`,
		append([]any{formatTime(now)}, followUpStatuses...)...).Scan(&stats.PendingFollowUps)
	if err != nil {
		return stats, fmt.Errorf("counting follow-ups: %w", err)
	}
	return stats, nil
}
