package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/amishk599/autoapply/internal/model"
)

const artifactColumns = `id, posting_id, task, level, payload, fingerprint, model_version,
	cost_usd, prompt_tokens, completion_tokens, created_at`

// SaveArtifact writes a new artifact. Artifacts are immutable: saving an id
// that already exists is an error.
func (s *SQLiteStore) SaveArtifact(ctx context.Context, a model.AIArtifact) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO ai_artifacts (`+artifactColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.PostingID, string(a.Task), string(a.Level), string(a.Payload), a.Fingerprint,
		a.ModelVersion, a.ProviderCostUSD, a.PromptTokens, a.CompletionTokens, formatTime(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("saving artifact %s: %w", a.ID, err)
	}
	return nil
}

// GetArtifact returns the artifact with the given id, or a NotFound error.
func (s *SQLiteStore) GetArtifact(ctx context.Context, id string) (model.AIArtifact, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+artifactColumns+" FROM ai_artifacts WHERE id = ?", id)
	a, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.AIArtifact{}, model.NotFound(fmt.Sprintf("artifact %s", id))
	}
	if err != nil {
		return model.AIArtifact{}, fmt.Errorf("loading artifact %s: %w", id, err)
	}
	return a, nil
}

// LatestArtifact returns the newest artifact for (posting, task, level).
// An empty level matches any level.
func (s *SQLiteStore) LatestArtifact(ctx context.Context, postingID string, task model.TaskType, level model.TailoringLevel) (model.AIArtifact, error) {
	query := "SELECT " + artifactColumns + " FROM ai_artifacts WHERE posting_id = ? AND task = ?"
	args := []any{postingID, string(task)}
	if level != "" {
		query += " AND level = ?"
		args = append(args, string(level))
	}
	query += " ORDER BY created_at DESC LIMIT 1"

	a, err := scanArtifact(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return model.AIArtifact{}, model.NotFound(fmt.Sprintf("%s artifact for posting %s", task, postingID))
	}
	if err != nil {
		return model.AIArtifact{}, fmt.Errorf("loading %s artifact for %s: %w", task, postingID, err)
	}
	return a, nil
}

// HasArtifact reports whether any artifact of the task exists for the posting.
func (s *SQLiteStore) HasArtifact(ctx context.Context, postingID string, task model.TaskType) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM ai_artifacts WHERE posting_id = ? AND task = ? LIMIT 1",
		postingID, string(task)).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking %s artifact for %s: %w", task, postingID, err)
	}
	return true, nil
}

// CountArtifactsByTask returns the number of stored artifacts per task.
func (s *SQLiteStore) CountArtifactsByTask(ctx context.Context) (map[model.TaskType]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT task, COUNT(*) FROM ai_artifacts GROUP BY task")
	if err != nil {
		return nil, fmt.Errorf("counting artifacts: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.TaskType]int)
	for rows.Next() {
		var (
			task string
			n    int
		)
		if err := rows.Scan(&task, &n); err != nil {
			return nil, fmt.Errorf("scanning artifact count: %w", err)
		}
		counts[model.TaskType(task)] = n
	}
	return counts, rows.Err()
}

func scanArtifact(r rowScanner) (model.AIArtifact, error) {
	var (
		a           model.AIArtifact
		task, level string
		payload     string
		created     string
	)
	err := r.Scan(&a.ID, &a.PostingID, &task, &level, &payload, &a.Fingerprint, &a.ModelVersion,
		&a.ProviderCostUSD, &a.PromptTokens, &a.CompletionTokens, &created)
	if err != nil {
		return model.AIArtifact{}, err
	}
	a.Task = model.TaskType(task)
	a.Level = model.TailoringLevel(level)
	a.Payload = []byte(payload)
	if a.CreatedAt, err = parseTime(created); err != nil {
		return model.AIArtifact{}, err
	}
	return a, nil
}
