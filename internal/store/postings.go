package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/amishk599/autoapply/internal/model"
)

// PostingQuery narrows ListPostings. Zero values match everything.
type PostingQuery struct {
	Sites    []string
	Statuses []model.Status
	Since    time.Time // last_scraped_at >= Since
	Limit    int
}

const postingColumns = `id, site, external_id, url, title, company, location, description,
	posted_at, status, first_scraped_at, last_scraped_at`

// UpsertPosting inserts p, or refreshes the normalized fields and
// last_scraped_at of an existing row. Status is never touched on update, so a
// re-scrape cannot regress it. Reports whether a new row was created.
func (s *SQLiteStore) UpsertPosting(ctx context.Context, p model.JobPosting) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin upsert posting %s: %w", p.ID, err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM job_postings WHERE id = ?", p.ID).Scan(&exists)
	created := errors.Is(err, sql.ErrNoRows)
	if err != nil && !created {
		return false, fmt.Errorf("checking posting %s: %w", p.ID, err)
	}

	if created {
		status := p.Status
		if status == "" {
			status = model.StatusScraped
		}
		first := p.FirstScrapedAt
		if first.IsZero() {
			first = p.LastScrapedAt
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO job_postings (`+postingColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.Site, p.ExternalID, p.URL, p.Title, p.Company, p.Location, p.Description,
			formatNullableTime(p.PostedAt), string(status), formatTime(first), formatTime(p.LastScrapedAt))
	} else {
		_, err = tx.ExecContext(ctx, `UPDATE job_postings SET
			external_id = ?, url = ?, title = ?, company = ?, location = ?,
			description = CASE WHEN ? = '' THEN description ELSE ? END,
			posted_at = COALESCE(?, posted_at), last_scraped_at = ?
			WHERE id = ?`,
			p.ExternalID, p.URL, p.Title, p.Company, p.Location,
			p.Description, p.Description,
			formatNullableTime(p.PostedAt), formatTime(p.LastScrapedAt), p.ID)
	}
	if err != nil {
		return false, fmt.Errorf("upserting posting %s: %w", p.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit upsert posting %s: %w", p.ID, err)
	}
	return created, nil
}

// GetPosting returns the posting with the given id, or a NotFound error.
func (s *SQLiteStore) GetPosting(ctx context.Context, id string) (model.JobPosting, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+postingColumns+" FROM job_postings WHERE id = ?", id)
	p, err := scanPosting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.JobPosting{}, model.NotFound(fmt.Sprintf("posting %s", id))
	}
	if err != nil {
		return model.JobPosting{}, fmt.Errorf("loading posting %s: %w", id, err)
	}
	return p, nil
}

// PostingIDsWithPrefix returns up to limit posting ids that start with prefix.
func (s *SQLiteStore) PostingIDsWithPrefix(ctx context.Context, prefix string, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM job_postings WHERE substr(id, 1, ?) = ? ORDER BY id LIMIT ?",
		len(prefix), prefix, limit)
	if err != nil {
		return nil, fmt.Errorf("resolving posting prefix %q: %w", prefix, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListPostings returns postings matching q, most recently scraped first.
func (s *SQLiteStore) ListPostings(ctx context.Context, q PostingQuery) ([]model.JobPosting, error) {
	var (
		where []string
		args  []any
	)
	if len(q.Sites) > 0 {
		where = append(where, "site IN ("+placeholders(len(q.Sites))+")")
		for _, site := range q.Sites {
			args = append(args, site)
		}
	}
	if len(q.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(q.Statuses))+")")
		for _, st := range q.Statuses {
			args = append(args, string(st))
		}
	}
	if !q.Since.IsZero() {
		where = append(where, "last_scraped_at >= ?")
		args = append(args, formatTime(q.Since))
	}

	query := "SELECT " + postingColumns + " FROM job_postings"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY last_scraped_at DESC, id"
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing postings: %w", err)
	}
	defer rows.Close()

	var out []model.JobPosting
	for rows.Next() {
		p, err := scanPosting(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning posting: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdatePostingStatus moves a posting from one status to another. It fails
// if the stored status is no longer from, so concurrent writers cannot both
// apply a transition.
func (s *SQLiteStore) UpdatePostingStatus(ctx context.Context, id string, from, to model.Status) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE job_postings SET status = ? WHERE id = ? AND status = ?",
		string(to), id, string(from))
	if err != nil {
		return fmt.Errorf("updating status of %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating status of %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("posting %s is no longer %s", id, from)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosting(r rowScanner) (model.JobPosting, error) {
	var (
		p               model.JobPosting
		postedAt        sql.NullString
		status          string
		first, lastSeen string
	)
	err := r.Scan(&p.ID, &p.Site, &p.ExternalID, &p.URL, &p.Title, &p.Company, &p.Location,
		&p.Description, &postedAt, &status, &first, &lastSeen)
	if err != nil {
		return model.JobPosting{}, err
	}
	p.Status = model.Status(status)
	if p.PostedAt, err = parseNullableTime(postedAt); err != nil {
		return model.JobPosting{}, err
	}
	if p.FirstScrapedAt, err = parseTime(first); err != nil {
		return model.JobPosting{}, err
	}
	if p.LastScrapedAt, err = parseTime(lastSeen); err != nil {
		return model.JobPosting{}, err
	}
	return p, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
