// Package pipeline exposes the operations the CLI drives: scraping, listing
// postings, running AI tasks, usage statistics and status transitions.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/amishk599/autoapply/internal/ai"
	"github.com/amishk599/autoapply/internal/budget"
	"github.com/amishk599/autoapply/internal/cache"
	"github.com/amishk599/autoapply/internal/filter"
	"github.com/amishk599/autoapply/internal/lifecycle"
	"github.com/amishk599/autoapply/internal/model"
	"github.com/amishk599/autoapply/internal/scraper"
	"github.com/amishk599/autoapply/internal/store"
)

// Store is the persistence the pipeline reads directly.
type Store interface {
	GetPosting(ctx context.Context, id string) (model.JobPosting, error)
	ListPostings(ctx context.Context, q store.PostingQuery) ([]model.JobPosting, error)
	LatestArtifact(ctx context.Context, postingID string, task model.TaskType, level model.TailoringLevel) (model.AIArtifact, error)
	CountArtifactsByTask(ctx context.Context) (map[model.TaskType]int, error)
	GetApplication(ctx context.Context, postingID string) (model.ApplicationRecord, error)
	PendingFollowUps(ctx context.Context, now time.Time) ([]model.ApplicationRecord, error)
	ApplicationStats(ctx context.Context, now time.Time) (model.ApplicationStats, error)
	PostingIDsWithPrefix(ctx context.Context, prefix string, limit int) ([]string, error)
}

// Pipeline wires the components together. Gateway, Budget and Cache are nil
// when AI is disabled.
type Pipeline struct {
	Store   Store
	Scrapes *scraper.Tracker
	Gateway *ai.Gateway
	Budget  *budget.Tracker
	Cache   *cache.Cache
	Machine *lifecycle.Machine
	Profile *model.CandidateProfile
	Logger  *slog.Logger
	Clock   func() time.Time // defaults to time.Now
}

// StartScrape launches an asynchronous scrape and returns its job id.
func (p *Pipeline) StartScrape(ctx context.Context, sites []string, query string, maxPages int) (string, error) {
	return p.Scrapes.Start(ctx, scraper.Request{Sites: sites, Query: query, MaxPages: maxPages})
}

// ScrapeJob returns the progress of a scrape started with StartScrape.
func (p *Pipeline) ScrapeJob(id string) (scraper.ScrapeJob, error) {
	return p.Scrapes.Get(id)
}

// JobQuery filters GetJobs. Zero values match everything.
type JobQuery struct {
	Sites     []string
	Statuses  []model.Status
	Since     time.Time
	Titles    []string // any of, case-insensitive substring
	Locations []string
	Companies []string
	Text      string // every word must appear in title or description
	Limit     int
}

func (q JobQuery) filters() filter.All {
	var f filter.All
	if len(q.Titles) > 0 || len(q.Locations) > 0 {
		f = append(f, filter.NewTitleAndLocationFilter(q.Titles, q.Locations))
	}
	if len(q.Companies) > 0 {
		f = append(f, filter.NewCompanyFilter(q.Companies))
	}
	if q.Text != "" {
		f = append(f, filter.NewTextFilter(q.Text))
	}
	return f
}

// GetJobs returns stored postings matching q, most recently scraped first.
func (p *Pipeline) GetJobs(ctx context.Context, q JobQuery) ([]model.JobPosting, error) {
	for _, st := range q.Statuses {
		if _, err := model.ParseStatus(string(st)); err != nil {
			return nil, model.InvalidInput(err.Error())
		}
	}
	sq := store.PostingQuery{Sites: q.Sites, Statuses: q.Statuses, Since: q.Since}
	f := q.filters()
	if len(f) == 0 {
		sq.Limit = q.Limit
	}

	postings, err := p.Store.ListPostings(ctx, sq)
	if err != nil {
		return nil, err
	}
	if len(f) == 0 {
		return postings, nil
	}

	var out []model.JobPosting
	for _, posting := range postings {
		if !f.Match(posting) {
			continue
		}
		out = append(out, posting)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

// RunAITask produces (or serves from cache) the artifact of one task for a posting.
func (p *Pipeline) RunAITask(ctx context.Context, postingID string, task model.TaskType, opts model.TaskOptions) (model.AIArtifact, error) {
	if p.Gateway == nil {
		return model.AIArtifact{}, model.ProviderUnavailable("AI is disabled in config", nil)
	}
	posting, err := p.Store.GetPosting(ctx, postingID)
	if err != nil {
		return model.AIArtifact{}, err
	}

	in := ai.Input{Posting: posting, Profile: p.Profile}
	switch task {
	case model.TaskJDAnalysis:
	case model.TaskFollowUp:
		if in.DaysSinceApplied, err = p.daysSinceApplied(ctx, postingID); err != nil {
			return model.AIArtifact{}, err
		}
	default:
		in.Analysis, err = p.LatestAnalysis(ctx, postingID)
		if err != nil {
			return model.AIArtifact{}, err
		}
	}
	return p.Gateway.Process(ctx, postingID, task, in, opts)
}

// daysSinceApplied gates follow-up emails to applications awaiting a reply.
func (p *Pipeline) daysSinceApplied(ctx context.Context, postingID string) (int, error) {
	rec, err := p.Store.GetApplication(ctx, postingID)
	if errors.Is(err, model.ErrNotFound) {
		return 0, model.InvalidInput("follow-up email needs an application marked applied")
	}
	if err != nil {
		return 0, err
	}
	applied, ok := rec.AppliedAt()
	if !ok || !rec.AwaitingReply() {
		return 0, model.InvalidInput(fmt.Sprintf("cannot follow up an application in status %s", rec.Status))
	}
	return int(p.now().Sub(applied).Hours() / 24), nil
}

// MaxBatch caps RunAITaskBatch.
const MaxBatch = 20

// BatchResult is the outcome of one posting in a batch.
type BatchResult struct {
	PostingID string
	Artifact  model.AIArtifact
	Err       error
}

// RunAITaskBatch runs one task over several postings in order. Postings
// already processed are served from the cache. A quota denial or
// cancellation stops the batch; the postings not attempted carry that error.
func (p *Pipeline) RunAITaskBatch(ctx context.Context, postingIDs []string, task model.TaskType, opts model.TaskOptions) ([]BatchResult, error) {
	if len(postingIDs) > MaxBatch {
		return nil, model.InvalidInput(fmt.Sprintf("at most %d postings per batch, got %d", MaxBatch, len(postingIDs)))
	}
	results := make([]BatchResult, len(postingIDs))
	var stop error
	for i, id := range postingIDs {
		results[i].PostingID = id
		if stop != nil {
			results[i].Err = stop
			continue
		}
		results[i].Artifact, results[i].Err = p.RunAITask(ctx, id, task, opts)
		switch {
		case ctx.Err() != nil:
			stop = ctx.Err()
		case errors.Is(results[i].Err, model.ErrQuotaExceeded):
			stop = results[i].Err
		}
	}
	return results, nil
}

// LatestAnalysis returns the newest analysis of the posting, or nil if it has none.
func (p *Pipeline) LatestAnalysis(ctx context.Context, postingID string) (*ai.JDAnalysis, error) {
	a, err := p.Store.LatestArtifact(ctx, postingID, model.TaskJDAnalysis, "")
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	decoded, err := ai.DecodePayload(a)
	if err != nil {
		return nil, err
	}
	analysis, ok := decoded.(*ai.JDAnalysis)
	if !ok {
		return nil, fmt.Errorf("artifact %s: unexpected payload %T", a.ID, decoded)
	}
	return analysis, nil
}

// UsageStats is the view returned by GetUsageStats.
type UsageStats struct {
	budget.Usage
	Cache     cache.Stats
	Artifacts map[model.TaskType]int
}

// GetUsageStats reports quota counters, ceilings, cache counters and stored artifact counts.
func (p *Pipeline) GetUsageStats(ctx context.Context) (UsageStats, error) {
	var stats UsageStats
	if p.Budget != nil {
		stats.Usage = p.Budget.Usage()
	}
	if p.Cache != nil {
		stats.Cache = p.Cache.Stats()
	}
	counts, err := p.Store.CountArtifactsByTask(ctx)
	if err != nil {
		return UsageStats{}, err
	}
	stats.Artifacts = counts
	return stats, nil
}

// ResolvePostingID expands a unique id prefix, as printed by the CLI, to the
// full posting id.
func (p *Pipeline) ResolvePostingID(ctx context.Context, prefix string) (string, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if len(prefix) < 4 {
		return "", model.InvalidInput("posting id must have at least 4 characters")
	}
	ids, err := p.Store.PostingIDsWithPrefix(ctx, prefix, 2)
	if err != nil {
		return "", err
	}
	switch len(ids) {
	case 0:
		return "", model.NotFound(fmt.Sprintf("posting %s", prefix))
	case 1:
		return ids[0], nil
	default:
		return "", model.InvalidInput(fmt.Sprintf("posting id %s is ambiguous", prefix))
	}
}

// TransitionStatus moves a posting along its lifecycle.
func (p *Pipeline) TransitionStatus(ctx context.Context, postingID string, target model.Status) (model.JobPosting, error) {
	return p.Machine.Transition(ctx, postingID, target)
}

// Application returns the application record of a posting.
func (p *Pipeline) Application(ctx context.Context, postingID string) (model.ApplicationRecord, error) {
	return p.Store.GetApplication(ctx, postingID)
}

// ScheduleFollowUp sets a follow-up reminder days from now.
func (p *Pipeline) ScheduleFollowUp(ctx context.Context, postingID string, days int, notes string) (model.ApplicationRecord, error) {
	if days < 0 {
		return model.ApplicationRecord{}, model.InvalidInput("follow-up days must not be negative")
	}
	return p.Machine.ScheduleFollowUp(ctx, postingID, p.now().AddDate(0, 0, days), notes)
}

// PendingFollowUps lists applications awaiting a reply whose follow-up is due.
func (p *Pipeline) PendingFollowUps(ctx context.Context) ([]model.ApplicationRecord, error) {
	return p.Store.PendingFollowUps(ctx, p.now())
}

// ApplicationStats counts applications by status with the response rate.
func (p *Pipeline) ApplicationStats(ctx context.Context) (model.ApplicationStats, error) {
	return p.Store.ApplicationStats(ctx, p.now())
}

func (p *Pipeline) now() time.Time {
	if p.Clock != nil {
		return p.Clock().UTC()
	}
	return time.Now().UTC()
}
