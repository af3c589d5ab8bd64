package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/amishk599/autoapply/internal/model"
)

// JobStatus is the state of an asynchronous scrape.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Finished reports whether the job can no longer change.
func (s JobStatus) Finished() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// ScrapeJob is a pollable snapshot of one scrape.
type ScrapeJob struct {
	ID         string
	Sites      []string
	Query      string
	MaxPages   int
	Status     JobStatus
	PagesDone  int
	PagesTotal int
	Found      int
	New        int
	Updated    int
	SiteErrors map[string]string
	Err        string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Progress is the share of planned pages already handled, 0..100. A site
// that stops early counts all of its remaining pages as handled.
func (j ScrapeJob) Progress() float64 {
	if j.Status.Finished() {
		return 100
	}
	if j.PagesTotal == 0 {
		return 0
	}
	return float64(j.PagesDone) / float64(j.PagesTotal) * 100
}

type trackedJob struct {
	job    ScrapeJob
	pages  map[string]int // pages handled per site
	found  map[string]int
	cancel context.CancelFunc
}

// Tracker runs scrapes in the background and keeps their records in memory.
type Tracker struct {
	orch     *Orchestrator
	notifier model.Notifier
	logger   *slog.Logger

	mu   sync.Mutex
	jobs map[string]*trackedJob
	wg   sync.WaitGroup
}

// NewTracker creates a tracker. notifier may be nil.
func NewTracker(orch *Orchestrator, notifier model.Notifier, logger *slog.Logger) *Tracker {
	return &Tracker{
		orch:     orch,
		notifier: notifier,
		logger:   logger,
		jobs:     make(map[string]*trackedJob),
	}
}

// Start validates req, launches the scrape and returns its job id at once.
// Cancelling ctx cancels the scrape.
func (t *Tracker) Start(ctx context.Context, req Request) (string, error) {
	req, err := t.orch.Normalize(req)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithCancel(ctx)
	tj := &trackedJob{
		job: ScrapeJob{
			ID:         uuid.NewString(),
			Sites:      slices.Clone(req.Sites),
			Query:      req.Query,
			MaxPages:   req.MaxPages,
			Status:     JobPending,
			PagesTotal: len(req.Sites) * req.MaxPages,
			SiteErrors: make(map[string]string),
		},
		pages:  make(map[string]int),
		found:  make(map[string]int),
		cancel: cancel,
	}

	t.mu.Lock()
	t.jobs[tj.job.ID] = tj
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer cancel()
		t.run(ctx, tj, req)
	}()
	return tj.job.ID, nil
}

func (t *Tracker) run(ctx context.Context, tj *trackedJob, req Request) {
	t.update(tj, func(j *ScrapeJob) {
		j.Status = JobRunning
		j.StartedAt = time.Now()
	})
	log := t.logger.With("job", tj.job.ID)
	log.Info("scrape started", "sites", req.Sites, "query", req.Query, "max_pages", req.MaxPages)

	res, err := t.orch.Scrape(ctx, req, func(ev Event) {
		t.update(tj, func(j *ScrapeJob) { t.apply(tj, j, ev) })
	})

	t.update(tj, func(j *ScrapeJob) {
		j.New = res.New
		j.Updated = res.Updated
		j.FinishedAt = time.Now()
		switch {
		case errors.Is(err, context.Canceled) || ctx.Err() != nil:
			j.Status = JobCancelled
		case err != nil:
			j.Status = JobFailed
			j.Err = err.Error()
		case len(j.SiteErrors) == len(j.Sites):
			j.Status = JobFailed
			j.Err = "every site failed"
		default:
			j.Status = JobCompleted
		}
	})

	snap, _ := t.Get(tj.job.ID)
	log.Info("scrape finished",
		"status", snap.Status,
		"found", snap.Found,
		"new", snap.New,
		"updated", snap.Updated,
		"site_errors", len(snap.SiteErrors),
	)

	if t.notifier != nil && len(res.NewPostings) > 0 {
		if err := t.notifier.Notify(res.NewPostings); err != nil {
			log.Error("notify failed", "error", err)
		}
	}
}

// apply folds one worker event into the job record. Called under t.mu.
func (t *Tracker) apply(tj *trackedJob, j *ScrapeJob, ev Event) {
	if ev.Done {
		tj.pages[ev.Site] = j.MaxPages
		if ev.Err != nil {
			j.SiteErrors[ev.Site] = ev.Err.Error()
		}
	} else if ev.Page > tj.pages[ev.Site] {
		tj.pages[ev.Site] = ev.Page
	}

	j.PagesDone = 0
	for _, n := range tj.pages {
		j.PagesDone += n
	}
	tj.found[ev.Site] = ev.Found
	j.Found = 0
	for _, n := range tj.found {
		j.Found += n
	}
}

func (t *Tracker) update(tj *trackedJob, fn func(*ScrapeJob)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&tj.job)
}

// Get returns a snapshot of the job.
func (t *Tracker) Get(id string) (ScrapeJob, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tj, ok := t.jobs[id]
	if !ok {
		return ScrapeJob{}, model.NotFound(fmt.Sprintf("scrape job %s", id))
	}
	j := tj.job
	j.Sites = slices.Clone(j.Sites)
	j.SiteErrors = maps.Clone(j.SiteErrors)
	return j, nil
}

// List returns snapshots of all jobs, newest first.
func (t *Tracker) List() []ScrapeJob {
	t.mu.Lock()
	ids := make([]string, 0, len(t.jobs))
	for id := range t.jobs {
		ids = append(ids, id)
	}
	t.mu.Unlock()

	out := make([]ScrapeJob, 0, len(ids))
	for _, id := range ids {
		if j, err := t.Get(id); err == nil {
			out = append(out, j)
		}
	}
	slices.SortFunc(out, func(a, b ScrapeJob) int { return b.StartedAt.Compare(a.StartedAt) })
	return out
}

// Cancel stops a running job. Postings already written stay written.
func (t *Tracker) Cancel(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	tj, ok := t.jobs[id]
	if !ok {
		return model.NotFound(fmt.Sprintf("scrape job %s", id))
	}
	tj.cancel()
	return nil
}

// Wait blocks until every started job has finished.
func (t *Tracker) Wait() {
	t.wg.Wait()
}
