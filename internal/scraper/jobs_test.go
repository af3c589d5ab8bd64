package scraper

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/amishk599/autoapply/internal/model"
)

type recordingNotifier struct {
	mu       sync.Mutex
	postings []model.JobPosting
}

func (n *recordingNotifier) Notify(postings []model.JobPosting) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.postings = append(n.postings, postings...)
	return nil
}

func TestTracker_RunsToCompletion(t *testing.T) {
	s := newTestStore(t)
	a := &mockAdapter{site: "alpha", pages: map[int][]model.RawPosting{
		1: {
			raw("alpha", "https://alpha.example/jobs/1", "Backend Engineer"),
			raw("alpha", "https://alpha.example/jobs/2", "Platform Engineer"),
		},
	}}
	n := &recordingNotifier{}
	tr := NewTracker(newTestOrchestrator(s, a), n, discardLogger())

	id, err := tr.Start(context.Background(), Request{Sites: []string{"alpha"}, MaxPages: 2})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	tr.Wait()

	job, err := tr.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if job.Status != JobCompleted {
		t.Errorf("status = %s, want completed", job.Status)
	}
	if job.Found != 2 || job.New != 2 || job.Updated != 0 {
		t.Errorf("found=%d new=%d updated=%d", job.Found, job.New, job.Updated)
	}
	if job.PagesDone != job.PagesTotal || job.Progress() != 100 {
		t.Errorf("pages %d/%d progress %.0f", job.PagesDone, job.PagesTotal, job.Progress())
	}
	if job.FinishedAt.IsZero() || job.StartedAt.IsZero() {
		t.Error("timestamps not set")
	}
	if len(n.postings) != 2 {
		t.Errorf("notified %d postings, want 2", len(n.postings))
	}
}

func TestTracker_AllSitesFailed(t *testing.T) {
	s := newTestStore(t)
	a := &mockAdapter{site: "alpha", loginErr: model.SiteAuth("locked", nil)}
	tr := NewTracker(newTestOrchestrator(s, a), nil, discardLogger())

	id, err := tr.Start(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	tr.Wait()

	job, _ := tr.Get(id)
	if job.Status != JobFailed {
		t.Errorf("status = %s, want failed", job.Status)
	}
	if job.SiteErrors["alpha"] == "" {
		t.Error("site error not recorded")
	}
}

func TestTracker_Cancel(t *testing.T) {
	s := newTestStore(t)
	started := make(chan struct{})
	a := &mockAdapter{site: "alpha", search: func(ctx context.Context, _ int) ([]model.RawPosting, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	tr := NewTracker(newTestOrchestrator(s, a), nil, discardLogger())

	id, err := tr.Start(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-started
	if err := tr.Cancel(id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	tr.Wait()

	job, _ := tr.Get(id)
	if job.Status != JobCancelled {
		t.Errorf("status = %s, want cancelled", job.Status)
	}
}

func TestTracker_RejectsInvalidRequest(t *testing.T) {
	tr := NewTracker(newTestOrchestrator(nil, &mockAdapter{site: "alpha"}), nil, discardLogger())
	if _, err := tr.Start(context.Background(), Request{Sites: []string{"nope"}}); !errors.Is(err, model.ErrInvalidInput) {
		t.Fatalf("got %v, want InvalidInput", err)
	}
	if len(tr.List()) != 0 {
		t.Error("invalid request must not create a job")
	}
}

func TestTracker_GetUnknown(t *testing.T) {
	tr := NewTracker(newTestOrchestrator(nil), nil, discardLogger())
	if _, err := tr.Get("missing"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("got %v, want NotFound", err)
	}
}
