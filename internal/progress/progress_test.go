package progress

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/amishk599/autoapply/internal/scraper"
)

func runningJob() scraper.ScrapeJob {
	return scraper.ScrapeJob{
		ID:         "job-1",
		Sites:      []string{"acme", "globex"},
		Query:      "golang",
		MaxPages:   2,
		Status:     scraper.JobRunning,
		PagesDone:  1,
		PagesTotal: 4,
		Found:      7,
		SiteErrors: map[string]string{"globex": "SITE_AUTH: login rejected"},
	}
}

func TestUpdate_RunningJobKeepsPolling(t *testing.T) {
	m := newWatchModel(func() (scraper.ScrapeJob, error) { return runningJob(), nil }, time.Millisecond)

	next, cmd := m.Update(pollMsg{job: runningJob()})
	wm := next.(watchModel)
	if wm.done {
		t.Fatal("running job should not end the view")
	}
	if cmd == nil {
		t.Fatal("expected a follow-up poll")
	}
	if got := wm.job.Found; got != 7 {
		t.Errorf("found = %d, want 7", got)
	}
}

func TestUpdate_FinishedJobQuits(t *testing.T) {
	m := newWatchModel(nil, time.Millisecond)
	job := runningJob()
	job.Status = scraper.JobCompleted

	next, cmd := m.Update(pollMsg{job: job})
	if !next.(watchModel).done {
		t.Fatal("finished job should end the view")
	}
	if cmd == nil {
		t.Fatal("expected tea.Quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected quit command")
	}
}

func TestUpdate_PollErrorQuits(t *testing.T) {
	m := newWatchModel(nil, time.Millisecond)
	next, _ := m.Update(pollMsg{err: errors.New("gone")})
	wm := next.(watchModel)
	if !wm.done || wm.err == nil {
		t.Fatalf("model = %+v, want done with error", wm)
	}
}

func TestUpdate_QuitKeyDetaches(t *testing.T) {
	m := newWatchModel(nil, time.Millisecond)
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	wm := next.(watchModel)
	if !wm.done || !wm.cancelled {
		t.Fatalf("model = %+v, want done and cancelled", wm)
	}
}

func TestView_ShowsCountsAndSiteErrors(t *testing.T) {
	m := newWatchModel(nil, time.Millisecond)
	m.job = runningJob()

	out := m.View()
	for _, want := range []string{`Scraping 2 site(s) for "golang"`, "pages 1/4", "found 7", "globex: SITE_AUTH: login rejected"} {
		if !strings.Contains(out, want) {
			t.Errorf("view missing %q:\n%s", want, out)
		}
	}

	m.done = true
	if m.View() != "" {
		t.Error("finished view should be empty")
	}
}
