package notifier

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amishk599/autoapply/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func timePtr(t time.Time) *time.Time { return &t }

func samplePosting(title, company string) model.JobPosting {
	url := "https://example.com/apply/" + strings.ReplaceAll(strings.ToLower(title+company), " ", "-")
	return model.JobPosting{
		ID:       model.PostingID("greenhouse", url),
		Site:     "greenhouse",
		Company:  company,
		Title:    title,
		Location: "Remote, US",
		URL:      url,
		PostedAt: timePtr(time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)),
	}
}

// fastSlack returns a notifier whose retries do not slow the tests down.
func fastSlack(url string, client *http.Client) *SlackNotifier {
	n := NewSlackNotifier(url, client, discardLogger())
	n.retry.BaseDelay = time.Millisecond
	n.retry.MaxDelay = 5 * time.Millisecond
	return n
}

func TestSlackNotifier_EmptyPostings(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := fastSlack(srv.URL, srv.Client())

	if err := n.Notify(nil); err != nil {
		t.Errorf("Notify(nil) = %v, want nil", err)
	}
	if err := n.Notify([]model.JobPosting{}); err != nil {
		t.Errorf("Notify([]) = %v, want nil", err)
	}
	if c := calls.Load(); c != 0 {
		t.Errorf("expected 0 HTTP calls, got %d", c)
	}
}

func TestSlackNotifier_SinglePosting(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := fastSlack(srv.URL, srv.Client())
	p := samplePosting("Backend Engineer", "Acme Corp")

	if err := n.Notify([]model.JobPosting{p}); err != nil {
		t.Fatalf("Notify() = %v, want nil", err)
	}

	var payload slackPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}

	if payload.Text != "1 new posting" {
		t.Errorf("fallback text = %q", payload.Text)
	}
	if got := payload.Blocks[0].Text.Text; got != "🚀 1 new posting" {
		t.Errorf("header text = %q", got)
	}
	section := payload.Blocks[1]
	if section.Text.Text != "*Backend Engineer*\nAcme Corp · Remote, US" {
		t.Errorf("section text = %q", section.Text.Text)
	}
	if section.Accessory == nil || section.Accessory.URL != p.URL {
		t.Errorf("button = %+v, want link to %s", section.Accessory, p.URL)
	}
	if got := payload.Blocks[2].Elements[0].Text; got != "greenhouse · posted Jan 15 2026" {
		t.Errorf("context = %q", got)
	}
}

func TestSlackNotifier_BatchesPostings(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var postings []model.JobPosting
	for i := 0; i < 12; i++ {
		postings = append(postings, samplePosting(fmt.Sprintf("Engineer %d", i), "Acme"))
	}

	if err := fastSlack(srv.URL, srv.Client()).Notify(postings); err != nil {
		t.Fatalf("Notify() = %v, want nil", err)
	}
	if c := calls.Load(); c != 2 {
		t.Errorf("expected 2 messages for 12 postings, got %d", c)
	}
}

func TestSlackNotifier_AllFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := fastSlack(srv.URL, srv.Client())
	if err := n.Notify([]model.JobPosting{samplePosting("A", "X")}); err == nil {
		t.Error("expected error when all messages fail, got nil")
	}
}

func TestSlackNotifier_DoesNotRetryClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	if err := fastSlack(srv.URL, srv.Client()).Notify([]model.JobPosting{samplePosting("A", "X")}); err == nil {
		t.Fatal("expected error for 404 webhook")
	}
	if c := calls.Load(); c != 1 {
		t.Errorf("expected 1 call, got %d", c)
	}
}

func TestSlackNotifier_PartialFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var postings []model.JobPosting
	for i := 0; i < 15; i++ {
		postings = append(postings, samplePosting(fmt.Sprintf("Engineer %d", i), "Acme"))
	}
	if err := fastSlack(srv.URL, srv.Client()).Notify(postings); err != nil {
		t.Errorf("expected nil (partial success), got %v", err)
	}
}

func TestSlackNotifier_RateLimited(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := fastSlack(srv.URL, srv.Client()).Notify([]model.JobPosting{samplePosting("Rate Limited Job", "Test")})
	if err != nil {
		t.Fatalf("expected nil after retry, got %v", err)
	}
	if c := calls.Load(); c != 2 {
		t.Errorf("expected 2 HTTP calls (initial + retry), got %d", c)
	}
}

func TestBuildPayload_MissingFields(t *testing.T) {
	p := model.JobPosting{Site: "lever", Title: "SRE", Company: "TestCo", URL: "https://example.com/sre"}
	payload := buildPayload([]model.JobPosting{p}, 3)

	if len(payload.Blocks) != 4 {
		t.Fatalf("expected 4 blocks, got %d", len(payload.Blocks))
	}
	if payload.Text != "3 new postings" {
		t.Errorf("text = %q", payload.Text)
	}
	if !strings.Contains(payload.Blocks[1].Text.Text, "location not listed") {
		t.Errorf("section = %q", payload.Blocks[1].Text.Text)
	}
	if got := payload.Blocks[2].Elements[0].Text; got != "lever · just scraped" {
		t.Errorf("context = %q", got)
	}
	if payload.Blocks[3].Type != "divider" {
		t.Errorf("last block = %q, want divider", payload.Blocks[3].Type)
	}
}

func TestSampleDigest_RendersLikeAScrapeRun(t *testing.T) {
	now := time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)
	digest := SampleDigest(now)
	if len(digest) != 3 {
		t.Fatalf("digest has %d postings, want 3", len(digest))
	}
	seen := map[string]bool{}
	for _, p := range digest {
		if seen[p.ID] {
			t.Errorf("duplicate posting id %s", p.ID)
		}
		seen[p.ID] = true
		if p.ID != model.PostingID(p.Site, p.URL) {
			t.Errorf("posting %q id not derived from site and url", p.Title)
		}
	}

	payload := buildPayload(digest, len(digest))
	if payload.Text != "3 new postings" {
		t.Errorf("fallback text = %q", payload.Text)
	}
	// header, then section and context per posting, then a divider
	if len(payload.Blocks) != 8 {
		t.Fatalf("got %d blocks, want 8", len(payload.Blocks))
	}
	if got := payload.Blocks[4].Elements[0].Text; got != "sample-lever · just scraped" {
		t.Errorf("unposted context = %q", got)
	}
	if got := payload.Blocks[5].Text.Text; !strings.HasSuffix(got, "· location not listed") {
		t.Errorf("missing-location section = %q", got)
	}
	if got := payload.Blocks[2].Elements[0].Text; got != "sample-greenhouse · posted Apr 9 2026" {
		t.Errorf("posted context = %q", got)
	}
}
