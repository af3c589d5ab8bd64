package adapter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amishk599/autoapply/internal/model"
	"github.com/amishk599/autoapply/internal/retry"
)

const greenhouseBoard = `{
	"jobs": [
		{
			"id": 12345,
			"title": "Software Engineer",
			"location": {"name": "San Francisco, CA"},
			"absolute_url": "https://boards.greenhouse.io/acme/jobs/12345?utm_source=feed",
			"updated_at": "2026-02-13T10:00:00Z"
		},
		{
			"id": 67890,
			"title": "Backend Engineer",
			"location": {"name": "Remote, US"},
			"absolute_url": "https://boards.greenhouse.io/acme/jobs/67890",
			"updated_at": "2026-02-13T11:30:00Z"
		},
		{
			"id": 11111,
			"title": "Account Executive",
			"location": {"name": "New York, NY"},
			"absolute_url": "https://boards.greenhouse.io/acme/jobs/11111",
			"updated_at": "2026-02-12T08:00:00Z"
		}
	]
}`

func TestGreenhouseSearch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/boards/acme/jobs" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(greenhouseBoard))
	}))
	defer srv.Close()

	a := newTestAdapter(srv, "acme", "Acme Corp")
	postings, err := a.Search(context.Background(), nil, "engineer", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(postings) != 2 {
		t.Fatalf("expected 2 engineer postings, got %d", len(postings))
	}

	p := postings[0]
	if p.ExternalID != "12345" {
		t.Errorf("expected ID 12345, got %s", p.ExternalID)
	}
	if p.Site != "acme-gh" {
		t.Errorf("expected site acme-gh, got %s", p.Site)
	}
	if p.Company != "Acme Corp" {
		t.Errorf("expected company Acme Corp, got %s", p.Company)
	}
	if p.URL != "https://boards.greenhouse.io/acme/jobs/12345" {
		t.Errorf("expected tracking params stripped, got %s", p.URL)
	}
	if p.PostedAt == nil || p.PostedAt.Day() != 13 {
		t.Errorf("unexpected PostedAt: %v", p.PostedAt)
	}
	if p.Description != "" {
		t.Errorf("listing should carry no description, got %q", p.Description)
	}
}

func TestGreenhouseSearch_SinglePage(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(greenhouseBoard))
	}))
	defer srv.Close()

	a := newTestAdapter(srv, "acme", "Acme Corp")
	postings, err := a.Search(context.Background(), nil, "", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if postings != nil || calls != 0 {
		t.Fatalf("page 2 should be exhausted without a request, got %d postings, %d calls", len(postings), calls)
	}
}

func TestGreenhouseSearch_EmptyBoard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jobs": []}`))
	}))
	defer srv.Close()

	a := newTestAdapter(srv, "empty-co", "Empty Co")
	postings, err := a.Search(context.Background(), nil, "", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(postings) != 0 {
		t.Fatalf("expected 0 postings, got %d", len(postings))
	}
}

func TestGreenhouseSearch_MalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{not valid json`))
	}))
	defer srv.Close()

	a := newTestAdapter(srv, "bad-co", "Bad Co")
	if _, err := a.Search(context.Background(), nil, "", 1); err == nil {
		t.Fatal("expected error for malformed JSON, got nil")
	}
}

func TestGreenhouseSearch_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "12")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	a := newTestAdapter(srv, "fail-co", "Fail Co")
	_, err := a.Search(context.Background(), nil, "", 1)
	var httpErr *model.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.StatusCode != http.StatusTooManyRequests || httpErr.RetryAfter.Seconds() != 12 {
		t.Errorf("unexpected HTTPError: %+v", httpErr)
	}
}

func TestGreenhouseFetchDetail_Success(t *testing.T) {
	payload := `{
		"id": 44444,
		"title": "Product Engineer",
		"updated_at": "2026-02-13T10:00:00Z",
		"location": {"name": "San Francisco, CA"},
		"content": "&lt;p&gt;This is the job description.&lt;/p&gt;",
		"absolute_url": "https://boards.greenhouse.io/acme/jobs/44444"
	}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/boards/acme/jobs/44444" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(payload))
	}))
	defer srv.Close()

	a := newTestAdapter(srv, "acme", "Acme Corp")
	p, err := a.FetchDetail(context.Background(), nil, "44444")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Description != "This is the job description." {
		t.Errorf("expected description 'This is the job description.', got %q", p.Description)
	}
	if p.Title != "Product Engineer" {
		t.Errorf("unexpected title %q", p.Title)
	}
}

func TestGreenhouseFetchDetail_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	a := newTestAdapter(srv, "acme", "Acme Corp")
	if _, err := a.FetchDetail(context.Background(), nil, "99999"); err == nil {
		t.Fatal("expected error for HTTP 404, got nil")
	}
}

func TestExtractText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains []string
		absent   []string
	}{
		{
			name:     "double-encoded HTML from Greenhouse API",
			input:    "This is the job description. &lt;p&gt;Any HTML included.&lt;/p&gt;",
			contains: []string{"This is the job description.", "Any HTML included."},
			absent:   []string{"<p>", "&lt;"},
		},
		{
			name:     "list items survive as lines",
			input:    "&lt;p&gt;We are hiring.&lt;/p&gt;\n&lt;ul&gt;\n  &lt;li&gt;Write code&lt;/li&gt;\n  &lt;li&gt;Review PRs&lt;/li&gt;\n&lt;/ul&gt;",
			contains: []string{"We are hiring.", "Write code", "Review PRs"},
			absent:   []string{"<li>"},
		},
		{
			name:     "scripts are dropped",
			input:    "<p>Join us</p><script>alert('x')</script>",
			contains: []string{"Join us"},
			absent:   []string{"alert"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := extractText(tc.input, "https://boards.greenhouse.io")
			for _, want := range tc.contains {
				if !strings.Contains(got, want) {
					t.Errorf("extractText(%q) = %q, missing %q", tc.input, got, want)
				}
			}
			for _, bad := range tc.absent {
				if strings.Contains(got, bad) {
					t.Errorf("extractText(%q) = %q, should not contain %q", tc.input, got, bad)
				}
			}
		})
	}

	if got := extractText("", ""); got != "" {
		t.Errorf("extractText(\"\") = %q, want empty", got)
	}
}

func TestCanonicalURL(t *testing.T) {
	tests := []struct{ in, want string }{
		{"HTTPS://Jobs.Example.com/a?utm_source=x&id=3#apply", "https://jobs.example.com/a?id=3"},
		{"https://jobs.example.com/a", "https://jobs.example.com/a"},
		{"not a url", "not a url"},
	}
	for _, tt := range tests {
		if got := canonicalURL(tt.in); got != tt.want {
			t.Errorf("canonicalURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// --- helpers ---

// roundTripFunc adapts a function into an http.RoundTripper.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// redirectClient sends every request to srv, keeping the path.
func redirectClient(srv *httptest.Server) *http.Client {
	return &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			req.URL.Scheme = "http"
			req.URL.Host = srv.Listener.Addr().String()
			return http.DefaultTransport.RoundTrip(req)
		}),
	}
}

// newTestAdapter creates a GreenhouseAdapter wired to a test server.
func newTestAdapter(srv *httptest.Server, token, company string) *GreenhouseAdapter {
	return NewGreenhouseAdapter("acme-gh", token, company, redirectClient(srv))
}

func TestGreenhouseSearch_ClientTimeoutIsRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			select {
			case <-time.After(200 * time.Millisecond):
			case <-r.Context().Done():
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(greenhouseBoard))
	}))
	defer srv.Close()

	client := redirectClient(srv)
	client.Timeout = 50 * time.Millisecond
	a := NewGreenhouseAdapter("acme-gh", "acme", "Acme Corp", client)

	_, err := a.Search(context.Background(), nil, "engineer", 1)
	if err == nil {
		t.Fatal("expected timeout error on first call")
	}
	if !retry.IsTransient(err) {
		t.Fatalf("client timeout should be transient: %v", err)
	}

	policy := retry.Policy{MaxRetries: 2, BaseDelay: time.Millisecond}
	postings, err := retry.Do(context.Background(), policy, "search", func(ctx context.Context) ([]model.RawPosting, error) {
		return a.Search(ctx, nil, "engineer", 1)
	})
	if err != nil {
		t.Fatalf("unexpected error after retry: %v", err)
	}
	if len(postings) != 2 {
		t.Errorf("expected 2 postings, got %d", len(postings))
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("server calls = %d, want 2", n)
	}
}
