package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestWorkdaySearch_SendsQueryAndOffset(t *testing.T) {
	var reqBody workdayListingRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/jobs" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&reqBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"total": 41,
			"jobPostings": [
				{
					"title": "Software Engineer",
					"externalPath": "/job/Software-Engineer/JR328732",
					"locationsText": "San Francisco, CA",
					"postedOn": "Posted Yesterday"
				}
			]
		}`))
	}))
	defer srv.Close()

	a := NewWorkdayAdapter("testco-wd", srv.URL, "TestCo", srv.Client())
	postings, err := a.Search(context.Background(), nil, "golang engineer", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reqBody.SearchText != "golang engineer" || reqBody.Offset != 40 || reqBody.Limit != workdayPageSize {
		t.Errorf("unexpected listing request: %+v", reqBody)
	}
	if len(postings) != 1 {
		t.Fatalf("expected 1 posting, got %d", len(postings))
	}
	p := postings[0]
	if p.ExternalID != "/job/Software-Engineer/JR328732" {
		t.Errorf("unexpected external id %q", p.ExternalID)
	}
	if p.URL != srv.URL+"/job/Software-Engineer/JR328732" {
		t.Errorf("unexpected URL %q", p.URL)
	}
	if p.PostedAt == nil {
		t.Error("expected PostedAt from postedOn")
	}
}

func TestWorkdaySearch_EmptyPageEndsListing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"total": 0, "jobPostings": []}`))
	}))
	defer srv.Close()

	a := NewWorkdayAdapter("testco-wd", srv.URL, "TestCo", srv.Client())
	postings, err := a.Search(context.Background(), nil, "", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if postings != nil {
		t.Fatalf("expected nil, got %d postings", len(postings))
	}
}

func TestWorkdayFetchDetail_Success(t *testing.T) {
	detailResp := `{
		"jobPostingInfo": {
			"jobReqId": "JR328732",
			"title": "Software Engineer",
			"location": "San Francisco, CA",
			"postedOn": "Posted Today",
			"startDate": "2026-02-17",
			"externalUrl": "https://salesforce.wd12.myworkdayjobs.com/Slack/job/Software-Engineer/JR328732",
			"country": {"descriptor": "United States of America"},
			"additionalLocations": ["New York, NY"],
			"jobDescription": "<p>Build scalable systems.</p>"
		}
	}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/job/Software-Engineer/JR328732" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(detailResp))
	}))
	defer srv.Close()

	a := NewWorkdayAdapter("testco-wd", srv.URL, "TestCo", srv.Client())
	p, err := a.FetchDetail(context.Background(), nil, "job/Software-Engineer/JR328732")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Location != "San Francisco, CA; New York, NY" {
		t.Errorf("expected location 'San Francisco, CA; New York, NY', got %s", p.Location)
	}
	if p.PostedAt == nil || p.PostedAt.Year() != 2026 || p.PostedAt.Month() != 2 || p.PostedAt.Day() != 17 {
		t.Errorf("unexpected PostedAt: %v", p.PostedAt)
	}
	if p.Description != "Build scalable systems." {
		t.Errorf("expected description 'Build scalable systems.', got %q", p.Description)
	}
	if p.URL != srv.URL+"/job/Software-Engineer/JR328732" {
		t.Errorf("detail URL should match the listing URL, got %q", p.URL)
	}
}

func TestWorkdaySearch_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	a := NewWorkdayAdapter("testco-wd", srv.URL, "TestCo", srv.Client())
	_, err := a.Search(context.Background(), nil, "", 1)
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected 502 error, got %v", err)
	}
}

func TestParsePostedOn(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	today := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want *time.Time
	}{
		{"Posted Today", &today},
		{"Posted Yesterday", ptr(today.AddDate(0, 0, -1))},
		{"Posted 3 Days Ago", ptr(today.AddDate(0, 0, -3))},
		{"Posted 30+ Days Ago", ptr(today.AddDate(0, 0, -30))},
		{"sometime", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := parsePostedOn(tt.in, now)
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("got %v, want nil", got)
			case tt.want != nil && (got == nil || !got.Equal(*tt.want)):
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func ptr(t time.Time) *time.Time { return &t }
