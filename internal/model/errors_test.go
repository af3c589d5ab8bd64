package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorIs_MatchesKindThroughWrapping(t *testing.T) {
	err := fmt.Errorf("run task: %w", QuotaExceeded("per_day_calls", "5/5 calls used today"))

	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatal("expected errors.Is to match ErrQuotaExceeded")
	}
	if errors.Is(err, ErrProviderUnavailable) {
		t.Fatal("QuotaExceeded must not match ErrProviderUnavailable")
	}
	if KindOf(err) != KindQuotaExceeded {
		t.Errorf("KindOf = %q, want %q", KindOf(err), KindQuotaExceeded)
	}

	var typed *Error
	if !errors.As(err, &typed) {
		t.Fatal("expected errors.As to find *Error")
	}
	if typed.Ceiling != "per_day_calls" {
		t.Errorf("Ceiling = %q, want per_day_calls", typed.Ceiling)
	}
	if len(typed.Stack) == 0 {
		t.Error("expected a captured stack")
	}
}

func TestError_UnwrapsCause(t *testing.T) {
	cause := &HTTPError{StatusCode: 503}
	err := ProviderUnavailable("gave up after 3 attempts", cause)

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatal("expected HTTPError in chain")
	}
	if httpErr.StatusCode != 503 {
		t.Errorf("StatusCode = %d, want 503", httpErr.StatusCode)
	}
}

func TestKindOf_PlainError(t *testing.T) {
	if k := KindOf(errors.New("boom")); k != "" {
		t.Errorf("KindOf(plain) = %q, want empty", k)
	}
}

func TestParseTaskType(t *testing.T) {
	tests := []struct {
		in   string
		want TaskType
	}{
		{"jd_analysis", TaskJDAnalysis},
		{"jdAnalysis", TaskJDAnalysis},
		{"resumeTailor", TaskResumeTailor},
		{"cover_letter", TaskCoverLetter},
		{"MatchScore", TaskMatchScore},
	}
	for _, tc := range tests {
		got, err := ParseTaskType(tc.in)
		if err != nil {
			t.Errorf("ParseTaskType(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseTaskType(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
	if _, err := ParseTaskType("summarize"); err == nil {
		t.Error("expected error for unknown task type")
	}
}

func TestPostingID_StableAndSiteScoped(t *testing.T) {
	a := PostingID("lever", "https://jobs.lever.co/acme/1")
	b := PostingID("lever", "https://jobs.lever.co/acme/1")
	c := PostingID("greenhouse", "https://jobs.lever.co/acme/1")
	if a != b {
		t.Error("same site and URL must produce the same id")
	}
	if a == c {
		t.Error("different sites must produce different ids")
	}
}

func TestStatusTerminal(t *testing.T) {
	for _, s := range AllStatuses {
		want := s == StatusOffer || s == StatusRejected || s == StatusWithdrawn
		if s.Terminal() != want {
			t.Errorf("%s.Terminal() = %v, want %v", s, s.Terminal(), want)
		}
	}
}
