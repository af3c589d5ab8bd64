package model

import (
	"fmt"
	"strings"
)

// Status is the lifecycle status of a JobPosting.
type Status string

const (
	StatusScraped   Status = "scraped"
	StatusAnalyzed  Status = "analyzed"
	StatusTailored  Status = "tailored"
	StatusApplied   Status = "applied"
	StatusInterview Status = "interview"
	StatusOffer     Status = "offer"
	StatusRejected  Status = "rejected"
	StatusWithdrawn Status = "withdrawn"
)

// AllStatuses in lifecycle order.
var AllStatuses = []Status{
	StatusScraped, StatusAnalyzed, StatusTailored, StatusApplied,
	StatusInterview, StatusOffer, StatusRejected, StatusWithdrawn,
}

// ParseStatus converts a string to a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllStatuses {
		if st == known {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusOffer || s == StatusRejected || s == StatusWithdrawn
}
