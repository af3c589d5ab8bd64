package model

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"
)

// RawPosting is a listing as an adapter scraped it, before normalization.
type RawPosting struct {
	Site        string     // configured site name
	ExternalID  string     // the site's own id, used for FetchDetail
	URL         string     // canonical source URL
	Title       string
	Company     string
	Location    string
	Description string     // may contain HTML
	PostedAt    *time.Time // nullable (not all sites provide this)
	ScrapedAt   time.Time
}

// JobPosting is a normalized, persisted listing.
type JobPosting struct {
	ID             string // PostingID(Site, URL)
	Site           string
	ExternalID     string
	URL            string
	Title          string
	Company        string
	Location       string
	Description    string // plain text / markdown
	PostedAt       *time.Time
	Status         Status
	FirstScrapedAt time.Time
	LastScrapedAt  time.Time
}

// PostingID is the stable identity of a posting across re-scrapes.
func PostingID(site, sourceURL string) string {
	sum := sha256.Sum256([]byte(site + "\x00" + sourceURL))
	return hex.EncodeToString(sum[:])
}

// Session is per-site login state owned by the orchestrator and passed to adapter calls.
// Stateless sites get a Session with a nil Jar.
type Session struct {
	Site      string
	Jar       http.CookieJar
	Token     string
	CreatedAt time.Time
}

// Adapter is the capability every source site exposes. Pages are 1-based.
// Search returns a nil slice once the listing is exhausted; a non-nil empty
// slice means the page existed but nothing on it matched the query.
// Postings whose Description is empty are completed through FetchDetail,
// keyed by ExternalID.
type Adapter interface {
	Site() string
	Login(ctx context.Context) (*Session, error)
	Search(ctx context.Context, sess *Session, query string, page int) ([]RawPosting, error)
	FetchDetail(ctx context.Context, sess *Session, id string) (RawPosting, error)
}

// Notifier sends notifications for newly scraped postings.
type Notifier interface {
	Notify(postings []JobPosting) error
}

// PostingFilter decides whether a posting matches a query.
type PostingFilter interface {
	Match(p JobPosting) bool
}
