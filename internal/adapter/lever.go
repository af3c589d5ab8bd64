package adapter

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/amishk599/autoapply/internal/model"
)

const (
	leverBaseURL  = "https://api.lever.co/v0/postings"
	leverPageSize = 50
)

// leverCategories represents the categories object in a Lever job.
type leverCategories struct {
	Team         string   `json:"team"`
	Department   string   `json:"department"`
	Location     string   `json:"location"`
	Commitment   string   `json:"commitment"`
	AllLocations []string `json:"allLocations"`
}

type leverList struct {
	Text    string `json:"text"`
	Content string `json:"content"`
}

// leverJob represents a single job in the Lever API response.
type leverJob struct {
	ID               string          `json:"id"`
	Text             string          `json:"text"`
	Description      string          `json:"description"`
	DescriptionPlain string          `json:"descriptionPlain"`
	Lists            []leverList     `json:"lists"`
	Categories       leverCategories `json:"categories"`
	CreatedAt        int64           `json:"createdAt"`
	WorkplaceType    string          `json:"workplaceType"`
	HostedURL        string          `json:"hostedUrl"`
	ApplyURL         string          `json:"applyUrl"`
}

// LeverAdapter reads the Lever public postings API, paging with skip/limit.
type LeverAdapter struct {
	site        string
	companySlug string
	companyName string
	baseURL     string
	client      *http.Client
}

// NewLeverAdapter creates a new adapter for a Lever board.
func NewLeverAdapter(site, companySlug, companyName string, client *http.Client) *LeverAdapter {
	return &LeverAdapter{
		site:        site,
		companySlug: companySlug,
		companyName: companyName,
		baseURL:     leverBaseURL,
		client:      client,
	}
}

func (a *LeverAdapter) Site() string { return a.site }

// Login is a no-op: the postings API is public.
func (a *LeverAdapter) Login(_ context.Context) (*model.Session, error) {
	return statelessSession(a.site), nil
}

// Search returns one page of postings whose title matches query. Lever has
// no server-side text search, so a short page after filtering does not
// mean the board is exhausted; only an empty unfiltered page does.
func (a *LeverAdapter) Search(ctx context.Context, _ *model.Session, query string, page int) ([]model.RawPosting, error) {
	if page < 1 {
		page = 1
	}
	url := fmt.Sprintf("%s/%s?mode=json&skip=%d&limit=%d", a.baseURL, a.companySlug, (page-1)*leverPageSize, leverPageSize)

	var leverJobs []leverJob
	if err := doJSON(ctx, a.client, http.MethodGet, url, nil, &leverJobs, "lever fetch for "+a.companySlug); err != nil {
		return nil, err
	}
	if len(leverJobs) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	postings := make([]model.RawPosting, 0, len(leverJobs))
	for _, lj := range leverJobs {
		if !matchesQuery(lj.Text, query) {
			continue
		}
		postings = append(postings, a.toRaw(lj, now))
	}
	if len(postings) == 0 {
		// Keep paging: return a non-nil empty slice.
		return []model.RawPosting{}, nil
	}
	return postings, nil
}

// FetchDetail loads one posting.
func (a *LeverAdapter) FetchDetail(ctx context.Context, _ *model.Session, id string) (model.RawPosting, error) {
	url := fmt.Sprintf("%s/%s/%s?mode=json", a.baseURL, a.companySlug, id)

	var lj leverJob
	if err := doJSON(ctx, a.client, http.MethodGet, url, nil, &lj, "lever detail for "+a.companySlug); err != nil {
		return model.RawPosting{}, err
	}
	return a.toRaw(lj, time.Now().UTC()), nil
}

func (a *LeverAdapter) toRaw(lj leverJob, now time.Time) model.RawPosting {
	// Determine location: prefer allLocations if available, fallback to location
	location := lj.Categories.Location
	if len(lj.Categories.AllLocations) > 0 {
		location = strings.Join(lj.Categories.AllLocations, ", ")
	}

	// Convert createdAt (Unix milliseconds) to time.Time
	var postedAt *time.Time
	if lj.CreatedAt > 0 {
		t := time.UnixMilli(lj.CreatedAt).UTC()
		postedAt = &t
	}

	return model.RawPosting{
		Site:        a.site,
		ExternalID:  lj.ID,
		URL:         canonicalURL(lj.HostedURL),
		Title:       cleanText(lj.Text),
		Company:     a.companyName,
		Location:    location,
		Description: leverDescription(lj),
		PostedAt:    postedAt,
		ScrapedAt:   now,
	}
}

// leverDescription joins the opening text with the requirement lists.
func leverDescription(lj leverJob) string {
	var b strings.Builder
	if lj.Description != "" {
		b.WriteString(extractText(lj.Description, lj.HostedURL))
	} else {
		b.WriteString(lj.DescriptionPlain)
	}
	for _, l := range lj.Lists {
		fmt.Fprintf(&b, "\n\n## %s\n\n%s", cleanText(l.Text), extractText("<ul>"+l.Content+"</ul>", lj.HostedURL))
	}
	return strings.TrimSpace(b.String())
}
