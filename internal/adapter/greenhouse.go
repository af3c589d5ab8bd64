package adapter

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/amishk599/autoapply/internal/model"
)

const greenhouseBaseURL = "https://boards-api.greenhouse.io/v1/boards"

// greenhouseJob represents a single job in the Greenhouse API response.
type greenhouseJob struct {
	ID          int64              `json:"id"`
	Title       string             `json:"title"`
	Location    greenhouseLocation `json:"location"`
	AbsoluteURL string             `json:"absolute_url"`
	UpdatedAt   string             `json:"updated_at"`
	Content     string             `json:"content"`
}

type greenhouseLocation struct {
	Name string `json:"name"`
}

// greenhouseResponse is the top-level Greenhouse jobs API response.
type greenhouseResponse struct {
	Jobs []greenhouseJob `json:"jobs"`
}

// GreenhouseAdapter reads a Greenhouse public board. The board API returns
// every opening in one response, so there is a single page and the query
// is applied to titles locally.
type GreenhouseAdapter struct {
	site        string
	boardToken  string
	companyName string
	baseURL     string
	client      *http.Client
}

// NewGreenhouseAdapter creates a new adapter for a Greenhouse board.
func NewGreenhouseAdapter(site, boardToken, companyName string, client *http.Client) *GreenhouseAdapter {
	return &GreenhouseAdapter{
		site:        site,
		boardToken:  boardToken,
		companyName: companyName,
		baseURL:     greenhouseBaseURL,
		client:      client,
	}
}

func (a *GreenhouseAdapter) Site() string { return a.site }

// Login is a no-op: the boards API is public.
func (a *GreenhouseAdapter) Login(_ context.Context) (*model.Session, error) {
	return statelessSession(a.site), nil
}

// Search returns the board's jobs whose title matches query.
func (a *GreenhouseAdapter) Search(ctx context.Context, _ *model.Session, query string, page int) ([]model.RawPosting, error) {
	if page > 1 {
		return nil, nil
	}
	url := fmt.Sprintf("%s/%s/jobs", a.baseURL, a.boardToken)

	var ghResp greenhouseResponse
	if err := doJSON(ctx, a.client, http.MethodGet, url, nil, &ghResp, "greenhouse fetch for "+a.boardToken); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	postings := make([]model.RawPosting, 0, len(ghResp.Jobs))
	for _, gj := range ghResp.Jobs {
		if !matchesQuery(gj.Title, query) {
			continue
		}
		postings = append(postings, a.toRaw(gj, now))
	}
	return postings, nil
}

// FetchDetail loads one job including its description.
func (a *GreenhouseAdapter) FetchDetail(ctx context.Context, _ *model.Session, id string) (model.RawPosting, error) {
	url := fmt.Sprintf("%s/%s/jobs/%s", a.baseURL, a.boardToken, id)

	var gj greenhouseJob
	if err := doJSON(ctx, a.client, http.MethodGet, url, nil, &gj, "greenhouse detail for "+a.boardToken); err != nil {
		return model.RawPosting{}, err
	}
	return a.toRaw(gj, time.Now().UTC()), nil
}

func (a *GreenhouseAdapter) toRaw(gj greenhouseJob, now time.Time) model.RawPosting {
	raw := model.RawPosting{
		Site:       a.site,
		ExternalID: strconv.FormatInt(gj.ID, 10),
		URL:        canonicalURL(gj.AbsoluteURL),
		Title:      cleanText(gj.Title),
		Company:    a.companyName,
		Location:   cleanText(gj.Location.Name),
		ScrapedAt:  now,
	}
	if gj.Content != "" {
		raw.Description = extractText(gj.Content, gj.AbsoluteURL)
	}
	if gj.UpdatedAt != "" {
		if t, err := time.Parse(time.RFC3339, gj.UpdatedAt); err == nil {
			raw.PostedAt = &t
		}
	}
	return raw
}
