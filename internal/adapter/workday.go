package adapter

import (
	"context"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/amishk599/autoapply/internal/model"
)

const workdayPageSize = 20

// workdayListingResponse is the response from the Workday jobs listing endpoint.
type workdayListingResponse struct {
	Total       int              `json:"total"`
	JobPostings []workdayListing `json:"jobPostings"`
}

type workdayListing struct {
	Title         string   `json:"title"`
	ExternalPath  string   `json:"externalPath"`
	LocationsText string   `json:"locationsText"`
	PostedOn      string   `json:"postedOn"`
	BulletFields  []string `json:"bulletFields"`
}

// workdayListingRequest is the POST body for the Workday jobs listing endpoint.
type workdayListingRequest struct {
	AppliedFacets map[string]any `json:"appliedFacets"`
	Limit         int            `json:"limit"`
	Offset        int            `json:"offset"`
	SearchText    string         `json:"searchText"`
}

// workdayDetailResponse is the response from the Workday job detail endpoint.
type workdayDetailResponse struct {
	JobPostingInfo workdayJobDetail `json:"jobPostingInfo"`
}

type workdayJobDetail struct {
	JobReqID            string         `json:"jobReqId"`
	Title               string         `json:"title"`
	JobDescription      string         `json:"jobDescription"`
	Location            string         `json:"location"`
	PostedOn            string         `json:"postedOn"`
	StartDate           string         `json:"startDate"`
	ExternalURL         string         `json:"externalUrl"`
	Country             workdayCountry `json:"country"`
	AdditionalLocations []string       `json:"additionalLocations"`
}

type workdayCountry struct {
	Descriptor string `json:"descriptor"`
}

// WorkdayAdapter reads a Workday career site through its JSON endpoints.
// baseURL is the cxs API root, e.g.
// https://acme.wd5.myworkdayjobs.com/wday/cxs/acme/External.
type WorkdayAdapter struct {
	site        string
	baseURL     string
	companyName string
	client      *http.Client
}

// NewWorkdayAdapter creates a new adapter for a Workday career site.
func NewWorkdayAdapter(site, baseURL, companyName string, client *http.Client) *WorkdayAdapter {
	return &WorkdayAdapter{
		site:        site,
		baseURL:     strings.TrimRight(baseURL, "/"),
		companyName: companyName,
		client:      client,
	}
}

func (a *WorkdayAdapter) Site() string { return a.site }

// Login is a no-op: the career site API is public.
func (a *WorkdayAdapter) Login(_ context.Context) (*model.Session, error) {
	return statelessSession(a.site), nil
}

// Search posts the query to /jobs and returns one page of listings. The
// listing carries no description, so every result needs FetchDetail.
func (a *WorkdayAdapter) Search(ctx context.Context, _ *model.Session, query string, page int) ([]model.RawPosting, error) {
	if page < 1 {
		page = 1
	}
	body := workdayListingRequest{
		AppliedFacets: map[string]any{},
		Limit:         workdayPageSize,
		Offset:        (page - 1) * workdayPageSize,
		SearchText:    query,
	}

	var listResp workdayListingResponse
	if err := doJSON(ctx, a.client, http.MethodPost, a.baseURL+"/jobs", body, &listResp, "workday listing fetch for "+a.companyName); err != nil {
		return nil, err
	}
	if len(listResp.JobPostings) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	postings := make([]model.RawPosting, 0, len(listResp.JobPostings))
	for _, l := range listResp.JobPostings {
		postings = append(postings, model.RawPosting{
			Site:       a.site,
			ExternalID: l.ExternalPath,
			URL:        canonicalURL(a.jobURL(l.ExternalPath)),
			Title:      cleanText(l.Title),
			Company:    a.companyName,
			Location:   l.LocationsText,
			PostedAt:   parsePostedOn(l.PostedOn, now),
			ScrapedAt:  now,
		})
	}
	return postings, nil
}

// FetchDetail loads the posting at externalPath id.
func (a *WorkdayAdapter) FetchDetail(ctx context.Context, _ *model.Session, id string) (model.RawPosting, error) {
	var detail workdayDetailResponse
	if err := doJSON(ctx, a.client, http.MethodGet, a.jobURL(id), nil, &detail, "workday detail fetch for "+a.companyName); err != nil {
		return model.RawPosting{}, err
	}

	info := detail.JobPostingInfo
	now := time.Now().UTC()

	location := info.Location
	if len(info.AdditionalLocations) > 0 {
		location = location + "; " + strings.Join(info.AdditionalLocations, "; ")
	}

	raw := model.RawPosting{
		Site:        a.site,
		ExternalID:  id,
		URL:         canonicalURL(a.jobURL(id)),
		Title:       cleanText(info.Title),
		Company:     a.companyName,
		Location:    location,
		Description: extractText(info.JobDescription, info.ExternalURL),
		ScrapedAt:   now,
	}

	// Prefer startDate (format "2006-01-02"), fall back to postedOn parsing
	if info.StartDate != "" {
		if t, err := time.Parse("2006-01-02", info.StartDate); err == nil {
			raw.PostedAt = &t
		}
	}
	if raw.PostedAt == nil {
		raw.PostedAt = parsePostedOn(info.PostedOn, now)
	}
	return raw, nil
}

// jobURL joins an externalPath, with or without its leading slash, to the API root.
func (a *WorkdayAdapter) jobURL(externalPath string) string {
	return a.baseURL + "/" + strings.TrimPrefix(externalPath, "/")
}

var daysAgoRegex = regexp.MustCompile(`^Posted (\d+)\+? Days? Ago$`)

// parsePostedOn converts a Workday relative date string to an approximate timestamp.
func parsePostedOn(postedOn string, now time.Time) *time.Time {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch postedOn {
	case "Posted Today":
		return &today
	case "Posted Yesterday":
		t := today.AddDate(0, 0, -1)
		return &t
	}

	if n, ok := parseDaysAgo(postedOn); ok {
		t := today.AddDate(0, 0, -n)
		return &t
	}
	return nil
}

func parseDaysAgo(s string) (int, bool) {
	matches := daysAgoRegex.FindStringSubmatch(s)
	if matches == nil {
		return 0, false
	}
	n, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
