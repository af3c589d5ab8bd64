package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/amishk599/autoapply/internal/model"
	"github.com/amishk599/autoapply/internal/retry"
)

// Ensure SlackNotifier implements model.Notifier.
var _ model.Notifier = (*SlackNotifier)(nil)

// slackBatch keeps a digest well under Slack's 50-block message limit.
const slackBatch = 10

// SlackNotifier posts digests of new postings to a Slack channel via
// Incoming Webhooks.
type SlackNotifier struct {
	webhookURL string
	httpClient *http.Client
	retry      retry.Policy
	logger     *slog.Logger
}

// NewSlackNotifier returns a notifier that posts postings to Slack in digests
// of up to ten. 429 and 5xx responses are retried, honoring Retry-After.
func NewSlackNotifier(webhookURL string, httpClient *http.Client, logger *slog.Logger) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		httpClient: httpClient,
		retry:      retry.Policy{MaxRetries: 2, BaseDelay: time.Second, MaxDelay: 10 * time.Second, Logger: logger},
		logger:     logger,
	}
}

// Notify sends one message per batch. Returns an error only if ALL batches
// fail. Individual failures are logged.
func (s *SlackNotifier) Notify(postings []model.JobPosting) error {
	if len(postings) == 0 {
		return nil
	}

	batches := 0
	failures := 0
	for start := 0; start < len(postings); start += slackBatch {
		if start > 0 {
			time.Sleep(500 * time.Millisecond)
		}
		end := min(start+slackBatch, len(postings))
		batches++

		if err := s.send(buildPayload(postings[start:end], len(postings))); err != nil {
			s.logger.Error("slack notification failed", "postings", end-start, "error", err)
			failures++
		}
	}

	if failures == batches {
		return fmt.Errorf("all %d slack notifications failed", failures)
	}
	s.logger.Info("slack notifications complete", "postings", len(postings), "messages", batches-failures, "failed", failures)
	return nil
}

func (s *SlackNotifier) send(payload slackPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	_, err = retry.Do(context.Background(), s.retry, "slack webhook", func(ctx context.Context) (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
		if err != nil {
			return struct{}{}, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return struct{}{}, fmt.Errorf("post to slack: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return struct{}{}, &model.HTTPError{
				StatusCode: resp.StatusCode,
				RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
				Err:        errors.New("slack webhook rejected message"),
			}
		}
		return struct{}{}, nil
	})
	return err
}

func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// Block Kit payload types.

type slackPayload struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type      string        `json:"type"`
	Text      *slackText    `json:"text,omitempty"`
	Fields    []slackText   `json:"fields,omitempty"`
	Elements  []slackText   `json:"elements,omitempty"`
	Accessory *slackElement `json:"accessory,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackElement struct {
	Type  string    `json:"type"`
	Text  slackText `json:"text"`
	URL   string    `json:"url"`
	Style string    `json:"style,omitempty"`
}

// SampleDigest returns a small digest of made-up postings in the shape a
// scrape run produces, for checking how a notifier renders them.
func SampleDigest(now time.Time) []model.JobPosting {
	posted := now.Add(-26 * time.Hour)
	sample := func(site, url, title, company, location string, postedAt *time.Time) model.JobPosting {
		return model.JobPosting{
			ID:             model.PostingID(site, url),
			Site:           site,
			ExternalID:     url,
			URL:            url,
			Title:          title,
			Company:        company,
			Location:       location,
			PostedAt:       postedAt,
			Status:         model.StatusScraped,
			FirstScrapedAt: now,
			LastScrapedAt:  now,
		}
	}
	return []model.JobPosting{
		sample("sample-greenhouse", "https://boards.greenhouse.io/example/jobs/1001",
			"Senior Backend Engineer (Go)", "Example Robotics", "Remote, US", &posted),
		sample("sample-lever", "https://jobs.lever.co/example/2002",
			"Platform Engineer", "Example Health", "New York, NY", nil),
		sample("sample-workday", "https://example.wd1.myworkdayjobs.com/careers/job/3003",
			"Site Reliability Engineer", "Example Bank", "", &posted),
	}
}

func postedText(p model.JobPosting) string {
	if p.PostedAt == nil {
		return "just scraped"
	}
	return "posted " + p.PostedAt.UTC().Format("Jan 2 2006")
}

func buildPayload(postings []model.JobPosting, total int) slackPayload {
	title := fmt.Sprintf("%d new postings", total)
	if total == 1 {
		title = "1 new posting"
	}

	blocks := []slackBlock{{
		Type: "header",
		Text: &slackText{Type: "plain_text", Text: "🚀 " + title},
	}}
	for _, p := range postings {
		location := p.Location
		if location == "" {
			location = "location not listed"
		}
		blocks = append(blocks,
			slackBlock{
				Type: "section",
				Text: &slackText{Type: "mrkdwn", Text: fmt.Sprintf("*%s*\n%s · %s", p.Title, p.Company, location)},
				Accessory: &slackElement{
					Type:  "button",
					Text:  slackText{Type: "plain_text", Text: "Open"},
					URL:   p.URL,
					Style: "primary",
				},
			},
			slackBlock{
				Type:     "context",
				Elements: []slackText{{Type: "mrkdwn", Text: p.Site + " · " + postedText(p)}},
			},
		)
	}
	blocks = append(blocks, slackBlock{Type: "divider"})

	return slackPayload{Text: title, Blocks: blocks}
}
