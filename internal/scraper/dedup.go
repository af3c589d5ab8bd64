package scraper

import (
	"context"
	"fmt"
	"strings"

	"github.com/amishk599/autoapply/internal/model"
)

type writeResult struct {
	postings    []model.JobPosting
	newPostings []model.JobPosting
	updated     int
	err         error
}

// write is the only goroutine that touches the posting table during a
// scrape. Workers hand it raw postings; it normalizes them, folds repeats by
// identity and upserts. A store failure cancels the scrape; the channel is
// still drained so workers never block on a dead writer.
func (o *Orchestrator) write(ctx context.Context, raws <-chan model.RawPosting, cancel context.CancelFunc) writeResult {
	var (
		res   writeResult
		index = make(map[string]int)
	)
	for raw := range raws {
		if res.err != nil {
			continue
		}
		p, ok := normalize(raw)
		if !ok {
			o.logger.Warn("dropping posting without url", "site", raw.Site, "title", raw.Title)
			continue
		}

		created, err := o.store.UpsertPosting(ctx, p)
		if err != nil {
			res.err = fmt.Errorf("storing posting %s: %w", p.URL, err)
			cancel()
			continue
		}

		if i, seen := index[p.ID]; seen {
			res.postings[i] = merged(res.postings[i], p)
			continue
		}
		index[p.ID] = len(res.postings)
		if created {
			p.Status = model.StatusScraped
			p.FirstScrapedAt = p.LastScrapedAt
			res.newPostings = append(res.newPostings, p)
		} else {
			res.updated++
		}
		res.postings = append(res.postings, p)
	}
	return res
}

// normalize turns a raw posting into its persisted form. The status is left
// empty: the store assigns scraped on insert and never rewrites it.
func normalize(raw model.RawPosting) (model.JobPosting, bool) {
	url := strings.TrimSpace(raw.URL)
	if url == "" {
		return model.JobPosting{}, false
	}
	return model.JobPosting{
		ID:            model.PostingID(raw.Site, url),
		Site:          raw.Site,
		ExternalID:    raw.ExternalID,
		URL:           url,
		Title:         squash(raw.Title),
		Company:       squash(raw.Company),
		Location:      squash(raw.Location),
		Description:   strings.TrimSpace(raw.Description),
		PostedAt:      raw.PostedAt,
		LastScrapedAt: raw.ScrapedAt.UTC(),
	}, true
}

// merged keeps the first-seen identity and fills blanks from a later sighting.
func merged(first, later model.JobPosting) model.JobPosting {
	if first.Description == "" {
		first.Description = later.Description
	}
	if first.PostedAt == nil {
		first.PostedAt = later.PostedAt
	}
	if later.LastScrapedAt.After(first.LastScrapedAt) {
		first.LastScrapedAt = later.LastScrapedAt
	}
	return first
}

func squash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
