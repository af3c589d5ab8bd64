// Package scraper runs one worker per site, folds what they find into the
// posting table through a single writer, and tracks asynchronous scrape jobs.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/amishk599/autoapply/internal/model"
	"github.com/amishk599/autoapply/internal/ratelimit"
	"github.com/amishk599/autoapply/internal/retry"
)

// PostingStore is the part of the store the dedup writer needs.
type PostingStore interface {
	UpsertPosting(ctx context.Context, p model.JobPosting) (bool, error)
}

// Config bounds a scrape.
type Config struct {
	MaxPages int           // default and upper bound for Request.MaxPages
	DelayMin time.Duration // politeness delay between pages of one site
	DelayMax time.Duration
	Workers  int // concurrent sites; zero runs every requested site at once
	Retry    retry.Policy
}

// Request selects what to scrape.
type Request struct {
	Sites    []string
	Query    string
	MaxPages int
}

// SiteResult is the outcome of one site's worker.
type SiteResult struct {
	Site        string
	Pages       int // pages fetched successfully
	FailedPages int
	Found       int
	Exhausted   bool  // the listing ran out before MaxPages
	Err         error // site-level failure; remaining pages were abandoned
}

// Result is the deduplicated outcome of a scrape. Status is only set on
// NewPostings; refreshed postings keep whatever status the store holds.
type Result struct {
	Postings    []model.JobPosting // one per identity, in first-seen order
	NewPostings []model.JobPosting
	New         int
	Updated     int
	Sites       []SiteResult
}

// Event reports progress of one site after each page.
type Event struct {
	Site  string
	Page  int
	Found int
	Done  bool
	Err   error
}

// Orchestrator fans a scrape out over per-site workers.
type Orchestrator struct {
	adapters map[string]model.Adapter
	limiter  *ratelimit.SiteLimiter
	store    PostingStore
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

func NewOrchestrator(adapters []model.Adapter, limiter *ratelimit.SiteLimiter, store PostingStore, cfg Config, logger *slog.Logger) *Orchestrator {
	bySite := make(map[string]model.Adapter, len(adapters))
	for _, a := range adapters {
		bySite[a.Site()] = a
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 5
	}
	if cfg.DelayMax < cfg.DelayMin {
		cfg.DelayMax = cfg.DelayMin
	}
	if cfg.Retry.Logger == nil {
		cfg.Retry.Logger = logger
	}
	return &Orchestrator{
		adapters: bySite,
		limiter:  limiter,
		store:    store,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Sites returns the configured site names, sorted.
func (o *Orchestrator) Sites() []string {
	names := make([]string, 0, len(o.adapters))
	for name := range o.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Normalize validates req and fills in defaults. An empty site set selects
// every configured site.
func (o *Orchestrator) Normalize(req Request) (Request, error) {
	if len(req.Sites) == 0 {
		req.Sites = o.Sites()
	}
	if len(req.Sites) == 0 {
		return req, model.InvalidInput("no sites configured")
	}
	seen := make(map[string]bool, len(req.Sites))
	sites := make([]string, 0, len(req.Sites))
	for _, s := range req.Sites {
		if _, ok := o.adapters[s]; !ok {
			return req, model.InvalidInput(fmt.Sprintf("unknown site %q", s))
		}
		if !seen[s] {
			seen[s] = true
			sites = append(sites, s)
		}
	}
	req.Sites = sites

	switch {
	case req.MaxPages < 0:
		return req, model.InvalidInput("max pages must be positive")
	case req.MaxPages == 0:
		req.MaxPages = o.cfg.MaxPages
	case req.MaxPages > o.cfg.MaxPages:
		o.logger.Warn("max pages capped", "requested", req.MaxPages, "cap", o.cfg.MaxPages)
		req.MaxPages = o.cfg.MaxPages
	}
	return req, nil
}

// Scrape runs one worker per site and returns once every worker has finished
// and every handed-off posting has been written. onEvent may be nil.
// Site failures are reported in Result.Sites; the returned error is reserved
// for invalid requests, store failures and cancellation.
func (o *Orchestrator) Scrape(ctx context.Context, req Request, onEvent func(Event)) (Result, error) {
	req, err := o.Normalize(req)
	if err != nil {
		return Result{}, err
	}
	if onEvent == nil {
		onEvent = func(Event) {}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	raws := make(chan model.RawPosting, 64)
	written := make(chan writeResult, 1)
	go func() {
		written <- o.write(ctx, raws, cancel)
	}()

	results := make([]SiteResult, len(req.Sites))
	var g errgroup.Group
	if o.cfg.Workers > 0 {
		g.SetLimit(o.cfg.Workers)
	}
	for i, site := range req.Sites {
		g.Go(func() error {
			results[i] = o.scrapeSite(ctx, o.adapters[site], req, raws, onEvent)
			return nil
		})
	}
	g.Wait()
	close(raws)
	wr := <-written

	res := Result{
		Postings:    wr.postings,
		NewPostings: wr.newPostings,
		New:         len(wr.newPostings),
		Updated:     wr.updated,
		Sites:       results,
	}
	if wr.err != nil {
		return res, wr.err
	}
	return res, nil
}

// scrapeSite logs in once and walks the listing page by page.
func (o *Orchestrator) scrapeSite(ctx context.Context, a model.Adapter, req Request, out chan<- model.RawPosting, onEvent func(Event)) (res SiteResult) {
	site := a.Site()
	res.Site = site
	log := o.logger.With("site", site)
	defer func() {
		onEvent(Event{Site: site, Found: res.Found, Done: true, Err: res.Err})
		if res.Err != nil {
			log.Error("site abandoned", "pages", res.Pages, "found", res.Found, "error", res.Err)
			return
		}
		log.Info("scraped site",
			"pages", res.Pages,
			"failed_pages", res.FailedPages,
			"found", res.Found,
			"exhausted", res.Exhausted,
		)
	}()

	sess, err := retry.Do(ctx, o.cfg.Retry, "login "+site, a.Login)
	if err != nil {
		res.Err = fmt.Errorf("login: %w", err)
		return res
	}

	for page := 1; page <= req.MaxPages; page++ {
		if page > 1 {
			if err := o.pause(ctx); err != nil {
				res.Err = err
				return res
			}
		}
		if err := o.limiter.Wait(ctx, site); err != nil {
			res.Err = err
			return res
		}

		raws, err := retry.Do(ctx, o.cfg.Retry, "search "+site, func(ctx context.Context) ([]model.RawPosting, error) {
			return a.Search(ctx, sess, req.Query, page)
		})
		if err != nil {
			if fatal(ctx, err) {
				res.Err = fmt.Errorf("search page %d: %w", page, err)
				return res
			}
			res.FailedPages++
			log.Warn("page failed", "page", page, "error", err)
			onEvent(Event{Site: site, Page: page, Found: res.Found})
			continue
		}
		if raws == nil {
			res.Exhausted = true
			return res
		}

		for _, raw := range raws {
			raw, err := o.complete(ctx, a, sess, raw)
			if err != nil {
				if fatal(ctx, err) {
					res.Err = fmt.Errorf("detail %s: %w", raw.ExternalID, err)
					return res
				}
				log.Warn("detail failed, keeping listing fields", "id", raw.ExternalID, "error", err)
			}
			select {
			case out <- raw:
				res.Found++
			case <-ctx.Done():
				res.Err = ctx.Err()
				return res
			}
		}
		res.Pages++
		onEvent(Event{Site: site, Page: page, Found: res.Found})
	}
	return res
}

// complete fetches the detail page of a listing that came without a
// description. Identity fields from the listing are kept. On error raw is
// returned unchanged alongside the error.
func (o *Orchestrator) complete(ctx context.Context, a model.Adapter, sess *model.Session, raw model.RawPosting) (model.RawPosting, error) {
	if raw.Site == "" {
		raw.Site = a.Site()
	}
	if raw.ScrapedAt.IsZero() {
		raw.ScrapedAt = o.now()
	}
	if raw.Description != "" || raw.ExternalID == "" {
		return raw, nil
	}

	if err := o.limiter.Wait(ctx, raw.Site); err != nil {
		return raw, err
	}
	detail, err := retry.Do(ctx, o.cfg.Retry, "detail "+raw.Site, func(ctx context.Context) (model.RawPosting, error) {
		return a.FetchDetail(ctx, sess, raw.ExternalID)
	})
	if err != nil {
		return raw, err
	}

	raw.Description = detail.Description
	if raw.PostedAt == nil {
		raw.PostedAt = detail.PostedAt
	}
	if raw.Location == "" {
		raw.Location = detail.Location
	}
	if raw.Company == "" {
		raw.Company = detail.Company
	}
	return raw, nil
}

// pause sleeps a random politeness delay in [DelayMin, DelayMax].
func (o *Orchestrator) pause(ctx context.Context) error {
	d := o.cfg.DelayMin
	if spread := o.cfg.DelayMax - o.cfg.DelayMin; spread > 0 {
		d += rand.N(spread)
	}
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// fatal reports whether err ends the site's worker: rejected credentials or
// a cancelled scrape. Anything else only costs the current page.
func fatal(ctx context.Context, err error) bool {
	if errors.Is(err, model.ErrSiteAuth) {
		return true
	}
	return ctx.Err() != nil
}
