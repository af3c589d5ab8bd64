package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/amishk599/autoapply/internal/progress"
	"github.com/amishk599/autoapply/internal/scraper"
	"github.com/spf13/cobra"
)

var (
	scrapeSites    []string
	scrapeQuery    string
	scrapeMaxPages int
	scrapeWatch    bool
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape the configured sites once",
	Long: "Runs one scrape over the given sites (default: scrape.sites, or every enabled site),\n" +
		"stores new and refreshed postings and notifies about the new ones.",
	RunE: runScrape,
}

func init() {
	scrapeCmd.Flags().StringSliceVar(&scrapeSites, "sites", nil, "sites to scrape (default: config scrape.sites or all enabled)")
	scrapeCmd.Flags().StringVarP(&scrapeQuery, "query", "q", "", "search query (default: config scrape.query)")
	scrapeCmd.Flags().IntVar(&scrapeMaxPages, "max-pages", 0, "pages per site (default: config scrape.max_pages)")
	scrapeCmd.Flags().BoolVarP(&scrapeWatch, "watch", "w", false, "show live progress")
	rootCmd.AddCommand(scrapeCmd)
}

func runScrape(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx)
	if err != nil {
		os.Exit(1)
	}
	defer a.close()

	sites := scrapeSites
	if len(sites) == 0 {
		sites = a.cfg.Scrape.Sites
	}
	query := scrapeQuery
	if query == "" {
		query = a.cfg.Scrape.Query
	}

	id, err := a.pipeline.StartScrape(ctx, sites, query, scrapeMaxPages)
	if err != nil {
		a.logger.Error("failed to start scrape", "error", err)
		return err
	}
	a.logger.Info("scrape started", "job", id, "query", query)

	if scrapeWatch {
		poll := func() (scraper.ScrapeJob, error) { return a.pipeline.ScrapeJob(id) }
		_, detached, err := progress.Watch(poll, 200*time.Millisecond)
		if err != nil {
			a.logger.Warn("progress view failed", "error", err)
		}
		if detached {
			// The scrape cannot outlive the process.
			_ = a.pipeline.Scrapes.Cancel(id)
		}
	}
	a.pipeline.Scrapes.Wait()

	job, err := a.pipeline.ScrapeJob(id)
	if err != nil {
		return err
	}
	printScrapeJob(job)
	if job.Status != scraper.JobCompleted {
		return fmt.Errorf("scrape %s", job.Status)
	}
	return nil
}

func printScrapeJob(job scraper.ScrapeJob) {
	fmt.Printf("\nScrape %s: %s\n", job.ID, job.Status)
	fmt.Printf("  pages   %d/%d\n", job.PagesDone, job.PagesTotal)
	fmt.Printf("  found   %d (new %d, updated %d)\n", job.Found, job.New, job.Updated)
	if !job.FinishedAt.IsZero() && !job.StartedAt.IsZero() {
		fmt.Printf("  took    %s\n", job.FinishedAt.Sub(job.StartedAt).Round(time.Millisecond))
	}
	if len(job.SiteErrors) > 0 {
		sites := make([]string, 0, len(job.SiteErrors))
		for s := range job.SiteErrors {
			sites = append(sites, s)
		}
		sort.Strings(sites)
		fmt.Println("  site errors:")
		for _, s := range sites {
			fmt.Printf("    %-20s %s\n", s, job.SiteErrors[s])
		}
	}
	if job.Err != "" {
		fmt.Printf("  error   %s\n", job.Err)
	}
}
