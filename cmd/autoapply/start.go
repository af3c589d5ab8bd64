package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/amishk599/autoapply/internal/scheduler"
	"github.com/amishk599/autoapply/internal/scraper"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the scrape scheduler",
	Long:  "Scrapes on scrape.schedule until SIGINT/SIGTERM, notifying about new postings after each run.",
	RunE:  runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx)
	if err != nil {
		os.Exit(1)
	}
	defer a.close()

	a.logger.Info("config loaded",
		"schedule", a.cfg.Scrape.Schedule,
		"sites", len(a.cfg.EnabledSites()),
		"max_pages", a.cfg.Scrape.MaxPages,
		"ai", a.cfg.AI.Enabled,
	)

	job := func(ctx context.Context) error {
		id, err := a.pipeline.StartScrape(ctx, a.cfg.Scrape.Sites, a.cfg.Scrape.Query, 0)
		if err != nil {
			return err
		}
		a.pipeline.Scrapes.Wait()
		j, err := a.pipeline.ScrapeJob(id)
		if err != nil {
			return err
		}
		a.logger.Info("scrape finished", "job", id, "status", j.Status, "found", j.Found, "new", j.New, "updated", j.Updated)
		if j.Status == scraper.JobFailed {
			return fmt.Errorf("scrape %s failed: %s", id, j.Err)
		}
		return nil
	}

	sched, err := scheduler.New(a.cfg.Scrape.Schedule, job, a.logger)
	if err != nil {
		a.logger.Error("invalid schedule", "error", err)
		return err
	}
	if err := sched.Run(ctx); err != nil {
		a.logger.Error("scheduler error", "error", err)
		return err
	}

	a.logger.Info("goodbye")
	return nil
}
