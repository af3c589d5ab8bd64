package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/amishk599/autoapply/internal/model"
	"github.com/amishk599/autoapply/internal/notifier"
	"github.com/amishk599/autoapply/internal/pipeline"
	"github.com/amishk599/autoapply/internal/store"
	"github.com/spf13/cobra"
)

var notifyLatest int

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Notification subcommands",
}

var notifyTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Send a sample new-postings digest",
	Long: "Sends a digest of three sample postings through the configured notifier, bypassing\n" +
		"the config filters. With --latest N, sends the N most recently scraped stored\n" +
		"postings instead.",
	RunE: runNotifyTest,
}

func init() {
	notifyTestCmd.Flags().IntVar(&notifyLatest, "latest", 0, "send the newest N stored postings instead of samples")
	rootCmd.AddCommand(notifyCmd)
	notifyCmd.AddCommand(notifyTestCmd)
}

func runNotifyTest(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	digest := notifier.SampleDigest(time.Now())
	if notifyLatest > 0 {
		digest, err = latestPostings(cmd.Context(), cfg.Store.Path, notifyLatest)
		if err != nil {
			logger.Error("failed to load stored postings", "error", err)
			os.Exit(1)
		}
		if len(digest) == 0 {
			fmt.Println("No stored postings yet; run scrape first.")
			return nil
		}
	}

	n := setupNotifier(cfg, &http.Client{Timeout: 30 * time.Second}, logger)
	if err := n.Notify(digest); err != nil {
		logger.Error("digest notification failed", "postings", len(digest), "error", err)
		os.Exit(1)
	}
	logger.Info("digest notification sent", "postings", len(digest), "notifier", cfg.Notification.Type)
	return nil
}

func latestPostings(ctx context.Context, dbPath string, limit int) ([]model.JobPosting, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	p := &pipeline.Pipeline{Store: s}
	return p.GetJobs(ctx, pipeline.JobQuery{Limit: limit})
}
