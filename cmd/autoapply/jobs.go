package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/amishk599/autoapply/internal/model"
	"github.com/amishk599/autoapply/internal/pipeline"
	"github.com/spf13/cobra"
)

var (
	jobsSites     []string
	jobsStatuses  []string
	jobsSince     time.Duration
	jobsTitles    []string
	jobsLocations []string
	jobsCompanies []string
	jobsText      string
	jobsLimit     int
	jobsAll       bool
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List stored postings",
	Long: "Lists stored postings, most recently scraped first. Without --title or --location\n" +
		"the filters section of the config applies; --all disables it.",
	RunE: runJobs,
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <posting-id>",
	Short: "Show one posting in full",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsShow,
}

func init() {
	f := jobsCmd.Flags()
	f.StringSliceVar(&jobsSites, "site", nil, "only these sites")
	f.StringSliceVar(&jobsStatuses, "status", nil, "only these statuses (scraped, analyzed, tailored, applied, ...)")
	f.DurationVar(&jobsSince, "since", 0, "only postings scraped within this window, e.g. 24h")
	f.StringSliceVar(&jobsTitles, "title", nil, "title keywords (any)")
	f.StringSliceVar(&jobsLocations, "location", nil, "location keywords (any)")
	f.StringSliceVar(&jobsCompanies, "company", nil, "company names (any)")
	f.StringVarP(&jobsText, "text", "q", "", "words that must all appear in title or description")
	f.IntVarP(&jobsLimit, "limit", "n", 50, "maximum postings to list, 0 for no limit")
	f.BoolVar(&jobsAll, "all", false, "ignore the config filters")
	jobsCmd.AddCommand(jobsShowCmd)
	rootCmd.AddCommand(jobsCmd)
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := setup(ctx)
	if err != nil {
		os.Exit(1)
	}
	defer a.close()

	q := pipeline.JobQuery{
		Sites:     jobsSites,
		Titles:    jobsTitles,
		Locations: jobsLocations,
		Companies: jobsCompanies,
		Text:      jobsText,
		Limit:     jobsLimit,
	}
	if !jobsAll && len(q.Titles) == 0 && len(q.Locations) == 0 {
		q.Titles = a.cfg.Filters.TitleKeywords
		q.Locations = a.cfg.Filters.Locations
	}
	for _, s := range jobsStatuses {
		st, err := model.ParseStatus(s)
		if err != nil {
			a.logger.Error("invalid --status", "error", err)
			return err
		}
		q.Statuses = append(q.Statuses, st)
	}
	if jobsSince > 0 {
		q.Since = time.Now().Add(-jobsSince)
	}

	postings, err := a.pipeline.GetJobs(ctx, q)
	if err != nil {
		a.logger.Error("failed to list postings", "error", err)
		return err
	}

	fmt.Printf("%-12s  %-10s  %-14s  %-22s  %-40s  %s\n", "ID", "Status", "Site", "Company", "Title", "Location")
	fmt.Println(strings.Repeat("─", 120))
	for _, p := range postings {
		fmt.Printf("%-12s  %-10s  %-14s  %-22s  %-40s  %s\n",
			shortID(p.ID), p.Status, truncate(p.Site, 14), truncate(p.Company, 22), truncate(p.Title, 40), p.Location)
	}
	fmt.Printf("\n%d postings\n", len(postings))
	return nil
}

func runJobsShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := setup(ctx)
	if err != nil {
		os.Exit(1)
	}
	defer a.close()

	id, err := a.pipeline.ResolvePostingID(ctx, args[0])
	if err != nil {
		a.logger.Error("failed to resolve posting", "error", err)
		return err
	}
	p, err := a.store.GetPosting(ctx, id)
	if err != nil {
		a.logger.Error("failed to load posting", "error", err)
		return err
	}

	fmt.Printf("%s\n%s · %s\n\n", p.Title, p.Company, orDash(p.Location))
	fmt.Printf("id        %s\n", p.ID)
	fmt.Printf("site      %s\n", p.Site)
	fmt.Printf("url       %s\n", p.URL)
	fmt.Printf("status    %s\n", p.Status)
	if p.PostedAt != nil {
		fmt.Printf("posted    %s\n", p.PostedAt.Format("Jan 2 2006"))
	}
	fmt.Printf("scraped   %s (first %s)\n", p.LastScrapedAt.Local().Format(time.DateTime), p.FirstScrapedAt.Local().Format(time.DateTime))
	if p.Description != "" {
		fmt.Printf("\n%s\n", p.Description)
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
