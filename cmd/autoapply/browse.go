package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/amishk599/autoapply/internal/ai"
	"github.com/amishk599/autoapply/internal/browse"
	"github.com/amishk599/autoapply/internal/model"
	"github.com/amishk599/autoapply/internal/pipeline"
	"github.com/spf13/cobra"
)

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse stored postings interactively (TUI)",
	Long:  "Shows a table of sites with posting counts, then a split-pane view of all and matched\n" +
		"postings of the chosen site. Press a in the table to browse every site at once.",
	RunE:  runBrowse,
}

func init() {
	rootCmd.AddCommand(browseCmd)
}

func runBrowse(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		setupLogger(debug).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Log output before the alt-screen starts corrupts the display.
	silentLogger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := buildApp(ctx, cfg, silentLogger)
	if err != nil {
		setupLogger(debug).Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.close()

	sites := cfg.EnabledSites()
	if len(sites) == 0 {
		fmt.Println("No enabled sites in config.")
		return nil
	}

	opts := browse.Options{Lookup: a.pipeline.LatestAnalysis}
	if a.pipeline.Gateway != nil {
		opts.Analyze = func(ctx context.Context, id string) (*ai.JDAnalysis, error) {
			art, err := a.pipeline.RunAITask(ctx, id, model.TaskJDAnalysis, model.TaskOptions{})
			if err != nil {
				return nil, err
			}
			decoded, err := ai.DecodePayload(art)
			if err != nil {
				return nil, err
			}
			analysis, _ := decoded.(*ai.JDAnalysis)
			return analysis, nil
		}
	}
	match := defaultFilter(cfg)

	for {
		choices := make([]browse.SiteChoice, len(sites))
		perSite := make(map[string][]model.JobPosting, len(sites))
		var everything []model.JobPosting
		dayAgo := time.Now().Add(-24 * time.Hour)
		for i, s := range sites {
			postings, err := a.pipeline.GetJobs(ctx, pipeline.JobQuery{Sites: []string{s.Name}})
			if err != nil {
				return err
			}
			perSite[s.Name] = postings
			everything = append(everything, postings...)

			c := browse.SiteChoice{Name: s.Name, Kind: s.Kind, Postings: len(postings)}
			for _, p := range postings {
				if match.Match(p) {
					c.Matched++
				}
				if p.FirstScrapedAt.After(dayAgo) {
					c.Fresh++
				}
				if p.LastScrapedAt.After(c.LastScraped) {
					c.LastScraped = p.LastScrapedAt
				}
			}
			choices[i] = c
		}

		choice, err := browse.RunSitePicker(choices)
		if err != nil {
			fmt.Printf("Picker error: %v\n", err)
			return err
		}
		if choice == "" {
			return nil
		}

		all := perSite[choice]
		if choice == browse.AllSites {
			all = everything
		}
		var matched []model.JobPosting
		for _, p := range all {
			if match.Match(p) {
				matched = append(matched, p)
			}
		}

		wantQuit, err := browse.Run(all, matched, opts)
		if err != nil {
			fmt.Printf("TUI error: %v\n", err)
		}
		if wantQuit {
			return nil
		}
	}
}
