package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/amishk599/autoapply/internal/model"
	"github.com/spf13/cobra"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show AI quota, spend and cache statistics",
	RunE:  runUsage,
}

func init() {
	rootCmd.AddCommand(usageCmd)
}

func runUsage(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := setup(ctx)
	if err != nil {
		os.Exit(1)
	}
	defer a.close()

	stats, err := a.pipeline.GetUsageStats(ctx)
	if err != nil {
		a.logger.Error("failed to read usage", "error", err)
		return err
	}

	if a.pipeline.Budget == nil {
		fmt.Println("AI is disabled; no quota in use.")
	} else {
		c := stats.Ceilings
		fmt.Printf("Usage for %s (UTC)\n\n", stats.Day)
		fmt.Printf("  calls this minute  %d / %s\n", stats.PerMinuteUsed, ceiling(c.PerMinuteCalls))
		fmt.Printf("  calls today        %d / %s\n", stats.PerDayUsed, ceiling(c.PerDayCalls))
		if c.DailySpendUSD > 0 {
			fmt.Printf("  spend today        $%.4f / $%.2f", stats.SpendUSD, c.DailySpendUSD)
			if stats.SpendUSD >= c.DailySpendUSD*stats.AlertThreshold {
				fmt.Printf("  (over %.0f%% alert threshold)", stats.AlertThreshold*100)
			}
			fmt.Println()
		} else {
			fmt.Printf("  spend today        $%.4f / unlimited\n", stats.SpendUSD)
		}
		if stats.ReservedUSD > 0 {
			fmt.Printf("  reserved           $%.4f\n", stats.ReservedUSD)
		}
		fmt.Printf("\n  cache hits %d · misses %d · corruptions %d (this process)\n",
			stats.Cache.Hits, stats.Cache.Misses, stats.Cache.Corruptions)
	}

	if len(stats.Artifacts) > 0 {
		tasks := make([]model.TaskType, 0, len(stats.Artifacts))
		for t := range stats.Artifacts {
			tasks = append(tasks, t)
		}
		sort.Slice(tasks, func(i, j int) bool { return tasks[i] < tasks[j] })
		fmt.Println("\nStored artifacts")
		for _, t := range tasks {
			fmt.Printf("  %-14s %d\n", t, stats.Artifacts[t])
		}
	}
	return nil
}

func ceiling(n int) string {
	if n <= 0 {
		return "unlimited"
	}
	return fmt.Sprint(n)
}
