package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/amishk599/autoapply/internal/lifecycle"
	"github.com/amishk599/autoapply/internal/model"
	"github.com/spf13/cobra"
)

var (
	statusFollowUps bool
	statusStats     bool
	statusFollowUp  int
	statusNotes     string
)

var statusCmd = &cobra.Command{
	Use:   "status [posting-id] [new-status]",
	Short: "Show or change the lifecycle status of a posting",
	Long: "With one argument, prints the posting's status, the statuses it can move to and its\n" +
		"application history. With two, moves the posting to new-status first.\n\n" +
		"--follow-up N sets a reminder N days out on an applied posting. Without a posting,\n" +
		"--follow-ups lists the reminders that are due and --stats summarizes applications.",
	Args: func(cmd *cobra.Command, args []string) error {
		if statusFollowUps || statusStats {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.RangeArgs(1, 2)(cmd, args)
	},
	RunE: runStatus,
}

func init() {
	f := statusCmd.Flags()
	f.BoolVar(&statusFollowUps, "follow-ups", false, "list applications whose follow-up is due")
	f.BoolVar(&statusStats, "stats", false, "summarize applications by status with the response rate")
	f.IntVar(&statusFollowUp, "follow-up", -1, "schedule a follow-up this many days from now")
	f.StringVar(&statusNotes, "notes", "", "notes to store with the application (with --follow-up)")
	statusCmd.MarkFlagsMutuallyExclusive("follow-ups", "stats")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := setup(ctx)
	if err != nil {
		os.Exit(1)
	}
	defer a.close()

	switch {
	case statusFollowUps:
		return printFollowUps(ctx, a)
	case statusStats:
		return printApplicationStats(ctx, a)
	}

	id, err := a.pipeline.ResolvePostingID(ctx, args[0])
	if err != nil {
		a.logger.Error("failed to resolve posting", "error", err)
		return err
	}

	var p model.JobPosting
	if len(args) == 2 {
		target, err := model.ParseStatus(args[1])
		if err != nil {
			a.logger.Error("invalid status", "error", err)
			return err
		}
		p, err = a.pipeline.TransitionStatus(ctx, id, target)
		if err != nil {
			a.logger.Error("transition failed", "posting", shortID(id), "target", target, "error", err)
			return err
		}
	} else {
		p, err = a.store.GetPosting(ctx, id)
		if err != nil {
			a.logger.Error("failed to load posting", "error", err)
			return err
		}
	}

	fmt.Printf("%s · %s\n", p.Title, p.Company)
	fmt.Printf("status: %s\n", p.Status)
	if next := lifecycle.Next(p.Status); len(next) > 0 {
		names := make([]string, len(next))
		for i, s := range next {
			names[i] = string(s)
		}
		fmt.Printf("next:   %s\n", strings.Join(names, ", "))
	}

	var rec model.ApplicationRecord
	if statusFollowUp >= 0 {
		rec, err = a.pipeline.ScheduleFollowUp(ctx, id, statusFollowUp, statusNotes)
	} else {
		rec, err = a.pipeline.Application(ctx, id)
	}
	if errors.Is(err, model.ErrNotFound) {
		return nil
	}
	if err != nil {
		a.logger.Error("failed to load application", "error", err)
		return err
	}
	fmt.Printf("\nApplication %s (level %s, %d artifacts)\n", shortID(rec.ID), orDash(string(rec.Level)), len(rec.ArtifactIDs))
	for _, t := range rec.Transitions {
		fmt.Printf("  %-10s %s\n", t.Status, t.At.Local().Format(time.DateTime))
	}
	if rec.FollowUpAt != nil {
		fmt.Printf("follow up: %s\n", rec.FollowUpAt.Local().Format(time.DateOnly))
	}
	if rec.Notes != "" {
		fmt.Printf("notes:     %s\n", rec.Notes)
	}
	return nil
}

func printFollowUps(ctx context.Context, a *app) error {
	due, err := a.pipeline.PendingFollowUps(ctx)
	if err != nil {
		a.logger.Error("failed to list follow-ups", "error", err)
		return err
	}
	if len(due) == 0 {
		fmt.Println("No follow-ups due.")
		return nil
	}
	for _, rec := range due {
		p, err := a.store.GetPosting(ctx, rec.PostingID)
		if err != nil {
			a.logger.Warn("follow-up for missing posting", "posting", shortID(rec.PostingID), "error", err)
			continue
		}
		fmt.Printf("%s  %-9s %s · %s (due %s)\n", shortID(p.ID), rec.Status, p.Title, p.Company,
			rec.FollowUpAt.Local().Format(time.DateOnly))
		if rec.Notes != "" {
			fmt.Printf("          %s\n", rec.Notes)
		}
	}
	return nil
}

func printApplicationStats(ctx context.Context, a *app) error {
	stats, err := a.pipeline.ApplicationStats(ctx)
	if err != nil {
		a.logger.Error("failed to compute application stats", "error", err)
		return err
	}
	fmt.Printf("%d applications\n", stats.Total)
	for _, st := range model.AllStatuses {
		if n := stats.ByStatus[st]; n > 0 {
			fmt.Printf("  %-10s %d\n", st, n)
		}
	}
	fmt.Printf("\nresponse rate: %.1f%% (%d of %d submitted)\n", stats.ResponseRate, stats.Responses, stats.Submitted)
	fmt.Printf("follow-ups due: %d\n", stats.PendingFollowUps)
	return nil
}
