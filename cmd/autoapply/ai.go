package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/amishk599/autoapply/internal/ai"
	"github.com/amishk599/autoapply/internal/model"
	"github.com/amishk599/autoapply/internal/pipeline"
	"github.com/spf13/cobra"
)

var (
	aiLevel string
	aiTone  string
	aiJSON  bool
	aiAll   bool
)

var aiCmd = &cobra.Command{
	Use:   "ai <task> [posting-id]",
	Short: "Run an AI task on a posting",
	Long: "Runs jd_analysis, resume_tailor, cover_letter, match_score or follow_up_email on a\n" +
		"stored posting. Results are cached per input and model, so repeating a task is free\n" +
		"unless budget.cache_hits_consume_quota is set.\n\n" +
		"With --all, runs the task over the postings waiting for it (scraped ones for\n" +
		"jd_analysis, applied ones for follow_up_email, analyzed ones otherwise) that match\n" +
		"the config filters, newest first, up to 20 per run.",
	Args: func(cmd *cobra.Command, args []string) error {
		if aiAll {
			return cobra.ExactArgs(1)(cmd, args)
		}
		return cobra.ExactArgs(2)(cmd, args)
	},
	RunE: runAI,
}

func init() {
	aiCmd.Flags().StringVar(&aiLevel, "level", string(model.LevelModerate), "resume tailoring level: conservative, moderate or aggressive")
	aiCmd.Flags().StringVar(&aiTone, "tone", string(model.ToneProfessional), "cover letter tone: professional, conversational or enthusiastic")
	aiCmd.Flags().BoolVar(&aiJSON, "json", false, "print the raw artifact payload")
	aiCmd.Flags().BoolVar(&aiAll, "all", false, "run the task over every posting waiting for it")
	rootCmd.AddCommand(aiCmd)
}

func runAI(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx)
	if err != nil {
		os.Exit(1)
	}
	defer a.close()

	task, err := model.ParseTaskType(args[0])
	if err != nil {
		a.logger.Error("invalid task", "error", err)
		return err
	}
	var opts model.TaskOptions
	switch task {
	case model.TaskResumeTailor:
		opts.Level = model.TailoringLevel(aiLevel)
	case model.TaskCoverLetter:
		opts.Tone = model.Tone(aiTone)
	}

	if aiAll {
		return runAIBatch(ctx, a, task, opts)
	}

	id, err := a.pipeline.ResolvePostingID(ctx, args[1])
	if err != nil {
		a.logger.Error("failed to resolve posting", "error", err)
		return err
	}

	artifact, err := a.pipeline.RunAITask(ctx, id, task, opts)
	if err != nil {
		a.logger.Error("ai task failed", "task", task, "posting", shortID(id), "kind", model.KindOf(err), "error", err)
		return err
	}

	if aiJSON {
		var buf bytes.Buffer
		if err := json.Indent(&buf, artifact.Payload, "", "  "); err != nil {
			return err
		}
		fmt.Println(buf.String())
		return nil
	}

	payload, err := ai.DecodePayload(artifact)
	if err != nil {
		return err
	}
	printPayload(payload)
	fmt.Printf("\nartifact %s · model %s · %d+%d tokens · $%.4f\n",
		shortID(artifact.ID), artifact.ModelVersion, artifact.PromptTokens, artifact.CompletionTokens, artifact.ProviderCostUSD)
	return nil
}

// batchStatuses are the statuses of postings waiting for each task.
func batchStatuses(task model.TaskType) []model.Status {
	switch task {
	case model.TaskJDAnalysis:
		return []model.Status{model.StatusScraped}
	case model.TaskFollowUp:
		return []model.Status{model.StatusApplied, model.StatusInterview}
	default:
		return []model.Status{model.StatusAnalyzed}
	}
}

func runAIBatch(ctx context.Context, a *app, task model.TaskType, opts model.TaskOptions) error {
	postings, err := a.pipeline.GetJobs(ctx, pipeline.JobQuery{
		Statuses:  batchStatuses(task),
		Titles:    a.cfg.Filters.TitleKeywords,
		Locations: a.cfg.Filters.Locations,
		Limit:     pipeline.MaxBatch,
	})
	if err != nil {
		a.logger.Error("failed to list postings", "error", err)
		return err
	}
	if len(postings) == 0 {
		fmt.Printf("No postings waiting for %s.\n", task)
		return nil
	}

	ids := make([]string, len(postings))
	for i, p := range postings {
		ids[i] = p.ID
	}
	results, err := a.pipeline.RunAITaskBatch(ctx, ids, task, opts)
	if err != nil {
		a.logger.Error("batch failed", "task", task, "error", err)
		return err
	}

	var failed int
	var spent float64
	for i, r := range results {
		p := postings[i]
		if r.Err != nil {
			failed++
			fmt.Printf("  ✗ %s  %s · %s: %v\n", shortID(r.PostingID), p.Title, p.Company, r.Err)
			continue
		}
		spent += r.Artifact.ProviderCostUSD
		fmt.Printf("  ✓ %s  %s · %s\n", shortID(r.PostingID), p.Title, p.Company)
	}
	fmt.Printf("\n%s: %d done, %d failed · $%.4f\n", task, len(results)-failed, failed, spent)
	if failed > 0 {
		return fmt.Errorf("%d of %d postings failed", failed, len(results))
	}
	return nil
}

func printPayload(p any) {
	switch v := p.(type) {
	case *ai.JDAnalysis:
		fmt.Printf("Seniority: %s · %s · %d+ years\n", orDash(v.Seniority), orDash(v.JobType), v.ExperienceYears)
		printList("Required skills", v.RequiredSkills)
		printList("Preferred skills", v.PreferredSkills)
		printList("Responsibilities", v.Responsibilities)
		printList("ATS keywords", v.ATSKeywords)
		printList("Soft skills", v.SoftSkills)
		if v.Education != "" {
			fmt.Printf("\nEducation: %s\n", v.Education)
		}
		printList("Red flags", v.RedFlags)
	case *ai.TailoredResume:
		fmt.Printf("Summary\n  %s\n", v.TailoredSummary)
		fmt.Println("\nBullets")
		for _, b := range v.TailoredBullets {
			fmt.Printf("  [%s] %s\n", b.SourceID, b.Text)
		}
		printList("Changes", v.ChangesMade)
		printList("Keywords added", v.KeywordsAdded)
	case *ai.CoverLetter:
		fmt.Println(v.FullText)
		fmt.Printf("\n(%d words)\n", v.WordCount)
	case *ai.FollowUpEmail:
		fmt.Printf("Subject: %s\n\n%s\n", v.Subject, v.Body)
		fmt.Printf("\n(%d words)\n", v.WordCount)
	case *ai.MatchScore:
		fmt.Printf("Overall %d/100 (%s)\n\n", v.OverallScore, v.MatchLevel)
		fmt.Printf("  hard skills  %3d\n", v.HardSkills)
		fmt.Printf("  experience   %3d\n", v.Experience)
		fmt.Printf("  soft skills  %3d\n", v.SoftSkills)
		fmt.Printf("  education    %3d\n", v.Education)
		fmt.Printf("  location     %3d\n", v.Location)
		printList("Strengths", v.Strengths)
		printList("Gaps", v.Gaps)
	default:
		fmt.Printf("%+v\n", v)
	}
}

func printList(title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Printf("\n%s\n", title)
	for _, it := range items {
		fmt.Printf("  • %s\n", it)
	}
}
