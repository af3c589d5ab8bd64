package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"text/template"
	"time"

	"github.com/google/uuid"

	"github.com/amishk599/autoapply/internal/budget"
	"github.com/amishk599/autoapply/internal/cache"
	"github.com/amishk599/autoapply/internal/model"
	"github.com/amishk599/autoapply/internal/retry"
)

// Budget gates provider calls.
type Budget interface {
	Reserve(ctx context.Context, estimatedCostUSD float64) (*budget.Reservation, error)
	Commit(ctx context.Context, r *budget.Reservation, actualCostUSD float64) error
	Release(r *budget.Reservation)
}

// ArtifactCache resolves fingerprints to stored artifacts.
type ArtifactCache interface {
	Get(ctx context.Context, fingerprint string) (model.AIArtifact, bool, error)
	Put(ctx context.Context, fingerprint string, artifact model.AIArtifact) error
}

// ArtifactStore persists artifacts.
type ArtifactStore interface {
	SaveArtifact(ctx context.Context, a model.AIArtifact) error
}

// GatewayConfig tunes the gateway.
type GatewayConfig struct {
	Pricing budget.Pricing
	Retry   retry.Policy
	// CacheHitsConsumeQuota counts a cache hit as one call against the
	// per-minute and per-day ceilings. Cache hits never add spend.
	CacheHitsConsumeQuota bool
	// MaxTokens overrides the completion allowance of a task.
	MaxTokens map[model.TaskType]int
}

// Gateway turns postings into validated artifacts through a cache, a budget
// and an LLM provider.
type Gateway struct {
	provider  Provider
	cache     ArtifactCache
	budget    Budget
	artifacts ArtifactStore
	tmpl      *template.Template
	cfg       GatewayConfig
	logger    *slog.Logger
	newID     func() string
	now       func() time.Time
}

// NewGateway wires a gateway. It fails if any registered task has no prompt
// template, so a missing task surfaces at startup rather than on first use.
func NewGateway(provider Provider, c ArtifactCache, b Budget, artifacts ArtifactStore, cfg GatewayConfig, logger *slog.Logger) (*Gateway, error) {
	for t, spec := range taskSpecs {
		if Templates.Lookup(spec.templateName) == nil {
			return nil, fmt.Errorf("task %s: prompt template %s not found", t, spec.templateName)
		}
	}
	return &Gateway{
		provider:  provider,
		cache:     c,
		budget:    b,
		artifacts: artifacts,
		tmpl:      Templates,
		cfg:       cfg,
		logger:    logger,
		newID:     func() string { return uuid.Must(uuid.NewV7()).String() },
		now:       time.Now,
	}, nil
}

// Process returns the artifact of task for the posting, from the cache when
// the same input was already processed under the current model, otherwise
// from the provider. Errors are QuotaExceeded, ProviderUnavailable,
// ProviderResponseInvalid, InvalidInput, or context/storage errors.
func (g *Gateway) Process(ctx context.Context, postingID string, task model.TaskType, in Input, opts model.TaskOptions) (model.AIArtifact, error) {
	spec, err := lookupTask(task)
	if err != nil {
		return model.AIArtifact{}, err
	}
	if n := g.cfg.MaxTokens[task]; n > 0 {
		spec.maxTokens = n
	}
	if opts, err = spec.checkOptions(opts); err != nil {
		return model.AIArtifact{}, err
	}
	if spec.needsProfile && in.Profile == nil {
		return model.AIArtifact{}, model.InvalidInput(fmt.Sprintf("%s needs a candidate profile", task))
	}

	modelVersion := g.provider.Model()
	fp := cache.Fingerprint(task, spec.normalizedInput(in, opts), opts.Level, modelVersion)
	logger := g.logger.With("task", task, "posting", postingID, "fingerprint", fp[:12])

	hit, ok, err := g.cache.Get(ctx, fp)
	if err != nil {
		return model.AIArtifact{}, err
	}
	if ok {
		return g.serveHit(ctx, hit, postingID, logger)
	}

	data := newPromptData(in, opts)
	var (
		cost                float64
		promptTok, complTok int
		lastErr             error
	)
	for attempt := 1; attempt <= 2; attempt++ {
		if attempt == 2 {
			data.Correction = lastErr.Error()
		}
		prompt, err := render(g.tmpl, spec.templateName, data)
		if err != nil {
			return model.AIArtifact{}, err
		}

		resp, callCost, err := g.call(ctx, spec, prompt, modelVersion)
		if err != nil {
			return model.AIArtifact{}, err
		}
		cost += callCost
		promptTok += resp.PromptTokens
		complTok += resp.CompletionTokens

		payload, err := spec.decode(resp.Content, in)
		if err != nil {
			lastErr = err
			logger.Warn("provider response invalid", "attempt", attempt, "error", err)
			continue
		}

		artifact := model.AIArtifact{
			ID:               g.newID(),
			PostingID:        postingID,
			Task:             task,
			Level:            opts.Level,
			Payload:          payload,
			Fingerprint:      fp,
			ModelVersion:     modelVersion,
			ProviderCostUSD:  cost,
			PromptTokens:     promptTok,
			CompletionTokens: complTok,
			CreatedAt:        g.now().UTC(),
		}
		if err := g.artifacts.SaveArtifact(ctx, artifact); err != nil {
			return model.AIArtifact{}, fmt.Errorf("persist artifact: %w", err)
		}
		if err := g.cache.Put(ctx, fp, artifact); err != nil {
			// The artifact is durable; a failed index write only costs a future miss.
			logger.Error("cache put failed", "error", err)
		}

		logger.Info("ai task completed",
			"artifact", artifact.ID,
			"attempts", attempt,
			"cost_usd", cost,
			"prompt_tokens", promptTok,
			"completion_tokens", complTok,
		)
		return artifact, nil
	}

	return model.AIArtifact{}, model.ProviderResponseInvalid(
		fmt.Sprintf("%s response still malformed after a corrective re-prompt", task), lastErr)
}

// serveHit returns a cached artifact. A hit recorded for another posting with
// identical content is adopted as a zero-cost copy owned by this posting.
func (g *Gateway) serveHit(ctx context.Context, hit model.AIArtifact, postingID string, logger *slog.Logger) (model.AIArtifact, error) {
	if g.cfg.CacheHitsConsumeQuota {
		r, err := g.budget.Reserve(ctx, 0)
		if err != nil {
			return model.AIArtifact{}, err
		}
		if err := g.budget.Commit(ctx, r, 0); err != nil {
			logger.Error("commit cache-hit quota failed", "error", err)
		}
	}

	if hit.PostingID == postingID {
		logger.Debug("served from cache", "artifact", hit.ID)
		return hit, nil
	}

	adopted := hit
	adopted.ID = g.newID()
	adopted.PostingID = postingID
	adopted.ProviderCostUSD = 0
	adopted.PromptTokens = 0
	adopted.CompletionTokens = 0
	adopted.CreatedAt = g.now().UTC()
	if err := g.artifacts.SaveArtifact(ctx, adopted); err != nil {
		return model.AIArtifact{}, fmt.Errorf("persist adopted artifact: %w", err)
	}
	logger.Info("adopted cached artifact", "source_artifact", hit.ID, "artifact", adopted.ID)
	return adopted, nil
}

// call reserves budget, invokes the provider with transient retries and
// commits the actual cost. The budget lock is only held inside Reserve and
// Commit, never during the provider call.
func (g *Gateway) call(ctx context.Context, spec taskSpec, prompt, modelVersion string) (Response, float64, error) {
	estimate := g.cfg.Pricing.Estimate(modelVersion, len(systemPrompt)+len(prompt), spec.maxTokens)
	reservation, err := g.budget.Reserve(ctx, estimate)
	if err != nil {
		return Response{}, 0, err
	}

	req := Request{
		TemplateID: spec.templateName,
		System:     systemPrompt,
		Prompt:     prompt,
		SchemaName: spec.schemaName,
		Schema:     spec.schema,
		MaxTokens:  spec.maxTokens,
	}
	resp, err := retry.Do(ctx, g.cfg.Retry, "invoke "+string(spec.task), func(ctx context.Context) (Response, error) {
		return g.provider.Invoke(ctx, req)
	})
	if err != nil {
		g.budget.Release(reservation)
		if ctx.Err() != nil {
			return Response{}, 0, fmt.Errorf("invoke %s: %w", spec.task, ctx.Err())
		}
		return Response{}, 0, model.ProviderUnavailable(
			fmt.Sprintf("%s failed after %d retries", spec.task, g.cfg.Retry.MaxRetries), err)
	}

	cost := g.cfg.Pricing.Cost(modelVersion, resp.PromptTokens, resp.CompletionTokens)
	if err := g.budget.Commit(ctx, reservation, cost); err != nil {
		g.logger.Error("commit provider cost failed", "task", spec.task, "cost_usd", cost, "error", err)
	}
	return resp, cost, nil
}

// DecodePayload unmarshals an artifact payload into its task's Go type.
func DecodePayload(a model.AIArtifact) (any, error) {
	spec, err := lookupTask(a.Task)
	if err != nil {
		return nil, err
	}
	p := spec.newPayload()
	if err := json.Unmarshal(a.Payload, p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", a.Task, err)
	}
	return p, nil
}
