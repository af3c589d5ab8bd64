// Package lifecycle validates and persists job posting status transitions.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/amishk599/autoapply/internal/model"
)

// edges lists every legal forward move. Terminal states have no entry.
var edges = map[model.Status][]model.Status{
	model.StatusScraped:   {model.StatusAnalyzed},
	model.StatusAnalyzed:  {model.StatusTailored},
	model.StatusTailored:  {model.StatusApplied},
	model.StatusApplied:   {model.StatusInterview, model.StatusOffer, model.StatusRejected, model.StatusWithdrawn},
	model.StatusInterview: {model.StatusOffer, model.StatusRejected, model.StatusWithdrawn},
}

// requiredArtifact is the artifact that must be persisted before entering a status.
var requiredArtifact = map[model.Status]model.TaskType{
	model.StatusAnalyzed: model.TaskJDAnalysis,
	model.StatusTailored: model.TaskResumeTailor,
}

// Allowed reports whether from -> to is a lifecycle edge.
func Allowed(from, to model.Status) bool {
	for _, s := range edges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Next returns the statuses reachable from s in one step.
func Next(s model.Status) []model.Status {
	return edges[s]
}

// Store is the persistence the machine needs.
type Store interface {
	GetPosting(ctx context.Context, id string) (model.JobPosting, error)
	UpdatePostingStatus(ctx context.Context, id string, from, to model.Status) error
	HasArtifact(ctx context.Context, postingID string, task model.TaskType) (bool, error)
	LatestArtifact(ctx context.Context, postingID string, task model.TaskType, level model.TailoringLevel) (model.AIArtifact, error)
	GetApplication(ctx context.Context, postingID string) (model.ApplicationRecord, error)
	SaveApplication(ctx context.Context, r model.ApplicationRecord) error
}

// Machine applies transitions. It never calls the AI gateway; callers
// transition only after the matching artifact is durably stored.
type Machine struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func NewMachine(store Store, logger *slog.Logger) *Machine {
	return &Machine{store: store, logger: logger, now: time.Now}
}

// Transition moves the posting to target. Re-applying the current status is
// a no-op. Anything off the lifecycle graph, or missing its prerequisite
// artifact, is an IllegalTransition and leaves the posting unchanged.
func (m *Machine) Transition(ctx context.Context, postingID string, target model.Status) (model.JobPosting, error) {
	if _, err := model.ParseStatus(string(target)); err != nil {
		return model.JobPosting{}, model.InvalidInput(err.Error())
	}
	p, err := m.store.GetPosting(ctx, postingID)
	if err != nil {
		return model.JobPosting{}, err
	}
	from := p.Status
	if from == target {
		// A previous attempt may have moved the status but failed to write
		// the application record; finish that write now.
		if err := m.syncApplication(ctx, p, true); err != nil {
			m.logger.Error("application record repair failed", "posting", postingID, "status", target, "error", err)
			return p, err
		}
		return p, nil
	}
	if !Allowed(from, target) {
		reason := "not a forward lifecycle step"
		if from.Terminal() {
			reason = string(from) + " is terminal"
		}
		return p, model.IllegalTransition(from, target, reason)
	}

	if task, ok := requiredArtifact[target]; ok {
		has, err := m.store.HasArtifact(ctx, postingID, task)
		if err != nil {
			return p, err
		}
		if !has {
			return p, model.IllegalTransition(from, target, fmt.Sprintf("no %s artifact for this posting", task))
		}
	}

	if err := m.store.UpdatePostingStatus(ctx, postingID, from, target); err != nil {
		// Lost a race: fine if the winner already moved it where we wanted.
		cur, gerr := m.store.GetPosting(ctx, postingID)
		if gerr == nil && cur.Status == target {
			return cur, nil
		}
		if gerr == nil {
			return cur, model.IllegalTransition(cur.Status, target, "status changed concurrently")
		}
		return p, err
	}
	p.Status = target

	if err := m.syncApplication(ctx, p, false); err != nil {
		m.logger.Error("application record update failed", "posting", postingID, "status", target, "error", err)
		return p, err
	}

	m.logger.Info("status transition", "posting", postingID, "from", from, "to", target)
	return p, nil
}

// syncApplication opens the application record when a posting becomes
// tailored and appends every later transition to it, relinking the newest
// artifacts each time. With repairOnly set it writes only when the record is
// missing or behind the posting's status.
func (m *Machine) syncApplication(ctx context.Context, p model.JobPosting, repairOnly bool) error {
	if p.Status == model.StatusScraped || p.Status == model.StatusAnalyzed {
		return nil
	}
	now := m.now().UTC()
	rec, err := m.store.GetApplication(ctx, p.ID)
	switch {
	case errors.Is(err, model.ErrNotFound):
		rec = model.ApplicationRecord{
			ID:        uuid.NewString(),
			PostingID: p.ID,
			CreatedAt: now,
		}
	case err != nil:
		return err
	case repairOnly && rec.Status == p.Status:
		return nil
	}
	if err := m.attachArtifacts(ctx, &rec); err != nil {
		return err
	}

	rec.Status = p.Status
	rec.UpdatedAt = now
	rec.Transitions = append(rec.Transitions, model.Transition{Status: p.Status, At: now})
	if !rec.AwaitingReply() {
		rec.FollowUpAt = nil
	}
	return m.store.SaveApplication(ctx, rec)
}

// attachArtifacts points the record at the newest artifact of every task.
func (m *Machine) attachArtifacts(ctx context.Context, rec *model.ApplicationRecord) error {
	var ids []string
	for _, task := range []model.TaskType{model.TaskJDAnalysis, model.TaskResumeTailor, model.TaskCoverLetter, model.TaskMatchScore, model.TaskFollowUp} {
		a, err := m.store.LatestArtifact(ctx, rec.PostingID, task, "")
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		ids = append(ids, a.ID)
		if task == model.TaskResumeTailor {
			rec.Level = a.Level
		}
	}
	rec.ArtifactIDs = ids
	return nil
}

// ScheduleFollowUp sets when to chase an application and optional notes.
// Only applications awaiting a reply can be followed up; empty notes keep
// the existing ones.
func (m *Machine) ScheduleFollowUp(ctx context.Context, postingID string, at time.Time, notes string) (model.ApplicationRecord, error) {
	rec, err := m.store.GetApplication(ctx, postingID)
	if errors.Is(err, model.ErrNotFound) {
		return rec, model.InvalidInput("posting has no application yet; tailor a resume and mark it applied first")
	}
	if err != nil {
		return rec, err
	}
	if !rec.AwaitingReply() {
		return rec, model.InvalidInput(fmt.Sprintf("cannot follow up an application in status %s", rec.Status))
	}

	at = at.UTC()
	rec.FollowUpAt = &at
	if notes != "" {
		rec.Notes = notes
	}
	rec.UpdatedAt = m.now().UTC()
	if err := m.store.SaveApplication(ctx, rec); err != nil {
		return rec, err
	}
	m.logger.Info("follow-up scheduled", "posting", postingID, "at", at)
	return rec, nil
}
