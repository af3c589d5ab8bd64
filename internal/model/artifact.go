package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TaskType identifies an AI task.
type TaskType string

const (
	TaskJDAnalysis   TaskType = "jd_analysis"
	TaskResumeTailor TaskType = "resume_tailor"
	TaskCoverLetter  TaskType = "cover_letter"
	TaskMatchScore   TaskType = "match_score"
	TaskFollowUp     TaskType = "follow_up_email"
)

// ParseTaskType accepts both snake_case and the camelCase spelling (jdAnalysis).
func ParseTaskType(s string) (TaskType, error) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", "")) {
	case "jdanalysis":
		return TaskJDAnalysis, nil
	case "resumetailor":
		return TaskResumeTailor, nil
	case "coverletter":
		return TaskCoverLetter, nil
	case "matchscore":
		return TaskMatchScore, nil
	case "followupemail", "followup":
		return TaskFollowUp, nil
	}
	return "", fmt.Errorf("unknown task type %q", s)
}

// TailoringLevel controls how much a resume is restructured.
type TailoringLevel string

const (
	LevelConservative TailoringLevel = "conservative"
	LevelModerate     TailoringLevel = "moderate"
	LevelAggressive   TailoringLevel = "aggressive"
)

func ParseTailoringLevel(s string) (TailoringLevel, error) {
	switch l := TailoringLevel(strings.ToLower(strings.TrimSpace(s))); l {
	case LevelConservative, LevelModerate, LevelAggressive:
		return l, nil
	}
	return "", fmt.Errorf("unknown tailoring level %q", s)
}

// Tone of a generated cover letter.
type Tone string

const (
	ToneProfessional   Tone = "professional"
	ToneConversational Tone = "conversational"
	ToneEnthusiastic   Tone = "enthusiastic"
)

func ParseTone(s string) (Tone, error) {
	switch t := Tone(strings.ToLower(strings.TrimSpace(s))); t {
	case ToneProfessional, ToneConversational, ToneEnthusiastic:
		return t, nil
	}
	return "", fmt.Errorf("unknown tone %q", s)
}

// TaskOptions carries per-task knobs. Level applies to resume tailoring, Tone to cover letters.
type TaskOptions struct {
	Level TailoringLevel
	Tone  Tone
}

// AIArtifact is an immutable, validated result of one AI task for one posting.
type AIArtifact struct {
	ID               string
	PostingID        string
	Task             TaskType
	Level            TailoringLevel // empty unless Task is resume_tailor
	Payload          json.RawMessage
	Fingerprint      string
	ModelVersion     string
	ProviderCostUSD  float64
	PromptTokens     int
	CompletionTokens int
	CreatedAt        time.Time
}

// ApplicationRecord tracks a posting the candidate chose to pursue.
type ApplicationRecord struct {
	ID          string
	PostingID   string
	Level       TailoringLevel
	ArtifactIDs []string
	Status      Status
	Transitions []Transition
	FollowUpAt  *time.Time // nil when no follow-up is scheduled
	Notes       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AppliedAt returns when the application reached applied, if it has.
func (r ApplicationRecord) AppliedAt() (time.Time, bool) {
	for _, t := range r.Transitions {
		if t.Status == StatusApplied {
			return t.At, true
		}
	}
	return time.Time{}, false
}

// AwaitingReply reports whether the application is waiting on the employer,
// the only states a follow-up makes sense in.
func (r ApplicationRecord) AwaitingReply() bool {
	return r.Status == StatusApplied || r.Status == StatusInterview
}

// ApplicationStats summarizes every application record.
type ApplicationStats struct {
	Total            int
	ByStatus         map[Status]int
	Submitted        int     // reached applied or beyond
	Responses        int     // interview, offer or rejected
	ResponseRate     float64 // percent of Submitted
	PendingFollowUps int
}

// Transition is one reached status and when.
type Transition struct {
	Status Status    `json:"status"`
	At     time.Time `json:"at"`
}

// CandidateProfile is the source of truth for every fact a tailored resume may use.
type CandidateProfile struct {
	Name       string       `yaml:"name" json:"name"`
	Summary    string       `yaml:"summary" json:"summary"`
	Location   string       `yaml:"location" json:"location"`
	Skills     []string     `yaml:"skills" json:"skills"`
	Experience []Experience `yaml:"experience" json:"experience"`
	Education  []string     `yaml:"education" json:"education"`
}

// Experience is one role with stable bullet ids.
type Experience struct {
	ID      string   `yaml:"id" json:"id"`
	Title   string   `yaml:"title" json:"title"`
	Company string   `yaml:"company" json:"company"`
	Start   string   `yaml:"start" json:"start"`
	End     string   `yaml:"end" json:"end"`
	Bullets []Bullet `yaml:"bullets" json:"bullets"`
}

type Bullet struct {
	ID   string `yaml:"id" json:"id"`
	Text string `yaml:"text" json:"text"`
}

// BulletIDs returns every bullet id in the profile.
func (c CandidateProfile) BulletIDs() map[string]bool {
	ids := make(map[string]bool)
	for _, e := range c.Experience {
		for _, b := range e.Bullets {
			ids[b.ID] = true
		}
	}
	return ids
}

// CacheEntry maps a fingerprint to the artifact computed for it.
type CacheEntry struct {
	Fingerprint  string
	ArtifactID   string
	ModelVersion string
	CreatedAt    time.Time
}

// QuotaCounter is the persisted state of the budget tracker for one UTC day.
type QuotaCounter struct {
	Day         string      // YYYY-MM-DD, UTC
	Calls       int         // calls committed or reserved today
	SpendUSD    float64     // committed spend today
	RecentCalls []time.Time // call times inside the rolling minute window
	UpdatedAt   time.Time
}
