package ai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/amishk599/autoapply/internal/model"
)

// Input is everything a task may bind into its prompt.
type Input struct {
	Posting  model.JobPosting
	Profile  *model.CandidateProfile
	Analysis *JDAnalysis // optional; sharpens tailoring, cover letters and scoring
	// DaysSinceApplied feeds follow_up_email.
	DaysSinceApplied int
}

// payload is one variant of the task result union.
type payload interface {
	validate(in Input) error
}

// taskSpec describes one task: its prompt, response schema and payload type.
type taskSpec struct {
	task         model.TaskType
	templateName string
	schemaName   string
	schema       map[string]any
	maxTokens    int
	needsProfile bool
	newPayload   func() payload
}

var taskSpecs = map[model.TaskType]taskSpec{
	model.TaskJDAnalysis: {
		task:         model.TaskJDAnalysis,
		templateName: "jd_analysis.md",
		schemaName:   "jd_analysis",
		schema: object(map[string]any{
			"required_skills":  stringArray(),
			"preferred_skills": stringArray(),
			"experience_years": map[string]any{"type": "integer"},
			"responsibilities": stringArray(),
			"ats_keywords":     stringArray(),
			"soft_skills":      stringArray(),
			"education":        map[string]any{"type": "string"},
			"red_flags":        stringArray(),
			"job_type":         enum(jobTypes),
			"seniority":        enum(seniorities),
		}),
		maxTokens:  1024,
		newPayload: func() payload { return &JDAnalysis{} },
	},
	model.TaskResumeTailor: {
		task:         model.TaskResumeTailor,
		templateName: "resume_tailor.md",
		schemaName:   "resume_tailor",
		schema: object(map[string]any{
			"tailored_summary": map[string]any{"type": "string"},
			"tailored_bullets": map[string]any{
				"type": "array",
				"items": object(map[string]any{
					"source_id": map[string]any{"type": "string"},
					"text":      map[string]any{"type": "string"},
				}),
			},
			"changes_made":       stringArray(),
			"keywords_added":     stringArray(),
			"truthfulness_check": map[string]any{"type": "boolean"},
		}),
		maxTokens:    2048,
		needsProfile: true,
		newPayload:   func() payload { return &TailoredResume{} },
	},
	model.TaskCoverLetter: {
		task:         model.TaskCoverLetter,
		templateName: "cover_letter.md",
		schemaName:   "cover_letter",
		schema: object(map[string]any{
			"opening":    map[string]any{"type": "string"},
			"body":       map[string]any{"type": "string"},
			"closing":    map[string]any{"type": "string"},
			"full_text":  map[string]any{"type": "string"},
			"word_count": map[string]any{"type": "integer"},
		}),
		maxTokens:    1024,
		needsProfile: true,
		newPayload:   func() payload { return &CoverLetter{} },
	},
	model.TaskMatchScore: {
		task:         model.TaskMatchScore,
		templateName: "match_score.md",
		schemaName:   "match_score",
		schema: object(map[string]any{
			"hard_skills":   score(),
			"experience":    score(),
			"soft_skills":   score(),
			"education":     score(),
			"location":      score(),
			"overall_score": score(),
			"match_level":   enum([]string{"excellent", "good", "moderate", "weak", "poor"}),
			"strengths":     stringArray(),
			"gaps":          stringArray(),
		}),
		maxTokens:    1024,
		needsProfile: true,
		newPayload:   func() payload { return &MatchScore{} },
	},
	model.TaskFollowUp: {
		task:         model.TaskFollowUp,
		templateName: "follow_up_email.md",
		schemaName:   "follow_up_email",
		schema: object(map[string]any{
			"subject":    map[string]any{"type": "string"},
			"body":       map[string]any{"type": "string"},
			"word_count": map[string]any{"type": "integer"},
		}),
		maxTokens:    512,
		needsProfile: true,
		newPayload:   func() payload { return &FollowUpEmail{} },
	},
}

func lookupTask(t model.TaskType) (taskSpec, error) {
	spec, ok := taskSpecs[t]
	if !ok {
		return taskSpec{}, model.InvalidInput(fmt.Sprintf("unsupported task type %q", t))
	}
	return spec, nil
}

// checkOptions validates options and fills defaults.
func (s taskSpec) checkOptions(opts model.TaskOptions) (model.TaskOptions, error) {
	switch s.task {
	case model.TaskResumeTailor:
		if _, err := model.ParseTailoringLevel(string(opts.Level)); err != nil {
			return opts, model.InvalidInput(err.Error())
		}
		opts.Tone = ""
	case model.TaskCoverLetter:
		if opts.Tone == "" {
			opts.Tone = model.ToneProfessional
		}
		if _, err := model.ParseTone(string(opts.Tone)); err != nil {
			return opts, model.InvalidInput(err.Error())
		}
		opts.Level = ""
	default:
		opts = model.TaskOptions{}
	}
	return opts, nil
}

// normalizedInput is the canonical text of everything the task reads. It is
// what the cache fingerprint covers, alongside task, level and model.
func (s taskSpec) normalizedInput(in Input, opts model.TaskOptions) string {
	var b strings.Builder
	fmt.Fprintf(&b, "title: %s\ncompany: %s\nlocation: %s\ndescription: %s\n",
		in.Posting.Title, in.Posting.Company, in.Posting.Location, in.Posting.Description)
	if s.needsProfile && in.Profile != nil {
		b.WriteString("profile:\n" + profileText(*in.Profile) + "\n")
	}
	if s.task != model.TaskJDAnalysis && in.Analysis != nil {
		if data, err := json.Marshal(in.Analysis); err == nil {
			b.WriteString("analysis: " + string(data) + "\n")
		}
	}
	if opts.Tone != "" {
		b.WriteString("tone: " + string(opts.Tone) + "\n")
	}
	if s.task == model.TaskFollowUp {
		fmt.Fprintf(&b, "days_since_applied: %d\n", in.DaysSinceApplied)
	}
	return b.String()
}

// decode parses a raw provider answer into the task's payload, checks the
// schema's required keys, runs the variant's own validation and returns the
// canonical JSON encoding.
func (s taskSpec) decode(raw string, in Input) (json.RawMessage, error) {
	body := []byte(stripCodeFence(raw))

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(body, &keys); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}
	for _, k := range s.schema["required"].([]string) {
		if _, ok := keys[k]; !ok {
			return nil, fmt.Errorf("response is missing %q", k)
		}
	}

	p := s.newPayload()
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(p); err != nil {
		return nil, fmt.Errorf("response does not match %s shape: %w", s.schemaName, err)
	}
	if err := p.validate(in); err != nil {
		return nil, err
	}

	out, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}
	return out, nil
}

// stripCodeFence removes a surrounding ```json ... ``` block if present.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func object(props map[string]any) map[string]any {
	required := make([]string, 0, len(props))
	for k := range props {
		required = append(required, k)
	}
	sort.Strings(required)
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             required,
	}
}

func stringArray() map[string]any {
	return map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
}

func enum(values []string) map[string]any {
	return map[string]any{"type": "string", "enum": values}
}

func score() map[string]any {
	return map[string]any{"type": "integer", "minimum": 0, "maximum": 100}
}
