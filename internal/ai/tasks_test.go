package ai

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/amishk599/autoapply/internal/model"
)

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}```", `{"a":1}`},
		{"  \n{\"a\":1}\n  ", `{"a":1}`},
	}
	for _, tt := range tests {
		if got := stripCodeFence(tt.in); got != tt.want {
			t.Errorf("stripCodeFence(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDecode_RejectsUnknownKeys(t *testing.T) {
	raw := strings.Replace(validAnalysis, `"seniority":"mid"`, `"seniority":"mid","salary":"120k"`, 1)
	if _, err := taskSpecs[model.TaskJDAnalysis].decode(raw, Input{}); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestDecode_RejectsOutOfEnum(t *testing.T) {
	raw := strings.Replace(validAnalysis, `"job_type":"full-time"`, `"job_type":"gig"`, 1)
	_, err := taskSpecs[model.TaskJDAnalysis].decode(raw, Input{})
	if err == nil || !strings.Contains(err.Error(), "job_type") {
		t.Fatalf("expected job_type error, got %v", err)
	}
}

func TestDecode_MatchScoreRecomputesOverall(t *testing.T) {
	raw := `{"hard_skills":90,"experience":80,"soft_skills":60,"education":60,"location":100,` +
		`"overall_score":12,"match_level":"poor","strengths":["Go"],"gaps":[]}`
	out, err := taskSpecs[model.TaskMatchScore].decode(raw, Input{Profile: testProfile()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var m MatchScore
	if err := json.Unmarshal(out, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	// 36 + 16 + 9 + 9 + 10
	if m.OverallScore != 80 {
		t.Errorf("overall = %d, want 80", m.OverallScore)
	}
	if m.MatchLevel != "good" {
		t.Errorf("match_level = %q, want good", m.MatchLevel)
	}
}

func TestDecode_MatchScoreOutOfRange(t *testing.T) {
	raw := `{"hard_skills":190,"experience":80,"soft_skills":70,"education":60,"location":100,` +
		`"overall_score":0,"match_level":"poor","strengths":[],"gaps":[]}`
	if _, err := taskSpecs[model.TaskMatchScore].decode(raw, Input{}); err == nil {
		t.Fatal("expected range error")
	}
}

func TestDecode_CoverLetterFillsFullText(t *testing.T) {
	raw := `{"opening":"Dear team,","body":"I build Go services.","closing":"Best, Sam","full_text":"","word_count":0}`
	out, err := taskSpecs[model.TaskCoverLetter].decode(raw, Input{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var c CoverLetter
	if err := json.Unmarshal(out, &c); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if c.WordCount != 8 {
		t.Errorf("word_count = %d, want 8", c.WordCount)
	}
	if !strings.HasPrefix(c.FullText, "Dear team,") {
		t.Errorf("full_text = %q", c.FullText)
	}
}

func TestCheckFabrication(t *testing.T) {
	posting := testPosting(1)
	tests := []struct {
		name    string
		bullet  TailoredBullet
		keyword string
		wantErr string
	}{
		{"faithful rewrite", TailoredBullet{SourceID: "b1", Text: "Cut p99 latency 40% on 12 services"}, "PostgreSQL", ""},
		{"unknown source", TailoredBullet{SourceID: "b9", Text: "Led a team"}, "Go", "unknown source_id"},
		{"invented metric", TailoredBullet{SourceID: "b2", Text: "Owned billing for 3M users"}, "Go", "introduces figure"},
		{"invented keyword", TailoredBullet{SourceID: "b2", Text: "Owned billing"}, "Rust", "neither the profile nor the posting"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &TailoredResume{
				TailoredSummary:   "x",
				TailoredBullets:   []TailoredBullet{tt.bullet},
				KeywordsAdded:     []string{tt.keyword},
				TruthfulnessCheck: true,
			}
			err := r.validate(Input{Posting: posting, Profile: testProfile()})
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestCheckFabrication_Summary(t *testing.T) {
	posting := testPosting(1)
	tests := []struct {
		name    string
		summary string
		wantErr string
	}{
		{"grounded", "Backend engineer at Initech building Go and PostgreSQL services.", ""},
		{"profile figure", "Cut p99 latency by 40% across 12 services.", ""},
		{"invented employer and degree", "Former Google staff engineer with 15 years at NASA and a PhD from MIT.", "tailored_summary"},
		{"invented years", "Backend engineer with 15 years of experience.", "introduces figure"},
		{"invented employer", "Backend engineer formerly at Stripe.", "Stripe"},
		{"digit inside a profile number", "Engineer with 4 years on services.", "introduces figure"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &TailoredResume{
				TailoredSummary:   tt.summary,
				TailoredBullets:   []TailoredBullet{{SourceID: "b2", Text: "Owned the billing pipeline"}},
				TruthfulnessCheck: true,
			}
			err := r.validate(Input{Posting: posting, Profile: testProfile()})
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestCheckFabrication_FiguresMatchWholeNumbers(t *testing.T) {
	posting := testPosting(1)
	tests := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{"same figure", "Reduced p99 latency by 40% across 12 services", false},
		{"prefix of a source figure", "Reduced p99 latency by 4% across 12 services", true},
		{"suffix of a source figure", "Reduced p9 latency by 40% across 2 services", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &TailoredResume{
				TailoredSummary:   "Backend engineer.",
				TailoredBullets:   []TailoredBullet{{SourceID: "b1", Text: tt.text}},
				TruthfulnessCheck: true,
			}
			err := r.validate(Input{Posting: posting, Profile: testProfile()})
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNormalizedInput_ToneChangesFingerprintInput(t *testing.T) {
	spec := taskSpecs[model.TaskCoverLetter]
	in := Input{Posting: testPosting(1), Profile: testProfile()}
	a := spec.normalizedInput(in, model.TaskOptions{Tone: model.ToneProfessional})
	b := spec.normalizedInput(in, model.TaskOptions{Tone: model.ToneEnthusiastic})
	if a == b {
		t.Error("tone should be part of the normalized input")
	}
}

func TestRender_LevelBranches(t *testing.T) {
	in := Input{Posting: testPosting(1), Profile: testProfile()}
	for lvl, marker := range map[model.TailoringLevel]string{
		model.LevelConservative: "CONSERVATIVE",
		model.LevelModerate:     "MODERATE",
		model.LevelAggressive:   "AGGRESSIVE",
	} {
		prompt, err := render(Templates, "resume_tailor.md", newPromptData(in, model.TaskOptions{Level: lvl}))
		if err != nil {
			t.Fatalf("%s: %v", lvl, err)
		}
		if !strings.Contains(prompt, marker) {
			t.Errorf("%s prompt missing %s section", lvl, marker)
		}
		if !strings.Contains(prompt, "[b1] Reduced p99 latency") {
			t.Errorf("%s prompt missing profile bullets", lvl)
		}
	}
}

func TestDecode_FollowUpEmail(t *testing.T) {
	raw := `{"subject":"Following up on the Backend Engineer role","body":"Hi team, I applied two weeks ago and remain keen. Happy to share more. Sam","word_count":3}`
	out, err := taskSpecs[model.TaskFollowUp].decode(raw, Input{Profile: testProfile()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var f FollowUpEmail
	if err := json.Unmarshal(out, &f); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if f.WordCount != 15 {
		t.Errorf("word_count = %d, want 15", f.WordCount)
	}

	long := `{"subject":"Hello","body":"` + strings.Repeat("word ", 200) + `","word_count":0}`
	if _, err := taskSpecs[model.TaskFollowUp].decode(long, Input{}); err == nil {
		t.Fatal("expected an over-long body to be rejected")
	}
}

func TestNormalizedInput_FollowUpIncludesDaysSinceApplied(t *testing.T) {
	spec := taskSpecs[model.TaskFollowUp]
	in := Input{Posting: testPosting(1), Profile: testProfile(), DaysSinceApplied: 7}
	a := spec.normalizedInput(in, model.TaskOptions{})
	in.DaysSinceApplied = 14
	b := spec.normalizedInput(in, model.TaskOptions{})
	if a == b {
		t.Error("days since applied should be part of the fingerprinted input")
	}

	prompt, err := render(Templates, "follow_up_email.md", newPromptData(in, model.TaskOptions{}))
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(prompt, "applied 14 days ago") {
		t.Errorf("prompt missing days since applied:\n%s", prompt)
	}
}
