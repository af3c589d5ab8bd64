package ai

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/amishk599/autoapply/internal/model"
)

// JDAnalysis is the jd_analysis payload.
type JDAnalysis struct {
	RequiredSkills   []string `json:"required_skills"`
	PreferredSkills  []string `json:"preferred_skills"`
	ExperienceYears  int      `json:"experience_years"`
	Responsibilities []string `json:"responsibilities"`
	ATSKeywords      []string `json:"ats_keywords"`
	SoftSkills       []string `json:"soft_skills"`
	Education        string   `json:"education"`
	RedFlags         []string `json:"red_flags"`
	JobType          string   `json:"job_type"`
	Seniority        string   `json:"seniority"`
}

var (
	jobTypes    = []string{"full-time", "part-time", "contract", "internship", "freelance", "unknown"}
	seniorities = []string{"entry", "mid", "senior", "lead", "executive", "unknown"}
)

func (a *JDAnalysis) validate(Input) error {
	if len(a.RequiredSkills) == 0 {
		return fmt.Errorf("required_skills is empty")
	}
	if len(a.ATSKeywords) == 0 {
		return fmt.Errorf("ats_keywords is empty")
	}
	if a.ExperienceYears < 0 || a.ExperienceYears > 50 {
		return fmt.Errorf("experience_years %d out of range", a.ExperienceYears)
	}
	if !oneOf(a.JobType, jobTypes) {
		return fmt.Errorf("job_type %q not one of %v", a.JobType, jobTypes)
	}
	if !oneOf(a.Seniority, seniorities) {
		return fmt.Errorf("seniority %q not one of %v", a.Seniority, seniorities)
	}
	return nil
}

// TailoredBullet rewrites one profile bullet; SourceID must name that bullet.
type TailoredBullet struct {
	SourceID string `json:"source_id"`
	Text     string `json:"text"`
}

// TailoredResume is the resume_tailor payload.
type TailoredResume struct {
	TailoredSummary   string           `json:"tailored_summary"`
	TailoredBullets   []TailoredBullet `json:"tailored_bullets"`
	ChangesMade       []string         `json:"changes_made"`
	KeywordsAdded     []string         `json:"keywords_added"`
	TruthfulnessCheck bool             `json:"truthfulness_check"`
}

func (r *TailoredResume) validate(in Input) error {
	if strings.TrimSpace(r.TailoredSummary) == "" {
		return fmt.Errorf("tailored_summary is empty")
	}
	if len(r.TailoredBullets) == 0 {
		return fmt.Errorf("tailored_bullets is empty")
	}
	if !r.TruthfulnessCheck {
		return fmt.Errorf("truthfulness_check is false")
	}
	return checkFabrication(r, in)
}

// CoverLetter is the cover_letter payload.
type CoverLetter struct {
	Opening   string `json:"opening"`
	Body      string `json:"body"`
	Closing   string `json:"closing"`
	FullText  string `json:"full_text"`
	WordCount int    `json:"word_count"`
}

func (c *CoverLetter) validate(Input) error {
	if strings.TrimSpace(c.Opening) == "" || strings.TrimSpace(c.Body) == "" || strings.TrimSpace(c.Closing) == "" {
		return fmt.Errorf("opening, body and closing are all required")
	}
	if strings.TrimSpace(c.FullText) == "" {
		c.FullText = strings.Join([]string{c.Opening, c.Body, c.Closing}, "\n\n")
	}
	c.WordCount = len(strings.Fields(c.FullText))
	return nil
}

// FollowUpEmail is the follow_up_email payload.
type FollowUpEmail struct {
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	WordCount int    `json:"word_count"`
}

const maxFollowUpWords = 150

func (f *FollowUpEmail) validate(Input) error {
	if strings.TrimSpace(f.Subject) == "" || strings.TrimSpace(f.Body) == "" {
		return fmt.Errorf("subject and body are both required")
	}
	f.WordCount = len(strings.Fields(f.Body))
	if f.WordCount > maxFollowUpWords {
		return fmt.Errorf("body has %d words, keep it under %d", f.WordCount, maxFollowUpWords)
	}
	return nil
}

// MatchScore is the match_score payload. OverallScore and MatchLevel are
// recomputed locally from the component scores.
type MatchScore struct {
	HardSkills   int      `json:"hard_skills"`
	Experience   int      `json:"experience"`
	SoftSkills   int      `json:"soft_skills"`
	Education    int      `json:"education"`
	Location     int      `json:"location"`
	OverallScore int      `json:"overall_score"`
	MatchLevel   string   `json:"match_level"`
	Strengths    []string `json:"strengths"`
	Gaps         []string `json:"gaps"`
}

func (m *MatchScore) validate(Input) error {
	for name, v := range map[string]int{
		"hard_skills": m.HardSkills,
		"experience":  m.Experience,
		"soft_skills": m.SoftSkills,
		"education":   m.Education,
		"location":    m.Location,
	} {
		if v < 0 || v > 100 {
			return fmt.Errorf("%s score %d out of range 0..100", name, v)
		}
	}
	m.OverallScore = m.weighted()
	m.MatchLevel = MatchLevel(m.OverallScore)
	return nil
}

func (m *MatchScore) weighted() int {
	total := 0.40*float64(m.HardSkills) +
		0.20*float64(m.Experience) +
		0.15*float64(m.SoftSkills) +
		0.15*float64(m.Education) +
		0.10*float64(m.Location)
	return int(total + 0.5)
}

// MatchLevel buckets an overall score.
func MatchLevel(score int) string {
	switch {
	case score >= 85:
		return "excellent"
	case score >= 70:
		return "good"
	case score >= 55:
		return "moderate"
	case score >= 40:
		return "weak"
	default:
		return "poor"
	}
}

var numberRegex = regexp.MustCompile(`\d+(?:[.,]\d+)*%?`)

// checkFabrication requires every tailored bullet to rewrite an existing
// profile bullet without introducing new numbers, the summary to use only
// numbers found in the profile, every proper noun in the summary and bullets
// to occur in the profile or the posting, and every added keyword likewise.
func checkFabrication(r *TailoredResume, in Input) error {
	if in.Profile == nil {
		return fmt.Errorf("no candidate profile to verify against")
	}
	sources := make(map[string]string)
	for _, e := range in.Profile.Experience {
		for _, b := range e.Bullets {
			sources[b.ID] = b.Text
		}
	}
	profile := profileText(*in.Profile)
	corpus := strings.ToLower(profile + "\n" + in.Posting.Title + "\n" + in.Posting.Company + "\n" + in.Posting.Description)
	words := wordSet(corpus)

	if n, ok := newFigure(r.TailoredSummary, numberSet(profile)); ok {
		return fmt.Errorf("tailored_summary introduces figure %q absent from the profile", n)
	}
	if w, ok := newProperNoun(r.TailoredSummary, words); ok {
		return fmt.Errorf("tailored_summary mentions %q, found in neither the profile nor the posting", w)
	}

	for _, b := range r.TailoredBullets {
		src, ok := sources[b.SourceID]
		if !ok {
			return fmt.Errorf("bullet cites unknown source_id %q", b.SourceID)
		}
		if n, ok := newFigure(b.Text, numberSet(src)); ok {
			return fmt.Errorf("bullet %s introduces figure %q absent from the source", b.SourceID, n)
		}
		if w, ok := newProperNoun(b.Text, words); ok {
			return fmt.Errorf("bullet %s mentions %q, found in neither the profile nor the posting", b.SourceID, w)
		}
	}

	for _, kw := range r.KeywordsAdded {
		if !strings.Contains(corpus, strings.ToLower(strings.TrimSpace(kw))) {
			return fmt.Errorf("keyword %q appears in neither the profile nor the posting", kw)
		}
	}
	return nil
}

// normalizeFigure makes "1,200" and "1200" or "40%" and "40" compare equal.
func normalizeFigure(n string) string {
	return strings.ReplaceAll(strings.TrimSuffix(n, "%"), ",", "")
}

func numberSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, n := range numberRegex.FindAllString(s, -1) {
		set[normalizeFigure(n)] = true
	}
	return set
}

// newFigure returns the first whole number in text that known lacks.
func newFigure(text string, known map[string]bool) (string, bool) {
	for _, n := range numberRegex.FindAllString(text, -1) {
		if !known[normalizeFigure(n)] {
			return n, true
		}
	}
	return "", false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '+' || r == '#'
}

func wordSet(lower string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.FieldsFunc(lower, func(r rune) bool { return !isWordRune(r) }) {
		set[w] = true
	}
	return set
}

// newProperNoun returns the first capitalized word that does not open a
// sentence and is missing from known (lowercased words).
func newProperNoun(text string, known map[string]bool) (string, bool) {
	sentenceStart := true
	for _, field := range strings.Fields(text) {
		for _, w := range strings.FieldsFunc(field, func(r rune) bool { return !isWordRune(r) }) {
			first, _ := utf8.DecodeRuneInString(w)
			if !sentenceStart && unicode.IsUpper(first) && !known[strings.ToLower(w)] {
				return w, true
			}
			sentenceStart = false
		}
		last, _ := utf8.DecodeLastRuneInString(field)
		sentenceStart = strings.ContainsRune(".!?:;", last)
	}
	return "", false
}

func profileText(p model.CandidateProfile) string {
	var b strings.Builder
	b.WriteString(p.Name + "\n" + p.Summary + "\n" + p.Location + "\n")
	b.WriteString(strings.Join(p.Skills, ", ") + "\n")
	for _, e := range p.Experience {
		fmt.Fprintf(&b, "%s | %s | %s - %s\n", e.Title, e.Company, e.Start, e.End)
		for _, bl := range e.Bullets {
			fmt.Fprintf(&b, "[%s] %s\n", bl.ID, bl.Text)
		}
	}
	b.WriteString(strings.Join(p.Education, "\n"))
	return b.String()
}

func oneOf(v string, options []string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}
