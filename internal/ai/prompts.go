package ai

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/amishk599/autoapply/internal/model"
)

//go:embed prompts/*.md
var promptFS embed.FS

// Templates holds every task prompt, parsed once at package init.
var Templates = template.Must(template.ParseFS(promptFS, "prompts/*.md"))

const systemPrompt = "You are a precise assistant for job applications. " +
	"You answer with JSON that matches the given schema and you never invent facts about the candidate."

// promptData is bound into every task template.
type promptData struct {
	Posting    model.JobPosting
	Profile    string
	Analysis   string
	Level      model.TailoringLevel
	Tone       model.Tone
	DaysSince  int
	Correction string // why the previous answer was rejected; empty on the first attempt
}

func newPromptData(in Input, opts model.TaskOptions) promptData {
	d := promptData{Posting: in.Posting, Level: opts.Level, Tone: opts.Tone, DaysSince: in.DaysSinceApplied}
	if in.Profile != nil {
		d.Profile = profileText(*in.Profile)
	}
	if in.Analysis != nil {
		if data, err := json.MarshalIndent(in.Analysis, "", "  "); err == nil {
			d.Analysis = string(data)
		}
	}
	return d
}

// render executes the named task template.
func render(tmpl *template.Template, name string, data promptData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", name, err)
	}
	return buf.String(), nil
}
