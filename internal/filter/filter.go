package filter

import (
	"strings"

	"github.com/amishk599/autoapply/internal/model"
)

// TitleAndLocationFilter matches postings whose title contains any of the title
// keywords and whose location contains any of the location keywords.
// Matching is case-insensitive. Empty keyword lists are treated as "match all".
type TitleAndLocationFilter struct {
	titleKeywords []string
	locations     []string
}

// NewTitleAndLocationFilter returns a filter that requires both a title keyword
// match and a location keyword match (case-insensitive substring).
func NewTitleAndLocationFilter(titleKeywords []string, locations []string) *TitleAndLocationFilter {
	return &TitleAndLocationFilter{
		titleKeywords: titleKeywords,
		locations:     locations,
	}
}

// Match returns true if the posting's title contains any title keyword and
// its location contains any location keyword. Empty keyword lists pass all.
func (f *TitleAndLocationFilter) Match(p model.JobPosting) bool {
	return containsAny(p.Title, f.titleKeywords) && containsAny(p.Location, f.locations)
}

// CompanyFilter matches postings from any of the named companies.
type CompanyFilter struct {
	companies []string
}

func NewCompanyFilter(companies []string) *CompanyFilter {
	return &CompanyFilter{companies: companies}
}

func (f *CompanyFilter) Match(p model.JobPosting) bool {
	return containsAny(p.Company, f.companies)
}

// TextFilter matches postings whose title or description contains every word
// of the query.
type TextFilter struct {
	words []string
}

func NewTextFilter(query string) *TextFilter {
	return &TextFilter{words: strings.Fields(strings.ToLower(query))}
}

func (f *TextFilter) Match(p model.JobPosting) bool {
	text := strings.ToLower(p.Title + "\n" + p.Description)
	for _, w := range f.words {
		if !strings.Contains(text, w) {
			return false
		}
	}
	return true
}

// All matches when every filter matches. An empty All matches everything.
type All []model.PostingFilter

func (a All) Match(p model.JobPosting) bool {
	for _, f := range a {
		if !f.Match(p) {
			return false
		}
	}
	return true
}

func containsAny(field string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	lower := strings.ToLower(field)
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
