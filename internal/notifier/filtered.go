package notifier

import "github.com/amishk599/autoapply/internal/model"

// Filtered forwards only the postings that match filter.
type Filtered struct {
	next   model.Notifier
	filter model.PostingFilter
}

func NewFiltered(next model.Notifier, filter model.PostingFilter) *Filtered {
	return &Filtered{next: next, filter: filter}
}

func (f *Filtered) Notify(postings []model.JobPosting) error {
	var matched []model.JobPosting
	for _, p := range postings {
		if f.filter.Match(p) {
			matched = append(matched, p)
		}
	}
	if len(matched) == 0 {
		return nil
	}
	return f.next.Notify(matched)
}
