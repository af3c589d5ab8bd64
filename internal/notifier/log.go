package notifier

import (
	"log/slog"

	"github.com/amishk599/autoapply/internal/model"
)

// Ensure LogNotifier implements model.Notifier.
var _ model.Notifier = (*LogNotifier)(nil)

// LogNotifier writes new postings to the given logger as structured messages.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier that logs each posting via slog.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs each posting with site, company, title, location, URL, and posted_at.
// Returns nil (stdout logging does not fail).
func (n *LogNotifier) Notify(postings []model.JobPosting) error {
	for _, p := range postings {
		args := []any{"id", short(p.ID), "site", p.Site, "company", p.Company, "title", p.Title, "location", p.Location, "url", p.URL}
		if p.PostedAt != nil {
			args = append(args, "posted_at", *p.PostedAt)
		}
		n.logger.Info("new posting", args...)
	}
	return nil
}

// short trims a posting id for display; the CLI accepts any unique prefix.
func short(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
