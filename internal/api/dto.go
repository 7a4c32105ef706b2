package api

import (
	"time"

	"github.com/starford/herald/internal/models"
	"github.com/starford/herald/internal/publisher"
)

// NoteSummary is one entry of the note list.
type NoteSummary struct {
	Path            string     `json:"path"`
	Title           string     `json:"title,omitempty"`
	Modified        bool       `json:"modified"`
	LastPublishedAt *time.Time `json:"last_published_at,omitempty"`
	LastStatus      string     `json:"last_status,omitempty"`
}

// NoteListResponse is returned by GET /notes.
type NoteListResponse struct {
	Notes []NoteSummary `json:"notes"`
	Total int           `json:"total"`
}

// PublishError is returned when a publish action does not succeed.
type PublishError struct {
	Error  string            `json:"error"`
	Report *publisher.Report `json:"report,omitempty"`
}

func summarize(n models.TrackedNote) NoteSummary {
	s := NoteSummary{
		Path:            n.Path,
		Title:           n.Metadata.Title(),
		Modified:        n.Modified,
		LastPublishedAt: n.LastPublishedAt,
	}
	if len(n.History) > 0 {
		s.LastStatus = string(n.History[len(n.History)-1].Status)
	}
	return s
}
