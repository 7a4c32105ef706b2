package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/herald/internal/models"
	"github.com/starford/herald/internal/publisher"
	"github.com/starford/herald/internal/reconcile"
)

// Index is the read side of the tracking index.
type Index interface {
	List(modifiedOnly bool) []models.TrackedNote
	Get(path string) (models.TrackedNote, bool)
}

// Refresher runs a full reconciliation scan.
type Refresher interface {
	Refresh(ctx context.Context) (reconcile.Result, error)
}

// Publisher runs one publish action.
type Publisher interface {
	Publish(ctx context.Context, req publisher.Request) (*publisher.Report, error)
}

// Deps are the collaborators the API serves.
type Deps struct {
	Index     Index
	Refresher Refresher
	Publisher Publisher
	// Events, if non-nil, is mounted at GET /events.
	Events http.Handler
}

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
func NewRouter(deps Deps, authEnabled bool, token string) chi.Router {
	h := NewHandler(deps)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/notes", h.ListNotes)
	r.Get("/notes/*", h.GetNote)
	r.Post("/refresh", h.Refresh)
	r.Post("/publish", h.Publish)

	if deps.Events != nil {
		r.Get("/events", deps.Events.ServeHTTP)
	}
	return r
}
