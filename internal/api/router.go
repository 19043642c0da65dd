package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Outline and node CRUD.
	r.Get("/tree", h.Tree)
	r.Get("/nodes", h.ListChildren)
	r.Post("/nodes", h.CreateNode)
	r.Get("/nodes/{id}", h.GetNode)
	r.Patch("/nodes/{id}", h.UpdateNode)
	r.Delete("/nodes/{id}", h.DeleteNode)

	// Structural operations.
	r.Post("/nodes/{id}/move", h.MoveNode)
	r.Post("/nodes/{id}/reorder", h.ReorderNode)
	r.Post("/nodes/{id}/duplicate", h.DuplicateNode)
	r.Post("/nodes/{id}/active", h.ToggleActive)
	r.Post("/nodes/{id}/expand", h.ToggleExpanded)
	r.Get("/nodes/{id}/path", h.NodePath)
	r.Get("/nodes/{id}/content", h.NodeContent)
	r.Get("/nodes/{id}/suggestions", h.Suggestions)

	// Selection and its content.
	r.Get("/selection", h.GetSelection)
	r.Put("/selection", h.Select)
	r.Get("/content", h.GetContent)
	r.Put("/content", h.UpdateContent)

	// Search.
	r.Get("/search", h.Search)

	// Snapshot export/import.
	r.Get("/snapshot", h.ExportSnapshot)
	r.Post("/snapshot", h.ImportSnapshot)
	r.Post("/snapshot/file", h.ExportSnapshotFile)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
