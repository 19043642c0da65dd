package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/eihwaz/internal/apperr"
	"github.com/starford/eihwaz/internal/checksum"
	"github.com/starford/eihwaz/internal/models"
	"github.com/starford/eihwaz/internal/store"
)

// Handler holds API route handlers.
type Handler struct {
	svc *Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func nodeID(r *http.Request) string {
	return chi.URLParam(r, "id")
}

// Tree handles GET /api/tree.
//
//	@Summary		Get the full outline with expansion state
//	@Tags			nodes
//	@Produce		json
//	@Success		200	{array}	TreeNode
//	@Security		BearerAuth
//	@Router			/tree [get]
func (h *Handler) Tree(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Tree())
}

// ListChildren handles GET /api/nodes?parent=<id>.
//
//	@Summary		List children of a node (or roots when parent is empty)
//	@Tags			nodes
//	@Produce		json
//	@Param			parent	query	string	false	"Parent node id"
//	@Success		200		{array}	models.Node
//	@Security		BearerAuth
//	@Router			/nodes [get]
func (h *Handler) ListChildren(w http.ResponseWriter, r *http.Request) {
	nodes := h.svc.Children(r.URL.Query().Get("parent"))
	if nodes == nil {
		nodes = []*models.Node{}
	}
	writeJSON(w, http.StatusOK, nodes)
}

// GetNode handles GET /api/nodes/{id}.
func (h *Handler) GetNode(w http.ResponseWriter, r *http.Request) {
	n := h.svc.GetNode(nodeID(r))
	if n == nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// CreateNode handles POST /api/nodes.
//
//	@Summary		Create a folder or leaf node
//	@Tags			nodes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateNodeRequest	true	"Node to create"
//	@Success		201		{object}	models.Node
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/nodes [post]
func (h *Handler) CreateNode(w http.ResponseWriter, r *http.Request) {
	var req CreateNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	n, err := h.svc.CreateNode(store.CreateParams{
		Name:     strings.TrimSpace(req.Name),
		Type:     models.NodeType(req.Type),
		ParentID: req.ParentID,
		Template: req.Template,
		Icon:     req.Icon,
		Active:   req.Active,
	})
	if err != nil {
		h.fail(w, "create node", err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

// UpdateNode handles PATCH /api/nodes/{id}.
func (h *Handler) UpdateNode(w http.ResponseWriter, r *http.Request) {
	var req UpdateNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		req.Name = &trimmed
	}

	n, err := h.svc.UpdateNode(nodeID(r), store.NodeUpdate{Name: req.Name, Active: req.Active})
	if err != nil {
		h.fail(w, "update node", err)
		return
	}
	if n == nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// DeleteNode handles DELETE /api/nodes/{id}. Unknown ids are a no-op and
// still return 204, matching the store's idempotent delete.
func (h *Handler) DeleteNode(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteNode(nodeID(r)); err != nil {
		h.fail(w, "delete node", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MoveNode handles POST /api/nodes/{id}/move.
//
//	@Summary		Move a node under a new parent (null for root level)
//	@Tags			nodes
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Node id"
//	@Param			body	body		MoveNodeRequest	true	"Move target"
//	@Success		200		{object}	models.Node
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse	"Move would create a cycle"
//	@Security		BearerAuth
//	@Router			/nodes/{id}/move [post]
func (h *Handler) MoveNode(w http.ResponseWriter, r *http.Request) {
	var req MoveNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	n, err := h.svc.MoveNode(nodeID(r), req.ParentID)
	if err != nil {
		h.fail(w, "move node", err)
		return
	}
	if n == nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// ReorderNode handles POST /api/nodes/{id}/reorder.
func (h *Handler) ReorderNode(w http.ResponseWriter, r *http.Request) {
	var req ReorderNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if err := h.svc.ReorderNode(nodeID(r), req.Index); err != nil {
		h.fail(w, "reorder node", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DuplicateNode handles POST /api/nodes/{id}/duplicate.
func (h *Handler) DuplicateNode(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.DuplicateNode(nodeID(r))
	if err != nil {
		h.fail(w, "duplicate node", err)
		return
	}
	if n == nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

// ToggleActive handles POST /api/nodes/{id}/active.
func (h *Handler) ToggleActive(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.ToggleActive(nodeID(r))
	if err != nil {
		h.fail(w, "toggle active", err)
		return
	}
	if n == nil {
		writeJSON(w, http.StatusNotFound, errorBody("not a leaf node"))
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// ToggleExpanded handles POST /api/nodes/{id}/expand.
func (h *Handler) ToggleExpanded(w http.ResponseWriter, r *http.Request) {
	h.svc.ToggleExpanded(nodeID(r))
	w.WriteHeader(http.StatusNoContent)
}

// NodePath handles GET /api/nodes/{id}/path.
func (h *Handler) NodePath(w http.ResponseWriter, r *http.Request) {
	path := h.svc.Path(nodeID(r))
	if path == nil {
		path = []*models.Node{}
	}
	writeJSON(w, http.StatusOK, path)
}

// NodeContent handles GET /api/nodes/{id}/content: a read that does not
// touch the selection.
func (h *Handler) NodeContent(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.GetContent(nodeID(r))
	if err != nil {
		h.fail(w, "get content", err)
		return
	}
	if c == nil {
		writeJSON(w, http.StatusNotFound, errorBody("not a leaf node"))
		return
	}
	w.Header().Set("ETag", `"`+contentETag(c)+`"`)
	writeJSON(w, http.StatusOK, c)
}

// Suggestions handles GET /api/nodes/{id}/suggestions.
//
//	@Summary		Extract wikilink and tag suggestions from a leaf's markdown
//	@Tags			nodes
//	@Produce		json
//	@Success		200	{object}	SuggestionsResponse
//	@Security		BearerAuth
//	@Router			/nodes/{id}/suggestions [get]
func (h *Handler) Suggestions(w http.ResponseWriter, r *http.Request) {
	links, tags, err := h.svc.Suggestions(nodeID(r))
	if err != nil {
		h.fail(w, "suggestions", err)
		return
	}
	if links == nil {
		links = []Suggestion{}
	}
	if tags == nil {
		tags = []string{}
	}
	writeJSON(w, http.StatusOK, SuggestionsResponse{Links: links, Tags: tags})
}

// Select handles PUT /api/selection.
func (h *Handler) Select(w http.ResponseWriter, r *http.Request) {
	var req SelectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	id := ""
	if req.ID != nil {
		id = *req.ID
	}
	if err := h.svc.Select(id); err != nil {
		h.fail(w, "select node", err)
		return
	}
	selID, content := h.svc.Selection()
	writeJSON(w, http.StatusOK, SelectionResponse{ID: selID, Content: content})
}

// GetSelection handles GET /api/selection.
func (h *Handler) GetSelection(w http.ResponseWriter, _ *http.Request) {
	id, content := h.svc.Selection()
	writeJSON(w, http.StatusOK, SelectionResponse{ID: id, Content: content})
}

// GetContent handles GET /api/content (the selected leaf's content).
func (h *Handler) GetContent(w http.ResponseWriter, _ *http.Request) {
	id, content := h.svc.Selection()
	if id == "" || content == nil {
		writeJSON(w, http.StatusNotFound, errorBody("no leaf selected"))
		return
	}
	w.Header().Set("ETag", `"`+contentETag(content)+`"`)
	writeJSON(w, http.StatusOK, content)
}

// UpdateContent handles PUT /api/content with optional If-Match optimistic
// concurrency against the ETag served by GET /api/content.
func (h *Handler) UpdateContent(w http.ResponseWriter, r *http.Request) {
	var req UpdateContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	id, current := h.svc.Selection()
	if id == "" || current == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("no leaf selected"))
		return
	}
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)
	if ifMatch != "" && ifMatch != contentETag(current) {
		writeJSON(w, http.StatusConflict, errorBody("content changed since read"))
		return
	}

	c, err := h.svc.UpdateContent(store.ContentUpdate{
		Icon:     req.Icon,
		Markdown: req.Markdown,
		Fields:   req.Fields,
		Tags:     req.Tags,
		Links:    req.Links,
	})
	if err != nil {
		h.fail(w, "update content", err)
		return
	}
	if c == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("no leaf selected"))
		return
	}
	w.Header().Set("ETag", `"`+contentETag(c)+`"`)
	writeJSON(w, http.StatusOK, c)
}

// Search handles GET /api/search.
//
//	@Summary		Scored name and path search over all nodes
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	map[string]any
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results := h.svc.Search(q, limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"results": nonNilResults(results),
	})
}

// ExportSnapshot handles GET /api/snapshot.
func (h *Handler) ExportSnapshot(w http.ResponseWriter, _ *http.Request) {
	snap, err := h.svc.Export()
	if err != nil {
		h.fail(w, "export snapshot", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// ImportSnapshot handles POST /api/snapshot: atomic full replace.
func (h *Handler) ImportSnapshot(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 50<<20)
	var snap models.Snapshot
	if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid snapshot JSON"))
		return
	}
	if err := h.svc.Import(&snap); err != nil {
		h.fail(w, "import snapshot", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"nodes":    len(snap.Nodes),
		"contents": len(snap.Contents),
	})
}

// ExportSnapshotFile handles POST /api/snapshot/file: writes a snapshot into
// the configured snapshots directory.
func (h *Handler) ExportSnapshotFile(w http.ResponseWriter, r *http.Request) {
	var req ExportFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	path := filepath.Join(h.svc.SnapshotDir(), req.Filename)
	if err := h.svc.ExportToFile(path); err != nil {
		h.fail(w, "export snapshot file", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"path": path})
}

// fail maps store and persistence errors to HTTP statuses.
func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrCycle):
		writeJSON(w, http.StatusConflict, errorBody("move would create a cycle"))
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// contentETag digests the content's JSON encoding for If-Match checks.
func contentETag(c *models.Content) string {
	data, _ := json.Marshal(c)
	return checksum.Sum(data)
}

func nonNilResults[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
