package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/phedlund/cloudnotes/internal/apperr"
	"github.com/phedlund/cloudnotes/internal/cache"
	"github.com/phedlund/cloudnotes/internal/models"
	"github.com/phedlund/cloudnotes/internal/notesync"
	"github.com/phedlund/cloudnotes/internal/tree"
)

const maxBodyBytes = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	mgr   *notesync.Manager
	store cache.Store
	tree  *tree.Tree
}

// NewHandler creates a new Handler.
func NewHandler(mgr *notesync.Manager, store cache.Store) *Handler {
	return &Handler{mgr: mgr, store: store, tree: tree.New(store)}
}

// noteID extracts the numeric note id from the URL.
func noteID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil
}

// ListNotes handles GET /api/notes with optional category, starred and
// pending filters. The Uncategorized label selects notes without a
// category; pending selects notes with unsynced local changes.
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var (
		notes []models.Note
		err   error
	)
	switch {
	case q.Get("starred") == "true":
		notes, err = h.store.Starred()
	case q.Get("pending") == "true":
		notes, err = h.store.Pending()
	case q.Has("category"):
		category := q.Get("category")
		if category == tree.Uncategorized {
			category = ""
		}
		notes, err = h.store.ByCategory(category)
	default:
		notes, err = h.store.Active()
	}
	if err != nil {
		slog.Error("list notes failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}

	items := make([]NoteResponse, len(notes))
	for i, n := range notes {
		items[i] = toNoteResponse(n)
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: items, Total: len(items)})
}

// GetNote handles GET /api/notes/{id}.
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid note id"))
		return
	}
	n, err := h.mgr.Get(id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get note failed", slog.Int64("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, toNoteResponse(*n))
}

// CreateNote handles POST /api/notes.
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req CreateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("content is required"))
		return
	}
	n, err := h.mgr.Add(r.Context(), req.Content, req.Category)
	if err != nil {
		slog.Error("create note failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusCreated, toNoteResponse(*n))
}

// UpdateNote handles PUT /api/notes/{id}.
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	id, ok := noteID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid note id"))
		return
	}
	var req UpdateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("content is required"))
		return
	}
	n, err := h.mgr.Update(r.Context(), id, req.Content, req.Category)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("update note failed", slog.Int64("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, toNoteResponse(*n))
}

// DeleteNote handles DELETE /api/notes/{id}.
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid note id"))
		return
	}
	if err := h.mgr.Delete(r.Context(), id); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("delete note failed", slog.Int64("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetFavorite handles PUT /api/notes/{id}/favorite. The body states the
// desired flag; no call is made when the note already matches it.
func (h *Handler) SetFavorite(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid note id"))
		return
	}
	var req FavoriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	n, err := h.mgr.Get(id)
	if err == nil && n.Favorite != req.Favorite {
		n, err = h.mgr.ToggleFavorite(r.Context(), id)
	}
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("set favorite failed", slog.Int64("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, toNoteResponse(*n))
}

// TriggerSync handles POST /api/sync. The pass runs in the background;
// a pass already in flight yields 409.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	if h.mgr.Syncing() {
		writeJSON(w, http.StatusConflict, errorBody("sync already in progress"))
		return
	}
	// The pass outlives the request, so detach from its context.
	ctx := context.WithoutCancel(r.Context())
	go func() {
		if err := h.mgr.Sync(ctx); err != nil && !errors.Is(err, apperr.ErrSyncInProgress) {
			slog.Error("background sync failed", slog.String("error", err.Error()))
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sync started"})
}

// Tree handles GET /api/tree.
func (h *Handler) Tree(w http.ResponseWriter, r *http.Request) {
	roots, err := h.tree.Roots()
	if err != nil {
		slog.Error("tree failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	out := make([]TreeNodeResponse, 0, len(roots))
	for _, root := range roots {
		node, err := toTreeNode(root)
		if err != nil {
			slog.Error("tree failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
			return
		}
		out = append(out, node)
	}
	writeJSON(w, http.StatusOK, TreeResponse{Roots: out})
}

func toTreeNode(n tree.Node) (TreeNodeResponse, error) {
	resp := TreeNodeResponse{
		Title:    n.Title(),
		SortID:   n.SortID(),
		Leaf:     n.IsLeaf(),
		Modified: n.Modified(),
	}
	children, err := n.Children()
	if err != nil {
		return resp, err
	}
	for _, c := range children {
		child, err := toTreeNode(c)
		if err != nil {
			return resp, err
		}
		resp.Children = append(resp.Children, child)
	}
	return resp, nil
}
