package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/starford/ehwaz/internal/apperr"
	"github.com/starford/ehwaz/internal/index"
	"github.com/starford/ehwaz/internal/scheduler"
	"github.com/starford/ehwaz/internal/storage"
	"github.com/starford/ehwaz/internal/syncer"
)

// SyncService is the orchestrator surface the API exposes.
type SyncService interface {
	ImportAll(ctx context.Context) (syncer.Report, error)
	SyncAll(ctx context.Context) (syncer.Report, error)
	RunBidirectional(ctx context.Context) (syncer.Report, syncer.Report, error)
	ExportDocument(ctx context.Context, path string) (syncer.ExportStatus, error)
}

// Handler holds API route handlers.
type Handler struct {
	sync     SyncService
	db       index.DocumentIndex
	store    storage.Provider
	statusFn func() scheduler.Status
}

// NewHandler creates a new Handler. statusFn supplies the scheduler snapshot
// for GET /status.
func NewHandler(sync SyncService, db index.DocumentIndex, store storage.Provider, statusFn func() scheduler.Status) *Handler {
	return &Handler{sync: sync, db: db, store: store, statusFn: statusFn}
}

// docPath extracts the document path from the URL (everything after the
// route prefix). Supports encoded slashes (e.g. topics%2Fnote.md).
func docPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// Import handles POST /api/import: pull every remote page into the vault.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	rep, err := h.sync.ImportAll(r.Context())
	if err != nil {
		slog.Error("import failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, errorBody("import failed"))
		return
	}
	if rep.Dropped {
		writeJSON(w, http.StatusConflict, errorBody("import already running"))
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// Sync handles POST /api/sync: export every locally newer tracked document.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	rep, err := h.sync.SyncAll(r.Context())
	if err != nil {
		slog.Error("sync failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, errorBody("sync failed"))
		return
	}
	if rep.Dropped {
		writeJSON(w, http.StatusConflict, errorBody("sync already running"))
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// Bidirectional handles POST /api/bidirectional: import then export-sweep.
func (h *Handler) Bidirectional(w http.ResponseWriter, r *http.Request) {
	imp, exp, err := h.sync.RunBidirectional(r.Context())
	if err != nil {
		slog.Error("bidirectional sync failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, errorBody("bidirectional sync failed"))
		return
	}
	if imp.Dropped {
		writeJSON(w, http.StatusConflict, errorBody("bidirectional sync already running"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"import": imp,
		"export": exp,
	})
}

// Export handles POST /api/export/*: export one document by vault path.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	status, err := h.sync.ExportDocument(r.Context(), path)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("remote page is gone"))
		case errors.Is(err, apperr.ErrUnauthorized):
			writeJSON(w, http.StatusBadGateway, errorBody("remote rejected credentials"))
		default:
			slog.Error("export failed", slog.String("path", path), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	code := http.StatusOK
	if status == syncer.StatusBusy {
		code = http.StatusConflict
	}
	writeJSON(w, code, map[string]string{"status": string(status)})
}

// Status handles GET /api/status: the scheduler's read-only snapshot.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	st := h.statusFn()
	writeJSON(w, http.StatusOK, map[string]any{
		"queue_length":          st.QueueLength,
		"tokens":                st.Tokens,
		"consecutive_throttles": st.ConsecutiveThrottles,
	})
}

// ListDocuments handles GET /api/documents.
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.db.AllDocuments()
	if err != nil {
		slog.Error("list documents failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	items := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		items = append(items, map[string]any{
			"path":       d.Path,
			"page_id":    d.PageID,
			"title":      d.Title,
			"watermark":  d.Watermark,
			"updated_at": d.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"documents": items,
		"total":     len(items),
	})
}

// GetDocument handles GET /api/documents/*.
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if !h.store.Exists(path) {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	data, err := h.store.Read(path)
	if err != nil {
		slog.Error("read document failed", slog.String("path", path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	row, err := h.db.GetByPath(path)
	if err != nil {
		slog.Error("document lookup failed", slog.String("path", path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	resp := map[string]any{
		"path":    path,
		"content": string(data),
	}
	if row != nil {
		resp["page_id"] = row.PageID
		resp["title"] = row.Title
		resp["watermark"] = row.Watermark
	}
	writeJSON(w, http.StatusOK, resp)
}
