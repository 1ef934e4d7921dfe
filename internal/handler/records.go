package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/fampulse/internal/recordstore"
)

// RecordHandler exposes a record store over HTTP, one route per Store
// method. The table always comes from the path.
type RecordHandler struct {
	store  recordstore.Store
	logger *slog.Logger
}

func NewRecordHandler(store recordstore.Store, logger *slog.Logger) *RecordHandler {
	return &RecordHandler{store: store, logger: logger}
}

type rowsRequest struct {
	Rows       []recordstore.Row `json:"rows"`
	OnConflict []string          `json:"on_conflict,omitempty"`
}

type updateRequest struct {
	Patch   recordstore.Row      `json:"patch"`
	Filters []recordstore.Filter `json:"filters"`
}

type deleteRequest struct {
	Filters []recordstore.Filter `json:"filters"`
}

// Select handles POST /rest/v1/{table}/select with a Query body.
func (h *RecordHandler) Select(w http.ResponseWriter, r *http.Request) {
	var q recordstore.Query
	if !decode(w, r, &q) {
		return
	}
	q.Table = r.PathValue("table")

	rows, err := h.store.Select(r.Context(), q)
	if err != nil {
		storeError(w, h.logger, "select "+q.Table, err)
		return
	}
	if rows == nil {
		rows = []recordstore.Row{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// Insert handles POST /rest/v1/{table} and returns the stored rows.
func (h *RecordHandler) Insert(w http.ResponseWriter, r *http.Request) {
	table := r.PathValue("table")
	var req rowsRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Rows) == 0 {
		writeError(w, http.StatusBadRequest, "rows are required")
		return
	}

	rows, err := h.store.Insert(r.Context(), table, req.Rows...)
	if err != nil {
		storeError(w, h.logger, "insert into "+table, err)
		return
	}
	writeJSON(w, http.StatusCreated, rows)
}

// Update handles PATCH /rest/v1/{table}.
func (h *RecordHandler) Update(w http.ResponseWriter, r *http.Request) {
	table := r.PathValue("table")
	var req updateRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Patch) == 0 {
		writeError(w, http.StatusBadRequest, "patch is required")
		return
	}

	if err := h.store.Update(r.Context(), table, req.Patch, req.Filters...); err != nil {
		storeError(w, h.logger, "update "+table, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Upsert handles PUT /rest/v1/{table}.
func (h *RecordHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	table := r.PathValue("table")
	var req rowsRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Rows) == 0 {
		writeError(w, http.StatusBadRequest, "rows are required")
		return
	}

	if err := h.store.Upsert(r.Context(), table, req.Rows, req.OnConflict...); err != nil {
		storeError(w, h.logger, "upsert into "+table, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete handles DELETE /rest/v1/{table}.
func (h *RecordHandler) Delete(w http.ResponseWriter, r *http.Request) {
	table := r.PathValue("table")
	var req deleteRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.store.Delete(r.Context(), table, req.Filters...); err != nil {
		storeError(w, h.logger, "delete from "+table, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
