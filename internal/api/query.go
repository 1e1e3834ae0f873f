package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/inkwatch/inkwatch/internal/errs"
	"github.com/inkwatch/inkwatch/internal/repository"
)

type queryHandler struct {
	queries *repository.Queries
	logger  *zap.Logger
}

func newQueryHandler(queries *repository.Queries, logger *zap.Logger) *queryHandler {
	return &queryHandler{queries: queries, logger: logger.Named("api.query")}
}

type createQueryRequest struct {
	Type string `json:"type"`
	repository.PVPQueryConfig
}

// create stores a new subscription query. Only the pvp kind is modeled;
// coop and gears are forward-compat and rejected for now.
func (h *queryHandler) create(w http.ResponseWriter, r *http.Request) {
	uid := uidFromCtx(r.Context())

	var req createQueryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Type != "pvp" {
		writeErr(w, h.logger, errs.InvalidParameter("type", req.Type))
		return
	}

	id, err := h.queries.Create(r.Context(), uid, &req.PVPQueryConfig)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"id": id})
}

func (h *queryHandler) list(w http.ResponseWriter, r *http.Request) {
	uid := uidFromCtx(r.Context())
	rows, err := h.queries.List(r.Context(), uid)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

type updateQueryRequest struct {
	ID int64 `json:"id"`
	createQueryRequest
}

func (h *queryHandler) update(w http.ResponseWriter, r *http.Request) {
	uid := uidFromCtx(r.Context())

	var req updateQueryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Type != "pvp" {
		writeErr(w, h.logger, errs.InvalidParameter("type", req.Type))
		return
	}

	if err := h.queries.Update(r.Context(), uid, req.ID, &req.PVPQueryConfig); err != nil {
		writeErr(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type deleteQueryRequest struct {
	ID int64 `json:"id"`
}

func (h *queryHandler) delete(w http.ResponseWriter, r *http.Request) {
	uid := uidFromCtx(r.Context())

	var req deleteQueryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.queries.Delete(r.Context(), uid, req.ID); err != nil {
		writeErr(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
