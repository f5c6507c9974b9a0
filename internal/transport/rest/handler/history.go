package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/valpere/listforge/internal/store"
)

// HistoryReader is satisfied by *store.Store.
type HistoryReader interface {
	ListRuns(ctx context.Context, limit, offset int) ([]store.RunSummary, error)
	GetRun(ctx context.Context, id string) (*store.Run, error)
}

// HistoryHandler serves recorded runs
type HistoryHandler struct {
	history HistoryReader
	logger  *zap.Logger
}

func NewHistoryHandler(history HistoryReader, logger *zap.Logger) *HistoryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryHandler{history: history, logger: logger}
}

// List handles GET /v1/history
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil || limit < 1 || limit > 500 {
		writeError(w, http.StatusBadRequest, ErrorBody{Error: KindInvalidRequest, Message: "limit must be between 1 and 500", Field: "limit"})
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		writeError(w, http.StatusBadRequest, ErrorBody{Error: KindInvalidRequest, Message: "offset must be a non-negative integer", Field: "offset"})
		return
	}

	runs, err := h.history.ListRuns(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("Failed to list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, ErrorBody{Error: KindInternal, Message: "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":   runs,
		"limit":  limit,
		"offset": offset,
	})
}

// Get handles GET /v1/history/{id}
func (h *HistoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	run, err := h.history.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, ErrorBody{Error: KindNotFound, Message: "run not found", RequestID: id})
		return
	}
	if err != nil {
		h.logger.Error("Failed to load run", zap.String("request_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, ErrorBody{Error: KindInternal, Message: "internal error", RequestID: id})
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
