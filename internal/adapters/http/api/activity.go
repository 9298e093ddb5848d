package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/vnFuhung2903/rubyams/internal/adapters/journal"
	"github.com/vnFuhung2903/rubyams/internal/domain/model"
)

// ActivityReader defines the journal reads behind the activity routes.
type ActivityReader interface {
	GetByTxHash(ctx context.Context, txHash string) (model.Activity, error)
	ListByActor(ctx context.Context, actor string, page, pageSize int) ([]model.Activity, error)
}

type activityPage struct {
	Items    []model.Activity `json:"items"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
}

// ActivityHandler serves the journal routes.
type ActivityHandler struct {
	deps ActivityReader
}

// NewActivityHandler creates a new activity handler.
func NewActivityHandler(deps ActivityReader) *ActivityHandler {
	return &ActivityHandler{deps: deps}
}

// HandleGet handles GET /activity/{txHash}.
func (h *ActivityHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_activity"
	a, err := h.deps.GetByTxHash(r.Context(), r.PathValue("txHash"))
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// HandleList handles GET /activity?actor=&page=&page_size=.
func (h *ActivityHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_activity"
	q := r.URL.Query()
	actor := q.Get("actor")
	if actor == "" {
		writeError(w, NewKind(op, ErrBadRequest))
		return
	}
	page, err := optionalInt(q.Get("page"), 1)
	if err != nil || page < 1 {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	pageSize, err := optionalInt(q.Get("page_size"), journal.DefaultPageSize)
	if err != nil || pageSize < 1 || pageSize > journal.MaxPageSize {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}

	items, err := h.deps.ListByActor(r.Context(), actor, page, pageSize)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, activityPage{Items: items, Page: page, PageSize: pageSize})
}

func optionalInt(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
