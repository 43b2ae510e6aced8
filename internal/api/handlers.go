package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/starford/laguz/internal/apperr"
	"github.com/starford/laguz/internal/contextservice"
	"github.com/starford/laguz/internal/models"
)

// Handler holds API route handlers.
type Handler struct {
	svc *contextservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *contextservice.Service) *Handler {
	return &Handler{svc: svc}
}

// contextID extracts and validates the context id path parameter.
// An empty string return means a 400 has already been written.
func contextID(w http.ResponseWriter, r *http.Request) string {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("context id is required"))
		return ""
	}
	if _, err := uuid.Parse(id); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("context id must be a valid UUID"))
		return ""
	}
	return id
}

// CreateContext handles POST /api/v1/contexts.
//
//	@Summary		Create a new context
//	@Tags			contexts
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateContextRequest	true	"Context to create"
//	@Success		201		{object}	ContextDetail
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/v1/contexts [post]
func (h *Handler) CreateContext(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req CreateContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	c, err := h.svc.CreateContext(r.Context(), req.Name)
	if err != nil {
		slog.Error("create context failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusCreated, dataBody(c))
}

// GetContext handles GET /api/v1/contexts/{id}.
//
//	@Summary		Get a context by id
//	@Tags			contexts
//	@Produce		json
//	@Param			id	path		string	true	"Context ID"
//	@Success		200	{object}	ContextDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/v1/contexts/{id} [get]
func (h *Handler) GetContext(w http.ResponseWriter, r *http.Request) {
	id := contextID(w, r)
	if id == "" {
		return
	}
	c, err := h.svc.GetContext(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("context not found"))
		} else {
			slog.Error("get context failed", slog.String("context_id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, dataBody(c))
}

// DeleteContext handles DELETE /api/v1/contexts/{id}.
//
// Soft-delete: the tombstoned context is returned; deleting it again
// yields 404 because a tombstoned context is indistinguishable from a
// nonexistent one.
//
//	@Summary		Soft-delete a context
//	@Tags			contexts
//	@Produce		json
//	@Param			id	path		string	true	"Context ID"
//	@Success		200	{object}	ContextDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/v1/contexts/{id} [delete]
func (h *Handler) DeleteContext(w http.ResponseWriter, r *http.Request) {
	id := contextID(w, r)
	if id == "" {
		return
	}
	c, err := h.svc.DeleteContext(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("context not found"))
		} else {
			slog.Error("delete context failed", slog.String("context_id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, dataBody(c))
}

// AppendMessages handles POST /api/v1/contexts/{id}/messages.
//
//	@Summary		Append a batch of messages to a context
//	@Tags			messages
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string					true	"Context ID"
//	@Param			body	body		AppendMessagesRequest	true	"Messages to append"
//	@Success		201		{object}	[]MessageDetail
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/v1/contexts/{id}/messages [post]
func (h *Handler) AppendMessages(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	id := contextID(w, r)
	if id == "" {
		return
	}
	var req AppendMessagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	msgs, err := h.svc.AppendMessages(r.Context(), id, req.toBatch())
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("context not found"))
		case errors.Is(err, apperr.ErrDuplicate):
			writeJSON(w, http.StatusConflict, errorBody("version conflict"))
		default:
			slog.Error("append messages failed", slog.String("context_id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusCreated, dataBody(msgs))
}

// ListMessages handles GET /api/v1/contexts/{id}/messages.
//
//	@Summary		List messages with cursor pagination
//	@Tags			messages
//	@Produce		json
//	@Param			id		path		string	true	"Context ID"
//	@Param			cursor	query		int		false	"Version of the last item from the previous page"
//	@Param			limit	query		int		false	"Page size (1-1000, default 50)"
//	@Param			order	query		string	false	"Sort order"	Enums(asc, desc)
//	@Success		200		{object}	MessagePage
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/v1/contexts/{id}/messages [get]
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	id := contextID(w, r)
	if id == "" {
		return
	}
	q := r.URL.Query()

	opts := models.PageOptions{Order: models.OrderAsc}
	if raw := q.Get("cursor"); raw != "" {
		cursor, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("cursor must be an integer"))
			return
		}
		opts.Cursor = &cursor
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 1000 {
			writeJSON(w, http.StatusBadRequest, errorBody("limit must be an integer between 1 and 1000"))
			return
		}
		opts.Limit = limit
	}
	if raw := q.Get("order"); raw != "" {
		if raw != models.OrderAsc && raw != models.OrderDesc {
			writeJSON(w, http.StatusBadRequest, errorBody("order must be 'asc' or 'desc'"))
			return
		}
		opts.Order = raw
	}

	page, err := h.svc.ListMessages(r.Context(), id, opts)
	if err != nil {
		slog.Error("list messages failed", slog.String("context_id", id), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// GetWindow handles GET /api/v1/contexts/{id}/window.
//
//	@Summary		Get the trailing window of messages fitting a token budget
//	@Tags			messages
//	@Produce		json
//	@Param			id		path		string	true	"Context ID"
//	@Param			budget	query		int		true	"Token budget (positive integer)"
//	@Success		200		{object}	[]MessageDetail
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/v1/contexts/{id}/window [get]
func (h *Handler) GetWindow(w http.ResponseWriter, r *http.Request) {
	id := contextID(w, r)
	if id == "" {
		return
	}
	raw := r.URL.Query().Get("budget")
	if raw == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'budget' is required"))
		return
	}
	budget, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || budget <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("budget must be a positive integer"))
		return
	}

	msgs, err := h.svc.GetWindow(r.Context(), id, float64(budget))
	if err != nil {
		slog.Error("get window failed", slog.String("context_id", id), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, dataBody(msgs))
}
