package periods

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-books/meridian/internal/ledger"
	"github.com/meridian-books/meridian/internal/platform/httpx"
	"github.com/meridian-books/meridian/internal/shared"
)

// Handler exposes period lifecycle routes.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler constructs the periods handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes attaches period routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/periods", h.List)
	r.Post("/periods", h.Create)
	r.Get("/periods/current", h.Current)
	r.Get("/periods/{code}", h.Get)
	r.Post("/periods/{code}/close", h.Close)
	r.Post("/periods/{code}/reopen", h.Reopen)
	r.Post("/periods/{code}/lock", h.Lock)
}

// CreatePeriodRequest is the JSON body for opening a period.
type CreatePeriodRequest struct {
	Code      string `json:"code" validate:"required"`
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
}

// ReopenRequest optionally carries the lock override flag.
type ReopenRequest struct {
	Override bool `json:"override"`
}

// PeriodResponse is the JSON view of a fiscal period.
type PeriodResponse struct {
	Code      string `json:"code"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Status    string `json:"status"`
	ClosedAt  string `json:"closed_at,omitempty"`
}

func toPeriodResponse(p ledger.Period) PeriodResponse {
	resp := PeriodResponse{
		Code:      p.Code,
		StartDate: p.StartDate.Format("2006-01-02"),
		EndDate:   p.EndDate.Format("2006-01-02"),
		Status:    string(p.Status),
	}
	if p.ClosedAt != nil {
		resp.ClosedAt = p.ClosedAt.Format(time.RFC3339)
	}
	return resp
}

// List renders all periods.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context())
	if err != nil {
		h.respondError(w, "list periods", err)
		return
	}
	resp := make([]PeriodResponse, 0, len(items))
	for _, p := range items {
		resp = append(resp, toPeriodResponse(p))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"periods": resp})
}

// Create opens a new period.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreatePeriodRequest
	if err := httpx.DecodeValid(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	start, _ := time.Parse("2006-01-02", req.StartDate)
	end, _ := time.Parse("2006-01-02", req.EndDate)
	period, err := h.service.Create(r.Context(), req.Code, start, end, actorFrom(r))
	if err != nil {
		h.respondError(w, "create period", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPeriodResponse(period))
}

// Current renders the open period covering a date, defaulting to today.
func (h *Handler) Current(w http.ResponseWriter, r *http.Request) {
	var date time.Time
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be formatted as 2006-01-02")
			return
		}
		date = parsed
	}
	period, err := h.service.OpenPeriodForDate(r.Context(), date)
	if err != nil {
		h.respondError(w, "current period", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPeriodResponse(period))
}

// Get renders one period.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	period, err := h.service.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.respondError(w, "get period", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPeriodResponse(period))
}

// Close closes the period.
func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	period, err := h.service.Close(r.Context(), chi.URLParam(r, "code"), actorFrom(r))
	if err != nil {
		h.respondError(w, "close period", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPeriodResponse(period))
}

// Reopen reopens the period, honouring the override flag for locks.
func (h *Handler) Reopen(w http.ResponseWriter, r *http.Request) {
	var req ReopenRequest
	_ = httpx.DecodeJSON(r, &req)
	period, err := h.service.Reopen(r.Context(), chi.URLParam(r, "code"), actorFrom(r), req.Override)
	if err != nil {
		h.respondError(w, "reopen period", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPeriodResponse(period))
}

// Lock freezes the period.
func (h *Handler) Lock(w http.ResponseWriter, r *http.Request) {
	period, err := h.service.Lock(r.Context(), chi.URLParam(r, "code"), actorFrom(r))
	if err != nil {
		h.respondError(w, "lock period", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPeriodResponse(period))
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrPeriodNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrPeriodOverlap), errors.Is(err, shared.ErrInvalidPeriodTransition):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func actorFrom(r *http.Request) int64 {
	actor, _ := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
	return actor
}
