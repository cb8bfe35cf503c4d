package reconcile

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/meridian-books/meridian/internal/ledger"
	"github.com/meridian-books/meridian/internal/platform/httpx"
)

// Handler exposes reconciliations over JSON.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler constructs the reconciliation handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes attaches reconciliation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/reconciliations", h.Create)
	r.Get("/reconciliations", h.List)
	r.Get("/reconciliations/{id}", h.Get)
	r.Post("/reconciliations/{id}/adjustments", h.PostAdjustment)
	r.Put("/reconciliations/{id}/physical", h.UpdatePhysical)
}

// CreateRequest is the JSON body for opening a reconciliation.
type CreateRequest struct {
	AccountCode     string `json:"account_code" validate:"required"`
	Date            string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	PhysicalBalance string `json:"physical_balance" validate:"required"`
	Notes           string `json:"notes"`
}

// AdjustmentRequest is the JSON body for a correcting voucher.
type AdjustmentRequest struct {
	Amount      string `json:"amount" validate:"required"`
	Type        string `json:"type" validate:"required,oneof=DEBIT CREDIT"`
	Description string `json:"description"`
}

// PhysicalRequest carries a corrected counted balance.
type PhysicalRequest struct {
	PhysicalBalance string `json:"physical_balance" validate:"required"`
}

// Response is the JSON view of a reconciliation.
type Response struct {
	ID              int64  `json:"id"`
	AccountCode     string `json:"account_code"`
	Date            string `json:"date"`
	LedgerBalance   string `json:"ledger_balance"`
	PhysicalBalance string `json:"physical_balance"`
	Difference      string `json:"difference"`
	Status          string `json:"status"`
	Notes           string `json:"notes,omitempty"`
}

func toResponse(r Reconciliation) Response {
	return Response{
		ID:              r.ID,
		AccountCode:     r.AccountCode,
		Date:            r.Date.Format("2006-01-02"),
		LedgerBalance:   r.LedgerBalance.StringFixed(2),
		PhysicalBalance: r.PhysicalBalance.StringFixed(2),
		Difference:      r.Difference.StringFixed(2),
		Status:          string(r.Status),
		Notes:           r.Notes,
	}
}

// Create opens a reconciliation against the current ledger balance.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := httpx.DecodeValid(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	physical, err := decimal.NewFromString(req.PhysicalBalance)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "physical_balance must be a decimal number")
		return
	}
	var date time.Time
	if req.Date != "" {
		date, _ = time.Parse("2006-01-02", req.Date)
	}
	rec, err := h.service.Create(r.Context(), req.AccountCode, date, physical, req.Notes, actorFrom(r))
	if err != nil {
		h.respondError(w, "create reconciliation", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(rec))
}

// List renders reconciliations, optionally filtered by account_code.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context(), r.URL.Query().Get("account_code"))
	if err != nil {
		h.respondError(w, "list reconciliations", err)
		return
	}
	resp := make([]Response, 0, len(items))
	for _, rec := range items {
		resp = append(resp, toResponse(rec))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"reconciliations": resp})
}

// Get renders one reconciliation.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.Get(r.Context(), idParam(r))
	if err != nil {
		h.respondError(w, "get reconciliation", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(rec))
}

// PostAdjustment books a correcting voucher and rereads the ledger.
func (h *Handler) PostAdjustment(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	if err := httpx.DecodeValid(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "amount must be a decimal number")
		return
	}
	rec, err := h.service.PostAdjustment(r.Context(), idParam(r), AdjustmentInput{
		Amount:      amount,
		EntryType:   ledger.EntryType(req.Type),
		Description: req.Description,
		ActorID:     actorFrom(r),
	})
	if err != nil {
		h.respondError(w, "post adjustment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(rec))
}

// UpdatePhysical records a corrected counted balance.
func (h *Handler) UpdatePhysical(w http.ResponseWriter, r *http.Request) {
	var req PhysicalRequest
	if err := httpx.DecodeValid(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	physical, err := decimal.NewFromString(req.PhysicalBalance)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "physical_balance must be a decimal number")
		return
	}
	rec, err := h.service.UpdatePhysical(r.Context(), idParam(r), physical, actorFrom(r))
	if err != nil {
		h.respondError(w, "update physical balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(rec))
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrReconciliationNotFound), errors.Is(err, ledger.ErrAccountNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ledger.ErrPeriodClosed), errors.Is(err, ledger.ErrPeriodLocked):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrInvalidAdjustment), errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrNoPeriodForDate), errors.Is(err, ledger.ErrMappingNotFound):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func idParam(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id
}

func actorFrom(r *http.Request) int64 {
	actor, _ := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
	return actor
}
