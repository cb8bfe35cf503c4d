package fx

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

// Handler exposes FX positions and revaluation over JSON.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler constructs the FX handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes attaches FX routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/fx/positions", h.ListPositions)
	r.Put("/fx/positions", h.SetPosition)
	r.Post("/fx/revalue", h.Revalue)
	r.Get("/fx/revaluations", h.History)
}

// PositionRequest is the JSON body for recording a holding.
type PositionRequest struct {
	Currency      string `json:"currency" validate:"required,len=3"`
	AccountCode   string `json:"account_code" validate:"required"`
	ForeignAmount string `json:"foreign_amount" validate:"required"`
	BookedBase    string `json:"booked_base" validate:"required"`
}

// RevalueRequest is the JSON body for a revaluation run.
type RevalueRequest struct {
	Currency string `json:"currency" validate:"required,len=3"`
	Rate     string `json:"rate" validate:"required"`
	Date     string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

// PositionResponse is the JSON view of a holding.
type PositionResponse struct {
	ID            int64  `json:"id"`
	Currency      string `json:"currency"`
	AccountCode   string `json:"account_code"`
	ForeignAmount string `json:"foreign_amount"`
	BookedBase    string `json:"booked_base"`
}

// RevaluationResponse is the JSON view of one booked revaluation.
type RevaluationResponse struct {
	ID          int64  `json:"id"`
	Currency    string `json:"currency"`
	AccountCode string `json:"account_code"`
	Rate        string `json:"rate"`
	Date        string `json:"date"`
	GainLoss    string `json:"gain_loss"`
	Voucher     string `json:"voucher"`
}

func toPositionResponse(p Position) PositionResponse {
	return PositionResponse{
		ID:            p.ID,
		Currency:      p.Currency,
		AccountCode:   p.AccountCode,
		ForeignAmount: p.ForeignAmount.StringFixed(2),
		BookedBase:    p.BookedBase.StringFixed(2),
	}
}

func toRevaluationResponse(r Revaluation) RevaluationResponse {
	return RevaluationResponse{
		ID:          r.ID,
		Currency:    r.Currency,
		AccountCode: r.AccountCode,
		Rate:        r.Rate.String(),
		Date:        r.Date.Format("2006-01-02"),
		GainLoss:    r.GainLoss.StringFixed(2),
		Voucher:     r.VoucherNumber,
	}
}

// ListPositions renders holdings, optionally filtered by currency.
func (h *Handler) ListPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.service.Positions(r.Context(), r.URL.Query().Get("currency"))
	if err != nil {
		h.respondError(w, "list positions", err)
		return
	}
	resp := make([]PositionResponse, 0, len(positions))
	for _, p := range positions {
		resp = append(resp, toPositionResponse(p))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"positions": resp})
}

// SetPosition records or updates a holding.
func (h *Handler) SetPosition(w http.ResponseWriter, r *http.Request) {
	var req PositionRequest
	if err := httpx.DecodeValid(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	foreignAmount, err := decimal.NewFromString(req.ForeignAmount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "foreign_amount must be a decimal number")
		return
	}
	bookedBase, err := decimal.NewFromString(req.BookedBase)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "booked_base must be a decimal number")
		return
	}
	position, err := h.service.SetPosition(r.Context(), req.Currency, req.AccountCode, foreignAmount, bookedBase)
	if err != nil {
		h.respondError(w, "set position", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPositionResponse(position))
}

// Revalue runs a revaluation for one currency at a closing rate.
func (h *Handler) Revalue(w http.ResponseWriter, r *http.Request) {
	var req RevalueRequest
	if err := httpx.DecodeValid(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	rate, err := decimal.NewFromString(req.Rate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "rate must be a decimal number")
		return
	}
	var date time.Time
	if req.Date != "" {
		date, _ = time.Parse("2006-01-02", req.Date)
	}
	booked, err := h.service.Revalue(r.Context(), req.Currency, rate, date, actorFrom(r))
	if err != nil {
		h.respondError(w, "revalue", err)
		return
	}
	resp := make([]RevaluationResponse, 0, len(booked))
	for _, rev := range booked {
		resp = append(resp, toRevaluationResponse(rev))
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"revaluations": resp})
}

// History renders past revaluations.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.History(r.Context(), r.URL.Query().Get("currency"))
	if err != nil {
		h.respondError(w, "revaluation history", err)
		return
	}
	resp := make([]RevaluationResponse, 0, len(items))
	for _, rev := range items {
		resp = append(resp, toRevaluationResponse(rev))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"revaluations": resp})
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrPositionNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ledger.ErrPeriodClosed), errors.Is(err, ledger.ErrPeriodLocked):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrInvalidRate), errors.Is(err, ErrNoPositions),
		errors.Is(err, ledger.ErrNoPeriodForDate), errors.Is(err, ledger.ErrMappingNotFound):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func actorFrom(r *http.Request) int64 {
	actor, _ := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
	return actor
}
