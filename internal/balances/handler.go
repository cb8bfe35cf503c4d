package balances

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-books/meridian/internal/ledger"
	"github.com/meridian-books/meridian/internal/platform/httpx"
)

// Handler exposes balance aggregates over JSON.
type Handler struct {
	service *Service
	logger  *slog.Logger
	now     func() time.Time
}

// NewHandler constructs the balances handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, now: time.Now}
}

// MountRoutes attaches report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/trial-balance", h.TrialBalance)
	r.Get("/accounts/{code}/balance", h.AccountBalance)
	r.Get("/accounts/{code}/history", h.BalanceHistory)
	r.Get("/tie-out", h.TieOut)
}

// TrialBalance renders the grouped trial balance.
func (h *Handler) TrialBalance(w http.ResponseWriter, r *http.Request) {
	asOf, err := h.dateParam(r, "as_of", h.now())
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "as_of must be YYYY-MM-DD")
		return
	}
	tb, err := h.service.TrialBalance(r.Context(), asOf)
	if err != nil {
		h.respondError(w, "trial balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, tb)
}

// AccountBalance renders one account's signed balance.
func (h *Handler) AccountBalance(w http.ResponseWriter, r *http.Request) {
	asOf, err := h.dateParam(r, "as_of", h.now())
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "as_of must be YYYY-MM-DD")
		return
	}
	balance, err := h.service.AccountBalance(r.Context(), chi.URLParam(r, "code"), asOf)
	if err != nil {
		h.respondError(w, "account balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, balance)
}

// BalanceHistory renders the monthly balance series for one account.
func (h *Handler) BalanceHistory(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	from, err := h.dateParam(r, "from", now.AddDate(-1, 0, 0))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from must be YYYY-MM-DD")
		return
	}
	to, err := h.dateParam(r, "to", now)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must be YYYY-MM-DD")
		return
	}
	points, err := h.service.BalanceHistory(r.Context(), chi.URLParam(r, "code"), from, to)
	if err != nil {
		h.respondError(w, "balance history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"points": points})
}

// TieOut renders the control-account check for one subsidiary side.
func (h *Handler) TieOut(w http.ResponseWriter, r *http.Request) {
	asOf, err := h.dateParam(r, "as_of", h.now())
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "as_of must be YYYY-MM-DD")
		return
	}
	side := r.URL.Query().Get("side")
	control := r.URL.Query().Get("control")
	if control == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "control account code required")
		return
	}
	result, err := h.service.TieOut(r.Context(), side, control, asOf)
	if err != nil {
		h.respondError(w, "tie out", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) dateParam(r *http.Request, name string, fallback time.Time) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	return time.Parse("2006-01-02", raw)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrUnknownSide):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
