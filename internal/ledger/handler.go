package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-books/meridian/internal/platform/httpx"
	"github.com/meridian-books/meridian/internal/shared"
)

// Handler exposes the posting engine over JSON.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler constructs the ledger handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes attaches voucher and entry routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/vouchers", h.PostVoucher)
	r.Get("/vouchers/{number}", h.GetVoucher)
	r.Post("/vouchers/{number}/reverse", h.ReverseVoucher)
	r.Get("/entries", h.ListEntries)
}

// PostVoucher posts a manual journal voucher.
func (h *Handler) PostVoucher(w http.ResponseWriter, r *http.Request) {
	var req PostVoucherRequest
	if err := httpx.DecodeValid(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input, err := req.ToPostingInput(actorFrom(r))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	voucher, err := h.service.Post(r.Context(), input)
	if err != nil {
		h.respondError(w, "post voucher", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toVoucherResponse(voucher, nil))
}

// GetVoucher returns one voucher with its entries.
func (h *Handler) GetVoucher(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	voucher, entries, err := h.service.GetVoucher(r.Context(), number)
	if err != nil {
		h.respondError(w, "get voucher", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toVoucherResponse(voucher, entries))
}

// ReverseVoucher posts the mirror voucher and marks the original reversed.
func (h *Handler) ReverseVoucher(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	var req ReverseVoucherRequest
	// Body is optional; an empty memo falls back to a generated one.
	_ = httpx.DecodeJSON(r, &req)
	reversal, err := h.service.Reverse(r.Context(), number, actorFrom(r), req.Memo)
	if err != nil {
		h.respondError(w, "reverse voucher", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toVoucherResponse(reversal, nil))
}

// ListEntries queries the entry store with structured filters.
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	filter := EntryFilter{
		AccountCode:   r.URL.Query().Get("account_code"),
		VoucherNumber: r.URL.Query().Get("voucher"),
	}
	if raw := r.URL.Query().Get("from"); raw != "" {
		from, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from must be YYYY-MM-DD")
			return
		}
		filter.From = &from
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		to, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must be YYYY-MM-DD")
			return
		}
		filter.To = &to
	}
	filter.IncludeReversed = r.URL.Query().Get("include_reversed") == "true"
	filter.Page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	filter.PerPage, _ = strconv.Atoi(r.URL.Query().Get("per_page"))

	entries, total, err := h.service.QueryEntries(r.Context(), filter)
	if err != nil {
		h.respondError(w, "list entries", err)
		return
	}
	items := make([]EntryResponse, 0, len(entries))
	for _, entry := range entries {
		items = append(items, toEntryResponse(entry))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"entries":    items,
		"pagination": shared.NewPagination(filter.Page, filter.PerPage, total),
	})
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrVoucherNotFound), errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrMappingNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrAlreadyReversed), errors.Is(err, ErrPeriodClosed), errors.Is(err, ErrPeriodLocked),
		errors.Is(err, ErrEditWindowExpired), errors.Is(err, ErrConcurrencyConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrUnbalanced), errors.Is(err, ErrTooFewLines), errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrAccountInactive), errors.Is(err, ErrSummaryAccount), errors.Is(err, ErrNoPeriodForDate):
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
