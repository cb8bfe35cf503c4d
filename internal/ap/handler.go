package ap

import (
	"context"
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

// Handler exposes the supplier subsidiary ledger over JSON.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler constructs the AP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes attaches supplier and transaction routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/suppliers", h.CreateSupplier)
	r.Get("/suppliers", h.ListSuppliers)
	r.Get("/suppliers/{id}", h.GetSupplier)
	r.Get("/suppliers/{id}/balance", h.Balance)
	r.Get("/suppliers/{id}/transactions", h.ListTransactions)
	r.Post("/suppliers/{id}/invoices", h.RecordInvoice)
	r.Post("/suppliers/{id}/payments", h.RecordPayment)
	r.Post("/suppliers/{id}/returns", h.RecordReturn)
	r.Delete("/transactions/{id}", h.SoftDelete)
	r.Post("/transactions/{id}/restore", h.Restore)
}

// CreateSupplierRequest is the JSON body for registering a supplier.
type CreateSupplierRequest struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone"`
}

// TransactionRequest is the JSON body for recording a movement.
type TransactionRequest struct {
	Amount    string `json:"amount" validate:"required"`
	Date      string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Reference string `json:"reference"`
}

// SupplierResponse is the JSON view of a supplier.
type SupplierResponse struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Balance string `json:"balance"`
}

// TransactionResponse is the JSON view of a movement.
type TransactionResponse struct {
	ID        int64  `json:"id"`
	Type      string `json:"type"`
	Amount    string `json:"amount"`
	Date      string `json:"date"`
	Reference string `json:"reference"`
	Voucher   string `json:"voucher"`
	State     string `json:"state"`
}

func toSupplierResponse(s Supplier) SupplierResponse {
	return SupplierResponse{
		ID:      s.ID,
		Name:    s.Name,
		Email:   s.Email,
		Phone:   s.Phone,
		Balance: s.CurrentBalance.StringFixed(2),
	}
}

func toTransactionResponse(t Transaction) TransactionResponse {
	return TransactionResponse{
		ID:        t.ID,
		Type:      string(t.Type),
		Amount:    t.Amount.StringFixed(2),
		Date:      t.Date.Format("2006-01-02"),
		Reference: t.Reference,
		Voucher:   t.VoucherNumber,
		State:     string(t.State),
	}
}

// CreateSupplier registers a counterparty.
func (h *Handler) CreateSupplier(w http.ResponseWriter, r *http.Request) {
	var req CreateSupplierRequest
	if err := httpx.DecodeValid(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	supplier, err := h.service.CreateSupplier(r.Context(), req.Name, req.Email, req.Phone)
	if err != nil {
		h.respondError(w, "create supplier", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toSupplierResponse(supplier))
}

// ListSuppliers renders all suppliers.
func (h *Handler) ListSuppliers(w http.ResponseWriter, r *http.Request) {
	suppliers, err := h.service.ListSuppliers(r.Context())
	if err != nil {
		h.respondError(w, "list suppliers", err)
		return
	}
	resp := make([]SupplierResponse, 0, len(suppliers))
	for _, s := range suppliers {
		resp = append(resp, toSupplierResponse(s))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"suppliers": resp})
}

// GetSupplier renders one supplier.
func (h *Handler) GetSupplier(w http.ResponseWriter, r *http.Request) {
	supplier, err := h.service.GetSupplier(r.Context(), idParam(r))
	if err != nil {
		h.respondError(w, "get supplier", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toSupplierResponse(supplier))
}

// Balance recomputes and renders the stored balance.
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.service.Balance(r.Context(), idParam(r))
	if err != nil {
		h.respondError(w, "supplier balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"balance": balance.StringFixed(2)})
}

// ListTransactions renders one supplier's movements.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	transactions, err := h.service.ListTransactions(r.Context(), idParam(r))
	if err != nil {
		h.respondError(w, "list transactions", err)
		return
	}
	resp := make([]TransactionResponse, 0, len(transactions))
	for _, t := range transactions {
		resp = append(resp, toTransactionResponse(t))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transactions": resp})
}

// RecordInvoice books a supplier bill.
func (h *Handler) RecordInvoice(w http.ResponseWriter, r *http.Request) {
	h.recordTransaction(w, r, h.service.RecordInvoice)
}

// RecordPayment settles part of the balance.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	h.recordTransaction(w, r, h.service.RecordPayment)
}

// RecordReturn sends stock back to the supplier.
func (h *Handler) RecordReturn(w http.ResponseWriter, r *http.Request) {
	h.recordTransaction(w, r, h.service.RecordReturn)
}

func (h *Handler) recordTransaction(w http.ResponseWriter, r *http.Request, record func(ctx context.Context, in TransactionInput) (Transaction, error)) {
	var req TransactionRequest
	if err := httpx.DecodeValid(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	in, err := req.toInput(idParam(r), actorFrom(r))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	transaction, err := record(r.Context(), in)
	if err != nil {
		h.respondError(w, "record transaction", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toTransactionResponse(transaction))
}

func (req TransactionRequest) toInput(supplierID, actorID int64) (TransactionInput, error) {
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return TransactionInput{}, err
	}
	var date time.Time
	if req.Date != "" {
		date, err = time.Parse("2006-01-02", req.Date)
		if err != nil {
			return TransactionInput{}, err
		}
	}
	return TransactionInput{
		SupplierID: supplierID,
		Amount:     amount,
		Date:       date,
		Reference:  req.Reference,
		ActorID:    actorID,
	}, nil
}

// SoftDelete reverses the linked voucher and marks the row deleted.
func (h *Handler) SoftDelete(w http.ResponseWriter, r *http.Request) {
	transaction, err := h.service.SoftDelete(r.Context(), idParam(r), actorFrom(r))
	if err != nil {
		h.respondError(w, "delete transaction", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toTransactionResponse(transaction))
}

// Restore re-posts a deleted transaction.
func (h *Handler) Restore(w http.ResponseWriter, r *http.Request) {
	transaction, err := h.service.Restore(r.Context(), idParam(r), actorFrom(r))
	if err != nil {
		h.respondError(w, "restore transaction", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toTransactionResponse(transaction))
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrSupplierNotFound), errors.Is(err, ErrTransactionNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrAlreadyDeleted), errors.Is(err, ErrNotDeleted),
		errors.Is(err, ledger.ErrPeriodClosed), errors.Is(err, ledger.ErrPeriodLocked),
		errors.Is(err, ledger.ErrEditWindowExpired):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ledger.ErrInvalidAmount),
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
