package ar

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

// Handler exposes the customer subsidiary ledger over JSON.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler constructs the AR handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes attaches customer and transaction routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/customers", h.CreateCustomer)
	r.Get("/customers", h.ListCustomers)
	r.Get("/customers/{id}", h.GetCustomer)
	r.Get("/customers/{id}/balance", h.Balance)
	r.Get("/customers/{id}/transactions", h.ListTransactions)
	r.Post("/customers/{id}/invoices", h.RecordInvoice)
	r.Post("/customers/{id}/receipts", h.RecordReceipt)
	r.Post("/customers/{id}/returns", h.RecordReturn)
	r.Delete("/transactions/{id}", h.SoftDelete)
	r.Post("/transactions/{id}/restore", h.Restore)
}

// CreateCustomerRequest is the JSON body for registering a customer.
type CreateCustomerRequest struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone"`
}

// TransactionRequest is the JSON body for recording a movement.
type TransactionRequest struct {
	Amount    string `json:"amount" validate:"required"`
	Tax       string `json:"tax"`
	Date      string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Reference string `json:"reference"`
}

// CustomerResponse is the JSON view of a customer.
type CustomerResponse struct {
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

func toCustomerResponse(c Customer) CustomerResponse {
	return CustomerResponse{
		ID:      c.ID,
		Name:    c.Name,
		Email:   c.Email,
		Phone:   c.Phone,
		Balance: c.CurrentBalance.StringFixed(2),
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

// CreateCustomer registers a counterparty.
func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req CreateCustomerRequest
	if err := httpx.DecodeValid(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	customer, err := h.service.CreateCustomer(r.Context(), req.Name, req.Email, req.Phone)
	if err != nil {
		h.respondError(w, "create customer", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toCustomerResponse(customer))
}

// ListCustomers renders all customers.
func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.service.ListCustomers(r.Context())
	if err != nil {
		h.respondError(w, "list customers", err)
		return
	}
	resp := make([]CustomerResponse, 0, len(customers))
	for _, c := range customers {
		resp = append(resp, toCustomerResponse(c))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"customers": resp})
}

// GetCustomer renders one customer.
func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	customer, err := h.service.GetCustomer(r.Context(), idParam(r))
	if err != nil {
		h.respondError(w, "get customer", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toCustomerResponse(customer))
}

// Balance recomputes and renders the stored balance.
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.service.Balance(r.Context(), idParam(r))
	if err != nil {
		h.respondError(w, "customer balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"balance": balance.StringFixed(2)})
}

// ListTransactions renders one customer's movements.
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

// RecordInvoice bills the customer.
func (h *Handler) RecordInvoice(w http.ResponseWriter, r *http.Request) {
	h.recordTransaction(w, r, h.service.RecordInvoice)
}

// RecordReceipt settles part of the balance.
func (h *Handler) RecordReceipt(w http.ResponseWriter, r *http.Request) {
	h.recordTransaction(w, r, h.service.RecordReceipt)
}

// RecordReturn issues a credit note.
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

func (req TransactionRequest) toInput(customerID, actorID int64) (TransactionInput, error) {
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return TransactionInput{}, err
	}
	tax := decimal.Zero
	if req.Tax != "" {
		tax, err = decimal.NewFromString(req.Tax)
		if err != nil {
			return TransactionInput{}, err
		}
	}
	var date time.Time
	if req.Date != "" {
		date, err = time.Parse("2006-01-02", req.Date)
		if err != nil {
			return TransactionInput{}, err
		}
	}
	return TransactionInput{
		CustomerID: customerID,
		Amount:     amount,
		Tax:        tax,
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
	case errors.Is(err, ErrCustomerNotFound), errors.Is(err, ErrTransactionNotFound):
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
