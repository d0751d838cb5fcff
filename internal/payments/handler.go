package payments

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-billing/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-billing/internal/pricing"
	"github.com/odyssey-erp/odyssey-billing/internal/rbac"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

// Handler exposes payment and receipt endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers payment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermPaymentsEdit))
		r.Post("/payments", h.handleCreatePayment)
		r.Patch("/payments/{id}", h.handleUpdatePayment)
		r.Delete("/payments/{id}", h.handleDeletePayment)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermReceiptsEdit))
		r.Post("/receipts", h.handleCreateReceipt)
		r.Post("/receipts/{id}/excess", h.handleResolveExcess)
	})
}

type paymentRequest struct {
	InvoiceID       string          `json:"invoice_id" validate:"required"`
	Amount          decimal.Decimal `json:"amount"`
	PaymentMethod   string          `json:"payment_method" validate:"required"`
	PaymentDate     time.Time       `json:"payment_date"`
	ReferenceNumber string          `json:"reference_number"`
}

type paymentPatch struct {
	Amount          *decimal.Decimal `json:"amount"`
	PaymentMethod   *string          `json:"payment_method"`
	PaymentDate     *time.Time       `json:"payment_date"`
	ReferenceNumber *string          `json:"reference_number"`
}

type receiptRequest struct {
	InvoiceID       string             `json:"invoice_id"`
	CustomerID      string             `json:"customer_id"`
	Items           []pricing.LineItem `json:"items"`
	Amount          decimal.Decimal    `json:"amount"`
	PaymentMethod   string             `json:"payment_method" validate:"required"`
	PaymentDate     time.Time          `json:"payment_date"`
	ReferenceNumber string             `json:"reference_number"`
	ExcessHandling  ExcessHandling     `json:"excess_handling" validate:"omitempty,oneof=pending credit_balance change_note"`
}

type excessRequest struct {
	Handling ExcessHandling `json:"handling" validate:"required,oneof=credit_balance change_note"`
}

func (h *Handler) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	companyID, ok := httpx.Company(w, r)
	if !ok {
		return
	}
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.CreatePayment(r.Context(), CreatePaymentInput{
		CompanyID:       companyID,
		InvoiceID:       req.InvoiceID,
		Amount:          req.Amount,
		PaymentMethod:   req.PaymentMethod,
		PaymentDate:     req.PaymentDate,
		ReferenceNumber: req.ReferenceNumber,
	})
	if err != nil {
		h.logger.Error("create payment", slog.String("invoice_id", req.InvoiceID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, httpx.Envelope{Data: result, Warnings: result.Warnings})
}

func (h *Handler) handleUpdatePayment(w http.ResponseWriter, r *http.Request) {
	companyID, ok := httpx.Company(w, r)
	if !ok {
		return
	}
	var req paymentPatch
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.UpdatePayment(r.Context(), UpdatePaymentInput{
		CompanyID:       companyID,
		PaymentID:       chi.URLParam(r, "id"),
		Amount:          req.Amount,
		PaymentMethod:   req.PaymentMethod,
		PaymentDate:     req.PaymentDate,
		ReferenceNumber: req.ReferenceNumber,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Envelope{Data: result})
}

func (h *Handler) handleDeletePayment(w http.ResponseWriter, r *http.Request) {
	companyID, ok := httpx.Company(w, r)
	if !ok {
		return
	}
	result, err := h.service.DeletePayment(r.Context(), companyID, chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Envelope{Data: result})
}

func (h *Handler) handleCreateReceipt(w http.ResponseWriter, r *http.Request) {
	companyID, ok := httpx.Company(w, r)
	if !ok {
		return
	}
	var req receiptRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.CreateReceipt(r.Context(), ReceiptInput{
		CompanyID:       companyID,
		CustomerID:      req.CustomerID,
		InvoiceID:       req.InvoiceID,
		Items:           req.Items,
		Amount:          req.Amount,
		PaymentMethod:   req.PaymentMethod,
		PaymentDate:     req.PaymentDate,
		ReferenceNumber: req.ReferenceNumber,
		ExcessHandling:  req.ExcessHandling,
		IdempotencyKey:  r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.logger.Error("create receipt", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, httpx.Envelope{Data: result, Warnings: result.Warnings})
}

func (h *Handler) handleResolveExcess(w http.ResponseWriter, r *http.Request) {
	companyID, ok := httpx.Company(w, r)
	if !ok {
		return
	}
	var req excessRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.ResolveExcess(r.Context(), companyID, chi.URLParam(r, "id"), req.Handling)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Envelope{Data: result, Warnings: result.Warnings})
}
