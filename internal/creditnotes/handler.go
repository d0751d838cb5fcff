package creditnotes

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

// Handler exposes credit note endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers credit note routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermDocumentsView, shared.PermCreditNotesEdit))
		r.Get("/credit-notes/{id}", h.handleGet)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermCreditNotesEdit))
		r.Post("/credit-notes", h.handleCreate)
		r.Put("/credit-notes/{id}", h.handleUpdate)
		r.Post("/credit-notes/{id}/apply", h.handleApply)
		r.Post("/invoices/{id}/credit-note-plan", h.handlePlan)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermCreditNotesEdit, shared.PermDeleteCreditNote))
		r.Delete("/credit-notes/{id}", h.handleDelete)
	})
}

type createRequest struct {
	CustomerID       string             `json:"customer_id"`
	InvoiceID        string             `json:"invoice_id"`
	Reason           string             `json:"reason" validate:"required"`
	NoteDate         time.Time          `json:"credit_note_date"`
	AffectsInventory bool               `json:"affects_inventory"`
	Items            []pricing.LineItem `json:"items" validate:"required,min=1"`
}

type updateRequest struct {
	Reason           *string            `json:"reason"`
	Status           *Status            `json:"status" validate:"omitempty,oneof=sent issued cancelled"`
	AffectsInventory *bool              `json:"affects_inventory"`
	Items            []pricing.LineItem `json:"items"`
}

type applyRequest struct {
	InvoiceID string          `json:"invoice_id" validate:"required"`
	Amount    decimal.Decimal `json:"amount"`
}

type planRequest struct {
	Items []Selection `json:"items" validate:"dive"`
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	companyID, ok := httpx.Company(w, r)
	if !ok {
		return
	}
	note, err := h.service.Get(r.Context(), companyID, chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Envelope{Data: note})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	companyID, ok := httpx.Company(w, r)
	if !ok {
		return
	}
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Create(r.Context(), CreateInput{
		CompanyID:        companyID,
		CustomerID:       req.CustomerID,
		InvoiceID:        req.InvoiceID,
		Reason:           req.Reason,
		NoteDate:         req.NoteDate,
		AffectsInventory: req.AffectsInventory,
		Items:            req.Items,
	})
	if err != nil {
		h.logger.Error("create credit note", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, httpx.Envelope{Data: result.CreditNote, Warnings: result.Warnings})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	companyID, ok := httpx.Company(w, r)
	if !ok {
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Update(r.Context(), UpdateInput{
		CompanyID:        companyID,
		ID:               chi.URLParam(r, "id"),
		Reason:           req.Reason,
		Status:           req.Status,
		AffectsInventory: req.AffectsInventory,
		Items:            req.Items,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Envelope{Data: result.CreditNote, Warnings: result.Warnings})
}

func (h *Handler) handleApply(w http.ResponseWriter, r *http.Request) {
	companyID, ok := httpx.Company(w, r)
	if !ok {
		return
	}
	var req applyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Apply(r.Context(), ApplyInput{
		CompanyID:    companyID,
		CreditNoteID: chi.URLParam(r, "id"),
		InvoiceID:    req.InvoiceID,
		Amount:       req.Amount,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Envelope{Data: result.CreditNote})
}

func (h *Handler) handlePlan(w http.ResponseWriter, r *http.Request) {
	companyID, ok := httpx.Company(w, r)
	if !ok {
		return
	}
	var req planRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	plan, err := h.service.ConvertInvoiceToCreditNote(r.Context(), companyID, chi.URLParam(r, "id"), req.Items)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Envelope{Data: plan})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	companyID, ok := httpx.Company(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	warnings, err := h.service.Delete(r.Context(), DeleteInput{CompanyID: companyID, ID: id})
	if err != nil {
		h.logger.Error("delete credit note", slog.String("credit_note_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if len(warnings) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Envelope{Data: map[string]string{"id": id}, Warnings: warnings})
}
