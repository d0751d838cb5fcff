package inventory

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-billing/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-billing/internal/rbac"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

// Handler wires HTTP endpoints for the stock ledger.
type Handler struct {
	logger *slog.Logger
	ledger *Ledger
	rbac   rbac.Middleware
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, ledger *Ledger, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, ledger: ledger, rbac: rbac}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermStockView))
		r.Get("/stock-movements", h.handleList)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermDocumentsEdit))
		r.Post("/stock-movements", h.handleRestock)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	companyID, ok := httpx.Company(w, r)
	if !ok {
		return
	}
	refType := r.URL.Query().Get("reference_type")
	refID := r.URL.Query().Get("reference_id")
	if refType == "" || refID == "" {
		httpx.RespondError(w, shared.Validation("reference_id", "reference_type and reference_id are required"))
		return
	}
	movements, err := h.ledger.ListByReference(r.Context(), companyID, refType, refID)
	if err != nil {
		h.logger.Error("list stock movements", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Envelope{Data: movements})
}

type restockRequest struct {
	ProductID   string          `json:"product_id" validate:"required"`
	Type        MovementType    `json:"movement_type" validate:"required,oneof=IN OUT"`
	Quantity    decimal.Decimal `json:"quantity"`
	ReferenceID string          `json:"reference_id" validate:"required,uuid"`
	Notes       string          `json:"notes"`
}

func (h *Handler) handleRestock(w http.ResponseWriter, r *http.Request) {
	companyID, ok := httpx.Company(w, r)
	if !ok {
		return
	}
	var req restockRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	userID, _ := shared.UserFromContext(r.Context())
	m, warnings, err := h.ledger.Record(r.Context(), MovementInput{
		CompanyID:     companyID,
		ProductID:     req.ProductID,
		Type:          req.Type,
		Quantity:      req.Quantity,
		ReferenceType: RefRestock,
		ReferenceID:   req.ReferenceID,
		Notes:         req.Notes,
		CreatedBy:     userID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	warnings.Log(h.logger, "stock.restock")
	httpx.JSON(w, http.StatusCreated, httpx.Envelope{Data: m, Warnings: warnings})
}
