package documents

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-billing/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-billing/internal/pricing"
	"github.com/odyssey-erp/odyssey-billing/internal/rbac"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

// ViewCache serves cached read models per company.
type ViewCache interface {
	FetchJSON(ctx context.Context, companyID, name string, dest any, loader func(context.Context) (any, error)) error
}

// Handler exposes document endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	views   ViewCache
	rbac    rbac.Middleware
}

// NewHandler builds Handler. views may be nil.
func NewHandler(logger *slog.Logger, service *Service, views ViewCache, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, views: views, rbac: rbac}
}

// MountRoutes registers document routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermDocumentsView, shared.PermDocumentsEdit))
		r.Get("/documents/{id}", h.handleGet)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermDocumentsEdit))
		r.Post("/documents", h.handleCreate)
		r.Post("/documents/{id}/transition", h.handleTransition)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermDocumentsConvert))
		r.Post("/documents/{id}/convert", h.handleConvert)
	})
}

type createRequest struct {
	CustomerID   string             `json:"customer_id" validate:"required"`
	Type         DocumentType       `json:"document_type" validate:"required,oneof=quotation proforma invoice delivery_note"`
	DocumentDate time.Time          `json:"document_date"`
	ValidUntil   *time.Time         `json:"valid_until"`
	Notes        string             `json:"notes"`
	Items        []pricing.LineItem `json:"items" validate:"required,min=1"`
}

type transitionRequest struct {
	Status Status `json:"status" validate:"required,oneof=sent accepted rejected expired cancelled"`
}

type convertRequest struct {
	SourceType   DocumentType       `json:"source_type" validate:"required,oneof=quotation proforma"`
	DestType     DocumentType       `json:"dest_type" validate:"required,oneof=proforma invoice delivery_note"`
	Items        []pricing.LineItem `json:"items"`
	Totals       *pricing.Totals    `json:"totals"`
	DocumentDate *time.Time         `json:"document_date"`
	ValidUntil   *time.Time         `json:"valid_until"`
	Notes        *string            `json:"notes"`
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
		CompanyID:    companyID,
		CustomerID:   req.CustomerID,
		Type:         req.Type,
		DocumentDate: req.DocumentDate,
		ValidUntil:   req.ValidUntil,
		Notes:        req.Notes,
		Items:        req.Items,
	})
	if err != nil {
		h.logger.Error("create document", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, httpx.Envelope{Data: result.Document, Warnings: result.Warnings})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	companyID, ok := httpx.Company(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	load := func(ctx context.Context) (any, error) {
		return h.service.Get(ctx, companyID, id)
	}
	var doc Document
	if h.views == nil {
		found, err := h.service.Get(r.Context(), companyID, id)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		doc = *found
	} else if err := h.views.FetchJSON(r.Context(), companyID, "document:"+id, &doc, load); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Envelope{Data: doc})
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request) {
	companyID, ok := httpx.Company(w, r)
	if !ok {
		return
	}
	var req transitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Transition(r.Context(), companyID, chi.URLParam(r, "id"), req.Status)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Envelope{Data: result.Document, Warnings: result.Warnings})
}

func (h *Handler) handleConvert(w http.ResponseWriter, r *http.Request) {
	companyID, ok := httpx.Company(w, r)
	if !ok {
		return
	}
	var req convertRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Convert(r.Context(), ConvertInput{
		CompanyID:  companyID,
		SourceID:   chi.URLParam(r, "id"),
		SourceType: req.SourceType,
		DestType:   req.DestType,
		Overrides: &Overrides{
			Items:        req.Items,
			Totals:       req.Totals,
			DocumentDate: req.DocumentDate,
			ValidUntil:   req.ValidUntil,
			Notes:        req.Notes,
		},
	})
	if err != nil {
		h.logger.Error("convert document", slog.String("source_id", chi.URLParam(r, "id")), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, httpx.Envelope{Data: result.Document, Warnings: result.Warnings})
}
