package documents

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/odyssey-billing/internal/inventory"
	"github.com/odyssey-erp/odyssey-billing/internal/pricing"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
	"github.com/odyssey-erp/odyssey-billing/internal/store"
)

// NumberGenerator issues sequential document numbers.
type NumberGenerator interface {
	Generate(ctx context.Context, companyID, documentType string) (string, error)
}

// StockLedger is the part of the inventory ledger documents depend on.
type StockLedger interface {
	RecordLines(ctx context.Context, in inventory.LinesInput) shared.Warnings
	Reverse(ctx context.Context, companyID, referenceType, referenceID string) ([]inventory.Movement, shared.Warnings, error)
}

// Service orchestrates document lifecycle operations.
type Service struct {
	db      store.Database
	repo    *Repository
	numbers NumberGenerator
	stock   StockLedger
	users   shared.CurrentUser
	hooks   shared.Hooks
	now     func() time.Time
}

// NewService constructs the document service.
func NewService(db store.Database, numbers NumberGenerator, stock StockLedger, users shared.CurrentUser, hooks shared.Hooks) *Service {
	if users == nil {
		users = shared.ContextUser{}
	}
	return &Service{
		db:      db,
		repo:    NewRepository(db),
		numbers: numbers,
		stock:   stock,
		users:   users,
		hooks:   hooks.WithDefaults(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Repository exposes the underlying repository for collaborating engines.
func (s *Service) Repository() *Repository {
	return s.repo
}

// CreateInput describes a directly entered document.
type CreateInput struct {
	CompanyID    string
	CustomerID   string
	Type         DocumentType
	DocumentDate time.Time
	ValidUntil   *time.Time
	Notes        string
	Items        []pricing.LineItem
}

// Result carries a document and the partial failures of the operation.
type Result struct {
	Document *Document       `json:"document"`
	Warnings shared.Warnings `json:"-"`
}

func (in CreateInput) validate() error {
	if in.CompanyID == "" {
		return shared.Validation("company_id", "company required")
	}
	if in.CustomerID == "" {
		return shared.Validation("customer_id", "customer required")
	}
	if !in.Type.Valid() {
		return shared.Validation("document_type", "unknown document type %q", in.Type)
	}
	if len(in.Items) == 0 {
		return shared.Validation("items", "at least one item required")
	}
	if in.ValidUntil != nil && !in.DocumentDate.IsZero() && in.ValidUntil.Before(in.DocumentDate) {
		return shared.Validation("valid_until", "valid_until must not precede document_date")
	}
	return nil
}

// Create stores a new draft document. Invoices and delivery notes take their
// goods out of stock once the document is committed.
func (s *Service) Create(ctx context.Context, in CreateInput) (result *Result, err error) {
	var warnings shared.Warnings
	ctx, cancel := s.hooks.Bound(ctx)
	defer cancel()
	defer func() {
		err = s.hooks.Finish(ctx, "documents.create", in.CompanyID, err, warnings)
		if result != nil {
			result.Warnings = warnings
		}
	}()

	if err := in.validate(); err != nil {
		return nil, err
	}
	items, totals, err := pricing.Recalculate(in.Items)
	if err != nil {
		return nil, err
	}
	number, err := s.numbers.Generate(ctx, in.CompanyID, string(in.Type))
	if err != nil {
		return nil, fmt.Errorf("generate document number: %w", err)
	}
	doc := &Document{
		CompanyID:    in.CompanyID,
		CustomerID:   in.CustomerID,
		Type:         in.Type,
		Number:       number,
		DocumentDate: s.dateOr(in.DocumentDate),
		ValidUntil:   in.ValidUntil,
		Status:       StatusDraft,
		Notes:        in.Notes,
		CreatedBy:    s.currentUser(ctx),
		CreatedAt:    s.now(),
		Items:        items,
	}
	doc.ApplyTotals(totals)
	if err := s.insert(ctx, doc); err != nil {
		return nil, err
	}
	if in.Type.AffectsInventory() {
		warnings.Merge(s.takeStock(ctx, doc))
	}
	return &Result{Document: doc}, nil
}

// Get loads a document with its items.
func (s *Service) Get(ctx context.Context, companyID, id string) (*Document, error) {
	doc, err := s.repo.Get(ctx, companyID, id)
	return doc, shared.Classify(err)
}

// Transition applies a manual status change.
func (s *Service) Transition(ctx context.Context, companyID, id string, to Status) (result *Result, err error) {
	var warnings shared.Warnings
	ctx, cancel := s.hooks.Bound(ctx)
	defer cancel()
	defer func() {
		err = s.hooks.Finish(ctx, "documents.transition", companyID, err, warnings)
		if result != nil {
			result.Warnings = warnings
		}
	}()

	doc, err := s.repo.Header(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if to == StatusConverted || to == StatusPartial || to == StatusPaid {
		return nil, shared.InvalidState("%s is derived and cannot be set directly", to)
	}
	if !CanTransition(doc.Type, doc.Status, to) {
		return nil, shared.InvalidState("%s %s cannot move from %s to %s", doc.Type, doc.Number, doc.Status, to)
	}
	if err := s.repo.UpdateStatus(ctx, doc.ID, to); err != nil {
		return nil, err
	}
	doc.Status = to
	if to == StatusCancelled && doc.Type.AffectsInventory() {
		_, warns, rerr := s.stock.Reverse(ctx, companyID, doc.Type.StockReference(), doc.ID)
		warnings.Merge(warns)
		warnings.Add("stock_reversal", rerr)
	}
	return &Result{Document: doc}, nil
}

// ExpireStale expires sent quotations and proformas whose validity ended before asOf.
func (s *Service) ExpireStale(ctx context.Context, asOf time.Time) (int, error) {
	expired := 0
	for _, t := range []DocumentType{TypeQuotation, TypeProforma} {
		docs, err := s.repo.List(ctx, "", store.Filter{"document_type": string(t), "status": string(StatusSent)})
		if err != nil {
			return expired, shared.Classify(err)
		}
		for _, doc := range docs {
			if doc.ValidUntil == nil || !doc.ValidUntil.Before(asOf) {
				continue
			}
			if err := s.repo.UpdateStatus(ctx, doc.ID, StatusExpired); err != nil {
				s.hooks.Logger.Warn("expire document", slog.String("document_id", doc.ID), slog.Any("error", err))
				continue
			}
			expired++
			if s.hooks.Views != nil {
				_ = s.hooks.Views.Invalidate(ctx, doc.CompanyID)
			}
		}
	}
	return expired, nil
}

// insert writes the header and items atomically.
func (s *Service) insert(ctx context.Context, doc *Document) error {
	return s.db.WithTx(ctx, func(tx store.Database) error {
		repo := s.repo.WithDB(tx)
		if err := repo.Insert(ctx, doc); err != nil {
			return err
		}
		return repo.InsertItems(ctx, doc)
	})
}

func (s *Service) takeStock(ctx context.Context, doc *Document) shared.Warnings {
	createdBy := ""
	if doc.CreatedBy != nil {
		createdBy = *doc.CreatedBy
	}
	return s.stock.RecordLines(ctx, inventory.LinesInput{
		CompanyID:     doc.CompanyID,
		Type:          inventory.MovementOut,
		ReferenceType: doc.Type.StockReference(),
		ReferenceID:   doc.ID,
		Notes:         doc.Number,
		CreatedBy:     createdBy,
		Lines:         inventory.LinesOf(doc.Items),
	})
}

func (s *Service) currentUser(ctx context.Context) *string {
	id, ok := s.users.UserID(ctx)
	if !ok {
		return nil
	}
	return &id
}

func (s *Service) dateOr(t time.Time) time.Time {
	if t.IsZero() {
		return s.now()
	}
	return t
}
