package creditnotes

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-billing/internal/documents"
	"github.com/odyssey-erp/odyssey-billing/internal/inventory"
	"github.com/odyssey-erp/odyssey-billing/internal/money"
	"github.com/odyssey-erp/odyssey-billing/internal/payments"
	"github.com/odyssey-erp/odyssey-billing/internal/pricing"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
	"github.com/odyssey-erp/odyssey-billing/internal/store"
)

// NumberGenerator issues credit note numbers.
type NumberGenerator interface {
	Generate(ctx context.Context, companyID, documentType string) (string, error)
}

// StockLedger returns goods to stock and withdraws them again.
type StockLedger interface {
	RecordLines(ctx context.Context, in inventory.LinesInput) shared.Warnings
	Reverse(ctx context.Context, companyID, referenceType, referenceID string) ([]inventory.Movement, shared.Warnings, error)
}

// Authorizer answers permission checks for the current user.
type Authorizer interface {
	HasPermission(ctx context.Context, userID, perm string) (bool, error)
}

// Service manages credit notes.
type Service struct {
	db       store.Database
	repo     *Repository
	invoices *documents.Repository
	numbers  NumberGenerator
	stock    StockLedger
	authz    Authorizer
	audit    *shared.AuditLogger
	users    shared.CurrentUser
	hooks    shared.Hooks
	now      func() time.Time
}

// NewService constructs the credit note service.
func NewService(db store.Database, numbers NumberGenerator, stock StockLedger, authz Authorizer, audit *shared.AuditLogger, users shared.CurrentUser, hooks shared.Hooks) *Service {
	if users == nil {
		users = shared.ContextUser{}
	}
	if audit == nil {
		audit = shared.NewAuditLogger()
	}
	return &Service{
		db:       db,
		repo:     NewRepository(db),
		invoices: documents.NewRepository(db),
		numbers:  numbers,
		stock:    stock,
		authz:    authz,
		audit:    audit,
		users:    users,
		hooks:    hooks.WithDefaults(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateInput describes a new credit note.
type CreateInput struct {
	CompanyID        string
	CustomerID       string
	InvoiceID        string
	ReceiptID        string
	Reason           string
	NoteDate         time.Time
	Status           Status
	AffectsInventory bool
	Items            []pricing.LineItem
}

// Create stores a credit note and, when it affects inventory, returns its goods to stock.
func (s *Service) Create(ctx context.Context, in CreateInput) (result *Result, err error) {
	var warnings shared.Warnings
	ctx, cancel := s.hooks.Bound(ctx)
	defer cancel()
	defer func() {
		err = s.hooks.Finish(ctx, "credit_notes.create", in.CompanyID, err, warnings)
		if result != nil {
			result.Warnings = warnings
		}
	}()

	note, err := s.create(ctx, in)
	if err != nil {
		return nil, err
	}
	if note.AffectsInventory {
		warnings.Merge(s.restock(ctx, note))
	}
	return &Result{CreditNote: note}, nil
}

func (s *Service) create(ctx context.Context, in CreateInput) (*CreditNote, error) {
	if in.CompanyID == "" {
		return nil, shared.Validation("company_id", "company required")
	}
	if len(in.Items) == 0 {
		return nil, shared.Validation("items", "at least one item required")
	}
	status := in.Status
	if status == "" {
		status = StatusDraft
	}
	if status != StatusDraft && status != StatusSent && status != StatusIssued {
		return nil, shared.Validation("status", "a new credit note cannot be %s", status)
	}
	customerID := in.CustomerID
	if in.InvoiceID != "" {
		inv, err := s.invoices.Header(ctx, in.CompanyID, in.InvoiceID)
		if err != nil {
			return nil, err
		}
		if inv.Type != documents.TypeInvoice {
			return nil, shared.Validation("invoice_id", "document %s is not an invoice", inv.ID)
		}
		if customerID == "" {
			customerID = inv.CustomerID
		} else if customerID != inv.CustomerID {
			return nil, shared.Validation("customer_id", "invoice %s belongs to another customer", inv.Number)
		}
	}
	if customerID == "" {
		return nil, shared.Validation("customer_id", "customer required")
	}
	items, totals, err := pricing.Recalculate(in.Items)
	if err != nil {
		return nil, err
	}
	number, err := s.numbers.Generate(ctx, in.CompanyID, "credit_note")
	if err != nil {
		return nil, fmt.Errorf("generate credit note number: %w", err)
	}
	note := &CreditNote{
		CompanyID:        in.CompanyID,
		CustomerID:       customerID,
		InvoiceID:        optional(in.InvoiceID),
		ReceiptID:        optional(in.ReceiptID),
		Number:           number,
		NoteDate:         in.NoteDate,
		Status:           status,
		Reason:           in.Reason,
		AffectsInventory: in.AffectsInventory,
		AppliedAmount:    decimal.Zero,
		CreatedBy:        s.currentUser(ctx),
		CreatedAt:        s.now(),
		Items:            items,
	}
	if note.NoteDate.IsZero() {
		note.NoteDate = s.now()
	}
	note.ApplyTotals(totals)
	err = s.db.WithTx(ctx, func(tx store.Database) error {
		repo := s.repo.WithDB(tx)
		if err := repo.Insert(ctx, note); err != nil {
			return err
		}
		return repo.InsertItems(ctx, note)
	})
	if err != nil {
		return nil, err
	}
	return note, nil
}

// UpdateInput patches a credit note. Nil fields are left as they are; a nil
// Items keeps the current items.
type UpdateInput struct {
	CompanyID        string
	ID               string
	Reason           *string
	Status           *Status
	AffectsInventory *bool
	Items            []pricing.LineItem
}

// Update replaces a credit note's items. Stock already returned by the note is
// withdrawn first and returned again for the new items.
func (s *Service) Update(ctx context.Context, in UpdateInput) (result *Result, err error) {
	var warnings shared.Warnings
	ctx, cancel := s.hooks.Bound(ctx)
	defer cancel()
	defer func() {
		err = s.hooks.Finish(ctx, "credit_notes.update", in.CompanyID, err, warnings)
		if result != nil {
			result.Warnings = warnings
		}
	}()

	existing, err := s.repo.Get(ctx, in.CompanyID, in.ID)
	if err != nil {
		return nil, err
	}
	if existing.Status == StatusCancelled {
		return nil, shared.InvalidState("credit note %s is cancelled", existing.Number)
	}

	next := *existing
	if in.Reason != nil {
		next.Reason = *in.Reason
	}
	if in.AffectsInventory != nil {
		next.AffectsInventory = *in.AffectsInventory
	}
	if in.Status != nil && *in.Status != existing.Status {
		switch *in.Status {
		case StatusSent, StatusIssued:
		case StatusCancelled:
			if money.IsPositive(existing.AppliedAmount) {
				return nil, shared.InvalidState("credit note %s has been applied to invoices", existing.Number)
			}
			next.AffectsInventory = false
		default:
			return nil, shared.Validation("status", "credit note cannot be set to %s", *in.Status)
		}
		next.Status = *in.Status
	}
	replaceItems := in.Items != nil
	if replaceItems {
		if len(in.Items) == 0 {
			return nil, shared.Validation("items", "at least one item required")
		}
		items, totals, err := pricing.Recalculate(in.Items)
		if err != nil {
			return nil, err
		}
		next.Items = items
		next.ApplyTotals(totals)
		if next.TotalAmount.LessThan(existing.AppliedAmount.Sub(money.Tolerance)) {
			return nil, shared.Validation("items", "total %s is below the applied amount %s", next.TotalAmount, existing.AppliedAmount)
		}
	}

	reversed := false
	if existing.AffectsInventory {
		_, warns, rerr := s.stock.Reverse(ctx, in.CompanyID, inventory.RefCreditNote, existing.ID)
		warnings.Merge(warns)
		if rerr != nil {
			s.hooks.Logger.Warn("reverse credit note stock", slog.String("credit_note_id", existing.ID), slog.Any("error", rerr))
			warnings.Add("stock_reversal", rerr)
		} else {
			reversed = true
		}
	}

	err = s.db.WithTx(ctx, func(tx store.Database) error {
		repo := s.repo.WithDB(tx)
		if err := repo.UpdateHeader(ctx, &next); err != nil {
			return err
		}
		if !replaceItems {
			return nil
		}
		if err := repo.DeleteItems(ctx, existing.Items); err != nil {
			return err
		}
		return repo.InsertItems(ctx, &next)
	})
	if err != nil {
		if reversed {
			warnings.Merge(s.restock(context.WithoutCancel(ctx), existing))
		}
		return nil, err
	}
	if next.AffectsInventory {
		warnings.Merge(s.restock(ctx, &next))
	}
	return &Result{CreditNote: &next}, nil
}

// ApplyInput applies part of a credit note to an invoice.
type ApplyInput struct {
	CompanyID    string
	CreditNoteID string
	InvoiceID    string
	Amount       decimal.Decimal
}

// Apply allocates credit to an invoice, lowering its balance due.
func (s *Service) Apply(ctx context.Context, in ApplyInput) (result *Result, err error) {
	ctx, cancel := s.hooks.Bound(ctx)
	defer cancel()
	defer func() {
		err = s.hooks.Finish(ctx, "credit_notes.apply", in.CompanyID, err, nil)
	}()

	if !in.Amount.IsPositive() {
		return nil, shared.Validation("amount", "amount must be greater than zero")
	}
	err = s.db.WithTx(ctx, func(tx store.Database) error {
		repo := s.repo.WithDB(tx)
		invoices := s.invoices.WithDB(tx)
		note, err := repo.Get(ctx, in.CompanyID, in.CreditNoteID)
		if err != nil {
			return err
		}
		if note.Status == StatusCancelled {
			return shared.InvalidState("credit note %s is cancelled", note.Number)
		}
		if in.Amount.GreaterThan(note.Balance.Add(money.Tolerance)) {
			return shared.Validation("amount", "amount exceeds the credit note balance %s", note.Balance)
		}
		inv, err := invoices.Header(ctx, in.CompanyID, in.InvoiceID)
		if err != nil {
			return err
		}
		if inv.Type != documents.TypeInvoice || inv.Status == documents.StatusCancelled {
			return shared.InvalidState("document %s cannot receive credit", inv.Number)
		}
		if inv.CustomerID != note.CustomerID {
			return shared.Validation("invoice_id", "invoice %s belongs to another customer", inv.Number)
		}
		if in.Amount.GreaterThan(inv.BalanceDue.Add(money.Tolerance)) {
			return shared.Validation("amount", "amount exceeds the invoice balance %s", inv.BalanceDue)
		}
		if err := repo.InsertAllocation(ctx, &Allocation{
			CompanyID:       in.CompanyID,
			CreditNoteID:    note.ID,
			InvoiceID:       inv.ID,
			AllocatedAmount: in.Amount,
			CreatedAt:       s.now(),
		}); err != nil {
			return err
		}
		note.AppliedAmount = note.AppliedAmount.Add(in.Amount)
		note.rebalance()
		if err := repo.UpdateHeader(ctx, note); err != nil {
			return err
		}
		inv.CreditedAmount = inv.CreditedAmount.Add(in.Amount)
		inv.Settle()
		if err := invoices.UpdateSettlement(ctx, inv); err != nil {
			return err
		}
		result = &Result{CreditNote: note}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// IssueOverpayment creates an issued credit note for the excess of a receipt.
// It never touches stock.
func (s *Service) IssueOverpayment(ctx context.Context, req payments.OverpaymentRequest) (string, error) {
	if !req.Amount.IsPositive() {
		return "", shared.Validation("amount", "overpayment must be greater than zero")
	}
	note, err := s.create(ctx, CreateInput{
		CompanyID:  req.CompanyID,
		CustomerID: req.CustomerID,
		InvoiceID:  req.InvoiceID,
		ReceiptID:  req.ReceiptID,
		Reason:     ReasonOverpayment,
		Status:     StatusIssued,
		Items: []pricing.LineItem{{
			Description:   ReasonOverpayment,
			Quantity:      decimal.NewFromInt(1),
			UnitPrice:     req.Amount,
			TaxPercentage: decimal.Zero,
		}},
	})
	if err != nil {
		return "", err
	}
	return note.ID, nil
}

func (s *Service) restock(ctx context.Context, note *CreditNote) shared.Warnings {
	createdBy := ""
	if id, ok := s.users.UserID(ctx); ok {
		createdBy = id
	}
	return s.stock.RecordLines(ctx, inventory.LinesInput{
		CompanyID:     note.CompanyID,
		Type:          inventory.MovementIn,
		ReferenceType: inventory.RefCreditNote,
		ReferenceID:   note.ID,
		Notes:         note.Number,
		CreatedBy:     createdBy,
		Lines:         inventory.LinesOf(note.Items),
	})
}

func (s *Service) currentUser(ctx context.Context) *string {
	id, ok := s.users.UserID(ctx)
	if !ok {
		return nil
	}
	return &id
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Get loads a credit note with its items.
func (s *Service) Get(ctx context.Context, companyID, id string) (*CreditNote, error) {
	note, err := s.repo.Get(ctx, companyID, id)
	return note, shared.Classify(err)
}
