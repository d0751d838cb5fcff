package payments

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-billing/internal/documents"
	"github.com/odyssey-erp/odyssey-billing/internal/inventory"
	"github.com/odyssey-erp/odyssey-billing/internal/money"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
	"github.com/odyssey-erp/odyssey-billing/internal/store"
)

// NumberGenerator issues receipt and invoice numbers.
type NumberGenerator interface {
	Generate(ctx context.Context, companyID, documentType string) (string, error)
}

// StockLedger records the goods leaving with a direct receipt.
type StockLedger interface {
	RecordLines(ctx context.Context, in inventory.LinesInput) shared.Warnings
}

// Service records payments and keeps invoice balances in step with allocations.
type Service struct {
	db          store.Database
	repo        *Repository
	invoices    *documents.Repository
	numbers     NumberGenerator
	stock       StockLedger
	resolver    *Resolver
	idempotency *shared.IdempotencyStore
	users       shared.CurrentUser
	hooks       shared.Hooks
	now         func() time.Time
}

// NewService constructs the payment service.
func NewService(db store.Database, numbers NumberGenerator, stock StockLedger, resolver *Resolver, users shared.CurrentUser, hooks shared.Hooks) *Service {
	if users == nil {
		users = shared.ContextUser{}
	}
	return &Service{
		db:          db,
		repo:        NewRepository(db),
		invoices:    documents.NewRepository(db),
		numbers:     numbers,
		stock:       stock,
		resolver:    resolver,
		idempotency: shared.NewIdempotencyStore(db),
		users:       users,
		hooks:       hooks.WithDefaults(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// CreatePaymentInput describes a payment against one invoice.
type CreatePaymentInput struct {
	CompanyID       string
	InvoiceID       string
	Amount          decimal.Decimal
	PaymentMethod   string
	PaymentDate     time.Time
	ReferenceNumber string
}

func (in CreatePaymentInput) validate() error {
	if in.CompanyID == "" || in.InvoiceID == "" {
		return shared.Validation("invoice_id", "company and invoice required")
	}
	if !in.Amount.IsPositive() {
		return shared.Validation("amount", "amount must be greater than zero")
	}
	if strings.TrimSpace(in.PaymentMethod) == "" {
		return shared.Validation("payment_method", "payment method required")
	}
	return nil
}

// CreatePayment stores a payment and allocates all of it to the invoice.
// The payment stands even when the allocation or the balance update fails;
// those surface as warnings for manual reconciliation.
func (s *Service) CreatePayment(ctx context.Context, in CreatePaymentInput) (result *PaymentResult, err error) {
	var warnings shared.Warnings
	ctx, cancel := s.hooks.Bound(ctx)
	defer cancel()
	defer func() {
		err = s.hooks.Finish(ctx, "payments.create", in.CompanyID, err, warnings)
		if result != nil {
			result.Warnings = warnings
		}
	}()

	if err := in.validate(); err != nil {
		return nil, err
	}
	invoice, err := s.payableInvoice(ctx, s.invoices, in.CompanyID, in.InvoiceID)
	if err != nil {
		return nil, err
	}
	payment := &Payment{
		CompanyID:       in.CompanyID,
		InvoiceID:       invoice.ID,
		Amount:          in.Amount,
		PaymentMethod:   in.PaymentMethod,
		PaymentDate:     s.dateOr(in.PaymentDate),
		ReferenceNumber: optional(in.ReferenceNumber),
		CreatedBy:       s.currentUser(ctx),
		CreatedAt:       s.now(),
	}
	if err := s.repo.InsertPayment(ctx, payment); err != nil {
		return nil, err
	}
	result = &PaymentResult{Payment: payment, Invoices: []*documents.Document{invoice}}

	alloc := &Allocation{
		CompanyID: in.CompanyID,
		PaymentID: payment.ID,
		InvoiceID: invoice.ID,
		Amount:    payment.Amount,
		CreatedAt: s.now(),
	}
	if err := s.repo.InsertAllocation(ctx, alloc); err != nil {
		s.hooks.Logger.Warn("allocate payment", slog.String("payment_id", payment.ID), slog.Any("error", err))
		warnings.Add("payment_allocation", err)
		return result, nil
	}
	updated, err := s.recompute(ctx, s.db, in.CompanyID, invoice.ID)
	if err != nil {
		s.hooks.Logger.Warn("recompute invoice", slog.String("invoice_id", invoice.ID), slog.Any("error", err))
		warnings.Add("invoice_balance", err)
		return result, nil
	}
	result.Invoices[0] = updated
	return result, nil
}

// UpdatePaymentInput carries a correction to a payment.
type UpdatePaymentInput struct {
	CompanyID       string
	PaymentID       string
	Amount          *decimal.Decimal
	PaymentMethod   *string
	PaymentDate     *time.Time
	ReferenceNumber *string
}

// UpdatePayment corrects a payment. The new amount is rounded to cents and
// any change is pushed through the payment's allocations onto the affected
// invoices.
func (s *Service) UpdatePayment(ctx context.Context, in UpdatePaymentInput) (result *PaymentResult, err error) {
	ctx, cancel := s.hooks.Bound(ctx)
	defer cancel()
	defer func() {
		err = s.hooks.Finish(ctx, "payments.update", in.CompanyID, err, nil)
	}()

	var amount *decimal.Decimal
	if in.Amount != nil {
		rounded := money.Round(*in.Amount)
		if !rounded.IsPositive() {
			return nil, shared.Validation("amount", "amount must be greater than zero")
		}
		amount = &rounded
	}
	if in.PaymentMethod != nil && strings.TrimSpace(*in.PaymentMethod) == "" {
		return nil, shared.Validation("payment_method", "payment method required")
	}
	err = s.db.WithTx(ctx, func(tx store.Database) error {
		repo := s.repo.WithDB(tx)
		payment, err := repo.GetPayment(ctx, in.CompanyID, in.PaymentID)
		if err != nil {
			return err
		}
		patch := store.Record{}
		if in.PaymentMethod != nil {
			payment.PaymentMethod = *in.PaymentMethod
			patch["payment_method"] = payment.PaymentMethod
		}
		if in.PaymentDate != nil {
			payment.PaymentDate = *in.PaymentDate
			patch["payment_date"] = payment.PaymentDate
		}
		if in.ReferenceNumber != nil {
			payment.ReferenceNumber = optional(*in.ReferenceNumber)
			patch["reference_number"] = ptrValue(payment.ReferenceNumber)
		}
		var invoices []*documents.Document
		if amount != nil {
			delta := amount.Sub(payment.Amount)
			if !delta.IsZero() {
				payment.Amount = *amount
				patch["amount"] = payment.Amount
				invoices, err = s.applyDelta(ctx, tx, payment, delta)
				if err != nil {
					return err
				}
			}
		}
		if len(patch) > 0 {
			if err := repo.UpdatePayment(ctx, payment.ID, patch); err != nil {
				return err
			}
		}
		result = &PaymentResult{Payment: payment, Invoices: invoices}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// applyDelta spreads an amount change over the allocations of a payment:
// increases land on the latest allocation, decreases are consumed from the
// latest allocation backwards. Each touched invoice gets the share added to
// its paid amount.
func (s *Service) applyDelta(ctx context.Context, tx store.Database, payment *Payment, delta decimal.Decimal) ([]*documents.Document, error) {
	repo := s.repo.WithDB(tx)
	allocs, err := repo.AllocationsByPayment(ctx, payment.ID)
	if err != nil {
		return nil, err
	}
	if len(allocs) == 0 {
		return nil, nil
	}
	shares := make(map[string]decimal.Decimal)
	var order []string
	addShare := func(invoiceID string, share decimal.Decimal) {
		if _, ok := shares[invoiceID]; !ok {
			order = append(order, invoiceID)
		}
		shares[invoiceID] = shares[invoiceID].Add(share)
	}

	if delta.IsPositive() {
		latest := allocs[len(allocs)-1]
		latest.Amount = latest.Amount.Add(delta)
		if err := repo.UpdateAllocationAmount(ctx, latest); err != nil {
			return nil, err
		}
		addShare(latest.InvoiceID, delta)
	} else {
		remaining := delta.Neg()
		for i := len(allocs) - 1; i >= 0 && remaining.IsPositive(); i-- {
			alloc := allocs[i]
			take := money.Min(remaining, alloc.Amount)
			alloc.Amount = alloc.Amount.Sub(take)
			remaining = remaining.Sub(take)
			if alloc.Amount.IsZero() {
				err = repo.DeleteAllocation(ctx, alloc.ID)
			} else {
				err = repo.UpdateAllocationAmount(ctx, alloc)
			}
			if err != nil {
				return nil, err
			}
			addShare(alloc.InvoiceID, take.Neg())
		}
	}

	invoices := s.invoices.WithDB(tx)
	out := make([]*documents.Document, 0, len(order))
	for _, invoiceID := range order {
		inv, err := invoices.Header(ctx, payment.CompanyID, invoiceID)
		if err != nil {
			return nil, err
		}
		inv.PaidAmount = money.ClampZero(inv.PaidAmount.Add(shares[invoiceID]))
		inv.Settle()
		if err := invoices.UpdateSettlement(ctx, inv); err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, nil
}

// DeletePayment removes a payment and withdraws its allocations from their invoices.
func (s *Service) DeletePayment(ctx context.Context, companyID, id string) (result *PaymentResult, err error) {
	ctx, cancel := s.hooks.Bound(ctx)
	defer cancel()
	defer func() {
		err = s.hooks.Finish(ctx, "payments.delete", companyID, err, nil)
	}()

	err = s.db.WithTx(ctx, func(tx store.Database) error {
		repo := s.repo.WithDB(tx)
		payment, err := repo.GetPayment(ctx, companyID, id)
		if err != nil {
			return err
		}
		receipts, err := repo.ReceiptsByPayment(ctx, payment.ID)
		if err != nil {
			return err
		}
		if len(receipts) > 0 {
			return shared.InvalidState("payment %s is acknowledged by receipt %s", payment.ID, receipts[0].ReceiptNumber)
		}
		allocs, err := repo.AllocationsByPayment(ctx, payment.ID)
		if err != nil {
			return err
		}
		invoices := s.invoices.WithDB(tx)
		touched := make([]*documents.Document, 0, len(allocs))
		for _, alloc := range allocs {
			if err := repo.DeleteAllocation(ctx, alloc.ID); err != nil {
				return err
			}
			inv, err := invoices.Header(ctx, companyID, alloc.InvoiceID)
			if err != nil {
				return err
			}
			inv.PaidAmount = money.ClampZero(inv.PaidAmount.Sub(alloc.Amount))
			inv.Settle()
			if err := invoices.UpdateSettlement(ctx, inv); err != nil {
				return err
			}
			touched = append(touched, inv)
		}
		if err := repo.DeletePayment(ctx, payment.ID); err != nil {
			return err
		}
		result = &PaymentResult{Payment: payment, Invoices: touched}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RecomputeInvoice re-derives an invoice's paid amount from all of its allocations.
func (s *Service) RecomputeInvoice(ctx context.Context, companyID, invoiceID string) (*documents.Document, error) {
	inv, err := s.recompute(ctx, s.db, companyID, invoiceID)
	return inv, shared.Classify(err)
}

func (s *Service) recompute(ctx context.Context, db store.Database, companyID, invoiceID string) (*documents.Document, error) {
	invoices := s.invoices.WithDB(db)
	inv, err := invoices.Header(ctx, companyID, invoiceID)
	if err != nil {
		return nil, err
	}
	allocs, err := s.repo.WithDB(db).AllocationsByInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	paid := decimal.Zero
	for _, alloc := range allocs {
		paid = paid.Add(alloc.Amount)
	}
	inv.PaidAmount = paid
	inv.Settle()
	if err := invoices.UpdateSettlement(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *Service) payableInvoice(ctx context.Context, repo *documents.Repository, companyID, invoiceID string) (*documents.Document, error) {
	inv, err := repo.Header(ctx, companyID, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Type != documents.TypeInvoice {
		return nil, shared.Validation("invoice_id", "document %s is a %s, not an invoice", inv.ID, inv.Type)
	}
	if inv.Status == documents.StatusCancelled {
		return nil, shared.InvalidState("invoice %s is cancelled", inv.Number)
	}
	return inv, nil
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
