package payments

import (
	"context"
	"fmt"
	"sort"

	"github.com/odyssey-erp/odyssey-billing/internal/shared"
	"github.com/odyssey-erp/odyssey-billing/internal/store"
)

const (
	paymentsTable       = "payments"
	allocationsTable    = "payment_allocations"
	receiptsTable       = "receipts"
	creditBalancesTable = "customer_credit_balances"
)

// Repository persists payments, allocations, receipts and credit balances.
type Repository struct {
	db store.Database
}

// NewRepository constructs Repository.
func NewRepository(db store.Database) *Repository {
	return &Repository{db: db}
}

// WithDB returns a repository bound to db.
func (r *Repository) WithDB(db store.Database) *Repository {
	return &Repository{db: db}
}

// InsertPayment stores p and sets its id.
func (r *Repository) InsertPayment(ctx context.Context, p *Payment) error {
	id, err := shared.InsertCreated(ctx, r.db, paymentsTable, store.Record{
		"company_id":       p.CompanyID,
		"invoice_id":       p.InvoiceID,
		"amount":           p.Amount,
		"payment_method":   p.PaymentMethod,
		"payment_date":     p.PaymentDate,
		"reference_number": p.ReferenceNumber,
		"created_by":       ptrValue(p.CreatedBy),
		"created_at":       p.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	p.ID = id
	return nil
}

// GetPayment loads a payment of the company.
func (r *Repository) GetPayment(ctx context.Context, companyID, id string) (*Payment, error) {
	rec, err := r.db.SelectOne(ctx, paymentsTable, id)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, shared.NotFound("payment", id)
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	var p Payment
	if err := store.Decode(rec, &p); err != nil {
		return nil, err
	}
	if p.CompanyID != companyID {
		return nil, shared.NotFound("payment", id)
	}
	return &p, nil
}

// UpdatePayment writes patch to the payment row.
func (r *Repository) UpdatePayment(ctx context.Context, id string, patch store.Record) error {
	if err := r.db.Update(ctx, paymentsTable, id, patch); err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	return nil
}

// DeletePayment removes the payment row.
func (r *Repository) DeletePayment(ctx context.Context, id string) error {
	if err := r.db.Delete(ctx, paymentsTable, id); err != nil {
		return fmt.Errorf("delete payment: %w", err)
	}
	return nil
}

// InsertAllocation stores a and sets its id.
func (r *Repository) InsertAllocation(ctx context.Context, a *Allocation) error {
	id, err := r.db.Insert(ctx, allocationsTable, store.Record{
		"company_id": a.CompanyID,
		"payment_id": a.PaymentID,
		"invoice_id": a.InvoiceID,
		"amount":     a.Amount,
		"created_at": a.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("insert payment allocation: %w", err)
	}
	a.ID = id
	return nil
}

// AllocationsByPayment returns the allocations of a payment, oldest first.
func (r *Repository) AllocationsByPayment(ctx context.Context, paymentID string) ([]Allocation, error) {
	return r.allocations(ctx, store.Filter{"payment_id": paymentID})
}

// AllocationsByInvoice returns the allocations against an invoice, oldest first.
func (r *Repository) AllocationsByInvoice(ctx context.Context, invoiceID string) ([]Allocation, error) {
	return r.allocations(ctx, store.Filter{"invoice_id": invoiceID})
}

func (r *Repository) allocations(ctx context.Context, filter store.Filter) ([]Allocation, error) {
	recs, err := r.db.Select(ctx, allocationsTable, filter)
	if err != nil {
		return nil, fmt.Errorf("list payment allocations: %w", err)
	}
	out, err := store.DecodeAll[Allocation](recs)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// UpdateAllocationAmount sets the amount of an allocation.
func (r *Repository) UpdateAllocationAmount(ctx context.Context, a Allocation) error {
	if err := r.db.Update(ctx, allocationsTable, a.ID, store.Record{"amount": a.Amount}); err != nil {
		return fmt.Errorf("update payment allocation: %w", err)
	}
	return nil
}

// DeleteAllocation removes an allocation.
func (r *Repository) DeleteAllocation(ctx context.Context, id string) error {
	if err := r.db.Delete(ctx, allocationsTable, id); err != nil {
		return fmt.Errorf("delete payment allocation: %w", err)
	}
	return nil
}

// InsertReceipt stores rc and sets its id.
func (r *Repository) InsertReceipt(ctx context.Context, rc *Receipt) error {
	id, err := shared.InsertCreated(ctx, r.db, receiptsTable, store.Record{
		"company_id":      rc.CompanyID,
		"customer_id":     rc.CustomerID,
		"payment_id":      rc.PaymentID,
		"invoice_id":      rc.InvoiceID,
		"receipt_number":  rc.ReceiptNumber,
		"total_amount":    rc.TotalAmount,
		"excess_amount":   rc.ExcessAmount,
		"excess_handling": string(rc.ExcessHandling),
		"change_note_id":  ptrValue(rc.ChangeNoteID),
		"created_by":      ptrValue(rc.CreatedBy),
		"created_at":      rc.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("insert receipt: %w", err)
	}
	rc.ID = id
	return nil
}

// GetReceipt loads a receipt of the company.
func (r *Repository) GetReceipt(ctx context.Context, companyID, id string) (*Receipt, error) {
	rec, err := r.db.SelectOne(ctx, receiptsTable, id)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, shared.NotFound("receipt", id)
		}
		return nil, fmt.Errorf("get receipt: %w", err)
	}
	var rc Receipt
	if err := store.Decode(rec, &rc); err != nil {
		return nil, err
	}
	if rc.CompanyID != companyID {
		return nil, shared.NotFound("receipt", id)
	}
	return &rc, nil
}

// ReceiptsByPayment returns the receipts issued for a payment.
func (r *Repository) ReceiptsByPayment(ctx context.Context, paymentID string) ([]Receipt, error) {
	recs, err := r.db.Select(ctx, receiptsTable, store.Filter{"payment_id": paymentID})
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	return store.DecodeAll[Receipt](recs)
}

// UpdateReceiptExcess records how the excess of a receipt was handled.
func (r *Repository) UpdateReceiptExcess(ctx context.Context, id string, handling ExcessHandling, changeNoteID *string) error {
	patch := store.Record{"excess_handling": string(handling)}
	if changeNoteID != nil {
		patch["change_note_id"] = *changeNoteID
	}
	if err := r.db.Update(ctx, receiptsTable, id, patch); err != nil {
		return fmt.Errorf("update receipt excess handling: %w", err)
	}
	return nil
}

// InsertCreditBalance stores b and sets its id.
func (r *Repository) InsertCreditBalance(ctx context.Context, b *CreditBalance) error {
	id, err := r.db.Insert(ctx, creditBalancesTable, store.Record{
		"company_id":  b.CompanyID,
		"customer_id": b.CustomerID,
		"amount":      b.Amount,
		"receipt_id":  ptrValue(b.ReceiptID),
		"payment_id":  ptrValue(b.PaymentID),
		"invoice_id":  ptrValue(b.InvoiceID),
		"created_at":  b.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("insert customer credit balance: %w", err)
	}
	b.ID = id
	return nil
}

func ptrValue(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
