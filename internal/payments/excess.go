package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-billing/internal/documents"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
	"github.com/odyssey-erp/odyssey-billing/internal/store"
)

// OverpaymentRequest asks for a credit note covering an overpayment.
type OverpaymentRequest struct {
	CompanyID  string
	CustomerID string
	InvoiceID  string
	ReceiptID  string
	Amount     decimal.Decimal
}

// CreditNoteIssuer issues credit notes for overpayments and returns the note id.
type CreditNoteIssuer interface {
	IssueOverpayment(ctx context.Context, req OverpaymentRequest) (string, error)
}

// ExcessInput describes an overpayment to route.
type ExcessInput struct {
	CompanyID    string
	ReceiptID    string
	PaymentID    string
	InvoiceID    string
	CustomerID   string
	ExcessAmount decimal.Decimal
	Handling     ExcessHandling
}

// Resolver routes overpayments to customer credit, a credit note or a pending marker.
type Resolver struct {
	db       store.Database
	repo     *Repository
	invoices *documents.Repository
	issuer   CreditNoteIssuer
	logger   *slog.Logger
	now      func() time.Time
}

// NewResolver constructs Resolver. issuer may be attached later with SetIssuer.
func NewResolver(db store.Database, issuer CreditNoteIssuer, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		db:       db,
		repo:     NewRepository(db),
		invoices: documents.NewRepository(db),
		issuer:   issuer,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetIssuer attaches the credit note issuer.
func (r *Resolver) SetIssuer(issuer CreditNoteIssuer) {
	r.issuer = issuer
}

// HandleExcess routes the excess of a receipt. The receipt's excess_handling
// column is written last and a failure there is only a warning, since credit
// created by the earlier steps has already committed.
func (r *Resolver) HandleExcess(ctx context.Context, in ExcessInput) (*ExcessResult, error) {
	if !in.ExcessAmount.IsPositive() {
		return &ExcessResult{Handling: HandlingNone, Amount: decimal.Zero}, nil
	}
	if !in.Handling.Valid() {
		return nil, shared.Validation("excess_handling", "unknown excess handling %q", in.Handling)
	}
	if in.CompanyID == "" || in.CustomerID == "" {
		return nil, shared.Validation("customer_id", "company and customer required")
	}
	result := &ExcessResult{Handling: in.Handling, Amount: in.ExcessAmount}
	var changeNoteID *string

	switch in.Handling {
	case HandlingCreditBalance:
		balance := &CreditBalance{
			CompanyID:  in.CompanyID,
			CustomerID: in.CustomerID,
			Amount:     in.ExcessAmount,
			ReceiptID:  optional(in.ReceiptID),
			PaymentID:  optional(in.PaymentID),
			InvoiceID:  optional(in.InvoiceID),
			CreatedAt:  r.now(),
		}
		if err := r.repo.InsertCreditBalance(ctx, balance); err != nil {
			return nil, err
		}
		result.CreditBalanceID = balance.ID
		if in.InvoiceID != "" {
			result.Warnings.Add("invoice_status", r.markPaid(ctx, in.CompanyID, in.InvoiceID))
		}
	case HandlingChangeNote:
		if r.issuer == nil {
			return nil, errors.New("payments: credit note issuer not configured")
		}
		id, err := r.issuer.IssueOverpayment(ctx, OverpaymentRequest{
			CompanyID:  in.CompanyID,
			CustomerID: in.CustomerID,
			InvoiceID:  in.InvoiceID,
			ReceiptID:  in.ReceiptID,
			Amount:     in.ExcessAmount,
		})
		if err != nil {
			return nil, fmt.Errorf("issue overpayment credit note: %w", err)
		}
		result.CreditNoteID = id
		changeNoteID = &id
	}

	if in.ReceiptID != "" {
		if err := r.repo.UpdateReceiptExcess(ctx, in.ReceiptID, in.Handling, changeNoteID); err != nil {
			r.logger.Warn("record excess handling",
				slog.String("receipt_id", in.ReceiptID),
				slog.String("handling", string(in.Handling)),
				slog.Any("error", err))
			result.Warnings.Add("receipt_excess_handling", err)
		}
	}
	return result, nil
}

// markPaid settles an invoice whose balance the payment has covered.
func (r *Resolver) markPaid(ctx context.Context, companyID, invoiceID string) error {
	inv, err := r.invoices.Header(ctx, companyID, invoiceID)
	if err != nil {
		return err
	}
	before := inv.Status
	inv.Settle()
	if inv.Status == before {
		return nil
	}
	return r.invoices.UpdateSettlement(ctx, inv)
}
