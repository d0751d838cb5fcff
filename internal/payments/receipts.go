package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-billing/internal/documents"
	"github.com/odyssey-erp/odyssey-billing/internal/inventory"
	"github.com/odyssey-erp/odyssey-billing/internal/money"
	"github.com/odyssey-erp/odyssey-billing/internal/pricing"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
	"github.com/odyssey-erp/odyssey-billing/internal/store"
)

const idempotencyModule = "receipts"

// ReceiptInput describes a receipt. With InvoiceID the existing invoice is
// paid; with Items an invoice is generated from the items in the same
// transaction as the payment.
type ReceiptInput struct {
	CompanyID       string
	CustomerID      string
	InvoiceID       string
	Items           []pricing.LineItem
	Amount          decimal.Decimal
	PaymentMethod   string
	PaymentDate     time.Time
	ReferenceNumber string
	ExcessHandling  ExcessHandling
	IdempotencyKey  string
}

func (in ReceiptInput) validate() error {
	if in.CompanyID == "" {
		return shared.Validation("company_id", "company required")
	}
	if (in.InvoiceID == "") == (len(in.Items) == 0) {
		return shared.Validation("invoice_id", "exactly one of invoice_id or items required")
	}
	if in.InvoiceID == "" && in.CustomerID == "" {
		return shared.Validation("customer_id", "customer required for a direct receipt")
	}
	if !in.Amount.IsPositive() {
		return shared.Validation("amount", "amount must be greater than zero")
	}
	if strings.TrimSpace(in.PaymentMethod) == "" {
		return shared.Validation("payment_method", "payment method required")
	}
	if in.ExcessHandling != "" && !in.ExcessHandling.Valid() {
		return shared.Validation("excess_handling", "unknown excess handling %q", in.ExcessHandling)
	}
	return nil
}

// CreateReceipt records a payment with its receipt and routes any excess.
func (s *Service) CreateReceipt(ctx context.Context, in ReceiptInput) (result *ReceiptResult, err error) {
	var warnings shared.Warnings
	ctx, cancel := s.hooks.Bound(ctx)
	defer cancel()
	defer func() {
		err = s.hooks.Finish(ctx, "receipts.create", in.CompanyID, err, warnings)
		if result != nil {
			result.Warnings = warnings
		}
	}()

	if err := in.validate(); err != nil {
		return nil, err
	}
	if in.IdempotencyKey != "" {
		if err := s.idempotency.CheckAndInsert(ctx, in.IdempotencyKey, idempotencyModule); err != nil {
			return nil, err
		}
		defer func() {
			if err != nil && !errors.Is(err, shared.ErrIdempotencyConflict) {
				if derr := s.idempotency.Delete(context.WithoutCancel(ctx), in.IdempotencyKey, idempotencyModule); derr != nil {
					s.hooks.Logger.Warn("release idempotency key", slog.Any("error", derr))
				}
			}
		}()
	}

	receiptNumber, err := s.numbers.Generate(ctx, in.CompanyID, "receipt")
	if err != nil {
		return nil, fmt.Errorf("generate receipt number: %w", err)
	}
	var invoiceNumber string
	var items []pricing.LineItem
	var totals pricing.Totals
	if in.InvoiceID == "" {
		items, totals, err = pricing.Recalculate(in.Items)
		if err != nil {
			return nil, err
		}
		invoiceNumber, err = s.numbers.Generate(ctx, in.CompanyID, string(documents.TypeInvoice))
		if err != nil {
			return nil, fmt.Errorf("generate invoice number: %w", err)
		}
	}

	createdBy := s.currentUser(ctx)
	err = s.db.WithTx(ctx, func(tx store.Database) error {
		invoices := s.invoices.WithDB(tx)
		repo := s.repo.WithDB(tx)

		var invoice *documents.Document
		if in.InvoiceID != "" {
			found, err := s.payableInvoice(ctx, invoices, in.CompanyID, in.InvoiceID)
			if err != nil {
				return err
			}
			invoice = found
		} else {
			invoice = &documents.Document{
				CompanyID:    in.CompanyID,
				CustomerID:   in.CustomerID,
				Type:         documents.TypeInvoice,
				Number:       invoiceNumber,
				DocumentDate: s.dateOr(in.PaymentDate),
				Status:       documents.StatusSent,
				CreatedBy:    createdBy,
				CreatedAt:    s.now(),
				Items:        items,
			}
			invoice.ApplyTotals(totals)
			if err := invoices.Insert(ctx, invoice); err != nil {
				return err
			}
			if err := invoices.InsertItems(ctx, invoice); err != nil {
				return err
			}
		}

		applied := money.Min(in.Amount, invoice.BalanceDue)
		excess := money.ClampZero(in.Amount.Sub(applied))
		payment := &Payment{
			CompanyID:       in.CompanyID,
			InvoiceID:       invoice.ID,
			Amount:          in.Amount,
			PaymentMethod:   in.PaymentMethod,
			PaymentDate:     s.dateOr(in.PaymentDate),
			ReferenceNumber: optional(in.ReferenceNumber),
			CreatedBy:       createdBy,
			CreatedAt:       s.now(),
		}
		if err := repo.InsertPayment(ctx, payment); err != nil {
			return err
		}
		if applied.IsPositive() {
			if err := repo.InsertAllocation(ctx, &Allocation{
				CompanyID: in.CompanyID,
				PaymentID: payment.ID,
				InvoiceID: invoice.ID,
				Amount:    applied,
				CreatedAt: s.now(),
			}); err != nil {
				return err
			}
			invoice.PaidAmount = invoice.PaidAmount.Add(applied)
			invoice.Settle()
			if err := invoices.UpdateSettlement(ctx, invoice); err != nil {
				return err
			}
		}
		receipt := &Receipt{
			CompanyID:      in.CompanyID,
			CustomerID:     invoice.CustomerID,
			PaymentID:      payment.ID,
			InvoiceID:      invoice.ID,
			ReceiptNumber:  receiptNumber,
			TotalAmount:    in.Amount,
			ExcessAmount:   excess,
			ExcessHandling: HandlingNone,
			CreatedBy:      createdBy,
			CreatedAt:      s.now(),
		}
		if excess.IsPositive() {
			receipt.ExcessHandling = HandlingPending
		}
		if err := repo.InsertReceipt(ctx, receipt); err != nil {
			return err
		}
		result = &ReceiptResult{Receipt: receipt, Payment: payment, Invoice: invoice}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if in.InvoiceID == "" {
		created := ""
		if createdBy != nil {
			created = *createdBy
		}
		warnings.Merge(s.stock.RecordLines(ctx, inventory.LinesInput{
			CompanyID:     in.CompanyID,
			Type:          inventory.MovementOut,
			ReferenceType: inventory.RefInvoice,
			ReferenceID:   result.Invoice.ID,
			Notes:         result.Invoice.Number,
			CreatedBy:     created,
			Lines:         inventory.LinesOf(result.Invoice.Items),
		}))
	}

	receipt := result.Receipt
	if receipt.ExcessAmount.IsPositive() {
		handling := in.ExcessHandling
		if handling == "" {
			handling = HandlingPending
		}
		excess, err := s.resolver.HandleExcess(ctx, ExcessInput{
			CompanyID:    in.CompanyID,
			ReceiptID:    receipt.ID,
			PaymentID:    receipt.PaymentID,
			InvoiceID:    receipt.InvoiceID,
			CustomerID:   receipt.CustomerID,
			ExcessAmount: receipt.ExcessAmount,
			Handling:     handling,
		})
		if err != nil {
			// the receipt stands with its excess pending
			s.hooks.Logger.Warn("handle excess", slog.String("receipt_id", receipt.ID), slog.Any("error", err))
			warnings.Add("excess_handling", err)
			return result, nil
		}
		warnings.Merge(excess.Warnings)
		excess.Warnings = nil
		result.Excess = excess
		receipt.ExcessHandling = excess.Handling
		if excess.CreditNoteID != "" {
			id := excess.CreditNoteID
			receipt.ChangeNoteID = &id
		}
	}
	return result, nil
}

// ResolveExcess routes the pending excess of an existing receipt.
func (s *Service) ResolveExcess(ctx context.Context, companyID, receiptID string, handling ExcessHandling) (result *ExcessResult, err error) {
	var warnings shared.Warnings
	ctx, cancel := s.hooks.Bound(ctx)
	defer cancel()
	defer func() {
		err = s.hooks.Finish(ctx, "receipts.resolve_excess", companyID, err, warnings)
	}()

	if handling == HandlingPending || !handling.Valid() {
		return nil, shared.Validation("excess_handling", "handling must be credit_balance or change_note")
	}
	receipt, err := s.repo.GetReceipt(ctx, companyID, receiptID)
	if err != nil {
		return nil, err
	}
	if receipt.ExcessHandling != HandlingPending {
		return nil, shared.InvalidState("receipt %s excess is %s", receipt.ReceiptNumber, receipt.ExcessHandling)
	}
	result, err = s.resolver.HandleExcess(ctx, ExcessInput{
		CompanyID:    companyID,
		ReceiptID:    receipt.ID,
		PaymentID:    receipt.PaymentID,
		InvoiceID:    receipt.InvoiceID,
		CustomerID:   receipt.CustomerID,
		ExcessAmount: receipt.ExcessAmount,
		Handling:     handling,
	})
	if err != nil {
		return nil, err
	}
	warnings = result.Warnings
	return result, nil
}
