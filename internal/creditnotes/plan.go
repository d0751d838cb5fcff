package creditnotes

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-billing/internal/documents"
	"github.com/odyssey-erp/odyssey-billing/internal/pricing"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

// Selection picks an invoice item to credit. A nil Quantity credits the full line.
type Selection struct {
	ItemID   string           `json:"item_id" validate:"required"`
	Quantity *decimal.Decimal `json:"quantity,omitempty"`
}

// Plan is an unsaved credit note derived from an invoice.
type Plan struct {
	CreditNote *CreditNote        `json:"credit_note"`
	Items      []pricing.LineItem `json:"items"`
}

// Input turns the plan into a create request.
func (p *Plan) Input() CreateInput {
	in := CreateInput{
		CompanyID:        p.CreditNote.CompanyID,
		CustomerID:       p.CreditNote.CustomerID,
		Reason:           p.CreditNote.Reason,
		NoteDate:         p.CreditNote.NoteDate,
		AffectsInventory: p.CreditNote.AffectsInventory,
		Items:            p.Items,
	}
	if p.CreditNote.InvoiceID != nil {
		in.InvoiceID = *p.CreditNote.InvoiceID
	}
	return in
}

// ConvertInvoiceToCreditNote previews a credit note for all or some of an
// invoice's lines. Nothing is written.
func (s *Service) ConvertInvoiceToCreditNote(ctx context.Context, companyID, invoiceID string, selections []Selection) (*Plan, error) {
	ctx, cancel := s.hooks.Bound(ctx)
	defer cancel()

	plan, err := s.plan(ctx, companyID, invoiceID, selections)
	return plan, shared.Classify(err)
}

func (s *Service) plan(ctx context.Context, companyID, invoiceID string, selections []Selection) (*Plan, error) {
	inv, err := s.invoices.Get(ctx, companyID, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Type != documents.TypeInvoice {
		return nil, shared.Validation("invoice_id", "document %s is not an invoice", inv.Number)
	}
	if inv.Status == documents.StatusCancelled {
		return nil, shared.InvalidState("invoice %s is cancelled", inv.Number)
	}

	var picked []pricing.LineItem
	if len(selections) == 0 {
		for _, item := range inv.Items {
			picked = append(picked, item.Clone())
		}
	} else {
		byID := make(map[string]pricing.LineItem, len(inv.Items))
		for _, item := range inv.Items {
			byID[item.ID] = item
		}
		seen := make(map[string]struct{}, len(selections))
		for _, sel := range selections {
			item, ok := byID[sel.ItemID]
			if !ok {
				return nil, shared.Validation("items", "item %s is not on invoice %s", sel.ItemID, inv.Number)
			}
			if _, dup := seen[sel.ItemID]; dup {
				return nil, shared.Validation("items", "item %s selected twice", sel.ItemID)
			}
			seen[sel.ItemID] = struct{}{}
			line := item.Clone()
			if sel.Quantity != nil {
				if !sel.Quantity.IsPositive() || sel.Quantity.GreaterThan(item.Quantity) {
					return nil, shared.Validation("quantity", "quantity for item %s must be between 0 and %s", sel.ItemID, item.Quantity)
				}
				line.Quantity = *sel.Quantity
			}
			picked = append(picked, line)
		}
	}
	if len(picked) == 0 {
		return nil, shared.Validation("items", "invoice %s has no items to credit", inv.Number)
	}

	items, totals, err := pricing.Recalculate(picked)
	if err != nil {
		return nil, err
	}
	affects := false
	for _, item := range items {
		if item.HasProduct() {
			affects = true
			break
		}
	}
	note := &CreditNote{
		CompanyID:        companyID,
		CustomerID:       inv.CustomerID,
		InvoiceID:        &inv.ID,
		NoteDate:         s.now(),
		Status:           StatusDraft,
		Reason:           ReasonInvoiceConversion,
		AffectsInventory: affects,
		AppliedAmount:    decimal.Zero,
		Items:            items,
	}
	note.ApplyTotals(totals)
	return &Plan{CreditNote: note, Items: items}, nil
}
