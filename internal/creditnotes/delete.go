package creditnotes

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/odyssey-billing/internal/inventory"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
	"github.com/odyssey-erp/odyssey-billing/internal/store"
)

// DeleteInput identifies a credit note to remove.
type DeleteInput struct {
	CompanyID string
	ID        string
}

// Delete withdraws returned stock, hands applied credit back to invoices and
// removes the note. The audit entry is written in the same transaction.
func (s *Service) Delete(ctx context.Context, in DeleteInput) (warnings shared.Warnings, err error) {
	ctx, cancel := s.hooks.Bound(ctx)
	defer cancel()
	defer func() {
		err = s.hooks.Finish(ctx, "credit_notes.delete", in.CompanyID, err, warnings)
	}()

	actor, err := s.authorize(ctx)
	if err != nil {
		return nil, err
	}
	note, err := s.repo.Get(ctx, in.CompanyID, in.ID)
	if err != nil {
		return nil, err
	}

	reversed := false
	if note.AffectsInventory {
		_, warns, rerr := s.stock.Reverse(ctx, in.CompanyID, inventory.RefCreditNote, note.ID)
		warnings.Merge(warns)
		if rerr != nil {
			s.hooks.Logger.Warn("reverse credit note stock", slog.String("credit_note_id", note.ID), slog.Any("error", rerr))
			warnings.Add("stock_reversal", rerr)
		} else {
			reversed = true
		}
	}

	err = s.db.WithTx(ctx, func(tx store.Database) error {
		repo := s.repo.WithDB(tx)
		invoices := s.invoices.WithDB(tx)
		allocations, err := repo.Allocations(ctx, note.ID)
		if err != nil {
			return err
		}
		affected := make([]string, 0, len(allocations))
		for _, a := range allocations {
			inv, err := invoices.Header(ctx, in.CompanyID, a.InvoiceID)
			if err != nil {
				return fmt.Errorf("load invoice %s: %w", a.InvoiceID, err)
			}
			inv.CreditedAmount = inv.CreditedAmount.Sub(a.AllocatedAmount)
			inv.Settle()
			if err := invoices.UpdateSettlement(ctx, inv); err != nil {
				return err
			}
			if err := repo.DeleteAllocation(ctx, a.ID); err != nil {
				return err
			}
			affected = append(affected, inv.ID)
		}
		if err := repo.DeleteItems(ctx, note.Items); err != nil {
			return err
		}
		if err := repo.Delete(ctx, note.ID); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, shared.AuditLog{
			CompanyID: in.CompanyID,
			ActorID:   actor,
			Action:    "credit_note.delete",
			Entity:    "credit_note",
			EntityID:  note.ID,
			Meta: map[string]any{
				"customer_id":        note.CustomerID,
				"credit_note_number": note.Number,
				"total_amount":       note.TotalAmount.StringFixed(2),
				"applied_amount":     note.AppliedAmount.StringFixed(2),
				"items_count":        len(note.Items),
				"affected_invoices":  affected,
				"inventory_reversed": reversed,
			},
		})
	})
	if err != nil {
		if reversed {
			warnings.Merge(s.restock(context.WithoutCancel(ctx), note))
		}
		return nil, err
	}
	return warnings, nil
}

func (s *Service) authorize(ctx context.Context) (string, error) {
	userID, ok := s.users.UserID(ctx)
	if !ok {
		return "", shared.ErrPermissionDenied
	}
	if s.authz == nil {
		return "", fmt.Errorf("%w: no authorizer configured", shared.ErrPermissionDenied)
	}
	allowed, err := s.authz.HasPermission(ctx, userID, shared.PermDeleteCreditNote)
	if err != nil {
		return "", fmt.Errorf("check permission: %w", err)
	}
	if !allowed {
		return "", fmt.Errorf("%w: %s", shared.ErrPermissionDenied, shared.PermDeleteCreditNote)
	}
	return userID, nil
}
