package documents

import (
	"context"
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-billing/internal/money"
	"github.com/odyssey-erp/odyssey-billing/internal/pricing"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
	"github.com/odyssey-erp/odyssey-billing/internal/store"
)

// Overrides adjust a conversion, typically from an edited preview.
type Overrides struct {
	Items        []pricing.LineItem
	Totals       *pricing.Totals
	DocumentDate *time.Time
	ValidUntil   *time.Time
	Notes        *string
}

// ConvertInput names the source and destination of a conversion.
type ConvertInput struct {
	CompanyID  string
	SourceID   string
	SourceType DocumentType
	DestType   DocumentType
	Overrides  *Overrides
}

// Convert produces a destination document from a source document.
//
// The destination header and items are written in one transaction. Stock
// movements and the source status update run afterwards and only ever add
// warnings; they never undo the destination.
func (s *Service) Convert(ctx context.Context, in ConvertInput) (result *Result, err error) {
	var warnings shared.Warnings
	ctx, cancel := s.hooks.Bound(ctx)
	defer cancel()
	defer func() {
		err = s.hooks.Finish(ctx, "documents.convert", in.CompanyID, err, warnings)
		if result != nil {
			result.Warnings = warnings
		}
	}()

	if !CanConvert(in.SourceType, in.DestType) {
		return nil, shared.Validation("dest_type", "cannot convert %s to %s", in.SourceType, in.DestType)
	}
	source, err := s.repo.Get(ctx, in.CompanyID, in.SourceID)
	if err != nil {
		return nil, err
	}
	if source.Type != in.SourceType {
		return nil, shared.Validation("source_type", "document %s is a %s, not a %s", source.ID, source.Type, in.SourceType)
	}
	if !CanTransition(source.Type, source.Status, StatusConverted) {
		return nil, shared.InvalidState("%s %s is %s and cannot be converted", source.Type, source.Number, source.Status)
	}

	overrides := in.Overrides
	if overrides == nil {
		overrides = &Overrides{}
	}
	effective := overrides.Items
	if len(effective) == 0 {
		effective = make([]pricing.LineItem, len(source.Items))
		for i, item := range source.Items {
			effective[i] = item.Clone()
		}
	} else {
		for i := range effective {
			effective[i] = effective[i].Clone()
		}
	}
	items, totals, err := pricing.Recalculate(effective)
	if err != nil {
		return nil, err
	}
	if overrides.Totals != nil && !totalsMatch(*overrides.Totals, totals) {
		warnings.Addf("totals_override", fmt.Sprintf(
			"supplied totals %s/%s/%s differ from computed %s/%s/%s; computed totals kept",
			overrides.Totals.Subtotal, overrides.Totals.TaxAmount, overrides.Totals.TotalAmount,
			totals.Subtotal, totals.TaxAmount, totals.TotalAmount))
	}

	number, err := s.numbers.Generate(ctx, in.CompanyID, string(in.DestType))
	if err != nil {
		return nil, fmt.Errorf("generate document number: %w", err)
	}
	sourceType := source.Type
	sourceID := source.ID
	dest := &Document{
		CompanyID:          in.CompanyID,
		CustomerID:         source.CustomerID,
		Type:               in.DestType,
		Number:             number,
		DocumentDate:       s.now(),
		ValidUntil:         overrides.ValidUntil,
		Status:             InitialStatus(in.DestType),
		Notes:              source.Notes,
		SourceDocumentID:   &sourceID,
		SourceDocumentType: &sourceType,
		CreatedBy:          s.currentUser(ctx),
		CreatedAt:          s.now(),
		Items:              items,
	}
	if overrides.DocumentDate != nil {
		dest.DocumentDate = *overrides.DocumentDate
	}
	if overrides.Notes != nil {
		dest.Notes = *overrides.Notes
	}
	dest.ApplyTotals(totals)

	err = s.db.WithTx(ctx, func(tx store.Database) error {
		repo := s.repo.WithDB(tx)
		// refuses a source whose conversion was marked since the first read. The
		// mark is written after commit, so two conversions still in flight are not
		// serialised here.
		current, err := repo.Header(ctx, in.CompanyID, source.ID)
		if err != nil {
			return err
		}
		if !CanTransition(current.Type, current.Status, StatusConverted) {
			return shared.InvalidState("%s %s is %s and cannot be converted", current.Type, current.Number, current.Status)
		}
		if err := repo.Insert(ctx, dest); err != nil {
			return err
		}
		return repo.InsertItems(ctx, dest)
	})
	if err != nil {
		return nil, err
	}

	if dest.Type.AffectsInventory() {
		warnings.Merge(s.takeStock(ctx, dest))
	}
	if err := s.repo.UpdateStatus(ctx, source.ID, StatusConverted); err != nil {
		s.hooks.Logger.Warn("mark source converted",
			"source_id", source.ID, "destination_id", dest.ID, "error", err)
		warnings.Add("source_status", err)
	}
	return &Result{Document: dest}, nil
}

func totalsMatch(a, b pricing.Totals) bool {
	return money.Equal(a.Subtotal, b.Subtotal) &&
		money.Equal(a.TaxAmount, b.TaxAmount) &&
		money.Equal(a.TotalAmount, b.TotalAmount)
}
