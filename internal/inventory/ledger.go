package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-billing/internal/pricing"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
	"github.com/odyssey-erp/odyssey-billing/internal/store"
)

// Resyncer schedules a rebuild of a product's cached stock quantity.
type Resyncer interface {
	EnqueueStockResync(ctx context.Context, companyID, productID string) error
}

// Ledger records stock movements and keeps the product projection in step.
// Movements are authoritative; the projection is best-effort.
type Ledger struct {
	repo     *Repository
	products ProductStore
	resync   Resyncer
	logger   *slog.Logger
	now      func() time.Time
}

// NewLedger builds Ledger.
func NewLedger(db store.Database, products ProductStore, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		repo:     NewRepository(db),
		products: products,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetResyncer wires the background resync queue.
func (l *Ledger) SetResyncer(r Resyncer) {
	l.resync = r
}

// Record appends one movement and adjusts the cached product quantity.
func (l *Ledger) Record(ctx context.Context, in MovementInput) (Movement, shared.Warnings, error) {
	if err := in.validate(); err != nil {
		return Movement{}, nil, err
	}
	if _, err := uuid.Parse(in.ReferenceID); err != nil {
		return Movement{}, nil, shared.Validation("reference_id", "inventory: invalid reference id: %v", err)
	}
	m := Movement{
		CompanyID:     in.CompanyID,
		ProductID:     in.ProductID,
		Type:          in.Type,
		Quantity:      in.Quantity,
		ReferenceType: in.ReferenceType,
		ReferenceID:   in.ReferenceID,
		Notes:         in.Notes,
		CreatedAt:     l.now(),
	}
	if in.CreatedBy != "" {
		createdBy := in.CreatedBy
		m.CreatedBy = &createdBy
	}
	m, err := l.repo.Insert(ctx, m)
	if err != nil {
		return Movement{}, nil, shared.Classify(err)
	}
	return m, l.project(ctx, m), nil
}

func (l *Ledger) project(ctx context.Context, m Movement) shared.Warnings {
	var warnings shared.Warnings
	if l.products == nil {
		return warnings
	}
	if err := l.products.AdjustStock(ctx, m.CompanyID, m.ProductID, m.Signed()); err != nil {
		l.logger.Warn("adjust product stock",
			slog.String("product_id", m.ProductID),
			slog.String("movement_id", m.ID),
			slog.Any("error", err))
		warnings.Add("product_stock", fmt.Errorf("product %s: %w", m.ProductID, err))
		if l.resync != nil {
			if err := l.resync.EnqueueStockResync(ctx, m.CompanyID, m.ProductID); err != nil {
				l.logger.Warn("enqueue stock resync", slog.String("product_id", m.ProductID), slog.Any("error", err))
			}
		}
	}
	return warnings
}

// Reverse emits one compensating movement per original movement of the
// reference. Originals already matched by an identical reversal are skipped,
// so calling Reverse again never double-compensates.
func (l *Ledger) Reverse(ctx context.Context, companyID, referenceType, referenceID string) ([]Movement, shared.Warnings, error) {
	originals, err := l.repo.ListByReference(ctx, companyID, referenceType, referenceID)
	if err != nil {
		return nil, nil, shared.Classify(err)
	}
	if len(originals) == 0 {
		return []Movement{}, nil, nil
	}
	reversalType := ReversalOf(referenceType)
	existing, err := l.repo.ListByReference(ctx, companyID, reversalType, referenceID)
	if err != nil {
		return nil, nil, shared.Classify(err)
	}
	pending := make(map[string]int, len(existing))
	for _, m := range existing {
		pending[pairKey(m.ProductID, m.Type, m.Quantity)]++
	}

	var (
		out      = make([]Movement, 0, len(originals))
		warnings shared.Warnings
	)
	for _, orig := range originals {
		key := pairKey(orig.ProductID, orig.Type.Inverse(), orig.Quantity)
		if pending[key] > 0 {
			pending[key]--
			continue
		}
		createdBy := ""
		if orig.CreatedBy != nil {
			createdBy = *orig.CreatedBy
		}
		m, warns, err := l.Record(ctx, MovementInput{
			CompanyID:     companyID,
			ProductID:     orig.ProductID,
			Type:          orig.Type.Inverse(),
			Quantity:      orig.Quantity,
			ReferenceType: reversalType,
			ReferenceID:   referenceID,
			Notes:         "Reversal of " + orig.ID,
			CreatedBy:     createdBy,
		})
		if err != nil {
			return out, warnings, fmt.Errorf("reverse movement %s: %w", orig.ID, err)
		}
		warnings.Merge(warns)
		out = append(out, m)
	}
	return out, warnings, nil
}

// ListByReference returns the movements of one reference.
func (l *Ledger) ListByReference(ctx context.Context, companyID, referenceType, referenceID string) ([]Movement, error) {
	movements, err := l.repo.ListByReference(ctx, companyID, referenceType, referenceID)
	return movements, shared.Classify(err)
}

// Resync rebuilds a product's cached quantity from the ledger.
func (l *Ledger) Resync(ctx context.Context, companyID, productID string) (decimal.Decimal, error) {
	if l.products == nil {
		return decimal.Zero, fmt.Errorf("inventory: product store not configured")
	}
	movements, err := l.repo.ListByProduct(ctx, companyID, productID)
	if err != nil {
		return decimal.Zero, shared.Classify(err)
	}
	qty := decimal.Zero
	for _, m := range movements {
		qty = qty.Add(m.Signed())
	}
	if err := l.products.SetStock(ctx, companyID, productID, qty); err != nil {
		return decimal.Zero, shared.Classify(fmt.Errorf("set product stock: %w", err))
	}
	return qty, nil
}

func pairKey(productID string, t MovementType, qty decimal.Decimal) string {
	return productID + "|" + string(t) + "|" + qty.String()
}

// Line is one stocked quantity of a document.
type Line struct {
	ProductID string
	Quantity  decimal.Decimal
}

// LinesOf picks the lines of items that reference a product.
func LinesOf(items []pricing.LineItem) []Line {
	lines := make([]Line, 0, len(items))
	for _, item := range items {
		if !item.HasProduct() {
			continue
		}
		lines = append(lines, Line{ProductID: *item.ProductID, Quantity: item.Quantity})
	}
	return lines
}

// LinesInput describes a batch of movements for one reference.
type LinesInput struct {
	CompanyID     string
	Type          MovementType
	ReferenceType string
	ReferenceID   string
	Notes         string
	CreatedBy     string
	Lines         []Line
}

// RecordLines records one movement per line. Failures never abort the batch;
// they come back as warnings so the owning document stands.
func (l *Ledger) RecordLines(ctx context.Context, in LinesInput) shared.Warnings {
	var warnings shared.Warnings
	for _, line := range in.Lines {
		_, warns, err := l.Record(ctx, MovementInput{
			CompanyID:     in.CompanyID,
			ProductID:     line.ProductID,
			Type:          in.Type,
			Quantity:      line.Quantity,
			ReferenceType: in.ReferenceType,
			ReferenceID:   in.ReferenceID,
			Notes:         in.Notes,
			CreatedBy:     in.CreatedBy,
		})
		if err != nil {
			l.logger.Warn("record stock movement",
				slog.String("reference_type", in.ReferenceType),
				slog.String("reference_id", in.ReferenceID),
				slog.String("product_id", line.ProductID),
				slog.Any("error", err))
			warnings.Add("stock_movement", fmt.Errorf("product %s: %w", line.ProductID, err))
			continue
		}
		warnings.Merge(warns)
	}
	return warnings
}
