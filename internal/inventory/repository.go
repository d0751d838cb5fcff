package inventory

import (
	"context"
	"fmt"
	"sort"

	"github.com/odyssey-erp/odyssey-billing/internal/shared"
	"github.com/odyssey-erp/odyssey-billing/internal/store"
)

const movementsTable = "stock_movements"

// Repository persists movements through the store capability.
type Repository struct {
	db store.Database
}

// NewRepository constructs Repository.
func NewRepository(db store.Database) *Repository {
	return &Repository{db: db}
}

// Insert appends a movement and returns it with its id.
func (r *Repository) Insert(ctx context.Context, m Movement) (Movement, error) {
	var createdBy any
	if m.CreatedBy != nil {
		createdBy = *m.CreatedBy
	}
	id, err := shared.InsertCreated(ctx, r.db, movementsTable, store.Record{
		"company_id":     m.CompanyID,
		"product_id":     m.ProductID,
		"movement_type":  string(m.Type),
		"quantity":       m.Quantity,
		"reference_type": m.ReferenceType,
		"reference_id":   m.ReferenceID,
		"notes":          m.Notes,
		"created_by":     createdBy,
		"created_at":     m.CreatedAt,
	})
	if err != nil {
		return Movement{}, fmt.Errorf("insert stock movement: %w", err)
	}
	m.ID = id
	return m, nil
}

// ListByReference returns movements tagged with referenceType and referenceID.
func (r *Repository) ListByReference(ctx context.Context, companyID, referenceType, referenceID string) ([]Movement, error) {
	return r.list(ctx, store.Filter{
		"company_id":     companyID,
		"reference_type": referenceType,
		"reference_id":   referenceID,
	})
}

// ListByProduct returns every movement of a product.
func (r *Repository) ListByProduct(ctx context.Context, companyID, productID string) ([]Movement, error) {
	return r.list(ctx, store.Filter{"company_id": companyID, "product_id": productID})
}

func (r *Repository) list(ctx context.Context, filter store.Filter) ([]Movement, error) {
	recs, err := r.db.Select(ctx, movementsTable, filter)
	if err != nil {
		return nil, fmt.Errorf("list stock movements: %w", err)
	}
	movements, err := store.DecodeAll[Movement](recs)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(movements, func(i, j int) bool {
		return movements[i].CreatedAt.Before(movements[j].CreatedAt)
	})
	return movements, nil
}
