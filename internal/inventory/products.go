package inventory

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-billing/internal/store"
)

// ProductStore maintains the cached stock_quantity projection on products.
type ProductStore interface {
	AdjustStock(ctx context.Context, companyID, productID string, delta decimal.Decimal) error
	SetStock(ctx context.Context, companyID, productID string, quantity decimal.Decimal) error
}

// DatabaseProducts implements ProductStore on the store capability.
type DatabaseProducts struct {
	db store.Database
}

// NewDatabaseProducts constructs DatabaseProducts.
func NewDatabaseProducts(db store.Database) *DatabaseProducts {
	return &DatabaseProducts{db: db}
}

// AdjustStock applies delta with a single server-side increment.
func (p *DatabaseProducts) AdjustStock(ctx context.Context, companyID, productID string, delta decimal.Decimal) error {
	_, err := p.db.RPC(ctx, "adjust_product_stock", store.Record{
		"company_id": companyID,
		"product_id": productID,
		"delta":      delta,
	})
	return err
}

// SetStock overwrites the projection.
func (p *DatabaseProducts) SetStock(ctx context.Context, companyID, productID string, quantity decimal.Decimal) error {
	rec, err := p.db.SelectOne(ctx, "products", productID)
	if err != nil {
		return err
	}
	if owner, _ := rec["company_id"].(string); owner != companyID {
		return &store.Error{Kind: store.KindNotFound, Op: "update", Table: "products"}
	}
	return p.db.Update(ctx, "products", productID, store.Record{"stock_quantity": quantity})
}
