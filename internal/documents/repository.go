package documents

import (
	"context"
	"fmt"
	"sort"

	"github.com/odyssey-erp/odyssey-billing/internal/pricing"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
	"github.com/odyssey-erp/odyssey-billing/internal/store"
)

const (
	documentsTable = "documents"
	itemsTable     = "document_items"
)

// Repository persists documents and their line items.
type Repository struct {
	db store.Database
}

// NewRepository constructs Repository.
func NewRepository(db store.Database) *Repository {
	return &Repository{db: db}
}

// WithDB returns a repository bound to db, typically an open transaction.
func (r *Repository) WithDB(db store.Database) *Repository {
	return &Repository{db: db}
}

// Get loads a document of the company together with its items.
func (r *Repository) Get(ctx context.Context, companyID, id string) (*Document, error) {
	doc, err := r.Header(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	items, err := r.Items(ctx, id)
	if err != nil {
		return nil, err
	}
	doc.Items = items
	return doc, nil
}

// Header loads a document without its items.
func (r *Repository) Header(ctx context.Context, companyID, id string) (*Document, error) {
	rec, err := r.db.SelectOne(ctx, documentsTable, id)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, shared.NotFound("document", id)
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	var doc Document
	if err := store.Decode(rec, &doc); err != nil {
		return nil, err
	}
	if doc.CompanyID != companyID {
		return nil, shared.NotFound("document", id)
	}
	return &doc, nil
}

// Items returns the items of a document ordered by position.
func (r *Repository) Items(ctx context.Context, documentID string) ([]pricing.LineItem, error) {
	recs, err := r.db.Select(ctx, itemsTable, store.Filter{"document_id": documentID})
	if err != nil {
		return nil, fmt.Errorf("list document items: %w", err)
	}
	items, err := store.DecodeAll[pricing.LineItem](recs)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Position < items[j].Position })
	return items, nil
}

// List returns documents matching filter within the company.
func (r *Repository) List(ctx context.Context, companyID string, filter store.Filter) ([]Document, error) {
	f := store.Filter{}
	for k, v := range filter {
		f[k] = v
	}
	if companyID != "" {
		f["company_id"] = companyID
	}
	recs, err := r.db.Select(ctx, documentsTable, f)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return store.DecodeAll[Document](recs)
}

// Insert stores the document header and sets its id.
func (r *Repository) Insert(ctx context.Context, doc *Document) error {
	rec := store.Record{
		"company_id":      doc.CompanyID,
		"customer_id":     doc.CustomerID,
		"document_type":   string(doc.Type),
		"document_number": doc.Number,
		"document_date":   doc.DocumentDate,
		"valid_until":     doc.ValidUntil,
		"status":          string(doc.Status),
		"subtotal":        doc.Subtotal,
		"tax_amount":      doc.TaxAmount,
		"total_amount":    doc.TotalAmount,
		"paid_amount":     doc.PaidAmount,
		"credited_amount": doc.CreditedAmount,
		"balance_due":     doc.BalanceDue,
		"notes":           doc.Notes,
		"created_at":      doc.CreatedAt,
		"created_by":      nil,
	}
	if doc.CreatedBy != nil {
		rec["created_by"] = *doc.CreatedBy
	}
	if doc.SourceDocumentID != nil {
		rec["source_document_id"] = *doc.SourceDocumentID
	}
	if doc.SourceDocumentType != nil {
		rec["source_document_type"] = string(*doc.SourceDocumentType)
	}
	id, err := shared.InsertCreated(ctx, r.db, documentsTable, rec)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	doc.ID = id
	return nil
}

// InsertItems stores the document items and sets their ids.
func (r *Repository) InsertItems(ctx context.Context, doc *Document) error {
	for i := range doc.Items {
		id, err := r.db.Insert(ctx, itemsTable, ItemRecord(doc.CompanyID, "document_id", doc.ID, doc.Items[i]))
		if err != nil {
			return fmt.Errorf("insert document item %d: %w", i+1, err)
		}
		doc.Items[i].ID = id
	}
	return nil
}

// ItemRecord renders a line item as a row owned by parentColumn.
func ItemRecord(companyID, parentColumn, parentID string, item pricing.LineItem) store.Record {
	rec := store.Record{
		"company_id":     companyID,
		parentColumn:     parentID,
		"product_id":     nil,
		"description":    item.Description,
		"quantity":       item.Quantity,
		"unit_price":     item.UnitPrice,
		"discount_mode":  string(item.Mode),
		"discount_value": item.Value,
		"tax_percentage": item.TaxPercentage,
		"tax_inclusive":  item.TaxInclusive,
		"position":       item.Position,
		"subtotal":       item.Subtotal,
		"tax_amount":     item.TaxAmount,
		"line_total":     item.LineTotal,
	}
	if item.HasProduct() {
		rec["product_id"] = *item.ProductID
	}
	return rec
}

// UpdateStatus sets the status column.
func (r *Repository) UpdateStatus(ctx context.Context, id string, status Status) error {
	if err := r.db.Update(ctx, documentsTable, id, store.Record{"status": string(status)}); err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	return nil
}

// UpdateSettlement persists the paid, credited and balance figures and the derived status.
func (r *Repository) UpdateSettlement(ctx context.Context, doc *Document) error {
	err := r.db.Update(ctx, documentsTable, doc.ID, store.Record{
		"paid_amount":     doc.PaidAmount,
		"credited_amount": doc.CreditedAmount,
		"balance_due":     doc.BalanceDue,
		"status":          string(doc.Status),
	})
	if err != nil {
		return fmt.Errorf("update invoice settlement: %w", err)
	}
	return nil
}
