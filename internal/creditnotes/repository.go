package creditnotes

import (
	"context"
	"fmt"
	"sort"

	"github.com/odyssey-erp/odyssey-billing/internal/documents"
	"github.com/odyssey-erp/odyssey-billing/internal/pricing"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
	"github.com/odyssey-erp/odyssey-billing/internal/store"
)

const (
	notesTable       = "credit_notes"
	itemsTable       = "credit_note_items"
	allocationsTable = "credit_note_allocations"
)

// Repository persists credit notes, their items and allocations.
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

// Get loads a credit note of the company with its items.
func (r *Repository) Get(ctx context.Context, companyID, id string) (*CreditNote, error) {
	rec, err := r.db.SelectOne(ctx, notesTable, id)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, shared.NotFound("credit note", id)
		}
		return nil, fmt.Errorf("get credit note: %w", err)
	}
	var note CreditNote
	if err := store.Decode(rec, &note); err != nil {
		return nil, err
	}
	if note.CompanyID != companyID {
		return nil, shared.NotFound("credit note", id)
	}
	recs, err := r.db.Select(ctx, itemsTable, store.Filter{"credit_note_id": id})
	if err != nil {
		return nil, fmt.Errorf("list credit note items: %w", err)
	}
	items, err := store.DecodeAll[pricing.LineItem](recs)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Position < items[j].Position })
	note.Items = items
	return &note, nil
}

// Insert stores the header and sets its id.
func (r *Repository) Insert(ctx context.Context, note *CreditNote) error {
	rec := store.Record{
		"company_id":         note.CompanyID,
		"customer_id":        note.CustomerID,
		"invoice_id":         ptrValue(note.InvoiceID),
		"receipt_id":         ptrValue(note.ReceiptID),
		"credit_note_number": note.Number,
		"credit_note_date":   note.NoteDate,
		"status":             string(note.Status),
		"reason":             note.Reason,
		"affects_inventory":  note.AffectsInventory,
		"subtotal":           note.Subtotal,
		"tax_amount":         note.TaxAmount,
		"total_amount":       note.TotalAmount,
		"applied_amount":     note.AppliedAmount,
		"balance":            note.Balance,
		"created_by":         ptrValue(note.CreatedBy),
		"created_at":         note.CreatedAt,
	}
	id, err := shared.InsertCreated(ctx, r.db, notesTable, rec)
	if err != nil {
		return fmt.Errorf("insert credit note: %w", err)
	}
	note.ID = id
	return nil
}

// UpdateHeader writes the mutable header fields.
func (r *Repository) UpdateHeader(ctx context.Context, note *CreditNote) error {
	err := r.db.Update(ctx, notesTable, note.ID, store.Record{
		"status":            string(note.Status),
		"reason":            note.Reason,
		"affects_inventory": note.AffectsInventory,
		"subtotal":          note.Subtotal,
		"tax_amount":        note.TaxAmount,
		"total_amount":      note.TotalAmount,
		"applied_amount":    note.AppliedAmount,
		"balance":           note.Balance,
	})
	if err != nil {
		return fmt.Errorf("update credit note: %w", err)
	}
	return nil
}

// InsertItems stores the note's items and sets their ids.
func (r *Repository) InsertItems(ctx context.Context, note *CreditNote) error {
	for i := range note.Items {
		id, err := r.db.Insert(ctx, itemsTable, documents.ItemRecord(note.CompanyID, "credit_note_id", note.ID, note.Items[i]))
		if err != nil {
			return fmt.Errorf("insert credit note item %d: %w", i+1, err)
		}
		note.Items[i].ID = id
	}
	return nil
}

// DeleteItems removes the given items.
func (r *Repository) DeleteItems(ctx context.Context, items []pricing.LineItem) error {
	for _, item := range items {
		if err := r.db.Delete(ctx, itemsTable, item.ID); err != nil {
			return fmt.Errorf("delete credit note item: %w", err)
		}
	}
	return nil
}

// Delete removes the header.
func (r *Repository) Delete(ctx context.Context, id string) error {
	if err := r.db.Delete(ctx, notesTable, id); err != nil {
		return fmt.Errorf("delete credit note: %w", err)
	}
	return nil
}

// Allocations returns the invoice allocations of a note.
func (r *Repository) Allocations(ctx context.Context, noteID string) ([]Allocation, error) {
	recs, err := r.db.Select(ctx, allocationsTable, store.Filter{"credit_note_id": noteID})
	if err != nil {
		return nil, fmt.Errorf("list credit note allocations: %w", err)
	}
	return store.DecodeAll[Allocation](recs)
}

// InsertAllocation stores a and sets its id.
func (r *Repository) InsertAllocation(ctx context.Context, a *Allocation) error {
	id, err := r.db.Insert(ctx, allocationsTable, store.Record{
		"company_id":       a.CompanyID,
		"credit_note_id":   a.CreditNoteID,
		"invoice_id":       a.InvoiceID,
		"allocated_amount": a.AllocatedAmount,
		"created_at":       a.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("insert credit note allocation: %w", err)
	}
	a.ID = id
	return nil
}

// DeleteAllocation removes an allocation.
func (r *Repository) DeleteAllocation(ctx context.Context, id string) error {
	if err := r.db.Delete(ctx, allocationsTable, id); err != nil {
		return fmt.Errorf("delete credit note allocation: %w", err)
	}
	return nil
}

func ptrValue(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}
