package shared

import (
	"context"

	"github.com/odyssey-erp/odyssey-billing/internal/store"
)

// CreatedByColumn is the audit column stamped with the current user.
const CreatedByColumn = "created_by"

// NullableID returns nil for an empty id so the column is written as NULL.
func NullableID(id string) any {
	if id == "" {
		return nil
	}
	return id
}

// InsertCreated inserts rec and, when created_by references a user the
// database does not know, retries once with created_by set to NULL.
func InsertCreated(ctx context.Context, db store.Database, table string, rec store.Record) (string, error) {
	id, err := db.Insert(ctx, table, rec)
	if err == nil {
		return id, nil
	}
	col, ok := store.ForeignKeyColumn(err)
	if !ok || col != CreatedByColumn || rec[CreatedByColumn] == nil {
		return "", err
	}
	retry := rec.Clone()
	retry[CreatedByColumn] = nil
	return db.Insert(ctx, table, retry)
}
