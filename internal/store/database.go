// Package store defines the persistence capability consumed by the billing engines.
//
// Engines never talk to a driver directly. They receive a Database, which may
// be backed by PostgreSQL (pgstore) or by memory (memstore), and which reports
// failures through *Error values carrying an ErrorKind.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

// Record is a single row keyed by column name.
type Record map[string]any

// Filter restricts Select to rows whose columns equal the given values.
type Filter map[string]any

// Database is the table-level capability every engine depends on.
type Database interface {
	Select(ctx context.Context, table string, filter Filter) ([]Record, error)
	// SelectOne returns an *Error of KindNotFound when no row has the id.
	SelectOne(ctx context.Context, table, id string) (Record, error)
	// Insert stores data and returns the row id, generating one when data has none.
	Insert(ctx context.Context, table string, data Record) (string, error)
	Update(ctx context.Context, table, id string, patch Record) error
	Delete(ctx context.Context, table, id string) error
	// RPC invokes a server-side function and returns its scalar result.
	RPC(ctx context.Context, name string, params Record) (any, error)
	// WithTx runs fn against a Database whose writes commit or roll back together.
	WithTx(ctx context.Context, fn func(Database) error) error
}

// Decode copies a record into dst using its json tags.
func Decode(rec Record, dst any) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: encode record: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("store: decode record: %w", err)
	}
	return nil
}

// DecodeAll decodes every record into a new slice of T.
func DecodeAll[T any](recs []Record) ([]T, error) {
	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		var item T
		if err := Decode(rec, &item); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

// Columns returns the record keys in a stable order.
func (r Record) Columns() []string {
	cols := make([]string, 0, len(r))
	for k := range r {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
