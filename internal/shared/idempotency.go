package shared

import (
	"context"
	"errors"
	"time"

	"github.com/odyssey-erp/odyssey-billing/internal/store"
)

// IdempotencyStore persists processed request keys.
type IdempotencyStore struct {
	db store.Database
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(db store.Database) *IdempotencyStore {
	return &IdempotencyStore{db: db}
}

// ErrIdempotencyConflict indicates a duplicate key.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

// CheckAndInsert claims key for module; the id column carries the key so
// a second claim hits the primary key.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, key, module string) error {
	if s == nil {
		return errors.New("idempotency store not initialised")
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	if module == "" {
		return errors.New("idempotency module required")
	}
	_, err := s.db.Insert(ctx, "idempotency_keys", store.Record{
		"id":         module + ":" + key,
		"module":     module,
		"created_at": time.Now().UTC(),
	})
	if err != nil {
		if store.KindOf(err) == store.KindUniqueViolation {
			return ErrIdempotencyConflict
		}
		return err
	}
	return nil
}

// Delete releases a key, typically after the guarded operation failed.
func (s *IdempotencyStore) Delete(ctx context.Context, key, module string) error {
	if s == nil {
		return nil
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	err := s.db.Delete(ctx, "idempotency_keys", module+":"+key)
	if store.IsNotFound(err) {
		return nil
	}
	return err
}
