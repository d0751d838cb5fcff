package shared

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-billing/internal/store"
	"github.com/odyssey-erp/odyssey-billing/internal/store/memstore"
)

func TestValidationErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("create: %w", Validation("quantity", "must be positive"))
	require.ErrorIs(t, err, ErrValidation)

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	require.Equal(t, "quantity", ve.Field)
}

func TestClassify(t *testing.T) {
	notFound := &store.Error{Kind: store.KindNotFound, Op: "select", Table: "documents"}
	require.ErrorIs(t, Classify(notFound), ErrNotFound)
	require.ErrorIs(t, Classify(context.DeadlineExceeded), ErrTimeout)

	plain := errors.New("boom")
	require.Equal(t, plain, Classify(plain))
	require.NoError(t, Classify(nil))
}

func TestWarnings(t *testing.T) {
	var w Warnings
	w.Add("stock", nil)
	require.Empty(t, w)
	w.Add("stock", errors.New("insert failed"))
	w.Addf("source_status", "update skipped")
	require.Len(t, w, 2)
	require.Equal(t, "stock", w[0].Step)
}

func TestIdempotencyStore(t *testing.T) {
	ctx := context.Background()
	s := NewIdempotencyStore(memstore.New())

	require.NoError(t, s.CheckAndInsert(ctx, "k1", "receipts"))
	require.ErrorIs(t, s.CheckAndInsert(ctx, "k1", "receipts"), ErrIdempotencyConflict)
	require.NoError(t, s.CheckAndInsert(ctx, "k1", "payments"))

	require.NoError(t, s.Delete(ctx, "k1", "receipts"))
	require.NoError(t, s.CheckAndInsert(ctx, "k1", "receipts"))
}

func TestAuditLoggerRequiresEntity(t *testing.T) {
	ctx := context.Background()
	db := memstore.New()
	logger := NewAuditLogger()

	require.Error(t, logger.Record(ctx, db, AuditLog{Action: "credit_note.delete"}))
	require.NoError(t, logger.Record(ctx, db, AuditLog{
		CompanyID: "c1",
		ActorID:   "u1",
		Action:    "credit_note.delete",
		Entity:    "credit_note",
		EntityID:  "cn1",
		Meta:      map[string]any{"items": 2},
	}))
	rows := db.Rows("audit_logs")
	require.Len(t, rows, 1)
	require.JSONEq(t, `{"items":2}`, rows[0]["meta"].(string))
}
