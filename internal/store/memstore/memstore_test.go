package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-billing/internal/store"
)

func TestCRUD(t *testing.T) {
	ctx := context.Background()
	s := New()

	id, err := s.Insert(ctx, "documents", store.Record{"company_id": "c1", "status": "draft"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	rows, err := s.Select(ctx, "documents", store.Filter{"company_id": "c1"})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	require.NoError(t, s.Update(ctx, "documents", id, store.Record{"status": "sent"}))
	rec, err := s.SelectOne(ctx, "documents", id)
	require.NoError(t, err)
	require.Equal(t, "sent", rec["status"])

	require.NoError(t, s.Delete(ctx, "documents", id))
	_, err = s.SelectOne(ctx, "documents", id)
	require.True(t, store.IsNotFound(err))
}

func TestNilFilterMatchesMissingColumn(t *testing.T) {
	ctx := context.Background()
	s := New()
	var none *string
	_, err := s.Insert(ctx, "documents", store.Record{"source_document_id": none})
	require.NoError(t, err)

	rows, err := s.Select(ctx, "documents", store.Filter{"source_document_id": nil})
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestWithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(db store.Database) error {
		_, err := db.Insert(ctx, "documents", store.Record{"status": "draft"})
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Empty(t, s.Rows("documents"))
}

func TestFailInjection(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.Fail("insert", "documents", &store.Error{Kind: store.KindForeignKeyViolation, Column: "created_by"}, 1)

	_, err := s.Insert(ctx, "documents", store.Record{})
	col, ok := store.ForeignKeyColumn(err)
	require.True(t, ok)
	require.Equal(t, "created_by", col)

	_, err = s.Insert(ctx, "documents", store.Record{})
	require.NoError(t, err)
}

func TestNextDocumentSequenceIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := New()
	params := store.Record{"company_id": "c1", "document_type": "invoice", "year": 2024}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		values []any
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := s.RPC(ctx, "next_document_sequence", params)
			if err != nil {
				return
			}
			mu.Lock()
			values = append(values, v)
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, values, 50)
	seen := make(map[any]bool, len(values))
	for _, v := range values {
		require.False(t, seen[v], "duplicate sequence %v", v)
		seen[v] = true
	}
}

func TestAdjustProductStock(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.Seed("products", store.Record{"id": "p1", "company_id": "c1", "stock_quantity": decimal.NewFromInt(10)})

	v, err := s.RPC(ctx, "adjust_product_stock", store.Record{"company_id": "c1", "product_id": "p1", "delta": decimal.NewFromInt(-3)})
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(7).Equal(v.(decimal.Decimal)))

	_, err = s.RPC(ctx, "adjust_product_stock", store.Record{"company_id": "c2", "product_id": "p1", "delta": decimal.NewFromInt(1)})
	require.True(t, store.IsNotFound(err))
}
