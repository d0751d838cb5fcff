package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-billing/internal/shared"
	"github.com/odyssey-erp/odyssey-billing/internal/store"
	"github.com/odyssey-erp/odyssey-billing/internal/store/memstore"
)

type memoryResyncer struct {
	mu       sync.Mutex
	products []string
}

func (r *memoryResyncer) EnqueueStockResync(_ context.Context, _, productID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products = append(r.products, productID)
	return nil
}

func newLedger(t *testing.T) (*Ledger, *memstore.Store) {
	t.Helper()
	db := memstore.New()
	db.Seed("products",
		store.Record{"id": "p1", "company_id": "c1", "stock_quantity": decimal.NewFromInt(10)},
		store.Record{"id": "p2", "company_id": "c1", "stock_quantity": decimal.Zero},
	)
	return NewLedger(db, NewDatabaseProducts(db), nil), db
}

func stockOf(t *testing.T, db *memstore.Store, productID string) decimal.Decimal {
	t.Helper()
	rec, err := db.SelectOne(context.Background(), "products", productID)
	require.NoError(t, err)
	return rec["stock_quantity"].(decimal.Decimal)
}

func TestRecordAdjustsProjection(t *testing.T) {
	ledger, db := newLedger(t)
	ctx := context.Background()
	ref := uuid.NewString()

	m, warnings, err := ledger.Record(ctx, MovementInput{
		CompanyID: "c1", ProductID: "p1", Type: MovementOut, Quantity: decimal.NewFromInt(4),
		ReferenceType: RefInvoice, ReferenceID: ref,
	})
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.NotEmpty(t, m.ID)
	require.True(t, decimal.NewFromInt(6).Equal(stockOf(t, db, "p1")))
}

func TestRecordRejectsInvalidQuantity(t *testing.T) {
	ledger, _ := newLedger(t)
	for _, qty := range []string{"0", "-1"} {
		_, _, err := ledger.Record(context.Background(), MovementInput{
			CompanyID: "c1", ProductID: "p1", Type: MovementIn, Quantity: decimal.RequireFromString(qty),
			ReferenceType: RefRestock, ReferenceID: uuid.NewString(),
		})
		require.ErrorIs(t, err, ErrInvalidQuantity)
		require.ErrorIs(t, err, shared.ErrValidation)
	}
}

func TestProjectionFailureIsWarning(t *testing.T) {
	ledger, db := newLedger(t)
	resync := &memoryResyncer{}
	ledger.SetResyncer(resync)
	db.Fail("rpc", "adjust_product_stock", errors.New("connection reset"), 1)

	m, warnings, err := ledger.Record(context.Background(), MovementInput{
		CompanyID: "c1", ProductID: "p1", Type: MovementIn, Quantity: decimal.NewFromInt(2),
		ReferenceType: RefRestock, ReferenceID: uuid.NewString(),
	})
	require.NoError(t, err)
	require.NotEmpty(t, m.ID)
	require.Len(t, warnings, 1)
	require.Equal(t, "product_stock", warnings[0].Step)
	require.Equal(t, []string{"p1"}, resync.products)
	require.Len(t, db.Rows("stock_movements"), 1)

	qty, err := ledger.Resync(context.Background(), "c1", "p1")
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(2).Equal(qty))
	require.True(t, decimal.NewFromInt(2).Equal(stockOf(t, db, "p1")))
}

func TestReverseNetsToZero(t *testing.T) {
	ledger, _ := newLedger(t)
	ctx := context.Background()
	ref := uuid.NewString()

	inputs := []MovementInput{
		{ProductID: "p1", Type: MovementOut, Quantity: decimal.NewFromInt(3)},
		{ProductID: "p2", Type: MovementOut, Quantity: decimal.RequireFromString("1.5")},
		{ProductID: "p1", Type: MovementIn, Quantity: decimal.NewFromInt(1)},
	}
	for _, in := range inputs {
		in.CompanyID, in.ReferenceType, in.ReferenceID = "c1", RefInvoice, ref
		_, _, err := ledger.Record(ctx, in)
		require.NoError(t, err)
	}

	reversals, _, err := ledger.Reverse(ctx, "c1", RefInvoice, ref)
	require.NoError(t, err)
	require.Len(t, reversals, 3)
	for _, m := range reversals {
		require.Equal(t, "INVOICE_REVERSAL", m.ReferenceType)
		require.Equal(t, ref, m.ReferenceID)
	}

	again, _, err := ledger.Reverse(ctx, "c1", RefInvoice, ref)
	require.NoError(t, err)
	require.Empty(t, again)

	originals, err := ledger.ListByReference(ctx, "c1", RefInvoice, ref)
	require.NoError(t, err)
	compensations, err := ledger.ListByReference(ctx, "c1", ReversalOf(RefInvoice), ref)
	require.NoError(t, err)

	net := decimal.Zero
	for _, m := range append(originals, compensations...) {
		net = net.Add(m.Signed())
	}
	require.True(t, net.IsZero(), "net %s", net)
}

func TestReverseWithoutMovementsIsNoop(t *testing.T) {
	ledger, db := newLedger(t)
	out, warnings, err := ledger.Reverse(context.Background(), "c1", RefCreditNote, uuid.NewString())
	require.NoError(t, err)
	require.Empty(t, out)
	require.Empty(t, warnings)
	require.Empty(t, db.Rows("stock_movements"))
}

func TestReverseIsCompanyScoped(t *testing.T) {
	ledger, _ := newLedger(t)
	ctx := context.Background()
	ref := uuid.NewString()
	_, _, err := ledger.Record(ctx, MovementInput{
		CompanyID: "c1", ProductID: "p1", Type: MovementOut, Quantity: decimal.NewFromInt(1),
		ReferenceType: RefInvoice, ReferenceID: ref,
	})
	require.NoError(t, err)

	out, _, err := ledger.Reverse(ctx, "c2", RefInvoice, ref)
	require.NoError(t, err)
	require.Empty(t, out)
}
