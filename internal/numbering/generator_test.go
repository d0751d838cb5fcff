package numbering

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-billing/internal/store/memstore"
)

func fixedClock() time.Time {
	return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
}

func TestGenerateSequential(t *testing.T) {
	ctx := context.Background()
	gen := NewGenerator(memstore.New()).WithClock(fixedClock)

	first, err := gen.Generate(ctx, "c1", "invoice")
	require.NoError(t, err)
	require.Equal(t, "INV-2024-0001", first)

	second, err := gen.Generate(ctx, "c1", "invoice")
	require.NoError(t, err)
	require.Equal(t, "INV-2024-0002", second)

	other, err := gen.Generate(ctx, "c2", "invoice")
	require.NoError(t, err)
	require.Equal(t, "INV-2024-0001", other)

	quote, err := gen.Generate(ctx, "c1", "quotation")
	require.NoError(t, err)
	require.Equal(t, "QUO-2024-0001", quote)
}

func TestGenerateRejectsUnknownType(t *testing.T) {
	_, err := NewGenerator(memstore.New()).Generate(context.Background(), "c1", "memo")
	require.Error(t, err)
}

func TestGenerateUniqueUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	gen := NewGenerator(memstore.New()).WithClock(fixedClock)

	const n = 64
	var (
		mu      sync.Mutex
		numbers = make(map[string]struct{}, n)
	)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			num, err := gen.Generate(gctx, "c1", "invoice")
			if err != nil {
				return err
			}
			mu.Lock()
			numbers[num] = struct{}{}
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Len(t, numbers, n)
}

func TestFormat(t *testing.T) {
	require.Equal(t, "CN-2025-12345", Format("CN", 2025, 12345))
}
