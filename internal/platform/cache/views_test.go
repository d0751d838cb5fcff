package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type view struct {
	Total string `json:"total"`
}

func newViews(t *testing.T) (*Views, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewViews(client, time.Minute), mr
}

func TestFetchJSONCachesUntilInvalidated(t *testing.T) {
	views, _ := newViews(t)
	ctx := context.Background()
	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return view{Total: "282.00"}, nil
	}

	var first, second view
	require.NoError(t, views.FetchJSON(ctx, "c1", "document:1", &first, loader))
	require.NoError(t, views.FetchJSON(ctx, "c1", "document:1", &second, loader))
	require.Equal(t, "282.00", second.Total)
	require.Equal(t, 1, calls)

	// other companies keep their entries
	require.NoError(t, views.FetchJSON(ctx, "c2", "document:1", &second, loader))
	require.Equal(t, 2, calls)
	require.NoError(t, views.Invalidate(ctx, "c1"))
	require.NoError(t, views.FetchJSON(ctx, "c2", "document:1", &second, loader))
	require.Equal(t, 2, calls)

	require.NoError(t, views.FetchJSON(ctx, "c1", "document:1", &second, loader))
	require.Equal(t, 3, calls)
}

func TestFetchJSONDoesNotCacheErrors(t *testing.T) {
	views, _ := newViews(t)
	ctx := context.Background()
	boom := errors.New("boom")

	var out view
	err := views.FetchJSON(ctx, "c1", "x", &out, func(context.Context) (any, error) { return nil, boom })
	require.ErrorIs(t, err, boom)
	require.NoError(t, views.FetchJSON(ctx, "c1", "x", &out, func(context.Context) (any, error) { return view{Total: "1"}, nil }))
	require.Equal(t, "1", out.Total)
}

func TestFetchJSONSharesConcurrentLoads(t *testing.T) {
	views, _ := newViews(t)
	ctx := context.Background()
	var calls atomic.Int32
	release := make(chan struct{})
	loader := func(context.Context) (any, error) {
		calls.Add(1)
		<-release
		return view{Total: "5"}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var out view
			_ = views.FetchJSON(ctx, "c1", "hot", &out, loader)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	require.Equal(t, int32(1), calls.Load())

	var out view
	require.NoError(t, views.FetchJSON(ctx, "c1", "hot", &out, loader))
	require.Equal(t, "5", out.Total)
}

func TestFetchJSONLoadSurvivesCancelledLeader(t *testing.T) {
	views, _ := newViews(t)
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	loader := func(ctx context.Context) (any, error) {
		once.Do(func() { close(started) })
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return view{Total: "7"}, nil
	}

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		var out view
		leaderErr <- views.FetchJSON(leaderCtx, "c1", "shared", &out, loader)
	}()
	<-started

	followerErr := make(chan error, 1)
	var follower view
	go func() {
		followerErr <- views.FetchJSON(context.Background(), "c1", "shared", &follower, loader)
	}()
	time.Sleep(50 * time.Millisecond)

	cancelLeader()
	require.ErrorIs(t, <-leaderErr, context.Canceled)
	close(release)
	require.NoError(t, <-followerErr)
	require.Equal(t, "7", follower.Total)
}

func TestNilClientFallsThrough(t *testing.T) {
	views := NewViews(nil, 0)
	var out view
	require.NoError(t, views.FetchJSON(context.Background(), "c1", "x", &out, func(context.Context) (any, error) {
		return view{Total: "9"}, nil
	}))
	require.Equal(t, "9", out.Total)
	require.NoError(t, views.Invalidate(context.Background(), "c1"))
}

func TestVersionSurvivesExpiry(t *testing.T) {
	views, mr := newViews(t)
	ctx := context.Background()
	ver, err := views.Version(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, int64(1), ver)
	require.NoError(t, views.Invalidate(ctx, "c1"))
	mr.FastForward(time.Hour)
	ver, err = views.Version(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, int64(2), ver)
}
