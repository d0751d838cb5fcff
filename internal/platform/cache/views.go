package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	viewPrefix  = "billing:views"
	loadTimeout = 10 * time.Second
	// InvalidationChannel carries the company ids whose views were dropped.
	InvalidationChannel = "billing.views.bump"
)

// Views caches read models per company. Every company has a version counter;
// writes bump it so stale entries are never read again and expire by TTL.
type Views struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewViews builds Views. A nil client disables caching.
func NewViews(client *redis.Client, ttl time.Duration) *Views {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Views{client: client, ttl: ttl}
}

func versionKey(companyID string) string {
	return strings.Join([]string{viewPrefix, companyID, "version"}, ":")
}

// Version returns the company's view version, initialising it when missing.
func (v *Views) Version(ctx context.Context, companyID string) (int64, error) {
	if v == nil || v.client == nil {
		return 0, nil
	}
	ver, err := v.client.Get(ctx, versionKey(companyID)).Int64()
	if errors.Is(err, redis.Nil) {
		// SETNX so a concurrent bump is not overwritten
		if err := v.client.SetNX(ctx, versionKey(companyID), 1, 0).Err(); err != nil {
			return 0, err
		}
		return v.client.Get(ctx, versionKey(companyID)).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// Key composes the versioned key of a view.
func (v *Views) Key(ctx context.Context, companyID, name string) (string, error) {
	ver, err := v.Version(ctx, companyID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%s:%s:%d", viewPrefix, companyID, name, ver), nil
}

// FetchJSON decodes the cached view into dest, running loader on a miss.
// Concurrent misses for the same key share one loader call.
func (v *Views) FetchJSON(ctx context.Context, companyID, name string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("cache: loader required")
	}
	if v == nil || v.client == nil {
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		return roundTrip(value, dest)
	}
	key, err := v.Key(ctx, companyID, name)
	if err != nil {
		return err
	}
	payload, err := v.client.Get(ctx, key).Bytes()
	if err == nil {
		return json.Unmarshal(payload, dest)
	}
	if !errors.Is(err, redis.Nil) {
		return err
	}

	// the shared load outlives the caller that started it
	ch := v.group.DoChan(key, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		if err := v.client.Set(ctx, key, raw, v.ttl).Err(); err != nil {
			return nil, err
		}
		return raw, nil
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return res.Err
		}
		return json.Unmarshal(res.Val.([]byte), dest)
	}
}

// Invalidate bumps the company's version and announces it.
func (v *Views) Invalidate(ctx context.Context, companyID string) error {
	if v == nil || v.client == nil {
		return nil
	}
	if err := v.client.Incr(ctx, versionKey(companyID)).Err(); err != nil {
		return fmt.Errorf("bump view version: %w", err)
	}
	return v.client.Publish(ctx, InvalidationChannel, companyID).Err()
}

func roundTrip(value, dest any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}
