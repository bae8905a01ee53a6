package compare

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pkgredis "github.com/praktis/pricecompare/pkg/redis"
)

// CachedRows is a last-known-good row set.
type CachedRows struct {
	FetchedAt time.Time `json:"fetched_at"`
	Rows      []FlatRow `json:"rows"`
}

// RowCache persists the last successful fetch per fingerprint so a backend
// outage can still be answered, marked as degraded.
type RowCache interface {
	Load(ctx context.Context, fp Fingerprint) (*CachedRows, bool, error)
	Save(ctx context.Context, fp Fingerprint, rows []FlatRow) error
}

type rowStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	RowCacheKey(site, tag string) string
}

// RedisRowCache stores row sets as JSON under pc:rows:<site>[:<tag>].
type RedisRowCache struct {
	store rowStore
	ttl   time.Duration
	now   func() time.Time
}

func NewRedisRowCache(store rowStore, ttl time.Duration) *RedisRowCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisRowCache{store: store, ttl: ttl, now: time.Now}
}

func (c *RedisRowCache) Load(ctx context.Context, fp Fingerprint) (*CachedRows, bool, error) {
	raw, err := c.store.Get(ctx, c.store.RowCacheKey(fp.Site, fp.Tag))
	if err != nil {
		if pkgredis.IsNil(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load cached rows: %w", err)
	}
	var cached CachedRows
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		return nil, false, fmt.Errorf("decode cached rows: %w", err)
	}
	return &cached, true, nil
}

func (c *RedisRowCache) Save(ctx context.Context, fp Fingerprint, rows []FlatRow) error {
	payload, err := json.Marshal(CachedRows{FetchedAt: c.now().UTC(), Rows: rows})
	if err != nil {
		return fmt.Errorf("encode cached rows: %w", err)
	}
	if err := c.store.Set(ctx, c.store.RowCacheKey(fp.Site, fp.Tag), string(payload), c.ttl); err != nil {
		return fmt.Errorf("save cached rows: %w", err)
	}
	return nil
}
