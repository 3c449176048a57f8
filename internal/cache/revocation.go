// Package cache keeps a Redis-backed view of access-token revocation so the
// verify path can skip the database for recently seen tokens.
package cache

import (
    "context"
    "errors"
    "time"

    "github.com/redis/go-redis/v9"
)

// State is what the cache knows about an access-token digest.
type State int

const (
    Unknown State = iota
    Live
    Revoked
)

// RevocationCache stores two kinds of markers per access-token digest.
// Revoked markers outlive the token they describe; live markers are short
// so a revocation missed by the cache is observed within liveTTL.
type RevocationCache struct {
    rdb     *redis.Client
    prefix  string
    liveTTL time.Duration
}

func NewRevocationCache(rdb *redis.Client, prefix string, liveTTL time.Duration) *RevocationCache {
    if prefix == "" {
        prefix = "filevault"
    }
    return &RevocationCache{rdb: rdb, prefix: prefix, liveTTL: liveTTL}
}

func (c *RevocationCache) revokedKey(hash string) string { return c.prefix + ":revoked:" + hash }
func (c *RevocationCache) liveKey(hash string) string    { return c.prefix + ":live:" + hash }

// Lookup reports the cached state for hash. A revoked marker always wins
// over a live one.
func (c *RevocationCache) Lookup(ctx context.Context, hash string) (State, error) {
    pipe := c.rdb.Pipeline()
    revoked := pipe.Exists(ctx, c.revokedKey(hash))
    live := pipe.Exists(ctx, c.liveKey(hash))
    if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
        return Unknown, err
    }
    if revoked.Val() > 0 {
        return Revoked, nil
    }
    if live.Val() > 0 {
        return Live, nil
    }
    return Unknown, nil
}

// MarkLive records that hash was found unrevoked in the database.
func (c *RevocationCache) MarkLive(ctx context.Context, hash string) error {
    if c.liveTTL <= 0 {
        return nil
    }
    return c.rdb.Set(ctx, c.liveKey(hash), 1, c.liveTTL).Err()
}

// MarkRevoked records each hash as revoked for ttl and drops any live marker.
func (c *RevocationCache) MarkRevoked(ctx context.Context, hashes []string, ttl time.Duration) error {
    if len(hashes) == 0 {
        return nil
    }
    pipe := c.rdb.TxPipeline()
    for _, h := range hashes {
        pipe.Set(ctx, c.revokedKey(h), 1, ttl)
        pipe.Del(ctx, c.liveKey(h))
    }
    _, err := pipe.Exec(ctx)
    return err
}

// ForgetLive drops the live markers of hashes. It is the fallback when
// MarkRevoked fails, so the next lookup goes back to the database.
func (c *RevocationCache) ForgetLive(ctx context.Context, hashes []string) error {
    if len(hashes) == 0 {
        return nil
    }
    keys := make([]string, len(hashes))
    for i, h := range hashes {
        keys[i] = c.liveKey(h)
    }
    return c.rdb.Del(ctx, keys...).Err()
}
