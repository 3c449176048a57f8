package middleware

import (
    "fmt"
    "math"
    "net/http"
    "strconv"
    "strings"
    "sync"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"
    "golang.org/x/time/rate"

    "github.com/iliyamo/filevault/internal/config"
    "github.com/iliyamo/filevault/internal/utils"
)

var limiterScript = redis.NewScript(`
    local key = KEYS[1]
    local now_ms = tonumber(ARGV[1])
    local capacity = tonumber(ARGV[2])
    local refill_tokens = tonumber(ARGV[3])
    local interval_ms = tonumber(ARGV[4])
    local ttl_seconds = tonumber(ARGV[5])

    local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
    local tokens = tonumber(state[1])
    local last_refill = tonumber(state[2])

    if tokens == nil or last_refill == nil then
        tokens = capacity
        last_refill = now_ms
    end

    if interval_ms > 0 and refill_tokens > 0 then
        local elapsed = math.max(0, now_ms - last_refill)
        local intervals = math.floor(elapsed / interval_ms)
        if intervals > 0 then
            tokens = math.min(capacity, tokens + (intervals * refill_tokens))
            last_refill = last_refill + (intervals * interval_ms)
        end
    end

    local allowed = 0
    local retry_after_ms = 0
    if tokens > 0 then
        allowed = 1
        tokens = tokens - 1
    else
        local until_next = interval_ms - (now_ms - last_refill)
        if until_next < 0 then until_next = 0 end
        retry_after_ms = until_next
    end

    redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
    redis.call('EXPIRE', key, ttl_seconds)

    return { allowed, tokens, retry_after_ms }
`)

// RateLimit returns a token-bucket limiter. With a redis client the bucket
// is shared by every replica; without one each process keeps its own
// buckets in memory. Redis errors fail open.
func RateLimit(cfg config.RateLimitConfig, rdb *redis.Client, log *zap.SugaredLogger) echo.MiddlewareFunc {
    if !cfg.Enabled {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    var local *localLimiter
    if rdb == nil {
        local = newLocalLimiter(cfg)
    }

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            key := buildRateKey(cfg, c)

            var (
                allowed   bool
                remaining int64
                retryMs   int64
            )
            if local != nil {
                allowed, remaining, retryMs = local.take(key, time.Now())
            } else {
                var err error
                allowed, remaining, retryMs, err = redisTake(c, rdb, cfg, key)
                if err != nil {
                    if cfg.Debug {
                        log.Warnw("ratelimit: redis error", "key", key, "error", err)
                    }
                    return next(c)
                }
            }

            c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
            c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

            if !allowed {
                secs := int(math.Ceil(float64(retryMs) / 1000.0))
                if secs < 0 {
                    secs = 0
                }
                c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
                if cfg.Debug {
                    log.Infow("ratelimit: blocked", "key", key, "retry_ms", retryMs)
                }
                return utils.Fail(c, http.StatusTooManyRequests, "rate limit exceeded")
            }
            return next(c)
        }
    }
}

func redisTake(c echo.Context, rdb *redis.Client, cfg config.RateLimitConfig, key string) (bool, int64, int64, error) {
    args := []interface{}{
        time.Now().UnixMilli(),
        cfg.Capacity,
        cfg.RefillTokens,
        cfg.RefillInterval.Milliseconds(),
        int64(cfg.TTL / time.Second),
    }
    vals, err := limiterScript.Run(c.Request().Context(), rdb, []string{key}, args...).Result()
    if err != nil {
        return false, 0, 0, err
    }
    arr, ok := vals.([]interface{})
    if !ok || len(arr) != 3 {
        return false, 0, 0, fmt.Errorf("unexpected script result %#v", vals)
    }
    return asInt64(arr[0]) == 1, asInt64(arr[1]), asInt64(arr[2]), nil
}

func asInt64(v interface{}) int64 {
    switch t := v.(type) {
    case int64:
        return t
    case int:
        return int64(t)
    case float64:
        return int64(t)
    case string:
        if n, err := strconv.ParseInt(t, 10, 64); err == nil {
            return n
        }
    }
    return 0
}

func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
    parts := []string{cfg.Prefix}
    ip := c.RealIP()
    if ip == "" {
        ip = "unknown"
    }
    uid := userID(c)
    route := c.Request().Method + " " + c.Path()

    switch strings.ToLower(cfg.KeyStrategy) {
    case "ip":
        parts = append(parts, "ip", ip)
    case "user":
        parts = append(parts, "user", uid)
    case "route":
        parts = append(parts, "route", route)
    case "ip_user":
        parts = append(parts, "ip", ip, "user", uid)
    case "ip_route":
        parts = append(parts, "ip", ip, "route", route)
    case "user_route":
        parts = append(parts, "user", uid, "route", route)
    default:
        parts = append(parts, "ip", ip, "user", uid, "route", route)
    }
    return strings.Join(parts, ":")
}

// localLimiter keeps one rate.Limiter per key and drops idle keys after TTL.
type localLimiter struct {
    mu     sync.Mutex
    m      map[string]*keyLimiter
    limit  rate.Limit
    burst  int
    ttl    time.Duration
    lastGC time.Time
}

type keyLimiter struct {
    lim  *rate.Limiter
    seen time.Time
}

func newLocalLimiter(cfg config.RateLimitConfig) *localLimiter {
    return &localLimiter{
        m:     make(map[string]*keyLimiter),
        limit: rate.Every(cfg.RefillInterval / time.Duration(cfg.RefillTokens)),
        burst: cfg.Capacity,
        ttl:   cfg.TTL,
    }
}

func (l *localLimiter) take(key string, now time.Time) (bool, int64, int64) {
    l.mu.Lock()
    defer l.mu.Unlock()

    if now.Sub(l.lastGC) > l.ttl {
        for k, v := range l.m {
            if now.Sub(v.seen) > l.ttl {
                delete(l.m, k)
            }
        }
        l.lastGC = now
    }
    kl, ok := l.m[key]
    if !ok {
        kl = &keyLimiter{lim: rate.NewLimiter(l.limit, l.burst)}
        l.m[key] = kl
    }
    kl.seen = now

    r := kl.lim.ReserveN(now, 1)
    if delay := r.DelayFrom(now); delay > 0 {
        r.CancelAt(now)
        return false, 0, delay.Milliseconds()
    }
    return true, int64(kl.lim.TokensAt(now)), 0
}
