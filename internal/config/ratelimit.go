package config

import "time"

// RateLimitConfig controls the token bucket in front of /v1/auth. It is
// parsed together with Config by Load.
type RateLimitConfig struct {
    Enabled        bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
    Capacity       int           `env:"RATE_LIMIT_CAPACITY" envDefault:"20"`
    RefillTokens   int           `env:"RATE_LIMIT_REFILL_TOKENS" envDefault:"1"`
    RefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL" envDefault:"3s"`
    TTL            time.Duration `env:"RATE_LIMIT_TTL" envDefault:"10m"`
    KeyStrategy    string        `env:"RATE_LIMIT_KEY_STRATEGY" envDefault:"ip_route"`
    Prefix         string        `env:"RATE_LIMIT_PREFIX" envDefault:"rl"`
    Debug          bool          `env:"RATE_LIMIT_DEBUG" envDefault:"false"`
}

// normalize clamps values that would break the bucket arithmetic.
func (r *RateLimitConfig) normalize() {
    if r.Capacity < 1 {
        r.Capacity = 1
    }
    if r.RefillTokens < 1 {
        r.RefillTokens = 1
    }
    if r.RefillInterval <= 0 {
        r.RefillInterval = time.Second
    }
    if minTTL := 5 * r.RefillInterval; r.TTL < minTTL {
        r.TTL = minTTL
    }
}
