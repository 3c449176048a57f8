package config

// Redis backs the revocation cache and the distributed rate limiter. When
// the server cannot be reached at startup the constructor returns nil and
// callers degrade gracefully: no cache, in-process rate limiting.

import (
    "context"
    "crypto/tls"
    "time"

    "github.com/redis/go-redis/v9"
)

// RedisConfig holds the client parameters.
//   REDIS_HOST and REDIS_PORT – hostname and port of the Redis server
//   REDIS_ADDR – host:port shorthand, used when host/port are not both set
//   REDIS_PASSWORD – optional password
//   REDIS_DB – database number
//   REDIS_TLS – enable TLS
//   REDIS_PREFIX – key namespace for the revocation cache
type RedisConfig struct {
    Enabled  bool   `env:"REDIS_ENABLED" envDefault:"true"`
    Host     string `env:"REDIS_HOST"`
    Port     string `env:"REDIS_PORT"`
    Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
    Password string `env:"REDIS_PASSWORD"`
    DB       int    `env:"REDIS_DB" envDefault:"0"`
    TLS      bool   `env:"REDIS_TLS" envDefault:"false"`
    Prefix   string `env:"REDIS_PREFIX" envDefault:"filevault"`
}

// Address resolves the host:port to dial.
func (r RedisConfig) Address() string {
    if r.Host != "" && r.Port != "" {
        return r.Host + ":" + r.Port
    }
    return r.Addr
}

// NewRedisClient connects and pings with a short timeout. It returns nil
// when redis is disabled or unreachable.
func NewRedisClient(cfg RedisConfig) *redis.Client {
    if !cfg.Enabled {
        return nil
    }
    var tlsConf *tls.Config
    if cfg.TLS {
        tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
    }
    client := redis.NewClient(&redis.Options{
        Addr:      cfg.Address(),
        Password:  cfg.Password,
        DB:        cfg.DB,
        TLSConfig: tlsConf,
    })
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    if err := client.Ping(ctx).Err(); err != nil {
        _ = client.Close()
        return nil
    }
    return client
}
