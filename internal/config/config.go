package config // package config loads application configuration from the environment

import (
    "errors"
    "fmt"
    "strings"
    "time"

    "github.com/caarlos0/env/v6"
    "github.com/joho/godotenv"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable; an optional .env file is loaded first and never
// overrides variables that are already set.
type Config struct {
    Env       string `env:"APP_ENV" envDefault:"dev"`
    Port      string `env:"APP_PORT" envDefault:"8080"`
    DBUser    string `env:"DB_USER" envDefault:"root"`
    DBPass    string `env:"DB_PASS"`
    DBHost    string `env:"DB_HOST" envDefault:"127.0.0.1"`
    DBPort    string `env:"DB_PORT" envDefault:"3306"`
    DBName    string `env:"DB_NAME" envDefault:"filevault"`
    DBMigrate bool   `env:"DB_MIGRATE" envDefault:"true"`

    JWTSecret      string `env:"JWT_SECRET"`
    AccessTTLMin   int    `env:"ACCESS_TOKEN_TTL_MIN" envDefault:"15"`
    RefreshTTLDays int    `env:"REFRESH_TOKEN_TTL_DAYS" envDefault:"7"`
    BcryptCost     int    `env:"BCRYPT_COST" envDefault:"10"`

    MaxUploadMB    int    `env:"MAX_UPLOAD_MB" envDefault:"25"`
    StorageBackend string `env:"STORAGE_BACKEND" envDefault:"disk"`
    StorageDir     string `env:"STORAGE_DIR" envDefault:"uploads"`
    S3Bucket       string `env:"S3_BUCKET"`
    S3Prefix       string `env:"S3_PREFIX"`
    S3Region       string `env:"S3_REGION"`
    S3Endpoint     string `env:"S3_ENDPOINT"`
    S3PathStyle    bool   `env:"S3_PATH_STYLE" envDefault:"false"`

    RevocationCacheTTL time.Duration `env:"REVOCATION_CACHE_TTL" envDefault:"30s"`
    SweepInterval      time.Duration `env:"SWEEP_INTERVAL" envDefault:"1h"`

    RabbitURL     string `env:"RABBITMQ_URL"`
    AuditConsumer bool   `env:"AUDIT_CONSUMER" envDefault:"false"`

    Redis     RedisConfig
    RateLimit RateLimitConfig
}

// Load reads .env (if present) and the process environment.
func Load() (Config, error) {
    _ = godotenv.Load()
    return Parse()
}

// Parse builds a Config from the current environment only.
func Parse() (Config, error) {
    var cfg Config
    if err := env.Parse(&cfg); err != nil {
        return Config{}, fmt.Errorf("parse env: %w", err)
    }
    cfg.StorageBackend = strings.ToLower(strings.TrimSpace(cfg.StorageBackend))
    cfg.RateLimit.normalize()
    if err := cfg.Validate(); err != nil {
        return Config{}, err
    }
    return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
    var errs []error
    if c.JWTSecret == "" {
        errs = append(errs, errors.New("JWT_SECRET is required"))
    }
    if c.AccessTTLMin <= 0 {
        errs = append(errs, errors.New("ACCESS_TOKEN_TTL_MIN must be positive"))
    }
    if c.RefreshTTLDays <= 0 {
        errs = append(errs, errors.New("REFRESH_TOKEN_TTL_DAYS must be positive"))
    }
    if c.BcryptCost < 4 || c.BcryptCost > 31 {
        errs = append(errs, errors.New("BCRYPT_COST must be between 4 and 31"))
    }
    if c.MaxUploadMB <= 0 {
        errs = append(errs, errors.New("MAX_UPLOAD_MB must be positive"))
    }
    switch c.StorageBackend {
    case "disk":
        if c.StorageDir == "" {
            errs = append(errs, errors.New("STORAGE_DIR is required for the disk backend"))
        }
    case "s3":
        if c.S3Bucket == "" {
            errs = append(errs, errors.New("S3_BUCKET is required for the s3 backend"))
        }
    default:
        errs = append(errs, fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend))
    }
    if c.AuditConsumer && c.RabbitURL == "" {
        errs = append(errs, errors.New("AUDIT_CONSUMER requires RABBITMQ_URL"))
    }
    return errors.Join(errs...)
}

// AccessTTL is the access-token lifetime.
func (c Config) AccessTTL() time.Duration { return time.Duration(c.AccessTTLMin) * time.Minute }

// RefreshTTL is the refresh-token lifetime.
func (c Config) RefreshTTL() time.Duration { return time.Duration(c.RefreshTTLDays) * 24 * time.Hour }

// MaxUploadBytes is the largest accepted file payload.
func (c Config) MaxUploadBytes() int64 { return int64(c.MaxUploadMB) << 20 }
