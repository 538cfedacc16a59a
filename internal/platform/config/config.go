package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage backends.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Two-factor backends.
const (
	TwoFactorBackendStore = "store"
	TwoFactorBackendRedis = "redis"
)

const (
	devAPIKey        = "dev-api-key-change-in-production"
	devEncryptionKey = "dev-twofa-key-change-in-production"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr        string
	Environment string
	APIKeys     []string
	LogLevel    string
	IssuerID    string

	Storage      Storage
	Redis        RedisConfig
	TwoFactor    TwoFactor
	Signer       Signer
	ContentStore ContentStore
	Kafka        Kafka
}

// Storage selects and configures the credential / 2FA persistence backend.
type Storage struct {
	Backend     string
	SQLitePath  string
	DatabaseURL string
}

// RedisConfig configures the optional Redis connection.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// TwoFactor configures the revocation second factor.
type TwoFactor struct {
	Backend                    string
	Issuer                     string
	EncryptionKey              string
	BackupCodeCount            int
	AllowUnprotectedRevocation bool
}

// Signer configures the external credential signer/verifier.
type Signer struct {
	URL      string
	Timeout  time.Duration
	LocalKey string
}

// ContentStore configures the IPFS-style blob gateway.
type ContentStore struct {
	URL     string
	Timeout time.Duration
}

// Kafka configures lifecycle event publishing.
type Kafka struct {
	Brokers string
	Topic   string
}

// IsProduction reports whether the service runs with production safeguards.
func (s Server) IsProduction() bool {
	return s.Environment == "production"
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	return Server{
		Addr:        getEnv("CREDTRUST_ADDR", ":8080"),
		Environment: getEnv("CREDTRUST_ENV", "development"),
		APIKeys:     splitList(getEnv("API_KEY", devAPIKey)),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		IssuerID:    getEnv("ISSUER_ID", "did:example:credtrust-issuer"),
		Storage: Storage{
			Backend:     strings.ToLower(getEnv("STORAGE_BACKEND", StorageSQLite)),
			SQLitePath:  getEnv("SQLITE_PATH", "credtrust.db"),
			DatabaseURL: os.Getenv("DATABASE_URL"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		TwoFactor: TwoFactor{
			Backend:                    strings.ToLower(getEnv("TWOFA_BACKEND", TwoFactorBackendStore)),
			Issuer:                     getEnv("TWOFA_ISSUER", "CredTrust"),
			EncryptionKey:              getEnv("TWOFA_ENCRYPTION_KEY", devEncryptionKey),
			BackupCodeCount:            getInt("TWOFA_BACKUP_CODE_COUNT", 10),
			AllowUnprotectedRevocation: getBool("ALLOW_UNPROTECTED_REVOCATION", true),
		},
		Signer: Signer{
			URL:      os.Getenv("SIGNER_URL"),
			Timeout:  getDuration("SIGNER_TIMEOUT", 10*time.Second),
			LocalKey: os.Getenv("LOCAL_SIGNER_KEY"),
		},
		ContentStore: ContentStore{
			URL:     os.Getenv("CONTENT_STORE_URL"),
			Timeout: getDuration("CONTENT_STORE_TIMEOUT", 5*time.Second),
		},
		Kafka: Kafka{
			Brokers: os.Getenv("KAFKA_BROKERS"),
			Topic:   getEnv("KAFKA_TOPIC", "credtrust.lifecycle"),
		},
	}
}

// Validate rejects combinations the service cannot start with.
func (s Server) Validate() error {
	switch s.Storage.Backend {
	case StorageMemory, StorageSQLite:
	case StoragePostgres:
		if s.Storage.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", s.Storage.Backend)
	}

	switch s.TwoFactor.Backend {
	case TwoFactorBackendStore:
	case TwoFactorBackendRedis:
		if s.Redis.URL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis 2FA backend")
		}
	default:
		return fmt.Errorf("unknown TWOFA_BACKEND %q", s.TwoFactor.Backend)
	}

	if strings.TrimSpace(s.IssuerID) == "" {
		return fmt.Errorf("ISSUER_ID must not be empty")
	}
	if len(s.APIKeys) == 0 {
		return fmt.Errorf("API_KEY must not be empty")
	}
	if s.TwoFactor.BackupCodeCount <= 0 {
		return fmt.Errorf("TWOFA_BACKUP_CODE_COUNT must be positive")
	}

	if s.IsProduction() {
		for _, k := range s.APIKeys {
			if k == devAPIKey {
				return fmt.Errorf("API_KEY must be set in production")
			}
		}
		if s.TwoFactor.EncryptionKey == devEncryptionKey {
			return fmt.Errorf("TWOFA_ENCRYPTION_KEY must be set in production")
		}
		if s.Signer.URL == "" {
			return fmt.Errorf("SIGNER_URL is required in production")
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
