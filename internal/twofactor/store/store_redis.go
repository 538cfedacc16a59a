package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"credtrust/internal/twofactor/models"
	"credtrust/pkg/platform/sentinel"
)

const keyPrefix = "credtrust:2fa:"

// RedisStore keeps the configuration in a hash and the backup-code digests in
// sets, so consumption is a single SREM.
type RedisStore struct {
	client redis.UniversalClient
	opts   options
}

func NewRedis(client redis.UniversalClient, opts ...Option) *RedisStore {
	return &RedisStore{client: client, opts: buildOptions(opts)}
}

func configKey(issuerID string) string  { return keyPrefix + issuerID }
func backupKey(issuerID string) string  { return keyPrefix + issuerID + ":backup" }
func pendingKey(issuerID string) string { return keyPrefix + issuerID + ":pending_backup" }

func (s *RedisStore) Get(ctx context.Context, issuerID string) (*models.Config, error) {
	var (
		fields  *redis.MapStringStringCmd
		codes   *redis.StringSliceCmd
		pending *redis.StringSliceCmd
	)
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		fields = p.HGetAll(ctx, configKey(issuerID))
		codes = p.SMembers(ctx, backupKey(issuerID))
		pending = p.SMembers(ctx, pendingKey(issuerID))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("load two-factor config: %w", err)
	}

	h := fields.Val()
	if len(h) == 0 {
		return nil, sentinel.ErrNotFound
	}

	cfg := &models.Config{IssuerID: issuerID, Enabled: h["enabled"] == "1"}
	if cfg.Secret, err = s.opts.open(h["secret"]); err != nil {
		return nil, fmt.Errorf("open secret: %w", err)
	}
	if cfg.PendingSecret, err = s.opts.open(h["pending_secret"]); err != nil {
		return nil, fmt.Errorf("open pending secret: %w", err)
	}
	if len(codes.Val()) > 0 {
		cfg.BackupCodes = codes.Val()
	}
	if len(pending.Val()) > 0 {
		cfg.PendingBackupCodes = pending.Val()
	}
	cfg.CreatedAt = parseUnixNano(h["created_at"])
	cfg.UpdatedAt = parseUnixNano(h["updated_at"])
	if at := parseUnixNano(h["enabled_at"]); !at.IsZero() {
		cfg.EnabledAt = &at
	}
	return cfg, nil
}

func (s *RedisStore) Save(ctx context.Context, cfg *models.Config) error {
	secret, err := s.opts.seal(cfg.Secret)
	if err != nil {
		return fmt.Errorf("seal secret: %w", err)
	}
	pending, err := s.opts.seal(cfg.PendingSecret)
	if err != nil {
		return fmt.Errorf("seal pending secret: %w", err)
	}

	enabled := "0"
	if cfg.Enabled {
		enabled = "1"
	}
	enabledAt := ""
	if cfg.EnabledAt != nil {
		enabledAt = formatUnixNano(*cfg.EnabledAt)
	}

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, configKey(cfg.IssuerID),
			"secret", secret,
			"enabled", enabled,
			"pending_secret", pending,
			"created_at", formatUnixNano(cfg.CreatedAt),
			"enabled_at", enabledAt,
			"updated_at", formatUnixNano(cfg.UpdatedAt),
		)
		p.Del(ctx, backupKey(cfg.IssuerID), pendingKey(cfg.IssuerID))
		if len(cfg.BackupCodes) > 0 {
			p.SAdd(ctx, backupKey(cfg.IssuerID), toAny(cfg.BackupCodes)...)
		}
		if len(cfg.PendingBackupCodes) > 0 {
			p.SAdd(ctx, pendingKey(cfg.IssuerID), toAny(cfg.PendingBackupCodes)...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save two-factor config: %w", err)
	}
	return nil
}

func (s *RedisStore) ConsumeBackupCode(ctx context.Context, issuerID, digest string) (bool, error) {
	removed, err := s.client.SRem(ctx, backupKey(issuerID), digest).Result()
	if err != nil {
		return false, fmt.Errorf("consume backup code: %w", err)
	}
	return removed == 1, nil
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func formatUnixNano(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return strconv.FormatInt(t.UnixNano(), 10)
}

func parseUnixNano(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
