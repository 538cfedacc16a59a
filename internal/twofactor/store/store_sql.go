package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"credtrust/internal/platform/sqlite"
	"credtrust/internal/twofactor/models"
	"credtrust/pkg/platform/dialect"
	"credtrust/pkg/platform/sentinel"
)

const configColumns = `issuer_id, secret, enabled, backup_codes, pending_secret,
	pending_backup_codes, created_at, enabled_at, updated_at`

// SQLStore persists configurations in SQLite or PostgreSQL. Secrets, pending
// or active, are sealed when a sealer is configured.
type SQLStore struct {
	reader  *sql.DB
	writer  *sql.DB
	dialect dialect.Dialect
	opts    options
}

// NewSQLite constructs a store over the embedded SQLite database.
func NewSQLite(db *sqlite.DB, opts ...Option) *SQLStore {
	return &SQLStore{reader: db.Reader, writer: db.Writer, dialect: dialect.SQLite, opts: buildOptions(opts)}
}

// NewPostgres constructs a PostgreSQL-backed store.
func NewPostgres(db *sql.DB, opts ...Option) *SQLStore {
	return &SQLStore{reader: db, writer: db, dialect: dialect.Postgres, opts: buildOptions(opts)}
}

func (s *SQLStore) Get(ctx context.Context, issuerID string) (*models.Config, error) {
	cfg, err := s.scan(s.reader.QueryRowContext(ctx,
		s.dialect.Rebind(`SELECT `+configColumns+` FROM two_factor_config WHERE issuer_id = ?`), issuerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find two-factor config: %w", err)
	}
	return cfg, nil
}

func (s *SQLStore) Save(ctx context.Context, cfg *models.Config) error {
	secret, err := s.opts.seal(cfg.Secret)
	if err != nil {
		return fmt.Errorf("seal secret: %w", err)
	}
	pending, err := s.opts.seal(cfg.PendingSecret)
	if err != nil {
		return fmt.Errorf("seal pending secret: %w", err)
	}
	codes, err := marshalDigests(cfg.BackupCodes)
	if err != nil {
		return err
	}
	pendingCodes, err := marshalDigests(cfg.PendingBackupCodes)
	if err != nil {
		return err
	}

	var createdAt any
	if !cfg.CreatedAt.IsZero() {
		createdAt = s.dialect.TimeArg(cfg.CreatedAt)
	}

	_, err = s.writer.ExecContext(ctx, s.dialect.Rebind(`
		INSERT INTO two_factor_config (`+configColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (issuer_id) DO UPDATE SET
			secret = excluded.secret,
			enabled = excluded.enabled,
			backup_codes = excluded.backup_codes,
			pending_secret = excluded.pending_secret,
			pending_backup_codes = excluded.pending_backup_codes,
			created_at = excluded.created_at,
			enabled_at = excluded.enabled_at,
			updated_at = excluded.updated_at
	`),
		cfg.IssuerID,
		secret,
		cfg.Enabled,
		codes,
		pending,
		pendingCodes,
		createdAt,
		s.dialect.NullableTimeArg(cfg.EnabledAt),
		s.dialect.TimeArg(cfg.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save two-factor config: %w", err)
	}
	return nil
}

// ConsumeBackupCode removes digest inside a transaction holding the row.
func (s *SQLStore) ConsumeBackupCode(ctx context.Context, issuerID, digest string) (bool, error) {
	tx, err := s.writer.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin consume backup code: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var raw string
	err = tx.QueryRowContext(ctx, s.dialect.Rebind(
		`SELECT backup_codes FROM two_factor_config WHERE issuer_id = ?`+s.dialect.ForUpdate()), issuerID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load backup codes: %w", err)
	}

	digests, err := unmarshalDigests(raw)
	if err != nil {
		return false, err
	}
	remaining, removed := removeDigest(digests, digest)
	if !removed {
		return false, nil
	}

	encoded, err := marshalDigests(remaining)
	if err != nil {
		return false, err
	}
	if _, err := tx.ExecContext(ctx, s.dialect.Rebind(
		`UPDATE two_factor_config SET backup_codes = ? WHERE issuer_id = ?`), encoded, issuerID); err != nil {
		return false, fmt.Errorf("update backup codes: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit consume backup code: %w", err)
	}
	return true, nil
}

func (s *SQLStore) scan(row interface{ Scan(...any) error }) (*models.Config, error) {
	var (
		cfg          models.Config
		secret       string
		pending      string
		codes        string
		pendingCodes string
		createdAt    dialect.Time
		enabledAt    dialect.Time
		updatedAt    dialect.Time
	)
	if err := row.Scan(
		&cfg.IssuerID,
		&secret,
		&cfg.Enabled,
		&codes,
		&pending,
		&pendingCodes,
		&createdAt,
		&enabledAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if cfg.Secret, err = s.opts.open(secret); err != nil {
		return nil, fmt.Errorf("open secret: %w", err)
	}
	if cfg.PendingSecret, err = s.opts.open(pending); err != nil {
		return nil, fmt.Errorf("open pending secret: %w", err)
	}
	if cfg.BackupCodes, err = unmarshalDigests(codes); err != nil {
		return nil, err
	}
	if cfg.PendingBackupCodes, err = unmarshalDigests(pendingCodes); err != nil {
		return nil, err
	}
	cfg.CreatedAt = createdAt.Time
	cfg.EnabledAt = enabledAt.Ptr()
	cfg.UpdatedAt = updatedAt.Time
	return &cfg, nil
}

func marshalDigests(digests []string) (string, error) {
	if digests == nil {
		digests = []string{}
	}
	b, err := json.Marshal(digests)
	if err != nil {
		return "", fmt.Errorf("marshal backup codes: %w", err)
	}
	return string(b), nil
}

func unmarshalDigests(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("unmarshal backup codes: %w", err)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}
