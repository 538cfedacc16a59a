package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"credtrust/internal/credential/models"
	"credtrust/internal/platform/sqlite"
	"credtrust/pkg/platform/dialect"
	"credtrust/pkg/platform/sentinel"
	"credtrust/pkg/requestcontext"
)

const credentialColumns = `id, payload, holder_id, issuer_id, types, content_address,
	issued_at, updated_at, revoked, revoked_at, revocation_reason`

// SQLStore persists credentials in SQLite or PostgreSQL.
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

// NewPostgres constructs a PostgreSQL-backed credential store.
func NewPostgres(db *sql.DB, opts ...Option) *SQLStore {
	return &SQLStore{reader: db, writer: db, dialect: dialect.Postgres, opts: buildOptions(opts)}
}

// Save upserts by id inside a single transaction.
func (s *SQLStore) Save(ctx context.Context, record models.CredentialRecord) (*models.CredentialRecord, error) {
	now := requestcontext.Now(ctx)

	tx, err := s.writer.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin save credential: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	types, err := json.Marshal(nonNilTypes(record.Types))
	if err != nil {
		return nil, fmt.Errorf("marshal credential types: %w", err)
	}

	res, err := tx.ExecContext(ctx, s.dialect.Rebind(`
		INSERT INTO credentials (id, payload, holder_id, issuer_id, types, content_address, issued_at, updated_at, revoked, revocation_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, '')
		ON CONFLICT (id) DO NOTHING
	`),
		record.ID,
		string(record.Payload),
		record.HolderID,
		record.IssuerID,
		string(types),
		record.ContentAddress,
		s.dialect.TimeArg(now),
		s.dialect.TimeArg(now),
		false,
	)
	if err != nil {
		return nil, fmt.Errorf("insert credential: %w", err)
	}

	if inserted, _ := res.RowsAffected(); inserted == 0 {
		existing, err := scanCredential(tx.QueryRowContext(ctx,
			s.dialect.Rebind(`SELECT `+credentialColumns+` FROM credentials WHERE id = ?`), record.ID))
		if err != nil {
			return nil, fmt.Errorf("load credential for merge: %w", err)
		}
		existing.Merge(record, now)
		mergedTypes, err := json.Marshal(nonNilTypes(existing.Types))
		if err != nil {
			return nil, fmt.Errorf("marshal credential types: %w", err)
		}
		if _, err := tx.ExecContext(ctx, s.dialect.Rebind(`
			UPDATE credentials
			SET payload = ?, holder_id = ?, issuer_id = ?, types = ?, content_address = ?, updated_at = ?
			WHERE id = ?
		`),
			string(existing.Payload),
			existing.HolderID,
			existing.IssuerID,
			string(mergedTypes),
			existing.ContentAddress,
			s.dialect.TimeArg(now),
			existing.ID,
		); err != nil {
			return nil, fmt.Errorf("update credential: %w", err)
		}
	}

	stored, err := scanCredential(tx.QueryRowContext(ctx,
		s.dialect.Rebind(`SELECT `+credentialColumns+` FROM credentials WHERE id = ?`), record.ID))
	if err != nil {
		return nil, fmt.Errorf("reload credential: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit save credential: %w", err)
	}
	return stored, nil
}

// FindByID resolves idOrSuffix against stored ids.
func (s *SQLStore) FindByID(ctx context.Context, idOrSuffix string) (*models.CredentialRecord, error) {
	return s.find(ctx, s.reader, idOrSuffix)
}

func (s *SQLStore) find(ctx context.Context, db *sql.DB, idOrSuffix string) (*models.CredentialRecord, error) {
	if idOrSuffix == "" {
		return nil, sentinel.ErrNotFound
	}

	record, err := scanCredential(db.QueryRowContext(ctx, s.dialect.Rebind(`
		SELECT `+credentialColumns+`
		FROM credentials
		WHERE id IN (?, ?)
		ORDER BY CASE WHEN id = ? THEN 0 ELSE 1 END
		LIMIT 1
	`), idOrSuffix, models.AlternateID(idOrSuffix), idOrSuffix))
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find credential by id: %w", err)
	}

	rows, err := db.QueryContext(ctx, s.dialect.Rebind(`
		SELECT `+credentialColumns+`
		FROM credentials
		WHERE length(id) >= length(CAST(? AS TEXT))
		  AND substr(id, length(id) - length(CAST(? AS TEXT)) + 1) = ?
		ORDER BY seq
	`), idOrSuffix, idOrSuffix, idOrSuffix)
	if err != nil {
		return nil, fmt.Errorf("find credential by suffix: %w", err)
	}
	defer rows.Close()

	var first *models.CredentialRecord
	matches := 0
	for rows.Next() {
		matches++
		if first != nil {
			continue
		}
		if first, err = scanCredential(rows); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}
	if first == nil {
		return nil, sentinel.ErrNotFound
	}
	s.opts.warnAmbiguous(ctx, idOrSuffix, matches)
	return first, nil
}

// Revoke resolves the record, then flips revoked with a conditional update.
// Resolution goes through the writer so it observes the latest committed state.
func (s *SQLStore) Revoke(ctx context.Context, idOrSuffix, reason string, at time.Time) (*models.CredentialRecord, error) {
	record, err := s.find(ctx, s.writer, idOrSuffix)
	if err != nil {
		return nil, err
	}
	if record.Revoked {
		return record, sentinel.ErrAlreadyRevoked
	}

	reason = reasonOrDefault(reason)
	res, err := s.writer.ExecContext(ctx, s.dialect.Rebind(`
		UPDATE credentials
		SET revoked = ?, revoked_at = ?, revocation_reason = ?, updated_at = ?
		WHERE id = ? AND revoked = ?
	`), true, s.dialect.TimeArg(at), reason, s.dialect.TimeArg(at), record.ID, false)
	if err != nil {
		return nil, fmt.Errorf("revoke credential: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("revoke credential rows affected: %w", err)
	}

	current, err := scanCredential(s.writer.QueryRowContext(ctx,
		s.dialect.Rebind(`SELECT `+credentialColumns+` FROM credentials WHERE id = ?`), record.ID))
	if err != nil {
		return nil, fmt.Errorf("reload revoked credential: %w", err)
	}
	if affected == 0 {
		return current, sentinel.ErrAlreadyRevoked
	}
	return current, nil
}

// List filters by holder and revocation in SQL and by type in memory.
func (s *SQLStore) List(ctx context.Context, filter models.ListFilter) ([]*models.CredentialRecord, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.HolderID != "" {
		clauses = append(clauses, "holder_id = ?")
		args = append(args, filter.HolderID)
	}
	if filter.Revoked != nil {
		clauses = append(clauses, "revoked = ?")
		args = append(args, *filter.Revoked)
	}

	query := `SELECT ` + credentialColumns + ` FROM credentials`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY seq`

	rows, err := s.reader.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	out := make([]*models.CredentialRecord, 0)
	for rows.Next() {
		record, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		if filter.Matches(record) {
			out = append(out, record)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}
	return out, nil
}

type credentialRow interface {
	Scan(dest ...any) error
}

func scanCredential(row credentialRow) (*models.CredentialRecord, error) {
	var (
		record    models.CredentialRecord
		payload   string
		types     string
		issuedAt  dialect.Time
		updatedAt dialect.Time
		revokedAt dialect.Time
	)
	if err := row.Scan(
		&record.ID,
		&payload,
		&record.HolderID,
		&record.IssuerID,
		&types,
		&record.ContentAddress,
		&issuedAt,
		&updatedAt,
		&record.Revoked,
		&revokedAt,
		&record.RevocationReason,
	); err != nil {
		return nil, err
	}

	record.Payload = json.RawMessage(payload)
	if types != "" {
		if err := json.Unmarshal([]byte(types), &record.Types); err != nil {
			return nil, fmt.Errorf("unmarshal credential types: %w", err)
		}
	}
	record.IssuedAt = issuedAt.Time
	record.UpdatedAt = updatedAt.Time
	record.RevokedAt = revokedAt.Ptr()
	return &record, nil
}

func nonNilTypes(types []string) []string {
	if types == nil {
		return []string{}
	}
	return types
}
