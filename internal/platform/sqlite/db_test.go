package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMemoryAppliesMigrations(t *testing.T) {
	ctx := context.Background()
	db, err := OpenMemory(ctx, t.Name())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	for _, table := range []string{"credentials", "two_factor_config"} {
		var name string
		err := db.Reader.QueryRowContext(ctx,
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}
	assert.NoError(t, db.Health(ctx))
}

func TestRunMigrationsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := OpenMemory(ctx, t.Name())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	assert.NoError(t, RunMigrations(db.Writer))
}

func TestOpenMemoryIsolatedByName(t *testing.T) {
	ctx := context.Background()
	a, err := OpenMemory(ctx, t.Name()+"-a")
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	b, err := OpenMemory(ctx, t.Name()+"-b")
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	_, err = a.Writer.ExecContext(ctx,
		`INSERT INTO credentials (id, payload, issued_at, updated_at) VALUES ('x', '{}', 'now', 'now')`)
	require.NoError(t, err)

	var count int
	require.NoError(t, b.Reader.QueryRowContext(ctx, `SELECT COUNT(*) FROM credentials`).Scan(&count))
	assert.Zero(t, count)
}
