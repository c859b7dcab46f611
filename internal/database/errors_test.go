package database

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codenamekii/Sukamaju-run-2025-V2-sub000/internal/core"
)

func TestMapError(t *testing.T) {
	t.Run("unique violation keeps constraint", func(t *testing.T) {
		err := mapError("insert participant", &pgconn.PgError{Code: "23505", ConstraintName: core.ConstraintBibNumber})
		var uv *core.UniqueViolation
		require.True(t, errors.As(err, &uv))
		assert.Equal(t, core.ConstraintBibNumber, uv.Constraint)
	})

	t.Run("serialization failure is a conflict", func(t *testing.T) {
		err := mapError("commit transaction", fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "40001"}))
		assert.ErrorIs(t, err, core.ErrTransactionConflict)
	})

	t.Run("deadlock is a conflict", func(t *testing.T) {
		err := mapError("update", &pgconn.PgError{Code: "40P01"})
		assert.ErrorIs(t, err, core.ErrTransactionConflict)
	})

	t.Run("other errors are wrapped", func(t *testing.T) {
		cause := &pgconn.PgError{Code: "23503", Message: "foreign key"}
		err := mapError("insert race pack", cause)
		assert.ErrorIs(t, err, cause)
		assert.True(t, strings.HasPrefix(err.Error(), "insert race pack: "))
		assert.Equal(t, core.KindInternal, core.KindOf(err))
	})

	assert.NoError(t, mapError("noop", nil))
}

func TestNotFound(t *testing.T) {
	err := notFound("get payment", "payment", "PAY-1", pgx.ErrNoRows)
	assert.ErrorIs(t, err, core.ErrNotFound)

	err = notFound("get payment", "payment", "PAY-1", errors.New("conn reset"))
	assert.NotErrorIs(t, err, core.ErrNotFound)
}

func TestMigrateURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"postgres://u:p@localhost:5432/race?sslmode=disable", "pgx5://u:p@localhost:5432/race?sslmode=disable"},
		{"postgresql://localhost/race", "pgx5://localhost/race"},
		{"pgx5://localhost/race", "pgx5://localhost/race"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, migrateURL(tt.in))
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Contains(t, names, "0001_init.up.sql")
	assert.Contains(t, names, "0001_init.down.sql")

	up, err := fs.ReadFile(migrationFiles, "migrations/0001_init.up.sql")
	require.NoError(t, err)
	for _, c := range []string{
		core.ConstraintBibNumber,
		core.ConstraintRegistrationCode,
		core.ConstraintGroupCode,
		core.ConstraintMemberCode,
		core.ConstraintPaymentCode,
		core.ConstraintActiveEmail,
		core.ConstraintActivePhone,
	} {
		assert.Contains(t, string(up), c, "schema must name the constraint the engine matches on")
	}
	assert.Contains(t, string(up), "@"+core.PlaceholderEmailDomain)
	assert.Contains(t, string(up), "'"+core.PlaceholderPhonePrefix+"%'")
}
