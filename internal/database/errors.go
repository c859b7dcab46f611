package database

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/codenamekii/Sukamaju-run-2025-V2-sub000/internal/core"
)

// PostgreSQL error codes the store translates.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// mapError translates driver errors into the engine's vocabulary: unique
// violations carry the constraint name, serialization failures become
// retryable conflicts. Anything else is wrapped with op.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return &core.UniqueViolation{Constraint: pgErr.ConstraintName, Err: err}
		case codeSerializationFailure, codeDeadlockDetected:
			return core.Conflict(op, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// notFound maps pgx.ErrNoRows to a NotFound error for what/key.
func notFound(op, what, key string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return core.NotFound(what, key)
	}
	return mapError(op, err)
}
