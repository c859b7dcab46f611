package database

import (
	"context"
	"fmt"
	"time"
)

// ResetTimeout bounds a full reset.
const ResetTimeout = 30 * time.Second

// resetTables lists every engine table, children first.
var resetTables = []string{
	"idempotency_keys",
	"outbox_events",
	"payments",
	"race_packs",
	"group_members",
	"participants",
	"group_registrations",
	"bib_sequences",
}

// Reset empties every registration table and restarts bib numbering.
// It is destructive and meant for staging and tests.
func (s *Store) Reset(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, ResetTimeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return mapError("reset", err)
	}
	defer tx.Rollback(ctx)

	for _, table := range resetTables {
		if _, err := tx.Exec(ctx, "DELETE FROM "+table); err != nil {
			return mapError(fmt.Sprintf("reset %s", table), err)
		}
	}
	return mapError("reset", tx.Commit(ctx))
}
