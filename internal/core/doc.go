// Package core is the registration and allocation engine for the race.
//
// It holds all domain logic independent of transport and storage, so HTTP
// handlers, the operator CLI and tests drive the same [Service] over any
// [Store] implementation.
//
// # Architecture
//
//   - Pricing: [PriceTable] is built from configuration and prices
//     individual and group registrations.
//   - Bib allocation: [BibAllocator] reserves sequential bib numbers per
//     category inside the registration transaction.
//   - Duplicate screening: [CheckDuplicate] matches on normalized email or
//     phone against persisted registrations and earlier rows of a batch.
//   - Coordinator: [Service.RegisterIndividual] and [Service.RegisterGroup]
//     validate, screen, price and commit atomically.
//   - Import: [Service.Validate], [Service.Commit] and [Service.Import]
//     process bulk rows, one transaction per row.
//   - Payments: [Service.ApplyPaymentStatus] and
//     [Service.ExpirePendingPayments] drive the payment state machine.
//   - Outbox: every commit writes an [OutboxEvent]; a [Dispatcher] delivers
//     events through a [Notifier].
//
// # Atomic Commit
//
// One registration writes, in a single serializable transaction: the bib
// reservation, participants, the group and its members, race packs, the
// pending payment, the outbox event and the idempotency record. A failure
// at any step rolls back all of them. Conflicts are retried with jittered
// backoff; a retried attempt regenerates bibs and codes.
//
// # Error Handling
//
// Every failure returned by the engine is an [*Error] with a closed [Kind].
// Callers branch on the kind with errors.Is against the sentinels:
//
//	if errors.Is(err, core.ErrDuplicate) { ... }
//
// [MapError] turns errors into user-facing messages with support codes:
//
//   - REG001-REG002: validation and lookup errors
//   - DUP001: duplicate registrant
//   - BIB001: category quota exhausted
//   - TX001-TX003: transaction conflicts, timeouts, idempotency mismatches
//   - IMP001-IMP002: import limits
//   - PAY001: payment callback errors
//   - DB004-DB007: database connectivity
package core
