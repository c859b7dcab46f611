package memstore

import (
	"context"
	"time"

	"github.com/codenamekii/Sukamaju-run-2025-V2-sub000/internal/core"
)

// Calls outside WithTx run under the lock against the live state, each one
// atomic on its own.

func (s *Store) ReserveBibSequence(ctx context.Context, category core.Category, n, quota int) (first int, err error) {
	err = s.locked(func(q *tx) error {
		first, err = q.ReserveBibSequence(ctx, category, n, quota)
		return err
	})
	return first, err
}

func (s *Store) BibExists(ctx context.Context, bib string) (ok bool, err error) {
	err = s.locked(func(q *tx) error {
		ok, err = q.BibExists(ctx, bib)
		return err
	})
	return ok, err
}

func (s *Store) FindActiveIdentity(ctx context.Context, category core.Category, email, phone string) (m *core.IdentityMatch, err error) {
	err = s.locked(func(q *tx) error {
		m, err = q.FindActiveIdentity(ctx, category, email, phone)
		return err
	})
	return m, err
}

func (s *Store) InsertParticipant(ctx context.Context, p *core.Participant) error {
	return s.locked(func(q *tx) error { return q.InsertParticipant(ctx, p) })
}

func (s *Store) InsertGroup(ctx context.Context, g *core.GroupRegistration) error {
	return s.locked(func(q *tx) error { return q.InsertGroup(ctx, g) })
}

func (s *Store) InsertGroupMember(ctx context.Context, m *core.GroupMember) error {
	return s.locked(func(q *tx) error { return q.InsertGroupMember(ctx, m) })
}

func (s *Store) InsertRacePack(ctx context.Context, rp *core.RacePack) error {
	return s.locked(func(q *tx) error { return q.InsertRacePack(ctx, rp) })
}

func (s *Store) InsertPayment(ctx context.Context, p *core.Payment) error {
	return s.locked(func(q *tx) error { return q.InsertPayment(ctx, p) })
}

func (s *Store) InsertOutboxEvent(ctx context.Context, ev *core.OutboxEvent) error {
	return s.locked(func(q *tx) error { return q.InsertOutboxEvent(ctx, ev) })
}

func (s *Store) InsertIdempotencyRecord(ctx context.Context, rec *core.IdempotencyRecord) error {
	return s.locked(func(q *tx) error { return q.InsertIdempotencyRecord(ctx, rec) })
}

func (s *Store) GetIdempotencyRecord(ctx context.Context, key string) (rec *core.IdempotencyRecord, err error) {
	err = s.locked(func(q *tx) error {
		rec, err = q.GetIdempotencyRecord(ctx, key)
		return err
	})
	return rec, err
}

func (s *Store) GetParticipantByCode(ctx context.Context, code string) (p *core.Participant, err error) {
	err = s.locked(func(q *tx) error {
		p, err = q.GetParticipantByCode(ctx, code)
		return err
	})
	return p, err
}

func (s *Store) GetGroupByCode(ctx context.Context, code string) (g *core.GroupRegistration, err error) {
	err = s.locked(func(q *tx) error {
		g, err = q.GetGroupByCode(ctx, code)
		return err
	})
	return g, err
}

func (s *Store) GetGroupByID(ctx context.Context, id string) (g *core.GroupRegistration, err error) {
	err = s.locked(func(q *tx) error {
		g, err = q.GetGroupByID(ctx, id)
		return err
	})
	return g, err
}

func (s *Store) ListGroupMembers(ctx context.Context, groupID string) (out []core.GroupMember, err error) {
	err = s.locked(func(q *tx) error {
		out, err = q.ListGroupMembers(ctx, groupID)
		return err
	})
	return out, err
}

func (s *Store) ListGroupParticipants(ctx context.Context, groupID string) (out []core.Participant, err error) {
	err = s.locked(func(q *tx) error {
		out, err = q.ListGroupParticipants(ctx, groupID)
		return err
	})
	return out, err
}

func (s *Store) GetPaymentByCode(ctx context.Context, code string) (p *core.Payment, err error) {
	err = s.locked(func(q *tx) error {
		p, err = q.GetPaymentByCode(ctx, code)
		return err
	})
	return p, err
}

func (s *Store) GetPaymentByRegistration(ctx context.Context, registrationCode string) (p *core.Payment, err error) {
	err = s.locked(func(q *tx) error {
		p, err = q.GetPaymentByRegistration(ctx, registrationCode)
		return err
	})
	return p, err
}

func (s *Store) UpdatePaymentStatus(ctx context.Context, code string, status core.PaymentStatus, reference string, at time.Time) error {
	return s.locked(func(q *tx) error { return q.UpdatePaymentStatus(ctx, code, status, reference, at) })
}

func (s *Store) UpdateOwnerStatus(ctx context.Context, p *core.Payment, status core.Status, at time.Time) error {
	return s.locked(func(q *tx) error { return q.UpdateOwnerStatus(ctx, p, status, at) })
}

func (s *Store) ListExpiredPendingPayments(ctx context.Context, now time.Time, limit int) (out []core.Payment, err error) {
	err = s.locked(func(q *tx) error {
		out, err = q.ListExpiredPendingPayments(ctx, now, limit)
		return err
	})
	return out, err
}

func (s *Store) ClaimDueOutboxEvents(ctx context.Context, now, leaseUntil time.Time, limit int) (out []core.OutboxEvent, err error) {
	err = s.locked(func(q *tx) error {
		out, err = q.ClaimDueOutboxEvents(ctx, now, leaseUntil, limit)
		return err
	})
	return out, err
}

func (s *Store) MarkOutboxDelivered(ctx context.Context, id string, at time.Time) error {
	return s.locked(func(q *tx) error { return q.MarkOutboxDelivered(ctx, id, at) })
}

func (s *Store) MarkOutboxFailed(ctx context.Context, id string, attempts int, next time.Time, lastErr string, dead bool) error {
	return s.locked(func(q *tx) error { return q.MarkOutboxFailed(ctx, id, attempts, next, lastErr, dead) })
}
