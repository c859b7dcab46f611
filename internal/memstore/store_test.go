package memstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codenamekii/Sukamaju-run-2025-V2-sub000/internal/core"
)

func participant(id, code, bib, email, phone string) *core.Participant {
	return &core.Participant{
		ID:               id,
		RegistrationCode: code,
		BibNumber:        bib,
		Email:            email,
		Phone:            phone,
		Category:         "5K",
		Status:           core.StatusPending,
		CreatedAt:        time.Now(),
	}
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(q core.Queries) error {
		require.NoError(t, q.InsertParticipant(ctx, participant("p1", "SR-1", "50001", "a@x.id", "628111")))
		_, err := q.ReserveBibSequence(ctx, "5K", 1, 10)
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Zero(t, s.Counts().Participants)
	first, err := s.ReserveBibSequence(ctx, "5K", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, first, "sequence must not advance on rollback")
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.WithTx(ctx, func(q core.Queries) error {
		return q.InsertParticipant(ctx, participant("p1", "SR-1", "50001", "a@x.id", "628111"))
	}))

	got, err := s.GetParticipantByCode(ctx, "SR-1")
	require.NoError(t, err)
	assert.Equal(t, "50001", got.BibNumber)
}

func TestWithTx_CancelledContextDiscards(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())

	err := s.WithTx(ctx, func(q core.Queries) error {
		cancel()
		return q.InsertParticipant(ctx, participant("p1", "SR-1", "50001", "a@x.id", "628111"))
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, s.Counts().Participants)
}

func TestReserveBibSequence(t *testing.T) {
	s := New()
	ctx := context.Background()

	first, err := s.ReserveBibSequence(ctx, "5K", 3, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, first)

	first, err = s.ReserveBibSequence(ctx, "5K", 2, 5)
	require.NoError(t, err)
	assert.Equal(t, 4, first)

	_, err = s.ReserveBibSequence(ctx, "5K", 1, 5)
	require.ErrorIs(t, err, core.ErrAllocationExhausted)

	first, err = s.ReserveBibSequence(ctx, "10K", 1, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, first, "categories count independently")
}

func TestInsertParticipant_UniqueConstraints(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		second     *core.Participant
		constraint string
	}{
		{"same code", participant("p2", "SR-1", "50002", "b@x.id", "628222"), core.ConstraintRegistrationCode},
		{"same bib", participant("p2", "SR-2", "50001", "b@x.id", "628222"), core.ConstraintBibNumber},
		{"same email", participant("p2", "SR-2", "50002", "a@x.id", "628222"), core.ConstraintActiveEmail},
		{"same phone", participant("p2", "SR-2", "50002", "b@x.id", "628111"), core.ConstraintActivePhone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			require.NoError(t, s.InsertParticipant(ctx, participant("p1", "SR-1", "50001", "a@x.id", "628111")))

			err := s.InsertParticipant(ctx, tt.second)
			var uv *core.UniqueViolation
			require.ErrorAs(t, err, &uv)
			assert.Equal(t, tt.constraint, uv.Constraint)
		})
	}
}

func TestInsertParticipant_PlaceholdersAndCancelledDoNotConflict(t *testing.T) {
	s := New()
	ctx := context.Background()

	email := core.PlaceholderEmail("abc")
	phone := core.PlaceholderPhone(1)
	require.NoError(t, s.InsertParticipant(ctx, participant("p1", "SRI-1", "50001", email, phone)))
	require.NoError(t, s.InsertParticipant(ctx, participant("p2", "SRI-2", "50002", email, phone)))

	cancelled := participant("p3", "SR-3", "50003", "c@x.id", "628333")
	cancelled.Status = core.StatusCancelled
	require.NoError(t, s.InsertParticipant(ctx, cancelled))
	require.NoError(t, s.InsertParticipant(ctx, participant("p4", "SR-4", "50004", "c@x.id", "628333")))

	other := participant("p5", "SR-5", "100001", "c@x.id", "628333")
	other.Category = "10K"
	require.NoError(t, s.InsertParticipant(ctx, other), "other category does not conflict")
}

func TestFindActiveIdentity(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.InsertParticipant(ctx, participant("p1", "SR-1", "50001", "a@x.id", "628111")))

	m, err := s.FindActiveIdentity(ctx, "5K", "", "628111")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "SR-1", m.RegistrationCode)

	m, err = s.FindActiveIdentity(ctx, "10K", "a@x.id", "")
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestInsertPayment_RequiresExactlyOneOwner(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.InsertPayment(ctx, &core.Payment{Code: "PAY-1"})
	require.Error(t, err)

	err = s.InsertPayment(ctx, &core.Payment{Code: "PAY-1", ParticipantID: "p1", GroupID: "g1"})
	require.Error(t, err)

	require.NoError(t, s.InsertPayment(ctx, &core.Payment{Code: "PAY-1", ParticipantID: "p1"}))
	err = s.InsertPayment(ctx, &core.Payment{Code: "PAY-1", GroupID: "g1"})
	var uv *core.UniqueViolation
	require.ErrorAs(t, err, &uv)
	assert.Equal(t, core.ConstraintPaymentCode, uv.Constraint)
}

func TestOutboxLifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.InsertOutboxEvent(ctx, &core.OutboxEvent{ID: "e1", Status: core.OutboxPending, NextAttemptAt: now, CreatedAt: now}))
	require.NoError(t, s.InsertOutboxEvent(ctx, &core.OutboxEvent{ID: "e2", Status: core.OutboxPending, NextAttemptAt: now.Add(time.Hour), CreatedAt: now}))

	lease := now.Add(5 * time.Minute)
	due, err := s.ClaimDueOutboxEvents(ctx, now, lease, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "e1", due[0].ID)
	assert.Equal(t, lease, due[0].NextAttemptAt)

	due, err = s.ClaimDueOutboxEvents(ctx, now, lease, 10)
	require.NoError(t, err)
	assert.Empty(t, due, "claimed events stay hidden until the lease ends")

	require.NoError(t, s.MarkOutboxFailed(ctx, "e1", 1, now.Add(time.Minute), "down", false))
	due, err = s.ClaimDueOutboxEvents(ctx, now, lease, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	require.NoError(t, s.MarkOutboxDelivered(ctx, "e1", now))
	events := s.OutboxEvents()
	require.Len(t, events, 2)
	for _, ev := range events {
		if ev.ID == "e1" {
			assert.Equal(t, core.OutboxDelivered, ev.Status)
			assert.Equal(t, 2, ev.Attempts)
		}
	}
}

func TestClaimDueOutboxEvents_Disjoint(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()
	for i := 0; i < 20; i++ {
		require.NoError(t, s.InsertOutboxEvent(ctx, &core.OutboxEvent{
			ID: fmt.Sprintf("e%02d", i), Status: core.OutboxPending, NextAttemptAt: now, CreatedAt: now,
		}))
	}

	var (
		mu   sync.Mutex
		seen = map[string]int{}
		wg   sync.WaitGroup
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				due, err := s.ClaimDueOutboxEvents(ctx, now, now.Add(time.Minute), 3)
				if !assert.NoError(t, err) || len(due) == 0 {
					return
				}
				mu.Lock()
				for _, ev := range due {
					seen[ev.ID]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, 20)
	for id, n := range seen {
		assert.Equal(t, 1, n, "event %s claimed more than once", id)
	}

	again, err := s.ClaimDueOutboxEvents(ctx, now.Add(time.Minute), now.Add(2*time.Minute), 100)
	require.NoError(t, err)
	assert.Len(t, again, 20, "an expired lease makes the event due again")
}
