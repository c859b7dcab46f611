package database

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codenamekii/Sukamaju-run-2025-V2-sub000/internal/config"
	"github.com/codenamekii/Sukamaju-run-2025-V2-sub000/internal/core"
)

// openTestStore connects to TEST_DATABASE_URL, migrates it and empties every
// table. Tests using it are skipped when the variable is unset.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	require.NoError(t, Migrate(url))

	ctx := context.Background()
	s, err := Open(ctx, config.DatabaseConfig{URL: url, MaxConns: 8, MinConns: 1, MaxConnLifetime: time.Hour, MaxConnIdleTime: time.Minute})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	require.NoError(t, s.Reset(ctx))
	return s
}

func testParticipant(code, bib, email string, at time.Time) *core.Participant {
	return &core.Participant{
		ID:               uuid.NewString(),
		RegistrationCode: code,
		FullName:         "Budi Santoso",
		Gender:           core.GenderMale,
		DateOfBirth:      time.Date(1990, 5, 17, 0, 0, 0, 0, time.UTC),
		Age:              35,
		Email:            email,
		Phone:            "6281234567890",
		Category:         "5K",
		BibName:          "BUDI",
		JerseySize:       "M",
		BibNumber:        bib,
		BasePrice:        162000,
		TotalPrice:       162000,
		EarlyBird:        true,
		Status:           core.StatusPending,
		Source:           core.SourceIndividual,
		CreatedAt:        at,
	}
}

func TestStore_ReserveBibSequence(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.ReserveBibSequence(ctx, "5K", 3, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, first)

	first, err = s.ReserveBibSequence(ctx, "5K", 2, 5)
	require.NoError(t, err)
	assert.Equal(t, 4, first)

	_, err = s.ReserveBibSequence(ctx, "5K", 1, 5)
	assert.ErrorIs(t, err, core.ErrAllocationExhausted)
}

func TestStore_TransactionRollsBack(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(q core.Queries) error {
		if _, err := q.ReserveBibSequence(ctx, "5K", 1, 10); err != nil {
			return err
		}
		if err := q.InsertParticipant(ctx, testParticipant("SR-00000001", "50001", "budi@example.com", now)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.GetParticipantByCode(ctx, "SR-00000001")
	assert.ErrorIs(t, err, core.ErrNotFound)

	first, err := s.ReserveBibSequence(ctx, "5K", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, first, "sequence advance rolled back")
}

func TestStore_ParticipantRoundTripAndConstraints(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	p := testParticipant("SR-00000001", "50001", "budi@example.com", now)
	require.NoError(t, s.InsertParticipant(ctx, p))

	got, err := s.GetParticipantByCode(ctx, p.RegistrationCode)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, p.BibNumber, got.BibNumber)
	assert.True(t, p.DateOfBirth.Equal(got.DateOfBirth))
	assert.Empty(t, got.GroupID)

	sameBib := testParticipant("SR-00000002", "50001", "other@example.com", now)
	sameBib.Phone = "6281111111111"
	err = s.InsertParticipant(ctx, sameBib)
	var uv *core.UniqueViolation
	require.True(t, errors.As(err, &uv), "got %v", err)
	assert.Equal(t, core.ConstraintBibNumber, uv.Constraint)

	sameEmail := testParticipant("SR-00000003", "50003", "budi@example.com", now)
	sameEmail.Phone = "6282222222222"
	err = s.InsertParticipant(ctx, sameEmail)
	require.True(t, errors.As(err, &uv), "got %v", err)
	assert.Equal(t, core.ConstraintActiveEmail, uv.Constraint)

	match, err := s.FindActiveIdentity(ctx, "5K", "", "6281234567890")
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, p.RegistrationCode, match.RegistrationCode)

	match, err = s.FindActiveIdentity(ctx, "10K", "budi@example.com", "")
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestStore_PaymentLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	p := testParticipant("SR-00000001", "50001", "budi@example.com", now)
	require.NoError(t, s.InsertParticipant(ctx, p))

	pay := &core.Payment{
		ID:               uuid.NewString(),
		Code:             "PAY-00000001",
		ParticipantID:    p.ID,
		RegistrationCode: p.RegistrationCode,
		Amount:           p.TotalPrice,
		Status:           core.PaymentPending,
		ExpiresAt:        now.Add(-time.Minute),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	require.NoError(t, s.InsertPayment(ctx, pay))

	orphan := *pay
	orphan.ID, orphan.Code, orphan.ParticipantID = uuid.NewString(), "PAY-00000002", ""
	assert.Error(t, s.InsertPayment(ctx, &orphan), "owner check")

	var due []core.Payment
	err := s.WithTx(ctx, func(q core.Queries) error {
		var err error
		due, err = q.ListExpiredPendingPayments(ctx, now, 10)
		return err
	})
	require.NoError(t, err)
	require.Len(t, due, 1)

	require.NoError(t, s.UpdatePaymentStatus(ctx, pay.Code, core.PaymentSuccess, "GW-1", now))
	require.NoError(t, s.UpdateOwnerStatus(ctx, pay, core.StatusConfirmed, now))

	got, err := s.GetPaymentByRegistration(ctx, p.RegistrationCode)
	require.NoError(t, err)
	assert.Equal(t, core.PaymentSuccess, got.Status)
	assert.Equal(t, "GW-1", got.Reference)
	require.NotNil(t, got.PaidAt)

	part, err := s.GetParticipantByCode(ctx, p.RegistrationCode)
	require.NoError(t, err)
	assert.Equal(t, core.StatusConfirmed, part.Status)
}

func TestStore_OutboxAndIdempotency(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	ev := &core.OutboxEvent{
		ID:            uuid.NewString(),
		Type:          core.EventRegistrationCreated,
		AggregateCode: "SR-00000001",
		Payload:       []byte(`{"registrationCode":"SR-00000001"}`),
		Status:        core.OutboxPending,
		NextAttemptAt: now,
		CreatedAt:     now,
	}
	require.NoError(t, s.InsertOutboxEvent(ctx, ev))

	lease := now.Add(5 * time.Minute)
	due, err := s.ClaimDueOutboxEvents(ctx, now, lease, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.JSONEq(t, string(ev.Payload), string(due[0].Payload))
	assert.True(t, lease.Equal(due[0].NextAttemptAt))

	due, err = s.ClaimDueOutboxEvents(ctx, now, lease, 10)
	require.NoError(t, err)
	assert.Empty(t, due, "claimed events stay hidden until the lease ends")

	require.NoError(t, s.MarkOutboxFailed(ctx, ev.ID, 1, now.Add(time.Minute), "timeout", false))
	due, err = s.ClaimDueOutboxEvents(ctx, now, lease, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	require.NoError(t, s.MarkOutboxDelivered(ctx, ev.ID, now))

	rec := &core.IdempotencyRecord{
		Key:         "key-1",
		Fingerprint: "abc",
		Result:      core.RegistrationResult{RegistrationCode: "SR-00000001", BibNumbers: []string{"50001"}},
		CreatedAt:   now,
	}
	require.NoError(t, s.InsertIdempotencyRecord(ctx, rec))
	err = s.InsertIdempotencyRecord(ctx, rec)
	var uv *core.UniqueViolation
	require.True(t, errors.As(err, &uv))
	assert.Equal(t, core.ConstraintIdempotencyKey, uv.Constraint)

	got, err := s.GetIdempotencyRecord(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, rec.Result.BibNumbers, got.Result.BibNumbers)

	_, err = s.GetIdempotencyRecord(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestStore_ClaimDueOutboxEventsDisjoint(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	for i := 0; i < 30; i++ {
		require.NoError(t, s.InsertOutboxEvent(ctx, &core.OutboxEvent{
			ID:            uuid.NewString(),
			Type:          core.EventRegistrationCreated,
			AggregateCode: "SR-00000001",
			Payload:       []byte(`{}`),
			Status:        core.OutboxPending,
			NextAttemptAt: now,
			CreatedAt:     now.Add(time.Duration(i) * time.Millisecond),
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
				due, err := s.ClaimDueOutboxEvents(ctx, now, now.Add(time.Minute), 4)
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

	require.Len(t, seen, 30)
	for id, n := range seen {
		assert.Equal(t, 1, n, "event %s claimed more than once", id)
	}
}
