package core_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codenamekii/Sukamaju-run-2025-V2-sub000/internal/core"
)

func lastEvent(t *testing.T, e *engine, eventType string) core.OutboxEvent {
	t.Helper()
	var found *core.OutboxEvent
	for _, ev := range e.store.OutboxEvents() {
		if ev.Type == eventType {
			found = &ev
		}
	}
	require.NotNil(t, found, "no %s event", eventType)
	return *found
}

func TestApplyPaymentStatus_SuccessConfirms(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	res, err := e.svc.RegisterIndividual(ctx, core.IndividualRequest{RegistrantInput: runner(1)})
	require.NoError(t, err)

	pay, err := e.svc.ApplyPaymentStatus(ctx, core.PaymentUpdate{Code: res.PaymentCode, Status: core.PaymentSuccess, Reference: "GW-123"})
	require.NoError(t, err)
	assert.Equal(t, core.PaymentSuccess, pay.Status)
	assert.Equal(t, "GW-123", pay.Reference)
	require.NotNil(t, pay.PaidAt)

	view, err := e.svc.GetRegistration(ctx, res.RegistrationCode)
	require.NoError(t, err)
	assert.Equal(t, core.StatusConfirmed, view.Participant.Status)
	assert.Equal(t, core.PaymentSuccess, view.Payment.Status)

	ev := lastEvent(t, e, core.EventPaymentStatusChanged)
	var payload core.PaymentStatusChangedPayload
	require.NoError(t, json.Unmarshal(ev.Payload, &payload))
	assert.Equal(t, core.PaymentPending, payload.From)
	assert.Equal(t, core.PaymentSuccess, payload.To)
	assert.Equal(t, core.StatusConfirmed, payload.OwnerStatus)
	assert.Equal(t, res.RegistrationCode, ev.AggregateCode)
}

func TestApplyPaymentStatus_RepeatIsNoop(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	res, err := e.svc.RegisterIndividual(ctx, core.IndividualRequest{RegistrantInput: runner(1)})
	require.NoError(t, err)

	update := core.PaymentUpdate{Code: res.PaymentCode, Status: core.PaymentSuccess}
	_, err = e.svc.ApplyPaymentStatus(ctx, update)
	require.NoError(t, err)
	events := e.store.Counts().OutboxEvents

	pay, err := e.svc.ApplyPaymentStatus(ctx, update)
	require.NoError(t, err)
	assert.Equal(t, core.PaymentSuccess, pay.Status)
	assert.Equal(t, events, e.store.Counts().OutboxEvents, "repeated callback emits nothing")
}

func TestApplyPaymentStatus_Transitions(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	res, err := e.svc.RegisterIndividual(ctx, core.IndividualRequest{RegistrantInput: runner(1)})
	require.NoError(t, err)

	_, err = e.svc.ApplyPaymentStatus(ctx, core.PaymentUpdate{Code: res.PaymentCode, Status: core.PaymentRefunded})
	require.ErrorIs(t, err, core.ErrValidation, "pending cannot be refunded")

	_, err = e.svc.ApplyPaymentStatus(ctx, core.PaymentUpdate{Code: res.PaymentCode, Status: core.PaymentSuccess})
	require.NoError(t, err)

	_, err = e.svc.ApplyPaymentStatus(ctx, core.PaymentUpdate{Code: res.PaymentCode, Status: core.PaymentFailed})
	require.ErrorIs(t, err, core.ErrValidation)

	pay, err := e.svc.ApplyPaymentStatus(ctx, core.PaymentUpdate{Code: res.PaymentCode, Status: core.PaymentRefunded})
	require.NoError(t, err)
	assert.Equal(t, core.PaymentRefunded, pay.Status)

	view, err := e.svc.GetRegistration(ctx, res.RegistrationCode)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCancelled, view.Participant.Status)
}

func TestApplyPaymentStatus_Errors(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	_, err := e.svc.ApplyPaymentStatus(ctx, core.PaymentUpdate{Code: "PAY-DEADBEEF", Status: core.PaymentSuccess})
	require.ErrorIs(t, err, core.ErrNotFound)

	_, err = e.svc.ApplyPaymentStatus(ctx, core.PaymentUpdate{Status: core.PaymentSuccess})
	require.ErrorIs(t, err, core.ErrValidation)
}

func TestApplyPaymentStatus_GroupConfirmsEveryMember(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	res, err := e.svc.RegisterGroup(ctx, groupRequest(5, 1))
	require.NoError(t, err)

	// payment codes are matched case-insensitively
	_, err = e.svc.ApplyPaymentStatus(ctx, core.PaymentUpdate{Code: " " + strings.ToLower(res.PaymentCode), Status: core.PaymentSuccess})
	require.NoError(t, err)

	view, err := e.svc.GetRegistration(ctx, res.RegistrationCode)
	require.NoError(t, err)
	assert.Equal(t, core.StatusConfirmed, view.Group.Status)
	require.Len(t, view.Members, 5)
	for _, m := range view.Members {
		assert.Equal(t, core.StatusConfirmed, m.Status, m.RegistrationCode)
	}
}

func TestExpirePendingPayments(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	stale, err := e.svc.RegisterIndividual(ctx, core.IndividualRequest{RegistrantInput: runner(1)})
	require.NoError(t, err)
	paid, err := e.svc.RegisterIndividual(ctx, core.IndividualRequest{RegistrantInput: runner(2)})
	require.NoError(t, err)
	_, err = e.svc.ApplyPaymentStatus(ctx, core.PaymentUpdate{Code: paid.PaymentCode, Status: core.PaymentSuccess})
	require.NoError(t, err)

	n, err := e.svc.ExpirePendingPayments(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing is past expiry yet")

	e.clock.Advance(25 * time.Hour)
	n, err = e.svc.ExpirePendingPayments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	view, err := e.svc.GetRegistration(ctx, stale.RegistrationCode)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCancelled, view.Participant.Status)
	assert.Equal(t, core.PaymentExpired, view.Payment.Status)

	view, err = e.svc.GetRegistration(ctx, paid.RegistrationCode)
	require.NoError(t, err)
	assert.Equal(t, core.StatusConfirmed, view.Participant.Status)

	// a cancelled registration frees its identity
	again, err := e.svc.RegisterIndividual(ctx, core.IndividualRequest{RegistrantInput: runner(1)})
	require.NoError(t, err)
	assert.NotEqual(t, stale.RegistrationCode, again.RegistrationCode)
	assert.NotEqual(t, stale.BibNumbers, again.BibNumbers, "bibs are never reused")
}

func TestParsePaymentStatus(t *testing.T) {
	tests := []struct {
		in   string
		want core.PaymentStatus
	}{
		{"settlement", core.PaymentSuccess},
		{"PAID", core.PaymentSuccess},
		{" deny ", core.PaymentFailed},
		{"expire", core.PaymentExpired},
		{"canceled", core.PaymentCancelled},
		{"refund", core.PaymentRefunded},
		{"pending", core.PaymentPending},
	}
	for _, tt := range tests {
		got, err := core.ParsePaymentStatus(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := core.ParsePaymentStatus("chargeback")
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, core.CanTransition(core.PaymentPending, core.PaymentExpired))
	assert.True(t, core.CanTransition(core.PaymentSuccess, core.PaymentRefunded))
	assert.False(t, core.CanTransition(core.PaymentExpired, core.PaymentSuccess))
	assert.False(t, core.CanTransition(core.PaymentRefunded, core.PaymentSuccess))
}
