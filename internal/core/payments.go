package core

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/codenamekii/Sukamaju-run-2025-V2-sub000/internal/logging"
)

// expireBatchSize bounds the payments expired per transaction.
const expireBatchSize = 100

// paymentTransitions lists the allowed next states of each payment status.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending: {PaymentSuccess, PaymentFailed, PaymentExpired, PaymentCancelled},
	PaymentSuccess: {PaymentRefunded},
}

// CanTransition reports whether a payment may move from one status to another.
func CanTransition(from, to PaymentStatus) bool {
	for _, next := range paymentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ParsePaymentStatus accepts gateway spellings such as "settlement" or "paid".
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PENDING":
		return PaymentPending, nil
	case "SUCCESS", "PAID", "SETTLEMENT", "CAPTURE":
		return PaymentSuccess, nil
	case "FAILED", "FAILURE", "DENY":
		return PaymentFailed, nil
	case "EXPIRED", "EXPIRE":
		return PaymentExpired, nil
	case "CANCELLED", "CANCELED", "CANCEL":
		return PaymentCancelled, nil
	case "REFUNDED", "REFUND":
		return PaymentRefunded, nil
	}
	return "", Invalid("parse payment status", ValidationError{
		Field:   "status",
		Value:   s,
		Message: "must be one of PENDING, SUCCESS, FAILED, EXPIRED, CANCELLED, REFUNDED",
	})
}

// ownerStatus is the registration status that follows a payment status.
func ownerStatus(s PaymentStatus) Status {
	if s == PaymentSuccess {
		return StatusConfirmed
	}
	return StatusCancelled
}

// PaymentUpdate is a status change reported by the payment gateway.
type PaymentUpdate struct {
	Code      string        `json:"paymentCode"`
	Status    PaymentStatus `json:"status"`
	Reference string        `json:"reference,omitempty"`
}

// ApplyPaymentStatus moves a payment to a new status and updates its owner.
// Repeating the current status is a no-op.
func (s *Service) ApplyPaymentStatus(ctx context.Context, u PaymentUpdate) (*Payment, error) {
	const op = "apply payment status"
	ctx, span := tracer.Start(ctx, "core.ApplyPaymentStatus")
	defer span.End()
	span.SetAttributes(
		attribute.String("payment_code", u.Code),
		attribute.String("status", string(u.Status)),
	)

	code := strings.ToUpper(strings.TrimSpace(u.Code))
	if code == "" {
		return nil, fail(span, Invalid(op, ValidationError{Field: "paymentCode", Message: "is required"}))
	}

	var out *Payment
	err := s.runTx(ctx, op, func(q Queries) error {
		pay, err := q.GetPaymentByCode(ctx, code)
		if err != nil {
			if KindOf(err) == KindNotFound {
				return NotFound("payment", code)
			}
			return err
		}
		if pay.Status == u.Status {
			out = pay
			return nil
		}
		if !CanTransition(pay.Status, u.Status) {
			return Invalid(op, ValidationError{
				Field:   "status",
				Value:   string(u.Status),
				Message: fmt.Sprintf("cannot move payment from %s to %s", pay.Status, u.Status),
			})
		}
		updated, err := s.transition(ctx, q, pay, u.Status, u.Reference)
		if err != nil {
			return err
		}
		out = updated
		return nil
	})
	if err != nil {
		if KindOf(err) == KindInternal {
			logging.FromContext(ctx).Error("payment update failed", "payment_code", code, "error", err)
			err = Internal(op, err)
		}
		return nil, fail(span, err)
	}
	return out, nil
}

// transition writes the status change, the owner change and the outbox
// event through q.
func (s *Service) transition(ctx context.Context, q Queries, pay *Payment, to PaymentStatus, reference string) (*Payment, error) {
	now := s.now()
	from := pay.Status

	if err := q.UpdatePaymentStatus(ctx, pay.Code, to, reference, now); err != nil {
		return nil, err
	}
	owner := ownerStatus(to)
	if err := q.UpdateOwnerStatus(ctx, pay, owner, now); err != nil {
		return nil, err
	}

	ev, err := newOutboxEvent(EventPaymentStatusChanged, pay.RegistrationCode, PaymentStatusChangedPayload{
		PaymentCode:      pay.Code,
		RegistrationCode: pay.RegistrationCode,
		From:             from,
		To:               to,
		Amount:           pay.Amount,
		OwnerStatus:      owner,
		ChangedAt:        now,
	}, now)
	if err != nil {
		return nil, err
	}
	if err := q.InsertOutboxEvent(ctx, ev); err != nil {
		return nil, err
	}

	updated := *pay
	updated.Status = to
	updated.UpdatedAt = now
	if reference != "" {
		updated.Reference = reference
	}
	if to == PaymentSuccess {
		updated.PaidAt = &now
	}

	logging.FromContext(ctx).Info("payment status changed",
		"payment_code", pay.Code,
		"registration_code", pay.RegistrationCode,
		"from", from,
		"to", to,
	)
	return &updated, nil
}

// ExpirePendingPayments expires every pending payment past its expiry and
// cancels its owner. It returns how many payments were expired.
func (s *Service) ExpirePendingPayments(ctx context.Context) (int, error) {
	const op = "expire payments"
	ctx, span := tracer.Start(ctx, "core.ExpirePendingPayments")
	defer span.End()

	total := 0
	for {
		n := 0
		err := s.runTx(ctx, op, func(q Queries) error {
			n = 0
			due, err := q.ListExpiredPendingPayments(ctx, s.now(), expireBatchSize)
			if err != nil {
				return err
			}
			for i := range due {
				if _, err := s.transition(ctx, q, &due[i], PaymentExpired, ""); err != nil {
					return err
				}
				n++
			}
			return nil
		})
		if err != nil {
			return total, fail(span, err)
		}
		total += n
		if n < expireBatchSize {
			break
		}
	}

	span.SetAttributes(attribute.Int("expired", total))
	if total > 0 {
		logging.FromContext(ctx).Info("expired pending payments", "count", total)
	}
	return total, nil
}
