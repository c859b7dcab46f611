package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/codenamekii/Sukamaju-run-2025-V2-sub000/internal/logging"
)

// Outbox event types.
const (
	EventRegistrationCreated  = "registration.created"
	EventPaymentStatusChanged = "payment.status_changed"
)

// maxBackoff caps the delay between delivery attempts.
const maxBackoff = time.Hour

// RegistrationCreatedPayload announces a committed registration to the
// notification collaborator.
type RegistrationCreatedPayload struct {
	RegistrationCode string        `json:"registrationCode"`
	Kind             Source        `json:"kind"`
	Category         Category      `json:"category"`
	RecipientName    string        `json:"recipientName"`
	RecipientEmail   string        `json:"recipientEmail"`
	RecipientPhone   string        `json:"recipientPhone"`
	BibNumbers       []string      `json:"bibNumbers"`
	MemberCodes      []string      `json:"memberCodes,omitempty"`
	TotalPrice       int64         `json:"totalPrice"`
	PaymentCode      string        `json:"paymentCode"`
	PaymentStatus    PaymentStatus `json:"paymentStatus"`
	PaymentURL       string        `json:"paymentUrl,omitempty"`
	PaymentExpiresAt time.Time     `json:"paymentExpiresAt"`
}

// PaymentStatusChangedPayload announces a payment transition.
type PaymentStatusChangedPayload struct {
	PaymentCode      string        `json:"paymentCode"`
	RegistrationCode string        `json:"registrationCode"`
	From             PaymentStatus `json:"from"`
	To               PaymentStatus `json:"to"`
	Amount           int64         `json:"amount"`
	OwnerStatus      Status        `json:"ownerStatus"`
	ChangedAt        time.Time     `json:"changedAt"`
}

func newOutboxEvent(eventType, aggregate string, payload any, now time.Time) (*OutboxEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return &OutboxEvent{
		ID:            uuid.NewString(),
		Type:          eventType,
		AggregateCode: aggregate,
		Payload:       data,
		Status:        OutboxPending,
		NextAttemptAt: now,
		CreatedAt:     now,
	}, nil
}

// Notifier delivers one outbox event. Delivery is at-least-once; receivers
// deduplicate on the event ID.
type Notifier interface {
	Notify(ctx context.Context, ev OutboxEvent) error
}

// LogNotifier writes events to the log instead of delivering them.
type LogNotifier struct{}

// Notify logs ev.
func (LogNotifier) Notify(ctx context.Context, ev OutboxEvent) error {
	logging.FromContext(ctx).Info("outbox event",
		"event_id", ev.ID,
		"type", ev.Type,
		"registration_code", ev.AggregateCode,
		"payload", string(ev.Payload),
	)
	return nil
}

// DispatcherConfig tunes outbox delivery.
type DispatcherConfig struct {
	BatchSize   int
	MaxAttempts int
	Parallelism int
	BaseBackoff time.Duration
	// ClaimLease bounds how long a claimed event is hidden from other
	// dispatchers. It must outlast a delivery attempt.
	ClaimLease time.Duration
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// DispatchStats summarizes one dispatch pass.
type DispatchStats struct {
	Fetched   int `json:"fetched"`
	Delivered int `json:"delivered"`
	Retried   int `json:"retried"`
	Dead      int `json:"dead"`
}

// Dispatcher drains due outbox events through a Notifier.
type Dispatcher struct {
	store    Store
	notifier Notifier
	cfg      DispatcherConfig
	now      func() time.Time
}

// NewDispatcher creates a dispatcher. Zero config fields take defaults.
func NewDispatcher(store Store, notifier Notifier, cfg DispatcherConfig) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 8
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 30 * time.Second
	}
	if cfg.ClaimLease <= 0 {
		cfg.ClaimLease = 5 * time.Minute
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{store: store, notifier: notifier, cfg: cfg, now: now}
}

// Backoff returns the delay before attempt+1 after attempt failures.
func (d *Dispatcher) Backoff(attempt int) time.Duration {
	delay := d.cfg.BaseBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// DispatchOnce delivers the due batch. Notifier failures reschedule the event;
// the returned error reports store failures only.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (DispatchStats, error) {
	ctx, span := tracer.Start(ctx, "core.DispatchOnce")
	defer span.End()

	claimedAt := d.now()
	events, err := d.store.ClaimDueOutboxEvents(ctx, claimedAt, claimedAt.Add(d.cfg.ClaimLease), d.cfg.BatchSize)
	if err != nil {
		return DispatchStats{}, fail(span, fmt.Errorf("claim due outbox events: %w", err))
	}

	stats := DispatchStats{Fetched: len(events)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Parallelism)

	for _, ev := range events {
		g.Go(func() error {
			notifyErr := d.notifier.Notify(gctx, ev)
			now := d.now()

			if notifyErr == nil {
				if err := d.store.MarkOutboxDelivered(gctx, ev.ID, now); err != nil {
					return fmt.Errorf("mark event %s delivered: %w", ev.ID, err)
				}
				mu.Lock()
				stats.Delivered++
				mu.Unlock()
				return nil
			}

			attempts := ev.Attempts + 1
			dead := attempts >= d.cfg.MaxAttempts
			next := now.Add(d.Backoff(attempts))
			if err := d.store.MarkOutboxFailed(gctx, ev.ID, attempts, next, notifyErr.Error(), dead); err != nil {
				return fmt.Errorf("mark event %s failed: %w", ev.ID, err)
			}

			logger := logging.FromContext(gctx).With(
				"event_id", ev.ID,
				"type", ev.Type,
				"attempts", attempts,
				"error", notifyErr,
			)
			mu.Lock()
			if dead {
				stats.Dead++
				logger.Error("outbox event dead after max attempts")
			} else {
				stats.Retried++
				logger.Warn("outbox delivery failed, rescheduled", "next_attempt_at", next)
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return stats, fail(span, err)
	}
	return stats, nil
}
