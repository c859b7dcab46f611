package core

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/codenamekii/Sukamaju-run-2025-V2-sub000/internal/config"
	"github.com/codenamekii/Sukamaju-run-2025-V2-sub000/internal/logging"
)

var tracer = otel.Tracer("github.com/codenamekii/Sukamaju-run-2025-V2-sub000/internal/core")

// retryBaseDelay is the first backoff between conflicting transaction attempts.
var retryBaseDelay = 20 * time.Millisecond

// Settings are the coordinator's tunables.
type Settings struct {
	EventDate      time.Time
	TxTimeout      time.Duration
	MaxTxRetries   int
	PaymentExpiry  time.Duration
	IdempotencyTTL time.Duration
	PaymentBaseURL string
	ImportMaxRows  int
	ImportTimeout  time.Duration
}

// SettingsFromConfig extracts Settings from application configuration.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		EventDate:      cfg.Registration.EventDate,
		TxTimeout:      cfg.Registration.TxTimeout,
		MaxTxRetries:   cfg.Registration.MaxTxRetries,
		PaymentExpiry:  cfg.Registration.PaymentExpiry,
		IdempotencyTTL: cfg.Registration.IdempotencyTTL,
		PaymentBaseURL: cfg.Payment.BaseURL,
		ImportMaxRows:  cfg.Import.MaxRows,
		ImportTimeout:  cfg.Import.Timeout,
	}
}

// ReportArchiver stores finished import reports outside the database.
type ReportArchiver interface {
	ArchiveImportReport(ctx context.Context, importID string, report *ImportReport) (string, error)
}

// Service is the registration engine: coordinator, importer and payment
// state machine over a Store.
type Service struct {
	store    Store
	pricing  *PriceTable
	bibs     *BibAllocator
	limiter  *ImportLimiter
	idem     *gocache.Cache
	archiver ReportArchiver
	settings Settings
	now      func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithArchiver archives every import report through a.
func WithArchiver(a ReportArchiver) Option {
	return func(s *Service) { s.archiver = a }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithSettings overrides the settings derived from configuration.
func WithSettings(settings Settings) Option {
	return func(s *Service) { s.settings = settings }
}

// WithImportLimiter replaces the limiter built from configuration.
func WithImportLimiter(l *ImportLimiter) Option {
	return func(s *Service) { s.limiter = l }
}

// NewService creates the engine over store.
func NewService(store Store, cfg *config.Config, opts ...Option) (*Service, error) {
	pricing, err := NewPriceTable(cfg.Pricing)
	if err != nil {
		return nil, fmt.Errorf("build price table: %w", err)
	}

	s := &Service{
		store:    store,
		pricing:  pricing,
		bibs:     NewBibAllocator(pricing),
		limiter:  NewImportLimiter(cfg.Import.MaxConcurrent, cfg.Import.MaxWaitTime),
		settings: SettingsFromConfig(cfg),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.settings.MaxTxRetries <= 0 {
		s.settings.MaxTxRetries = 1
	}
	ttl := s.settings.IdempotencyTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	s.idem = gocache.New(ttl, ttl/2)
	s.bibs.now = s.now

	return s, nil
}

// Pricing returns the price table.
func (s *Service) Pricing() *PriceTable { return s.pricing }

// Quote prices one runner from raw category and jersey input. A nil earlyBird
// uses the early-bird window at the current time.
func (s *Service) Quote(category, jersey string, earlyBird *bool) (IndividualQuote, error) {
	c, err := s.pricing.ParseCategory(category)
	if err != nil {
		return IndividualQuote{}, err
	}
	size, err := s.pricing.ParseJerseySize(jersey)
	if err != nil {
		return IndividualQuote{}, err
	}
	early := s.pricing.IsEarlyBird(s.now())
	if earlyBird != nil {
		early = *earlyBird
	}
	return s.pricing.PriceIndividual(c, size, early)
}

// Store returns the underlying store.
func (s *Service) Store() Store { return s.store }

// Ping checks store connectivity.
func (s *Service) Ping(ctx context.Context) error { return s.store.Ping(ctx) }

// ImportLimiterStatus returns the import limiter state for monitoring.
func (s *Service) ImportLimiterStatus() ImportLimiterStatus { return s.limiter.Status() }

// WaitForImports blocks until in-flight imports finish or ctx is done.
func (s *Service) WaitForImports(ctx context.Context) error { return s.limiter.WaitForDrain(ctx) }

// runTx runs fn in a transaction, retrying conflicts with jittered
// exponential backoff. fn must regenerate anything it derives per attempt.
func (s *Service) runTx(ctx context.Context, op string, fn func(q Queries) error) error {
	attempts := s.settings.MaxTxRetries
	var err error

	for attempt := 1; attempt <= attempts; attempt++ {
		err = s.store.WithTx(ctx, fn)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				return &Error{Kind: KindTransactionTimeout, Op: op, Message: "transaction did not complete in time", Err: err}
			}
			return ctxErr
		}
		if !retryable(err) {
			return err
		}

		logging.FromContext(ctx).Debug("transaction conflict, retrying",
			"op", op,
			"attempt", attempt,
			"error", err,
		)
		if attempt == attempts {
			break
		}

		delay := retryBaseDelay << (attempt - 1)
		delay += time.Duration(rand.Int64N(int64(retryBaseDelay)))
		select {
		case <-ctx.Done():
			return &Error{Kind: KindTransactionTimeout, Op: op, Message: "transaction did not complete in time", Err: ctx.Err()}
		case <-time.After(delay):
		}
	}

	if KindOf(err) == KindTransactionConflict {
		return err
	}
	return Conflict(op, err)
}

// newCode returns prefix-XXXXXXXX with 8 random hex digits.
func newCode(prefix string) string {
	id := uuid.New()
	return prefix + "-" + strings.ToUpper(hex.EncodeToString(id[:4]))
}

// memberCode is the sub-code of member seq in a group.
func memberCode(groupCode string, seq int) string {
	return fmt.Sprintf("%s-M%02d", groupCode, seq)
}

func (s *Service) paymentURL(code string) string {
	base := strings.TrimRight(s.settings.PaymentBaseURL, "/")
	if base == "" {
		return ""
	}
	return base + "/" + url.PathEscape(code)
}

// fail records err on span and returns it.
func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, KindOf(err).String())
	return err
}
