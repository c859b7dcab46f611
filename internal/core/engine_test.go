package core_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codenamekii/Sukamaju-run-2025-V2-sub000/internal/config"
	"github.com/codenamekii/Sukamaju-run-2025-V2-sub000/internal/core"
	"github.com/codenamekii/Sukamaju-run-2025-V2-sub000/internal/memstore"
)

var wib = time.FixedZone("WIB", 7*3600)

// earlyBirdTime is before the default pricing cutoff.
var earlyBirdTime = time.Date(2025, 8, 1, 10, 0, 0, 0, wib)

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testConfig() *config.Config {
	return &config.Config{
		Registration: config.RegistrationConfig{
			EventDate:      time.Date(2025, 10, 19, 0, 0, 0, 0, time.UTC),
			TxTimeout:      5 * time.Second,
			MaxTxRetries:   3,
			PaymentExpiry:  24 * time.Hour,
			IdempotencyTTL: time.Hour,
		},
		Import: config.ImportConfig{
			MaxConcurrent: 2,
			MaxWaitTime:   time.Second,
			MaxRows:       100,
			Timeout:       time.Minute,
		},
		Payment: config.PaymentConfig{BaseURL: "https://pay.test/checkout"},
		Pricing: config.DefaultPricing(),
	}
}

type engine struct {
	svc   *core.Service
	store *memstore.Store
	clock *clock
}

func newEngine(t *testing.T, opts ...core.Option) *engine {
	return newEngineWith(t, testConfig(), nil, opts...)
}

// newEngineWith builds a service over a fresh memstore. wrap, when set,
// decorates the store the service sees.
func newEngineWith(t *testing.T, cfg *config.Config, wrap func(core.Store) core.Store, opts ...core.Option) *engine {
	t.Helper()
	ms := memstore.New()
	clk := &clock{now: earlyBirdTime}

	var store core.Store = ms
	if wrap != nil {
		store = wrap(ms)
	}
	svc, err := core.NewService(store, cfg, append([]core.Option{core.WithClock(clk.Now)}, opts...)...)
	require.NoError(t, err)
	return &engine{svc: svc, store: ms, clock: clk}
}

// runner returns a valid individual registrant unique to n.
func runner(n int) core.RegistrantInput {
	return core.RegistrantInput{
		FullName:       fmt.Sprintf("Pelari %d", n),
		Gender:         "P",
		DateOfBirth:    "1995-02-10",
		IdentityNumber: fmt.Sprintf("32020110029500%02d", n%100),
		Email:          fmt.Sprintf("pelari%d@example.com", n),
		WhatsApp:       fmt.Sprintf("0812%08d", n),
		City:           "Sukabumi",
		Province:       "Jawa Barat",
		Category:       "5K",
		JerseySize:     "M",
		EmergencyContact: core.EmergencyContactInput{
			Name:  "Keluarga",
			Phone: "081300000000",
		},
	}
}

func groupRequest(members int, offset int) core.GroupRequest {
	req := core.GroupRequest{
		CommunityName: "Sukabumi Runners",
		PICName:       "Andi Pratama",
		PICEmail:      "andi@example.com",
		PICWhatsApp:   "081399990000",
		Category:      "10K",
	}
	for i := 0; i < members; i++ {
		m := runner(offset + i)
		m.Category = ""
		m.EmergencyContact = core.EmergencyContactInput{}
		req.Members = append(req.Members, m)
	}
	return req
}

// faultStore wraps a Store and lets a test intercept queries inside
// transactions.
type faultStore struct {
	core.Store
	wrapTx func(core.Queries) core.Queries
	before func(ctx context.Context) error
}

func (f *faultStore) WithTx(ctx context.Context, fn func(q core.Queries) error) error {
	if f.before != nil {
		if err := f.before(ctx); err != nil {
			return err
		}
	}
	return f.Store.WithTx(ctx, func(q core.Queries) error {
		if f.wrapTx != nil {
			q = f.wrapTx(q)
		}
		return fn(q)
	})
}

// failingPayments fails every payment insert after everything before it
// in the transaction has been written.
type failingPayments struct {
	core.Queries
}

func (failingPayments) InsertPayment(context.Context, *core.Payment) error {
	return fmt.Errorf("injected payment failure")
}

// takenBibs reports every bib in taken as already present.
type takenBibs struct {
	core.Queries
	taken map[string]bool
}

func (q takenBibs) BibExists(ctx context.Context, bib string) (bool, error) {
	if q.taken[bib] {
		return true, nil
	}
	return q.Queries.BibExists(ctx, bib)
}
