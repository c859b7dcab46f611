package core

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/codenamekii/Sukamaju-run-2025-V2-sub000/internal/logging"
)

// DefaultBibAttempts is how many sequence values are tried before a fallback
// bib is issued.
const DefaultBibAttempts = 10

// BibAllocator issues bib numbers from the persisted per-category counter.
// It must be called with Queries bound to the registration transaction so a
// failed registration releases nothing and leaks nothing.
type BibAllocator struct {
	pricing     *PriceTable
	maxAttempts int
	now         func() time.Time
}

// NewBibAllocator returns an allocator for the categories in pricing.
func NewBibAllocator(pricing *PriceTable) *BibAllocator {
	return &BibAllocator{pricing: pricing, maxAttempts: DefaultBibAttempts, now: time.Now}
}

// FormatBib renders sequence seq for rule, e.g. prefix "5", digits 4, seq 7 -> "50007".
func FormatBib(rule CategoryRule, seq int) string {
	return fmt.Sprintf("%s%0*d", rule.BibPrefix, rule.BibDigits, seq)
}

// Allocate returns one bib for category.
func (a *BibAllocator) Allocate(ctx context.Context, q Queries, category Category) (string, error) {
	bibs, err := a.AllocateBatch(ctx, q, category, 1)
	if err != nil {
		return "", err
	}
	return bibs[0], nil
}

// AllocateBatch returns n distinct bibs for category, reserving the counter
// range in one step. Values already taken (by manual edits or imports that
// bypassed the counter) are skipped transparently.
func (a *BibAllocator) AllocateBatch(ctx context.Context, q Queries, category Category, n int) ([]string, error) {
	rule, err := a.pricing.Category(category)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, Invalid("allocate bib", ValidationError{Field: "count", Value: strconv.Itoa(n), Message: "must be positive"})
	}

	first, err := q.ReserveBibSequence(ctx, category, n, rule.Quota)
	if err != nil {
		return nil, err
	}

	issued := make(map[string]bool, n)
	bibs := make([]string, 0, n)
	for i := 0; i < n; i++ {
		bib, err := a.claim(ctx, q, rule, first+i, issued)
		if err != nil {
			return nil, err
		}
		issued[bib] = true
		bibs = append(bibs, bib)
	}
	return bibs, nil
}

func (a *BibAllocator) claim(ctx context.Context, q Queries, rule CategoryRule, seq int, issued map[string]bool) (string, error) {
	logger := logging.FromContext(ctx)
	candidate := FormatBib(rule, seq)

	for attempt := 1; ; attempt++ {
		taken := issued[candidate]
		if !taken {
			exists, err := q.BibExists(ctx, candidate)
			if err != nil {
				return "", fmt.Errorf("check bib %s: %w", candidate, err)
			}
			taken = exists
		}
		if !taken {
			return candidate, nil
		}

		logger.Warn("bib collision, advancing sequence",
			"category", rule.Code,
			"bib", candidate,
			"attempt", attempt,
		)
		if attempt >= a.maxAttempts {
			break
		}

		next, err := q.ReserveBibSequence(ctx, rule.Code, 1, rule.Quota)
		if err != nil {
			return "", err
		}
		candidate = FormatBib(rule, next)
	}

	return a.fallback(ctx, q, rule, issued, logger)
}

// fallback issues prefix + "T" + base36 timestamp. These bibs sit outside
// the numeric range and are flagged in logs for manual reconciliation.
func (a *BibAllocator) fallback(ctx context.Context, q Queries, rule CategoryRule, issued map[string]bool, logger *slog.Logger) (string, error) {
	stamp := a.now().UnixNano()
	for {
		bib := rule.BibPrefix + "T" + strconv.FormatInt(stamp, 36)
		if !issued[bib] {
			exists, err := q.BibExists(ctx, bib)
			if err != nil {
				return "", fmt.Errorf("check bib %s: %w", bib, err)
			}
			if !exists {
				logger.Warn("fallback bib issued",
					"category", rule.Code,
					"bib", bib,
					"fallback", true,
				)
				return bib, nil
			}
		}
		stamp++
	}
}
