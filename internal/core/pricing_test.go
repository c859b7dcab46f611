package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/codenamekii/Sukamaju-run-2025-V2-sub000/internal/config"
)

func defaultTable(t testing.TB) *PriceTable {
	t.Helper()
	pt, err := NewPriceTable(config.DefaultPricing())
	require.NoError(t, err)
	return pt
}

func TestPriceIndividual(t *testing.T) {
	pt := defaultTable(t)

	tests := []struct {
		category  Category
		size      JerseySize
		earlyBird bool
		want      int64
	}{
		{"5K", "M", true, 162000},
		{"5K", "M", false, 180000},
		{"10K", "XXL", true, 207000 + 20000},
		{"10K", "S", false, 230000},
		{"5K", "XXXL", false, 180000 + 20000},
	}

	for _, tt := range tests {
		t.Run(string(tt.category)+"/"+string(tt.size), func(t *testing.T) {
			q, err := pt.PriceIndividual(tt.category, tt.size, tt.earlyBird)
			require.NoError(t, err)
			assert.Equal(t, tt.want, q.TotalPrice)
			assert.Equal(t, q.BasePrice+q.JerseyAddOn, q.TotalPrice)
		})
	}
}

func TestPriceIndividual_Rejects(t *testing.T) {
	pt := defaultTable(t)

	_, err := pt.PriceIndividual("21K", "M", false)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = pt.PriceIndividual("5K", "XXS", false)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestIsEarlyBird(t *testing.T) {
	pt := defaultTable(t)
	wib := time.FixedZone("WIB", 7*3600)

	assert.True(t, pt.IsEarlyBird(time.Date(2025, 8, 31, 23, 59, 59, 0, wib)))
	assert.False(t, pt.IsEarlyBird(time.Date(2025, 9, 1, 0, 0, 0, 0, wib)))
}

func TestParseCategoryAndJersey(t *testing.T) {
	pt := defaultTable(t)

	for in, want := range map[string]Category{"5k": "5K", "5 KM": "5K", " 10K ": "10K", "10km": "10K"} {
		got, err := pt.ParseCategory(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := pt.ParseCategory("marathon")
	assert.ErrorIs(t, err, ErrValidation)

	for in, want := range map[string]JerseySize{"m": "M", "2xl": "XXL", "3XL": "XXXL", " xs ": "XS"} {
		got, err := pt.ParseJerseySize(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestPriceGroup(t *testing.T) {
	pt := defaultTable(t)

	t.Run("five members, no free slot", func(t *testing.T) {
		q, err := pt.PriceGroup("5K", []JerseySize{"M", "M", "L", "XXL", "S"})
		require.NoError(t, err)
		assert.Equal(t, 0, q.FreeSlots)
		assert.Equal(t, int64(5*170000), q.TotalBase)
		assert.Equal(t, int64(20000), q.JerseyAddOnTotal)
		assert.Equal(t, int64(5*170000+20000), q.FinalPrice)
	})

	t.Run("eleven members, one free slot at the end", func(t *testing.T) {
		sizes := make([]JerseySize, 11)
		for i := range sizes {
			sizes[i] = "M"
		}
		sizes[10] = "XXL"

		q, err := pt.PriceGroup("10K", sizes)
		require.NoError(t, err)
		assert.Equal(t, 1, q.FreeSlots)
		assert.Equal(t, int64(215000), q.PromoDiscount)
		assert.Equal(t, int64(10*215000+20000), q.FinalPrice)

		last := q.Members[10]
		assert.True(t, last.FreeSlot)
		assert.Equal(t, int64(0), last.BasePrice)
		assert.Equal(t, int64(20000), last.TotalPrice, "free member still pays the plus-size surcharge")
		assert.False(t, q.Members[0].FreeSlot)
	})

	t.Run("invalid jersey names the member", func(t *testing.T) {
		_, err := pt.PriceGroup("5K", []JerseySize{"M", "HUGE"})
		var e *Error
		require.ErrorAs(t, err, &e)
		require.Len(t, e.Fields, 1)
		assert.Equal(t, "members[1].jerseySize", e.Fields[0].Field)
	})
}

func TestFreeSlots(t *testing.T) {
	pt := defaultTable(t)
	for n, want := range map[int]int{5: 0, 10: 0, 11: 1, 21: 1, 22: 2, 50: 4} {
		assert.Equal(t, want, pt.FreeSlots(n), "n=%d", n)
	}
}

func TestPriceRoundTrip_Property(t *testing.T) {
	pt := defaultTable(t)
	categories := []Category{"5K", "10K"}
	sizes := pt.JerseySizes()

	rapid.Check(t, func(t *rapid.T) {
		c := rapid.SampledFrom(categories).Draw(t, "category")
		size := rapid.SampledFrom(sizes).Draw(t, "size")
		early := rapid.Bool().Draw(t, "early")

		q, err := pt.PriceIndividual(c, size, early)
		if err != nil {
			t.Fatalf("PriceIndividual: %v", err)
		}
		if q.TotalPrice != q.BasePrice+q.JerseyAddOn {
			t.Fatalf("total %d != base %d + add-on %d", q.TotalPrice, q.BasePrice, q.JerseyAddOn)
		}
	})
}

func TestPriceGroup_Property(t *testing.T) {
	pt := defaultTable(t)
	sizes := pt.JerseySizes()
	minMembers, maxMembers := pt.GroupBounds()

	rapid.Check(t, func(t *rapid.T) {
		members := rapid.SliceOfN(rapid.SampledFrom(sizes), minMembers, maxMembers).Draw(t, "members")

		q, err := pt.PriceGroup("5K", members)
		if err != nil {
			t.Fatalf("PriceGroup: %v", err)
		}

		var sum int64
		free := 0
		for _, m := range q.Members {
			if m.TotalPrice != m.BasePrice+m.JerseyAddOn {
				t.Fatalf("member %d: total %d != base %d + add-on %d", m.Sequence, m.TotalPrice, m.BasePrice, m.JerseyAddOn)
			}
			if m.FreeSlot {
				free++
			}
			sum += m.TotalPrice
		}
		if sum != q.FinalPrice {
			t.Fatalf("member totals %d != final price %d", sum, q.FinalPrice)
		}
		if free != q.FreeSlots {
			t.Fatalf("free members %d != free slots %d", free, q.FreeSlots)
		}
	})
}
