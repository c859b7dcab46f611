package core

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/codenamekii/Sukamaju-run-2025-V2-sub000/internal/config"
)

// CategoryRule is the configuration of one race category.
type CategoryRule struct {
	Code           Category `json:"code"`
	Label          string   `json:"label"`
	EarlyBirdPrice int64    `json:"earlyBirdPrice"`
	RegularPrice   int64    `json:"regularPrice"`
	GroupUnitPrice int64    `json:"groupUnitPrice"`
	BibPrefix      string   `json:"bibPrefix"`
	BibDigits      int      `json:"bibDigits"`
	Quota          int      `json:"quota"`
	MinAge         int      `json:"minAge"`
}

// PriceTable prices registrations. It is immutable after construction and
// safe for concurrent use.
type PriceTable struct {
	categories map[Category]CategoryRule
	order      []Category
	jerseys    map[JerseySize]bool
	sizes      []JerseySize
	plus       map[JerseySize]bool
	surcharge  int64
	cutoff     time.Time
	groupMin   int
	groupMax   int
	freeEvery  int
}

// IndividualQuote is the price of one participant.
type IndividualQuote struct {
	Category    Category   `json:"category"`
	JerseySize  JerseySize `json:"jerseySize"`
	EarlyBird   bool       `json:"earlyBird"`
	BasePrice   int64      `json:"basePrice"`
	JerseyAddOn int64      `json:"jerseyAddOn"`
	TotalPrice  int64      `json:"totalPrice"`
}

// MemberQuote is one member's share of a group price.
type MemberQuote struct {
	Sequence    int        `json:"sequence"`
	JerseySize  JerseySize `json:"jerseySize"`
	BasePrice   int64      `json:"basePrice"`
	JerseyAddOn int64      `json:"jerseyAddOn"`
	TotalPrice  int64      `json:"totalPrice"`
	FreeSlot    bool       `json:"freeSlot"`
}

// GroupQuote is the price of a community registration.
type GroupQuote struct {
	Category         Category      `json:"category"`
	MemberCount      int           `json:"memberCount"`
	BasePrice        int64         `json:"basePrice"`
	TotalBase        int64         `json:"totalBase"`
	JerseyAddOnTotal int64         `json:"jerseyAddOnTotal"`
	PromoDiscount    int64         `json:"promoDiscount"`
	FinalPrice       int64         `json:"finalPrice"`
	PricePerPerson   int64         `json:"pricePerPerson"`
	Savings          int64         `json:"savings"`
	FreeSlots        int           `json:"freeSlots"`
	Members          []MemberQuote `json:"members"`
}

// NewPriceTable builds a table from configuration.
func NewPriceTable(cfg config.PricingConfig) (*PriceTable, error) {
	cutoff, err := cfg.Cutoff()
	if err != nil {
		return nil, fmt.Errorf("pricing cutoff: %w", err)
	}

	t := &PriceTable{
		categories: make(map[Category]CategoryRule, len(cfg.Categories)),
		jerseys:    make(map[JerseySize]bool, len(cfg.JerseySizes)),
		plus:       make(map[JerseySize]bool, len(cfg.PlusSizes)),
		surcharge:  cfg.PlusSizeSurcharge,
		cutoff:     cutoff,
		groupMin:   cfg.Group.MinMembers,
		groupMax:   cfg.Group.MaxMembers,
		freeEvery:  cfg.Group.FreeEvery,
	}

	for _, c := range cfg.Categories {
		code := Category(strings.ToUpper(strings.TrimSpace(c.Code)))
		if _, dup := t.categories[code]; dup {
			return nil, fmt.Errorf("category %s defined twice", code)
		}
		t.categories[code] = CategoryRule{
			Code:           code,
			Label:          c.Label,
			EarlyBirdPrice: c.EarlyBirdPrice,
			RegularPrice:   c.RegularPrice,
			GroupUnitPrice: c.GroupUnitPrice,
			BibPrefix:      c.BibPrefix,
			BibDigits:      c.BibDigits,
			Quota:          c.Quota,
			MinAge:         c.MinAge,
		}
		t.order = append(t.order, code)
	}
	for _, s := range cfg.JerseySizes {
		size := JerseySize(strings.ToUpper(strings.TrimSpace(s)))
		if !t.jerseys[size] {
			t.jerseys[size] = true
			t.sizes = append(t.sizes, size)
		}
	}
	for _, s := range cfg.PlusSizes {
		size := JerseySize(strings.ToUpper(strings.TrimSpace(s)))
		if !t.jerseys[size] {
			return nil, fmt.Errorf("plus size %s is not a jersey size", size)
		}
		t.plus[size] = true
	}
	if len(t.categories) == 0 {
		return nil, fmt.Errorf("pricing defines no categories")
	}

	return t, nil
}

// Category returns the rule for c.
func (t *PriceTable) Category(c Category) (CategoryRule, error) {
	rule, ok := t.categories[c]
	if !ok {
		return CategoryRule{}, Invalid("price", ValidationError{
			Field:   "category",
			Value:   string(c),
			Message: "must be one of " + t.categoryList(),
		})
	}
	return rule, nil
}

// Categories returns every rule in configuration order.
func (t *PriceTable) Categories() []CategoryRule {
	out := make([]CategoryRule, 0, len(t.order))
	for _, c := range t.order {
		out = append(out, t.categories[c])
	}
	return out
}

// JerseySizes returns the offered sizes in configuration order.
func (t *PriceTable) JerseySizes() []JerseySize {
	return append([]JerseySize(nil), t.sizes...)
}

// GroupBounds returns the minimum and maximum group size.
func (t *PriceTable) GroupBounds() (minMembers, maxMembers int) {
	return t.groupMin, t.groupMax
}

// IsEarlyBird reports whether a registration submitted at `at` gets the early-bird price.
func (t *PriceTable) IsEarlyBird(at time.Time) bool {
	return !t.cutoff.IsZero() && !at.After(t.cutoff)
}

// ParseCategory accepts common spellings ("5k", "5 KM", "10K") of a configured category.
func (t *PriceTable) ParseCategory(s string) (Category, error) {
	norm := strings.ToUpper(strings.Join(strings.Fields(s), ""))
	if strings.HasSuffix(norm, "KM") {
		norm = strings.TrimSuffix(norm, "M")
	}
	c := Category(norm)
	if _, err := t.Category(c); err != nil {
		return "", Invalid("parse category", ValidationError{
			Field:   "category",
			Value:   s,
			Message: "must be one of " + t.categoryList(),
		})
	}
	return c, nil
}

// ParseJerseySize accepts "m", "XL", "2XL", "3xl" and similar.
func (t *PriceTable) ParseJerseySize(s string) (JerseySize, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	switch norm {
	case "2XL":
		norm = "XXL"
	case "3XL":
		norm = "XXXL"
	}
	size := JerseySize(norm)
	if !t.jerseys[size] {
		return "", Invalid("parse jersey size", ValidationError{
			Field:   "jerseySize",
			Value:   s,
			Message: "must be one of " + t.sizeList(),
		})
	}
	return size, nil
}

// JerseyAddOn returns the surcharge for size.
func (t *PriceTable) JerseyAddOn(size JerseySize) int64 {
	if t.plus[size] {
		return t.surcharge
	}
	return 0
}

// PriceIndividual prices one participant.
func (t *PriceTable) PriceIndividual(c Category, size JerseySize, earlyBird bool) (IndividualQuote, error) {
	rule, err := t.Category(c)
	if err != nil {
		return IndividualQuote{}, err
	}
	if !t.jerseys[size] {
		return IndividualQuote{}, Invalid("price", ValidationError{
			Field:   "jerseySize",
			Value:   string(size),
			Message: "must be one of " + t.sizeList(),
		})
	}

	base := rule.RegularPrice
	if earlyBird {
		base = rule.EarlyBirdPrice
	}
	addOn := t.JerseyAddOn(size)

	return IndividualQuote{
		Category:    c,
		JerseySize:  size,
		EarlyBird:   earlyBird,
		BasePrice:   base,
		JerseyAddOn: addOn,
		TotalPrice:  base + addOn,
	}, nil
}

// FreeSlots returns how many members of a group of n ride free.
func (t *PriceTable) FreeSlots(n int) int {
	if t.freeEvery <= 0 {
		return 0
	}
	return n / (t.freeEvery + 1)
}

// PriceGroup prices a community registration. sizes holds each member's
// jersey in member order; the highest-sequence members take the free slots
// and pay only their jersey surcharge.
func (t *PriceTable) PriceGroup(c Category, sizes []JerseySize) (GroupQuote, error) {
	rule, err := t.Category(c)
	if err != nil {
		return GroupQuote{}, err
	}
	n := len(sizes)
	if n == 0 {
		return GroupQuote{}, Invalid("price group", ValidationError{
			Field:   "members",
			Message: "group has no members",
		})
	}

	var fields []ValidationError
	for i, s := range sizes {
		if !t.jerseys[s] {
			fields = append(fields, ValidationError{
				Field:   fmt.Sprintf("members[%d].jerseySize", i),
				Value:   string(s),
				Message: "must be one of " + t.sizeList(),
			})
		}
	}
	if len(fields) > 0 {
		return GroupQuote{}, Invalid("price group", fields...)
	}

	free := t.FreeSlots(n)
	q := GroupQuote{
		Category:    c,
		MemberCount: n,
		BasePrice:   rule.GroupUnitPrice,
		TotalBase:   int64(n) * rule.GroupUnitPrice,
		FreeSlots:   free,
		Members:     make([]MemberQuote, n),
	}

	for i, s := range sizes {
		addOn := t.JerseyAddOn(s)
		m := MemberQuote{
			Sequence:    i + 1,
			JerseySize:  s,
			BasePrice:   rule.GroupUnitPrice,
			JerseyAddOn: addOn,
			FreeSlot:    i >= n-free,
		}
		if m.FreeSlot {
			m.BasePrice = 0
		}
		m.TotalPrice = m.BasePrice + m.JerseyAddOn
		q.Members[i] = m
		q.JerseyAddOnTotal += addOn
	}

	q.PromoDiscount = int64(free) * rule.GroupUnitPrice
	q.FinalPrice = q.TotalBase + q.JerseyAddOnTotal - q.PromoDiscount
	q.PricePerPerson = (q.FinalPrice + int64(n) - 1) / int64(n)
	q.Savings = int64(n)*rule.RegularPrice + q.JerseyAddOnTotal - q.FinalPrice

	return q, nil
}

func (t *PriceTable) categoryList() string {
	names := make([]string, len(t.order))
	for i, c := range t.order {
		names[i] = string(c)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func (t *PriceTable) sizeList() string {
	names := make([]string, len(t.sizes))
	for i, s := range t.sizes {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}
