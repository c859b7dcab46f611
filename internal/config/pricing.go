package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed pricing.yaml
var defaultPricingYAML []byte

// PricingConfig is the price table, category rules and group promotion.
type PricingConfig struct {
	// EarlyBirdCutoff is the instant early-bird pricing ends (RFC3339)
	EarlyBirdCutoff string `yaml:"early_bird_cutoff"`

	JerseySizes       []string `yaml:"jersey_sizes"`
	PlusSizes         []string `yaml:"plus_sizes"`
	PlusSizeSurcharge int64    `yaml:"plus_size_surcharge"`

	Group GroupPricing `yaml:"group"`

	Categories []CategoryPricing `yaml:"categories"`
}

// GroupPricing holds community registration bounds and the free-slot promotion.
type GroupPricing struct {
	MinMembers int `yaml:"min_members"`
	MaxMembers int `yaml:"max_members"`

	// FreeEvery grants one free member for every FreeEvery paying members.
	// Zero disables the promotion.
	FreeEvery int `yaml:"free_every"`
}

// CategoryPricing is one race category row of the price table.
type CategoryPricing struct {
	Code           string `yaml:"code"`
	Label          string `yaml:"label"`
	EarlyBirdPrice int64  `yaml:"early_bird_price"`
	RegularPrice   int64  `yaml:"regular_price"`
	GroupUnitPrice int64  `yaml:"group_unit_price"`
	BibPrefix      string `yaml:"bib_prefix"`
	BibDigits      int    `yaml:"bib_digits"`
	Quota          int    `yaml:"quota"`
	MinAge         int    `yaml:"min_age"`
}

// DefaultPricing returns the embedded price table.
func DefaultPricing() PricingConfig {
	p, err := ParsePricing(defaultPricingYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded pricing table is invalid: %v", err))
	}
	return p
}

// LoadPricing reads the table at path, or the embedded default when path is empty.
func LoadPricing(path string) (PricingConfig, error) {
	if path == "" {
		return ParsePricing(defaultPricingYAML)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return PricingConfig{}, fmt.Errorf("read pricing file: %w", err)
	}
	p, err := ParsePricing(data)
	if err != nil {
		return PricingConfig{}, fmt.Errorf("pricing file %s: %w", path, err)
	}
	return p, nil
}

// ParsePricing decodes a YAML price table.
func ParsePricing(data []byte) (PricingConfig, error) {
	var p PricingConfig
	if err := yaml.Unmarshal(data, &p); err != nil {
		return PricingConfig{}, fmt.Errorf("parse pricing: %w", err)
	}
	if errs := p.validate(); len(errs) > 0 {
		return PricingConfig{}, fmt.Errorf("invalid pricing: %s", strings.Join(errs, "; "))
	}
	return p, nil
}

// Cutoff parses EarlyBirdCutoff. A blank cutoff means early-bird never applies.
func (p *PricingConfig) Cutoff() (time.Time, error) {
	if p.EarlyBirdCutoff == "" {
		return time.Time{}, nil
	}
	return parseTime(p.EarlyBirdCutoff)
}

func (p *PricingConfig) validate() []string {
	var errs []string

	if len(p.Categories) == 0 {
		errs = append(errs, "pricing defines no categories")
	}
	if len(p.JerseySizes) == 0 {
		errs = append(errs, "pricing defines no jersey sizes")
	}
	if _, err := p.Cutoff(); err != nil {
		errs = append(errs, "early_bird_cutoff: "+err.Error())
	}
	if p.PlusSizeSurcharge < 0 {
		errs = append(errs, "plus_size_surcharge must be non-negative")
	}
	if p.Group.MinMembers <= 0 || p.Group.MaxMembers < p.Group.MinMembers {
		errs = append(errs, fmt.Sprintf("group bounds [%d, %d] are invalid", p.Group.MinMembers, p.Group.MaxMembers))
	}
	if p.Group.FreeEvery < 0 {
		errs = append(errs, "group.free_every must be non-negative")
	}

	seen := make(map[string]bool)
	for _, c := range p.Categories {
		code := strings.ToUpper(strings.TrimSpace(c.Code))
		switch {
		case code == "":
			errs = append(errs, "category with empty code")
			continue
		case seen[code]:
			errs = append(errs, fmt.Sprintf("category %s defined twice", code))
		}
		seen[code] = true
		if c.EarlyBirdPrice < 0 || c.RegularPrice < 0 || c.GroupUnitPrice < 0 {
			errs = append(errs, fmt.Sprintf("category %s has a negative price", code))
		}
		if c.BibPrefix == "" || c.BibDigits <= 0 {
			errs = append(errs, fmt.Sprintf("category %s needs bib_prefix and bib_digits", code))
		}
		if c.Quota <= 0 {
			errs = append(errs, fmt.Sprintf("category %s quota must be positive", code))
		}
	}

	return errs
}
