package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// dateLayouts are accepted for time.Time fields, most specific first.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

var (
	timeType     = reflect.TypeOf(time.Time{})
	durationType = reflect.TypeOf(time.Duration(0))
)

// Load builds the configuration from the environment and the pricing table,
// then validates it.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := fillFromEnv(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	pricing, err := LoadPricing(cfg.Registration.PricingFile)
	if err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	cfg.Pricing = pricing

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// MustLoad is Load for main packages; it panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// envTag is the parsed form of a field's struct tags.
type envTag struct {
	name     string
	alt      string
	fallback string
	required bool
}

func tagFor(f reflect.StructField) (envTag, bool) {
	name := f.Tag.Get("env")
	if name == "" {
		return envTag{}, false
	}
	return envTag{
		name:     name,
		alt:      f.Tag.Get("envAlt"),
		fallback: f.Tag.Get("default"),
		required: f.Tag.Get("required") == "true",
	}, true
}

// resolve returns the raw value for the tag. An empty result with a nil
// error means the field keeps its zero value.
func (s envTag) resolve() (string, error) {
	if v := os.Getenv(s.name); v != "" {
		return v, nil
	}
	if s.alt != "" {
		if v := os.Getenv(s.alt); v != "" {
			return v, nil
		}
	}
	if s.required {
		return "", fmt.Errorf("required environment variable %s is not set", s.name)
	}
	return s.fallback, nil
}

// fillFromEnv walks v's fields, descending into nested config sections.
// Fields without an env tag are left for other loaders.
func fillFromEnv(v reflect.Value) error {
	for i := 0; i < v.NumField(); i++ {
		fv := v.Field(i)
		if !fv.CanSet() {
			continue
		}
		sf := v.Type().Field(i)

		if sf.Type.Kind() == reflect.Struct && sf.Type != timeType {
			if err := fillFromEnv(fv); err != nil {
				return err
			}
			continue
		}

		tag, ok := tagFor(sf)
		if !ok {
			continue
		}
		raw, err := tag.resolve()
		if err != nil {
			return err
		}
		if raw == "" {
			continue
		}
		if err := assign(fv, raw); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", tag.name, raw, err)
		}
	}
	return nil
}

// typedParsers handle named types whose Kind alone is ambiguous.
var typedParsers = map[reflect.Type]func(string) (any, error){
	timeType: func(s string) (any, error) { return parseTime(s) },
	durationType: func(s string) (any, error) {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("invalid duration: %w", err)
		}
		return d, nil
	},
}

// assign parses raw into fv according to fv's type.
func assign(fv reflect.Value, raw string) error {
	if parse, ok := typedParsers[fv.Type()]; ok {
		val, err := parse(raw)
		if err != nil {
			return err
		}
		fv.Set(reflect.ValueOf(val))
		return nil
	}

	switch fv.Kind() {
	case reflect.String:
		fv.SetString(raw)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		fv.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("invalid float: %w", err)
		}
		fv.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		fv.SetBool(b)
	case reflect.Slice:
		if fv.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", fv.Type().Elem().Kind())
		}
		fv.Set(reflect.ValueOf(splitList(raw)))
	default:
		return fmt.Errorf("unsupported field type: %s", fv.Kind())
	}
	return nil
}

// splitList splits a comma list, dropping blanks.
func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if out == nil {
		out = []string{}
	}
	return out
}

func parseTime(value string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD or RFC3339)", value)
}

// problems collects validation failures so Validate can report all of them.
type problems []string

func (p *problems) check(ok bool, format string, args ...any) {
	if !ok {
		*p = append(*p, fmt.Sprintf(format, args...))
	}
}

func oneOf(v string, allowed ...string) bool {
	v = strings.ToLower(v)
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// Validate reports every invalid setting in one error.
func (c *Config) Validate() error {
	var p problems

	db := c.Database
	p.check(oneOf(db.Driver, "postgres", "memory"),
		"STORE_DRIVER (%q) must be one of: postgres, memory", db.Driver)
	p.check(!strings.EqualFold(db.Driver, "postgres") || db.URL != "",
		"DATABASE_URL is required when STORE_DRIVER=postgres")
	p.check(db.MaxConns >= db.MinConns,
		"DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)", db.MaxConns, db.MinConns)
	p.check(db.MaxConns > 0, "DB_MAX_CONNS must be positive")
	p.check(db.MinConns >= 0, "DB_MIN_CONNS must be non-negative")

	srv := c.Server
	p.check(srv.Port > 0 && srv.Port <= 65535, "SERVER_PORT (%d) must be 1-65535", srv.Port)
	p.check(srv.ReadTimeout >= 0, "SERVER_READ_TIMEOUT must be non-negative")
	p.check(srv.ShutdownTimeout > 0, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	p.check(srv.MaxBodyBytes > 0, "SERVER_MAX_BODY_BYTES must be positive")

	reg := c.Registration
	p.check(!reg.EventDate.IsZero(), "EVENT_DATE is required")
	p.check(reg.TxTimeout > 0, "REGISTRATION_TX_TIMEOUT must be positive")
	p.check(reg.MaxTxRetries > 0, "REGISTRATION_MAX_TX_RETRIES must be positive")
	p.check(reg.PaymentExpiry > 0, "PAYMENT_EXPIRY must be positive")

	p.check(c.Import.MaxConcurrent > 0, "IMPORT_MAX_CONCURRENT must be positive")
	p.check(c.Import.MaxWaitTime > 0, "IMPORT_MAX_WAIT must be positive")
	p.check(c.Import.MaxRows > 0, "IMPORT_MAX_ROWS must be positive")

	ob := c.Outbox
	p.check(ob.BatchSize > 0, "OUTBOX_BATCH_SIZE must be positive")
	p.check(ob.MaxAttempts > 0, "OUTBOX_MAX_ATTEMPTS must be positive")
	p.check(ob.Parallelism > 0, "OUTBOX_PARALLELISM must be positive")
	p.check(ob.DispatchInterval > 0, "OUTBOX_DISPATCH_INTERVAL must be positive")
	p.check(ob.ClaimLease > 0, "OUTBOX_CLAIM_LEASE must be positive")
	p.check(c.Payment.ExpiryCheckInterval > 0, "PAYMENT_EXPIRY_CHECK_INTERVAL must be positive")

	sec := c.Security
	p.check(sec.RateLimit >= 0, "RATE_LIMIT must be non-negative")
	p.check(sec.RateLimit == 0 || sec.RateWindow > 0, "RATE_WINDOW must be positive when RATE_LIMIT is set")

	p.check(c.Tracing.SampleRatio >= 0 && c.Tracing.SampleRatio <= 1,
		"TRACING_SAMPLE_RATIO (%v) must be within 0-1", c.Tracing.SampleRatio)

	p = append(p, c.Pricing.validate()...)

	p.check(oneOf(c.Logging.Level, "debug", "info", "warn", "error"),
		"LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level)
	p.check(oneOf(c.Logging.Format, "text", "json"),
		"LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format)

	if len(p) == 0 {
		return nil
	}
	return fmt.Errorf("validation failed:\n  - %s", strings.Join(p, "\n  - "))
}

// String renders the config for logs with credentials masked.
func (c *Config) String() string {
	sections := []string{
		fmt.Sprintf("Server: {Host: %q, Port: %d}", c.Server.Host, c.Server.Port),
		fmt.Sprintf("Database: {Driver: %q, URL: [MASKED], MaxConns: %d, MinConns: %d}",
			c.Database.Driver, c.Database.MaxConns, c.Database.MinConns),
		fmt.Sprintf("Registration: {EventDate: %s, TxTimeout: %s, PaymentExpiry: %s}",
			c.Registration.EventDate.Format("2006-01-02"), c.Registration.TxTimeout, c.Registration.PaymentExpiry),
		fmt.Sprintf("Import: {MaxConcurrent: %d, MaxRows: %d}", c.Import.MaxConcurrent, c.Import.MaxRows),
		fmt.Sprintf("Outbox: {Webhook: %v, Secret: [MASKED]}", c.Outbox.WebhookURL != ""),
		fmt.Sprintf("Storage: {Bucket: %q, Keys: [MASKED]}", c.Storage.Bucket),
		fmt.Sprintf("Pricing: {Categories: %d, EarlyBirdCutoff: %s}",
			len(c.Pricing.Categories), c.Pricing.EarlyBirdCutoff),
		fmt.Sprintf("Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format),
	}
	return "Config{" + strings.Join(sections, ", ") + "}"
}
