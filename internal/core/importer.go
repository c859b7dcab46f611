package core

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/codenamekii/Sukamaju-run-2025-V2-sub000/internal/logging"
)

// Import defaults for missing optional fields.
const (
	DefaultImportGender   = GenderMale
	DefaultImportAge      = 25
	DefaultImportJersey   = JerseySize("M")
	DefaultImportProvince = "Jawa Barat"
	DefaultImportCity     = "Sukabumi"

	placeholderEmergencyName = "Panitia Sukamaju Run"
)

// importRules: imports tolerate missing DOB, NIK and emergency contact.
var importRules = registrantRules{allowPlaceholders: true}

// ImportRow is one flat row of a bulk file, already split into cells.
// Free-text cells are parsed leniently.
type ImportRow struct {
	Row            int    `json:"row,omitempty"`
	FullName       string `json:"fullName"`
	Gender         string `json:"gender,omitempty"`
	Age            string `json:"age,omitempty"`
	DateOfBirth    string `json:"dateOfBirth,omitempty"`
	IdentityNumber string `json:"identityNumber,omitempty"`
	Email          string `json:"email,omitempty"`
	WhatsApp       string `json:"whatsapp,omitempty"`
	Address        string `json:"address,omitempty"`
	Province       string `json:"province,omitempty"`
	City           string `json:"city,omitempty"`
	Category       string `json:"category"`
	BibName        string `json:"bibName,omitempty"`
	JerseySize     string `json:"jerseySize,omitempty"`
	EmergencyName  string `json:"emergencyName,omitempty"`
	EmergencyPhone string `json:"emergencyPhone,omitempty"`
	MedicalInfo    string `json:"medicalInfo,omitempty"`
	PromoLabel     string `json:"promoLabel,omitempty"`
	EarlyBird      *bool  `json:"earlyBird,omitempty"`
}

// AppliedDefaults records which fields of a row were substituted.
type AppliedDefaults struct {
	Gender           bool `json:"gender,omitempty"`
	Age              bool `json:"age,omitempty"`
	JerseySize       bool `json:"jerseySize,omitempty"`
	Email            bool `json:"email,omitempty"`
	Phone            bool `json:"phone,omitempty"`
	Province         bool `json:"province,omitempty"`
	City             bool `json:"city,omitempty"`
	EmergencyContact bool `json:"emergencyContact,omitempty"`
}

// List names the defaulted fields in a stable order.
func (d AppliedDefaults) List() []string {
	var out []string
	for _, f := range []struct {
		set  bool
		name string
	}{
		{d.Gender, "gender"},
		{d.Age, "age"},
		{d.JerseySize, "jerseySize"},
		{d.Email, "email"},
		{d.Phone, "whatsapp"},
		{d.Province, "province"},
		{d.City, "city"},
		{d.EmergencyContact, "emergencyContact"},
	} {
		if f.set {
			out = append(out, f.name)
		}
	}
	return out
}

// PreparedRow is a row that passed validation and is ready to commit.
type PreparedRow struct {
	Row        int             `json:"row"`
	Registrant Registrant      `json:"registrant"`
	EarlyBird  bool            `json:"earlyBird"`
	Defaults   AppliedDefaults `json:"defaults"`
}

// RowError is a row rejected by validation or failed at commit.
type RowError struct {
	Row     int    `json:"row"`
	Field   string `json:"field,omitempty"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

// RowWarning is a non-fatal note about a row, such as a substituted default.
type RowWarning struct {
	Row     int    `json:"row"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// DuplicateRow is a row skipped because its identity is already registered.
type DuplicateRow struct {
	Row          int    `json:"row"`
	Email        string `json:"email,omitempty"`
	ExistingName string `json:"existingName,omitempty"`
	Message      string `json:"message"`
}

// ValidationReport is the outcome of validating a whole batch.
type ValidationReport struct {
	Valid      []PreparedRow  `json:"valid"`
	Errors     []RowError     `json:"errors"`
	Warnings   []RowWarning   `json:"warnings"`
	Duplicates []DuplicateRow `json:"duplicates"`
}

// ImportReport is the outcome of committing a batch.
type ImportReport struct {
	Success      int            `json:"success"`
	Failed       int            `json:"failed"`
	Skipped      int            `json:"skipped"`
	Errors       []RowError     `json:"errors"`
	Duplicates   []DuplicateRow `json:"duplicates"`
	ImportedBibs []string       `json:"importedBibs"`
	Warnings     []RowWarning   `json:"warnings,omitempty"`
	ArchiveKey   string         `json:"archiveKey,omitempty"`
}

func rowNumber(row ImportRow, i int) int {
	if row.Row > 0 {
		return row.Row
	}
	return i + 1
}

// ApplyDefaults turns a flat row into a registrant input, substituting the
// documented defaults for missing optional fields. It is deterministic:
// placeholders derive from the row number and name.
func ApplyDefaults(row ImportRow) (RegistrantInput, AppliedDefaults) {
	var d AppliedDefaults
	in := RegistrantInput{
		FullName:       CleanCell(row.FullName),
		Gender:         CleanCell(row.Gender),
		DateOfBirth:    CleanCell(row.DateOfBirth),
		IdentityNumber: CleanCell(row.IdentityNumber),
		Email:          CleanCell(row.Email),
		WhatsApp:       CleanCell(row.WhatsApp),
		Address:        CleanCell(row.Address),
		Province:       CleanCell(row.Province),
		City:           CleanCell(row.City),
		Category:       CleanCell(row.Category),
		BibName:        CleanCell(row.BibName),
		JerseySize:     CleanCell(row.JerseySize),
		MedicalInfo:    CleanCell(row.MedicalInfo),
		EmergencyContact: EmergencyContactInput{
			Name:  CleanCell(row.EmergencyName),
			Phone: CleanCell(row.EmergencyPhone),
		},
	}

	if in.Gender == "" {
		in.Gender = string(DefaultImportGender)
		d.Gender = true
	}
	if age, ok := parseAge(row.Age); ok {
		in.Age = age
	} else if in.DateOfBirth == "" {
		in.Age = DefaultImportAge
		d.Age = true
	}
	if in.JerseySize == "" {
		in.JerseySize = string(DefaultImportJersey)
		d.JerseySize = true
	}
	if in.Email == "" {
		sum := sha1.Sum([]byte(strings.ToLower(in.FullName) + "|" + strconv.Itoa(row.Row)))
		in.Email = PlaceholderEmail(hex.EncodeToString(sum[:6]))
		d.Email = true
	}
	if in.WhatsApp == "" {
		in.WhatsApp = PlaceholderPhone(row.Row)
		d.Phone = true
	}
	if in.Province == "" {
		in.Province = DefaultImportProvince
		d.Province = true
	}
	if in.City == "" {
		in.City = DefaultImportCity
		d.City = true
	}
	if in.EmergencyContact.Name == "" || in.EmergencyContact.Phone == "" {
		in.EmergencyContact = EmergencyContactInput{
			Name:     placeholderEmergencyName,
			Phone:    PlaceholderPhone(0),
			Relation: "placeholder",
		}
		d.EmergencyContact = true
	}
	return in, d
}

// sourceErrors checks cells as supplied, before defaulting. A present but
// unreadable age is an error rather than a missing one, and reserved
// placeholder contacts may only come from ApplyDefaults.
func sourceErrors(row ImportRow) []ValidationError {
	var errs []ValidationError
	if raw := CleanCell(row.Age); raw != "" {
		if age, ok := parseAge(raw); !ok || age <= 0 {
			errs = append(errs, ValidationError{Field: "age", Value: row.Age, Message: "is not a valid age"})
		}
	}
	if raw := CleanCell(row.Email); raw != "" && IsPlaceholderEmail(raw) {
		errs = append(errs, ValidationError{Field: "email", Value: row.Email, Message: reservedEmailMessage})
	}
	if raw := CleanCell(row.WhatsApp); raw != "" && IsPlaceholderPhone(raw) {
		errs = append(errs, ValidationError{Field: "whatsapp", Value: row.WhatsApp, Message: reservedPhoneMessage})
	}
	return errs
}

// rowEarlyBird resolves the early-bird flag of a row: an explicit flag wins,
// then the promo label.
func rowEarlyBird(row ImportRow) bool {
	if row.EarlyBird != nil {
		return *row.EarlyBird
	}
	return IsEarlyBirdLabel(row.PromoLabel)
}

// Validate checks every row, including duplicates against persisted
// registrations and earlier rows of the same batch, before anything is
// written.
func (s *Service) Validate(ctx context.Context, rows []ImportRow) (*ValidationReport, error) {
	const op = "validate import"
	ctx, span := tracer.Start(ctx, "core.ValidateImport")
	defer span.End()
	span.SetAttributes(attribute.Int("rows", len(rows)))

	if limit := s.settings.ImportMaxRows; limit > 0 && len(rows) > limit {
		return nil, fail(span, Invalid(op, ValidationError{
			Field:   "rows",
			Value:   strconv.Itoa(len(rows)),
			Message: fmt.Sprintf("batch exceeds the row limit of %d", limit),
		}))
	}

	report := &ValidationReport{
		Valid:      []PreparedRow{},
		Errors:     []RowError{},
		Warnings:   []RowWarning{},
		Duplicates: []DuplicateRow{},
	}
	batch := NewBatch()

	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, fail(span, err)
		}
		row.Row = rowNumber(row, i)

		in, defaults := ApplyDefaults(row)
		reg, errs := prepareRegistrant(in, "", "", importRules, s.pricing, s.settings.EventDate)
		errs = append(sourceErrors(row), errs...)
		if len(errs) > 0 {
			for _, fe := range errs {
				report.Errors = append(report.Errors, RowError{Row: row.Row, Field: fe.Field, Value: fe.Value, Message: fe.Message})
			}
			continue
		}

		dup, err := CheckDuplicate(ctx, s.store, reg.Identity(), reg.Category, batch)
		if err != nil {
			return nil, fail(span, Internal(op, err))
		}
		if dup.IsDuplicate {
			report.Duplicates = append(report.Duplicates, duplicateRow(row.Row, dup.Match))
			continue
		}
		batch.Add(reg.Identity(), reg.Category, RowRef(row.Row), row.Row)

		for _, f := range defaults.List() {
			report.Warnings = append(report.Warnings, RowWarning{Row: row.Row, Field: f, Message: "missing, default applied"})
		}
		report.Valid = append(report.Valid, PreparedRow{
			Row:        row.Row,
			Registrant: reg,
			EarlyBird:  rowEarlyBird(row),
			Defaults:   defaults,
		})
	}

	span.SetAttributes(
		attribute.Int("valid", len(report.Valid)),
		attribute.Int("errors", len(report.Errors)),
		attribute.Int("duplicates", len(report.Duplicates)),
	)
	return report, nil
}

func duplicateRow(row int, m DuplicateMatch) DuplicateRow {
	email := m.Email
	if IsPlaceholderEmail(email) {
		email = ""
	}
	return DuplicateRow{
		Row:          row,
		Email:        email,
		ExistingName: m.ExistingName,
		Message:      fmt.Sprintf("duplicate %s, already registered in %s", m.Field, m.MatchedAgainst),
	}
}

// Commit writes each prepared row in its own transaction. A failing row is
// counted and reported without aborting the rest.
func (s *Service) Commit(ctx context.Context, rows []PreparedRow) (*ImportReport, error) {
	slot, err := s.limiter.Acquire(ctx, len(rows))
	if err != nil {
		return nil, err
	}
	defer slot.Release()

	return s.commitRows(ctx, rows)
}

func (s *Service) commitRows(ctx context.Context, rows []PreparedRow) (*ImportReport, error) {
	ctx, span := tracer.Start(ctx, "core.CommitImport")
	defer span.End()

	if s.settings.ImportTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.settings.ImportTimeout)
		defer cancel()
	}

	logger := logging.FromContext(ctx)
	report := &ImportReport{
		Errors:       []RowError{},
		Duplicates:   []DuplicateRow{},
		ImportedBibs: []string{},
	}

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			report.Failed++
			report.Errors = append(report.Errors, RowError{Row: row.Row, Message: "import cancelled before this row"})
			continue
		}

		res, err := s.commitImportRow(ctx, row)
		switch {
		case err == nil:
			report.Success++
			report.ImportedBibs = append(report.ImportedBibs, res.BibNumbers...)
		case KindOf(err) == KindDuplicate:
			report.Skipped++
			var e *Error
			if errors.As(err, &e) && len(e.Duplicates) > 0 {
				report.Duplicates = append(report.Duplicates, duplicateRow(row.Row, e.Duplicates[0]))
			} else {
				report.Duplicates = append(report.Duplicates, DuplicateRow{Row: row.Row, Email: row.Registrant.Email, Message: "duplicate registration"})
			}
		default:
			report.Failed++
			msg := MapError(err).Message
			logger.Warn("import row failed", "row", row.Row, "error", err)
			report.Errors = append(report.Errors, RowError{Row: row.Row, Message: msg})
		}
	}

	span.SetAttributes(
		attribute.Int("success", report.Success),
		attribute.Int("failed", report.Failed),
		attribute.Int("skipped", report.Skipped),
	)
	logger.Info("import committed",
		"success", report.Success,
		"failed", report.Failed,
		"skipped", report.Skipped,
	)
	return report, nil
}

func (s *Service) commitImportRow(ctx context.Context, row PreparedRow) (*RegistrationResult, error) {
	reg := row.Registrant
	quote, err := s.pricing.PriceIndividual(reg.Category, reg.JerseySize, row.EarlyBird)
	if err != nil {
		return nil, err
	}
	p := &plan{
		op:            "import row",
		source:        SourceImport,
		status:        StatusImported,
		paymentStatus: PaymentSuccess,
		category:      reg.Category,
		codePrefix:    prefixImport,
		participants: []plannedParticipant{{
			reg:       reg,
			base:      quote.BasePrice,
			addOn:     quote.JerseyAddOn,
			earlyBird: quote.EarlyBird,
			sequence:  1,
		}},
		total: quote.TotalPrice,
		to:    recipient{name: reg.FullName, email: reg.Email, phone: reg.Phone},
	}
	return s.commit(ctx, p)
}

// Import validates rows and commits the valid ones, merging both phases
// into one report. Rows rejected by validation count as failed and
// duplicates as skipped.
func (s *Service) Import(ctx context.Context, rows []ImportRow) (*ImportReport, error) {
	slot, err := s.limiter.Acquire(ctx, len(rows))
	if err != nil {
		return nil, err
	}
	defer slot.Release()

	importID := uuid.NewString()
	logger := logging.WithFields(ctx, "import_id", importID)
	started := time.Now()

	vr, err := s.Validate(ctx, rows)
	if err != nil {
		return nil, err
	}
	report, err := s.commitRows(ctx, vr.Valid)
	if err != nil {
		return nil, err
	}

	failedRows := make(map[int]bool)
	for _, e := range vr.Errors {
		failedRows[e.Row] = true
	}
	report.Failed += len(failedRows)
	report.Skipped += len(vr.Duplicates)
	report.Errors = append(vr.Errors, report.Errors...)
	report.Duplicates = append(vr.Duplicates, report.Duplicates...)
	report.Warnings = vr.Warnings

	if s.archiver != nil {
		key, err := s.archiver.ArchiveImportReport(ctx, importID, report)
		if err != nil {
			logger.Warn("archive import report failed", "error", err)
		} else {
			report.ArchiveKey = key
		}
	}

	logger.Info("import finished",
		"rows", len(rows),
		"success", report.Success,
		"failed", report.Failed,
		"skipped", report.Skipped,
		"duration", time.Since(started),
	)
	return report, nil
}
