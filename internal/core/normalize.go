package core

// normalize.go cleans the free-text values people type into registration
// forms and spreadsheets:
//   - Names are whitespace-collapsed and title-cased for Indonesian
//   - Bib names are transliterated to ASCII capitals ("Siti Nur'aini" -> "SITI")
//   - Dates accept day-first layouts as written locally
//   - Genders and flags accept the localized spellings seen in imports

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/gosimple/unidecode"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// MaxBibNameLength is the longest name printed on a bib.
const MaxBibNameLength = 12

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would land more than this many years in the future are moved
// to the previous century.
var TwoDigitYearPivot = 0

var (
	fourDigitYearLayouts = []string{
		"2006-01-02", "2/1/2006", "02/01/2006", "2-1-2006", "02-01-2006",
		"2.1.2006", "02.01.2006", "2006/01/02",
		"2 Jan 2006", "2 January 2006", "Jan 2, 2006",
		"20060102",
	}
	twoDigitYearLayouts = []string{
		"2/1/06", "02/01/06", "2-1-06", "02-01-06",
	}
)

// CleanCell removes spreadsheet artifacts from a value:
// surrounding whitespace, an Excel formula prefix (="...") and stray quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.TrimSpace(strings.Trim(s, `"'`))
}

// NormalizeName collapses whitespace and title-cases a personal name.
func NormalizeName(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return ""
	}
	return cases.Title(language.Indonesian).String(strings.ToLower(s))
}

// NormalizeBibName produces the printable bib name. An empty input takes the
// first word of fullName. The result is ASCII capitals, digits and spaces.
func NormalizeBibName(bibName, fullName string) string {
	src := strings.TrimSpace(bibName)
	if src == "" {
		if f := strings.Fields(fullName); len(f) > 0 {
			src = f[0]
		}
	}

	ascii := strings.ToUpper(unidecode.Unidecode(src))
	var b strings.Builder
	for _, r := range ascii {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}

	out := strings.Join(strings.Fields(b.String()), " ")
	if len(out) > MaxBibNameLength {
		out = strings.TrimSpace(out[:MaxBibNameLength])
	}
	return out
}

// ParseDate parses a date in any accepted layout. Day-first layouts win
// over month-first ones.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t, true
		}
	}

	return time.Time{}, false
}

// AgeOn returns the age in whole years of someone born on dob at date on.
func AgeOn(dob, on time.Time) int {
	age := on.Year() - dob.Year()
	if on.Month() < dob.Month() || (on.Month() == dob.Month() && on.Day() < dob.Day()) {
		age--
	}
	return age
}

// ParseGender accepts Indonesian and English spellings.
func ParseGender(s string) (Gender, bool) {
	switch strings.ToLower(strings.Join(strings.Fields(s), " ")) {
	case "m", "l", "male", "laki-laki", "laki laki", "lakilaki", "pria", "cowok":
		return GenderMale, true
	case "f", "p", "female", "perempuan", "wanita", "cewek":
		return GenderFemale, true
	}
	return "", false
}

// ParseFlag accepts true/false, yes/no, ya/tidak, t/f, y/n and 1/0.
func ParseFlag(s string) (value, ok bool) {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "true", "t", "yes", "y", "ya", "1":
		return true, true
	case "false", "f", "no", "n", "tidak", "0":
		return false, true
	}
	return false, false
}

// earlyBirdKeywords mark a promo label as early-bird pricing.
var earlyBirdKeywords = []string{"early bird", "earlybird", "early", "promo awal", "eb"}

// IsEarlyBirdLabel reports whether an imported promo label names early-bird pricing.
func IsEarlyBirdLabel(label string) bool {
	norm := strings.ToLower(strings.Join(strings.Fields(label), " "))
	if norm == "" {
		return false
	}
	for _, kw := range earlyBirdKeywords {
		if kw == "eb" {
			for _, w := range strings.FieldsFunc(norm, func(r rune) bool { return !unicode.IsLetter(r) }) {
				if w == "eb" {
					return true
				}
			}
			continue
		}
		if strings.Contains(norm, kw) {
			return true
		}
	}
	return false
}

// parseAge parses a whole-number age such as "25" or "25 th".
func parseAge(s string) (int, bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSuffix(s, "tahun"), "th"))
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
