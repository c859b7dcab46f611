package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var raceDay = time.Date(2025, 10, 19, 0, 0, 0, 0, time.UTC)

func validInput() RegistrantInput {
	return RegistrantInput{
		FullName:       "budi santoso",
		Gender:         "Laki-laki",
		DateOfBirth:    "1990-05-17",
		IdentityNumber: "3202011705900001",
		Email:          "Budi@Example.com",
		WhatsApp:       "0812-3456-7890",
		Category:       "5 km",
		JerseySize:     "2xl",
		EmergencyContact: EmergencyContactInput{
			Name:     "siti",
			Phone:    "081298765432",
			Relation: "Istri",
		},
	}
}

func fieldNames(errs []ValidationError) []string {
	names := make([]string, len(errs))
	for i, e := range errs {
		names[i] = e.Field
	}
	return names
}

func TestPrepareRegistrant_Normalizes(t *testing.T) {
	reg, errs := prepareRegistrant(validInput(), "", "", interactiveRules, defaultTable(t), raceDay)
	require.Empty(t, errs)

	assert.Equal(t, "Budi Santoso", reg.FullName)
	assert.Equal(t, GenderMale, reg.Gender)
	assert.Equal(t, "budi@example.com", reg.Email)
	assert.Equal(t, "6281234567890", reg.Phone)
	assert.Equal(t, Category("5K"), reg.Category)
	assert.Equal(t, JerseySize("XXL"), reg.JerseySize)
	assert.Equal(t, "BUDI", reg.BibName)
	assert.Equal(t, 35, reg.Age)
	assert.Equal(t, "Siti", reg.Emergency.Name)
}

func TestPrepareRegistrant_ReportsEveryField(t *testing.T) {
	in := RegistrantInput{Gender: "unknown", Email: "not-an-email", WhatsApp: "12", Category: "42K", JerseySize: "XXS"}

	_, errs := prepareRegistrant(in, "members[3]", "", interactiveRules, defaultTable(t), raceDay)

	assert.ElementsMatch(t, []string{
		"members[3].fullName",
		"members[3].gender",
		"members[3].email",
		"members[3].whatsapp",
		"members[3].identityNumber",
		"members[3].dateOfBirth",
		"members[3].category",
		"members[3].jerseySize",
		"members[3].emergencyContact.name",
		"members[3].emergencyContact.phone",
	}, fieldNames(errs))
}

func TestPrepareRegistrant_MinimumAge(t *testing.T) {
	in := validInput()
	in.Category = "10K"
	in.DateOfBirth = "2014-01-01" // 11 on race day, 10K needs 12

	_, errs := prepareRegistrant(in, "", "", interactiveRules, defaultTable(t), raceDay)
	require.Len(t, errs, 1)
	assert.Equal(t, "dateOfBirth", errs[0].Field)
	assert.Contains(t, errs[0].Message, "at least 12")
}

func TestPrepareRegistrant_CategoryOverride(t *testing.T) {
	in := validInput()
	in.Category = "nonsense"

	reg, errs := prepareRegistrant(in, "", "10K", interactiveRules, defaultTable(t), raceDay)
	require.Empty(t, errs)
	assert.Equal(t, Category("10K"), reg.Category)
}

func TestPrepareRegistrant_ImportRulesAcceptAge(t *testing.T) {
	in := validInput()
	in.DateOfBirth = ""
	in.IdentityNumber = ""
	in.EmergencyContact = EmergencyContactInput{}
	in.Age = 25

	reg, errs := prepareRegistrant(in, "", "", importRules, defaultTable(t), raceDay)
	require.Empty(t, errs)
	assert.Equal(t, 25, reg.Age)
	assert.True(t, reg.DateOfBirth.IsZero())
}

func TestValidateGroupHeader(t *testing.T) {
	req := GroupRequest{
		CommunityName: "Sukabumi Runners",
		PICName:       "Andi",
		PICEmail:      "andi@example.com",
		PICWhatsApp:   "081200000001",
	}

	assert.Empty(t, validateGroupHeader(req, 5, 5, 50))

	errs := validateGroupHeader(req, 4, 5, 50)
	require.Len(t, errs, 1)
	assert.Equal(t, "members", errs[0].Field)
	assert.Contains(t, errs[0].Message, "at least 5")

	errs = validateGroupHeader(req, 51, 5, 50)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "at most 50")

	errs = validateGroupHeader(GroupRequest{}, 5, 5, 50)
	assert.ElementsMatch(t, []string{"communityName", "picName", "picEmail", "picWhatsapp"}, fieldNames(errs))
}
