package matching_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/domain"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/matching"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "cafeparis", matching.Normalize("Café  Paris!"))
	assert.Equal(t, "garagedelagare12", matching.Normalize("Garage de la Gare, 12"))
	assert.Equal(t, "", matching.Normalize("  --  "))
}

func TestNormalizeVat(t *testing.T) {
	country, number := matching.NormalizeVat(" fr ", "fr 12-345.678 901")
	assert.Equal(t, "FR", country)
	assert.Equal(t, "12345678901", number)

	country, number = matching.NormalizeVat("de", "123456789")
	assert.Equal(t, "DE", country)
	assert.Equal(t, "123456789", number)
}

func TestIsValidCountryCode(t *testing.T) {
	for _, c := range []string{"FR", "DE", "XI"} {
		assert.True(t, matching.IsValidCountryCode(c), c)
	}
	for _, c := range []string{"", "F", "FRA", "F1", "fr", "É1"} {
		assert.False(t, matching.IsValidCountryCode(c), c)
	}
}

func TestIsValidSiret(t *testing.T) {
	assert.True(t, matching.IsValidSiret("12345678901234"))
	assert.False(t, matching.IsValidSiret(strings.Repeat("1", 13)))
	assert.False(t, matching.IsValidSiret("1234567890123 "))
	assert.False(t, matching.IsValidSiret("1234567890123A"))
}

func TestNamesMatch(t *testing.T) {
	tests := []struct {
		name     string
		a, b     string
		expected bool
	}{
		{"accent and case insensitive", "Café Paris", "CAFE PARIS", true},
		{"symmetric", "CAFE PARIS", "Café Paris", true},
		{"short abbreviation below floor", "ACME", "ACME Corporation Holdings", false},
		{"containment at floor", "Acmeo", "ACMEO Corporation Holdings", true},
		{"legal suffix variance", "Garage Martin", "GARAGE MARTIN SARL", true},
		{"different names", "Garage Martin", "Carrosserie Dupont", false},
		{"empty declared name matches", "", "Anything", true},
		{"blank declared name matches", "   ", "Anything", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, matching.NamesMatch(tt.a, tt.b))
		})
	}
}

func TestAddressesMatch(t *testing.T) {
	tests := []struct {
		name     string
		a, b     string
		expected bool
	}{
		{"exact after normalization", "12 Rue de la Paix", "12 RUE DE LA PAIX", true},
		{"containment with high ratio", "12 rue de la paix", "12 rue de la paix a", true},
		{"containment with low ratio", "12 rue de la paix", "12 rue de la paix batiment b escalier c", false},
		{"short strings never contain", "abcdefgh", "abcdefghij", false},
		{"eight characters both sides", "rue abcd", "rue abcde", false},
		{"no containment", "12 rue de la paix", "14 avenue foch paris", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, matching.AddressesMatch(tt.a, tt.b))
		})
	}
}

func TestCityAndPostalMatch(t *testing.T) {
	assert.True(t, matching.CitiesMatch("Saint-Étienne", "SAINT ETIENNE"))
	assert.False(t, matching.CitiesMatch("Paris", "Paris 15"))
	assert.True(t, matching.PostalCodesMatch(" 75001 ", "75001"))
	assert.False(t, matching.PostalCodesMatch("75001", "75002"))
}

func TestActivityAllowlist(t *testing.T) {
	assert.True(t, matching.IsAllowedActivity("45.20A"))
	assert.True(t, matching.IsAllowedActivity("45.20a"))
	assert.False(t, matching.IsAllowedActivity("62.01Z"))
	assert.True(t, matching.IsExcludedForm("1000"))
	assert.False(t, matching.IsExcludedForm("5710"))
}

func eligibleRecord(now time.Time) *domain.RegistryRecord {
	created := now.AddDate(-5, 0, 0)
	return &domain.RegistryRecord{
		Siret:         "12345678901234",
		LegalName:     "GARAGE MARTIN SARL",
		Address:       "12 RUE DE LA PAIX",
		City:          "PARIS",
		PostalCode:    "75002",
		LegalFormCode: "5499",
		ActivityCode:  "45.20A",
		Active:        true,
		IsHeadOffice:  true,
		CreationDate:  &created,
	}
}

func TestEvaluate_Valid(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	d := matching.Declared{Name: "Garage Martin", Address: "12 rue de la Paix", City: "Paris", PostalCode: "75002"}

	res := matching.Evaluate(d, eligibleRecord(now), now)

	require.True(t, res.Valid)
	assert.Empty(t, res.Error)
	assert.Empty(t, res.Warnings)
	assert.False(t, res.IsExcludedForm)
	assert.False(t, res.IsRecentCompany)
}

func TestEvaluate_FirstFailureWins(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rec := eligibleRecord(now)
	rec.City = "LYON"
	rec.ActivityCode = "62.01Z"

	d := matching.Declared{Name: "Carrosserie Dupont", City: "Paris"}
	res := matching.Evaluate(d, rec, now)

	require.False(t, res.Valid)
	assert.Equal(t, "company name does not match the registry", res.Error)
	assert.Contains(t, res.Warnings, "city does not match the registry")
	assert.Contains(t, res.Warnings, "activity 62.01Z is outside the served sector")
}

func TestEvaluate_OptionalFieldsSkipped(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	res := matching.Evaluate(matching.Declared{Name: "Garage Martin"}, eligibleRecord(now), now)
	assert.True(t, res.Valid)
}

func TestEvaluate_ExcludedFormAndInactive(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rec := eligibleRecord(now)
	rec.LegalFormCode = "1000"
	rec.Active = false

	res := matching.Evaluate(matching.Declared{Name: "Garage Martin"}, rec, now)

	require.False(t, res.Valid)
	assert.True(t, res.IsExcludedForm)
	assert.Equal(t, "legal form 1000 is not eligible", res.Error)
	assert.Contains(t, res.Warnings, "establishment is not administratively active")
}

func TestEvaluate_WarningsDoNotBlock(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rec := eligibleRecord(now)
	created := now.AddDate(0, -1, 0)
	rec.CreationDate = &created
	rec.IsHeadOffice = false

	res := matching.Evaluate(matching.Declared{Name: "Garage Martin"}, rec, now)

	require.True(t, res.Valid)
	assert.True(t, res.IsRecentCompany)
	assert.Len(t, res.Warnings, 2)
}
