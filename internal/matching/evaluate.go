package matching

import (
	"strings"
	"time"

	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/domain"
)

// Declared is the company identity supplied by the account holder.
type Declared struct {
	Name       string
	Address    string
	City       string
	PostalCode string
}

// FromCompany builds the declared identity from a stored company profile.
func FromCompany(c *domain.Company) Declared {
	if c == nil {
		return Declared{}
	}
	return Declared{Name: c.Name, Address: c.Address, City: c.City, PostalCode: c.PostalCode}
}

// excludedLegalForms are sole-proprietor legal categories that are not
// eligible for professional pricing.
var excludedLegalForms = map[string]struct{}{
	"1000": {},
}

// allowedActivities is the automotive sector allowlist (NAF codes without
// periods).
var allowedActivities = map[string]struct{}{
	"4511Z": {}, "4519Z": {}, "4520A": {}, "4520B": {}, "4531Z": {},
	"4532Z": {}, "4540Z": {}, "4730Z": {}, "4671Z": {}, "7711A": {},
	"7712Z": {}, "8122Z": {}, "8129B": {},
}

const recentCompanyMonths = 3

// Check is one named eligibility rule. It returns a failure message, or ""
// when the rule passes or does not apply.
type Check struct {
	Name string
	Fn   func(d Declared, r *domain.RegistryRecord) string
}

// Checks is the fixed evaluation order. The first failing check supplies the
// primary error; later failures are reported as warnings.
var Checks = []Check{
	{Name: "name", Fn: func(d Declared, r *domain.RegistryRecord) string {
		if !NamesMatch(d.Name, r.LegalName) {
			return "company name does not match the registry"
		}
		return ""
	}},
	{Name: "address", Fn: func(d Declared, r *domain.RegistryRecord) string {
		if strings.TrimSpace(d.Address) != "" && !AddressesMatch(d.Address, r.Address) {
			return "address does not match the registry"
		}
		return ""
	}},
	{Name: "city", Fn: func(d Declared, r *domain.RegistryRecord) string {
		if strings.TrimSpace(d.City) != "" && !CitiesMatch(d.City, r.City) {
			return "city does not match the registry"
		}
		return ""
	}},
	{Name: "postal_code", Fn: func(d Declared, r *domain.RegistryRecord) string {
		if strings.TrimSpace(d.PostalCode) != "" && !PostalCodesMatch(d.PostalCode, r.PostalCode) {
			return "postal code does not match the registry"
		}
		return ""
	}},
	{Name: "legal_form", Fn: func(_ Declared, r *domain.RegistryRecord) string {
		if IsExcludedForm(r.LegalFormCode) {
			return "legal form " + r.LegalFormCode + " is not eligible"
		}
		return ""
	}},
	{Name: "activity", Fn: func(_ Declared, r *domain.RegistryRecord) string {
		if !IsAllowedActivity(r.ActivityCode) {
			return "activity " + r.ActivityCode + " is outside the served sector"
		}
		return ""
	}},
	{Name: "active", Fn: func(_ Declared, r *domain.RegistryRecord) string {
		if !r.Active {
			return "establishment is not administratively active"
		}
		return ""
	}},
}

// IsExcludedForm reports whether the legal-form code is ineligible.
func IsExcludedForm(code string) bool {
	_, ok := excludedLegalForms[strings.TrimSpace(code)]
	return ok
}

// NormalizeActivityCode strips periods and spaces and uppercases the code.
func NormalizeActivityCode(code string) string {
	code = strings.ReplaceAll(code, ".", "")
	code = strings.ReplaceAll(code, " ", "")
	return strings.ToUpper(code)
}

// IsAllowedActivity reports whether the activity code is in the allowlist.
func IsAllowedActivity(code string) bool {
	_, ok := allowedActivities[NormalizeActivityCode(code)]
	return ok
}

// IsRecentCompany reports whether created falls within the last three months.
func IsRecentCompany(created *time.Time, now time.Time) bool {
	if created == nil {
		return false
	}
	return created.After(now.AddDate(0, -recentCompanyMonths, 0))
}

// Evaluate runs every check in order against the registry record.
func Evaluate(d Declared, r *domain.RegistryRecord, now time.Time) *domain.VerificationResult {
	res := &domain.VerificationResult{
		Record:          r,
		IsExcludedForm:  IsExcludedForm(r.LegalFormCode),
		IsRecentCompany: IsRecentCompany(r.CreationDate, now),
	}

	for _, c := range Checks {
		msg := c.Fn(d, r)
		if msg == "" {
			continue
		}
		if res.Error == "" {
			res.Error = msg
			continue
		}
		res.Warnings = append(res.Warnings, msg)
	}

	if !r.IsHeadOffice {
		res.Warnings = append(res.Warnings, "establishment is not the head office")
	}
	if res.IsRecentCompany {
		res.Warnings = append(res.Warnings, "company was created less than 3 months ago")
	}

	res.Valid = res.Error == ""
	return res
}
