package domain

import (
	"time"

	"github.com/samber/mo"
)

// ============================================================
// Accounts
// ============================================================

// Role is the authorization role carried by an account.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ProStatus is the professional verification lifecycle state.
type ProStatus string

const (
	ProStatusNone     ProStatus = "none"
	ProStatusPending  ProStatus = "pending"
	ProStatusVerified ProStatus = "verified"
	ProStatusRejected ProStatus = "rejected"
)

// VerificationMode selects who drives a pending verification.
type VerificationMode string

const (
	VerificationAuto   VerificationMode = "auto"
	VerificationManual VerificationMode = "manual"
)

// DecisionSource records which path finalized a verification. Empty means no
// decision has been taken yet.
type DecisionSource string

const (
	DecisionNone   DecisionSource = ""
	DecisionAuto   DecisionSource = "auto"
	DecisionManual DecisionSource = "manual"
)

// VatStatus is the state of the VAT number check.
type VatStatus string

const (
	VatStatusNone          VatStatus = "none"
	VatStatusPendingManual VatStatus = "pending_manual"
	VatStatusValidated     VatStatus = "validated"
	VatStatusRejected      VatStatus = "rejected"
)

// Account is a registered buyer, possibly a professional one.
type Account struct {
	ID                    string           `json:"id"`
	Email                 string           `json:"email"`
	PasswordHash          string           `json:"-"`
	Role                  Role             `json:"role"`
	IsPro                 bool             `json:"isPro"`
	ProStatus             ProStatus        `json:"proStatus"`
	VerificationMode      VerificationMode `json:"verificationMode,omitempty"`
	DecisionSource        DecisionSource   `json:"decisionSource,omitempty"`
	DecisionAt            *time.Time       `json:"decisionAt,omitempty"`
	ReviewedByAdminID     string           `json:"reviewedByAdminId,omitempty"`
	LastVerificationError string           `json:"lastVerificationError,omitempty"`
	Company               *Company         `json:"company,omitempty"`
	CreatedAt             time.Time        `json:"createdAt"`
	UpdatedAt             time.Time        `json:"updatedAt"`
}

// Company is the business profile embedded in an account.
type Company struct {
	Name                 string     `json:"name"`
	LegalName            string     `json:"legalName,omitempty"`
	Siret                string     `json:"siret,omitempty"`
	Address              string     `json:"address,omitempty"`
	City                 string     `json:"city,omitempty"`
	PostalCode           string     `json:"postalCode,omitempty"`
	Country              string     `json:"country,omitempty"`
	VatNumber            string     `json:"vatNumber,omitempty"`
	VatStatus            VatStatus  `json:"vatStatus"`
	VatValidationDate    *time.Time `json:"vatValidationDate,omitempty"`
	VatRegisteredName    string     `json:"vatRegisteredName,omitempty"`
	VatRegisteredAddress string     `json:"vatRegisteredAddress,omitempty"`
	LegalFormCode        string     `json:"legalFormCode,omitempty"`
	ActivityCode         string     `json:"activityCode,omitempty"`
	IsHeadOffice         *bool      `json:"isHeadOffice,omitempty"`
	CreationDate         *time.Time `json:"creationDate,omitempty"`
	VerificationWarnings []string   `json:"verificationWarnings,omitempty"`
}

// HasDecision reports whether the verification verdict is finalized.
func (a *Account) HasDecision() bool {
	return a.DecisionSource != DecisionNone
}

// ApplyDecision finalizes the verification. It is the single place that
// keeps IsPro consistent with ProStatus.
func (a *Account) ApplyDecision(approved bool, source DecisionSource, at time.Time, reviewedBy string) {
	if approved {
		a.ProStatus = ProStatusVerified
	} else {
		a.ProStatus = ProStatusRejected
	}
	a.IsPro = approved
	a.DecisionSource = source
	a.DecisionAt = &at
	a.ReviewedByAdminID = reviewedBy
}

// CheckDecidable returns a precondition error unless the account is pending
// without a finalized decision.
func (a *Account) CheckDecidable() error {
	if a.HasDecision() {
		return &ErrPrecondition{Reason: "decision already taken"}
	}
	if a.ProStatus != ProStatusPending {
		return &ErrPrecondition{Reason: "verification is not pending"}
	}
	return nil
}

// CheckRetryable returns a precondition error unless an automatic check may
// be re-run: pending, manual mode, no decision and a SIRET on file.
func (a *Account) CheckRetryable() error {
	switch {
	case a.HasDecision():
		return &ErrPrecondition{Reason: "decision already taken"}
	case a.ProStatus != ProStatusPending:
		return &ErrPrecondition{Reason: "verification is not pending"}
	case a.VerificationMode != VerificationManual:
		return &ErrPrecondition{Reason: "verification is not in manual review"}
	case a.Company == nil || a.Company.Siret == "":
		return &ErrPrecondition{Reason: "no business identifier on file"}
	}
	return nil
}

// IsVatExempt reports whether orders for this account are zero-rated.
func (a *Account) IsVatExempt() bool {
	return a.Company != nil && a.Company.VatStatus == VatStatusValidated
}

// Clone returns a deep copy so stores never hand out shared pointers.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	cp := *a
	if a.DecisionAt != nil {
		t := *a.DecisionAt
		cp.DecisionAt = &t
	}
	if a.Company != nil {
		c := a.Company.clone()
		cp.Company = &c
	}
	return &cp
}

func (c *Company) clone() Company {
	cp := *c
	if c.VatValidationDate != nil {
		t := *c.VatValidationDate
		cp.VatValidationDate = &t
	}
	if c.IsHeadOffice != nil {
		b := *c.IsHeadOffice
		cp.IsHeadOffice = &b
	}
	if c.CreationDate != nil {
		t := *c.CreationDate
		cp.CreationDate = &t
	}
	if c.VerificationWarnings != nil {
		cp.VerificationWarnings = append([]string(nil), c.VerificationWarnings...)
	}
	return cp
}

// ============================================================
// Company partial updates
// ============================================================

// CompanyPatch is an explicit partial update of the company profile. Absent
// options leave the stored value untouched; a present option overwrites it,
// including with a zero value.
type CompanyPatch struct {
	Name                 mo.Option[string]
	LegalName            mo.Option[string]
	Siret                mo.Option[string]
	Address              mo.Option[string]
	City                 mo.Option[string]
	PostalCode           mo.Option[string]
	Country              mo.Option[string]
	VatNumber            mo.Option[string]
	VatStatus            mo.Option[VatStatus]
	VatValidationDate    mo.Option[*time.Time]
	VatRegisteredName    mo.Option[string]
	VatRegisteredAddress mo.Option[string]
	LegalFormCode        mo.Option[string]
	ActivityCode         mo.Option[string]
	IsHeadOffice         mo.Option[*bool]
	CreationDate         mo.Option[*time.Time]
	VerificationWarnings mo.Option[[]string]
}

// IsEmpty reports whether the patch carries no field.
func (p CompanyPatch) IsEmpty() bool {
	return len(p.Columns()) == 0
}

// Apply merges the patch into c field by field.
func (p CompanyPatch) Apply(c *Company) {
	setIf(p.Name, &c.Name)
	setIf(p.LegalName, &c.LegalName)
	setIf(p.Siret, &c.Siret)
	setIf(p.Address, &c.Address)
	setIf(p.City, &c.City)
	setIf(p.PostalCode, &c.PostalCode)
	setIf(p.Country, &c.Country)
	setIf(p.VatNumber, &c.VatNumber)
	setIf(p.VatStatus, &c.VatStatus)
	setIf(p.VatValidationDate, &c.VatValidationDate)
	setIf(p.VatRegisteredName, &c.VatRegisteredName)
	setIf(p.VatRegisteredAddress, &c.VatRegisteredAddress)
	setIf(p.LegalFormCode, &c.LegalFormCode)
	setIf(p.ActivityCode, &c.ActivityCode)
	setIf(p.IsHeadOffice, &c.IsHeadOffice)
	setIf(p.CreationDate, &c.CreationDate)
	setIf(p.VerificationWarnings, &c.VerificationWarnings)
}

// Columns maps each present field to its storage column, for targeted
// column updates.
func (p CompanyPatch) Columns() map[string]any {
	cols := map[string]any{}
	addIf(cols, "company_name", p.Name)
	addIf(cols, "company_legal_name", p.LegalName)
	addIf(cols, "company_siret", p.Siret)
	addIf(cols, "company_address", p.Address)
	addIf(cols, "company_city", p.City)
	addIf(cols, "company_postal_code", p.PostalCode)
	addIf(cols, "company_country", p.Country)
	addIf(cols, "vat_number", p.VatNumber)
	addIf(cols, "vat_status", p.VatStatus)
	addIf(cols, "vat_validation_date", p.VatValidationDate)
	addIf(cols, "vat_registered_name", p.VatRegisteredName)
	addIf(cols, "vat_registered_address", p.VatRegisteredAddress)
	addIf(cols, "legal_form_code", p.LegalFormCode)
	addIf(cols, "activity_code", p.ActivityCode)
	addIf(cols, "is_head_office", p.IsHeadOffice)
	addIf(cols, "company_creation_date", p.CreationDate)
	addIf(cols, "verification_warnings", p.VerificationWarnings)
	return cols
}

func setIf[T any](opt mo.Option[T], dst *T) {
	if v, ok := opt.Get(); ok {
		*dst = v
	}
}

func addIf[T any](cols map[string]any, name string, opt mo.Option[T]) {
	if v, ok := opt.Get(); ok {
		cols[name] = v
	}
}
