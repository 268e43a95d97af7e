package domain

import "time"

// ============================================================
// Verification: request bodies and registry results
// ============================================================

// ProVerificationRequest is the body for POST /v1/account/pro-verification.
type ProVerificationRequest struct {
	CompanyName string `json:"companyName"`
	Siret       string `json:"siret,omitempty"`
	Address     string `json:"address,omitempty"`
	City        string `json:"city,omitempty"`
	PostalCode  string `json:"postalCode,omitempty"`
	Country     string `json:"country,omitempty"`
	VatNumber   string `json:"vatNumber,omitempty"`
}

// ProDecisionRequest is the body for POST /v1/admin/accounts/{accountId}/pro-decision.
type ProDecisionRequest struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

// VatDecisionRequest is the body for POST /v1/admin/accounts/{accountId}/vat-decision.
type VatDecisionRequest struct {
	Approved bool `json:"approved"`
}

// RegistryRecord is the normalized establishment record returned by the
// business registry.
type RegistryRecord struct {
	Siret         string     `json:"siret"`
	LegalName     string     `json:"legalName"`
	Address       string     `json:"address"`
	City          string     `json:"city"`
	PostalCode    string     `json:"postalCode"`
	LegalFormCode string     `json:"legalFormCode"`
	ActivityCode  string     `json:"activityCode"`
	ActivityLabel string     `json:"activityLabel,omitempty"`
	Active        bool       `json:"active"`
	IsHeadOffice  bool       `json:"isHeadOffice"`
	CreationDate  *time.Time `json:"creationDate,omitempty"`
}

// VerificationResult is the outcome of matching one registry record against
// the declared company. Not persisted.
type VerificationResult struct {
	Valid           bool            `json:"valid"`
	Error           string          `json:"error,omitempty"`
	Warnings        []string        `json:"warnings,omitempty"`
	Record          *RegistryRecord `json:"record,omitempty"`
	IsExcludedForm  bool            `json:"isExcludedForm"`
	IsRecentCompany bool            `json:"isRecentCompany"`
}

// VatVerification is the outcome of one VAT registry lookup. Exactly one of
// Valid, TechnicalError or BusinessError describes the result.
type VatVerification struct {
	Valid          bool   `json:"valid"`
	CompanyName    string `json:"companyName,omitempty"`
	CompanyAddress string `json:"companyAddress,omitempty"`
	TechnicalError string `json:"technicalError,omitempty"`
	BusinessError  string `json:"businessError,omitempty"`
}
