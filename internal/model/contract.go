package model

import (
	"time"
)

// ContractType categorizes the kind of agreement a contract represents.
type ContractType string

const (
	ContractTypeInsurance    ContractType = "insurance"
	ContractTypeUtility      ContractType = "utility"
	ContractTypeSubscription ContractType = "subscription"
	ContractTypeRental       ContractType = "rental"
	ContractTypeSaaS         ContractType = "saas"
	ContractTypeService      ContractType = "service"
	ContractTypeOther        ContractType = "other"
)

// ValidContractTypes is the closed set of accepted contract types.
var ValidContractTypes = map[ContractType]bool{
	ContractTypeInsurance:    true,
	ContractTypeUtility:      true,
	ContractTypeSubscription: true,
	ContractTypeRental:       true,
	ContractTypeSaaS:         true,
	ContractTypeService:      true,
	ContractTypeOther:        true,
}

// PaymentFrequency describes how often a contract bills.
type PaymentFrequency string

const (
	PaymentMonthly   PaymentFrequency = "monthly"
	PaymentAnnual    PaymentFrequency = "annual"
	PaymentQuarterly PaymentFrequency = "quarterly"
	PaymentOneTime   PaymentFrequency = "one-time"
	PaymentOther     PaymentFrequency = "other"
)

// ValidPaymentFrequencies is the closed set of accepted payment frequencies.
var ValidPaymentFrequencies = map[PaymentFrequency]bool{
	PaymentMonthly:   true,
	PaymentAnnual:    true,
	PaymentQuarterly: true,
	PaymentOneTime:   true,
	PaymentOther:     true,
}

// Severity ranks how serious an identified contract risk is.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// ValidSeverities is the closed set of accepted risk severities.
var ValidSeverities = map[Severity]bool{
	SeverityHigh:   true,
	SeverityMedium: true,
	SeverityLow:    true,
}

// Complexity is the model-assessed estimate of how intricate a contract is.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// ValidComplexities is the closed set of accepted complexity values.
var ValidComplexities = map[Complexity]bool{
	ComplexityLow:    true,
	ComplexityMedium: true,
	ComplexityHigh:   true,
}

// DocumentType classifies a document within a contract package.
type DocumentType string

const (
	DocMainAgreement   DocumentType = "main_agreement"
	DocSOW             DocumentType = "sow"
	DocTermsConditions DocumentType = "terms_conditions"
	DocAmendment       DocumentType = "amendment"
	DocAddendum        DocumentType = "addendum"
	DocExhibit         DocumentType = "exhibit"
	DocSchedule        DocumentType = "schedule"
	DocOther           DocumentType = "other"
)

// ValidDocumentTypes is the closed set of accepted document types.
var ValidDocumentTypes = map[DocumentType]bool{
	DocMainAgreement:   true,
	DocSOW:             true,
	DocTermsConditions: true,
	DocAmendment:       true,
	DocAddendum:        true,
	DocExhibit:         true,
	DocSchedule:        true,
	DocOther:           true,
}

// CurrencySymbols maps common currency symbols to ISO-4217 codes.
var CurrencySymbols = map[string]string{
	"$":   "USD",
	"€":   "EUR",
	"£":   "GBP",
	"¥":   "JPY",
	"C$":  "CAD",
	"A$":  "AUD",
	"CA$": "CAD",
	"AU$": "AUD",
}

// ValidCurrencies is the closed set of accepted currency codes.
var ValidCurrencies = map[string]bool{
	"USD": true,
	"EUR": true,
	"GBP": true,
	"CAD": true,
	"AUD": true,
	"JPY": true,
}

// Contract is a persisted, user-confirmed contract record.
type Contract struct {
	ID                      string            `json:"id"`
	UserID                  string            `json:"user_id"`
	ProviderName            string            `json:"provider_name"`
	ContractType            *ContractType     `json:"contract_type,omitempty"`
	Nickname                string            `json:"contract_nickname,omitempty"`
	MonthlyCost             *float64          `json:"monthly_cost,omitempty"`
	AnnualCost              *float64          `json:"annual_cost,omitempty"`
	Currency                string            `json:"currency"`
	PaymentFrequency        *PaymentFrequency `json:"payment_frequency,omitempty"`
	StartDate               *string           `json:"start_date,omitempty"`
	EndDate                 *string           `json:"end_date,omitempty"`
	AutoRenewal             *bool             `json:"auto_renewal,omitempty"`
	CancellationNoticeDays  *int              `json:"cancellation_notice_days,omitempty"`
	KeyTerms                []string          `json:"key_terms"`
	Parties                 []Party           `json:"parties,omitempty"`
	Risks                   []Risk            `json:"risks,omitempty"`
	Files                   []ContractFile    `json:"files,omitempty"`
	ExtractionConfidence    *float64          `json:"extraction_confidence,omitempty"`
	UserVerified            bool              `json:"user_verified"`
	CreatedAt               time.Time         `json:"created_at"`
	UpdatedAt               time.Time         `json:"updated_at"`
}

// ContractFile is a stored document belonging to a contract.
type ContractFile struct {
	ID           string       `json:"id"`
	ContractID   string       `json:"contract_id"`
	UserID       string       `json:"user_id"`
	Path         string       `json:"path"`
	Name         string       `json:"name"`
	Size         int64        `json:"size"`
	Label        string       `json:"label,omitempty"`
	DocumentType DocumentType `json:"document_type"`
	DisplayOrder int          `json:"display_order"`
	CreatedAt    time.Time    `json:"created_at"`
}

// ContractSummary holds dashboard aggregate statistics for a user's portfolio.
type ContractSummary struct {
	TotalContracts   int            `json:"total_contracts"`
	TotalMonthly     float64        `json:"total_monthly_spend"`
	TotalAnnual      float64        `json:"total_annual_spend"`
	ContractsByType  map[string]int `json:"contracts_by_type"`
	ExpiringSoon     int            `json:"expiring_soon"`
	AutoRenewalCount int            `json:"auto_renewal_count"`
}

// Summarize computes dashboard statistics over a set of contracts. A contract
// counts as expiring soon when its end date falls within the next 30 days,
// inclusive of both endpoints.
func Summarize(contracts []Contract, today time.Time) ContractSummary {
	s := ContractSummary{ContractsByType: map[string]int{}}
	day := today.Truncate(24 * time.Hour)
	cutoff := day.AddDate(0, 0, 30)

	for _, c := range contracts {
		s.TotalContracts++
		if c.MonthlyCost != nil {
			s.TotalMonthly += *c.MonthlyCost
		}
		if c.AnnualCost != nil {
			s.TotalAnnual += *c.AnnualCost
		}

		ctype := string(ContractTypeOther)
		if c.ContractType != nil {
			ctype = string(*c.ContractType)
		}
		s.ContractsByType[ctype]++

		if c.EndDate != nil {
			if end, err := time.Parse("2006-01-02", *c.EndDate); err == nil {
				if !end.Before(day) && !end.After(cutoff) {
					s.ExpiringSoon++
				}
			}
		}
		if c.AutoRenewal != nil && *c.AutoRenewal {
			s.AutoRenewalCount++
		}
	}
	return s
}
