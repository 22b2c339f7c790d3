package model

// Party is a named participant in a contract with its contractual role.
type Party struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// Risk is a concern identified in a contract during extraction.
type Risk struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
}

// DocumentAnalyzed describes one document the model examined and how it
// classified it within the contract package.
type DocumentAnalyzed struct {
	Filename     string       `json:"filename"`
	DocumentType DocumentType `json:"document_type"`
	Summary      string       `json:"summary"`
}

// ExtractionResult is the canonical output of the extraction pipeline. Every
// enum field holds a member of its closed set or its documented default;
// raw model text never passes through unvalidated.
type ExtractionResult struct {
	ProviderName           *string            `json:"provider_name"`
	ContractNickname       *string            `json:"contract_nickname"`
	ContractType           *ContractType      `json:"contract_type"`
	MonthlyCost            *float64           `json:"monthly_cost"`
	AnnualCost             *float64           `json:"annual_cost"`
	Currency               string             `json:"currency"`
	PaymentFrequency       *PaymentFrequency  `json:"payment_frequency"`
	StartDate              *string            `json:"start_date"`
	EndDate                *string            `json:"end_date"`
	AutoRenewal            *bool              `json:"auto_renewal"`
	CancellationNoticeDays *int               `json:"cancellation_notice_days"`
	KeyTerms               []string           `json:"key_terms"`
	Parties                []Party            `json:"parties"`
	Risks                  []Risk             `json:"risks"`
	Confidence             float64            `json:"confidence"`
	Complexity             Complexity         `json:"complexity"`
	DocumentsAnalyzed      []DocumentAnalyzed `json:"documents_analyzed"`

	// Diagnostics attached by the orchestrator, never by the model.
	Escalated        bool     `json:"escalated"`
	EscalationModel  *string  `json:"escalation_model"`
	SecurityWarning  *string  `json:"security_warning,omitempty"`
	ValidationErrors []string `json:"validation_errors,omitempty"`
	SecurityFlags    []string `json:"security_flags,omitempty"`
}

// CapConfidence lowers the confidence to cap if it currently exceeds it.
// Multiple caps combine via minimum rather than overriding each other.
func (r *ExtractionResult) CapConfidence(cap float64) {
	if r.Confidence > cap {
		r.Confidence = cap
	}
}
