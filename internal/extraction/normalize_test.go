package extraction

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contract-optimizer/internal/model"
)

func TestNormalize_StrictSchema(t *testing.T) {
	raw := map[string]any{
		"provider_name":            "Acme Insurance Co",
		"contract_nickname":        "Home policy",
		"contract_type":            "insurance",
		"monthly_cost":             142.50,
		"annual_cost":              1710.0,
		"currency":                 "USD",
		"payment_frequency":        "monthly",
		"start_date":               "2026-01-01",
		"end_date":                 "2027-01-01",
		"auto_renewal":             true,
		"cancellation_notice_days": 30,
		"key_terms":                []any{"deductible $500", "liability $300k"},
		"parties": []any{
			map[string]any{"name": "Acme Insurance Co", "role": "insurer"},
			map[string]any{"name": "Jane Doe", "role": "policyholder"},
		},
		"risks": []any{
			map[string]any{"title": "Auto-renewal", "description": "Renews silently", "severity": "medium"},
		},
		"confidence": 0.92,
		"complexity": "low",
		"documents_analyzed": []any{
			map[string]any{"filename": "policy.pdf", "document_type": "main_agreement", "summary": "Policy terms"},
		},
	}

	r := Normalize(raw)

	require.NotNil(t, r.ProviderName)
	assert.Equal(t, "Acme Insurance Co", *r.ProviderName)
	require.NotNil(t, r.ContractType)
	assert.Equal(t, model.ContractTypeInsurance, *r.ContractType)
	require.NotNil(t, r.MonthlyCost)
	assert.Equal(t, 142.50, *r.MonthlyCost)
	assert.Equal(t, "USD", r.Currency)
	require.NotNil(t, r.PaymentFrequency)
	assert.Equal(t, model.PaymentMonthly, *r.PaymentFrequency)
	require.NotNil(t, r.AutoRenewal)
	assert.True(t, *r.AutoRenewal)
	require.NotNil(t, r.CancellationNoticeDays)
	assert.Equal(t, 30, *r.CancellationNoticeDays)
	assert.Len(t, r.KeyTerms, 2)
	assert.Len(t, r.Parties, 2)
	require.Len(t, r.Risks, 1)
	assert.Equal(t, model.SeverityMedium, r.Risks[0].Severity)
	assert.Equal(t, 0.92, r.Confidence)
	assert.Equal(t, model.ComplexityLow, r.Complexity)
	require.Len(t, r.DocumentsAnalyzed, 1)
	assert.Equal(t, model.DocMainAgreement, r.DocumentsAnalyzed[0].DocumentType)
}

func TestNormalize_ProjectionIsStable(t *testing.T) {
	raw := map[string]any{
		"provider_name": "Acme Insurance Co",
		"contract_type": "Insurance",
		"monthly_cost":  "$142.50",
		"currency":      "$",
		"severity":      "urgent",
		"key_terms":     []any{"deductible $500"},
		"confidence":    0.92,
		"complexity":    "low",
	}

	first := Normalize(raw)

	b, err := json.Marshal(first)
	require.NoError(t, err)
	var again map[string]any
	require.NoError(t, json.Unmarshal(b, &again))

	second := Normalize(again)
	assert.Equal(t, first, second)
}

func TestNormalize_LooseCoercesStringCosts(t *testing.T) {
	raw := map[string]any{
		"provider_name": "Comcast",
		"monthly_cost":  "$1,200.50",
		"annual_cost":   "14406",
		"confidence":    0.8,
	}

	r := Normalize(raw)

	require.NotNil(t, r.MonthlyCost)
	assert.Equal(t, 1200.50, *r.MonthlyCost)
	require.NotNil(t, r.AnnualCost)
	assert.Equal(t, 14406.0, *r.AnnualCost)
}

func TestNormalize_UnknownEnumsDegradeToDefaults(t *testing.T) {
	raw := map[string]any{
		"contract_type":     "lease",
		"payment_frequency": "biweekly",
		"complexity":        "extreme",
		"currency":          "XYZ",
		"risks": []any{
			map[string]any{"title": "t", "description": "d", "severity": "critical"},
		},
		"confidence": 0.5,
	}

	r := Normalize(raw)

	assert.Nil(t, r.ContractType)
	assert.Nil(t, r.PaymentFrequency)
	assert.Equal(t, model.ComplexityMedium, r.Complexity)
	assert.Equal(t, "USD", r.Currency)
	require.Len(t, r.Risks, 1)
	assert.Equal(t, model.SeverityMedium, r.Risks[0].Severity)
}

func TestNormalize_ClampsConfidence(t *testing.T) {
	r := Normalize(map[string]any{"confidence": 1.4})
	assert.Equal(t, 1.0, r.Confidence)

	r = Normalize(map[string]any{"confidence": -0.3})
	assert.Equal(t, 0.0, r.Confidence)
}

func TestNormalize_NegativeCostsDropped(t *testing.T) {
	raw := map[string]any{
		"monthly_cost":             -50.0,
		"cancellation_notice_days": -7,
		"confidence":               0.9,
	}

	r := Normalize(raw)
	assert.Nil(t, r.MonthlyCost)
	assert.Nil(t, r.CancellationNoticeDays)
}

func TestNormalize_EmptyPartiesFiltered(t *testing.T) {
	raw := map[string]any{
		"parties": []any{
			map[string]any{"name": "  ", "role": "tenant"},
			map[string]any{"name": "Landlord LLC", "role": "landlord"},
		},
		"confidence": 0.9,
	}

	r := Normalize(raw)
	require.Len(t, r.Parties, 1)
	assert.Equal(t, "Landlord LLC", r.Parties[0].Name)
}

func TestNormalize_KeyTermsNeverNil(t *testing.T) {
	r := Normalize(map[string]any{"confidence": 0.9})
	assert.NotNil(t, r.KeyTerms)
	assert.Empty(t, r.KeyTerms)

	r = Normalize(map[string]any{"key_terms": []any{"term", 42, "other"}, "confidence": 0.9})
	assert.Equal(t, []string{"term", "other"}, r.KeyTerms)
}

func TestNormalizeCurrency(t *testing.T) {
	cases := map[string]string{
		"":    "USD",
		"$":   "USD",
		"€":   "EUR",
		"£":   "GBP",
		"¥":   "JPY",
		"C$":  "CAD",
		"A$":  "AUD",
		"CA$": "CAD",
		"AU$": "AUD",
		"usd": "USD",
		"eur": "EUR",
		"XYZ": "USD",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeCurrency(in), "input %q", in)
	}
}

func TestNormalizeContractType(t *testing.T) {
	got := NormalizeContractType(" SaaS ")
	require.NotNil(t, got)
	assert.Equal(t, model.ContractTypeSaaS, *got)

	assert.Nil(t, NormalizeContractType("mortgage"))
	assert.Nil(t, NormalizeContractType(""))
}
