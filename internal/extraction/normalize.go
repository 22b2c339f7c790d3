package extraction

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/sells-group/contract-optimizer/internal/model"
)

// strictResult mirrors the wire shape the extraction prompt requests. It is
// the first of the two parse stages: a raw response that decodes cleanly into
// this struct skips the permissive field-by-field coercion entirely.
type strictResult struct {
	ProviderName           *string       `json:"provider_name"`
	ContractNickname       *string       `json:"contract_nickname"`
	ContractType           *string       `json:"contract_type"`
	MonthlyCost            *float64      `json:"monthly_cost"`
	AnnualCost             *float64      `json:"annual_cost"`
	Currency               string        `json:"currency"`
	PaymentFrequency       *string       `json:"payment_frequency"`
	StartDate              *string       `json:"start_date"`
	EndDate                *string       `json:"end_date"`
	AutoRenewal            *bool         `json:"auto_renewal"`
	CancellationNoticeDays *int          `json:"cancellation_notice_days"`
	KeyTerms               []string      `json:"key_terms"`
	Parties                []model.Party `json:"parties"`
	Risks                  []strictRisk  `json:"risks"`
	Confidence             float64       `json:"confidence"`
	Complexity             string        `json:"complexity"`
	DocumentsAnalyzed      []strictDoc   `json:"documents_analyzed"`
}

type strictRisk struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
}

type strictDoc struct {
	Filename     string `json:"filename"`
	DocumentType string `json:"document_type"`
	Summary      string `json:"summary"`
}

// Normalize projects an untyped response mapping into a canonical
// ExtractionResult. It never fails: any field that cannot be coerced falls
// back to its documented default instead of aborting the whole result.
func Normalize(raw map[string]any) model.ExtractionResult {
	if sr, ok := tryStrict(raw); ok {
		return fromStrict(sr)
	}
	return normalizeLoose(raw)
}

// tryStrict attempts the strict schema decode via a JSON round trip.
func tryStrict(raw map[string]any) (*strictResult, bool) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, false
	}
	var sr strictResult
	if err := json.Unmarshal(data, &sr); err != nil {
		return nil, false
	}
	return &sr, true
}

func fromStrict(sr *strictResult) model.ExtractionResult {
	r := model.ExtractionResult{
		ProviderName:           trimPtr(sr.ProviderName),
		ContractNickname:       trimPtr(sr.ContractNickname),
		ContractType:           NormalizeContractType(deref(sr.ContractType)),
		MonthlyCost:            nonNegative(sr.MonthlyCost),
		AnnualCost:             nonNegative(sr.AnnualCost),
		Currency:               NormalizeCurrency(sr.Currency),
		PaymentFrequency:       NormalizePaymentFrequency(deref(sr.PaymentFrequency)),
		StartDate:              trimPtr(sr.StartDate),
		EndDate:                trimPtr(sr.EndDate),
		AutoRenewal:            sr.AutoRenewal,
		CancellationNoticeDays: nonNegativeInt(sr.CancellationNoticeDays),
		KeyTerms:               sr.KeyTerms,
		Parties:                filterParties(sr.Parties),
		Confidence:             clampConfidence(sr.Confidence),
		Complexity:             NormalizeComplexity(sr.Complexity),
	}
	if r.KeyTerms == nil {
		r.KeyTerms = []string{}
	}
	for _, risk := range sr.Risks {
		r.Risks = append(r.Risks, model.Risk{
			Title:       risk.Title,
			Description: risk.Description,
			Severity:    NormalizeSeverity(risk.Severity),
		})
	}
	for _, doc := range sr.DocumentsAnalyzed {
		r.DocumentsAnalyzed = append(r.DocumentsAnalyzed, model.DocumentAnalyzed{
			Filename:     doc.Filename,
			DocumentType: NormalizeDocumentType(doc.DocumentType),
			Summary:      doc.Summary,
		})
	}
	return r
}

// normalizeLoose is the permissive fallback extractor. Field-by-field, each
// coercion failure degrades that one field to its default.
func normalizeLoose(raw map[string]any) model.ExtractionResult {
	r := model.ExtractionResult{
		ProviderName:           toStringPtr(raw["provider_name"]),
		ContractNickname:       toStringPtr(raw["contract_nickname"]),
		ContractType:           NormalizeContractType(toString(raw["contract_type"])),
		MonthlyCost:            nonNegative(toFloatPtr(raw["monthly_cost"])),
		AnnualCost:             nonNegative(toFloatPtr(raw["annual_cost"])),
		Currency:               NormalizeCurrency(toString(raw["currency"])),
		PaymentFrequency:       NormalizePaymentFrequency(toString(raw["payment_frequency"])),
		StartDate:              toStringPtr(raw["start_date"]),
		EndDate:                toStringPtr(raw["end_date"]),
		AutoRenewal:            toBoolPtr(raw["auto_renewal"]),
		CancellationNoticeDays: nonNegativeInt(toIntPtr(raw["cancellation_notice_days"])),
		KeyTerms:               toStringSlice(raw["key_terms"]),
		Confidence:             clampConfidence(toFloat(raw["confidence"])),
		Complexity:             NormalizeComplexity(toString(raw["complexity"])),
	}

	if parties, ok := raw["parties"].([]any); ok {
		for _, p := range parties {
			m, ok := p.(map[string]any)
			if !ok {
				continue
			}
			name := strings.TrimSpace(toString(m["name"]))
			if name == "" {
				continue
			}
			r.Parties = append(r.Parties, model.Party{
				Name: name,
				Role: toString(m["role"]),
			})
		}
	}

	if risks, ok := raw["risks"].([]any); ok {
		for _, rk := range risks {
			m, ok := rk.(map[string]any)
			if !ok {
				continue
			}
			r.Risks = append(r.Risks, model.Risk{
				Title:       toString(m["title"]),
				Description: toString(m["description"]),
				Severity:    NormalizeSeverity(toString(m["severity"])),
			})
		}
	}

	if docs, ok := raw["documents_analyzed"].([]any); ok {
		for _, d := range docs {
			m, ok := d.(map[string]any)
			if !ok {
				continue
			}
			r.DocumentsAnalyzed = append(r.DocumentsAnalyzed, model.DocumentAnalyzed{
				Filename:     toString(m["filename"]),
				DocumentType: NormalizeDocumentType(toString(m["document_type"])),
				Summary:      toString(m["summary"]),
			})
		}
	}

	return r
}

// NormalizeCurrency maps symbols and codes to a member of the valid currency
// set. Unrecognized values default to USD.
func NormalizeCurrency(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "USD"
	}
	if code, ok := model.CurrencySymbols[v]; ok {
		return code
	}
	upper := strings.ToUpper(v)
	if model.ValidCurrencies[upper] {
		return upper
	}
	return "USD"
}

// NormalizeContractType lowercases and checks set membership; unknown
// values yield nil rather than an arbitrary string.
func NormalizeContractType(v string) *model.ContractType {
	ct := model.ContractType(strings.ToLower(strings.TrimSpace(v)))
	if model.ValidContractTypes[ct] {
		return &ct
	}
	return nil
}

// NormalizePaymentFrequency lowercases and checks set membership.
func NormalizePaymentFrequency(v string) *model.PaymentFrequency {
	pf := model.PaymentFrequency(strings.ToLower(strings.TrimSpace(v)))
	if model.ValidPaymentFrequencies[pf] {
		return &pf
	}
	return nil
}

// NormalizeSeverity lowercases and checks set membership, defaulting to
// medium for anything outside the closed set.
func NormalizeSeverity(v string) model.Severity {
	s := model.Severity(strings.ToLower(strings.TrimSpace(v)))
	if model.ValidSeverities[s] {
		return s
	}
	return model.SeverityMedium
}

// NormalizeComplexity lowercases and checks set membership, defaulting to
// medium.
func NormalizeComplexity(v string) model.Complexity {
	c := model.Complexity(strings.ToLower(strings.TrimSpace(v)))
	if model.ValidComplexities[c] {
		return c
	}
	return model.ComplexityMedium
}

// NormalizeDocumentType lowercases and checks set membership, defaulting to
// other.
func NormalizeDocumentType(v string) model.DocumentType {
	dt := model.DocumentType(strings.ToLower(strings.TrimSpace(v)))
	if model.ValidDocumentTypes[dt] {
		return dt
	}
	return model.DocOther
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func nonNegative(v *float64) *float64 {
	if v == nil || *v < 0 {
		return nil
	}
	return v
}

func nonNegativeInt(v *int) *int {
	if v == nil || *v < 0 {
		return nil
	}
	return v
}

func filterParties(parties []model.Party) []model.Party {
	var out []model.Party
	for _, p := range parties {
		if strings.TrimSpace(p.Name) == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}

func toStringPtr(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return trimPtr(&s)
}

func toStringSlice(v any) []string {
	out := []string{}
	items, ok := v.([]any)
	if !ok {
		return out
	}
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func toFloat(v any) float64 {
	f, _ := toFloat64(v)
	return f
}

func toFloatPtr(v any) *float64 {
	f, ok := toFloat64(v)
	if !ok {
		return nil
	}
	return &f
}

// toFloat64 coerces JSON numbers and numeric strings. Strings may carry
// currency symbols or thousands separators, which the model sometimes emits
// despite the prompt.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(n)
		s = strings.TrimLeft(s, "$€£¥")
		s = strings.ReplaceAll(s, ",", "")
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toIntPtr(v any) *int {
	f, ok := toFloat64(v)
	if !ok {
		return nil
	}
	i := int(f)
	return &i
}

func toBoolPtr(v any) *bool {
	b, ok := v.(bool)
	if !ok {
		return nil
	}
	return &b
}
