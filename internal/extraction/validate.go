package extraction

import (
	"fmt"
	"strings"

	"github.com/sells-group/contract-optimizer/internal/model"
)

// leakedSpeech are substrings that signal the model broke out of extraction
// mode and answered conversationally, usually because injected instructions
// succeeded. Checked case-insensitively against output text fields.
var leakedSpeech = []string{
	"i cannot",
	"i can't",
	"i apologize",
	"i'm sorry",
	"i am sorry",
	"as an ai",
	"i'm unable",
	"i am unable",
	"here is",
	"here's the",
	"certainly!",
	"of course!",
	"sure!",
}

// Validate checks a raw LLM response against the expected schema, collecting
// every violation rather than failing fast. This inspects output text, a
// second defense layer independent of the input scan in Scan.
func Validate(raw map[string]any) (bool, []string) {
	var errs []string
	if raw == nil {
		return false, []string{"response is not a JSON object"}
	}

	if v, ok := raw["contract_type"]; ok && v != nil {
		s, isStr := v.(string)
		if !isStr || !model.ValidContractTypes[model.ContractType(strings.ToLower(strings.TrimSpace(s)))] {
			errs = append(errs, fmt.Sprintf("contract_type %q is not a recognized type", v))
		}
	}

	if v, ok := raw["complexity"]; ok && v != nil {
		s, isStr := v.(string)
		if !isStr || !model.ValidComplexities[model.Complexity(strings.ToLower(strings.TrimSpace(s)))] {
			errs = append(errs, fmt.Sprintf("complexity %q is not a recognized level", v))
		}
	}

	if v, ok := raw["confidence"]; ok && v != nil {
		f, isNum := toFloat64(v)
		if !isNum {
			errs = append(errs, fmt.Sprintf("confidence %q is not a number", v))
		} else if f < 0 || f > 1 {
			errs = append(errs, fmt.Sprintf("confidence %v outside [0,1]", f))
		}
	}

	if v, ok := raw["risks"]; ok && v != nil {
		risks, isList := v.([]any)
		if !isList {
			errs = append(errs, "risks is not a list")
		} else {
			for i, rk := range risks {
				m, isMap := rk.(map[string]any)
				if !isMap {
					errs = append(errs, fmt.Sprintf("risks[%d] is not an object", i))
					continue
				}
				sev, _ := m["severity"].(string)
				if !model.ValidSeverities[model.Severity(strings.ToLower(strings.TrimSpace(sev)))] {
					errs = append(errs, fmt.Sprintf("risks[%d] severity %q is not high/medium/low", i, m["severity"]))
				}
			}
		}
	}

	if v, ok := raw["parties"]; ok && v != nil {
		parties, isList := v.([]any)
		if !isList {
			errs = append(errs, "parties is not a list")
		} else {
			for i, p := range parties {
				m, isMap := p.(map[string]any)
				if !isMap {
					errs = append(errs, fmt.Sprintf("parties[%d] is not an object", i))
					continue
				}
				name, _ := m["name"].(string)
				if strings.TrimSpace(name) == "" {
					errs = append(errs, fmt.Sprintf("parties[%d] has an empty name", i))
				}
			}
		}
	}

	if v, ok := raw["key_terms"]; ok && v != nil {
		terms, isList := v.([]any)
		if !isList {
			errs = append(errs, "key_terms is not a list")
		} else {
			for i, t := range terms {
				if _, isStr := t.(string); !isStr {
					errs = append(errs, fmt.Sprintf("key_terms[%d] is not a string", i))
				}
			}
		}
	}

	// Leaked assistant speech in output fields.
	if name, _ := raw["provider_name"].(string); name != "" {
		if leak := findLeakedSpeech(name); leak != "" {
			errs = append(errs, fmt.Sprintf("provider_name contains assistant speech (%q)", leak))
		}
	}
	if terms, ok := raw["key_terms"].([]any); ok {
		for i, t := range terms {
			s, isStr := t.(string)
			if !isStr {
				continue
			}
			if leak := findLeakedSpeech(s); leak != "" {
				errs = append(errs, fmt.Sprintf("key_terms[%d] contains assistant speech (%q)", i, leak))
			}
		}
	}

	return len(errs) == 0, errs
}

// findLeakedSpeech returns the first matched leaked-speech substring, or "".
func findLeakedSpeech(text string) string {
	lower := strings.ToLower(text)
	for _, phrase := range leakedSpeech {
		if strings.Contains(lower, phrase) {
			return phrase
		}
	}
	return ""
}
