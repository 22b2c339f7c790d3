package extraction

import "regexp"

// injectionPattern pairs a stable identifier with a compiled signature.
type injectionPattern struct {
	id string
	re *regexp.Regexp
}

// injectionPatterns are the fixed prompt-manipulation signatures scanned
// against untrusted text. Identifiers are stable so downstream annotations
// stay meaningful across releases.
var injectionPatterns = []injectionPattern{
	{"instruction_override", regexp.MustCompile(`(?i)ignore\s+(all\s+|any\s+)?(previous|prior|above)\s+(instructions?|prompts?|directions?)`)},
	{"instruction_disregard", regexp.MustCompile(`(?i)disregard\s+(all\s+|any\s+)?(previous|prior|above|the)\s+(instructions?|prompts?|rules?)`)},
	{"instruction_forget", regexp.MustCompile(`(?i)forget\s+(everything|all|your)\s+(above|previous|prior|instructions?)`)},
	{"role_reassignment", regexp.MustCompile(`(?i)you\s+are\s+(now|no\s+longer)\s+`)},
	{"role_act_as", regexp.MustCompile(`(?i)(act|behave|respond)\s+as\s+(if\s+you\s+(are|were)|an?\s+)`)},
	{"role_system", regexp.MustCompile(`(?i)new\s+(system\s+)?(prompt|instructions?|persona|role)\s*[:=]`)},
	{"delimiter_injection", regexp.MustCompile(`(?i)(<\s*/?\s*(system|instructions?|prompt)\s*>|\[\s*(system|inst)\s*\]|###\s*(system|instruction))`)},
	{"verbatim_output", regexp.MustCompile(`(?i)(output|print|say|respond\s+with|reply\s+with|return)\s*[:]?\s*("|')?(approved|confirmed|yes|ok)\b`)},
	{"verbatim_literal", regexp.MustCompile(`(?i)(repeat|echo)\s+(after\s+me|this|the\s+following)`)},
	{"exfiltration", regexp.MustCompile(`(?i)(reveal|show|expose|leak)\s+(your|the)\s+(system\s+)?(prompt|instructions?)`)},
}

// Scan checks untrusted text for prompt-manipulation signatures. It returns
// whether anything matched and the identifiers of every matched pattern, not
// just the first. Pure function, no I/O.
func Scan(text string) (bool, []string) {
	var matched []string
	for _, p := range injectionPatterns {
		if p.re.MatchString(text) {
			matched = append(matched, p.id)
		}
	}
	return len(matched) > 0, matched
}
