package provider

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contract-optimizer/internal/model"
)

// ErrDecode marks a response whose text could not be parsed as JSON. The
// orchestrator treats it like a network failure: it decides fallback
// behavior, the adapter only reports it distinguishably.
var ErrDecode = errors.New("response did not contain valid JSON")

// Document is one input file for extraction.
type Document struct {
	Filename     string
	Data         []byte
	DeclaredType model.DocumentType
}

// Adapter turns a set of documents plus a prompt into a raw JSON-bearing
// mapping. One adapter per LLM backend family; each family exposes a
// fast/inexpensive tier and a stronger/slower tier.
type Adapter interface {
	// Family identifies the provider family ("anthropic", "gemini").
	Family() string
	// FastModel is the cheap tier used for primary extraction.
	FastModel() string
	// StrongModel is the expensive tier used for escalation.
	StrongModel() string
	// Extract sends documents and the prompt to the given model and parses
	// the JSON object from the response text.
	Extract(ctx context.Context, docs []Document, prompt, modelID string) (map[string]any, error)
	// Analyze sends a text-only analysis prompt to the given model and
	// returns the raw response text.
	Analyze(ctx context.Context, prompt, modelID string) (string, error)
}

// CleanJSON extracts a JSON value from text that may contain markdown code
// fences or surrounding prose.
func CleanJSON(text string) string {
	text = strings.TrimSpace(text)

	// Strip markdown code fences.
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	// Find first { and last }.
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}

// CleanJSONArray extracts a JSON array from text, tolerating a bare array or
// one embedded in prose or code fences.
func CleanJSONArray(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}

// ParseObject parses a JSON object out of raw response text, reporting
// ErrDecode when no object can be recovered.
func ParseObject(family, text string) (map[string]any, error) {
	cleaned := CleanJSON(text)
	var raw map[string]any
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, eris.Wrapf(ErrDecode, "%s: %v", family, err)
	}
	return raw, nil
}
