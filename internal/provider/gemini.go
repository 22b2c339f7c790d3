package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contract-optimizer/internal/resilience"
	"github.com/sells-group/contract-optimizer/pkg/gemini"
)

// GeminiAdapter implements Adapter over the Gemini generateContent API.
type GeminiAdapter struct {
	client      gemini.Client
	fastModel   string
	strongModel string
	timeout     time.Duration
	retry       resilience.RetryConfig
}

// NewGemini builds an adapter around a Gemini client with the given fast and
// strong tier model IDs.
func NewGemini(client gemini.Client, fastModel, strongModel string, timeout time.Duration) *GeminiAdapter {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("gemini", "generate_content")
	return &GeminiAdapter{
		client:      client,
		fastModel:   fastModel,
		strongModel: strongModel,
		timeout:     timeout,
		retry:       retry,
	}
}

func (g *GeminiAdapter) Family() string      { return "gemini" }
func (g *GeminiAdapter) FastModel() string   { return g.fastModel }
func (g *GeminiAdapter) StrongModel() string { return g.strongModel }

// Extract sends each document as an inline PDF part preceded by a context
// label, appends the prompt last, and parses the JSON object from the
// response.
func (g *GeminiAdapter) Extract(ctx context.Context, docs []Document, prompt, modelID string) (map[string]any, error) {
	parts := make([]gemini.Part, 0, len(docs)*2+1)
	for i, d := range docs {
		label := fmt.Sprintf("Document %d: %s (type: %s)", i+1, d.Filename, d.DeclaredType)
		parts = append(parts, gemini.TextPart(label))
		parts = append(parts, gemini.PDFPart(d.Data))
	}
	parts = append(parts, gemini.TextPart(prompt))

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := resilience.DoVal(ctx, g.retry, func(ctx context.Context) (*gemini.GenerateResponse, error) {
		return g.client.GenerateContent(ctx, gemini.GenerateRequest{
			Model:     modelID,
			Parts:     parts,
			MaxTokens: 4096,
		})
	})
	if err != nil {
		return nil, eris.Wrapf(err, "gemini adapter: extract with %s", modelID)
	}

	zap.L().Info("cost attribution",
		zap.String("model", modelID),
		zap.String("phase", "extract"),
		zap.Int32("input_tokens", resp.Usage.InputTokens),
		zap.Int32("output_tokens", resp.Usage.OutputTokens),
	)
	return ParseObject("gemini", resp.Text)
}

// Analyze sends a text-only prompt and returns the raw response text.
func (g *GeminiAdapter) Analyze(ctx context.Context, prompt, modelID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := resilience.DoVal(ctx, g.retry, func(ctx context.Context) (*gemini.GenerateResponse, error) {
		return g.client.GenerateContent(ctx, gemini.GenerateRequest{
			Model:     modelID,
			Parts:     []gemini.Part{gemini.TextPart(prompt)},
			MaxTokens: 4096,
		})
	})
	if err != nil {
		return "", eris.Wrapf(err, "gemini adapter: analyze with %s", modelID)
	}
	return resp.Text, nil
}
