package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contract-optimizer/internal/resilience"
	"github.com/sells-group/contract-optimizer/pkg/anthropic"
)

// AnthropicAdapter implements Adapter over the Claude Messages API.
type AnthropicAdapter struct {
	client      anthropic.Client
	fastModel   string
	strongModel string
	timeout     time.Duration
	retry       resilience.RetryConfig
}

// NewAnthropic builds an adapter around an Anthropic client with the given
// fast and strong tier model IDs.
func NewAnthropic(client anthropic.Client, fastModel, strongModel string, timeout time.Duration) *AnthropicAdapter {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("anthropic", "create_message")
	return &AnthropicAdapter{
		client:      client,
		fastModel:   fastModel,
		strongModel: strongModel,
		timeout:     timeout,
		retry:       retry,
	}
}

func (a *AnthropicAdapter) Family() string      { return "anthropic" }
func (a *AnthropicAdapter) FastModel() string   { return a.fastModel }
func (a *AnthropicAdapter) StrongModel() string { return a.strongModel }

// Extract encodes each document as a base64 PDF block preceded by a context
// label (filename + declared type), appends the prompt last, and parses the
// JSON object from the response.
func (a *AnthropicAdapter) Extract(ctx context.Context, docs []Document, prompt, modelID string) (map[string]any, error) {
	blocks := make([]anthropic.Block, 0, len(docs)*2+1)
	for i, d := range docs {
		label := fmt.Sprintf("Document %d: %s (type: %s)", i+1, d.Filename, d.DeclaredType)
		blocks = append(blocks, anthropic.TextBlock(label))
		blocks = append(blocks, anthropic.DocumentBlock(
			base64.StdEncoding.EncodeToString(d.Data),
			d.Filename,
		))
	}
	blocks = append(blocks, anthropic.TextBlock(prompt))

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp, err := resilience.DoVal(ctx, a.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return a.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     modelID,
			MaxTokens: 4096,
			Messages: []anthropic.Message{
				{Role: "user", Blocks: blocks},
			},
		})
	})
	if err != nil {
		return nil, eris.Wrapf(err, "anthropic adapter: extract with %s", modelID)
	}

	resp.Usage.LogCost(modelID, "extract")
	return ParseObject("anthropic", resp.Text())
}

// Analyze sends a text-only prompt and returns the raw response text.
func (a *AnthropicAdapter) Analyze(ctx context.Context, prompt, modelID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp, err := resilience.DoVal(ctx, a.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return a.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     modelID,
			MaxTokens: 4096,
			Messages: []anthropic.Message{
				{Role: "user", Blocks: []anthropic.Block{anthropic.TextBlock(prompt)}},
			},
		})
	})
	if err != nil {
		return "", eris.Wrapf(err, "anthropic adapter: analyze with %s", modelID)
	}

	resp.Usage.LogCost(modelID, "analyze")
	return resp.Text(), nil
}
