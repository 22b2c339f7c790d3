package gemini

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"

	"github.com/sells-group/contract-optimizer/internal/resilience"
)

// Client defines the Gemini API operations used by the extraction pipeline.
type Client interface {
	GenerateContent(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// GenerateRequest is our own request type for GenerateContent.
type GenerateRequest struct {
	Model       string
	Parts       []Part
	Temperature *float64
	MaxTokens   int32
}

// Part is one content part: plain text or inline binary data.
type Part struct {
	Text   string
	Inline *Blob
}

// Blob is an inline binary payload (PDF bytes for document analysis).
type Blob struct {
	MIMEType string
	Data     []byte
}

// TextPart builds a text part.
func TextPart(text string) Part {
	return Part{Text: text}
}

// PDFPart builds an inline PDF part.
func PDFPart(data []byte) Part {
	return Part{Inline: &Blob{MIMEType: "application/pdf", Data: data}}
}

// GenerateResponse is our own response type from GenerateContent.
type GenerateResponse struct {
	Text  string
	Usage TokenUsage
}

// TokenUsage tracks token consumption.
type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
}

// sdkClient implements Client using google.golang.org/genai.
type sdkClient struct {
	client *genai.Client
}

// NewClient creates a new Gemini client backed by the genai SDK.
func NewClient(ctx context.Context, apiKey string) (Client, error) {
	if apiKey == "" {
		return nil, eris.New("gemini: api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, eris.Wrap(err, "gemini: create client")
	}
	return &sdkClient{client: client}, nil
}

func (c *sdkClient) GenerateContent(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	parts := make([]*genai.Part, 0, len(req.Parts))
	for _, p := range req.Parts {
		if p.Inline != nil {
			parts = append(parts, &genai.Part{
				InlineData: &genai.Blob{MIMEType: p.Inline.MIMEType, Data: p.Inline.Data},
			})
			continue
		}
		parts = append(parts, &genai.Part{Text: p.Text})
	}

	var cfg *genai.GenerateContentConfig
	if req.Temperature != nil || req.MaxTokens > 0 {
		cfg = &genai.GenerateContentConfig{}
		if req.Temperature != nil {
			t := float32(*req.Temperature)
			cfg.Temperature = &t
		}
		if req.MaxTokens > 0 {
			cfg.MaxOutputTokens = req.MaxTokens
		}
	}

	contents := []*genai.Content{{Parts: parts, Role: genai.RoleUser}}
	result, err := c.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		wrapped := eris.Wrap(err, "gemini: generate content")
		var apierr genai.APIError
		if errors.As(err, &apierr) && resilience.RetryableStatus(apierr.Code) {
			return nil, resilience.NewTransientError(wrapped, apierr.Code)
		}
		return nil, wrapped
	}

	resp := &GenerateResponse{Text: result.Text()}
	if result.UsageMetadata != nil {
		resp.Usage = TokenUsage{
			InputTokens:  result.UsageMetadata.PromptTokenCount,
			OutputTokens: result.UsageMetadata.CandidatesTokenCount,
		}
	}
	return resp, nil
}
