package extraction

import (
	"context"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contract-optimizer/internal/model"
	"github.com/sells-group/contract-optimizer/internal/provider"
)

// Input errors, rejected before any provider call.
var (
	ErrNoDocuments      = errors.New("no documents provided")
	ErrTooManyDocuments = errors.New("too many documents in one request")
)

// suspiciousRiskTitle is the synthesized risk entry appended when validation
// flags the output. Appending is idempotent on this title.
const suspiciousRiskTitle = "Suspicious Document Content"

// Confidence caps applied by the two defense layers. Caps combine via
// minimum, never override.
const (
	invalidOutputCap = 0.4
	flaggedInputCap  = 0.5
)

// Policy holds the escalation thresholds. These are product-tuned policy
// values, kept configurable rather than hard-coded.
type Policy struct {
	// ConfidenceThreshold escalates when the fast tier reports less.
	ConfidenceThreshold float64
	// KeyTermsThreshold escalates when at least this many key terms came back.
	KeyTermsThreshold int
	// ComplexTypes are contract types that escalate regardless of confidence.
	ComplexTypes []model.ContractType
}

// DefaultPolicy returns the tuned escalation thresholds.
func DefaultPolicy() Policy {
	return Policy{
		ConfidenceThreshold: 0.7,
		KeyTermsThreshold:   6,
		ComplexTypes: []model.ContractType{
			model.ContractTypeRental,
			model.ContractTypeInsurance,
			model.ContractTypeService,
		},
	}
}

// Config configures the extraction orchestrator.
type Config struct {
	Policy Policy
	// MaxDocuments caps documents per extraction call.
	MaxDocuments int
	// ForceStrong skips the fast tier and calls the primary provider's
	// strong tier directly (explicit provider override).
	ForceStrong bool
}

// Extractor runs the extraction pipeline: primary call, conditional
// escalation with fallback, validation, injection scanning, normalization.
type Extractor struct {
	primary   provider.Adapter
	alternate provider.Adapter // may be nil
	cfg       Config
}

// New builds an Extractor. alternate may be nil when only one provider
// family is configured.
func New(primary, alternate provider.Adapter, cfg Config) *Extractor {
	if cfg.MaxDocuments <= 0 {
		cfg.MaxDocuments = 5
	}
	if cfg.Policy.ConfidenceThreshold == 0 && cfg.Policy.KeyTermsThreshold == 0 && len(cfg.Policy.ComplexTypes) == 0 {
		cfg.Policy = DefaultPolicy()
	}
	return &Extractor{primary: primary, alternate: alternate, cfg: cfg}
}

// Extract runs the full pipeline over a document set and returns the
// annotated canonical result.
func (e *Extractor) Extract(ctx context.Context, docs []provider.Document) (*model.ExtractionResult, error) {
	if len(docs) == 0 {
		return nil, ErrNoDocuments
	}
	if len(docs) > e.cfg.MaxDocuments {
		return nil, eris.Wrapf(ErrTooManyDocuments, "got %d, limit %d", len(docs), e.cfg.MaxDocuments)
	}

	if e.cfg.ForceStrong {
		raw, err := e.primary.Extract(ctx, docs, UnifiedExtractionPrompt, e.primary.StrongModel())
		if err != nil {
			return nil, eris.Wrapf(err, "extraction failed (%s strong tier)", e.primary.Family())
		}
		result := Normalize(raw)
		e.finalize(&result, raw, docs)
		return &result, nil
	}

	raw, err := e.primary.Extract(ctx, docs, UnifiedExtractionPrompt, e.primary.FastModel())
	if err != nil {
		if e.alternate == nil {
			return nil, eris.Wrapf(err, "extraction failed (%s)", e.primary.Family())
		}
		zap.L().Warn("primary extraction failed, retrying on alternate provider",
			zap.String("primary", e.primary.Family()),
			zap.String("alternate", e.alternate.Family()),
			zap.Error(err),
		)
		raw, err = e.alternate.Extract(ctx, docs, UnifiedExtractionPrompt, e.alternate.FastModel())
		if err != nil {
			return nil, eris.Wrapf(err, "extraction failed (%s, alternate)", e.alternate.Family())
		}
	}

	result := Normalize(raw)

	escalated := false
	var escalationModel string
	if e.needsEscalation(result) {
		zap.L().Info("escalating extraction",
			zap.Float64("confidence", result.Confidence),
			zap.String("complexity", string(result.Complexity)),
			zap.Int("key_terms", len(result.KeyTerms)),
		)
		escRaw, escModel, escErr := e.escalate(ctx, docs)
		if escErr != nil {
			return nil, escErr
		}
		raw = escRaw
		result = Normalize(raw)
		escalated = true
		escalationModel = escModel
	}

	e.finalize(&result, raw, docs)
	result.Escalated = escalated
	if escalated {
		result.EscalationModel = &escalationModel
	}
	return &result, nil
}

// needsEscalation decides whether the fast tier's output warrants re-running
// on the strong tier. Monotonic in confidence: lowering confidence never
// turns a true result false.
func (e *Extractor) needsEscalation(r model.ExtractionResult) bool {
	if r.Confidence < e.cfg.Policy.ConfidenceThreshold {
		return true
	}
	if r.Complexity == model.ComplexityHigh {
		return true
	}
	if r.ContractType != nil {
		for _, ct := range e.cfg.Policy.ComplexTypes {
			if *r.ContractType == ct {
				return true
			}
		}
	}
	if e.cfg.Policy.KeyTermsThreshold > 0 && len(r.KeyTerms) >= e.cfg.Policy.KeyTermsThreshold {
		return true
	}
	return false
}

// escalate calls the strong tier of the same provider family first, falling
// back cross-vendor only on hard failure. Sequential, never a parallel race.
func (e *Extractor) escalate(ctx context.Context, docs []provider.Document) (map[string]any, string, error) {
	raw, err := e.primary.Extract(ctx, docs, UnifiedExtractionPrompt, e.primary.StrongModel())
	if err == nil {
		return raw, e.primary.StrongModel(), nil
	}

	if e.alternate == nil {
		return nil, "", eris.Wrapf(err, "escalation failed (%s strong tier, no alternate configured)", e.primary.Family())
	}

	zap.L().Warn("escalation failed on primary family, falling back cross-vendor",
		zap.String("primary", e.primary.Family()),
		zap.String("alternate", e.alternate.Family()),
		zap.Error(err),
	)
	raw, fbErr := e.alternate.Extract(ctx, docs, UnifiedExtractionPrompt, e.alternate.StrongModel())
	if fbErr != nil {
		return nil, "", eris.Wrapf(err, "escalation failed (%s strong tier; alternate %s also failed: %v)",
			e.primary.Family(), e.alternate.Family(), fbErr)
	}
	return raw, e.alternate.StrongModel(), nil
}

// finalize applies the two output defense layers and attaches diagnostics.
// Adversarial findings degrade confidence and annotate; they never block the
// response, since the human reviewer sees the flags.
func (e *Extractor) finalize(result *model.ExtractionResult, raw map[string]any, docs []provider.Document) {
	if ok, errs := Validate(raw); !ok {
		result.ValidationErrors = errs
		result.CapConfidence(invalidOutputCap)
		appendSuspiciousRisk(result)
		setSecurityWarning(result)
		zap.L().Warn("extraction output failed validation",
			zap.Strings("errors", errs),
		)
	}

	var flags []string
	for _, d := range docs {
		if suspicious, patterns := Scan(d.Filename); suspicious {
			for _, p := range patterns {
				flags = append(flags, fmt.Sprintf("%s: %s", d.Filename, p))
			}
		}
	}
	if len(flags) > 0 {
		result.SecurityFlags = flags
		result.CapConfidence(flaggedInputCap)
		setSecurityWarning(result)
		zap.L().Warn("suspicious filenames detected",
			zap.Strings("flags", flags),
		)
	}
}

// appendSuspiciousRisk adds the synthesized high-severity risk once.
func appendSuspiciousRisk(result *model.ExtractionResult) {
	for _, r := range result.Risks {
		if r.Title == suspiciousRiskTitle {
			return
		}
	}
	result.Risks = append(result.Risks, model.Risk{
		Title:       suspiciousRiskTitle,
		Description: "The extracted output did not match the expected structure, which can indicate manipulated or adversarial document content. Review the source documents manually.",
		Severity:    model.SeverityHigh,
	})
}

func setSecurityWarning(result *model.ExtractionResult) {
	if result.SecurityWarning != nil {
		return
	}
	warning := "Security checks flagged this extraction; verify the values against the source documents before trusting them."
	result.SecurityWarning = &warning
}
