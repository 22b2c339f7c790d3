package recommend

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contract-optimizer/internal/extraction"
	"github.com/sells-group/contract-optimizer/internal/model"
	"github.com/sells-group/contract-optimizer/internal/provider"
)

// Engine produces advisory records from a user's stored contracts. Renewal
// reminders are computed locally; everything else comes from a provider
// adapter with the same fallback pattern extraction uses.
type Engine struct {
	primary   provider.Adapter
	alternate provider.Adapter // may be nil
	now       func() time.Time
}

// NewEngine builds an Engine. alternate may be nil.
func NewEngine(primary, alternate provider.Adapter) *Engine {
	return &Engine{primary: primary, alternate: alternate, now: time.Now}
}

// contractView is the trimmed contract shape sent for analysis. Internal
// bookkeeping fields stay out of the prompt.
type contractView struct {
	ID                     string                  `json:"id"`
	ProviderName           string                  `json:"provider_name"`
	ContractType           *model.ContractType     `json:"contract_type"`
	MonthlyCost            *float64                `json:"monthly_cost"`
	AnnualCost             *float64                `json:"annual_cost"`
	Currency               string                  `json:"currency"`
	StartDate              *string                 `json:"start_date"`
	EndDate                *string                 `json:"end_date"`
	AutoRenewal            *bool                   `json:"auto_renewal"`
	CancellationNoticeDays *int                    `json:"cancellation_notice_days"`
	PaymentFrequency       *model.PaymentFrequency `json:"payment_frequency"`
	KeyTerms               []string                `json:"key_terms"`
}

// rawRecommendation mirrors the loose JSON the model returns before
// field-defaulting.
type rawRecommendation struct {
	ContractID       *string  `json:"contract_id"`
	Type             string   `json:"type"`
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	EstimatedSavings *float64 `json:"estimated_savings"`
	Priority         string   `json:"priority"`
	Reasoning        string   `json:"reasoning"`
	Confidence       *float64 `json:"confidence"`
}

// Generate merges deterministic renewal reminders over all contracts with
// AI recommendations for contracts that have no prior recommendation row.
// analyzed holds contract IDs that already have at least one recommendation.
func (e *Engine) Generate(ctx context.Context, userID string, contracts []model.Contract, analyzed map[string]bool) ([]model.Recommendation, error) {
	if len(contracts) == 0 {
		return nil, nil
	}

	recs := e.renewalReminders(userID, contracts)

	var fresh []model.Contract
	for _, c := range contracts {
		if !analyzed[c.ID] {
			fresh = append(fresh, c)
		}
	}

	if len(fresh) > 0 {
		aiRecs, err := e.analyze(ctx, userID, fresh)
		if err != nil {
			return nil, err
		}
		recs = append(recs, aiRecs...)
	}

	return recs, nil
}

// renewalReminders emits a reminder for every contract ending within the next
// 30 days, inclusive on both bounds. Pure arithmetic, so confidence is 1.0.
func (e *Engine) renewalReminders(userID string, contracts []model.Contract) []model.Recommendation {
	today := e.now().UTC().Truncate(24 * time.Hour)
	horizon := today.AddDate(0, 0, 30)

	var reminders []model.Recommendation
	for _, c := range contracts {
		if c.EndDate == nil {
			continue
		}
		endDate, err := time.Parse("2006-01-02", *c.EndDate)
		if err != nil {
			continue
		}
		if endDate.Before(today) || endDate.After(horizon) {
			continue
		}

		daysLeft := int(endDate.Sub(today).Hours() / 24)
		providerName := "Contract"
		providerRef := "this provider"
		if c.ProviderName != "" {
			providerName = c.ProviderName
			providerRef = c.ProviderName
		}
		renewalNote := "Review and decide whether to renew."
		if c.AutoRenewal != nil && *c.AutoRenewal {
			renewalNote = "This contract will auto-renew."
		}
		priority := model.PriorityMedium
		if daysLeft <= 7 {
			priority = model.PriorityHigh
		}

		contractID := c.ID
		reminders = append(reminders, model.Recommendation{
			UserID:      userID,
			ContractID:  &contractID,
			Type:        model.RecRenewalReminder,
			Title:       fmt.Sprintf("%s expires in %d days", providerName, daysLeft),
			Description: fmt.Sprintf("Your contract with %s expires on %s. %s", providerRef, endDate.Format("2006-01-02"), renewalNote),
			Priority:    priority,
			Status:      model.StatusPending,
			Reasoning:   "Upcoming contract expiration requires attention",
			Confidence:  1.0,
		})
	}
	return reminders
}

// analyze sends the fresh contract batch plus market benchmarks to the
// primary provider's strong tier, retrying once on the alternate.
func (e *Engine) analyze(ctx context.Context, userID string, contracts []model.Contract) ([]model.Recommendation, error) {
	views := make([]contractView, 0, len(contracts))
	for _, c := range contracts {
		views = append(views, contractView{
			ID:                     c.ID,
			ProviderName:           c.ProviderName,
			ContractType:           c.ContractType,
			MonthlyCost:            c.MonthlyCost,
			AnnualCost:             c.AnnualCost,
			Currency:               c.Currency,
			StartDate:              c.StartDate,
			EndDate:                c.EndDate,
			AutoRenewal:            c.AutoRenewal,
			CancellationNoticeDays: c.CancellationNoticeDays,
			PaymentFrequency:       c.PaymentFrequency,
			KeyTerms:               c.KeyTerms,
		})
	}

	contractsJSON, err := json.MarshalIndent(views, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "failed to marshal contracts for analysis")
	}
	marketJSON, err := json.MarshalIndent(CompareMarketRates(contracts), "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "failed to marshal market comparison")
	}

	prompt := fmt.Sprintf(extraction.AnalysisPrompt, contractsJSON, marketJSON)

	text, err := e.primary.Analyze(ctx, prompt, e.primary.StrongModel())
	if err != nil {
		if e.alternate == nil {
			return nil, eris.Wrapf(err, "recommendation analysis failed (%s)", e.primary.Family())
		}
		zap.L().Warn("recommendation analysis failed, retrying on alternate provider",
			zap.String("primary", e.primary.Family()),
			zap.String("alternate", e.alternate.Family()),
			zap.Error(err),
		)
		text, err = e.alternate.Analyze(ctx, prompt, e.alternate.StrongModel())
		if err != nil {
			return nil, eris.Wrapf(err, "recommendation analysis failed (%s, alternate)", e.alternate.Family())
		}
	}

	var raw []rawRecommendation
	if err := json.Unmarshal([]byte(provider.CleanJSONArray(text)), &raw); err != nil {
		zap.L().Warn("recommendation response was not a JSON array, dropping AI output",
			zap.Error(err),
		)
		return nil, nil
	}

	recs := make([]model.Recommendation, 0, len(raw))
	for _, r := range raw {
		recs = append(recs, normalizeRecommendation(userID, r))
	}
	return recs, nil
}

// normalizeRecommendation applies field defaults so every persisted record
// is complete even when the model omitted fields.
func normalizeRecommendation(userID string, r rawRecommendation) model.Recommendation {
	recType := model.RecommendationType(r.Type)
	if !model.ValidRecommendationTypes[recType] {
		recType = model.RecRiskAlert
	}
	priority := model.Priority(r.Priority)
	if !model.ValidPriorities[priority] {
		priority = model.PriorityMedium
	}
	title := r.Title
	if title == "" {
		title = "Review this contract"
	}
	confidence := 0.5
	if r.Confidence != nil {
		confidence = *r.Confidence
	}

	return model.Recommendation{
		UserID:           userID,
		ContractID:       r.ContractID,
		Type:             recType,
		Title:            title,
		Description:      r.Description,
		EstimatedSavings: r.EstimatedSavings,
		Priority:         priority,
		Status:           model.StatusPending,
		Reasoning:        r.Reasoning,
		Confidence:       confidence,
	}
}
