package model

import "time"

// RecommendationType categorizes an advisory record.
type RecommendationType string

const (
	RecCostReduction   RecommendationType = "cost_reduction"
	RecConsolidation   RecommendationType = "consolidation"
	RecRiskAlert       RecommendationType = "risk_alert"
	RecRenewalReminder RecommendationType = "renewal_reminder"
)

// ValidRecommendationTypes is the closed set of accepted recommendation types.
var ValidRecommendationTypes = map[RecommendationType]bool{
	RecCostReduction:   true,
	RecConsolidation:   true,
	RecRiskAlert:       true,
	RecRenewalReminder: true,
}

// Priority ranks how urgently a recommendation deserves attention.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ValidPriorities is the closed set of accepted priorities.
var ValidPriorities = map[Priority]bool{
	PriorityHigh:   true,
	PriorityMedium: true,
	PriorityLow:    true,
}

// RecommendationStatus tracks a recommendation through its lifecycle.
// Transitions are one-way: pending → viewed → accepted | dismissed.
type RecommendationStatus string

const (
	StatusPending   RecommendationStatus = "pending"
	StatusViewed    RecommendationStatus = "viewed"
	StatusAccepted  RecommendationStatus = "accepted"
	StatusDismissed RecommendationStatus = "dismissed"
)

// CanTransition reports whether a status change is legal. There is no path
// back to pending, and accepted/dismissed are terminal.
func (s RecommendationStatus) CanTransition(to RecommendationStatus) bool {
	switch s {
	case StatusPending:
		return to == StatusViewed || to == StatusAccepted || to == StatusDismissed
	case StatusViewed:
		return to == StatusAccepted || to == StatusDismissed
	default:
		return false
	}
}

// Recommendation is an advisory record referencing zero or one contract.
type Recommendation struct {
	ID               string               `json:"id"`
	UserID           string               `json:"user_id"`
	ContractID       *string              `json:"contract_id,omitempty"`
	Type             RecommendationType   `json:"type"`
	Title            string               `json:"title"`
	Description      string               `json:"description"`
	EstimatedSavings *float64             `json:"estimated_savings,omitempty"`
	Priority         Priority             `json:"priority"`
	Status           RecommendationStatus `json:"status"`
	Reasoning        string               `json:"reasoning,omitempty"`
	Confidence       float64              `json:"confidence"`
	CreatedAt        time.Time            `json:"created_at"`
	ActedOnAt        *time.Time           `json:"acted_on_at,omitempty"`
}
