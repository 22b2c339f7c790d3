package store

import (
	"context"
	"errors"

	"github.com/sells-group/contract-optimizer/internal/model"
)

// ErrNotFound is returned when a row does not exist or belongs to a
// different user. Callers cannot distinguish the two cases.
var ErrNotFound = errors.New("not found")

// ContractFilter specifies criteria for listing contracts.
type ContractFilter struct {
	ContractType model.ContractType `json:"contract_type,omitempty"`
	Limit        int                `json:"limit,omitempty"`
	Offset       int                `json:"offset,omitempty"`
}

// RecommendationFilter specifies criteria for listing recommendations.
type RecommendationFilter struct {
	Status   model.RecommendationStatus `json:"status,omitempty"`
	Priority model.Priority             `json:"priority,omitempty"`
	Limit    int                        `json:"limit,omitempty"`
	Offset   int                        `json:"offset,omitempty"`
}

// Store defines the persistence interface. Every operation is scoped by
// user ID; a row owned by another user behaves as if it does not exist.
type Store interface {
	// Contracts
	CreateContract(ctx context.Context, c model.Contract) (*model.Contract, error)
	GetContract(ctx context.Context, userID, contractID string) (*model.Contract, error)
	ListContracts(ctx context.Context, userID string, filter ContractFilter) ([]model.Contract, error)
	UpdateContract(ctx context.Context, c model.Contract) (*model.Contract, error)
	DeleteContract(ctx context.Context, userID, contractID string) error

	// Contract files
	AddContractFile(ctx context.Context, f model.ContractFile) (*model.ContractFile, error)
	ListContractFiles(ctx context.Context, userID, contractID string) ([]model.ContractFile, error)

	// Recommendations
	CreateRecommendations(ctx context.Context, recs []model.Recommendation) ([]model.Recommendation, error)
	ListRecommendations(ctx context.Context, userID string, filter RecommendationFilter) ([]model.Recommendation, error)
	GetRecommendation(ctx context.Context, userID, recID string) (*model.Recommendation, error)
	UpdateRecommendationStatus(ctx context.Context, userID, recID string, status model.RecommendationStatus) (*model.Recommendation, error)
	// AnalyzedContractIDs returns the set of contract IDs that already have
	// at least one recommendation row for this user.
	AnalyzedContractIDs(ctx context.Context, userID string) (map[string]bool, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
