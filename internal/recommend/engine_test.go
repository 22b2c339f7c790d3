package recommend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/contract-optimizer/internal/model"
	"github.com/sells-group/contract-optimizer/internal/provider"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type mockAdapter struct {
	mock.Mock
	family string
}

func (m *mockAdapter) Family() string      { return m.family }
func (m *mockAdapter) FastModel() string   { return m.family + "-fast" }
func (m *mockAdapter) StrongModel() string { return m.family + "-strong" }

func (m *mockAdapter) Extract(ctx context.Context, docs []provider.Document, prompt, modelID string) (map[string]any, error) {
	args := m.Called(ctx, docs, prompt, modelID)
	var raw map[string]any
	if v := args.Get(0); v != nil {
		raw = v.(map[string]any)
	}
	return raw, args.Error(1)
}

func (m *mockAdapter) Analyze(ctx context.Context, prompt, modelID string) (string, error) {
	args := m.Called(ctx, prompt, modelID)
	return args.String(0), args.Error(1)
}

func testEngine(primary, alternate provider.Adapter, now time.Time) *Engine {
	e := NewEngine(primary, alternate)
	e.now = func() time.Time { return now }
	return e
}

func expiring(id, providerName, endDate string) model.Contract {
	return model.Contract{
		ID:           id,
		UserID:       "user-1",
		ProviderName: providerName,
		EndDate:      &endDate,
	}
}

func TestGenerate_EmptyPortfolio(t *testing.T) {
	primary := &mockAdapter{family: "anthropic"}
	e := testEngine(primary, nil, time.Now())

	recs, err := e.Generate(context.Background(), "user-1", nil, nil)
	require.NoError(t, err)
	assert.Nil(t, recs)
	primary.AssertNotCalled(t, "Analyze")
}

func TestGenerate_RenewalReminderIsDeterministic(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	primary := &mockAdapter{family: "anthropic"}
	e := testEngine(primary, nil, now)

	autoRenew := true
	contract := expiring("c1", "Acme Gym", "2026-03-06")
	contract.AutoRenewal = &autoRenew

	recs, err := e.Generate(context.Background(), "user-1", []model.Contract{contract}, map[string]bool{"c1": true})
	require.NoError(t, err)
	require.Len(t, recs, 1)

	rec := recs[0]
	assert.Equal(t, model.RecRenewalReminder, rec.Type)
	assert.Equal(t, "Acme Gym expires in 5 days", rec.Title)
	assert.Contains(t, rec.Description, "2026-03-06")
	assert.Contains(t, rec.Description, "auto-renew")
	assert.Equal(t, model.PriorityHigh, rec.Priority)
	assert.Equal(t, model.StatusPending, rec.Status)
	assert.Equal(t, 1.0, rec.Confidence)
	require.NotNil(t, rec.ContractID)
	assert.Equal(t, "c1", *rec.ContractID)

	// All contracts already analyzed, so no model call happens.
	primary.AssertNotCalled(t, "Analyze")
}

func TestGenerate_ReminderPriorityByDaysLeft(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	primary := &mockAdapter{family: "anthropic"}
	e := testEngine(primary, nil, now)

	analyzed := map[string]bool{"soon": true, "later": true}
	recs, err := e.Generate(context.Background(), "user-1", []model.Contract{
		expiring("soon", "A", "2026-03-08"),
		expiring("later", "B", "2026-03-21"),
	}, analyzed)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, model.PriorityHigh, recs[0].Priority)
	assert.Equal(t, model.PriorityMedium, recs[1].Priority)
}

func TestGenerate_NoReminderOutsideWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	primary := &mockAdapter{family: "anthropic"}
	e := testEngine(primary, nil, now)

	analyzed := map[string]bool{"past": true, "far": true, "bad": true}
	recs, err := e.Generate(context.Background(), "user-1", []model.Contract{
		expiring("past", "A", "2026-02-28"),
		expiring("far", "B", "2026-04-15"),
		expiring("bad", "C", "someday"),
	}, analyzed)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestGenerate_AnalyzesOnlyFreshContracts(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	primary := &mockAdapter{family: "anthropic"}
	primary.On("Analyze", mock.Anything, mock.Anything, "anthropic-strong").
		Return(`[{"contract_id": "c2", "type": "cost_reduction", "title": "Switch plans", "description": "d", "priority": "high", "confidence": 0.8}]`, nil).Once()

	e := testEngine(primary, nil, now)
	ctype := model.ContractTypeSubscription
	cost := 25.0
	contracts := []model.Contract{
		{ID: "c1", UserID: "user-1", ProviderName: "Old", ContractType: &ctype, MonthlyCost: &cost},
		{ID: "c2", UserID: "user-1", ProviderName: "New", ContractType: &ctype, MonthlyCost: &cost},
	}

	recs, err := e.Generate(context.Background(), "user-1", contracts, map[string]bool{"c1": true})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, model.RecCostReduction, recs[0].Type)
	assert.Equal(t, "Switch plans", recs[0].Title)
	assert.Equal(t, model.PriorityHigh, recs[0].Priority)
	assert.Equal(t, 0.8, recs[0].Confidence)
	assert.Equal(t, "user-1", recs[0].UserID)
	primary.AssertExpectations(t)
}

func TestGenerate_AIDefaultsForMissingFields(t *testing.T) {
	primary := &mockAdapter{family: "anthropic"}
	primary.On("Analyze", mock.Anything, mock.Anything, "anthropic-strong").
		Return(`[{"type": "time_travel", "priority": "urgent"}]`, nil).Once()

	e := testEngine(primary, nil, time.Now())
	recs, err := e.Generate(context.Background(), "user-1", []model.Contract{{ID: "c1", UserID: "user-1"}}, nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	rec := recs[0]
	assert.Equal(t, model.RecRiskAlert, rec.Type)
	assert.Equal(t, model.PriorityMedium, rec.Priority)
	assert.Equal(t, "Review this contract", rec.Title)
	assert.Equal(t, 0.5, rec.Confidence)
	assert.Equal(t, model.StatusPending, rec.Status)
	assert.Nil(t, rec.ContractID)
}

func TestGenerate_UnparseableAIOutputIsDropped(t *testing.T) {
	primary := &mockAdapter{family: "anthropic"}
	primary.On("Analyze", mock.Anything, mock.Anything, "anthropic-strong").
		Return("I looked at the contracts but have nothing structured to say.", nil).Once()

	e := testEngine(primary, nil, time.Now())
	recs, err := e.Generate(context.Background(), "user-1", []model.Contract{{ID: "c1", UserID: "user-1"}}, nil)
	require.NoError(t, err)
	assert.Empty(t, recs)
	primary.AssertExpectations(t)
}

func TestGenerate_FallsBackToAlternateProvider(t *testing.T) {
	primary := &mockAdapter{family: "anthropic"}
	alternate := &mockAdapter{family: "gemini"}
	primary.On("Analyze", mock.Anything, mock.Anything, "anthropic-strong").
		Return("", errors.New("overloaded")).Once()
	alternate.On("Analyze", mock.Anything, mock.Anything, "gemini-strong").
		Return(`[{"title": "Bundle services", "type": "consolidation"}]`, nil).Once()

	e := testEngine(primary, alternate, time.Now())
	recs, err := e.Generate(context.Background(), "user-1", []model.Contract{{ID: "c1", UserID: "user-1"}}, nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, model.RecConsolidation, recs[0].Type)
	primary.AssertExpectations(t)
	alternate.AssertExpectations(t)
}

func TestGenerate_ProviderFailureWithoutAlternate(t *testing.T) {
	primary := &mockAdapter{family: "anthropic"}
	primary.On("Analyze", mock.Anything, mock.Anything, "anthropic-strong").
		Return("", errors.New("overloaded")).Once()

	e := testEngine(primary, nil, time.Now())
	_, err := e.Generate(context.Background(), "user-1", []model.Contract{{ID: "c1", UserID: "user-1"}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recommendation analysis failed")
}
