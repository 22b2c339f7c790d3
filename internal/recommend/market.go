package recommend

import (
	"fmt"
	"strings"

	"github.com/sells-group/contract-optimizer/internal/model"
)

// Benchmark is a monthly USD rate band for one contract subcategory.
type Benchmark struct {
	Low    float64 `json:"low"`
	Median float64 `json:"median"`
	High   float64 `json:"high"`
	Unit   string  `json:"unit"`
}

// marketRates holds static benchmark bands keyed by contract type, then
// subcategory. Static tables for now; a pricing API could replace them.
var marketRates = map[model.ContractType]map[string]Benchmark{
	model.ContractTypeInsurance: {
		"auto":    {Low: 80, Median: 130, High: 200, Unit: "per vehicle"},
		"home":    {Low: 100, Median: 150, High: 250, Unit: "per property"},
		"renters": {Low: 15, Median: 25, High: 40, Unit: "per policy"},
		"health":  {Low: 300, Median: 500, High: 800, Unit: "per person"},
	},
	model.ContractTypeUtility: {
		"electricity": {Low: 80, Median: 120, High: 200, Unit: "per household"},
		"gas":         {Low: 40, Median: 80, High: 150, Unit: "per household"},
		"water":       {Low: 30, Median: 50, High: 80, Unit: "per household"},
		"internet":    {Low: 40, Median: 70, High: 120, Unit: "per connection"},
		"phone":       {Low: 30, Median: 60, High: 100, Unit: "per line"},
	},
	model.ContractTypeSubscription: {
		"streaming": {Low: 8, Median: 15, High: 25, Unit: "per service"},
		"music":     {Low: 5, Median: 10, High: 15, Unit: "per service"},
		"news":      {Low: 5, Median: 15, High: 30, Unit: "per publication"},
		"fitness":   {Low: 20, Median: 50, High: 100, Unit: "per membership"},
		"software":  {Low: 10, Median: 30, High: 100, Unit: "per license"},
	},
	model.ContractTypeSaaS: {
		"crm":          {Low: 25, Median: 75, High: 150, Unit: "per user"},
		"storage":      {Low: 5, Median: 12, High: 25, Unit: "per TB"},
		"productivity": {Low: 10, Median: 20, High: 50, Unit: "per user"},
		"email":        {Low: 5, Median: 12, High: 25, Unit: "per user"},
		"analytics":    {Low: 50, Median: 150, High: 500, Unit: "per account"},
	},
	model.ContractTypeRental: {
		"apartment": {Low: 1000, Median: 1800, High: 3500, Unit: "per unit"},
		"storage":   {Low: 50, Median: 100, High: 200, Unit: "per unit"},
		"equipment": {Low: 100, Median: 300, High: 800, Unit: "per item"},
		"vehicle":   {Low: 300, Median: 500, High: 900, Unit: "per vehicle"},
	},
}

// Comparison states, from cheapest to most expensive relative to benchmark.
const (
	StatusNoBenchmark       = "no_benchmark"
	StatusBelowMarket       = "below_market"
	StatusCompetitive       = "competitive"
	StatusAboveMedian       = "above_median"
	StatusSignificantlyHigh = "significantly_above"
)

// Comparison is one contract measured against its benchmark band.
type Comparison struct {
	Status                  string  `json:"status"`
	Message                 string  `json:"message,omitempty"`
	Subcategory             string  `json:"subcategory,omitempty"`
	YourCost                float64 `json:"your_cost,omitempty"`
	MarketLow               float64 `json:"market_low,omitempty"`
	MarketMedian            float64 `json:"market_median,omitempty"`
	MarketHigh              float64 `json:"market_high,omitempty"`
	Unit                    string  `json:"unit,omitempty"`
	PotentialMonthlySavings float64 `json:"potential_monthly_savings,omitempty"`
	PotentialAnnualSavings  float64 `json:"potential_annual_savings,omitempty"`
}

// CompareMarketRates measures each costed contract against the benchmark
// table, keyed by contract ID. Contracts without a type or monthly cost are
// skipped entirely.
func CompareMarketRates(contracts []model.Contract) map[string]Comparison {
	comparisons := make(map[string]Comparison)
	for _, c := range contracts {
		if c.ContractType == nil || c.MonthlyCost == nil || *c.MonthlyCost == 0 {
			continue
		}
		comparisons[c.ID] = compareOne(c)
	}
	return comparisons
}

func compareOne(c model.Contract) Comparison {
	rates, ok := marketRates[*c.ContractType]
	if !ok {
		return Comparison{
			Status:  StatusNoBenchmark,
			Message: fmt.Sprintf("No market benchmarks available for %s", *c.ContractType),
		}
	}

	subcategory, band := matchSubcategory(c.ProviderName, rates)
	cost := *c.MonthlyCost

	status := StatusBelowMarket
	savings := 0.0
	switch {
	case cost < band.Low:
		status = StatusBelowMarket
	case cost <= band.Median:
		status = StatusCompetitive
	case cost <= band.High:
		status = StatusAboveMedian
		savings = cost - band.Median
	default:
		status = StatusSignificantlyHigh
		savings = cost - band.Median
	}

	return Comparison{
		Status:                  status,
		Subcategory:             subcategory,
		YourCost:                cost,
		MarketLow:               band.Low,
		MarketMedian:            band.Median,
		MarketHigh:              band.High,
		Unit:                    band.Unit,
		PotentialMonthlySavings: round2(savings),
		PotentialAnnualSavings:  round2(savings * 12),
	}
}

// matchSubcategory prefers a subcategory whose name appears in the provider
// name, otherwise falls back to an arbitrary band from the type. Map order
// is not stable, so a keyword hit always wins over the fallback.
func matchSubcategory(providerName string, rates map[string]Benchmark) (string, Benchmark) {
	name := strings.ToLower(providerName)

	var fallbackKey string
	var fallback Benchmark
	for sub, band := range rates {
		if name != "" && strings.Contains(name, sub) {
			return sub, band
		}
		if fallbackKey == "" || sub < fallbackKey {
			fallbackKey = sub
			fallback = band
		}
	}
	return fallbackKey, fallback
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
