package models

import "time"

// Factor names. The factor set is fixed; weights over it sum to 1.0.
const (
	FactorLoginFrequency      = "login_frequency"
	FactorFeatureAdoption     = "feature_adoption"
	FactorSupportTicketVolume = "support_ticket_volume"
	FactorInvoiceTimeliness   = "invoice_timeliness"
	FactorAPIUsageTrend       = "api_usage_trend"
)

// FactorNames returns the factor set in display order.
func FactorNames() []string {
	return []string{
		FactorLoginFrequency,
		FactorFeatureAdoption,
		FactorSupportTicketVolume,
		FactorInvoiceTimeliness,
		FactorAPIUsageTrend,
	}
}

// HealthBreakdown is a derived, non-persisted value: the weighted total and
// its constituent factor scores for one customer at one reference instant.
type HealthBreakdown struct {
	CustomerID string             `json:"customer_id"`
	Total      float64            `json:"total"`
	Factors    map[string]float64 `json:"factors"`
	ComputedAt time.Time          `json:"computed_at"`
}

// RiskLevel buckets a total score into one of three tiers.
type RiskLevel string

const (
	RiskAtRisk  RiskLevel = "at_risk"
	RiskWatch   RiskLevel = "watch"
	RiskHealthy RiskLevel = "healthy"
)

// CustomerScore is a ranking entry in population summaries.
type CustomerScore struct {
	CustomerID string  `json:"customer_id"`
	Name       string  `json:"name"`
	Segment    Segment `json:"segment"`
	Score      float64 `json:"score"`
}

// HealthSummary aggregates breakdowns across a customer population.
type HealthSummary struct {
	Total      int                `json:"total"`
	Healthy    int                `json:"healthy"`
	Watch      int                `json:"watch"`
	AtRisk     int                `json:"at_risk"`
	AvgScore   float64            `json:"avg_score"`
	AvgFactors map[string]float64 `json:"avg_factors"`
	Top        []CustomerScore    `json:"top"`
	Bottom     []CustomerScore    `json:"bottom"`
	ComputedAt time.Time          `json:"computed_at"`
}

// TrendPoint is one day of the population health series.
type TrendPoint struct {
	Date string  `json:"date"`
	Avg  float64 `json:"avg"`
	P25  float64 `json:"p25"`
	P75  float64 `json:"p75"`
}
