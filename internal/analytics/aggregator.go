package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/healthwatch/internal/scoring"
	"github.com/healthwatch/pkg/models"
)

// BreakdownEngine computes one customer's health at a reference instant.
type BreakdownEngine interface {
	ComputeBreakdown(ctx context.Context, customerID string, at time.Time) (*models.HealthBreakdown, error)
}

// CustomerLister enumerates the customer population for aggregation.
type CustomerLister interface {
	ListCustomers(ctx context.Context, filter models.CustomerFilter) ([]*models.Customer, error)
}

// Aggregator derives population-level statistics by folding per-customer
// breakdowns. Each breakdown is independent; the fold only accumulates
// sums, counts and bucket tallies.
type Aggregator struct {
	engine    BreakdownEngine
	customers CustomerLister
	config    scoring.Config
}

// NewAggregator creates a population aggregator.
func NewAggregator(engine BreakdownEngine, customers CustomerLister, config scoring.Config) *Aggregator {
	return &Aggregator{
		engine:    engine,
		customers: customers,
		config:    config,
	}
}

// Summary computes risk bucket counts, population averages, per-factor
// averages and top/bottom rankings across the (optionally segment-filtered)
// population at the given reference instant.
func (a *Aggregator) Summary(ctx context.Context, segment *models.Segment, at time.Time) (*models.HealthSummary, error) {
	customers, err := a.customers.ListCustomers(ctx, models.CustomerFilter{Segment: segment})
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}

	summary := &models.HealthSummary{
		AvgFactors: make(map[string]float64),
		Top:        []models.CustomerScore{},
		Bottom:     []models.CustomerScore{},
		ComputedAt: at,
	}

	var sumTotal float64
	factorSums := make(map[string]float64)
	scores := make([]models.CustomerScore, 0, len(customers))

	for _, c := range customers {
		breakdown, err := a.engine.ComputeBreakdown(ctx, c.ID, at)
		if err != nil {
			return nil, fmt.Errorf("breakdown for %s: %w", c.ID, err)
		}

		summary.Total++
		switch a.config.RiskLevel(breakdown.Total) {
		case models.RiskAtRisk:
			summary.AtRisk++
		case models.RiskWatch:
			summary.Watch++
		default:
			summary.Healthy++
		}

		sumTotal += breakdown.Total
		for name, score := range breakdown.Factors {
			factorSums[name] += score
		}

		scores = append(scores, models.CustomerScore{
			CustomerID: c.ID,
			Name:       c.Name,
			Segment:    c.Segment,
			Score:      round2(breakdown.Total),
		})
	}

	if summary.Total == 0 {
		return summary, nil
	}

	summary.AvgScore = round2(sumTotal / float64(summary.Total))
	for _, name := range models.FactorNames() {
		summary.AvgFactors[name] = round2(factorSums[name] / float64(summary.Total))
	}

	// Descending by score; ties break on customer ID so rankings are
	// deterministic across runs.
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].CustomerID < scores[j].CustomerID
	})

	n := a.config.RankingSize
	if n > len(scores) {
		n = len(scores)
	}
	summary.Top = append(summary.Top, scores[:n]...)
	for i := 0; i < n; i++ {
		summary.Bottom = append(summary.Bottom, scores[len(scores)-1-i])
	}

	return summary, nil
}

// Trend produces the daily population series for the last `days` days,
// oldest point first, ending at the reference instant's day. Each point is
// a true re-evaluation: every customer's breakdown is recomputed with that
// day as the reference instant, so the distribution reflects the history as
// it actually was, not today's snapshot repeated backwards.
func (a *Aggregator) Trend(ctx context.Context, days int, segment *models.Segment, at time.Time) ([]models.TrendPoint, error) {
	customers, err := a.customers.ListCustomers(ctx, models.CustomerFilter{Segment: segment})
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}

	points := make([]models.TrendPoint, 0, days+1)
	for i := days; i >= 0; i-- {
		ts := at.AddDate(0, 0, -i)

		scores := make([]float64, 0, len(customers))
		var sum float64
		for _, c := range customers {
			breakdown, err := a.engine.ComputeBreakdown(ctx, c.ID, ts)
			if err != nil {
				return nil, fmt.Errorf("breakdown for %s at %s: %w", c.ID, ts.Format("2006-01-02"), err)
			}
			scores = append(scores, breakdown.Total)
			sum += breakdown.Total
		}

		point := models.TrendPoint{Date: ts.Format("2006-01-02")}
		if len(scores) > 0 {
			point.Avg = round2(sum / float64(len(scores)))
			point.P25 = round2(Percentile(scores, 25))
			point.P75 = round2(Percentile(scores, 75))
		}
		points = append(points, point)
	}

	return points, nil
}
