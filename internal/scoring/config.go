package scoring

import (
	"fmt"
	"math"

	"github.com/healthwatch/pkg/models"
)

// SegmentParams holds the per-segment tuning constants.
type SegmentParams struct {
	// Expected logins per seat over a 30-day window for a fully engaged
	// account of this segment.
	LoginTargetPerSeat30d float64 `yaml:"login_target_per_seat_30d" json:"login_target_per_seat_30d"`
	// Score penalty applied per ticket per 100 seats.
	TicketPenaltyPer100Seats float64 `yaml:"ticket_penalty_per_100_seats" json:"ticket_penalty_per_100_seats"`
}

// Config carries every tunable the scoring engine uses. It is passed
// explicitly into the engine and the population aggregator so alternate
// tunings can be exercised without shared mutable state.
type Config struct {
	// Factor weights. Must cover exactly the known factor set and sum to 1.0.
	Weights map[string]float64 `yaml:"weights" json:"weights"`

	// Per-segment normalization constants. Every segment must have an entry.
	SegmentParams map[models.Segment]SegmentParams `yaml:"segment_params" json:"segment_params"`

	// Distinct features used in 30 days that map to a full adoption score.
	FeatureTarget float64 `yaml:"feature_target" json:"feature_target"`

	// Invoice timeliness window and linear decay shape.
	InvoiceHorizonDays float64 `yaml:"invoice_horizon_days" json:"invoice_horizon_days"`
	InvoiceDecayFloor  float64 `yaml:"invoice_decay_floor" json:"invoice_decay_floor"`
	// Returned when no invoice events exist in the window. Mildly positive:
	// absence of billing history is not evidence of trouble.
	InvoiceNeutralScore float64 `yaml:"invoice_neutral_score" json:"invoice_neutral_score"`

	// API trend score when the previous window was empty but the recent one
	// was not ("new momentum").
	TrendNewMomentumScore float64 `yaml:"trend_new_momentum_score" json:"trend_new_momentum_score"`

	// Seats assumed when a customer has none recorded.
	DefaultSeats int `yaml:"default_seats" json:"default_seats"`

	// Risk bucket thresholds: total < AtRiskThreshold is at_risk,
	// total < WatchThreshold is watch, everything else is healthy.
	AtRiskThreshold float64 `yaml:"at_risk_threshold" json:"at_risk_threshold"`
	WatchThreshold  float64 `yaml:"watch_threshold" json:"watch_threshold"`

	// Ranking depth for summary top/bottom lists.
	RankingSize int `yaml:"ranking_size" json:"ranking_size"`
}

// DefaultConfig returns the hand-tuned production configuration.
func DefaultConfig() Config {
	return Config{
		Weights: map[string]float64{
			models.FactorLoginFrequency:      0.25,
			models.FactorFeatureAdoption:     0.20,
			models.FactorSupportTicketVolume: 0.25,
			models.FactorInvoiceTimeliness:   0.20,
			models.FactorAPIUsageTrend:       0.10,
		},
		SegmentParams: map[models.Segment]SegmentParams{
			models.SegmentEnterprise: {LoginTargetPerSeat30d: 0.15, TicketPenaltyPer100Seats: 16.0},
			models.SegmentSMB:        {LoginTargetPerSeat30d: 0.80, TicketPenaltyPer100Seats: 10.0},
			models.SegmentStartup:    {LoginTargetPerSeat30d: 1.20, TicketPenaltyPer100Seats: 10.0},
		},
		FeatureTarget:         6.0,
		InvoiceHorizonDays:    180.0,
		InvoiceDecayFloor:     0.1,
		InvoiceNeutralScore:   60.0,
		TrendNewMomentumScore: 85.0,
		DefaultSeats:          25,
		AtRiskThreshold:       60.0,
		WatchThreshold:        80.0,
		RankingSize:           5,
	}
}

// Validate checks the structural invariants the engine relies on.
func (c Config) Validate() error {
	if len(c.Weights) != len(models.FactorNames()) {
		return fmt.Errorf("weights must cover exactly %d factors, got %d", len(models.FactorNames()), len(c.Weights))
	}
	var sum float64
	for _, name := range models.FactorNames() {
		w, ok := c.Weights[name]
		if !ok {
			return fmt.Errorf("missing weight for factor %s", name)
		}
		if w < 0 {
			return fmt.Errorf("weight for factor %s must be non-negative, got %g", name, w)
		}
		sum += w
	}
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("factor weights must sum to 1.0, got %g", sum)
	}

	for _, seg := range models.Segments() {
		params, ok := c.SegmentParams[seg]
		if !ok {
			return fmt.Errorf("missing segment params for %s", seg)
		}
		if params.LoginTargetPerSeat30d <= 0 {
			return fmt.Errorf("login_target_per_seat_30d for %s must be positive", seg)
		}
		if params.TicketPenaltyPer100Seats < 0 {
			return fmt.Errorf("ticket_penalty_per_100_seats for %s must be non-negative", seg)
		}
	}

	if c.FeatureTarget <= 0 {
		return fmt.Errorf("feature_target must be positive")
	}
	if c.InvoiceHorizonDays <= 0 {
		return fmt.Errorf("invoice_horizon_days must be positive")
	}
	if c.InvoiceDecayFloor < 0 || c.InvoiceDecayFloor > 1 {
		return fmt.Errorf("invoice_decay_floor must be in [0,1]")
	}
	if c.DefaultSeats < 1 {
		return fmt.Errorf("default_seats must be at least 1")
	}
	if c.AtRiskThreshold >= c.WatchThreshold {
		return fmt.Errorf("at_risk_threshold must be below watch_threshold")
	}
	if c.RankingSize < 1 {
		return fmt.Errorf("ranking_size must be at least 1")
	}

	return nil
}

// RiskLevel buckets a total score using the configured thresholds.
func (c Config) RiskLevel(total float64) models.RiskLevel {
	switch {
	case total < c.AtRiskThreshold:
		return models.RiskAtRisk
	case total < c.WatchThreshold:
		return models.RiskWatch
	default:
		return models.RiskHealthy
	}
}
