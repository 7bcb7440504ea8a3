package scoring

import (
	"testing"
	"time"

	"github.com/healthwatch/pkg/models"
)

func TestClamp(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{-50, 0},
		{0, 0},
		{42.5, 42.5},
		{100, 100},
		{250, 100},
	}
	for _, tc := range cases {
		if got := Clamp(tc.in); got != tc.want {
			t.Errorf("Clamp(%g) = %g, want %g", tc.in, got, tc.want)
		}
		// Idempotence
		if got := Clamp(Clamp(tc.in)); got != tc.want {
			t.Errorf("Clamp(Clamp(%g)) = %g, want %g", tc.in, got, tc.want)
		}
	}
}

func TestLoginFrequencyMonotonicInLogins(t *testing.T) {
	cfg := DefaultConfig()

	low := cfg.LoginFrequencyScore(5, 20, models.SegmentSMB)
	high := cfg.LoginFrequencyScore(15, 20, models.SegmentSMB)
	if low >= high {
		t.Errorf("expected more logins to score higher: %g >= %g", low, high)
	}
}

func TestLoginFrequencySeatNormalization(t *testing.T) {
	cfg := DefaultConfig()

	// Same raw activity scores lower for a larger org.
	small := cfg.LoginFrequencyScore(10, 20, models.SegmentSMB)
	large := cfg.LoginFrequencyScore(10, 200, models.SegmentSMB)
	if small <= large {
		t.Errorf("expected larger org to score lower for same logins: %g <= %g", small, large)
	}
}

func TestLoginFrequencyZeroSeats(t *testing.T) {
	cfg := DefaultConfig()

	// Zero or negative seats fall back to one effective seat.
	got := cfg.LoginFrequencyScore(1, 0, models.SegmentStartup)
	want := Clamp(100.0 * 1 / (1 * 1.20))
	if got != want {
		t.Errorf("LoginFrequencyScore with 0 seats = %g, want %g", got, want)
	}
}

func TestFeatureAdoptionCountsBreadthNotVolume(t *testing.T) {
	cfg := DefaultConfig()

	// 5 uses of one feature is still one distinct feature.
	oneFeature := cfg.FeatureAdoptionScore(1)
	threeFeatures := cfg.FeatureAdoptionScore(3)
	if oneFeature >= threeFeatures {
		t.Errorf("expected breadth to raise the score: %g >= %g", oneFeature, threeFeatures)
	}
	if got := cfg.FeatureAdoptionScore(6); got != 100 {
		t.Errorf("FeatureAdoptionScore(6) = %g, want 100", got)
	}
	if got := cfg.FeatureAdoptionScore(12); got != 100 {
		t.Errorf("FeatureAdoptionScore(12) = %g, want clamped 100", got)
	}
}

func TestSupportTicketDilution(t *testing.T) {
	cfg := DefaultConfig()

	startup := cfg.SupportTicketScore(6, 10, models.SegmentStartup)
	enterprise := cfg.SupportTicketScore(6, 1000, models.SegmentEnterprise)
	if startup >= enterprise {
		t.Errorf("expected 6 tickets to hurt a 10-seat startup more than a 1000-seat enterprise: %g >= %g", startup, enterprise)
	}
	if zero := cfg.SupportTicketScore(0, 50, models.SegmentSMB); zero != 100 {
		t.Errorf("SupportTicketScore(0 tickets) = %g, want 100", zero)
	}
}

func TestInvoiceTimelinessRecencyWeighting(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	daysAgo := func(d int) time.Time { return now.AddDate(0, 0, -d) }

	// Old late invoice, recent payments.
	oldLate := []models.InvoiceEvent{
		{Kind: models.EventInvoiceLate, Timestamp: daysAgo(150)},
		{Kind: models.EventInvoicePaid, Timestamp: daysAgo(40)},
		{Kind: models.EventInvoicePaid, Timestamp: daysAgo(10)},
	}
	// Same counts, but the late invoice just happened.
	recentLate := []models.InvoiceEvent{
		{Kind: models.EventInvoicePaid, Timestamp: daysAgo(150)},
		{Kind: models.EventInvoicePaid, Timestamp: daysAgo(40)},
		{Kind: models.EventInvoiceLate, Timestamp: daysAgo(10)},
	}

	a := cfg.InvoiceTimelinessScore(oldLate, now)
	b := cfg.InvoiceTimelinessScore(recentLate, now)
	if a <= b {
		t.Errorf("expected old lateness to score higher than fresh lateness: %g <= %g", a, b)
	}
}

func TestInvoiceTimelinessNeutralWithoutData(t *testing.T) {
	cfg := DefaultConfig()

	got := cfg.InvoiceTimelinessScore(nil, time.Now())
	if got != cfg.InvoiceNeutralScore {
		t.Errorf("InvoiceTimelinessScore(no data) = %g, want %g", got, cfg.InvoiceNeutralScore)
	}
}

func TestInvoiceTimelinessAllPaid(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Now()

	invoices := []models.InvoiceEvent{
		{Kind: models.EventInvoicePaid, Timestamp: now.AddDate(0, 0, -30)},
		{Kind: models.EventInvoicePaid, Timestamp: now.AddDate(0, 0, -60)},
	}
	if got := cfg.InvoiceTimelinessScore(invoices, now); got != 100 {
		t.Errorf("all-paid history = %g, want 100", got)
	}
}

func TestAPIUsageTrend(t *testing.T) {
	cfg := DefaultConfig()

	cases := []struct {
		name   string
		recent float64
		prev   float64
		check  func(float64) bool
	}{
		{"growth scores above neutral", 300, 100, func(s float64) bool { return s > 50 }},
		{"flat is neutral", 100, 100, func(s float64) bool { return s >= 45 && s <= 55 }},
		{"decline scores below neutral", 50, 200, func(s float64) bool { return s < 50 }},
		{"no data either side", 0, 0, func(s float64) bool { return s == 50 }},
		{"new momentum", 500, 0, func(s float64) bool { return s == cfg.TrendNewMomentumScore }},
		{"total drop-off", 0, 500, func(s float64) bool { return s == 0 }},
		{"doubling", 200, 100, func(s float64) bool { return s == 75 }},
		{"halving", 100, 200, func(s float64) bool { return s == 25 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := cfg.APIUsageTrendScore(tc.recent, tc.prev)
			if !tc.check(got) {
				t.Errorf("APIUsageTrendScore(%g, %g) = %g", tc.recent, tc.prev, got)
			}
			if got < 0 || got > 100 {
				t.Errorf("score out of range: %g", got)
			}
		})
	}
}

func TestFactorsNeverPanicOnZeroActivity(t *testing.T) {
	cfg := DefaultConfig()

	for _, segment := range models.Segments() {
		_ = cfg.LoginFrequencyScore(0, 0, segment)
		_ = cfg.SupportTicketScore(0, 0, segment)
	}
	_ = cfg.FeatureAdoptionScore(0)
	_ = cfg.InvoiceTimelinessScore(nil, time.Now())
	_ = cfg.APIUsageTrendScore(0, 0)
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}

	bad := DefaultConfig()
	bad.Weights = map[string]float64{
		models.FactorLoginFrequency:      0.5,
		models.FactorFeatureAdoption:     0.2,
		models.FactorSupportTicketVolume: 0.25,
		models.FactorInvoiceTimeliness:   0.2,
		models.FactorAPIUsageTrend:       0.1,
	}
	if err := bad.Validate(); err == nil {
		t.Error("expected weights-sum validation failure")
	}

	missing := DefaultConfig()
	missing.SegmentParams = map[models.Segment]SegmentParams{
		models.SegmentSMB: missing.SegmentParams[models.SegmentSMB],
	}
	if err := missing.Validate(); err == nil {
		t.Error("expected missing-segment validation failure")
	}
}

func TestRiskLevelThresholds(t *testing.T) {
	cfg := DefaultConfig()

	cases := []struct {
		total float64
		want  models.RiskLevel
	}{
		{0, models.RiskAtRisk},
		{59.99, models.RiskAtRisk},
		{60, models.RiskWatch},
		{79.99, models.RiskWatch},
		{80, models.RiskHealthy},
		{100, models.RiskHealthy},
	}
	for _, tc := range cases {
		if got := cfg.RiskLevel(tc.total); got != tc.want {
			t.Errorf("RiskLevel(%g) = %s, want %s", tc.total, got, tc.want)
		}
	}
}
