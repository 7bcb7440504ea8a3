package scoring

import (
	"math"
	"time"

	"github.com/healthwatch/pkg/models"
)

// Clamp bounds a score to [0,100]. Idempotent; values already inside the
// range pass through unchanged.
func Clamp(x float64) float64 {
	return math.Max(0, math.Min(100, x))
}

// The five factor calculators below are pure functions of pre-aggregated
// counts and sums. They never touch the store, and a zero-activity input is
// a valid scoreable state, never an error.

// LoginFrequencyScore normalizes 30-day login volume by org size and the
// segment's engagement target. The target scales with seats, so the same
// raw login count scores lower for a larger organization.
func (c Config) LoginFrequencyScore(logins30d int, seats int, segment models.Segment) float64 {
	seatsEff := effectiveSeats(seats)
	target := float64(seatsEff) * c.SegmentParams[segment].LoginTargetPerSeat30d
	if target <= 0 {
		return 50.0 // neutral fallback for a degenerate target
	}
	return Clamp(100.0 * float64(logins30d) / target)
}

// FeatureAdoptionScore maps the count of distinct features used in 30 days
// onto 0..100 against a fixed breadth target. Only distinct feature keys
// count; repeated use of one feature does not move this factor.
func (c Config) FeatureAdoptionScore(uniqueFeatures30d int) float64 {
	return Clamp(100.0 * float64(uniqueFeatures30d) / c.FeatureTarget)
}

// SupportTicketScore penalizes 30-day ticket volume per 100 seats. Bigger
// orgs absorb more absolute volume before the score drops.
func (c Config) SupportTicketScore(tickets30d int, seats int, segment models.Segment) float64 {
	seatsEff := effectiveSeats(seats)
	per100 := math.Max(1.0, float64(seatsEff)/100.0)
	ticketsPer100 := float64(tickets30d) / per100
	return Clamp(100.0 - ticketsPer100*c.SegmentParams[segment].TicketPenaltyPer100Seats)
}

// InvoiceTimelinessScore computes a recency-weighted paid ratio over the
// invoice events in the trailing window. Each event's weight decays
// linearly with age toward a small floor, so a fresh late invoice drags the
// score down harder than an old one, while old history still counts a bit.
// With no invoice events the configured neutral score is returned.
func (c Config) InvoiceTimelinessScore(invoices []models.InvoiceEvent, now time.Time) float64 {
	if len(invoices) == 0 {
		return c.InvoiceNeutralScore
	}

	var weightPaid, weightTotal float64
	for _, inv := range invoices {
		ageDays := math.Max(0, now.Sub(inv.Timestamp).Hours()/24)
		w := math.Max(c.InvoiceDecayFloor, 1.0-ageDays/c.InvoiceHorizonDays)
		weightTotal += w
		if inv.Paid() {
			weightPaid += w
		}
	}
	if weightTotal <= 0 {
		return c.InvoiceNeutralScore
	}
	return Clamp(100.0 * weightPaid / weightTotal)
}

// APIUsageTrendScore compares API call volume over the last 7 days against
// the preceding 7 days. 50 is neutral. The log2 mapping treats doubling and
// halving symmetrically and keeps near-zero denominators from blowing up:
// ratio 1 → 50, 2x → 75, 4x → 100, 0.5x → 25.
func (c Config) APIUsageTrendScore(recentSum, prevSum float64) float64 {
	if prevSum <= 0 && recentSum <= 0 {
		return 50.0 // no data either side
	}
	if prevSum <= 0 {
		return c.TrendNewMomentumScore // nothing before, something now
	}
	if recentSum <= 0 {
		return 0.0 // total drop-off
	}
	return Clamp(50.0 + 25.0*math.Log2(recentSum/prevSum))
}

func effectiveSeats(seats int) int {
	if seats < 1 {
		return 1
	}
	return seats
}
