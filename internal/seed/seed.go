// Package seed generates synthetic demo populations. It is a data-generation
// collaborator only: the behavior personas below shape event histories and
// never appear in the durable customer schema.
package seed

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/healthwatch/pkg/models"
)

// Store is the write surface the seeder needs.
type Store interface {
	CreateCustomer(ctx context.Context, c *models.Customer) error
	AppendEvent(ctx context.Context, e *models.Event) error
}

type persona string

const (
	personaPower    persona = "power"
	personaSteady   persona = "steady"
	personaSpiky    persona = "spiky"
	personaFrugal   persona = "frugal"
	personaChurning persona = "churning"
)

// personaParams are daily event-generation rates for one persona.
type personaParams struct {
	pLogin      float64
	featPoolMin int
	featPoolMax int
	adoptMin    float64
	adoptMax    float64
	featDailyMax int
	pAPI        float64
	apiAmtMin   int
	apiAmtMax   int
	pTicket     float64
	pPaid       float64
}

var personaTable = map[persona]personaParams{
	personaPower:    {0.90, 6, 10, 0.60, 0.95, 3, 0.55, 80, 400, 0.10, 0.94},
	personaSteady:   {0.65, 4, 9, 0.45, 0.80, 2, 0.35, 40, 220, 0.12, 0.90},
	personaSpiky:    {0.55, 4, 8, 0.35, 0.70, 2, 0.25, 120, 600, 0.14, 0.88},
	personaFrugal:   {0.35, 3, 7, 0.25, 0.55, 1, 0.15, 20, 120, 0.08, 0.92},
	personaChurning: {0.18, 2, 6, 0.15, 0.45, 1, 0.10, 10, 80, 0.20, 0.70},
}

var personas = []persona{personaPower, personaSteady, personaSpiky, personaFrugal, personaChurning}

var companyAdjectives = []string{
	"Acme", "Globex", "Initech", "Umbra", "Vertex", "Nimbus", "Quantum",
	"Harbor", "Cascade", "Meridian", "Summit", "Pioneer", "Atlas", "Beacon",
}

var companyNouns = []string{
	"Systems", "Labs", "Dynamics", "Logistics", "Analytics", "Industries",
	"Networks", "Software", "Holdings", "Robotics", "Partners", "Works",
}

// Seed populates the store with n customers and ~90 days of history each.
// The generator is deterministic for a fixed rng seed.
func Seed(ctx context.Context, store Store, n int, now time.Time, rng *rand.Rand) error {
	for i := 0; i < n; i++ {
		segment := models.Segments()[rng.Intn(len(models.Segments()))]
		customer := &models.Customer{
			Name:    companyName(rng, i),
			Segment: segment,
			Seats:   seatsForSegment(segment, rng),
			Active:  true,
		}
		if err := store.CreateCustomer(ctx, customer); err != nil {
			return fmt.Errorf("failed to create customer %s: %w", customer.Name, err)
		}

		p := personaTable[personas[rng.Intn(len(personas))]]
		if err := generateHistory(ctx, store, customer, p, now, rng); err != nil {
			return err
		}
	}
	return nil
}

func companyName(rng *rand.Rand, i int) string {
	adj := companyAdjectives[rng.Intn(len(companyAdjectives))]
	noun := companyNouns[rng.Intn(len(companyNouns))]
	return fmt.Sprintf("%s %s %03d", adj, noun, i)
}

func seatsForSegment(segment models.Segment, rng *rand.Rand) int {
	switch segment {
	case models.SegmentStartup:
		return 5 + rng.Intn(26)
	case models.SegmentSMB:
		return 20 + rng.Intn(231)
	default:
		return 200 + rng.Intn(1001)
	}
}

// generateHistory walks 90 days and emits daily logins, feature use, API
// bursts, support tickets and monthly invoice outcomes per the persona.
func generateHistory(ctx context.Context, store Store, customer *models.Customer, p personaParams, now time.Time, rng *rand.Rand) error {
	poolSize := p.featPoolMin + rng.Intn(p.featPoolMax-p.featPoolMin+1)
	pool := make([]string, poolSize)
	for i := range pool {
		pool[i] = fmt.Sprintf("feature_%d", i+1)
	}
	adoptP := p.adoptMin + rng.Float64()*(p.adoptMax-p.adoptMin)
	adoptedRecent := adoptedSubset(pool, adoptP, rng)
	adoptedOld := adoptedSubset(pool, maxFloat(0.15, adoptP-0.15), rng)

	append1 := func(kind models.EventKind, featureKey string, value *float64, ts time.Time) error {
		e := &models.Event{
			CustomerID: customer.ID,
			Kind:       kind,
			FeatureKey: featureKey,
			Value:      value,
			Timestamp:  ts,
		}
		return store.AppendEvent(ctx, e)
	}

	for daysAgo := 90; daysAgo >= 0; daysAgo-- {
		day := now.AddDate(0, 0, -daysAgo)

		if rng.Float64() < p.pLogin {
			for i := 0; i < rng.Intn(3); i++ {
				if err := append1(models.EventLogin, "", nil, withinDay(day, rng)); err != nil {
					return err
				}
			}
		}

		todaysPool := adoptedRecent
		if daysAgo > 30 {
			todaysPool = adoptedOld
		}
		if len(todaysPool) > 0 {
			for i := 0; i < rng.Intn(p.featDailyMax+1); i++ {
				fk := todaysPool[rng.Intn(len(todaysPool))]
				if err := append1(models.EventFeatureUse, fk, nil, withinDay(day, rng)); err != nil {
					return err
				}
			}
		}

		if rng.Float64() < p.pAPI {
			amount := float64(p.apiAmtMin + rng.Intn(p.apiAmtMax-p.apiAmtMin+1))
			if err := append1(models.EventAPICall, "", &amount, withinDay(day, rng)); err != nil {
				return err
			}
		}

		if rng.Float64() < p.pTicket {
			if err := append1(models.EventSupportTicketOpened, "", nil, withinDay(day, rng)); err != nil {
				return err
			}
		}

		if day.Day() == 1 {
			kind := models.EventInvoicePaid
			if rng.Float64() >= p.pPaid {
				kind = models.EventInvoiceLate
			}
			if err := append1(kind, "", nil, day); err != nil {
				return err
			}
		}
	}

	return nil
}

func adoptedSubset(pool []string, adoptP float64, rng *rand.Rand) []string {
	var adopted []string
	for _, f := range pool {
		if rng.Float64() < adoptP {
			adopted = append(adopted, f)
		}
	}
	if len(adopted) == 0 {
		adopted = []string{pool[rng.Intn(len(pool))]}
	}
	return adopted
}

func withinDay(day time.Time, rng *rand.Rand) time.Time {
	return day.Add(time.Duration(rng.Intn(24)) * time.Hour)
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
