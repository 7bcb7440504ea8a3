package scoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/healthwatch/pkg/models"
)

// CustomerStore is the customer lookup surface the engine needs.
type CustomerStore interface {
	GetCustomer(ctx context.Context, id string) (*models.Customer, error)
}

// ActivityStore is the read-only aggregation surface the engine needs over
// the activity event log. All windows are half-open: [start, end).
type ActivityStore interface {
	CountEvents(ctx context.Context, customerID string, kind models.EventKind, start, end time.Time) (int, error)
	CountDistinctFeatures(ctx context.Context, customerID string, start, end time.Time) (int, error)
	SumAPICallValues(ctx context.Context, customerID string, start, end time.Time) (float64, error)
	ListInvoiceEvents(ctx context.Context, customerID string, start, end time.Time) ([]models.InvoiceEvent, error)
}

// EngineMetrics counts engine activity.
type EngineMetrics struct {
	ComputationsPerformed int64     `json:"computations_performed"`
	ComputationsFailed    int64     `json:"computations_failed"`
	LastComputation       time.Time `json:"last_computation"`
	mu                    sync.RWMutex
}

// Engine computes per-customer health breakdowns. It is stateless between
// calls; all tuning comes from the injected Config.
type Engine struct {
	config    Config
	customers CustomerStore
	activity  ActivityStore
	metrics   *EngineMetrics
}

// NewEngine creates a scoring engine.
func NewEngine(config Config, customers CustomerStore, activity ActivityStore) *Engine {
	return &Engine{
		config:    config,
		customers: customers,
		activity:  activity,
		metrics:   &EngineMetrics{},
	}
}

// Config returns the engine's scoring configuration.
func (e *Engine) Config() Config {
	return e.config
}

// ComputeBreakdown computes the weighted health breakdown for one customer
// with every aggregation window anchored at the same reference instant.
// Passing a historical instant yields the score as it would have been then.
//
// An unknown customer is an error (models.ErrCustomerNotFound), not a zero
// score. Store failures propagate; factors are never silently defaulted.
func (e *Engine) ComputeBreakdown(ctx context.Context, customerID string, at time.Time) (*models.HealthBreakdown, error) {
	breakdown, err := e.computeBreakdown(ctx, customerID, at)
	e.recordComputation(err)
	return breakdown, err
}

func (e *Engine) computeBreakdown(ctx context.Context, customerID string, at time.Time) (*models.HealthBreakdown, error) {
	customer, err := e.customers.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}

	seats := customer.Seats
	if seats < 1 {
		seats = e.config.DefaultSeats
	}

	d7 := at.AddDate(0, 0, -7)
	d14 := at.AddDate(0, 0, -14)
	d30 := at.AddDate(0, 0, -30)
	d180 := at.AddDate(0, 0, -180)

	logins30d, err := e.activity.CountEvents(ctx, customerID, models.EventLogin, d30, at)
	if err != nil {
		return nil, fmt.Errorf("login window query: %w", err)
	}

	uniqueFeatures30d, err := e.activity.CountDistinctFeatures(ctx, customerID, d30, at)
	if err != nil {
		return nil, fmt.Errorf("feature window query: %w", err)
	}

	tickets30d, err := e.activity.CountEvents(ctx, customerID, models.EventSupportTicketOpened, d30, at)
	if err != nil {
		return nil, fmt.Errorf("ticket window query: %w", err)
	}

	invoices, err := e.activity.ListInvoiceEvents(ctx, customerID, d180, at)
	if err != nil {
		return nil, fmt.Errorf("invoice window query: %w", err)
	}

	recentSum, err := e.activity.SumAPICallValues(ctx, customerID, d7, at)
	if err != nil {
		return nil, fmt.Errorf("api usage window query: %w", err)
	}

	prevSum, err := e.activity.SumAPICallValues(ctx, customerID, d14, d7)
	if err != nil {
		return nil, fmt.Errorf("api usage window query: %w", err)
	}

	factors := map[string]float64{
		models.FactorLoginFrequency:      e.config.LoginFrequencyScore(logins30d, seats, customer.Segment),
		models.FactorFeatureAdoption:     e.config.FeatureAdoptionScore(uniqueFeatures30d),
		models.FactorSupportTicketVolume: e.config.SupportTicketScore(tickets30d, seats, customer.Segment),
		models.FactorInvoiceTimeliness:   e.config.InvoiceTimelinessScore(invoices, at),
		models.FactorAPIUsageTrend:       e.config.APIUsageTrendScore(recentSum, prevSum),
	}

	var total float64
	for name, weight := range e.config.Weights {
		total += weight * factors[name]
	}

	return &models.HealthBreakdown{
		CustomerID: customerID,
		Total:      Clamp(total),
		Factors:    factors,
		ComputedAt: at,
	}, nil
}

func (e *Engine) recordComputation(err error) {
	e.metrics.mu.Lock()
	defer e.metrics.mu.Unlock()

	if err != nil {
		e.metrics.ComputationsFailed++
		return
	}
	e.metrics.ComputationsPerformed++
	e.metrics.LastComputation = time.Now()
}

// Metrics returns a snapshot of the engine counters.
func (e *Engine) Metrics() EngineMetrics {
	e.metrics.mu.RLock()
	defer e.metrics.mu.RUnlock()

	return EngineMetrics{
		ComputationsPerformed: e.metrics.ComputationsPerformed,
		ComputationsFailed:    e.metrics.ComputationsFailed,
		LastComputation:       e.metrics.LastComputation,
	}
}
