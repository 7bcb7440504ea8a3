package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/healthwatch/pkg/models"
)

// MemoryStore is an in-process implementation of the customer and activity
// stores. It backs tests, the seeder and demo mode; semantics match the
// Postgres implementation, including half-open [start, end) windows.
type MemoryStore struct {
	mu        sync.RWMutex
	customers map[string]*models.Customer
	events    map[string][]*models.Event // keyed by customer ID
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		customers: make(map[string]*models.Customer),
		events:    make(map[string][]*models.Event),
	}
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

// Customer operations

// CreateCustomer inserts a customer, assigning an ID when absent.
func (s *MemoryStore) CreateCustomer(ctx context.Context, c *models.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if _, exists := s.customers[c.ID]; exists {
		return fmt.Errorf("customer %s already exists", c.ID)
	}

	clone := *c
	s.customers[c.ID] = &clone
	return nil
}

// GetCustomer loads one customer by ID.
func (s *MemoryStore) GetCustomer(ctx context.Context, id string) (*models.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[id]
	if !ok {
		return nil, fmt.Errorf("customer %s: %w", id, models.ErrCustomerNotFound)
	}
	clone := *c
	return &clone, nil
}

// ListCustomers returns customers matching the filter, ordered by ID.
func (s *MemoryStore) ListCustomers(ctx context.Context, filter models.CustomerFilter) ([]*models.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var customers []*models.Customer
	for _, c := range s.customers {
		if !filter.Matches(c) {
			continue
		}
		clone := *c
		customers = append(customers, &clone)
	}
	sort.Slice(customers, func(i, j int) bool { return customers[i].ID < customers[j].ID })
	return customers, nil
}

// UpdateHealthScore writes the denormalized advisory score.
func (s *MemoryStore) UpdateHealthScore(ctx context.Context, id string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.customers[id]
	if !ok {
		return fmt.Errorf("customer %s: %w", id, models.ErrCustomerNotFound)
	}
	c.HealthScore = score
	return nil
}

// Event operations

// AppendEvent appends one activity event.
func (s *MemoryStore) AppendEvent(ctx context.Context, e *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	clone := *e
	s.events[e.CustomerID] = append(s.events[e.CustomerID], &clone)
	return nil
}

// ListRecentEvents returns up to limit events for a customer, newest first.
func (s *MemoryStore) ListRecentEvents(ctx context.Context, customerID string, limit int) ([]*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.events[customerID]
	events := make([]*models.Event, 0, len(all))
	for _, e := range all {
		clone := *e
		events = append(events, &clone)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Timestamp.After(events[j].Timestamp) })
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

// Aggregation queries

// CountEvents counts events of one kind within [start, end).
func (s *MemoryStore) CountEvents(ctx context.Context, customerID string, kind models.EventKind, start, end time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, e := range s.events[customerID] {
		if e.Kind == kind && inWindow(e.Timestamp, start, end) {
			count++
		}
	}
	return count, nil
}

// CountDistinctFeatures counts distinct feature keys among feature_use
// events within [start, end).
func (s *MemoryStore) CountDistinctFeatures(ctx context.Context, customerID string, start, end time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, e := range s.events[customerID] {
		if e.Kind == models.EventFeatureUse && inWindow(e.Timestamp, start, end) {
			seen[e.FeatureKey] = struct{}{}
		}
	}
	return len(seen), nil
}

// SumAPICallValues sums api_call values within [start, end); missing values
// count as 0.
func (s *MemoryStore) SumAPICallValues(ctx context.Context, customerID string, start, end time.Time) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum float64
	for _, e := range s.events[customerID] {
		if e.Kind == models.EventAPICall && inWindow(e.Timestamp, start, end) && e.Value != nil {
			sum += *e.Value
		}
	}
	return sum, nil
}

// ListInvoiceEvents returns invoice (kind, timestamp) pairs within
// [start, end), oldest first.
func (s *MemoryStore) ListInvoiceEvents(ctx context.Context, customerID string, start, end time.Time) ([]models.InvoiceEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var invoices []models.InvoiceEvent
	for _, e := range s.events[customerID] {
		if e.Kind != models.EventInvoicePaid && e.Kind != models.EventInvoiceLate {
			continue
		}
		if inWindow(e.Timestamp, start, end) {
			invoices = append(invoices, models.InvoiceEvent{Kind: e.Kind, Timestamp: e.Timestamp})
		}
	}
	sort.Slice(invoices, func(i, j int) bool { return invoices[i].Timestamp.Before(invoices[j].Timestamp) })
	return invoices, nil
}

func inWindow(ts, start, end time.Time) bool {
	return !ts.Before(start) && ts.Before(end)
}
