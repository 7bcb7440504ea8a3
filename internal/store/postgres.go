package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/healthwatch/pkg/models"
)

// PostgresStore persists customers and the append-only activity event log
// in PostgreSQL. Events are never updated or deleted here; scoring treats
// the log as the sole source of truth.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects, configures the pool and ensures the schema.
func NewPostgresStore(dbURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &PostgresStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return s, nil
}

func (s *PostgresStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS customers (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		segment VARCHAR(20) NOT NULL,
		seats INTEGER NOT NULL DEFAULT 0,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		health_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS events (
		id UUID PRIMARY KEY,
		customer_id UUID NOT NULL REFERENCES customers(id) ON DELETE CASCADE,
		kind VARCHAR(30) NOT NULL,
		feature_key TEXT,
		value DOUBLE PRECISION,
		ts TIMESTAMP WITH TIME ZONE NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_customers_segment ON customers(segment);
	CREATE INDEX IF NOT EXISTS idx_events_customer_ts ON events(customer_id, ts);
	CREATE INDEX IF NOT EXISTS idx_events_kind_ts ON events(kind, ts);`

	_, err := s.db.Exec(query)
	return err
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Ping checks database reachability.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Customer operations

// CreateCustomer inserts a customer, assigning an ID when absent.
func (s *PostgresStore) CreateCustomer(ctx context.Context, c *models.Customer) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	query := `
	INSERT INTO customers (id, name, segment, seats, active, health_score, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

	if _, err := s.db.ExecContext(ctx, query, c.ID, c.Name, c.Segment, c.Seats, c.Active, c.HealthScore, c.CreatedAt); err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}
	return nil
}

// GetCustomer loads one customer by ID.
func (s *PostgresStore) GetCustomer(ctx context.Context, id string) (*models.Customer, error) {
	query := `
	SELECT id, name, segment, seats, active, health_score, created_at
	FROM customers WHERE id = $1`

	var c models.Customer
	err := s.db.QueryRowContext(ctx, query, id).
		Scan(&c.ID, &c.Name, &c.Segment, &c.Seats, &c.Active, &c.HealthScore, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("customer %s: %w", id, models.ErrCustomerNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return &c, nil
}

// ListCustomers returns customers matching the filter, ordered by ID for
// stable output.
func (s *PostgresStore) ListCustomers(ctx context.Context, filter models.CustomerFilter) ([]*models.Customer, error) {
	query := `
	SELECT id, name, segment, seats, active, health_score, created_at
	FROM customers WHERE 1=1`
	args := []interface{}{}

	if filter.Segment != nil {
		args = append(args, *filter.Segment)
		query += fmt.Sprintf(" AND segment = $%d", len(args))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		query += fmt.Sprintf(" AND active = $%d", len(args))
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	defer rows.Close()

	var customers []*models.Customer
	for rows.Next() {
		var c models.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Segment, &c.Seats, &c.Active, &c.HealthScore, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		customers = append(customers, &c)
	}
	return customers, rows.Err()
}

// UpdateHealthScore writes the denormalized advisory score. Last write
// wins; the value is telemetry, never a scoring input.
func (s *PostgresStore) UpdateHealthScore(ctx context.Context, id string, score float64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE customers SET health_score = $2 WHERE id = $1`, id, score)
	if err != nil {
		return fmt.Errorf("failed to update health score: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("customer %s: %w", id, models.ErrCustomerNotFound)
	}
	return nil
}

// Event operations

// AppendEvent appends one activity event. The payload must already be
// validated; the store does not re-check shape invariants.
func (s *PostgresStore) AppendEvent(ctx context.Context, e *models.Event) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	var featureKey sql.NullString
	if e.FeatureKey != "" {
		featureKey = sql.NullString{String: e.FeatureKey, Valid: true}
	}

	query := `
	INSERT INTO events (id, customer_id, kind, feature_key, value, ts)
	VALUES ($1, $2, $3, $4, $5, $6)`

	if _, err := s.db.ExecContext(ctx, query, e.ID, e.CustomerID, e.Kind, featureKey, e.Value, e.Timestamp); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// ListRecentEvents returns up to limit events for a customer, newest first.
// A non-positive limit returns the full history.
func (s *PostgresStore) ListRecentEvents(ctx context.Context, customerID string, limit int) ([]*models.Event, error) {
	query := `
	SELECT id, customer_id, kind, feature_key, value, ts
	FROM events WHERE customer_id = $1
	ORDER BY ts DESC LIMIT $2`

	var sqlLimit sql.NullInt64
	if limit > 0 {
		sqlLimit = sql.NullInt64{Int64: int64(limit), Valid: true}
	}

	rows, err := s.db.QueryContext(ctx, query, customerID, sqlLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		var e models.Event
		var featureKey sql.NullString
		if err := rows.Scan(&e.ID, &e.CustomerID, &e.Kind, &featureKey, &e.Value, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.FeatureKey = featureKey.String
		events = append(events, &e)
	}
	return events, rows.Err()
}

// Aggregation queries consumed by the scoring engine. All windows are
// half-open: [start, end).

// CountEvents counts events of one kind for a customer within a window.
func (s *PostgresStore) CountEvents(ctx context.Context, customerID string, kind models.EventKind, start, end time.Time) (int, error) {
	query := `
	SELECT COUNT(*) FROM events
	WHERE customer_id = $1 AND kind = $2 AND ts >= $3 AND ts < $4`

	var count int
	if err := s.db.QueryRowContext(ctx, query, customerID, kind, start, end).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

// CountDistinctFeatures counts distinct feature keys among feature_use
// events for a customer within a window.
func (s *PostgresStore) CountDistinctFeatures(ctx context.Context, customerID string, start, end time.Time) (int, error) {
	query := `
	SELECT COUNT(DISTINCT feature_key) FROM events
	WHERE customer_id = $1 AND kind = $2 AND ts >= $3 AND ts < $4`

	var count int
	if err := s.db.QueryRowContext(ctx, query, customerID, models.EventFeatureUse, start, end).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count distinct features: %w", err)
	}
	return count, nil
}

// SumAPICallValues sums api_call values for a customer within a window.
// NULL values count as 0.
func (s *PostgresStore) SumAPICallValues(ctx context.Context, customerID string, start, end time.Time) (float64, error) {
	query := `
	SELECT COALESCE(SUM(COALESCE(value, 0)), 0) FROM events
	WHERE customer_id = $1 AND kind = $2 AND ts >= $3 AND ts < $4`

	var sum float64
	if err := s.db.QueryRowContext(ctx, query, customerID, models.EventAPICall, start, end).Scan(&sum); err != nil {
		return 0, fmt.Errorf("failed to sum api call values: %w", err)
	}
	return sum, nil
}

// ListInvoiceEvents returns (kind, timestamp) pairs for invoice events for
// a customer within a window.
func (s *PostgresStore) ListInvoiceEvents(ctx context.Context, customerID string, start, end time.Time) ([]models.InvoiceEvent, error) {
	query := `
	SELECT kind, ts FROM events
	WHERE customer_id = $1 AND kind IN ($2, $3) AND ts >= $4 AND ts < $5
	ORDER BY ts`

	rows, err := s.db.QueryContext(ctx, query, customerID, models.EventInvoicePaid, models.EventInvoiceLate, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoice events: %w", err)
	}
	defer rows.Close()

	var invoices []models.InvoiceEvent
	for rows.Next() {
		var inv models.InvoiceEvent
		if err := rows.Scan(&inv.Kind, &inv.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan invoice event: %w", err)
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}
