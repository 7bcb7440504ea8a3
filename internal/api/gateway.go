package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/healthwatch/internal/events"
	"github.com/healthwatch/internal/scoring"
	"github.com/healthwatch/pkg/models"
)

// CustomerStore is the customer persistence surface the gateway needs.
type CustomerStore interface {
	CreateCustomer(ctx context.Context, c *models.Customer) error
	GetCustomer(ctx context.Context, id string) (*models.Customer, error)
	ListCustomers(ctx context.Context, filter models.CustomerFilter) ([]*models.Customer, error)
	UpdateHealthScore(ctx context.Context, id string, score float64) error
}

// ActivityStore is the event log surface the gateway needs.
type ActivityStore interface {
	AppendEvent(ctx context.Context, e *models.Event) error
	ListRecentEvents(ctx context.Context, customerID string, limit int) ([]*models.Event, error)
}

// ScoreEngine computes per-customer breakdowns.
type ScoreEngine interface {
	ComputeBreakdown(ctx context.Context, customerID string, at time.Time) (*models.HealthBreakdown, error)
	Config() scoring.Config
}

// Analytics runs population-level aggregations.
type Analytics interface {
	Summary(ctx context.Context, segment *models.Segment, at time.Time) (*models.HealthSummary, error)
	Trend(ctx context.Context, days int, segment *models.Segment, at time.Time) ([]models.TrendPoint, error)
}

// HealthChecker reports dependency health for the operational endpoint.
type HealthChecker interface {
	Check(ctx context.Context) (healthy bool, results interface{})
}

// GatewayConfig represents gateway configuration.
type GatewayConfig struct {
	Host           string        `yaml:"host" json:"host"`
	Port           int           `yaml:"port" json:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	EnableCORS     bool          `yaml:"enable_cors" json:"enable_cors"`
	AllowedOrigins []string      `yaml:"allowed_origins" json:"allowed_origins"`
	AllowedMethods []string      `yaml:"allowed_methods" json:"allowed_methods"`
	AllowedHeaders []string      `yaml:"allowed_headers" json:"allowed_headers"`
}

// DefaultGatewayConfig returns default gateway configuration.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		Host:           "0.0.0.0",
		Port:           8080,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   60 * time.Second,
		IdleTimeout:    120 * time.Second,
		EnableCORS:     true,
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}
}

// GatewayMetrics represents gateway request metrics.
type GatewayMetrics struct {
	RequestsTotal    int64            `json:"requests_total"`
	RequestsFailed   int64            `json:"requests_failed"`
	AverageLatency   time.Duration    `json:"average_latency"`
	RequestsByMethod map[string]int64 `json:"requests_by_method"`
	RequestsByStatus map[int]int64    `json:"requests_by_status"`
	LastRequest      time.Time        `json:"last_request"`
	mu               sync.Mutex
}

// Gateway is the HTTP surface of the service: thin request/response
// marshalling around the scoring engine and population aggregator.
type Gateway struct {
	server    *http.Server
	router    *mux.Router
	customers CustomerStore
	activity  ActivityStore
	engine    ScoreEngine
	analytics Analytics
	publisher events.Publisher
	checker   HealthChecker
	webhooks  http.Handler
	config    GatewayConfig
	metrics   *GatewayMetrics
}

// NewGateway creates the API gateway. webhooks may be nil when billing
// ingestion is disabled; checker may be nil to report a bare liveness OK.
func NewGateway(
	config GatewayConfig,
	customers CustomerStore,
	activity ActivityStore,
	engine ScoreEngine,
	analytics Analytics,
	publisher events.Publisher,
	checker HealthChecker,
	webhooks http.Handler,
) *Gateway {
	router := mux.NewRouter()

	gateway := &Gateway{
		router:    router,
		customers: customers,
		activity:  activity,
		engine:    engine,
		analytics: analytics,
		publisher: publisher,
		checker:   checker,
		webhooks:  webhooks,
		config:    config,
		metrics: &GatewayMetrics{
			RequestsByMethod: make(map[string]int64),
			RequestsByStatus: make(map[int]int64),
		},
	}

	gateway.setupRoutes()
	gateway.setupMiddleware()

	gateway.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return gateway
}

// setupRoutes configures all API routes.
func (g *Gateway) setupRoutes() {
	api := g.router.PathPrefix("/api/v1").Subrouter()

	// Customer routes
	customers := api.PathPrefix("/customers").Subrouter()
	customers.HandleFunc("", g.handleListCustomers).Methods("GET")
	customers.HandleFunc("", g.handleCreateCustomer).Methods("POST")
	customers.HandleFunc("/{id}", g.handleGetCustomer).Methods("GET")
	customers.HandleFunc("/{id}/health", g.handleGetBreakdown).Methods("GET")
	customers.HandleFunc("/{id}/events", g.handleRecordEvent).Methods("POST")
	customers.HandleFunc("/{id}/events", g.handleListEvents).Methods("GET")

	// Population routes
	health := api.PathPrefix("/health").Subrouter()
	health.HandleFunc("/summary", g.handleSummary).Methods("GET")
	health.HandleFunc("/trend", g.handleTrend).Methods("GET")

	// Billing webhook ingestion
	if g.webhooks != nil {
		api.Handle("/webhooks/stripe", g.webhooks).Methods("POST")
	}

	// Operational endpoints
	api.HandleFunc("/healthz", g.handleHealthz).Methods("GET")
	api.HandleFunc("/metrics", g.handleMetrics).Methods("GET")
}

// setupMiddleware configures HTTP middleware.
func (g *Gateway) setupMiddleware() {
	if g.config.EnableCORS {
		c := cors.New(cors.Options{
			AllowedOrigins:   g.config.AllowedOrigins,
			AllowedMethods:   g.config.AllowedMethods,
			AllowedHeaders:   g.config.AllowedHeaders,
			AllowCredentials: true,
		})
		g.router.Use(c.Handler)
	}

	g.router.Use(g.metricsMiddleware)
}

// Handler returns the gateway's HTTP handler, for tests and embedding.
func (g *Gateway) Handler() http.Handler {
	return g.router
}

// Start starts the API gateway.
func (g *Gateway) Start() error {
	log.Printf("Starting API gateway on %s", g.server.Addr)
	return g.server.ListenAndServe()
}

// Stop stops the API gateway.
func (g *Gateway) Stop(ctx context.Context) error {
	log.Printf("Stopping API gateway")
	return g.server.Shutdown(ctx)
}

// Response envelope

type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    *APIMeta    `json:"meta,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type APIMeta struct {
	Total   int  `json:"total,omitempty"`
	Limit   int  `json:"limit,omitempty"`
	Offset  int  `json:"offset,omitempty"`
	HasMore bool `json:"has_more,omitempty"`
}

// Helper functions

func writeJSONResponse(w http.ResponseWriter, status int, response APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeErrorResponse(w http.ResponseWriter, status int, code, message, details string) {
	writeJSONResponse(w, status, APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

func writeSuccessResponse(w http.ResponseWriter, status int, data interface{}, meta *APIMeta) {
	writeJSONResponse(w, status, APIResponse{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

func parseRequestBody(r *http.Request, target interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

// Middleware

func (g *Gateway) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		g.updateMetrics(r, wrapped.statusCode, time.Since(start))
	})
}

func (g *Gateway) updateMetrics(r *http.Request, statusCode int, duration time.Duration) {
	g.metrics.mu.Lock()
	defer g.metrics.mu.Unlock()

	g.metrics.RequestsTotal++
	g.metrics.RequestsByMethod[r.Method]++
	g.metrics.RequestsByStatus[statusCode]++
	if statusCode >= 500 {
		g.metrics.RequestsFailed++
	}
	g.metrics.LastRequest = time.Now()

	if g.metrics.AverageLatency == 0 {
		g.metrics.AverageLatency = duration
	} else {
		g.metrics.AverageLatency = (g.metrics.AverageLatency + duration) / 2
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
