package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/healthwatch/pkg/models"
)

// Request types

type CreateCustomerRequest struct {
	Name    string         `json:"name"`
	Segment models.Segment `json:"segment"`
	Seats   int            `json:"seats"`
	Active  *bool          `json:"active,omitempty"`
}

type RecordEventRequest struct {
	Kind       models.EventKind `json:"kind"`
	FeatureKey string           `json:"feature_key,omitempty"`
	Value      *float64         `json:"value,omitempty"`
	Timestamp  *time.Time       `json:"ts,omitempty"`
}

// Customer handlers

func (g *Gateway) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req CreateCustomerRequest
	if err := parseRequestBody(r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", "Failed to parse request body", err.Error())
		return
	}

	if req.Name == "" {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", "")
		return
	}
	if !req.Segment.IsValid() {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown segment", string(req.Segment))
		return
	}
	if req.Seats < 0 {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "seats must be non-negative", "")
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	customer := &models.Customer{
		Name:    req.Name,
		Segment: req.Segment,
		Seats:   req.Seats,
		Active:  active,
	}
	if err := g.customers.CreateCustomer(r.Context(), customer); err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create customer", err.Error())
		return
	}

	writeSuccessResponse(w, http.StatusCreated, customer, nil)
}

func (g *Gateway) handleGetCustomer(w http.ResponseWriter, r *http.Request) {
	customerID := mux.Vars(r)["id"]

	customer, err := g.customers.GetCustomer(r.Context(), customerID)
	if err != nil {
		if errors.Is(err, models.ErrCustomerNotFound) {
			writeErrorResponse(w, http.StatusNotFound, "NOT_FOUND", "Customer not found", customerID)
			return
		}
		writeErrorResponse(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get customer", err.Error())
		return
	}

	writeSuccessResponse(w, http.StatusOK, customer, nil)
}

// handleListCustomers returns customers with freshly computed scores. The
// persisted health_score is only an advisory cache, so every listing
// recomputes from the event log before sorting and paginating.
func (g *Gateway) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseCustomerFilter(w, r)
	if !ok {
		return
	}

	sortKey := r.URL.Query().Get("sort")
	switch sortKey {
	case "", "name", "score", "seats":
	default:
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", "unknown sort key", sortKey)
		return
	}
	descending := r.URL.Query().Get("order") == "desc"

	limit := parseIntParam(r, "limit", 0)
	offset := parseIntParam(r, "offset", 0)

	customers, err := g.customers.ListCustomers(r.Context(), filter)
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list customers", err.Error())
		return
	}

	now := time.Now().UTC()
	for _, c := range customers {
		breakdown, err := g.engine.ComputeBreakdown(r.Context(), c.ID, now)
		if err != nil {
			writeErrorResponse(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to compute health score", err.Error())
			return
		}
		c.HealthScore = breakdown.Total
		g.persistAdvisoryScore(r.Context(), c.ID, breakdown.Total)
	}

	sort.Slice(customers, func(i, j int) bool {
		a, b := customers[i], customers[j]
		if descending {
			a, b = b, a
		}
		switch sortKey {
		case "score":
			if a.HealthScore != b.HealthScore {
				return a.HealthScore < b.HealthScore
			}
		case "seats":
			if a.Seats != b.Seats {
				return a.Seats < b.Seats
			}
		case "name":
			if a.Name != b.Name {
				return a.Name < b.Name
			}
		}
		return a.ID < b.ID
	})

	total := len(customers)
	page := paginate(customers, offset, limit)

	meta := &APIMeta{Total: total, Limit: limit, Offset: offset}
	if limit > 0 && offset+len(page) < total {
		meta.HasMore = true
	}
	writeSuccessResponse(w, http.StatusOK, page, meta)
}

// handleGetBreakdown returns the health breakdown for one customer. An
// optional RFC3339 `at` parameter recomputes the score as of a historical
// instant; the advisory cache is only refreshed for current computations.
func (g *Gateway) handleGetBreakdown(w http.ResponseWriter, r *http.Request) {
	customerID := mux.Vars(r)["id"]

	at := time.Now().UTC()
	historical := false
	if raw := r.URL.Query().Get("at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", "at must be RFC3339", raw)
			return
		}
		at = parsed
		historical = true
	}

	breakdown, err := g.engine.ComputeBreakdown(r.Context(), customerID, at)
	if err != nil {
		if errors.Is(err, models.ErrCustomerNotFound) {
			writeErrorResponse(w, http.StatusNotFound, "NOT_FOUND", "Customer not found", customerID)
			return
		}
		writeErrorResponse(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to compute breakdown", err.Error())
		return
	}

	if !historical {
		g.persistAdvisoryScore(r.Context(), customerID, breakdown.Total)
		g.alertIfAtRisk(r.Context(), customerID, breakdown)
	}

	writeSuccessResponse(w, http.StatusOK, breakdown, nil)
}

// Event handlers

func (g *Gateway) handleRecordEvent(w http.ResponseWriter, r *http.Request) {
	customerID := mux.Vars(r)["id"]

	var req RecordEventRequest
	if err := parseRequestBody(r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", "Failed to parse request body", err.Error())
		return
	}

	if _, err := g.customers.GetCustomer(r.Context(), customerID); err != nil {
		if errors.Is(err, models.ErrCustomerNotFound) {
			writeErrorResponse(w, http.StatusNotFound, "NOT_FOUND", "Customer not found", customerID)
			return
		}
		writeErrorResponse(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get customer", err.Error())
		return
	}

	event := &models.Event{
		CustomerID: customerID,
		Kind:       req.Kind,
		FeatureKey: req.FeatureKey,
		Value:      req.Value,
	}
	if req.Timestamp != nil {
		event.Timestamp = req.Timestamp.UTC()
	}

	if err := event.ValidatePayload(); err != nil {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Invalid event payload", err.Error())
		return
	}

	if err := g.activity.AppendEvent(r.Context(), event); err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to record event", err.Error())
		return
	}

	if err := g.publisher.PublishActivityRecorded(r.Context(), event); err != nil {
		log.Printf("Failed to publish activity event %s: %v", event.ID, err)
	}

	writeSuccessResponse(w, http.StatusCreated, event, nil)
}

func (g *Gateway) handleListEvents(w http.ResponseWriter, r *http.Request) {
	customerID := mux.Vars(r)["id"]

	if _, err := g.customers.GetCustomer(r.Context(), customerID); err != nil {
		if errors.Is(err, models.ErrCustomerNotFound) {
			writeErrorResponse(w, http.StatusNotFound, "NOT_FOUND", "Customer not found", customerID)
			return
		}
		writeErrorResponse(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get customer", err.Error())
		return
	}

	limit := parseIntParam(r, "limit", 50)
	if limit < 1 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	eventsList, err := g.activity.ListRecentEvents(r.Context(), customerID, limit)
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list events", err.Error())
		return
	}

	writeSuccessResponse(w, http.StatusOK, eventsList, &APIMeta{Total: len(eventsList), Limit: limit})
}

// Population handlers

func (g *Gateway) handleSummary(w http.ResponseWriter, r *http.Request) {
	segment, ok := parseSegmentParam(w, r)
	if !ok {
		return
	}

	summary, err := g.analytics.Summary(r.Context(), segment, time.Now().UTC())
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to compute summary", err.Error())
		return
	}

	writeSuccessResponse(w, http.StatusOK, summary, nil)
}

func (g *Gateway) handleTrend(w http.ResponseWriter, r *http.Request) {
	segment, ok := parseSegmentParam(w, r)
	if !ok {
		return
	}

	days := parseIntParam(r, "days", 30)
	if days < 7 {
		days = 7
	}
	if days > 90 {
		days = 90
	}

	points, err := g.analytics.Trend(r.Context(), days, segment, time.Now().UTC())
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to compute trend", err.Error())
		return
	}

	writeSuccessResponse(w, http.StatusOK, points, nil)
}

// Operational handlers

func (g *Gateway) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if g.checker == nil {
		writeSuccessResponse(w, http.StatusOK, map[string]string{"status": "ok"}, nil)
		return
	}

	healthy, results := g.checker.Check(r.Context())
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, APIResponse{Success: healthy, Data: results})
}

func (g *Gateway) handleMetrics(w http.ResponseWriter, r *http.Request) {
	g.metrics.mu.Lock()
	snapshot := GatewayMetrics{
		RequestsTotal:    g.metrics.RequestsTotal,
		RequestsFailed:   g.metrics.RequestsFailed,
		AverageLatency:   g.metrics.AverageLatency,
		RequestsByMethod: make(map[string]int64, len(g.metrics.RequestsByMethod)),
		RequestsByStatus: make(map[int]int64, len(g.metrics.RequestsByStatus)),
		LastRequest:      g.metrics.LastRequest,
	}
	for k, v := range g.metrics.RequestsByMethod {
		snapshot.RequestsByMethod[k] = v
	}
	for k, v := range g.metrics.RequestsByStatus {
		snapshot.RequestsByStatus[k] = v
	}
	g.metrics.mu.Unlock()

	writeSuccessResponse(w, http.StatusOK, &snapshot, nil)
}

// Helpers

// persistAdvisoryScore writes the denormalized total back to the customer
// row. The write is advisory telemetry; failures are logged and swallowed
// so scoring responses never depend on it.
func (g *Gateway) persistAdvisoryScore(ctx context.Context, customerID string, total float64) {
	if err := g.customers.UpdateHealthScore(ctx, customerID, total); err != nil {
		log.Printf("Failed to persist advisory score for %s: %v", customerID, err)
	}
}

func (g *Gateway) alertIfAtRisk(ctx context.Context, customerID string, breakdown *models.HealthBreakdown) {
	if g.engine.Config().RiskLevel(breakdown.Total) != models.RiskAtRisk {
		return
	}
	customer, err := g.customers.GetCustomer(ctx, customerID)
	if err != nil {
		log.Printf("Failed to load customer %s for at-risk alert: %v", customerID, err)
		return
	}
	if err := g.publisher.PublishAtRiskAlert(ctx, customer, breakdown); err != nil {
		log.Printf("Failed to publish at-risk alert for %s: %v", customerID, err)
	}
}

func parseCustomerFilter(w http.ResponseWriter, r *http.Request) (models.CustomerFilter, bool) {
	var filter models.CustomerFilter

	if raw := r.URL.Query().Get("segment"); raw != "" {
		segment := models.Segment(raw)
		if !segment.IsValid() {
			writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", "unknown segment", raw)
			return filter, false
		}
		filter.Segment = &segment
	}
	if raw := r.URL.Query().Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", "active must be a boolean", raw)
			return filter, false
		}
		filter.Active = &active
	}

	return filter, true
}

func parseSegmentParam(w http.ResponseWriter, r *http.Request) (*models.Segment, bool) {
	raw := r.URL.Query().Get("segment")
	if raw == "" {
		return nil, true
	}
	segment := models.Segment(raw)
	if !segment.IsValid() {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", "unknown segment", raw)
		return nil, false
	}
	return &segment, true
}

func parseIntParam(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func paginate(customers []*models.Customer, offset, limit int) []*models.Customer {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(customers) {
		return []*models.Customer{}
	}
	page := customers[offset:]
	if limit > 0 && len(page) > limit {
		page = page[:limit]
	}
	return page
}
