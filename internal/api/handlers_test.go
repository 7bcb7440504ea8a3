package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthwatch/internal/analytics"
	"github.com/healthwatch/internal/api"
	"github.com/healthwatch/internal/events"
	"github.com/healthwatch/internal/scoring"
	"github.com/healthwatch/internal/store"
	"github.com/healthwatch/pkg/models"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *api.APIError   `json:"error"`
	Meta    *api.APIMeta    `json:"meta"`
}

type testServer struct {
	gateway *api.Gateway
	store   *store.MemoryStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st := store.NewMemoryStore()
	cfg := scoring.DefaultConfig()
	engine := scoring.NewEngine(cfg, st, st)
	aggregator := analytics.NewAggregator(engine, st, cfg)
	gateway := api.NewGateway(api.DefaultGatewayConfig(), st, st, engine, aggregator, events.NewNopBus(), nil, nil)
	return &testServer{gateway: gateway, store: st}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.gateway.Handler().ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), "body: %s", rec.Body.String())
	return rec, env
}

func (ts *testServer) createCustomer(t *testing.T, name string, segment models.Segment, seats int) models.Customer {
	t.Helper()
	rec, env := ts.do(t, http.MethodPost, "/api/v1/customers", api.CreateCustomerRequest{
		Name: name, Segment: segment, Seats: seats,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var c models.Customer
	require.NoError(t, json.Unmarshal(env.Data, &c))
	require.NotEmpty(t, c.ID)
	return c
}

func TestCreateCustomer(t *testing.T) {
	ts := newTestServer(t)

	c := ts.createCustomer(t, "Acme Systems", models.SegmentSMB, 40)
	assert.Equal(t, "Acme Systems", c.Name)
	assert.Equal(t, models.SegmentSMB, c.Segment)
	assert.True(t, c.Active)

	rec, env := ts.do(t, http.MethodGet, "/api/v1/customers/"+c.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
}

func TestCreateCustomerValidation(t *testing.T) {
	ts := newTestServer(t)

	cases := []struct {
		name string
		req  api.CreateCustomerRequest
	}{
		{"missing name", api.CreateCustomerRequest{Segment: models.SegmentSMB}},
		{"unknown segment", api.CreateCustomerRequest{Name: "X", Segment: "mid-market"}},
		{"negative seats", api.CreateCustomerRequest{Name: "X", Segment: models.SegmentSMB, Seats: -1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, env := ts.do(t, http.MethodPost, "/api/v1/customers", tc.req)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
		})
	}
}

func TestGetCustomerNotFound(t *testing.T) {
	ts := newTestServer(t)

	rec, env := ts.do(t, http.MethodGet, "/api/v1/customers/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestRecordEvent(t *testing.T) {
	ts := newTestServer(t)
	c := ts.createCustomer(t, "Acme", models.SegmentSMB, 40)

	rec, env := ts.do(t, http.MethodPost, "/api/v1/customers/"+c.ID+"/events", api.RecordEventRequest{
		Kind: models.EventFeatureUse, FeatureKey: "reports",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var e models.Event
	require.NoError(t, json.Unmarshal(env.Data, &e))
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, c.ID, e.CustomerID)
	assert.False(t, e.Timestamp.IsZero())

	rec, env = ts.do(t, http.MethodGet, "/api/v1/customers/"+c.ID+"/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.Event
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "reports", list[0].FeatureKey)
}

func TestRecordEventValidation(t *testing.T) {
	ts := newTestServer(t)
	c := ts.createCustomer(t, "Acme", models.SegmentSMB, 40)

	v := 10.0
	cases := []struct {
		name string
		req  api.RecordEventRequest
	}{
		{"feature_use with value", api.RecordEventRequest{Kind: models.EventFeatureUse, FeatureKey: "x", Value: &v}},
		{"feature_use without key", api.RecordEventRequest{Kind: models.EventFeatureUse}},
		{"api_call without value", api.RecordEventRequest{Kind: models.EventAPICall}},
		{"login with feature key", api.RecordEventRequest{Kind: models.EventLogin, FeatureKey: "x"}},
		{"unknown kind", api.RecordEventRequest{Kind: "signup"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, env := ts.do(t, http.MethodPost, "/api/v1/customers/"+c.ID+"/events", tc.req)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
		})
	}
}

func TestRecordEventUnknownCustomer(t *testing.T) {
	ts := newTestServer(t)

	rec, env := ts.do(t, http.MethodPost, "/api/v1/customers/missing/events", api.RecordEventRequest{
		Kind: models.EventLogin,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestGetBreakdown(t *testing.T) {
	ts := newTestServer(t)
	c := ts.createCustomer(t, "Acme", models.SegmentSMB, 40)

	rec, env := ts.do(t, http.MethodGet, "/api/v1/customers/"+c.ID+"/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var breakdown models.HealthBreakdown
	require.NoError(t, json.Unmarshal(env.Data, &breakdown))
	assert.Equal(t, c.ID, breakdown.CustomerID)
	assert.InDelta(t, 42.0, breakdown.Total, 1e-9)
	assert.Len(t, breakdown.Factors, 5)

	// A current computation refreshes the advisory cache on the customer row.
	got, err := ts.store.GetCustomer(context.Background(), c.ID)
	require.NoError(t, err)
	assert.InDelta(t, 42.0, got.HealthScore, 1e-9)
}

func TestGetBreakdownHistorical(t *testing.T) {
	ts := newTestServer(t)
	c := ts.createCustomer(t, "Acme", models.SegmentSMB, 40)

	at := time.Now().UTC().AddDate(0, 0, -30).Format(time.RFC3339)
	rec, env := ts.do(t, http.MethodGet, "/api/v1/customers/"+c.ID+"/health?at="+at, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	// Historical computations never touch the advisory cache.
	got, err := ts.store.GetCustomer(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got.HealthScore)
}

func TestGetBreakdownBadAtParam(t *testing.T) {
	ts := newTestServer(t)
	c := ts.createCustomer(t, "Acme", models.SegmentSMB, 40)

	rec, env := ts.do(t, http.MethodGet, "/api/v1/customers/"+c.ID+"/health?at=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_REQUEST", env.Error.Code)
}

func TestGetBreakdownNotFound(t *testing.T) {
	ts := newTestServer(t)

	rec, env := ts.do(t, http.MethodGet, "/api/v1/customers/missing/health", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestListCustomersSortAndPaginate(t *testing.T) {
	ts := newTestServer(t)
	ts.createCustomer(t, "Charlie Corp", models.SegmentSMB, 30)
	ts.createCustomer(t, "Alpha Inc", models.SegmentSMB, 10)
	ts.createCustomer(t, "Bravo Ltd", models.SegmentSMB, 20)

	rec, env := ts.do(t, http.MethodGet, "/api/v1/customers?sort=name", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.Customer
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 3)
	assert.Equal(t, "Alpha Inc", list[0].Name)
	assert.Equal(t, "Charlie Corp", list[2].Name)

	rec, env = ts.do(t, http.MethodGet, "/api/v1/customers?sort=seats&order=desc&limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 2)
	assert.Equal(t, 30, list[0].Seats)
	assert.Equal(t, 20, list[1].Seats)
	require.NotNil(t, env.Meta)
	assert.Equal(t, 3, env.Meta.Total)
	assert.True(t, env.Meta.HasMore)
}

func TestListCustomersUnknownSortKey(t *testing.T) {
	ts := newTestServer(t)

	rec, env := ts.do(t, http.MethodGet, "/api/v1/customers?sort=revenue", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_REQUEST", env.Error.Code)
}

func TestSummaryEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.createCustomer(t, "Acme", models.SegmentSMB, 40)
	ts.createCustomer(t, "Globex", models.SegmentEnterprise, 500)

	rec, env := ts.do(t, http.MethodGet, "/api/v1/health/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var summary models.HealthSummary
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.Equal(t, 2, summary.Total)
	// Fresh customers have no activity and land in the at-risk bucket.
	assert.Equal(t, 2, summary.AtRisk)
	assert.InDelta(t, 42.0, summary.AvgScore, 0.01)

	rec, env = ts.do(t, http.MethodGet, "/api/v1/health/summary?segment=smb", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.Equal(t, 1, summary.Total)
}

func TestSummaryUnknownSegment(t *testing.T) {
	ts := newTestServer(t)

	rec, env := ts.do(t, http.MethodGet, "/api/v1/health/summary?segment=midmarket", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_REQUEST", env.Error.Code)
}

func TestTrendEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.createCustomer(t, "Acme", models.SegmentSMB, 40)

	rec, env := ts.do(t, http.MethodGet, "/api/v1/health/trend?days=7", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var points []models.TrendPoint
	require.NoError(t, json.Unmarshal(env.Data, &points))
	require.Len(t, points, 8)
	assert.Equal(t, time.Now().UTC().Format("2006-01-02"), points[7].Date)
}

func TestTrendDaysClamped(t *testing.T) {
	ts := newTestServer(t)

	rec, env := ts.do(t, http.MethodGet, "/api/v1/health/trend?days=3", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var points []models.TrendPoint
	require.NoError(t, json.Unmarshal(env.Data, &points))
	// days below the floor clamp up to 7.
	assert.Len(t, points, 8)
}

func TestHealthzWithoutChecker(t *testing.T) {
	ts := newTestServer(t)

	rec, env := ts.do(t, http.MethodGet, "/api/v1/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.createCustomer(t, "Acme", models.SegmentSMB, 40)

	rec, env := ts.do(t, http.MethodGet, "/api/v1/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var metrics api.GatewayMetrics
	require.NoError(t, json.Unmarshal(env.Data, &metrics))
	assert.GreaterOrEqual(t, metrics.RequestsTotal, int64(1))
	assert.Equal(t, int64(0), metrics.RequestsFailed)
}

func TestEventTimestampPreserved(t *testing.T) {
	ts := newTestServer(t)
	c := ts.createCustomer(t, "Acme", models.SegmentSMB, 40)

	when := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	rec, env := ts.do(t, http.MethodPost, fmt.Sprintf("/api/v1/customers/%s/events", c.ID), api.RecordEventRequest{
		Kind: models.EventLogin, Timestamp: &when,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var e models.Event
	require.NoError(t, json.Unmarshal(env.Data, &e))
	assert.True(t, e.Timestamp.Equal(when))
}
