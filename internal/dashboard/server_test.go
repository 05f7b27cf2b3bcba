package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vortexflow/config"
	"vortexflow/internal/directory"
	"vortexflow/internal/hub"
	"vortexflow/internal/model"
	"vortexflow/internal/oracle"
	"vortexflow/internal/session"
)

func newTestServer(t *testing.T) (*Server, *hub.Hub) {
	t.Helper()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"SIGNAL CLEAR"}]}}]}`))
	}))
	t.Cleanup(upstream.Close)

	cfg := &config.Config{
		Poller: config.PollerConfig{Timeout: time.Second, RateLimit: time.Millisecond},
	}

	h := hub.NewHub()
	s := NewServer(
		config.DashboardConfig{Enabled: true, Address: ":8080", AnalysisInterval: time.Hour},
		session.NewSession(cfg, h),
		h,
		directory.NewDirectory(cfg),
		oracle.NewOracle(config.OracleConfig{Enabled: true, URL: upstream.URL, APIKey: "test", Timeout: time.Second}),
	)
	return s, h
}

func TestSnapshotEndpointAwaitingFlow(t *testing.T) {
	s, _ := newTestServer(t)
	router, err := s.buildRouter()
	if err != nil {
		t.Fatalf("router build failed: %v", err)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/snapshot", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	var payload struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if payload.Status != model.StatusAwaitingFlow {
		t.Fatalf("expected awaiting-flow status, got %q", payload.Status)
	}
}

func TestSnapshotEndpointServesLatest(t *testing.T) {
	s, h := newTestServer(t)
	router, _ := s.buildRouter()

	h.Publish(model.MetricSnapshot{
		Market: model.MarketDef{Symbol: "BTCUSDT", Exchange: model.ExchangeBinance},
		Price:  43210.5,
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/snapshot", nil))

	var payload struct {
		Status   string               `json:"status"`
		Snapshot model.MetricSnapshot `json:"snapshot"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if payload.Status != "ok" || payload.Snapshot.Price != 43210.5 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestSessionEndpointIdle(t *testing.T) {
	s, _ := newTestServer(t)
	router, _ := s.buildRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/session", nil))

	var payload struct {
		State string `json:"state"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if payload.State != string(session.StateIdle) {
		t.Fatalf("expected idle session, got %q", payload.State)
	}
}

func TestAnalysisEndpointCaches(t *testing.T) {
	s, h := newTestServer(t)
	router, _ := s.buildRouter()

	h.Publish(model.MetricSnapshot{Price: 100})

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/analysis", nil))

	var firstPayload struct {
		Analysis string `json:"analysis"`
		Cached   bool   `json:"cached"`
	}
	if err := json.Unmarshal(first.Body.Bytes(), &firstPayload); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if firstPayload.Analysis != "SIGNAL CLEAR" || firstPayload.Cached {
		t.Fatalf("unexpected first analysis: %+v", firstPayload)
	}

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/analysis", nil))

	var secondPayload struct {
		Cached bool `json:"cached"`
	}
	if err := json.Unmarshal(second.Body.Bytes(), &secondPayload); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !secondPayload.Cached {
		t.Fatalf("expected cached analysis on second request")
	}
}

func TestMarketsEndpointRejectsUnknownExchange(t *testing.T) {
	s, _ := newTestServer(t)
	router, _ := s.buildRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets?exchange=kraken", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown exchange, got %d", rec.Code)
	}
}

func TestDisabledServerIsNil(t *testing.T) {
	if s := NewServer(config.DashboardConfig{Enabled: false}, nil, nil, nil, nil); s != nil {
		t.Fatalf("expected nil server when disabled")
	}
}
