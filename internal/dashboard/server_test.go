package dashboard

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"klinevault/config"
	"klinevault/internal/metrics"
	"klinevault/internal/orchestrator"
	"klinevault/logger"
)

func TestNormalizeAddress(t *testing.T) {
	cases := map[string]string{
		"":                               "0.0.0.0:8080",
		"  :9090  ":                      "0.0.0.0:9090",
		"localhost":                      "localhost:8080",
		"0.0.0.0:80":                     "0.0.0.0:80",
		"[::1]:443":                      "[::1]:443",
		"::1":                            "[::1]:8080",
		"*:8080":                         "0.0.0.0:8080",
		"http://:7070":                   "0.0.0.0:7070",
		"tcp://localhost:5050":           "localhost:5050",
		"https://dashboard.example.com/": "dashboard.example.com:8080",
	}

	for input, want := range cases {
		if got := normalizeAddress(input); got != want {
			t.Fatalf("normalizeAddress(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestNewServerDisabled(t *testing.T) {
	if srv := NewServer(config.DashboardConfig{}, "klinevault", logger.Logger()); srv != nil {
		t.Fatal("expected nil server when disabled")
	}
	var srv *Server
	srv.RecordRun(orchestrator.Report{})
	if srv.Address() != "" {
		t.Fatal("nil server should have no address")
	}
}

func TestNewServerNormalizesConfiguredAddress(t *testing.T) {
	srv := NewServer(config.DashboardConfig{Enabled: true, Address: ":9000"}, "klinevault", logger.Logger())
	if srv == nil {
		t.Fatal("expected dashboard server, got nil")
	}
	defer srv.cleanup()
	if got := srv.Address(); got != "0.0.0.0:9000" {
		t.Fatalf("server address = %q, want %q", got, "0.0.0.0:9000")
	}
}

func TestMetricsEndpointServesEmittedMetrics(t *testing.T) {
	log := logger.Logger()
	srv := NewServer(config.DashboardConfig{Enabled: true, MetricsHistory: 10, LogHistory: 10}, "klinevault", log)
	t.Cleanup(srv.cleanup)

	metrics.EmitMetric(log, "sync", "partitions_fetched", 5, "counter", logger.Fields{"category": "um"})

	res := httptest.NewRecorder()
	srv.routes().ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/metrics", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", res.Code)
	}
	var body struct {
		Metrics []map[string]any `json:"metrics"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Metrics) != 1 || body.Metrics[0]["name"] != "partitions_fetched" {
		t.Fatalf("metrics = %v", body.Metrics)
	}
}

func TestRunsEndpoints(t *testing.T) {
	srv := NewServer(config.DashboardConfig{Enabled: true}, "klinevault", logger.Logger())
	t.Cleanup(srv.cleanup)
	handler := srv.routes()

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/runs/latest", nil))
	if res.Code != http.StatusNotFound {
		t.Fatalf("latest before any run = %d", res.Code)
	}

	srv.RecordRun(orchestrator.Report{RunID: "a"})
	srv.RecordRun(orchestrator.Report{RunID: "b", Succeeded: []string{"BTCUSDT"}})

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/runs/latest", nil))
	var latest orchestrator.Report
	if err := json.Unmarshal(res.Body.Bytes(), &latest); err != nil {
		t.Fatal(err)
	}
	if latest.RunID != "b" || len(latest.Succeeded) != 1 {
		t.Fatalf("latest = %+v", latest)
	}
}

func TestMetricStoreLimit(t *testing.T) {
	store := newMetricStore(2)
	for i := 0; i < 5; i++ {
		store.handle(metrics.Metric{Timestamp: time.Unix(int64(i), 0), Name: "metric", Value: i})
	}

	snapshot := store.snapshot()
	if len(snapshot) != 2 {
		t.Fatalf("expected 2 metrics in snapshot, got %d", len(snapshot))
	}
	if snapshot[0].Value != 3 || snapshot[1].Value != 4 {
		t.Fatalf("unexpected metrics retained: %#v", snapshot)
	}
}

func TestLogStoreCapturesEntries(t *testing.T) {
	store := newLogStore(3)
	entry := logrus.NewEntry(logrus.New())
	entry.Time = time.Unix(10, 0)
	entry.Level = logrus.WarnLevel
	entry.Message = "partition skipped"
	entry.Data = logrus.Fields{"component": "fetcher", "symbol": "BTCUSDT", "period": "2020-01"}

	if err := store.Fire(entry); err != nil {
		t.Fatalf("store.Fire returned error: %v", err)
	}

	snapshot := store.snapshot()
	if len(snapshot) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(snapshot))
	}
	got := snapshot[0]
	if got.Component != "fetcher" || got.Symbol != "BTCUSDT" || got.Fields["period"] != "2020-01" {
		t.Fatalf("unexpected snapshot data: %#v", got)
	}
	if _, ok := got.Fields["symbol"]; ok {
		t.Fatal("symbol duplicated into fields")
	}

	store.close()
	if err := store.Fire(entry); err != nil {
		t.Fatalf("unexpected error after close: %v", err)
	}
	if len(store.snapshot()) != 1 {
		t.Fatal("store accepted entries after close")
	}
}

func TestLogStoreKeepsInfoFromEveryComponent(t *testing.T) {
	store := newLogStore(10)
	log := logrus.New()
	log.SetOutput(io.Discard)
	log.SetLevel(logrus.DebugLevel)
	log.AddHook(store)

	log.WithField("component", "scheduler").Info("scheduler started")
	log.WithField("component", "dashboard").Info("dashboard listening")
	log.WithField("component", "store").Debug("artifacts up to date")
	log.Info("no component")

	snapshot := store.snapshot()
	if len(snapshot) != 3 {
		t.Fatalf("expected 3 captured entries, got %d: %#v", len(snapshot), snapshot)
	}
	if snapshot[0].Component != "scheduler" || snapshot[1].Component != "dashboard" || snapshot[2].Component != "" {
		t.Fatalf("unexpected components: %#v", snapshot)
	}
}
