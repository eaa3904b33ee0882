package fetcher

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"

	appconfig "klinevault/config"
	"klinevault/internal/model"
)

const rawRows = "1577836800000,1,2,0.5,1.5,10,1577836859999,15,3,5,7,0\n" +
	"1577836860000,1.5,2,1,2,11,1577836919999,22,4,6,8,0\n"

func zipBytes(t *testing.T, name, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(name)
	if err != nil {
		t.Fatalf("zip create: %v", err)
	}
	if _, err := w.Write([]byte(content)); err != nil {
		t.Fatalf("zip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func testConfig(rawDir, baseURL string) *appconfig.Config {
	cfg := appconfig.Default()
	cfg.Data.RawDir = rawDir
	cfg.Data.ArchiveURIs.USDM = appconfig.GranularityURIs{
		Monthly: baseURL + "/futures/um/monthly/klines",
		Daily:   baseURL + "/futures/um/daily/klines",
	}
	cfg.Fetcher.Timeout = 5 * time.Second
	cfg.Fetcher.Retry.MaxAttempts = 1
	cfg.Fetcher.RateLimit = appconfig.RateLimitConfig{RequestsPerSecond: 1000, BurstSize: 1000}
	return &cfg
}

func TestPathsAndURL(t *testing.T) {
	f := New(testConfig("/data/raw", "https://example.test"), model.USDM)
	period := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	if got := f.FileName("btcusdt", model.Monthly, period); got != "BTCUSDT-1m-2020-01" {
		t.Errorf("FileName = %s", got)
	}
	wantPath := filepath.Join("/data/raw", "um", "daily", "BTCUSDT", "BTCUSDT-1m-2020-01-01.csv")
	if got := f.LocalPath("btcusdt", model.Daily, period); got != wantPath {
		t.Errorf("LocalPath = %s, want %s", got, wantPath)
	}
	wantURL := "https://example.test/futures/um/monthly/klines/BTCUSDT/1m/BTCUSDT-1m-2020-01.zip"
	if got := f.RemoteURL("BTCUSDT", model.Monthly, period); got != wantURL {
		t.Errorf("RemoteURL = %s, want %s", got, wantURL)
	}
}

func TestEnsureFetchedDownloadsOnce(t *testing.T) {
	var hits atomic.Int32
	archive := zipBytes(t, "BTCUSDT-1m-2020-01.csv", rawRows)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/futures/um/monthly/klines/BTCUSDT/1m/BTCUSDT-1m-2020-01.zip" {
			http.NotFound(w, r)
			return
		}
		w.Write(archive)
	}))
	defer srv.Close()

	rawDir := t.TempDir()
	f := New(testConfig(rawDir, srv.URL), model.USDM)
	if err := f.Prepare("BTCUSDT"); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	period := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	out := f.EnsureFetched(context.Background(), "BTCUSDT", model.Monthly, period)
	if out.Status != Fetched || out.Err != nil {
		t.Fatalf("first call: %+v", out)
	}
	data, err := os.ReadFile(out.Path)
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if !strings.HasPrefix(string(data), "open_time,open,high,low,close,") {
		t.Errorf("csv not sanitized: %s", data)
	}

	entries, _ := os.ReadDir(filepath.Dir(out.Path))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".zip") {
			t.Errorf("temporary archive left behind: %s", e.Name())
		}
	}

	again := f.EnsureFetched(context.Background(), "BTCUSDT", model.Monthly, period)
	if again.Status != AlreadyPresent {
		t.Fatalf("second call: %+v", again)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected exactly one request, got %d", hits.Load())
	}

	stats := f.Stats()
	if stats.Fetched != 1 || stats.Present != 1 || stats.Bytes != int64(len(archive)) {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestEnsureFetchedNotFoundIsSkipped(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	f := New(testConfig(t.TempDir(), srv.URL), model.USDM)
	if err := f.Prepare("ETHUSDT"); err != nil {
		t.Fatal(err)
	}
	out := f.EnsureFetched(context.Background(), "ETHUSDT", model.Daily, time.Date(2020, 3, 14, 0, 0, 0, 0, time.UTC))
	if out.Status != Skipped || out.Err == nil || out.Usable() {
		t.Fatalf("expected skipped outcome, got %+v", out)
	}
	if _, err := os.Stat(out.Path); !os.IsNotExist(err) {
		t.Errorf("no csv should exist after a skipped fetch")
	}
}

func TestEnsureFetchedCorruptArchiveFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not a zip"))
	}))
	defer srv.Close()

	f := New(testConfig(t.TempDir(), srv.URL), model.USDM)
	if err := f.Prepare("ETHUSDT"); err != nil {
		t.Fatal(err)
	}
	out := f.EnsureFetched(context.Background(), "ETHUSDT", model.Monthly, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	if out.Status != Failed {
		t.Fatalf("expected failed outcome, got %+v", out)
	}
	if _, err := os.Stat(out.Path); !os.IsNotExist(err) {
		t.Errorf("partial csv should be removed")
	}
}

func TestEnsureFetchedEmptyCSVFails(t *testing.T) {
	archive := zipBytes(t, "x.csv", "")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	}))
	defer srv.Close()

	f := New(testConfig(t.TempDir(), srv.URL), model.USDM)
	if err := f.Prepare("ETHUSDT"); err != nil {
		t.Fatal(err)
	}
	out := f.EnsureFetched(context.Background(), "ETHUSDT", model.Monthly, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	if out.Status != Failed {
		t.Fatalf("expected failed outcome, got %+v", out)
	}
}

func TestEnsureFetchedCancelledContext(t *testing.T) {
	f := New(testConfig(t.TempDir(), "http://127.0.0.1:1"), model.USDM)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := f.EnsureFetched(ctx, "BTCUSDT", model.Monthly, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	if out.Status != Skipped {
		t.Fatalf("expected skipped outcome, got %+v", out)
	}
}
