package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bobmcallan/elida-portal/internal/common"
	"github.com/bobmcallan/elida-portal/internal/config"
	"github.com/bobmcallan/elida-portal/internal/models"
	"github.com/bobmcallan/elida-portal/internal/portfolio"
)

func testConfig(t *testing.T, backendURL string) *config.Config {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.API.URL = backendURL
	cfg.Storage.Badger.Path = t.TempDir()
	cfg.Scan.PollInterval = "10ms"
	return cfg
}

func TestNew_WiresEverything(t *testing.T) {
	a, err := New(testConfig(t, "http://127.0.0.1:1"), common.NewSilentLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Close()

	if a.Storage == nil || a.Sessions == nil || a.Client == nil || a.Portfolio == nil || a.Scans == nil || a.Market == nil {
		t.Fatal("expected all services to be initialized")
	}
	if a.HealthHandler == nil || a.ScanHandler == nil || a.DashboardHandler == nil || a.MCPHandler == nil {
		t.Fatal("expected handlers to be initialized")
	}
	if a.Client.BaseURL() != "http://127.0.0.1:1" {
		t.Errorf("expected client to use the configured backend, got %s", a.Client.BaseURL())
	}
}

func TestNew_NilLogger(t *testing.T) {
	a, err := New(testConfig(t, "http://127.0.0.1:1"), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Close()
	if a.Logger == nil {
		t.Error("expected a silent logger")
	}
}

func TestStartBackground_ResumesStoredScan(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/portfolio/status/") {
			w.Write([]byte(`{"status":"running","progress":40}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer backend.Close()

	a, err := New(testConfig(t, backend.URL), common.NewSilentLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Close()

	ctx := context.Background()
	req := &models.ScanRequest{RequestID: "req-7", Tickers: []string{"AAPL"}, StartedAt: time.Now().UTC()}
	if err := a.Storage.ScanStorage().SaveScanRequest(ctx, req); err != nil {
		t.Fatalf("SaveScanRequest failed: %v", err)
	}

	if err := a.StartBackground(ctx); err != nil {
		t.Fatalf("StartBackground failed: %v", err)
	}
	task := a.Scans.Current()
	if task == nil || task.RequestID() != "req-7" {
		t.Fatalf("expected stored scan to be resumed, got %+v", task)
	}
}

func TestStartBackground_InvalidSchedule(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Scan.Schedule = "every now and then"

	a, err := New(cfg, common.NewSilentLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Close()

	if err := a.StartBackground(context.Background()); err == nil {
		t.Error("expected an error for an invalid schedule")
	}
}

func TestScheduledScan_NotSignedIn(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Scan.Schedule = "@every 1h"

	a, err := New(cfg, common.NewSilentLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Close()

	if err := a.StartBackground(context.Background()); err != nil {
		t.Fatalf("StartBackground failed: %v", err)
	}
	if len(a.cron.Entries()) != 1 {
		t.Fatalf("expected one scheduled entry, got %d", len(a.cron.Entries()))
	}

	// Empty portfolio: nothing to start.
	a.scheduledScan()
	if a.Scans.Current() != nil {
		t.Error("expected no scan for an empty portfolio")
	}

	if _, err := a.Portfolio.Add(context.Background(), portfolio.AddInput{Ticker: "AAPL"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	a.scheduledScan()
	if a.Scans.Current() != nil {
		t.Error("expected no scan without a session")
	}
}

func TestClose_Idempotent(t *testing.T) {
	a, err := New(testConfig(t, "http://127.0.0.1:1"), common.NewSilentLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := a.StartBackground(context.Background()); err != nil {
		t.Fatalf("StartBackground failed: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}
