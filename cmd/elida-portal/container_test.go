package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startPortalContainer builds docker/Dockerfile and runs the daemon with an
// unreachable backend. Needs a Docker daemon, so it only runs when
// ELIDA_CONTAINER_TESTS is set.
func startPortalContainer(t *testing.T) string {
	t.Helper()
	if os.Getenv("ELIDA_CONTAINER_TESTS") == "" {
		t.Skip("set ELIDA_CONTAINER_TESTS=1 to run container tests")
	}
	if testing.Short() {
		t.Skip("container tests are slow")
	}

	root, err := filepath.Abs(filepath.Join("..", ".."))
	if err != nil {
		t.Fatalf("failed to resolve project root: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	req := testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			FromDockerfile: testcontainers.FromDockerfile{
				Context:    root,
				Dockerfile: "docker/Dockerfile",
				Repo:       "elida-portal",
				Tag:        "test",
				KeepImage:  true,
			},
			ExposedPorts: []string{"4251/tcp"},
			Env: map[string]string{
				"ELIDA_API_URL":   "http://127.0.0.1:1",
				"ELIDA_LOG_LEVEL": "debug",
			},
			WaitingFor: wait.ForHTTP("/api/health").
				WithPort("4251/tcp").
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	}

	c, err := testcontainers.GenericContainer(ctx, req)
	if err != nil {
		t.Fatalf("failed to start portal container: %v", err)
	}
	t.Cleanup(func() {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cleanupCancel()
		if t.Failed() {
			if logs, err := containerLogs(cleanupCtx, c); err == nil {
				t.Logf("portal logs:\n%s", logs)
			}
		}
		if err := c.Terminate(cleanupCtx); err != nil {
			t.Errorf("failed to terminate portal container: %v", err)
		}
	})

	url, err := c.PortEndpoint(ctx, "4251/tcp", "http")
	if err != nil {
		t.Fatalf("failed to resolve portal endpoint: %v", err)
	}
	return url
}

// containerLogs returns everything the container wrote so far.
func containerLogs(ctx context.Context, c testcontainers.Container) (string, error) {
	logs, err := c.Logs(ctx)
	if err != nil {
		return "", err
	}
	defer logs.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(logs); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func TestContainer_HealthAndPortfolio(t *testing.T) {
	url := startPortalContainer(t)
	client := &http.Client{Timeout: 10 * time.Second}

	resp, err := client.Get(url + "/api/version")
	if err != nil {
		t.Fatalf("version request failed: %v", err)
	}
	var version map[string]string
	json.NewDecoder(resp.Body).Decode(&version)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || version["version"] == "" {
		t.Fatalf("unexpected version response %d %v", resp.StatusCode, version)
	}

	resp, err = client.Post(url+"/api/portfolio", "application/json", strings.NewReader(`{"ticker":"aapl"}`))
	if err != nil {
		t.Fatalf("add request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 adding a ticker, got %d", resp.StatusCode)
	}

	resp, err = client.Get(url + "/api/portfolio")
	if err != nil {
		t.Fatalf("list request failed: %v", err)
	}
	var list struct {
		Entries []map[string]any `json:"entries"`
	}
	json.NewDecoder(resp.Body).Decode(&list)
	resp.Body.Close()
	if len(list.Entries) != 1 || list.Entries[0]["ticker"] != "AAPL" {
		t.Errorf("unexpected portfolio %v", list.Entries)
	}

	resp, err = client.Get(url + "/api/server-health")
	if err != nil {
		t.Fatalf("server-health request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503 for the unreachable backend, got %d", resp.StatusCode)
	}
}
