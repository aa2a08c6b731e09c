//go:build integration

package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/liamcoop/fairprice/internal/config"
	"github.com/liamcoop/fairprice/regions"
)

// setupTestDB creates a PostgreSQL testcontainer and runs migrations
func setupTestDB(t *testing.T) (*sql.DB, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": "password",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	postgres, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}

	host, err := postgres.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := postgres.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	connStr := fmt.Sprintf("postgres://postgres:password@%s:%s/testdb?sslmode=disable", host, port.Port())

	db, err := openDatabase(ctx, connStr)
	for i := 0; err != nil && i < 30; i++ {
		time.Sleep(100 * time.Millisecond)
		db, err = openDatabase(ctx, connStr)
	}
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}

	migrationSQL, err := os.ReadFile("../../migrations/000001_initial_schema.up.sql")
	if err != nil {
		t.Fatalf("Failed to read migration file: %v", err)
	}

	if _, err := db.Exec(string(migrationSQL)); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		db.Close()
		postgres.Terminate(ctx)
	}

	return db, cleanup
}

// startServer seeds an empty database the way run does and serves it.
func startServer(t *testing.T, db *sql.DB) string {
	t.Helper()
	ctx := context.Background()

	source, err := regionSource(ctx, config.Config{}, db)
	if err != nil {
		t.Fatalf("Failed to create region source: %v", err)
	}
	manager, err := regions.NewManager(source)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	if err := manager.LoadAll(ctx); err != nil {
		t.Fatalf("Failed to load regions: %v", err)
	}

	srv := httptest.NewServer(NewServer(Deps{
		Regions: manager,
		DB:      db,
		Config:  config.Config{RequestTimeout: 10 * time.Second, ConfidenceThreshold: 0.9},
	}))
	t.Cleanup(srv.Close)
	return srv.URL + "/api/v1"
}

// TestEndToEnd_FareCheckAndUpdate covers the complete workflow:
// 1. Seed the default regions
// 2. Check a taxi fare
// 3. Raise the minimum fare
// 4. Restart and check the fare again
func TestEndToEnd_FareCheckAndUpdate(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	baseURL := startServer(t, db)

	t.Log("Step 1: Checking health...")
	health := makeRequestNoBody(t, "GET", baseURL+"/health")
	checks := health["checks"].(map[string]any)
	if checks["database"] != "ok" {
		t.Errorf("Expected database ok, got %v", checks)
	}

	taxiReq := map[string]any{
		"departure":   map[string]any{"place": "Rabat Ville Train Station"},
		"arrival":     map[string]any{"place": "Hassan Tower"},
		"asked_price": "28",
	}

	t.Log("Step 2: Checking a short fare...")
	resp := makeRequest(t, "POST", baseURL+"/regions/rabat/taxi/evaluate", taxiReq)
	result := resp["result"].(map[string]any)
	if result["verdict"] != "SLIGHTLY_HIGH" {
		t.Errorf("Expected SLIGHTLY_HIGH at the default minimum fare, got %v", result["verdict"])
	}

	t.Log("Step 3: Raising the minimum fare...")
	makeRequest(t, "PUT", baseURL+"/regions/rabat/fare", map[string]any{
		"min_fare":         30,
		"fixed_charge":     8,
		"rate_per_km":      8,
		"night_multiplier": 1.5,
		"high_multiplier":  1.4,
	})

	t.Log("Step 4: Restarting and checking again...")
	baseURL = startServer(t, db)
	resp = makeRequest(t, "POST", baseURL+"/regions/rabat/taxi/evaluate", taxiReq)
	result = resp["result"].(map[string]any)
	if result["verdict"] != "FAIR" {
		t.Errorf("Expected FAIR after the fare update survived a restart, got %v", result["verdict"])
	}
	quote := result["quote"].(map[string]any)
	if quote["fair_price"].(float64) != 30 {
		t.Errorf("Expected fair price 30, got %v", quote["fair_price"])
	}
}

// TestEndToEnd_AdvisoryRule tests that rules added over the API are stored
// in the region and fire after a restart.
func TestEndToEnd_AdvisoryRule(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	baseURL := startServer(t, db)

	t.Log("Adding advisory rule...")
	ruleResp := makeRequest(t, "POST", baseURL+"/regions/casablanca/advisories", map[string]any{
		"name":       "Pricey rug",
		"scope":      "item",
		"expression": `item.name == "Small rug 1x1m" && item.savings > 500.0`,
		"message":    "Rugs this far over the range are rarely worth it. Try another shop.",
	})
	ruleID := ruleResp["id"].(string)

	baseURL = startServer(t, db)

	rulesResp := makeRequestNoBody(t, "GET", baseURL+"/regions/casablanca/advisories")
	if list := rulesResp["rules"].([]any); len(list) != 2 {
		t.Errorf("Expected the seeded rule and the new one, got %v", list)
	}

	t.Log("Evaluating rug price...")
	evalResp := makeRequest(t, "POST", baseURL+"/regions/casablanca/items/evaluate", map[string]any{
		"item_index":  8,
		"asked_price": "2500",
	})
	advisories := evalResp["advisories"].([]any)
	if len(advisories) != 1 || advisories[0].(map[string]any)["rule_id"] != ruleID {
		t.Errorf("Expected the rug advisory, got %v", advisories)
	}

	// other regions do not see the rule
	rabatRules := makeRequestNoBody(t, "GET", baseURL+"/regions/rabat/advisories")
	for _, r := range rabatRules["rules"].([]any) {
		if r.(map[string]any)["id"] == ruleID {
			t.Errorf("Rule leaked into rabat")
		}
	}

	resp, err := makeHTTPRequest("DELETE", baseURL+"/regions/casablanca/advisories/"+ruleID, nil)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", resp.StatusCode)
	}
}

// Helper function to make HTTP requests with JSON body
func makeRequest(t *testing.T, method, url string, body any) map[string]any {
	resp, err := makeHTTPRequest(method, url, body)
	if err != nil {
		t.Fatalf("Failed to make %s request to %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		t.Fatalf("Request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	return result
}

// Helper function to make HTTP requests without body
func makeRequestNoBody(t *testing.T, method, url string) map[string]any {
	return makeRequest(t, method, url, nil)
}

// Helper function to make raw HTTP requests
func makeHTTPRequest(method, url string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBytes)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 5 * time.Second}
	return client.Do(req)
}
