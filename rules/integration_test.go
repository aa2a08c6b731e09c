//go:build integration
// +build integration

package rules_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/liamcoop/fairprice/rules"

	_ "github.com/lib/pq"
)

// setupTestDB starts PostgreSQL, applies the schema and returns a connection.
func setupTestDB(t *testing.T) (*sql.DB, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "fairprice_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	connStr := fmt.Sprintf("host=%s port=%s user=test password=test dbname=fairprice_test sslmode=disable", host, port.Port())

	var db *sql.DB
	for i := 0; i < 30; i++ {
		db, err = sql.Open("postgres", connStr)
		if err == nil {
			if err = db.Ping(); err == nil {
				break
			}
		}
		time.Sleep(time.Second)
	}
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	migrationSQL, err := os.ReadFile(filepath.Join("..", "migrations", "000001_initial_schema.up.sql"))
	if err != nil {
		t.Fatalf("Failed to read migration file: %v", err)
	}
	if _, err := db.Exec(string(migrationSQL)); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return db, func() {
		db.Close()
		container.Terminate(ctx)
	}
}

func createRegion(t *testing.T, db *sql.DB, id string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO regions (id, name, profile) VALUES ($1, $1, '{}'::jsonb)`, id)
	if err != nil {
		t.Fatalf("Failed to create region: %v", err)
	}
}

func newRule(scope rules.Scope, expr string) *rules.Rule {
	id := uuid.NewString()
	return &rules.Rule{ID: id, Name: "rule " + id[:8], Scope: scope, Expression: expr, Message: "advice", Active: true}
}

func TestPostgresRuleStore(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	createRegion(t, db, "rabat")
	createRegion(t, db, "casablanca")

	rabat := rules.NewPostgresRuleStore(db, "rabat")
	casa := rules.NewPostgresRuleStore(db, "casablanca")

	t.Run("crud", func(t *testing.T) {
		r := newRule(rules.ScopeTaxi, `trip.night`)
		if err := rabat.Add(ctx, r); err != nil {
			t.Fatalf("Add() failed: %v", err)
		}
		if err := rabat.Add(ctx, r); !errors.Is(err, rules.ErrRuleExists) {
			t.Errorf("duplicate Add() = %v, want ErrRuleExists", err)
		}

		got, err := rabat.Get(ctx, r.ID)
		if err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
		if got.Scope != rules.ScopeTaxi || got.Expression != `trip.night` {
			t.Errorf("unexpected rule: %+v", got)
		}

		r.Active = false
		r.Message = "changed"
		if err := rabat.Update(ctx, r); err != nil {
			t.Fatalf("Update() failed: %v", err)
		}
		got, _ = rabat.Get(ctx, r.ID)
		if got.Active || got.Message != "changed" {
			t.Errorf("update not persisted: %+v", got)
		}

		if err := rabat.Delete(ctx, r.ID); err != nil {
			t.Fatalf("Delete() failed: %v", err)
		}
		if _, err := rabat.Get(ctx, r.ID); !errors.Is(err, rules.ErrRuleNotFound) {
			t.Errorf("Get() after delete = %v, want ErrRuleNotFound", err)
		}
		if err := rabat.Delete(ctx, r.ID); !errors.Is(err, rules.ErrRuleNotFound) {
			t.Errorf("second Delete() = %v, want ErrRuleNotFound", err)
		}
		if err := rabat.Update(ctx, r); !errors.Is(err, rules.ErrRuleNotFound) {
			t.Errorf("Update() after delete = %v, want ErrRuleNotFound", err)
		}
	})

	t.Run("region isolation", func(t *testing.T) {
		r := newRule(rules.ScopeItem, `item.savings > 50.0`)
		if err := rabat.Add(ctx, r); err != nil {
			t.Fatalf("Add() failed: %v", err)
		}
		if _, err := casa.Get(ctx, r.ID); !errors.Is(err, rules.ErrRuleNotFound) {
			t.Errorf("rule leaked across regions: %v", err)
		}
		list, _ := casa.ListActive(ctx)
		if len(list) != 0 {
			t.Errorf("casablanca should have no rules, got %d", len(list))
		}
	})

	t.Run("ordering", func(t *testing.T) {
		store := rules.NewPostgresRuleStore(db, "casablanca")
		var want []string
		for i := 0; i < 3; i++ {
			r := newRule(rules.ScopeTaxi, `true`)
			if err := store.Add(ctx, r); err != nil {
				t.Fatalf("Add() failed: %v", err)
			}
			want = append(want, r.ID)
			time.Sleep(10 * time.Millisecond)
		}
		list, err := store.ListActive(ctx)
		if err != nil {
			t.Fatalf("ListActive() failed: %v", err)
		}
		for i, r := range list {
			if r.ID != want[i] {
				t.Fatalf("rule %d = %s, want %s", i, r.ID, want[i])
			}
		}
	})

	t.Run("engine over postgres", func(t *testing.T) {
		createRegion(t, db, "fes")
		store := rules.NewPostgresRuleStore(db, "fes")
		engine, err := rules.NewEngine(ctx, store)
		if err != nil {
			t.Fatalf("NewEngine() failed: %v", err)
		}

		r := newRule(rules.ScopeTaxi, `trip.airport_trip`)
		if err := engine.AddRule(ctx, r); err != nil {
			t.Fatalf("AddRule() failed: %v", err)
		}

		reloaded, err := rules.NewEngine(ctx, store)
		if err != nil {
			t.Fatalf("reloading engine failed: %v", err)
		}
		got, err := reloaded.Advise(ctx, rules.ScopeTaxi, rules.TripFacts{AirportTrip: true})
		if err != nil {
			t.Fatalf("Advise() failed: %v", err)
		}
		if len(got) != 1 || got[0].RuleID != r.ID {
			t.Errorf("Advise() = %+v, want rule %s", got, r.ID)
		}
	})

	t.Run("cascade on region delete", func(t *testing.T) {
		if _, err := db.Exec(`DELETE FROM regions WHERE id = 'rabat'`); err != nil {
			t.Fatalf("delete region failed: %v", err)
		}
		list, _ := rabat.List(ctx)
		if len(list) != 0 {
			t.Errorf("rules should cascade with their region, %d left", len(list))
		}
	})
}
