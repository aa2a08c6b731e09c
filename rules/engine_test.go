package rules

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
)

func itemFacts(asked, maxPrice float64, verdict string) ItemFacts {
	return ItemFacts{Name: "Copper lantern", MinPrice: 100, MaxPrice: maxPrice, AskedPrice: asked, Verdict: verdict}
}

func tripFacts(distance float64, night, airport bool) TripFacts {
	return TripFacts{DistanceKm: distance, FairPrice: 50, AskedPrice: 80, Night: night, AirportTrip: airport, Verdict: "OVERPRICED", Savings: 30}
}

func newTestEngine(t *testing.T, rules ...*Rule) *Engine {
	t.Helper()
	ctx := context.Background()
	store := NewInMemoryRuleStore()
	for _, r := range rules {
		if err := store.Add(ctx, r); err != nil {
			t.Fatalf("Failed to add rule: %v", err)
		}
	}
	engine, err := NewEngine(ctx, store)
	if err != nil {
		t.Fatalf("NewEngine() failed: %v", err)
	}
	return engine
}

func TestNewEngine(t *testing.T) {
	engine := newTestEngine(t)
	if err := engine.CompileRule("test-rule", `true`); err != nil {
		t.Errorf("Engine should have a valid CEL environment, got error: %v", err)
	}
}

func TestNewEngineCompilesExistingRules(t *testing.T) {
	engine := newTestEngine(t,
		&Rule{ID: "r1", Name: "Big spend", Scope: ScopeItem, Expression: `item.asked_price > 1000.0`, Message: "m", Active: true},
		&Rule{ID: "r2", Name: "Long ride", Scope: ScopeTaxi, Expression: `trip.distance_km > 20.0`, Message: "m", Active: true},
		&Rule{ID: "r3", Name: "Disabled", Scope: ScopeItem, Expression: `item.name == "x"`, Message: "m", Active: false},
	)

	result, err := engine.Evaluate(context.Background(), "r1", itemFacts(1500, 300, "OVERPRICED").ToMap())
	if err != nil {
		t.Fatalf("Evaluate() failed for pre-compiled rule: %v", err)
	}
	if !result.Matched {
		t.Error("r1 should match an asked price of 1500")
	}

	if _, compiled := engine.programs["r3"]; compiled {
		t.Error("inactive rule should not be compiled at start-up")
	}
}

func TestEvaluateDryRunsInactiveRule(t *testing.T) {
	engine := newTestEngine(t,
		&Rule{ID: "off", Name: "Disabled", Scope: ScopeItem, Expression: `item.verdict == "FAIR"`, Message: "m", Active: false},
	)

	result, err := engine.Evaluate(context.Background(), "off", itemFacts(10, 10, "FAIR").ToMap())
	if err != nil {
		t.Fatalf("Evaluate() failed: %v", err)
	}
	if !result.Matched || result.Error != nil {
		t.Errorf("inactive rule should still evaluate, got %+v", result)
	}
	if _, compiled := engine.programs["off"]; compiled {
		t.Error("a dry run should not activate the rule")
	}

	if _, err := engine.Evaluate(context.Background(), "missing", nil); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("Evaluate() on unknown rule = %v, want ErrRuleNotFound", err)
	}
}

func TestNewEngineRejectsBrokenStoredRule(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryRuleStore()
	_ = store.Add(ctx, &Rule{ID: "bad", Name: "bad", Scope: ScopeItem, Expression: `item.price >`, Message: "m", Active: true})

	if _, err := NewEngine(ctx, store); err == nil {
		t.Fatal("NewEngine() should fail when a stored rule does not compile")
	}
}

func TestCompileRule(t *testing.T) {
	engine := newTestEngine(t)

	tests := []struct {
		name       string
		expression string
		wantErr    bool
	}{
		{"item comparison", `item.asked_price > item.max_price * 2.0`, false},
		{"trip flags", `trip.night && trip.airport_trip`, false},
		{"string match", `item.name.contains("lantern")`, false},
		{"verdict check", `trip.verdict == "OVERPRICED" && trip.savings >= 20.0`, false},
		{"syntax error", `item.asked_price >`, true},
		{"undeclared variable", `bus.fare > 5.0`, true},
		{"dynamic field", `item.asked_price`, false},
		{"string literal", `"always"`, true},
		{"int literal", `42`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := engine.CompileRule("rule-"+tt.name, tt.expression)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidRule) {
					t.Errorf("CompileRule(%q) = %v, want ErrInvalidRule", tt.expression, err)
				}
				return
			}
			if err != nil {
				t.Errorf("CompileRule(%q) unexpected error: %v", tt.expression, err)
			}
		})
	}
}

func TestEvaluateNonBooleanTreatedAsFalse(t *testing.T) {
	engine := newTestEngine(t, &Rule{ID: "sum", Name: "sum", Scope: ScopeItem, Expression: `item.asked_price`, Message: "m", Active: true})

	result, err := engine.Evaluate(context.Background(), "sum", itemFacts(10, 10, "FAIR").ToMap())
	if err != nil {
		t.Fatalf("Evaluate() failed: %v", err)
	}
	if result.Matched {
		t.Error("a non-boolean result should never match")
	}
}

func TestEvaluateMissingField(t *testing.T) {
	engine := newTestEngine(t, &Rule{ID: "r", Name: "r", Scope: ScopeItem, Expression: `item.weight > 1.0`, Message: "m", Active: true})

	result, err := engine.Evaluate(context.Background(), "r", itemFacts(10, 10, "FAIR").ToMap())
	if err != nil {
		t.Fatalf("Evaluate() failed: %v", err)
	}
	if result.Matched || result.Error == nil {
		t.Errorf("failed evaluation should be reported in the result, got %+v", result)
	}
}

func TestEvaluateAllContinuesOnError(t *testing.T) {
	engine := newTestEngine(t,
		&Rule{ID: "good-1", Name: "g1", Scope: ScopeItem, Expression: `item.asked_price > 5.0`, Message: "m", Active: true},
		&Rule{ID: "broken", Name: "b", Scope: ScopeItem, Expression: `item.colour == "red"`, Message: "m", Active: true},
		&Rule{ID: "good-2", Name: "g2", Scope: ScopeItem, Expression: `item.verdict == "FAIR"`, Message: "m", Active: true},
	)

	results, err := engine.EvaluateAll(context.Background(), itemFacts(10, 10, "FAIR").ToMap())
	if err != nil {
		t.Fatalf("EvaluateAll() failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for _, r := range results {
		switch r.RuleID {
		case "broken":
			if r.Error == nil {
				t.Error("broken rule should carry its error")
			}
		default:
			if !r.Matched || r.Error != nil {
				t.Errorf("rule %s should match cleanly, got %+v", r.RuleID, r)
			}
		}
	}
}

func TestAdvise(t *testing.T) {
	engine := newTestEngine(t,
		&Rule{ID: "airport-night", Name: "Night airport", Scope: ScopeTaxi, Expression: `trip.night && trip.airport_trip`, Message: "Agree on the fare before you get in", Active: true},
		&Rule{ID: "long", Name: "Long ride", Scope: ScopeTaxi, Expression: `trip.distance_km > 15.0`, Message: "Ask for the meter", Active: true},
		&Rule{ID: "lantern", Name: "Lantern", Scope: ScopeItem, Expression: `item.name.contains("lantern")`, Message: "Check the weight", Active: true},
		&Rule{ID: "off", Name: "Off", Scope: ScopeTaxi, Expression: `true`, Message: "never", Active: false},
		&Rule{ID: "broken", Name: "Broken", Scope: ScopeTaxi, Expression: `trip.meter == true`, Message: "never", Active: true},
	)
	ctx := context.Background()

	tests := []struct {
		name  string
		scope Scope
		facts Facts
		want  []string
	}{
		{"night airport long ride", ScopeTaxi, tripFacts(20, true, true), []string{"airport-night", "long"}},
		{"short day ride", ScopeTaxi, tripFacts(3, false, false), nil},
		{"airport by day", ScopeTaxi, tripFacts(9, false, true), nil},
		{"item scope ignores taxi rules", ScopeItem, itemFacts(500, 300, "OVERPRICED"), []string{"lantern"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			advisories, err := engine.Advise(ctx, tt.scope, tt.facts)
			if err != nil {
				t.Fatalf("Advise() failed: %v", err)
			}
			var got []string
			for _, a := range advisories {
				got = append(got, a.RuleID)
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("Advise() = %v, want %v", got, tt.want)
			}
		})
	}

	advisories, _ := engine.Advise(ctx, ScopeTaxi, tripFacts(1, true, true))
	if len(advisories) != 1 || advisories[0].Message != "Agree on the fare before you get in" {
		t.Errorf("unexpected advisory payload: %+v", advisories)
	}
}

func TestEngineAddRule(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	rule := &Rule{ID: "new", Name: "New", Scope: ScopeItem, Expression: `item.savings > 100.0`, Message: "Walk away", Active: true}
	if err := engine.AddRule(ctx, rule); err != nil {
		t.Fatalf("AddRule() failed: %v", err)
	}

	advisories, err := engine.Advise(ctx, ScopeItem, ItemFacts{Savings: 150})
	if err != nil {
		t.Fatalf("Advise() failed: %v", err)
	}
	if len(advisories) != 1 {
		t.Errorf("new rule should be visible immediately, got %d advisories", len(advisories))
	}

	if err := engine.AddRule(ctx, rule); !errors.Is(err, ErrRuleExists) {
		t.Errorf("duplicate AddRule() = %v, want ErrRuleExists", err)
	}
}

func TestEngineAddRuleValidation(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	bad := []*Rule{
		{ID: "x", Name: "x", Scope: ScopeItem, Expression: `item.asked_price >`, Message: "m"},
		{ID: "y", Name: "y", Scope: "bus", Expression: `true`, Message: "m"},
		{ID: "z", Name: "z", Scope: ScopeItem, Expression: `true`},
	}
	for _, r := range bad {
		if err := engine.AddRule(ctx, r); !errors.Is(err, ErrInvalidRule) {
			t.Errorf("AddRule(%s) = %v, want ErrInvalidRule", r.ID, err)
		}
		if _, err := engine.Rule(ctx, r.ID); !errors.Is(err, ErrRuleNotFound) {
			t.Errorf("invalid rule %s should not be stored", r.ID)
		}
	}
}

type failingStore struct {
	*InMemoryRuleStore
}

func (failingStore) Add(context.Context, *Rule) error {
	return errors.New("disk full")
}

func TestEngineAddRuleAtomicity(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(ctx, failingStore{NewInMemoryRuleStore()})
	if err != nil {
		t.Fatalf("NewEngine() failed: %v", err)
	}

	rule := &Rule{ID: "r", Name: "r", Scope: ScopeItem, Expression: `true`, Message: "m", Active: true}
	if err := engine.AddRule(ctx, rule); err == nil {
		t.Fatal("AddRule() should surface the store error")
	}

	engine.mu.RLock()
	_, compiled := engine.programs["r"]
	engine.mu.RUnlock()
	if compiled {
		t.Error("program should be removed when the store rejects the rule")
	}
}

func TestEngineUpdateRule(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, &Rule{ID: "r", Name: "r", Scope: ScopeItem, Expression: `item.asked_price > 100.0`, Message: "m", Active: true})

	facts := itemFacts(50, 100, "FAIR")
	if got, _ := engine.Advise(ctx, ScopeItem, facts); len(got) != 0 {
		t.Fatalf("rule should not match before update")
	}

	updated := &Rule{ID: "r", Name: "r", Scope: ScopeItem, Expression: `item.asked_price > 10.0`, Message: "m2", Active: true}
	if err := engine.UpdateRule(ctx, updated); err != nil {
		t.Fatalf("UpdateRule() failed: %v", err)
	}

	got, _ := engine.Advise(ctx, ScopeItem, facts)
	if len(got) != 1 || got[0].Message != "m2" {
		t.Errorf("updated rule should match with new message, got %+v", got)
	}
}

func TestEngineUpdateRuleValidation(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, &Rule{ID: "r", Name: "r", Scope: ScopeItem, Expression: `item.asked_price > 10.0`, Message: "m", Active: true})

	err := engine.UpdateRule(ctx, &Rule{ID: "r", Name: "r", Scope: ScopeItem, Expression: `item.asked_price >`, Message: "m", Active: true})
	if !errors.Is(err, ErrInvalidRule) {
		t.Fatalf("UpdateRule() = %v, want ErrInvalidRule", err)
	}

	got, _ := engine.Advise(ctx, ScopeItem, itemFacts(50, 100, "FAIR"))
	if len(got) != 1 {
		t.Error("old program should keep working after a rejected update")
	}

	err = engine.UpdateRule(ctx, &Rule{ID: "ghost", Name: "g", Scope: ScopeItem, Expression: `true`, Message: "m"})
	if !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("UpdateRule(ghost) = %v, want ErrRuleNotFound", err)
	}
}

func TestEngineDeactivateRule(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, &Rule{ID: "r", Name: "r", Scope: ScopeTaxi, Expression: `true`, Message: "m", Active: true})

	if err := engine.UpdateRule(ctx, &Rule{ID: "r", Name: "r", Scope: ScopeTaxi, Expression: `true`, Message: "m", Active: false}); err != nil {
		t.Fatalf("UpdateRule() failed: %v", err)
	}
	if got, _ := engine.Advise(ctx, ScopeTaxi, tripFacts(1, false, false)); len(got) != 0 {
		t.Errorf("inactive rule should not advise, got %+v", got)
	}
	all, _ := engine.Rules(ctx)
	if len(all) != 1 {
		t.Errorf("Rules() should still list inactive rules, got %d", len(all))
	}
}

func TestEngineDeleteRule(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, &Rule{ID: "r", Name: "r", Scope: ScopeTaxi, Expression: `true`, Message: "m", Active: true})

	if err := engine.DeleteRule(ctx, "r"); err != nil {
		t.Fatalf("DeleteRule() failed: %v", err)
	}
	if got, _ := engine.Advise(ctx, ScopeTaxi, tripFacts(1, false, false)); len(got) != 0 {
		t.Errorf("deleted rule should not advise, got %+v", got)
	}
	if err := engine.DeleteRule(ctx, "r"); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("second DeleteRule() = %v, want ErrRuleNotFound", err)
	}
}

func TestEngineConcurrentAdviseAndWrite(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, &Rule{ID: "base", Name: "base", Scope: ScopeTaxi, Expression: `trip.night`, Message: "m", Active: true})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if _, err := engine.Advise(ctx, ScopeTaxi, tripFacts(float64(j), true, false)); err != nil {
					t.Errorf("Advise() failed: %v", err)
				}
			}
		}(i)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("rule-%d", i)
			if err := engine.AddRule(ctx, &Rule{ID: id, Name: id, Scope: ScopeTaxi, Expression: `trip.distance_km > 10.0`, Message: "m", Active: true}); err != nil {
				t.Errorf("AddRule() failed: %v", err)
			}
			if err := engine.DeleteRule(ctx, id); err != nil {
				t.Errorf("DeleteRule() failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	all, _ := engine.Rules(ctx)
	if len(all) != 1 {
		t.Errorf("expected only the base rule to remain, got %d", len(all))
	}
}
