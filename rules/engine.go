package rules

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/liamcoop/fairprice/internal/logger"
)

// costLimit bounds the work a single expression may do.
const costLimit = 1000000

// NewEnv returns the CEL environment shared by all regions.
func NewEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("item", cel.DynType),
		cel.Variable("trip", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

// Engine compiles and evaluates the advisory rules of one region.
type Engine struct {
	env      *cel.Env
	store    RuleStore
	cache    RulesCache
	programs map[string]cel.Program
	mu       sync.RWMutex
}

// NewEngine creates an engine with the default environment and compiles
// every active rule in store.
func NewEngine(ctx context.Context, store RuleStore) (*Engine, error) {
	env, err := NewEnv()
	if err != nil {
		return nil, err
	}
	return NewEngineWithEnv(ctx, env, store)
}

// NewEngineWithEnv lets regions share one environment.
func NewEngineWithEnv(ctx context.Context, env *cel.Env, store RuleStore) (*Engine, error) {
	en := &Engine{
		env:      env,
		store:    store,
		cache:    NewInMemoryRulesCache(DefaultCacheConfig()),
		programs: make(map[string]cel.Program),
	}

	if err := en.CompileAllRules(ctx); err != nil {
		return nil, fmt.Errorf("failed to compile rules: %w", err)
	}
	return en, nil
}

// Compile type-checks expression without storing anything. Expressions must
// produce a bool (or dyn, checked at evaluation time).
func (en *Engine) Compile(expression string) (cel.Program, error) {
	ast, issues := en.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: compile error: %v", ErrInvalidRule, issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("%w: expression must be boolean, got %s", ErrInvalidRule, out)
	}

	prog, err := en.env.Program(ast, cel.CostLimit(costLimit))
	if err != nil {
		return nil, fmt.Errorf("%w: program creation error: %v", ErrInvalidRule, err)
	}
	return prog, nil
}

// CompileRule compiles expression and caches the program under ruleID.
func (en *Engine) CompileRule(ruleID, expression string) error {
	prog, err := en.Compile(expression)
	if err != nil {
		return err
	}

	en.mu.Lock()
	en.programs[ruleID] = prog
	en.mu.Unlock()
	return nil
}

// CompileAllRules compiles the active rules and primes the cache.
func (en *Engine) CompileAllRules(ctx context.Context) error {
	rules, err := en.store.ListActive(ctx)
	if err != nil {
		return err
	}

	for _, rule := range rules {
		if err := en.CompileRule(rule.ID, rule.Expression); err != nil {
			return fmt.Errorf("rule %s: %w", rule.ID, err)
		}
	}

	en.cache.Set(rules)
	return nil
}

// Rules lists every rule of the region, including inactive ones.
func (en *Engine) Rules(ctx context.Context) ([]*Rule, error) {
	return en.store.List(ctx)
}

// Rule returns one rule.
func (en *Engine) Rule(ctx context.Context, id string) (*Rule, error) {
	return en.store.Get(ctx, id)
}

// AddRule validates and compiles r before storing it. The compiled program
// is dropped again if the store rejects the rule.
func (en *Engine) AddRule(ctx context.Context, r *Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if _, err := en.store.Get(ctx, r.ID); err == nil {
		return fmt.Errorf("%w: %s", ErrRuleExists, r.ID)
	}

	if err := en.CompileRule(r.ID, r.Expression); err != nil {
		return err
	}

	if err := en.store.Add(ctx, r); err != nil {
		en.mu.Lock()
		delete(en.programs, r.ID)
		en.mu.Unlock()
		return err
	}

	en.cache.Invalidate()
	return nil
}

// UpdateRule recompiles and replaces a rule. An invalid expression leaves the
// stored rule and its program untouched.
func (en *Engine) UpdateRule(ctx context.Context, r *Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if _, err := en.store.Get(ctx, r.ID); err != nil {
		return err
	}

	prog, err := en.Compile(r.Expression)
	if err != nil {
		return err
	}

	if err := en.store.Update(ctx, r); err != nil {
		return err
	}

	en.mu.Lock()
	en.programs[r.ID] = prog
	en.mu.Unlock()

	en.cache.Invalidate()
	return nil
}

// DeleteRule removes a rule and its program.
func (en *Engine) DeleteRule(ctx context.Context, ruleID string) error {
	if err := en.store.Delete(ctx, ruleID); err != nil {
		return err
	}

	en.mu.Lock()
	delete(en.programs, ruleID)
	en.mu.Unlock()

	en.cache.Invalidate()
	return nil
}

// Evaluate dry-runs one rule against facts, active or not. A failing
// expression is reported in the result; err is only set when the rule cannot
// be found or compiled.
func (en *Engine) Evaluate(ctx context.Context, ruleID string, facts map[string]any) (*EvaluationResult, error) {
	rule, err := en.store.Get(ctx, ruleID)
	if err != nil {
		return nil, err
	}

	en.mu.RLock()
	prog, ok := en.programs[rule.ID]
	en.mu.RUnlock()
	if !ok {
		// inactive rules are not compiled at start-up
		if prog, err = en.Compile(rule.Expression); err != nil {
			return nil, err
		}
	}
	return evaluate(rule, prog, facts), nil
}

// EvaluateAll runs every active rule. A failing rule is reported in its
// result and does not stop the others.
func (en *Engine) EvaluateAll(ctx context.Context, facts map[string]any) ([]*EvaluationResult, error) {
	rules, err := en.activeRules(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]*EvaluationResult, 0, len(rules))
	for _, rule := range rules {
		results = append(results, en.run(rule, facts))
	}
	return results, nil
}

// Advise returns the messages of the active rules of scope that match facts,
// in creation order. Rules that fail to evaluate are logged and skipped.
func (en *Engine) Advise(ctx context.Context, scope Scope, facts Facts) ([]Advisory, error) {
	rules, err := en.activeRules(ctx)
	if err != nil {
		return nil, err
	}

	input := facts.ToMap()
	advisories := []Advisory{}
	for _, rule := range rules {
		if rule.Scope != scope {
			continue
		}
		res := en.run(rule, input)
		if res.Error != nil {
			logger.WarnContext(ctx, "advisory rule failed", "rule_id", rule.ID, "error", res.Error)
			continue
		}
		if res.Matched {
			advisories = append(advisories, Advisory{RuleID: rule.ID, Name: rule.Name, Message: rule.Message})
		}
	}
	return advisories, nil
}

func (en *Engine) activeRules(ctx context.Context) ([]*Rule, error) {
	if rules := en.cache.Get(); rules != nil {
		return rules, nil
	}

	rules, err := en.store.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	en.cache.Set(rules)
	return rules, nil
}

func (en *Engine) run(rule *Rule, facts map[string]any) *EvaluationResult {
	en.mu.RLock()
	prog, exists := en.programs[rule.ID]
	en.mu.RUnlock()

	if !exists {
		return &EvaluationResult{RuleID: rule.ID, RuleName: rule.Name, Error: fmt.Errorf("rule %s is not compiled", rule.ID)}
	}
	return evaluate(rule, prog, facts)
}

func evaluate(rule *Rule, prog cel.Program, facts map[string]any) *EvaluationResult {
	res := &EvaluationResult{RuleID: rule.ID, RuleName: rule.Name}
	out, _, err := prog.Eval(facts)
	if err != nil {
		res.Error = err
		return res
	}
	if b, ok := out.Value().(bool); ok {
		res.Matched = b
	}
	return res
}
