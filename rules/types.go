// Package rules evaluates operator-defined advisories with CEL. An advisory
// rule runs after a price verdict and, when its expression is true, adds its
// message to the response. Rules never change a verdict.
package rules

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrRuleNotFound = errors.New("advisory rule not found")
	ErrRuleExists   = errors.New("advisory rule already exists")
	ErrInvalidRule  = errors.New("invalid advisory rule")
)

// Scope selects which check a rule applies to and which CEL variable it sees.
type Scope string

const (
	ScopeItem Scope = "item"
	ScopeTaxi Scope = "taxi"
)

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	return s == ScopeItem || s == ScopeTaxi
}

// Rule is a single advisory.
type Rule struct {
	ID         string    `json:"id" yaml:"id"`
	Name       string    `json:"name" yaml:"name"`
	Scope      Scope     `json:"scope" yaml:"scope"`
	Expression string    `json:"expression" yaml:"expression"`
	Message    string    `json:"message" yaml:"message"`
	Active     bool      `json:"active" yaml:"active"`
	CreatedAt  time.Time `json:"created_at" yaml:"-"`
	UpdatedAt  time.Time `json:"updated_at" yaml:"-"`
}

// Validate checks the fields that do not need a CEL environment.
func (r *Rule) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidRule)
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRule)
	}
	if !r.Scope.Valid() {
		return fmt.Errorf("%w: unknown scope %q", ErrInvalidRule, r.Scope)
	}
	if strings.TrimSpace(r.Expression) == "" {
		return fmt.Errorf("%w: expression is required", ErrInvalidRule)
	}
	if strings.TrimSpace(r.Message) == "" {
		return fmt.Errorf("%w: message is required", ErrInvalidRule)
	}
	return nil
}

// EvaluationResult is the outcome of one rule against one set of facts.
type EvaluationResult struct {
	RuleID   string
	RuleName string
	Matched  bool
	Error    error
}

// Advisory is a matched rule as shown to the user.
type Advisory struct {
	RuleID  string `json:"rule_id"`
	Name    string `json:"name"`
	Message string `json:"message"`
}
