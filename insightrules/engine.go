package insightrules

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// Engine holds a CEL environment and the compiled programs for a
// workspace's rules. Safe for concurrent evaluation; compilation takes the
// write lock.
type Engine struct {
	env      *cel.Env
	store    RuleStore
	programs map[string]cel.Program // ruleID -> compiled program
	mu       sync.RWMutex
}

// NewEngine creates an engine with the default metric environment: a
// single dynamic Metrics object, matching the fact map the service builds
// from a run.
func NewEngine(store RuleStore) (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("Metrics", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return NewEngineWithEnv(env, store)
}

// NewEngineWithEnv creates an engine with a custom environment, used by
// workspaces carrying their own metric schema.
func NewEngineWithEnv(env *cel.Env, store RuleStore) (*Engine, error) {
	en := &Engine{
		env:      env,
		store:    store,
		programs: make(map[string]cel.Program),
	}

	if err := en.CompileAllRules(); err != nil {
		return nil, fmt.Errorf("failed to compile rules: %w", err)
	}

	return en, nil
}

// CompileRule compiles a single rule expression. A cost limit keeps a
// pathological expression from consuming the evaluation thread.
func (en *Engine) CompileRule(ruleID, expression string) error {
	ast, issues := en.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("compile error: %w", issues.Err())
	}

	prog, err := en.env.Program(ast,
		cel.EvalOptions(cel.OptTrackState),
		cel.CostLimit(1000000),
	)
	if err != nil {
		return fmt.Errorf("program creation error: %w", err)
	}

	en.mu.Lock()
	en.programs[ruleID] = prog
	en.mu.Unlock()

	return nil
}

// CompileAllRules compiles every active rule in the store.
func (en *Engine) CompileAllRules() error {
	rules, err := en.store.ListActive()
	if err != nil {
		return err
	}

	for _, rule := range rules {
		if err := en.CompileRule(rule.ID, rule.Expression); err != nil {
			return fmt.Errorf("failed to compile rule %s: %w", rule.ID, err)
		}
	}

	return nil
}

// AddRule validates that the rule compiles, then stores it. If the store
// rejects it, the compiled program is discarded to keep the two in sync.
func (en *Engine) AddRule(r *Rule) error {
	if _, err := en.store.Get(r.ID); err == nil {
		return fmt.Errorf("rule with ID %s already exists", r.ID)
	}

	if err := en.CompileRule(r.ID, r.Expression); err != nil {
		return fmt.Errorf("rule validation failed: %w", err)
	}

	if err := en.store.Add(r); err != nil {
		en.mu.Lock()
		delete(en.programs, r.ID)
		en.mu.Unlock()
		return err
	}

	return nil
}

// UpdateRule recompiles and updates an existing rule.
func (en *Engine) UpdateRule(r *Rule) error {
	if err := en.CompileRule(r.ID, r.Expression); err != nil {
		return fmt.Errorf("rule validation failed: %w", err)
	}

	return en.store.Update(r)
}

// DeleteRule removes a rule from the store and the compiled set.
func (en *Engine) DeleteRule(ruleID string) error {
	if err := en.store.Delete(ruleID); err != nil {
		return err
	}

	en.mu.Lock()
	delete(en.programs, ruleID)
	en.mu.Unlock()

	return nil
}

// EvaluateAll runs every active rule against the metric facts. Evaluation
// errors are captured per rule; one broken rule never blocks the rest.
// Non-boolean results count as no match.
func (en *Engine) EvaluateAll(facts map[string]any) ([]*RuleHit, error) {
	rules, err := en.store.ListActive()
	if err != nil {
		return nil, err
	}

	hits := make([]*RuleHit, 0, len(rules))
	for _, rule := range rules {
		en.mu.RLock()
		prog, exists := en.programs[rule.ID]
		en.mu.RUnlock()

		if !exists {
			hits = append(hits, &RuleHit{
				RuleID:   rule.ID,
				RuleName: rule.Name,
				Error:    fmt.Errorf("rule %s is not compiled", rule.ID),
			})
			continue
		}

		out, _, err := prog.Eval(facts)
		if err != nil {
			hits = append(hits, &RuleHit{
				RuleID:   rule.ID,
				RuleName: rule.Name,
				Error:    err,
			})
			continue
		}

		matched := false
		if boolVal, ok := out.Value().(bool); ok {
			matched = boolVal
		}

		hit := &RuleHit{
			RuleID:   rule.ID,
			RuleName: rule.Name,
			Matched:  matched,
		}
		if matched {
			hit.Message = rule.Message
			hit.Impact = rule.Impact
		}
		hits = append(hits, hit)
	}

	return hits, nil
}
