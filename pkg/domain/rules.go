package domain

import "context"

// Rule defines an evaluation executed at the commit boundary of a transaction.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, view ModelView, changes []Change) (Result, error)
}

// RulesEngine orchestrates rule evaluation.
type RulesEngine struct {
	rules []Rule
}

// NewRulesEngine constructs an engine instance.
func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// NewDefaultRulesEngine returns an engine with the structural commit rules registered.
func NewDefaultRulesEngine() *RulesEngine {
	e := NewRulesEngine()
	e.Register(NewArityRule())
	e.Register(NewTopGateRule())
	return e
}

// Register appends a rule to the engine.
func (e *RulesEngine) Register(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Rules returns the registered rule names.
func (e *RulesEngine) Rules() []string {
	names := make([]string, 0, len(e.rules))
	for _, r := range e.rules {
		names = append(names, r.Name())
	}
	return names
}

// Evaluate executes all registered rules and aggregates their results.
func (e *RulesEngine) Evaluate(ctx context.Context, view ModelView, changes []Change) (Result, error) {
	var combined Result
	for _, rule := range e.rules {
		res, err := rule.Evaluate(ctx, view, changes)
		if err != nil {
			return Result{}, err
		}
		combined.Merge(res)
	}
	return combined, nil
}

// NewArityRule returns the commit-time rule enforcing connective arity on
// every gate whose formula was created or modified by the transaction.
func NewArityRule() Rule { return arityRule{} }

type arityRule struct{}

func (arityRule) Name() string { return "connective_arity" }

func (arityRule) Evaluate(_ context.Context, view ModelView, changes []Change) (Result, error) {
	res := Result{}
	for _, name := range touchedEvents(changes) {
		ev, ok := view.FindEvent(name)
		if !ok || !ev.IsGate() {
			continue
		}
		if err := CheckArity(ev.Name, ev.Gate.Formula); err != nil {
			res.Violations = append(res.Violations, Violation{
				Rule:     "connective_arity",
				Severity: SeverityBlock,
				Message:  err.Error(),
				Entity:   EntityEvent,
				Name:     ev.Name,
				Err:      err,
			})
		}
	}
	return res, nil
}

// NewTopGateRule returns the commit-time rule requiring every touched,
// non-empty fault tree to keep a root gate that is one of its members.
func NewTopGateRule() Rule { return topGateRule{} }

type topGateRule struct{}

func (topGateRule) Name() string { return "fault_tree_top_gate" }

func (topGateRule) Evaluate(_ context.Context, view ModelView, changes []Change) (Result, error) {
	res := Result{}
	seen := make(map[string]struct{})
	for _, c := range changes {
		var tree string
		switch c.Entity {
		case EntityFaultTree:
			tree = c.Name
		case EntityEvent:
			if ev, ok := view.FindEvent(c.Name); ok {
				tree = ev.Container
			}
		}
		if tree == "" {
			continue
		}
		if _, ok := seen[tree]; ok {
			continue
		}
		seen[tree] = struct{}{}
		ft, ok := view.FindFaultTree(tree)
		if !ok || len(ft.Members) == 0 {
			continue
		}
		root, ok := view.FindEvent(ft.Root)
		if ft.Root == "" || !ok || !root.IsGate() || root.Container != ft.Name {
			err := TopGateError(ft.Name)
			res.Violations = append(res.Violations, Violation{
				Rule:     "fault_tree_top_gate",
				Severity: SeverityBlock,
				Message:  err.Error(),
				Entity:   EntityFaultTree,
				Name:     ft.Name,
				Err:      err,
			})
		}
	}
	return res, nil
}

func touchedEvents(changes []Change) []string {
	seen := make(map[string]struct{}, len(changes))
	out := make([]string, 0, len(changes))
	for _, c := range changes {
		if c.Entity != EntityEvent || c.Action == ActionDelete {
			continue
		}
		if _, ok := seen[c.Name]; ok {
			continue
		}
		seen[c.Name] = struct{}{}
		out = append(out, c.Name)
	}
	return out
}
