// Package domain defines the fault-tree model value types, the structural
// validator and the rule evaluation primitives used by faultcore.
package domain

import (
	"fmt"
	"strconv"
)

// EventKind discriminates the event variants held in the model registry.
type EventKind string

// Supported event kinds.
const (
	KindHouseEvent EventKind = "house-event"
	KindBasicEvent EventKind = "basic-event"
	KindGate       EventKind = "gate"
)

// Flavor distinguishes ordinary basic events from undeveloped ones.
type Flavor string

const (
	FlavorBasic       Flavor = "basic"
	FlavorUndeveloped Flavor = "undeveloped"
)

// ExpressionKind identifies the probability source of a basic event.
type ExpressionKind string

const (
	// ExpressionConstant holds a fixed probability in [0, 1].
	ExpressionConstant ExpressionKind = "constant"
	// ExpressionExponential holds a failure rate evaluated against the mission time.
	ExpressionExponential ExpressionKind = "exponential"
)

// Connective is the Boolean operator of a gate formula.
type Connective string

// Supported connectives.
const (
	ConnectiveAnd     Connective = "and"
	ConnectiveOr      Connective = "or"
	ConnectiveAtLeast Connective = "atleast"
	ConnectiveXor     Connective = "xor"
	ConnectiveNot     Connective = "not"
	ConnectiveNand    Connective = "nand"
	ConnectiveNor     Connective = "nor"
	ConnectiveNull    Connective = "null"
)

// Connectives lists every connective in display order.
var Connectives = []Connective{
	ConnectiveAnd, ConnectiveOr, ConnectiveAtLeast, ConnectiveXor,
	ConnectiveNot, ConnectiveNand, ConnectiveNor, ConnectiveNull,
}

// ParseConnective resolves a connective name.
func ParseConnective(s string) (Connective, bool) {
	for _, c := range Connectives {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// Expression is a leaf-level probability definition.
type Expression struct {
	Kind  ExpressionKind `json:"kind"`
	Value float64        `json:"value"`
}

// Validate checks the expression parameter domain.
func (e Expression) Validate(owner string) error {
	switch e.Kind {
	case ExpressionConstant:
		if e.Value < 0 || e.Value > 1 {
			return InvalidExpressionError(owner, "probability must be within [0, 1]")
		}
	case ExpressionExponential:
		if e.Value < 0 {
			return InvalidExpressionError(owner, "rate must be non-negative")
		}
	default:
		return InvalidExpressionError(owner, fmt.Sprintf("unknown expression kind %q", e.Kind))
	}
	return nil
}

// Formula is a connective over ordered argument references.
type Formula struct {
	Connective Connective `json:"connective"`
	Min        int        `json:"min,omitempty"`
	Args       []string   `json:"args"`
}

// Clone returns a deep copy of the formula.
func (f Formula) Clone() Formula {
	cp := f
	cp.Args = append([]string(nil), f.Args...)
	return cp
}

// HasArg reports whether name is an argument of the formula.
func (f Formula) HasArg(name string) bool {
	for _, a := range f.Args {
		if a == name {
			return true
		}
	}
	return false
}

// Equal compares formulas including argument order.
func (f Formula) Equal(other Formula) bool {
	if f.Connective != other.Connective || f.Min != other.Min || len(f.Args) != len(other.Args) {
		return false
	}
	for i := range f.Args {
		if f.Args[i] != other.Args[i] {
			return false
		}
	}
	return true
}

// String renders the formula in a compact prefix form.
func (f Formula) String() string {
	head := string(f.Connective)
	if f.Connective == ConnectiveAtLeast {
		head += "/" + strconv.Itoa(f.Min)
	}
	return fmt.Sprintf("%s%v", head, f.Args)
}

// HouseEvent is a leaf with a constant Boolean state.
type HouseEvent struct {
	State bool `json:"state"`
}

// BasicEvent is a leaf failure with an optional probability expression.
type BasicEvent struct {
	Flavor     Flavor      `json:"flavor"`
	Expression *Expression `json:"expression,omitempty"`
}

// Gate is an intermediate event defined by its formula.
type Gate struct {
	Formula Formula `json:"formula"`
}

// Event is the tagged union of house events, basic events and gates. Exactly
// one payload matching Kind must be set.
type Event struct {
	Kind      EventKind   `json:"kind"`
	Name      string      `json:"name"`
	Label     string      `json:"label,omitempty"`
	Container string      `json:"container,omitempty"`
	House     *HouseEvent `json:"house,omitempty"`
	Basic     *BasicEvent `json:"basic,omitempty"`
	Gate      *Gate       `json:"gate,omitempty"`
}

// NewHouseEvent constructs a house event in model scope.
func NewHouseEvent(name string, state bool) Event {
	return Event{Kind: KindHouseEvent, Name: name, House: &HouseEvent{State: state}}
}

// NewBasicEvent constructs a basic event in model scope.
func NewBasicEvent(name string, expr *Expression) Event {
	ev := Event{Kind: KindBasicEvent, Name: name, Basic: &BasicEvent{Flavor: FlavorBasic}}
	if expr != nil {
		e := *expr
		ev.Basic.Expression = &e
	}
	return ev
}

// NewGate constructs a gate contained in the given fault tree.
func NewGate(name, faultTree string, formula Formula) Event {
	return Event{Kind: KindGate, Name: name, Container: faultTree, Gate: &Gate{Formula: formula.Clone()}}
}

// IsGate reports whether the event is a gate.
func (e Event) IsGate() bool { return e.Kind == KindGate }

// Formula returns the gate formula, or the zero formula for leaves.
func (e Event) Formula() Formula {
	if e.Gate == nil {
		return Formula{}
	}
	return e.Gate.Formula
}

// Clone returns a deep copy of the event.
func (e Event) Clone() Event {
	cp := e
	if e.House != nil {
		h := *e.House
		cp.House = &h
	}
	if e.Basic != nil {
		b := *e.Basic
		if e.Basic.Expression != nil {
			x := *e.Basic.Expression
			b.Expression = &x
		}
		cp.Basic = &b
	}
	if e.Gate != nil {
		cp.Gate = &Gate{Formula: e.Gate.Formula.Clone()}
	}
	return cp
}

// CheckShape verifies that the payload matches the kind.
func (e Event) CheckShape() error {
	count := 0
	if e.House != nil {
		count++
	}
	if e.Basic != nil {
		count++
	}
	if e.Gate != nil {
		count++
	}
	if count != 1 {
		return InvalidEventError(e.Name, "exactly one payload is required")
	}
	switch e.Kind {
	case KindHouseEvent:
		if e.House == nil {
			return InvalidEventError(e.Name, "house event without state")
		}
	case KindBasicEvent:
		if e.Basic == nil {
			return InvalidEventError(e.Name, "basic event without payload")
		}
		switch e.Basic.Flavor {
		case FlavorBasic, FlavorUndeveloped:
		default:
			return InvalidEventError(e.Name, fmt.Sprintf("unknown flavor %q", e.Basic.Flavor))
		}
		if e.Basic.Expression != nil {
			if err := e.Basic.Expression.Validate(e.Name); err != nil {
				return err
			}
		}
	case KindGate:
		if e.Gate == nil {
			return InvalidEventError(e.Name, "gate without formula")
		}
		if e.Container == "" {
			return InvalidEventError(e.Name, "gate must belong to a fault tree")
		}
		if _, ok := ParseConnective(string(e.Gate.Formula.Connective)); !ok {
			return InvalidEventError(e.Name, fmt.Sprintf("unknown connective %q", e.Gate.Formula.Connective))
		}
	default:
		return InvalidEventError(e.Name, fmt.Sprintf("unknown kind %q", e.Kind))
	}
	return nil
}

// FaultTree is a named container of events with a single designated root gate.
type FaultTree struct {
	Name    string   `json:"name"`
	Label   string   `json:"label,omitempty"`
	Root    string   `json:"root,omitempty"`
	Members []string `json:"members,omitempty"`
}

// Clone returns a deep copy of the fault tree.
func (ft FaultTree) Clone() FaultTree {
	cp := ft
	cp.Members = append([]string(nil), ft.Members...)
	return cp
}

// DefaultModelName is displayed for models without a name.
const DefaultModelName = "Unnamed Model"

// Placement records where an event sits in the registry and in its container
// so that removals can be reverted to the exact same position.
type Placement struct {
	Index  int  `json:"index"`
	Member int  `json:"member"`
	Root   bool `json:"root"`
}

// Append places an event at the end of the registry and of its container.
var Append = Placement{Index: -1, Member: -1}

// Change describes a mutation applied to an event or fault tree during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Name   string
	Before any
	After  any
}

// EntityType identifies the kind of record touched by a change.
type EntityType string

// Supported entity types.
const (
	EntityEvent     EntityType = "event"
	EntityFaultTree EntityType = "fault_tree"
	EntityModel     EntityType = "model"
)

// Action indicates the type of modification performed.
type Action string

// Change actions.
const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionRename Action = "rename"
)

// Severity captures rule outcomes.
type Severity string

const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	SeverityWarn  Severity = "warn"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	Name     string
	Err      error
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present. It
// unwraps to the structured error of the first blocking violation.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return "transaction blocked by rule " + v.Rule + ": " + v.Message
		}
	}
	return "transaction blocked by rules"
}

// Unwrap exposes the first blocking cause.
func (e RuleViolationError) Unwrap() error {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock && v.Err != nil {
			return v.Err
		}
	}
	return nil
}
