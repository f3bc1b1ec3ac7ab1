package domain

import (
	"strings"
)

// ValidateName checks that name can be registered as a new event.
func ValidateName(view ModelView, name string) error {
	if strings.TrimSpace(name) == "" {
		return InvalidNameError(name, "name must not be empty")
	}
	if strings.TrimSpace(name) != name {
		return InvalidNameError(name, "name must not have surrounding whitespace")
	}
	if _, ok := view.FindEvent(name); ok {
		return DuplicateNameError(name)
	}
	return nil
}

// ValidateRename checks renaming ev to newName. A gate renamed to one of its
// own arguments is a self-cycle; any other taken name is a duplicate.
func ValidateRename(view ModelView, ev Event, newName string) error {
	if ev.IsGate() && ev.Gate.Formula.HasArg(newName) {
		return SelfCycleError(ev.Name, newName)
	}
	return ValidateName(view, newName)
}

// ValidateArgument checks adding arg to the formula of gate. The formula is
// the gate's formula before arg is added.
func ValidateArgument(view ModelView, gate string, formula Formula, arg string) error {
	if arg == gate {
		return SelfCycleError(gate, arg)
	}
	if formula.HasArg(arg) {
		return DuplicateArgumentError(gate, arg)
	}
	target, ok := view.FindEvent(arg)
	if !ok {
		return NotFoundError("event", arg)
	}
	if target.IsGate() && Reaches(view, arg, gate) {
		return CycleError(gate, arg)
	}
	return nil
}

// ValidateFormula checks a replacement formula for gate. Arguments already
// present in previous were validated when they were added and are skipped for
// the cycle search, keeping the cost proportional to the new edges.
func ValidateFormula(view ModelView, gate string, previous, next Formula) error {
	if _, ok := ParseConnective(string(next.Connective)); !ok {
		return InvalidEventError(gate, "unknown connective "+string(next.Connective))
	}
	var partial Formula
	for _, arg := range next.Args {
		if partial.HasArg(arg) {
			return DuplicateArgumentError(gate, arg)
		}
		if arg == gate {
			return SelfCycleError(gate, arg)
		}
		if previous.HasArg(arg) {
			partial.Args = append(partial.Args, arg)
			continue
		}
		if err := ValidateArgument(view, gate, partial, arg); err != nil {
			return err
		}
		partial.Args = append(partial.Args, arg)
	}
	return nil
}

// Reaches reports whether target is reachable from start by following gate
// formula arguments. The search only visits gates below start.
func Reaches(view ModelView, start, target string) bool {
	if start == target {
		return true
	}
	visited := map[string]struct{}{start: {}}
	stack := []string{start}
	for len(stack) > 0 {
		name := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		ev, ok := view.FindEvent(name)
		if !ok || !ev.IsGate() {
			continue
		}
		for _, arg := range ev.Gate.Formula.Args {
			if arg == target {
				return true
			}
			if _, seen := visited[arg]; seen {
				continue
			}
			visited[arg] = struct{}{}
			stack = append(stack, arg)
		}
	}
	return false
}

// CheckArity enforces the argument count of the formula connective.
func CheckArity(gate string, f Formula) error {
	n := len(f.Args)
	switch f.Connective {
	case ConnectiveNot, ConnectiveNull:
		if n != 1 {
			return ArityError(CodeAritySingle, gate, f.Connective, 1)
		}
	case ConnectiveXor:
		if n != 2 {
			return ArityError(CodeArityExactlyTwo, gate, f.Connective, 2)
		}
	case ConnectiveAnd, ConnectiveOr, ConnectiveNand, ConnectiveNor:
		if n < 2 {
			return ArityError(CodeArityAtLeast, gate, f.Connective, 2)
		}
	case ConnectiveAtLeast:
		if f.Min < 2 {
			return ArityError(CodeInvalidVoteNumber, gate, f.Connective, f.Min)
		}
		if n < f.Min {
			return ArityError(CodeArityAtLeast, gate, f.Connective, f.Min)
		}
	default:
		return InvalidEventError(gate, "unknown connective "+string(f.Connective))
	}
	return nil
}

// ValidateModel runs every structural check over a complete model. It is
// used once when a model is loaded; interactive edits rely on the incremental
// checks above.
func ValidateModel(view ModelView) error {
	events := view.ListEvents()
	trees := view.ListFaultTrees()

	treeNames := make(map[string]struct{}, len(trees))
	for _, ft := range trees {
		if strings.TrimSpace(ft.Name) == "" {
			return InvalidNameError(ft.Name, "fault tree name must not be empty")
		}
		if _, dup := treeNames[ft.Name]; dup {
			return DuplicateNameError(ft.Name)
		}
		treeNames[ft.Name] = struct{}{}
	}

	names := make(map[string]struct{}, len(events))
	for _, ev := range events {
		if strings.TrimSpace(ev.Name) == "" {
			return InvalidNameError(ev.Name, "name must not be empty")
		}
		if _, dup := names[ev.Name]; dup {
			return DuplicateNameError(ev.Name)
		}
		names[ev.Name] = struct{}{}
		if err := ev.CheckShape(); err != nil {
			return err
		}
		if ev.Container != "" {
			if _, ok := treeNames[ev.Container]; !ok {
				return NotFoundError("fault tree", ev.Container)
			}
		}
	}

	for _, ev := range events {
		if !ev.IsGate() {
			continue
		}
		seen := make(map[string]struct{}, len(ev.Gate.Formula.Args))
		for _, arg := range ev.Gate.Formula.Args {
			if arg == ev.Name {
				return SelfCycleError(ev.Name, arg)
			}
			if _, dup := seen[arg]; dup {
				return DuplicateArgumentError(ev.Name, arg)
			}
			seen[arg] = struct{}{}
			if _, ok := names[arg]; !ok {
				return NotFoundError("event", arg)
			}
		}
		if err := CheckArity(ev.Name, ev.Gate.Formula); err != nil {
			return err
		}
	}

	if err := detectCycle(view, events); err != nil {
		return err
	}

	contained := make(map[string]int, len(trees))
	for _, ev := range events {
		if ev.Container != "" {
			contained[ev.Container]++
		}
	}
	for _, ft := range trees {
		listed := make(map[string]struct{}, len(ft.Members))
		for _, m := range ft.Members {
			if _, dup := listed[m]; dup {
				return InvalidEventError(m, "listed twice as member of fault tree "+ft.Name)
			}
			listed[m] = struct{}{}
			ev, ok := view.FindEvent(m)
			if !ok {
				return NotFoundError("event", m)
			}
			if ev.Container != ft.Name {
				return InvalidEventError(m, "listed as member of fault tree "+ft.Name+" but contained elsewhere")
			}
		}
		if contained[ft.Name] != len(ft.Members) {
			return InvalidEventError(ft.Name, "fault tree member list is inconsistent with event containers")
		}
		if len(ft.Members) == 0 {
			if ft.Root != "" {
				return TopGateError(ft.Name)
			}
			continue
		}
		root, ok := view.FindEvent(ft.Root)
		if !ok || !root.IsGate() || root.Container != ft.Name {
			return TopGateError(ft.Name)
		}
	}
	return nil
}

// detectCycle runs a colored depth-first search over every gate.
func detectCycle(view ModelView, events []Event) error {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(events))
	type frame struct {
		name string
		next int
	}
	for _, ev := range events {
		if !ev.IsGate() || color[ev.Name] != white {
			continue
		}
		stack := []frame{{name: ev.Name}}
		color[ev.Name] = grey
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			gate, _ := view.FindEvent(top.name)
			args := gate.Formula().Args
			if top.next >= len(args) {
				color[top.name] = black
				stack = stack[:len(stack)-1]
				continue
			}
			arg := args[top.next]
			top.next++
			child, ok := view.FindEvent(arg)
			if !ok || !child.IsGate() {
				continue
			}
			switch color[arg] {
			case grey:
				return CycleError(top.name, arg)
			case white:
				color[arg] = grey
				stack = append(stack, frame{name: arg})
			}
		}
	}
	return nil
}
