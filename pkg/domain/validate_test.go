package domain

import (
	"errors"
	"testing"
)

func TestValidateName(t *testing.T) {
	view := pumpView()
	cases := []struct {
		name string
		want *Error
	}{
		{"NEW", nil},
		{"", ErrInvalidName},
		{"  ", ErrInvalidName},
		{" padded", ErrInvalidName},
		{"B1", ErrDuplicateName},
		{"b1", nil},
	}
	for _, tc := range cases {
		err := ValidateName(view, tc.name)
		if tc.want == nil && err != nil {
			t.Errorf("ValidateName(%q) = %v", tc.name, err)
		}
		if tc.want != nil && !errors.Is(err, tc.want) {
			t.Errorf("ValidateName(%q) = %v, want %s", tc.name, err, tc.want.Code)
		}
	}
}

func TestValidateArgument(t *testing.T) {
	view := pumpView()
	g1, _ := view.FindEvent("G1")
	cases := []struct {
		name string
		gate string
		arg  string
		want *Error
	}{
		{"leaf", "G1", "B3", nil},
		{"house event", "G1", "H", nil},
		{"self", "G1", "G1", ErrSelfCycle},
		{"duplicate", "G1", "B1", ErrDuplicateArgument},
		{"missing", "G1", "NOPE", ErrNotFound},
		{"ancestor", "G1", "TOP", ErrCycle},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateArgument(view, tc.gate, g1.Gate.Formula, tc.arg)
			if tc.want == nil {
				if err != nil {
					t.Fatalf("unexpected error %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %s", err, tc.want.Code)
			}
		})
	}
}

func TestValidateFormulaSkipsExistingArguments(t *testing.T) {
	view := pumpView()
	prev := Formula{Connective: ConnectiveAnd, Args: []string{"B1", "B2"}}
	if err := ValidateFormula(view, "G1", prev, Formula{Connective: ConnectiveOr, Args: []string{"B2", "B1", "H"}}); err != nil {
		t.Fatalf("reordered formula rejected: %v", err)
	}
	if err := ValidateFormula(view, "G1", prev, Formula{Connective: ConnectiveOr, Args: []string{"B1", "B1"}}); !errors.Is(err, ErrDuplicateArgument) {
		t.Fatalf("expected duplicate argument, got %v", err)
	}
	if err := ValidateFormula(view, "G1", prev, Formula{Connective: "implies", Args: []string{"B1"}}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected unknown connective, got %v", err)
	}
}

func TestReaches(t *testing.T) {
	view := pumpView()
	if !Reaches(view, "TOP", "B2") {
		t.Fatalf("TOP should reach B2 through G1")
	}
	if Reaches(view, "G1", "TOP") {
		t.Fatalf("G1 must not reach TOP")
	}
	if !Reaches(view, "B1", "B1") {
		t.Fatalf("an event reaches itself")
	}
}

func TestCheckArity(t *testing.T) {
	cases := []struct {
		conn Connective
		min  int
		args int
		want *Error
	}{
		{ConnectiveAnd, 0, 2, nil},
		{ConnectiveAnd, 0, 1, ErrArityAtLeast},
		{ConnectiveOr, 0, 0, ErrArityAtLeast},
		{ConnectiveNand, 0, 3, nil},
		{ConnectiveNor, 0, 1, ErrArityAtLeast},
		{ConnectiveXor, 0, 2, nil},
		{ConnectiveXor, 0, 3, ErrArityExactlyTwo},
		{ConnectiveNot, 0, 1, nil},
		{ConnectiveNot, 0, 2, ErrAritySingle},
		{ConnectiveNull, 0, 0, ErrAritySingle},
		{ConnectiveAtLeast, 2, 3, nil},
		{ConnectiveAtLeast, 3, 2, ErrArityAtLeast},
		{ConnectiveAtLeast, 1, 3, ErrInvalidVoteNumber},
		{"implies", 0, 2, ErrInvalidEvent},
	}
	for _, tc := range cases {
		f := Formula{Connective: tc.conn, Min: tc.min}
		for i := 0; i < tc.args; i++ {
			f.Args = append(f.Args, string(rune('A'+i)))
		}
		err := CheckArity("G", f)
		if tc.want == nil {
			if err != nil {
				t.Errorf("%s: unexpected %v", f, err)
			}
			continue
		}
		if !errors.Is(err, tc.want) {
			t.Errorf("%s: got %v, want %s", f, err, tc.want.Code)
		}
		if !IsArity(err) && tc.want != ErrInvalidEvent {
			t.Errorf("%s: IsArity false for %v", f, err)
		}
	}
}

func TestValidateModel(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*listView)
		want   *Error
	}{
		{"valid", func(*listView) {}, nil},
		{"duplicate event", func(v *listView) { v.events = append(v.events, NewHouseEvent("B1", true)) }, ErrDuplicateName},
		{"duplicate tree", func(v *listView) { v.trees = append(v.trees, FaultTree{Name: "FT"}) }, ErrDuplicateName},
		{"missing container", func(v *listView) { v.events[1].Container = "NOPE" }, ErrNotFound},
		{"undefined argument", func(v *listView) { v.events[1] = gate("G1", "FT", ConnectiveAnd, "B1", "X") }, ErrNotFound},
		{"arity", func(v *listView) { v.events[1] = gate("G1", "FT", ConnectiveNot, "B1", "B2") }, ErrAritySingle},
		{"cycle", func(v *listView) { v.events[1] = gate("G1", "FT", ConnectiveAnd, "B1", "TOP") }, ErrCycle},
		{"self cycle", func(v *listView) { v.events[1] = gate("G1", "FT", ConnectiveAnd, "B1", "G1") }, ErrSelfCycle},
		{"bad shape", func(v *listView) { v.events[3].Basic.Flavor = "weird" }, ErrInvalidEvent},
		{"bad expression", func(v *listView) { v.events[2].Basic.Expression.Value = 2 }, ErrInvalidExpression},
		{"member list drift", func(v *listView) { v.trees[0].Members = []string{"TOP"} }, ErrInvalidEvent},
		{"member listed twice", func(v *listView) { v.trees[0].Members = []string{"TOP", "TOP"} }, ErrInvalidEvent},
		{"no root", func(v *listView) { v.trees[0].Root = "" }, ErrTopGate},
		{"root on empty tree", func(v *listView) { v.trees = append(v.trees, FaultTree{Name: "E", Root: "G9"}) }, ErrTopGate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			view := pumpView()
			tc.mutate(&view)
			err := ValidateModel(view)
			if tc.want == nil {
				if err != nil {
					t.Fatalf("unexpected error %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %s", err, tc.want.Code)
			}
		})
	}
}
