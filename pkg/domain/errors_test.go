package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMatchingByCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", CycleError("G1", "G2"))
	if !errors.Is(err, ErrCycle) {
		t.Fatalf("expected cycle match")
	}
	if errors.Is(err, ErrSelfCycle) {
		t.Fatalf("codes must not match across kinds")
	}
	if CodeOf(err) != CodeCycle {
		t.Fatalf("code = %s", CodeOf(err))
	}
	if CodeOf(errors.New("plain")) != CodeUnknown {
		t.Fatalf("plain errors have no code")
	}
	var derr *Error
	if !errors.As(err, &derr) || derr.Meta(MetaGate) != "G1" || derr.Meta(MetaArgument) != "G2" {
		t.Fatalf("metadata lost: %+v", derr)
	}
	if (*Error)(nil).Meta(MetaGate) != "" {
		t.Fatalf("nil error must have empty metadata")
	}
}

func TestErrorMessages(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{DuplicateNameError("B1"), `the event with name "B1" already exists`},
		{SelfCycleError("G", "G"), `the argument "G" would introduce a self-cycle in gate "G"`},
		{ArityError(CodeArityAtLeast, "G", ConnectiveAtLeast, 3), `gate "G": atleast connective requires at-least 3 arguments`},
		{ArityError(CodeAritySingle, "G", ConnectiveNot, 1), `gate "G": not connective requires a single argument`},
		{EventDependencyError("B", []string{"G2", "G1"}), `event "B" is not removable because it has dependents: G1, G2`},
		{TopGateError("FT"), `fault tree "FT" must have a single top-gate`},
		{NothingToUndoError(), "nothing to undo"},
		{&Error{Code: CodeUnknown}, "UNKNOWN"},
	}
	for _, tc := range cases {
		if got := tc.err.Error(); got != tc.want {
			t.Errorf("Error() = %q, want %q", got, tc.want)
		}
	}
}

func TestInitializationError(t *testing.T) {
	cause := DuplicateNameError("PUMP")
	err := InitializationError(InitValidationError, SourceLocation{File: "model.xml", Line: 12, Element: "define-gate"}, cause)
	if err.Error() != `initialization error in model.xml:12: the event with name "PUMP" already exists` {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if !errors.Is(err, ErrInitialization) || !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected both initialization and cause to match")
	}
	for key, want := range map[string]string{MetaKind: InitValidationError, MetaFile: "model.xml", MetaLine: "12", MetaElement: "define-gate"} {
		if got := err.Meta(key); got != want {
			t.Errorf("meta %s = %q, want %q", key, got, want)
		}
	}
	if err.Meta(MetaAttribute) != "" {
		t.Fatalf("unset attribute leaked into metadata")
	}
	bare := InitializationError(InitIOError, SourceLocation{}, errors.New("no such file"))
	if bare.Error() != "initialization error: no such file" {
		t.Fatalf("unexpected message %q", bare.Error())
	}
}

func TestNewMessageCopiesArgs(t *testing.T) {
	args := []string{"x"}
	m := NewMessage("k", args...)
	args[0] = "y"
	if m.Args[0] != "x" {
		t.Fatalf("message must copy its arguments")
	}
}

func TestEventCloneIsDeep(t *testing.T) {
	ev := NewBasicEvent("B", &Expression{Kind: ExpressionConstant, Value: 0.5})
	cp := ev.Clone()
	cp.Basic.Expression.Value = 0.9
	cp.Basic.Flavor = FlavorUndeveloped
	if ev.Basic.Expression.Value != 0.5 || ev.Basic.Flavor != FlavorBasic {
		t.Fatalf("clone shares payload")
	}
	g := gate("G", "FT", ConnectiveAnd, "A", "B")
	gc := g.Clone()
	gc.Gate.Formula.Args[0] = "Z"
	if g.Gate.Formula.Args[0] != "A" {
		t.Fatalf("clone shares formula args")
	}
	if !g.Gate.Formula.Equal(Formula{Connective: ConnectiveAnd, Args: []string{"A", "B"}}) {
		t.Fatalf("formula equality failed")
	}
	if got := (Formula{Connective: ConnectiveAtLeast, Min: 2, Args: []string{"A", "B"}}).String(); got != "atleast/2[A B]" {
		t.Fatalf("String() = %q", got)
	}
}
