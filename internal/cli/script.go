package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"faultcore/internal/core"
	"faultcore/pkg/domain"
)

// Script operations.
const (
	opAddHouseEvent   = "add-house-event"
	opAddBasicEvent   = "add-basic-event"
	opAddGate         = "add-gate"
	opRemoveEvent     = "remove-event"
	opRenameEvent     = "rename-event"
	opSetLabel        = "set-label"
	opSetHouseState   = "set-house-state"
	opSetFlavor       = "set-flavor"
	opSetExpression   = "set-expression"
	opUpdateFormula   = "update-formula"
	opAddArgument     = "add-argument"
	opRemoveArgument  = "remove-argument"
	opAddFaultTree    = "add-fault-tree"
	opRemoveFaultTree = "remove-fault-tree"
	opRenameModel     = "rename-model"
	opUndo            = "undo"
	opRedo            = "redo"
)

// script is an ordered list of edits decoded from YAML.
type script struct {
	Steps []step `yaml:"steps"`
}

// step is one edit. Only the fields its operation uses are read.
type step struct {
	Op          string   `yaml:"op"`
	Name        string   `yaml:"name"`
	To          string   `yaml:"to"`
	Label       string   `yaml:"label"`
	FaultTree   string   `yaml:"fault_tree"`
	State       *bool    `yaml:"state"`
	Flavor      string   `yaml:"flavor"`
	Probability *float64 `yaml:"probability"`
	Rate        *float64 `yaml:"rate"`
	Connective  string   `yaml:"connective"`
	Min         int      `yaml:"min"`
	Args        []string `yaml:"args"`
	Arg         string   `yaml:"arg"`
	Gate        *step    `yaml:"gate"`
}

func parseScript(r io.Reader) (script, error) {
	var s script
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return script{}, nil
		}
		return script{}, fmt.Errorf("parse edit script: %w", err)
	}
	for i, st := range s.Steps {
		if st.Op == "" {
			return script{}, fmt.Errorf("parse edit script: step %d: missing op", i+1)
		}
	}
	return s, nil
}

func (st step) expression() (*domain.Expression, error) {
	switch {
	case st.Probability != nil && st.Rate != nil:
		return nil, fmt.Errorf("%s %s: probability and rate are exclusive", st.Op, st.Name)
	case st.Probability != nil:
		return &domain.Expression{Kind: domain.ExpressionConstant, Value: *st.Probability}, nil
	case st.Rate != nil:
		return &domain.Expression{Kind: domain.ExpressionExponential, Value: *st.Rate}, nil
	}
	return nil, nil
}

func (st step) formula() (domain.Formula, error) {
	conn, ok := domain.ParseConnective(st.Connective)
	if !ok {
		return domain.Formula{}, fmt.Errorf("%s %s: unknown connective %q", st.Op, st.Name, st.Connective)
	}
	return domain.Formula{Connective: conn, Min: st.Min, Args: st.Args}, nil
}

func (st step) state() bool {
	return st.State != nil && *st.State
}

// apply runs one step against svc and returns the description of the command
// it executed, undid or redid.
func (st step) apply(ctx context.Context, svc *core.Service) (domain.Message, error) {
	history := svc.History()
	var err error
	switch st.Op {
	case opUndo:
		desc, _ := history.UndoText()
		_, err = svc.Undo(ctx)
		return desc, err
	case opRedo:
		desc, _ := history.RedoText()
		_, err = svc.Redo(ctx)
		return desc, err
	case opAddHouseEvent:
		_, err = svc.AddHouseEvent(ctx, st.Name, st.state())
	case opAddBasicEvent:
		var expr *domain.Expression
		if expr, err = st.expression(); err == nil {
			_, err = svc.AddBasicEvent(ctx, st.Name, expr)
		}
	case opAddGate:
		var f domain.Formula
		if f, err = st.formula(); err == nil {
			_, err = svc.AddGate(ctx, st.Name, st.FaultTree, f)
		}
	case opRemoveEvent:
		_, err = svc.RemoveEvent(ctx, st.Name)
	case opRenameEvent:
		_, err = svc.RenameEvent(ctx, st.Name, st.To)
	case opSetLabel:
		_, err = svc.SetLabel(ctx, st.Name, st.Label)
	case opSetHouseState:
		_, err = svc.SetHouseState(ctx, st.Name, st.state())
	case opSetFlavor:
		_, err = svc.SetFlavor(ctx, st.Name, domain.Flavor(st.Flavor))
	case opSetExpression:
		var expr *domain.Expression
		if expr, err = st.expression(); err == nil {
			_, err = svc.SetExpression(ctx, st.Name, expr)
		}
	case opUpdateFormula:
		var f domain.Formula
		if f, err = st.formula(); err == nil {
			_, err = svc.UpdateFormula(ctx, st.Name, f)
		}
	case opAddArgument:
		_, err = svc.AddArgument(ctx, st.Name, st.Arg)
	case opRemoveArgument:
		_, err = svc.RemoveArgument(ctx, st.Name, st.Arg)
	case opAddFaultTree:
		if st.Gate == nil {
			_, err = svc.AddFaultTree(ctx, st.Name)
			break
		}
		var f domain.Formula
		if f, err = st.Gate.formula(); err == nil {
			_, err = svc.AddFaultTreeWithGate(ctx, st.Name, domain.NewGate(st.Gate.Name, st.Name, f))
		}
	case opRemoveFaultTree:
		_, err = svc.RemoveFaultTree(ctx, st.Name)
	case opRenameModel:
		_, err = svc.RenameModel(ctx, st.Name)
	default:
		return domain.Message{}, fmt.Errorf("unknown edit operation %q", st.Op)
	}
	if err != nil {
		return domain.Message{}, err
	}
	desc, _ := history.UndoText()
	return desc, nil
}
