package core

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"testing"

	"faultcore/internal/infra/persistence/memory"
	"faultcore/pkg/domain"
)

func constant(p float64) *domain.Expression {
	return &domain.Expression{Kind: domain.ExpressionConstant, Value: p}
}

func exponential(rate float64) *domain.Expression {
	return &domain.Expression{Kind: domain.ExpressionExponential, Value: rate}
}

// seedService builds a small model:
//
//	FT:  TOP = or(B3, H, G1), G1 = and(B1, B2)
//	AUX: AUXG = not(B2)
//
// SPARE is an unreferenced basic event registered between B1 and B2.
func seedService(t *testing.T, opts ...Option) (*Service, *memory.Store) {
	t.Helper()
	ctx := context.Background()
	engine := domain.NewDefaultRulesEngine()
	store := memory.NewStore(engine)
	svc := NewService(store, engine, opts...)

	steps := []func() (domain.Result, error){
		func() (domain.Result, error) { return svc.AddBasicEvent(ctx, "B1", constant(0.1)) },
		func() (domain.Result, error) { return svc.AddBasicEvent(ctx, "SPARE", nil) },
		func() (domain.Result, error) { return svc.AddBasicEvent(ctx, "B2", constant(0.2)) },
		func() (domain.Result, error) { return svc.AddBasicEvent(ctx, "B3", exponential(1e-3)) },
		func() (domain.Result, error) { return svc.AddHouseEvent(ctx, "H", true) },
		func() (domain.Result, error) {
			return svc.AddFaultTreeWithGate(ctx, "FT", domain.NewGate("TOP", "", domain.Formula{
				Connective: domain.ConnectiveOr, Args: []string{"B3", "H"},
			}))
		},
		func() (domain.Result, error) {
			return svc.AddGate(ctx, "G1", "FT", domain.Formula{Connective: domain.ConnectiveAnd, Args: []string{"B1", "B2"}})
		},
		func() (domain.Result, error) { return svc.AddArgument(ctx, "TOP", "G1") },
		func() (domain.Result, error) {
			return svc.AddFaultTreeWithGate(ctx, "AUX", domain.NewGate("AUXG", "", domain.Formula{
				Connective: domain.ConnectiveNot, Args: []string{"B2"},
			}))
		},
	}
	for i, step := range steps {
		if _, err := step(); err != nil {
			t.Fatalf("seed step %d: %v", i, err)
		}
	}
	svc.History().Clear()
	return svc, store
}

func mustEvent(t *testing.T, store *memory.Store, name string) domain.Event {
	t.Helper()
	ev, ok := store.FindEvent(name)
	if !ok {
		t.Fatalf("event %s not found", name)
	}
	return ev
}

func treeNamed(t *testing.T, store *memory.Store, name string) (domain.FaultTree, bool) {
	t.Helper()
	for _, ft := range store.ListFaultTrees() {
		if ft.Name == name {
			return ft, true
		}
	}
	return domain.FaultTree{}, false
}

func TestCommandsUndoRestoresExactState(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name  string
		run   func(*Service) (domain.Result, error)
		check func(*testing.T, *memory.Store)
	}{
		{
			name: "remove event keeps registry order on undo",
			run:  func(s *Service) (domain.Result, error) { return s.RemoveEvent(ctx, "SPARE") },
			check: func(t *testing.T, st *memory.Store) {
				if _, ok := st.FindEvent("SPARE"); ok {
					t.Fatalf("SPARE still registered")
				}
			},
		},
		{
			name: "rename propagates to formulas and tree",
			run:  func(s *Service) (domain.Result, error) { return s.RenameEvent(ctx, "G1", "G1X") },
			check: func(t *testing.T, st *memory.Store) {
				top := mustEvent(t, st, "TOP")
				if !top.Gate.Formula.HasArg("G1X") || top.Gate.Formula.HasArg("G1") {
					t.Fatalf("formula not rewritten: %v", top.Gate.Formula)
				}
				ft, _ := treeNamed(t, st, "FT")
				if ft.Members[1] != "G1X" {
					t.Fatalf("tree members not rewritten: %v", ft.Members)
				}
			},
		},
		{
			name: "rename root gate",
			run:  func(s *Service) (domain.Result, error) { return s.RenameEvent(ctx, "TOP", "ROOT") },
			check: func(t *testing.T, st *memory.Store) {
				if ft, _ := treeNamed(t, st, "FT"); ft.Root != "ROOT" {
					t.Fatalf("root = %q", ft.Root)
				}
			},
		},
		{
			name: "set label",
			run:  func(s *Service) (domain.Result, error) { return s.SetLabel(ctx, "G1", "pump train") },
			check: func(t *testing.T, st *memory.Store) {
				if mustEvent(t, st, "G1").Label != "pump train" {
					t.Fatalf("label not set")
				}
			},
		},
		{
			name: "set house state",
			run:  func(s *Service) (domain.Result, error) { return s.SetHouseState(ctx, "H", false) },
			check: func(t *testing.T, st *memory.Store) {
				if mustEvent(t, st, "H").House.State {
					t.Fatalf("state not changed")
				}
			},
		},
		{
			name: "set flavor",
			run:  func(s *Service) (domain.Result, error) { return s.SetFlavor(ctx, "B2", domain.FlavorUndeveloped) },
			check: func(t *testing.T, st *memory.Store) {
				if mustEvent(t, st, "B2").Basic.Flavor != domain.FlavorUndeveloped {
					t.Fatalf("flavor not changed")
				}
			},
		},
		{
			name: "remove expression",
			run:  func(s *Service) (domain.Result, error) { return s.SetExpression(ctx, "B3", nil) },
			check: func(t *testing.T, st *memory.Store) {
				if mustEvent(t, st, "B3").Basic.Expression != nil {
					t.Fatalf("expression kept")
				}
			},
		},
		{
			name: "update formula",
			run: func(s *Service) (domain.Result, error) {
				return s.UpdateFormula(ctx, "G1", domain.Formula{Connective: domain.ConnectiveAtLeast, Min: 2, Args: []string{"B1", "B2", "SPARE"}})
			},
			check: func(t *testing.T, st *memory.Store) {
				if f := mustEvent(t, st, "G1").Gate.Formula; f.Connective != domain.ConnectiveAtLeast || len(f.Args) != 3 {
					t.Fatalf("formula = %v", f)
				}
			},
		},
		{
			name: "remove argument keeps argument order on undo",
			run:  func(s *Service) (domain.Result, error) { return s.RemoveArgument(ctx, "TOP", "H") },
			check: func(t *testing.T, st *memory.Store) {
				if f := mustEvent(t, st, "TOP").Gate.Formula; !reflect.DeepEqual(f.Args, []string{"B3", "G1"}) {
					t.Fatalf("args = %v", f.Args)
				}
			},
		},
		{
			name: "retype basic event to house event",
			run:  func(s *Service) (domain.Result, error) { return s.RetypeEvent(ctx, domain.NewHouseEvent("SPARE", false)) },
			check: func(t *testing.T, st *memory.Store) {
				if mustEvent(t, st, "SPARE").Kind != domain.KindHouseEvent {
					t.Fatalf("kind not changed")
				}
			},
		},
		{
			name: "retype referenced house event to gate",
			run: func(s *Service) (domain.Result, error) {
				return s.RetypeEvent(ctx, domain.NewGate("H", "FT", domain.Formula{Connective: domain.ConnectiveNull, Args: []string{"B1"}}))
			},
			check: func(t *testing.T, st *memory.Store) {
				ft, _ := treeNamed(t, st, "FT")
				if ft.Members[len(ft.Members)-1] != "H" || ft.Root != "TOP" {
					t.Fatalf("tree = %+v", ft)
				}
			},
		},
		{
			name: "retype gate into another fault tree",
			run: func(s *Service) (domain.Result, error) {
				return s.RetypeEvent(ctx, domain.NewGate("G1", "AUX", domain.Formula{Connective: domain.ConnectiveOr, Args: []string{"B1", "B3"}}))
			},
			check: func(t *testing.T, st *memory.Store) {
				ft, _ := treeNamed(t, st, "FT")
				aux, _ := treeNamed(t, st, "AUX")
				if !reflect.DeepEqual(ft.Members, []string{"TOP"}) || !reflect.DeepEqual(aux.Members, []string{"AUXG", "G1"}) || aux.Root != "AUXG" {
					t.Fatalf("FT = %+v, AUX = %+v", ft, aux)
				}
			},
		},
		{
			name: "retype lone root gate to basic event",
			run:  func(s *Service) (domain.Result, error) { return s.RetypeEvent(ctx, domain.NewBasicEvent("AUXG", nil)) },
			check: func(t *testing.T, st *memory.Store) {
				if aux, _ := treeNamed(t, st, "AUX"); aux.Root != "" || len(aux.Members) != 0 {
					t.Fatalf("AUX = %+v", aux)
				}
			},
		},
		{
			name: "add fault tree",
			run:  func(s *Service) (domain.Result, error) { return s.AddFaultTree(ctx, "EMPTY") },
			check: func(t *testing.T, st *memory.Store) {
				if _, ok := treeNamed(t, st, "EMPTY"); !ok {
					t.Fatalf("tree missing")
				}
			},
		},
		{
			name: "remove fault tree with its root gate",
			run:  func(s *Service) (domain.Result, error) { return s.RemoveFaultTree(ctx, "AUX") },
			check: func(t *testing.T, st *memory.Store) {
				if _, ok := treeNamed(t, st, "AUX"); ok {
					t.Fatalf("tree kept")
				}
				if _, ok := st.FindEvent("AUXG"); ok {
					t.Fatalf("root gate kept")
				}
			},
		},
		{
			name: "rename model",
			run:  func(s *Service) (domain.Result, error) { return s.RenameModel(ctx, "Plant") },
			check: func(t *testing.T, st *memory.Store) {
				if st.ModelName() != "Plant" {
					t.Fatalf("name = %q", st.ModelName())
				}
			},
		},
		{
			name: "compound adds as one step",
			run: func(s *Service) (domain.Result, error) {
				return s.Execute(ctx, NewCompound(domain.NewMessage(domain.MsgAddEvent, "X"),
					NewAddEvent(domain.NewBasicEvent("X1", constant(0.5))),
					NewAddEvent(domain.NewGate("GX", "FT", domain.Formula{Connective: domain.ConnectiveNot, Args: []string{"X1"}})),
				))
			},
			check: func(t *testing.T, st *memory.Store) {
				mustEvent(t, st, "X1")
				mustEvent(t, st, "GX")
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, store := seedService(t)
			before := store.ExportState()
			if _, err := tc.run(svc); err != nil {
				t.Fatalf("run: %v", err)
			}
			tc.check(t, store)
			after := store.ExportState()
			if reflect.DeepEqual(before, after) {
				t.Fatalf("command did not change the model")
			}
			if _, err := svc.Undo(ctx); err != nil {
				t.Fatalf("undo: %v", err)
			}
			if got := store.ExportState(); !reflect.DeepEqual(before, got) {
				t.Fatalf("undo mismatch\nwant %+v\ngot  %+v", before, got)
			}
			if _, err := svc.Redo(ctx); err != nil {
				t.Fatalf("redo: %v", err)
			}
			if got := store.ExportState(); !reflect.DeepEqual(after, got) {
				t.Fatalf("redo mismatch\nwant %+v\ngot  %+v", after, got)
			}
		})
	}
}

func TestCommandsRejectInvalidEdits(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name string
		run  func(*Service) (domain.Result, error)
		want *domain.Error
	}{
		{"duplicate name", func(s *Service) (domain.Result, error) { return s.AddHouseEvent(ctx, "B1", true) }, domain.ErrDuplicateName},
		{"empty name", func(s *Service) (domain.Result, error) { return s.AddHouseEvent(ctx, " ", true) }, domain.ErrInvalidName},
		{"remove referenced", func(s *Service) (domain.Result, error) { return s.RemoveEvent(ctx, "B1") }, domain.ErrEventHasDependents},
		{"remove unknown", func(s *Service) (domain.Result, error) { return s.RemoveEvent(ctx, "NOPE") }, domain.ErrNotFound},
		{"rename onto existing", func(s *Service) (domain.Result, error) { return s.RenameEvent(ctx, "B1", "B2") }, domain.ErrDuplicateName},
		{"rename gate onto argument", func(s *Service) (domain.Result, error) { return s.RenameEvent(ctx, "G1", "B1") }, domain.ErrSelfCycle},
		{"self argument", func(s *Service) (domain.Result, error) { return s.AddArgument(ctx, "G1", "G1") }, domain.ErrSelfCycle},
		{"duplicate argument", func(s *Service) (domain.Result, error) { return s.AddArgument(ctx, "G1", "B1") }, domain.ErrDuplicateArgument},
		{"cycle", func(s *Service) (domain.Result, error) { return s.AddArgument(ctx, "G1", "TOP") }, domain.ErrCycle},
		{"unknown argument", func(s *Service) (domain.Result, error) { return s.AddArgument(ctx, "G1", "NOPE") }, domain.ErrNotFound},
		{"arity at commit", func(s *Service) (domain.Result, error) { return s.RemoveArgument(ctx, "G1", "B1") }, domain.ErrArityAtLeast},
		{"xor arity", func(s *Service) (domain.Result, error) {
			return s.UpdateFormula(ctx, "G1", domain.Formula{Connective: domain.ConnectiveXor, Args: []string{"B1", "B2", "SPARE"}})
		}, domain.ErrArityExactlyTwo},
		{"vote number", func(s *Service) (domain.Result, error) {
			return s.UpdateFormula(ctx, "G1", domain.Formula{Connective: domain.ConnectiveAtLeast, Min: 1, Args: []string{"B1", "B2"}})
		}, domain.ErrInvalidVoteNumber},
		{"not arity", func(s *Service) (domain.Result, error) { return s.AddArgument(ctx, "AUXG", "B1") }, domain.ErrAritySingle},
		{"house state on basic", func(s *Service) (domain.Result, error) { return s.SetHouseState(ctx, "B1", true) }, domain.ErrInvalidEvent},
		{"flavor on gate", func(s *Service) (domain.Result, error) { return s.SetFlavor(ctx, "G1", domain.FlavorUndeveloped) }, domain.ErrInvalidEvent},
		{"bad probability", func(s *Service) (domain.Result, error) { return s.SetExpression(ctx, "B1", constant(1.5)) }, domain.ErrInvalidExpression},
		{"negative rate", func(s *Service) (domain.Result, error) { return s.SetExpression(ctx, "B1", exponential(-1)) }, domain.ErrInvalidExpression},
		{"gate without tree", func(s *Service) (domain.Result, error) {
			return s.AddGate(ctx, "GX", "NOPE", domain.Formula{Connective: domain.ConnectiveNot, Args: []string{"B1"}})
		}, domain.ErrNotFound},
		{"second root", func(s *Service) (domain.Result, error) {
			return s.Execute(ctx, NewAddRootGate(domain.NewGate("GX", "FT", domain.Formula{Connective: domain.ConnectiveNot, Args: []string{"B1"}})))
		}, domain.ErrFaultTreeRedefined},
		{"duplicate tree", func(s *Service) (domain.Result, error) { return s.AddFaultTree(ctx, "FT") }, domain.ErrDuplicateName},
		{"remove populated tree", func(s *Service) (domain.Result, error) { return s.RemoveFaultTree(ctx, "FT") }, domain.ErrFaultTreeHasDependents},
		{"remove root with members", func(s *Service) (domain.Result, error) { return s.RemoveEvent(ctx, "TOP") }, domain.ErrFaultTreeHasDependents},
		{"retype into cycle", func(s *Service) (domain.Result, error) {
			return s.RetypeEvent(ctx, domain.NewGate("B1", "FT", domain.Formula{Connective: domain.ConnectiveNot, Args: []string{"TOP"}}))
		}, domain.ErrCycle},
		{"retype into self cycle", func(s *Service) (domain.Result, error) {
			return s.RetypeEvent(ctx, domain.NewGate("B1", "FT", domain.Formula{Connective: domain.ConnectiveNot, Args: []string{"B1"}}))
		}, domain.ErrSelfCycle},
		{"retype into cycle across trees", func(s *Service) (domain.Result, error) {
			return s.RetypeEvent(ctx, domain.NewGate("B2", "AUX", domain.Formula{Connective: domain.ConnectiveNot, Args: []string{"G1"}}))
		}, domain.ErrCycle},
		{"retype root with members", func(s *Service) (domain.Result, error) {
			return s.RetypeEvent(ctx, domain.NewHouseEvent("TOP", true))
		}, domain.ErrFaultTreeHasDependents},
		{"retype root into another tree", func(s *Service) (domain.Result, error) {
			return s.RetypeEvent(ctx, domain.NewGate("TOP", "AUX", domain.Formula{Connective: domain.ConnectiveOr, Args: []string{"B3", "H"}}))
		}, domain.ErrFaultTreeHasDependents},
		{"retype into unknown tree", func(s *Service) (domain.Result, error) {
			return s.RetypeEvent(ctx, domain.NewGate("SPARE", "NOPE", domain.Formula{Connective: domain.ConnectiveNot, Args: []string{"B1"}}))
		}, domain.ErrNotFound},
		{"tree root must be gate", func(s *Service) (domain.Result, error) {
			return s.AddFaultTreeWithGate(ctx, "FT2", domain.NewBasicEvent("BX", nil))
		}, domain.ErrInvalidEvent},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, store := seedService(t)
			before := store.ExportState()
			_, err := tc.run(svc)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %s, got %v", tc.want.Code, err)
			}
			if got := store.ExportState(); !reflect.DeepEqual(before, got) {
				t.Fatalf("failed edit changed the model")
			}
			if svc.History().CanUndo() {
				t.Fatalf("failed edit was pushed to the history")
			}
		})
	}
}

// TestRandomEditSequencesKeepModelValid drives the service with random edits,
// many of them invalid, and checks the whole model after every step.
func TestRandomEditSequencesKeepModelValid(t *testing.T) {
	ctx := context.Background()
	for seed := int64(1); seed <= 8; seed++ {
		t.Run(fmt.Sprintf("seed %d", seed), func(t *testing.T) {
			svc, store := seedService(t)
			initial := store.ExportState()
			rng := rand.New(rand.NewSource(seed))
			pick := func() string {
				events := store.ListEvents()
				if len(events) == 0 {
					return "NOPE"
				}
				return events[rng.Intn(len(events))].Name
			}
			containers := []string{"FT", "AUX"}
			connectives := []domain.Connective{domain.ConnectiveNot, domain.ConnectiveNull, domain.ConnectiveOr, domain.ConnectiveAnd}

			applied := 0
			for step := 0; step < 150; step++ {
				var err error
				switch rng.Intn(8) {
				case 0:
					_, err = svc.AddArgument(ctx, pick(), pick())
				case 1:
					_, err = svc.RemoveArgument(ctx, pick(), pick())
				case 2:
					conn := connectives[rng.Intn(len(connectives))]
					args := []string{pick()}
					if conn == domain.ConnectiveOr || conn == domain.ConnectiveAnd {
						args = append(args, pick())
					}
					_, err = svc.RetypeEvent(ctx, domain.NewGate(pick(), containers[rng.Intn(len(containers))], domain.Formula{Connective: conn, Args: args}))
				case 3:
					_, err = svc.RetypeEvent(ctx, domain.NewHouseEvent(pick(), rng.Intn(2) == 0))
				case 4:
					_, err = svc.RetypeEvent(ctx, domain.NewBasicEvent(pick(), constant(0.5)))
				case 5:
					_, err = svc.UpdateFormula(ctx, pick(), domain.Formula{Connective: domain.ConnectiveOr, Args: []string{pick(), pick()}})
				case 6:
					_, err = svc.AddGate(ctx, fmt.Sprintf("R%d", step), containers[rng.Intn(len(containers))], domain.Formula{Connective: domain.ConnectiveNot, Args: []string{pick()}})
				case 7:
					_, err = svc.RemoveEvent(ctx, pick())
				}
				if err == nil {
					applied++
				}
				if verr := memory.ValidateSnapshot(store.ExportState()); verr != nil {
					t.Fatalf("step %d left an invalid model: %v", step, verr)
				}
			}
			if applied == 0 {
				t.Fatalf("no edit in the sequence was accepted")
			}

			for svc.History().CanUndo() {
				if _, err := svc.Undo(ctx); err != nil {
					t.Fatalf("undo: %v", err)
				}
				if verr := memory.ValidateSnapshot(store.ExportState()); verr != nil {
					t.Fatalf("undo left an invalid model: %v", verr)
				}
			}
			if got := store.ExportState(); !reflect.DeepEqual(got, initial) {
				t.Fatalf("undoing every edit did not restore the seed model")
			}
		})
	}
}

func TestCompoundIsAtomic(t *testing.T) {
	ctx := context.Background()
	svc, store := seedService(t)
	before := store.ExportState()

	cmd := NewCompound(domain.NewMessage(domain.MsgAddEvent, "X"),
		NewAddEvent(domain.NewBasicEvent("X1", nil)),
		NewAddEvent(domain.NewBasicEvent("B1", nil)),
	)
	if _, err := svc.Execute(ctx, cmd); !errors.Is(err, domain.ErrDuplicateName) {
		t.Fatalf("expected duplicate name, got %v", err)
	}
	if got := store.ExportState(); !reflect.DeepEqual(before, got) {
		t.Fatalf("partial compound was committed")
	}
	if len(cmd.Children()) != 2 {
		t.Fatalf("children = %d", len(cmd.Children()))
	}
}

func TestCommandDescriptions(t *testing.T) {
	svc, store := seedService(t)
	var view domain.ModelView
	if err := svc.View(context.Background(), func(v domain.ModelView) error {
		view = v
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}

	rename, err := NewRenameEvent(view, "B1", "B9")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	removeTree, err := NewRemoveFaultTree(view, "AUX")
	if err != nil {
		t.Fatalf("remove tree: %v", err)
	}
	withGate, err := NewAddFaultTreeWithGate("FT2", domain.NewGate("G9", "", domain.Formula{Connective: domain.ConnectiveNot, Args: []string{"B1"}}))
	if err != nil {
		t.Fatalf("add tree: %v", err)
	}
	state, err := NewSetHouseState(view, "H", false)
	if err != nil {
		t.Fatalf("house state: %v", err)
	}

	cases := []struct {
		cmd  Command
		want domain.Message
	}{
		{NewAddEvent(domain.NewHouseEvent("HX", true)), domain.NewMessage(domain.MsgAddEvent, "HX")},
		{rename, domain.NewMessage(domain.MsgRenameEvent, "B1", "B9")},
		{removeTree, domain.NewMessage(domain.MsgRemoveFaultTreeRoot, "AUX", "AUXG")},
		{withGate, domain.NewMessage(domain.MsgAddFaultTreeWithGate, "FT2", "G9")},
		{state, domain.NewMessage(domain.MsgSetHouseState, "H", "false")},
		{NewRenameModel(view, "Plant"), domain.NewMessage(domain.MsgRenameModel, "Plant")},
		{NewAddFaultTree("E"), domain.NewMessage(domain.MsgAddFaultTree, "E")},
	}
	for _, tc := range cases {
		if got := tc.cmd.Description(); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("description = %+v, want %+v", got, tc.want)
		}
	}

	// Commands capture their inputs; later edits to the model do not leak in.
	if _, err := svc.SetLabel(context.Background(), "H", "changed"); err != nil {
		t.Fatalf("set label: %v", err)
	}
	if _, err := svc.Execute(context.Background(), state); err != nil {
		t.Fatalf("execute captured command: %v", err)
	}
	if ev := mustEvent(t, store, "H"); ev.House.State || ev.Label != "" {
		t.Fatalf("captured command should restore its own snapshot of H, got %+v", ev)
	}
}
