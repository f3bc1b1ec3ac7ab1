package core

import (
	"context"
	"fmt"
	"sync"

	"faultcore/internal/infra/persistence/memory"
	"faultcore/pkg/domain"
)

// Service exposes typed, undoable edit operations over a model store. Every
// operation builds its command from the current model and executes it through
// the history.
type Service struct {
	mu      sync.RWMutex
	store   domain.PersistentStore
	engine  *domain.RulesEngine
	history *History
	clock   Clock
	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
	audit   AuditRecorder
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, engine *domain.RulesEngine, opts ...Option) *Service {
	o := defaultServiceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Service{
		store:   store,
		engine:  engine,
		history: NewHistory(store, o.undoLimit, o.logger),
		clock:   o.clock,
		logger:  o.logger,
		metrics: o.metrics,
		tracer:  o.tracer,
		audit:   o.audit,
	}
}

// NewInMemoryService creates a service and in-memory store with the given
// rules engine (the default structural rules when nil).
func NewInMemoryService(engine *domain.RulesEngine, opts ...Option) *Service {
	if engine == nil {
		engine = domain.NewDefaultRulesEngine()
	}
	return NewService(memory.NewStore(engine), engine, opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore { return s.store }

// History returns the edit history.
func (s *Service) History() *History { return s.history }

// RulesEngine returns the engine evaluated at every commit.
func (s *Service) RulesEngine() *domain.RulesEngine { return s.engine }

// View runs fn against a consistent read-only copy of the model.
func (s *Service) View(ctx context.Context, fn func(domain.ModelView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.View(ctx, fn)
}

type operation struct {
	name   string
	entity domain.EntityType
	action domain.Action
	target string
}

// step performs the body of an operation and reports the command description.
type step func(ctx context.Context) (domain.Message, domain.Result, error)

// run wraps one operation with tracing, metrics, logging and auditing.
func (s *Service) run(ctx context.Context, op operation, fn step) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, span := s.tracer.Start(ctx, op.name)
	start := s.clock.Now()
	desc, res, err := fn(ctx)
	duration := s.clock.Now().Sub(start)
	span.End(err)
	s.metrics.Observe(ctx, op.name, err == nil, duration)

	entry := AuditEntry{
		Operation:   op.name,
		Description: desc,
		Entity:      op.entity,
		Action:      op.action,
		Name:        op.target,
		Status:      AuditStatusSuccess,
		Duration:    duration,
		Timestamp:   start,
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Code = domain.CodeOf(err)
		entry.Error = err.Error()
		s.logger.Error("operation failed", "operation", op.name, "name", op.target, "code", entry.Code, "error", err)
	} else {
		s.logger.Info("operation applied", "operation", op.name, "name", op.target, "duration", duration)
	}
	for _, v := range res.Violations {
		if v.Severity == domain.SeverityWarn {
			s.logger.Warn("rule warning", "rule", v.Rule, "name", v.Name, "message", v.Message)
		}
	}
	s.audit.Record(ctx, entry)
	return res, err
}

// execute builds a command from the current model and pushes it onto the history.
func (s *Service) execute(build func(domain.ModelView) (Command, error)) step {
	return func(ctx context.Context) (domain.Message, domain.Result, error) {
		var cmd Command
		err := s.store.View(ctx, func(view domain.ModelView) error {
			var berr error
			cmd, berr = build(view)
			return berr
		})
		if err != nil {
			return domain.Message{}, domain.Result{}, err
		}
		res, err := s.history.Execute(ctx, cmd)
		return cmd.Description(), res, err
	}
}

func fixed(cmd Command) func(domain.ModelView) (Command, error) {
	return func(domain.ModelView) (Command, error) { return cmd, nil }
}

// Execute runs an already built command through the history.
func (s *Service) Execute(ctx context.Context, cmd Command) (domain.Result, error) {
	op := operation{name: "execute", entity: domain.EntityModel, action: domain.ActionUpdate}
	return s.run(ctx, op, s.execute(fixed(cmd)))
}

// AddEvent adds a house event, basic event or gate.
func (s *Service) AddEvent(ctx context.Context, ev domain.Event) (domain.Result, error) {
	op := operation{name: "add_event", entity: domain.EntityEvent, action: domain.ActionCreate, target: ev.Name}
	return s.run(ctx, op, s.execute(fixed(NewAddEvent(ev))))
}

// AddHouseEvent adds a house event in model scope.
func (s *Service) AddHouseEvent(ctx context.Context, name string, state bool) (domain.Result, error) {
	op := operation{name: "add_house_event", entity: domain.EntityEvent, action: domain.ActionCreate, target: name}
	return s.run(ctx, op, s.execute(fixed(NewAddEvent(domain.NewHouseEvent(name, state)))))
}

// AddBasicEvent adds a basic event in model scope. expr may be nil.
func (s *Service) AddBasicEvent(ctx context.Context, name string, expr *domain.Expression) (domain.Result, error) {
	op := operation{name: "add_basic_event", entity: domain.EntityEvent, action: domain.ActionCreate, target: name}
	return s.run(ctx, op, s.execute(fixed(NewAddEvent(domain.NewBasicEvent(name, expr)))))
}

// AddGate adds a gate to faultTree.
func (s *Service) AddGate(ctx context.Context, name, faultTree string, formula domain.Formula) (domain.Result, error) {
	op := operation{name: "add_gate", entity: domain.EntityEvent, action: domain.ActionCreate, target: name}
	return s.run(ctx, op, s.execute(fixed(NewAddEvent(domain.NewGate(name, faultTree, formula)))))
}

// RemoveEvent removes an event that no formula references.
func (s *Service) RemoveEvent(ctx context.Context, name string) (domain.Result, error) {
	op := operation{name: "remove_event", entity: domain.EntityEvent, action: domain.ActionDelete, target: name}
	return s.run(ctx, op, s.execute(func(view domain.ModelView) (Command, error) {
		return NewRemoveEvent(view, name)
	}))
}

// RenameEvent renames an event and every reference to it.
func (s *Service) RenameEvent(ctx context.Context, oldName, newName string) (domain.Result, error) {
	op := operation{name: "rename_event", entity: domain.EntityEvent, action: domain.ActionRename, target: oldName}
	return s.run(ctx, op, s.execute(func(view domain.ModelView) (Command, error) {
		return NewRenameEvent(view, oldName, newName)
	}))
}

// SetLabel changes an event label.
func (s *Service) SetLabel(ctx context.Context, name, label string) (domain.Result, error) {
	op := operation{name: "set_label", entity: domain.EntityEvent, action: domain.ActionUpdate, target: name}
	return s.run(ctx, op, s.execute(func(view domain.ModelView) (Command, error) {
		return NewSetLabel(view, name, label)
	}))
}

// SetHouseState changes the state of a house event.
func (s *Service) SetHouseState(ctx context.Context, name string, state bool) (domain.Result, error) {
	op := operation{name: "set_house_state", entity: domain.EntityEvent, action: domain.ActionUpdate, target: name}
	return s.run(ctx, op, s.execute(func(view domain.ModelView) (Command, error) {
		return NewSetHouseState(view, name, state)
	}))
}

// SetFlavor changes the flavor of a basic event.
func (s *Service) SetFlavor(ctx context.Context, name string, flavor domain.Flavor) (domain.Result, error) {
	op := operation{name: "set_flavor", entity: domain.EntityEvent, action: domain.ActionUpdate, target: name}
	return s.run(ctx, op, s.execute(func(view domain.ModelView) (Command, error) {
		return NewSetFlavor(view, name, flavor)
	}))
}

// SetExpression replaces the expression of a basic event; nil removes it.
func (s *Service) SetExpression(ctx context.Context, name string, expr *domain.Expression) (domain.Result, error) {
	op := operation{name: "set_expression", entity: domain.EntityEvent, action: domain.ActionUpdate, target: name}
	return s.run(ctx, op, s.execute(func(view domain.ModelView) (Command, error) {
		return NewSetExpression(view, name, expr)
	}))
}

// RetypeEvent replaces an event with another kind under the same name.
func (s *Service) RetypeEvent(ctx context.Context, replacement domain.Event) (domain.Result, error) {
	op := operation{name: "retype_event", entity: domain.EntityEvent, action: domain.ActionUpdate, target: replacement.Name}
	return s.run(ctx, op, s.execute(func(view domain.ModelView) (Command, error) {
		return NewRetypeEvent(view, replacement)
	}))
}

// UpdateFormula replaces a gate formula.
func (s *Service) UpdateFormula(ctx context.Context, gate string, formula domain.Formula) (domain.Result, error) {
	op := operation{name: "update_formula", entity: domain.EntityEvent, action: domain.ActionUpdate, target: gate}
	return s.run(ctx, op, s.execute(func(view domain.ModelView) (Command, error) {
		return NewUpdateFormula(view, gate, formula)
	}))
}

// AddArgument appends arg to a gate formula.
func (s *Service) AddArgument(ctx context.Context, gate, arg string) (domain.Result, error) {
	op := operation{name: "add_argument", entity: domain.EntityEvent, action: domain.ActionUpdate, target: gate}
	return s.run(ctx, op, s.execute(func(view domain.ModelView) (Command, error) {
		return NewAddArgument(view, gate, arg)
	}))
}

// RemoveArgument drops arg from a gate formula.
func (s *Service) RemoveArgument(ctx context.Context, gate, arg string) (domain.Result, error) {
	op := operation{name: "remove_argument", entity: domain.EntityEvent, action: domain.ActionUpdate, target: gate}
	return s.run(ctx, op, s.execute(func(view domain.ModelView) (Command, error) {
		return NewRemoveArgument(view, gate, arg)
	}))
}

// AddFaultTree adds an empty fault tree.
func (s *Service) AddFaultTree(ctx context.Context, name string) (domain.Result, error) {
	op := operation{name: "add_fault_tree", entity: domain.EntityFaultTree, action: domain.ActionCreate, target: name}
	return s.run(ctx, op, s.execute(fixed(NewAddFaultTree(name))))
}

// AddFaultTreeWithGate adds a fault tree with gate as its root.
func (s *Service) AddFaultTreeWithGate(ctx context.Context, name string, gate domain.Event) (domain.Result, error) {
	op := operation{name: "add_fault_tree_with_gate", entity: domain.EntityFaultTree, action: domain.ActionCreate, target: name}
	return s.run(ctx, op, s.execute(func(domain.ModelView) (Command, error) {
		return NewAddFaultTreeWithGate(name, gate)
	}))
}

// RemoveFaultTree removes a fault tree that holds at most its root gate.
func (s *Service) RemoveFaultTree(ctx context.Context, name string) (domain.Result, error) {
	op := operation{name: "remove_fault_tree", entity: domain.EntityFaultTree, action: domain.ActionDelete, target: name}
	return s.run(ctx, op, s.execute(func(view domain.ModelView) (Command, error) {
		return NewRemoveFaultTree(view, name)
	}))
}

// RenameModel changes the model name.
func (s *Service) RenameModel(ctx context.Context, name string) (domain.Result, error) {
	op := operation{name: "rename_model", entity: domain.EntityModel, action: domain.ActionRename, target: name}
	return s.run(ctx, op, s.execute(func(view domain.ModelView) (Command, error) {
		return NewRenameModel(view, name), nil
	}))
}

// Undo reverts the last applied command.
func (s *Service) Undo(ctx context.Context) (domain.Result, error) {
	op := operation{name: "undo", entity: domain.EntityModel, action: domain.ActionUpdate}
	return s.run(ctx, op, func(ctx context.Context) (domain.Message, domain.Result, error) {
		desc, _ := s.history.UndoText()
		res, err := s.history.Undo(ctx)
		return desc, res, err
	})
}

// Redo re-applies the last undone command.
func (s *Service) Redo(ctx context.Context) (domain.Result, error) {
	op := operation{name: "redo", entity: domain.EntityModel, action: domain.ActionUpdate}
	return s.run(ctx, op, func(ctx context.Context) (domain.Message, domain.Result, error) {
		desc, _ := s.history.RedoText()
		res, err := s.history.Redo(ctx)
		return desc, res, err
	})
}

type snapshotter interface {
	ExportState() memory.Snapshot
	Restore(ctx context.Context, snapshot memory.Snapshot) error
}

// Snapshot returns an ordered copy of the whole model.
func (s *Service) Snapshot() (memory.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.store.(snapshotter)
	if !ok {
		return memory.Snapshot{}, fmt.Errorf("store %T does not support snapshots", s.store)
	}
	return st.ExportState(), nil
}

// Load replaces the model with snapshot. The history is cleared and the new
// model is marked clean; loading is not undoable.
func (s *Service) Load(ctx context.Context, snapshot memory.Snapshot) error {
	op := operation{name: "load_model", entity: domain.EntityModel, action: domain.ActionCreate, target: snapshot.Name}
	_, err := s.run(ctx, op, func(ctx context.Context) (domain.Message, domain.Result, error) {
		desc := domain.NewMessage(domain.MsgLoadModel, snapshot.Name)
		st, ok := s.store.(snapshotter)
		if !ok {
			return desc, domain.Result{}, fmt.Errorf("store %T does not support snapshots", s.store)
		}
		if err := st.Restore(ctx, snapshot); err != nil {
			return desc, domain.Result{}, err
		}
		s.history.Clear()
		return desc, domain.Result{}, nil
	})
	return err
}
