// Package memory provides the in-memory model registry and its transactional
// store. Durable backends embed it and snapshot its state after commits.
package memory

import (
	"context"
	"fmt"
	"sync"

	"faultcore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Event aliases domain.Event for registry operations.
	Event = domain.Event
	// FaultTree aliases domain.FaultTree.
	FaultTree = domain.FaultTree
	// Placement aliases domain.Placement.
	Placement = domain.Placement
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// ModelView aliases domain.ModelView providing read-only state.
	ModelView = domain.ModelView
)

type modelState struct {
	name      string
	label     string
	events    map[string]Event
	order     []string
	trees     map[string]FaultTree
	treeOrder []string
}

// Snapshot captures a point-in-time ordered copy of the model.
type Snapshot struct {
	Name       string      `json:"name,omitempty"`
	Label      string      `json:"label,omitempty"`
	Events     []Event     `json:"events"`
	FaultTrees []FaultTree `json:"fault_trees"`
}

func newModelState() modelState {
	return modelState{
		events: make(map[string]Event),
		trees:  make(map[string]FaultTree),
	}
}

func (s modelState) clone() modelState {
	cloned := modelState{
		name:      s.name,
		label:     s.label,
		events:    make(map[string]Event, len(s.events)),
		order:     append([]string(nil), s.order...),
		trees:     make(map[string]FaultTree, len(s.trees)),
		treeOrder: append([]string(nil), s.treeOrder...),
	}
	for k, v := range s.events {
		cloned.events[k] = v.Clone()
	}
	for k, v := range s.trees {
		cloned.trees[k] = v.Clone()
	}
	return cloned
}

func snapshotFromState(state modelState) Snapshot {
	s := Snapshot{
		Name:       state.name,
		Label:      state.label,
		Events:     make([]Event, 0, len(state.order)),
		FaultTrees: make([]FaultTree, 0, len(state.treeOrder)),
	}
	for _, name := range state.order {
		s.Events = append(s.Events, state.events[name].Clone())
	}
	for _, name := range state.treeOrder {
		s.FaultTrees = append(s.FaultTrees, state.trees[name].Clone())
	}
	return s
}

// stateFromSnapshot builds registry state without validation. Duplicate
// names are kept out of the maps but remain visible to ValidateModel through
// the returned lists.
func stateFromSnapshot(s Snapshot) modelState {
	state := newModelState()
	state.name = s.Name
	state.label = s.Label
	for _, ev := range s.Events {
		if _, dup := state.events[ev.Name]; dup {
			continue
		}
		state.events[ev.Name] = ev.Clone()
		state.order = append(state.order, ev.Name)
	}
	for _, ft := range s.FaultTrees {
		if _, dup := state.trees[ft.Name]; dup {
			continue
		}
		state.trees[ft.Name] = ft.Clone()
		state.treeOrder = append(state.treeOrder, ft.Name)
	}
	return state
}

// snapshotView exposes a raw snapshot (duplicates included) to ValidateModel.
type snapshotView struct {
	modelView
	snapshot Snapshot
}

func (v snapshotView) ListEvents() []Event         { return v.snapshot.Events }
func (v snapshotView) ListFaultTrees() []FaultTree { return v.snapshot.FaultTrees }

// ValidateSnapshot runs the whole-model validator over a snapshot.
func ValidateSnapshot(s Snapshot) error {
	state := stateFromSnapshot(s)
	return domain.ValidateModel(snapshotView{modelView: modelView{state: &state}, snapshot: s})
}

// Store provides an in-memory transactional store for the fault-tree model.
type Store struct {
	mu     sync.RWMutex
	state  modelState
	engine *RulesEngine
}

// NewStore constructs an in-memory store backed by the provided rules engine.
// A nil engine selects the default structural rules.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewDefaultRulesEngine()
	}
	return &Store{
		state:  newModelState(),
		engine: engine,
	}
}

// ExportState clones the current model for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromState(s.state)
}

// ImportState replaces the model with the provided snapshot after running the
// whole-model validator. On error the store is left unchanged.
func (s *Store) ImportState(snapshot Snapshot) error {
	return s.ImportStateWithHook(context.Background(), snapshot, nil)
}

// CommitHook receives the candidate model before it replaces the current one.
// A hook error aborts the commit and leaves the store unchanged.
type CommitHook func(ctx context.Context, candidate Snapshot) error

// ImportStateWithHook is ImportState with a commit hook run after validation.
func (s *Store) ImportStateWithHook(ctx context.Context, snapshot Snapshot, hook CommitHook) error {
	if err := ValidateSnapshot(snapshot); err != nil {
		return err
	}
	state := stateFromSnapshot(snapshot)
	s.mu.Lock()
	defer s.mu.Unlock()
	if hook != nil {
		if err := hook(ctx, snapshotFromState(state)); err != nil {
			return err
		}
	}
	s.state = state
	return nil
}

// Restore replaces the model with snapshot. Durable backends override it to
// persist the restored state.
func (s *Store) Restore(_ context.Context, snapshot Snapshot) error {
	return s.ImportState(snapshot)
}

// RulesEngine exposes the configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// RunInTransaction executes fn against a copy of the model. The copy replaces
// the model only when fn succeeds and no blocking rule violation is found.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	return s.RunInTransactionWithHook(ctx, fn, nil)
}

// RunInTransactionWithHook is RunInTransaction with a commit hook that runs
// once fn and the rules have accepted the copy.
func (s *Store) RunInTransactionWithHook(ctx context.Context, fn func(tx Transaction) error, hook CommitHook) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{state: s.state.clone()}
	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		res, err := s.engine.Evaluate(ctx, tx.View(), tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	if hook != nil {
		if err := hook(ctx, snapshotFromState(tx.state)); err != nil {
			return result, err
		}
	}
	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only copy of the model.
func (s *Store) View(_ context.Context, fn func(ModelView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(modelView{state: &snapshot})
}

// FindEvent retrieves an event by name.
func (s *Store) FindEvent(name string) (Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return modelView{state: &s.state}.FindEvent(name)
}

// ListEvents returns all events in registry order.
func (s *Store) ListEvents() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return modelView{state: &s.state}.ListEvents()
}

// ListFaultTrees returns all fault trees in insertion order.
func (s *Store) ListFaultTrees() []FaultTree {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return modelView{state: &s.state}.ListFaultTrees()
}

// ModelName returns the model name, empty when unnamed.
func (s *Store) ModelName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.name
}

type modelView struct {
	state *modelState
}

func (v modelView) ModelName() string  { return v.state.name }
func (v modelView) ModelLabel() string { return v.state.label }

func (v modelView) FindEvent(name string) (Event, bool) {
	ev, ok := v.state.events[name]
	if !ok {
		return Event{}, false
	}
	return ev.Clone(), true
}

func (v modelView) ListEvents() []Event {
	out := make([]Event, 0, len(v.state.order))
	for _, name := range v.state.order {
		out = append(out, v.state.events[name].Clone())
	}
	return out
}

func (v modelView) FindFaultTree(name string) (FaultTree, bool) {
	ft, ok := v.state.trees[name]
	if !ok {
		return FaultTree{}, false
	}
	return ft.Clone(), true
}

func (v modelView) ListFaultTrees() []FaultTree {
	out := make([]FaultTree, 0, len(v.state.treeOrder))
	for _, name := range v.state.treeOrder {
		out = append(out, v.state.trees[name].Clone())
	}
	return out
}

func (v modelView) Dependents(name string) []string {
	var deps []string
	for _, gate := range v.state.order {
		ev := v.state.events[gate]
		if ev.IsGate() && ev.Gate.Formula.HasArg(name) {
			deps = append(deps, gate)
		}
	}
	return deps
}

func (v modelView) Locate(name string) (Placement, bool) {
	ev, ok := v.state.events[name]
	if !ok {
		return Placement{}, false
	}
	p := Placement{Index: indexOf(v.state.order, name), Member: -1}
	if ev.Container != "" {
		ft := v.state.trees[ev.Container]
		p.Member = indexOf(ft.Members, name)
		p.Root = ft.Root == name
	}
	return p, true
}

type transaction struct {
	state   modelState
	changes []Change
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// View returns a read-only view over the transactional state.
func (tx *transaction) View() ModelView {
	return modelView{state: &tx.state}
}

// InsertEvent registers a new event at the requested placement.
func (tx *transaction) InsertEvent(ev Event, at Placement) error {
	view := tx.View()
	if err := ev.CheckShape(); err != nil {
		return err
	}
	if err := domain.ValidateName(view, ev.Name); err != nil {
		return err
	}
	if ev.IsGate() {
		if err := domain.ValidateFormula(view, ev.Name, domain.Formula{}, ev.Gate.Formula); err != nil {
			return err
		}
	}
	if err := tx.attach(ev, at); err != nil {
		return err
	}
	tx.state.events[ev.Name] = ev.Clone()
	tx.state.order = insertAt(tx.state.order, at.Index, ev.Name)
	tx.recordChange(Change{Entity: domain.EntityEvent, Action: domain.ActionCreate, Name: ev.Name, After: ev.Clone()})
	return nil
}

// attach adds ev to its container honoring the root rules.
func (tx *transaction) attach(ev Event, at Placement) error {
	if ev.Container == "" {
		if at.Root {
			return domain.InvalidEventError(ev.Name, "only gates of a fault tree can be roots")
		}
		return nil
	}
	ft, ok := tx.state.trees[ev.Container]
	if !ok {
		return domain.NotFoundError("fault tree", ev.Container)
	}
	if at.Root && !ev.IsGate() {
		return domain.InvalidEventError(ev.Name, "only gates of a fault tree can be roots")
	}
	if at.Root && ft.Root != "" {
		return domain.FaultTreeRedefinedError(ft.Name)
	}
	if ev.IsGate() && (at.Root || ft.Root == "") {
		ft.Root = ev.Name
	}
	ft.Members = insertAt(ft.Members, at.Member, ev.Name)
	tx.state.trees[ft.Name] = ft
	tx.recordChange(Change{Entity: domain.EntityFaultTree, Action: domain.ActionUpdate, Name: ft.Name})
	return nil
}

// detach removes name from its container. A root may only leave a tree that
// has no other members unless a successor root is about to take its place.
func (tx *transaction) detach(ev Event, successor bool) (member int, root bool, err error) {
	if ev.Container == "" {
		return -1, false, nil
	}
	ft := tx.state.trees[ev.Container]
	root = ft.Root == ev.Name
	if root && !successor && len(ft.Members) > 1 {
		others := make([]string, 0, len(ft.Members)-1)
		for _, m := range ft.Members {
			if m != ev.Name {
				others = append(others, m)
			}
		}
		return 0, false, domain.FaultTreeDependencyError(ft.Name, ft.Root, others)
	}
	member = indexOf(ft.Members, ev.Name)
	ft.Members = removeAt(ft.Members, member)
	if root {
		ft.Root = ""
	}
	tx.state.trees[ft.Name] = ft
	tx.recordChange(Change{Entity: domain.EntityFaultTree, Action: domain.ActionUpdate, Name: ft.Name})
	return member, root, nil
}

// DeleteEvent removes an event that no formula references.
func (tx *transaction) DeleteEvent(name string) (Event, Placement, error) {
	ev, ok := tx.state.events[name]
	if !ok {
		return Event{}, Placement{}, domain.NotFoundError("event", name)
	}
	if deps := tx.View().Dependents(name); len(deps) > 0 {
		return Event{}, Placement{}, domain.EventDependencyError(name, deps)
	}
	member, root, err := tx.detach(ev, false)
	if err != nil {
		return Event{}, Placement{}, err
	}
	index := indexOf(tx.state.order, name)
	tx.state.order = removeAt(tx.state.order, index)
	delete(tx.state.events, name)
	tx.recordChange(Change{Entity: domain.EntityEvent, Action: domain.ActionDelete, Name: name, Before: ev.Clone()})
	return ev.Clone(), Placement{Index: index, Member: member, Root: root}, nil
}

// ReplaceEvent swaps the payload of an existing event while keeping its name
// and registry slot. References by name stay valid; container membership
// moves to the placement requested for the new event.
func (tx *transaction) ReplaceEvent(ev Event, at Placement) (Event, Placement, error) {
	old, ok := tx.state.events[ev.Name]
	if !ok {
		return Event{}, Placement{}, domain.NotFoundError("event", ev.Name)
	}
	if err := ev.CheckShape(); err != nil {
		return Event{}, Placement{}, err
	}
	successor := at.Root && ev.IsGate() && ev.Container == old.Container
	member, root, err := tx.detach(old, successor)
	if err != nil {
		return Event{}, Placement{}, err
	}
	if ev.IsGate() {
		if err := domain.ValidateFormula(tx.View(), ev.Name, domain.Formula{}, ev.Gate.Formula); err != nil {
			return Event{}, Placement{}, err
		}
	}
	if err := tx.attach(ev, at); err != nil {
		return Event{}, Placement{}, err
	}
	tx.state.events[ev.Name] = ev.Clone()
	tx.recordChange(Change{Entity: domain.EntityEvent, Action: domain.ActionUpdate, Name: ev.Name, Before: old.Clone(), After: ev.Clone()})
	previous := Placement{Index: indexOf(tx.state.order, ev.Name), Member: member, Root: root}
	return old.Clone(), previous, nil
}

// UpdateEvent applies mutator to an event. Identity fields (name, kind,
// container) are immutable here; formula edits are validated incrementally.
func (tx *transaction) UpdateEvent(name string, mutator func(*Event) error) (Event, error) {
	current, ok := tx.state.events[name]
	if !ok {
		return Event{}, domain.NotFoundError("event", name)
	}
	before := current.Clone()
	next := current.Clone()
	if err := mutator(&next); err != nil {
		return Event{}, err
	}
	if next.Name != before.Name || next.Kind != before.Kind || next.Container != before.Container {
		return Event{}, domain.InvalidEventError(name, "name, kind and container cannot change in place")
	}
	if err := next.CheckShape(); err != nil {
		return Event{}, err
	}
	if next.IsGate() {
		if err := domain.ValidateFormula(tx.View(), name, before.Gate.Formula, next.Gate.Formula); err != nil {
			return Event{}, err
		}
	}
	tx.state.events[name] = next.Clone()
	tx.recordChange(Change{Entity: domain.EntityEvent, Action: domain.ActionUpdate, Name: name, Before: before, After: next.Clone()})
	return next.Clone(), nil
}

// RenameEvent renames an event and rewrites every reference to it.
func (tx *transaction) RenameEvent(oldName, newName string) error {
	ev, ok := tx.state.events[oldName]
	if !ok {
		return domain.NotFoundError("event", oldName)
	}
	if err := domain.ValidateRename(tx.View(), ev, newName); err != nil {
		return err
	}
	for _, name := range tx.state.order {
		dep := tx.state.events[name]
		if !dep.IsGate() || !dep.Gate.Formula.HasArg(oldName) {
			continue
		}
		for i, arg := range dep.Gate.Formula.Args {
			if arg == oldName {
				dep.Gate.Formula.Args[i] = newName
			}
		}
		tx.state.events[name] = dep
		tx.recordChange(Change{Entity: domain.EntityEvent, Action: domain.ActionUpdate, Name: name})
	}
	if ev.Container != "" {
		ft := tx.state.trees[ev.Container]
		ft.Members[indexOf(ft.Members, oldName)] = newName
		if ft.Root == oldName {
			ft.Root = newName
		}
		tx.state.trees[ft.Name] = ft
	}
	tx.state.order[indexOf(tx.state.order, oldName)] = newName
	delete(tx.state.events, oldName)
	ev.Name = newName
	tx.state.events[newName] = ev
	tx.recordChange(Change{Entity: domain.EntityEvent, Action: domain.ActionRename, Name: newName, Before: oldName, After: newName})
	return nil
}

// InsertFaultTree registers an empty fault tree; gates join it through InsertEvent.
func (tx *transaction) InsertFaultTree(ft FaultTree, index int) error {
	if ft.Name == "" {
		return domain.InvalidNameError(ft.Name, "fault tree name must not be empty")
	}
	if _, exists := tx.state.trees[ft.Name]; exists {
		return domain.DuplicateNameError(ft.Name)
	}
	if ft.Root != "" || len(ft.Members) != 0 {
		return domain.InvalidEventError(ft.Name, "new fault trees must be empty")
	}
	tx.state.trees[ft.Name] = ft.Clone()
	tx.state.treeOrder = insertAt(tx.state.treeOrder, index, ft.Name)
	tx.recordChange(Change{Entity: domain.EntityFaultTree, Action: domain.ActionCreate, Name: ft.Name, After: ft.Clone()})
	return nil
}

// DeleteFaultTree removes an empty fault tree.
func (tx *transaction) DeleteFaultTree(name string) (FaultTree, int, error) {
	ft, ok := tx.state.trees[name]
	if !ok {
		return FaultTree{}, 0, domain.NotFoundError("fault tree", name)
	}
	if len(ft.Members) > 0 {
		others := make([]string, 0, len(ft.Members))
		for _, m := range ft.Members {
			if m != ft.Root {
				others = append(others, m)
			}
		}
		return FaultTree{}, 0, domain.FaultTreeDependencyError(ft.Name, ft.Root, others)
	}
	index := indexOf(tx.state.treeOrder, name)
	tx.state.treeOrder = removeAt(tx.state.treeOrder, index)
	delete(tx.state.trees, name)
	tx.recordChange(Change{Entity: domain.EntityFaultTree, Action: domain.ActionDelete, Name: name, Before: ft.Clone()})
	return ft.Clone(), index, nil
}

// SetModelName renames the model and returns the previous name.
func (tx *transaction) SetModelName(name string) string {
	previous := tx.state.name
	tx.state.name = name
	tx.recordChange(Change{Entity: domain.EntityModel, Action: domain.ActionRename, Before: previous, After: name})
	return previous
}

// SetModelLabel replaces the model label and returns the previous one.
func (tx *transaction) SetModelLabel(label string) string {
	previous := tx.state.label
	tx.state.label = label
	tx.recordChange(Change{Entity: domain.EntityModel, Action: domain.ActionUpdate, Before: previous, After: label})
	return previous
}

func indexOf(values []string, name string) int {
	for i, v := range values {
		if v == name {
			return i
		}
	}
	return -1
}

// insertAt inserts name at index; out-of-range indexes append.
func insertAt(values []string, index int, name string) []string {
	if index < 0 || index >= len(values) {
		return append(values, name)
	}
	values = append(values, "")
	copy(values[index+1:], values[index:])
	values[index] = name
	return values
}

func removeAt(values []string, index int) []string {
	if index < 0 || index >= len(values) {
		panic(fmt.Sprintf("memory: remove index %d out of range %d", index, len(values)))
	}
	return append(values[:index], values[index+1:]...)
}
