package domain

import "context"

// ModelView provides read-only access to the model for validators and rules.
type ModelView interface {
	ModelName() string
	ModelLabel() string
	FindEvent(name string) (Event, bool)
	ListEvents() []Event
	FindFaultTree(name string) (FaultTree, bool)
	ListFaultTrees() []FaultTree
	// Dependents lists the gates whose formulas reference name, in registry order.
	Dependents(name string) []string
	// Locate reports the current placement of an event.
	Locate(name string) (Placement, bool)
}

// Transaction exposes the model mutations that a store must support within
// an atomic scope. Every mutation validates its local invariants eagerly; the
// rules engine checks commit-time invariants before the transaction lands.
type Transaction interface {
	View() ModelView
	InsertEvent(ev Event, at Placement) error
	DeleteEvent(name string) (Event, Placement, error)
	ReplaceEvent(ev Event, at Placement) (Event, Placement, error)
	UpdateEvent(name string, mutator func(*Event) error) (Event, error)
	RenameEvent(oldName, newName string) error
	InsertFaultTree(ft FaultTree, index int) error
	DeleteFaultTree(name string) (FaultTree, int, error)
	SetModelName(name string) (previous string)
	SetModelLabel(label string) (previous string)
}

// PersistentStore is a minimal abstraction over model backends.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(ModelView) error) error
}
