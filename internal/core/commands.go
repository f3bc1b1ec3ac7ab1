package core

import (
	"strconv"

	"faultcore/pkg/domain"
)

// Command is a reversible model mutation. Commands capture everything they
// need at construction and never change afterwards, so Apply and Revert can
// be replayed any number of times by the history.
type Command interface {
	Description() domain.Message
	Apply(tx domain.Transaction) error
	Revert(tx domain.Transaction) error
}

// Compound groups commands that must apply and revert as a unit. Children
// apply in order and revert in reverse order.
type Compound struct {
	description domain.Message
	children    []Command
}

// NewCompound builds a compound command.
func NewCompound(description domain.Message, children ...Command) *Compound {
	return &Compound{description: description, children: append([]Command(nil), children...)}
}

func (c *Compound) Description() domain.Message { return c.description }

// Children returns the grouped commands in apply order.
func (c *Compound) Children() []Command { return append([]Command(nil), c.children...) }

func (c *Compound) Apply(tx domain.Transaction) error {
	for _, child := range c.children {
		if err := child.Apply(tx); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compound) Revert(tx domain.Transaction) error {
	for i := len(c.children) - 1; i >= 0; i-- {
		if err := c.children[i].Revert(tx); err != nil {
			return err
		}
	}
	return nil
}

// AddEvent registers a new event.
type AddEvent struct {
	event domain.Event
	at    domain.Placement
}

// NewAddEvent appends ev to the registry and, for contained events, to its
// fault tree. The first gate of an empty tree becomes its root.
func NewAddEvent(ev domain.Event) *AddEvent {
	return &AddEvent{event: ev.Clone(), at: domain.Append}
}

// NewAddRootGate adds gate as the designated root of its fault tree.
func NewAddRootGate(gate domain.Event) *AddEvent {
	return &AddEvent{event: gate.Clone(), at: domain.Placement{Index: -1, Member: -1, Root: true}}
}

func (c *AddEvent) Description() domain.Message {
	return domain.NewMessage(domain.MsgAddEvent, c.event.Name)
}

// Event returns the event added by the command.
func (c *AddEvent) Event() domain.Event { return c.event.Clone() }

func (c *AddEvent) Apply(tx domain.Transaction) error {
	return tx.InsertEvent(c.event.Clone(), c.at)
}

func (c *AddEvent) Revert(tx domain.Transaction) error {
	_, _, err := tx.DeleteEvent(c.event.Name)
	return err
}

// RemoveEvent deletes an event and restores it at the same position on revert.
type RemoveEvent struct {
	event domain.Event
	at    domain.Placement
}

// NewRemoveEvent captures the event and its placement from view.
func NewRemoveEvent(view domain.ModelView, name string) (*RemoveEvent, error) {
	ev, ok := view.FindEvent(name)
	if !ok {
		return nil, domain.NotFoundError("event", name)
	}
	if deps := view.Dependents(name); len(deps) > 0 {
		return nil, domain.EventDependencyError(name, deps)
	}
	at, _ := view.Locate(name)
	return &RemoveEvent{event: ev, at: at}, nil
}

func (c *RemoveEvent) Description() domain.Message {
	return domain.NewMessage(domain.MsgRemoveEvent, c.event.Name)
}

func (c *RemoveEvent) Apply(tx domain.Transaction) error {
	_, _, err := tx.DeleteEvent(c.event.Name)
	return err
}

func (c *RemoveEvent) Revert(tx domain.Transaction) error {
	return tx.InsertEvent(c.event.Clone(), c.at)
}

// RenameEvent renames an event together with every reference to it.
type RenameEvent struct {
	oldName string
	newName string
}

// NewRenameEvent validates the rename against view.
func NewRenameEvent(view domain.ModelView, oldName, newName string) (*RenameEvent, error) {
	ev, ok := view.FindEvent(oldName)
	if !ok {
		return nil, domain.NotFoundError("event", oldName)
	}
	if err := domain.ValidateRename(view, ev, newName); err != nil {
		return nil, err
	}
	return &RenameEvent{oldName: oldName, newName: newName}, nil
}

func (c *RenameEvent) Description() domain.Message {
	return domain.NewMessage(domain.MsgRenameEvent, c.oldName, c.newName)
}

func (c *RenameEvent) Apply(tx domain.Transaction) error {
	return tx.RenameEvent(c.oldName, c.newName)
}

func (c *RenameEvent) Revert(tx domain.Transaction) error {
	return tx.RenameEvent(c.newName, c.oldName)
}

// eventUpdate swaps an event between two captured versions of the same
// identity. It backs every in-place attribute edit.
type eventUpdate struct {
	description domain.Message
	before      domain.Event
	after       domain.Event
}

func (c *eventUpdate) Description() domain.Message { return c.description }

func (c *eventUpdate) Apply(tx domain.Transaction) error {
	return c.swap(tx, c.after)
}

func (c *eventUpdate) Revert(tx domain.Transaction) error {
	return c.swap(tx, c.before)
}

func (c *eventUpdate) swap(tx domain.Transaction, target domain.Event) error {
	_, err := tx.UpdateEvent(target.Name, func(ev *domain.Event) error {
		*ev = target.Clone()
		return nil
	})
	return err
}

func newEventUpdate(view domain.ModelView, name string, description domain.Message, mutate func(*domain.Event) error) (*eventUpdate, error) {
	before, ok := view.FindEvent(name)
	if !ok {
		return nil, domain.NotFoundError("event", name)
	}
	after := before.Clone()
	if err := mutate(&after); err != nil {
		return nil, err
	}
	if err := after.CheckShape(); err != nil {
		return nil, err
	}
	return &eventUpdate{description: description, before: before, after: after}, nil
}

// SetLabel changes the label of an event.
type SetLabel struct{ *eventUpdate }

// NewSetLabel captures the current label of name.
func NewSetLabel(view domain.ModelView, name, label string) (*SetLabel, error) {
	u, err := newEventUpdate(view, name, domain.NewMessage(domain.MsgSetLabel, name, label), func(ev *domain.Event) error {
		ev.Label = label
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &SetLabel{u}, nil
}

// SetHouseState flips the Boolean state of a house event.
type SetHouseState struct{ *eventUpdate }

// NewSetHouseState captures the current state of a house event.
func NewSetHouseState(view domain.ModelView, name string, state bool) (*SetHouseState, error) {
	u, err := newEventUpdate(view, name, domain.NewMessage(domain.MsgSetHouseState, name, strconv.FormatBool(state)), func(ev *domain.Event) error {
		if ev.Kind != domain.KindHouseEvent {
			return domain.InvalidEventError(name, "not a house event")
		}
		ev.House.State = state
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &SetHouseState{u}, nil
}

// SetFlavor changes a basic event between basic and undeveloped.
type SetFlavor struct{ *eventUpdate }

// NewSetFlavor captures the current flavor of a basic event.
func NewSetFlavor(view domain.ModelView, name string, flavor domain.Flavor) (*SetFlavor, error) {
	u, err := newEventUpdate(view, name, domain.NewMessage(domain.MsgSetFlavor, name, string(flavor)), func(ev *domain.Event) error {
		if ev.Kind != domain.KindBasicEvent {
			return domain.InvalidEventError(name, "not a basic event")
		}
		ev.Basic.Flavor = flavor
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &SetFlavor{u}, nil
}

// SetExpression replaces or clears the probability expression of a basic event.
type SetExpression struct{ *eventUpdate }

// NewSetExpression captures the current expression. A nil expr removes it.
func NewSetExpression(view domain.ModelView, name string, expr *domain.Expression) (*SetExpression, error) {
	u, err := newEventUpdate(view, name, domain.NewMessage(domain.MsgSetExpression, name), func(ev *domain.Event) error {
		if ev.Kind != domain.KindBasicEvent {
			return domain.InvalidEventError(name, "not a basic event")
		}
		if expr == nil {
			ev.Basic.Expression = nil
			return nil
		}
		e := *expr
		ev.Basic.Expression = &e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &SetExpression{u}, nil
}

// UpdateFormula replaces the formula of a gate.
type UpdateFormula struct{ *eventUpdate }

// NewUpdateFormula captures the current formula of gate. Structural argument
// checks run eagerly; arity is left to the commit-time rule.
func NewUpdateFormula(view domain.ModelView, gate string, formula domain.Formula) (*UpdateFormula, error) {
	current, ok := view.FindEvent(gate)
	if !ok {
		return nil, domain.NotFoundError("event", gate)
	}
	if !current.IsGate() {
		return nil, domain.InvalidEventError(gate, "not a gate")
	}
	if err := domain.ValidateFormula(view, gate, current.Gate.Formula, formula); err != nil {
		return nil, err
	}
	u, err := newEventUpdate(view, gate, domain.NewMessage(domain.MsgUpdateFormula, gate), func(ev *domain.Event) error {
		ev.Gate.Formula = formula.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &UpdateFormula{u}, nil
}

// NewAddArgument appends arg to the formula of gate.
func NewAddArgument(view domain.ModelView, gate, arg string) (*UpdateFormula, error) {
	current, ok := view.FindEvent(gate)
	if !ok {
		return nil, domain.NotFoundError("event", gate)
	}
	if !current.IsGate() {
		return nil, domain.InvalidEventError(gate, "not a gate")
	}
	if err := domain.ValidateArgument(view, gate, current.Gate.Formula, arg); err != nil {
		return nil, err
	}
	next := current.Gate.Formula.Clone()
	next.Args = append(next.Args, arg)
	return NewUpdateFormula(view, gate, next)
}

// NewRemoveArgument drops arg from the formula of gate.
func NewRemoveArgument(view domain.ModelView, gate, arg string) (*UpdateFormula, error) {
	current, ok := view.FindEvent(gate)
	if !ok {
		return nil, domain.NotFoundError("event", gate)
	}
	if !current.IsGate() {
		return nil, domain.InvalidEventError(gate, "not a gate")
	}
	if !current.Gate.Formula.HasArg(arg) {
		return nil, domain.NotFoundError("argument", arg)
	}
	next := current.Gate.Formula.Clone()
	next.Args = next.Args[:0]
	for _, a := range current.Gate.Formula.Args {
		if a != arg {
			next.Args = append(next.Args, a)
		}
	}
	return NewUpdateFormula(view, gate, next)
}

// RetypeEvent replaces an event with one of a different kind under the same
// name. References by name stay valid.
type RetypeEvent struct {
	before   domain.Event
	after    domain.Event
	beforeAt domain.Placement
	afterAt  domain.Placement
}

// NewRetypeEvent captures the current event. The replacement keeps its member
// slot (and root role, when it is a gate) if it stays in the same fault tree.
func NewRetypeEvent(view domain.ModelView, replacement domain.Event) (*RetypeEvent, error) {
	before, ok := view.FindEvent(replacement.Name)
	if !ok {
		return nil, domain.NotFoundError("event", replacement.Name)
	}
	if err := replacement.CheckShape(); err != nil {
		return nil, err
	}
	beforeAt, _ := view.Locate(before.Name)
	afterAt := domain.Append
	if replacement.Container != "" && replacement.Container == before.Container {
		afterAt.Member = beforeAt.Member
		afterAt.Root = beforeAt.Root && replacement.IsGate()
	}
	return &RetypeEvent{
		before:   before,
		after:    replacement.Clone(),
		beforeAt: beforeAt,
		afterAt:  afterAt,
	}, nil
}

func (c *RetypeEvent) Description() domain.Message {
	return domain.NewMessage(domain.MsgRetypeEvent, c.before.Name)
}

func (c *RetypeEvent) Apply(tx domain.Transaction) error {
	_, _, err := tx.ReplaceEvent(c.after.Clone(), c.afterAt)
	return err
}

func (c *RetypeEvent) Revert(tx domain.Transaction) error {
	_, _, err := tx.ReplaceEvent(c.before.Clone(), c.beforeAt)
	return err
}

// AddFaultTree registers an empty fault tree.
type AddFaultTree struct {
	tree domain.FaultTree
}

// NewAddFaultTree builds the command for a new, empty fault tree.
func NewAddFaultTree(name string) *AddFaultTree {
	return &AddFaultTree{tree: domain.FaultTree{Name: name}}
}

func (c *AddFaultTree) Description() domain.Message {
	return domain.NewMessage(domain.MsgAddFaultTree, c.tree.Name)
}

func (c *AddFaultTree) Apply(tx domain.Transaction) error {
	return tx.InsertFaultTree(c.tree.Clone(), -1)
}

func (c *AddFaultTree) Revert(tx domain.Transaction) error {
	_, _, err := tx.DeleteFaultTree(c.tree.Name)
	return err
}

// NewAddFaultTreeWithGate adds a fault tree together with its root gate. The
// gate is placed in the new tree regardless of its Container field.
func NewAddFaultTreeWithGate(tree string, gate domain.Event) (*Compound, error) {
	if !gate.IsGate() {
		return nil, domain.InvalidEventError(gate.Name, "a fault tree root must be a gate")
	}
	gate = gate.Clone()
	gate.Container = tree
	return NewCompound(domain.NewMessage(domain.MsgAddFaultTreeWithGate, tree, gate.Name),
		NewAddFaultTree(tree),
		NewAddRootGate(gate),
	), nil
}

// removeFaultTree deletes an empty fault tree and restores it at its index.
type removeFaultTree struct {
	tree  domain.FaultTree
	index int
}

func (c *removeFaultTree) Description() domain.Message {
	return domain.NewMessage(domain.MsgRemoveFaultTree, c.tree.Name)
}

func (c *removeFaultTree) Apply(tx domain.Transaction) error {
	_, _, err := tx.DeleteFaultTree(c.tree.Name)
	return err
}

func (c *removeFaultTree) Revert(tx domain.Transaction) error {
	return tx.InsertFaultTree(domain.FaultTree{Name: c.tree.Name, Label: c.tree.Label}, c.index)
}

// NewRemoveFaultTree removes a fault tree. A tree holding only its root gate
// is removed together with that gate; any other member blocks the removal.
func NewRemoveFaultTree(view domain.ModelView, name string) (Command, error) {
	ft, ok := view.FindFaultTree(name)
	if !ok {
		return nil, domain.NotFoundError("fault tree", name)
	}
	index := 0
	for i, t := range view.ListFaultTrees() {
		if t.Name == name {
			index = i
			break
		}
	}
	var others []string
	for _, m := range ft.Members {
		if m != ft.Root {
			others = append(others, m)
		}
	}
	if len(others) > 0 {
		return nil, domain.FaultTreeDependencyError(ft.Name, ft.Root, others)
	}
	tree := &removeFaultTree{tree: ft, index: index}
	if ft.Root == "" {
		return tree, nil
	}
	root, err := NewRemoveEvent(view, ft.Root)
	if err != nil {
		return nil, err
	}
	return NewCompound(domain.NewMessage(domain.MsgRemoveFaultTreeRoot, ft.Name, ft.Root), root, tree), nil
}

// RenameModel changes the model name.
type RenameModel struct {
	before string
	after  string
}

// NewRenameModel captures the current model name.
func NewRenameModel(view domain.ModelView, name string) *RenameModel {
	return &RenameModel{before: view.ModelName(), after: name}
}

func (c *RenameModel) Description() domain.Message {
	return domain.NewMessage(domain.MsgRenameModel, c.after)
}

func (c *RenameModel) Apply(tx domain.Transaction) error {
	tx.SetModelName(c.after)
	return nil
}

func (c *RenameModel) Revert(tx domain.Transaction) error {
	tx.SetModelName(c.before)
	return nil
}
