package core

import (
	"context"
	"sync"

	"faultcore/pkg/domain"
)

// History is the bounded undo/redo stack of executed commands. Every
// execute, undo and redo runs inside one store transaction, so a failing
// command leaves both the model and the history untouched.
type History struct {
	mu      sync.Mutex
	store   domain.PersistentStore
	logger  Logger
	entries []Command
	// index is the number of applied entries; entries[index:] is the redo tail.
	index int
	// clean is the index at which the model matched its saved state, or -1
	// once that state can no longer be reached.
	clean int
	limit int
}

// NewHistory constructs an empty history over store. A limit <= 0 keeps every
// command.
func NewHistory(store domain.PersistentStore, limit int, logger Logger) *History {
	if logger == nil {
		logger = noopLogger{}
	}
	return &History{store: store, logger: logger, limit: limit}
}

// Execute applies cmd and pushes it, discarding any redo tail.
func (h *History) Execute(ctx context.Context, cmd Command) (domain.Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	res, err := h.store.RunInTransaction(ctx, cmd.Apply)
	if err != nil {
		return res, err
	}
	if h.clean > h.index {
		h.clean = -1
	}
	h.entries = append(h.entries[:h.index], cmd)
	h.index++
	h.logger.Debug("command executed", "description", cmd.Description().Key, "args", cmd.Description().Args)
	h.trim()
	return res, nil
}

// Undo reverts the most recent applied command.
func (h *History) Undo(ctx context.Context) (domain.Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.index == 0 {
		return domain.Result{}, domain.NothingToUndoError()
	}
	cmd := h.entries[h.index-1]
	res, err := h.store.RunInTransaction(ctx, cmd.Revert)
	if err != nil {
		return res, err
	}
	h.index--
	h.logger.Debug("command undone", "description", cmd.Description().Key, "args", cmd.Description().Args)
	return res, nil
}

// Redo re-applies the most recently undone command.
func (h *History) Redo(ctx context.Context) (domain.Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.index == len(h.entries) {
		return domain.Result{}, domain.NothingToRedoError()
	}
	cmd := h.entries[h.index]
	res, err := h.store.RunInTransaction(ctx, cmd.Apply)
	if err != nil {
		return res, err
	}
	h.index++
	h.logger.Debug("command redone", "description", cmd.Description().Key, "args", cmd.Description().Args)
	return res, nil
}

// CanUndo reports whether an applied command exists.
func (h *History) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.index > 0
}

// CanRedo reports whether an undone command exists.
func (h *History) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.index < len(h.entries)
}

// UndoText describes the command Undo would revert.
func (h *History) UndoText() (domain.Message, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.index == 0 {
		return domain.Message{}, false
	}
	return h.entries[h.index-1].Description(), true
}

// RedoText describes the command Redo would re-apply.
func (h *History) RedoText() (domain.Message, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.index == len(h.entries) {
		return domain.Message{}, false
	}
	return h.entries[h.index].Description(), true
}

// Len returns the number of retained commands, applied or undone.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Limit returns the configured bound.
func (h *History) Limit() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.limit
}

// SetLimit changes the bound and evicts commands that no longer fit.
func (h *History) SetLimit(limit int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.limit = limit
	h.trim()
}

// Clear drops every command and marks the current model as clean.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = nil
	h.index = 0
	h.clean = 0
}

// MarkClean records the current position as the saved state.
func (h *History) MarkClean() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clean = h.index
}

// IsClean reports whether the model matches the last saved state.
func (h *History) IsClean() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clean == h.index
}

// trim evicts the oldest applied commands first, then the furthest redo
// entries, until the history fits its limit. Evicted applied commands become
// permanent.
func (h *History) trim() {
	if h.limit <= 0 {
		return
	}
	for len(h.entries) > h.limit {
		if h.index > 0 {
			evicted := h.entries[0]
			h.entries[0] = nil
			h.entries = h.entries[1:]
			h.index--
			if h.clean >= 0 {
				h.clean--
			}
			h.logger.Warn("undo limit reached, evicting oldest command",
				"limit", h.limit, "description", evicted.Description().Key, "args", evicted.Description().Args)
			continue
		}
		h.entries[len(h.entries)-1] = nil
		h.entries = h.entries[:len(h.entries)-1]
		if h.clean > len(h.entries) {
			h.clean = -1
		}
	}
}
