package analysis

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"faultcore/internal/infra/persistence/memory"
	"faultcore/pkg/domain"
)

// Input is the immutable document handed to an analysis engine.
type Input struct {
	RunID     string          `json:"run_id"`
	CreatedAt time.Time       `json:"created_at"`
	Settings  Settings        `json:"settings"`
	Model     memory.Snapshot `json:"model"`
}

// InputOption configures NewInput.
type InputOption func(*inputOptions)

type inputOptions struct {
	newID func() string
	now   func() time.Time
}

// WithRunID fixes the run identifier instead of generating a UUID.
func WithRunID(id string) InputOption {
	return func(o *inputOptions) {
		if id != "" {
			o.newID = func() string { return id }
		}
	}
}

// WithNow overrides the creation timestamp source.
func WithNow(now func() time.Time) InputOption {
	return func(o *inputOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// NewInput validates settings and model and captures a deep copy of the
// snapshot. Probability analysis requires every basic event to carry an
// expression.
func NewInput(snapshot memory.Snapshot, settings Settings, opts ...InputOption) (*Input, error) {
	o := inputOptions{
		newID: uuid.NewString,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(&o)
	}
	if settings.Approximation == "" {
		settings.Approximation = ApproximationNone
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if err := memory.ValidateSnapshot(snapshot); err != nil {
		return nil, err
	}
	if settings.Probability {
		var missing []string
		for _, ev := range snapshot.Events {
			if ev.Kind == domain.KindBasicEvent && ev.Basic.Expression == nil {
				missing = append(missing, ev.Name)
			}
		}
		if len(missing) > 0 {
			return nil, domain.MissingExpressionError(missing)
		}
	}
	return &Input{
		RunID:     o.newID(),
		CreatedAt: o.now(),
		Settings:  settings,
		Model:     cloneSnapshot(snapshot),
	}, nil
}

func cloneSnapshot(s memory.Snapshot) memory.Snapshot {
	out := memory.Snapshot{Name: s.Name, Label: s.Label}
	out.Events = make([]domain.Event, len(s.Events))
	for i, ev := range s.Events {
		out.Events[i] = ev.Clone()
	}
	out.FaultTrees = make([]domain.FaultTree, len(s.FaultTrees))
	for i, ft := range s.FaultTrees {
		ft.Members = append([]string(nil), ft.Members...)
		out.FaultTrees[i] = ft
	}
	return out
}

// Encode writes the input as indented JSON.
func (in *Input) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(in); err != nil {
		return fmt.Errorf("encode analysis input: %w", err)
	}
	return nil
}

// DecodeInput reads an input previously written by Encode.
func DecodeInput(r io.Reader) (*Input, error) {
	var in Input
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return nil, fmt.Errorf("decode analysis input: %w", err)
	}
	if in.RunID == "" {
		return nil, fmt.Errorf("decode analysis input: missing run id")
	}
	return &in, nil
}
