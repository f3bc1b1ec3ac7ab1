package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Literal is one event of a product, possibly complemented.
type Literal struct {
	Event      string `json:"event"`
	Complement bool   `json:"complement,omitempty"`
}

// Product is a cut set or prime implicant reported by the engine.
type Product struct {
	Literals    []Literal `json:"literals"`
	Probability *float64  `json:"probability,omitempty"`
}

// Order returns the number of literals.
func (p Product) Order() int { return len(p.Literals) }

// Importance holds the importance factors of one basic event.
type Importance struct {
	Event       string  `json:"event"`
	Occurrence  int     `json:"occurrence"`
	Probability float64 `json:"probability"`
	MIF         float64 `json:"mif"`
	CIF         float64 `json:"cif"`
	DIF         float64 `json:"dif"`
	RAW         float64 `json:"raw"`
	RRW         float64 `json:"rrw"`
}

// Result is the analysis of one top gate.
type Result struct {
	Target      string       `json:"target"`
	Products    []Product    `json:"products"`
	Probability *float64     `json:"probability,omitempty"`
	Importance  []Importance `json:"importance,omitempty"`
	Warnings    []string     `json:"warnings,omitempty"`
}

// Results is the engine output for one run.
type Results struct {
	RunID   string   `json:"run_id"`
	Results []Result `json:"results"`
}

var errNoTarget = errors.New("result without target")

// Ingest decodes engine results. Values are kept as reported; only the shape
// is checked.
func Ingest(r io.Reader) (*Results, error) {
	var res Results
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&res); err != nil {
		return nil, fmt.Errorf("ingest analysis results: %w", err)
	}
	if res.RunID == "" {
		return nil, fmt.Errorf("ingest analysis results: missing run id")
	}
	for i, r := range res.Results {
		if r.Target == "" {
			return nil, fmt.Errorf("ingest analysis results: entry %d: %w", i, errNoTarget)
		}
		for j, p := range r.Products {
			for _, lit := range p.Literals {
				if lit.Event == "" {
					return nil, fmt.Errorf("ingest analysis results: %s product %d: literal without event", r.Target, j)
				}
			}
		}
	}
	return &res, nil
}

// Encode writes results as indented JSON.
func (r *Results) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode analysis results: %w", err)
	}
	return nil
}
