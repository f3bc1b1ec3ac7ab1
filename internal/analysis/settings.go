// Package analysis is the boundary to an external fault-tree analysis
// engine. It exports immutable analysis inputs, ingests the engine's results
// as opaque data and organizes them for reporting. No numeric analysis is
// performed here.
package analysis

import (
	"fmt"

	"faultcore/pkg/domain"
)

// Approximation selects the quantification approximation requested from the
// engine.
type Approximation string

const (
	ApproximationNone      Approximation = "none"
	ApproximationRareEvent Approximation = "rare-event"
	ApproximationMCUB      Approximation = "mcub"
)

// Defaults applied by DefaultSettings.
const (
	DefaultMissionTime = 8760.0
	DefaultLimitOrder  = 20
)

// Settings configures one analysis run. Products are always requested.
type Settings struct {
	// MissionTime in hours for exponential expressions.
	MissionTime     float64       `json:"mission_time" yaml:"mission_time"`
	LimitOrder      int           `json:"limit_order" yaml:"limit_order"`
	Approximation   Approximation `json:"approximation" yaml:"approximation"`
	Probability     bool          `json:"probability" yaml:"probability"`
	Importance      bool          `json:"importance" yaml:"importance"`
	PrimeImplicants bool          `json:"prime_implicants" yaml:"prime_implicants"`
}

// DefaultSettings requests products only, without approximation, over a
// one-year mission.
func DefaultSettings() Settings {
	return Settings{
		MissionTime:   DefaultMissionTime,
		LimitOrder:    DefaultLimitOrder,
		Approximation: ApproximationNone,
	}
}

// ParseApproximation resolves an approximation name; the empty string means none.
func ParseApproximation(s string) (Approximation, error) {
	switch a := Approximation(s); a {
	case "":
		return ApproximationNone, nil
	case ApproximationNone, ApproximationRareEvent, ApproximationMCUB:
		return a, nil
	default:
		return "", domain.InvalidSettingsError(fmt.Sprintf("unknown approximation %q", s))
	}
}

// Validate reports the first inconsistency as an INVALID_SETTINGS error.
func (s Settings) Validate() error {
	if s.MissionTime < 0 {
		return domain.InvalidSettingsError("mission time must be non-negative")
	}
	if s.LimitOrder < 1 {
		return domain.InvalidSettingsError("product order limit must be at least 1")
	}
	approx, err := ParseApproximation(string(s.Approximation))
	if err != nil {
		return err
	}
	if s.PrimeImplicants && approx != ApproximationNone {
		return domain.InvalidSettingsError("prime implicants cannot be combined with approximations")
	}
	if s.Importance && !s.Probability {
		return domain.InvalidSettingsError("importance analysis requires probability analysis")
	}
	return nil
}
