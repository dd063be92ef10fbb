package agent

// FraudCuts are the score cut points mapping a fraud score to a risk label.
// A score below Medium is LOW; at or above Critical is CRITICAL.
type FraudCuts struct {
	Medium   float64 `json:"medium"`
	High     float64 `json:"high"`
	Critical float64 `json:"critical"`
}

// Label maps a fraud score to its risk label under these cuts.
func (c FraudCuts) Label(score float64) string {
	switch {
	case score >= c.Critical:
		return LabelCritical
	case score >= c.High:
		return LabelHigh
	case score >= c.Medium:
		return LabelMedium
	default:
		return LabelLow
	}
}

// VendorCuts map a vendor risk score to LOW/MEDIUM/HIGH.
type VendorCuts struct {
	Medium float64 `json:"medium"`
	High   float64 `json:"high"`
}

// Label maps a vendor risk score to its label under these cuts.
func (c VendorCuts) Label(score float64) string {
	switch {
	case score >= c.High:
		return LabelHigh
	case score >= c.Medium:
		return LabelMedium
	default:
		return LabelLow
	}
}

// Thresholds is the versioned set of score-to-label cut points consumed by
// scoring collaborators. Instances are immutable snapshots: the learning
// store publishes a new whole on every adjustment, never mutates in place.
type Thresholds struct {
	Version int64      `json:"version"`
	Fraud   FraudCuts  `json:"fraud"`
	Vendor  VendorCuts `json:"vendor"`

	// SpendOverBudget is the utilization ratio at or above which the spend
	// collaborator labels OVER_BUDGET.
	SpendOverBudget float64 `json:"spend_over_budget"`
}

// DefaultThresholds is version 1, seeded on first start.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Version:         1,
		Fraud:           FraudCuts{Medium: 0.5, High: 0.7, Critical: 0.85},
		Vendor:          VendorCuts{Medium: 0.5, High: 0.7},
		SpendOverBudget: 1.0,
	}
}

// ThresholdSource yields the current threshold snapshot. Reads are
// non-blocking; a transaction uses the version it observed at start for its
// entire journey.
type ThresholdSource interface {
	Current() Thresholds
}

// StaticThresholds adapts a fixed Thresholds value into a ThresholdSource,
// used by tests and one-shot CLI runs.
type StaticThresholds Thresholds

func (s StaticThresholds) Current() Thresholds { return Thresholds(s) }
