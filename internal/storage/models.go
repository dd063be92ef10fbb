package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Feedback is one append-only correction record: what a collaborator
// predicted for a transaction versus what a human later said was right.
type Feedback struct {
	ID             string    `json:"id"`
	TransactionID  string    `json:"transaction_id"`
	AgentKind      string    `json:"agent_kind"`
	PredictedLabel string    `json:"predicted_label"`
	ActualLabel    string    `json:"actual_label"`
	Comment        string    `json:"comment,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Decision is one persisted pipeline outcome.
type Decision struct {
	ID               string    `json:"id"`
	TransactionID    string    `json:"transaction_id"`
	Status           string    `json:"status"`
	RuleFired        string    `json:"rule_fired"`
	VerdictsJSON     string    `json:"verdicts_json"` // map[kind]Verdict stored as JSON text
	Explanation      string    `json:"explanation"`
	ThresholdVersion int64     `json:"threshold_version"`
	CreatedAt        time.Time `json:"created_at"`
}

// ThresholdRow is one versioned threshold configuration. The highest version
// is active; older rows are kept for auditability.
type ThresholdRow struct {
	Version    int64     `json:"version"`
	ConfigJSON string    `json:"config_json"`
	CreatedAt  time.Time `json:"created_at"`
}
