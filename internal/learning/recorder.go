package learning

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bhairavmehta/financial-ai-swarm/internal/agent"
	"github.com/bhairavmehta/financial-ai-swarm/internal/orchestrator"
	"github.com/bhairavmehta/financial-ai-swarm/internal/storage"
)

// Recorder persists completed decisions to the decision log. Implements
// orchestrator.DecisionRecorder.
type Recorder struct {
	db *storage.Store
}

// NewRecorder creates a Recorder on db.
func NewRecorder(db *storage.Store) *Recorder {
	return &Recorder{db: db}
}

// Record appends one decision.
func (r *Recorder) Record(d orchestrator.Decision) error {
	verdicts, err := json.Marshal(d.Verdicts)
	if err != nil {
		return fmt.Errorf("encoding verdicts: %w", err)
	}
	err = r.db.SaveDecision(storage.Decision{
		ID:               uuid.New().String(),
		TransactionID:    d.TransactionID,
		Status:           string(d.Status),
		RuleFired:        d.RuleFired,
		VerdictsJSON:     string(verdicts),
		Explanation:      d.Explanation,
		ThresholdVersion: d.ThresholdVersion,
		CreatedAt:        time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("%w: saving decision: %v", agent.ErrStorageUnavailable, err)
	}
	return nil
}
