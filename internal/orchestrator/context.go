// Package orchestrator implements the transaction decision pipeline: a
// supervisor state machine that routes one transaction through the scoring
// collaborators, aggregates their verdicts under a fixed precedence policy,
// and narrates the outcome.
package orchestrator

import (
	"fmt"

	"github.com/bhairavmehta/financial-ai-swarm/internal/agent"
	"github.com/bhairavmehta/financial-ai-swarm/internal/transaction"
)

// State is a pipeline stage marker. States advance monotonically; guards are
// pure predicates over the Context.
type State int

const (
	StateInit State = iota
	StateExtract
	StateScore
	StateAggregate
	StateExplain
	StateLearn
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateExtract:
		return "EXTRACT"
	case StateScore:
		return "SCORE"
	case StateAggregate:
		return "AGGREGATE"
	case StateExplain:
		return "EXPLAIN"
	case StateLearn:
		return "LEARN"
	case StateDone:
		return "DONE"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Context carries one transaction's journey through the pipeline: the
// immutable input, the enriched view, the verdicts collected so far, and the
// stage marker. Mutated only by the supervisor; one Context exists per
// processing attempt.
type Context struct {
	Txn        transaction.Transaction
	View       transaction.Enriched
	Thresholds agent.Thresholds
	Verdicts   map[agent.Kind]agent.Verdict
	State      State
	Terminal   bool
}

func newContext(txn transaction.Transaction, th agent.Thresholds) *Context {
	return &Context{
		Txn:        txn,
		View:       transaction.NewEnriched(txn),
		Thresholds: th,
		Verdicts:   make(map[agent.Kind]agent.Verdict),
		State:      StateInit,
	}
}

// advance moves the stage marker forward. Going backwards is a programming
// error and panics.
func (c *Context) advance(next State) {
	if next < c.State {
		panic(fmt.Sprintf("pipeline state moved backwards: %s -> %s", c.State, next))
	}
	c.State = next
}

// record stores a collaborator verdict on the context.
func (c *Context) record(v agent.Verdict) {
	c.Verdicts[v.Kind] = v
}

// Status is the overall outcome of a decision.
type Status string

const (
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
	StatusReview   Status = "REVIEW_REQUIRED"
)

// Decision is the final, authoritative outcome for one transaction. Status
// is a pure function of the verdict set and the threshold version recorded
// here; no hidden state.
type Decision struct {
	TransactionID    string                       `json:"transaction_id"`
	Status           Status                       `json:"status"`
	RuleFired        string                       `json:"rule_fired"`
	Verdicts         map[agent.Kind]agent.Verdict `json:"verdicts"`
	Explanation      string                       `json:"explanation"`
	ThresholdVersion int64                        `json:"threshold_version"`
}

// DecisionRecorder persists completed decisions during the LEARN stage.
type DecisionRecorder interface {
	Record(Decision) error
}
