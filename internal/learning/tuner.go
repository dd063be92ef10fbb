package learning

import (
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/bhairavmehta/financial-ai-swarm/internal/agent"
)

// Tuner periodically recomputes threshold adjustment proposals off the
// request hot path. It never applies a proposal; application stays an
// explicit, versioned operation.
type Tuner struct {
	store *Store
	cron  *cron.Cron
	spec  string
}

// NewTuner creates a Tuner running on the given cron spec
// (e.g. "@every 10m").
func NewTuner(store *Store, spec string) *Tuner {
	if spec == "" {
		spec = "@every 10m"
	}
	return &Tuner{
		store: store,
		cron:  cron.New(),
		spec:  spec,
	}
}

// Start schedules the tuning job and starts the cron runner.
func (t *Tuner) Start() error {
	if _, err := t.cron.AddFunc(t.spec, t.RunOnce); err != nil {
		return err
	}
	t.cron.Start()
	slog.Info("threshold tuner started", "schedule", t.spec)
	return nil
}

// Stop stops the cron runner, waiting for a running job to finish.
func (t *Tuner) Stop() {
	<-t.cron.Stop().Done()
}

// RunOnce computes proposals for every scoring kind. Exposed for tests and
// for manual triggering from the CLI.
func (t *Tuner) RunOnce() {
	for _, kind := range agent.ScoringKinds {
		p, err := t.store.ProposeAdjustment(kind)
		if err != nil {
			slog.Error("threshold tuning failed", "kind", kind, "error", err)
			continue
		}
		if p == nil {
			continue
		}
		slog.Info("threshold adjustment proposed",
			"kind", kind,
			"false_positives", p.FalsePositives,
			"false_negatives", p.FalseNegatives,
			"samples", p.SampleCount,
			"reason", p.Reason,
		)
	}
}
