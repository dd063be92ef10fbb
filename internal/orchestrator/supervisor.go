package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bhairavmehta/financial-ai-swarm/internal/agent"
	"github.com/bhairavmehta/financial-ai-swarm/internal/transaction"
)

// Collaborators bundles the scoring collaborators the supervisor routes
// between. Document may be nil when no extraction backend is configured.
type Collaborators struct {
	Fraud      agent.FraudScorer
	Compliance agent.ComplianceChecker
	Spend      agent.SpendAnalyzer
	Vendor     agent.VendorAnalyzer
	Document   agent.DocumentExtractor
}

// Options tune the supervisor.
type Options struct {
	// Timeout bounds each collaborator invocation. Zero means DefaultTimeout.
	Timeout time.Duration

	// Recorder persists decisions during the LEARN stage. Nil disables
	// persistence (one-shot CLI runs, tests).
	Recorder DecisionRecorder
}

// Supervisor is the pipeline state machine. One Supervisor serves many
// concurrent transactions; all per-transaction state lives on the Context.
type Supervisor struct {
	collab     Collaborators
	thresholds agent.ThresholdSource
	recorder   DecisionRecorder
	inv        *invoker
}

// NewSupervisor wires a Supervisor.
func NewSupervisor(collab Collaborators, thresholds agent.ThresholdSource, opts Options) *Supervisor {
	return &Supervisor{
		collab:     collab,
		thresholds: thresholds,
		recorder:   opts.Recorder,
		inv:        newInvoker(opts.Timeout),
	}
}

// Process routes one transaction through the pipeline and returns the
// decision. Business outcomes never surface as errors; the only error cases
// are an invalid transaction or cancellation of the caller's context.
func (s *Supervisor) Process(ctx context.Context, txn transaction.Transaction) (Decision, error) {
	if err := txn.Validate(); err != nil {
		return Decision{}, fmt.Errorf("invalid transaction: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	start := time.Now()

	// The threshold snapshot is taken once; this transaction uses it for its
	// entire journey even if a new version is published mid-flight.
	pc := newContext(txn, s.thresholds.Current())

	slog.Info("processing transaction",
		"transaction_id", txn.ID,
		"amount", txn.Amount,
		"merchant", txn.Merchant,
		"threshold_version", pc.Thresholds.Version,
	)

	if txn.Document != nil && !txn.Document.Empty() {
		s.extract(ctx, pc)
	}

	s.scoreAll(ctx, pc)

	pc.advance(StateAggregate)
	status, rule := Aggregate(pc.Verdicts)

	pc.advance(StateExplain)
	decision := Decision{
		TransactionID:    txn.ID,
		Status:           status,
		RuleFired:        rule,
		Verdicts:         pc.Verdicts,
		ThresholdVersion: pc.Thresholds.Version,
	}
	decision.Explanation = Explain(decision)

	pc.advance(StateLearn)
	if s.recorder != nil {
		if err := s.recorder.Record(decision); err != nil {
			// The decision is already made; persistence failure is reported,
			// never allowed to block the response.
			slog.Error("failed to persist decision", "transaction_id", txn.ID, "error", err)
		}
	}

	pc.advance(StateDone)
	pc.Terminal = true

	slog.Info("decision complete",
		"transaction_id", txn.ID,
		"status", decision.Status,
		"rule", decision.RuleFired,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return decision, nil
}

// extract runs the document collaborator synchronously before fan-out and
// overlays extracted fields onto the enriched view. Failure records a
// degraded DOCUMENT verdict and continues with the original view; extraction
// is never fatal.
func (s *Supervisor) extract(ctx context.Context, pc *Context) {
	pc.advance(StateExtract)

	if s.collab.Document == nil {
		pc.record(agent.Degraded(agent.KindDocument, "unavailable"))
		return
	}

	start := time.Now()
	extractCtx, cancel := context.WithTimeout(ctx, s.inv.timeout)
	defer cancel()

	extraction, err := s.collab.Document.Extract(extractCtx, *pc.Txn.Document)
	if err != nil {
		slog.Warn("document extraction failed, continuing with original transaction",
			"transaction_id", pc.Txn.ID,
			"error", err,
		)
		v := agent.Degraded(agent.KindDocument, agent.ErrKind(err))
		v.Latency = time.Since(start)
		pc.record(v)
		return
	}

	pc.View = pc.View.ApplyExtraction(extraction.Fields)

	var factors []string
	for field, was := range pc.View.CorrectedFrom {
		factors = append(factors, fmt.Sprintf("Corrected %s from document (was %q)", field, was))
	}
	pc.record(agent.Verdict{
		Kind:    agent.KindDocument,
		Score:   extraction.Confidence,
		Label:   extraction.DocumentType,
		Factors: factors,
		Latency: time.Since(start),
	})
}

// scoreAll fans the four scoring collaborators out concurrently and fans
// back in, applying the compliance short-circuit as verdicts arrive.
func (s *Supervisor) scoreAll(ctx context.Context, pc *Context) {
	pc.advance(StateScore)

	calls := map[agent.Kind]invokeFn{
		agent.KindFraud: func(ctx context.Context) (agent.Verdict, error) {
			return s.collab.Fraud.ScoreFraud(ctx, pc.View)
		},
		agent.KindCompliance: func(ctx context.Context) (agent.Verdict, error) {
			return s.collab.Compliance.CheckCompliance(ctx, pc.View)
		},
		agent.KindSpend: func(ctx context.Context) (agent.Verdict, error) {
			return s.collab.Spend.AnalyzeSpend(ctx, pc.View)
		},
		agent.KindVendor: func(ctx context.Context) (agent.Verdict, error) {
			return s.collab.Vendor.AnalyzeVendor(ctx, pc.View)
		},
	}

	results := make(chan agent.Verdict, len(calls))
	cancelCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g errgroup.Group

	for kind, fn := range calls {
		kind, fn := kind, fn
		g.Go(func() error {
			results <- s.inv.invoke(cancelCtx, kind, fn)
			return nil
		})
	}
	go func() {
		g.Wait()
		close(results)
	}()

	// Fan-in barrier. The short-circuit rule is evaluated as each verdict
	// arrives, not only after all four complete.
	for v := range results {
		if pc.Terminal {
			// Late results after a short-circuit are discarded from the
			// decision but still visible in logs.
			slog.Info("discarding verdict after short-circuit",
				"transaction_id", pc.Txn.ID,
				"kind", v.Kind,
				"label", v.Label,
			)
			continue
		}

		pc.record(v)

		if v.Kind == agent.KindCompliance && !v.Err && v.Label == agent.LabelRejected {
			// Sanctions/PEP hit: terminal immediately. Cancel outstanding
			// spend/vendor work and drop any advisory verdicts already
			// collected; a fraud verdict already recorded stays for
			// explanation but cannot change the outcome.
			slog.Warn("compliance short-circuit fired",
				"transaction_id", pc.Txn.ID,
				"factors", v.Factors,
			)
			for _, advisory := range []agent.Kind{agent.KindSpend, agent.KindVendor} {
				if dropped, ok := pc.Verdicts[advisory]; ok {
					slog.Info("discarding verdict after short-circuit",
						"transaction_id", pc.Txn.ID,
						"kind", dropped.Kind,
						"label", dropped.Label,
					)
					delete(pc.Verdicts, advisory)
				}
			}
			pc.Terminal = true
			cancel()
		}
	}
}
