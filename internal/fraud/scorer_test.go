package fraud

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bhairavmehta/financial-ai-swarm/internal/agent"
	"github.com/bhairavmehta/financial-ai-swarm/internal/transaction"
)

func defaultSource() agent.StaticThresholds {
	return agent.StaticThresholds(agent.DefaultThresholds())
}

func view(amount float64, merchant string, ts time.Time) transaction.Enriched {
	return transaction.NewEnriched(transaction.Transaction{
		ID:        "txn-1",
		Amount:    amount,
		Merchant:  merchant,
		Timestamp: ts,
	})
}

var weekdayNoon = time.Date(2025, 3, 12, 12, 0, 0, 0, time.UTC) // Wednesday

func TestScoreFraudLowRisk(t *testing.T) {
	s := NewScorer(defaultSource())

	v, err := s.ScoreFraud(context.Background(), view(120, "Acme Corp", weekdayNoon))
	if err != nil {
		t.Fatalf("ScoreFraud: %v", err)
	}
	if v.Kind != agent.KindFraud {
		t.Errorf("kind = %s", v.Kind)
	}
	if v.Label != agent.LabelLow {
		t.Errorf("label = %s, want LOW (score %v)", v.Label, v.Score)
	}
	if len(v.Factors) != 0 {
		t.Errorf("unexpected factors: %v", v.Factors)
	}
}

func TestScoreFraudSignals(t *testing.T) {
	s := NewScorer(defaultSource())

	// Saturday 3am, large amount, suspicious merchant name.
	ts := time.Date(2025, 3, 15, 3, 0, 0, 0, time.UTC)
	v, err := s.ScoreFraud(context.Background(), view(45000, "Offshore Holdings Ltd", ts))
	if err != nil {
		t.Fatalf("ScoreFraud: %v", err)
	}

	if v.Label != agent.LabelCritical {
		t.Errorf("label = %s, want CRITICAL (score %v)", v.Label, v.Score)
	}
	wantFactors := []string{"High transaction amount", "Unusual transaction time", "Weekend transaction", "suspicious term"}
	for _, want := range wantFactors {
		found := false
		for _, f := range v.Factors {
			if strings.Contains(f, want) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("missing factor containing %q in %v", want, v.Factors)
		}
	}
}

// Holding everything else fixed, the score must never decrease as the amount
// grows.
func TestScoreMonotoneInAmount(t *testing.T) {
	s := NewScorer(defaultSource())

	amounts := []float64{0, 1, 500, 999, 1000, 1001, 5000, 9999.99, 10000, 10000.01, 25000, 50000, 100000, 1e7}
	var prev float64 = -1
	for _, amount := range amounts {
		v, err := s.ScoreFraud(context.Background(), view(amount, "Acme Corp", weekdayNoon))
		if err != nil {
			t.Fatalf("ScoreFraud(%v): %v", amount, err)
		}
		if v.Score < prev {
			t.Errorf("score decreased at amount %v: %v < %v", amount, v.Score, prev)
		}
		if v.Score < 0 || v.Score > 1 {
			t.Errorf("score %v outside [0,1] at amount %v", v.Score, amount)
		}
		prev = v.Score
	}
}

func TestScoreRoundNumberFlaggedButNotScored(t *testing.T) {
	s := NewScorer(defaultSource())

	round, err := s.ScoreFraud(context.Background(), view(5000, "Acme Corp", weekdayNoon))
	if err != nil {
		t.Fatalf("ScoreFraud: %v", err)
	}
	offRound, err := s.ScoreFraud(context.Background(), view(5000.01, "Acme Corp", weekdayNoon))
	if err != nil {
		t.Fatalf("ScoreFraud: %v", err)
	}

	foundFlag := false
	for _, f := range round.Factors {
		if strings.Contains(f, "Round number amount") {
			foundFlag = true
		}
	}
	if !foundFlag {
		t.Errorf("round amount not flagged: %v", round.Factors)
	}
	if round.Score > offRound.Score {
		t.Errorf("round-number flag leaked into score: %v > %v", round.Score, offRound.Score)
	}
}

func TestScoreUsesCurrentCuts(t *testing.T) {
	// With cuts lowered, the same score maps to a higher label.
	strict := agent.DefaultThresholds()
	strict.Fraud = agent.FraudCuts{Medium: 0.1, High: 0.2, Critical: 0.3}
	s := NewScorer(agent.StaticThresholds(strict))

	v, err := s.ScoreFraud(context.Background(), view(45000, "Acme Corp", weekdayNoon))
	if err != nil {
		t.Fatalf("ScoreFraud: %v", err)
	}
	if v.Label != agent.LabelCritical {
		t.Errorf("label = %s, want CRITICAL under lowered cuts (score %v)", v.Label, v.Score)
	}
}

func TestScoreFraudCancelledContext(t *testing.T) {
	s := NewScorer(defaultSource())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.ScoreFraud(ctx, view(100, "Acme Corp", weekdayNoon)); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
