// Package fraud implements the fraud scoring collaborator: a weighted
// heuristic ensemble over transaction features, labeled through the current
// fraud threshold cuts.
package fraud

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/bhairavmehta/financial-ai-swarm/internal/agent"
	"github.com/bhairavmehta/financial-ai-swarm/internal/transaction"
)

// Feature weights for the ensemble score. Amount dominates; the remaining
// signals are contextual nudges.
const (
	weightAmount   = 0.55
	weightOffHours = 0.20
	weightWeekend  = 0.10
	weightKeyword  = 0.15

	// amountScale is the dollar amount at which the amount component
	// saturates toward 1.0 on the log curve.
	amountScale = 50000.0
)

// suspiciousTerms in a merchant name nudge the score up. Mirrors the vendor
// screening heuristics; kept separate because fraud weighs them differently.
var suspiciousTerms = []string{"offshore", "shell", "holdings", "anonymous"}

// Scorer scores transactions for fraud risk. The score is non-decreasing in
// the transaction amount for otherwise-identical transactions.
type Scorer struct {
	thresholds agent.ThresholdSource
}

// NewScorer creates a Scorer reading label cut points from src at each
// invocation.
func NewScorer(src agent.ThresholdSource) *Scorer {
	return &Scorer{thresholds: src}
}

// ScoreFraud implements agent.FraudScorer.
func (s *Scorer) ScoreFraud(ctx context.Context, view transaction.Enriched) (agent.Verdict, error) {
	if err := ctx.Err(); err != nil {
		return agent.Verdict{}, err
	}
	start := time.Now()

	score, factors := s.score(view)
	cuts := s.thresholds.Current().Fraud
	label := cuts.Label(score)

	slog.Debug("fraud score computed",
		"transaction_id", view.ID,
		"score", score,
		"label", label,
	)

	return agent.Verdict{
		Kind:    agent.KindFraud,
		Score:   score,
		Label:   label,
		Factors: factors,
		Latency: time.Since(start),
	}, nil
}

func (s *Scorer) score(view transaction.Enriched) (float64, []string) {
	var factors []string

	// Amount component: log curve saturating at amountScale. Monotone
	// non-decreasing in amount by construction.
	amountComponent := math.Log1p(view.Amount) / math.Log1p(amountScale)
	if amountComponent > 1 {
		amountComponent = 1
	}
	if view.Amount > 10000 {
		factors = append(factors, fmt.Sprintf("High transaction amount: $%.2f", view.Amount))
	}

	// Timing components are independent of amount.
	var offHours, weekend float64
	hour := view.Timestamp.Hour()
	if !view.Timestamp.IsZero() {
		if hour < 6 || hour > 22 {
			offHours = 1
			factors = append(factors, fmt.Sprintf("Unusual transaction time: %02d:00", hour))
		}
		if wd := view.Timestamp.Weekday(); wd == time.Saturday || wd == time.Sunday {
			weekend = 1
			factors = append(factors, "Weekend transaction")
		}
	}

	var keyword float64
	merchantLower := strings.ToLower(view.Merchant)
	for _, term := range suspiciousTerms {
		if strings.Contains(merchantLower, term) {
			keyword = 1
			factors = append(factors, fmt.Sprintf("Merchant name contains suspicious term %q", term))
			break
		}
	}

	// Round-number amounts are flagged for review but deliberately excluded
	// from the score: including them would make the score non-monotone in
	// amount.
	if view.Amount >= 1000 && math.Mod(view.Amount, 1000) == 0 {
		factors = append(factors, "Round number amount (potential test transaction)")
	}

	score := weightAmount*amountComponent +
		weightOffHours*offHours +
		weightWeekend*weekend +
		weightKeyword*keyword
	if score > 1 {
		score = 1
	}
	return score, factors
}
