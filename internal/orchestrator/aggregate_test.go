package orchestrator

import (
	"testing"

	"github.com/bhairavmehta/financial-ai-swarm/internal/agent"
)

func verdict(kind agent.Kind, label string, score float64) agent.Verdict {
	return agent.Verdict{Kind: kind, Label: label, Score: score}
}

func TestAggregatePrecedence(t *testing.T) {
	tests := []struct {
		name       string
		verdicts   map[agent.Kind]agent.Verdict
		wantStatus Status
		wantRule   string
	}{
		{
			name: "all clean approves",
			verdicts: map[agent.Kind]agent.Verdict{
				agent.KindFraud:      verdict(agent.KindFraud, agent.LabelLow, 0.1),
				agent.KindCompliance: verdict(agent.KindCompliance, agent.LabelApproved, 0),
				agent.KindSpend:      verdict(agent.KindSpend, agent.LabelWithinBudget, 0.05),
				agent.KindVendor:     verdict(agent.KindVendor, agent.LabelLow, 0),
			},
			wantStatus: StatusApproved,
			wantRule:   RuleClean,
		},
		{
			name: "compliance rejection is authoritative over everything",
			verdicts: map[agent.Kind]agent.Verdict{
				agent.KindFraud:      verdict(agent.KindFraud, agent.LabelCritical, 0.95),
				agent.KindCompliance: verdict(agent.KindCompliance, agent.LabelRejected, 0.8),
			},
			wantStatus: StatusRejected,
			wantRule:   RuleComplianceRejected,
		},
		{
			name: "critical fraud rejects",
			verdicts: map[agent.Kind]agent.Verdict{
				agent.KindFraud:      verdict(agent.KindFraud, agent.LabelCritical, 0.9),
				agent.KindCompliance: verdict(agent.KindCompliance, agent.LabelApproved, 0),
			},
			wantStatus: StatusRejected,
			wantRule:   RuleFraudCritical,
		},
		{
			name: "degraded fraud forces review even when all else is clean",
			verdicts: map[agent.Kind]agent.Verdict{
				agent.KindFraud:      {Kind: agent.KindFraud, Label: agent.LabelHigh, Score: 1, Err: true, ErrKind: "timeout"},
				agent.KindCompliance: verdict(agent.KindCompliance, agent.LabelApproved, 0),
				agent.KindSpend:      verdict(agent.KindSpend, agent.LabelWithinBudget, 0),
				agent.KindVendor:     verdict(agent.KindVendor, agent.LabelLow, 0),
			},
			wantStatus: StatusReview,
			wantRule:   RuleSafetyDegraded,
		},
		{
			name: "degraded compliance forces review",
			verdicts: map[agent.Kind]agent.Verdict{
				agent.KindFraud:      verdict(agent.KindFraud, agent.LabelLow, 0.1),
				agent.KindCompliance: {Kind: agent.KindCompliance, Label: agent.LabelReview, Score: 1, Err: true, ErrKind: "unavailable"},
			},
			wantStatus: StatusReview,
			wantRule:   RuleSafetyDegraded,
		},
		{
			name: "high fraud escalates to review",
			verdicts: map[agent.Kind]agent.Verdict{
				agent.KindFraud:      verdict(agent.KindFraud, agent.LabelHigh, 0.75),
				agent.KindCompliance: verdict(agent.KindCompliance, agent.LabelApproved, 0),
			},
			wantStatus: StatusReview,
			wantRule:   RuleEscalation,
		},
		{
			name: "compliance review escalates",
			verdicts: map[agent.Kind]agent.Verdict{
				agent.KindFraud:      verdict(agent.KindFraud, agent.LabelLow, 0.1),
				agent.KindCompliance: verdict(agent.KindCompliance, agent.LabelReview, 0.3),
			},
			wantStatus: StatusReview,
			wantRule:   RuleEscalation,
		},
		{
			name: "over budget escalates but never rejects",
			verdicts: map[agent.Kind]agent.Verdict{
				agent.KindFraud:      verdict(agent.KindFraud, agent.LabelLow, 0.1),
				agent.KindCompliance: verdict(agent.KindCompliance, agent.LabelApproved, 0),
				agent.KindSpend:      verdict(agent.KindSpend, agent.LabelOverBudget, 1),
			},
			wantStatus: StatusReview,
			wantRule:   RuleEscalation,
		},
		{
			name: "high vendor risk escalates",
			verdicts: map[agent.Kind]agent.Verdict{
				agent.KindFraud:      verdict(agent.KindFraud, agent.LabelLow, 0.1),
				agent.KindCompliance: verdict(agent.KindCompliance, agent.LabelApproved, 0),
				agent.KindVendor:     verdict(agent.KindVendor, agent.LabelHigh, 0.75),
			},
			wantStatus: StatusReview,
			wantRule:   RuleEscalation,
		},
		{
			name: "degraded spend is ignored, not escalated",
			verdicts: map[agent.Kind]agent.Verdict{
				agent.KindFraud:      verdict(agent.KindFraud, agent.LabelLow, 0.1),
				agent.KindCompliance: verdict(agent.KindCompliance, agent.LabelApproved, 0),
				agent.KindSpend:      {Kind: agent.KindSpend, Err: true, ErrKind: "timeout", Label: ""},
				agent.KindVendor:     verdict(agent.KindVendor, agent.LabelLow, 0),
			},
			wantStatus: StatusApproved,
			wantRule:   RuleClean,
		},
		{
			name: "medium fraud alone approves",
			verdicts: map[agent.Kind]agent.Verdict{
				agent.KindFraud:      verdict(agent.KindFraud, agent.LabelMedium, 0.55),
				agent.KindCompliance: verdict(agent.KindCompliance, agent.LabelApproved, 0),
			},
			wantStatus: StatusApproved,
			wantRule:   RuleClean,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, rule := Aggregate(tt.verdicts)
			if status != tt.wantStatus {
				t.Errorf("status = %s, want %s", status, tt.wantStatus)
			}
			if rule != tt.wantRule {
				t.Errorf("rule = %s, want %s", rule, tt.wantRule)
			}
		})
	}
}

// Aggregating the same verdict set repeatedly must give the same answer, and
// the answer must not depend on how the set was assembled.
func TestAggregateIdempotent(t *testing.T) {
	base := []agent.Verdict{
		verdict(agent.KindFraud, agent.LabelHigh, 0.75),
		verdict(agent.KindCompliance, agent.LabelApproved, 0),
		verdict(agent.KindSpend, agent.LabelWithinBudget, 0.2),
		verdict(agent.KindVendor, agent.LabelMedium, 0.5),
	}

	// Insert in several different orders.
	orders := [][]int{
		{0, 1, 2, 3},
		{3, 2, 1, 0},
		{1, 3, 0, 2},
		{2, 0, 3, 1},
	}
	var firstStatus Status
	var firstRule string
	for i, order := range orders {
		verdicts := make(map[agent.Kind]agent.Verdict)
		for _, idx := range order {
			verdicts[base[idx].Kind] = base[idx]
		}
		status, rule := Aggregate(verdicts)
		if i == 0 {
			firstStatus, firstRule = status, rule
			continue
		}
		if status != firstStatus || rule != firstRule {
			t.Fatalf("order %v: got (%s, %s), want (%s, %s)", order, status, rule, firstStatus, firstRule)
		}
		// Re-aggregating must not change the answer.
		again, againRule := Aggregate(verdicts)
		if again != status || againRule != rule {
			t.Fatalf("re-aggregation changed result: (%s, %s) -> (%s, %s)", status, rule, again, againRule)
		}
	}
}
