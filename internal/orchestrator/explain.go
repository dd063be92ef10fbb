package orchestrator

import (
	"fmt"
	"strings"

	"github.com/bhairavmehta/financial-ai-swarm/internal/agent"
)

// explainOrder fixes the narration order so explanations are deterministic
// regardless of verdict arrival order.
var explainOrder = []agent.Kind{
	agent.KindCompliance,
	agent.KindFraud,
	agent.KindSpend,
	agent.KindVendor,
	agent.KindDocument,
}

// Explain synthesizes the human-readable rationale for a decision: which
// precedence rule fired and every contributing risk factor. Pure transform;
// never consults external state and never returns an empty string.
func Explain(d Decision) string {
	var b strings.Builder

	switch d.RuleFired {
	case RuleComplianceRejected:
		b.WriteString("Transaction rejected: compliance screening reported a blocking match.")
	case RuleFraudCritical:
		b.WriteString("Transaction rejected: fraud risk scored CRITICAL.")
	case RuleSafetyDegraded:
		b.WriteString("Review required: a safety-critical check (fraud or compliance) could not complete, failing conservative.")
	case RuleEscalation:
		b.WriteString("Review required: one or more checks reported an elevated finding.")
	default:
		b.WriteString(fmt.Sprintf("Transaction approved under threshold configuration v%d.", d.ThresholdVersion))
	}

	var factors int
	for _, kind := range explainOrder {
		v, ok := d.Verdicts[kind]
		if !ok {
			continue
		}
		// Advisory collaborators that failed contribute nothing; their
		// dimension is simply absent from the narration.
		if v.Err && (kind == agent.KindSpend || kind == agent.KindVendor || kind == agent.KindDocument) {
			continue
		}
		for _, f := range v.Factors {
			b.WriteString(fmt.Sprintf("\n- [%s] %s", kind, f))
			factors++
		}
	}

	if factors == 0 {
		b.WriteString(fmt.Sprintf("\nNo risk factors identified across %d checks.", len(d.Verdicts)))
	}

	return b.String()
}
