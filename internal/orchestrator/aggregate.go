package orchestrator

import (
	"github.com/bhairavmehta/financial-ai-swarm/internal/agent"
)

// Precedence rule names, highest first. RuleFired on a Decision is always
// one of these.
const (
	RuleComplianceRejected = "compliance_rejected"
	RuleFraudCritical      = "fraud_critical"
	RuleSafetyDegraded     = "safety_critical_degraded"
	RuleEscalation         = "risk_escalation"
	RuleClean              = "no_risk_found"
)

// Aggregate combines the verdict set into one overall status under the fixed
// precedence policy. Pure and order-independent: the result depends only on
// the verdict values, never on arrival order.
//
// Precedence, highest wins:
//  1. compliance REJECTED            => REJECTED
//  2. fraud CRITICAL                 => REJECTED
//  3. fraud or compliance errored    => REVIEW_REQUIRED (fail conservative)
//  4. fraud HIGH / compliance REVIEW /
//     spend OVER_BUDGET / vendor HIGH => REVIEW_REQUIRED
//  5. otherwise                      => APPROVED
//
// Spend and vendor findings are advisory: they escalate to review but never
// reject, and their degraded verdicts are ignored rather than escalated.
func Aggregate(verdicts map[agent.Kind]agent.Verdict) (Status, string) {
	compliance, hasCompliance := verdicts[agent.KindCompliance]
	fraud, hasFraud := verdicts[agent.KindFraud]

	// Rule 1: compliance rejection is authoritative.
	if hasCompliance && !compliance.Err && compliance.Label == agent.LabelRejected {
		return StatusRejected, RuleComplianceRejected
	}

	// Rule 2: critical fraud.
	if hasFraud && !fraud.Err && fraud.Label == agent.LabelCritical {
		return StatusRejected, RuleFraudCritical
	}

	// Rule 3: a degraded safety-critical verdict never fails open.
	if (hasFraud && fraud.Err) || (hasCompliance && compliance.Err) {
		return StatusReview, RuleSafetyDegraded
	}

	// Rule 4: escalating signals from any collaborator.
	if hasFraud && fraud.Label == agent.LabelHigh {
		return StatusReview, RuleEscalation
	}
	if hasCompliance && compliance.Label == agent.LabelReview {
		return StatusReview, RuleEscalation
	}
	if spend, ok := verdicts[agent.KindSpend]; ok && !spend.Err && spend.Label == agent.LabelOverBudget {
		return StatusReview, RuleEscalation
	}
	if vendor, ok := verdicts[agent.KindVendor]; ok && !vendor.Err && vendor.Label == agent.LabelHigh {
		return StatusReview, RuleEscalation
	}

	return StatusApproved, RuleClean
}
