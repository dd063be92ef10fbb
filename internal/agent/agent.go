package agent

import (
	"context"
	"time"

	"github.com/bhairavmehta/financial-ai-swarm/internal/transaction"
)

// Kind identifies a scoring collaborator.
type Kind string

const (
	KindFraud      Kind = "fraud"
	KindCompliance Kind = "compliance"
	KindSpend      Kind = "spend"
	KindVendor     Kind = "vendor"
	KindDocument   Kind = "document"
)

// ScoringKinds are the collaborators fanned out concurrently per transaction.
// Document extraction runs before fan-out and is not listed here.
var ScoringKinds = []Kind{KindFraud, KindCompliance, KindSpend, KindVendor}

// ParseKind validates a kind string from an API or CLI caller.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindFraud, KindCompliance, KindSpend, KindVendor, KindDocument:
		return Kind(s), true
	}
	return "", false
}

// Risk labels produced by the fraud and vendor collaborators.
const (
	LabelLow      = "LOW"
	LabelMedium   = "MEDIUM"
	LabelHigh     = "HIGH"
	LabelCritical = "CRITICAL"
)

// Status labels produced by the compliance collaborator.
const (
	LabelApproved = "APPROVED"
	LabelRejected = "REJECTED"
	LabelReview   = "REVIEW"
)

// Budget labels produced by the spend collaborator.
const (
	LabelWithinBudget = "WITHIN_BUDGET"
	LabelOverBudget   = "OVER_BUDGET"
)

// Verdict is one collaborator's scored output for a transaction.
// Immutable after creation.
type Verdict struct {
	Kind    Kind          `json:"kind"`
	Score   float64       `json:"score"`
	Label   string        `json:"label"`
	Factors []string      `json:"factors,omitempty"`
	Latency time.Duration `json:"latency_ns"`
	Err     bool          `json:"err,omitempty"`
	ErrKind string        `json:"err_kind,omitempty"`
}

// Degraded builds the conservative placeholder verdict substituted when a
// collaborator fails or times out. Fraud degrades to HIGH and compliance to
// REVIEW; spend and vendor are advisory and degrade to an error-flagged
// verdict that carries no escalating label.
func Degraded(kind Kind, errKind string) Verdict {
	v := Verdict{
		Kind:    kind,
		Err:     true,
		ErrKind: errKind,
		Factors: []string{"Collaborator unavailable: " + errKind},
	}
	switch kind {
	case KindFraud:
		v.Label = LabelHigh
		v.Score = 1
	case KindCompliance:
		v.Label = LabelReview
		v.Score = 1
	}
	return v
}

// FraudScorer scores a transaction for fraud risk.
// Score must be in [0,1] and non-decreasing in the transaction amount.
type FraudScorer interface {
	ScoreFraud(ctx context.Context, view transaction.Enriched) (Verdict, error)
}

// ComplianceChecker screens a transaction against sanctions/PEP lists and
// spend policy rules. A REJECTED verdict always names the matched rule or
// list in at least one factor.
type ComplianceChecker interface {
	CheckCompliance(ctx context.Context, view transaction.Enriched) (Verdict, error)
}

// SpendAnalyzer evaluates budget utilization for the transaction's category.
type SpendAnalyzer interface {
	AnalyzeSpend(ctx context.Context, view transaction.Enriched) (Verdict, error)
}

// VendorAnalyzer profiles the merchant's payment history and risk.
type VendorAnalyzer interface {
	AnalyzeVendor(ctx context.Context, view transaction.Enriched) (Verdict, error)
}

// Extraction is the document collaborator's output: corrected field values
// keyed by name ("merchant", "amount", "date") plus an overall confidence.
type Extraction struct {
	DocumentType string            `json:"document_type"`
	Fields       map[string]string `json:"fields"`
	Confidence   float64           `json:"confidence"`
}

// DocumentExtractor pulls structured fields out of an attached receipt or
// invoice. Failure is never fatal to the pipeline.
type DocumentExtractor interface {
	Extract(ctx context.Context, ref transaction.DocumentRef) (Extraction, error)
}
