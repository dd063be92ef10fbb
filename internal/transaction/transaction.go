package transaction

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DocumentRef points at an attached receipt or invoice. Either Path (a PDF
// on disk) or Text (raw receipt text, e.g. from an upload) is set.
type DocumentRef struct {
	Path string `json:"path,omitempty"`
	Text string `json:"text,omitempty"`
}

// Empty reports whether no document is attached.
func (d DocumentRef) Empty() bool {
	return d.Path == "" && d.Text == ""
}

// Transaction is the immutable input to the decision pipeline.
// Created at ingress and never mutated; enrichment produces a derived view.
type Transaction struct {
	ID          string       `json:"id"`
	Amount      float64      `json:"amount"`
	Merchant    string       `json:"merchant"`
	Category    string       `json:"category"`
	RequesterID string       `json:"requester_id"`
	Timestamp   time.Time    `json:"timestamp"`
	Description string       `json:"description,omitempty"`
	Document    *DocumentRef `json:"document,omitempty"`
}

// Validate checks ingress invariants before a transaction enters the pipeline.
func (t Transaction) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("transaction id is required")
	}
	if t.Amount < 0 {
		return fmt.Errorf("amount must be >= 0, got %v", t.Amount)
	}
	if t.Merchant == "" {
		return fmt.Errorf("merchant is required")
	}
	return nil
}

// Enriched is the view consumed by scoring collaborators: the original
// transaction with any document-extracted corrections overlaid. The original
// Transaction is kept untouched for auditability.
type Enriched struct {
	Transaction

	// CorrectedFrom records which fields the overlay changed, for explanation.
	CorrectedFrom map[string]string `json:"corrected_from,omitempty"`
}

// NewEnriched wraps a transaction with no corrections applied.
func NewEnriched(t Transaction) Enriched {
	return Enriched{Transaction: t}
}

// ApplyExtraction overlays document-extracted fields onto the view. Only
// recognized fields with parseable values are applied; everything else is
// ignored. Returns the corrected view, leaving the receiver untouched.
func (e Enriched) ApplyExtraction(fields map[string]string) Enriched {
	out := e
	out.CorrectedFrom = make(map[string]string, len(e.CorrectedFrom))
	for k, v := range e.CorrectedFrom {
		out.CorrectedFrom[k] = v
	}

	if m, ok := fields["merchant"]; ok && m != "" && !strings.EqualFold(m, e.Merchant) {
		out.CorrectedFrom["merchant"] = e.Merchant
		out.Merchant = m
	}
	if a, ok := fields["amount"]; ok {
		if amount, err := strconv.ParseFloat(strings.ReplaceAll(a, ",", ""), 64); err == nil && amount > 0 && amount != e.Amount {
			out.CorrectedFrom["amount"] = strconv.FormatFloat(e.Amount, 'f', 2, 64)
			out.Amount = amount
		}
	}
	if len(out.CorrectedFrom) == 0 {
		out.CorrectedFrom = nil
	}
	return out
}
