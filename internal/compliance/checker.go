// Package compliance implements the compliance screening collaborator:
// sanctions/PEP list matching plus spend policy rules. The real list data
// sources are swappable behind the SanctionsLookup interface.
package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bhairavmehta/financial-ai-swarm/internal/agent"
	"github.com/bhairavmehta/financial-ai-swarm/internal/transaction"
)

// Match describes a sanctions list entry that matched a merchant name.
type Match struct {
	Entity   string
	ListType string // e.g. "OFAC_SDN", "EU_SANCTIONS"
	Alias    string // non-empty when the hit was on an alias
}

// SanctionsLookup resolves a merchant name against a sanctions data source.
// Implementations must be safe for concurrent use.
type SanctionsLookup interface {
	Lookup(merchant string) (Match, bool)
}

// Entry is one sanctions list record for the in-memory lookup.
type Entry struct {
	Entity   string
	ListType string
	Aliases  []string
}

// MemoryList is an in-memory SanctionsLookup backed by a fixed entry set.
// Matching is case-insensitive substring in either direction, same as the
// production screening service's loose-match mode.
type MemoryList struct {
	entries []Entry
}

// NewMemoryList builds a MemoryList from entries.
func NewMemoryList(entries []Entry) *MemoryList {
	return &MemoryList{entries: entries}
}

// DefaultList returns the bundled sample sanctions entries used when no
// external data source is configured.
func DefaultList() *MemoryList {
	return NewMemoryList([]Entry{
		{Entity: "Suspicious Corp International", ListType: "OFAC_SDN", Aliases: []string{"SCI", "Sus Corp"}},
		{Entity: "Offshore Consulting LLC", ListType: "OFAC_SDN", Aliases: []string{"Offshore Consulting"}},
		{Entity: "Blocked Vendor LLC", ListType: "EU_SANCTIONS", Aliases: []string{"BV LLC"}},
	})
}

// Lookup implements SanctionsLookup.
func (l *MemoryList) Lookup(merchant string) (Match, bool) {
	needle := strings.ToLower(strings.TrimSpace(merchant))
	if needle == "" {
		return Match{}, false
	}
	for _, e := range l.entries {
		entity := strings.ToLower(e.Entity)
		if strings.Contains(needle, entity) || strings.Contains(entity, needle) {
			return Match{Entity: e.Entity, ListType: e.ListType}, true
		}
		for _, alias := range e.Aliases {
			a := strings.ToLower(alias)
			if strings.Contains(needle, a) || strings.Contains(a, needle) {
				return Match{Entity: e.Entity, ListType: e.ListType, Alias: alias}, true
			}
		}
	}
	return Match{}, false
}

// pepTerms flag descriptions referencing politically exposed persons.
var pepTerms = []string{
	"government official",
	"minister",
	"senator",
	"ambassador",
	"military general",
	"central bank",
}

// policyRule is a pure predicate over the enriched view; a true result is a
// policy violation naming the rule.
type policyRule struct {
	name  string
	match func(view transaction.Enriched) bool
}

var policyRules = []policyRule{
	{
		name: "Transactions above $10,000 require manager approval",
		match: func(v transaction.Enriched) bool {
			return v.Amount > 10000
		},
	},
	{
		name: "Contracts over $25,000 require three competitive bids",
		match: func(v transaction.Enriched) bool {
			return v.Amount > 25000 && strings.Contains(strings.ToLower(v.Category), "consult")
		},
	},
	{
		name: "Entertainment expenses are limited to $500 per event",
		match: func(v transaction.Enriched) bool {
			return v.Amount > 500 && strings.Contains(strings.ToLower(v.Category), "entertainment")
		},
	},
	{
		// The transaction model carries no booking reference, so only large
		// travel spends are routed to booking verification.
		name: "Travel above $5,000 requires corporate agency booking verification",
		match: func(v transaction.Enriched) bool {
			return v.Amount > 5000 && strings.Contains(strings.ToLower(v.Category), "travel")
		},
	},
}

// Checker screens transactions for sanctions, PEP, and policy findings.
type Checker struct {
	sanctions SanctionsLookup
}

// NewChecker creates a Checker using the given sanctions data source.
func NewChecker(sanctions SanctionsLookup) *Checker {
	return &Checker{sanctions: sanctions}
}

// CheckCompliance implements agent.ComplianceChecker. A REJECTED verdict
// always carries at least one factor naming the matched list.
func (c *Checker) CheckCompliance(ctx context.Context, view transaction.Enriched) (agent.Verdict, error) {
	if err := ctx.Err(); err != nil {
		return agent.Verdict{}, err
	}
	start := time.Now()

	var factors []string
	var score float64

	match, sanctionsHit := c.sanctions.Lookup(view.Merchant)
	if sanctionsHit {
		score += 0.8
		factor := fmt.Sprintf("Merchant on sanctions list (%s: %s)", match.ListType, match.Entity)
		if match.Alias != "" {
			factor = fmt.Sprintf("Merchant on sanctions list (%s alias %q -> %s)", match.ListType, match.Alias, match.Entity)
		}
		factors = append(factors, factor)
		slog.Warn("sanctions hit", "transaction_id", view.ID, "merchant", view.Merchant, "list", match.ListType)
	}

	pepHit := false
	descLower := strings.ToLower(view.Description)
	for _, term := range pepTerms {
		if strings.Contains(descLower, term) {
			pepHit = true
			score += 0.3
			factors = append(factors, fmt.Sprintf("PEP indicator in description: %q", term))
			break
		}
	}

	var violations int
	for _, rule := range policyRules {
		if rule.match(view) {
			violations++
			score += 0.1
			factors = append(factors, "Policy: "+rule.name)
		}
	}
	if score > 1 {
		score = 1
	}

	var label string
	switch {
	case sanctionsHit:
		label = agent.LabelRejected
	case pepHit || violations > 0:
		label = agent.LabelReview
	default:
		label = agent.LabelApproved
	}

	return agent.Verdict{
		Kind:    agent.KindCompliance,
		Score:   score,
		Label:   label,
		Factors: factors,
		Latency: time.Since(start),
	}, nil
}
