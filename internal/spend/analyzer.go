// Package spend implements the budget analysis collaborator: per-category
// budget tracking and utilization labeling. Findings are advisory; the
// aggregator never auto-rejects on spend signals.
package spend

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bhairavmehta/financial-ai-swarm/internal/agent"
	"github.com/bhairavmehta/financial-ai-swarm/internal/transaction"
)

// DefaultBudgets are the per-category limits used when the config does not
// override them. Keys are normalized category names.
var DefaultBudgets = map[string]float64{
	"travel":        50000,
	"entertainment": 10000,
	"it_services":   100000,
	"consulting":    75000,
	"supplies":      20000,
	"training":      15000,
	"other":         25000,
}

// categoryAliases maps raw category strings to normalized budget keys.
var categoryAliases = map[string]string{
	"travel & transport":     "travel",
	"food & dining":          "entertainment",
	"entertainment & events": "entertainment",
	"it equipment":           "it_services",
	"it services":            "it_services",
	"software":               "it_services",
	"professional services":  "consulting",
	"office supplies":        "supplies",
	"learning & development": "training",
}

// NormalizeCategory maps a free-form category to its budget key.
func NormalizeCategory(category string) string {
	lower := strings.ToLower(strings.TrimSpace(category))
	if mapped, ok := categoryAliases[lower]; ok {
		return mapped
	}
	if _, ok := DefaultBudgets[lower]; ok {
		return lower
	}
	return "other"
}

// Analyzer tracks per-category spend and labels transactions against their
// category budget. Safe for concurrent use.
type Analyzer struct {
	thresholds agent.ThresholdSource

	mu      sync.Mutex
	budgets map[string]float64
	totals  map[string]float64
}

// NewAnalyzer creates an Analyzer with the given budgets (nil uses
// DefaultBudgets) reading the over-budget ratio from src.
func NewAnalyzer(src agent.ThresholdSource, budgets map[string]float64) *Analyzer {
	if budgets == nil {
		budgets = DefaultBudgets
	}
	copied := make(map[string]float64, len(budgets))
	for k, v := range budgets {
		copied[k] = v
	}
	return &Analyzer{
		thresholds: src,
		budgets:    copied,
		totals:     make(map[string]float64),
	}
}

// AnalyzeSpend implements agent.SpendAnalyzer. The verdict score is the
// utilization ratio clamped to [0,1]; the raw ratio appears in the factors.
func (a *Analyzer) AnalyzeSpend(ctx context.Context, view transaction.Enriched) (agent.Verdict, error) {
	if err := ctx.Err(); err != nil {
		return agent.Verdict{}, err
	}
	start := time.Now()

	key := NormalizeCategory(view.Category)

	a.mu.Lock()
	budget := a.budgets[key]
	if budget == 0 {
		budget = a.budgets["other"]
	}
	spent := a.totals[key] + view.Amount
	a.totals[key] = spent
	a.mu.Unlock()

	var ratio float64
	if budget > 0 {
		ratio = spent / budget
	}

	overAt := a.thresholds.Current().SpendOverBudget
	label := agent.LabelWithinBudget
	var factors []string
	if ratio >= overAt {
		label = agent.LabelOverBudget
		factors = append(factors, fmt.Sprintf("Category %s over budget: %.1f%% of $%.0f used", key, ratio*100, budget))
	} else if ratio >= 0.8 {
		factors = append(factors, fmt.Sprintf("Category %s nearing budget: %.1f%% used", key, ratio*100))
	}

	score := ratio
	if score > 1 {
		score = 1
	}

	return agent.Verdict{
		Kind:    agent.KindSpend,
		Score:   score,
		Label:   label,
		Factors: factors,
		Latency: time.Since(start),
	}, nil
}

// Utilization returns the current utilization ratio for a category, for the
// status/metrics surface.
func (a *Analyzer) Utilization(category string) float64 {
	key := NormalizeCategory(category)
	a.mu.Lock()
	defer a.mu.Unlock()
	budget := a.budgets[key]
	if budget <= 0 {
		return 0
	}
	return a.totals[key] / budget
}
