// Package document implements the document extraction collaborator: pulling
// merchant, amount, and date fields out of attached receipts and invoices.
// PDF attachments are read with ledongthuc/pdf; plain-text attachments are
// parsed directly. Extraction failure is never fatal to the pipeline.
package document

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/bhairavmehta/financial-ai-swarm/internal/agent"
	"github.com/bhairavmehta/financial-ai-swarm/internal/transaction"
)

var (
	totalPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?im)grand\s+total[:\s]*\$?\s*([\d,]+\.\d{2})`),
		regexp.MustCompile(`(?im)total[:\s]*\$?\s*([\d,]+\.\d{2})`),
		regexp.MustCompile(`(?im)amount\s+due[:\s]*\$?\s*([\d,]+\.\d{2})`),
	}
	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?m)(\d{4}[/-]\d{1,2}[/-]\d{1,2})`),
		regexp.MustCompile(`(?m)(\d{1,2}[/-]\d{1,2}[/-]\d{2,4})`),
	}
	// First non-empty line that looks like a business name.
	merchantPattern = regexp.MustCompile(`(?m)^\s*([A-Z][A-Za-z&.,' ]{2,60})\s*$`)
)

// Extractor implements agent.DocumentExtractor.
type Extractor struct{}

// NewExtractor creates an Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract reads the referenced document and returns the fields it could
// recover, with a confidence proportional to field coverage.
func (e *Extractor) Extract(ctx context.Context, ref transaction.DocumentRef) (agent.Extraction, error) {
	if err := ctx.Err(); err != nil {
		return agent.Extraction{}, err
	}
	if ref.Empty() {
		return agent.Extraction{}, fmt.Errorf("no document attached")
	}

	text := ref.Text
	if text == "" {
		extracted, err := readPDF(ref.Path)
		if err != nil {
			return agent.Extraction{}, fmt.Errorf("reading pdf %s: %w", ref.Path, err)
		}
		text = extracted
	}

	fields := make(map[string]string)
	if m := firstMatch(totalPatterns, text); m != "" {
		fields["amount"] = strings.ReplaceAll(m, ",", "")
	}
	if m := firstMatch(datePatterns, text); m != "" {
		fields["date"] = m
	}
	if m := merchantPattern.FindStringSubmatch(text); m != nil {
		fields["merchant"] = strings.TrimSpace(m[1])
	}

	return agent.Extraction{
		DocumentType: detectType(text),
		Fields:       fields,
		Confidence:   confidence(fields),
	}, nil
}

func firstMatch(patterns []*regexp.Regexp, text string) string {
	for _, p := range patterns {
		if m := p.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	return ""
}

func detectType(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "invoice"):
		return "INVOICE"
	case strings.Contains(lower, "receipt") || strings.Contains(lower, "total"):
		return "RECEIPT"
	case strings.Contains(lower, "agreement") || strings.Contains(lower, "contract"):
		return "CONTRACT"
	default:
		return "UNKNOWN"
	}
}

// confidence weights the amount field highest since it drives the enriched
// view; merchant and date contribute the rest.
func confidence(fields map[string]string) float64 {
	var score float64
	if fields["amount"] != "" {
		score += 0.5
	}
	if fields["merchant"] != "" {
		score += 0.3
	}
	if fields["date"] != "" {
		score += 0.2
	}
	return score
}

func readPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var b strings.Builder
	total := r.NumPage()
	for i := 1; i <= total; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extracting page %d: %w", i, err)
		}
		b.WriteString(content)
		b.WriteString("\n")
	}
	return b.String(), nil
}
