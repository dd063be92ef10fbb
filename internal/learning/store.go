// Package learning implements the feedback loop: append-only feedback
// records, per-collaborator performance metrics, and the versioned threshold
// configuration with its propose/apply adjustment cycle.
package learning

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/bhairavmehta/financial-ai-swarm/internal/agent"
	"github.com/bhairavmehta/financial-ai-swarm/internal/storage"
)

// FeedbackRecord links a transaction and collaborator to an
// actual-vs-predicted label pair. Append-only.
type FeedbackRecord struct {
	ID             string     `json:"id"`
	TransactionID  string     `json:"transaction_id"`
	Kind           agent.Kind `json:"kind"`
	PredictedLabel string     `json:"predicted_label"`
	ActualLabel    string     `json:"actual_label"`
	Comment        string     `json:"comment,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Performance is the metrics snapshot for one collaborator kind.
type Performance struct {
	Kind           agent.Kind `json:"kind"`
	TotalDecisions int        `json:"total_decisions"`
	Correct        int        `json:"correct"`
	Incorrect      int        `json:"incorrect"`
	Accuracy       float64    `json:"accuracy"`
	FalsePositives int        `json:"false_positives"`
	FalseNegatives int        `json:"false_negatives"`
}

// Proposal is a computed-but-not-applied threshold adjustment for one kind.
type Proposal struct {
	Kind           agent.Kind       `json:"kind"`
	Current        agent.Thresholds `json:"current"`
	Proposed       agent.Thresholds `json:"proposed"`
	FalsePositives int              `json:"false_positives"`
	FalseNegatives int              `json:"false_negatives"`
	SampleCount    int              `json:"sample_count"`
	Reason         string           `json:"reason"`
	ComputedAt     time.Time        `json:"computed_at"`
}

// DefaultMinSupport is the minimum feedback sample count before an
// adjustment is proposed, guarding against overfitting to a handful of
// corrections.
const DefaultMinSupport = 20

// maxCutShift bounds how far one adjustment can move a cut point.
const maxCutShift = 0.1

// Store is the learning/feedback store. Feedback appends and threshold
// applications go through SQLite; threshold reads are lock-free snapshot
// reads so the request hot path never blocks on a writer.
type Store struct {
	db         *storage.Store
	minSupport int

	snapshot atomic.Pointer[agent.Thresholds]

	mu        sync.Mutex // serializes Apply and proposal cache writes
	proposals map[agent.Kind]*Proposal
}

// NewStore opens the learning store on db, loading the active threshold
// configuration or seeding the defaults as version 1.
func NewStore(db *storage.Store, minSupport int) (*Store, error) {
	if minSupport <= 0 {
		minSupport = DefaultMinSupport
	}
	s := &Store{
		db:         db,
		minSupport: minSupport,
		proposals:  make(map[agent.Kind]*Proposal),
	}

	row, err := db.ActiveThresholds()
	switch {
	case errors.Is(err, storage.ErrNotFound):
		th := agent.DefaultThresholds()
		encoded, err := json.Marshal(th)
		if err != nil {
			return nil, fmt.Errorf("encoding default thresholds: %w", err)
		}
		if err := db.SaveThresholds(storage.ThresholdRow{
			Version:    th.Version,
			ConfigJSON: string(encoded),
			CreatedAt:  time.Now().UTC(),
		}); err != nil {
			return nil, fmt.Errorf("seeding default thresholds: %w", err)
		}
		s.snapshot.Store(&th)
	case err != nil:
		return nil, fmt.Errorf("loading active thresholds: %w", err)
	default:
		var th agent.Thresholds
		if err := json.Unmarshal([]byte(row.ConfigJSON), &th); err != nil {
			return nil, fmt.Errorf("decoding thresholds v%d: %w", row.Version, err)
		}
		th.Version = row.Version
		s.snapshot.Store(&th)
	}

	return s, nil
}

// Current implements agent.ThresholdSource. Non-blocking; always a complete,
// consistent configuration.
func (s *Store) Current() agent.Thresholds {
	return *s.snapshot.Load()
}

// RecordFeedback appends one feedback record. A failed write surfaces as
// agent.ErrStorageUnavailable; feedback loss is never silent.
func (s *Store) RecordFeedback(rec FeedbackRecord) (FeedbackRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.TransactionID == "" {
		return FeedbackRecord{}, fmt.Errorf("transaction_id is required")
	}
	if _, ok := agent.ParseKind(string(rec.Kind)); !ok {
		return FeedbackRecord{}, fmt.Errorf("unknown agent kind %q", rec.Kind)
	}

	err := s.db.AppendFeedback(storage.Feedback{
		ID:             rec.ID,
		TransactionID:  rec.TransactionID,
		AgentKind:      string(rec.Kind),
		PredictedLabel: rec.PredictedLabel,
		ActualLabel:    rec.ActualLabel,
		Comment:        rec.Comment,
		CreatedAt:      rec.CreatedAt,
	})
	if err != nil {
		return FeedbackRecord{}, fmt.Errorf("%w: appending feedback: %v", agent.ErrStorageUnavailable, err)
	}
	return rec, nil
}

// Performance computes the metrics snapshot for one kind from accumulated
// feedback.
func (s *Store) Performance(kind agent.Kind) (Performance, error) {
	records, err := s.db.FeedbackByKind(string(kind))
	if err != nil {
		return Performance{}, fmt.Errorf("%w: reading feedback: %v", agent.ErrStorageUnavailable, err)
	}

	perf := Performance{Kind: kind}
	for _, r := range records {
		perf.TotalDecisions++
		if r.PredictedLabel == r.ActualLabel {
			perf.Correct++
			continue
		}
		perf.Incorrect++
		if escalating(kind, r.PredictedLabel) && !escalating(kind, r.ActualLabel) {
			perf.FalsePositives++
		} else if !escalating(kind, r.PredictedLabel) && escalating(kind, r.ActualLabel) {
			perf.FalseNegatives++
		}
	}
	if perf.TotalDecisions > 0 {
		perf.Accuracy = float64(perf.Correct) / float64(perf.TotalDecisions)
	}
	return perf, nil
}

// escalating reports whether a label represents a blocking or reviewable
// signal for the kind, for false positive/negative classification.
func escalating(kind agent.Kind, label string) bool {
	switch kind {
	case agent.KindCompliance:
		return label == agent.LabelRejected || label == agent.LabelReview
	case agent.KindSpend:
		return label == agent.LabelOverBudget
	default:
		return label == agent.LabelHigh || label == agent.LabelCritical
	}
}

// ProposeAdjustment computes a threshold adjustment for kind from its
// feedback history. Returns nil when the sample count is below the minimum
// support or the false positive/negative ratio is balanced. Only fraud and
// vendor carry numeric cut points; other kinds always return nil.
func (s *Store) ProposeAdjustment(kind agent.Kind) (*Proposal, error) {
	if kind != agent.KindFraud && kind != agent.KindVendor {
		return nil, nil
	}

	perf, err := s.Performance(kind)
	if err != nil {
		return nil, err
	}
	if perf.TotalDecisions < s.minSupport {
		return nil, nil
	}

	current := s.Current()
	proposed := current
	fp, fn := perf.FalsePositives, perf.FalseNegatives

	var reason string
	switch {
	case fp > fn*2:
		// Too many false positives: raise cut points (less sensitive).
		shift := min(maxCutShift, float64(fp)*0.02)
		reason = fmt.Sprintf("raise %s cuts by %.2f to reduce false positives (%d FP vs %d FN)", kind, shift, fp, fn)
		applyShift(&proposed, kind, shift)
	case fn > fp*2:
		// Too many false negatives: lower cut points (more sensitive).
		shift := min(maxCutShift, float64(fn)*0.02)
		reason = fmt.Sprintf("lower %s cuts by %.2f to catch more cases (%d FN vs %d FP)", kind, shift, fn, fp)
		applyShift(&proposed, kind, -shift)
	default:
		return nil, nil
	}

	p := &Proposal{
		Kind:           kind,
		Current:        current,
		Proposed:       proposed,
		FalsePositives: fp,
		FalseNegatives: fn,
		SampleCount:    perf.TotalDecisions,
		Reason:         reason,
		ComputedAt:     time.Now().UTC(),
	}

	s.mu.Lock()
	s.proposals[kind] = p
	s.mu.Unlock()

	return p, nil
}

func applyShift(th *agent.Thresholds, kind agent.Kind, shift float64) {
	switch kind {
	case agent.KindFraud:
		th.Fraud.Medium = clamp01(th.Fraud.Medium + shift)
		th.Fraud.High = clamp01(th.Fraud.High + shift)
		th.Fraud.Critical = clamp01(th.Fraud.Critical + shift)
	case agent.KindVendor:
		th.Vendor.Medium = clamp01(th.Vendor.Medium + shift)
		th.Vendor.High = clamp01(th.Vendor.High + shift)
	}
}

func clamp01(v float64) float64 {
	if v < 0.01 {
		return 0.01
	}
	if v > 0.99 {
		return 0.99
	}
	return v
}

// Apply persists a proposal as the next threshold version and publishes the
// new snapshot atomically. In-flight transactions keep the version they
// started with. Explicit and versioned; never called implicitly.
func (s *Store) Apply(p Proposal) (agent.Thresholds, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.Current()
	next := p.Proposed
	next.Version = current.Version + 1

	encoded, err := json.Marshal(next)
	if err != nil {
		return agent.Thresholds{}, fmt.Errorf("encoding thresholds: %w", err)
	}
	if err := s.db.SaveThresholds(storage.ThresholdRow{
		Version:    next.Version,
		ConfigJSON: string(encoded),
		CreatedAt:  time.Now().UTC(),
	}); err != nil {
		return agent.Thresholds{}, fmt.Errorf("%w: persisting thresholds v%d: %v", agent.ErrStorageUnavailable, next.Version, err)
	}

	s.snapshot.Store(&next)
	delete(s.proposals, p.Kind)

	slog.Info("threshold configuration applied",
		"kind", p.Kind,
		"version", next.Version,
		"reason", p.Reason,
	)
	return next, nil
}

// PendingProposal returns the cached proposal for kind, if any.
func (s *Store) PendingProposal(kind agent.Kind) *Proposal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proposals[kind]
}

// Insights lists all pending proposals, the "computed but not applied"
// surface consumed by the API and CLI.
func (s *Store) Insights() []Proposal {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Proposal, 0, len(s.proposals))
	for _, p := range s.proposals {
		out = append(out, *p)
	}
	return out
}
