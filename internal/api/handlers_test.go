package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bhairavmehta/financial-ai-swarm/internal/agent"
	"github.com/bhairavmehta/financial-ai-swarm/internal/learning"
	"github.com/bhairavmehta/financial-ai-swarm/internal/orchestrator"
	"github.com/bhairavmehta/financial-ai-swarm/internal/storage"
	"github.com/bhairavmehta/financial-ai-swarm/internal/transaction"
)

// stubProcessor returns a canned decision and records the transaction it saw.
type stubProcessor struct {
	decision orchestrator.Decision
	err      error
	gotTxn   transaction.Transaction
}

func (p *stubProcessor) Process(_ context.Context, txn transaction.Transaction) (orchestrator.Decision, error) {
	p.gotTxn = txn
	if p.err != nil {
		return orchestrator.Decision{}, p.err
	}
	d := p.decision
	d.TransactionID = txn.ID
	return d, nil
}

func newTestDeps(t *testing.T) (AppDeps, *stubProcessor) {
	t.Helper()
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	learner, err := learning.NewStore(db, 5)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	proc := &stubProcessor{decision: orchestrator.Decision{
		Status:           orchestrator.StatusApproved,
		RuleFired:        "no_risk_found",
		Explanation:      "Transaction approved.",
		ThresholdVersion: 1,
	}}
	return AppDeps{Pipeline: proc, Learning: learner, Store: db}, proc
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	encoded, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(encoded))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func getPath(h http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthUnauthenticated(t *testing.T) {
	deps, _ := newTestDeps(t)
	deps.Token = "secret"
	h := NewAppHandler(deps)

	w := getPath(h, "/health")
	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", w.Code)
	}
}

func TestBearerAuthRequired(t *testing.T) {
	deps, _ := newTestDeps(t)
	deps.Token = "secret"
	h := NewAppHandler(deps)

	w := getPath(h, "/api/v1/decisions")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/decisions", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/decisions", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid token: status = %d, want 200", w.Code)
	}
}

func TestAuthDisabledWhenNoToken(t *testing.T) {
	deps, _ := newTestDeps(t)
	h := NewAppHandler(deps)

	w := getPath(h, "/api/v1/decisions")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 with auth disabled", w.Code)
	}
}

func TestProcessTransaction(t *testing.T) {
	deps, proc := newTestDeps(t)
	h := NewAppHandler(deps)

	w := postJSON(t, h, "/api/v1/transactions/process", ProcessRequest{
		Amount:      2850,
		Merchant:    "Delta Airlines",
		Category:    "travel",
		RequesterID: "emp-42",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var decision orchestrator.Decision
	if err := json.Unmarshal(w.Body.Bytes(), &decision); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if decision.Status != orchestrator.StatusApproved {
		t.Errorf("status = %s, want APPROVED", decision.Status)
	}
	if proc.gotTxn.ID == "" {
		t.Error("missing id was not assigned")
	}
	if decision.TransactionID != proc.gotTxn.ID {
		t.Errorf("decision transaction id %q != assigned id %q", decision.TransactionID, proc.gotTxn.ID)
	}
	if proc.gotTxn.Timestamp.IsZero() {
		t.Error("missing timestamp was not assigned")
	}
}

func TestProcessKeepsProvidedIDAndTimestamp(t *testing.T) {
	deps, proc := newTestDeps(t)
	h := NewAppHandler(deps)

	ts := time.Date(2025, 3, 12, 14, 0, 0, 0, time.UTC)
	w := postJSON(t, h, "/api/v1/transactions/process", ProcessRequest{
		ID:        "txn-keep",
		Amount:    100,
		Merchant:  "Acme",
		Timestamp: ts,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if proc.gotTxn.ID != "txn-keep" {
		t.Errorf("id = %q, want txn-keep", proc.gotTxn.ID)
	}
	if !proc.gotTxn.Timestamp.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", proc.gotTxn.Timestamp, ts)
	}
}

func TestProcessRejectsInvalidPayloads(t *testing.T) {
	deps, _ := newTestDeps(t)
	h := NewAppHandler(deps)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions/process", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed body: status = %d, want 400", w.Code)
	}

	w = postJSON(t, h, "/api/v1/transactions/process", ProcessRequest{
		Amount: -5, Merchant: "Acme",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("negative amount: status = %d, want 400", w.Code)
	}

	w = postJSON(t, h, "/api/v1/transactions/process", ProcessRequest{Amount: 10})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing merchant: status = %d, want 400", w.Code)
	}
}

func TestProcessPipelineError(t *testing.T) {
	deps, proc := newTestDeps(t)
	proc.err = fmt.Errorf("pipeline down")
	h := NewAppHandler(deps)

	w := postJSON(t, h, "/api/v1/transactions/process", ProcessRequest{
		Amount: 100, Merchant: "Acme",
	})
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	var body struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if body.Error.Type != "api_error" {
		t.Errorf("error type = %q, want api_error", body.Error.Type)
	}
}

func TestGetDecision(t *testing.T) {
	deps, _ := newTestDeps(t)
	h := NewAppHandler(deps)

	w := getPath(h, "/api/v1/decisions/missing")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing decision: status = %d, want 404", w.Code)
	}

	if err := deps.Store.SaveDecision(storage.Decision{
		ID: "d1", TransactionID: "txn-1", Status: "APPROVED",
		RuleFired: "no_risk_found", VerdictsJSON: "{}", Explanation: "ok",
		ThresholdVersion: 1, CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("SaveDecision: %v", err)
	}

	w = getPath(h, "/api/v1/decisions/txn-1")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var d storage.Decision
	if err := json.Unmarshal(w.Body.Bytes(), &d); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if d.RuleFired != "no_risk_found" {
		t.Errorf("rule_fired = %q", d.RuleFired)
	}
}

func TestListDecisionsEmptyIsArray(t *testing.T) {
	deps, _ := newTestDeps(t)
	h := NewAppHandler(deps)

	w := getPath(h, "/api/v1/decisions")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := bytes.TrimSpace(w.Body.Bytes()); string(got) != "[]" {
		t.Errorf("empty list body = %s, want []", got)
	}
}

func TestListDecisionsLimit(t *testing.T) {
	deps, _ := newTestDeps(t)
	h := NewAppHandler(deps)

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		if err := deps.Store.SaveDecision(storage.Decision{
			ID: fmt.Sprintf("d%d", i), TransactionID: fmt.Sprintf("t%d", i),
			Status: "APPROVED", RuleFired: "no_risk_found", VerdictsJSON: "{}",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("SaveDecision: %v", err)
		}
	}

	w := getPath(h, "/api/v1/decisions?limit=2")
	var list []storage.Decision
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("got %d decisions, want 2", len(list))
	}

	// A bogus limit falls back to the default rather than erroring.
	w = getPath(h, "/api/v1/decisions?limit=banana")
	if w.Code != http.StatusOK {
		t.Errorf("bogus limit: status = %d, want 200", w.Code)
	}
}

func TestFeedbackEndpoint(t *testing.T) {
	deps, _ := newTestDeps(t)
	h := NewAppHandler(deps)

	w := postJSON(t, h, "/api/v1/feedback", FeedbackRequest{
		TransactionID:  "txn-1",
		AgentKind:      "fraud",
		PredictedLabel: "HIGH",
		ActualLabel:    "LOW",
		Comment:        "false alarm",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var rec learning.FeedbackRecord
	if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if rec.ID == "" {
		t.Error("record id not assigned")
	}

	perf, err := deps.Learning.Performance(agent.KindFraud)
	if err != nil {
		t.Fatalf("Performance: %v", err)
	}
	if perf.FalsePositives != 1 {
		t.Errorf("FalsePositives = %d, want 1", perf.FalsePositives)
	}
}

func TestFeedbackValidation(t *testing.T) {
	deps, _ := newTestDeps(t)
	h := NewAppHandler(deps)

	w := postJSON(t, h, "/api/v1/feedback", FeedbackRequest{
		TransactionID: "txn-1", AgentKind: "oracle", ActualLabel: "LOW",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown kind: status = %d, want 400", w.Code)
	}

	w = postJSON(t, h, "/api/v1/feedback", FeedbackRequest{
		TransactionID: "txn-1", AgentKind: "fraud", PredictedLabel: "HIGH",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing actual_label: status = %d, want 400", w.Code)
	}
}

func TestPerformanceEndpoint(t *testing.T) {
	deps, _ := newTestDeps(t)
	h := NewAppHandler(deps)

	w := getPath(h, "/api/v1/agents/oracle/performance")
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown kind: status = %d, want 400", w.Code)
	}

	w = getPath(h, "/api/v1/agents/fraud/performance")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var perf learning.Performance
	if err := json.Unmarshal(w.Body.Bytes(), &perf); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if perf.Kind != agent.KindFraud {
		t.Errorf("kind = %s, want fraud", perf.Kind)
	}
}

func TestInsightsEmptyIsArray(t *testing.T) {
	deps, _ := newTestDeps(t)
	h := NewAppHandler(deps)

	w := getPath(h, "/api/v1/learning/insights")
	if got := bytes.TrimSpace(w.Body.Bytes()); string(got) != "[]" {
		t.Errorf("empty insights body = %s, want []", got)
	}
}

func TestApplyAdjustmentFlow(t *testing.T) {
	deps, _ := newTestDeps(t)
	h := NewAppHandler(deps)

	// Nothing proposed and nothing proposable.
	w := postJSON(t, h, "/api/v1/learning/adjustments/fraud/apply", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("no adjustment: status = %d, want 409", w.Code)
	}

	// Enough lopsided feedback that the handler can compute a proposal on
	// demand without waiting for the tuner.
	for i := 0; i < 10; i++ {
		if _, err := deps.Learning.RecordFeedback(learning.FeedbackRecord{
			TransactionID:  fmt.Sprintf("txn-%d", i),
			Kind:           agent.KindFraud,
			PredictedLabel: agent.LabelHigh,
			ActualLabel:    agent.LabelLow,
		}); err != nil {
			t.Fatalf("RecordFeedback: %v", err)
		}
	}

	w = postJSON(t, h, "/api/v1/learning/adjustments/fraud/apply", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var applied agent.Thresholds
	if err := json.Unmarshal(w.Body.Bytes(), &applied); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if applied.Version != 2 {
		t.Errorf("applied version = %d, want 2", applied.Version)
	}
	if applied.Fraud.Medium <= 0.5 {
		t.Errorf("fraud medium = %v, want raised above 0.5", applied.Fraud.Medium)
	}

	// Unknown kind still rejected.
	w = postJSON(t, h, "/api/v1/learning/adjustments/oracle/apply", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown kind: status = %d, want 400", w.Code)
	}
}
