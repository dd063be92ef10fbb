// Package api exposes the decision pipeline over HTTP and MCP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bhairavmehta/financial-ai-swarm/internal/agent"
	"github.com/bhairavmehta/financial-ai-swarm/internal/learning"
	"github.com/bhairavmehta/financial-ai-swarm/internal/orchestrator"
	"github.com/bhairavmehta/financial-ai-swarm/internal/storage"
	"github.com/bhairavmehta/financial-ai-swarm/internal/transaction"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Processor abstracts the supervisor for the API layer.
type Processor interface {
	Process(ctx context.Context, txn transaction.Transaction) (orchestrator.Decision, error)
}

type AppDeps struct {
	Pipeline Processor
	Learning *learning.Store
	Store    *storage.Store
	Token    string // empty disables bearer auth
}

func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}

		r.Post("/transactions/process", handleProcess(deps))
		r.Get("/decisions", handleListDecisions(deps))
		r.Get("/decisions/{transactionID}", handleGetDecision(deps))
		r.Post("/feedback", handleFeedback(deps))
		r.Get("/agents/{kind}/performance", handlePerformance(deps))
		r.Get("/learning/insights", handleInsights(deps))
		r.Post("/learning/adjustments/{kind}/apply", handleApplyAdjustment(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// ProcessRequest is the transaction submission payload. The id is optional;
// one is assigned when missing.
type ProcessRequest struct {
	ID          string                   `json:"id"`
	Amount      float64                  `json:"amount"`
	Merchant    string                   `json:"merchant"`
	Category    string                   `json:"category"`
	RequesterID string                   `json:"requester_id"`
	Timestamp   time.Time                `json:"timestamp"`
	Description string                   `json:"description"`
	Document    *transaction.DocumentRef `json:"document"`
}

func handleProcess(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req ProcessRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		if req.ID == "" {
			req.ID = uuid.New().String()
		}
		if req.Timestamp.IsZero() {
			req.Timestamp = time.Now().UTC()
		}

		txn := transaction.Transaction{
			ID:          req.ID,
			Amount:      req.Amount,
			Merchant:    req.Merchant,
			Category:    req.Category,
			RequesterID: req.RequesterID,
			Timestamp:   req.Timestamp,
			Description: req.Description,
			Document:    req.Document,
		}
		if err := txn.Validate(); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		decision, err := deps.Pipeline.Process(r.Context(), txn)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "processing failed: %v", err)
			return
		}

		writeJSON(w, decision)
	}
}

func handleListDecisions(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)

		decisions, err := deps.Store.ListDecisions(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list decisions: %v", err)
			return
		}
		if decisions == nil {
			decisions = []storage.Decision{}
		}
		writeJSON(w, decisions)
	}
}

func handleGetDecision(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "transactionID")

		decision, err := deps.Store.GetDecision(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "no decision for transaction %s", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get decision: %v", err)
			return
		}
		writeJSON(w, decision)
	}
}

// FeedbackRequest is the correction submission payload.
type FeedbackRequest struct {
	TransactionID  string `json:"transaction_id"`
	AgentKind      string `json:"agent_kind"`
	PredictedLabel string `json:"predicted_label"`
	ActualLabel    string `json:"actual_label"`
	Comment        string `json:"comment"`
}

func handleFeedback(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req FeedbackRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		kind, ok := agent.ParseKind(req.AgentKind)
		if !ok {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown agent kind %q", req.AgentKind)
			return
		}
		if req.ActualLabel == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "actual_label is required")
			return
		}

		rec, err := deps.Learning.RecordFeedback(learning.FeedbackRecord{
			TransactionID:  req.TransactionID,
			Kind:           kind,
			PredictedLabel: req.PredictedLabel,
			ActualLabel:    req.ActualLabel,
			Comment:        req.Comment,
		})
		if errors.Is(err, agent.ErrStorageUnavailable) {
			httpError(w, http.StatusServiceUnavailable, "storage_unavailable", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		writeJSON(w, rec)
	}
}

func handlePerformance(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, ok := agent.ParseKind(chi.URLParam(r, "kind"))
		if !ok {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown agent kind %q", chi.URLParam(r, "kind"))
			return
		}

		perf, err := deps.Learning.Performance(kind)
		if err != nil {
			httpError(w, http.StatusServiceUnavailable, "storage_unavailable", "%v", err)
			return
		}
		writeJSON(w, perf)
	}
}

func handleInsights(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		insights := deps.Learning.Insights()
		if insights == nil {
			insights = []learning.Proposal{}
		}
		writeJSON(w, insights)
	}
}

func handleApplyAdjustment(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, ok := agent.ParseKind(chi.URLParam(r, "kind"))
		if !ok {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown agent kind %q", chi.URLParam(r, "kind"))
			return
		}

		p := deps.Learning.PendingProposal(kind)
		if p == nil {
			// Compute on demand so a caller does not have to wait for the
			// periodic tuner.
			computed, err := deps.Learning.ProposeAdjustment(kind)
			if err != nil {
				httpError(w, http.StatusServiceUnavailable, "storage_unavailable", "%v", err)
				return
			}
			p = computed
		}
		if p == nil {
			httpError(w, http.StatusConflict, "no_adjustment", "no adjustment proposed for %s", kind)
			return
		}

		applied, err := deps.Learning.Apply(*p)
		if err != nil {
			httpError(w, http.StatusServiceUnavailable, "storage_unavailable", "%v", err)
			return
		}
		writeJSON(w, applied)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
