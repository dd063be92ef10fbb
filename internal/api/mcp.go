package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/bhairavmehta/financial-ai-swarm/internal/agent"
	"github.com/bhairavmehta/financial-ai-swarm/internal/learning"
	"github.com/bhairavmehta/financial-ai-swarm/internal/storage"
	"github.com/bhairavmehta/financial-ai-swarm/internal/transaction"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Pipeline Processor
	Learning *learning.Store
	Store    *storage.Store
}

// NewMCPServer creates an MCP server with all finswarm tools and resources
// registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"finswarm",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("finswarm: financial transaction decision pipeline running fraud, compliance, spend, and vendor checks with a feedback loop."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("process_transaction",
			mcp.WithDescription("Run a financial transaction through the decision pipeline and return the verdict."),
			mcp.WithNumber("amount", mcp.Description("Transaction amount in dollars"), mcp.Required()),
			mcp.WithString("merchant", mcp.Description("Merchant or vendor name"), mcp.Required()),
			mcp.WithString("category", mcp.Description("Spend category, e.g. travel or software")),
			mcp.WithString("requester_id", mcp.Description("Who submitted the transaction")),
			mcp.WithString("description", mcp.Description("Free-text description")),
			mcp.WithString("document_text", mcp.Description("Raw receipt or invoice text to extract fields from")),
		),
		mcpProcessTransaction(deps),
	)

	s.AddTool(
		mcp.NewTool("submit_feedback",
			mcp.WithDescription("Record a human correction for a collaborator's verdict on a past transaction."),
			mcp.WithString("transaction_id", mcp.Description("Transaction the correction applies to"), mcp.Required()),
			mcp.WithString("agent_kind", mcp.Description("Collaborator kind: fraud, compliance, spend, vendor, or document"), mcp.Required()),
			mcp.WithString("predicted_label", mcp.Description("Label the collaborator produced")),
			mcp.WithString("actual_label", mcp.Description("Label a human judged correct"), mcp.Required()),
			mcp.WithString("comment", mcp.Description("Optional free-text note")),
		),
		mcpSubmitFeedback(deps),
	)

	s.AddTool(
		mcp.NewTool("agent_performance",
			mcp.WithDescription("Return accuracy metrics for one collaborator computed from accumulated feedback."),
			mcp.WithString("kind", mcp.Description("Collaborator kind: fraud, compliance, spend, vendor, or document"), mcp.Required()),
		),
		mcpAgentPerformance(deps),
	)

	s.AddTool(
		mcp.NewTool("learning_insights",
			mcp.WithDescription("List pending threshold adjustment proposals computed from feedback."),
		),
		mcpLearningInsights(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"finswarm://decisions/recent",
			"Recent Decisions",
			mcp.WithResourceDescription("Last 10 pipeline decisions"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecentDecisions(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"finswarm://thresholds",
			"Active Thresholds",
			mcp.WithResourceDescription("Active threshold configuration as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceThresholds(deps),
	)

	return s
}

func mcpProcessTransaction(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		amount, err := req.RequireFloat("amount")
		if err != nil {
			return mcpError("amount is required"), nil
		}
		merchant, err := req.RequireString("merchant")
		if err != nil {
			return mcpError("merchant is required"), nil
		}

		txn := transaction.Transaction{
			ID:          uuid.New().String(),
			Amount:      amount,
			Merchant:    merchant,
			Category:    req.GetString("category", ""),
			RequesterID: req.GetString("requester_id", "mcp"),
			Timestamp:   time.Now().UTC(),
			Description: req.GetString("description", ""),
		}
		if text := req.GetString("document_text", ""); text != "" {
			txn.Document = &transaction.DocumentRef{Text: text}
		}

		decision, err := deps.Pipeline.Process(ctx, txn)
		if err != nil {
			return mcpError(fmt.Sprintf("processing failed: %v", err)), nil
		}

		b, err := json.Marshal(decision)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal decision: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSubmitFeedback(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		txnID, err := req.RequireString("transaction_id")
		if err != nil {
			return mcpError("transaction_id is required"), nil
		}
		kindStr, err := req.RequireString("agent_kind")
		if err != nil {
			return mcpError("agent_kind is required"), nil
		}
		actual, err := req.RequireString("actual_label")
		if err != nil {
			return mcpError("actual_label is required"), nil
		}

		kind, ok := agent.ParseKind(kindStr)
		if !ok {
			return mcpError(fmt.Sprintf("unknown agent kind %q", kindStr)), nil
		}

		rec, err := deps.Learning.RecordFeedback(learning.FeedbackRecord{
			TransactionID:  txnID,
			Kind:           kind,
			PredictedLabel: req.GetString("predicted_label", ""),
			ActualLabel:    actual,
			Comment:        req.GetString("comment", ""),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to record feedback: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Recorded feedback %s for %s/%s", rec.ID, rec.TransactionID, rec.Kind)), nil
	}
}

func mcpAgentPerformance(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		kindStr, err := req.RequireString("kind")
		if err != nil {
			return mcpError("kind is required"), nil
		}
		kind, ok := agent.ParseKind(kindStr)
		if !ok {
			return mcpError(fmt.Sprintf("unknown agent kind %q", kindStr)), nil
		}

		perf, err := deps.Learning.Performance(kind)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to compute performance: %v", err)), nil
		}

		b, err := json.Marshal(perf)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal metrics: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpLearningInsights(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		insights := deps.Learning.Insights()
		if len(insights) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(insights)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal insights: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceRecentDecisions(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		decisions, err := deps.Store.ListDecisions(10)
		if err != nil {
			return nil, fmt.Errorf("failed to list decisions: %w", err)
		}

		type decisionSummary struct {
			TransactionID string `json:"transaction_id"`
			Status        string `json:"status"`
			RuleFired     string `json:"rule_fired"`
			CreatedAt     string `json:"created_at"`
		}

		summaries := make([]decisionSummary, len(decisions))
		for i, d := range decisions {
			summaries[i] = decisionSummary{
				TransactionID: d.TransactionID,
				Status:        d.Status,
				RuleFired:     d.RuleFired,
				CreatedAt:     d.CreatedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal decisions: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourceThresholds(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(deps.Learning.Current())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal thresholds: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
