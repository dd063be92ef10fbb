package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bhairavmehta/financial-ai-swarm/internal/config"
)

// --- process ---

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Run a transaction through the decision pipeline",
	Long: `Run a transaction through the decision pipeline.

Examples:
  finswarm process --amount 1200 --merchant "Acme Corp" --category software
  finswarm process --amount 2850 --merchant "Delta Airlines" --category travel --document ./receipt.pdf`,
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, _ := cmd.Flags().GetFloat64("amount")
		merchant, _ := cmd.Flags().GetString("merchant")
		category, _ := cmd.Flags().GetString("category")
		requester, _ := cmd.Flags().GetString("requester")
		description, _ := cmd.Flags().GetString("description")
		docPath, _ := cmd.Flags().GetString("document")

		if merchant == "" {
			return fmt.Errorf("--merchant is required")
		}
		if amount < 0 {
			return fmt.Errorf("--amount must be >= 0")
		}

		req := map[string]any{
			"amount":       amount,
			"merchant":     merchant,
			"category":     category,
			"requester_id": requester,
			"description":  description,
		}
		if docPath != "" {
			req["document"] = map[string]string{"path": docPath}
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/api/v1/transactions/process", req)
		if err != nil {
			return err
		}

		var decision struct {
			TransactionID string `json:"transaction_id"`
			Status        string `json:"status"`
			RuleFired     string `json:"rule_fired"`
			Explanation   string `json:"explanation"`
		}
		if err := decodeJSON(resp, &decision); err != nil {
			return err
		}

		fmt.Printf("%s  %s\n",
			colorize(colorBold, decision.TransactionID),
			colorize(statusColor(decision.Status), decision.Status),
		)
		fmt.Println()
		fmt.Println(decision.Explanation)
		return nil
	},
}

func init() {
	processCmd.Flags().Float64("amount", 0, "transaction amount in dollars")
	processCmd.Flags().String("merchant", "", "merchant or vendor name")
	processCmd.Flags().String("category", "", "spend category (travel, software, ...)")
	processCmd.Flags().String("requester", "cli", "requester identifier")
	processCmd.Flags().String("description", "", "free-text description")
	processCmd.Flags().String("document", "", "path to an attached receipt or invoice PDF")
}

// --- decisions ---

var decisionsCmd = &cobra.Command{
	Use:   "decisions",
	Short: "List recent decisions",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/api/v1/decisions?limit=%d", limit))
		if err != nil {
			return err
		}

		var decisions []struct {
			TransactionID string `json:"transaction_id"`
			Status        string `json:"status"`
			RuleFired     string `json:"rule_fired"`
			CreatedAt     string `json:"created_at"`
		}
		if err := decodeJSON(resp, &decisions); err != nil {
			return err
		}

		if len(decisions) == 0 {
			fmt.Println("No decisions found.")
			return nil
		}

		for _, d := range decisions {
			fmt.Printf("%s  %s  %s  %s\n",
				colorize(colorCyan, shortID(d.TransactionID)),
				d.CreatedAt,
				colorize(statusColor(d.Status), d.Status),
				d.RuleFired,
			)
		}
		return nil
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	decisionsCmd.Flags().Int("limit", 20, "maximum number of decisions to list")
}

// --- feedback ---

var feedbackCmd = &cobra.Command{
	Use:   "feedback <transaction-id>",
	Short: "Record a human correction for a collaborator verdict",
	Long: `Record a human correction for a collaborator verdict.

Examples:
  finswarm feedback txn-42 --agent fraud --predicted HIGH --actual LOW
  finswarm feedback txn-42 --agent compliance --predicted APPROVED --actual REVIEW --comment "missed PEP match"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		agentKind, _ := cmd.Flags().GetString("agent")
		predicted, _ := cmd.Flags().GetString("predicted")
		actual, _ := cmd.Flags().GetString("actual")
		comment, _ := cmd.Flags().GetString("comment")

		if agentKind == "" || actual == "" {
			return fmt.Errorf("--agent and --actual are required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/api/v1/feedback", map[string]string{
			"transaction_id":  args[0],
			"agent_kind":      strings.ToLower(agentKind),
			"predicted_label": predicted,
			"actual_label":    actual,
			"comment":         comment,
		})
		if err != nil {
			return err
		}

		var rec struct {
			ID string `json:"id"`
		}
		if err := decodeJSON(resp, &rec); err != nil {
			return err
		}

		printSuccess("Recorded feedback %s", rec.ID)
		return nil
	},
}

func init() {
	feedbackCmd.Flags().String("agent", "", "collaborator kind: fraud, compliance, spend, vendor, document")
	feedbackCmd.Flags().String("predicted", "", "label the collaborator produced")
	feedbackCmd.Flags().String("actual", "", "label a human judged correct")
	feedbackCmd.Flags().String("comment", "", "optional free-text note")
}

// --- performance ---

var performanceCmd = &cobra.Command{
	Use:   "performance <agent-kind>",
	Short: "Show accuracy metrics for a collaborator",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/v1/agents/"+strings.ToLower(args[0])+"/performance")
		if err != nil {
			return err
		}

		var perf struct {
			Kind           string  `json:"kind"`
			TotalDecisions int     `json:"total_decisions"`
			Correct        int     `json:"correct"`
			Incorrect      int     `json:"incorrect"`
			Accuracy       float64 `json:"accuracy"`
			FalsePositives int     `json:"false_positives"`
			FalseNegatives int     `json:"false_negatives"`
		}
		if err := decodeJSON(resp, &perf); err != nil {
			return err
		}

		printStatus("Agent", "%s", perf.Kind)
		printStatus("Decisions", "%d", perf.TotalDecisions)
		printStatus("Correct", "%d", perf.Correct)
		printStatus("Incorrect", "%d", perf.Incorrect)
		printStatus("Accuracy", "%.1f%%", perf.Accuracy*100)
		printStatus("False positives", "%d", perf.FalsePositives)
		printStatus("False negatives", "%d", perf.FalseNegatives)
		return nil
	},
}

// --- insights ---

var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "List pending threshold adjustment proposals",
	RunE: func(cmd *cobra.Command, args []string) error {
		apply, _ := cmd.Flags().GetString("apply")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		if apply != "" {
			resp, err := client.post(cmd.Context(), "/api/v1/learning/adjustments/"+strings.ToLower(apply)+"/apply", nil)
			if err != nil {
				return err
			}
			var applied struct {
				Version int64 `json:"version"`
			}
			if err := decodeJSON(resp, &applied); err != nil {
				return err
			}
			printSuccess("Applied adjustment for %s, thresholds now at version %d", apply, applied.Version)
			return nil
		}

		resp, err := client.get(cmd.Context(), "/api/v1/learning/insights")
		if err != nil {
			return err
		}

		var insights []any
		if err := decodeJSON(resp, &insights); err != nil {
			return err
		}

		if len(insights) == 0 {
			fmt.Println("No pending adjustments.")
			return nil
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(insights)
	},
}

func init() {
	insightsCmd.Flags().String("apply", "", "apply the pending adjustment for this agent kind")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
