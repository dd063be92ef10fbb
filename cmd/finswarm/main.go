package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "finswarm",
	Short: "Financial transaction decision pipeline",
	Long: `finswarm routes financial transactions through fraud, compliance,
spend, and vendor checks, aggregates the verdicts under a fixed precedence
policy, and learns from human corrections.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the finswarm version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("finswarm version %s\n", version)
	},
}

func main() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable color output")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(decisionsCmd)
	rootCmd.AddCommand(feedbackCmd)
	rootCmd.AddCommand(performanceCmd)
	rootCmd.AddCommand(insightsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
