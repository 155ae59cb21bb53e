// Package cli implements the Sentry command-line interface using Cobra.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sentry",
	Short: "Sentry — security telemetry and automated response",
	Long: `Sentry ingests security telemetry from a mesh VPN fleet, detects
anomalies and threats, and drives the automated response workflow:
assessment, alerting, remediation, and incident tracking.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
