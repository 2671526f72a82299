package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// kubeconfigPath overrides the default kubeconfig resolution.
	kubeconfigPath string
	// kubeContext selects a non-current context from kubeconfig.
	kubeContext string
	// chartsRoot is the directory holding one Helm chart per service Kind.
	chartsRoot string
)

var rootCmd = &cobra.Command{
	Use:   "enginectl",
	Short: "enginectl — drives one environment deployment request to completion",
	Long: `enginectl reads a single EnvironmentEngineRequest (JSON) describing an
environment's desired services and action, then builds, mirrors, and
applies them against a target Kubernetes cluster.

Typical invocation:

  enginectl run -f request.json
  enginectl run -f request.json --charts-root /etc/enginectl/charts`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&kubeconfigPath, "kubeconfig", "", "Path to kubeconfig (default: $KUBECONFIG or ~/.kube/config)")
	rootCmd.PersistentFlags().StringVar(&kubeContext, "kube-context", "", "kubeconfig context to use (default: current context)")
	rootCmd.PersistentFlags().StringVar(&chartsRoot, "charts-root", "/etc/enginectl/charts", "Directory holding one Helm chart per service kind")
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("enginectl: %w", err)
	}
	return nil
}
