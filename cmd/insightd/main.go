// Command insightd serves the tabular-analysis API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "insightd",
	Short: "insightd: upload-and-analyze service for tabular data",
	Long: `insightd ingests CSV and Excel files, normalizes and classifies their
columns, computes statistics and forecasts, pre-aggregates recommended
charts, and serves the results over HTTP.`,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional; env vars use the INSIGHT_ prefix)")
	rootCmd.AddCommand(serveCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
