package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	configPath string

	rootCmd = &cobra.Command{
		Use:   "scrimp",
		Short: "Cloud cost waste detector",
		Long: `Scrimp - Cloud Cost Waste Detector

Scrimp scans cloud accounts for waste scenarios - unattached volumes,
orphaned snapshots, stopped instances, idle databases - prices each
finding through a cached three-tier price chain, and reports how much
money is leaking per month.`,
		Version: version,
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "scrimp.yaml", "Path to config file")
	rootCmd.SetVersionTemplate(`Scrimp {{.Version}} - Cloud Cost Waste Detector
`)
}
