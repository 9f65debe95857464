package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/yairfalse/scrimp/internal/emitter"
	"github.com/yairfalse/scrimp/orchestrator"
)

var (
	scanOwner         string
	scanRegions       []string
	scanResourceTypes []string
	scanJSON          bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one waste scan and print findings",
	Long: `Scan the configured provider for waste.

Each (resource type, region) pair is scanned independently; a failing
pair is reported and skipped, never fatal. Findings are priced through
the cache -> live API -> fallback chain.`,
	Example: `  scrimp scan                                   # All regions and types from config
  scrimp scan --regions us-east-1               # One region
  scrimp scan --types ebs_volume_unattached     # One scenario
  scrimp scan --owner team-a --json             # Team rules, JSON lines output`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringVar(&scanOwner, "owner", "", "Owner whose rule overrides apply")
	scanCmd.Flags().StringSliceVar(&scanRegions, "regions", nil, "Regions to scan (default: config)")
	scanCmd.Flags().StringSliceVar(&scanResourceTypes, "types", nil, "Resource types to scan (default: all registered)")
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "Emit findings as JSON lines")
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	regions := scanRegions
	if len(regions) == 0 {
		regions = a.cfg.Regions
	}
	resourceTypes := scanResourceTypes
	if len(resourceTypes) == 0 {
		resourceTypes = a.cfg.ResourceTypes
	}

	result, err := a.orch.Scan(ctx, orchestrator.ScanRequest{
		Owner:         scanOwner,
		Provider:      a.cfg.Provider,
		Regions:       regions,
		ResourceTypes: resourceTypes,
	})
	if err != nil {
		return err
	}

	if scanJSON {
		return emitter.NewJSONEmitter(os.Stdout).Emit(ctx, result)
	}
	printScanSummary(result)
	return nil
}

func printScanSummary(result *orchestrator.ScanResult) {
	// Deterministic output: most expensive first.
	sort.Slice(result.Findings, func(i, j int) bool {
		return result.Findings[i].EstimatedMonthlyCost > result.Findings[j].EstimatedMonthlyCost
	})

	var totalMonthly, totalWasted float64
	for _, finding := range result.Findings {
		totalMonthly += finding.EstimatedMonthlyCost
		totalWasted += finding.AlreadyWastedCost
		fmt.Printf("%-10s $%8.2f/mo  $%8.2f wasted  %-26s %-15s %s\n",
			finding.Confidence, finding.EstimatedMonthlyCost, finding.AlreadyWastedCost,
			finding.ResourceType, finding.Region, finding.ResourceID)
	}

	fmt.Printf("\nScan %s: %d findings, $%.2f/month leaking, $%.2f already wasted\n",
		result.ID, len(result.Findings), totalMonthly, totalWasted)
	if len(result.Skipped) > 0 {
		fmt.Printf("Skipped %d of %d pairs:\n", len(result.Skipped), result.PairsTotal)
		for _, skipped := range result.Skipped {
			fmt.Printf("  %s in %s: %s\n", skipped.ResourceType, skipped.Region, skipped.Reason)
		}
	}
}
