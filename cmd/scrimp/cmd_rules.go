package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yairfalse/scrimp/rules"
)

var rulesOwner string

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and edit detection rules",
	Long: `Inspect and edit detection rules.

Every resource type has an immutable seeded default. Owners overlay
sparse overrides on top: only the keys an override sets differ from the
default. Deleting overrides reverts to defaults.`,
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List effective rules for an owner",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		resolved, err := a.ruleResolver.ResolveAll(rulesOwner)
		if err != nil {
			return err
		}
		return printJSON(resolved)
	},
}

var rulesGroupedCmd = &cobra.Command{
	Use:   "grouped",
	Short: "List rules grouped by resource family",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		views, err := a.ruleResolver.FamilyViews(rulesOwner)
		if err != nil {
			return err
		}
		return printJSON(views)
	},
}

var (
	ruleSetEnable     bool
	ruleSetDisable    bool
	ruleSetThresholds []string
	ruleSetLabels     []string
)

var rulesSetCmd = &cobra.Command{
	Use:   "set <resource-type>",
	Short: "Create or update an owner override",
	Example: `  scrimp rules set ebs_volume_unattached --owner team-a --threshold min_age_days=14
  scrimp rules set s3_bucket_idle --owner team-a --disable
  scrimp rules set ec2_instance_stopped --owner team-a --require-labels team,owner`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		override := rules.Rule{Owner: rulesOwner, ResourceType: args[0]}
		if ruleSetEnable {
			enabled := true
			override.Enabled = &enabled
		}
		if ruleSetDisable {
			enabled := false
			override.Enabled = &enabled
		}
		if len(ruleSetThresholds) > 0 {
			override.Thresholds, err = parseThresholds(ruleSetThresholds)
			if err != nil {
				return err
			}
		}
		if len(ruleSetLabels) > 0 {
			override.RequiredLabels = ruleSetLabels
		}

		if err := a.ruleStore.SetOverride(override); err != nil {
			return err
		}

		effective, err := a.ruleResolver.Resolve(rulesOwner, args[0])
		if err != nil {
			return err
		}
		return printJSON(effective)
	},
}

var rulesDeleteCmd = &cobra.Command{
	Use:   "delete <resource-type>",
	Short: "Delete one owner override, reverting it to the default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		return a.ruleStore.DeleteOverride(rulesOwner, args[0])
	},
}

var resetResourceType string

var rulesResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete an owner's overrides, reverting to defaults",
	Long: `Delete an owner's override rows in one atomic step. With --type only
that resource type's override is removed; without it the owner's whole
override set reverts to defaults.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		deleted, err := a.ruleStore.ResetOverrides(rulesOwner, resetResourceType)
		if err != nil {
			return err
		}
		fmt.Printf("Reverted %d override(s) to defaults\n", deleted)
		return nil
	},
}

var (
	bulkEnable         bool
	bulkDisable        bool
	bulkMinAgeDays     float64
	bulkConfidenceDays float64
	bulkMinStoppedDays float64
)

var rulesBulkUpdateCmd = &cobra.Command{
	Use:   "bulk-update <family>",
	Short: "Apply a partial update to every resource type in a family",
	Example: `  scrimp rules bulk-update ebs_volumes --owner team-a --disable
  scrimp rules bulk-update network --owner team-a --min-age-days 30`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		var patch rules.BulkPatch
		if bulkEnable {
			enabled := true
			patch.Enabled = &enabled
		}
		if bulkDisable {
			enabled := false
			patch.Enabled = &enabled
		}
		if cmd.Flags().Changed("min-age-days") {
			patch.MinAgeDays = &bulkMinAgeDays
		}
		if cmd.Flags().Changed("confidence-days") {
			patch.ConfidenceThresholdDays = &bulkConfidenceDays
		}
		if cmd.Flags().Changed("min-stopped-days") {
			patch.MinStoppedDays = &bulkMinStoppedDays
		}

		updated, err := a.ruleResolver.BulkUpdateFamily(rulesOwner, args[0], patch)
		if err != nil {
			return err
		}

		family, _ := rules.FamilyByID(args[0])
		fmt.Printf("Updated %d of %d scenario(s) in %s\n", updated, len(family.Members), args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.PersistentFlags().StringVar(&rulesOwner, "owner", "", "Owner of the overrides")

	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesGroupedCmd)

	rulesSetCmd.Flags().BoolVar(&ruleSetEnable, "enable", false, "Enable the scenario")
	rulesSetCmd.Flags().BoolVar(&ruleSetDisable, "disable", false, "Disable the scenario")
	rulesSetCmd.Flags().StringSliceVar(&ruleSetThresholds, "threshold", nil, "Threshold override as key=value (repeatable)")
	rulesSetCmd.Flags().StringSliceVar(&ruleSetLabels, "require-labels", nil, "Labels that exempt a resource when present")
	rulesSetCmd.MarkFlagsMutuallyExclusive("enable", "disable")
	rulesCmd.AddCommand(rulesSetCmd)

	rulesCmd.AddCommand(rulesDeleteCmd)

	rulesResetCmd.Flags().StringVar(&resetResourceType, "type", "", "Limit the reset to one resource type")
	rulesCmd.AddCommand(rulesResetCmd)

	rulesBulkUpdateCmd.Flags().BoolVar(&bulkEnable, "enable", false, "Enable every scenario in the family")
	rulesBulkUpdateCmd.Flags().BoolVar(&bulkDisable, "disable", false, "Disable every scenario in the family")
	rulesBulkUpdateCmd.Flags().Float64Var(&bulkMinAgeDays, "min-age-days", 0, "Minimum age threshold")
	rulesBulkUpdateCmd.Flags().Float64Var(&bulkConfidenceDays, "confidence-days", 0, "Confidence threshold in days")
	rulesBulkUpdateCmd.Flags().Float64Var(&bulkMinStoppedDays, "min-stopped-days", 0, "Minimum stopped days threshold")
	rulesBulkUpdateCmd.MarkFlagsMutuallyExclusive("enable", "disable")
	rulesCmd.AddCommand(rulesBulkUpdateCmd)
}

func parseThresholds(pairs []string) (map[string]float64, error) {
	thresholds := make(map[string]float64, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("threshold %q: want key=value", pair)
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("threshold %q: %w", pair, err)
		}
		thresholds[key] = value
	}
	return thresholds, nil
}

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
