package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/yairfalse/scrimp/pricing"
)

var pricingCmd = &cobra.Command{
	Use:   "pricing",
	Short: "Inspect and maintain the pricing cache",
}

var (
	cacheProvider string
	cacheService  string
	cacheRegion   string
	cacheOffset   int
	cacheLimit    int
)

var pricingCacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "List cached price entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		views, total, err := a.priceStore.List(pricing.Filter{
			Provider: cacheProvider,
			Service:  cacheService,
			Region:   cacheRegion,
			Offset:   cacheOffset,
			Limit:    cacheLimit,
		}, time.Now())
		if err != nil {
			return err
		}

		if err := printJSON(views); err != nil {
			return err
		}
		fmt.Printf("%d of %d entries\n", len(views), total)
		return nil
	},
}

var pricingStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show pricing cache statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		return printJSON(a.priceStore.Stats(time.Now()))
	},
}

var pricingRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Force re-resolution of every cached price key",
	Long: `Refresh all known price keys, skipping the cache tier so each key
re-evaluates against the live API and fallback table. Blocks until the
job finishes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx, true)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		jobID := a.refresher.Start(ctx)
		fmt.Printf("Refresh job %s started\n", jobID)

		status, err := a.refresher.Wait(ctx, jobID)
		if err != nil {
			return err
		}
		fmt.Printf("Refreshed %d, failed %d of %d key(s)\n",
			status.Refreshed, status.Failed, status.Total)
		return nil
	},
}

var pricingPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete every cached price entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		deleted, err := a.priceStore.Purge()
		if err != nil {
			return err
		}
		fmt.Printf("Purged %d entrie(s)\n", deleted)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pricingCmd)

	pricingCacheCmd.Flags().StringVar(&cacheProvider, "provider", "", "Filter by provider")
	pricingCacheCmd.Flags().StringVar(&cacheService, "service", "", "Filter by service")
	pricingCacheCmd.Flags().StringVar(&cacheRegion, "region", "", "Filter by region")
	pricingCacheCmd.Flags().IntVar(&cacheOffset, "offset", 0, "Pagination offset")
	pricingCacheCmd.Flags().IntVar(&cacheLimit, "limit", 50, "Pagination limit")
	pricingCmd.AddCommand(pricingCacheCmd)

	pricingCmd.AddCommand(pricingStatsCmd)

	pricingCmd.AddCommand(pricingRefreshCmd)

	pricingCmd.AddCommand(pricingPurgeCmd)
}
