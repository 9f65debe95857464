// Package estimator turns raw observations into priced findings. Cost
// formulas are data, keyed by resource type, so new scenarios are table
// entries rather than new code paths.
package estimator

import (
	"github.com/yairfalse/scrimp/rules"
	"github.com/yairfalse/scrimp/types"
)

// HoursPerMonth converts hourly unit prices to a monthly run-rate.
const HoursPerMonth = 730

// Surcharge is one type-specific cost add-on. Label/LabelValue gate a
// multiplicative factor; Metric adds a metered monthly amount.
type Surcharge struct {
	Label          string
	LabelValue     string
	Factor         float64
	Metric         string
	PerUnitMonthly float64
}

// Formula computes a monthly cost for one resource type:
// size × price × multiplier + fixed, then surcharges.
type Formula struct {
	ServiceKey     string
	SizeMultiplier float64
	FixedMonthly   float64
	Surcharges     []Surcharge
}

// MonthlyCost applies the formula to an observation and a resolved unit
// price.
func (f Formula) MonthlyCost(obs types.Observation, pricePerUnit float64) float64 {
	multiplier := f.SizeMultiplier
	if multiplier == 0 {
		multiplier = 1
	}

	monthly := obs.SizeUnits*pricePerUnit*multiplier + f.FixedMonthly

	for _, s := range f.Surcharges {
		if s.Label != "" && obs.Labels[s.Label] == s.LabelValue && s.Factor > 0 {
			monthly *= s.Factor
		}
		if s.Metric != "" {
			if v, ok := obs.Metric(s.Metric); ok {
				monthly += v * s.PerUnitMonthly
			}
		}
	}
	return monthly
}

// BuiltinFormulas returns the cost formula table. SizeUnits semantics per
// scenario: GB for storage-priced types, instance/gateway count for
// hourly-priced types.
func BuiltinFormulas() map[string]Formula {
	return map[string]Formula{
		rules.TypeEBSVolumeUnattached: {
			ServiceKey:     "ebs",
			SizeMultiplier: 1,
			Surcharges: []Surcharge{
				{Metric: "provisioned_iops", PerUnitMonthly: 0.005},
				{Metric: "provisioned_throughput_mbps", PerUnitMonthly: 0.04},
			},
		},
		rules.TypeEBSVolumeIdle: {
			ServiceKey:     "ebs",
			SizeMultiplier: 1,
			Surcharges: []Surcharge{
				{Metric: "provisioned_iops", PerUnitMonthly: 0.005},
			},
		},
		rules.TypeSnapshotOrphaned: {
			ServiceKey:     "ebs_snapshot",
			SizeMultiplier: 1,
		},
		// A stopped instance no longer bills compute, only its volumes;
		// SizeUnits carries the attached storage GB.
		rules.TypeEC2InstanceStopped: {
			ServiceKey:     "ebs",
			SizeMultiplier: 1,
		},
		rules.TypeEC2InstanceIdle: {
			ServiceKey:     "ec2",
			SizeMultiplier: HoursPerMonth,
		},
		rules.TypeElasticIPUnassociated: {
			ServiceKey:     "elastic_ip",
			SizeMultiplier: HoursPerMonth,
		},
		rules.TypeNATGatewayIdle: {
			ServiceKey:     "nat_gateway",
			SizeMultiplier: HoursPerMonth,
			Surcharges: []Surcharge{
				{Metric: "data_processed_gb", PerUnitMonthly: 0.045},
			},
		},
		rules.TypeLBNoTargets: {
			ServiceKey:     "elb",
			SizeMultiplier: HoursPerMonth,
		},
		rules.TypeRDSInstanceIdle: {
			ServiceKey:     "rds",
			SizeMultiplier: HoursPerMonth,
			Surcharges: []Surcharge{
				{Label: "multi_az", LabelValue: "true", Factor: 2},
				{Metric: "allocated_storage_gb", PerUnitMonthly: 0.115},
			},
		},
		rules.TypeS3BucketIdle: {
			ServiceKey:     "s3",
			SizeMultiplier: 1,
		},
	}
}

// genericFormula prices unknown resource types as size × price so config-
// registered scenarios still produce estimates.
func genericFormula(resourceType string) Formula {
	return Formula{ServiceKey: resourceType, SizeMultiplier: 1}
}
