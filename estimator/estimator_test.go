package estimator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/scrimp/pricing"
	"github.com/yairfalse/scrimp/rules"
	"github.com/yairfalse/scrimp/types"
)

type fakePrices struct {
	price  float64
	unit   string
	source pricing.Source
	err    error
	keys   []pricing.Key
}

func (f *fakePrices) GetPrice(_ context.Context, key pricing.Key, _ bool) (pricing.Quote, error) {
	f.keys = append(f.keys, key)
	if f.err != nil {
		return pricing.Quote{}, f.err
	}
	return pricing.Quote{PricePerUnit: f.price, Unit: f.unit, Source: f.source}, nil
}

func gbRule(minAge, confidenceDays float64) rules.EffectiveRule {
	return rules.EffectiveRule{
		ResourceType: rules.TypeEBSVolumeUnattached,
		Enabled:      true,
		Thresholds: map[string]float64{
			rules.ThresholdMinAgeDays:     minAge,
			rules.ThresholdConfidenceDays: confidenceDays,
		},
	}
}

func TestEstimateConcreteScenario(t *testing.T) {
	prices := &fakePrices{price: 0.10, unit: "GB-month", source: pricing.SourceAPI}
	est := New(prices)

	obs := types.Observation{
		ResourceType: rules.TypeEBSVolumeUnattached,
		ResourceID:   "vol-0abc",
		Provider:     "aws",
		Region:       "us-east-1",
		AgeDays:      65,
		SizeUnits:    100,
	}

	finding := est.Estimate(context.Background(), obs, gbRule(7, 30))
	require.NotNil(t, finding)

	assert.Equal(t, 10.00, finding.EstimatedMonthlyCost)
	assert.Equal(t, 21.67, finding.AlreadyWastedCost, "10 x 65/30, rounded to cents")
	assert.Equal(t, types.ConfidenceHigh, finding.Confidence, "65 >= 2x30")
	assert.NotEmpty(t, finding.Reasons)

	require.Len(t, prices.keys, 1)
	assert.Equal(t, pricing.Key{Provider: "aws", Service: "ebs", Region: "us-east-1"}, prices.keys[0])
}

func TestEstimateEligibilityGate(t *testing.T) {
	prices := &fakePrices{price: 0.10, unit: "GB-month"}
	est := New(prices)
	ctx := context.Background()

	// Too young: not a finding, for every registered resource type.
	for resourceType, rule := range rules.BuiltinDefaults() {
		obs := types.Observation{
			ResourceType: resourceType,
			ResourceID:   "r-1",
			Provider:     "aws",
			Region:       "us-east-1",
			AgeDays:      rule.Threshold(rules.ThresholdMinAgeDays) - 1,
			SizeUnits:    10,
		}
		assert.Nil(t, est.Estimate(ctx, obs, rule), resourceType)
	}

	// Disabled rule: not a finding regardless of age.
	rule := gbRule(7, 30)
	rule.Enabled = false
	obs := types.Observation{
		ResourceType: rules.TypeEBSVolumeUnattached,
		ResourceID:   "vol-1",
		Provider:     "aws",
		Region:       "us-east-1",
		AgeDays:      1000,
		SizeUnits:    10,
	}
	assert.Nil(t, est.Estimate(ctx, obs, rule))

	assert.Empty(t, prices.keys, "ineligible observations never trigger price lookups")
}

func TestEstimateMinStoppedDaysGate(t *testing.T) {
	est := New(&fakePrices{price: 0.08, unit: "GB-month"})
	ctx := context.Background()

	rule := rules.EffectiveRule{
		ResourceType: rules.TypeEC2InstanceStopped,
		Enabled:      true,
		Thresholds: map[string]float64{
			rules.ThresholdMinAgeDays:     7,
			rules.ThresholdMinStoppedDays: 7,
			rules.ThresholdConfidenceDays: 30,
		},
	}
	obs := types.Observation{
		ResourceType: rules.TypeEC2InstanceStopped,
		ResourceID:   "i-1",
		Provider:     "aws",
		Region:       "us-east-1",
		AgeDays:      100,
		SizeUnits:    50,
		Metrics:      map[string]float64{"stopped_days": 2},
	}
	assert.Nil(t, est.Estimate(ctx, obs, rule), "stopped more recently than min_stopped_days")

	obs.Metrics["stopped_days"] = 30
	assert.NotNil(t, est.Estimate(ctx, obs, rule))
}

func TestEstimateRequiredLabels(t *testing.T) {
	est := New(&fakePrices{price: 0.10, unit: "GB-month"})
	ctx := context.Background()

	rule := gbRule(7, 30)
	rule.RequiredLabels = []string{"team", "owner"}

	obs := types.Observation{
		ResourceType: rules.TypeEBSVolumeUnattached,
		ResourceID:   "vol-1",
		Provider:     "aws",
		Region:       "us-east-1",
		AgeDays:      40,
		SizeUnits:    20,
		Labels:       map[string]string{"team": "payments", "owner": "alice"},
	}
	assert.Nil(t, est.Estimate(ctx, obs, rule), "fully labelled resources are claimed")

	obs.Labels = map[string]string{"team": "payments"}
	finding := est.Estimate(ctx, obs, rule)
	require.NotNil(t, finding)
	assert.Contains(t, finding.Reasons, "missing required labels: owner")
}

func TestEstimateMissingPriceZeroCostFinding(t *testing.T) {
	est := New(&fakePrices{err: pricing.ErrPriceNotAvailable})

	obs := types.Observation{
		ResourceType: rules.TypeEBSVolumeUnattached,
		ResourceID:   "vol-1",
		Provider:     "aws",
		Region:       "us-east-1",
		AgeDays:      65,
		SizeUnits:    100,
	}
	finding := est.Estimate(context.Background(), obs, gbRule(7, 30))

	require.NotNil(t, finding, "missing price must not drop the finding")
	assert.Equal(t, 0.0, finding.EstimatedMonthlyCost)
	assert.Equal(t, 0.0, finding.AlreadyWastedCost)
	assert.Contains(t, finding.Reasons, "no price available for aws/ebs in us-east-1")
	assert.Equal(t, types.ConfidenceHigh, finding.Confidence, "confidence still computed")
}

func TestConfidenceMonotonicity(t *testing.T) {
	rule := gbRule(0, 30)

	prev := types.ConfidenceLow
	for age := 0.0; age <= 200; age += 0.5 {
		c := confidenceFor(age, rule)
		assert.GreaterOrEqual(t, c, prev, "age %v", age)
		prev = c
	}
}

func TestConfidenceBreakpoints(t *testing.T) {
	rule := gbRule(0, 30)

	tests := []struct {
		age  float64
		want types.Confidence
	}{
		{0, types.ConfidenceLow},
		{29.9, types.ConfidenceLow},
		{30, types.ConfidenceMedium},
		{59.9, types.ConfidenceMedium},
		{60, types.ConfidenceHigh},
		{89.9, types.ConfidenceHigh},
		{90, types.ConfidenceCritical},
		{1000, types.ConfidenceCritical},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, confidenceFor(tt.age, rule), "age %v", tt.age)
	}
}

func TestConfidenceCustomMultiplesStayMonotonic(t *testing.T) {
	rule := gbRule(0, 10)
	// Misconfigured: critical multiple below high multiple.
	rule.Thresholds[rules.ThresholdConfidenceHighMult] = 4
	rule.Thresholds[rules.ThresholdConfidenceCritMult] = 2

	prev := types.ConfidenceLow
	for age := 0.0; age <= 100; age++ {
		c := confidenceFor(age, rule)
		assert.GreaterOrEqual(t, c, prev, "age %v", age)
		prev = c
	}
}

func TestFormulaSurcharges(t *testing.T) {
	est := New(&fakePrices{price: 0.08, unit: "GB-month"})
	ctx := context.Background()

	// Provisioned IOPS add a metered monthly amount.
	obs := types.Observation{
		ResourceType: rules.TypeEBSVolumeUnattached,
		ResourceID:   "vol-io",
		Provider:     "aws",
		Region:       "us-east-1",
		AgeDays:      30,
		SizeUnits:    100,
		Metrics:      map[string]float64{"provisioned_iops": 3000},
	}
	finding := est.Estimate(ctx, obs, gbRule(7, 30))
	require.NotNil(t, finding)
	assert.Equal(t, 23.00, finding.EstimatedMonthlyCost, "100x0.08 + 3000x0.005")
}

func TestFormulaLabelFactor(t *testing.T) {
	est := New(&fakePrices{price: 0.017, unit: "hour"})
	ctx := context.Background()

	rule := rules.BuiltinDefaults()[rules.TypeRDSInstanceIdle]
	obs := types.Observation{
		ResourceType: rules.TypeRDSInstanceIdle,
		ResourceID:   "db-1",
		Provider:     "aws",
		Region:       "us-east-1",
		AgeDays:      30,
		SizeUnits:    1,
		Labels:       map[string]string{"multi_az": "true"},
	}
	finding := est.Estimate(ctx, obs, rule)
	require.NotNil(t, finding)
	assert.Equal(t, 24.82, finding.EstimatedMonthlyCost, "0.017 x 730 x 2, rounded")

	obs.Labels = nil
	obs.ResourceID = "db-2"
	single := est.Estimate(ctx, obs, rule)
	require.NotNil(t, single)
	assert.Equal(t, 12.41, single.EstimatedMonthlyCost)
}

func TestEstimateUnknownTypeUsesGenericFormula(t *testing.T) {
	prices := &fakePrices{price: 0.05, unit: "unit-month"}
	est := New(prices)

	rule := rules.EffectiveRule{
		ResourceType: "m365_mailbox_inactive",
		Enabled:      true,
		Thresholds:   map[string]float64{rules.ThresholdMinAgeDays: 30, rules.ThresholdConfidenceDays: 90},
	}
	obs := types.Observation{
		ResourceType: "m365_mailbox_inactive",
		ResourceID:   "mbx-1",
		Provider:     "m365",
		Region:       "global",
		AgeDays:      100,
		SizeUnits:    50,
	}

	finding := est.Estimate(context.Background(), obs, rule)
	require.NotNil(t, finding)
	assert.Equal(t, 2.50, finding.EstimatedMonthlyCost)
	require.Len(t, prices.keys, 1)
	assert.Equal(t, "m365_mailbox_inactive", prices.keys[0].Service, "service key defaults to the resource type")
}
