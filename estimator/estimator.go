package estimator

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/yairfalse/scrimp/pricing"
	"github.com/yairfalse/scrimp/rules"
	"github.com/yairfalse/scrimp/telemetry"
	"github.com/yairfalse/scrimp/types"
)

// PriceSource is what the estimator needs from the pricing resolver.
type PriceSource interface {
	GetPrice(ctx context.Context, key pricing.Key, forceRefresh bool) (pricing.Quote, error)
}

// Estimator computes cost and confidence for eligible observations. Pure
// given its inputs; the only side effects are the pricing cache's own writes.
type Estimator struct {
	prices   PriceSource
	formulas map[string]Formula
	logger   *telemetry.Logger
}

// New creates an estimator with the built-in formula table.
func New(prices PriceSource) *Estimator {
	return &Estimator{
		prices:   prices,
		formulas: BuiltinFormulas(),
		logger:   telemetry.NewLogger("estimator"),
	}
}

// WithFormulas replaces the formula table, for tests or config-driven
// scenarios.
func (e *Estimator) WithFormulas(formulas map[string]Formula) *Estimator {
	e.formulas = formulas
	return e
}

// Estimate classifies one observation under an effective rule. Returns nil
// when the observation is not a finding (rule disabled, too young, or the
// resource carries all required labels).
func (e *Estimator) Estimate(ctx context.Context, obs types.Observation, rule rules.EffectiveRule) *types.Finding {
	reasons, eligible := e.checkEligibility(obs, rule)
	if !eligible {
		return nil
	}

	formula, ok := e.formulas[obs.ResourceType]
	if !ok {
		formula = genericFormula(obs.ResourceType)
	}

	finding := &types.Finding{
		ResourceType: obs.ResourceType,
		ResourceID:   obs.ResourceID,
		Region:       obs.Region,
		Confidence:   confidenceFor(obs.AgeDays, rule),
		Reasons:      reasons,
		Metadata: map[string]any{
			"provider":   obs.Provider,
			"age_days":   obs.AgeDays,
			"size_units": obs.SizeUnits,
		},
	}
	if obs.Name != "" {
		finding.Metadata["name"] = obs.Name
	}

	key := pricing.Key{Provider: obs.Provider, Service: formula.ServiceKey, Region: obs.Region}
	quote, err := e.prices.GetPrice(ctx, key, false)
	if err != nil {
		// A finding with an unresolvable price is still a finding; cost
		// zero, flagged, never dropped.
		e.logger.WithContext(ctx).Warn().Err(err).
			Str("resource_id", obs.ResourceID).
			Str("service", formula.ServiceKey).
			Msg("no price resolved, emitting zero-cost finding")
		finding.Reasons = append(finding.Reasons,
			fmt.Sprintf("no price available for %s/%s in %s", obs.Provider, formula.ServiceKey, obs.Region))
		return finding
	}

	monthly := formula.MonthlyCost(obs, quote.PricePerUnit)
	finding.EstimatedMonthlyCost = roundCents(monthly)
	finding.AlreadyWastedCost = roundCents(monthly * obs.AgeDays / 30.0)
	finding.Metadata["price_per_unit"] = quote.PricePerUnit
	finding.Metadata["price_unit"] = quote.Unit
	finding.Metadata["price_source"] = string(quote.Source)
	return finding
}

// checkEligibility applies the rule's gates and collects the reasons a
// flagged resource is considered waste.
func (e *Estimator) checkEligibility(obs types.Observation, rule rules.EffectiveRule) ([]string, bool) {
	if !rule.Enabled {
		return nil, false
	}
	if obs.AgeDays < rule.Threshold(rules.ThresholdMinAgeDays) {
		return nil, false
	}

	if minStopped, ok := rule.Thresholds[rules.ThresholdMinStoppedDays]; ok {
		if stopped, reported := obs.Metric("stopped_days"); reported && stopped < minStopped {
			return nil, false
		}
	}

	var reasons []string
	if rule.Description != "" {
		reasons = append(reasons, rule.Description)
	}
	reasons = append(reasons, fmt.Sprintf("resource age %.0f days exceeds threshold of %.0f days",
		obs.AgeDays, rule.Threshold(rules.ThresholdMinAgeDays)))

	if len(rule.RequiredLabels) > 0 {
		missing := obs.MissingLabels(rule.RequiredLabels)
		if len(missing) == 0 {
			// Fully labelled resources are claimed by someone.
			return nil, false
		}
		reasons = append(reasons, "missing required labels: "+strings.Join(missing, ", "))
	}
	return reasons, true
}

// confidenceFor is a step function of age against the rule's confidence
// threshold and multiples of it. Monotonic non-decreasing in age by
// construction; the multiples are clamped so misconfigured rules cannot
// break the ordering.
func confidenceFor(ageDays float64, rule rules.EffectiveRule) types.Confidence {
	threshold := rule.ThresholdOr(rules.ThresholdConfidenceDays, 30)
	if threshold <= 0 {
		return types.ConfidenceCritical
	}

	highMult := rule.ThresholdOr(rules.ThresholdConfidenceHighMult, 2)
	critMult := rule.ThresholdOr(rules.ThresholdConfidenceCritMult, 3)
	if highMult < 1 {
		highMult = 1
	}
	if critMult < highMult {
		critMult = highMult
	}

	switch {
	case ageDays >= critMult*threshold:
		return types.ConfidenceCritical
	case ageDays >= highMult*threshold:
		return types.ConfidenceHigh
	case ageDays >= threshold:
		return types.ConfidenceMedium
	default:
		return types.ConfidenceLow
	}
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
