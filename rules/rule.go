// Package rules holds detection rule storage and resolution: seeded defaults,
// per-owner sparse overrides, and family-grouped bulk edits merged into one
// effective rule per (owner, resource type).
package rules

// Well-known threshold keys.
const (
	ThresholdMinAgeDays           = "min_age_days"
	ThresholdConfidenceDays       = "confidence_threshold_days"
	ThresholdMinStoppedDays       = "min_stopped_days"
	ThresholdCPUPct               = "cpu_threshold_pct"
	ThresholdConnectionsPerDay    = "connections_threshold"
	ThresholdReadOpsPerDay        = "read_ops_threshold"
	ThresholdWriteOpsPerDay       = "write_ops_threshold"
	ThresholdBytesMBPerDay        = "bytes_threshold_mb"
	ThresholdConfidenceHighMult   = "confidence_high_multiple"
	ThresholdConfidenceCritMult   = "confidence_critical_multiple"
)

// Rule is one owner's override for a resource type. It is sparse: nil or
// absent fields keep the default value on resolution. A Rule with no owner is
// a seeding artifact only; defaults live in the store, not in this type.
type Rule struct {
	Owner          string             `json:"owner,omitempty"`
	ResourceType   string             `json:"resource_type"`
	Enabled        *bool              `json:"enabled,omitempty"`
	Thresholds     map[string]float64 `json:"thresholds,omitempty"`
	RequiredLabels []string           `json:"required_labels,omitempty"`
	Description    string             `json:"description,omitempty"`
}

// EffectiveRule is the fully-resolved rule for one (owner, resource type).
// Always dense; never persisted.
type EffectiveRule struct {
	ResourceType   string             `json:"resource_type"`
	Enabled        bool               `json:"enabled"`
	Thresholds     map[string]float64 `json:"thresholds"`
	RequiredLabels []string           `json:"required_labels,omitempty"`
	Description    string             `json:"description,omitempty"`
}

// Threshold returns a named threshold, or 0 if the rule does not carry it.
func (r EffectiveRule) Threshold(name string) float64 {
	return r.Thresholds[name]
}

// ThresholdOr returns a named threshold, or fallback if the rule does not
// carry it.
func (r EffectiveRule) ThresholdOr(name string, fallback float64) float64 {
	if v, ok := r.Thresholds[name]; ok {
		return v
	}
	return fallback
}

// Clone returns a deep copy so callers cannot mutate the seeded defaults.
func (r EffectiveRule) Clone() EffectiveRule {
	out := r
	out.Thresholds = make(map[string]float64, len(r.Thresholds))
	for k, v := range r.Thresholds {
		out.Thresholds[k] = v
	}
	if r.RequiredLabels != nil {
		out.RequiredLabels = append([]string(nil), r.RequiredLabels...)
	}
	return out
}

// merge overlays a sparse override onto a default. Only keys present in the
// override change; everything else keeps the default value.
func merge(def EffectiveRule, override Rule) EffectiveRule {
	eff := def.Clone()
	if override.Enabled != nil {
		eff.Enabled = *override.Enabled
	}
	for k, v := range override.Thresholds {
		eff.Thresholds[k] = v
	}
	if override.RequiredLabels != nil {
		eff.RequiredLabels = append([]string(nil), override.RequiredLabels...)
	}
	if override.Description != "" {
		eff.Description = override.Description
	}
	return eff
}
