package types

// Observation is one raw look at a cloud resource, produced by a provider
// adapter for a single waste scenario. Ephemeral; never persisted.
type Observation struct {
	ResourceType string             `json:"resource_type"`
	ResourceID   string             `json:"resource_id"`
	Name         string             `json:"name,omitempty"`
	Provider     string             `json:"provider"`
	Region       string             `json:"region"`
	AgeDays      float64            `json:"age_days"`
	SizeUnits    float64            `json:"size_units"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
	Labels       map[string]string  `json:"labels,omitempty"`
}

// Metric returns a named utilization metric if the adapter reported it.
func (o *Observation) Metric(name string) (float64, bool) {
	v, ok := o.Metrics[name]
	return v, ok
}

// HasLabel reports whether the resource carries a non-empty label.
func (o *Observation) HasLabel(key string) bool {
	return o.Labels[key] != ""
}

// MissingLabels returns the subset of keys the resource does not carry.
func (o *Observation) MissingLabels(keys []string) []string {
	var missing []string
	for _, k := range keys {
		if !o.HasLabel(k) {
			missing = append(missing, k)
		}
	}
	return missing
}
