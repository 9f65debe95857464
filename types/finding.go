package types

// Finding is one classified piece of waste: a resource matched a detection
// scenario, priced and amortized. The same physical resource may appear once
// per matched scenario.
type Finding struct {
	ResourceType         string         `json:"resource_type"`
	ResourceID           string         `json:"resource_id"`
	Region               string         `json:"region"`
	EstimatedMonthlyCost float64        `json:"estimated_monthly_cost"`
	AlreadyWastedCost    float64        `json:"already_wasted_cost"`
	Confidence           Confidence     `json:"confidence"`
	Reasons              []string       `json:"reasons"`
	Metadata             map[string]any `json:"metadata,omitempty"`
}
