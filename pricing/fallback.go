package pricing

// Price is a unit price used by the fallback table.
type Price struct {
	PricePerUnit float64
	Unit         string
}

// FallbackTable is the tier-3 price source: per-provider service prices plus
// a conservative default for entirely unknown services. Injected at startup
// and immutable afterward.
type FallbackTable struct {
	prices     map[string]map[string]Price
	def        Price
	hasDefault bool
}

// NewFallbackTable builds a table from injected configuration. The maps are
// copied; later mutation of the arguments does not leak in.
func NewFallbackTable(prices map[string]map[string]Price, def *Price) *FallbackTable {
	t := &FallbackTable{prices: make(map[string]map[string]Price, len(prices))}
	for provider, services := range prices {
		t.prices[provider] = make(map[string]Price, len(services))
		for service, price := range services {
			t.prices[provider][service] = price
		}
	}
	if def != nil {
		t.def = *def
		t.hasDefault = true
	}
	return t
}

// NewDefaultFallbackTable returns the built-in conservative price table used
// when the config does not supply one. Prices are deliberately rough; they
// exist so a dead price API never blocks a scan.
func NewDefaultFallbackTable() *FallbackTable {
	return NewFallbackTable(map[string]map[string]Price{
		"aws": {
			"ebs":          {PricePerUnit: 0.08, Unit: "GB-month"},
			"ebs_snapshot": {PricePerUnit: 0.05, Unit: "GB-month"},
			"ec2":          {PricePerUnit: 0.0416, Unit: "hour"},
			"elastic_ip":   {PricePerUnit: 0.005, Unit: "hour"},
			"nat_gateway":  {PricePerUnit: 0.045, Unit: "hour"},
			"elb":          {PricePerUnit: 0.0225, Unit: "hour"},
			"rds":          {PricePerUnit: 0.017, Unit: "hour"},
			"s3":           {PricePerUnit: 0.023, Unit: "GB-month"},
		},
		"azure": {
			"managed_disk": {PricePerUnit: 0.06, Unit: "GB-month"},
			"vm":           {PricePerUnit: 0.05, Unit: "hour"},
			"public_ip":    {PricePerUnit: 0.004, Unit: "hour"},
			"blob":         {PricePerUnit: 0.0184, Unit: "GB-month"},
		},
		"gcp": {
			"persistent_disk": {PricePerUnit: 0.04, Unit: "GB-month"},
			"compute":         {PricePerUnit: 0.038, Unit: "hour"},
			"cloud_storage":   {PricePerUnit: 0.02, Unit: "GB-month"},
		},
	}, &Price{PricePerUnit: 0.05, Unit: "unit-month"})
}

// Lookup returns the fallback price for a provider's service.
func (t *FallbackTable) Lookup(provider, service string) (Price, bool) {
	services, ok := t.prices[provider]
	if !ok {
		return Price{}, false
	}
	price, ok := services[service]
	return price, ok
}

// Default returns the conservative default price, if one is configured.
func (t *FallbackTable) Default() (Price, bool) {
	return t.def, t.hasDefault
}
