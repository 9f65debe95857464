package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awspricing "github.com/aws/aws-sdk-go-v2/service/pricing"
	pricingtypes "github.com/aws/aws-sdk-go-v2/service/pricing/types"

	"github.com/yairfalse/scrimp/pricing"
)

// serviceQuery maps one internal service key onto a Price List query. The
// attribute filters pin a representative SKU; waste estimates need a
// defensible unit price, not a per-SKU bill.
type serviceQuery struct {
	code       string
	unitHint   string
	attributes map[string]string
}

var serviceQueries = map[string]serviceQuery{
	"ebs": {
		code:       "AmazonEC2",
		unitHint:   "GB-month",
		attributes: map[string]string{"productFamily": "Storage", "volumeApiName": "gp3"},
	},
	"ebs_snapshot": {
		code:       "AmazonEC2",
		unitHint:   "GB-month",
		attributes: map[string]string{"productFamily": "Storage Snapshot"},
	},
	"ec2": {
		code:     "AmazonEC2",
		unitHint: "hour",
		attributes: map[string]string{
			"instanceType":    "t3.medium",
			"operatingSystem": "Linux",
			"tenancy":         "Shared",
			"preInstalledSw":  "NA",
			"capacitystatus":  "Used",
		},
	},
	"elastic_ip": {
		code:       "AmazonEC2",
		unitHint:   "hour",
		attributes: map[string]string{"productFamily": "IP Address"},
	},
	"nat_gateway": {
		code:       "AmazonEC2",
		unitHint:   "hour",
		attributes: map[string]string{"productFamily": "NAT Gateway"},
	},
	"elb": {
		code:       "AWSELB",
		unitHint:   "hour",
		attributes: map[string]string{"productFamily": "Load Balancer-Application"},
	},
	"rds": {
		code:     "AmazonRDS",
		unitHint: "hour",
		attributes: map[string]string{
			"instanceType":     "db.t3.medium",
			"databaseEngine":   "PostgreSQL",
			"deploymentOption": "Single-AZ",
		},
	},
	"s3": {
		code:       "AmazonS3",
		unitHint:   "GB-month",
		attributes: map[string]string{"productFamily": "Storage", "volumeType": "Standard"},
	},
}

// LookupLivePrice answers tier-2 pricing lookups from the Price List API.
// Any shape of failure maps to ErrPriceNotAvailable so the resolver falls
// through to its static table.
func (a *Adapter) LookupLivePrice(ctx context.Context, provider, service, region string) (float64, string, error) {
	if provider != "aws" {
		return 0, "", fmt.Errorf("%w: provider %s", pricing.ErrPriceNotAvailable, provider)
	}
	query, ok := serviceQueries[service]
	if !ok {
		return 0, "", fmt.Errorf("%w: service %s", pricing.ErrPriceNotAvailable, service)
	}

	filters := []pricingtypes.Filter{
		{Type: pricingtypes.FilterTypeTermMatch, Field: aws.String("regionCode"), Value: aws.String(region)},
	}
	for field, value := range query.attributes {
		filters = append(filters, pricingtypes.Filter{
			Type:  pricingtypes.FilterTypeTermMatch,
			Field: aws.String(field),
			Value: aws.String(value),
		})
	}

	output, err := a.pricing.GetProducts(ctx, &awspricing.GetProductsInput{
		ServiceCode: aws.String(query.code),
		Filters:     filters,
		MaxResults:  aws.Int32(20),
	})
	if err != nil {
		return 0, "", fmt.Errorf("%w: %v", pricing.ErrPriceNotAvailable, err)
	}

	for _, doc := range output.PriceList {
		price, unit, ok := parsePriceDocument(doc, query.unitHint)
		if ok {
			return price, unit, nil
		}
	}
	return 0, "", fmt.Errorf("%w: no usable price for %s/%s in %s", pricing.ErrPriceNotAvailable, provider, service, region)
}

type priceDocument struct {
	Terms struct {
		OnDemand map[string]struct {
			PriceDimensions map[string]struct {
				Unit         string            `json:"unit"`
				PricePerUnit map[string]string `json:"pricePerUnit"`
			} `json:"priceDimensions"`
		} `json:"OnDemand"`
	} `json:"terms"`
}

// parsePriceDocument extracts the first non-zero USD on-demand rate from a
// Price List JSON document, preferring dimensions matching the unit hint.
func parsePriceDocument(doc, unitHint string) (float64, string, bool) {
	var parsed priceDocument
	if err := json.Unmarshal([]byte(doc), &parsed); err != nil {
		return 0, "", false
	}

	var fallbackPrice float64
	var fallbackUnit string

	for _, term := range parsed.Terms.OnDemand {
		for _, dimension := range term.PriceDimensions {
			usd, ok := dimension.PricePerUnit["USD"]
			if !ok {
				continue
			}
			price, err := strconv.ParseFloat(usd, 64)
			if err != nil || price <= 0 {
				continue
			}

			unit := normalizeUnit(dimension.Unit)
			if unit == unitHint {
				return price, unit, true
			}
			if fallbackUnit == "" {
				fallbackPrice, fallbackUnit = price, unit
			}
		}
	}
	return fallbackPrice, fallbackUnit, fallbackUnit != ""
}

func normalizeUnit(unit string) string {
	switch unit {
	case "GB-Mo", "GB-month":
		return "GB-month"
	case "Hrs", "Hours", "hour":
		return "hour"
	default:
		return unit
	}
}
