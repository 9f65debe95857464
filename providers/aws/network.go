package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbv2types "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"

	"github.com/yairfalse/scrimp/rules"
	"github.com/yairfalse/scrimp/types"
)

// idleNATBytesPerDay is the traffic cutoff below which a NAT gateway
// counts as idle.
const idleNATBytesPerDay = 1 << 20

// listUnassociatedIPs finds allocated Elastic IPs with no association.
// EC2 does not expose an allocation time, so AgeDays stays zero and the
// scenario's rule gates on nothing but enablement.
func (a *Adapter) listUnassociatedIPs(ctx context.Context, clients *regionClients, region string) ([]types.Observation, error) {
	output, err := clients.ec2.DescribeAddresses(ctx, &ec2.DescribeAddressesInput{})
	if err != nil {
		return nil, fmt.Errorf("describe addresses: %w", err)
	}

	var observations []types.Observation
	for _, address := range output.Addresses {
		if address.AssociationId != nil {
			continue
		}
		observations = append(observations, addressObservation(address, region))
	}
	return observations, nil
}

// listIdleNATGateways finds available NAT gateways moving almost no
// traffic over the metric window.
func (a *Adapter) listIdleNATGateways(ctx context.Context, clients *regionClients, region string) ([]types.Observation, error) {
	var observations []types.Observation

	paginator := ec2.NewDescribeNatGatewaysPaginator(clients.ec2, &ec2.DescribeNatGatewaysInput{
		Filter: []ec2types.Filter{
			{Name: aws.String("state"), Values: []string{"available"}},
		},
	})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe nat gateways: %w", err)
		}
		for _, gateway := range output.NatGateways {
			gatewayID := aws.ToString(gateway.NatGatewayId)
			bytesOut, _, err := metricSum(ctx, clients.cw, "AWS/NATGateway", "BytesOutToDestination", natGatewayDimensions(gatewayID))
			if err != nil {
				return nil, err
			}

			bytesPerDay := bytesOut / metricWindowDays
			if bytesPerDay >= idleNATBytesPerDay {
				continue
			}

			labels := ec2Labels(gateway.Tags)
			observations = append(observations, types.Observation{
				ResourceType: rules.TypeNATGatewayIdle,
				ResourceID:   gatewayID,
				Name:         labels["Name"],
				Provider:     "aws",
				Region:       region,
				AgeDays:      ageDays(gateway.CreateTime),
				SizeUnits:    1,
				Metrics: map[string]float64{
					"bytes_mb_per_day":  bytesPerDay / (1 << 20),
					"data_processed_gb": bytesOut / (1 << 30),
				},
				Labels: labels,
			})
		}
	}
	return observations, nil
}

// listLoadBalancersWithoutTargets finds load balancers with zero healthy
// targets across all their target groups.
func (a *Adapter) listLoadBalancersWithoutTargets(ctx context.Context, clients *regionClients, region string) ([]types.Observation, error) {
	var observations []types.Observation

	paginator := elasticloadbalancingv2.NewDescribeLoadBalancersPaginator(clients.elb, &elasticloadbalancingv2.DescribeLoadBalancersInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe load balancers: %w", err)
		}
		for _, lb := range output.LoadBalancers {
			healthy, err := a.healthyTargetCount(ctx, clients, aws.ToString(lb.LoadBalancerArn))
			if err != nil {
				return nil, err
			}
			if healthy > 0 {
				continue
			}

			observations = append(observations, types.Observation{
				ResourceType: rules.TypeLBNoTargets,
				ResourceID:   aws.ToString(lb.LoadBalancerArn),
				Name:         aws.ToString(lb.LoadBalancerName),
				Provider:     "aws",
				Region:       region,
				AgeDays:      ageDays(lb.CreatedTime),
				SizeUnits:    1,
				Metrics:      map[string]float64{"healthy_targets": 0},
				Labels:       map[string]string{"lb_type": string(lb.Type)},
			})
		}
	}
	return observations, nil
}

func (a *Adapter) healthyTargetCount(ctx context.Context, clients *regionClients, lbArn string) (int, error) {
	groups, err := clients.elb.DescribeTargetGroups(ctx, &elasticloadbalancingv2.DescribeTargetGroupsInput{
		LoadBalancerArn: aws.String(lbArn),
	})
	if err != nil {
		return 0, fmt.Errorf("describe target groups: %w", err)
	}

	healthy := 0
	for _, group := range groups.TargetGroups {
		health, err := clients.elb.DescribeTargetHealth(ctx, &elasticloadbalancingv2.DescribeTargetHealthInput{
			TargetGroupArn: group.TargetGroupArn,
		})
		if err != nil {
			return 0, fmt.Errorf("describe target health: %w", err)
		}
		healthy += countHealthy(health.TargetHealthDescriptions)
	}
	return healthy, nil
}

func countHealthy(descriptions []elbv2types.TargetHealthDescription) int {
	healthy := 0
	for _, description := range descriptions {
		if description.TargetHealth != nil && description.TargetHealth.State == elbv2types.TargetHealthStateEnumHealthy {
			healthy++
		}
	}
	return healthy
}

func addressObservation(address ec2types.Address, region string) types.Observation {
	labels := ec2Labels(address.Tags)
	return types.Observation{
		ResourceType: rules.TypeElasticIPUnassociated,
		ResourceID:   aws.ToString(address.AllocationId),
		Name:         labels["Name"],
		Provider:     "aws",
		Region:       region,
		SizeUnits:    1,
		Labels:       labels,
	}
}
