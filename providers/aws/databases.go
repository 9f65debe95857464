package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"

	"github.com/yairfalse/scrimp/rules"
	"github.com/yairfalse/scrimp/types"
)

// idleDBConnectionsPerDay is the connection cutoff below which an available
// database counts as idle.
const idleDBConnectionsPerDay = 1.0

// listIdleDBInstances finds available RDS instances with essentially no
// connections over the metric window.
func (a *Adapter) listIdleDBInstances(ctx context.Context, clients *regionClients, region string) ([]types.Observation, error) {
	var observations []types.Observation

	paginator := rds.NewDescribeDBInstancesPaginator(clients.rds, &rds.DescribeDBInstancesInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe db instances: %w", err)
		}
		for _, instance := range output.DBInstances {
			if aws.ToString(instance.DBInstanceStatus) != "available" {
				continue
			}

			identifier := aws.ToString(instance.DBInstanceIdentifier)
			connections, hasData, err := metricSum(ctx, clients.cw, "AWS/RDS", "DatabaseConnections", dbInstanceDimensions(identifier))
			if err != nil {
				return nil, err
			}
			connectionsPerDay := connections / metricWindowDays
			if hasData && connectionsPerDay >= idleDBConnectionsPerDay {
				continue
			}

			obs := dbInstanceObservation(instance, region)
			obs.Metrics["connections_per_day"] = connectionsPerDay
			observations = append(observations, obs)
		}
	}
	return observations, nil
}

func dbInstanceObservation(instance rdstypes.DBInstance, region string) types.Observation {
	labels := rdsLabels(instance.TagList)
	if aws.ToBool(instance.MultiAZ) {
		labels["multi_az"] = "true"
	}
	labels["instance_class"] = aws.ToString(instance.DBInstanceClass)
	labels["engine"] = aws.ToString(instance.Engine)

	return types.Observation{
		ResourceType: rules.TypeRDSInstanceIdle,
		ResourceID:   aws.ToString(instance.DBInstanceIdentifier),
		Name:         aws.ToString(instance.DBInstanceIdentifier),
		Provider:     "aws",
		Region:       region,
		AgeDays:      ageDays(instance.InstanceCreateTime),
		SizeUnits:    1,
		Metrics: map[string]float64{
			"allocated_storage_gb": float64(aws.ToInt32(instance.AllocatedStorage)),
		},
		Labels: labels,
	}
}

func rdsLabels(tags []rdstypes.Tag) map[string]string {
	labels := make(map[string]string, len(tags))
	for _, tag := range tags {
		labels[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	return labels
}
