package aws

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/yairfalse/scrimp/rules"
	"github.com/yairfalse/scrimp/types"
)

// idleCPUPct is the average CPU cutoff below which a running instance
// counts as idle.
const idleCPUPct = 5.0

// listStoppedInstances finds stopped instances. A stopped instance no
// longer bills compute but keeps paying for its volumes, so SizeUnits
// carries the attached storage GB.
func (a *Adapter) listStoppedInstances(ctx context.Context, clients *regionClients, region string) ([]types.Observation, error) {
	instances, err := describeInstancesByState(ctx, clients, "stopped")
	if err != nil {
		return nil, err
	}

	storageByInstance, err := attachedStorageGB(ctx, clients, instanceIDs(instances))
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var observations []types.Observation
	for _, instance := range instances {
		obs := instanceObservation(instance, rules.TypeEC2InstanceStopped, region)
		obs.SizeUnits = storageByInstance[obs.ResourceID]
		if stoppedAt, ok := parseStateTransitionTime(aws.ToString(instance.StateTransitionReason)); ok {
			obs.Metrics["stopped_days"] = now.Sub(stoppedAt).Hours() / 24
		}
		observations = append(observations, obs)
	}
	return observations, nil
}

// listIdleInstances finds running instances with near-zero CPU over the
// metric window.
func (a *Adapter) listIdleInstances(ctx context.Context, clients *regionClients, region string) ([]types.Observation, error) {
	instances, err := describeInstancesByState(ctx, clients, "running")
	if err != nil {
		return nil, err
	}

	var observations []types.Observation
	for _, instance := range instances {
		instanceID := aws.ToString(instance.InstanceId)
		cpu, hasData, err := metricAverage(ctx, clients.cw, "AWS/EC2", "CPUUtilization", instanceDimensions(instanceID))
		if err != nil {
			return nil, err
		}
		if !hasData || cpu >= idleCPUPct {
			continue
		}

		obs := instanceObservation(instance, rules.TypeEC2InstanceIdle, region)
		obs.SizeUnits = 1
		obs.Metrics["cpu_avg_pct"] = cpu
		observations = append(observations, obs)
	}
	return observations, nil
}

func describeInstancesByState(ctx context.Context, clients *regionClients, state string) ([]ec2types.Instance, error) {
	var instances []ec2types.Instance

	paginator := ec2.NewDescribeInstancesPaginator(clients.ec2, &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("instance-state-name"), Values: []string{state}},
		},
	})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe instances: %w", err)
		}
		for _, reservation := range output.Reservations {
			instances = append(instances, reservation.Instances...)
		}
	}
	return instances, nil
}

// attachedStorageGB sums EBS volume sizes per instance.
func attachedStorageGB(ctx context.Context, clients *regionClients, ids []string) (map[string]float64, error) {
	storage := make(map[string]float64, len(ids))
	if len(ids) == 0 {
		return storage, nil
	}

	for start := 0; start < len(ids); start += 200 {
		end := start + 200
		if end > len(ids) {
			end = len(ids)
		}

		paginator := ec2.NewDescribeVolumesPaginator(clients.ec2, &ec2.DescribeVolumesInput{
			Filters: []ec2types.Filter{
				{Name: aws.String("attachment.instance-id"), Values: ids[start:end]},
			},
		})
		for paginator.HasMorePages() {
			output, err := paginator.NextPage(ctx)
			if err != nil {
				return nil, fmt.Errorf("describe attached volumes: %w", err)
			}
			for _, volume := range output.Volumes {
				for _, attachment := range volume.Attachments {
					storage[aws.ToString(attachment.InstanceId)] += float64(aws.ToInt32(volume.Size))
				}
			}
		}
	}
	return storage, nil
}

func instanceIDs(instances []ec2types.Instance) []string {
	ids := make([]string, 0, len(instances))
	for _, instance := range instances {
		ids = append(ids, aws.ToString(instance.InstanceId))
	}
	return ids
}

func instanceObservation(instance ec2types.Instance, resourceType, region string) types.Observation {
	labels := ec2Labels(instance.Tags)
	return types.Observation{
		ResourceType: resourceType,
		ResourceID:   aws.ToString(instance.InstanceId),
		Name:         labels["Name"],
		Provider:     "aws",
		Region:       region,
		AgeDays:      ageDays(instance.LaunchTime),
		Metrics:      map[string]float64{},
		Labels:       labels,
	}
}

// stateTransitionTimeRE matches the timestamp EC2 embeds in reasons like
// "User initiated (2024-01-02 15:04:05 GMT)".
var stateTransitionTimeRE = regexp.MustCompile(`\((\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}) GMT\)`)

func parseStateTransitionTime(reason string) (time.Time, bool) {
	match := stateTransitionTimeRE.FindStringSubmatch(reason)
	if match == nil {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02 15:04:05", match[1])
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}
