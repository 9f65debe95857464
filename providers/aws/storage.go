package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/yairfalse/scrimp/rules"
	"github.com/yairfalse/scrimp/types"
)

// idleVolumeOpsPerDay is the cutoff below which an attached volume counts
// as idle.
const idleVolumeOpsPerDay = 1.0

// listUnattachedVolumes finds EBS volumes in state "available".
func (a *Adapter) listUnattachedVolumes(ctx context.Context, clients *regionClients, region string) ([]types.Observation, error) {
	var observations []types.Observation

	paginator := ec2.NewDescribeVolumesPaginator(clients.ec2, &ec2.DescribeVolumesInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("status"), Values: []string{"available"}},
		},
	})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe volumes: %w", err)
		}
		for _, volume := range output.Volumes {
			observations = append(observations, volumeObservation(volume, rules.TypeEBSVolumeUnattached, region))
		}
	}
	return observations, nil
}

// listIdleVolumes finds attached volumes with near-zero I/O over the metric
// window.
func (a *Adapter) listIdleVolumes(ctx context.Context, clients *regionClients, region string) ([]types.Observation, error) {
	var observations []types.Observation

	paginator := ec2.NewDescribeVolumesPaginator(clients.ec2, &ec2.DescribeVolumesInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("status"), Values: []string{"in-use"}},
		},
	})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe volumes: %w", err)
		}
		for _, volume := range output.Volumes {
			readOps, _, err := metricSum(ctx, clients.cw, "AWS/EBS", "VolumeReadOps", volumeDimensions(volume))
			if err != nil {
				return nil, err
			}
			writeOps, _, err := metricSum(ctx, clients.cw, "AWS/EBS", "VolumeWriteOps", volumeDimensions(volume))
			if err != nil {
				return nil, err
			}

			opsPerDay := (readOps + writeOps) / metricWindowDays
			if opsPerDay >= idleVolumeOpsPerDay {
				continue
			}

			obs := volumeObservation(volume, rules.TypeEBSVolumeIdle, region)
			obs.Metrics["read_ops_per_day"] = readOps / metricWindowDays
			obs.Metrics["write_ops_per_day"] = writeOps / metricWindowDays
			observations = append(observations, obs)
		}
	}
	return observations, nil
}

// listOrphanedSnapshots finds snapshots whose source volume no longer
// exists.
func (a *Adapter) listOrphanedSnapshots(ctx context.Context, clients *regionClients, region string) ([]types.Observation, error) {
	var snapshots []ec2types.Snapshot

	paginator := ec2.NewDescribeSnapshotsPaginator(clients.ec2, &ec2.DescribeSnapshotsInput{
		OwnerIds: []string{"self"},
	})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe snapshots: %w", err)
		}
		snapshots = append(snapshots, output.Snapshots...)
	}

	existing, err := a.existingVolumeIDs(ctx, clients, snapshots)
	if err != nil {
		return nil, err
	}

	var observations []types.Observation
	for _, snapshot := range snapshots {
		volumeID := aws.ToString(snapshot.VolumeId)
		if volumeID != "" && existing[volumeID] {
			continue
		}
		observations = append(observations, snapshotObservation(snapshot, region))
	}
	return observations, nil
}

// existingVolumeIDs resolves which snapshot source volumes still exist. The
// volume-id filter tolerates IDs that no longer resolve, unlike VolumeIds.
func (a *Adapter) existingVolumeIDs(ctx context.Context, clients *regionClients, snapshots []ec2types.Snapshot) (map[string]bool, error) {
	seen := make(map[string]bool)
	var ids []string
	for _, snapshot := range snapshots {
		id := aws.ToString(snapshot.VolumeId)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}

	existing := make(map[string]bool, len(ids))
	for start := 0; start < len(ids); start += 200 {
		end := start + 200
		if end > len(ids) {
			end = len(ids)
		}

		paginator := ec2.NewDescribeVolumesPaginator(clients.ec2, &ec2.DescribeVolumesInput{
			Filters: []ec2types.Filter{
				{Name: aws.String("volume-id"), Values: ids[start:end]},
			},
		})
		for paginator.HasMorePages() {
			output, err := paginator.NextPage(ctx)
			if err != nil {
				return nil, fmt.Errorf("describe snapshot volumes: %w", err)
			}
			for _, volume := range output.Volumes {
				existing[aws.ToString(volume.VolumeId)] = true
			}
		}
	}
	return existing, nil
}

// listIdleBuckets finds buckets in the region with no requests over the
// metric window. Buckets without request metrics enabled count as idle;
// the age gate keeps fresh buckets out.
func (a *Adapter) listIdleBuckets(ctx context.Context, clients *regionClients, region string) ([]types.Observation, error) {
	output, err := clients.s3.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}

	var observations []types.Observation
	for _, bucket := range output.Buckets {
		name := aws.ToString(bucket.Name)

		location, err := clients.s3.GetBucketLocation(ctx, &s3.GetBucketLocationInput{Bucket: bucket.Name})
		if err != nil {
			return nil, fmt.Errorf("get bucket location for %s: %w", name, err)
		}
		if bucketRegion(location.LocationConstraint) != region {
			continue
		}

		requests, hasRequests, err := metricSum(ctx, clients.cw, "AWS/S3", "AllRequests", bucketDimensions(name, "AllStorageTypes"))
		if err != nil {
			return nil, err
		}
		if hasRequests && requests > 0 {
			continue
		}

		sizeBytes, _, err := metricLatest(ctx, clients.cw, "AWS/S3", "BucketSizeBytes", bucketDimensions(name, "StandardStorage"))
		if err != nil {
			return nil, err
		}

		observations = append(observations, types.Observation{
			ResourceType: rules.TypeS3BucketIdle,
			ResourceID:   name,
			Name:         name,
			Provider:     "aws",
			Region:       region,
			AgeDays:      ageDays(bucket.CreationDate),
			SizeUnits:    sizeBytes / (1 << 30),
			Metrics:      map[string]float64{"requests_per_day": requests / metricWindowDays},
		})
	}
	return observations, nil
}

func volumeObservation(volume ec2types.Volume, resourceType, region string) types.Observation {
	labels := ec2Labels(volume.Tags)
	return types.Observation{
		ResourceType: resourceType,
		ResourceID:   aws.ToString(volume.VolumeId),
		Name:         labels["Name"],
		Provider:     "aws",
		Region:       region,
		AgeDays:      ageDays(volume.CreateTime),
		SizeUnits:    float64(aws.ToInt32(volume.Size)),
		Metrics: map[string]float64{
			"provisioned_iops": float64(aws.ToInt32(volume.Iops)),
		},
		Labels: labels,
	}
}

func snapshotObservation(snapshot ec2types.Snapshot, region string) types.Observation {
	labels := ec2Labels(snapshot.Tags)
	return types.Observation{
		ResourceType: rules.TypeSnapshotOrphaned,
		ResourceID:   aws.ToString(snapshot.SnapshotId),
		Name:         labels["Name"],
		Provider:     "aws",
		Region:       region,
		AgeDays:      ageDays(snapshot.StartTime),
		SizeUnits:    float64(aws.ToInt32(snapshot.VolumeSize)),
		Labels:       labels,
	}
}

func ec2Labels(tags []ec2types.Tag) map[string]string {
	labels := make(map[string]string, len(tags))
	for _, tag := range tags {
		labels[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	return labels
}

// bucketRegion normalizes the GetBucketLocation quirk where us-east-1 is
// reported as an empty constraint.
func bucketRegion(constraint s3types.BucketLocationConstraint) string {
	if constraint == "" {
		return "us-east-1"
	}
	return string(constraint)
}
