package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// metricSum returns the summed value of a metric over the metric window.
// The second return reports whether any datapoint existed; resources with
// no datapoints read as zero activity.
func metricSum(ctx context.Context, cw *cloudwatch.Client, namespace, metricName string, dimensions []cwtypes.Dimension) (float64, bool, error) {
	datapoints, err := fetchStatistics(ctx, cw, namespace, metricName, dimensions, cwtypes.StatisticSum)
	if err != nil {
		return 0, false, err
	}

	var total float64
	for _, dp := range datapoints {
		total += aws.ToFloat64(dp.Sum)
	}
	return total, len(datapoints) > 0, nil
}

// metricAverage returns the mean of a metric's averages over the window.
func metricAverage(ctx context.Context, cw *cloudwatch.Client, namespace, metricName string, dimensions []cwtypes.Dimension) (float64, bool, error) {
	datapoints, err := fetchStatistics(ctx, cw, namespace, metricName, dimensions, cwtypes.StatisticAverage)
	if err != nil {
		return 0, false, err
	}
	if len(datapoints) == 0 {
		return 0, false, nil
	}

	var total float64
	for _, dp := range datapoints {
		total += aws.ToFloat64(dp.Average)
	}
	return total / float64(len(datapoints)), true, nil
}

// metricLatest returns the most recent datapoint's average. Used for
// gauge-like metrics such as bucket size, which S3 publishes daily.
func metricLatest(ctx context.Context, cw *cloudwatch.Client, namespace, metricName string, dimensions []cwtypes.Dimension) (float64, bool, error) {
	datapoints, err := fetchStatistics(ctx, cw, namespace, metricName, dimensions, cwtypes.StatisticAverage)
	if err != nil {
		return 0, false, err
	}
	if len(datapoints) == 0 {
		return 0, false, nil
	}

	latest := datapoints[0]
	for _, dp := range datapoints[1:] {
		if dp.Timestamp != nil && latest.Timestamp != nil && dp.Timestamp.After(*latest.Timestamp) {
			latest = dp
		}
	}
	return aws.ToFloat64(latest.Average), true, nil
}

func fetchStatistics(ctx context.Context, cw *cloudwatch.Client, namespace, metricName string, dimensions []cwtypes.Dimension, stat cwtypes.Statistic) ([]cwtypes.Datapoint, error) {
	now := time.Now()
	output, err := cw.GetMetricStatistics(ctx, &cloudwatch.GetMetricStatisticsInput{
		Namespace:  aws.String(namespace),
		MetricName: aws.String(metricName),
		Dimensions: dimensions,
		StartTime:  aws.Time(now.Add(-metricWindowDays * 24 * time.Hour)),
		EndTime:    aws.Time(now),
		Period:     aws.Int32(86400),
		Statistics: []cwtypes.Statistic{stat},
	})
	if err != nil {
		return nil, fmt.Errorf("get %s/%s statistics: %w", namespace, metricName, err)
	}
	return output.Datapoints, nil
}

func volumeDimensions(volume ec2types.Volume) []cwtypes.Dimension {
	return []cwtypes.Dimension{
		{Name: aws.String("VolumeId"), Value: volume.VolumeId},
	}
}

func instanceDimensions(instanceID string) []cwtypes.Dimension {
	return []cwtypes.Dimension{
		{Name: aws.String("InstanceId"), Value: aws.String(instanceID)},
	}
}

func natGatewayDimensions(natGatewayID string) []cwtypes.Dimension {
	return []cwtypes.Dimension{
		{Name: aws.String("NatGatewayId"), Value: aws.String(natGatewayID)},
	}
}

func dbInstanceDimensions(identifier string) []cwtypes.Dimension {
	return []cwtypes.Dimension{
		{Name: aws.String("DBInstanceIdentifier"), Value: aws.String(identifier)},
	}
}

func bucketDimensions(bucket, storageType string) []cwtypes.Dimension {
	return []cwtypes.Dimension{
		{Name: aws.String("BucketName"), Value: aws.String(bucket)},
		{Name: aws.String("StorageType"), Value: aws.String(storageType)},
	}
}
