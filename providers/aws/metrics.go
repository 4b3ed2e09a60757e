package aws

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/kulu-io/kulu/providers"
	"github.com/kulu-io/kulu/types"
)

// cwMetric maps a catalog metric name onto CloudWatch coordinates
type cwMetric struct {
	namespace  string
	metricName string
	dimension  string
}

var metricMap = map[string]cwMetric{
	"cpu_utilization":  {"AWS/EC2", "CPUUtilization", "InstanceId"},
	"network_in":       {"AWS/EC2", "NetworkIn", "InstanceId"},
	"network_out":      {"AWS/EC2", "NetworkOut", "InstanceId"},
	"volume_read_ops":  {"AWS/EBS", "VolumeReadOps", "VolumeId"},
	"volume_write_ops": {"AWS/EBS", "VolumeWriteOps", "VolumeId"},

	"database_connections": {"AWS/RDS", "DatabaseConnections", "DBInstanceIdentifier"},
}

var statMap = map[types.Aggregation]string{
	types.AggAverage: "Average",
	types.AggMaximum: "Maximum",
	types.AggMinimum: "Minimum",
	types.AggTotal:   "Sum",
	types.AggCount:   "SampleCount",
}

// ReadMetric fetches datapoints for one resource/metric/aggregation
// over a window via GetMetricData.
func (p *Provider) ReadMetric(ctx context.Context, resource types.Resource, metricName string, window providers.TimeWindow, agg types.Aggregation) ([]providers.Point, error) {
	coords, ok := metricMap[metricName]
	if !ok {
		return nil, &providers.ProviderError{
			Op:  "read_metric",
			Err: fmt.Errorf("no CloudWatch mapping for metric %q", metricName),
		}
	}

	stat, ok := statMap[agg]
	if !ok {
		return nil, &providers.ProviderError{
			Op:  "read_metric",
			Err: fmt.Errorf("unsupported aggregation %q", agg),
		}
	}

	query := cwtypes.MetricDataQuery{
		Id: aws.String("m0"),
		MetricStat: &cwtypes.MetricStat{
			Metric: &cwtypes.Metric{
				Namespace:  aws.String(coords.namespace),
				MetricName: aws.String(coords.metricName),
				Dimensions: []cwtypes.Dimension{{
					Name:  aws.String(coords.dimension),
					Value: aws.String(nativeID(resource)),
				}},
			},
			Period: aws.Int32(int32(window.Step.Seconds())),
			Stat:   aws.String(stat),
		},
	}

	var points []providers.Point
	var nextToken *string

	for {
		output, err := p.cwClient.GetMetricData(ctx, &cloudwatch.GetMetricDataInput{
			StartTime:         aws.Time(window.Start),
			EndTime:           aws.Time(window.End),
			MetricDataQueries: []cwtypes.MetricDataQuery{query},
			NextToken:         nextToken,
		})
		if err != nil {
			return nil, classify(resource.AccountID, "get_metric_data", err)
		}

		for _, result := range output.MetricDataResults {
			for i := range result.Timestamps {
				if i >= len(result.Values) {
					break
				}
				points = append(points, providers.Point{
					Timestamp: result.Timestamps[i],
					Value:     result.Values[i],
				})
			}
		}

		if output.NextToken == nil {
			break
		}
		nextToken = output.NextToken
	}

	return points, nil
}

// nativeID recovers the provider-native identifier used as the
// CloudWatch dimension value
func nativeID(resource types.Resource) string {
	if id := resource.PropertyString("native_id"); id != "" {
		return id
	}
	// Qualified IDs are aws:<account>:<region>:<native>
	parts := strings.Split(resource.ID, ":")
	return parts[len(parts)-1]
}
