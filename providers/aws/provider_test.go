package aws

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kulu-io/kulu/providers"
	"github.com/kulu-io/kulu/types"
)

type fakeEC2 struct {
	instancePages []*ec2.DescribeInstancesOutput
	volumes       *ec2.DescribeVolumesOutput
	snapshots     *ec2.DescribeSnapshotsOutput
	err           error
	calls         int
}

func (f *fakeEC2) DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	page := f.instancePages[f.calls]
	f.calls++
	return page, nil
}

func (f *fakeEC2) DescribeVolumes(ctx context.Context, params *ec2.DescribeVolumesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.volumes, nil
}

func (f *fakeEC2) DescribeSnapshots(ctx context.Context, params *ec2.DescribeSnapshotsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSnapshotsOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.snapshots, nil
}

type fakeRDS struct {
	databases *rds.DescribeDBInstancesOutput
	err       error
}

func (f *fakeRDS) DescribeDBInstances(ctx context.Context, params *rds.DescribeDBInstancesInput, optFns ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.databases, nil
}

type fakeCloudWatch struct {
	output *cloudwatch.GetMetricDataOutput
	err    error
}

func (f *fakeCloudWatch) GetMetricData(ctx context.Context, params *cloudwatch.GetMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricDataOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.output, nil
}

func testAccount() providers.Account {
	return providers.Account{ID: "123456789012", Region: "us-east-1"}
}

func TestDiscoverInstancesPaginates(t *testing.T) {
	launch := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	ec2Client := &fakeEC2{
		instancePages: []*ec2.DescribeInstancesOutput{
			{
				Reservations: []ec2types.Reservation{{
					Instances: []ec2types.Instance{{
						InstanceId:   aws.String("i-aaa"),
						InstanceType: ec2types.InstanceTypeM5Large,
						LaunchTime:   aws.Time(launch),
						State:        &ec2types.InstanceState{Name: ec2types.InstanceStateNameRunning},
						Tags: []ec2types.Tag{
							{Key: aws.String("Name"), Value: aws.String("web-1")},
							{Key: aws.String("team"), Value: aws.String("platform")},
						},
					}},
				}},
				NextToken: aws.String("page2"),
			},
			{
				Reservations: []ec2types.Reservation{{
					Instances: []ec2types.Instance{{
						InstanceId: aws.String("i-bbb"),
						State:      &ec2types.InstanceState{Name: ec2types.InstanceStateNameStopped},
					}},
				}},
			},
		},
	}

	p := NewWithClients(ec2Client, &fakeRDS{}, &fakeCloudWatch{}, "us-east-1")
	resources, err := p.DiscoverResources(context.Background(), testAccount(), []string{types.KindInstance})
	require.NoError(t, err)
	require.Len(t, resources, 2)

	first := resources[0]
	assert.Equal(t, "aws:123456789012:us-east-1:i-aaa", first.ID)
	assert.Equal(t, types.KindInstance, first.Kind)
	assert.Equal(t, "web-1", first.Name)
	assert.Equal(t, "running", first.Status)
	assert.Equal(t, "platform", first.Tags["team"])
	assert.Equal(t, "m5.large", first.PropertyString("instance_type"))
	assert.Equal(t, launch, first.CreatedAt)

	assert.Equal(t, "stopped", resources[1].Status)
}

func TestDiscoverVolumes(t *testing.T) {
	created := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	ec2Client := &fakeEC2{
		volumes: &ec2.DescribeVolumesOutput{
			Volumes: []ec2types.Volume{{
				VolumeId:   aws.String("vol-001"),
				Size:       aws.Int32(100),
				VolumeType: ec2types.VolumeTypeGp3,
				State:      ec2types.VolumeStateAvailable,
				CreateTime: aws.Time(created),
			}},
		},
	}

	p := NewWithClients(ec2Client, &fakeRDS{}, &fakeCloudWatch{}, "us-east-1")
	resources, err := p.DiscoverResources(context.Background(), testAccount(), []string{types.KindVolume})
	require.NoError(t, err)
	require.Len(t, resources, 1)

	vol := resources[0]
	assert.Equal(t, types.KindVolume, vol.Kind)
	assert.Equal(t, "available", vol.Status)
	assert.Equal(t, float64(100), vol.PropertyFloat("size_gb"))
	assert.False(t, vol.PropertyBool("attached"))
}

func TestDiscoverDatabases(t *testing.T) {
	created := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)
	rdsClient := &fakeRDS{
		databases: &rds.DescribeDBInstancesOutput{
			DBInstances: []rdstypes.DBInstance{{
				DBInstanceIdentifier: aws.String("orders-db"),
				DBInstanceClass:      aws.String("db.m5.large"),
				DBInstanceStatus:     aws.String("available"),
				Engine:               aws.String("postgres"),
				AllocatedStorage:     aws.Int32(200),
				MultiAZ:              aws.Bool(true),
				InstanceCreateTime:   aws.Time(created),
				TagList: []rdstypes.Tag{
					{Key: aws.String("team"), Value: aws.String("payments")},
				},
			}},
		},
	}

	p := NewWithClients(&fakeEC2{}, rdsClient, &fakeCloudWatch{}, "us-east-1")
	resources, err := p.DiscoverResources(context.Background(), testAccount(), []string{types.KindDatabase})
	require.NoError(t, err)
	require.Len(t, resources, 1)

	db := resources[0]
	assert.Equal(t, "aws:123456789012:us-east-1:orders-db", db.ID)
	assert.Equal(t, types.KindDatabase, db.Kind)
	assert.Equal(t, "available", db.Status)
	assert.Equal(t, "db.m5.large", db.PropertyString("instance_type"))
	assert.Equal(t, "postgres", db.PropertyString("engine"))
	assert.Equal(t, float64(200), db.PropertyFloat("storage_gb"))
	assert.True(t, db.PropertyBool("multi_az"))
	assert.Equal(t, "payments", db.Tags["team"])
	assert.Equal(t, created, db.CreatedAt)
}

func TestDiscoverSkipsUnknownKinds(t *testing.T) {
	p := NewWithClients(&fakeEC2{}, &fakeRDS{}, &fakeCloudWatch{}, "us-east-1")
	resources, err := p.DiscoverResources(context.Background(), testAccount(), []string{"loadbalancer"})
	require.NoError(t, err)
	assert.Empty(t, resources)
}

func TestReadMetricZipsPoints(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	cw := &fakeCloudWatch{
		output: &cloudwatch.GetMetricDataOutput{
			MetricDataResults: []cwtypes.MetricDataResult{{
				Timestamps: []time.Time{start, start.Add(5 * time.Minute)},
				Values:     []float64{12.5, 14.0},
			}},
		},
	}

	p := NewWithClients(&fakeEC2{}, &fakeRDS{}, cw, "us-east-1")
	resource := types.Resource{
		ID:         "aws:123456789012:us-east-1:i-aaa",
		Kind:       types.KindInstance,
		AccountID:  "123456789012",
		Properties: map[string]any{"native_id": "i-aaa"},
	}

	window := providers.TimeWindow{Start: start, End: start.Add(time.Hour), Step: 5 * time.Minute}
	points, err := p.ReadMetric(context.Background(), resource, "cpu_utilization", window, types.AggAverage)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, 12.5, points[0].Value)
	assert.Equal(t, start, points[0].Timestamp)
}

func TestReadMetricUnknownMetric(t *testing.T) {
	p := NewWithClients(&fakeEC2{}, &fakeRDS{}, &fakeCloudWatch{}, "us-east-1")
	_, err := p.ReadMetric(context.Background(), types.Resource{}, "nonexistent", providers.TimeWindow{Step: time.Minute}, types.AggAverage)
	require.Error(t, err)
	assert.True(t, providers.IsTransient(err))
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name string
		code string
		want func(error) bool
	}{
		{"throttling", "Throttling", providers.IsRateLimited},
		{"request limit", "RequestLimitExceeded", providers.IsRateLimited},
		{"auth failure", "AuthFailure", providers.IsAuth},
		{"expired token", "ExpiredToken", providers.IsAuth},
		{"other", "InternalError", providers.IsTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := &smithy.GenericAPIError{Code: tt.code, Message: "boom"}
			ec2Client := &fakeEC2{err: apiErr}
			p := NewWithClients(ec2Client, &fakeRDS{}, &fakeCloudWatch{}, "us-east-1")

			_, err := p.DiscoverResources(context.Background(), testAccount(), []string{types.KindInstance})
			require.Error(t, err)
			assert.True(t, tt.want(err), "wrong classification for %s: %v", tt.code, err)
		})
	}
}

func TestClassifyNonAPIError(t *testing.T) {
	err := classify("123", "describe_instances", errors.New("connection reset"))
	assert.True(t, providers.IsTransient(err))
	assert.False(t, providers.IsAuth(err))
}
