package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"

	"github.com/kulu-io/kulu/providers"
	"github.com/kulu-io/kulu/types"
)

// DiscoverResources lists resources of the requested kinds in one
// account. Kinds this adapter does not recognize are skipped without
// error.
func (p *Provider) DiscoverResources(ctx context.Context, account providers.Account, kinds []string) ([]types.Resource, error) {
	var resources []types.Resource

	for _, kind := range kinds {
		var (
			found []types.Resource
			err   error
		)
		switch kind {
		case types.KindInstance:
			found, err = p.listInstances(ctx, account)
		case types.KindVolume:
			found, err = p.listVolumes(ctx, account)
		case types.KindSnapshot:
			found, err = p.listSnapshots(ctx, account)
		case types.KindDatabase:
			found, err = p.listDatabases(ctx, account)
		default:
			continue
		}
		if err != nil {
			return nil, err
		}
		resources = append(resources, found...)
	}

	return resources, nil
}

func (p *Provider) listInstances(ctx context.Context, account providers.Account) ([]types.Resource, error) {
	var resources []types.Resource
	var nextToken *string

	for {
		output, err := p.ec2Client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{NextToken: nextToken})
		if err != nil {
			return nil, classify(account.ID, "describe_instances", err)
		}

		for _, reservation := range output.Reservations {
			for _, instance := range reservation.Instances {
				resources = append(resources, convertInstance(instance, account, p.region))
			}
		}

		if output.NextToken == nil {
			break
		}
		nextToken = output.NextToken
	}

	return resources, nil
}

func (p *Provider) listVolumes(ctx context.Context, account providers.Account) ([]types.Resource, error) {
	var resources []types.Resource
	var nextToken *string

	for {
		output, err := p.ec2Client.DescribeVolumes(ctx, &ec2.DescribeVolumesInput{NextToken: nextToken})
		if err != nil {
			return nil, classify(account.ID, "describe_volumes", err)
		}

		for _, volume := range output.Volumes {
			resources = append(resources, convertVolume(volume, account, p.region))
		}

		if output.NextToken == nil {
			break
		}
		nextToken = output.NextToken
	}

	return resources, nil
}

func (p *Provider) listSnapshots(ctx context.Context, account providers.Account) ([]types.Resource, error) {
	var resources []types.Resource
	var nextToken *string

	for {
		output, err := p.ec2Client.DescribeSnapshots(ctx, &ec2.DescribeSnapshotsInput{
			OwnerIds:  []string{"self"},
			NextToken: nextToken,
		})
		if err != nil {
			return nil, classify(account.ID, "describe_snapshots", err)
		}

		for _, snapshot := range output.Snapshots {
			resources = append(resources, convertSnapshot(snapshot, account, p.region))
		}

		if output.NextToken == nil {
			break
		}
		nextToken = output.NextToken
	}

	return resources, nil
}

func (p *Provider) listDatabases(ctx context.Context, account providers.Account) ([]types.Resource, error) {
	var resources []types.Resource
	var marker *string

	for {
		output, err := p.rdsClient.DescribeDBInstances(ctx, &rds.DescribeDBInstancesInput{Marker: marker})
		if err != nil {
			return nil, classify(account.ID, "describe_db_instances", err)
		}

		for _, db := range output.DBInstances {
			resources = append(resources, convertDatabase(db, account, p.region))
		}

		if output.Marker == nil {
			break
		}
		marker = output.Marker
	}

	return resources, nil
}

func convertInstance(instance ec2types.Instance, account providers.Account, region string) types.Resource {
	nativeID := aws.ToString(instance.InstanceId)
	tags := convertTags(instance.Tags)

	status := ""
	if instance.State != nil {
		status = string(instance.State.Name)
	}

	createdAt := time.Time{}
	if instance.LaunchTime != nil {
		createdAt = *instance.LaunchTime
	}

	return types.Resource{
		ID:        qualifiedID(account.ID, region, nativeID),
		Kind:      types.KindInstance,
		Name:      tags["Name"],
		Provider:  providerName,
		AccountID: account.ID,
		Location:  region,
		Status:    status,
		Tags:      tags,
		Properties: map[string]any{
			"native_id":     nativeID,
			"instance_type": string(instance.InstanceType),
		},
		CreatedAt: createdAt,
	}
}

func convertVolume(volume ec2types.Volume, account providers.Account, region string) types.Resource {
	nativeID := aws.ToString(volume.VolumeId)
	tags := convertTags(volume.Tags)

	properties := map[string]any{
		"native_id":   nativeID,
		"size_gb":     float64(aws.ToInt32(volume.Size)),
		"volume_type": string(volume.VolumeType),
		"attached":    len(volume.Attachments) > 0,
	}

	// The API does not report when a volume was detached; the newest
	// detach event among attachments is the best available signal.
	for _, att := range volume.Attachments {
		if att.State == ec2types.VolumeAttachmentStateDetached && att.AttachTime != nil {
			properties["detached_at"] = att.AttachTime.Format(time.RFC3339)
		}
	}

	createdAt := time.Time{}
	if volume.CreateTime != nil {
		createdAt = *volume.CreateTime
	}

	return types.Resource{
		ID:         qualifiedID(account.ID, region, nativeID),
		Kind:       types.KindVolume,
		Name:       tags["Name"],
		Provider:   providerName,
		AccountID:  account.ID,
		Location:   region,
		Status:     string(volume.State),
		Tags:       tags,
		Properties: properties,
		CreatedAt:  createdAt,
	}
}

func convertSnapshot(snapshot ec2types.Snapshot, account providers.Account, region string) types.Resource {
	nativeID := aws.ToString(snapshot.SnapshotId)
	tags := convertTags(snapshot.Tags)

	createdAt := time.Time{}
	if snapshot.StartTime != nil {
		createdAt = *snapshot.StartTime
	}

	return types.Resource{
		ID:        qualifiedID(account.ID, region, nativeID),
		Kind:      types.KindSnapshot,
		Name:      tags["Name"],
		Provider:  providerName,
		AccountID: account.ID,
		Location:  region,
		Status:    string(snapshot.State),
		Tags:      tags,
		Properties: map[string]any{
			"native_id": nativeID,
			"size_gb":   float64(aws.ToInt32(snapshot.VolumeSize)),
			"volume_id": aws.ToString(snapshot.VolumeId),
		},
		CreatedAt: createdAt,
	}
}

func convertDatabase(db rdstypes.DBInstance, account providers.Account, region string) types.Resource {
	nativeID := aws.ToString(db.DBInstanceIdentifier)

	tags := make(map[string]string, len(db.TagList))
	for _, tag := range db.TagList {
		tags[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}

	createdAt := time.Time{}
	if db.InstanceCreateTime != nil {
		createdAt = *db.InstanceCreateTime
	}

	return types.Resource{
		ID:        qualifiedID(account.ID, region, nativeID),
		Kind:      types.KindDatabase,
		Name:      nativeID,
		Provider:  providerName,
		AccountID: account.ID,
		Location:  region,
		Status:    aws.ToString(db.DBInstanceStatus),
		Tags:      tags,
		Properties: map[string]any{
			"native_id":     nativeID,
			"instance_type": aws.ToString(db.DBInstanceClass),
			"engine":        aws.ToString(db.Engine),
			"storage_gb":    float64(aws.ToInt32(db.AllocatedStorage)),
			"multi_az":      aws.ToBool(db.MultiAZ),
		},
		CreatedAt: createdAt,
	}
}

func convertTags(tags []ec2types.Tag) map[string]string {
	out := make(map[string]string, len(tags))
	for _, tag := range tags {
		out[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	return out
}

func qualifiedID(accountID, region, nativeID string) string {
	return fmt.Sprintf("aws:%s:%s:%s", accountID, region, nativeID)
}
