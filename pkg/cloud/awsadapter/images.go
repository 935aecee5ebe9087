package awsadapter

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/3leaps/ec2spotconverter/pkg/cloud"
)

func (a *Adapter) CreateImageNoReboot(ctx context.Context, instanceID, name string, blockDevices []cloud.BlockDeviceMapping) (string, error) {
	input := &ec2.CreateImageInput{
		InstanceId: aws.String(instanceID),
		Name:       aws.String(name),
		NoReboot:   aws.Bool(true),
	}
	for _, bd := range blockDevices {
		mapping := types.BlockDeviceMapping{DeviceName: aws.String(bd.DeviceName)}
		if bd.SnapshotID != "" || bd.SizeGiB != 0 {
			ebs := &types.EbsBlockDevice{
				DeleteOnTermination: aws.Bool(bd.DeleteOnTermination),
				Encrypted:           aws.Bool(bd.Encrypted),
			}
			if bd.SnapshotID != "" {
				ebs.SnapshotId = aws.String(bd.SnapshotID)
			}
			if bd.SizeGiB != 0 {
				ebs.VolumeSize = aws.Int32(bd.SizeGiB)
			}
			if bd.VolumeType != "" {
				ebs.VolumeType = types.VolumeType(bd.VolumeType)
			}
			if bd.IOPS != 0 {
				ebs.Iops = aws.Int32(bd.IOPS)
			}
			if bd.KMSKeyID != "" {
				ebs.KmsKeyId = aws.String(bd.KMSKeyID)
			}
			mapping.Ebs = ebs
		}
		input.BlockDeviceMappings = append(input.BlockDeviceMappings, mapping)
	}

	out, err := a.ec2.CreateImage(ctx, input)
	if err != nil {
		return "", wrapError("CreateImageNoReboot", instanceID, err)
	}
	return aws.ToString(out.ImageId), nil
}

// FindImageByName looks up an AMI by its exact Name tag/attribute, the way
// resume-after-crash detects an image start_ami_creation already created
// for this job (see SPEC_FULL.md §6.6's start_ami_creation entry).
func (a *Adapter) FindImageByName(ctx context.Context, name string) (string, bool, error) {
	out, err := a.ec2.DescribeImages(ctx, &ec2.DescribeImagesInput{
		Owners: []string{"self"},
		Filters: []types.Filter{{
			Name:   aws.String("name"),
			Values: []string{name},
		}},
	})
	if err != nil {
		return "", false, wrapError("FindImageByName", name, err)
	}
	if len(out.Images) == 0 {
		return "", false, nil
	}
	return aws.ToString(out.Images[0].ImageId), true, nil
}

func (a *Adapter) DescribeImage(ctx context.Context, imageID string) (*cloud.ImageDetail, error) {
	out, err := a.ec2.DescribeImages(ctx, &ec2.DescribeImagesInput{ImageIds: []string{imageID}})
	if err != nil {
		return nil, wrapError("DescribeImage", imageID, err)
	}
	if len(out.Images) == 0 {
		return nil, wrapError("DescribeImage", imageID, cloud.ErrNotFound)
	}
	img := out.Images[0]
	detail := &cloud.ImageDetail{
		ImageID: aws.ToString(img.ImageId),
		State:   string(img.State),
	}
	for _, bd := range img.BlockDeviceMappings {
		if bd.Ebs != nil && bd.Ebs.SnapshotId != nil {
			detail.SnapshotIDs = append(detail.SnapshotIDs, aws.ToString(bd.Ebs.SnapshotId))
		}
	}
	return detail, nil
}

func (a *Adapter) DeregisterImage(ctx context.Context, imageID string) error {
	_, err := a.ec2.DeregisterImage(ctx, &ec2.DeregisterImageInput{ImageId: aws.String(imageID)})
	return wrapError("DeregisterImage", imageID, err)
}

func (a *Adapter) DeleteSnapshot(ctx context.Context, snapshotID string) error {
	_, err := a.ec2.DeleteSnapshot(ctx, &ec2.DeleteSnapshotInput{SnapshotId: aws.String(snapshotID)})
	return wrapError("DeleteSnapshot", snapshotID, err)
}
