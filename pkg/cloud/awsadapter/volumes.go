package awsadapter

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/3leaps/ec2spotconverter/pkg/cloud"
)

func (a *Adapter) DescribeVolumes(ctx context.Context, instanceID string) ([]cloud.VolumeDetail, error) {
	out, err := a.ec2.DescribeVolumes(ctx, &ec2.DescribeVolumesInput{
		Filters: []types.Filter{{
			Name:   aws.String("attachment.instance-id"),
			Values: []string{instanceID},
		}},
	})
	if err != nil {
		return nil, wrapError("DescribeVolumes", instanceID, err)
	}

	details := make([]cloud.VolumeDetail, 0, len(out.Volumes))
	for _, v := range out.Volumes {
		d := cloud.VolumeDetail{
			VolumeID:           aws.ToString(v.VolumeId),
			MultiAttachEnabled: aws.ToBool(v.MultiAttachEnabled),
			SizeGiB:            aws.ToInt32(v.Size),
			VolumeType:         string(v.VolumeType),
			IOPS:               aws.ToInt32(v.Iops),
			Encrypted:          aws.ToBool(v.Encrypted),
			KMSKeyID:           aws.ToString(v.KmsKeyId),
			SnapshotID:         aws.ToString(v.SnapshotId),
		}
		if v.Throughput != nil {
			d.ThroughputMiBps = aws.ToInt32(v.Throughput)
		}
		for _, att := range v.Attachments {
			if aws.ToString(att.InstanceId) == instanceID {
				d.DeviceName = aws.ToString(att.Device)
				d.DeleteOnTermination = aws.ToBool(att.DeleteOnTermination)
			}
		}
		details = append(details, d)
	}
	return details, nil
}

func (a *Adapter) DetachVolume(ctx context.Context, volumeID, instanceID, deviceName string) error {
	_, err := a.ec2.DetachVolume(ctx, &ec2.DetachVolumeInput{
		VolumeId:   aws.String(volumeID),
		InstanceId: aws.String(instanceID),
		Device:     aws.String(deviceName),
	})
	return wrapError("DetachVolume", volumeID, err)
}

func (a *Adapter) AttachVolume(ctx context.Context, volumeID, instanceID, deviceName string) error {
	_, err := a.ec2.AttachVolume(ctx, &ec2.AttachVolumeInput{
		VolumeId:   aws.String(volumeID),
		InstanceId: aws.String(instanceID),
		Device:     aws.String(deviceName),
	})
	return wrapError("AttachVolume", volumeID, err)
}

func (a *Adapter) DeleteVolume(ctx context.Context, volumeID string) error {
	_, err := a.ec2.DeleteVolume(ctx, &ec2.DeleteVolumeInput{VolumeId: aws.String(volumeID)})
	return wrapError("DeleteVolume", volumeID, err)
}

// VolumeAttachedToInstance reports whether instanceID appears in volumeID's
// current attachment list. Used by the multi-attach-aware detach waiter:
// spec.md §4.6 treats a multi-attach volume as "detached enough" once this
// instance is no longer in its attachment list, even if the volume's own
// state is still "in-use" because other instances remain attached.
func (a *Adapter) VolumeAttachedToInstance(ctx context.Context, volumeID, instanceID string) (bool, error) {
	out, err := a.ec2.DescribeVolumes(ctx, &ec2.DescribeVolumesInput{VolumeIds: []string{volumeID}})
	if err != nil {
		return false, wrapError("VolumeAttachedToInstance", volumeID, err)
	}
	if len(out.Volumes) == 0 {
		return false, nil
	}
	for _, att := range out.Volumes[0].Attachments {
		if aws.ToString(att.InstanceId) == instanceID {
			return true, nil
		}
	}
	return false, nil
}
