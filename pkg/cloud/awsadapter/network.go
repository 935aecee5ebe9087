package awsadapter

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/3leaps/ec2spotconverter/pkg/cloud"
)

func (a *Adapter) DescribeNetworkInterfaces(ctx context.Context, instanceID string) ([]cloud.NetworkInterfaceDetail, error) {
	out, err := a.ec2.DescribeNetworkInterfaces(ctx, &ec2.DescribeNetworkInterfacesInput{
		Filters: []types.Filter{{
			Name:   aws.String("attachment.instance-id"),
			Values: []string{instanceID},
		}},
	})
	if err != nil {
		return nil, wrapError("DescribeNetworkInterfaces", instanceID, err)
	}

	details := make([]cloud.NetworkInterfaceDetail, 0, len(out.NetworkInterfaces))
	for _, ni := range out.NetworkInterfaces {
		d := cloud.NetworkInterfaceDetail{
			NetworkInterfaceID: aws.ToString(ni.NetworkInterfaceId),
			SubnetID:           aws.ToString(ni.SubnetId),
			PrivateIPAddress:   aws.ToString(ni.PrivateIpAddress),
			SourceDestCheck:    aws.ToBool(ni.SourceDestCheck),
			Description:        aws.ToString(ni.Description),
		}
		for _, sg := range ni.Groups {
			d.SecurityGroupIDs = append(d.SecurityGroupIDs, aws.ToString(sg.GroupId))
		}
		for _, pip := range ni.PrivateIpAddresses {
			if !aws.ToBool(pip.Primary) {
				d.SecondaryPrivateIPs = append(d.SecondaryPrivateIPs, aws.ToString(pip.PrivateIpAddress))
			}
		}
		if ni.Attachment != nil {
			d.AttachmentID = aws.ToString(ni.Attachment.AttachmentId)
			d.DeviceIndex = aws.ToInt32(ni.Attachment.DeviceIndex)
			d.DeleteOnTermination = aws.ToBool(ni.Attachment.DeleteOnTermination)
		}
		details = append(details, d)
	}
	return details, nil
}

// DescribeNetworkInterfaceState returns the ENI's status (available|in-use)
// and, if in-use, the instance id it's currently attached to. Used both by
// wait_resource_release (waiting for "available") and create_new_instance's
// crash-resume detection (an ENI already "in-use" on a different instance
// than the original means a previous RunInstances call already succeeded).
func (a *Adapter) DescribeNetworkInterfaceState(ctx context.Context, eniID string) (string, string, error) {
	out, err := a.ec2.DescribeNetworkInterfaces(ctx, &ec2.DescribeNetworkInterfacesInput{
		NetworkInterfaceIds: []string{eniID},
	})
	if err != nil {
		return "", "", wrapError("DescribeNetworkInterfaceState", eniID, err)
	}
	if len(out.NetworkInterfaces) == 0 {
		return "", "", wrapError("DescribeNetworkInterfaceState", eniID, cloud.ErrNotFound)
	}
	ni := out.NetworkInterfaces[0]
	status := string(ni.Status)
	var attachedInstanceID string
	if ni.Attachment != nil {
		attachedInstanceID = aws.ToString(ni.Attachment.InstanceId)
	}
	return status, attachedInstanceID, nil
}

func (a *Adapter) ModifyNetworkInterfaceDeleteOnTermination(ctx context.Context, eniID, attachmentID string, value bool) error {
	_, err := a.ec2.ModifyNetworkInterfaceAttribute(ctx, &ec2.ModifyNetworkInterfaceAttributeInput{
		NetworkInterfaceId: aws.String(eniID),
		Attachment: &types.NetworkInterfaceAttachmentChanges{
			AttachmentId:        aws.String(attachmentID),
			DeleteOnTermination: aws.Bool(value),
		},
	})
	return wrapError("ModifyNetworkInterfaceDeleteOnTermination", eniID, err)
}

func (a *Adapter) DescribeAddresses(ctx context.Context) ([]cloud.AddressBinding, error) {
	out, err := a.ec2.DescribeAddresses(ctx, &ec2.DescribeAddressesInput{})
	if err != nil {
		return nil, wrapError("DescribeAddresses", "", err)
	}
	bindings := make([]cloud.AddressBinding, 0, len(out.Addresses))
	for _, addr := range out.Addresses {
		bindings = append(bindings, cloud.AddressBinding{
			AllocationID:       aws.ToString(addr.AllocationId),
			AssociationID:      aws.ToString(addr.AssociationId),
			PublicIP:           aws.ToString(addr.PublicIp),
			PrivateIPAddress:   aws.ToString(addr.PrivateIpAddress),
			NetworkInterfaceID: aws.ToString(addr.NetworkInterfaceId),
		})
	}
	return bindings, nil
}

func (a *Adapter) AssociateAddress(ctx context.Context, allocationID, eniID, privateIP string) error {
	input := &ec2.AssociateAddressInput{
		AllocationId:       aws.String(allocationID),
		NetworkInterfaceId: aws.String(eniID),
	}
	if privateIP != "" {
		input.PrivateIpAddress = aws.String(privateIP)
	}
	_, err := a.ec2.AssociateAddress(ctx, input)
	return wrapError("AssociateAddress", allocationID, err)
}
