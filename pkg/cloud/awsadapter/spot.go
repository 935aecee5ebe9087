package awsadapter

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"

	"github.com/3leaps/ec2spotconverter/pkg/cloud"
)

func (a *Adapter) DescribeSpotRequest(ctx context.Context, spotRequestID string) (*cloud.SpotRequestDetail, error) {
	out, err := a.ec2.DescribeSpotInstanceRequests(ctx, &ec2.DescribeSpotInstanceRequestsInput{
		SpotInstanceRequestIds: []string{spotRequestID},
	})
	if err != nil {
		return nil, wrapError("DescribeSpotRequest", spotRequestID, err)
	}
	if len(out.SpotInstanceRequests) == 0 {
		return nil, wrapError("DescribeSpotRequest", spotRequestID, cloud.ErrNotFound)
	}
	req := out.SpotInstanceRequests[0]
	detail := &cloud.SpotRequestDetail{
		SpotRequestID: aws.ToString(req.SpotInstanceRequestId),
		State:         string(req.State),
		Type:          string(req.Type),
	}
	if req.SpotPrice != nil {
		detail.MaxPrice = aws.ToString(req.SpotPrice)
	}
	if req.InstanceInterruptionBehavior != "" {
		detail.InterruptionBehavior = string(req.InstanceInterruptionBehavior)
	}
	return detail, nil
}

func (a *Adapter) CancelSpotRequest(ctx context.Context, spotRequestID string) error {
	_, err := a.ec2.CancelSpotInstanceRequests(ctx, &ec2.CancelSpotInstanceRequestsInput{
		SpotInstanceRequestIds: []string{spotRequestID},
	})
	return wrapError("CancelSpotRequest", spotRequestID, err)
}
