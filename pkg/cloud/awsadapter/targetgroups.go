package awsadapter

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"

	"github.com/3leaps/ec2spotconverter/pkg/cloud"
)

func (a *Adapter) ResolveTargetGroups(ctx context.Context, arns []string) ([]cloud.TargetGroupInfo, error) {
	if len(arns) == 0 {
		return nil, nil
	}
	out, err := a.elbv2.DescribeTargetGroups(ctx, &elasticloadbalancingv2.DescribeTargetGroupsInput{
		TargetGroupArns: arns,
	})
	if err != nil {
		return nil, wrapError("ResolveTargetGroups", arns[0], err)
	}
	infos := make([]cloud.TargetGroupInfo, 0, len(out.TargetGroups))
	for _, tg := range out.TargetGroups {
		infos = append(infos, cloud.TargetGroupInfo{
			ARN:  aws.ToString(tg.TargetGroupArn),
			Port: aws.ToInt32(tg.Port),
		})
	}
	return infos, nil
}

// DescribeTargetGroupsForInstance lists every target group in the account
// and keeps the ones where instanceID shows up in DescribeTargetHealth,
// since elbv2 has no server-side "target groups containing this instance"
// filter. Mirrors DescribeAlarms' list-then-filter-client-side shape.
func (a *Adapter) DescribeTargetGroupsForInstance(ctx context.Context, instanceID string) ([]cloud.TargetGroupInfo, error) {
	var all []cloud.TargetGroupInfo
	paginator := elasticloadbalancingv2.NewDescribeTargetGroupsPaginator(a.elbv2, &elasticloadbalancingv2.DescribeTargetGroupsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, wrapError("DescribeTargetGroupsForInstance", instanceID, err)
		}
		for _, tg := range page.TargetGroups {
			all = append(all, cloud.TargetGroupInfo{
				ARN:  aws.ToString(tg.TargetGroupArn),
				Port: aws.ToInt32(tg.Port),
			})
		}
	}

	var matched []cloud.TargetGroupInfo
	for _, tg := range all {
		health, err := a.DescribeTargetHealth(ctx, tg.ARN, instanceID)
		if err != nil {
			return nil, wrapError("DescribeTargetGroupsForInstance", tg.ARN, err)
		}
		if health != "unused" {
			matched = append(matched, tg)
		}
	}
	return matched, nil
}

// DescribeTargetHealth returns the elbv2 target health state (healthy,
// unhealthy, draining, initial, unused) for instanceID within tgARN.
// An instance absent from the response is reported as "unused", matching
// reconcile_target_groups' treatment of "not a member" the same as
// "already drained".
func (a *Adapter) DescribeTargetHealth(ctx context.Context, tgARN, instanceID string) (string, error) {
	out, err := a.elbv2.DescribeTargetHealth(ctx, &elasticloadbalancingv2.DescribeTargetHealthInput{
		TargetGroupArn: aws.String(tgARN),
		Targets:        []types.TargetDescription{{Id: aws.String(instanceID)}},
	})
	if err != nil {
		return "", wrapError("DescribeTargetHealth", tgARN, err)
	}
	if len(out.TargetHealthDescriptions) == 0 {
		return "unused", nil
	}
	th := out.TargetHealthDescriptions[0].TargetHealth
	if th == nil {
		return "unused", nil
	}
	return string(th.State), nil
}

func (a *Adapter) RegisterTarget(ctx context.Context, tgARN, instanceID string, port int32) error {
	target := types.TargetDescription{Id: aws.String(instanceID)}
	if port != 0 {
		target.Port = aws.Int32(port)
	}
	_, err := a.elbv2.RegisterTargets(ctx, &elasticloadbalancingv2.RegisterTargetsInput{
		TargetGroupArn: aws.String(tgARN),
		Targets:        []types.TargetDescription{target},
	})
	return wrapError("RegisterTarget", tgARN, err)
}

func (a *Adapter) DeregisterTarget(ctx context.Context, tgARN, instanceID string, port int32) error {
	target := types.TargetDescription{Id: aws.String(instanceID)}
	if port != 0 {
		target.Port = aws.Int32(port)
	}
	_, err := a.elbv2.DeregisterTargets(ctx, &elasticloadbalancingv2.DeregisterTargetsInput{
		TargetGroupArn: aws.String(tgARN),
		Targets:        []types.TargetDescription{target},
	})
	return wrapError("DeregisterTarget", tgARN, err)
}
