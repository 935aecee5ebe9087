package awsadapter

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// TagResources and UntagResources rate-limit per call batch, not per
// resource id, since CreateTags/DeleteTags already accept a resource list
// in one request. The limiter is shared with the adapter's other
// rate-limited calls (alarm rewrites).
func (a *Adapter) TagResources(ctx context.Context, resourceIDs []string, tags map[string]string) error {
	if len(resourceIDs) == 0 || len(tags) == 0 {
		return nil
	}
	if err := a.wait(ctx); err != nil {
		return err
	}

	ec2Tags := make([]types.Tag, 0, len(tags))
	for k, v := range tags {
		ec2Tags = append(ec2Tags, types.Tag{Key: aws.String(k), Value: aws.String(v)})
	}

	_, err := a.ec2.CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: resourceIDs,
		Tags:      ec2Tags,
	})
	return wrapError("TagResources", resourceIDs[0], err)
}

func (a *Adapter) UntagResources(ctx context.Context, resourceIDs []string, tagKeys []string) error {
	if len(resourceIDs) == 0 || len(tagKeys) == 0 {
		return nil
	}
	if err := a.wait(ctx); err != nil {
		return err
	}

	ec2Tags := make([]types.Tag, 0, len(tagKeys))
	for _, k := range tagKeys {
		ec2Tags = append(ec2Tags, types.Tag{Key: aws.String(k)})
	}

	_, err := a.ec2.DeleteTags(ctx, &ec2.DeleteTagsInput{
		Resources: resourceIDs,
		Tags:      ec2Tags,
	})
	return wrapError("UntagResources", resourceIDs[0], err)
}
