package awsadapter

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"

	"github.com/3leaps/ec2spotconverter/pkg/cloud"
)

var errKeyNotEnabled = errors.New("kms key is not enabled")

// DescribeKMSKey validates that keyID exists and is usable for encryption,
// the precondition check §6.1 requires before a conversion request naming
// --volume-kms-key-id proceeds past C7 into any destructive step.
func (a *Adapter) DescribeKMSKey(ctx context.Context, keyID string) error {
	out, err := a.kms.DescribeKey(ctx, &kms.DescribeKeyInput{KeyId: aws.String(keyID)})
	if err != nil {
		return wrapError("DescribeKMSKey", keyID, err)
	}
	if out.KeyMetadata == nil || out.KeyMetadata.KeyState != types.KeyStateEnabled {
		return &cloud.AdapterError{Op: "DescribeKMSKey", ResourceID: keyID, Err: errKeyNotEnabled}
	}
	return nil
}
