package awsadapter

import (
	"errors"

	"github.com/aws/smithy-go"

	"github.com/3leaps/ec2spotconverter/pkg/cloud"
)

// wrapError classifies an AWS SDK error into this module's sentinel kinds by
// its smithy error code, leaving an unrecognised error wrapped as-is, in the
// shape of pkg/provider/s3.Provider.wrapError.
func wrapError(op, resourceID string, err error) error {
	if err == nil {
		return nil
	}

	wrapped := &cloud.AdapterError{Op: op, ResourceID: resourceID, Err: err}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "InvalidInstanceID.NotFound", "InvalidVolume.NotFound",
			"InvalidNetworkInterfaceID.NotFound", "InvalidAMIID.NotFound",
			"InvalidAllocationID.NotFound", "InvalidParameterValue",
			"TargetGroupNotFound", "ResourceNotFoundException":
			wrapped.Err = cloud.ErrNotFound
		case "InvalidAMIName.Duplicate", "ResourceAlreadyExistsException":
			wrapped.Err = cloud.ErrAlreadyExists
		case "IncorrectInstanceState", "IncorrectSpotRequestState",
			"InvalidVolume.ZoneMismatch", "VolumeInUse", "IncorrectState":
			wrapped.Err = cloud.ErrInvalidState
		case "RequestLimitExceeded", "Throttling", "ThrottlingException":
			wrapped.Err = cloud.ErrThrottled
		case "UnauthorizedOperation", "AccessDenied", "AccessDeniedException":
			wrapped.Err = cloud.ErrAccessDenied
		case "ServiceUnavailable", "InternalError", "InternalFailure":
			wrapped.Err = cloud.ErrProviderUnavailable
		}
	}

	return wrapped
}
