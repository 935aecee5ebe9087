package convert

import (
	"context"
	"fmt"

	convErrors "github.com/3leaps/ec2spotconverter/internal/errors"
	"github.com/3leaps/ec2spotconverter/pkg/cloud"
)

// ApplyPreconditions runs spec.md §4.7's validation before the first step,
// supplemented per SPEC_FULL.md §6.7 (self-conversion guard, termination
// protection, KMS key validation, stop-vs-spot-state interaction). It
// returns accumulated warning strings; a non-nil error means the
// PreconditionFailure must abort the run before the record is touched.
func ApplyPreconditions(ctx context.Context, adapter cloud.Adapter, record *Record, req Request) ([]string, error) {
	var warnings []string

	if selfID, ok := adapter.ResolveSelfInstanceID(ctx); ok && selfID == req.InstanceID {
		return nil, convErrors.Precondition("self_conversion_guard",
			fmt.Errorf("refusing to convert instance %s: the tool is running on it", req.InstanceID))
	}

	protected, err := adapter.DescribeTerminationProtection(ctx, req.InstanceID)
	if err != nil {
		return nil, convErrors.Precondition("termination_protection_guard", err)
	}
	if protected {
		return nil, convErrors.Precondition("termination_protection_guard",
			fmt.Errorf("instance %s has termination protection enabled; disable it first", req.InstanceID))
	}

	if req.VolumeKMSKeyID != "" {
		if err := adapter.DescribeKMSKey(ctx, req.VolumeKMSKeyID); err != nil {
			return nil, convErrors.Precondition("kms_key_validation", err)
		}
	}

	state, err := adapter.DescribeInstanceState(ctx, req.InstanceID)
	if err != nil {
		return nil, convErrors.Precondition("discover_instance_state", err)
	}
	if state != "stopped" && !req.StopInstance && !req.DoNotRequireStoppedInstance {
		return nil, convErrors.Precondition("stopped_state_requirement",
			fmt.Errorf("instance %s is %q; pass --stop-instance or --do-not-require-stopped-instance", req.InstanceID, state))
	}

	sourceBilling := BillingOnDemand
	snap, err := adapter.DescribeInstance(ctx, req.InstanceID)
	if err != nil {
		return nil, convErrors.Precondition("discover_instance_state", err)
	}
	if snap.SpotInstanceRequestID != "" {
		sourceBilling = BillingSpot
	}
	record.SourceBillingModel = sourceBilling
	record.TargetBillingModel = req.TargetBillingModel

	billingUnchanged := sourceBilling == req.TargetBillingModel
	noOtherChange := req.TargetInstanceType == "" && req.CPUOptions == nil && req.VolumeKMSKeyID == ""
	if billingUnchanged && noOtherChange && !req.Force {
		return nil, convErrors.Precondition("billing_model_sanity",
			fmt.Errorf("source and target billing model both %q and no other change requested; pass --force to proceed anyway", sourceBilling))
	}

	if snap.SpotInstanceRequestID != "" {
		spotReq, err := adapter.DescribeSpotRequest(ctx, snap.SpotInstanceRequestID)
		if err == nil && spotReq.State == "cancelled" {
			warnings = append(warnings, fmt.Sprintf(
				"instance %s has an orphan spot request %s in state %q", req.InstanceID, spotReq.SpotRequestID, spotReq.State))
		}
	}

	return warnings, nil
}
