package convert

import (
	"context"
	"errors"
	"fmt"

	"github.com/3leaps/ec2spotconverter/pkg/cloud"
)

// stepTerminateInstance is the point of no return's first irreversible
// action. If the source instance was spot-backed with a persistent request,
// that request is cancelled first, otherwise the provider would simply
// relaunch a replacement the instant this one disappears.
func stepTerminateInstance(ctx context.Context, e *Executor, r *Record) Outcome {
	state, err := e.Adapter.DescribeInstanceState(ctx, r.InstanceID)
	if err != nil && !cloud.IsNotFound(err) {
		return Fatal(fmt.Errorf("terminate_instance: %w", err))
	}
	if cloud.IsNotFound(err) || state == "terminated" {
		return Success("instance already terminated")
	}

	if r.SourceBillingModel == BillingSpot && r.OriginalInstanceState.SpotInstanceRequestID != "" {
		spotID := r.OriginalInstanceState.SpotInstanceRequestID
		if req, err := e.Adapter.DescribeSpotRequest(ctx, spotID); err == nil && req.State != "cancelled" {
			if err := e.Adapter.CancelSpotRequest(ctx, spotID); err != nil {
				return Fatal(fmt.Errorf("terminate_instance: cancel spot request %s: %w", spotID, err))
			}
		}
	}

	if err := e.Adapter.TerminateInstance(ctx, r.InstanceID); err != nil {
		return Fatal(fmt.Errorf("terminate_instance: %w", err))
	}
	return Success("instance termination requested")
}

// stepWaitResourceRelease waits for the original instance to fully
// disappear and its ENIs to clear their attachments, since the new
// instance's launch spec re-references those ENIs by id. If the root
// volume's DeleteOnTermination was false, it is not auto-deleted by
// termination and is force-deleted here, since the AMI already captured it.
func stepWaitResourceRelease(ctx context.Context, e *Executor, r *Record) Outcome {
	err := e.poll(ctx, terminatedPollInterval, terminatedTimeout, func() (bool, error) {
		s, err := e.Adapter.DescribeInstanceState(ctx, r.InstanceID)
		if err != nil {
			if cloud.IsNotFound(err) {
				return true, nil
			}
			return false, err
		}
		return s == "terminated", nil
	})
	if err != nil {
		return Fatal(fmt.Errorf("wait_resource_release: %w", err))
	}

	for _, ni := range r.OriginalNetworkInterfaces {
		eniID := ni.NetworkInterfaceID
		err := e.poll(ctx, eniReleasePollInterval, eniReleaseTimeout, func() (bool, error) {
			status, _, err := e.Adapter.DescribeNetworkInterfaceState(ctx, eniID)
			if err != nil {
				return false, err
			}
			return status != "in-use", nil
		})
		if err != nil {
			return Fatal(fmt.Errorf("wait_resource_release: eni %s: %w", eniID, err))
		}
	}

	rootDevice := r.OriginalInstanceState.RootDeviceName
	for _, v := range r.OriginalVolumeDetails {
		if v.DeviceName != rootDevice || v.DeleteOnTermination {
			continue
		}
		if err := e.Adapter.DeleteVolume(ctx, v.VolumeID); err != nil && !cloud.IsNotFound(err) {
			return Fatal(fmt.Errorf("wait_resource_release: delete leaked root volume %s: %w", v.VolumeID, err))
		}
	}

	return Success("original instance and network interfaces released")
}

// stepCreateNewInstance is idempotent two ways: if new_instance_id is
// already recorded, nothing more is done; otherwise, before launching
// anything, it checks whether one of the original ENIs is already attached
// to some other instance, the signature of a prior attempt that ran
// RunInstance and then crashed before persisting the id. In that case the
// existing instance is adopted instead of launching a duplicate.
func stepCreateNewInstance(ctx context.Context, e *Executor, r *Record) Outcome {
	if r.NewInstanceID != "" {
		return Success("replacement instance already created")
	}

	for _, ni := range r.OriginalNetworkInterfaces {
		status, attachedID, err := e.Adapter.DescribeNetworkInterfaceState(ctx, ni.NetworkInterfaceID)
		if err != nil {
			continue
		}
		if status == "in-use" && attachedID != "" && attachedID != r.InstanceID {
			r.NewInstanceID = attachedID
			return Success(fmt.Sprintf("adopted in-progress replacement instance %s", attachedID))
		}
	}

	if _, err := e.Adapter.DescribeImage(ctx, r.AMIID); err != nil {
		return Fatal(fmt.Errorf("create_new_instance: describe ami: %w", err))
	}

	var spotReq *cloud.SpotRequestDetail
	if r.SourceBillingModel == BillingSpot && r.OriginalInstanceState.SpotInstanceRequestID != "" {
		spotReq, _ = e.Adapter.DescribeSpotRequest(ctx, r.OriginalInstanceState.SpotInstanceRequestID)
	}

	input := ProjectionInput{
		Original:                   r.InstanceStateCheckpoint,
		AMIBlockDeviceMappings:     amiBlockDeviceMappings(r),
		PreservedNetworkInterfaces: r.OriginalNetworkInterfaces,
		ElasticGPUs:                r.ElasticGPUs,
		ElasticInferenceAccelerators: r.ElasticInferenceAccelerators,
		OriginalSpotRequest:        spotReq,
	}

	spec, warnings, err := Project(input, r.Request)
	if err != nil {
		return Fatal(fmt.Errorf("create_new_instance: %w", err))
	}
	for _, w := range warnings {
		r.AddWarning(w)
	}
	r.NewInstanceLaunchSpecification = spec

	newID, err := e.Adapter.RunInstance(ctx, *spec)
	if err != nil {
		return Fatal(fmt.Errorf("create_new_instance: %w", err))
	}
	r.NewInstanceID = newID
	return Success(fmt.Sprintf("launched replacement instance %s", newID))
}

// stepWaitNewInstanceRunning polls the replacement instance to running. If
// it instead reaches terminated (a launch-time failure the provider only
// surfaces after the instance briefly exists), new_instance_id is cleared
// and last_successful_step_name is rewound to before create_new_instance so
// the next invocation launches a fresh attempt.
func stepWaitNewInstanceRunning(ctx context.Context, e *Executor, r *Record) Outcome {
	err := e.poll(ctx, newInstancePollInterval, newInstanceTimeout, func() (bool, error) {
		s, err := e.Adapter.DescribeInstanceState(ctx, r.NewInstanceID)
		if err != nil {
			return false, err
		}
		if s == "terminated" {
			return false, errTerminalState
		}
		return s == "running", nil
	})
	if errors.Is(err, errTerminalState) {
		r.NewInstanceID = ""
		rewindTo(r, "create_new_instance")
		return Fatal(fmt.Errorf("wait_new_instance_running: replacement instance terminated; rewound for retry"))
	}
	if err != nil {
		return Fatal(fmt.Errorf("wait_new_instance_running: %w", err))
	}
	return Success("replacement instance running")
}

// stepRebootIfNeeded reboots the replacement instance when a volume was
// attached post-boot and the operator passed --reboot-if-needed; otherwise
// it records a warning that a manual reboot may be required.
func stepRebootIfNeeded(ctx context.Context, e *Executor, r *Record) Outcome {
	if !r.RebootRecommended {
		return Skipped("no reboot needed")
	}
	if !r.Request.RebootIfNeeded {
		r.AddWarning("a reboot of the replacement instance is recommended to pick up reattached volumes; pass --reboot-if-needed to do it automatically")
		return Skipped("reboot recommended but --reboot-if-needed not set")
	}
	if err := e.Adapter.RebootInstance(ctx, r.NewInstanceID); err != nil {
		return Fatal(fmt.Errorf("reboot_if_needed: %w", err))
	}
	return Success("replacement instance rebooted")
}
