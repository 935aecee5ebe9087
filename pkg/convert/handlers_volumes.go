package convert

import (
	"context"
	"fmt"
)

func stepGetVolumeDetails(ctx context.Context, e *Executor, r *Record) Outcome {
	volumes, err := e.Adapter.DescribeVolumes(ctx, r.InstanceID)
	if err != nil {
		return Fatal(fmt.Errorf("get_volume_details: %w", err))
	}
	r.OriginalVolumeDetails = volumes
	return Success(fmt.Sprintf("captured %d volumes", len(volumes)))
}

// stepDetachVolumes detaches every volume whose DeleteOnTermination is
// false; the root volume flows through the AMI instead. Re-running against
// an already-detached volume is a no-op because each volume's attachment to
// this instance is checked first and volumes no longer attached are skipped.
func stepDetachVolumes(ctx context.Context, e *Executor, r *Record) Outcome {
	detached := 0
	for _, v := range r.OriginalVolumeDetails {
		if v.DeleteOnTermination {
			continue
		}
		attached, err := e.Adapter.VolumeAttachedToInstance(ctx, v.VolumeID, r.InstanceID)
		if err != nil {
			return Fatal(fmt.Errorf("detach_volumes: %w", err))
		}
		if !attached {
			continue
		}
		if err := e.Adapter.DetachVolume(ctx, v.VolumeID, r.InstanceID, v.DeviceName); err != nil {
			return Fatal(fmt.Errorf("detach_volumes: %s: %w", v.VolumeID, err))
		}
		detached++
	}
	return Success(fmt.Sprintf("detached %d volumes", detached))
}

// stepWaitVolumeDetach treats a multi-attach volume as "detached enough"
// once this instance no longer appears in its attachment list, even while
// the volume's own global state stays in-use because other instances
// remain attached (spec.md §4.6, §9's retained open question).
func stepWaitVolumeDetach(ctx context.Context, e *Executor, r *Record) Outcome {
	for _, v := range r.OriginalVolumeDetails {
		if v.DeleteOnTermination {
			continue
		}
		volumeID := v.VolumeID
		err := e.poll(ctx, volumeDetachPollInterval, volumeDetachTimeout, func() (bool, error) {
			attached, err := e.Adapter.VolumeAttachedToInstance(ctx, volumeID, r.InstanceID)
			if err != nil {
				return false, err
			}
			return !attached, nil
		})
		if err != nil {
			return Fatal(fmt.Errorf("wait_volume_detach: %s: %w", volumeID, err))
		}
	}
	if err := e.clock().Sleep(ctx, volumeDetachSettleDelay); err != nil {
		return Fatal(err)
	}
	return Success("volumes detached")
}

// stepReattachVolumes re-attaches each originally-detached volume to its
// original device name. A volume attached here marks reboot_recommended,
// since devices attached after boot are not always picked up by the guest
// OS without a reboot.
func stepReattachVolumes(ctx context.Context, e *Executor, r *Record) Outcome {
	reattached := 0
	for _, v := range r.OriginalVolumeDetails {
		if v.DeleteOnTermination {
			continue
		}
		attached, err := e.Adapter.VolumeAttachedToInstance(ctx, v.VolumeID, r.NewInstanceID)
		if err != nil {
			return Fatal(fmt.Errorf("reattach_volumes: %w", err))
		}
		if attached {
			continue
		}
		if err := e.Adapter.AttachVolume(ctx, v.VolumeID, r.NewInstanceID, v.DeviceName); err != nil {
			return Fatal(fmt.Errorf("reattach_volumes: %s: %w", v.VolumeID, err))
		}
		r.RebootRecommended = true
		reattached++
	}
	return Success(fmt.Sprintf("reattached %d volumes", reattached))
}
