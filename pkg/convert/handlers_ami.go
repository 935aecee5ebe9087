package convert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/3leaps/ec2spotconverter/pkg/cloud"
)

// amiName is the backup image's stable name, also used to re-discover it
// on retry, per spec.md §6.
func amiName(instanceID string) string {
	return "ec2-spot-converter-" + instanceID
}

// amiBlockDeviceMappings builds the no-reboot CreateImage request's device
// list: the root device, plus any other original volume whose
// DeleteOnTermination is true. Other volumes are reattached post-boot
// instead (spec.md §4.3).
func amiBlockDeviceMappings(r *Record) []cloud.BlockDeviceMapping {
	var mappings []cloud.BlockDeviceMapping
	root := r.OriginalInstanceState.RootDeviceName
	for _, v := range r.OriginalVolumeDetails {
		if v.DeviceName != root && !v.DeleteOnTermination {
			continue
		}
		mappings = append(mappings, cloud.BlockDeviceMapping{
			DeviceName:          v.DeviceName,
			SizeGiB:             v.SizeGiB,
			VolumeType:          v.VolumeType,
			IOPS:                v.IOPS,
			ThroughputMiBps:     v.ThroughputMiBps,
			Encrypted:           v.Encrypted,
			KMSKeyID:            v.KMSKeyID,
			DeleteOnTermination: true,
		})
	}
	return mappings
}

// stepStartAMICreation issues a no-reboot image create. If a previous
// attempt's image already exists under this job's stable name, that id is
// reused instead of creating a duplicate (spec.md §4.6).
func stepStartAMICreation(ctx context.Context, e *Executor, r *Record) Outcome {
	if r.AMIID != "" {
		return Success("ami already requested")
	}

	name := amiName(r.InstanceID)
	if existingID, ok, err := e.Adapter.FindImageByName(ctx, name); err == nil && ok {
		r.AMIID = existingID
		now := time.Now()
		r.AMICreationDate = &now
		return Success(fmt.Sprintf("reused existing ami %s", existingID))
	}

	imageID, err := e.Adapter.CreateImageNoReboot(ctx, r.InstanceID, name, amiBlockDeviceMappings(r))
	if err != nil {
		if cloud.IsAlreadyExists(err) {
			existingID, ok, lookupErr := e.Adapter.FindImageByName(ctx, name)
			if lookupErr == nil && ok {
				r.AMIID = existingID
				now := time.Now()
				r.AMICreationDate = &now
				return Success(fmt.Sprintf("reused existing ami %s", existingID))
			}
		}
		return Fatal(fmt.Errorf("start_ami_creation: %w", err))
	}

	r.AMIID = imageID
	now := time.Now()
	r.AMICreationDate = &now
	return Success(fmt.Sprintf("creating ami %s", imageID))
}

// stepWaitAMIReady polls until the AMI reaches available. If it reaches
// failed instead, the image is deregistered and last_successful_step_name
// is rewound to before start_ami_creation so the next invocation starts a
// fresh attempt, per SPEC_FULL.md §6.4.
func stepWaitAMIReady(ctx context.Context, e *Executor, r *Record) Outcome {
	err := e.poll(ctx, amiPollInterval, amiTimeout, func() (bool, error) {
		img, err := e.Adapter.DescribeImage(ctx, r.AMIID)
		if err != nil {
			return false, err
		}
		if img.State == "failed" {
			return false, errTerminalState
		}
		return img.State == "available", nil
	})
	if errors.Is(err, errTerminalState) {
		_ = e.Adapter.DeregisterImage(ctx, r.AMIID)
		r.AMIID = ""
		r.AMICreationDate = nil
		rewindTo(r, "start_ami_creation")
		return Fatal(fmt.Errorf("wait_ami_ready: ami reached failed state; rewound for retry"))
	}
	if err != nil {
		return Fatal(fmt.Errorf("wait_ami_ready: %w", err))
	}
	return Success("ami available")
}

// stepDeregisterImage runs only when --delete-ami was requested; it
// fetches the AMI's backing snapshots before deregistering, then deletes
// each snapshot individually, since deregistering an AMI does not delete
// its own snapshots.
func stepDeregisterImage(ctx context.Context, e *Executor, r *Record) Outcome {
	if !r.Request.DeleteAMI {
		return Skipped("--delete-ami not set")
	}
	if r.AMIID == "" {
		return Skipped("no ami to delete")
	}

	img, err := e.Adapter.DescribeImage(ctx, r.AMIID)
	if err != nil {
		return Fatal(fmt.Errorf("deregister_image: %w", err))
	}

	if err := e.Adapter.DeregisterImage(ctx, r.AMIID); err != nil {
		return Fatal(fmt.Errorf("deregister_image: %w", err))
	}
	for _, snapID := range img.SnapshotIDs {
		if err := e.Adapter.DeleteSnapshot(ctx, snapID); err != nil {
			return Fatal(fmt.Errorf("deregister_image: delete snapshot %s: %w", snapID, err))
		}
	}
	return Success(fmt.Sprintf("deregistered ami %s and %d snapshots", r.AMIID, len(img.SnapshotIDs)))
}
