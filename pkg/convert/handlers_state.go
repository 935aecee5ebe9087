package convert

import (
	"context"
	"fmt"

	"github.com/3leaps/ec2spotconverter/pkg/cloud"
)

// jobTagKey is the resource-tag contract of spec.md §6: applied to every
// resource touched during the critical window, removed in untag_resources.
const jobTagKey = "ec2-spot-converter:job-id"

func stepReadStateTable(ctx context.Context, e *Executor, r *Record) Outcome {
	// The record is already loaded by the time the executor reaches here;
	// this step exists as a named, visible first line in the step list,
	// matching the original tool's own dedicated read-state step.
	return Success("state table read")
}

// stepDiscoverInstanceState captures original_instance_state exactly once
// (spec.md invariant 4); resuming past this step never re-queries it.
func stepDiscoverInstanceState(ctx context.Context, e *Executor, r *Record) Outcome {
	if r.OriginalInstanceState != nil {
		return Success("instance state already captured")
	}

	snap, err := e.Adapter.DescribeInstance(ctx, r.InstanceID)
	if err != nil {
		return Fatal(fmt.Errorf("discover_instance_state: %w", err))
	}
	r.OriginalInstanceState = snap

	gpus, err := e.Adapter.DescribeElasticGPUs(ctx, r.InstanceID)
	if err != nil {
		return Fatal(fmt.Errorf("discover_instance_state: describe elastic gpus: %w", err))
	}
	r.ElasticGPUs = gpus

	accel, err := e.Adapter.DescribeElasticInferenceAccelerators(ctx, r.InstanceID)
	if err != nil {
		return Fatal(fmt.Errorf("discover_instance_state: describe elastic inference accelerators: %w", err))
	}
	r.ElasticInferenceAccelerators = accel

	if snap.SpotInstanceRequestID != "" {
		r.SourceBillingModel = BillingSpot
	} else {
		r.SourceBillingModel = BillingOnDemand
	}
	r.TargetBillingModel = r.Request.TargetBillingModel

	enis, err := e.Adapter.DescribeNetworkInterfaces(ctx, r.InstanceID)
	if err != nil {
		return Fatal(fmt.Errorf("discover_instance_state: describe network interfaces: %w", err))
	}
	r.OriginalNetworkInterfaces = enis

	addresses, err := e.Adapter.DescribeAddresses(ctx)
	if err != nil {
		return Fatal(fmt.Errorf("discover_instance_state: describe addresses: %w", err))
	}
	eniIDs := make(map[string]bool, len(enis))
	for _, ni := range enis {
		eniIDs[ni.NetworkInterfaceID] = true
	}
	for _, addr := range addresses {
		if eniIDs[addr.NetworkInterfaceID] {
			r.OriginalAddresses = append(r.OriginalAddresses, addr)
		}
	}

	return Success(fmt.Sprintf("captured state of %s", r.InstanceID))
}

func stepWaitStoppedInstance(ctx context.Context, e *Executor, r *Record) Outcome {
	state, err := e.Adapter.DescribeInstanceState(ctx, r.InstanceID)
	if err != nil {
		return Fatal(fmt.Errorf("wait_stopped_instance: %w", err))
	}
	if state == "stopped" {
		return Success("instance already stopped")
	}

	if !r.Request.StopInstance {
		if r.Request.DoNotRequireStoppedInstance {
			return Skipped("instance left running per --do-not-require-stopped-instance")
		}
		return Fatal(fmt.Errorf("wait_stopped_instance: instance is %q, pass --stop-instance", state))
	}

	if err := e.Adapter.StopInstance(ctx, r.InstanceID); err != nil {
		if cloud.IsInvalidState(err) && r.Request.DoNotRequireStoppedInstance {
			r.FailedStop = true
			return Skipped(fmt.Sprintf("stop failed (%v); continuing per --do-not-require-stopped-instance", err))
		}
		return Fatal(fmt.Errorf("wait_stopped_instance: stop: %w", err))
	}

	err = e.poll(ctx, instanceStatePollInterval, instanceStateTimeout, func() (bool, error) {
		s, err := e.Adapter.DescribeInstanceState(ctx, r.InstanceID)
		if err != nil {
			return false, err
		}
		return s == "stopped", nil
	})
	if err != nil {
		return Fatal(fmt.Errorf("wait_stopped_instance: %w", err))
	}
	return Success("instance stopped")
}

// stepCheckpointInstanceState is the point-of-no-return barrier: before
// it, nothing external has been destroyed; after it, the record's
// original_* snapshots are the only record of the instance's prior shape.
func stepCheckpointInstanceState(ctx context.Context, e *Executor, r *Record) Outcome {
	if r.InstanceStateCheckpoint != nil {
		return Success("checkpoint already captured")
	}
	snap, err := e.Adapter.DescribeInstance(ctx, r.InstanceID)
	if err != nil {
		return Fatal(fmt.Errorf("checkpoint_instance_state: %w", err))
	}
	r.InstanceStateCheckpoint = snap
	return Success("checkpoint captured")
}
