package convert

import "context"

// Step is one named descriptor of C4: a precondition-gated, idempotent
// forward action plus a short human-readable description for the
// executor's progress line. Calling Action twice with no intervening
// external change must be equivalent to calling it once (spec.md §4.4).
type Step struct {
	Name             string
	ShortDescription string
	Action           func(context.Context, *Executor, *Record) Outcome
}

// stepNames is the canonical ordered list from spec.md §4.4, plus the two
// additive conditional steps from SPEC_FULL.md §6.4 inserted immediately
// before untag_resources. --reset-step accepts any of these names.
var stepRegistry []Step

// checkpointStepIndex is the position of checkpoint_instance_state, the
// barrier spec.md §4.5 names: steps at or before it are fully reversible,
// steps after it are not.
var checkpointStepIndex int

func init() {
	stepRegistry = []Step{
		{Name: "read_state_table", ShortDescription: "Reading job state", Action: stepReadStateTable},
		{Name: "discover_instance_state", ShortDescription: "Discovering instance state", Action: stepDiscoverInstanceState},
		{Name: "wait_stopped_instance", ShortDescription: "Waiting for instance to stop", Action: stepWaitStoppedInstance},
		{Name: "tag_resources", ShortDescription: "Tagging resources", Action: stepTagResources},
		{Name: "get_volume_details", ShortDescription: "Getting volume details", Action: stepGetVolumeDetails},
		{Name: "detach_volumes", ShortDescription: "Detaching non-root volumes", Action: stepDetachVolumes},
		{Name: "wait_volume_detach", ShortDescription: "Waiting for volumes to detach", Action: stepWaitVolumeDetach},
		{Name: "start_ami_creation", ShortDescription: "Starting AMI creation", Action: stepStartAMICreation},
		{Name: "prepare_network_interfaces", ShortDescription: "Preparing network interfaces", Action: stepPrepareNetworkInterfaces},
		{Name: "wait_ami_ready", ShortDescription: "Waiting for AMI to become available", Action: stepWaitAMIReady},
		{Name: "checkpoint_instance_state", ShortDescription: "Checkpointing instance state", Action: stepCheckpointInstanceState},
		{Name: "terminate_instance", ShortDescription: "Terminating original instance", Action: stepTerminateInstance},
		{Name: "wait_resource_release", ShortDescription: "Waiting for resources to release", Action: stepWaitResourceRelease},
		{Name: "create_new_instance", ShortDescription: "Creating replacement instance", Action: stepCreateNewInstance},
		{Name: "wait_new_instance_running", ShortDescription: "Waiting for replacement instance to run", Action: stepWaitNewInstanceRunning},
		{Name: "reattach_volumes", ShortDescription: "Reattaching volumes", Action: stepReattachVolumes},
		{Name: "configure_network_interfaces", ShortDescription: "Restoring network interface configuration", Action: stepConfigureNetworkInterfaces},
		{Name: "manage_elastic_ip", ShortDescription: "Reassociating elastic IPs", Action: stepManageElasticIP},
		{Name: "reboot_if_needed", ShortDescription: "Rebooting if needed", Action: stepRebootIfNeeded},
		{Name: "reconcile_target_groups", ShortDescription: "Reconciling target group membership", Action: stepReconcileTargetGroups},
		{Name: "reconcile_cloudwatch_alarms", ShortDescription: "Reconciling CloudWatch alarms", Action: stepReconcileCloudWatchAlarms},
		{Name: "untag_resources", ShortDescription: "Untagging resources", Action: stepUntagResources},
		{Name: "deregister_image", ShortDescription: "Deregistering backup AMI", Action: stepDeregisterImage},
	}
	checkpointStepIndex = stepIndex("checkpoint_instance_state")
}

// stepIndex returns the position of name in stepRegistry, or -1.
func stepIndex(name string) int {
	for i, s := range stepRegistry {
		if s.Name == name {
			return i
		}
	}
	return -1
}

// resumeIndex computes the position in stepRegistry to resume from, given
// the record's last_successful_step_name. An empty name resumes from 0.
func resumeIndex(lastSuccessfulStep string) int {
	if lastSuccessfulStep == "" {
		return 0
	}
	idx := stepIndex(lastSuccessfulStep)
	if idx < 0 {
		return 0
	}
	return idx + 1
}

// rewindTo rewrites last_successful_step_name to the step immediately
// before target, the mechanism behind both --reset-step and the AMI/
// new-instance-termination rewind behaviours of SPEC_FULL.md §6.4.
func rewindTo(r *Record, target string) {
	idx := stepIndex(target)
	if idx <= 0 {
		r.LastSuccessfulStepName = ""
		return
	}
	r.LastSuccessfulStepName = stepRegistry[idx-1].Name
}
