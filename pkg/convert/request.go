package convert

import "github.com/3leaps/ec2spotconverter/pkg/cloud"

// CPUOptionsRequest mirrors --cpu-options' JSON shape. A request with
// Ignore=true corresponds to the literal string "ignore" on the CLI,
// which always suppresses CPU options regardless of inheritance.
type CPUOptionsRequest struct {
	CoreCount      int32 `json:"core_count,omitempty"`
	ThreadsPerCore int32 `json:"threads_per_core,omitempty"`
	Ignore         bool  `json:"ignore,omitempty"`
	Explicit       bool  `json:"explicit,omitempty"`
}

// Request is the normalized, resume-persisted form of every CLI flag that
// affects conversion behavior (spec.md §3's "operator inputs the record
// must remember across resumes", spec.md §6's command-line surface).
type Request struct {
	InstanceID string `json:"instance_id"`

	TargetBillingModel BillingModel       `json:"target_billing_model"`
	TargetInstanceType string             `json:"target_instance_type,omitempty"`
	CPUOptions         *CPUOptionsRequest `json:"cpu_options,omitempty"`
	MaxSpotPrice       string             `json:"max_spot_price,omitempty"`
	VolumeKMSKeyID     string             `json:"volume_kms_key_id,omitempty"`

	IgnoreUserData            bool `json:"ignore_userdata,omitempty"`
	IgnoreHibernationOptions  bool `json:"ignore_hibernation_options,omitempty"`

	StopInstance                bool `json:"stop_instance,omitempty"`
	RebootIfNeeded               bool `json:"reboot_if_needed,omitempty"`
	DoNotRequireStoppedInstance  bool `json:"do_not_require_stopped_instance,omitempty"`

	CheckTargetGroups    []string `json:"check_targetgroups,omitempty"`
	CheckTargetGroupsSet bool     `json:"check_targetgroups_set,omitempty"`
	WaitForTGStates      []string `json:"wait_for_tg_states,omitempty"`
	UpdateCWAlarms       []string `json:"update_cw_alarms,omitempty"`

	DeleteAMI bool `json:"delete_ami,omitempty"`

	Force                    bool `json:"force,omitempty"`
	DoNotPauseOnMajorWarnings bool `json:"do_not_pause_on_major_warnings,omitempty"`
	ResetStep                string `json:"reset_step,omitempty"`
	ResetAll                 bool   `json:"reset_all,omitempty"`
}

// DefaultWaitForTGStates is spec.md §6's default accepted health-state set
// when --wait-for-tg-states is not supplied.
var DefaultWaitForTGStates = []string{"unused", "healthy"}

func (r Request) waitForTGStates() []string {
	if len(r.WaitForTGStates) == 0 {
		return DefaultWaitForTGStates
	}
	return r.WaitForTGStates
}

// targetGroupFilterIsAll reports whether --check-targetgroups was passed
// with no ARNs, meaning "every target group the instance is registered
// in" rather than "feature off" (CheckTargetGroupsSet distinguishes the
// flag being passed-empty from it being absent entirely).
func (r Request) targetGroupFilterIsAll() bool {
	return r.CheckTargetGroupsSet && len(r.CheckTargetGroups) == 0
}

// alarmPrefixPatterns returns the glob patterns to match alarm names
// against. An empty list, or a single "*", means "all alarms".
func (r Request) alarmPrefixPatterns() []string {
	if len(r.UpdateCWAlarms) == 0 {
		return nil
	}
	if len(r.UpdateCWAlarms) == 1 && r.UpdateCWAlarms[0] == "*" {
		return nil
	}
	return r.UpdateCWAlarms
}

func (r Request) cpuOptionsIgnored() bool {
	return r.CPUOptions != nil && r.CPUOptions.Ignore
}

func (r Request) explicitCPUOptions() *cloud.CPUOptions {
	if r.CPUOptions == nil || !r.CPUOptions.Explicit || r.CPUOptions.Ignore {
		return nil
	}
	return &cloud.CPUOptions{
		CoreCount:      r.CPUOptions.CoreCount,
		ThreadsPerCore: r.CPUOptions.ThreadsPerCore,
	}
}
