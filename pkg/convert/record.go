// Package convert implements the resumable, idempotent conversion
// state machine: the launch-spec projector (C3), step registry (C4),
// executor (C5), side-effect handlers (C6), and preconditions (C7).
package convert

import (
	"encoding/json"
	"time"

	"github.com/3leaps/ec2spotconverter/pkg/cloud"
)

// ConversionStatus mirrors spec.md §3's two-value status; absence of the
// field (an empty Record freshly loaded) means "not started".
type ConversionStatus string

const (
	StatusInProgress ConversionStatus = "in-progress"
	StatusSuccess    ConversionStatus = "success"
)

// BillingModel is the provider lifecycle/pricing class, spec.md's GLOSSARY
// entry for the same name.
type BillingModel string

const (
	BillingSpot     BillingModel = "spot"
	BillingOnDemand BillingModel = "on-demand"
)

// Record is the single persisted entity of spec.md §3, one per original
// instance id. It is kept deliberately schemaless where the underlying
// provider shape is already captured elsewhere as cloud.InstanceSnapshot
// (itself carrying a Raw json.RawMessage for anything neither side
// strongly types) — per spec.md §9's "dynamic record shape" design note.
type Record struct {
	InstanceID string `json:"instance_id"`

	StartDate      time.Time  `json:"start_date"`
	LastUpdateDate time.Time  `json:"last_update_date"`
	EndDate        *time.Time `json:"end_date,omitempty"`

	ConversionStatus       ConversionStatus `json:"conversion_status,omitempty"`
	LastSuccessfulStepName string           `json:"last_successful_step_name,omitempty"`
	StepCount              int              `json:"step_count"`

	JobID string `json:"job_id"`

	SourceBillingModel BillingModel `json:"source_billing_model,omitempty"`
	TargetBillingModel BillingModel `json:"target_billing_model,omitempty"`

	OriginalInstanceState      *cloud.InstanceSnapshot        `json:"original_instance_state,omitempty"`
	OriginalVolumeDetails      []cloud.VolumeDetail            `json:"original_volume_details,omitempty"`
	OriginalNetworkInterfaces  []cloud.NetworkInterfaceDetail  `json:"original_network_interfaces,omitempty"`
	OriginalAddresses          []cloud.AddressBinding          `json:"original_addresses,omitempty"`
	OriginalTargetGroups       []cloud.TargetGroupInfo         `json:"original_target_groups,omitempty"`

	AMIID           string     `json:"ami_id,omitempty"`
	AMICreationDate *time.Time `json:"ami_creation_date,omitempty"`

	NewInstanceID string `json:"new_instance_id,omitempty"`

	RebootRecommended bool `json:"reboot_recommended"`

	// Operator inputs remembered across resumes.
	Request Request `json:"request"`

	// Supplemented fields, grounded on the original's flat attribute map.
	ConversionStepReasons          map[string]string `json:"conversion_step_reasons,omitempty"`
	ConversionStepCmdlineArgs      map[string]Request `json:"conversion_step_cmdline_args,omitempty"`
	NewInstanceLaunchSpecification *cloud.LaunchSpec   `json:"new_instance_launch_specification,omitempty"`
	InstanceStateCheckpoint        *cloud.InstanceSnapshot `json:"instance_state_checkpoint,omitempty"`
	ElasticGPUs                    []cloud.ElasticGPUSpec  `json:"elastic_gpus,omitempty"`
	ElasticInferenceAccelerators   []cloud.ElasticInferenceSpec `json:"elastic_inference_accelerators,omitempty"`
	FailedStop                     bool                    `json:"failed_stop,omitempty"`
	FinalInstanceState             *cloud.InstanceSnapshot `json:"final_instance_state,omitempty"`

	LeaseToken      string     `json:"lease_token,omitempty"`
	LeaseAcquiredAt *time.Time `json:"lease_acquired_at,omitempty"`

	// Warnings accumulated across the run, re-printed at the end per
	// spec.md §7.
	Warnings []string `json:"warnings,omitempty"`
}

// NewRecord seeds a fresh Record for instanceID; callers fill in Request
// before running the executor.
func NewRecord(instanceID string, req Request, now time.Time) *Record {
	return &Record{
		InstanceID:     instanceID,
		JobID:          instanceID,
		StartDate:      now,
		LastUpdateDate: now,
		Request:        req,
	}
}

func (r *Record) MarshalForStore() ([]byte, error) {
	return json.Marshal(r)
}

func UnmarshalRecord(raw []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// AddWarning appends a message, de-duplicated, to the record's running
// warning list.
func (r *Record) AddWarning(msg string) {
	for _, w := range r.Warnings {
		if w == msg {
			return
		}
	}
	r.Warnings = append(r.Warnings, msg)
}

// NoteStepReason records why a step ran the way it did (branch taken,
// skip reason), keyed by step name, for replay display.
func (r *Record) NoteStepReason(step, reason string) {
	if r.ConversionStepReasons == nil {
		r.ConversionStepReasons = map[string]string{}
	}
	r.ConversionStepReasons[step] = reason
}

// NoteStepCmdlineArgs snapshots the request in effect when step last ran,
// for the command-line-drift warning (SPEC_FULL.md §6.5).
func (r *Record) NoteStepCmdlineArgs(step string, req Request) {
	if r.ConversionStepCmdlineArgs == nil {
		r.ConversionStepCmdlineArgs = map[string]Request{}
	}
	r.ConversionStepCmdlineArgs[step] = req
}
