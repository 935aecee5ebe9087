// Package cloud defines the capability interface the conversion workflow
// uses to talk to the compute provider, and the value types that flow
// across it. It deliberately exposes only the operations the handlers in
// pkg/convert invoke — describe/create/terminate for instances, detach/
// attach for volumes, create/wait/delete for images, and so on — the way
// the teacher's pkg/provider exposes only List/Head/Put/Delete for object
// storage rather than the whole of the S3 API surface.
package cloud

import (
	"context"
	"encoding/json"
	"time"
)

// InstanceSnapshot is the strongly-typed subset of a describe-instance
// response the workflow reads or copies forward. Fields the workflow only
// round-trips without interpreting are carried as opaque JSON (Raw) per
// spec.md's "dynamic record shape" design note.
type InstanceSnapshot struct {
	InstanceID                       string           `json:"instance_id"`
	ImageID                          string           `json:"image_id"`
	InstanceType                     string            `json:"instance_type"`
	Architecture                     string            `json:"architecture"`
	State                            string            `json:"state"`
	AvailabilityZone                 string            `json:"availability_zone"`
	PlacementGroupName                string            `json:"placement_group_name,omitempty"`
	Tenancy                          string            `json:"tenancy,omitempty"`
	SubnetID                         string            `json:"subnet_id"`
	RootDeviceName                   string            `json:"root_device_name"`
	KeyName                          string            `json:"key_name,omitempty"`
	IAMInstanceProfileArn            string            `json:"iam_instance_profile_arn,omitempty"`
	Monitoring                       bool              `json:"monitoring"`
	EBSOptimized                     bool              `json:"ebs_optimized"`
	EnclaveOptions                   bool              `json:"enclave_options"`
	HibernationOptions               bool              `json:"hibernation_options"`
	InstanceInitiatedShutdownBehavior string           `json:"instance_initiated_shutdown_behavior,omitempty"`
	UserData                         string            `json:"user_data,omitempty"` // base64, as returned by the provider
	CreditSpecification              string            `json:"credit_specification,omitempty"`
	CPUOptions                       *CPUOptions       `json:"cpu_options,omitempty"`
	MetadataOptions                  *MetadataOptions  `json:"metadata_options,omitempty"`
	LicenseSpecifications            []string          `json:"license_specifications,omitempty"`
	DisableAPITermination            bool              `json:"disable_api_termination"`
	Tags                             map[string]string `json:"tags,omitempty"`
	NetworkInterfaceIDs              []string          `json:"network_interface_ids"`
	SpotInstanceRequestID            string            `json:"spot_instance_request_id,omitempty"`
	CapacityReservationSpecification json.RawMessage   `json:"capacity_reservation_specification,omitempty"`
	Raw                              json.RawMessage   `json:"raw,omitempty"`
}

// CPUOptions mirrors the provider's narrow CPU-options shape.
type CPUOptions struct {
	CoreCount      int32 `json:"core_count"`
	ThreadsPerCore int32 `json:"threads_per_core"`
}

// MetadataOptions carries only the three fields the original tool's
// projector inherits (see SPEC_FULL.md §6.3).
type MetadataOptions struct {
	HTTPTokens              string `json:"http_tokens,omitempty"`
	HTTPPutResponseHopLimit int32  `json:"http_put_response_hop_limit,omitempty"`
	HTTPEndpoint            string `json:"http_endpoint,omitempty"`
}

// VolumeDetail describes one EBS volume attached to the original instance.
type VolumeDetail struct {
	VolumeID            string `json:"volume_id"`
	DeviceName          string `json:"device_name"`
	MultiAttachEnabled  bool   `json:"multi_attach_enabled"`
	DeleteOnTermination bool   `json:"delete_on_termination"`
	SizeGiB             int32  `json:"size_gib"`
	VolumeType          string `json:"volume_type"`
	IOPS                int32  `json:"iops,omitempty"`
	ThroughputMiBps     int32  `json:"throughput_mibps,omitempty"`
	Encrypted           bool   `json:"encrypted"`
	KMSKeyID            string `json:"kms_key_id,omitempty"`
	SnapshotID          string `json:"snapshot_id,omitempty"`
}

// NetworkInterfaceDetail describes one ENI attached to the original instance.
type NetworkInterfaceDetail struct {
	NetworkInterfaceID  string   `json:"network_interface_id"`
	AttachmentID        string   `json:"attachment_id"`
	DeviceIndex         int32    `json:"device_index"`
	SubnetID            string   `json:"subnet_id"`
	PrivateIPAddress    string   `json:"private_ip_address"`
	SecondaryPrivateIPs []string `json:"secondary_private_ips,omitempty"`
	SecurityGroupIDs    []string `json:"security_group_ids,omitempty"`
	SourceDestCheck     bool     `json:"source_dest_check"`
	DeleteOnTermination bool     `json:"delete_on_termination"`
	Description         string   `json:"description,omitempty"`
}

// AddressBinding describes one elastic IP association relevant to the
// instance's ENIs at discovery time.
type AddressBinding struct {
	AllocationID        string `json:"allocation_id"`
	AssociationID       string `json:"association_id,omitempty"`
	PublicIP            string `json:"public_ip"`
	PrivateIPAddress    string `json:"private_ip_address,omitempty"`
	NetworkInterfaceID  string `json:"network_interface_id,omitempty"`
}

// SpotRequestDetail describes the spot request backing a spot instance, if any.
type SpotRequestDetail struct {
	SpotRequestID         string `json:"spot_request_id"`
	State                 string `json:"state"`
	Type                  string `json:"type"` // "persistent" | "one-time"
	MaxPrice              string `json:"max_price,omitempty"`
	InterruptionBehavior  string `json:"interruption_behavior,omitempty"`
}

// ElasticGPUSpec and ElasticInferenceSpec carry forward accelerator
// attachments so the replacement instance gets the same ones.
type ElasticGPUSpec struct {
	Type string `json:"type"`
}

type ElasticInferenceSpec struct {
	Type  string `json:"type"`
	Count int32  `json:"count"`
}

// BlockDeviceMapping is one entry of a launch spec's block device list.
type BlockDeviceMapping struct {
	DeviceName          string `json:"device_name"`
	SnapshotID          string `json:"snapshot_id,omitempty"`
	SizeGiB             int32  `json:"size_gib,omitempty"`
	VolumeType          string `json:"volume_type,omitempty"`
	IOPS                int32  `json:"iops,omitempty"`
	ThroughputMiBps     int32  `json:"throughput_mibps,omitempty"`
	Encrypted           bool   `json:"encrypted"`
	KMSKeyID            string `json:"kms_key_id,omitempty"`
	DeleteOnTermination bool   `json:"delete_on_termination"`
}

// NetworkInterfaceSpec re-attaches an existing ENI by id at launch time,
// which is what causes the replacement instance to inherit the original's
// private IPs without any explicit IP assignment.
type NetworkInterfaceSpec struct {
	DeviceIndex         int32  `json:"device_index"`
	NetworkInterfaceID  string `json:"network_interface_id"`
}

// Placement mirrors the provider's placement block.
type Placement struct {
	AvailabilityZone string `json:"availability_zone,omitempty"`
	GroupName        string `json:"group_name,omitempty"`
	Tenancy          string `json:"tenancy,omitempty"`
}

// LaunchSpec is the exact shape pkg/convert's projector (C3) produces and
// the cloud adapter's RunInstance consumes. Every field the original
// instance could have that the new instance should inherit has a slot here;
// nothing about the original instance id appears anywhere in this struct.
type LaunchSpec struct {
	ImageID                           string                 `json:"image_id"`
	InstanceType                      string                 `json:"instance_type"`
	Placement                        *Placement             `json:"placement,omitempty"`
	KeyName                           string                 `json:"key_name,omitempty"`
	IAMInstanceProfileArn             string                 `json:"iam_instance_profile_arn,omitempty"`
	Monitoring                        bool                   `json:"monitoring"`
	EBSOptimized                      bool                   `json:"ebs_optimized"`
	BlockDeviceMappings               []BlockDeviceMapping   `json:"block_device_mappings,omitempty"`
	NetworkInterfaces                 []NetworkInterfaceSpec `json:"network_interfaces"`
	MetadataOptions                   *MetadataOptions       `json:"metadata_options,omitempty"`
	EnclaveOptions                    bool                   `json:"enclave_options"`
	LicenseSpecifications             []string                `json:"license_specifications,omitempty"`
	HibernationOptions                *bool                  `json:"hibernation_options,omitempty"`
	InstanceInitiatedShutdownBehavior string                 `json:"instance_initiated_shutdown_behavior,omitempty"`
	UserData                          string                 `json:"user_data,omitempty"`
	CPUOptions                        *CPUOptions            `json:"cpu_options,omitempty"`
	CreditSpecification               string                 `json:"credit_specification,omitempty"`
	CapacityReservationSpecification  json.RawMessage        `json:"capacity_reservation_specification,omitempty"`
	ElasticGPUSpecifications          []ElasticGPUSpec       `json:"elastic_gpu_specifications,omitempty"`
	ElasticInferenceAccelerators      []ElasticInferenceSpec `json:"elastic_inference_accelerators,omitempty"`
	Tags                              map[string]string      `json:"tags,omitempty"`

	// Market options, set only when the target billing model is spot.
	MarketType                   string `json:"market_type,omitempty"` // "spot" or ""
	SpotInstanceType             string `json:"spot_instance_type,omitempty"`
	InstanceInterruptionBehavior string `json:"instance_interruption_behavior,omitempty"`
	MaxSpotPrice                  string `json:"max_spot_price,omitempty"`
}

// ImageDetail is the result of describing an AMI.
type ImageDetail struct {
	ImageID     string   `json:"image_id"`
	State       string   `json:"state"` // pending | available | failed
	SnapshotIDs []string `json:"snapshot_ids"`
}

// TargetGroupInfo is one elasticloadbalancingv2 target group relevant to a
// reconciliation request.
type TargetGroupInfo struct {
	ARN  string `json:"arn"`
	Port int32  `json:"port"`
}

// AlarmInfo is a CloudWatch alarm whose dimensions reference an instance id.
type AlarmInfo struct {
	Name                          string            `json:"name"`
	Namespace                     string            `json:"namespace"`
	MetricName                    string            `json:"metric_name"`
	Dimensions                    map[string]string `json:"dimensions"`
	Description                   string            `json:"description,omitempty"`
	ActionsEnabled                bool              `json:"actions_enabled"`
	OKActions                     []string          `json:"ok_actions,omitempty"`
	AlarmActions                  []string          `json:"alarm_actions,omitempty"`
	InsufficientDataActions       []string          `json:"insufficient_data_actions,omitempty"`
	Statistic                     string            `json:"statistic,omitempty"`
	ExtendedStatistic             string            `json:"extended_statistic,omitempty"`
	Period                        int32             `json:"period,omitempty"`
	Unit                          string            `json:"unit,omitempty"`
	EvaluationPeriods             int32             `json:"evaluation_periods,omitempty"`
	DatapointsToAlarm             int32             `json:"datapoints_to_alarm,omitempty"`
	Threshold                     float64           `json:"threshold,omitempty"`
	ComparisonOperator            string            `json:"comparison_operator,omitempty"`
	TreatMissingData              string            `json:"treat_missing_data,omitempty"`
	EvaluateLowSampleCountPercentile string          `json:"evaluate_low_sample_count_percentile,omitempty"`
	ThresholdMetricID             string            `json:"threshold_metric_id,omitempty"`
}

// Adapter is the full capability surface the conversion workflow requires.
// It is synchronous and side-effect-observing: every mutator is expected to
// be safe to call twice (the handler, not the adapter, decides whether a
// second call is needed — see pkg/convert's idempotence contract).
type Adapter interface {
	// Self-awareness / preconditions.
	ResolveSelfInstanceID(ctx context.Context) (string, bool)
	DescribeTerminationProtection(ctx context.Context, instanceID string) (bool, error)
	DescribeKMSKey(ctx context.Context, keyID string) error

	// Instance lifecycle.
	DescribeInstance(ctx context.Context, instanceID string) (*InstanceSnapshot, error)
	DescribeInstanceState(ctx context.Context, instanceID string) (string, error)
	StopInstance(ctx context.Context, instanceID string) error
	TerminateInstance(ctx context.Context, instanceID string) error
	RunInstance(ctx context.Context, spec LaunchSpec) (string, error)
	RebootInstance(ctx context.Context, instanceID string) error

	// Spot requests.
	DescribeSpotRequest(ctx context.Context, spotRequestID string) (*SpotRequestDetail, error)
	CancelSpotRequest(ctx context.Context, spotRequestID string) error

	// Volumes.
	DescribeVolumes(ctx context.Context, instanceID string) ([]VolumeDetail, error)
	DetachVolume(ctx context.Context, volumeID, instanceID, deviceName string) error
	AttachVolume(ctx context.Context, volumeID, instanceID, deviceName string) error
	DeleteVolume(ctx context.Context, volumeID string) error
	VolumeAttachedToInstance(ctx context.Context, volumeID, instanceID string) (bool, error)

	// Network interfaces.
	DescribeNetworkInterfaces(ctx context.Context, instanceID string) ([]NetworkInterfaceDetail, error)
	DescribeNetworkInterfaceState(ctx context.Context, eniID string) (status string, attachedInstanceID string, err error)
	ModifyNetworkInterfaceDeleteOnTermination(ctx context.Context, eniID, attachmentID string, value bool) error

	// Elastic IPs.
	DescribeAddresses(ctx context.Context) ([]AddressBinding, error)
	AssociateAddress(ctx context.Context, allocationID, eniID, privateIP string) error

	// Images.
	CreateImageNoReboot(ctx context.Context, instanceID, name string, blockDevices []BlockDeviceMapping) (string, error)
	FindImageByName(ctx context.Context, name string) (string, bool, error)
	DescribeImage(ctx context.Context, imageID string) (*ImageDetail, error)
	DeregisterImage(ctx context.Context, imageID string) error
	DeleteSnapshot(ctx context.Context, snapshotID string) error

	// Accelerators, captured at checkpoint time for the projector.
	DescribeElasticGPUs(ctx context.Context, instanceID string) ([]ElasticGPUSpec, error)
	DescribeElasticInferenceAccelerators(ctx context.Context, instanceID string) ([]ElasticInferenceSpec, error)

	// Tagging.
	TagResources(ctx context.Context, resourceIDs []string, tags map[string]string) error
	UntagResources(ctx context.Context, resourceIDs []string, tagKeys []string) error

	// Target groups.
	ResolveTargetGroups(ctx context.Context, arns []string) ([]TargetGroupInfo, error)
	// DescribeTargetGroupsForInstance discovers every target group in the
	// account whose target health for instanceID is reported in any state
	// other than "unused". A registration reported as "unused" is not told
	// apart from no registration and is not returned. Backs an explicitly-empty
	// --check-targetgroups (all target groups), as opposed to the flag
	// being absent entirely (feature off).
	DescribeTargetGroupsForInstance(ctx context.Context, instanceID string) ([]TargetGroupInfo, error)
	DescribeTargetHealth(ctx context.Context, tgARN, instanceID string) (string, error)
	RegisterTarget(ctx context.Context, tgARN, instanceID string, port int32) error
	DeregisterTarget(ctx context.Context, tgARN, instanceID string, port int32) error

	// CloudWatch alarms.
	DescribeAlarms(ctx context.Context, prefixes []string) ([]AlarmInfo, error)
	PutMetricAlarm(ctx context.Context, alarm AlarmInfo) error
}

// Clock abstracts time so waiter loops in pkg/convert are testable without
// real sleeps. The AWS adapter doesn't need this directly, but handlers
// take one so tests can inject a fake.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// RealClock is the production Clock, cancellable via context.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
