package convert

import (
	"strings"

	"github.com/3leaps/ec2spotconverter/pkg/cloud"
)

// cpuOptionsDisqualifiedFamilies lists instance families whose CPU-options
// API rejects the shape an inherited CoreCount/ThreadsPerCore pair would
// carry, per SPEC_FULL.md §6.3.
var cpuOptionsDisqualifiedFamilies = map[string]bool{
	"t2": true, "m1": true, "m2": true, "m3": true,
}

// ProjectionInput gathers every piece of captured state C3 needs beyond
// the request itself. All fields are resolved by the caller (C6 handlers)
// before Project runs; Project performs no I/O, per spec.md §4.3 and
// testable property 5 ("launch-spec determinism").
type ProjectionInput struct {
	Original *cloud.InstanceSnapshot

	// AMIBlockDeviceMappings is the backup AMI's block device list, built by
	// the caller from the recorded original volume details (device name and
	// volume attributes, no snapshot id), before any KMS or
	// delete-on-termination rewrite.
	AMIBlockDeviceMappings []cloud.BlockDeviceMapping

	// PreservedNetworkInterfaces are the original ENIs, still attached to
	// their original ids, to be re-referenced by id in the new spec so
	// their private IPs carry forward unchanged.
	PreservedNetworkInterfaces []cloud.NetworkInterfaceDetail

	ElasticGPUs                  []cloud.ElasticGPUSpec
	ElasticInferenceAccelerators []cloud.ElasticInferenceSpec

	// OriginalSpotRequest is non-nil only when the original instance was
	// spot-backed; used for MaxPrice inheritance.
	OriginalSpotRequest *cloud.SpotRequestDetail
}

// Project is the pure, deterministic function spec.md §4.3 requires:
// same ProjectionInput + Request always produces a byte-identical
// cloud.LaunchSpec. It never references input.Original.InstanceID inside
// the returned spec.
func Project(input ProjectionInput, req Request) (*cloud.LaunchSpec, []string, error) {
	var warnings []string
	orig := input.Original

	spec := &cloud.LaunchSpec{
		ImageID:               orig.ImageID,
		KeyName:               orig.KeyName,
		IAMInstanceProfileArn: orig.IAMInstanceProfileArn,
		Monitoring:            orig.Monitoring,
		EBSOptimized:          orig.EBSOptimized,
		EnclaveOptions:        orig.EnclaveOptions,
		LicenseSpecifications: orig.LicenseSpecifications,
		InstanceInitiatedShutdownBehavior: orig.InstanceInitiatedShutdownBehavior,
		CreditSpecification:   orig.CreditSpecification,
		CapacityReservationSpecification: orig.CapacityReservationSpecification,
		ElasticGPUSpecifications:     input.ElasticGPUs,
		ElasticInferenceAccelerators: input.ElasticInferenceAccelerators,
	}

	spec.Placement = &cloud.Placement{
		AvailabilityZone: orig.AvailabilityZone,
		GroupName:        orig.PlacementGroupName,
		Tenancy:          orig.Tenancy,
	}

	if orig.MetadataOptions != nil {
		spec.MetadataOptions = &cloud.MetadataOptions{
			HTTPTokens:              orig.MetadataOptions.HTTPTokens,
			HTTPPutResponseHopLimit: orig.MetadataOptions.HTTPPutResponseHopLimit,
			HTTPEndpoint:            orig.MetadataOptions.HTTPEndpoint,
		}
	}

	if !req.IgnoreHibernationOptions {
		hib := orig.HibernationOptions
		spec.HibernationOptions = &hib
	}

	if !req.IgnoreUserData {
		spec.UserData = orig.UserData
	}

	spec.InstanceType = orig.InstanceType
	if req.TargetInstanceType != "" {
		spec.InstanceType = req.TargetInstanceType
	}
	typeChanged := req.TargetInstanceType != "" && req.TargetInstanceType != orig.InstanceType

	spec.CPUOptions, warnings = projectCPUOptions(orig, req, typeChanged, warnings)

	spec.Tags = projectTags(orig.Tags)

	spec.NetworkInterfaces = projectNetworkInterfaces(input.PreservedNetworkInterfaces)

	spec.BlockDeviceMappings, warnings = projectBlockDeviceMappings(input.AMIBlockDeviceMappings, req, warnings)

	switch req.TargetBillingModel {
	case BillingSpot:
		spec.MarketType = "spot"
		spec.SpotInstanceType = "persistent"
		spec.InstanceInterruptionBehavior = "stop"
		spec.MaxSpotPrice = projectMaxSpotPrice(input.OriginalSpotRequest, req, typeChanged)
	case BillingOnDemand:
		spec.MarketType = ""
		spec.SpotInstanceType = ""
		spec.InstanceInterruptionBehavior = ""
		spec.MaxSpotPrice = ""
	}

	return spec, warnings, nil
}

func projectCPUOptions(orig *cloud.InstanceSnapshot, req Request, typeChanged bool, warnings []string) (*cloud.CPUOptions, []string) {
	if req.cpuOptionsIgnored() {
		return nil, warnings
	}
	if explicit := req.explicitCPUOptions(); explicit != nil {
		return explicit, warnings
	}
	if orig.CPUOptions == nil {
		return nil, warnings
	}
	if orig.Architecture != "x86_64" {
		return nil, warnings
	}
	family := instanceFamily(orig.InstanceType)
	if cpuOptionsDisqualifiedFamilies[family] {
		return nil, warnings
	}
	if typeChanged {
		warnings = append(warnings, "cpu options not inherited: --target-instance-type changed without explicit --cpu-options")
		return nil, warnings
	}
	cp := *orig.CPUOptions
	return &cp, warnings
}

func instanceFamily(instanceType string) string {
	idx := strings.Index(instanceType, ".")
	if idx < 0 {
		return instanceType
	}
	return instanceType[:idx]
}

// projectTags renames any tag in the provider's reserved "aws:" namespace
// to "_aws:<key>" so the re-create call is not rejected, per
// SPEC_FULL.md §6.3.
func projectTags(orig map[string]string) map[string]string {
	if len(orig) == 0 {
		return nil
	}
	out := make(map[string]string, len(orig))
	for k, v := range orig {
		if strings.HasPrefix(k, "aws:") {
			out["_"+k] = v
			continue
		}
		out[k] = v
	}
	return out
}

func projectNetworkInterfaces(preserved []cloud.NetworkInterfaceDetail) []cloud.NetworkInterfaceSpec {
	specs := make([]cloud.NetworkInterfaceSpec, 0, len(preserved))
	for _, ni := range preserved {
		specs = append(specs, cloud.NetworkInterfaceSpec{
			DeviceIndex:        ni.DeviceIndex,
			NetworkInterfaceID: ni.NetworkInterfaceID,
		})
	}
	return specs
}

// projectBlockDeviceMappings applies the KMS rewrite (unencrypted entries
// only; already-encrypted entries pass through unchanged with a warning)
// to the backup AMI's own block device list. spec.md §4.3 constrains the
// mapping to the root device plus any DeleteOnTermination=true volume;
// that filtering already happened before the AMI was created (only those
// devices are in the AMI's mapping in the first place), so this function's
// job is strictly the KMS rewrite.
func projectBlockDeviceMappings(ami []cloud.BlockDeviceMapping, req Request, warnings []string) ([]cloud.BlockDeviceMapping, []string) {
	if len(ami) == 0 {
		return nil, warnings
	}
	out := make([]cloud.BlockDeviceMapping, len(ami))
	copy(out, ami)

	if req.VolumeKMSKeyID == "" {
		return out, warnings
	}

	for i := range out {
		if out[i].Encrypted {
			warnings = append(warnings, "volume "+out[i].DeviceName+" already encrypted, ignoring requested KMS key")
			continue
		}
		out[i].Encrypted = true
		out[i].KMSKeyID = req.VolumeKMSKeyID
	}
	return out, warnings
}

// projectMaxSpotPrice inherits the original spot request's MaxPrice only
// when the instance type is not changing and no explicit price was given.
func projectMaxSpotPrice(orig *cloud.SpotRequestDetail, req Request, typeChanged bool) string {
	if req.MaxSpotPrice != "" {
		return req.MaxSpotPrice
	}
	if typeChanged || orig == nil {
		return ""
	}
	return orig.MaxPrice
}
