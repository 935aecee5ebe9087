package convert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/ec2spotconverter/pkg/cloud"
)

func baseSnapshot() *cloud.InstanceSnapshot {
	return &cloud.InstanceSnapshot{
		InstanceID:        "i-orig",
		ImageID:           "ami-orig",
		InstanceType:      "m5.large",
		Architecture:      "x86_64",
		AvailabilityZone:  "us-east-1a",
		RootDeviceName:    "/dev/xvda",
		KeyName:           "prod-key",
		Monitoring:        true,
		EBSOptimized:      true,
		HibernationOptions: true,
		UserData:          "I2Nsb3VkLWNvbmZpZw==",
		CPUOptions:        &cloud.CPUOptions{CoreCount: 2, ThreadsPerCore: 2},
		Tags:              map[string]string{"Name": "web-1", "aws:cloudformation:stack-name": "web-stack"},
	}
}

func TestProjectIsDeterministic(t *testing.T) {
	input := ProjectionInput{Original: baseSnapshot()}
	req := Request{TargetBillingModel: BillingSpot}

	specA, warnA, errA := Project(input, req)
	specB, warnB, errB := Project(input, req)

	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.Equal(t, specA, specB)
	assert.Equal(t, warnA, warnB)
}

func TestProjectInheritsCPUOptionsOnEligibleFamily(t *testing.T) {
	input := ProjectionInput{Original: baseSnapshot()}
	req := Request{TargetBillingModel: BillingOnDemand}

	spec, _, err := Project(input, req)
	require.NoError(t, err)
	require.NotNil(t, spec.CPUOptions)
	assert.Equal(t, int32(2), spec.CPUOptions.CoreCount)
}

func TestProjectDropsCPUOptionsOnDisqualifiedFamily(t *testing.T) {
	orig := baseSnapshot()
	orig.InstanceType = "t2.large"
	input := ProjectionInput{Original: orig}
	req := Request{TargetBillingModel: BillingOnDemand}

	spec, _, err := Project(input, req)
	require.NoError(t, err)
	assert.Nil(t, spec.CPUOptions)
}

func TestProjectDropsCPUOptionsWhenInstanceTypeChanges(t *testing.T) {
	input := ProjectionInput{Original: baseSnapshot()}
	req := Request{TargetBillingModel: BillingOnDemand, TargetInstanceType: "m5.xlarge"}

	spec, warnings, err := Project(input, req)
	require.NoError(t, err)
	assert.Nil(t, spec.CPUOptions)
	assert.NotEmpty(t, warnings)
}

func TestProjectExplicitCPUOptionsOverridesInheritance(t *testing.T) {
	input := ProjectionInput{Original: baseSnapshot()}
	req := Request{
		TargetBillingModel: BillingOnDemand,
		CPUOptions:         &CPUOptionsRequest{CoreCount: 4, ThreadsPerCore: 1, Explicit: true},
	}

	spec, _, err := Project(input, req)
	require.NoError(t, err)
	require.NotNil(t, spec.CPUOptions)
	assert.Equal(t, int32(4), spec.CPUOptions.CoreCount)
}

func TestProjectIgnoreCPUOptionsAlwaysSuppresses(t *testing.T) {
	input := ProjectionInput{Original: baseSnapshot()}
	req := Request{
		TargetBillingModel: BillingOnDemand,
		CPUOptions:         &CPUOptionsRequest{Ignore: true},
	}

	spec, _, err := Project(input, req)
	require.NoError(t, err)
	assert.Nil(t, spec.CPUOptions)
}

func TestProjectRenamesReservedTagNamespace(t *testing.T) {
	input := ProjectionInput{Original: baseSnapshot()}
	req := Request{TargetBillingModel: BillingOnDemand}

	spec, _, err := Project(input, req)
	require.NoError(t, err)
	assert.Equal(t, "web-stack", spec.Tags["_aws:cloudformation:stack-name"])
	assert.NotContains(t, spec.Tags, "aws:cloudformation:stack-name")
	assert.Equal(t, "web-1", spec.Tags["Name"])
}

func TestProjectEncryptsUnencryptedVolumesWithRequestedKMSKey(t *testing.T) {
	input := ProjectionInput{
		Original: baseSnapshot(),
		AMIBlockDeviceMappings: []cloud.BlockDeviceMapping{
			{DeviceName: "/dev/xvda", Encrypted: false},
			{DeviceName: "/dev/xvdf", Encrypted: true, KMSKeyID: "already-key"},
		},
	}
	req := Request{TargetBillingModel: BillingOnDemand, VolumeKMSKeyID: "new-key"}

	spec, warnings, err := Project(input, req)
	require.NoError(t, err)
	require.Len(t, spec.BlockDeviceMappings, 2)
	assert.True(t, spec.BlockDeviceMappings[0].Encrypted)
	assert.Equal(t, "new-key", spec.BlockDeviceMappings[0].KMSKeyID)
	assert.Equal(t, "already-key", spec.BlockDeviceMappings[1].KMSKeyID)
	assert.NotEmpty(t, warnings)
}

func TestProjectSpotBillingSetsMarketOptionsAndInheritsMaxPrice(t *testing.T) {
	input := ProjectionInput{
		Original:            baseSnapshot(),
		OriginalSpotRequest: &cloud.SpotRequestDetail{MaxPrice: "0.05"},
	}
	req := Request{TargetBillingModel: BillingSpot}

	spec, _, err := Project(input, req)
	require.NoError(t, err)
	assert.Equal(t, "spot", spec.MarketType)
	assert.Equal(t, "persistent", spec.SpotInstanceType)
	assert.Equal(t, "0.05", spec.MaxSpotPrice)
}

func TestProjectOnDemandBillingClearsMarketOptions(t *testing.T) {
	orig := baseSnapshot()
	orig.SpotInstanceRequestID = "sir-1"
	input := ProjectionInput{Original: orig}
	req := Request{TargetBillingModel: BillingOnDemand}

	spec, _, err := Project(input, req)
	require.NoError(t, err)
	assert.Empty(t, spec.MarketType)
	assert.Empty(t, spec.MaxSpotPrice)
}

func TestProjectIgnoreUserDataAndHibernationOptions(t *testing.T) {
	input := ProjectionInput{Original: baseSnapshot()}
	req := Request{
		TargetBillingModel:       BillingOnDemand,
		IgnoreUserData:           true,
		IgnoreHibernationOptions: true,
	}

	spec, _, err := Project(input, req)
	require.NoError(t, err)
	assert.Empty(t, spec.UserData)
	assert.Nil(t, spec.HibernationOptions)
}

func TestProjectPreservesNetworkInterfacesByID(t *testing.T) {
	input := ProjectionInput{
		Original: baseSnapshot(),
		PreservedNetworkInterfaces: []cloud.NetworkInterfaceDetail{
			{NetworkInterfaceID: "eni-1", DeviceIndex: 0},
			{NetworkInterfaceID: "eni-2", DeviceIndex: 1},
		},
	}
	req := Request{TargetBillingModel: BillingOnDemand}

	spec, _, err := Project(input, req)
	require.NoError(t, err)
	require.Len(t, spec.NetworkInterfaces, 2)
	assert.Equal(t, "eni-1", spec.NetworkInterfaces[0].NetworkInterfaceID)
	assert.Equal(t, "eni-2", spec.NetworkInterfaces[1].NetworkInterfaceID)
}
