package convert

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/ec2spotconverter/pkg/cloud"
	"github.com/3leaps/ec2spotconverter/pkg/cloud/cloudtest"
	"github.com/3leaps/ec2spotconverter/pkg/jobstore"
)

const origInstanceID = "i-orig0000000000"

func newFixture() *cloudtest.Fake {
	fake := cloudtest.New()
	fake.SeedInstance(cloud.InstanceSnapshot{
		InstanceID:     origInstanceID,
		ImageID:        "ami-base",
		InstanceType:   "m5.large",
		Architecture:   "x86_64",
		State:          "running",
		RootDeviceName: "/dev/xvda",
		NetworkInterfaceIDs: []string{"eni-1"},
	})
	fake.SeedVolume(origInstanceID, cloud.VolumeDetail{
		VolumeID: "vol-root", DeviceName: "/dev/xvda", DeleteOnTermination: true, SizeGiB: 8, VolumeType: "gp3",
	})
	fake.SeedVolume(origInstanceID, cloud.VolumeDetail{
		VolumeID: "vol-data", DeviceName: "/dev/xvdf", DeleteOnTermination: false, SizeGiB: 20, VolumeType: "gp3",
	})
	fake.SeedENI(origInstanceID, cloud.NetworkInterfaceDetail{
		NetworkInterfaceID: "eni-1", AttachmentID: "eni-attach-1", DeviceIndex: 0, DeleteOnTermination: true,
	})
	return fake
}

func newExecutor(fake *cloudtest.Fake, store jobstore.Store) *Executor {
	return &Executor{
		Adapter: fake,
		Store:   store,
		Clock:   cloudtest.NewFakeClock(),
	}
}

func TestRunHappyPathOnDemandToSpot(t *testing.T) {
	fake := newFixture()
	store := jobstore.NewMemory()
	e := newExecutor(fake, store)

	req := Request{
		InstanceID:         origInstanceID,
		TargetBillingModel: BillingSpot,
		StopInstance:       true,
		RebootIfNeeded:     true,
	}

	record, err := e.Run(context.Background(), origInstanceID, req)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, record.ConversionStatus)
	assert.NotEmpty(t, record.NewInstanceID)
	assert.NotEqual(t, origInstanceID, record.NewInstanceID)
	assert.Equal(t, BillingOnDemand, record.SourceBillingModel)
	assert.Equal(t, BillingSpot, record.TargetBillingModel)
	assert.NotEmpty(t, record.AMIID)

	newState := fake.InstanceState(record.NewInstanceID)
	assert.Equal(t, "running", newState)

	assert.Equal(t, "terminated", fake.InstanceState(origInstanceID))

	// The reattached data volume should have moved to the new instance.
	attached, err := fake.VolumeAttachedToInstance(context.Background(), "vol-data", record.NewInstanceID)
	require.NoError(t, err)
	assert.True(t, attached)

	// untag_resources should have stripped the job tag from the surviving resources.
	assert.NotContains(t, fake.Tags(record.NewInstanceID), jobTagKey)
}

func TestRunIdempotentReplayDoesNotRelaunch(t *testing.T) {
	fake := newFixture()
	store := jobstore.NewMemory()
	e := newExecutor(fake, store)

	req := Request{
		InstanceID:         origInstanceID,
		TargetBillingModel: BillingSpot,
		StopInstance:       true,
	}

	first, err := e.Run(context.Background(), origInstanceID, req)
	require.NoError(t, err)

	second, err := e.Run(context.Background(), origInstanceID, req)
	require.NoError(t, err)

	assert.Equal(t, first.NewInstanceID, second.NewInstanceID)
	assert.Equal(t, StatusSuccess, second.ConversionStatus)
}

// flakyAdapter wraps a cloud.Adapter and fails the first call to
// TerminateInstance, simulating a crash immediately after the executor
// attempted the original instance's irreversible step.
type flakyAdapter struct {
	cloud.Adapter
	terminateFailed bool
}

func (f *flakyAdapter) TerminateInstance(ctx context.Context, instanceID string) error {
	if !f.terminateFailed {
		f.terminateFailed = true
		return assert.AnError
	}
	return f.Adapter.TerminateInstance(ctx, instanceID)
}

func TestRunCrashResumeContinuesFromLastSuccessfulStep(t *testing.T) {
	fake := newFixture()
	store := jobstore.NewMemory()
	flaky := &flakyAdapter{Adapter: fake}

	e := &Executor{Adapter: flaky, Store: store, Clock: cloudtest.NewFakeClock()}
	req := Request{
		InstanceID:         origInstanceID,
		TargetBillingModel: BillingSpot,
		StopInstance:       true,
	}

	_, err := e.Run(context.Background(), origInstanceID, req)
	require.Error(t, err)

	raw, loadErr := store.Load(context.Background(), origInstanceID)
	require.NoError(t, loadErr)
	mid, err := UnmarshalRecord(raw)
	require.NoError(t, err)
	assert.Equal(t, "checkpoint_instance_state", mid.LastSuccessfulStepName)
	assert.NotNil(t, mid.InstanceStateCheckpoint)
	assert.Empty(t, mid.NewInstanceID)

	// Resume with a fresh executor against the same store/adapter, as a
	// new invocation of the tool after a crash would.
	e2 := &Executor{Adapter: flaky, Store: store, Clock: cloudtest.NewFakeClock()}
	record, err := e2.Run(context.Background(), origInstanceID, req)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, record.ConversionStatus)
	assert.NotEmpty(t, record.NewInstanceID)
}

func TestRunRefusesSelfConversion(t *testing.T) {
	fake := newFixture()
	fake.SelfInstanceID = origInstanceID
	store := jobstore.NewMemory()
	e := newExecutor(fake, store)

	_, err := e.Run(context.Background(), origInstanceID, Request{
		InstanceID:         origInstanceID,
		TargetBillingModel: BillingSpot,
		StopInstance:       true,
	})
	require.Error(t, err)
}

func TestRunRefusesWhenTerminationProtected(t *testing.T) {
	fake := newFixture()
	fake.SetTerminationProtection(origInstanceID, true)
	store := jobstore.NewMemory()
	e := newExecutor(fake, store)

	_, err := e.Run(context.Background(), origInstanceID, Request{
		InstanceID:         origInstanceID,
		TargetBillingModel: BillingSpot,
		StopInstance:       true,
	})
	require.Error(t, err)
}

func TestRunRefusesNoOpConversionWithoutForce(t *testing.T) {
	fake := newFixture()
	store := jobstore.NewMemory()
	e := newExecutor(fake, store)

	_, err := e.Run(context.Background(), origInstanceID, Request{
		InstanceID:         origInstanceID,
		TargetBillingModel: BillingOnDemand,
		StopInstance:       true,
	})
	require.Error(t, err)
}
