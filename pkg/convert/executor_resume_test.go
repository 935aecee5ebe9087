package convert

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/ec2spotconverter/pkg/jobstore"
)

// TestRunReplayOfSuccessDoesNotReapplyPreconditions covers the invariant
// that a second invocation against an already-succeeded job is a no-op,
// even without --stop-instance: the original instance is terminated by
// then, so re-running ApplyPreconditions against it would otherwise fail
// the stopped-state requirement.
func TestRunReplayOfSuccessDoesNotReapplyPreconditions(t *testing.T) {
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
	require.Equal(t, StatusSuccess, first.ConversionStatus)

	replay := req
	replay.StopInstance = false

	second, err := e.Run(context.Background(), origInstanceID, replay)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, second.ConversionStatus)
	assert.Equal(t, first.NewInstanceID, second.NewInstanceID)
}

// TestRunDeleteAMIReplayDeregistersImage covers a --delete-ami pass run
// after a conversion already succeeded without it: deregister_image was
// only Skipped the first time, so the replay must rewind to it and run it
// for real rather than treating the job as fully done.
func TestRunDeleteAMIReplayDeregistersImage(t *testing.T) {
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
	require.NotEmpty(t, first.AMIID)

	_, derErr := fake.DescribeImage(context.Background(), first.AMIID)
	require.NoError(t, derErr, "ami should still exist after a run without --delete-ami")

	withDelete := req
	withDelete.DeleteAMI = true

	second, err := e.Run(context.Background(), origInstanceID, withDelete)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, second.ConversionStatus)

	_, derErr = fake.DescribeImage(context.Background(), first.AMIID)
	assert.Error(t, derErr, "ami should have been deregistered on the --delete-ami replay")
}
