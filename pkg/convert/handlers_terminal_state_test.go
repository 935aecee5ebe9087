package convert

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/ec2spotconverter/pkg/cloud"
)

// TestStepWaitAMIReadyRewindsOnFailedImage covers the terminal-bad-state
// path: an AMI that reaches "failed" must be noticed on the very first
// poll, not only after the full wait_ami_ready timeout elapses.
func TestStepWaitAMIReadyRewindsOnFailedImage(t *testing.T) {
	fake := newFixture()
	e := newExecutor(fake, nil)

	imageID, err := fake.CreateImageNoReboot(context.Background(), origInstanceID, "some-ami", nil)
	require.NoError(t, err)
	fake.SetImageState(imageID, "failed")

	r := NewRecord(origInstanceID, Request{}, time.Now())
	r.AMIID = imageID
	r.LastSuccessfulStepName = "start_ami_creation"

	outcome := stepWaitAMIReady(context.Background(), e, r)

	require.True(t, outcome.IsFatal())
	assert.ErrorContains(t, outcome.Err, "failed state")
	assert.Empty(t, r.AMIID)
	assert.Nil(t, r.AMICreationDate)

	idx := stepIndex("start_ami_creation")
	if idx == 0 {
		assert.Empty(t, r.LastSuccessfulStepName)
	} else {
		assert.Equal(t, stepRegistry[idx-1].Name, r.LastSuccessfulStepName)
	}

	_, derErr := fake.DescribeImage(context.Background(), imageID)
	assert.Error(t, derErr, "failed image should have been deregistered")
}

// TestStepWaitNewInstanceRunningRewindsOnTerminatedInstance covers the
// same terminal-bad-state shape for the replacement instance: a launch
// that lands in "terminated" must break the poll immediately rather than
// running out newInstanceTimeout.
func TestStepWaitNewInstanceRunningRewindsOnTerminatedInstance(t *testing.T) {
	fake := newFixture()
	e := newExecutor(fake, nil)

	newID, err := fake.RunInstance(context.Background(), cloud.LaunchSpec{ImageID: "ami-base", InstanceType: "m5.large"})
	require.NoError(t, err)
	fake.SetInstanceState(newID, "terminated")

	r := NewRecord(origInstanceID, Request{}, time.Now())
	r.NewInstanceID = newID
	r.LastSuccessfulStepName = "create_new_instance"

	outcome := stepWaitNewInstanceRunning(context.Background(), e, r)

	require.True(t, outcome.IsFatal())
	assert.ErrorContains(t, outcome.Err, "replacement instance terminated")
	assert.Empty(t, r.NewInstanceID)

	idx := stepIndex("create_new_instance")
	if idx == 0 {
		assert.Empty(t, r.LastSuccessfulStepName)
	} else {
		assert.Equal(t, stepRegistry[idx-1].Name, r.LastSuccessfulStepName)
	}
}
