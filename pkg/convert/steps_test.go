package convert

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStepIndexFindsCanonicalSteps(t *testing.T) {
	assert.Equal(t, 0, stepIndex("read_state_table"))
	assert.Equal(t, len(stepRegistry)-1, stepIndex("deregister_image"))
	assert.Equal(t, -1, stepIndex("not_a_real_step"))
}

func TestResumeIndexEmptyStartsFromScratch(t *testing.T) {
	assert.Equal(t, 0, resumeIndex(""))
}

func TestResumeIndexResumesAfterLastSuccessfulStep(t *testing.T) {
	idx := stepIndex("checkpoint_instance_state")
	assert.Equal(t, idx+1, resumeIndex("checkpoint_instance_state"))
}

func TestResumeIndexUnknownStepNameStartsFromScratch(t *testing.T) {
	assert.Equal(t, 0, resumeIndex("some_step_that_was_renamed"))
}

func TestRewindToFirstStepClearsLastSuccessfulStep(t *testing.T) {
	r := &Record{LastSuccessfulStepName: "untag_resources"}
	rewindTo(r, "read_state_table")
	assert.Empty(t, r.LastSuccessfulStepName)
}

func TestRewindToMidStepSetsPredecessor(t *testing.T) {
	r := &Record{LastSuccessfulStepName: "deregister_image"}
	rewindTo(r, "create_new_instance")
	idx := stepIndex("create_new_instance")
	assert.Equal(t, stepRegistry[idx-1].Name, r.LastSuccessfulStepName)
}

func TestCheckpointStepIndexOrdersBeforeIrreversibleSteps(t *testing.T) {
	assert.True(t, checkpointStepIndex < stepIndex("terminate_instance"))
	assert.True(t, checkpointStepIndex > stepIndex("wait_ami_ready"))
}

func TestAdditiveConditionalStepsComeBeforeUntagResources(t *testing.T) {
	untag := stepIndex("untag_resources")
	assert.Less(t, stepIndex("reconcile_target_groups"), untag)
	assert.Less(t, stepIndex("reconcile_cloudwatch_alarms"), untag)
}
