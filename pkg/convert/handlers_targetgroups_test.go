package convert

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/ec2spotconverter/pkg/cloud"
)

func TestStepReconcileTargetGroupsSkippedWhenFlagAbsent(t *testing.T) {
	fake := newFixture()
	e := newExecutor(fake, nil)

	r := NewRecord(origInstanceID, Request{}, time.Now())
	outcome := stepReconcileTargetGroups(context.Background(), e, r)

	require.True(t, outcome.IsSkipped())
}

func TestStepReconcileTargetGroupsExplicitARN(t *testing.T) {
	fake := newFixture()
	fake.SeedTargetGroup(cloud.TargetGroupInfo{ARN: "arn:tg:one", Port: 80})
	fake.SeedTargetHealth("arn:tg:one", origInstanceID, "healthy")
	fake.SeedTargetHealth("arn:tg:one", "i-new0000000000", "healthy")
	e := newExecutor(fake, nil)

	r := NewRecord(origInstanceID, Request{}, time.Now())
	r.NewInstanceID = "i-new0000000000"
	r.Request = Request{
		CheckTargetGroups:    []string{"arn:tg:one"},
		CheckTargetGroupsSet: true,
	}

	outcome := stepReconcileTargetGroups(context.Background(), e, r)
	require.True(t, outcome.IsSuccess())
	require.Len(t, r.OriginalTargetGroups, 1)
	assert.Equal(t, "arn:tg:one", r.OriginalTargetGroups[0].ARN)
}

// TestStepReconcileTargetGroupsExplicitlyEmptyMeansAll covers the
// scope-widening semantics of passing --check-targetgroups with no ARNs:
// every target group the instance is currently registered in, not "off".
func TestStepReconcileTargetGroupsExplicitlyEmptyMeansAll(t *testing.T) {
	fake := newFixture()
	fake.SeedTargetGroup(cloud.TargetGroupInfo{ARN: "arn:tg:one", Port: 80})
	fake.SeedTargetGroup(cloud.TargetGroupInfo{ARN: "arn:tg:two", Port: 8080})
	fake.SeedTargetHealth("arn:tg:one", origInstanceID, "healthy")
	fake.SeedTargetHealth("arn:tg:one", "i-new0000000000", "healthy")
	// tg:two never registered the instance, so it must not show up.
	e := newExecutor(fake, nil)

	r := NewRecord(origInstanceID, Request{}, time.Now())
	r.NewInstanceID = "i-new0000000000"
	r.Request = Request{
		CheckTargetGroupsSet: true,
	}

	outcome := stepReconcileTargetGroups(context.Background(), e, r)
	require.True(t, outcome.IsSuccess())
	require.Len(t, r.OriginalTargetGroups, 1)
	assert.Equal(t, "arn:tg:one", r.OriginalTargetGroups[0].ARN)
}
