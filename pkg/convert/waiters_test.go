package convert

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/ec2spotconverter/pkg/cloud/cloudtest"
)

func TestPollUsesRequestedIntervalByDefault(t *testing.T) {
	clock := cloudtest.NewFakeClock()
	e := &Executor{Clock: clock}
	start := clock.Now()

	calls := 0
	err := e.poll(context.Background(), 5*time.Second, time.Minute, func() (bool, error) {
		calls++
		return calls == 3, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2*5*time.Second, clock.Now().Sub(start))
}

func TestPollHonorsExecutorPollIntervalOverride(t *testing.T) {
	clock := cloudtest.NewFakeClock()
	e := &Executor{Clock: clock, PollInterval: 1 * time.Second}
	start := clock.Now()

	calls := 0
	err := e.poll(context.Background(), 20*time.Second, time.Minute, func() (bool, error) {
		calls++
		return calls == 3, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2*1*time.Second, clock.Now().Sub(start))
}

func TestPollTimesOut(t *testing.T) {
	clock := cloudtest.NewFakeClock()
	e := &Executor{Clock: clock}

	err := e.poll(context.Background(), 5*time.Second, 12*time.Second, func() (bool, error) {
		return false, nil
	})

	assert.Error(t, err)
}

func TestPollPropagatesCheckError(t *testing.T) {
	clock := cloudtest.NewFakeClock()
	e := &Executor{Clock: clock}
	boom := assert.AnError

	err := e.poll(context.Background(), time.Second, time.Minute, func() (bool, error) {
		return false, boom
	})

	assert.ErrorIs(t, err, boom)
}
