package convert

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// errTerminalState signals that a poll's check observed a terminal state
// that will never become the desired one (e.g. an AMI that reached
// "failed", an instance that reached "terminated"). Returning it from a
// check function makes poll return immediately instead of waiting out the
// full timeout; the caller distinguishes it from a plain timeout with
// errors.Is and handles the terminal state itself (deregistering an image,
// rewinding a step).
var errTerminalState = errors.New("observed terminal state")

// poll calls check at interval until it reports done, an error, or timeout
// elapses. Waiter policy per spec.md §4.5: fixed cadence, overall timeout,
// fatal for the current invocation but safely retryable on the next.
func (e *Executor) poll(ctx context.Context, interval, timeout time.Duration, check func() (bool, error)) error {
	if e.PollInterval > 0 {
		interval = e.PollInterval
	}
	clock := e.clock()
	deadline := clock.Now().Add(timeout)

	for {
		done, err := check()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if clock.Now().After(deadline) {
			return fmt.Errorf("timed out after %s", timeout)
		}
		if err := clock.Sleep(ctx, interval); err != nil {
			return err
		}
	}
}

const (
	instanceStatePollInterval = 15 * time.Second
	instanceStateTimeout      = 10 * time.Minute

	amiPollInterval = 20 * time.Second
	amiTimeout      = 4 * time.Hour

	volumeDetachPollInterval = 5 * time.Second
	volumeDetachTimeout      = 300 * time.Second
	volumeDetachSettleDelay  = 1 * time.Second

	targetGroupPollInterval = 10 * time.Second
	targetGroupTimeout      = 5 * time.Minute

	eniReleasePollInterval = 5 * time.Second
	eniReleaseTimeout      = 5 * time.Minute

	terminatedPollInterval = 5 * time.Second
	terminatedTimeout      = 10 * time.Minute

	newInstancePollInterval = 10 * time.Second
	newInstanceTimeout      = 10 * time.Minute
)
