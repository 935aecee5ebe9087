package convert

import (
	"context"
	"fmt"

	"github.com/3leaps/ec2spotconverter/pkg/cloud"
)

// stepReconcileTargetGroups moves load-balancer target group membership
// from the original instance to its replacement: deregister the old
// registration, register the new one at the same port, then wait for the
// new registration to reach one of the accepted health states. Runs only
// when --check-targetgroups was given; passing it with no ARNs means every
// target group the instance is currently registered in, not "off".
func stepReconcileTargetGroups(ctx context.Context, e *Executor, r *Record) Outcome {
	if !r.Request.CheckTargetGroupsSet {
		return Skipped("--check-targetgroups not set")
	}

	var groups []cloud.TargetGroupInfo
	var err error
	if r.Request.targetGroupFilterIsAll() {
		groups, err = e.Adapter.DescribeTargetGroupsForInstance(ctx, r.InstanceID)
	} else {
		groups, err = e.Adapter.ResolveTargetGroups(ctx, r.Request.CheckTargetGroups)
	}
	if err != nil {
		return Fatal(fmt.Errorf("reconcile_target_groups: %w", err))
	}
	r.OriginalTargetGroups = groups

	reconciled := 0
	for _, tg := range groups {
		health, err := e.Adapter.DescribeTargetHealth(ctx, tg.ARN, r.InstanceID)
		if err != nil {
			return Fatal(fmt.Errorf("reconcile_target_groups: %s: %w", tg.ARN, err))
		}
		if health != "unused" {
			if err := e.Adapter.DeregisterTarget(ctx, tg.ARN, r.InstanceID, tg.Port); err != nil {
				return Fatal(fmt.Errorf("reconcile_target_groups: deregister %s: %w", tg.ARN, err))
			}
		}

		newHealth, err := e.Adapter.DescribeTargetHealth(ctx, tg.ARN, r.NewInstanceID)
		if err != nil {
			return Fatal(fmt.Errorf("reconcile_target_groups: %s: %w", tg.ARN, err))
		}
		if newHealth == "unused" {
			if err := e.Adapter.RegisterTarget(ctx, tg.ARN, r.NewInstanceID, tg.Port); err != nil {
				return Fatal(fmt.Errorf("reconcile_target_groups: register %s: %w", tg.ARN, err))
			}
		}

		accepted := acceptedStates(r.Request.waitForTGStates())
		arn := tg.ARN
		err = e.poll(ctx, targetGroupPollInterval, targetGroupTimeout, func() (bool, error) {
			h, err := e.Adapter.DescribeTargetHealth(ctx, arn, r.NewInstanceID)
			if err != nil {
				return false, err
			}
			return accepted[h], nil
		})
		if err != nil {
			return Fatal(fmt.Errorf("reconcile_target_groups: waiting for %s health: %w", tg.ARN, err))
		}
		reconciled++
	}
	return Success(fmt.Sprintf("reconciled %d target groups", reconciled))
}

func acceptedStates(states []string) map[string]bool {
	m := make(map[string]bool, len(states))
	for _, s := range states {
		m[s] = true
	}
	return m
}
