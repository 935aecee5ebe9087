package convert

import (
	"context"
	"fmt"
)

// stepReconcileCloudWatchAlarms rewrites the InstanceId dimension of every
// matching alarm from the original instance id to the replacement's, per
// spec.md §4.6. Runs only when --update-cw-alarms was given at least one
// value; a lone "*" puts every alarm in scope (see alarmPrefixPatterns). An
// empty value is treated the same as the flag being absent: the step is
// skipped.
func stepReconcileCloudWatchAlarms(ctx context.Context, e *Executor, r *Record) Outcome {
	if len(r.Request.UpdateCWAlarms) == 0 {
		return Skipped("--update-cw-alarms not set")
	}

	alarms, err := e.Adapter.DescribeAlarms(ctx, r.Request.alarmPrefixPatterns())
	if err != nil {
		return Fatal(fmt.Errorf("reconcile_cloudwatch_alarms: %w", err))
	}

	rewritten := 0
	for _, alarm := range alarms {
		if alarm.Dimensions["InstanceId"] != r.InstanceID {
			continue
		}
		updated := alarm
		updated.Dimensions = make(map[string]string, len(alarm.Dimensions))
		for k, v := range alarm.Dimensions {
			updated.Dimensions[k] = v
		}
		updated.Dimensions["InstanceId"] = r.NewInstanceID

		if err := e.Adapter.PutMetricAlarm(ctx, updated); err != nil {
			return Fatal(fmt.Errorf("reconcile_cloudwatch_alarms: %s: %w", alarm.Name, err))
		}
		rewritten++
	}
	return Success(fmt.Sprintf("rewired %d cloudwatch alarms", rewritten))
}
