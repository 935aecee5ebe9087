package awsadapter

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/bmatcuk/doublestar/v4"

	"github.com/3leaps/ec2spotconverter/pkg/cloud"
)

// DescribeAlarms lists every metric alarm, then keeps only those whose name
// starts with one of prefixes or matches it as a glob pattern (doublestar,
// the way pkg/scope uses it for path matching against a rule set). CloudWatch's own
// AlarmNamePrefix filter only supports a single literal prefix per call, so
// broader glob matching happens client-side.
func (a *Adapter) DescribeAlarms(ctx context.Context, prefixes []string) ([]cloud.AlarmInfo, error) {
	var infos []cloud.AlarmInfo
	paginator := cloudwatch.NewDescribeAlarmsPaginator(a.cw, &cloudwatch.DescribeAlarmsInput{
		AlarmTypes: []types.AlarmType{types.AlarmTypeMetricAlarm},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, wrapError("DescribeAlarms", "", err)
		}
		for _, al := range page.MetricAlarms {
			name := aws.ToString(al.AlarmName)
			if !matchesAnyPrefix(name, prefixes) {
				continue
			}
			infos = append(infos, alarmInfoFromMetricAlarm(al))
		}
	}
	return infos, nil
}

func matchesAnyPrefix(name string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
		if ok, err := doublestar.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}

func alarmInfoFromMetricAlarm(al types.MetricAlarm) cloud.AlarmInfo {
	info := cloud.AlarmInfo{
		Name:                    aws.ToString(al.AlarmName),
		Namespace:               aws.ToString(al.Namespace),
		MetricName:              aws.ToString(al.MetricName),
		Description:             aws.ToString(al.AlarmDescription),
		ActionsEnabled:          aws.ToBool(al.ActionsEnabled),
		OKActions:               al.OKActions,
		AlarmActions:            al.AlarmActions,
		InsufficientDataActions: al.InsufficientDataActions,
		Statistic:               string(al.Statistic),
		ExtendedStatistic:       aws.ToString(al.ExtendedStatistic),
		Period:                  aws.ToInt32(al.Period),
		Unit:                    string(al.Unit),
		EvaluationPeriods:       aws.ToInt32(al.EvaluationPeriods),
		DatapointsToAlarm:       aws.ToInt32(al.DatapointsToAlarm),
		Threshold:               aws.ToFloat64(al.Threshold),
		ComparisonOperator:      string(al.ComparisonOperator),
		TreatMissingData:        aws.ToString(al.TreatMissingData),
		EvaluateLowSampleCountPercentile: aws.ToString(al.EvaluateLowSampleCountPercentile),
	}
	info.Dimensions = make(map[string]string, len(al.Dimensions))
	for _, d := range al.Dimensions {
		info.Dimensions[aws.ToString(d.Name)] = aws.ToString(d.Value)
	}
	return info
}

// PutMetricAlarm rewrites an alarm's dimensions (and every other field
// DescribeAlarms captured), the way reconcile_cloudwatch_alarms swaps the
// old instance id for the new one while leaving thresholds and actions
// untouched.
func (a *Adapter) PutMetricAlarm(ctx context.Context, alarm cloud.AlarmInfo) error {
	if err := a.wait(ctx); err != nil {
		return err
	}

	dims := make([]types.Dimension, 0, len(alarm.Dimensions))
	for k, v := range alarm.Dimensions {
		dims = append(dims, types.Dimension{Name: aws.String(k), Value: aws.String(v)})
	}

	input := &cloudwatch.PutMetricAlarmInput{
		AlarmName:          aws.String(alarm.Name),
		Namespace:          aws.String(alarm.Namespace),
		MetricName:         aws.String(alarm.MetricName),
		Dimensions:         dims,
		AlarmDescription:   aws.String(alarm.Description),
		ActionsEnabled:     aws.Bool(alarm.ActionsEnabled),
		OKActions:          alarm.OKActions,
		AlarmActions:       alarm.AlarmActions,
		InsufficientDataActions: alarm.InsufficientDataActions,
		Period:             aws.Int32(alarm.Period),
		EvaluationPeriods:  aws.Int32(alarm.EvaluationPeriods),
		Threshold:          aws.Float64(alarm.Threshold),
		ComparisonOperator: types.ComparisonOperator(alarm.ComparisonOperator),
	}
	if alarm.Statistic != "" {
		input.Statistic = types.Statistic(alarm.Statistic)
	}
	if alarm.ExtendedStatistic != "" {
		input.ExtendedStatistic = aws.String(alarm.ExtendedStatistic)
	}
	if alarm.Unit != "" {
		input.Unit = types.StandardUnit(alarm.Unit)
	}
	if alarm.DatapointsToAlarm != 0 {
		input.DatapointsToAlarm = aws.Int32(alarm.DatapointsToAlarm)
	}
	if alarm.TreatMissingData != "" {
		input.TreatMissingData = aws.String(alarm.TreatMissingData)
	}
	if alarm.EvaluateLowSampleCountPercentile != "" {
		input.EvaluateLowSampleCountPercentile = aws.String(alarm.EvaluateLowSampleCountPercentile)
	}

	_, err := a.cw.PutMetricAlarm(ctx, input)
	return wrapError("PutMetricAlarm", alarm.Name, err)
}
