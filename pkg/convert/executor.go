package convert

import (
	"context"
	"fmt"
	"io"
	"os"
	"reflect"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	convErrors "github.com/3leaps/ec2spotconverter/internal/errors"
	"github.com/3leaps/ec2spotconverter/pkg/cloud"
	"github.com/3leaps/ec2spotconverter/pkg/jobstore"
	"github.com/3leaps/ec2spotconverter/pkg/output"
)

// MajorWarningPause is the default pause spec.md §4.7 prescribes after a
// major warning, unless --do-not-pause-on-major-warnings is set.
const MajorWarningPause = 10 * time.Second

// Executor is C5: it loads the record, computes the resume point, drives
// the step registry to completion, and checkpoints after every step.
type Executor struct {
	Adapter cloud.Adapter
	Store   jobstore.Store
	Clock   cloud.Clock
	Logger  *zap.Logger
	Out     io.Writer

	// Sink, if set, receives a machine-readable JSONL record for every
	// step transition and the final summary, alongside (not instead of)
	// the human-readable lines written to Out.
	Sink output.Writer

	MajorWarningPause time.Duration

	// PollInterval, if set, overrides every waiter's default cadence
	// (waiters.go's per-resource constants). Each waiter's own timeout is
	// unaffected.
	PollInterval time.Duration
}

func (e *Executor) sinkStep(ctx context.Context, index, total int, step Step, outcome output.StepOutcome, message string) {
	if e.Sink == nil {
		return
	}
	_ = e.Sink.WriteStep(ctx, &output.StepRecord{
		Index:       index + 1,
		Total:       total,
		Name:        step.Name,
		Description: step.ShortDescription,
		Outcome:     outcome,
		Message:     message,
	})
}

func (e *Executor) clock() cloud.Clock {
	if e.Clock == nil {
		return cloud.RealClock{}
	}
	return e.Clock
}

func (e *Executor) out() io.Writer {
	if e.Out == nil {
		return os.Stdout
	}
	return e.Out
}

func (e *Executor) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e *Executor) printf(format string, args ...any) {
	fmt.Fprintf(e.out(), format+"\n", args...)
}

// Run implements spec.md §4.5's contract in full, supplemented per
// SPEC_FULL.md §6.5 (cmdline-drift warning, RECOVERED STATE replay,
// reset-all/reset-step-1 fresh-record reset, context-aware major-warning pause).
func (e *Executor) Run(ctx context.Context, instanceID string, req Request) (*Record, error) {
	if err := e.Store.EnsureTable(ctx); err != nil {
		return nil, convErrors.Persistence("ensure_table", err)
	}

	record, err := e.loadOrCreate(ctx, instanceID, req)
	if err != nil {
		return nil, err
	}

	// A record already marked success is replayed without re-validating the
	// original instance: ApplyPreconditions assumes that instance still
	// exists, which is false once a conversion has finished. --reset-all and
	// --reset-step still force full re-validation since they reopen the job.
	if record.ConversionStatus == StatusSuccess && req.ResetStep == "" && !req.ResetAll {
		if !req.DeleteAMI {
			e.replaySuccess(record)
			return record, nil
		}
		// DeleteAMI on an already-successful record: deregister_image only
		// ran as Skipped the first time (--delete-ami wasn't set then), so
		// the checkpoint needs rewinding before resumeIndex is computed or
		// it resolves past the end of stepRegistry and the step never runs.
		record.Request = req
		rewindTo(record, "deregister_image")
		return e.runSteps(ctx, record, req)
	}

	warnings, err := ApplyPreconditions(ctx, e.Adapter, record, req)
	if err != nil {
		return record, err
	}
	for _, w := range warnings {
		record.AddWarning(w)
	}
	if len(warnings) > 0 && !req.DoNotPauseOnMajorWarnings {
		if err := e.clock().Sleep(ctx, e.pauseDuration()); err != nil {
			return record, err
		}
	}

	if req.ResetAll || req.ResetStep == stepRegistry[0].Name {
		record = NewRecord(instanceID, req, time.Now())
		record.JobID = instanceID
		if err := e.persist(ctx, record); err != nil {
			return record, err
		}
	} else if req.ResetStep != "" {
		if err := e.applyResetStep(record, req); err != nil {
			return record, err
		}
		if err := e.persist(ctx, record); err != nil {
			return record, err
		}
	}

	record.Request = req

	return e.runSteps(ctx, record, req)
}

// runSteps replays recovered steps, then drives stepRegistry to completion
// from record.LastSuccessfulStepName, checkpointing after every step.
func (e *Executor) runSteps(ctx context.Context, record *Record, req Request) (*Record, error) {
	start := resumeIndex(record.LastSuccessfulStepName)
	total := len(stepRegistry)

	for k := 0; k < start; k++ {
		step := stepRegistry[k]
		e.printf("[STEP %d/%d] %s... => RECOVERED STATE. SKIPPED!", k+1, total, step.ShortDescription)
		e.sinkStep(ctx, k, total, step, output.StepOutcomeRecovered, "recovered state")
		e.warnOnCmdlineDrift(record, step.Name, req)
	}

	for k := start; k < total; k++ {
		step := stepRegistry[k]
		e.printf("[STEP %d/%d] %s...", k+1, total, step.ShortDescription)

		record.NoteStepCmdlineArgs(step.Name, req)

		outcome := step.Action(ctx, e, record)

		switch {
		case outcome.IsSuccess():
			record.LastSuccessfulStepName = step.Name
			record.LastUpdateDate = time.Now()
			record.StepCount++
			if err := e.persist(ctx, record); err != nil {
				return record, err
			}
			e.printf("=> SUCCESS. %s", outcome.Message)
			e.sinkStep(ctx, k, total, step, output.StepOutcomeSuccess, outcome.Message)

		case outcome.IsSkipped():
			record.LastSuccessfulStepName = step.Name
			record.LastUpdateDate = time.Now()
			record.StepCount++
			if err := e.persist(ctx, record); err != nil {
				return record, err
			}
			e.printf("=> SKIPPED! %s", outcome.Message)
			e.sinkStep(ctx, k, total, step, output.StepOutcomeSkipped, outcome.Message)

		case outcome.IsFatal():
			if err := e.persist(ctx, record); err != nil {
				return record, err
			}
			e.printf("=> FAILED. %s", outcome.Err)
			classified := outcome.Err
			if convErrors.KindOf(classified) == "" {
				if k > checkpointStepIndex {
					classified = convErrors.Irreversible(step.Name, outcome.Err)
				} else {
					classified = convErrors.StepFailure(step.Name, outcome.Err)
				}
			}
			e.sinkStep(ctx, k, total, step, output.StepOutcomeFatal, outcome.Err.Error())
			e.sinkError(ctx, classified)
			return record, classified

		default:
			if err := e.persist(ctx, record); err != nil {
				return record, err
			}
			e.printf("=> INCOMPLETE. Will resume at %q on next invocation.", step.Name)
			waiterErr := convErrors.WaiterTimeout(step.Name, fmt.Errorf("step did not complete"))
			e.sinkStep(ctx, k, total, step, output.StepOutcomeIncomplete, "step did not complete")
			e.sinkError(ctx, waiterErr)
			return record, waiterErr
		}
	}

	now := time.Now()
	record.ConversionStatus = StatusSuccess
	record.EndDate = &now
	if err := e.persist(ctx, record); err != nil {
		return record, err
	}

	e.printWarnings(record)
	e.sinkWarnings(ctx, record)
	e.sinkSummary(ctx, record)
	return record, nil
}

func (e *Executor) sinkError(ctx context.Context, err error) {
	if e.Sink == nil || err == nil {
		return
	}
	var kind, op string
	if ce, ok := err.(*convErrors.Error); ok {
		kind, op = string(ce.Kind), ce.Op
	}
	_ = e.Sink.WriteError(ctx, &output.ErrorRecord{Kind: kind, Op: op, Message: err.Error()})
}

func (e *Executor) sinkWarnings(ctx context.Context, record *Record) {
	if e.Sink == nil {
		return
	}
	for _, w := range record.Warnings {
		_ = e.Sink.WriteWarning(ctx, &output.WarningRecord{Message: w})
	}
}

func (e *Executor) sinkSummary(ctx context.Context, record *Record) {
	if e.Sink == nil {
		return
	}
	dur := record.LastUpdateDate.Sub(record.StartDate)
	_ = e.Sink.WriteSummary(ctx, &output.SummaryRecord{
		Status:        string(record.ConversionStatus),
		NewInstanceID: record.NewInstanceID,
		AMIID:         record.AMIID,
		StepCount:     record.StepCount,
		Duration:      dur,
		DurationHuman: dur.String(),
		WarningCount:  len(record.Warnings),
	})
}

func (e *Executor) pauseDuration() time.Duration {
	if e.MajorWarningPause > 0 {
		return e.MajorWarningPause
	}
	return MajorWarningPause
}

func (e *Executor) loadOrCreate(ctx context.Context, instanceID string, req Request) (*Record, error) {
	raw, err := e.Store.Load(ctx, instanceID)
	if err == jobstore.ErrNotFound {
		r := NewRecord(instanceID, req, time.Now())
		r.JobID = instanceID
		return r, nil
	}
	if err != nil {
		return nil, convErrors.Persistence("load", err)
	}
	record, err := UnmarshalRecord(raw)
	if err != nil {
		return nil, convErrors.Persistence("unmarshal", err)
	}
	return record, nil
}

func (e *Executor) persist(ctx context.Context, record *Record) error {
	raw, err := record.MarshalForStore()
	if err != nil {
		return convErrors.Persistence("marshal", err)
	}
	if err := e.Store.Save(ctx, record.InstanceID, raw); err != nil {
		return convErrors.Persistence("save", err)
	}
	return nil
}

// applyResetStep rewrites last_successful_step_name to the step preceding
// the requested target. Resets past checkpoint_instance_state are refused
// unless --force, since spec.md §4.5 calls those steps irreversible.
func (e *Executor) applyResetStep(record *Record, req Request) error {
	idx := stepIndex(req.ResetStep)
	if idx < 0 {
		return convErrors.Precondition("reset_step", fmt.Errorf("unknown step %q", req.ResetStep))
	}
	currentIdx := stepIndex(record.LastSuccessfulStepName)
	if idx <= checkpointStepIndex && currentIdx > checkpointStepIndex && !req.Force {
		return convErrors.Precondition("reset_step", fmt.Errorf(
			"refusing to reset to %q across checkpoint_instance_state without --force", req.ResetStep))
	}
	rewindTo(record, req.ResetStep)
	return nil
}

func (e *Executor) warnOnCmdlineDrift(record *Record, step string, req Request) {
	prev, ok := record.ConversionStepCmdlineArgs[step]
	if !ok {
		return
	}
	if !reflect.DeepEqual(prev, req) {
		e.logger().Warn("command-line arguments changed since this step last ran",
			zap.String("step", step))
	}
}

func (e *Executor) replaySuccess(record *Record) {
	total := len(stepRegistry)
	for k, step := range stepRegistry {
		e.printf("[STEP %d/%d] %s... => RECOVERED STATE. SKIPPED!", k+1, total, step.ShortDescription)
	}
	e.printf("Conversion already completed for %s (new instance %s).", record.InstanceID, record.NewInstanceID)
	e.printWarnings(record)
}

func (e *Executor) printWarnings(record *Record) {
	if len(record.Warnings) == 0 {
		return
	}
	e.printf("Warnings:")
	for _, w := range record.Warnings {
		e.printf("  - %s", w)
	}
}

// newCorrelationID is used for log correlation and AMI-retry idempotency
// tokens where the instance id itself is not a sufficient token (e.g.
// distinguishing successive create attempts in logs).
func newCorrelationID() string {
	return uuid.NewString()
}
