package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/3leaps/ec2spotconverter/internal/config"
	convErrors "github.com/3leaps/ec2spotconverter/internal/errors"
	"github.com/3leaps/ec2spotconverter/internal/observability"
	"github.com/3leaps/ec2spotconverter/pkg/cloud/awsadapter"
	"github.com/3leaps/ec2spotconverter/pkg/convert"
	"github.com/3leaps/ec2spotconverter/pkg/jobstore"
	"github.com/3leaps/ec2spotconverter/pkg/output"
)

var convertFlags struct {
	targetBillingModel string
	targetInstanceType string
	cpuOptions         string
	maxSpotPrice       string
	volumeKMSKeyID     string

	ignoreUserData           bool
	ignoreHibernationOptions bool

	stopInstance                bool
	rebootIfNeeded              bool
	doNotRequireStoppedInstance bool

	checkTargetGroups []string
	waitForTGStates   []string
	updateCWAlarms    []string

	deleteAMI bool

	force                     bool
	doNotPauseOnMajorWarnings bool
	resetStep                 string
	resetAll                  bool

	jsonOutput bool
}

var convertCmd = &cobra.Command{
	Use:   "convert <instance-id>",
	Short: "Convert an EC2 instance between on-demand and persistent spot billing",
	Long: `convert drives a single EC2 instance through the resumable conversion
state machine: it snapshots the instance, images it, terminates the
original, relaunches a replacement under the requested billing model or
instance type, and reattaches its volumes, network interfaces, and elastic
IPs to the replacement.

Re-running the same command against an instance that is mid-conversion
resumes from the last checkpoint rather than repeating completed steps. A
conversion that already completed successfully is a no-op unless
--reset-step, --reset-all, or --delete-ami is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)

	f := convertCmd.Flags()
	f.StringVar(&convertFlags.targetBillingModel, "target-billing-model", "", "spot|on-demand (default spot)")
	f.StringVar(&convertFlags.targetInstanceType, "target-instance-type", "", "relaunch under a different instance type")
	f.StringVar(&convertFlags.cpuOptions, "cpu-options", "", `"inherit" (default), "ignore", or "core_count:threads_per_core"`)
	f.StringVar(&convertFlags.maxSpotPrice, "max-spot-price", "", "maximum spot price; inherited from the original spot request when omitted")
	f.StringVar(&convertFlags.volumeKMSKeyID, "volume-kms-key-id", "", "KMS key id used to encrypt any currently-unencrypted volume")

	f.BoolVar(&convertFlags.ignoreUserData, "ignore-userdata", false, "do not carry the original instance's user data to the replacement")
	f.BoolVar(&convertFlags.ignoreHibernationOptions, "ignore-hibernation-options", false, "do not carry hibernation configuration to the replacement")

	f.BoolVar(&convertFlags.stopInstance, "stop-instance", false, "stop the instance automatically if it is running (required unless --do-not-require-stopped-instance)")
	f.BoolVar(&convertFlags.rebootIfNeeded, "reboot-if-needed", false, "reboot the replacement instance automatically when a reboot is recommended")
	f.BoolVar(&convertFlags.doNotRequireStoppedInstance, "do-not-require-stopped-instance", false, "skip the precondition that the instance be stopped before imaging")

	f.StringSliceVar(&convertFlags.checkTargetGroups, "check-targetgroups", nil, "target group ARNs/names to reconcile registration for; default is all target groups referencing the instance")
	f.StringSliceVar(&convertFlags.waitForTGStates, "wait-for-tg-states", nil, "target health states accepted as converged (default: unused,healthy)")
	f.StringSliceVar(&convertFlags.updateCWAlarms, "update-cw-alarms", nil, "CloudWatch alarm name prefixes to rewrite the InstanceId dimension on; default is none")

	f.BoolVar(&convertFlags.deleteAMI, "delete-ami", false, "deregister the intermediate AMI and delete its snapshots after a successful conversion")

	f.BoolVar(&convertFlags.force, "force", false, "bypass the no-op-conversion and cross-checkpoint reset-step refusals")
	f.BoolVar(&convertFlags.doNotPauseOnMajorWarnings, "do-not-pause-on-major-warnings", false, "do not pause for operator review after a major warning")
	f.StringVar(&convertFlags.resetStep, "reset-step", "", "rewind a previously-run conversion to before the named step and resume from there")
	f.BoolVar(&convertFlags.resetAll, "reset-all", false, "discard all recorded progress and start the conversion over")

	f.BoolVar(&convertFlags.jsonOutput, "json", false, "emit JSONL step, warning, summary and error records instead of step-by-step progress lines")
}

func runConvert(cmd *cobra.Command, args []string) error {
	instanceID := args[0]
	ctx := cmd.Context()

	cfg, err := loadConvertConfig()
	if err != nil {
		return err
	}

	req, err := buildRequest(cmd, instanceID)
	if err != nil {
		return convErrors.Precondition("parse_flags", err)
	}

	adapter, err := awsadapter.New(ctx, awsadapter.Config{
		Region:  cfg.AWS.Region,
		Profile: cfg.AWS.Profile,
	})
	if err != nil {
		return convErrors.Precondition("init_aws_adapter", err)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return convErrors.Persistence("open_store", err)
	}
	defer store.Close()

	executor := &convert.Executor{
		Adapter:           adapter,
		Store:             store,
		Logger:            observability.CLILogger,
		Out:               cmd.OutOrStdout(),
		MajorWarningPause: cfg.Convert.MajorWarningPause,
		PollInterval:      cfg.Convert.PollInterval,
	}

	var sink *output.JSONLWriter
	if convertFlags.jsonOutput {
		sink = output.NewJSONLWriter(cmd.OutOrStdout(), instanceID)
		executor.Sink = sink
		executor.Out = io.Discard
	}

	_, runErr := executor.Run(ctx, instanceID, req)
	if sink != nil {
		_ = sink.Close()
	}
	return runErr
}

func loadConvertConfig() (*config.Config, error) {
	cfg, err := config.Load("")
	if err != nil {
		return nil, convErrors.Precondition("load_config", err)
	}
	if v := viper.GetString("aws.region"); v != "" {
		cfg.AWS.Region = v
	}
	if v := viper.GetString("aws.profile"); v != "" {
		cfg.AWS.Profile = v
	}
	if v := viper.GetString("convert.state_backend"); v != "" {
		cfg.Convert.StateBackend = v
	}
	if v := viper.GetString("convert.dynamodb_table_name"); v != "" {
		cfg.Convert.DynamoDBTableName = v
	}
	if v := viper.GetString("convert.sqlite_path"); v != "" {
		cfg.Convert.SQLitePath = v
	}
	if d := viper.GetDuration("convert.poll_interval"); d > 0 {
		cfg.Convert.PollInterval = d
	}
	if d := viper.GetDuration("convert.major_warning_pause"); d > 0 {
		cfg.Convert.MajorWarningPause = d
	}
	return cfg, nil
}

func openStore(ctx context.Context, cfg *config.Config) (jobstore.Store, error) {
	switch strings.ToLower(cfg.Convert.StateBackend) {
	case "sqlite":
		return jobstore.OpenSQLite(ctx, cfg.Convert.SQLitePath)
	case "dynamodb", "":
		return jobstore.OpenDynamoDB(ctx, jobstore.DynamoDBConfig{
			Region:    cfg.AWS.Region,
			TableName: cfg.Convert.DynamoDBTableName,
		})
	default:
		return nil, fmt.Errorf("unknown convert.state_backend %q", cfg.Convert.StateBackend)
	}
}

// buildRequest normalizes the convert subcommand's flags into a
// convert.Request, the same role the teacher's index_build.go flag-to-struct
// assembly plays for its own subcommand.
func buildRequest(cmd *cobra.Command, instanceID string) (convert.Request, error) {
	var billing convert.BillingModel
	switch strings.ToLower(strings.TrimSpace(convertFlags.targetBillingModel)) {
	case "spot", "":
		billing = convert.BillingSpot
	case "on-demand", "ondemand":
		billing = convert.BillingOnDemand
	default:
		return convert.Request{}, fmt.Errorf("invalid --target-billing-model %q: must be spot or on-demand", convertFlags.targetBillingModel)
	}

	cpuOpts, err := parseCPUOptions(convertFlags.cpuOptions)
	if err != nil {
		return convert.Request{}, err
	}

	return convert.Request{
		InstanceID: instanceID,

		TargetBillingModel: billing,
		TargetInstanceType: convertFlags.targetInstanceType,
		CPUOptions:         cpuOpts,
		MaxSpotPrice:       convertFlags.maxSpotPrice,
		VolumeKMSKeyID:     convertFlags.volumeKMSKeyID,

		IgnoreUserData:           convertFlags.ignoreUserData,
		IgnoreHibernationOptions: convertFlags.ignoreHibernationOptions,

		StopInstance:                convertFlags.stopInstance,
		RebootIfNeeded:              convertFlags.rebootIfNeeded,
		DoNotRequireStoppedInstance: convertFlags.doNotRequireStoppedInstance,

		CheckTargetGroups:    convertFlags.checkTargetGroups,
		CheckTargetGroupsSet: cmd.Flags().Changed("check-targetgroups"),
		WaitForTGStates:      convertFlags.waitForTGStates,
		UpdateCWAlarms:       convertFlags.updateCWAlarms,

		DeleteAMI: convertFlags.deleteAMI,

		Force:                     convertFlags.force,
		DoNotPauseOnMajorWarnings: convertFlags.doNotPauseOnMajorWarnings,
		ResetStep:                 convertFlags.resetStep,
		ResetAll:                  convertFlags.resetAll,
	}, nil
}

// parseCPUOptions accepts "", "inherit" (equivalent to ""), "ignore", or
// "core_count:threads_per_core" as an explicit override.
func parseCPUOptions(raw string) (*convert.CPUOptionsRequest, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	switch v {
	case "", "inherit":
		return nil, nil
	case "ignore":
		return &convert.CPUOptionsRequest{Ignore: true}, nil
	}

	parts := strings.SplitN(v, ":", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf(`invalid --cpu-options %q: expected "inherit", "ignore", or "core_count:threads_per_core"`, raw)
	}
	var core, threads int32
	if _, err := fmt.Sscanf(parts[0], "%d", &core); err != nil {
		return nil, fmt.Errorf("invalid --cpu-options core_count %q: %w", parts[0], err)
	}
	if _, err := fmt.Sscanf(parts[1], "%d", &threads); err != nil {
		return nil, fmt.Errorf("invalid --cpu-options threads_per_core %q: %w", parts[1], err)
	}
	return &convert.CPUOptionsRequest{CoreCount: core, ThreadsPerCore: threads, Explicit: true}, nil
}
