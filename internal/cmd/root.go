// Package cmd wires the CLI surface: root command, persistent flags,
// configuration loading, and the convert subcommand.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	convErrors "github.com/3leaps/ec2spotconverter/internal/errors"
	"github.com/3leaps/ec2spotconverter/internal/observability"
)

// versionInfo holds build-time metadata injected via -ldflags, mirroring
// the teacher's SetVersionInfo/GetAppIdentity split between "what build is
// this" and "what binary/identity is running".
var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "none",
	BuildDate: "unknown",
}

// SetVersionInfo is called from main with values baked in at build time.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// appIdentity describes the running binary for banner/log lines.
type appIdentityT struct {
	BinaryName string
	Version    string
}

var appIdentity *appIdentityT

// GetAppIdentity returns the current identity, or nil before root.go's
// init has run.
func GetAppIdentity() *appIdentityT {
	return appIdentity
}

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "ec2spotconverter",
	Short: "Convert a live EC2 instance between on-demand and persistent spot billing",
	Long: `ec2spotconverter converts a running EC2 instance between on-demand and
persistent spot billing models, or relaunches it under a different instance
type, by driving a resumable, idempotent conversion through the EC2 API.

Progress is checkpointed after every step, so an interrupted or crashed run
can be resumed with the same command line and will pick up where it left
off rather than repeating already-completed, possibly irreversible work.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := viper.GetString("logging.level")
		format := viper.GetString("logging.format")
		if viper.GetBool("debug") {
			level = "debug"
		}
		return observability.Init(observability.Options{Level: level, Format: format})
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (commit %s, built %s)\n",
			appIdentity.BinaryName, versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate)
		return nil
	},
}

func init() {
	appIdentity = &appIdentityT{BinaryName: "ec2spotconverter", Version: versionInfo.Version}

	rootCmd.AddCommand(versionCmd)
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: none, defaults + env only)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug|info|warn|error")
	rootCmd.PersistentFlags().String("log-format", "console", "log format: console|json")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging and verbose diagnostics")
	rootCmd.PersistentFlags().String("aws-region", "", "AWS region override")
	rootCmd.PersistentFlags().String("aws-profile", "", "AWS shared credentials profile override")

	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("aws.region", rootCmd.PersistentFlags().Lookup("aws-region"))
	_ = viper.BindPFlag("aws.profile", rootCmd.PersistentFlags().Lookup("aws-profile"))

	setDefaults()
}

// setDefaults installs the viper defaults consumed before a config file or
// environment override is applied. internal/config.Load duplicates this
// default set for callers that go through the typed Config struct directly;
// this copy is what the bare cobra/viper flag-binding path above sees.
func setDefaults() {
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "console")
	viper.SetDefault("debug", false)

	viper.SetDefault("aws.region", "")
	viper.SetDefault("aws.profile", "")

	viper.SetDefault("convert.state_backend", "dynamodb")
	viper.SetDefault("convert.dynamodb_table_name", "ec2-spot-converter-state-table")
	viper.SetDefault("convert.sqlite_path", "./ec2-spot-converter-state.db")
	viper.SetDefault("convert.poll_interval", "")
	viper.SetDefault("convert.major_warning_pause", "10s")
}

func initConfig() {
	if cfgFile == "" {
		return
	}
	viper.SetConfigFile(cfgFile)
	if err := viper.ReadInConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "ec2spotconverter: reading config file %s: %v\n", cfgFile, err)
		os.Exit(exitCodeFor(convErrors.Precondition("load_config", err)))
	}
	viper.SetEnvPrefix("EC2SPOTCONV")
	viper.AutomaticEnv()
}

// Execute runs the root command and translates a returned error's
// classified Kind into a process exit code, matching spec.md §7's "the
// tool's exit code should let a caller distinguish an irreversible
// divergence from a merely transient failure" requirement.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		observability.CLILogger.Error(err.Error())
		return exitCodeFor(err)
	}
	return 0
}

// exitCodeFor maps a classified error's Kind to a process exit code. Unset
// Kind (an error that never passed through internal/errors) gets the
// generic failure code.
func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	switch convErrors.KindOf(err) {
	case convErrors.KindPrecondition:
		return 2
	case convErrors.KindTransientCloud, convErrors.KindWaiterTimeout:
		return 3
	case convErrors.KindStepFailure:
		return 4
	case convErrors.KindPersistence:
		return 5
	case convErrors.KindIrreversibleDivergence:
		return 6
	default:
		return 1
	}
}
