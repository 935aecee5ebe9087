// Package config loads layered configuration (env vars, optional config
// file, flag overrides) for the CLI using viper, the way the teacher's
// internal/cmd/root.go wires server/logging/workers defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully-resolved, typed configuration for the CLI.
type Config struct {
	AWS struct {
		Region  string `mapstructure:"region"`
		Profile string `mapstructure:"profile"`
	} `mapstructure:"aws"`

	Logging struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"logging"`

	Convert struct {
		DynamoDBTableName string        `mapstructure:"dynamodb_table_name"`
		StateBackend      string        `mapstructure:"state_backend"`
		SQLitePath        string        `mapstructure:"sqlite_path"`
		PollInterval      time.Duration `mapstructure:"poll_interval"`
		MajorWarningPause time.Duration `mapstructure:"major_warning_pause"`
	} `mapstructure:"convert"`

	Debug bool `mapstructure:"debug"`
}

// setDefaults installs the namespaced default keys this CLI reads, mirroring
// the teacher's setDefaults() in shape (one default per viper key) even
// though the key set itself is specific to this domain: there is no HTTP
// server here, so no server.* keys are carried forward.
func setDefaults(v *viper.Viper) {
	v.SetDefault("aws.region", "")
	v.SetDefault("aws.profile", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("convert.dynamodb_table_name", "ec2-spot-converter-state-table")
	v.SetDefault("convert.state_backend", "dynamodb")
	v.SetDefault("convert.sqlite_path", "./ec2-spot-converter-state.db")
	// Left unset by default: each waiter (waiters.go) has its own tuned
	// cadence. Setting this overrides all of them uniformly.
	v.SetDefault("convert.poll_interval", time.Duration(0))
	v.SetDefault("convert.major_warning_pause", "10s")

	v.SetDefault("debug", false)
}

// Load reads configuration from (in increasing priority) defaults, an
// optional config file, and environment variables prefixed EC2SPOTCONV_.
// Flag overrides are applied by the caller after Load returns, matching the
// teacher's pattern of viper-defaults-plus-explicit-flag-binding rather than
// binding every flag into viper itself.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("EC2SPOTCONV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
