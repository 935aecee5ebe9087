package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, "dynamodb", cfg.Convert.StateBackend)
	assert.Equal(t, "ec2-spot-converter-state-table", cfg.Convert.DynamoDBTableName)
	assert.Equal(t, time.Duration(0), cfg.Convert.PollInterval)
	assert.Equal(t, 10*time.Second, cfg.Convert.MajorWarningPause)
	assert.False(t, cfg.Debug)
}

func TestLoadFromConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := "convert:\n  state_backend: sqlite\n  sqlite_path: /tmp/custom.db\naws:\n  region: us-west-2\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Convert.StateBackend)
	assert.Equal(t, "/tmp/custom.db", cfg.Convert.SQLitePath)
	assert.Equal(t, "us-west-2", cfg.AWS.Region)
}

func TestLoadMissingConfigFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
}

func TestLoadEnvOverridesDefault(t *testing.T) {
	t.Setenv("EC2SPOTCONV_AWS_REGION", "eu-central-1")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "eu-central-1", cfg.AWS.Region)
}
