package cmd

import (
	"errors"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"

	convErrors "github.com/3leaps/ec2spotconverter/internal/errors"
)

func TestSetVersionInfo(t *testing.T) {
	origVersion := versionInfo.Version
	origCommit := versionInfo.Commit
	origBuildDate := versionInfo.BuildDate
	defer func() {
		versionInfo.Version = origVersion
		versionInfo.Commit = origCommit
		versionInfo.BuildDate = origBuildDate
	}()

	SetVersionInfo("1.2.3", "abc123", "2026-08-06")

	assert.Equal(t, "1.2.3", versionInfo.Version)
	assert.Equal(t, "abc123", versionInfo.Commit)
	assert.Equal(t, "2026-08-06", versionInfo.BuildDate)
}

func TestGetAppIdentity(t *testing.T) {
	t.Run("returns nil before init", func(t *testing.T) {
		orig := appIdentity
		appIdentity = nil
		defer func() { appIdentity = orig }()

		assert.Nil(t, GetAppIdentity())
	})

	t.Run("returns identity after init", func(t *testing.T) {
		if appIdentity != nil {
			result := GetAppIdentity()
			assert.NotNil(t, result)
			assert.Equal(t, appIdentity, result)
		}
	})
}

func TestSetDefaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	setDefaults()

	assert.Equal(t, "info", viper.GetString("logging.level"))
	assert.Equal(t, "console", viper.GetString("logging.format"))
	assert.False(t, viper.GetBool("debug"))

	assert.Equal(t, "dynamodb", viper.GetString("convert.state_backend"))
	assert.Equal(t, "ec2-spot-converter-state-table", viper.GetString("convert.dynamodb_table_name"))
	assert.Equal(t, "", viper.GetString("convert.poll_interval"))
	assert.Equal(t, "10s", viper.GetString("convert.major_warning_pause"))
}

func TestExitCodeForClassifiesEveryKind(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{errors.New("unclassified"), 1},
		{convErrors.Precondition("op", errors.New("x")), 2},
		{convErrors.New(convErrors.KindTransientCloud, "op", errors.New("x")), 3},
		{convErrors.WaiterTimeout("op", errors.New("x")), 3},
		{convErrors.StepFailure("op", errors.New("x")), 4},
		{convErrors.Persistence("op", errors.New("x")), 5},
		{convErrors.Irreversible("op", errors.New("x")), 6},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, exitCodeFor(tc.err))
	}
}
