package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, 8, cfg.Enrollment.MaxActivePerStudent)
	assert.Equal(t, 5*time.Second, cfg.Enrollment.StepTimeout)
	assert.Equal(t, SeatBackendPostgres, cfg.Enrollment.SeatBackend)
	assert.True(t, cfg.Diagnostics.Enabled)
	assert.True(t, cfg.Reconciliation.Enabled)
	assert.Equal(t, 10*time.Second, cfg.Reconciliation.SettleDelay)
}

func TestLoadOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("ENV", EnvProduction)
	t.Setenv("SEAT_BACKEND", "REDIS")
	t.Setenv("ENROLLMENT_MAX_ACTIVE_PER_STUDENT", "3")
	t.Setenv("ENROLLMENT_STEP_TIMEOUT", "750ms")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, SeatBackendRedis, cfg.Enrollment.SeatBackend)
	assert.Equal(t, 3, cfg.Enrollment.MaxActivePerStudent)
	assert.Equal(t, 750*time.Millisecond, cfg.Enrollment.StepTimeout)
	assert.False(t, cfg.Diagnostics.Enabled)
}

func TestSplitAndTrim(t *testing.T) {
	assert.Nil(t, splitAndTrim(""))
	assert.Equal(t, []string{"a", "b"}, splitAndTrim(" a, ,b "))
}
