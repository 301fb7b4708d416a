package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "")
	t.Setenv("DAILY_COST_HOUR", "")
	t.Setenv("SERVICE_COST_HOUR", "")
	t.Setenv("DEFAULT_CURRENCY", "")

	cfg := Load()

	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.True(t, cfg.ShowDebugInfo())
	assert.Equal(t, "INR", cfg.Ingest.DefaultCurrency)
	assert.Equal(t, 4, cfg.Ingest.Workers)
	assert.Equal(t, 24*time.Hour, cfg.Scheduler.DailyInterval)
	assert.Equal(t, 6*time.Hour, cfg.Scheduler.ServiceInterval)
	assert.Equal(t, 15, cfg.DBMaxOpenConn)
}

func TestLoadSchedulerIntervalsAndScope(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("DAILY_COST_HOUR", "1")
	t.Setenv("DAILY_COST_MINUTE", "30")
	t.Setenv("AZURE_SUBSCRIPTION_ID", " sub-123 ")
	t.Setenv("DEFAULT_CURRENCY", "usd")

	cfg := Load()

	assert.False(t, cfg.ShowDebugInfo())
	assert.Equal(t, 90*time.Minute, cfg.Scheduler.DailyInterval)
	assert.Equal(t, "/subscriptions/sub-123", cfg.Azure.Scope())
	assert.Equal(t, "USD", cfg.Ingest.DefaultCurrency)
}

func TestScheduleConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schedule.yml")
	body := []byte("jobs:\n  fetch_daily_costs:\n    cron: \"0 2 * * *\"\n  fetch_service_costs:\n    enabled: false\n    every: 2h\n")
	require.NoError(t, os.WriteFile(path, body, 0o600))

	cfg := Config{Scheduler: SchedulerConfig{DailyInterval: time.Hour, ServiceInterval: time.Hour, ScheduleFile: path}}
	holder, err := NewScheduleConfigHolder(cfg, zap.NewNop())
	require.NoError(t, err)

	daily, ok := holder.Get().Job(JobDailyCosts)
	require.True(t, ok)
	assert.True(t, daily.Enabled)
	assert.Equal(t, "0 2 * * *", daily.Cron)
	assert.Equal(t, 15*time.Minute, daily.Grace)

	service, ok := holder.Get().Job(JobServiceCosts)
	require.True(t, ok)
	assert.False(t, service.Enabled)
	assert.Equal(t, 2*time.Hour, service.Every)
	assert.Equal(t, 30*time.Minute, service.Grace)
}

func TestScheduleConfigRejectsUnknownJob(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schedule.yml")
	require.NoError(t, os.WriteFile(path, []byte("jobs:\n  nightly_export:\n    every: 1h\n"), 0o600))

	_, err := NewScheduleConfigHolder(Config{Scheduler: SchedulerConfig{ScheduleFile: path}}, nil)
	assert.Error(t, err)
}
