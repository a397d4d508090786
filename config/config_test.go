package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")

	cfg, err := Load()

	assert.NoError(t, err)
	assert.Equal(t, EnvDevelopment, cfg.App.Environment)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 7*24*time.Hour, cfg.Engine.StruggleWindow)
	assert.GreaterOrEqual(t, cfg.Engine.EventRetention, cfg.Engine.StruggleWindow)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("ENGINE_STRUGGLE_WINDOW", "48h")
	t.Setenv("ENGINE_EVENT_RETENTION", "72h")
	t.Setenv("LOG_FORMAT", "text")

	cfg, err := Load()

	assert.NoError(t, err)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, 48*time.Hour, cfg.Engine.StruggleWindow)
	assert.Equal(t, "text", cfg.Observability.LogFormat)
}

func TestValidateRejectsRetentionBelowWindow(t *testing.T) {
	t.Setenv("ENGINE_STRUGGLE_WINDOW", "168h")
	t.Setenv("ENGINE_EVENT_RETENTION", "24h")

	_, err := Load()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ENGINE_EVENT_RETENTION")
}

func TestValidateRequiresDatabaseInProduction(t *testing.T) {
	t.Setenv("APP_ENV", "production")

	_, err := Load()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestFeatureFlagDefaults(t *testing.T) {
	ff := LoadFeatureFlags()

	assert.True(t, ff.IsEnabled(FeatureStruggleNotifications, nil))
	assert.True(t, ff.IsEnabled(FeatureProgressCache, nil))
	assert.False(t, ff.IsEnabled("does.not.exist", nil))
}

func TestFeatureFlagEnvOverride(t *testing.T) {
	t.Setenv("FEATURE_CACHE_PROGRESS", "false")

	ff := LoadFeatureFlags()

	assert.False(t, ff.IsEnabled(FeatureProgressCache, nil))
}

func TestFeatureFlagRolloutIsStable(t *testing.T) {
	ff := LoadFeatureFlags()
	assert.NoError(t, ff.SetRolloutPercent(FeatureBatchIngest, 50))

	ctx := &FeatureContext{StudentID: "student-42"}
	first := ff.IsEnabled(FeatureBatchIngest, ctx)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ff.IsEnabled(FeatureBatchIngest, ctx))
	}
}

func TestFeatureFlagStudentOverride(t *testing.T) {
	ff := LoadFeatureFlags()
	assert.NoError(t, ff.DisableFeature(FeatureBatchIngest))

	ctx := &FeatureContext{StudentID: "student-1"}
	assert.False(t, ff.IsEnabled(FeatureBatchIngest, ctx))

	ff.SetStudentOverride("student-1", FeatureBatchIngest, true)
	assert.True(t, ff.IsEnabled(FeatureBatchIngest, ctx))

	ff.ClearStudentOverrides("student-1")
	assert.False(t, ff.IsEnabled(FeatureBatchIngest, ctx))
}
