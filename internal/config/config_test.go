package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestBuildDefaults(t *testing.T) {
	cfg := build(viper.New())

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, 900, cfg.Cache.AdviceTTLSeconds)

	assert.Equal(t, 3, cfg.Forecast.DaysOfPrediction)
	assert.Equal(t, 3, cfg.Forecast.LookaheadDays)
	assert.Equal(t, 1.0, cfg.Forecast.OutlierStdDevs)
	assert.Equal(t, 5.0, cfg.Forecast.AllowableMissedProfit)
	assert.Equal(t, "D", cfg.Forecast.Granularity)
	assert.Equal(t, "linear", cfg.Forecast.Predictor)
	assert.Equal(t, 65, cfg.Forecast.StaleAfterDays)
	assert.Zero(t, cfg.Forecast.MinRecentSharePercent)
	assert.Equal(t, 30, cfg.Forecast.RecentWindowDays)
	assert.Empty(t, cfg.Forecast.SkipStages)

	assert.Equal(t, 50*time.Millisecond, cfg.Weather.RequestDelay)
	assert.Equal(t, []string{"tavg", "prcp"}, cfg.Weather.Properties)
	assert.Equal(t, "datascience", cfg.Sink.Schema)
	assert.Equal(t, "refill_advice_location_product", cfg.Sink.ProductTable)
}

func TestBuildReadsEnvironment(t *testing.T) {
	t.Setenv("FORECAST_DAYS", "5")
	t.Setenv("FORECAST_ALLOWABLE_MISSED_PROFIT", "2.5")
	t.Setenv("FORECAST_SKIP_STAGES", "enrich, correct")
	t.Setenv("WEATHER_PROPERTIES", "tavg")
	t.Setenv("SERVER_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("CACHE_ENABLED", "true")

	cfg := build(viper.New())

	assert.Equal(t, 5, cfg.Forecast.DaysOfPrediction)
	assert.Equal(t, 2.5, cfg.Forecast.AllowableMissedProfit)
	assert.Equal(t, []string{"enrich", "correct"}, cfg.Forecast.SkipStages)
	assert.Equal(t, []string{"tavg"}, cfg.Weather.Properties)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.True(t, cfg.Cache.Enabled)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, splitList([]string{"a, b", " ", "c,"}))
	assert.Empty(t, splitList(nil))
}
