package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMapboxToken = "pk.test-token"

func clearMapboxEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MAPBOX_TOKEN", "")
	t.Setenv("MAPBOX_KEY", "")
	t.Setenv("MAPBOX_ENABLED", "")
}

func TestLoad_Defaults(t *testing.T) {
	clearMapboxEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.False(t, cfg.MapboxEnabled)
	assert.Empty(t, cfg.MapboxToken)
	assert.Equal(t, 5*time.Second, cfg.MapboxTimeout)
	assert.Equal(t, 3, cfg.MapboxMaxAttempts)
	assert.Equal(t, ".", cfg.HomeFolder)
	assert.Equal(t, filepath.Join(".", "cities_coordinates.csv"), cfg.CoordinatesFile)
	assert.Empty(t, cfg.CoordinatesDatabaseURL)
	assert.Equal(t, "./data", cfg.ModelDataFolder)
	assert.Equal(t, "./data", cfg.ImagesFolder)
	assert.Equal(t, []string{"Hamburg"}, cfg.Cities)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "https://data.ecmwf.int/forecasts", cfg.ECMWFBaseURL)
	assert.Equal(t, "0p25", cfg.ECMWFResolution)
	assert.Equal(t, 4, cfg.DownloadConcurrency)
	assert.Equal(t, 2*time.Minute, cfg.DownloadTimeout)
	assert.Equal(t, "cdo", cfg.CDOPath)
	assert.Equal(t, 12, cfg.CDOThreads)
	assert.Equal(t, []string{"python3", "plot_meteogram.py"}, cfg.PlotCommand)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.False(t, cfg.NotificationsEnabled())
	assert.Equal(t, "meteograms", cfg.KafkaTopic)
	assert.Equal(t, "30 7,19 * * *", cfg.RunSchedule)
	assert.Equal(t, 7*time.Hour, cfg.RunAvailabilityDelay)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	t.Setenv("MAPBOX_TIMEOUT", "10s")
	t.Setenv("MAPBOX_MAX_ATTEMPTS", "5")
	t.Setenv("HOME_FOLDER", "/srv/meteogram")
	t.Setenv("COORDINATES_DATABASE_URL", "postgres://localhost/meteogram")
	t.Setenv("MODEL_DATA_FOLDER", "/scratch/ens")
	t.Setenv("IMAGES_FOLDER", "/var/www/meteograms")
	t.Setenv("DEFAULT_CITIES", "Hamburg, Milano,,Paris")
	t.Setenv("WORKERS", "8")
	t.Setenv("ECMWF_BASE_URL", "http://mirror.local/forecasts/")
	t.Setenv("ECMWF_RESOLUTION", "0p4-beta")
	t.Setenv("DOWNLOAD_CONCURRENCY", "2")
	t.Setenv("DOWNLOAD_TIMEOUT", "30s")
	t.Setenv("CDO_PATH", "/opt/cdo/bin/cdo")
	t.Setenv("CDO_THREADS", "4")
	t.Setenv("PLOT_COMMAND", "/usr/bin/env python3 /app/plot_meteogram.py")
	t.Setenv("CLIMATOLOGY_T2M", "/clim/t2m.nc")
	t.Setenv("CLIMATOLOGY_T850", "/clim/t850.nc")
	t.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092")
	t.Setenv("KAFKA_TOPIC", "ens-meteograms")
	t.Setenv("RUN_SCHEDULE", "0 8 * * *")
	t.Setenv("RUN_AVAILABILITY_DELAY", "8h")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.True(t, cfg.MapboxEnabled)
	assert.Equal(t, testMapboxToken, cfg.MapboxToken)
	assert.Equal(t, 10*time.Second, cfg.MapboxTimeout)
	assert.Equal(t, 5, cfg.MapboxMaxAttempts)
	assert.Equal(t, "/srv/meteogram/cities_coordinates.csv", cfg.CoordinatesFile)
	assert.Equal(t, "postgres://localhost/meteogram", cfg.CoordinatesDatabaseURL)
	assert.Equal(t, "/scratch/ens", cfg.ModelDataFolder)
	assert.Equal(t, "/var/www/meteograms", cfg.ImagesFolder)
	assert.Equal(t, []string{"Hamburg", "Milano", "Paris"}, cfg.Cities)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, "http://mirror.local/forecasts", cfg.ECMWFBaseURL)
	assert.Equal(t, "0p4-beta", cfg.ECMWFResolution)
	assert.Equal(t, 2, cfg.DownloadConcurrency)
	assert.Equal(t, 30*time.Second, cfg.DownloadTimeout)
	assert.Equal(t, "/opt/cdo/bin/cdo", cfg.CDOPath)
	assert.Equal(t, 4, cfg.CDOThreads)
	assert.Equal(t, []string{"/usr/bin/env", "python3", "/app/plot_meteogram.py"}, cfg.PlotCommand)
	assert.Equal(t, "/clim/t2m.nc", cfg.ClimatologyT2M)
	assert.Equal(t, "/clim/t850.nc", cfg.ClimatologyT850)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.NotificationsEnabled())
	assert.Equal(t, "ens-meteograms", cfg.KafkaTopic)
	assert.Equal(t, "0 8 * * *", cfg.RunSchedule)
	assert.Equal(t, 8*time.Hour, cfg.RunAvailabilityDelay)
}

func TestLoad_CoordinatesFileOverride(t *testing.T) {
	t.Setenv("HOME_FOLDER", "/srv/meteogram")
	t.Setenv("COORDINATES_FILE", "/etc/meteogram/coords.csv")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/etc/meteogram/coords.csv", cfg.CoordinatesFile)
}

func TestLoad_MapboxKeyFallback(t *testing.T) {
	clearMapboxEnv(t)
	t.Setenv("MAPBOX_KEY", testMapboxToken)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, testMapboxToken, cfg.MapboxToken)
	assert.True(t, cfg.MapboxEnabled)
}

func TestLoad_InvalidShutdownTimeout(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_NegativeShutdownTimeout(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "-1s")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_InvalidDurations(t *testing.T) {
	for _, key := range []string{"MAPBOX_TIMEOUT", "DOWNLOAD_TIMEOUT", "RUN_AVAILABILITY_DELAY"} {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, "bad")
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestLoad_InvalidCounts(t *testing.T) {
	for _, key := range []string{"WORKERS", "MAPBOX_MAX_ATTEMPTS", "DOWNLOAD_CONCURRENCY", "CDO_THREADS"} {
		for _, value := range []string{"0", "-2", "many"} {
			t.Run(key+"="+value, func(t *testing.T) {
				t.Setenv(key, value)
				_, err := Load()
				require.Error(t, err)
				assert.Contains(t, err.Error(), key)
			})
		}
	}
}

func TestLoad_MapboxEnabledWithoutToken(t *testing.T) {
	clearMapboxEnv(t)
	t.Setenv("MAPBOX_ENABLED", "true")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAPBOX_TOKEN")
}

func TestLoad_MapboxExplicitlyDisabled(t *testing.T) {
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	t.Setenv("MAPBOX_ENABLED", "false")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.MapboxEnabled)
}

func TestLoad_BlankPlotCommand(t *testing.T) {
	t.Setenv("PLOT_COMMAND", "   ")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PLOT_COMMAND")
}

func TestLoad_NoCities(t *testing.T) {
	t.Setenv("DEFAULT_CITIES", " , ")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DEFAULT_CITIES")
}

func TestLoad_CitiesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cities.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cities:\n  - Milano\n  - \" Bergen \"\n  - Milano\n"), 0o600))
	t.Setenv("CITIES_FILE", path)
	t.Setenv("DEFAULT_CITIES", "Hamburg")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"Milano", "Bergen"}, cfg.Cities)
}

func TestLoadCities_Errors(t *testing.T) {
	_, err := LoadCities(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cities: [Milano\n"), 0o600))
	_, err = LoadCities(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse cities file")
}
