package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

const coordinatesFileName = "cities_coordinates.csv"

// Config holds all settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Mapbox geocoding configuration.
	MapboxToken       string
	MapboxEnabled     bool
	MapboxTimeout     time.Duration
	MapboxMaxAttempts int

	// Coordinate table. CoordinatesDatabaseURL takes precedence over the file.
	HomeFolder             string
	CoordinatesFile        string
	CoordinatesDatabaseURL string

	// Forecast data and output.
	ModelDataFolder string
	ImagesFolder    string
	Cities          []string
	Workers         int

	// ECMWF open-data retrieval.
	ECMWFBaseURL        string
	ECMWFResolution     string
	DownloadConcurrency int
	DownloadTimeout     time.Duration

	// External collaborators.
	CDOPath         string
	CDOThreads      int
	PlotCommand     []string
	ClimatologyT2M  string
	ClimatologyT850 string

	// Notifications; disabled when no brokers are configured.
	KafkaBrokers []string
	KafkaTopic   string

	// Scheduler.
	RunSchedule          string
	RunAvailabilityDelay time.Duration
}

// Load reads configuration from environment variables (and a .env file when
// present), applying defaults where unset.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	mapboxTimeout, err := parseDuration("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	downloadTimeout, err := parseDuration("DOWNLOAD_TIMEOUT", "2m")
	if err != nil {
		return nil, err
	}
	availabilityDelay, err := parseDuration("RUN_AVAILABILITY_DELAY", "7h")
	if err != nil {
		return nil, err
	}

	mapboxAttempts, err := parsePositiveInt("MAPBOX_MAX_ATTEMPTS", 3)
	if err != nil {
		return nil, err
	}
	workers, err := parsePositiveInt("WORKERS", 4)
	if err != nil {
		return nil, err
	}
	downloadConcurrency, err := parsePositiveInt("DOWNLOAD_CONCURRENCY", 4)
	if err != nil {
		return nil, err
	}
	cdoThreads, err := parsePositiveInt("CDO_THREADS", 12)
	if err != nil {
		return nil, err
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	if mapboxToken == "" {
		mapboxToken = os.Getenv("MAPBOX_KEY")
	}
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	homeFolder := sharedcfg.EnvOrDefault("HOME_FOLDER", ".")
	modelDataFolder := sharedcfg.EnvOrDefault("MODEL_DATA_FOLDER", "./data")

	cities, err := loadCityList()
	if err != nil {
		return nil, err
	}

	var brokers []string
	if v := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); v != "" {
		brokers = sharedcfg.ParseBrokers(v)
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		MapboxToken:       mapboxToken,
		MapboxEnabled:     mapboxEnabled,
		MapboxTimeout:     mapboxTimeout,
		MapboxMaxAttempts: mapboxAttempts,

		HomeFolder:             homeFolder,
		CoordinatesFile:        sharedcfg.EnvOrDefault("COORDINATES_FILE", filepath.Join(homeFolder, coordinatesFileName)),
		CoordinatesDatabaseURL: os.Getenv("COORDINATES_DATABASE_URL"),

		ModelDataFolder: modelDataFolder,
		ImagesFolder:    sharedcfg.EnvOrDefault("IMAGES_FOLDER", modelDataFolder),
		Cities:          cities,
		Workers:         workers,

		ECMWFBaseURL:        strings.TrimRight(sharedcfg.EnvOrDefault("ECMWF_BASE_URL", "https://data.ecmwf.int/forecasts"), "/"),
		ECMWFResolution:     sharedcfg.EnvOrDefault("ECMWF_RESOLUTION", "0p25"),
		DownloadConcurrency: downloadConcurrency,
		DownloadTimeout:     downloadTimeout,

		CDOPath:         sharedcfg.EnvOrDefault("CDO_PATH", "cdo"),
		CDOThreads:      cdoThreads,
		PlotCommand:     strings.Fields(sharedcfg.EnvOrDefault("PLOT_COMMAND", "python3 plot_meteogram.py")),
		ClimatologyT2M:  os.Getenv("CLIMATOLOGY_T2M"),
		ClimatologyT850: os.Getenv("CLIMATOLOGY_T850"),

		KafkaBrokers: brokers,
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "meteograms"),

		RunSchedule:          sharedcfg.EnvOrDefault("RUN_SCHEDULE", "30 7,19 * * *"),
		RunAvailabilityDelay: availabilityDelay,
	}

	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}
	if len(cfg.PlotCommand) == 0 {
		return nil, errors.New("PLOT_COMMAND is required")
	}
	if len(cfg.Cities) == 0 {
		return nil, errors.New("DEFAULT_CITIES or CITIES_FILE must name at least one city")
	}

	return cfg, nil
}

// NotificationsEnabled reports whether meteogram events are published.
func (c *Config) NotificationsEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func parseDuration(key, def string) (time.Duration, error) {
	v := sharedcfg.EnvOrDefault(key, def)
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}
