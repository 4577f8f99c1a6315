// internal/config/config.go
package config

import (
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	App      AppConfig
	Cache    CacheConfig
	Storage  StorageConfig
	Drive    DriveConfig
	Forecast ForecastConfig
	Weather  WeatherConfig
	Sink     SinkConfig
}

type ServerConfig struct {
	Port           string
	Mode           string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type AppConfig struct {
	DataDir  string
	LogLevel string
}

type CacheConfig struct {
	Enabled          bool
	RedisURL         string
	RedisHost        string
	RedisPort        string
	RedisPassword    string
	RedisDB          int
	AdviceTTLSeconds int
}

// StorageConfig points at the S3-compatible bucket that receives exported
// advice files. When disabled, exports go to App.DataDir.
type StorageConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	Prefix    string
}

type DriveConfig struct {
	CredentialsJSON string
	FolderID        string
	DownloadDir     string
}

type ForecastConfig struct {
	DaysOfPrediction      int
	LookaheadDays         int
	OutlierStdDevs        float64
	AllowableMissedProfit float64
	Granularity           string
	Predictor             string
	StaleAfterDays        int
	MinRecentSharePercent float64
	RecentWindowDays      int
	TransactionSource     string
	SkipStages            []string
}

type WeatherConfig struct {
	BaseURL      string
	APIKey       string
	RequestDelay time.Duration
	Properties   []string
}

type SinkConfig struct {
	Schema        string
	ProductTable  string
	LocationTable string
}

var (
	once     sync.Once
	instance *Config
)

func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		instance = build(viper.GetViper())

		// Ensure export directory exists
		ensureDir(instance.App.DataDir)
	})

	return instance
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_MODE", "debug")
	v.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})
	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "vendcast")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("APP_DATA_DIR", "./data/output")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CACHE_ENABLED", false)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_HOST", "127.0.0.1")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_ADVICE_TTL_SECONDS", 900)
	v.SetDefault("STORAGE_ENABLED", false)
	v.SetDefault("STORAGE_REGION", "us-east-1")
	v.SetDefault("STORAGE_USE_SSL", true)
	v.SetDefault("STORAGE_PREFIX", "refill-advice")
	v.SetDefault("DRIVE_DOWNLOAD_DIR", "./data/uploads/transactions")
	v.SetDefault("FORECAST_DAYS", 3)
	v.SetDefault("FORECAST_LOOKAHEAD_DAYS", 3)
	v.SetDefault("FORECAST_OUTLIER_STDDEVS", 1.0)
	v.SetDefault("FORECAST_ALLOWABLE_MISSED_PROFIT", 5.0)
	v.SetDefault("FORECAST_GRANULARITY", "D")
	v.SetDefault("FORECAST_PREDICTOR", "linear")
	v.SetDefault("FORECAST_STALE_AFTER_DAYS", 65)
	v.SetDefault("FORECAST_MIN_RECENT_SHARE_PERCENT", 0.0)
	v.SetDefault("FORECAST_RECENT_WINDOW_DAYS", 30)
	v.SetDefault("FORECAST_TRANSACTION_SOURCE", "postgres")
	v.SetDefault("FORECAST_SKIP_STAGES", []string{})
	v.SetDefault("WEATHER_BASE_URL", "https://meteostat.p.rapidapi.com")
	v.SetDefault("WEATHER_API_KEY", "")
	v.SetDefault("WEATHER_REQUEST_DELAY_MS", 50)
	v.SetDefault("WEATHER_PROPERTIES", []string{"tavg", "prcp"})
	v.SetDefault("SINK_SCHEMA", "datascience")
	v.SetDefault("SINK_PRODUCT_TABLE", "refill_advice_location_product")
	v.SetDefault("SINK_LOCATION_TABLE", "refill_advice_location")
}

// build reads every setting from v after applying defaults and binding the
// environment.
func build(v *viper.Viper) *Config {
	setDefaults(v)

	// Read from environment variables
	v.AutomaticEnv()

	return &Config{
		Server: ServerConfig{
			Port:           v.GetString("SERVER_PORT"),
			Mode:           v.GetString("SERVER_MODE"),
			ReadTimeout:    v.GetInt("SERVER_READ_TIMEOUT"),
			WriteTimeout:   v.GetInt("SERVER_WRITE_TIMEOUT"),
			AllowedOrigins: splitList(v.GetStringSlice("SERVER_ALLOWED_ORIGINS")),
		},
		Database: DatabaseConfig{
			Driver:   v.GetString("DB_DRIVER"),
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			DBName:   v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
		},
		App: AppConfig{
			DataDir:  v.GetString("APP_DATA_DIR"),
			LogLevel: v.GetString("LOG_LEVEL"),
		},
		Cache: CacheConfig{
			Enabled:          v.GetBool("CACHE_ENABLED"),
			RedisURL:         v.GetString("REDIS_URL"),
			RedisHost:        v.GetString("REDIS_HOST"),
			RedisPort:        v.GetString("REDIS_PORT"),
			RedisPassword:    v.GetString("REDIS_PASSWORD"),
			RedisDB:          v.GetInt("REDIS_DB"),
			AdviceTTLSeconds: v.GetInt("CACHE_ADVICE_TTL_SECONDS"),
		},
		Storage: StorageConfig{
			Enabled:   v.GetBool("STORAGE_ENABLED"),
			Endpoint:  v.GetString("STORAGE_ENDPOINT"),
			AccessKey: v.GetString("STORAGE_ACCESS_KEY"),
			SecretKey: v.GetString("STORAGE_SECRET_KEY"),
			Bucket:    v.GetString("STORAGE_BUCKET"),
			Region:    v.GetString("STORAGE_REGION"),
			UseSSL:    v.GetBool("STORAGE_USE_SSL"),
			Prefix:    v.GetString("STORAGE_PREFIX"),
		},
		Drive: DriveConfig{
			CredentialsJSON: v.GetString("GOOGLE_DRIVE_CREDENTIALS_JSON"),
			FolderID:        v.GetString("DRIVE_FOLDER_ID"),
			DownloadDir:     v.GetString("DRIVE_DOWNLOAD_DIR"),
		},
		Forecast: ForecastConfig{
			DaysOfPrediction:      v.GetInt("FORECAST_DAYS"),
			LookaheadDays:         v.GetInt("FORECAST_LOOKAHEAD_DAYS"),
			OutlierStdDevs:        v.GetFloat64("FORECAST_OUTLIER_STDDEVS"),
			AllowableMissedProfit: v.GetFloat64("FORECAST_ALLOWABLE_MISSED_PROFIT"),
			Granularity:           v.GetString("FORECAST_GRANULARITY"),
			Predictor:             v.GetString("FORECAST_PREDICTOR"),
			StaleAfterDays:        v.GetInt("FORECAST_STALE_AFTER_DAYS"),
			MinRecentSharePercent: v.GetFloat64("FORECAST_MIN_RECENT_SHARE_PERCENT"),
			RecentWindowDays:      v.GetInt("FORECAST_RECENT_WINDOW_DAYS"),
			TransactionSource:     v.GetString("FORECAST_TRANSACTION_SOURCE"),
			SkipStages:            splitList(v.GetStringSlice("FORECAST_SKIP_STAGES")),
		},
		Weather: WeatherConfig{
			BaseURL:      v.GetString("WEATHER_BASE_URL"),
			APIKey:       v.GetString("WEATHER_API_KEY"),
			RequestDelay: time.Duration(v.GetInt("WEATHER_REQUEST_DELAY_MS")) * time.Millisecond,
			Properties:   splitList(v.GetStringSlice("WEATHER_PROPERTIES")),
		},
		Sink: SinkConfig{
			Schema:        v.GetString("SINK_SCHEMA"),
			ProductTable:  v.GetString("SINK_PRODUCT_TABLE"),
			LocationTable: v.GetString("SINK_LOCATION_TABLE"),
		},
	}
}

// splitList flattens comma separated entries coming from env vars.
func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func ensureDir(dir string) {
	if dir == "" {
		return
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to create directory %s: %v", dir, err)
		}
	}
}
