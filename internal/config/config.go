package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Weather    WeatherConfig    `mapstructure:"weather"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres or sqlite
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	Path            string        `mapstructure:"path"` // sqlite file path
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN builds the driver-specific connection string.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
	}
	return c.Path
}

type QueueConfig struct {
	// Mode selects the dispatch transport: "redis" enqueues to a worker
	// process, "inline" runs the pipeline in-process (dev and tests).
	Mode     string        `mapstructure:"mode"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	Database int           `mapstructure:"database"`
	Key      string        `mapstructure:"key"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type StorageConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
}

type WeatherConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Latitude  float64       `mapstructure:"latitude"`
	Longitude float64       `mapstructure:"longitude"`
	Timezone  string        `mapstructure:"timezone"`
	ChunkDays int           `mapstructure:"chunk_days"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type EnrichmentConfig struct {
	// HolidayRegion selects the built-in public holiday rule set.
	HolidayRegion string `mapstructure:"holiday_region"`
	// ExtraHolidays are additional holiday dates (YYYY-MM-DD).
	ExtraHolidays []string `mapstructure:"extra_holidays"`
	// LocalEvents are local event dates (YYYY-MM-DD).
	LocalEvents []string `mapstructure:"local_events"`
	// Workers bounds the per-date update fan-out within one job.
	Workers int `mapstructure:"workers"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.path", "./data/salespipe.db")
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("queue.mode", "redis")
	v.SetDefault("queue.addr", "localhost:6379")
	v.SetDefault("queue.database", 0)
	v.SetDefault("queue.key", "salespipe:jobs")
	v.SetDefault("queue.timeout", 5*time.Second)
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.bucket", "salespipe-uploads")
	v.SetDefault("weather.base_url", "https://archive-api.open-meteo.com/v1/era5")
	// Bondi Junction (Sydney)
	v.SetDefault("weather.latitude", -33.8908)
	v.SetDefault("weather.longitude", 151.2495)
	v.SetDefault("weather.timezone", "Australia/Sydney")
	v.SetDefault("weather.chunk_days", 31)
	v.SetDefault("weather.timeout", 60*time.Second)
	v.SetDefault("enrichment.holiday_region", "AU-NSW")
	v.SetDefault("enrichment.extra_holidays", []string{})
	v.SetDefault("enrichment.local_events", []string{})
	v.SetDefault("enrichment.workers", 4)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.name", "DB_NAME")
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("queue.addr", "REDIS_ADDR")
	v.BindEnv("queue.password", "REDIS_PASSWORD")
	v.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
	v.BindEnv("storage.bucket", "STORAGE_BUCKET")
	v.BindEnv("weather.latitude", "WEATHER_LAT")
	v.BindEnv("weather.longitude", "WEATHER_LON")
	v.BindEnv("weather.timezone", "WEATHER_TZ")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
