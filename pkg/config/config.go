package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	CORS         CORSConfig
	Log          LogConfig
	Metrics      MetricsConfig
	ScreenGroups ScreenGroupsConfig
	Targeting    TargetingConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience []string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// ScreenGroupsConfig tunes group membership behaviour.
type ScreenGroupsConfig struct {
	AllowArchivedAdd   bool
	HealthCacheEnabled bool
	HealthCacheTTL     time.Duration
	CSVMaxBytes        int64
}

// TargetingConfig holds the thresholds used for online status and preview warnings.
type TargetingConfig struct {
	OfflineThreshold time.Duration
	LowScreenFloor   int
	OfflineRatio     float64
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:   v.GetString("JWT_SECRET"),
		Issuer:   v.GetString("JWT_ISSUER"),
		Audience: splitAndTrim(v.GetString("JWT_AUDIENCE")),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Metrics = MetricsConfig{
		Enabled: v.GetBool("ENABLE_METRICS"),
		Path:    v.GetString("METRICS_PATH"),
	}

	csvMax := v.GetInt64("SCREEN_GROUPS_CSV_MAX_BYTES")
	if csvMax <= 0 {
		csvMax = 1 << 20
	}
	cfg.ScreenGroups = ScreenGroupsConfig{
		AllowArchivedAdd:   v.GetBool("SCREEN_GROUPS_ALLOW_ARCHIVED_ADD"),
		HealthCacheEnabled: v.GetBool("SCREEN_GROUPS_ENABLE_HEALTH_CACHE"),
		HealthCacheTTL:     parseDuration(v.GetString("SCREEN_GROUPS_HEALTH_CACHE_TTL"), 30*time.Second),
		CSVMaxBytes:        csvMax,
	}

	floor := v.GetInt("TARGETING_LOW_SCREEN_FLOOR")
	if floor <= 0 {
		floor = 5
	}
	ratio := v.GetFloat64("TARGETING_OFFLINE_RATIO")
	if ratio <= 0 || ratio > 1 {
		ratio = 0.5
	}
	cfg.Targeting = TargetingConfig{
		OfflineThreshold: parseDuration(v.GetString("SCREEN_OFFLINE_THRESHOLD"), 2*time.Minute),
		LowScreenFloor:   floor,
		OfflineRatio:     ratio,
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "beamer")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_AUDIENCE", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_METRICS", true)
	v.SetDefault("METRICS_PATH", "/metrics")

	v.SetDefault("SCREEN_GROUPS_ALLOW_ARCHIVED_ADD", false)
	v.SetDefault("SCREEN_GROUPS_ENABLE_HEALTH_CACHE", true)
	v.SetDefault("SCREEN_GROUPS_HEALTH_CACHE_TTL", "30s")
	v.SetDefault("SCREEN_GROUPS_CSV_MAX_BYTES", 1<<20)

	v.SetDefault("SCREEN_OFFLINE_THRESHOLD", "2m")
	v.SetDefault("TARGETING_LOW_SCREEN_FLOOR", 5)
	v.SetDefault("TARGETING_OFFLINE_RATIO", 0.5)
}

// isMissingFile reports whether viper failed because .env does not exist;
// SetConfigFile bypasses the search path so the error comes from the filesystem.
func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
