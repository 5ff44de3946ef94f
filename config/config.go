package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Broadcast backends understood by the realtime relay.
const (
	BroadcastLocal = "local"
	BroadcastRedis = "redis"
	BroadcastNATS  = "nats"
)

const minSecretBytes = 32

// AppConfig holds environment driven configuration values.
// The signing secret has no default and must be provided via env files or the environment.
type AppConfig struct {
	AppPort            string   `json:"AppPort"`
	SecretKey          string   `json:"SecretKey"`
	TokenTTLDays       int      `json:"TokenTTLDays"`
	AllowedOrigins     []string `json:"AllowedOrigins"`
	RateLimitPerMinute int      `json:"RateLimitPerMinute"`
	ShutdownTimeoutSec int      `json:"ShutdownTimeoutSec"`
	// Storage
	DatabaseURI    string `json:"DatabaseURI"`
	DBMaxOpenConns int    `json:"DBMaxOpenConns"`
	DBMaxIdleConns int    `json:"DBMaxIdleConns"`
	// Gin framework configuration
	GinMode string `json:"GinMode"`
	GinPath string `json:"GinPath"`
	// Logging configuration
	LogLevel      string `json:"LogLevel"`
	LogPath       string `json:"LogPath"`
	LogMaxSizeMB  int    `json:"LogMaxSizeMB"`
	LogMaxBackups int    `json:"LogMaxBackups"`
	LogMaxAgeDays int    `json:"LogMaxAgeDays"`
	LogCompress   bool   `json:"LogCompress"`
	// Realtime fan-out across instances
	BroadcastBackend string `json:"BroadcastBackend"`
	RedisHost        string `json:"RedisHost"`
	RedisPort        int    `json:"RedisPort"`
	RedisDB          int    `json:"RedisDB"`
	RedisPassword    string `json:"RedisPassword"`
	RedisChannel     string `json:"RedisChannel"`
	NATSURL          string `json:"NATSURL"`
	NATSSubject      string `json:"NATSSubject"`
}

// Load builds the configuration. Precedence: config.json -> defaults -> environment
// (a .env file in the working directory is folded into the environment first).
func Load() (AppConfig, error) {
	var cfg AppConfig

	// Existing process variables win over .env entries.
	_ = godotenv.Load()

	path := getEnv("CONFIG_FILE", filepath.Join("config", "config.json"))
	if err := loadJSONConfig(path, &cfg); err != nil {
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}

	applyDefaults(&cfg)

	if err := applyEnvOverrides(&cfg); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the service must not start with.
func (c AppConfig) Validate() error {
	var errs []error
	if strings.TrimSpace(c.SecretKey) == "" {
		errs = append(errs, errors.New("SECRET_KEY must be set"))
	} else if len(c.SecretKey) < minSecretBytes {
		errs = append(errs, fmt.Errorf("SECRET_KEY must be at least %d bytes", minSecretBytes))
	}
	if port, err := strconv.Atoi(c.AppPort); err != nil || port <= 0 || port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %q", c.AppPort))
	}
	if c.TokenTTLDays <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL_DAYS must be positive"))
	}
	switch c.BroadcastBackend {
	case BroadcastLocal, BroadcastRedis, BroadcastNATS:
	default:
		errs = append(errs, fmt.Errorf("unknown BROADCAST_BACKEND %q", c.BroadcastBackend))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultVal string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return defaultVal
}

// firstEnv returns the first non-empty variable among keys.
func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := getEnv(k, ""); v != "" {
			return v
		}
	}
	return ""
}

// loadJSONConfig reads a JSON file into cfg if present. Missing files are not an error.
func loadJSONConfig(path string, out *AppConfig) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

// applyDefaults sets sane defaults for zero-value fields.
func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "5000"
	}
	if c.TokenTTLDays == 0 {
		c.TokenTTLDays = 7
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"http://localhost:5173"}
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 60
	}
	if c.ShutdownTimeoutSec == 0 {
		c.ShutdownTimeoutSec = 30
	}
	if c.DatabaseURI == "" {
		c.DatabaseURI = "sqlite:///db.sqlite3"
	}
	if c.DBMaxOpenConns == 0 {
		c.DBMaxOpenConns = 20
	}
	if c.DBMaxIdleConns == 0 {
		c.DBMaxIdleConns = 5
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/gin.log"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
	if c.BroadcastBackend == "" {
		c.BroadcastBackend = BroadcastLocal
	}
	if c.RedisHost == "" {
		c.RedisHost = "127.0.0.1"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.RedisChannel == "" {
		c.RedisChannel = "geopost:events"
	}
	if c.NATSURL == "" {
		c.NATSURL = "nats://127.0.0.1:4222"
	}
	if c.NATSSubject == "" {
		c.NATSSubject = "geopost.events"
	}
}

// applyEnvOverrides maps known environment variables onto config values when present.
func applyEnvOverrides(c *AppConfig) error {
	var errs []error
	setInt := func(dst *int, key string) {
		if v := getEnv(key, ""); v != "" {
			i, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid integer value %s=%q", key, v))
				return
			}
			*dst = i
		}
	}

	if v := firstEnv("APP_PORT", "PORT"); v != "" {
		c.AppPort = v
	}
	if v := firstEnv("SECRET_KEY", "JWT_SECRET"); v != "" {
		c.SecretKey = v
	}
	setInt(&c.TokenTTLDays, "TOKEN_TTL_DAYS")
	if v := firstEnv("FRONT_ORIGIN", "CORS_ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = splitAndTrim(v)
	}
	setInt(&c.RateLimitPerMinute, "RATE_LIMIT_PER_MINUTE")
	setInt(&c.ShutdownTimeoutSec, "SHUTDOWN_TIMEOUT_SEC")

	if v := firstEnv("DATABASE_URI", "DATABASE_URL"); v != "" {
		c.DatabaseURI = v
	}
	setInt(&c.DBMaxOpenConns, "DB_MAX_OPEN_CONNS")
	setInt(&c.DBMaxIdleConns, "DB_MAX_IDLE_CONNS")

	if v := getEnv("GIN_MODE", ""); v != "" {
		c.GinMode = v
	}
	if v := getEnv("GIN_PATH", ""); v != "" {
		c.GinPath = v
	}

	if v := getEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	if v := getEnv("LOG_PATH", ""); v != "" {
		c.LogPath = v
	}
	setInt(&c.LogMaxSizeMB, "LOG_MAX_SIZE_MB")
	setInt(&c.LogMaxBackups, "LOG_MAX_BACKUPS")
	setInt(&c.LogMaxAgeDays, "LOG_MAX_AGE_DAYS")
	if v := getEnv("LOG_COMPRESS", ""); v != "" {
		c.LogCompress = v == "true"
	}

	if v := getEnv("BROADCAST_BACKEND", ""); v != "" {
		c.BroadcastBackend = strings.ToLower(v)
	}
	if v := getEnv("REDIS_HOST", ""); v != "" {
		c.RedisHost = v
	}
	setInt(&c.RedisPort, "REDIS_PORT")
	setInt(&c.RedisDB, "REDIS_DB")
	if v := getEnv("REDIS_PASSWORD", ""); v != "" {
		c.RedisPassword = v
	}
	if v := getEnv("REDIS_CHANNEL", ""); v != "" {
		c.RedisChannel = v
	}
	if v := getEnv("NATS_URL", ""); v != "" {
		c.NATSURL = v
	}
	if v := getEnv("NATS_SUBJECT", ""); v != "" {
		c.NATSSubject = v
	}
	return errors.Join(errs...)
}

func splitAndTrim(raw string) []string {
	items := []string{}
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
