package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"billocr/pkg/logger"
)

// Config is the process configuration read from the environment.
type Config struct {
	DBDSN         string
	DBAutoMigrate bool
	// AdminPassword seeds an "admin" account on first start when set.
	AdminPassword string

	HTTPAddr    string
	JWTSecret   string
	UploadBase  string
	MaxUploadMB int

	OCRLanguage     string
	TessdataPrefix  string
	OCRTimeout      time.Duration
	PipelineTimeout time.Duration
	MaxPixels       int
	BatchWorkers    int

	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

// ErrMissingDSN is returned by RequireDB when DB_DSN is not set.
var ErrMissingDSN = errors.New("DB_DSN is not set; a Postgres DSN is required")

const devJWTSecret = "dev-insecure-secret-change"

// Load reads ./.env, if present, without overriding variables already set, then builds
// the configuration.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds the configuration from the current environment only.
func FromEnv() (*Config, error) {
	var errs []error
	logDefaults := logger.DefaultConfig()
	c := &Config{
		DBDSN:          strings.TrimSpace(os.Getenv("DB_DSN")),
		DBAutoMigrate:  getEnvBool("DB_AUTO_MIGRATE", true, &errs),
		AdminPassword:  os.Getenv("ADMIN_PASSWORD"),
		HTTPAddr:       getEnv("HTTP_ADDR", ":8081"),
		JWTSecret:      getEnv("JWT_SECRET", devJWTSecret),
		UploadBase:     getEnv("UPLOAD_BASE", "uploads"),
		MaxUploadMB:    getEnvInt("MAX_UPLOAD_MB", 10, &errs),
		OCRLanguage:    getEnv("OCR_LANGUAGE", "vie"),
		TessdataPrefix: os.Getenv("TESSDATA_PREFIX"),
		OCRTimeout:     getEnvDuration("OCR_TIMEOUT", 60*time.Second, &errs),
		// decoded size limit; phone photos are far below it
		PipelineTimeout: getEnvDuration("PIPELINE_TIMEOUT", 3*time.Minute, &errs),
		MaxPixels:       getEnvInt("OCR_MAX_PIXELS", 40_000_000, &errs),
		BatchWorkers:    getEnvInt("BATCH_WORKERS", runtime.NumCPU(), &errs),
		LogLevel:        getEnv("LOG_LEVEL", logDefaults.Level),
		LogFormat:       getEnv("LOG_FORMAT", logDefaults.Format),
		LogTimeFormat:   getEnv("LOG_TIME_FORMAT", logDefaults.TimeFormat),
		LogOutput:       getEnv("LOG_OUTPUT", logDefaults.Output),
	}
	if c.MaxUploadMB <= 0 {
		errs = append(errs, fmt.Errorf("MAX_UPLOAD_MB must be positive, got %d", c.MaxUploadMB))
	}
	if c.BatchWorkers <= 0 {
		c.BatchWorkers = runtime.NumCPU()
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return c, nil
}

// RequireDB fails when no database is configured.
func (c *Config) RequireDB() error {
	if c.DBDSN == "" {
		return ErrMissingDSN
	}
	return nil
}

// InsecureSecret reports whether the development JWT secret is in use.
func (c *Config) InsecureSecret() bool { return c.JWTSecret == devJWTSecret }

// MaxUploadBytes is MaxUploadMB in bytes.
func (c *Config) MaxUploadBytes() int64 { return int64(c.MaxUploadMB) << 20 }

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int, errs *[]error) int {
	v := getEnv(key, "")
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool, errs *[]error) bool {
	switch strings.ToLower(getEnv(key, "")) {
	case "":
		return defaultValue
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		*errs = append(*errs, fmt.Errorf("%s: invalid boolean %q", key, os.Getenv(key)))
		return defaultValue
	}
}

func getEnvDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return defaultValue
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return d
}
