package config

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DB_DSN", "DB_AUTO_MIGRATE", "HTTP_ADDR", "JWT_SECRET", "UPLOAD_BASE", "MAX_UPLOAD_MB",
		"OCR_LANGUAGE", "TESSDATA_PREFIX", "OCR_TIMEOUT", "PIPELINE_TIMEOUT", "OCR_MAX_PIXELS",
		"BATCH_WORKERS", "LOG_LEVEL", "LOG_FORMAT", "LOG_TIME_FORMAT", "LOG_OUTPUT",
	} {
		t.Setenv(k, "")
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnv(t)

	c, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, ":8081", c.HTTPAddr)
	require.True(t, c.DBAutoMigrate)
	require.Equal(t, "uploads", c.UploadBase)
	require.Equal(t, int64(10<<20), c.MaxUploadBytes())
	require.Equal(t, "vie", c.OCRLanguage)
	require.Equal(t, 60*time.Second, c.OCRTimeout)
	require.Equal(t, 3*time.Minute, c.PipelineTimeout)
	require.Equal(t, runtime.NumCPU(), c.BatchWorkers)
	require.True(t, c.InsecureSecret())
	require.ErrorIs(t, c.RequireDB(), ErrMissingDSN)
	require.Equal(t, "info", c.GetLoggerConfig().Level)
}

func TestFromEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_DSN", "host=localhost dbname=bills")
	t.Setenv("DB_AUTO_MIGRATE", "no")
	t.Setenv("OCR_TIMEOUT", "15")
	t.Setenv("PIPELINE_TIMEOUT", "90s")
	t.Setenv("BATCH_WORKERS", "3")
	t.Setenv("JWT_SECRET", "s3cret")

	c, err := FromEnv()
	require.NoError(t, err)
	require.NoError(t, c.RequireDB())
	require.False(t, c.DBAutoMigrate)
	require.Equal(t, 15*time.Second, c.OCRTimeout)
	require.Equal(t, 90*time.Second, c.PipelineTimeout)
	require.Equal(t, 3, c.BatchWorkers)
	require.False(t, c.InsecureSecret())
}

func TestFromEnvInvalid(t *testing.T) {
	clearEnv(t)
	t.Setenv("MAX_UPLOAD_MB", "lots")
	t.Setenv("DB_AUTO_MIGRATE", "maybe")
	t.Setenv("OCR_TIMEOUT", "soon")

	_, err := FromEnv()
	require.Error(t, err)
	require.Contains(t, err.Error(), "MAX_UPLOAD_MB")
	require.Contains(t, err.Error(), "DB_AUTO_MIGRATE")
	require.Contains(t, err.Error(), "OCR_TIMEOUT")
}
