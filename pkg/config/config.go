// Package config assembles process configuration from the environment once,
// at startup. Nothing below cmd/ and the HTTP surface reads the environment.
package config

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/pnku766-alt/fusionintel-core/pkg/archive"
	"github.com/pnku766-alt/fusionintel-core/pkg/observability"
)

// Config holds process configuration.
type Config struct {
	Port      string
	LogLevel  string
	LogFormat string

	AuditLogPath  string
	APIAuditDir   string
	EnforceLayer4 bool
	EnforceLayer5 bool

	RateLimitRPS   float64
	RateLimitBurst int

	AuditSQLitePath string
	DatabaseURL     string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	AuditStream     string

	Archive archive.Config

	OTelEnabled  bool
	OTelEndpoint string
	OTelInsecure bool
}

// Load loads configuration from environment variables.
func Load() *Config {
	region := os.Getenv("ARCHIVE_S3_REGION")
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}

	return &Config{
		Port:      getenv("PORT", "8080"),
		LogLevel:  getenv("LOG_LEVEL", "INFO"),
		LogFormat: getenv("LOG_FORMAT", "json"),

		AuditLogPath:  os.Getenv("FUSIONINTEL_AUDIT_LOG_PATH"),
		APIAuditDir:   os.Getenv("FUSIONINTEL_API_AUDIT_DIR"),
		EnforceLayer4: Truthy(os.Getenv("FUSIONINTEL_ENFORCE_L4")),
		EnforceLayer5: Truthy(os.Getenv("FUSIONINTEL_ENFORCE_L5")),

		RateLimitRPS:   getenvFloat("FUSIONINTEL_RATE_LIMIT_RPS", 20),
		RateLimitBurst: getenvInt("FUSIONINTEL_RATE_LIMIT_BURST", 40),

		AuditSQLitePath: os.Getenv("FUSIONINTEL_AUDIT_SQLITE_PATH"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RedisDB:         getenvInt("REDIS_DB", 0),
		AuditStream:     os.Getenv("FUSIONINTEL_AUDIT_STREAM"),

		Archive: archive.Config{
			Type:    archive.Type(getenv("ARCHIVE_STORAGE_TYPE", string(archive.TypeFS))),
			DataDir: getenv("DATA_DIR", "data"),
			S3: archive.S3Config{
				Bucket:   os.Getenv("ARCHIVE_S3_BUCKET"),
				Region:   region,
				Endpoint: os.Getenv("ARCHIVE_S3_ENDPOINT"),
				Prefix:   os.Getenv("ARCHIVE_S3_PREFIX"),
			},
			GCS: archive.GCSConfig{
				Bucket: os.Getenv("ARCHIVE_GCS_BUCKET"),
				Prefix: os.Getenv("ARCHIVE_GCS_PREFIX"),
			},
		},

		OTelEnabled:  Truthy(os.Getenv("OTEL_ENABLED")),
		OTelEndpoint: getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTelInsecure: Truthy(os.Getenv("OTEL_INSECURE")),
	}
}

// Truthy reports whether v is one of 1, true, yes, y, on (case-insensitive).
func Truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

// SlogLevel maps LogLevel to a slog level, defaulting to Info.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// NewLogger builds the process logger: JSON unless LogFormat is "text".
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if strings.EqualFold(c.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// Observability returns the telemetry configuration.
func (c *Config) Observability(version string) *observability.Config {
	oc := observability.DefaultConfig()
	oc.ServiceVersion = version
	oc.Enabled = c.OTelEnabled
	oc.OTLPEndpoint = c.OTelEndpoint
	oc.Insecure = c.OTelInsecure
	return oc
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func getenvFloat(key string, def float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
