package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains runtime configuration values.
type Config struct {
	Environment          string
	HTTPPort             string
	DatabaseURL          string
	ServiceName          string
	LogFile              string
	RateLimitRPM         int
	LockoutThreshold     int
	LockoutDuration      time.Duration
	SessionTTL           time.Duration
	SessionExpiringSoon  time.Duration
	GeoIPEndpoint        string
	GeoIPTimeout         time.Duration
	IPEchoEndpoint       string
	AdminJWTSecret       string
	TelemetryEndpoint    string
	TelemetryInsecure    bool
	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	cfg := Config{
		Environment:          getEnv("APP_ENV", "development"),
		HTTPPort:             getEnv("HTTP_PORT", "8080"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		ServiceName:          getEnv("SERVICE_NAME", "summithq-security"),
		LogFile:              os.Getenv("LOG_FILE"),
		RateLimitRPM:         getInt("RATE_LIMIT_RPM", 600),
		LockoutThreshold:     getInt("LOCKOUT_THRESHOLD", 5),
		LockoutDuration:      getDuration("LOCKOUT_DURATION", 30*time.Minute),
		SessionTTL:           getDuration("SESSION_TTL", 24*time.Hour),
		SessionExpiringSoon:  getDuration("SESSION_EXPIRING_SOON", time.Hour),
		GeoIPEndpoint:        os.Getenv("GEOIP_ENDPOINT"),
		GeoIPTimeout:         getDuration("GEOIP_TIMEOUT", 2*time.Second),
		IPEchoEndpoint:       os.Getenv("IP_ECHO_ENDPOINT"),
		AdminJWTSecret:       os.Getenv("ADMIN_JWT_SECRET"),
		TelemetryEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:    getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		CORSAllowedOrigins:   getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowedMethods:   getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
		CORSAllowedHeaders:   getList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type"}),
		CORSAllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", false),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.AdminJWTSecret == "" {
		return Config{}, fmt.Errorf("ADMIN_JWT_SECRET is required")
	}

	if cfg.LockoutThreshold < 1 {
		cfg.LockoutThreshold = 5
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}
