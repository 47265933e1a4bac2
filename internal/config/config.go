// Package config loads server configuration from environment variables.
//
// Optional variables:
//   - HTTP_ADDR: listen address for the HTTP server (default ":8080").
//   - LOG_LEVEL: minimum log level (default "info").
//   - LOG_FORMAT: "json" or "text" (default "json").
//   - HISTORY_DEPTH: rollback history depth per namespace
//     (default "8", must be > 0 if set).
//   - MAX_JSON_BODY_SIZE: max HTTP JSON request body size in bytes
//     (default "1048576", must be > 0 if set).
//   - SNAPSHOT_DIR: directory of <namespace>.json snapshot files loaded at
//     boot (default: none).
//   - API_TOKEN: bearer token required on mutating endpoints
//     (default: auth disabled).
//   - AUTH_RATE_LIMIT: max failed auth attempts per IP per minute
//     (default "10", must be > 0 if set).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	defaultHTTPAddr              = ":8080"
	defaultHistoryDepth          = 8
	defaultMaxJSONBodySize int64 = 1 << 20 // 1MB
	defaultAuthRateLimit         = 10
)

// Config holds the runtime configuration for the gatekeepd server.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	HistoryDepth    int
	MaxJSONBodySize int64
	SnapshotDir     string
	APIToken        string
	AuthRateLimit   int
}

// Load reads configuration from environment variables, applying defaults
// where appropriate. It returns an error if optional values fail
// validation.
func Load() (Config, error) {
	historyDepth := defaultHistoryDepth
	if v := strings.TrimSpace(os.Getenv("HISTORY_DEPTH")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse HISTORY_DEPTH: %w", err)
		}
		if parsed <= 0 {
			return Config{}, errors.New("HISTORY_DEPTH must be > 0")
		}
		historyDepth = parsed
	}

	maxJSONBodySize := defaultMaxJSONBodySize
	if v := strings.TrimSpace(os.Getenv("MAX_JSON_BODY_SIZE")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 1 {
			return Config{}, errors.New("MAX_JSON_BODY_SIZE must be a positive integer (bytes)")
		}
		maxJSONBodySize = n
	}

	authRateLimit := defaultAuthRateLimit
	if v := strings.TrimSpace(os.Getenv("AUTH_RATE_LIMIT")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse AUTH_RATE_LIMIT: %w", err)
		}
		if parsed <= 0 {
			return Config{}, errors.New("AUTH_RATE_LIMIT must be > 0")
		}
		authRateLimit = parsed
	}

	snapshotDir := strings.TrimSpace(os.Getenv("SNAPSHOT_DIR"))
	if snapshotDir != "" {
		info, err := os.Stat(snapshotDir)
		if err != nil {
			return Config{}, fmt.Errorf("SNAPSHOT_DIR: %w", err)
		}
		if !info.IsDir() {
			return Config{}, fmt.Errorf("SNAPSHOT_DIR %q is not a directory", snapshotDir)
		}
	}

	return Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", defaultHTTPAddr),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		HistoryDepth:    historyDepth,
		MaxJSONBodySize: maxJSONBodySize,
		SnapshotDir:     snapshotDir,
		APIToken:        strings.TrimSpace(os.Getenv("API_TOKEN")),
		AuthRateLimit:   authRateLimit,
	}, nil
}

func envOrDefault(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
