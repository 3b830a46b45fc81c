// Package config centralizes how Luna Shield reads environment variables (and
// an optional .env file) and exposes them as typed Go values.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the runtime configuration shared by the CLI, the web front end
// and the stand-in backend.
type Config struct {
	Endpoint           string
	FieldName          string
	MaxUploadBytes     int64
	AllowedTypes       []string
	Address            string
	BackendAddress     string
	BackendUnavailable bool
	Frames             int
	LogLevel           string
	LogFormat          string
}

const (
	defaultEnvFile        = ".env"
	defaultEndpoint       = "http://localhost:8000/analyze"
	defaultFieldName      = "file"
	defaultMaxUploadMB    = 50
	maxUploadMB           = 4096
	defaultAllowedTypes   = "video/mp4,video/quicktime,video/x-msvideo,video/avi"
	defaultAddress        = ":8080"
	defaultBackendAddress = ":8000"
	defaultFrames         = 10
	defaultLogLevel       = "info"
	defaultLogFormat      = "text"
)

// Load reads configuration from the environment, falling back to defaults.
// Variables from the .env file named by LUNASHIELD_ENV_FILE (default ".env")
// are applied first but never override variables already set. A missing .env
// is not an error.
func Load() (*Config, error) {
	envFile := readEnv("LUNASHIELD_ENV_FILE", defaultEnvFile)
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := &Config{
		Endpoint:           readEnv("LUNASHIELD_ENDPOINT", defaultEndpoint),
		FieldName:          readEnv("LUNASHIELD_FIELD_NAME", defaultFieldName),
		MaxUploadBytes:     uploadBytes(parseInt64("LUNASHIELD_MAX_UPLOAD_MB", defaultMaxUploadMB)),
		AllowedTypes:       parseList("LUNASHIELD_ALLOWED_TYPES", defaultAllowedTypes),
		Address:            readEnv("LUNASHIELD_ADDRESS", defaultAddress),
		BackendAddress:     readEnv("LUNASHIELD_BACKEND_ADDRESS", defaultBackendAddress),
		BackendUnavailable: parseBool("LUNASHIELD_BACKEND_UNAVAILABLE", false),
		Frames:             parseInt("LUNASHIELD_FRAMES", defaultFrames),
		LogLevel:           strings.ToLower(readEnv("LUNASHIELD_LOG_LEVEL", defaultLogLevel)),
		LogFormat:          strings.ToLower(readEnv("LUNASHIELD_LOG_FORMAT", defaultLogFormat)),
	}
	if len(cfg.AllowedTypes) == 0 {
		cfg.AllowedTypes = parseList("", defaultAllowedTypes)
	}
	if cfg.Frames <= 0 {
		cfg.Frames = defaultFrames
	}
	if cfg.LogFormat != "json" {
		cfg.LogFormat = defaultLogFormat
	}
	return cfg, nil
}

// uploadBytes converts the MB setting to bytes. Non-positive values fall back
// to the default and values above maxUploadMB are clamped before shifting.
func uploadBytes(mb int64) int64 {
	switch {
	case mb <= 0:
		mb = defaultMaxUploadMB
	case mb > maxUploadMB:
		mb = maxUploadMB
	}
	return mb << 20
}

func readEnv(key, def string) string {
	if key == "" {
		return def
	}
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

// parseList splits a comma separated value and drops empty entries.
func parseList(key, def string) []string {
	val := readEnv(key, def)
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseInt64(key string, def int64) int64 {
	if v := readEnv(key, ""); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
	}
	return def
}

func parseInt(key string, def int) int {
	if v := readEnv(key, ""); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseBool(key string, def bool) bool {
	if v := readEnv(key, ""); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}
