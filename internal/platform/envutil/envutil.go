package envutil

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/mensa-backend/internal/platform/logger"
)

// Int reads an integer without logging. Used by packages that are
// initialized before a logger exists.
func Int(name string, def int) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func GetEnv(key, defaultVal string, log *logger.Logger) string {
	if log != nil {
		log = log.With("env_var", key)
	}
	val, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(val) == "" {
		if log != nil {
			log.Debug("Environment variable not found, using default", "default", defaultVal)
		}
		return defaultVal
	}
	if log != nil {
		log.Debug("Environment variable found, using environment", "environment", val)
	}
	return strings.TrimSpace(val)
}

func GetEnvAsInt(key string, defaultVal int, log *logger.Logger) int {
	raw, ok := lookup(key, log, defaultVal)
	if !ok {
		return defaultVal
	}
	i, err := strconv.Atoi(raw)
	if err != nil {
		parseFailed(log, key, raw, defaultVal, err)
		return defaultVal
	}
	return i
}

func GetEnvAsFloat(key string, defaultVal float64, log *logger.Logger) float64 {
	raw, ok := lookup(key, log, defaultVal)
	if !ok {
		return defaultVal
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		parseFailed(log, key, raw, defaultVal, err)
		return defaultVal
	}
	return f
}

func GetEnvAsBool(key string, defaultVal bool, log *logger.Logger) bool {
	raw, ok := lookup(key, log, defaultVal)
	if !ok {
		return defaultVal
	}
	switch strings.ToLower(raw) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		parseFailed(log, key, raw, defaultVal, nil)
		return defaultVal
	}
}

// GetEnvAsDuration accepts Go duration strings ("90s", "3h") or a bare
// number of seconds.
func GetEnvAsDuration(key string, defaultVal time.Duration, log *logger.Logger) time.Duration {
	raw, ok := lookup(key, log, defaultVal)
	if !ok {
		return defaultVal
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		parseFailed(log, key, raw, defaultVal, err)
		return defaultVal
	}
	return d
}

func lookup(key string, log *logger.Logger, def any) (string, bool) {
	val, ok := os.LookupEnv(key)
	val = strings.TrimSpace(val)
	if !ok || val == "" {
		if log != nil {
			log.Debug("Environment variable not found, using default", "env_var", key, "default", def)
		}
		return "", false
	}
	return val, true
}

func parseFailed(log *logger.Logger, key, raw string, def any, err error) {
	if log == nil {
		return
	}
	log.Warn("Environment variable could not be parsed, using default",
		"env_var", key,
		"providedVal", raw,
		"defaultVal", def,
		"error", err,
	)
}
