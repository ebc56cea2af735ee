package env

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Str returns the value of the environment variable key, or fallback if unset/empty.
func Str(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

// Int parses key as an integer. Unparseable values fall back with a warning.
func Int(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		slog.Warn("invalid int env", "key", key, "value", val)
		return fallback
	}
	return n
}

// Bool accepts anything strconv.ParseBool does.
func Bool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		slog.Warn("invalid bool env", "key", key, "value", val)
		return fallback
	}
	return b
}

// Duration accepts Go durations ("5s") or bare seconds ("5", "0.5").
func Duration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	secs, err := strconv.ParseFloat(val, 64)
	if err != nil {
		slog.Warn("invalid duration env", "key", key, "value", val)
		return fallback
	}
	return time.Duration(secs * float64(time.Second))
}
