// Package env reads typed configuration from environment variables.
// Unset or blank variables fall back to the supplied default; malformed
// values are reported so startup can abort.
package env

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func String(key, def string) string {
	if v, ok := lookup(key); ok {
		return v
	}
	return def
}

// Int parses key as a positive integer.
func Int(key string, def int) (int, error) {
	v, ok := lookup(key)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n <= 0 {
		return def, fmt.Errorf("invalid %s: must be greater than zero", key)
	}
	return n, nil
}

// Int64 is Int for sizes that may exceed an int on 32-bit targets.
func Int64(key string, def int64) (int64, error) {
	v, ok := lookup(key)
	if !ok {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n <= 0 {
		return def, fmt.Errorf("invalid %s: must be greater than zero", key)
	}
	return n, nil
}

// Duration parses key with time.ParseDuration. Zero is allowed and usually
// disables the feature it configures.
func Duration(key string, def time.Duration) (time.Duration, error) {
	v, ok := lookup(key)
	if !ok {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 {
		return def, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return d, nil
}

func Bool(key string, def bool) (bool, error) {
	v, ok := lookup(key)
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

// List splits a comma separated value, dropping blank items.
func List(key string, def []string) []string {
	v, ok := lookup(key)
	if !ok {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
