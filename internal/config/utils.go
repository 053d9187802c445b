package config

import (
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

func getEnv(key, defaultVal string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value, ok := os.LookupEnv(key); ok {
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
	}
	return defaultVal
}

// getEnvAsAmount reads a money amount in minor units. Group separators are
// accepted so "30_000", "30,000" and "30.000" all read as 30000 dong.
func getEnvAsAmount(key string, defaultVal int64) int64 {
	if value, ok := os.LookupEnv(key); ok {
		digits := strings.Map(func(r rune) rune {
			switch r {
			case '_', ',', '.', ' ':
				return -1
			}
			return r
		}, value)
		if v, err := strconv.ParseInt(digits, 10, 64); err == nil {
			return v
		}
	}
	return defaultVal
}

// getEnvAsRateBPS reads a rate in basis points. A trailing % switches to
// percent, so "8%" and "800" both mean 800 bps.
func getEnvAsRateBPS(key string, defaultVal int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	value = strings.TrimSpace(value)
	if pct, isPct := strings.CutSuffix(value, "%"); isPct {
		f, err := strconv.ParseFloat(strings.TrimSpace(pct), 64)
		if err != nil {
			return defaultVal
		}
		return int(math.Round(f * 100))
	}
	if v, err := strconv.Atoi(value); err == nil {
		return v
	}
	return defaultVal
}

// getEnvAsHours reads a whole number of hours. Besides a bare count it takes
// a day suffix ("2d") or a Go duration ("36h"); fractions round down.
func getEnvAsHours(key string, defaultVal int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	value = strings.TrimSpace(value)
	if v, err := strconv.Atoi(value); err == nil {
		return v
	}
	if days, isDays := strings.CutSuffix(value, "d"); isDays {
		if v, err := strconv.Atoi(days); err == nil {
			return v * 24
		}
		return defaultVal
	}
	if d, err := time.ParseDuration(value); err == nil {
		return int(d / time.Hour)
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			return v
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if v, err := strconv.ParseBool(value); err == nil {
			return v
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvAsStringSlice(key string, defaults []string) []string {
	if value, ok := os.LookupEnv(key); ok {
		parts := strings.Split(value, ",")
		filtered := make([]string, 0, len(parts))
		for _, part := range parts {
			p := strings.TrimSpace(part)
			if p != "" {
				filtered = append(filtered, p)
			}
		}
		if len(filtered) > 0 {
			return filtered
		}
	}
	return defaults
}
