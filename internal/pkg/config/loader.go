// Package config provides environment-based configuration loading with
// strict validation. Values that are set but invalid are startup errors;
// only unset variables fall back to their defaults. This keeps a typo in
// production config from silently running the bot with surprise values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// GetEnvString reads a string from the environment, returning defaultValue
// when the variable is unset or empty.
func GetEnvString(envKey, defaultValue string) string {
	if value := os.Getenv(envKey); value != "" {
		return value
	}
	return defaultValue
}

// RequireEnv reads a string that must be present and non-empty.
func RequireEnv(envKey string) (string, error) {
	value := os.Getenv(envKey)
	if value == "" {
		return "", fmt.Errorf("required environment variable %s is not set", envKey)
	}
	return value, nil
}

// GetEnvInt reads an integer from the environment. An unset variable
// yields defaultValue; a set but unparseable or invalid value is an
// error. validate may be nil.
func GetEnvInt(envKey string, defaultValue int, validate func(int) error) (int, error) {
	raw := os.Getenv(envKey)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", envKey, raw, err)
	}
	if validate != nil {
		if err := validate(value); err != nil {
			return 0, fmt.Errorf("%s: %w", envKey, err)
		}
	}
	return value, nil
}

// GetEnvFloat reads a float64 from the environment with the same
// unset-defaults, invalid-fails contract as GetEnvInt.
func GetEnvFloat(envKey string, defaultValue float64, validate func(float64) error) (float64, error) {
	raw := os.Getenv(envKey)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q: %w", envKey, raw, err)
	}
	if validate != nil {
		if err := validate(value); err != nil {
			return 0, fmt.Errorf("%s: %w", envKey, err)
		}
	}
	return value, nil
}

// GetEnvDuration reads a time.Duration from the environment, accepting
// Go duration syntax such as "30s", "5m" or "1h30m".
func GetEnvDuration(envKey string, defaultValue time.Duration, validate func(time.Duration) error) (time.Duration, error) {
	raw := os.Getenv(envKey)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", envKey, raw, err)
	}
	if validate != nil {
		if err := validate(value); err != nil {
			return 0, fmt.Errorf("%s: %w", envKey, err)
		}
	}
	return value, nil
}

// GetEnvBool reads a boolean from the environment. Accepted values are
// the ones strconv.ParseBool understands ("true", "false", "1", "0", ...).
func GetEnvBool(envKey string, defaultValue bool) (bool, error) {
	raw := os.Getenv(envKey)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q: %w", envKey, raw, err)
	}
	return value, nil
}
