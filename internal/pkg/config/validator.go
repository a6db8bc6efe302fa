package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ValidatePostingTime validates a daily posting time in 24-hour "HH:MM"
// form, e.g. "09:00" or "21:30".
func ValidatePostingTime(value string) error {
	if value == "" {
		return fmt.Errorf("posting time cannot be empty")
	}
	parts := strings.Split(value, ":")
	if len(parts) != 2 {
		return fmt.Errorf("posting time %q must be in HH:MM format", value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return fmt.Errorf("posting time %q has invalid hour", value)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return fmt.Errorf("posting time %q has invalid minute", value)
	}
	return nil
}

// ValidateTimezone validates an IANA timezone name by loading it.
// Loading depends on tzdata being available on the host; a valid name
// still fails on images stripped of timezone data.
func ValidateTimezone(timezone string) error {
	if timezone == "" {
		return fmt.Errorf("timezone cannot be empty")
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}
	return nil
}

// ValidateDuration checks that a duration lies within [min, max].
func ValidateDuration(duration, min, max time.Duration) error {
	if duration < min || duration > max {
		return fmt.Errorf("duration %v out of range [%v, %v]", duration, min, max)
	}
	return nil
}

// ValidatePositiveDuration checks that a duration is strictly positive.
func ValidatePositiveDuration(duration time.Duration) error {
	if duration <= 0 {
		return fmt.Errorf("duration must be positive, got %v", duration)
	}
	return nil
}

// ValidateNonNegativeDuration checks that a duration is zero or more.
func ValidateNonNegativeDuration(duration time.Duration) error {
	if duration < 0 {
		return fmt.Errorf("duration cannot be negative, got %v", duration)
	}
	return nil
}

// ValidateIntRange checks that value lies within [min, max].
func ValidateIntRange(value, min, max int) error {
	if value < min || value > max {
		return fmt.Errorf("value %d out of range [%d, %d]", value, min, max)
	}
	return nil
}

// ValidatePercent checks that a value is a usable percentage threshold:
// greater than zero and at most 100.
func ValidatePercent(value float64) error {
	if value <= 0 || value > 100 {
		return fmt.Errorf("percentage %v out of range (0, 100]", value)
	}
	return nil
}
