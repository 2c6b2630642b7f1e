package model

import (
	"strings"
	"unicode/utf8"
)

func checkLength(field, value string, min, max int) error {
	n := utf8.RuneCountInString(value)
	if n < min || n > max {
		return Invalid("%s must be between %d and %d characters", field, min, max)
	}
	return nil
}

func checkRequired(field, value string, min, max int) error {
	if strings.TrimSpace(value) == "" {
		return Invalid("%s is required", field)
	}
	return checkLength(field, value, min, max)
}

// checkOptional validates value only when it is non-nil.
func checkOptional(field string, value *string, min, max int) error {
	if value == nil {
		return nil
	}
	return checkRequired(field, *value, min, max)
}

// normalizeOptional turns a blank optional string into nil.
func normalizeOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
