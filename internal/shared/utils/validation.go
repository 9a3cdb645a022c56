package utils

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Length limits
const (
	MaxNameLength   = 128
	MaxPathLength   = 4096
	MaxEnvVars      = 64
	MaxEnvKeyLength = 128
	MaxEnvValLength = 4096
)

// EnvKeyPattern matches portable environment variable names
var EnvKeyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateString validates a string field with length and content checks
func ValidateString(value, fieldName string, minLen, maxLen int, required bool) error {
	if required && value == "" {
		return fmt.Errorf("%s is required", fieldName)
	}

	if value == "" && !required {
		return nil // Optional field, empty is OK
	}

	if !utf8.ValidString(value) {
		return fmt.Errorf("%s is not valid UTF-8", fieldName)
	}

	length := utf8.RuneCountInString(value)
	if length < minLen {
		return fmt.Errorf("%s must be at least %d characters", fieldName, minLen)
	}
	if length > maxLen {
		return fmt.Errorf("%s must not exceed %d characters", fieldName, maxLen)
	}

	// Check for null bytes (security issue)
	if strings.Contains(value, "\x00") {
		return fmt.Errorf("%s contains invalid characters", fieldName)
	}

	return nil
}

// ValidateName validates a tab name. Names end up in the tab strip, so
// control characters are rejected.
func ValidateName(name, fieldName string) error {
	if err := ValidateString(name, fieldName, 0, MaxNameLength, false); err != nil {
		return err
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("%s contains control characters", fieldName)
		}
	}
	return nil
}

// ValidateDirectory validates an optional working directory. Relative paths
// are rejected; existence is checked when the shell starts.
func ValidateDirectory(dir string) error {
	if err := ValidateString(dir, "directory", 0, MaxPathLength, false); err != nil {
		return err
	}
	if dir != "" && !filepath.IsAbs(dir) {
		return fmt.Errorf("directory must be absolute: %q", dir)
	}
	return nil
}

// ValidateEnv validates extra environment variables for a shell
func ValidateEnv(env map[string]string) error {
	if len(env) > MaxEnvVars {
		return fmt.Errorf("too many environment variables (maximum %d)", MaxEnvVars)
	}

	for k, v := range env {
		if err := ValidateString(k, "env key", 1, MaxEnvKeyLength, true); err != nil {
			return err
		}
		if !EnvKeyPattern.MatchString(k) {
			return fmt.Errorf("env key %q contains invalid characters", k)
		}
		if err := ValidateString(v, "env["+k+"]", 0, MaxEnvValLength, false); err != nil {
			return err
		}
	}

	return nil
}
