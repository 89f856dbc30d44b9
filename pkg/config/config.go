// Package config provides YAML-based configuration loading with environment variable expansion.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Validator is an interface for configuration validation.
type Validator interface {
	Validate() error
}

// Load loads configuration from a YAML file with environment variable expansion.
func Load[T any](filename string, target *T) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filename, err)
	}
	if err := Decode(data, target); err != nil {
		return fmt.Errorf("config file %s: %w", filename, err)
	}
	return nil
}

// LoadOptional behaves like Load but treats a missing file as empty: target
// keeps its defaults and is still validated. found reports whether the file
// existed.
func LoadOptional[T any](filename string, target *T) (found bool, err error) {
	if _, statErr := os.Stat(filename); errors.Is(statErr, os.ErrNotExist) {
		return false, validate(target)
	}
	return true, Load(filename, target)
}

// Decode expands environment variables in data, unmarshals it over target
// and validates the result.
func Decode[T any](data []byte, target *T) error {
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), target); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return validate(target)
}

func validate[T any](target *T) error {
	if validator, ok := any(target).(Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("config validation failed: %w", err)
		}
	}
	return nil
}
