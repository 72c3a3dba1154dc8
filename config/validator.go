// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
	Level   string // "error", "warning", "info"
}

// ValidateConfiguration validates the entire configuration
func ValidateConfiguration(cfg *Config) []ValidationError {
	var errors []ValidationError

	if cfg.Ring != nil {
		errors = append(errors, validateRingConfig(cfg.Ring)...)
	}

	if cfg.KeyStore != nil {
		errors = append(errors, validateKeyStoreConfig(cfg.KeyStore)...)
	}

	if cfg.Storage != nil {
		errors = append(errors, validateStorageConfig(cfg.Storage)...)
	}

	errors = append(errors, validateEnvironment(cfg.Environment)...)

	return errors
}

func validateRingConfig(cfg *RingConfig) []ValidationError {
	var errors []ValidationError

	if cfg.SuccessorListSize < 0 {
		errors = append(errors, ValidationError{
			Field:   "Ring.SuccessorListSize",
			Message: "successor list size cannot be negative",
			Level:   "error",
		})
	}

	if cfg.StabilizeInterval < 0 {
		errors = append(errors, ValidationError{
			Field:   "Ring.StabilizeInterval",
			Message: "stabilize interval cannot be negative",
			Level:   "error",
		})
	}

	if len(cfg.BootstrapPeers) == 0 {
		errors = append(errors, ValidationError{
			Field:   "Ring.BootstrapPeers",
			Message: "no bootstrap peers configured; this node will seed a new ring",
			Level:   "info",
		})
	}

	if len(cfg.ICEServers) == 0 {
		errors = append(errors, ValidationError{
			Field:   "Ring.ICEServers",
			Message: "no ICE servers configured; peer connections behind NAT may fail to gather candidates",
			Level:   "warning",
		})
	}

	return errors
}

func validateKeyStoreConfig(cfg *KeyStoreConfig) []ValidationError {
	var errors []ValidationError

	validTypes := []string{"encrypted-file", "file", "memory"}
	if cfg.Type != "" && !contains(validTypes, cfg.Type) {
		errors = append(errors, ValidationError{
			Field:   "KeyStore.Type",
			Message: fmt.Sprintf("invalid keystore type: %s (valid: %v)", cfg.Type, validTypes),
			Level:   "error",
		})
	}

	return errors
}

func validateStorageConfig(cfg *StorageConfig) []ValidationError {
	var errors []ValidationError

	validBackends := []string{"memory", "postgres"}
	if cfg.Backend != "" && !contains(validBackends, cfg.Backend) {
		errors = append(errors, ValidationError{
			Field:   "Storage.Backend",
			Message: fmt.Sprintf("invalid storage backend: %s (valid: %v)", cfg.Backend, validBackends),
			Level:   "error",
		})
	}

	if cfg.Backend == "postgres" && cfg.Postgres == nil {
		errors = append(errors, ValidationError{
			Field:   "Storage.Postgres",
			Message: "postgres backend selected but no postgres connection configured",
			Level:   "error",
		})
	}

	return errors
}

// validateEnvironment validates environment settings
func validateEnvironment(env string) []ValidationError {
	var errors []ValidationError

	validEnvs := []string{"local", "development", "staging", "production"}
	env = strings.ToLower(env)

	if !contains(validEnvs, env) {
		errors = append(errors, ValidationError{
			Field:   "Environment",
			Message: fmt.Sprintf("invalid environment: %s (valid: %v)", env, validEnvs),
			Level:   "error",
		})
	}

	if env == "production" {
		errors = append(errors, ValidationError{
			Field:   "Environment",
			Message: "running in production mode - ensure keystore passphrase and TURN credentials are configured",
			Level:   "info",
		})
	}

	return errors
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// ValidateFile validates a configuration file
func ValidateFile(path string) ([]ValidationError, error) {
	cfg, err := LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return ValidateConfiguration(cfg), nil
}

// PrintValidationErrors prints validation errors in a formatted way
func PrintValidationErrors(errors []ValidationError) {
	if len(errors) == 0 {
		fmt.Println("configuration is valid")
		return
	}

	var errorCount, warningCount, infoCount int
	for _, e := range errors {
		switch e.Level {
		case "error":
			errorCount++
		case "warning":
			warningCount++
		case "info":
			infoCount++
		}
	}

	fmt.Printf("configuration validation found %d errors, %d warnings, %d info messages\n\n",
		errorCount, warningCount, infoCount)

	for _, e := range errors {
		if e.Level == "error" {
			fmt.Printf("ERROR: %s - %s\n", e.Field, e.Message)
		}
	}
	for _, e := range errors {
		if e.Level == "warning" {
			fmt.Printf("WARNING: %s - %s\n", e.Field, e.Message)
		}
	}
	for _, e := range errors {
		if e.Level == "info" {
			fmt.Printf("INFO: %s - %s\n", e.Field, e.Message)
		}
	}
}
