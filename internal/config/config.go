// Package config contains utility structs/functions and types
// for validating the configurations across the library.
//
// Validation never fails hard: every suspicious value is reported as an
// anomaly and replaced with a safe fallback, so a half-filled configuration
// still yields a usable component.
package config

// Config defines the minimal interface for a configuration
// in order to be validated.
type Config interface {
	// Validate checks the configuration.
	Validate(ac *AnomalyCollector)
}
