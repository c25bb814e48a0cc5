package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/hupe1980/genmesh/core"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "backends[0].provider")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidProviders returns the list of supported backend providers
func ValidProviders() []string {
	return []string{"openai", "anthropic", "mock"}
}

// ValidStoreDrivers returns the list of supported store drivers
func ValidStoreDrivers() []string {
	return []string{"memory", "sqlite", "none"}
}

// ValidKinds returns the list of generation kinds
func ValidKinds() []string {
	return []string{
		core.KindText.String(),
		core.KindSpeech.String(),
		core.KindImage.String(),
		core.KindEmbedding.String(),
	}
}

// Validate checks the Config for invalid values. The returned error is a
// ValidationErrors listing every problem found, or nil.
func (c *Config) Validate() error {
	var errs ValidationErrors

	if !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errs = append(errs, ValidationError{Field: "logging.level", Value: c.Logging.Level, Message: "must be one of " + strings.Join(ValidLogLevels(), ", ")})
	}
	if f := strings.ToLower(c.Logging.Format); f != "json" && f != "text" {
		errs = append(errs, ValidationError{Field: "logging.format", Value: c.Logging.Format, Message: "must be json or text"})
	}

	if !slices.Contains(ValidStoreDrivers(), c.Store.Driver) {
		errs = append(errs, ValidationError{Field: "store.driver", Value: c.Store.Driver, Message: "must be one of " + strings.Join(ValidStoreDrivers(), ", ")})
	}
	if c.Store.Driver == "sqlite" && c.Store.Path == "" {
		errs = append(errs, ValidationError{Field: "store.path", Value: c.Store.Path, Message: "required for the sqlite driver"})
	}

	if c.Defaults.MaxTries < 0 {
		errs = append(errs, ValidationError{Field: "defaults.max_tries", Value: c.Defaults.MaxTries, Message: "must not be negative"})
	}
	if c.Defaults.Concurrency < 1 {
		errs = append(errs, ValidationError{Field: "defaults.concurrency", Value: c.Defaults.Concurrency, Message: "must be at least 1"})
	}

	names := make(map[string]bool, len(c.Backends))
	for i, b := range c.Backends {
		field := fmt.Sprintf("backends[%d]", i)
		if b.Name == "" {
			errs = append(errs, ValidationError{Field: field + ".name", Value: b.Name, Message: "is required"})
		} else if names[b.Name] {
			errs = append(errs, ValidationError{Field: field + ".name", Value: b.Name, Message: "is duplicated"})
		}
		names[b.Name] = true

		if !slices.Contains(ValidProviders(), b.Provider) {
			errs = append(errs, ValidationError{Field: field + ".provider", Value: b.Provider, Message: "must be one of " + strings.Join(ValidProviders(), ", ")})
		}
		if !slices.Contains(ValidKinds(), b.Kind) {
			errs = append(errs, ValidationError{Field: field + ".kind", Value: b.Kind, Message: "must be one of " + strings.Join(ValidKinds(), ", ")})
		}
		if b.Provider == "anthropic" && b.Kind != "" && b.Kind != core.KindText.String() {
			errs = append(errs, ValidationError{Field: field + ".kind", Value: b.Kind, Message: "anthropic only serves text"})
		}
		if b.MaxTries < 0 || b.Concurrency < 0 || b.TimeoutSeconds < 0 {
			errs = append(errs, ValidationError{Field: field, Value: b.Name, Message: "max_tries, concurrency and timeout_seconds must not be negative"})
		}
		if p := b.Pricing; p.Per < 0 || p.Input < 0 || p.Output < 0 || p.CachedInput < 0 || p.CacheWrite < 0 {
			errs = append(errs, ValidationError{Field: field + ".pricing", Value: p, Message: "rates must not be negative"})
		}
	}

	for i, d := range c.Domains {
		field := fmt.Sprintf("domains[%d]", i)
		if d.Name == "" {
			errs = append(errs, ValidationError{Field: field + ".name", Value: d.Name, Message: "is required"})
		}
		for kind, backend := range d.Backends {
			if !slices.Contains(ValidKinds(), strings.ToLower(kind)) {
				errs = append(errs, ValidationError{Field: field + ".backends." + kind, Value: kind, Message: "unknown generation kind"})
			}
			if !names[backend] {
				errs = append(errs, ValidationError{Field: field + ".backends." + kind, Value: backend, Message: "references an unknown backend"})
			}
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Domain returns the domain named name.
func (c *Config) Domain(name string) (DomainConfig, bool) {
	for _, d := range c.Domains {
		if d.Name == name {
			return d, true
		}
	}
	return DomainConfig{}, false
}
