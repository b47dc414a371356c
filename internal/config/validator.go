package config

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "supervisor.poll_interval_ms")
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

// branchPrefixRegex allows prefixes like "user/", "team-x/" or "feat_"
var branchPrefixRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_./-]*$`)

// socketNameRegex restricts tmux socket names to a safe file name
var socketNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateAgent()...)
	errors = append(errors, c.validateBranch()...)
	errors = append(errors, c.validateSupervisor()...)
	errors = append(errors, c.validateFix()...)
	errors = append(errors, c.validateHosting()...)
	errors = append(errors, c.validateTracker()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func (c *Config) validateAgent() []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(c.Agent.Command) == "" {
		errors = append(errors, ValidationError{
			Field:   "agent.command",
			Value:   c.Agent.Command,
			Message: "must not be empty",
		})
	}

	return errors
}

func (c *Config) validateBranch() []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(c.Branch.Base) == "" {
		errors = append(errors, ValidationError{
			Field:   "branch.base",
			Value:   c.Branch.Base,
			Message: "must not be empty",
		})
	}
	if c.Branch.Prefix != "" && !branchPrefixRegex.MatchString(c.Branch.Prefix) {
		errors = append(errors, ValidationError{
			Field:   "branch.prefix",
			Value:   c.Branch.Prefix,
			Message: "must start with alphanumeric and contain only alphanumeric, '.', '/', '-' or '_'",
		})
	}

	return errors
}

func (c *Config) validateSupervisor() []ValidationError {
	var errors []ValidationError

	if !socketNameRegex.MatchString(c.Supervisor.Socket) {
		errors = append(errors, ValidationError{
			Field:   "supervisor.socket",
			Value:   c.Supervisor.Socket,
			Message: "must contain only alphanumeric, '-' or '_'",
		})
	}

	const minPollInterval = 50
	if c.Supervisor.PollIntervalMs < minPollInterval {
		errors = append(errors, ValidationError{
			Field:   "supervisor.poll_interval_ms",
			Value:   c.Supervisor.PollIntervalMs,
			Message: fmt.Sprintf("must be at least %dms", minPollInterval),
		})
	}
	if c.Supervisor.MarkerCheckMs <= 0 {
		errors = append(errors, ValidationError{
			Field:   "supervisor.marker_check_ms",
			Value:   c.Supervisor.MarkerCheckMs,
			Message: "must be positive",
		})
	}

	// The expensive check must stay rarer than the cheap one.
	if c.Supervisor.SessionCheckSeconds*1000 <= c.Supervisor.MarkerCheckMs {
		errors = append(errors, ValidationError{
			Field:   "supervisor.session_check_seconds",
			Value:   c.Supervisor.SessionCheckSeconds,
			Message: "must be longer than supervisor.marker_check_ms",
		})
	}
	if c.Supervisor.HistoryLimit < 0 {
		errors = append(errors, ValidationError{
			Field:   "supervisor.history_limit",
			Value:   c.Supervisor.HistoryLimit,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateFix() []ValidationError {
	var errors []ValidationError

	if c.Fix.MaxIterations < 0 {
		errors = append(errors, ValidationError{
			Field:   "fix.max_iterations",
			Value:   c.Fix.MaxIterations,
			Message: "must be non-negative (0 means unlimited)",
		})
	}
	if c.Fix.IterationDelaySeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "fix.iteration_delay_seconds",
			Value:   c.Fix.IterationDelaySeconds,
			Message: "must be non-negative",
		})
	}
	if c.Fix.RetryDelaySeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "fix.retry_delay_seconds",
			Value:   c.Fix.RetryDelaySeconds,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateHosting() []ValidationError {
	var errors []ValidationError

	if c.Hosting.Provider != "" && !slices.Contains(ValidHostingProviders(), strings.ToLower(c.Hosting.Provider)) {
		errors = append(errors, ValidationError{
			Field:   "hosting.provider",
			Value:   c.Hosting.Provider,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidHostingProviders(), ", ")),
		})
	}

	return errors
}

func (c *Config) validateTracker() []ValidationError {
	var errors []ValidationError

	if !c.Tracker.Enabled {
		return errors
	}
	if c.Tracker.ProjectID == "" {
		errors = append(errors, ValidationError{
			Field:   "tracker.project_id",
			Value:   c.Tracker.ProjectID,
			Message: "is required when tracker.enabled is true",
		})
	}
	if c.Tracker.Command == "" {
		errors = append(errors, ValidationError{
			Field:   "tracker.command",
			Value:   c.Tracker.Command,
			Message: "is required when tracker.enabled is true",
		})
	}
	if c.Tracker.TimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "tracker.timeout_seconds",
			Value:   c.Tracker.TimeoutSeconds,
			Message: "must be positive",
		})
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}
