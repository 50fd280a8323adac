package config

import (
	"fmt"
	"net"
	"path/filepath"
	"strings"

	"github.com/conneroisu/quill/internal/logging"
)

// ValidationError describes one invalid configuration value.
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Errors []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// String returns one line per error followed by its suggestions.
func (vr *ValidationResult) String() string {
	var builder strings.Builder
	for _, err := range vr.Errors {
		builder.WriteString(fmt.Sprintf("  • %s: %s\n", err.Field, err.Message))
		for _, suggestion := range err.Suggestions {
			builder.WriteString(fmt.Sprintf("    %s\n", suggestion))
		}
	}

	return builder.String()
}

func (vr *ValidationResult) add(field string, value interface{}, message string, suggestions ...string) {
	vr.Errors = append(vr.Errors, ValidationError{
		Field:       field,
		Value:       value,
		Message:     message,
		Suggestions: suggestions,
	})
}

// Validate checks every section of config and reports all problems at once.
func Validate(config *Config) *ValidationResult {
	result := &ValidationResult{}

	validateServerConfig(&config.Server, result)
	validateSiteConfig(&config.Site, result)
	validateWatchConfig(&config.Watch, result)
	validateMetricsConfig(&config.Metrics, result)
	validateLogConfig(&config.Log, result)

	return result
}

// validateConfig wraps Validate's first error in ErrInvalidConfig.
func validateConfig(config *Config) error {
	result := Validate(config)
	if !result.HasErrors() {
		return nil
	}

	first := result.Errors[0]
	return ErrInvalidConfig.Wrap(&first).
		WithContext("field", first.Field).
		WithContext("errors", len(result.Errors))
}

func validateServerConfig(config *ServerConfig, result *ValidationResult) {
	if config.Port < 0 || config.Port > 65535 {
		result.add("server.port", config.Port,
			fmt.Sprintf("port %d is not in valid range 0-65535", config.Port),
			"Port 0 lets the system assign an available port")
	}

	if err := validateHost(config.Host); err != nil {
		result.add("server.host", config.Host, err.Error(),
			"Use 127.0.0.1 for local development",
			"Use 0.0.0.0 to bind to all interfaces")
	}

	if config.Workers <= 0 {
		result.add("server.workers", config.Workers, "workers must be greater than zero")
	}
	if config.QueueSize < 0 {
		result.add("server.queue_size", config.QueueSize, "queue_size cannot be negative",
			"Use 0 for an unbounded queue")
	}
	if config.MaxConnections < 0 {
		result.add("server.max_connections", config.MaxConnections, "max_connections cannot be negative",
			"Use 0 to accept without a cap")
	}
	if config.ReadTimeout < 0 {
		result.add("server.read_timeout", config.ReadTimeout.String(), "read_timeout cannot be negative")
	}
	if config.CacheTTL < 0 {
		result.add("server.cache_ttl", config.CacheTTL.String(), "cache_ttl cannot be negative",
			"Use 0s to disable the file cache")
	}
	if config.SleepDuration < 0 {
		result.add("server.sleep_duration", config.SleepDuration.String(), "sleep_duration cannot be negative")
	}

	if err := validateFileName(config.HomeDocument); err != nil {
		result.add("server.home_document", config.HomeDocument, err.Error(),
			"The home document is a file name inside the output directory, e.g. index.html")
	}

	if config.SleepRoute != "" && !strings.HasPrefix(config.SleepRoute, "/") {
		result.add("server.sleep_route", config.SleepRoute, "sleep_route must start with /",
			"Leave it empty to disable the route")
	}
}

func validateSiteConfig(config *SiteConfig, result *ValidationResult) {
	if err := validatePath(config.ContentDir); err != nil {
		result.add("site.content_dir", config.ContentDir, err.Error())
	}
	if err := validatePath(config.OutputDir); err != nil {
		result.add("site.output_dir", config.OutputDir, err.Error())
	}
	if config.ContentDir != "" && config.OutputDir != "" && isWithin(config.ContentDir, config.OutputDir) {
		result.add("site.output_dir", config.OutputDir, "output_dir must not be content_dir or lie inside it",
			"A watch would rebuild on its own output")
	}
}

func validateWatchConfig(config *WatchConfig, result *ValidationResult) {
	if config.Debounce < 0 {
		result.add("watch.debounce", config.Debounce.String(), "debounce cannot be negative")
	}
	for _, pattern := range config.Ignore {
		if _, err := filepath.Match(pattern, ""); err != nil {
			result.add("watch.ignore", pattern, fmt.Sprintf("invalid glob pattern: %v", err))
		}
	}
}

func validateMetricsConfig(config *MetricsConfig, result *ValidationResult) {
	if config.Addr == "" {
		return
	}
	if _, _, err := net.SplitHostPort(config.Addr); err != nil {
		result.add("metrics.addr", config.Addr, err.Error(),
			"Use host:port, e.g. 127.0.0.1:9090")
	}
}

func validateLogConfig(config *LogConfig, result *ValidationResult) {
	if _, err := logging.ParseLevel(config.Level); err != nil {
		result.add("log.level", config.Level, err.Error(),
			"Valid levels: debug, info, warn, error")
	}
	switch config.Format {
	case logging.FormatText, logging.FormatJSON, logging.FormatAuto:
	default:
		result.add("log.format", config.Format, fmt.Sprintf("unknown log format %q", config.Format),
			"Valid formats: text, json, auto")
	}
}

// validateHost rejects characters that have no place in a host name or IP.
func validateHost(host string) error {
	if host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\", "/", " "}
	for _, char := range dangerousChars {
		if strings.Contains(host, char) {
			return fmt.Errorf("host contains invalid character: %q", char)
		}
	}

	return nil
}

// isWithin reports whether path is dir or lies below it.
func isWithin(dir, path string) bool {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		absDir = filepath.Clean(dir)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = filepath.Clean(path)
	}

	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false
	}

	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// validatePath validates a directory path for security
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)
	for _, segment := range strings.Split(filepath.ToSlash(cleanPath), "/") {
		if segment == ".." {
			return fmt.Errorf("path contains traversal: %s", path)
		}
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "<", ">", "\"", "'", "\x00"}
	for _, char := range dangerousChars {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %q", char)
		}
	}

	return nil
}

func validateFileName(name string) error {
	if name == "" {
		return fmt.Errorf("file name cannot be empty")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("%q must be a plain file name", name)
	}

	return nil
}
