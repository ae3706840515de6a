package config

import (
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	apperrors "github.com/conneroisu/codecraft/internal/errors"
	"github.com/conneroisu/codecraft/internal/logging"
)

// ValidationError is one problem found in a Config, with hints for fixing it.
type ValidationError struct {
	Field       string
	Value       interface{}
	Code        string
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return "validation error in " + ve.Field + ": " + ve.Message
}

// ValidationResult separates blocking errors from advisory warnings.
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationError
	Warnings []ValidationError
}

func (vr *ValidationResult) HasErrors() bool   { return len(vr.Errors) > 0 }
func (vr *ValidationResult) HasWarnings() bool { return len(vr.Warnings) > 0 }

// String renders the report printed by `codecraft config validate`.
func (vr *ValidationResult) String() string {
	var b strings.Builder
	section := func(title string, issues []ValidationError) {
		if len(issues) == 0 {
			return
		}
		b.WriteString(title + ":\n")
		for _, issue := range issues {
			fmt.Fprintf(&b, "  • %s: %s\n", issue.Field, issue.Message)
			for _, hint := range issue.Suggestions {
				fmt.Fprintf(&b, "    hint: %s\n", hint)
			}
		}
	}
	section("Validation errors", vr.Errors)
	if vr.HasErrors() && vr.HasWarnings() {
		b.WriteString("\n")
	}
	section("Validation warnings", vr.Warnings)
	return b.String()
}

func (vr *ValidationResult) fail(ve ValidationError) {
	if ve.Code == "" {
		ve.Code = apperrors.ErrCodeConfigInvalid
	}
	vr.Errors = append(vr.Errors, ve)
}

func (vr *ValidationResult) warn(ve ValidationError) {
	vr.Warnings = append(vr.Warnings, ve)
}

// validateConfig joins every blocking problem into one config error.
func validateConfig(cfg *Config) error {
	result := ValidateConfigWithDetails(cfg)
	collector := apperrors.NewErrorCollector()
	for _, ve := range result.Errors {
		collector.Add(apperrors.NewConfigError(ve.Code, ve.Field+": "+ve.Message).
			WithContext("field", ve.Field))
	}
	return collector.Err()
}

// ValidateConfigWithDetails checks every section and reports all problems
// instead of stopping at the first.
func ValidateConfigWithDetails(cfg *Config) *ValidationResult {
	result := &ValidationResult{}
	checkServer(&cfg.Server, result)
	checkBackend(&cfg.Backend, result)
	checkIdentity(cfg, result)
	checkSandbox(cfg, result)
	checkWorkspace(&cfg.Workspace, result)
	checkLog(&cfg.Log, result)
	result.Valid = !result.HasErrors()
	return result
}

func checkServer(config *ServerConfig, result *ValidationResult) {
	if config.Port < 0 || config.Port > 65535 {
		result.fail(ValidationError{
			Field:   "server.port",
			Value:   config.Port,
			Message: fmt.Sprintf("port %d is not in valid range 0-65535", config.Port),
			Suggestions: []string{
				"Use a port between 1024-65535 for non-privileged access",
				"Port 0 allows system to assign an available port",
			},
		})
	} else if config.Port > 0 && config.Port < 1024 {
		result.warn(ValidationError{
			Field:       "server.port",
			Value:       config.Port,
			Message:     "port below 1024 requires elevated privileges",
			Suggestions: []string{"Consider using a port above 1024 for development"},
		})
	}

	if config.Host != "" {
		if err := validateHostname(config.Host); err != nil {
			result.fail(ValidationError{
				Field:   "server.host",
				Value:   config.Host,
				Message: err.Error(),
				Suggestions: []string{
					"Use 'localhost' for local development",
					"Use '0.0.0.0' to bind to all interfaces",
				},
			})
		}
	}

	for _, origin := range config.AllowedOrigins {
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			result.fail(ValidationError{
				Field:       "server.allowed_origins",
				Value:       origin,
				Message:     fmt.Sprintf("origin %q is not scheme://host[:port]", origin),
				Suggestions: []string{"Example: http://localhost:3000"},
			})
		}
	}

	if config.RateLimit.Rate < 0 || config.RateLimit.Burst < 0 {
		result.fail(ValidationError{
			Field:   "server.rate_limit",
			Value:   config.RateLimit,
			Message: "rate and burst must not be negative",
		})
	} else if config.RateLimit.Rate > 0 && config.RateLimit.Burst == 0 {
		result.fail(ValidationError{
			Field:       "server.rate_limit.burst",
			Value:       config.RateLimit.Burst,
			Message:     "a positive rate needs a positive burst",
			Suggestions: []string{"Set burst to at least the per-second rate"},
		})
	} else if config.RateLimit.Rate == 0 {
		result.warn(ValidationError{
			Field:   "server.rate_limit.rate",
			Value:   0,
			Message: "API rate limiting is disabled",
		})
	}
}

func checkBackend(config *BackendConfig, result *ValidationResult) {
	missing := func(field, message string, suggestions ...string) {
		result.fail(ValidationError{
			Field:       field,
			Code:        apperrors.ErrCodeMissingCredential,
			Message:     message,
			Suggestions: suggestions,
		})
	}

	switch config.Kind {
	case BackendMemory:
		result.warn(ValidationError{
			Field:   "backend.kind",
			Value:   config.Kind,
			Message: "projects and progress are kept in memory and lost on exit",
		})
	case BackendSQLite:
		if strings.TrimSpace(config.Path) == "" {
			missing("backend.path", "sqlite backend requires a database path",
				"Set backend.path or CODECRAFT_BACKEND_PATH")
		} else if strings.Contains(filepath.Clean(config.Path), "..") {
			result.fail(ValidationError{
				Field:   "backend.path",
				Value:   config.Path,
				Message: "path contains traversal",
			})
		}
	case BackendPostgres:
		if strings.TrimSpace(config.DSN) == "" {
			missing("backend.dsn", "postgres backend requires a connection string",
				"Set backend.dsn or CODECRAFT_BACKEND_DSN")
		}
	case BackendREST:
		if strings.TrimSpace(config.URL) == "" {
			missing("backend.url", "rest backend requires the project URL",
				"Set backend.url or CODECRAFT_BACKEND_URL")
		} else if u, err := url.Parse(config.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			result.fail(ValidationError{
				Field:   "backend.url",
				Value:   config.URL,
				Message: "backend url must be an absolute http(s) URL",
			})
		}
		if strings.TrimSpace(config.AnonKey) == "" {
			missing("backend.anon_key", "rest backend requires the anonymous API key",
				"Set backend.anon_key or CODECRAFT_BACKEND_ANON_KEY")
		}
	default:
		result.fail(ValidationError{
			Field:   "backend.kind",
			Value:   config.Kind,
			Message: fmt.Sprintf("unknown backend %q", config.Kind),
			Suggestions: []string{
				"Available backends: " + strings.Join([]string{BackendMemory, BackendSQLite, BackendPostgres, BackendREST}, ", "),
			},
		})
	}

	if config.Timeout < 0 {
		result.fail(ValidationError{
			Field:   "backend.timeout",
			Value:   config.Timeout,
			Message: "timeout must not be negative",
		})
	}
}

func checkIdentity(config *Config, result *ValidationResult) {
	if config.Identity.OwnerID == "" {
		result.warn(ValidationError{
			Field:       "identity.owner_id",
			Message:     "no owner configured; saving and loading projects is disabled",
			Suggestions: []string{"Set identity.owner_id or CODECRAFT_IDENTITY_OWNER_ID"},
		})
	}
}

func checkSandbox(config *Config, result *ValidationResult) {
	if err := config.Policy().Validate(); err != nil {
		result.fail(ValidationError{
			Field:   "sandbox",
			Value:   config.Sandbox,
			Code:    apperrors.ErrCodeSandboxPolicy,
			Message: err.Error(),
			Suggestions: []string{
				"The preview frame must run scripts without same-origin access",
				"Remove the sandbox section to use the default policy",
			},
		})
	}
}

func checkWorkspace(config *WorkspaceConfig, result *ValidationResult) {
	if config.Debounce < 0 {
		result.fail(ValidationError{
			Field:   "workspace.debounce",
			Value:   config.Debounce,
			Message: "debounce must not be negative",
		})
	}
}

func checkLog(config *LogConfig, result *ValidationResult) {
	if _, err := logging.ParseLevel(config.Level); err != nil {
		result.fail(ValidationError{
			Field:   "log.level",
			Value:   config.Level,
			Message: err.Error(),
		})
	}
	if config.Format != "" && config.Format != "text" && config.Format != "json" {
		result.fail(ValidationError{
			Field:       "log.format",
			Value:       config.Format,
			Message:     fmt.Sprintf("unknown log format %q", config.Format),
			Suggestions: []string{"Use 'text' or 'json'"},
		})
	}
}

var hostnamePattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

func validateHostname(host string) error {
	if i := strings.IndexAny(host, ";&|$`()<>\"'\\"); i >= 0 {
		return fmt.Errorf("contains dangerous character: %c", host[i])
	}
	if net.ParseIP(host) == nil && !hostnamePattern.MatchString(host) {
		return fmt.Errorf("invalid hostname format")
	}
	return nil
}
