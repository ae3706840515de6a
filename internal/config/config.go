// Package config loads CodeCraft settings with Viper from a YAML file,
// CODECRAFT_ environment variables and command-line flags.
//
// The backend section selects where projects and progress live. A backend
// that is selected but lacks its credentials is a fatal configuration error:
// Load refuses to return a Config and the server does not start.
package config

import (
	"strings"
	"time"

	apperrors "github.com/conneroisu/codecraft/internal/errors"
	"github.com/conneroisu/codecraft/internal/logging"
	"github.com/conneroisu/codecraft/internal/sandbox"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "CODECRAFT"

// Backend kinds.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendREST     = "rest"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server" json:"server"`
	Backend   BackendConfig   `mapstructure:"backend" yaml:"backend" json:"backend"`
	Identity  IdentityConfig  `mapstructure:"identity" yaml:"identity" json:"identity"`
	Sandbox   SandboxConfig   `mapstructure:"sandbox" yaml:"sandbox" json:"sandbox"`
	Workspace WorkspaceConfig `mapstructure:"workspace" yaml:"workspace" json:"workspace"`
	Log       LogConfig       `mapstructure:"log" yaml:"log" json:"log"`
}

type ServerConfig struct {
	Host           string          `mapstructure:"host" yaml:"host" json:"host"`
	Port           int             `mapstructure:"port" yaml:"port" json:"port"`
	AllowedOrigins []string        `mapstructure:"allowed_origins" yaml:"allowed_origins" json:"allowed_origins"`
	RateLimit      RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
}

// RateLimitConfig bounds API requests per client IP. A zero rate disables
// limiting.
type RateLimitConfig struct {
	Rate  float64 `mapstructure:"rate" yaml:"rate" json:"rate"`
	Burst int     `mapstructure:"burst" yaml:"burst" json:"burst"`
}

type BackendConfig struct {
	Kind        string        `mapstructure:"kind" yaml:"kind" json:"kind"`
	Path        string        `mapstructure:"path" yaml:"path" json:"path,omitempty"`
	DSN         string        `mapstructure:"dsn" yaml:"dsn" json:"dsn,omitempty"`
	URL         string        `mapstructure:"url" yaml:"url" json:"url,omitempty"`
	AnonKey     string        `mapstructure:"anon_key" yaml:"anon_key" json:"anon_key,omitempty"`
	AccessToken string        `mapstructure:"access_token" yaml:"access_token" json:"access_token,omitempty"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
}

type IdentityConfig struct {
	OwnerID string `mapstructure:"owner_id" yaml:"owner_id" json:"owner_id"`
}

type SandboxConfig struct {
	Tokens []string `mapstructure:"tokens" yaml:"tokens" json:"tokens"`
	CSP    string   `mapstructure:"csp" yaml:"csp" json:"csp"`
}

// WorkspaceConfig names a directory whose index.html, style.css and
// script.js mirror the buffers. Empty disables the watcher.
type WorkspaceConfig struct {
	Dir      string        `mapstructure:"dir" yaml:"dir" json:"dir"`
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce" json:"debounce"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level"`
	Format string `mapstructure:"format" yaml:"format" json:"format"`
}

// SetDefaults registers every key with its default so environment overrides
// are visible to Unmarshal.
func SetDefaults(v *viper.Viper) {
	policy := sandbox.DefaultPolicy()

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.rate_limit.rate", 20.0)
	v.SetDefault("server.rate_limit.burst", 40)

	v.SetDefault("backend.kind", BackendMemory)
	v.SetDefault("backend.path", ".codecraft/codecraft.db")
	v.SetDefault("backend.dsn", "")
	v.SetDefault("backend.url", "")
	v.SetDefault("backend.anon_key", "")
	v.SetDefault("backend.access_token", "")
	v.SetDefault("backend.timeout", 10*time.Second)

	v.SetDefault("identity.owner_id", "")

	v.SetDefault("sandbox.tokens", policy.Tokens)
	v.SetDefault("sandbox.csp", policy.ContentPolicy)

	v.SetDefault("workspace.dir", "")
	v.SetDefault("workspace.debounce", 100*time.Millisecond)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Configure points v at the config file and the environment. An empty file
// searches for .codecraft.yml in the working directory.
func Configure(v *viper.Viper, file string) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(".codecraft")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
}

// Load reads the global Viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom decodes and validates the configuration held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	config, err := Decode(v)
	if err != nil {
		return nil, err
	}
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

// Decode reads the configuration held by v without validating it.
func Decode(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeConfig, apperrors.ErrCodeConfigInvalid, "failed to decode configuration")
	}

	// Slices set through the environment arrive as a single string.
	config.Sandbox.Tokens = stringList(v, "sandbox.tokens")
	config.Server.AllowedOrigins = stringList(v, "server.allowed_origins")

	config.Backend.Kind = strings.ToLower(strings.TrimSpace(config.Backend.Kind))
	config.Identity.OwnerID = strings.TrimSpace(config.Identity.OwnerID)
	return &config, nil
}

// stringList reads a list that may be written as YAML, or as one comma or
// space separated environment value.
func stringList(v *viper.Viper, key string) []string {
	var out []string
	for _, item := range v.GetStringSlice(key) {
		out = append(out, strings.FieldsFunc(item, func(r rune) bool { return r == ',' || r == ' ' })...)
	}
	return out
}

// Policy converts the sandbox section.
func (c *Config) Policy() sandbox.Policy {
	p := sandbox.DefaultPolicy()
	if len(c.Sandbox.Tokens) > 0 {
		p.Tokens = append([]string(nil), c.Sandbox.Tokens...)
	}
	if c.Sandbox.CSP != "" {
		p.ContentPolicy = c.Sandbox.CSP
	}
	return p
}

// LoggerConfig converts the log section. Invalid levels were rejected by
// validation, so the parse error is ignored.
func (c *Config) LoggerConfig() *logging.LoggerConfig {
	lc := logging.DefaultConfig()
	lc.Level, _ = logging.ParseLevel(c.Log.Level)
	lc.Format = c.Log.Format
	return lc
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() Config {
	r := *c
	r.Backend.AnonKey = logging.Redact(c.Backend.AnonKey)
	r.Backend.AccessToken = logging.Redact(c.Backend.AccessToken)
	r.Backend.DSN = logging.Redact(c.Backend.DSN)
	r.Server.AllowedOrigins = append([]string(nil), c.Server.AllowedOrigins...)
	r.Sandbox.Tokens = append([]string(nil), c.Sandbox.Tokens...)
	return r
}
