package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/conneroisu/codecraft/internal/errors"
	"gopkg.in/yaml.v3"
)

// ConfigWizard asks for the settings a new workspace needs and writes them
// as .codecraft.yml.
type ConfigWizard struct {
	reader *bufio.Reader
	out    io.Writer
	config *Config
}

// NewConfigWizard creates a wizard reading answers from in.
func NewConfigWizard(in io.Reader, out io.Writer) *ConfigWizard {
	cfg := defaultConfig()
	return &ConfigWizard{
		reader: bufio.NewReader(in),
		out:    out,
		config: &cfg,
	}
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:      "localhost",
			Port:      8080,
			RateLimit: RateLimitConfig{Rate: 20, Burst: 40},
		},
		Backend: BackendConfig{
			Kind:    BackendMemory,
			Timeout: 10 * time.Second,
		},
		Workspace: WorkspaceConfig{Debounce: 100 * time.Millisecond},
		Log:       LogConfig{Level: "info", Format: "text"},
	}
}

// Run asks every question and validates the answers.
func (w *ConfigWizard) Run() (*Config, error) {
	fmt.Fprintln(w.out, "CodeCraft configuration")
	fmt.Fprintln(w.out, "=======================")
	fmt.Fprintln(w.out)

	if err := w.configureServer(); err != nil {
		return nil, err
	}
	w.configureBackend()
	w.configureIdentity()
	w.configureWorkspace()

	if err := validateConfig(w.config); err != nil {
		return nil, err
	}
	fmt.Fprintln(w.out, "Configuration complete.")
	return w.config, nil
}

func (w *ConfigWizard) configureServer() error {
	fmt.Fprintln(w.out, "Server")
	port, err := w.askInt("Server port", w.config.Server.Port, 1, 65535)
	if err != nil {
		return err
	}
	w.config.Server.Port = port
	w.config.Server.Host = w.askString("Server host", w.config.Server.Host)
	fmt.Fprintln(w.out)
	return nil
}

func (w *ConfigWizard) configureBackend() {
	fmt.Fprintln(w.out, "Project storage")
	b := &w.config.Backend
	b.Kind = w.askChoice("Backend", []string{BackendMemory, BackendSQLite, BackendPostgres, BackendREST}, b.Kind)
	switch b.Kind {
	case BackendSQLite:
		b.Path = w.askString("Database file", ".codecraft/codecraft.db")
	case BackendPostgres:
		b.DSN = w.askString("Connection string", "")
	case BackendREST:
		b.URL = w.askString("Project URL", "")
		b.AnonKey = w.askString("Anonymous API key", "")
	}
	fmt.Fprintln(w.out)
}

func (w *ConfigWizard) configureIdentity() {
	w.config.Identity.OwnerID = w.askString("Owner id (empty to disable projects)", "")
}

func (w *ConfigWizard) configureWorkspace() {
	w.config.Workspace.Dir = w.askString("Workspace directory to mirror (empty for none)", "")
}

// Helper methods for user interaction

func (w *ConfigWizard) askString(prompt, defaultValue string) string {
	if defaultValue != "" {
		fmt.Fprintf(w.out, "%s [%s]: ", prompt, defaultValue)
	} else {
		fmt.Fprintf(w.out, "%s: ", prompt)
	}

	input, err := w.reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" || (err != nil && err != io.EOF) {
		return defaultValue
	}
	return input
}

func (w *ConfigWizard) askInt(prompt string, defaultValue, min, max int) (int, error) {
	for {
		fmt.Fprintf(w.out, "%s [%d]: ", prompt, defaultValue)

		input, err := w.reader.ReadString('\n')
		input = strings.TrimSpace(input)
		if input == "" {
			return defaultValue, nil
		}

		value, convErr := strconv.Atoi(input)
		if convErr == nil && value >= min && value <= max {
			return value, nil
		}
		if err != nil {
			return 0, apperrors.NewValidationError(apperrors.ErrCodeConfigInvalid,
				fmt.Sprintf("%s must be a number between %d and %d", prompt, min, max))
		}
		fmt.Fprintf(w.out, "Please enter a number between %d and %d.\n", min, max)
	}
}

func (w *ConfigWizard) askChoice(prompt string, choices []string, defaultValue string) string {
	for {
		fmt.Fprintf(w.out, "%s [%s] (options: %s): ", prompt, defaultValue, strings.Join(choices, ", "))

		input, err := w.reader.ReadString('\n')
		input = strings.TrimSpace(input)
		if input == "" {
			return defaultValue
		}
		for _, choice := range choices {
			if strings.EqualFold(input, choice) {
				return choice
			}
		}
		if err != nil {
			return defaultValue
		}
		fmt.Fprintf(w.out, "Please select from: %s\n", strings.Join(choices, ", "))
	}
}

// WriteConfigFile writes the collected configuration as YAML. An existing
// file is only replaced when overwrite is set.
func (w *ConfigWizard) WriteConfigFile(filename string, overwrite bool) error {
	if _, err := os.Stat(filename); err == nil && !overwrite {
		return apperrors.NewConfigError(apperrors.ErrCodeConfigInvalid, "configuration file "+filename+" already exists")
	}

	content, err := w.generateYAMLConfig()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filename, content, 0o600); err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeConfig, apperrors.ErrCodeConfigInvalid, "failed to write configuration file")
	}

	fmt.Fprintf(w.out, "Configuration saved to %s\n", filename)
	return nil
}

func (w *ConfigWizard) generateYAMLConfig() ([]byte, error) {
	body, err := yaml.Marshal(w.config)
	if err != nil {
		return nil, apperrors.WrapInternal(err, "failed to encode configuration")
	}
	header := "# CodeCraft configuration\n# Environment variables CODECRAFT_<SECTION>_<KEY> override these values.\n\n"
	return append([]byte(header), body...), nil
}
