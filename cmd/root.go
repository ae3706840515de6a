// Package cmd is the codecraft command line.
//
// Configuration is resolved from, highest priority first:
//
//  1. command-line flags (--port, --backend, ...)
//  2. CODECRAFT_<SECTION>_<KEY> environment variables
//  3. the file named by --config, else CODECRAFT_CONFIG_FILE, else
//     .codecraft.yml in the working directory
//  4. built-in defaults
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/conneroisu/codecraft/internal/app"
	"github.com/conneroisu/codecraft/internal/config"
	apperrors "github.com/conneroisu/codecraft/internal/errors"
	"github.com/conneroisu/codecraft/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ConfigFileEnv names a config file when --config is not given.
const ConfigFileEnv = config.EnvPrefix + "_CONFIG_FILE"

// cli is the state shared by one command tree.
type cli struct {
	v       *viper.Viper
	cfgFile string
	// logOutput receives log lines. Commands print results to
	// cmd.OutOrStdout.
	logOutput io.Writer
}

// Execute runs the command line against os.Args.
func Execute() error {
	return NewRootCommand().Execute()
}

// NewRootCommand builds a fresh command tree with its own Viper instance.
func NewRootCommand() *cobra.Command {
	return newRootCommand(os.Stderr)
}

func newRootCommand(logOutput io.Writer) *cobra.Command {
	c := &cli{v: viper.New(), logOutput: logOutput}

	root := &cobra.Command{
		Use:   "codecraft",
		Short: "Live HTML, CSS and JavaScript playground",
		Long: `CodeCraft is a live code-preview editor. Three buffers hold markup,
styles and script; every edit is composed into one document and shown in a
sandboxed preview frame. Projects and lesson progress persist to memory,
SQLite, Postgres or a hosted REST backend.

Quick Start:
  codecraft serve                       Start the editor on localhost:8080
  codecraft serve --workspace ./site    Mirror ./site/index.html, style.css, script.js
  codecraft compose --dir ./site        Print the composed preview document
  codecraft lessons list                Browse the built-in courses
  codecraft config init                 Write a .codecraft.yml interactively`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.initConfig()
		},
	}

	root.PersistentFlags().StringVar(&c.cfgFile, "config", "",
		"config file (default is .codecraft.yml, can also use "+ConfigFileEnv+")")
	root.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	_ = c.v.BindPFlag("log.level", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(
		c.newServeCmd(),
		c.newComposeCmd(),
		c.newProjectsCmd(),
		c.newLessonsCmd(),
		c.newProgressCmd(),
		c.newConfigCmd(),
		newVersionCmd(),
	)
	return root
}

// initConfig points Viper at the config file and reads it. A missing default
// file is fine; a named file that cannot be read is not.
func (c *cli) initConfig() error {
	file := c.cfgFile
	if file == "" {
		file = os.Getenv(ConfigFileEnv)
	}
	config.Configure(c.v, file)

	if err := c.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file == "" && errors.As(err, &notFound) {
			return nil
		}
		return apperrors.Wrap(err, apperrors.ErrorTypeConfig, apperrors.ErrCodeConfigInvalid,
			"failed to read configuration file")
	}
	return nil
}

// loadConfig decodes and validates the resolved configuration.
func (c *cli) loadConfig() (*config.Config, error) {
	return config.LoadFrom(c.v)
}

func (c *cli) newLogger(cfg *config.Config) logging.Logger {
	lc := cfg.LoggerConfig()
	lc.Output = c.logOutput
	return logging.NewLogger(lc)
}

// openApp builds the application from the resolved configuration. The caller
// must Close it.
func (c *cli) openApp(ctx context.Context) (*app.App, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, c.newLogger(cfg))
}

// withApp runs fn against a freshly built application and closes it after.
func (c *cli) withApp(ctx context.Context, fn func(*app.App) error) (err error) {
	a, err := c.openApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, a.Close(context.WithoutCancel(ctx)))
	}()
	return fn(a)
}

func printf(cmd *cobra.Command, format string, args ...interface{}) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
