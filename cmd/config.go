package cmd

import (
	"errors"

	"github.com/conneroisu/codecraft/internal/config"
	apperrors "github.com/conneroisu/codecraft/internal/errors"
	"github.com/spf13/cobra"
)

func (c *cli) newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage CodeCraft configuration",
		Long: `Manage CodeCraft configuration files and settings.

Examples:
  codecraft config init                     # Interactive wizard, writes .codecraft.yml
  codecraft config validate                 # Validate the resolved configuration
  codecraft config validate --strict        # Treat warnings as errors
  codecraft config show -o json             # Print resolved values, secrets redacted
  codecraft --config prod.yml config show   # Inspect another file`,
	}
	cmd.AddCommand(c.newConfigShowCmd(), c.newConfigValidateCmd(), c.newConfigInitCmd())
	return cmd
}

func (c *cli) newConfigShowCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration",
		Long: `Display the configuration after the config file, environment overrides and
defaults are applied. Credentials are redacted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Decode(c.v)
			if err != nil {
				return err
			}
			redacted := cfg.Redacted()
			if format == FormatJSON {
				return writeJSON(cmd.OutOrStdout(), redacted)
			}
			return writeYAML(cmd.OutOrStdout(), redacted)
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", FormatYAML, "Output format (yaml, json)")
	AddFlagValidation(cmd, "output", func(s string) error {
		if s != FormatYAML && s != FormatJSON {
			return errors.New("output format must be yaml or json")
		}
		return nil
	})
	return cmd
}

func (c *cli) newConfigValidateCmd() *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the resolved configuration",
		Long: `Check the configuration for invalid values and missing backend credentials.
Warnings such as an in-memory backend are printed but pass unless --strict
is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Decode(c.v)
			if err != nil {
				return err
			}
			result := config.ValidateConfigWithDetails(cfg)
			if file := c.v.ConfigFileUsed(); file != "" {
				printf(cmd, "Validating %s\n", file)
			}
			if result.HasErrors() || result.HasWarnings() {
				printf(cmd, "%s", result.String())
			}

			switch {
			case result.HasErrors():
				return apperrors.NewConfigError(apperrors.ErrCodeConfigInvalid, "configuration is invalid")
			case strict && result.HasWarnings():
				return apperrors.NewConfigError(apperrors.ErrCodeConfigInvalid, "configuration has warnings")
			}
			printf(cmd, "Configuration is valid\n")
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "Treat warnings as errors")
	return cmd
}

func (c *cli) newConfigInitCmd() *cobra.Command {
	var (
		file  string
		force bool
	)
	cmd := &cobra.Command{
		Use:     "init",
		Aliases: []string{"wizard"},
		Short:   "Write a configuration file interactively",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			wizard := config.NewConfigWizard(cmd.InOrStdin(), cmd.OutOrStdout())
			cfg, err := wizard.Run()
			if err != nil {
				return err
			}
			if result := config.ValidateConfigWithDetails(cfg); result.HasWarnings() {
				printf(cmd, "\n%s", result.String())
			}
			if err := wizard.WriteConfigFile(file, force); err != nil {
				return err
			}
			printf(cmd, "\nNext steps:\n  1. Review %s\n  2. Run 'codecraft serve'\n  3. Open http://%s:%d\n",
				file, cfg.Server.Host, cfg.Server.Port)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", ".codecraft.yml", "File to write")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}
