package cmd

import (
	"fmt"

	"github.com/conneroisu/codecraft/internal/version"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	var (
		format   string
		short    bool
		detailed bool
	)
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display version information for codecraft: the version, git commit,
build time, Go version and target platform.

Examples:
  codecraft version
  codecraft version --short
  codecraft version --detailed
  codecraft version --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Get()
			out := cmd.OutOrStdout()

			switch format {
			case FormatJSON:
				return writeJSON(out, info)
			case FormatYAML:
				return writeYAML(out, info)
			case "text":
			default:
				return fmt.Errorf("unsupported format: %s (supported: text, json, yaml)", format)
			}

			switch {
			case short:
				fmt.Fprintln(out, info.Version)
			case detailed:
				fmt.Fprintln(out, info.String())
				if info.Dirty {
					fmt.Fprintln(out, "Working directory: dirty")
				}
			default:
				fmt.Fprintf(out, "codecraft %s\n", info.Short())
				fmt.Fprintf(out, "Go: %s\nPlatform: %s\n", info.GoVersion, info.Platform)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format (text, json, yaml)")
	cmd.Flags().BoolVar(&short, "short", false, "Show the version number only")
	cmd.Flags().BoolVar(&detailed, "detailed", false, "Show detailed version information")
	return cmd
}
