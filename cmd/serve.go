package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/conneroisu/codecraft/internal/server"
	"github.com/spf13/cobra"
)

func (c *cli) newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"s"},
		Short:   "Start the editor",
		Long: `Start the editor page, JSON API and live preview socket.

With --workspace the buffers follow index.html, style.css and script.js in
that directory: saving a file in any editor updates the preview.

Examples:
  codecraft serve
  codecraft serve --port 3000 --host 0.0.0.0
  codecraft serve --workspace ./site --backend sqlite`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return c.runServe(ctx, cmd)
		},
	}

	flags := cmd.Flags()
	flags.IntP("port", "p", 8080, "Port to serve on")
	flags.String("host", "localhost", "Host to bind to")
	flags.StringP("workspace", "w", "", "Directory whose index.html, style.css and script.js mirror the buffers")
	flags.String("backend", "memory", "Persistence backend (memory, sqlite, postgres, rest)")
	AddFlagValidation(cmd, "port", ValidatePort)
	AddFlagValidation(cmd, "workspace", ValidateDirExists)

	_ = c.v.BindPFlag("server.port", flags.Lookup("port"))
	_ = c.v.BindPFlag("server.host", flags.Lookup("host"))
	_ = c.v.BindPFlag("workspace.dir", flags.Lookup("workspace"))
	_ = c.v.BindPFlag("backend.kind", flags.Lookup("backend"))
	return cmd
}

func (c *cli) runServe(ctx context.Context, cmd *cobra.Command) (err error) {
	a, err := c.openApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(context.WithoutCancel(ctx)); err == nil {
			err = closeErr
		}
	}()

	if err := a.Start(ctx); err != nil {
		return err
	}

	srv := server.New(a)
	printf(cmd, "CodeCraft editor at http://%s\n", srv.Addr())
	return srv.Run(ctx)
}
