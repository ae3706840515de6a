package cmd

import (
	"strconv"
	"time"

	"github.com/conneroisu/codecraft/internal/app"
	"github.com/conneroisu/codecraft/internal/editor"
	apperrors "github.com/conneroisu/codecraft/internal/errors"
	"github.com/conneroisu/codecraft/internal/projects"
	"github.com/conneroisu/codecraft/internal/watcher"
	"github.com/spf13/cobra"
)

func (c *cli) newProjectsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "projects",
		Aliases: []string{"project", "p"},
		Short:   "Manage saved projects",
		Long: `List, save, open, update and delete the configured owner's projects.

Projects live in the configured backend. Every subcommand needs
identity.owner_id (or CODECRAFT_IDENTITY_OWNER_ID).

Examples:
  codecraft projects list -o json
  codecraft projects save --title "Landing page" --dir ./site
  codecraft projects open 01J9Z3... --dir ./site
  codecraft projects delete 01J9Z3...`,
	}
	cmd.AddCommand(
		c.newProjectsListCmd(),
		c.newProjectsSaveCmd(),
		c.newProjectsOpenCmd(),
		c.newProjectsUpdateCmd(),
		c.newProjectsDeleteCmd(),
	)
	return cmd
}

func projectTable(list []projects.StoredProject) *table {
	t := &table{header: []string{"ID", "TITLE", "PUBLIC", "UPDATED"}}
	for _, p := range list {
		t.add(p.ID, p.Title, strconv.FormatBool(p.IsPublic), p.UpdatedAt.Local().Format(time.DateTime))
	}
	return t
}

func (c *cli) newProjectsListCmd() *cobra.Command {
	var output *OutputFlags
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List projects, most recently updated first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				list, err := a.Session.Projects(cmd.Context())
				if err != nil {
					return err
				}
				return output.render(cmd.OutOrStdout(), list, projectTable(list))
			})
		},
	}
	output = addOutputFlags(cmd)
	return cmd
}

type saveOptions struct {
	title       string
	description string
	public      bool
	dir         string
}

func (c *cli) newProjectsSaveCmd() *cobra.Command {
	opts := &saveOptions{}
	var output *OutputFlags
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Save a workspace as a new project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				contents, _, err := watcher.ReadWorkspace(opts.dir)
				if err != nil {
					return err
				}
				if _, err := a.Session.LoadContents(contents); err != nil {
					return err
				}

				req := editor.SaveRequest{Title: opts.title, IsPublic: opts.public}
				if cmd.Flags().Changed("description") {
					req.Description = &opts.description
				}
				p, err := a.Session.Save(cmd.Context(), req)
				if err != nil {
					return err
				}
				return output.render(cmd.OutOrStdout(), p, projectTable([]projects.StoredProject{p}))
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&opts.title, "title", "t", "", "Project title")
	flags.StringVar(&opts.description, "description", "", "Project description")
	flags.BoolVar(&opts.public, "public", false, "Make the project public")
	flags.StringVarP(&opts.dir, "dir", "d", ".", "Workspace directory to read")
	_ = cmd.MarkFlagRequired("title")
	AddFlagValidation(cmd, "dir", ValidateDirExists)
	output = addOutputFlags(cmd)
	return cmd
}

func (c *cli) newProjectsOpenCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "open <id>",
		Short: "Write a project's code into a workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				res, err := a.Session.Load(cmd.Context(), args[0]).Wait(cmd.Context())
				if err != nil {
					return err
				}
				if res.Err != nil {
					return res.Err
				}
				if !res.Applied {
					return apperrors.NewInternalError(apperrors.ErrCodeInternalError, "project load was superseded", nil)
				}
				if err := watcher.WriteWorkspace(dir, projects.ToBuffers(res.Project)); err != nil {
					return err
				}
				printf(cmd, "Opened %q into %s\n", res.Project.Title, dir)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "Workspace directory to write")
	return cmd
}

type updateOptions struct {
	title       string
	description string
	public      bool
	dir         string
}

func (c *cli) newProjectsUpdateCmd() *cobra.Command {
	opts := &updateOptions{}
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change a project's metadata or replace its code",
		Long: `Change a project's title, description or visibility. With --dir the
project's code is replaced with the workspace files.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				patch, err := opts.patch(cmd)
				if err != nil {
					return err
				}
				p, err := a.Session.Update(cmd.Context(), args[0], patch)
				if err != nil {
					return err
				}
				printf(cmd, "Updated %s (%s)\n", p.ID, p.Title)
				return nil
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&opts.title, "title", "t", "", "New title")
	flags.StringVar(&opts.description, "description", "", "New description")
	flags.BoolVar(&opts.public, "public", false, "Make the project public")
	flags.StringVarP(&opts.dir, "dir", "d", "", "Replace the code with this workspace")
	AddFlagValidation(cmd, "dir", ValidateDirExists)
	return cmd
}

func (o *updateOptions) patch(cmd *cobra.Command) (projects.ProjectPatch, error) {
	var patch projects.ProjectPatch
	flags := cmd.Flags()
	if flags.Changed("title") {
		patch.Title = &o.title
	}
	if flags.Changed("description") {
		patch.Description = &o.description
	}
	if flags.Changed("public") {
		patch.IsPublic = &o.public
	}
	if o.dir != "" {
		contents, _, err := watcher.ReadWorkspace(o.dir)
		if err != nil {
			return projects.ProjectPatch{}, err
		}
		patch.HTMLCode = &contents.Markup
		patch.CSSCode = &contents.Styles
		patch.JSCode = &contents.Script
	}
	if patch.Empty() {
		return projects.ProjectPatch{}, apperrors.NewValidationError(apperrors.ErrCodeInvalidBody,
			"nothing to update; pass --title, --description, --public or --dir")
	}
	return patch, nil
}

func (c *cli) newProjectsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a project",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				if err := a.Session.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				printf(cmd, "Deleted %s\n", args[0])
				return nil
			})
		},
	}
}
