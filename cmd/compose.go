package cmd

import (
	"os"
	"strconv"
	"strings"

	"github.com/conneroisu/codecraft/internal/buffers"
	apperrors "github.com/conneroisu/codecraft/internal/errors"
	"github.com/conneroisu/codecraft/internal/preview"
	"github.com/conneroisu/codecraft/internal/watcher"
	"github.com/spf13/cobra"
)

type composeOptions struct {
	dir       string
	files     map[buffers.Role]*string
	stripOnly bool
	outline   bool
	out       string
	output    *OutputFlags
}

func (c *cli) newComposeCmd() *cobra.Command {
	opts := &composeOptions{files: make(map[buffers.Role]*string)}

	cmd := &cobra.Command{
		Use:   "compose",
		Short: "Print the preview document for a workspace",
		Long: `Compose index.html, style.css and script.js into the standalone document
the preview frame shows. Individual files can be replaced with --html,
--css and --js; "-" reads from stdin.

Examples:
  codecraft compose --dir ./site > preview.html
  codecraft compose --html page.html --css -  < theme.css
  codecraft compose --dir ./site --strip-only
  codecraft compose --dir ./site --outline -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runCompose(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.dir, "dir", "d", "", "Workspace directory (default is workspace.dir, else the working directory)")
	for _, role := range buffers.Roles {
		name := flagForRole(role)
		opts.files[role] = flags.String(name, "", "Read the "+role.Label()+" buffer from this file")
	}
	flags.BoolVar(&opts.stripOnly, "strip-only", false, "Print the markup with its document wrapper removed")
	flags.BoolVar(&opts.outline, "outline", false, "Print the parsed structure of the composed document")
	flags.StringVar(&opts.out, "out", "", "Write the document to this file instead of stdout")
	opts.output = addOutputFlags(cmd)
	AddFlagValidation(cmd, "dir", ValidateDirExists)
	return cmd
}

func flagForRole(r buffers.Role) string {
	if r == buffers.Script {
		return "js"
	}
	return r.String()
}

func (c *cli) runCompose(cmd *cobra.Command, opts *composeOptions) error {
	contents, err := c.composeInputs(cmd, opts)
	if err != nil {
		return err
	}

	var doc string
	if opts.stripOnly {
		doc = preview.StripSkeleton(contents.Markup) + "\n"
	} else {
		doc = preview.Compose(contents.Markup, contents.Styles, contents.Script)
	}

	if opts.outline {
		outline, err := preview.Inspect(doc)
		if err != nil {
			return apperrors.WrapInternal(err, "failed to parse composed document")
		}
		t := &table{header: []string{"FIELD", "VALUE"}}
		t.add("title", outline.Title)
		t.add("style_blocks", strconv.Itoa(outline.StyleBlocks))
		t.add("script_blocks", strconv.Itoa(outline.ScriptBlocks))
		t.add("body_elements", strings.Join(outline.BodyElements, " "))
		return opts.output.render(cmd.OutOrStdout(), outline, t)
	}

	if opts.out != "" {
		if err := os.WriteFile(opts.out, []byte(doc), 0o644); err != nil {
			return apperrors.WrapInternal(err, "failed to write "+opts.out)
		}
		return nil
	}
	_, err = cmd.OutOrStdout().Write([]byte(doc))
	return err
}

// composeInputs reads the workspace and applies per-file overrides.
func (c *cli) composeInputs(cmd *cobra.Command, opts *composeOptions) (buffers.Contents, error) {
	dir := opts.dir
	if dir == "" {
		dir = c.v.GetString("workspace.dir")
	}
	if dir == "" {
		dir = "."
	}

	contents, _, err := watcher.ReadWorkspace(dir)
	if err != nil {
		return buffers.Contents{}, err
	}
	for _, role := range buffers.Roles {
		name := *opts.files[role]
		if name == "" {
			continue
		}
		data, err := readInput(cmd, name)
		if err != nil {
			return buffers.Contents{}, apperrors.NewValidationError(apperrors.ErrCodeInvalidBody,
				"cannot read "+role.Label()+" input "+name+": "+err.Error())
		}
		contents = contents.With(role, data)
	}
	return contents, nil
}
