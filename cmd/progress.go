package cmd

import (
	"strconv"
	"time"

	"github.com/conneroisu/codecraft/internal/app"
	"github.com/conneroisu/codecraft/internal/progress"
	"github.com/spf13/cobra"
)

func (c *cli) newProgressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Show or record lesson progress",
		Long: `Show or record the configured owner's lesson progress.

Examples:
  codecraft progress show
  codecraft progress set html html-1 --percentage 40
  codecraft progress complete html html-1`,
	}
	cmd.AddCommand(c.newProgressShowCmd(), c.newProgressSetCmd(), c.newProgressCompleteCmd())
	return cmd
}

func (c *cli) newProgressShowCmd() *cobra.Command {
	var output *OutputFlags
	cmd := &cobra.Command{
		Use:   "show [course]",
		Short: "Show recorded progress",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				if err := a.Tracker.Fetch(cmd.Context(), a.Session.Owner()); err != nil {
					return err
				}

				var entries []progress.LessonProgress
				for _, e := range a.Tracker.Entries() {
					if len(args) == 1 && e.CourseID != args[0] {
						continue
					}
					entries = append(entries, e)
				}

				t := &table{header: []string{"LESSON", "COURSE", "PROGRESS", "COMPLETED", "UPDATED"}}
				for _, e := range entries {
					t.add(e.LessonID, e.CourseID, strconv.Itoa(e.Percentage)+"%",
						strconv.FormatBool(e.Completed), e.UpdatedAt.Local().Format(time.DateTime))
				}
				if err := output.render(cmd.OutOrStdout(), entries, t); err != nil {
					return err
				}
				if len(args) == 1 && output.Format == FormatTable && !output.Quiet {
					printf(cmd, "\nCourse %s: %d%%\n", args[0], a.Tracker.CourseProgress(args[0]))
				}
				return nil
			})
		},
	}
	output = addOutputFlags(cmd)
	return cmd
}

func (c *cli) newProgressSetCmd() *cobra.Command {
	var pct int
	cmd := &cobra.Command{
		Use:   "set <course> <lesson>",
		Short: "Record a lesson's percentage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.recordProgress(cmd, args[0], args[1], pct)
		},
	}
	cmd.Flags().IntVarP(&pct, "percentage", "p", 0, "Percentage complete, clamped to 0..100")
	_ = cmd.MarkFlagRequired("percentage")
	return cmd
}

func (c *cli) newProgressCompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete <course> <lesson>",
		Short: "Mark a lesson complete",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.recordProgress(cmd, args[0], args[1], 100)
		},
	}
}

func (c *cli) recordProgress(cmd *cobra.Command, courseID, lessonID string, pct int) error {
	return c.withApp(cmd.Context(), func(a *app.App) error {
		if _, err := a.Catalog.Lesson(courseID, lessonID); err != nil {
			return err
		}
		owner := a.Session.Owner()
		if err := a.Tracker.Update(cmd.Context(), owner, courseID, lessonID, pct); err != nil {
			return err
		}
		printf(cmd, "%s/%s: %d%% (course %d%%)\n", courseID, lessonID,
			progress.Clamp(pct), a.Tracker.CourseProgress(courseID))
		return nil
	})
}
