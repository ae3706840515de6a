package cmd

import (
	"strconv"

	"github.com/conneroisu/codecraft/internal/app"
	"github.com/conneroisu/codecraft/internal/buffers"
	"github.com/conneroisu/codecraft/internal/catalog"
	"github.com/conneroisu/codecraft/internal/watcher"
	"github.com/spf13/cobra"
)

func (c *cli) newLessonsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "lessons",
		Aliases: []string{"lesson", "l"},
		Short:   "Browse the built-in courses",
		Long: `Browse courses and lessons, read lesson content and open code examples or
exercise starting code into a workspace.

Examples:
  codecraft lessons list
  codecraft lessons show html html-1
  codecraft lessons open html html-1 --dir ./site
  codecraft lessons open html html-1 html-1-ex-1 --dir ./site`,
	}
	cmd.AddCommand(c.newLessonsListCmd(), c.newLessonsShowCmd(), c.newLessonsOpenCmd())
	return cmd
}

type lessonRow struct {
	CourseID  string `json:"course_id" yaml:"course_id"`
	LessonID  string `json:"lesson_id" yaml:"lesson_id"`
	Title     string `json:"title" yaml:"title"`
	Example   bool   `json:"has_example" yaml:"has_example"`
	Exercises int    `json:"exercises" yaml:"exercises"`
	Progress  int    `json:"progress" yaml:"progress"`
}

func (c *cli) newLessonsListCmd() *cobra.Command {
	var output *OutputFlags
	cmd := &cobra.Command{
		Use:     "list [course]",
		Aliases: []string{"ls"},
		Short:   "List lessons, optionally for one course",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				courses := a.Catalog.Courses()
				if len(args) == 1 {
					course, err := a.Catalog.Course(args[0])
					if err != nil {
						return err
					}
					courses = []catalog.Course{course}
				}
				if owner := a.Session.Owner(); owner != "" {
					if err := a.Tracker.Fetch(cmd.Context(), owner); err != nil {
						return err
					}
				}

				var rows []lessonRow
				t := &table{header: []string{"LESSON", "COURSE", "TITLE", "EXAMPLE", "EXERCISES", "PROGRESS"}}
				for _, course := range courses {
					for _, lesson := range course.Lessons {
						row := lessonRow{
							CourseID:  course.ID,
							LessonID:  lesson.ID,
							Title:     lesson.Title,
							Example:   lesson.CodeExample != nil,
							Exercises: len(lesson.Exercises),
						}
						if p, ok := a.Tracker.Lesson(course.ID, lesson.ID); ok {
							row.Progress = p.Percentage
						}
						rows = append(rows, row)
						t.add(row.LessonID, row.CourseID, row.Title, strconv.FormatBool(row.Example),
							strconv.Itoa(row.Exercises), strconv.Itoa(row.Progress)+"%")
					}
				}
				return output.render(cmd.OutOrStdout(), rows, t)
			})
		},
	}
	output = addOutputFlags(cmd)
	return cmd
}

func (c *cli) newLessonsShowCmd() *cobra.Command {
	var rendered bool
	cmd := &cobra.Command{
		Use:   "show <course> <lesson>",
		Short: "Print a lesson's content",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Default()
			if err != nil {
				return err
			}
			lesson, err := cat.Lesson(args[0], args[1])
			if err != nil {
				return err
			}
			if rendered {
				html, err := cat.RenderLesson(lesson)
				if err != nil {
					return err
				}
				printf(cmd, "%s", html)
				return nil
			}

			printf(cmd, "# %s\n\n%s\n", lesson.Title, lesson.Content)
			for _, ex := range lesson.Exercises {
				printf(cmd, "\nExercise %s: %s\n  %s\n", ex.ID, ex.Title, ex.Description)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&rendered, "html", false, "Render the markdown to HTML")
	return cmd
}

func (c *cli) newLessonsOpenCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "open <course> <lesson> [exercise]",
		Short: "Write a lesson's example or an exercise's starting code into a workspace",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				var (
					snap buffers.Snapshot
					what string
				)
				if len(args) == 3 {
					ex, err := a.Catalog.Exercise(args[0], args[1], args[2])
					if err != nil {
						return err
					}
					if snap, err = a.Session.LoadExercise(ex); err != nil {
						return err
					}
					what = ex.Title
				} else {
					lesson, err := a.Catalog.Lesson(args[0], args[1])
					if err != nil {
						return err
					}
					if snap, err = a.Session.LoadExample(lesson); err != nil {
						return err
					}
					what = lesson.Title
				}

				if err := watcher.WriteWorkspace(dir, snap.Contents); err != nil {
					return err
				}
				printf(cmd, "Opened %q into %s\n", what, dir)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "Workspace directory to write")
	return cmd
}
