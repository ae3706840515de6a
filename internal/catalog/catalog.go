// Package catalog is the read-only lesson content: courses made of lessons,
// lessons carrying markdown bodies, example code and exercises.
package catalog

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"sync"

	"github.com/conneroisu/codecraft/internal/buffers"
	apperrors "github.com/conneroisu/codecraft/internal/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed courses.yaml
var embeddedCourses []byte

// Code is a markup, styles and script triple.
type Code struct {
	HTML       string `yaml:"html" json:"html"`
	CSS        string `yaml:"css" json:"css"`
	JavaScript string `yaml:"javascript" json:"javascript"`
}

// Contents converts the triple to buffer contents.
func (c Code) Contents() buffers.Contents {
	return buffers.Contents{Markup: c.HTML, Styles: c.CSS, Script: c.JavaScript}
}

// Exercise is a task with starting code and a reference solution.
type Exercise struct {
	ID           string `yaml:"id" json:"id"`
	Title        string `yaml:"title" json:"title"`
	Description  string `yaml:"description" json:"description"`
	StartingCode Code   `yaml:"starting_code" json:"starting_code"`
	Solution     Code   `yaml:"solution" json:"solution"`
}

// Lesson is one unit of a course. Content is markdown.
type Lesson struct {
	ID          string     `yaml:"id" json:"id"`
	Title       string     `yaml:"title" json:"title"`
	Description string     `yaml:"description" json:"description"`
	Content     string     `yaml:"content" json:"content"`
	CodeExample *Code      `yaml:"code_example,omitempty" json:"code_example,omitempty"`
	Exercises   []Exercise `yaml:"exercises,omitempty" json:"exercises,omitempty"`
}

// Course is an ordered list of lessons.
type Course struct {
	ID          string   `yaml:"id" json:"id"`
	Title       string   `yaml:"title" json:"title"`
	Description string   `yaml:"description" json:"description"`
	Level       string   `yaml:"level" json:"level"`
	Duration    string   `yaml:"duration" json:"duration"`
	Icon        string   `yaml:"icon" json:"icon"`
	Topics      []string `yaml:"topics" json:"topics"`
	Lessons     []Lesson `yaml:"lessons" json:"lessons"`
}

type document struct {
	Courses []Course `yaml:"courses"`
}

// Catalog indexes courses for lookup.
type Catalog struct {
	courses  []Course
	byCourse map[string]int
	markdown goldmark.Markdown
}

// Parse reads a catalog document.
func Parse(r io.Reader) (*Catalog, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeConfig, apperrors.ErrCodeConfigInvalid, "invalid course catalog")
	}

	c := &Catalog{
		courses:  doc.Courses,
		byCourse: make(map[string]int, len(doc.Courses)),
		markdown: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		),
	}

	collector := apperrors.NewErrorCollector()
	lessonIDs := make(map[string]string)
	for i, course := range doc.Courses {
		if course.ID == "" {
			collector.Add(apperrors.NewConfigError(apperrors.ErrCodeConfigInvalid,
				fmt.Sprintf("course %d has no id", i)))
			continue
		}
		if _, dup := c.byCourse[course.ID]; dup {
			collector.Add(apperrors.NewConfigError(apperrors.ErrCodeConfigInvalid,
				fmt.Sprintf("duplicate course id %q", course.ID)))
			continue
		}
		c.byCourse[course.ID] = i
		for _, lesson := range course.Lessons {
			if owner, dup := lessonIDs[lesson.ID]; dup {
				collector.Add(apperrors.NewConfigError(apperrors.ErrCodeConfigInvalid,
					fmt.Sprintf("lesson id %q appears in %q and %q", lesson.ID, owner, course.ID)))
			}
			lessonIDs[lesson.ID] = course.ID
		}
	}
	if err := collector.Err(); err != nil {
		return nil, err
	}
	return c, nil
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
	defaultErr     error
)

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCatalog, defaultErr = Parse(bytes.NewReader(embeddedCourses))
	})
	return defaultCatalog, defaultErr
}

// Courses returns every course in catalog order.
func (c *Catalog) Courses() []Course {
	out := make([]Course, len(c.courses))
	copy(out, c.courses)
	return out
}

// Course looks up a course by id.
func (c *Catalog) Course(id string) (Course, error) {
	i, ok := c.byCourse[id]
	if !ok {
		return Course{}, apperrors.NewNotFoundError(apperrors.ErrCodeLessonNotFound, "course "+id)
	}
	return c.courses[i], nil
}

// Lesson looks up a lesson within a course.
func (c *Catalog) Lesson(courseID, lessonID string) (Lesson, error) {
	course, err := c.Course(courseID)
	if err != nil {
		return Lesson{}, err
	}
	for _, l := range course.Lessons {
		if l.ID == lessonID {
			return l, nil
		}
	}
	return Lesson{}, apperrors.NewNotFoundError(apperrors.ErrCodeLessonNotFound, "lesson "+courseID+"/"+lessonID)
}

// Exercise looks up an exercise within a lesson.
func (c *Catalog) Exercise(courseID, lessonID, exerciseID string) (Exercise, error) {
	lesson, err := c.Lesson(courseID, lessonID)
	if err != nil {
		return Exercise{}, err
	}
	for _, ex := range lesson.Exercises {
		if ex.ID == exerciseID {
			return ex, nil
		}
	}
	return Exercise{}, apperrors.NewNotFoundError(apperrors.ErrCodeLessonNotFound,
		"exercise "+courseID+"/"+lessonID+"/"+exerciseID)
}

// RenderLesson converts the lesson's markdown body to HTML. Raw HTML in the
// markdown is not passed through.
func (c *Catalog) RenderLesson(lesson Lesson) (template.HTML, error) {
	var buf bytes.Buffer
	if err := c.markdown.Convert([]byte(lesson.Content), &buf); err != nil {
		return "", apperrors.WrapInternal(err, "failed to render lesson "+lesson.ID)
	}
	return template.HTML(buf.String()), nil
}

// Starting returns the buffers an exercise opens with.
func Starting(ex Exercise) buffers.Contents {
	return ex.StartingCode.Contents()
}

// Example returns the buffers for a lesson's code example. Lessons without
// one yield empty buffers and false.
func Example(lesson Lesson) (buffers.Contents, bool) {
	if lesson.CodeExample == nil {
		return buffers.Contents{}, false
	}
	return lesson.CodeExample.Contents(), true
}

var titleCaser = cases.Title(language.English)

// DisplayTitle title-cases an identifier such as "html-basics" for listings.
func DisplayTitle(id string) string {
	b := []byte(id)
	for i, ch := range b {
		if ch == '-' || ch == '_' {
			b[i] = ' '
		}
	}
	return titleCaser.String(string(b))
}
