package server

import (
	"io"
	"net/http"

	"github.com/conneroisu/codecraft/internal/buffers"
	"github.com/conneroisu/codecraft/internal/catalog"
	"github.com/conneroisu/codecraft/internal/editor"
	apperrors "github.com/conneroisu/codecraft/internal/errors"
	"github.com/conneroisu/codecraft/internal/progress"
	"github.com/conneroisu/codecraft/internal/projects"
)

// Buffers

func (s *Server) handleGetBuffers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Session.Snapshot())
}

type contentRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleSetBuffer(w http.ResponseWriter, r *http.Request) {
	role, err := buffers.ParseRole(r.PathValue("role"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req contentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.app.Session.Set(role, req.Content); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.app.Session.Snapshot())
}

type activeRequest struct {
	Role buffers.Role `json:"role"`
}

func (s *Server) handleSetActive(w http.ResponseWriter, r *http.Request) {
	var req activeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.app.Session.SetActive(req.Role); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.app.Session.Snapshot())
}

func (s *Server) handleLoadBuffers(w http.ResponseWriter, r *http.Request) {
	var req buffers.Contents
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	snap, err := s.app.Session.LoadContents(req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleResetBuffers(w http.ResponseWriter, r *http.Request) {
	snap, err := s.app.Session.Reset()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handlePreview returns the composed document under the frame's isolation
// headers, so opening it directly is as contained as the iframe.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	s.app.Session.Sandbox().Policy().ApplyHeaders(w.Header())
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, s.app.Session.Document())
}

// Projects

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	list, err := s.app.Session.Projects(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []projects.StoredProject{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleSaveProject(w http.ResponseWriter, r *http.Request) {
	var req editor.SaveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.app.Session.Save(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleCurrentProject(w http.ResponseWriter, r *http.Request) {
	p, ok := s.app.Session.Current()
	if !ok {
		s.writeError(w, r, apperrors.NewNotFoundError(apperrors.ErrCodeProjectNotFound, "current project"))
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleUpdateProject applies a metadata patch. An empty body writes the
// buffers' code into the project.
func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	var patch projects.ProjectPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.app.Session.Update(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Session.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type loadResponse struct {
	editor.LoadResult
	Buffers buffers.Snapshot `json:"buffers"`
}

// handleLoadProject starts a background load and waits for it. A load that
// a newer one superseded answers 200 with applied=false; a request that ends
// before the load resolves gets a 500.
func (s *Server) handleLoadProject(w http.ResponseWriter, r *http.Request) {
	ticket := s.app.Session.Load(r.Context(), r.PathValue("id"))
	res, err := ticket.Wait(r.Context())
	if err != nil {
		// The request ended first. The load keeps running and may still apply.
		s.writeError(w, r, apperrors.WrapInternal(err, "project load still pending"))
		return
	}
	if res.Err != nil {
		s.writeError(w, r, res.Err)
		return
	}
	writeJSON(w, http.StatusOK, loadResponse{LoadResult: res, Buffers: s.app.Session.Snapshot()})
}

// Lessons

type courseSummary struct {
	catalog.Course
	Progress int `json:"progress"`
}

func (s *Server) handleListLessons(w http.ResponseWriter, r *http.Request) {
	courses := s.app.Catalog.Courses()
	out := make([]courseSummary, 0, len(courses))
	for _, c := range courses {
		out = append(out, courseSummary{Course: c, Progress: s.app.Tracker.CourseProgress(c.ID)})
	}
	writeJSON(w, http.StatusOK, out)
}

type lessonResponse struct {
	CourseID string                   `json:"course_id"`
	Lesson   catalog.Lesson           `json:"lesson"`
	HTML     string                   `json:"html"`
	Progress *progress.LessonProgress `json:"progress,omitempty"`
}

func (s *Server) handleGetLesson(w http.ResponseWriter, r *http.Request) {
	courseID := r.PathValue("course")
	lesson, err := s.app.Catalog.Lesson(courseID, r.PathValue("lesson"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	body, err := s.app.Catalog.RenderLesson(lesson)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := lessonResponse{CourseID: courseID, Lesson: lesson, HTML: string(body)}
	if p, ok := s.app.Tracker.Lesson(courseID, lesson.ID); ok {
		resp.Progress = &p
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleOpenExample(w http.ResponseWriter, r *http.Request) {
	lesson, err := s.app.Catalog.Lesson(r.PathValue("course"), r.PathValue("lesson"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	snap, err := s.app.Session.LoadExample(lesson)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleOpenExercise(w http.ResponseWriter, r *http.Request) {
	ex, err := s.app.Catalog.Exercise(r.PathValue("course"), r.PathValue("lesson"), r.PathValue("exercise"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	snap, err := s.app.Session.LoadExercise(ex)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Progress

type progressResponse struct {
	Entries []progress.LessonProgress `json:"entries"`
	Courses map[string]int            `json:"courses"`
}

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	owner := s.app.Session.Owner()
	if err := s.app.Tracker.Fetch(r.Context(), owner); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.progressSummary())
}

func (s *Server) progressSummary() progressResponse {
	resp := progressResponse{Entries: s.app.Tracker.Entries(), Courses: make(map[string]int)}
	for _, c := range s.app.Catalog.Courses() {
		resp.Courses[c.ID] = s.app.Tracker.CourseProgress(c.ID)
	}
	return resp
}

type progressRequest struct {
	// Percentage defaults to 100.
	Percentage *int `json:"percentage"`
}

func (s *Server) handleUpdateProgress(w http.ResponseWriter, r *http.Request) {
	courseID := r.PathValue("course")
	lesson, err := s.app.Catalog.Lesson(courseID, r.PathValue("lesson"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req progressRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	pct := 100
	if req.Percentage != nil {
		pct = *req.Percentage
	}
	if err := s.app.Tracker.Update(r.Context(), s.app.Session.Owner(), courseID, lesson.ID, pct); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.progressSummary())
}
