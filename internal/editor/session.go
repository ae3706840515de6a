// Package editor binds one buffer set to the preview pipeline, the sandbox,
// a persistence adapter and a notifier for the lifetime of one editor view.
//
// Persistence failures are reported through exactly one notification and
// leave the buffers untouched; nothing is retried. Project loads run in the
// background and carry a sequence number: only the most recently issued
// load may touch the buffers, and nothing is applied after Close.
package editor

import (
	"context"
	"strings"
	"sync"

	"github.com/conneroisu/codecraft/internal/buffers"
	"github.com/conneroisu/codecraft/internal/catalog"
	apperrors "github.com/conneroisu/codecraft/internal/errors"
	"github.com/conneroisu/codecraft/internal/logging"
	"github.com/conneroisu/codecraft/internal/notify"
	"github.com/conneroisu/codecraft/internal/preview"
	"github.com/conneroisu/codecraft/internal/projects"
	"github.com/conneroisu/codecraft/internal/sandbox"
)

// Options configures a Session.
type Options struct {
	// OwnerID identifies whose projects are listed and saved. Empty means
	// signed out: buffers and preview work, persistence is refused.
	OwnerID string
	Policy  sandbox.Policy
	Logger  logging.Logger
	// Initial overrides the welcome template.
	Initial *buffers.Contents
}

// SaveRequest carries the metadata for a new project.
type SaveRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	IsPublic    bool    `json:"is_public"`
}

// Session is one editor view.
type Session struct {
	adapter  projects.Adapter
	notifier notify.Notifier
	logger   logging.Logger
	owner    string

	set      *buffers.Set
	sandbox  *sandbox.Sandbox
	pipeline *preview.Pipeline

	// applyMu serialises load application so a stale result can never be
	// written after a newer one.
	applyMu sync.Mutex

	mu      sync.Mutex
	current *projects.StoredProject
	loadSeq uint64
	closed  bool

	inflight sync.WaitGroup
}

// New creates a session showing the welcome template.
func New(adapter projects.Adapter, notifier notify.Notifier, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	if notifier == nil {
		notifier = notify.Multi{}
	}
	policy := opts.Policy
	if len(policy.Tokens) == 0 {
		policy = sandbox.DefaultPolicy()
	}

	sb, err := sandbox.New(policy)
	if err != nil {
		return nil, err
	}

	set := buffers.New()
	if opts.Initial != nil {
		set = buffers.NewWith(*opts.Initial)
	}

	s := &Session{
		adapter:  adapter,
		notifier: notifier,
		logger:   logger.WithComponent("editor"),
		owner:    strings.TrimSpace(opts.OwnerID),
		set:      set,
		sandbox:  sb,
	}
	s.pipeline = preview.NewPipeline(set, sb, logger)
	return s, nil
}

func errClosed() error {
	return apperrors.NewValidationError(apperrors.ErrCodeSessionClosed, "editor session is closed")
}

// Owner returns the owner id, empty when signed out.
func (s *Session) Owner() string { return s.owner }

// Buffers exposes the session's buffer set.
func (s *Session) Buffers() *buffers.Set { return s.set }

// Sandbox exposes the session's preview surface.
func (s *Session) Sandbox() *sandbox.Sandbox { return s.sandbox }

// Snapshot reads the buffers.
func (s *Session) Snapshot() buffers.Snapshot { return s.set.Snapshot() }

// Document returns the most recently composed preview document.
func (s *Session) Document() string {
	frame, _ := s.pipeline.Last()
	return frame.Document
}

// Frame returns the live preview frame.
func (s *Session) Frame() (sandbox.Frame, bool) { return s.sandbox.Current() }

// Current returns the project the buffers were last saved to or loaded from.
func (s *Session) Current() (projects.StoredProject, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return projects.StoredProject{}, false
	}
	return *s.current, true
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Set replaces one buffer.
func (s *Session) Set(role buffers.Role, content string) error {
	if s.Closed() {
		return errClosed()
	}
	return s.set.Set(role, content)
}

// SetActive changes which buffer is being edited.
func (s *Session) SetActive(role buffers.Role) error {
	if s.Closed() {
		return errClosed()
	}
	return s.set.SetActive(role)
}

// Reset restores the starter template. It supersedes any pending load.
func (s *Session) Reset() (buffers.Snapshot, error) {
	if _, err := s.supersede(); err != nil {
		return buffers.Snapshot{}, err
	}
	s.applyMu.Lock()
	defer s.applyMu.Unlock()
	return s.set.Reset(), nil
}

// supersede invalidates pending loads and returns the new sequence number.
func (s *Session) supersede() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errClosed()
	}
	s.loadSeq++
	return s.loadSeq, nil
}

func (s *Session) requireOwner(ctx context.Context) error {
	if s.owner != "" {
		return nil
	}
	s.notifier.Notify(ctx, notify.Error(notify.MsgSignInRequired))
	return apperrors.NewValidationError(apperrors.ErrCodeMissingOwner, "sign in to use projects")
}

// Save stores the current buffers as a new project.
func (s *Session) Save(ctx context.Context, req SaveRequest) (projects.StoredProject, error) {
	if s.Closed() {
		return projects.StoredProject{}, errClosed()
	}
	if err := s.requireOwner(ctx); err != nil {
		return projects.StoredProject{}, err
	}
	if strings.TrimSpace(req.Title) == "" {
		s.notifier.Notify(ctx, notify.Error(notify.MsgTitleRequired))
		return projects.StoredProject{}, apperrors.NewValidationError(apperrors.ErrCodeMissingTitle, "project title is required")
	}

	snap := s.set.Snapshot()
	p, err := s.adapter.Create(ctx, s.owner, projects.FromSnapshot(snap, req.Title, req.Description, req.IsPublic))
	if err != nil {
		s.logger.Error(ctx, err, "Project save failed", "owner", s.owner, "title", req.Title)
		s.notifier.Notify(ctx, notify.Error(notify.MsgSaveFailed))
		return projects.StoredProject{}, err
	}

	s.mu.Lock()
	s.current = &p
	s.mu.Unlock()
	s.logger.Info(ctx, "Project saved", "project", p.ID, "revision", snap.Revision)
	s.notifier.Notify(ctx, notify.Success(notify.MsgProjectSaved))
	return p, nil
}

// UpdateCurrent overwrites the current project's code with the buffers.
func (s *Session) UpdateCurrent(ctx context.Context) (projects.StoredProject, error) {
	if s.Closed() {
		return projects.StoredProject{}, errClosed()
	}
	if err := s.requireOwner(ctx); err != nil {
		return projects.StoredProject{}, err
	}
	cur, ok := s.Current()
	if !ok {
		s.notifier.Notify(ctx, notify.Error(notify.MsgNoCurrentProject))
		return projects.StoredProject{}, apperrors.NewValidationError(apperrors.ErrCodeProjectNotFound, "no project is open")
	}
	return s.Update(ctx, cur.ID, projects.ProjectPatch{})
}

// Update applies patch to a project. An empty patch writes the buffers'
// code. The buffers are not touched.
func (s *Session) Update(ctx context.Context, projectID string, patch projects.ProjectPatch) (projects.StoredProject, error) {
	if s.Closed() {
		return projects.StoredProject{}, errClosed()
	}
	if err := s.requireOwner(ctx); err != nil {
		return projects.StoredProject{}, err
	}
	if patch.Empty() {
		patch = projects.PatchFromSnapshot(s.set.Snapshot())
	}

	updated, err := s.adapter.Update(ctx, projectID, patch)
	if err != nil {
		s.logger.Error(ctx, err, "Project update failed", "project", projectID)
		s.notifier.Notify(ctx, notify.Error(notify.MsgUpdateFailed))
		return projects.StoredProject{}, err
	}

	s.mu.Lock()
	if s.current != nil && s.current.ID == projectID {
		s.current = &updated
	}
	s.mu.Unlock()
	s.notifier.Notify(ctx, notify.Success(notify.MsgProjectUpdated))
	return updated, nil
}

// Projects lists the owner's projects, most recently updated first.
func (s *Session) Projects(ctx context.Context) ([]projects.StoredProject, error) {
	if err := s.requireOwner(ctx); err != nil {
		return nil, err
	}
	list, err := s.adapter.List(ctx, s.owner)
	if err != nil {
		s.logger.Error(ctx, err, "Project list failed", "owner", s.owner)
		s.notifier.Notify(ctx, notify.Error(notify.MsgFetchFailed))
		return nil, err
	}
	return list, nil
}

// Delete removes a project. The buffers are not touched.
func (s *Session) Delete(ctx context.Context, projectID string) error {
	if err := s.requireOwner(ctx); err != nil {
		return err
	}
	if err := s.adapter.Delete(ctx, projectID); err != nil {
		s.logger.Error(ctx, err, "Project delete failed", "project", projectID)
		s.notifier.Notify(ctx, notify.Error(notify.MsgDeleteFailed))
		return err
	}

	s.mu.Lock()
	if s.current != nil && s.current.ID == projectID {
		s.current = nil
	}
	s.mu.Unlock()
	s.notifier.Notify(ctx, notify.Success(notify.MsgProjectDeleted))
	return nil
}

// LoadProject replaces the buffers with an already fetched project.
func (s *Session) LoadProject(p projects.StoredProject) (buffers.Snapshot, error) {
	if _, err := s.supersede(); err != nil {
		return buffers.Snapshot{}, err
	}
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	s.mu.Lock()
	s.current = &p
	s.mu.Unlock()
	return s.set.Load(projects.ToBuffers(p)), nil
}

// LoadExercise replaces the buffers with an exercise's starting code. The
// buffers no longer belong to a saved project afterwards.
func (s *Session) LoadExercise(ex catalog.Exercise) (buffers.Snapshot, error) {
	return s.loadDetached(catalog.Starting(ex))
}

// LoadExample replaces the buffers with a lesson's code example.
func (s *Session) LoadExample(lesson catalog.Lesson) (buffers.Snapshot, error) {
	contents, ok := catalog.Example(lesson)
	if !ok {
		return buffers.Snapshot{}, apperrors.NewNotFoundError(apperrors.ErrCodeLessonNotFound, "code example for "+lesson.ID)
	}
	return s.loadDetached(contents)
}

// LoadContents replaces all three buffers at once, as when importing code
// from outside a saved project.
func (s *Session) LoadContents(c buffers.Contents) (buffers.Snapshot, error) {
	return s.loadDetached(c)
}

func (s *Session) loadDetached(contents buffers.Contents) (buffers.Snapshot, error) {
	if _, err := s.supersede(); err != nil {
		return buffers.Snapshot{}, err
	}
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
	return s.set.Load(contents), nil
}

// Close ends the session. Loads that resolve afterwards are discarded.
// In-flight backend calls are not cancelled.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.applyMu.Lock()
	s.pipeline.Close()
	s.sandbox.TearDown()
	s.applyMu.Unlock()
	s.logger.Debug(context.Background(), "Editor session closed")
}

// Wait blocks until every background load has resolved.
func (s *Session) Wait() {
	s.inflight.Wait()
}
