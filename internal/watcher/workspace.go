package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/conneroisu/codecraft/internal/buffers"
	apperrors "github.com/conneroisu/codecraft/internal/errors"
	"github.com/conneroisu/codecraft/internal/logging"
)

// Workspace file names, one per buffer role.
const (
	MarkupFile = "index.html"
	StylesFile = "style.css"
	ScriptFile = "script.js"
)

// FileFor names the workspace file backing a role.
func FileFor(r buffers.Role) string {
	switch r {
	case buffers.Markup:
		return MarkupFile
	case buffers.Styles:
		return StylesFile
	case buffers.Script:
		return ScriptFile
	default:
		return ""
	}
}

// WorkspaceFilter accepts only the three workspace files.
func WorkspaceFilter(path string) bool {
	switch filepath.Base(path) {
	case MarkupFile, StylesFile, ScriptFile:
		return true
	default:
		return false
	}
}

// ReadWorkspace reads the three files in dir. A missing file reads as
// empty; found reports whether any of them exists.
func ReadWorkspace(dir string) (contents buffers.Contents, found bool, err error) {
	for _, role := range buffers.Roles {
		data, readErr := os.ReadFile(filepath.Join(dir, FileFor(role)))
		switch {
		case readErr == nil:
			found = true
			contents = contents.With(role, string(data))
		case errors.Is(readErr, fs.ErrNotExist):
		default:
			return buffers.Contents{}, false, apperrors.WrapInternal(readErr, "failed to read workspace file "+FileFor(role))
		}
	}
	return contents, found, nil
}

// WriteWorkspace writes the three files into dir, creating it if needed.
func WriteWorkspace(dir string, contents buffers.Contents) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperrors.WrapInternal(err, "failed to create workspace "+dir)
	}
	for _, role := range buffers.Roles {
		path := filepath.Join(dir, FileFor(role))
		if err := os.WriteFile(path, []byte(contents.Get(role)), 0o644); err != nil {
			return apperrors.WrapInternal(err, "failed to write "+path)
		}
	}
	return nil
}

// Loader receives the workspace contents. *editor.Session satisfies it, so a
// workspace load supersedes pending project loads like any other load.
type Loader interface {
	LoadContents(c buffers.Contents) (buffers.Snapshot, error)
}

// Mirror keeps a buffer set in step with a workspace directory.
type Mirror struct {
	dir     string
	target  Loader
	watcher *FileWatcher
	logger  logging.Logger
}

// NewMirror watches dir and loads every debounced change into target.
func NewMirror(dir string, target Loader, debounce time.Duration, logger logging.Logger) (*Mirror, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	abs, err := validateDir(dir)
	if err != nil {
		return nil, err
	}
	m := &Mirror{dir: abs, target: target, logger: logger.WithComponent("workspace")}
	fw, err := NewFileWatcher(debounce, WorkspaceFilter, func(ctx context.Context, _ []Change) error {
		_, err := m.Sync(ctx)
		return err
	}, logger)
	if err != nil {
		return nil, err
	}
	if err := fw.Watch(abs); err != nil {
		_ = fw.Stop()
		return nil, err
	}
	m.watcher = fw
	return m, nil
}

// Dir is the absolute workspace path.
func (m *Mirror) Dir() string { return m.dir }

// Start loads the workspace once if it has any files, then follows changes
// until ctx ends or Stop is called.
func (m *Mirror) Start(ctx context.Context) error {
	contents, found, err := ReadWorkspace(m.dir)
	if err != nil {
		return err
	}
	if found {
		if _, err := m.target.LoadContents(contents); err != nil {
			return err
		}
		m.logger.Info(ctx, "Loaded workspace", "dir", m.dir)
	}
	m.watcher.Start(ctx)
	return nil
}

// Sync rereads all three files and loads them.
func (m *Mirror) Sync(ctx context.Context) (buffers.Snapshot, error) {
	contents, _, err := ReadWorkspace(m.dir)
	if err != nil {
		return buffers.Snapshot{}, err
	}
	snap, err := m.target.LoadContents(contents)
	if err != nil {
		return buffers.Snapshot{}, err
	}
	m.logger.Debug(ctx, "Workspace synced", "dir", m.dir, "revision", snap.Revision)
	return snap, nil
}

// Stop releases the watcher.
func (m *Mirror) Stop() error {
	return m.watcher.Stop()
}
