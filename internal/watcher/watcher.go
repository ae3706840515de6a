// Package watcher mirrors a workspace directory of index.html, style.css and
// script.js into a buffer set. File system events are collapsed into one
// batch per quiet period before the buffers are reloaded.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	apperrors "github.com/conneroisu/codecraft/internal/errors"
	"github.com/conneroisu/codecraft/internal/logging"
	"github.com/fsnotify/fsnotify"
)

// Op is what happened to a workspace file.
type Op int

const (
	OpCreate Op = iota
	OpWrite
	OpRemove
	OpRename
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpWrite:
		return "write"
	case OpRemove:
		return "remove"
	case OpRename:
		return "rename"
	}
	return "unknown"
}

func opOf(op fsnotify.Op) Op {
	switch {
	case op.Has(fsnotify.Create):
		return OpCreate
	case op.Has(fsnotify.Remove):
		return OpRemove
	case op.Has(fsnotify.Rename):
		return OpRename
	}
	return OpWrite
}

// Change is one file event after filtering.
type Change struct {
	Op   Op
	Path string
}

// BatchFunc receives the changes collected during one quiet period, sorted
// by path with one entry per path.
type BatchFunc func(ctx context.Context, batch []Change) error

// FileWatcher follows one directory. Subdirectories are ignored since the
// workspace is flat.
type FileWatcher struct {
	fs     *fsnotify.Watcher
	accept func(path string) bool
	onFire BatchFunc
	queue  *batcher
	logger logging.Logger
	once   sync.Once
}

// NewFileWatcher opens an fsnotify watcher. accept filters paths and may be
// nil; onBatch runs on the watcher goroutine.
func NewFileWatcher(quiet time.Duration, accept func(string) bool, onBatch BatchFunc, logger logging.Logger) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, apperrors.WrapInternal(err, "failed to create file watcher")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	if accept == nil {
		accept = func(string) bool { return true }
	}
	return &FileWatcher{
		fs:     w,
		accept: accept,
		onFire: onBatch,
		queue:  newBatcher(quiet),
		logger: logger.WithComponent("watcher"),
	}, nil
}

// Watch adds dir to the watch list.
func (fw *FileWatcher) Watch(dir string) error {
	abs, err := validateDir(dir)
	if err != nil {
		return err
	}
	if err := fw.fs.Add(abs); err != nil {
		return apperrors.WrapInternal(err, "failed to watch "+abs)
	}
	return nil
}

func validateDir(dir string) (string, error) {
	if dir == "" {
		return "", apperrors.NewValidationError(apperrors.ErrCodeConfigInvalid, "workspace directory is empty")
	}
	abs, err := filepath.Abs(filepath.Clean(dir))
	if err != nil {
		return "", apperrors.WrapInternal(err, "failed to resolve "+dir)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrorTypeConfig, apperrors.ErrCodeConfigInvalid, "workspace directory is not accessible")
	}
	if !info.IsDir() {
		return "", apperrors.NewConfigError(apperrors.ErrCodeConfigInvalid, abs+" is not a directory")
	}
	return abs, nil
}

// Start runs the event loop until ctx ends or Stop is called.
func (fw *FileWatcher) Start(ctx context.Context) {
	go fw.loop(ctx)
}

// Stop closes the underlying watcher. Safe to call more than once.
func (fw *FileWatcher) Stop() error {
	var err error
	fw.once.Do(func() {
		fw.queue.cancel()
		err = fw.fs.Close()
	})
	return err
}

func (fw *FileWatcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			fw.queue.cancel()
			return
		case ev, ok := <-fw.fs.Events:
			if !ok {
				return
			}
			if fw.accept(ev.Name) {
				fw.queue.add(Change{Op: opOf(ev.Op), Path: ev.Name})
			}
		case err, ok := <-fw.fs.Errors:
			if !ok {
				return
			}
			fw.logger.Warn(ctx, err, "File watcher error")
		case batch := <-fw.queue.ready:
			if fw.onFire == nil {
				continue
			}
			if err := fw.onFire(ctx, batch); err != nil {
				fw.logger.Error(ctx, err, "Workspace batch failed", "changes", len(batch))
			}
		}
	}
}

// batcher restarts its timer on every add and emits the pending changes
// once the timer fires.
type batcher struct {
	quiet   time.Duration
	ready   chan []Change
	mu      sync.Mutex
	timer   *time.Timer
	pending map[string]Change
}

func newBatcher(quiet time.Duration) *batcher {
	return &batcher{
		quiet:   quiet,
		ready:   make(chan []Change, 1),
		pending: make(map[string]Change),
	}
}

func (b *batcher) add(c Change) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending[c.Path] = c
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.quiet, b.fire)
}

func (b *batcher) cancel() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil {
		b.timer.Stop()
	}
}

func (b *batcher) fire() {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	batch := make([]Change, 0, len(b.pending))
	for _, c := range b.pending {
		batch = append(batch, c)
	}
	b.pending = make(map[string]Change)
	b.mu.Unlock()

	sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })
	// A batch still waiting covers this one: every sync rereads all files.
	select {
	case b.ready <- batch:
	default:
	}
}
