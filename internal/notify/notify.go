// Package notify delivers short user-facing messages about the outcome of
// persistence operations.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/conneroisu/codecraft/internal/logging"
)

// Level classifies a notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// Messages shown to the user.
const (
	MsgProjectSaved     = "Project saved successfully!"
	MsgProjectUpdated   = "Project updated successfully!"
	MsgProjectDeleted   = "Project deleted"
	MsgSaveFailed       = "Failed to save project"
	MsgUpdateFailed     = "Failed to update project"
	MsgFetchFailed      = "Failed to fetch projects"
	MsgLoadFailed       = "Failed to load project"
	MsgDeleteFailed     = "Failed to delete project"
	MsgProgressFailed   = "Failed to update progress"
	MsgProgressFetch    = "Failed to fetch progress"
	MsgTitleRequired    = "Project title is required"
	MsgSignInRequired   = "Sign in to save projects"
	MsgNoCurrentProject = "No project is open"
)

// Notification is one transient message.
type Notification struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Success builds a success notification stamped now.
func Success(msg string) Notification {
	return Notification{Level: LevelSuccess, Message: msg, Time: time.Now()}
}

// Error builds an error notification stamped now.
func Error(msg string) Notification {
	return Notification{Level: LevelError, Message: msg, Time: time.Now()}
}

// Info builds an informational notification stamped now.
func Info(msg string) Notification {
	return Notification{Level: LevelInfo, Message: msg, Time: time.Now()}
}

// Notifier shows notifications to the user.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, n Notification)

// Notify calls f.
func (f Func) Notify(ctx context.Context, n Notification) { f(ctx, n) }

// Recorder keeps every notification it receives.
type Recorder struct {
	mu  sync.Mutex
	all []Notification
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Notify records n.
func (r *Recorder) Notify(_ context.Context, n Notification) {
	r.mu.Lock()
	r.all = append(r.all, n)
	r.mu.Unlock()
}

// All returns a copy of the recorded notifications in arrival order.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.all))
	copy(out, r.all)
	return out
}

// Drain returns the recorded notifications and clears the recorder.
func (r *Recorder) Drain() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.all
	r.all = nil
	return out
}

// Last returns the most recent notification.
func (r *Recorder) Last() (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.all) == 0 {
		return Notification{}, false
	}
	return r.all[len(r.all)-1], true
}

// LogNotifier writes notifications to a structured logger.
type LogNotifier struct {
	logger logging.Logger
}

// NewLogNotifier returns a notifier that logs under the "notify" component.
func NewLogNotifier(logger logging.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.WithComponent("notify")}
}

// Notify logs n at a level matching its severity.
func (l *LogNotifier) Notify(ctx context.Context, n Notification) {
	if n.Level == LevelError {
		l.logger.Warn(ctx, nil, n.Message, "kind", string(n.Level))
		return
	}
	l.logger.Info(ctx, n.Message, "kind", string(n.Level))
}

// Multi fans a notification out to several notifiers in order.
type Multi []Notifier

// Notify forwards n to every notifier.
func (m Multi) Notify(ctx context.Context, n Notification) {
	for _, target := range m {
		if target != nil {
			target.Notify(ctx, n)
		}
	}
}
