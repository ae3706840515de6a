// Package progress tracks how far an owner has got through each lesson.
package progress

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	apperrors "github.com/conneroisu/codecraft/internal/errors"
	"github.com/conneroisu/codecraft/internal/logging"
	"github.com/conneroisu/codecraft/internal/notify"
)

// LessonProgress is one owner's progress through one lesson.
type LessonProgress struct {
	ID         string    `json:"id,omitempty"`
	OwnerID    string    `json:"user_id"`
	CourseID   string    `json:"course_id"`
	LessonID   string    `json:"lesson_id"`
	Completed  bool      `json:"completed"`
	Percentage int       `json:"progress_percentage"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Store persists lesson progress. Upserts are keyed by owner, course and
// lesson.
type Store interface {
	ListProgress(ctx context.Context, ownerID string) ([]LessonProgress, error)
	UpsertProgress(ctx context.Context, p LessonProgress) error
}

// Clamp bounds a percentage to 0..100.
func Clamp(pct int) int {
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	default:
		return pct
	}
}

// Tracker caches the progress of the signed-in owner.
type Tracker struct {
	store    Store
	notifier notify.Notifier
	logger   logging.Logger

	mu      sync.RWMutex
	entries []LessonProgress
}

// NewTracker returns a tracker with an empty cache.
func NewTracker(store Store, notifier notify.Notifier, logger logging.Logger) *Tracker {
	if logger == nil {
		logger = logging.Nop()
	}
	if notifier == nil {
		notifier = notify.Multi{}
	}
	return &Tracker{store: store, notifier: notifier, logger: logger.WithComponent("progress")}
}

// Fetch replaces the cache with the owner's stored progress.
func (t *Tracker) Fetch(ctx context.Context, ownerID string) error {
	if ownerID == "" {
		return apperrors.NewValidationError(apperrors.ErrCodeMissingOwner, "owner is required")
	}
	entries, err := t.store.ListProgress(ctx, ownerID)
	if err != nil {
		t.logger.Error(ctx, err, "Progress fetch failed", "owner", ownerID)
		t.notifier.Notify(ctx, notify.Error(notify.MsgProgressFetch))
		return err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].CourseID != entries[j].CourseID {
			return entries[i].CourseID < entries[j].CourseID
		}
		return entries[i].LessonID < entries[j].LessonID
	})

	t.mu.Lock()
	t.entries = entries
	t.mu.Unlock()
	return nil
}

// Update records pct for a lesson and refreshes the cache. A lesson is
// completed when it reaches 100.
func (t *Tracker) Update(ctx context.Context, ownerID, courseID, lessonID string, pct int) error {
	if ownerID == "" {
		return apperrors.NewValidationError(apperrors.ErrCodeMissingOwner, "owner is required")
	}
	pct = Clamp(pct)
	entry := LessonProgress{
		OwnerID:    ownerID,
		CourseID:   courseID,
		LessonID:   lessonID,
		Completed:  pct >= 100,
		Percentage: pct,
		UpdatedAt:  time.Now().UTC(),
	}
	if err := t.store.UpsertProgress(ctx, entry); err != nil {
		t.logger.Error(ctx, err, "Progress update failed",
			"owner", ownerID, "course", courseID, "lesson", lessonID)
		t.notifier.Notify(ctx, notify.Error(notify.MsgProgressFailed))
		return err
	}
	return t.Fetch(ctx, ownerID)
}

// MarkComplete sets a lesson to 100%.
func (t *Tracker) MarkComplete(ctx context.Context, ownerID, courseID, lessonID string) error {
	return t.Update(ctx, ownerID, courseID, lessonID, 100)
}

// CourseProgress is the rounded mean percentage of the course's tracked
// lessons, or 0 when none are tracked.
func (t *Tracker) CourseProgress(courseID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	sum, n := 0, 0
	for _, e := range t.entries {
		if e.CourseID == courseID {
			sum += e.Percentage
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return int(math.Round(float64(sum) / float64(n)))
}

// Lesson returns the cached progress of one lesson.
func (t *Tracker) Lesson(courseID, lessonID string) (LessonProgress, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, e := range t.entries {
		if e.CourseID == courseID && e.LessonID == lessonID {
			return e, true
		}
	}
	return LessonProgress{}, false
}

// Entries returns a copy of the cache.
func (t *Tracker) Entries() []LessonProgress {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]LessonProgress, len(t.entries))
	copy(out, t.entries)
	return out
}
