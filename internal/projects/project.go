// Package projects persists named buffer sets. An Adapter is the narrow
// contract the editor uses; MemoryStore, SQLStore and RestStore implement it
// against process memory, a SQL database, and a PostgREST endpoint.
package projects

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/conneroisu/codecraft/internal/buffers"
	apperrors "github.com/conneroisu/codecraft/internal/errors"
	"github.com/oklog/ulid/v2"
)

// StoredProject is a saved buffer set with its metadata.
type StoredProject struct {
	ID          string    `json:"id" yaml:"id"`
	OwnerID     string    `json:"user_id" yaml:"user_id"`
	Title       string    `json:"title" yaml:"title"`
	Description *string   `json:"description" yaml:"description,omitempty"`
	HTMLCode    string    `json:"html_code" yaml:"html_code"`
	CSSCode     string    `json:"css_code" yaml:"css_code"`
	JSCode      string    `json:"js_code" yaml:"js_code"`
	IsPublic    bool      `json:"is_public" yaml:"is_public"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"updated_at"`
}

// NewProject is the payload for Create.
type NewProject struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
	HTMLCode    string  `json:"html_code"`
	CSSCode     string  `json:"css_code"`
	JSCode      string  `json:"js_code"`
	IsPublic    bool    `json:"is_public"`
}

// ProjectPatch is a partial update. Nil fields are left unchanged; a
// Description pointing at "" clears it.
type ProjectPatch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	HTMLCode    *string `json:"html_code,omitempty"`
	CSSCode     *string `json:"css_code,omitempty"`
	JSCode      *string `json:"js_code,omitempty"`
	IsPublic    *bool   `json:"is_public,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p ProjectPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.HTMLCode == nil &&
		p.CSSCode == nil && p.JSCode == nil && p.IsPublic == nil
}

// Adapter is the persistence contract. Errors are *errors.AppError values:
// validation for bad input, not_found for unknown ids, network for transport
// failures, auth for rejected credentials. Adapters never retry.
type Adapter interface {
	List(ctx context.Context, ownerID string) ([]StoredProject, error)
	Get(ctx context.Context, projectID string) (StoredProject, error)
	Create(ctx context.Context, ownerID string, p NewProject) (StoredProject, error)
	Update(ctx context.Context, projectID string, patch ProjectPatch) (StoredProject, error)
	Delete(ctx context.Context, projectID string) error
}

// ToBuffers maps the three code fields onto markup, styles and script.
func ToBuffers(p StoredProject) buffers.Contents {
	return buffers.Contents{Markup: p.HTMLCode, Styles: p.CSSCode, Script: p.JSCode}
}

// FromSnapshot builds a Create payload from the current buffers.
func FromSnapshot(snap buffers.Snapshot, title string, description *string, public bool) NewProject {
	return NewProject{
		Title:       title,
		Description: normalizeDescription(description),
		HTMLCode:    snap.Markup,
		CSSCode:     snap.Styles,
		JSCode:      snap.Script,
		IsPublic:    public,
	}
}

// PatchFromSnapshot builds a patch that overwrites the three code fields.
func PatchFromSnapshot(snap buffers.Snapshot) ProjectPatch {
	markup, styles, script := snap.Markup, snap.Styles, snap.Script
	return ProjectPatch{HTMLCode: &markup, CSSCode: &styles, JSCode: &script}
}

// ValidateNew checks the owner and title of a Create call.
func ValidateNew(ownerID string, p NewProject) error {
	if strings.TrimSpace(ownerID) == "" {
		return apperrors.NewValidationError(apperrors.ErrCodeMissingOwner, "an owner is required to save projects")
	}
	if strings.TrimSpace(p.Title) == "" {
		return apperrors.NewValidationError(apperrors.ErrCodeMissingTitle, "project title is required")
	}
	return nil
}

// ValidatePatch rejects a patch that would blank the title.
func ValidatePatch(patch ProjectPatch) error {
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return apperrors.NewValidationError(apperrors.ErrCodeMissingTitle, "project title is required")
	}
	return nil
}

// Apply returns p with the patch applied. UpdatedAt is not touched.
func (patch ProjectPatch) Apply(p StoredProject) StoredProject {
	if patch.Title != nil {
		p.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		p.Description = normalizeDescription(patch.Description)
	}
	if patch.HTMLCode != nil {
		p.HTMLCode = *patch.HTMLCode
	}
	if patch.CSSCode != nil {
		p.CSSCode = *patch.CSSCode
	}
	if patch.JSCode != nil {
		p.JSCode = *patch.JSCode
	}
	if patch.IsPublic != nil {
		p.IsPublic = *patch.IsPublic
	}
	return p
}

// SortRecent orders projects most recently updated first. Ties fall back to
// the id, which is time ordered.
func SortRecent(list []StoredProject) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].UpdatedAt.Equal(list[j].UpdatedAt) {
			return list[i].UpdatedAt.After(list[j].UpdatedAt)
		}
		return list[i].ID > list[j].ID
	})
}

func normalizeDescription(d *string) *string {
	if d == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*d)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func newID() string {
	return strings.ToLower(ulid.Make().String())
}

func notFound(projectID string) error {
	return apperrors.NewNotFoundError(apperrors.ErrCodeProjectNotFound, projectID)
}
