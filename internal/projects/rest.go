package projects

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/conneroisu/codecraft/internal/errors"
	"github.com/conneroisu/codecraft/internal/progress"
)

const (
	restBackend      = "rest"
	projectsTable    = "user_projects"
	progressTable    = "course_progress"
	maxResponseBytes = 10 * 1024 * 1024
)

// RestConfig configures a RestStore.
type RestConfig struct {
	// BaseURL is the service root, e.g. https://xyz.supabase.co.
	BaseURL string
	// AnonKey is sent as the apikey header on every request.
	AnonKey string
	// AccessToken is the signed-in user's token. The anon key is used as
	// the bearer token when it is empty.
	AccessToken string
	Timeout     time.Duration
	Client      *http.Client
}

// RestStore talks to a PostgREST endpoint under /rest/v1.
type RestStore struct {
	base        string
	anonKey     string
	accessToken string
	client      *http.Client
	now         func() time.Time
}

// NewRestStore validates cfg and returns a store.
func NewRestStore(cfg RestConfig) (*RestStore, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, apperrors.NewConfigError(apperrors.ErrCodeMissingCredential, "rest backend requires a url")
	}
	if strings.TrimSpace(cfg.AnonKey) == "" {
		return nil, apperrors.NewConfigError(apperrors.ErrCodeMissingCredential, "rest backend requires an anon key")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeConfig, apperrors.ErrCodeConfigInvalid, "invalid rest backend url")
	}

	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &RestStore{
		base:        strings.TrimRight(cfg.BaseURL, "/") + "/rest/v1/",
		anonKey:     cfg.AnonKey,
		accessToken: cfg.AccessToken,
		client:      client,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *RestStore) endpoint(table string, query url.Values) string {
	u := s.base + table
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// do sends one request and decodes a JSON array response into out when out
// is non-nil.
func (s *RestStore) do(ctx context.Context, method, target, prefer string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return apperrors.WrapInternal(err, "failed to encode request")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return apperrors.WrapInternal(err, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apikey", s.anonKey)
	token := s.accessToken
	if token == "" {
		token = s.anonKey
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return apperrors.WrapNetwork(err, restBackend, fmt.Sprintf("%s %s failed", method, req.URL.Path))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return statusError(resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return apperrors.WrapNetwork(err, restBackend, "failed to read response")
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apperrors.NewNetworkError(apperrors.ErrCodeBackendResponse, "malformed backend response", err)
	}
	return nil
}

func statusError(status int, body string) error {
	cause := fmt.Errorf("status %d: %s", status, body)
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return apperrors.NewAuthError(apperrors.ErrCodeUnauthorized, "backend rejected credentials", cause)
	default:
		return apperrors.NewNetworkError(apperrors.ErrCodeBackendResponse,
			fmt.Sprintf("backend returned %d", status), cause).WithComponent(restBackend)
	}
}

// List returns the owner's projects, most recently updated first.
func (s *RestStore) List(ctx context.Context, ownerID string) ([]StoredProject, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("user_id", "eq."+ownerID)
	q.Set("order", "updated_at.desc")

	out := make([]StoredProject, 0)
	if err := s.do(ctx, http.MethodGet, s.endpoint(projectsTable, q), "", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Ping issues the cheapest authenticated read the backend accepts.
func (s *RestStore) Ping(ctx context.Context) error {
	q := url.Values{}
	q.Set("select", "id")
	q.Set("limit", "1")
	var rows []struct{}
	return s.do(ctx, http.MethodGet, s.endpoint(projectsTable, q), "", nil, &rows)
}

// Get returns one project.
func (s *RestStore) Get(ctx context.Context, projectID string) (StoredProject, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("id", "eq."+projectID)

	var rows []StoredProject
	if err := s.do(ctx, http.MethodGet, s.endpoint(projectsTable, q), "", nil, &rows); err != nil {
		return StoredProject{}, err
	}
	if len(rows) == 0 {
		return StoredProject{}, notFound(projectID)
	}
	return rows[0], nil
}

type insertRow struct {
	OwnerID string `json:"user_id"`
	NewProject
}

// Create inserts a project; the backend assigns id and timestamps.
func (s *RestStore) Create(ctx context.Context, ownerID string, np NewProject) (StoredProject, error) {
	if err := ValidateNew(ownerID, np); err != nil {
		return StoredProject{}, err
	}
	np.Title = strings.TrimSpace(np.Title)
	np.Description = normalizeDescription(np.Description)

	var rows []StoredProject
	err := s.do(ctx, http.MethodPost, s.endpoint(projectsTable, nil), "return=representation",
		insertRow{OwnerID: ownerID, NewProject: np}, &rows)
	if err != nil {
		return StoredProject{}, err
	}
	if len(rows) == 0 {
		return StoredProject{}, apperrors.NewNetworkError(apperrors.ErrCodeBackendResponse,
			"backend returned no row for insert", nil)
	}
	return rows[0], nil
}

func (s *RestStore) patchBody(patch ProjectPatch) map[string]any {
	body := map[string]any{"updated_at": s.now().Format(time.RFC3339Nano)}
	if patch.Title != nil {
		body["title"] = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		body["description"] = normalizeDescription(patch.Description)
	}
	if patch.HTMLCode != nil {
		body["html_code"] = *patch.HTMLCode
	}
	if patch.CSSCode != nil {
		body["css_code"] = *patch.CSSCode
	}
	if patch.JSCode != nil {
		body["js_code"] = *patch.JSCode
	}
	if patch.IsPublic != nil {
		body["is_public"] = *patch.IsPublic
	}
	return body
}

// Update patches a project and returns the stored row.
func (s *RestStore) Update(ctx context.Context, projectID string, patch ProjectPatch) (StoredProject, error) {
	if err := ValidatePatch(patch); err != nil {
		return StoredProject{}, err
	}
	q := url.Values{}
	q.Set("id", "eq."+projectID)

	var rows []StoredProject
	if err := s.do(ctx, http.MethodPatch, s.endpoint(projectsTable, q), "return=representation",
		s.patchBody(patch), &rows); err != nil {
		return StoredProject{}, err
	}
	if len(rows) == 0 {
		return StoredProject{}, notFound(projectID)
	}
	return rows[0], nil
}

// Delete removes a project.
func (s *RestStore) Delete(ctx context.Context, projectID string) error {
	q := url.Values{}
	q.Set("id", "eq."+projectID)

	var rows []StoredProject
	if err := s.do(ctx, http.MethodDelete, s.endpoint(projectsTable, q), "return=representation", nil, &rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return notFound(projectID)
	}
	return nil
}

// ListProgress returns the owner's lesson progress.
func (s *RestStore) ListProgress(ctx context.Context, ownerID string) ([]progress.LessonProgress, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("user_id", "eq."+ownerID)

	out := make([]progress.LessonProgress, 0)
	if err := s.do(ctx, http.MethodGet, s.endpoint(progressTable, q), "", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpsertProgress merges on owner, course and lesson.
func (s *RestStore) UpsertProgress(ctx context.Context, p progress.LessonProgress) error {
	q := url.Values{}
	q.Set("on_conflict", "user_id,course_id,lesson_id")
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = s.now()
	}
	p.ID = ""
	return s.do(ctx, http.MethodPost, s.endpoint(progressTable, q),
		"resolution=merge-duplicates,return=minimal", p, nil)
}

var (
	_ Adapter        = (*RestStore)(nil)
	_ progress.Store = (*RestStore)(nil)
)
