package projects

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "github.com/conneroisu/codecraft/internal/errors"
	"github.com/conneroisu/codecraft/internal/progress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  map[string]string
	Header http.Header
	Body   map[string]any
}

func restServer(t *testing.T, status int, response string) (*RestStore, *[]recordedRequest) {
	t.Helper()
	var seen []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  map[string]string{},
			Header: r.Header.Clone(),
		}
		for k := range r.URL.Query() {
			rec.Query[k] = r.URL.Query().Get(k)
		}
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			assert.NoError(t, json.Unmarshal(data, &rec.Body))
		}
		seen = append(seen, rec)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)

	store, err := NewRestStore(RestConfig{BaseURL: srv.URL + "/", AnonKey: "anon-key", AccessToken: "user-token"})
	require.NoError(t, err)
	return store, &seen
}

const projectRow = `{"id":"p1","user_id":"u1","title":"Page","description":null,
"html_code":"<h1>x</h1>","css_code":"h1{}","js_code":"x()","is_public":false,
"created_at":"2024-01-02T03:04:05.123456+00:00","updated_at":"2024-01-03T03:04:05+00:00"}`

func TestNewRestStore_RequiresCredentials(t *testing.T) {
	_, err := NewRestStore(RestConfig{AnonKey: "k"})
	require.Error(t, err)
	assert.True(t, apperrors.IsConfigError(err))

	_, err = NewRestStore(RestConfig{BaseURL: "https://example.supabase.co"})
	require.Error(t, err)
	assert.True(t, apperrors.IsConfigError(err))
}

func TestRestStore_List(t *testing.T) {
	store, seen := restServer(t, http.StatusOK, "["+projectRow+"]")

	list, err := store.List(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "p1", list[0].ID)
	assert.Nil(t, list[0].Description)
	assert.Equal(t, "<h1>x</h1>", list[0].HTMLCode)
	assert.Equal(t, time.Date(2024, 1, 3, 3, 4, 5, 0, time.UTC), list[0].UpdatedAt.UTC())

	req := (*seen)[0]
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "/rest/v1/user_projects", req.Path)
	assert.Equal(t, "eq.u1", req.Query["user_id"])
	assert.Equal(t, "updated_at.desc", req.Query["order"])
	assert.Equal(t, "anon-key", req.Header.Get("apikey"))
	assert.Equal(t, "Bearer user-token", req.Header.Get("Authorization"))
}

func TestRestStore_Create(t *testing.T) {
	store, seen := restServer(t, http.StatusCreated, "["+projectRow+"]")

	p, err := store.Create(context.Background(), "u1", NewProject{
		Title: " Page ", HTMLCode: "<h1>x</h1>", CSSCode: "h1{}", JSCode: "x()",
	})
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)

	req := (*seen)[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "return=representation", req.Header.Get("Prefer"))
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Equal(t, "u1", req.Body["user_id"])
	assert.Equal(t, "Page", req.Body["title"])
	assert.Equal(t, "<h1>x</h1>", req.Body["html_code"])
	assert.Contains(t, req.Body, "description")
	assert.Nil(t, req.Body["description"])
}

func TestRestStore_CreateValidatesBeforeRequest(t *testing.T) {
	store, seen := restServer(t, http.StatusCreated, "[]")

	_, err := store.Create(context.Background(), "u1", NewProject{Title: ""})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeValidation, apperrors.TypeOf(err))
	assert.Empty(t, *seen, "no remote call for invalid input")
}

func TestRestStore_Update(t *testing.T) {
	store, seen := restServer(t, http.StatusOK, "["+projectRow+"]")

	css := "body{}"
	_, err := store.Update(context.Background(), "p1", ProjectPatch{CSSCode: &css, Description: strPtr("")})
	require.NoError(t, err)

	req := (*seen)[0]
	assert.Equal(t, http.MethodPatch, req.Method)
	assert.Equal(t, "eq.p1", req.Query["id"])
	assert.Equal(t, "body{}", req.Body["css_code"])
	assert.Contains(t, req.Body, "description")
	assert.Nil(t, req.Body["description"])
	assert.NotContains(t, req.Body, "title")
	assert.NotContains(t, req.Body, "html_code")
	assert.Contains(t, req.Body, "updated_at")
}

func TestRestStore_NotFound(t *testing.T) {
	store, _ := restServer(t, http.StatusOK, "[]")
	ctx := context.Background()

	_, err := store.Get(ctx, "nope")
	assert.True(t, apperrors.IsNotFound(err))

	_, err = store.Update(ctx, "nope", ProjectPatch{Title: strPtr("x")})
	assert.True(t, apperrors.IsNotFound(err))

	assert.True(t, apperrors.IsNotFound(store.Delete(ctx, "nope")))
}

func TestRestStore_Delete(t *testing.T) {
	store, seen := restServer(t, http.StatusOK, "["+projectRow+"]")

	require.NoError(t, store.Delete(context.Background(), "p1"))
	req := (*seen)[0]
	assert.Equal(t, http.MethodDelete, req.Method)
	assert.Equal(t, "eq.p1", req.Query["id"])
}

func TestRestStore_Ping(t *testing.T) {
	store, seen := restServer(t, http.StatusOK, `[]`)
	require.NoError(t, store.Ping(context.Background()))
	req := (*seen)[0]
	assert.Equal(t, "/rest/v1/user_projects", req.Path)
	assert.Equal(t, "1", req.Query["limit"])

	failing, _ := restServer(t, http.StatusUnauthorized, `{"message":"bad key"}`)
	err := failing.Ping(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeAuth, apperrors.TypeOf(err))
}

func TestRestStore_ErrorStatuses(t *testing.T) {
	tests := []struct {
		status int
		want   apperrors.ErrorType
	}{
		{http.StatusUnauthorized, apperrors.ErrorTypeAuth},
		{http.StatusForbidden, apperrors.ErrorTypeAuth},
		{http.StatusInternalServerError, apperrors.ErrorTypeNetwork},
		{http.StatusBadRequest, apperrors.ErrorTypeNetwork},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			store, seen := restServer(t, tt.status, `{"message":"nope"}`)
			_, err := store.List(context.Background(), "u1")
			require.Error(t, err)
			assert.Equal(t, tt.want, apperrors.TypeOf(err))
			assert.Len(t, *seen, 1, "no retry")
		})
	}
}

func TestRestStore_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	store, err := NewRestStore(RestConfig{BaseURL: srv.URL, AnonKey: "k"})
	require.NoError(t, err)

	_, err = store.List(context.Background(), "u1")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeNetwork, apperrors.TypeOf(err))
}

func TestRestStore_MalformedResponse(t *testing.T) {
	store, _ := restServer(t, http.StatusOK, `{not json`)
	_, err := store.List(context.Background(), "u1")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeNetwork, apperrors.TypeOf(err))
}

func TestRestStore_Progress(t *testing.T) {
	store, seen := restServer(t, http.StatusOK,
		`[{"id":"r1","user_id":"u1","course_id":"html","lesson_id":"intro","completed":true,"progress_percentage":100,"updated_at":"2024-01-01T00:00:00Z"}]`)
	ctx := context.Background()

	rows, err := store.ListProgress(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 100, rows[0].Percentage)
	assert.True(t, rows[0].Completed)

	require.NoError(t, store.UpsertProgress(ctx, progress.LessonProgress{
		ID: "ignored", OwnerID: "u1", CourseID: "html", LessonID: "intro", Percentage: 50,
	}))
	req := (*seen)[1]
	assert.Equal(t, "/rest/v1/course_progress", req.Path)
	assert.Equal(t, "user_id,course_id,lesson_id", req.Query["on_conflict"])
	assert.Contains(t, req.Header.Get("Prefer"), "resolution=merge-duplicates")
	assert.Equal(t, float64(50), req.Body["progress_percentage"])
	assert.NotContains(t, req.Body, "id")
	assert.Equal(t, false, req.Body["completed"])
}

func TestRestStore_AnonBearerFallback(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_, _ = io.WriteString(w, "[]")
	}))
	defer srv.Close()

	store, err := NewRestStore(RestConfig{BaseURL: srv.URL, AnonKey: "anon"})
	require.NoError(t, err)
	_, err = store.List(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Bearer anon", auth)
}
