package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/codecraft/internal/app"
	"github.com/conneroisu/codecraft/internal/buffers"
	"github.com/conneroisu/codecraft/internal/config"
	"github.com/conneroisu/codecraft/internal/projects"
	ws "github.com/conneroisu/codecraft/internal/websocket"
)

type testEnv struct {
	app *app.App
	srv *Server
	ts  *httptest.Server
}

func newEnv(t *testing.T, values map[string]any) *testEnv {
	t.Helper()
	v := viper.New()
	for k, val := range values {
		v.Set(k, val)
	}
	cfg, err := config.LoadFrom(v)
	require.NoError(t, err)

	a, err := app.New(context.Background(), cfg, nil)
	require.NoError(t, err)
	s := New(a)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.Hub.Shutdown(ctx)
		ts.Close()
		_ = a.Close(ctx)
	})
	return &testEnv{app: a, srv: s, ts: ts}
}

func signedIn(t *testing.T) *testEnv {
	return newEnv(t, map[string]any{"identity.owner_id": "owner-1"})
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, r)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func TestHealth(t *testing.T) {
	env := signedIn(t)
	resp := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[map[string]any](t, resp)
	assert.Equal(t, "healthy", body["status"])
	assert.NotEmpty(t, body["version"])
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
}

func TestIndexPage(t *testing.T) {
	env := signedIn(t)
	resp := env.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	page := readBody(t, resp)
	policy := env.app.Session.Sandbox().Policy()
	assert.Contains(t, page, `id="preview-frame"`)
	assert.Contains(t, page, `sandbox="`+policy.Attribute()+`"`)
	assert.Contains(t, page, `data-tab="css"`)
	assert.Contains(t, page, `data-role="html"`)
	assert.Contains(t, page, "HTML Mastery")
	assert.Contains(t, page, `/api/lessons/html/html-1/exercises/html-1-ex-1/open`)
	assert.Contains(t, page, `id="save-form"`)
	assert.NotContains(t, page, "<h1>"+buffers.WelcomeHeading, "buffer markup is escaped in the textarea")

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/nope", nil).StatusCode)
}

func TestIndexPage_SignedOut(t *testing.T) {
	env := newEnv(t, nil)
	page := readBody(t, env.do(t, http.MethodGet, "/", nil))
	assert.Contains(t, page, "Sign in to save projects")
	assert.NotContains(t, page, `id="save-form"`)
}

func TestBuffersAPI(t *testing.T) {
	env := signedIn(t)

	snap := decode[buffers.Snapshot](t, env.do(t, http.MethodGet, "/api/buffers", nil))
	assert.Contains(t, snap.Markup, buffers.WelcomeHeading)
	assert.Equal(t, buffers.Markup, snap.Active)

	resp := env.do(t, http.MethodPut, "/api/buffers/css", map[string]string{"content": "h1{color:red}"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[buffers.Snapshot](t, resp)
	assert.Equal(t, "h1{color:red}", updated.Styles)
	assert.Greater(t, updated.Revision, snap.Revision)
	assert.Contains(t, env.app.Session.Document(), "h1{color:red}")

	resp = env.do(t, http.MethodPut, "/api/buffers/python", map[string]string{"content": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "ERR_INVALID_ROLE", decode[errorResponse](t, resp).Code)

	resp = env.do(t, http.MethodPut, "/api/buffers/active", map[string]string{"role": "javascript"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, buffers.Script, decode[buffers.Snapshot](t, resp).Active)

	resp = env.do(t, http.MethodPost, "/api/buffers/load", buffers.Contents{Markup: "<p>a</p>", Styles: "p{}", Script: "b()"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	loaded := decode[buffers.Snapshot](t, resp)
	assert.Equal(t, buffers.Contents{Markup: "<p>a</p>", Styles: "p{}", Script: "b()"}, loaded.Contents)

	resp = env.do(t, http.MethodPost, "/api/buffers/reset", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, buffers.Starter(), decode[buffers.Snapshot](t, resp).Contents)
}

func TestBuffersAPI_BadBody(t *testing.T) {
	env := signedIn(t)
	req, err := http.NewRequest(http.MethodPut, env.ts.URL+"/api/buffers/html", strings.NewReader("{not json"))
	require.NoError(t, err)
	resp, err := env.ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "ERR_INVALID_BODY", decode[errorResponse](t, resp).Code)
}

func TestPreview(t *testing.T) {
	env := signedIn(t)
	env.do(t, http.MethodPut, "/api/buffers/html", map[string]string{"content": "<b>bold</b>"})

	resp := env.do(t, http.MethodGet, "/api/preview", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	policy := env.app.Session.Sandbox().Policy()
	assert.Equal(t, policy.Header(), resp.Header.Get("Content-Security-Policy"))
	assert.Contains(t, readBody(t, resp), "<b>bold</b>")
}

func TestPreviewFrame(t *testing.T) {
	env := signedIn(t)
	gen := env.app.Session.Sandbox().Generation()

	resp := env.do(t, http.MethodGet, "/preview/frame", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Security-Policy"), "sandbox "))
	assert.Equal(t, strconv.FormatUint(gen, 10), resp.Header.Get("X-Frame-Generation"))

	env.do(t, http.MethodPut, "/api/buffers/html", map[string]string{"content": "<p>next</p>"})
	resp = env.do(t, http.MethodGet, "/preview/frame?generation="+strconv.FormatUint(gen, 10), nil)
	assert.Equal(t, http.StatusGone, resp.StatusCode)
}

func TestProjectsAPI(t *testing.T) {
	env := signedIn(t)

	resp := env.do(t, http.MethodGet, "/api/projects", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]projects.StoredProject](t, resp))

	resp = env.do(t, http.MethodPost, "/api/projects", map[string]any{"title": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "ERR_MISSING_TITLE", decode[errorResponse](t, resp).Code)

	env.do(t, http.MethodPut, "/api/buffers/html", map[string]string{"content": "<p>v1</p>"})
	resp = env.do(t, http.MethodPost, "/api/projects", map[string]any{"title": "First", "is_public": true})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	p := decode[projects.StoredProject](t, resp)
	assert.Equal(t, "<p>v1</p>", p.HTMLCode)
	assert.True(t, p.IsPublic)

	resp = env.do(t, http.MethodGet, "/api/projects/current", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, p.ID, decode[projects.StoredProject](t, resp).ID)

	resp = env.do(t, http.MethodPatch, "/api/projects/"+p.ID, map[string]any{"title": "Renamed"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Renamed", decode[projects.StoredProject](t, resp).Title)

	env.do(t, http.MethodPut, "/api/buffers/html", map[string]string{"content": "<p>v2</p>"})
	resp = env.do(t, http.MethodPatch, "/api/projects/"+p.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<p>v2</p>", decode[projects.StoredProject](t, resp).HTMLCode)

	env.do(t, http.MethodPost, "/api/buffers/reset", nil)
	resp = env.do(t, http.MethodPost, "/api/projects/"+p.ID+"/load", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	loaded := decode[map[string]any](t, resp)
	assert.Equal(t, true, loaded["applied"])
	assert.Equal(t, "<p>v2</p>", env.app.Session.Snapshot().Markup)

	resp = env.do(t, http.MethodPost, "/api/projects/missing/load", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "<p>v2</p>", env.app.Session.Snapshot().Markup, "failed load leaves buffers")

	resp = env.do(t, http.MethodDelete, "/api/projects/"+p.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = env.do(t, http.MethodGet, "/api/projects/current", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = env.do(t, http.MethodDelete, "/api/projects/"+p.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLoadProject_RequestEndsFirst(t *testing.T) {
	gate := make(chan struct{})
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-gate
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[{"id":"p1","user_id":"owner-1","title":"slow","html_code":"<p>slow</p>"}]`)
	}))
	t.Cleanup(backend.Close)

	env := newEnv(t, map[string]any{
		"identity.owner_id": "owner-1",
		"backend.kind":      "rest",
		"backend.url":       backend.URL,
		"backend.anon_key":  "anon-key-for-tests",
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/projects/p1/load", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	close(gate)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "ERR_INTERNAL", decode[errorResponse](t, rec.Result()).Code)
	require.Eventually(t, func() bool {
		return env.app.Session.Snapshot().Markup == "<p>slow</p>"
	}, 3*time.Second, 10*time.Millisecond, "the load still applies after the request is gone")
}

func TestProjectsAPI_SignedOut(t *testing.T) {
	env := newEnv(t, nil)

	resp := env.do(t, http.MethodPost, "/api/projects", map[string]any{"title": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "ERR_MISSING_OWNER", decode[errorResponse](t, resp).Code)

	resp = env.do(t, http.MethodGet, "/api/progress", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLessonsAPI(t *testing.T) {
	env := signedIn(t)

	resp := env.do(t, http.MethodGet, "/api/lessons", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	courses := decode[[]map[string]any](t, resp)
	require.NotEmpty(t, courses)
	assert.Equal(t, "html", courses[0]["id"])

	resp = env.do(t, http.MethodGet, "/api/lessons/html/html-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	lesson := decode[map[string]any](t, resp)
	assert.Contains(t, lesson["html"], "Introduction to HTML</h1>")

	resp = env.do(t, http.MethodGet, "/api/lessons/html/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/lessons/html/html-1/exercises/html-1-ex-1/open", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<!-- Write your HTML here -->", decode[buffers.Snapshot](t, resp).Markup)

	resp = env.do(t, http.MethodPost, "/api/lessons/html/html-1/example/open", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, decode[buffers.Snapshot](t, resp).Markup, "Welcome to HTML!")
	assert.Contains(t, env.app.Session.Document(), "Welcome to HTML!")
}

func TestProgressAPI(t *testing.T) {
	env := signedIn(t)

	resp := env.do(t, http.MethodPost, "/api/progress/html/html-1", map[string]int{"percentage": 40})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	summary := decode[progressResponse](t, resp)
	require.Len(t, summary.Entries, 1)
	assert.Equal(t, 40, summary.Courses["html"])

	resp = env.do(t, http.MethodPost, "/api/progress/html/html-2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 70, decode[progressResponse](t, resp).Courses["html"])

	resp = env.do(t, http.MethodGet, "/api/progress", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	summary = decode[progressResponse](t, resp)
	assert.Len(t, summary.Entries, 2)
	assert.Equal(t, 0, summary.Courses["css"])

	resp = env.do(t, http.MethodPost, "/api/progress/html/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	env := newEnv(t, map[string]any{"server.rate_limit.rate": 0.001, "server.rate_limit.burst": 1})

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/buffers", nil).StatusCode)
	assert.Equal(t, http.StatusTooManyRequests, env.do(t, http.MethodGet, "/api/buffers", nil).StatusCode)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health", nil).StatusCode)
}

func TestWebSocket_FrameOnEdit(t *testing.T) {
	env := signedIn(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(env.ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	read := func() ws.Message {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var msg ws.Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	}

	first := read()
	assert.Equal(t, ws.TypeFrame, first.Type)
	assert.Equal(t, env.app.Session.Sandbox().Generation(), first.Generation)

	env.do(t, http.MethodPut, "/api/buffers/html", map[string]string{"content": "<p>live</p>"})
	next := read()
	assert.Equal(t, ws.TypeFrame, next.Type)
	assert.Equal(t, first.Generation+1, next.Generation)

	env.do(t, http.MethodPost, "/api/projects", map[string]any{"title": "Live"})
	note := read()
	assert.Equal(t, ws.TypeNotification, note.Type)
	assert.Equal(t, "success", note.Level)
}

func TestServe_GracefulShutdown(t *testing.T) {
	env := signedIn(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.True(t, env.app.Hub.IsShutdown())
}

func TestAddr(t *testing.T) {
	env := newEnv(t, map[string]any{"server.host": "127.0.0.1", "server.port": 9123})
	assert.Equal(t, "127.0.0.1:9123", env.srv.Addr())
}
