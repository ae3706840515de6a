package sandbox

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "github.com/conneroisu/codecraft/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func newSandbox(t *testing.T) *Sandbox {
	t.Helper()
	sb, err := New(DefaultPolicy())
	require.NoError(t, err)
	return sb
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	require.NoError(t, p.Validate())
	assert.Equal(t, "allow-scripts", p.Attribute())
	assert.Equal(t, "no-referrer", p.ReferrerPolicy)
	assert.True(t, strings.HasPrefix(p.Header(), "sandbox allow-scripts; default-src 'none'"))
	assert.NotContains(t, p.Header(), "allow-same-origin")
}

func TestPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		tokens  []string
		csp     string
		wantErr string
	}{
		{"scripts only", []string{"allow-scripts"}, "", ""},
		{"modals", []string{"allow-scripts", "allow-modals"}, "", "allow-modals"},
		{"pointer lock", []string{"allow-scripts", "allow-pointer-lock"}, "", "unknown sandbox token"},
		{"same origin", []string{"allow-scripts", "allow-same-origin"}, "", "allow-same-origin"},
		{"top navigation", []string{"allow-scripts", "allow-top-navigation"}, "", "navigate the host"},
		{"forms", []string{"allow-scripts", "allow-forms"}, "", "submit forms"},
		{"storage access", []string{"allow-scripts", "allow-storage-access-by-user-activation"}, "", "storage"},
		{"unknown token", []string{"allow-scripts", "allow-everything"}, "", "unknown sandbox token"},
		{"missing scripts", []string{"allow-popups"}, "", "must include allow-scripts"},
		{"empty", nil, "", "must include allow-scripts"},
		{"csp sandbox", []string{"allow-scripts"}, "sandbox allow-same-origin", "own sandbox directive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Policy{Tokens: tt.tokens, ContentPolicy: tt.csp}
			err := p.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, apperrors.IsConfigError(err))
		})
	}
}

func TestNew_RejectsWeakPolicy(t *testing.T) {
	_, err := New(Policy{Tokens: []string{"allow-scripts", "allow-same-origin"}})
	assert.Error(t, err)
}

func TestRender_ReplacesFrame(t *testing.T) {
	sb := newSandbox(t)

	_, ok := sb.Current()
	assert.False(t, ok)

	first := sb.Render("<p>one</p>")
	second := sb.Render("<p>two</p>")

	assert.Equal(t, uint64(1), first.Generation)
	assert.Equal(t, uint64(2), second.Generation)

	cur, ok := sb.Current()
	require.True(t, ok)
	assert.Equal(t, second, cur)
	assert.Equal(t, "<p>two</p>", cur.SrcDoc())

	sb.TearDown()
	_, ok = sb.Current()
	assert.False(t, ok)
	assert.Equal(t, uint64(2), sb.Generation(), "generation keeps counting after teardown")
	assert.Equal(t, uint64(3), sb.Render("x").Generation)
}

func TestSubscribe(t *testing.T) {
	sb := newSandbox(t)

	var got []uint64
	cancel := sb.Subscribe(func(f Frame) { got = append(got, f.Generation) })
	sb.Render("a")
	sb.Render("b")
	cancel()
	sb.Render("c")

	assert.Equal(t, []uint64{1, 2}, got)
}

func TestSubscribe_RegistrationOrder(t *testing.T) {
	sb := newSandbox(t)

	var order []string
	for _, name := range []string{"hub", "log", "health", "cli"} {
		name := name
		sb.Subscribe(func(Frame) { order = append(order, name) })
	}
	cancelLate := sb.Subscribe(func(Frame) { order = append(order, "late") })
	cancelLate()
	cancelLate()

	sb.Render("a")
	sb.Render("b")
	assert.Equal(t, []string{"hub", "log", "health", "cli", "hub", "log", "health", "cli"}, order)
}

func findIFrame(t *testing.T, markup string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(markup))
	require.NoError(t, err)
	var found *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "iframe" {
			found = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	require.NotNil(t, found, "iframe element")
	return found
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func TestIFrame_EscapesDocument(t *testing.T) {
	sb := newSandbox(t)
	doc := `<!DOCTYPE html><html><body><p class="x">"quoted" & <b>bold</b></p><script>alert('hi')</script></body></html>`
	frame := sb.Render(doc)

	var buf bytes.Buffer
	require.NoError(t, IFrame(frame, sb.Policy()).Render(context.Background(), &buf))

	iframe := findIFrame(t, buf.String())
	srcdoc, ok := attr(iframe, "srcdoc")
	require.True(t, ok)
	assert.Equal(t, doc, srcdoc, "srcdoc round-trips through attribute escaping")

	sandboxAttr, ok := attr(iframe, "sandbox")
	require.True(t, ok)
	assert.Equal(t, "allow-scripts", sandboxAttr)

	gen, _ := attr(iframe, "data-generation")
	assert.Equal(t, "1", gen)

	_, hasSrc := attr(iframe, "src")
	assert.False(t, hasSrc)
}

func TestFrameSource(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, FrameSource("/preview/frame?generation=4", 4, DefaultPolicy()).Render(context.Background(), &buf))

	iframe := findIFrame(t, buf.String())
	src, _ := attr(iframe, "src")
	assert.Equal(t, "/preview/frame?generation=4", src)
	ref, _ := attr(iframe, "referrerpolicy")
	assert.Equal(t, "no-referrer", ref)
}

func TestHandler(t *testing.T) {
	sb := newSandbox(t)
	h := sb.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/preview/frame", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	sb.Render("<p>one</p>")
	frame := sb.Render("<p>two</p>")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/preview/frame", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<p>two</p>", rec.Body.String())
	assert.Equal(t, DefaultPolicy().Header(), rec.Header().Get("Content-Security-Policy"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "2", rec.Header().Get("X-Frame-Generation"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/preview/frame?generation=1", nil))
	assert.Equal(t, http.StatusGone, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/preview/frame?generation=2", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, frame.Document, rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/preview/frame?generation=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/preview/frame", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
