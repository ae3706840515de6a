package server

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/a-h/templ"

	"github.com/conneroisu/codecraft/internal/buffers"
	"github.com/conneroisu/codecraft/internal/catalog"
	"github.com/conneroisu/codecraft/internal/projects"
	"github.com/conneroisu/codecraft/internal/sandbox"
)

// pageData is everything the editor page shows on first paint. Later
// changes arrive over the websocket.
type pageData struct {
	Snapshot buffers.Snapshot
	Frame    sandbox.Frame
	Policy   sandbox.Policy
	Owner    string
	Current  *projects.StoredProject
	Courses  []catalog.Course
	Progress map[string]int
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess := s.app.Session
	frame, _ := sess.Frame()
	d := pageData{
		Snapshot: sess.Snapshot(),
		Frame:    frame,
		Policy:   sess.Sandbox().Policy(),
		Owner:    sess.Owner(),
		Courses:  s.app.Catalog.Courses(),
		Progress: make(map[string]int),
	}
	if p, ok := sess.Current(); ok {
		d.Current = &p
	}
	for _, c := range d.Courses {
		d.Progress[c.ID] = s.app.Tracker.CourseProgress(c.ID)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := editorPage(d).Render(r.Context(), w); err != nil {
		s.logger.Error(r.Context(), err, "Failed to render editor page")
	}
}

func write(w io.Writer, parts ...string) error {
	for _, p := range parts {
		if _, err := io.WriteString(w, p); err != nil {
			return err
		}
	}
	return nil
}

func renderAll(ctx context.Context, w io.Writer, components ...templ.Component) error {
	for _, c := range components {
		if err := c.Render(ctx, w); err != nil {
			return err
		}
	}
	return nil
}

func editorPage(d pageData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := write(w, `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`,
			`<meta name="viewport" content="width=device-width, initial-scale=1">`,
			`<title>CodeCraft Editor</title><style>`, pageStyles, `</style></head><body>`); err != nil {
			return err
		}
		if err := renderAll(ctx, w,
			pageHeader(d.Owner, d.Current),
			lessonSidebar(d.Courses, d.Progress),
		); err != nil {
			return err
		}
		if err := write(w, `<main class="workspace"><section class="code">`); err != nil {
			return err
		}
		if err := renderAll(ctx, w, bufferTabs(d.Snapshot.Active), bufferEditor(d.Snapshot)); err != nil {
			return err
		}
		if err := write(w, `</section><section class="preview">`); err != nil {
			return err
		}
		if err := sandbox.IFrame(d.Frame, d.Policy).Render(ctx, w); err != nil {
			return err
		}
		return write(w, `</section></main><div id="notifications" aria-live="polite"></div>`,
			`<script>`, editorScript, `</script></body></html>`)
	})
}

func pageHeader(owner string, current *projects.StoredProject) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := write(w, `<header class="toolbar"><h1>CodeCraft</h1>`); err != nil {
			return err
		}
		if current != nil {
			if err := write(w, `<span class="project" data-project="`, templ.EscapeString(current.ID), `">`,
				templ.EscapeString(current.Title), `</span>`); err != nil {
				return err
			}
		}
		if err := write(w, `<button type="button" id="reset">Reset</button>`); err != nil {
			return err
		}
		if owner == "" {
			return write(w, `<span class="signed-out">Sign in to save projects</span></header>`)
		}
		return write(w, `<form id="save-form"><input name="title" placeholder="Project title" required>`,
			`<button type="submit">Save</button></form>`,
			`<span class="owner">`, templ.EscapeString(owner), `</span></header>`)
	})
}

func bufferTabs(active buffers.Role) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := write(w, `<nav class="tabs" role="tablist">`); err != nil {
			return err
		}
		for _, role := range buffers.Roles {
			selected := "false"
			if role == active {
				selected = "true"
			}
			if err := write(w, `<button type="button" role="tab" data-tab="`, role.String(),
				`" aria-selected="`, selected, `">`, templ.EscapeString(role.Label()), `</button>`); err != nil {
				return err
			}
		}
		return write(w, `</nav>`)
	})
}

func bufferEditor(snap buffers.Snapshot) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return write(w, `<textarea id="buffer" spellcheck="false" data-role="`, snap.Active.String(),
			`" data-revision="`, strconv.FormatUint(snap.Revision, 10), `">`,
			templ.EscapeString(snap.Get(snap.Active)), `</textarea>`)
	})
}

func lessonSidebar(courses []catalog.Course, pct map[string]int) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := write(w, `<aside class="lessons"><h2>Lessons</h2>`); err != nil {
			return err
		}
		for _, c := range courses {
			if err := write(w, `<details><summary>`, templ.EscapeString(c.Title),
				` <span class="pct">`, strconv.Itoa(pct[c.ID]), `%</span></summary><ul>`); err != nil {
				return err
			}
			for _, l := range c.Lessons {
				if err := lessonItem(c.ID, l).Render(ctx, w); err != nil {
					return err
				}
			}
			if err := write(w, `</ul></details>`); err != nil {
				return err
			}
		}
		return write(w, `</aside>`)
	})
}

func lessonItem(courseID string, l catalog.Lesson) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		base := "/api/lessons/" + courseID + "/" + l.ID
		if err := write(w, `<li><span>`, templ.EscapeString(l.Title), `</span>`); err != nil {
			return err
		}
		if l.CodeExample != nil {
			if err := write(w, `<button type="button" data-action="`, templ.EscapeString(base+"/example/open"),
				`">Example</button>`); err != nil {
				return err
			}
		}
		for _, ex := range l.Exercises {
			if err := write(w, `<button type="button" data-action="`,
				templ.EscapeString(base+"/exercises/"+ex.ID+"/open"), `" title="`,
				templ.EscapeString(ex.Description), `">`, templ.EscapeString(ex.Title), `</button>`); err != nil {
				return err
			}
		}
		return write(w, `</li>`)
	})
}

const pageStyles = `
*{box-sizing:border-box}
body{margin:0;font-family:system-ui,sans-serif;display:grid;grid-template-columns:16rem 1fr;grid-template-rows:auto 1fr;height:100vh}
.toolbar{grid-column:1/3;display:flex;gap:.75rem;align-items:center;padding:.5rem 1rem;background:#1e293b;color:#f8fafc}
.toolbar h1{font-size:1.1rem;margin:0 auto 0 0}
.lessons{overflow:auto;padding:.5rem;border-right:1px solid #e2e8f0;font-size:.9rem}
.lessons ul{list-style:none;padding-left:.5rem}
.lessons button{margin:.1rem;font-size:.75rem}
.workspace{display:grid;grid-template-columns:1fr 1fr;min-height:0}
.code{display:flex;flex-direction:column;min-height:0}
.tabs button[aria-selected=true]{font-weight:bold;border-bottom:2px solid #3b82f6}
#buffer{flex:1;font-family:ui-monospace,monospace;font-size:.9rem;padding:.75rem;border:0;resize:none}
#preview-frame{width:100%;height:100%;border:0;background:#fff}
#notifications{position:fixed;right:1rem;bottom:1rem;display:flex;flex-direction:column;gap:.5rem}
.note{padding:.5rem 1rem;border-radius:.25rem;color:#fff;background:#475569}
.note.success{background:#16a34a}.note.error{background:#dc2626}
`

const editorScript = `
(function () {
  const ta = document.getElementById("buffer");
  const frame = document.getElementById("preview-frame");
  let active = ta.dataset.role;

  async function api(method, path, body) {
    const res = await fetch(path, {
      method: method,
      headers: { "Content-Type": "application/json" },
      body: body === undefined ? undefined : JSON.stringify(body),
    });
    if (!res.ok) {
      const err = await res.json().catch(function () { return { error: res.statusText }; });
      throw new Error(err.error);
    }
    return res.status === 204 ? null : res.json();
  }

  function show(snap) {
    active = snap.active;
    ta.dataset.role = active;
    if (document.activeElement !== ta || ta.value !== snap[active]) {
      ta.value = snap[active];
    }
    document.querySelectorAll("[data-tab]").forEach(function (b) {
      b.setAttribute("aria-selected", String(b.dataset.tab === active));
    });
  }

  function toast(n) {
    const el = document.createElement("div");
    el.className = "note " + (n.level || "info");
    el.textContent = n.message;
    document.getElementById("notifications").appendChild(el);
    setTimeout(function () { el.remove(); }, 3000);
  }

  async function refresh(generation) {
    if (frame.dataset.generation === String(generation)) return;
    const res = await fetch("/api/preview");
    frame.srcdoc = await res.text();
    frame.dataset.generation = String(generation);
    if (document.activeElement !== ta) {
      show(await api("GET", "/api/buffers"));
    }
  }

  ta.addEventListener("input", function () {
    api("PUT", "/api/buffers/" + active, { content: ta.value }).catch(console.warn);
  });
  document.querySelectorAll("[data-tab]").forEach(function (b) {
    b.addEventListener("click", function () {
      api("PUT", "/api/buffers/active", { role: b.dataset.tab }).then(show).catch(console.warn);
    });
  });
  document.querySelectorAll("[data-action]").forEach(function (b) {
    b.addEventListener("click", function () {
      api("POST", b.dataset.action).then(show).catch(function (e) { toast({ level: "error", message: e.message }); });
    });
  });
  document.getElementById("reset").addEventListener("click", function () {
    api("POST", "/api/buffers/reset").then(show).catch(console.warn);
  });
  const form = document.getElementById("save-form");
  if (form) {
    form.addEventListener("submit", function (e) {
      e.preventDefault();
      api("POST", "/api/projects", { title: form.elements.title.value }).catch(console.warn);
    });
  }

  function connect() {
    const scheme = location.protocol === "https:" ? "wss://" : "ws://";
    const ws = new WebSocket(scheme + location.host + "/ws");
    ws.onmessage = function (ev) {
      const msg = JSON.parse(ev.data);
      if (msg.type === "frame") refresh(msg.generation);
      else if (msg.type === "notification") toast(msg);
    };
    ws.onclose = function () { setTimeout(connect, 1000); };
  }
  connect();
})();
`
