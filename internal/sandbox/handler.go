package sandbox

import (
	"io"
	"net/http"
	"strconv"
)

// ApplyHeaders sets the isolation headers for a frame document response.
func (p Policy) ApplyHeaders(h http.Header) {
	h.Set("Content-Security-Policy", p.Header())
	h.Set("Referrer-Policy", p.ReferrerPolicy)
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Cache-Control", "no-store")
	h.Set("Content-Type", "text/html; charset=utf-8")
}

// Handler serves the current frame document. A request for a superseded
// generation (?generation=N) gets 410 so a stale iframe cannot resurrect old
// content.
func (s *Sandbox) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		frame, ok := s.Current()
		if !ok {
			http.Error(w, "no preview frame", http.StatusNotFound)
			return
		}

		if raw := r.URL.Query().Get("generation"); raw != "" {
			gen, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				http.Error(w, "invalid generation", http.StatusBadRequest)
				return
			}
			if gen != frame.Generation {
				http.Error(w, "frame superseded", http.StatusGone)
				return
			}
		}

		s.policy.ApplyHeaders(w.Header())
		w.Header().Set("X-Frame-Generation", strconv.FormatUint(frame.Generation, 10))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodHead {
			return
		}
		_, _ = io.WriteString(w, frame.Document)
	})
}
