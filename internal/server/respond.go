package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	apperrors "github.com/conneroisu/codecraft/internal/errors"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Type  string `json:"type,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError answers with the status derived from err's type. Internal
// causes are logged, not echoed.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	body := errorResponse{Error: http.StatusText(status)}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		body.Code = appErr.Code
		body.Type = string(appErr.Type)
		if status < http.StatusInternalServerError {
			body.Error = appErr.Message
		}
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), err, "Request failed", "path", r.URL.Path)
	}
	writeJSON(w, status, body)
}

// decodeJSON reads a JSON body. An empty body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return apperrors.Wrap(err, apperrors.ErrorTypeValidation, apperrors.ErrCodeInvalidBody, "invalid request body")
}
