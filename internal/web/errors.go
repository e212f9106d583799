package web

// errors.go turns handler errors into responses.
//
// The flow:
//  1. Handler calls respondError(w, r, err)
//  2. core.MapError picks the user message and code
//  3. The code picks the HTTP status
//  4. The technical error is logged with the request ID
//  5. The message is rendered as an HTMX fragment, JSON or plain text

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/JonMunkholm/crm/internal/core"
	"github.com/JonMunkholm/crm/internal/logging"
	"github.com/JonMunkholm/crm/internal/web/templates"
)

// ErrorResponse is the JSON body of an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs err and writes the matching user-facing response.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	msg := core.MapError(err)
	status := statusForCode(msg.Code)

	logger := logging.FromContext(r.Context()).With(
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"code", msg.Code,
		"error", err.Error(),
	)
	if status >= http.StatusInternalServerError {
		logger.Error("request error")
	} else {
		logger.Warn("request error")
	}

	switch {
	case isHTMX(r):
		renderErrorPartial(w, r, msg, status)
	case wantsJSON(r):
		respondErrorJSON(w, msg, status)
	default:
		http.Error(w, msg.Message+" ("+msg.Code+")", status)
	}
}

// statusForCode maps core.UserMessage codes to HTTP status codes.
func statusForCode(code string) int {
	switch code {
	case "DB001":
		return http.StatusConflict
	case "DB002":
		return http.StatusNotFound
	case "FILE001":
		return http.StatusRequestEntityTooLarge
	case "IMP002", "IMP004":
		return http.StatusServiceUnavailable
	case "IMP005":
		return http.StatusGatewayTimeout
	case "RATE001":
		return http.StatusTooManyRequests
	}
	switch {
	case strings.HasPrefix(code, "VAL"), strings.HasPrefix(code, "FLT"), strings.HasPrefix(code, "FILE"):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

func renderErrorPartial(w http.ResponseWriter, r *http.Request, msg core.UserMessage, status int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = templates.ErrorAlert(msg.Message, msg.Action, msg.Code).Render(r.Context(), w)
}

// isHTMX checks if the request is an HTMX request.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// wantsJSON reports whether the client should get a JSON error. API routes
// always do.
func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.Contains(r.Header.Get("Content-Type"), "application/json") ||
		strings.HasPrefix(r.URL.Path, "/api/")
}
