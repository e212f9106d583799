package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/crm/internal/config"
)

func echoRemoteAddr() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.RemoteAddr))
	})
}

func TestTrustedRealIP(t *testing.T) {
	tests := []struct {
		name    string
		trusted []string
		remote  string
		headers map[string]string
		want    string
	}{
		{
			name:    "no trusted proxies ignores headers",
			remote:  "10.0.0.5:1234",
			headers: map[string]string{"X-Real-IP": "203.0.113.9"},
			want:    "10.0.0.5:1234",
		},
		{
			name:    "untrusted peer ignores headers",
			trusted: []string{"10.0.0.0/8"},
			remote:  "192.0.2.1:1234",
			headers: map[string]string{"X-Real-IP": "203.0.113.9"},
			want:    "192.0.2.1:1234",
		},
		{
			name:    "trusted peer uses X-Real-IP",
			trusted: []string{"10.0.0.0/8"},
			remote:  "10.0.0.5:1234",
			headers: map[string]string{"X-Real-IP": "203.0.113.9"},
			want:    "203.0.113.9",
		},
		{
			name:    "trusted peer uses first X-Forwarded-For entry",
			trusted: []string{"10.0.0.0/8"},
			remote:  "10.0.0.5:1234",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.7"},
			want:    "203.0.113.9",
		},
		{
			name:    "bare address is trusted",
			trusted: []string{"127.0.0.1"},
			remote:  "127.0.0.1:5555",
			headers: map[string]string{"X-Real-IP": "198.51.100.4"},
			want:    "198.51.100.4",
		},
		{
			name:    "garbage header is ignored",
			trusted: []string{"10.0.0.0/8"},
			remote:  "10.0.0.5:1234",
			headers: map[string]string{"X-Real-IP": "not-an-ip"},
			want:    "10.0.0.5:1234",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()

			TrustedRealIP(tt.trusted)(echoRemoteAddr()).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Body.String())
		})
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[::1]:8080"
	assert.Equal(t, "::1", ClientIP(req))

	req.RemoteAddr = "203.0.113.9"
	assert.Equal(t, "203.0.113.9", ClientIP(req))
}

func TestAPIKeyAuth(t *testing.T) {
	cfg := config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"alpha", "beta"}}
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := APIKeyAuth(cfg)(ok)

	tests := []struct {
		name     string
		header   string
		value    string
		wantCode int
		wantErr  string
	}{
		{"missing key", "", "", http.StatusUnauthorized, CodeMissingKey},
		{"wrong key", "X-API-Key", "gamma", http.StatusForbidden, CodeInvalidKey},
		{"header key", "X-API-Key", "beta", http.StatusNoContent, ""},
		{"bearer token", "Authorization", "Bearer alpha", http.StatusNoContent, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/milestones", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantErr != "" {
				var body map[string]string
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, tt.wantErr, body["code"])
			}
		})
	}
}

func TestAPIKeyAuth_Disabled(t *testing.T) {
	handler := APIKeyAuth(config.SecurityConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/milestones", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRequestLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))

	handler := RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("missing"))
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/companies/9/milestone", nil)
	req.RemoteAddr = "192.0.2.1:4000"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "request", entry["msg"])
	assert.EqualValues(t, 404, entry["status"])
	assert.EqualValues(t, 7, entry["bytes"])
	assert.Equal(t, "192.0.2.1", entry["ip"])
}
