package web

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/crm/internal/company"
	"github.com/JonMunkholm/crm/internal/config"
	"github.com/JonMunkholm/crm/internal/core"
	"github.com/JonMunkholm/crm/internal/milestone"
	"github.com/JonMunkholm/crm/internal/store/memstore"
)

const sampleCSV = "name,industry,milestone,notes\n" +
	"Acme Corp,Tech,first_call,Warm lead\n" +
	"Globex,Energy,bogus,\n" +
	",Retail,,\n"

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:            8080,
			RequestTimeout:  5 * time.Second,
			ShutdownTimeout: time.Second,
		},
		Import: config.ImportConfig{
			MaxFileSize:   1 << 20,
			MaxConcurrent: 2,
			MaxWaitTime:   time.Second,
			Timeout:       time.Minute,
		},
		Security: config.SecurityConfig{EnableCSP: true},
		Logging:  config.LoggingConfig{Level: "error", Format: "text"},
	}
}

// countingStore records Scan calls and can fail them.
type countingStore struct {
	company.Store
	scans   atomic.Int32
	scanErr error
}

func (s *countingStore) Scan(ctx context.Context, f company.Filter, fn func(company.Company) error) error {
	s.scans.Add(1)
	if s.scanErr != nil {
		return s.scanErr
	}
	return s.Store.Scan(ctx, f, fn)
}

type testEnv struct {
	server *Server
	store  *countingStore
	mem    *memstore.Store
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}
	mem := memstore.New()
	store := &countingStore{Store: mem}
	svc := core.NewService(store, core.Options{
		MaxConcurrentImports: cfg.Import.MaxConcurrent,
		ImportWait:           cfg.Import.MaxWaitTime,
		ImportTimeout:        cfg.Import.Timeout,
	})
	return &testEnv{server: NewServer(svc, cfg), store: store, mem: mem}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) seed(t *testing.T, names ...string) []company.Company {
	t.Helper()
	var out []company.Company
	for _, n := range names {
		c, err := e.mem.Create(context.Background(), company.Patch{Name: n})
		require.NoError(t, err)
		out = append(out, c)
	}
	return out
}

func uploadRequest(t *testing.T, field, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/companies/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func TestImport(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(uploadRequest(t, "file", "leads.csv", sampleCSV))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res struct {
		ImportID string          `json:"import_id"`
		FileName string          `json:"file_name"`
		Phase    string          `json:"phase"`
		Rows     int             `json:"rows"`
		Created  int             `json:"created"`
		Updated  int             `json:"updated"`
		Errors   []core.RowError `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.NotEmpty(t, res.ImportID)
	assert.Equal(t, "leads.csv", res.FileName)
	assert.Equal(t, "complete", res.Phase)
	assert.Equal(t, 3, res.Rows)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 0, res.Updated)
	assert.Equal(t, []core.RowError{{Row: 4, Message: core.MsgNameRequired}}, res.Errors)

	// Second pass updates in place.
	rec = env.do(uploadRequest(t, "file", "leads.csv", sampleCSV))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 2, res.Updated)
	assert.Equal(t, 2, env.mem.Len())
}

func TestImport_HTMXFragment(t *testing.T) {
	env := newTestEnv(t, nil)
	req := uploadRequest(t, "file", "leads.csv", sampleCSV)
	req.Header.Set("HX-Request", "true")

	rec := env.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "2 created, 0 updated, 1 errors")
	assert.Contains(t, rec.Body.String(), "Row 4: Company name is required")
}

func TestImport_Errors(t *testing.T) {
	tests := []struct {
		name       string
		req        func(t *testing.T) *http.Request
		wantStatus int
		wantCode   string
	}{
		{
			name:       "wrong form field",
			req:        func(t *testing.T) *http.Request { return uploadRequest(t, "upload", "a.csv", sampleCSV) },
			wantStatus: http.StatusBadRequest,
			wantCode:   "FILE004",
		},
		{
			name: "not multipart",
			req: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/api/companies/import", strings.NewReader(sampleCSV))
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "FILE004",
		},
		{
			name:       "empty file",
			req:        func(t *testing.T) *http.Request { return uploadRequest(t, "file", "a.csv", "") },
			wantStatus: http.StatusBadRequest,
			wantCode:   "FILE005",
		},
		{
			name:       "malformed csv",
			req:        func(t *testing.T) *http.Request { return uploadRequest(t, "file", "a.csv", "name\n\"Acme\n") },
			wantStatus: http.StatusBadRequest,
			wantCode:   "FILE002",
		},
		{
			name: "too large",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "file", "a.csv", "name\n"+strings.Repeat("Acme Corp\n", 500))
			},
			wantStatus: http.StatusRequestEntityTooLarge,
			wantCode:   "FILE001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, func(c *config.Config) { c.Import.MaxFileSize = 1024 })
			rec := env.do(tt.req(t))

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Code)
			assert.Zero(t, env.mem.Len())
		})
	}
}

func TestExport(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(uploadRequest(t, "file", "leads.csv", sampleCSV))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/companies/export", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Regexp(t, `^attachment; filename="companies_export_\d{8}_\d{6}\.csv"$`, rec.Header().Get("Content-Disposition"))

	r := csv.NewReader(rec.Body)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(records), 2)
	assert.Contains(t, records[0][0], "Generated: ")
	assert.Equal(t, "Total Records: 2", records[0][1])
	assert.Equal(t, core.ExportHeaders, records[1])

	var names []string
	for _, rec := range records[2:] {
		if rec[1] != "" {
			names = append(names, rec[1])
		}
	}
	// Energy sorts before Tech.
	assert.Equal(t, []string{"Globex", "Acme Corp"}, names)
}

func TestExport_Filtered(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(uploadRequest(t, "file", "leads.csv", sampleCSV))

	q := url.Values{"milestone": {"first_call"}}
	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/companies/export?"+q.Encode(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Acme Corp")
	assert.NotContains(t, rec.Body.String(), "Globex")
}

func TestExport_InvalidFilterReadsNothing(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/companies/export?milestone=bogus", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "FLT001", decodeError(t, rec).Code)
	assert.Empty(t, rec.Header().Get("Content-Disposition"))
	assert.Zero(t, env.store.scans.Load())
}

func TestExport_StoreFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.store.scanErr = errors.New("read tcp: connection reset by peer")

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/companies/export", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "DB005", decodeError(t, rec).Code)
	assert.Empty(t, rec.Header().Get("Content-Disposition"))
}

func TestUpdateMilestone(t *testing.T) {
	env := newTestEnv(t, nil)
	acme := env.seed(t, "Acme Corp")[0]
	path := "/api/companies/" + itoa(acme.ID) + "/milestone"

	t.Run("json body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"milestone":"email_sent"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := env.do(req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var got company.Company
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, milestone.EmailSent, got.Milestone)
	})

	t.Run("form value", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader("milestone=successful"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := env.do(req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		c, err := env.mem.Get(context.Background(), acme.ID)
		require.NoError(t, err)
		assert.Equal(t, milestone.Successful, c.Milestone)
	})

	t.Run("htmx badge", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader("milestone=first_call"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("HX-Request", "true")
		rec := env.do(req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `data-milestone="first_call"`)
	})
}

func TestUpdateMilestone_Errors(t *testing.T) {
	env := newTestEnv(t, nil)
	acme := env.seed(t, "Acme Corp")[0]

	tests := []struct {
		name       string
		id         string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"invalid milestone", itoa(acme.ID), `{"milestone":"won"}`, http.StatusBadRequest, "VAL006"},
		{"empty milestone", itoa(acme.ID), `{}`, http.StatusBadRequest, "VAL006"},
		{"broken json", itoa(acme.ID), `{"milestone":`, http.StatusBadRequest, "VAL000"},
		{"non-numeric id", "acme", `{"milestone":"first_call"}`, http.StatusBadRequest, "VAL000"},
		{"unknown company", "9999", `{"milestone":"first_call"}`, http.StatusNotFound, "DB002"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/companies/"+tt.id+"/milestone", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := env.do(req)

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Code)
		})
	}

	c, err := env.mem.Get(context.Background(), acme.ID)
	require.NoError(t, err)
	assert.Equal(t, milestone.NotContacted, c.Milestone, "failed updates must not change the record")
}

func TestMilestoneEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seed(t, "Acme Corp", "Globex")

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/milestones", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var opts []core.MilestoneOption
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &opts))
	require.Len(t, opts, len(milestone.All()))
	assert.Equal(t, "not_contacted", opts[0].Key)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/milestones/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var stats core.MilestoneStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.EqualValues(t, 2, stats.Total)
	assert.EqualValues(t, 2, stats.Counts[0].Count)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/import/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var status core.ImportLimiterStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, 2, status.MaxConcurrent)
	assert.Equal(t, 2, status.Available)
}

func TestDashboard(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seed(t, "Acme Corp")

	rec := env.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "default-src 'self'")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	body := rec.Body.String()
	assert.Contains(t, body, "Not yet contacted")
	assert.Contains(t, body, `action="/api/companies/import"`)
	assert.Contains(t, body, `<option value="waiting_on_contact">Waiting on Contact</option>`)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAPIKeyRequired(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Security.RequireAPIKey = true
		c.Security.APIKeys = []string{"s3cret"}
	})

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/milestones", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/milestones", nil)
	req.Header.Set("X-API-Key", "s3cret")
	rec = env.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health stays open for probes.
	rec = env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2, ImportPerMinute: 1}
	})

	get := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/milestones", nil)
		req.RemoteAddr = ip + ":1234"
		return env.do(req)
	}

	assert.Equal(t, http.StatusOK, get("192.0.2.1").Code)
	assert.Equal(t, http.StatusOK, get("192.0.2.1").Code)

	rec := get("192.0.2.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	assert.Equal(t, "RATE001", decodeError(t, rec).Code)

	assert.Equal(t, http.StatusOK, get("192.0.2.2").Code, "other clients have their own budget")
}

func TestRateLimiter_RefillsAndSweeps(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := newRateLimiter(60)
	rl.now = func() time.Time { return now }

	for range 60 {
		require.True(t, rl.allow("a"))
	}
	assert.False(t, rl.allow("a"))

	now = now.Add(time.Second)
	assert.True(t, rl.allow("a"), "one token per second at 60/min")

	now = now.Add(visitorIdle + time.Second)
	rl.allow("b")
	_, kept := rl.visitors["a"]
	assert.False(t, kept, "idle visitors are swept")
}

func TestStatusForCode(t *testing.T) {
	tests := map[string]int{
		"DB001":   http.StatusConflict,
		"DB002":   http.StatusNotFound,
		"DB005":   http.StatusInternalServerError,
		"FLT001":  http.StatusBadRequest,
		"VAL006":  http.StatusBadRequest,
		"FILE001": http.StatusRequestEntityTooLarge,
		"FILE002": http.StatusBadRequest,
		"IMP002":  http.StatusServiceUnavailable,
		"IMP005":  http.StatusGatewayTimeout,
		"RATE001": http.StatusTooManyRequests,
		"ERR000":  http.StatusInternalServerError,
	}
	for code, want := range tests {
		assert.Equal(t, want, statusForCode(code), code)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
