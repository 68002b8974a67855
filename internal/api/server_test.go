package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mingafix/mingafix/internal/config"
	"github.com/mingafix/mingafix/internal/reports"
)

// newTestServer builds a full server over a memory store with a local
// photo bucket and no database.
func newTestServer(t *testing.T, mutate ...func(*config.Config)) *Server {
	t.Helper()
	return newTestServerWith(t, reports.NewMemoryStore(), mutate...)
}

// newTestServerWith is newTestServer over a caller-supplied store.
func newTestServerWith(t *testing.T, store reports.Store, mutate ...func(*config.Config)) *Server {
	t.Helper()

	cfg := &config.Config{
		Server: config.ServerConfig{
			Address:   ":0",
			BodyLimit: 16 * 1024 * 1024,
		},
		Storage: config.StorageConfig{
			Provider:      "local",
			LocalPath:     t.TempDir(),
			Bucket:        "report-photos",
			MaxUploadSize: 10 * 1024 * 1024,
		},
		RateLimit: config.RateLimitConfig{
			Backend:      "memory",
			CreateMax:    30,
			CreateWindow: time.Minute,
			SweepMaxKeys: 1000,
			SweepHorizon: time.Hour,
			GCInterval:   time.Hour,
		},
		BaseURL: "http://localhost:8080",
		Debug:   true,
	}
	for _, m := range mutate {
		m(cfg)
	}

	srv, err := newServer(cfg, nil, store, nil)
	require.NoError(t, err)
	return srv
}

type envelope struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, resp *http.Response) envelope {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var env envelope
	require.NoError(t, json.Unmarshal(body, &env), "body: %s", body)
	return env
}

func postReport(t *testing.T, app *fiber.App, userID, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest("POST", "/reports", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestServer_Index(t *testing.T) {
	srv := newTestServer(t)

	resp, err := srv.App().Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "Mingafix API")
}

func TestServer_Health(t *testing.T) {
	srv := newTestServer(t)

	resp, err := srv.App().Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `"status":"ok"`)
}

func TestCreateReport(t *testing.T) {
	srv := newTestServer(t)

	resp := postReport(t, srv.App(), "citizen-1",
		`{"category":"pothole","lat":4.6097,"lng":-74.0817,"description":"Deep pothole on the bike lane"}`)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	env := decodeEnvelope(t, resp)
	assert.True(t, env.Success)

	var report reports.Report
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.NotEmpty(t, report.ID)
	assert.Equal(t, "citizen-1", report.UserID)
	assert.Equal(t, reports.StatusPending, report.Status)
	assert.Equal(t, 1, report.Version)
}

func TestCreateReport_RequiresUser(t *testing.T) {
	srv := newTestServer(t)

	resp := postReport(t, srv.App(), "", `{"category":"pothole","lat":1,"lng":1}`)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, CodeUserIDRequired, decodeEnvelope(t, resp).Code)
}

func TestCreateReport_Validation(t *testing.T) {
	srv := newTestServer(t)

	t.Run("missing category", func(t *testing.T) {
		resp := postReport(t, srv.App(), "citizen-1", `{"lat":1,"lng":1}`)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, CodeMissingFields, decodeEnvelope(t, resp).Code)
	})

	t.Run("latitude out of range", func(t *testing.T) {
		resp := postReport(t, srv.App(), "citizen-1", `{"category":"pothole","lat":91,"lng":0}`)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, CodeInvalidCoordinates, decodeEnvelope(t, resp).Code)
	})

	t.Run("longitude out of range", func(t *testing.T) {
		resp := postReport(t, srv.App(), "citizen-1", `{"category":"pothole","lat":0,"lng":-200}`)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, CodeInvalidCoordinates, decodeEnvelope(t, resp).Code)
	})

	t.Run("missing coordinates", func(t *testing.T) {
		resp := postReport(t, srv.App(), "citizen-1", `{"category":"pothole"}`)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, CodeMissingFields, decodeEnvelope(t, resp).Code)
	})

	t.Run("missing longitude", func(t *testing.T) {
		resp := postReport(t, srv.App(), "citizen-1", `{"category":"pothole","lat":1}`)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, CodeMissingFields, decodeEnvelope(t, resp).Code)
	})

	t.Run("zero coordinates accepted when present", func(t *testing.T) {
		resp := postReport(t, srv.App(), "citizen-1", `{"category":"pothole","lat":0,"lng":0}`)
		assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	})
}

func TestCreateReport_Duplicate(t *testing.T) {
	srv := newTestServer(t)

	resp := postReport(t, srv.App(), "citizen-1",
		`{"category":"streetlight","lat":4.60970,"lng":-74.08170}`)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	// Same user, same category, a few meters away
	resp = postReport(t, srv.App(), "citizen-1",
		`{"category":"streetlight","lat":4.60975,"lng":-74.08175}`)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, CodeDuplicateReport, decodeEnvelope(t, resp).Code)

	// A different user at the same spot is not a duplicate
	resp = postReport(t, srv.App(), "citizen-2",
		`{"category":"streetlight","lat":4.60975,"lng":-74.08175}`)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	// Same user, different category is not a duplicate either
	resp = postReport(t, srv.App(), "citizen-1",
		`{"category":"pothole","lat":4.60975,"lng":-74.08175}`)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
}

func TestCreateReport_RateLimited(t *testing.T) {
	srv := newTestServer(t, func(cfg *config.Config) {
		cfg.RateLimit.CreateMax = 2
	})

	// Spread coordinates so duplicates never interfere
	coords := []string{"10.0", "20.0", "30.0"}
	for i, lat := range coords[:2] {
		resp := postReport(t, srv.App(), "citizen-1",
			`{"category":"pothole","lat":`+lat+`,"lng":1}`)
		require.Equal(t, fiber.StatusCreated, resp.StatusCode, "request %d", i+1)
	}

	resp := postReport(t, srv.App(), "citizen-1",
		`{"category":"pothole","lat":`+coords[2]+`,"lng":1}`)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), CodeRateLimitExceeded)
	assert.Contains(t, string(body), "retry_after")
}

func TestGetReport(t *testing.T) {
	srv := newTestServer(t)

	resp := postReport(t, srv.App(), "citizen-1", `{"category":"pothole","lat":1,"lng":2}`)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var created reports.Report
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, resp).Data, &created))

	resp, err := srv.App().Test(httptest.NewRequest("GET", "/reports/"+created.ID, nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var fetched reports.Report
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, resp).Data, &fetched))
	assert.Equal(t, created.ID, fetched.ID)
}

func TestGetReport_NotFound(t *testing.T) {
	srv := newTestServer(t)

	resp, err := srv.App().Test(httptest.NewRequest("GET", "/reports/missing-id", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, CodeNotFound, decodeEnvelope(t, resp).Code)
}

func TestListReports_Filters(t *testing.T) {
	srv := newTestServer(t)

	postReport(t, srv.App(), "citizen-1", `{"category":"pothole","lat":1,"lng":1}`)
	postReport(t, srv.App(), "citizen-1", `{"category":"streetlight","lat":2,"lng":2}`)
	postReport(t, srv.App(), "citizen-2", `{"category":"pothole","lat":3,"lng":3}`)

	t.Run("all", func(t *testing.T) {
		resp, err := srv.App().Test(httptest.NewRequest("GET", "/reports", nil))
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		assert.Contains(t, string(body), `"count":3`)
	})

	t.Run("by category", func(t *testing.T) {
		resp, err := srv.App().Test(httptest.NewRequest("GET", "/reports?category=pothole", nil))
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		assert.Contains(t, string(body), `"count":2`)
	})

	t.Run("by user", func(t *testing.T) {
		resp, err := srv.App().Test(httptest.NewRequest("GET", "/reports?user_id=citizen-2", nil))
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		assert.Contains(t, string(body), `"count":1`)
	})

	t.Run("unknown status rejected", func(t *testing.T) {
		resp, err := srv.App().Test(httptest.NewRequest("GET", "/reports?status=bogus", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})
}

func TestUpdateStatus(t *testing.T) {
	srv := newTestServer(t)

	resp := postReport(t, srv.App(), "citizen-1", `{"category":"pothole","lat":1,"lng":2}`)
	var created reports.Report
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, resp).Data, &created))

	req := httptest.NewRequest("PATCH", "/reports/"+created.ID+"/status",
		strings.NewReader(`{"status":"in_progress","updated_by":"operator-7"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var updated reports.Report
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, resp).Data, &updated))
	assert.Equal(t, reports.StatusInProgress, updated.Status)
	assert.Equal(t, 2, updated.Version)
	require.NotNil(t, updated.UpdatedBy)
	assert.Equal(t, "operator-7", *updated.UpdatedBy)
}

func TestUpdateStatus_InvalidState(t *testing.T) {
	srv := newTestServer(t)

	resp := postReport(t, srv.App(), "citizen-1", `{"category":"pothole","lat":1,"lng":2}`)
	var created reports.Report
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, resp).Data, &created))

	req := httptest.NewRequest("PATCH", "/reports/"+created.ID+"/status",
		strings.NewReader(`{"status":"closed"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, CodeInvalidState, decodeEnvelope(t, resp).Code)
}

func TestUpdateStatus_NotFound(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest("PATCH", "/reports/missing/status",
		strings.NewReader(`{"status":"resolved"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestNearbyReports(t *testing.T) {
	srv := newTestServer(t)

	postReport(t, srv.App(), "citizen-1", `{"category":"pothole","lat":4.6097,"lng":-74.0817}`)
	postReport(t, srv.App(), "citizen-2", `{"category":"pothole","lat":4.6098,"lng":-74.0818}`)
	postReport(t, srv.App(), "citizen-3", `{"category":"pothole","lat":10.0,"lng":10.0}`)

	resp, err := srv.App().Test(httptest.NewRequest("GET",
		"/reports/nearby?lat=4.6097&lng=-74.0817&radius=500", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `"count":2`)
	assert.Contains(t, string(body), "distance_meters")

	t.Run("missing coordinates", func(t *testing.T) {
		resp, err := srv.App().Test(httptest.NewRequest("GET", "/reports/nearby", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})
}

func TestStatistics(t *testing.T) {
	srv := newTestServer(t)

	postReport(t, srv.App(), "citizen-1", `{"category":"pothole","lat":1,"lng":1}`)
	postReport(t, srv.App(), "citizen-1", `{"category":"streetlight","lat":2,"lng":2}`)
	postReport(t, srv.App(), "citizen-2", `{"category":"pothole","lat":3,"lng":3}`)

	resp, err := srv.App().Test(httptest.NewRequest("GET", "/statistics", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var stats reports.Stats
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, resp).Data, &stats))
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 3, stats.Pending)
	require.Len(t, stats.TopUsers, 2)
	assert.Equal(t, "citizen-1", stats.TopUsers[0].UserID)
	assert.Equal(t, 2, stats.TopUsers[0].Count)
}

func TestMyReports(t *testing.T) {
	srv := newTestServer(t)

	postReport(t, srv.App(), "citizen-1", `{"category":"pothole","lat":1,"lng":1}`)
	postReport(t, srv.App(), "citizen-2", `{"category":"pothole","lat":2,"lng":2}`)

	req := httptest.NewRequest("GET", "/reports/mine", nil)
	req.Header.Set("X-User-ID", "citizen-1")
	resp, err := srv.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `"count":1`)

	t.Run("requires user", func(t *testing.T) {
		resp, err := srv.App().Test(httptest.NewRequest("GET", "/reports/mine", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})
}

func TestDeleteReport_DebugOnly(t *testing.T) {
	t.Run("mounted in debug mode", func(t *testing.T) {
		srv := newTestServer(t)

		resp := postReport(t, srv.App(), "citizen-1", `{"category":"pothole","lat":1,"lng":1}`)
		var created reports.Report
		require.NoError(t, json.Unmarshal(decodeEnvelope(t, resp).Data, &created))

		resp, err := srv.App().Test(httptest.NewRequest("DELETE", "/reports/"+created.ID, nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	})

	t.Run("absent in production mode", func(t *testing.T) {
		srv := newTestServer(t, func(cfg *config.Config) {
			cfg.Debug = false
		})

		resp, err := srv.App().Test(httptest.NewRequest("DELETE", "/reports/any", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusMethodNotAllowed, resp.StatusCode)
	})
}

func TestTestCreate_SkipsDedupAndRateLimit(t *testing.T) {
	srv := newTestServer(t)

	body := `{"category":"streetlight","lat":4.61,"lng":-74.08,"description":"Flickering lamp"}`
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("POST", "/reports/test", strings.NewReader(body))
		req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)

		resp, err := srv.App().Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

		var report reports.Report
		require.NoError(t, json.Unmarshal(decodeEnvelope(t, resp).Data, &report))
		assert.Equal(t, "test-user", report.UserID)
	}
}

func TestTestCreate_AbsentInProduction(t *testing.T) {
	srv := newTestServer(t, func(cfg *config.Config) {
		cfg.Debug = false
	})

	req := httptest.NewRequest("POST", "/reports/test", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)

	resp, err := srv.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusMethodNotAllowed, resp.StatusCode)
}

// reporterDownStore simulates a reporters table outage while the rest
// of the store keeps working.
type reporterDownStore struct {
	reports.Store
}

func (reporterDownStore) EnsureUser(context.Context, string) error {
	return errors.New("reporters table unavailable")
}

func TestCreateReport_ReporterRegistrationFailureIsNonFatal(t *testing.T) {
	srv := newTestServerWith(t, reporterDownStore{Store: reports.NewMemoryStore()})

	resp := postReport(t, srv.App(), "citizen-1", `{"category":"pothole","lat":1,"lng":1}`)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var report reports.Report
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, resp).Data, &report))
	assert.Equal(t, "citizen-1", report.UserID)
}
