package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/SanteonNL/bptrafficlight/app"
	"github.com/SanteonNL/bptrafficlight/dashboard"
	"github.com/SanteonNL/bptrafficlight/ehr"
	"github.com/SanteonNL/bptrafficlight/export"
	"github.com/SanteonNL/bptrafficlight/importer"
	"github.com/SanteonNL/bptrafficlight/lib/coolfhir"
	"github.com/SanteonNL/bptrafficlight/lib/logging"
	"github.com/SanteonNL/bptrafficlight/reading"
	"github.com/SanteonNL/bptrafficlight/storage"
	"github.com/SanteonNL/bptrafficlight/threshold"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const smartwatchExport = `{"bp":[{"time":"2024-10-18 08:00:00","sys":135,"dia":88},{"time":"2024-10-19 08:00:00","sys":120,"dia":78}]}`

func setup(t *testing.T, importLimit int64) *httptest.Server {
	t.Helper()
	repository := storage.NewRepository(storage.NewMemoryStore())
	projector := dashboard.NewProjector(dashboard.NewFormatter("en", time.UTC), nil)
	service := app.New(ehr.DefaultConfig(), time.UTC, repository, projector, nil)
	mux := http.NewServeMux()
	New(service, importLimit, true).RegisterHandlers(mux)
	httpServer := httptest.NewServer(mux)
	t.Cleanup(httpServer.Close)
	return httpServer
}

func do(t *testing.T, httpServer *httptest.Server, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var requestBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		requestBody = bytes.NewReader(data)
	}
	request, err := http.NewRequest(method, httpServer.URL+path, requestBody)
	require.NoError(t, err)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	httpResponse, err := httpServer.Client().Do(request)
	require.NoError(t, err)
	defer httpResponse.Body.Close()
	responseData, err := io.ReadAll(httpResponse.Body)
	require.NoError(t, err)
	return httpResponse, responseData
}

func errorOf(t *testing.T, data []byte) ErrorResponse {
	var result ErrorResponse
	require.NoError(t, json.Unmarshal(data, &result))
	return result
}

func TestService_Readings(t *testing.T) {
	httpServer := setup(t, 1024)
	input := app.SubmitInput{Systolic: 165, Diastolic: 85, DateTime: "2024-10-16T10:15:00Z"}

	t.Run("submit", func(t *testing.T) {
		httpResponse, data := do(t, httpServer, http.MethodPost, "/api/readings", input)

		require.Equal(t, http.StatusCreated, httpResponse.StatusCode)
		var result app.SubmitResult
		require.NoError(t, json.Unmarshal(data, &result))
		assert.Equal(t, app.RemoteNone, result.Remote)
		assert.Equal(t, "2024-10-16T10:15:00.000Z", result.Reading.DateTime)
	})
	t.Run("duplicate", func(t *testing.T) {
		httpResponse, data := do(t, httpServer, http.MethodPost, "/api/readings", input)

		require.Equal(t, http.StatusBadRequest, httpResponse.StatusCode)
		assert.Contains(t, errorOf(t, data).Error, "SubmitReading failed")
	})
	t.Run("out of range", func(t *testing.T) {
		httpResponse, data := do(t, httpServer, http.MethodPost, "/api/readings", app.SubmitInput{Systolic: 300, Diastolic: 85, DateTime: "2024-10-17T10:15:00Z"})

		require.Equal(t, http.StatusBadRequest, httpResponse.StatusCode)
		assert.Contains(t, errorOf(t, data).Error, "systolic must be between 60 and 250 mmHg")
	})
	t.Run("malformed body", func(t *testing.T) {
		httpResponse, _ := do(t, httpServer, http.MethodPost, "/api/readings", map[string]any{"systolic": "high"})

		require.Equal(t, http.StatusBadRequest, httpResponse.StatusCode)
	})
	t.Run("list", func(t *testing.T) {
		httpResponse, data := do(t, httpServer, http.MethodGet, "/api/readings", nil)

		require.Equal(t, http.StatusOK, httpResponse.StatusCode)
		var readings reading.Collection
		require.NoError(t, json.Unmarshal(data, &readings))
		assert.Len(t, readings, 1)
	})
	t.Run("dashboard", func(t *testing.T) {
		httpResponse, data := do(t, httpServer, http.MethodGet, "/api/dashboard", nil)

		require.Equal(t, http.StatusOK, httpResponse.StatusCode)
		assert.Equal(t, "application/json", httpResponse.Header.Get("Content-Type"))
		var result app.DashboardResult
		require.NoError(t, json.Unmarshal(data, &result))
		require.True(t, result.Latest.HasData)
		assert.Equal(t, threshold.LevelRed, result.Latest.Classification.Level)
		assert.Equal(t, 1, result.Distribution.Red.Count)
		assert.Equal(t, app.ModeDisconnected, result.Status.Mode)
	})
}

func TestService_Thresholds(t *testing.T) {
	httpServer := setup(t, 1024)
	custom := threshold.Set{Red: threshold.Cutoff{Systolic: 150, Diastolic: 95}, Yellow: threshold.Cutoff{Systolic: 135, Diastolic: 85}}

	httpResponse, _ := do(t, httpServer, http.MethodPut, "/api/thresholds", custom)
	require.Equal(t, http.StatusOK, httpResponse.StatusCode)
	httpResponse, data := do(t, httpServer, http.MethodGet, "/api/thresholds", nil)
	require.Equal(t, http.StatusOK, httpResponse.StatusCode)
	var actual threshold.Set
	require.NoError(t, json.Unmarshal(data, &actual))
	assert.Equal(t, custom, actual)

	t.Run("invalid set", func(t *testing.T) {
		invalid := threshold.Set{Red: threshold.Cutoff{Systolic: 130, Diastolic: 95}, Yellow: threshold.Cutoff{Systolic: 140, Diastolic: 85}}
		httpResponse, _ := do(t, httpServer, http.MethodPut, "/api/thresholds", invalid)
		assert.Equal(t, http.StatusBadRequest, httpResponse.StatusCode)
	})
	t.Run("unlock while not locked", func(t *testing.T) {
		httpResponse, _ := do(t, httpServer, http.MethodPost, "/api/thresholds/unlock", passwordRequest{Password: "secret"})
		assert.Equal(t, http.StatusConflict, httpResponse.StatusCode)
	})
	t.Run("lock", func(t *testing.T) {
		httpResponse, _ := do(t, httpServer, http.MethodPost, "/api/thresholds/lock", passwordRequest{Password: "secret"})
		require.Equal(t, http.StatusOK, httpResponse.StatusCode)

		httpResponse, _ = do(t, httpServer, http.MethodPut, "/api/thresholds", threshold.DefaultSet())
		assert.Equal(t, http.StatusForbidden, httpResponse.StatusCode)
		httpResponse, _ = do(t, httpServer, http.MethodPost, "/api/thresholds/reset", nil)
		assert.Equal(t, http.StatusForbidden, httpResponse.StatusCode)
		httpResponse, _ = do(t, httpServer, http.MethodPost, "/api/thresholds/unlock", passwordRequest{Password: "wrong"})
		assert.Equal(t, http.StatusForbidden, httpResponse.StatusCode)

		httpResponse, data := do(t, httpServer, http.MethodPost, "/api/thresholds/unlock", passwordRequest{Password: "secret"})
		require.Equal(t, http.StatusOK, httpResponse.StatusCode)
		assert.JSONEq(t, `{"locked":false}`, string(data))
		httpResponse, _ = do(t, httpServer, http.MethodPost, "/api/thresholds/reset", nil)
		assert.Equal(t, http.StatusOK, httpResponse.StatusCode)
	})
}

func TestService_Import(t *testing.T) {
	t.Run("raw JSON body", func(t *testing.T) {
		httpServer := setup(t, 1024)

		httpResponse, err := httpServer.Client().Post(httpServer.URL+"/api/import", "application/json", strings.NewReader(smartwatchExport))

		require.NoError(t, err)
		defer httpResponse.Body.Close()
		require.Equal(t, http.StatusOK, httpResponse.StatusCode)
		var result app.ImportResult
		require.NoError(t, json.NewDecoder(httpResponse.Body).Decode(&result))
		assert.Equal(t, 2, result.Imported)
	})
	t.Run("multipart upload", func(t *testing.T) {
		httpServer := setup(t, 1024)
		body := new(bytes.Buffer)
		writer := multipart.NewWriter(body)
		part, err := writer.CreateFormFile("file", "export.json")
		require.NoError(t, err)
		_, _ = part.Write([]byte(smartwatchExport))
		require.NoError(t, writer.Close())

		httpResponse, err := httpServer.Client().Post(httpServer.URL+"/api/import", writer.FormDataContentType(), body)

		require.NoError(t, err)
		defer httpResponse.Body.Close()
		require.Equal(t, http.StatusOK, httpResponse.StatusCode)
		var result app.ImportResult
		require.NoError(t, json.NewDecoder(httpResponse.Body).Decode(&result))
		assert.Equal(t, 2, result.Imported)
		assert.Equal(t, 2, result.Total)
	})
	t.Run("too large", func(t *testing.T) {
		httpServer := setup(t, 16)

		httpResponse, err := httpServer.Client().Post(httpServer.URL+"/api/import", "application/json", strings.NewReader(smartwatchExport))

		require.NoError(t, err)
		defer httpResponse.Body.Close()
		assert.Equal(t, http.StatusRequestEntityTooLarge, httpResponse.StatusCode)
	})
	t.Run("invalid format", func(t *testing.T) {
		httpServer := setup(t, 1024)

		httpResponse, err := httpServer.Client().Post(httpServer.URL+"/api/import", "application/json", strings.NewReader(`{"heart":[]}`))

		require.NoError(t, err)
		defer httpResponse.Body.Close()
		assert.Equal(t, http.StatusBadRequest, httpResponse.StatusCode)
	})
}

func TestService_Connection(t *testing.T) {
	httpServer := setup(t, 1024)

	t.Run("sync while disconnected", func(t *testing.T) {
		httpResponse, _ := do(t, httpServer, http.MethodPost, "/api/sync", nil)
		assert.Equal(t, http.StatusConflict, httpResponse.StatusCode)
	})
	t.Run("export while disconnected", func(t *testing.T) {
		httpResponse, _ := do(t, httpServer, http.MethodGet, "/api/export", nil)
		assert.Equal(t, http.StatusConflict, httpResponse.StatusCode)
	})
	t.Run("no FHIR server falls back to demo", func(t *testing.T) {
		httpResponse, data := do(t, httpServer, http.MethodPost, "/api/connect/fhir", nil)

		require.Equal(t, http.StatusOK, httpResponse.StatusCode)
		var status app.Status
		require.NoError(t, json.Unmarshal(data, &status))
		assert.Equal(t, app.ModeDemo, status.Mode)
		assert.Equal(t, 30, status.Readings)
	})
	t.Run("status", func(t *testing.T) {
		httpResponse, data := do(t, httpServer, http.MethodGet, "/api/status", nil)

		require.Equal(t, http.StatusOK, httpResponse.StatusCode)
		var status app.Status
		require.NoError(t, json.Unmarshal(data, &status))
		assert.Equal(t, app.ModeDemo, status.Mode)
	})
	t.Run("demo mode", func(t *testing.T) {
		httpResponse, _ := do(t, httpServer, http.MethodPost, "/api/connect/demo", nil)
		assert.Equal(t, http.StatusOK, httpResponse.StatusCode)
	})
}

func TestService_ExportWorkbook(t *testing.T) {
	httpServer := setup(t, 1024)
	do(t, httpServer, http.MethodPost, "/api/connect/demo", nil)

	httpResponse, data := do(t, httpServer, http.MethodGet, "/api/export.xlsx", nil)

	require.Equal(t, http.StatusOK, httpResponse.StatusCode)
	assert.Equal(t, export.ContentType, httpResponse.Header.Get("Content-Type"))
	assert.Contains(t, httpResponse.Header.Get("Content-Disposition"), "bp-history-")
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("History")
	require.NoError(t, err)
	assert.Len(t, rows, 31)
}

func TestStatusCodeOf(t *testing.T) {
	for _, tc := range []struct {
		err      error
		expected int
	}{
		{coolfhir.BadRequest("bad"), http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", coolfhir.NewErrorWithCode("gone", http.StatusGone)), http.StatusGone},
		{threshold.ErrLocked, http.StatusForbidden},
		{threshold.ErrInvalidPassword, http.StatusForbidden},
		{threshold.ErrNotLocked, http.StatusConflict},
		{app.ErrNotConnected, http.StatusConflict},
		{fmt.Errorf("read: %w", importer.ErrTooLarge), http.StatusRequestEntityTooLarge},
		{errors.New("boom"), http.StatusInternalServerError},
	} {
		t.Run(tc.err.Error(), func(t *testing.T) {
			assert.Equal(t, tc.expected, statusCodeOf(tc.err))
		})
	}
}

func TestSendError_StrictMode(t *testing.T) {
	t.Run("strict mode hides server error details", func(t *testing.T) {
		rec := httptest.NewRecorder()
		(&Service{strictMode: true}).sendError(t.Context(), rec, errors.New("database password is hunter2"), "Test")

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "hunter2")
	})
	t.Run("non-strict mode includes details", func(t *testing.T) {
		rec := httptest.NewRecorder()
		(&Service{}).sendError(t.Context(), rec, errors.New("connection refused"), "Test")

		assert.Contains(t, rec.Body.String(), "connection refused")
	})
}

func TestWithLogOperation(t *testing.T) {
	buf := new(bytes.Buffer)
	logger := slog.New(logging.ContextHandler{Handler: slog.NewJSONHandler(buf, nil)})
	handler := withLogOperation("GetDashboard")(func(w http.ResponseWriter, r *http.Request) {
		logger.InfoContext(r.Context(), "handled")
	})

	handler(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/dashboard", nil))

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "GetDashboard", record[logging.FieldOperation])
}
