package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/SanteonNL/bptrafficlight/app"
	"github.com/SanteonNL/bptrafficlight/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) Config {
	config := DefaultConfig()
	config.Storage.Type = storage.TypeFile
	config.Storage.Dir = t.TempDir()
	config.FHIR.BaseURL = ""
	return config
}

func TestCreateHandler(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	config := testConfig(t)
	config.Public.URL = "http://localhost:8080"
	config.SMARTOnFHIR.Enabled = true
	application, err := NewApplication(ctx, config)
	require.NoError(t, err)
	defer application.Close()

	handler, err := createHandler(ctx, config, application)
	require.NoError(t, err)
	httpServer := httptest.NewServer(handler)
	defer httpServer.Close()

	for _, path := range []string{"/health", "/api/status", "/api/dashboard", "/smart-app-launch/.well-known/jwks.json"} {
		t.Run(path, func(t *testing.T) {
			httpResponse, err := httpServer.Client().Get(httpServer.URL + path)
			require.NoError(t, err)
			defer httpResponse.Body.Close()
			assert.Equal(t, http.StatusOK, httpResponse.StatusCode)
		})
	}
}

func TestNewApplication(t *testing.T) {
	t.Run("no FHIR server configured", func(t *testing.T) {
		application, err := NewApplication(context.Background(), testConfig(t))
		require.NoError(t, err)
		defer application.Close()

		status, err := application.Service.ConnectFHIR(context.Background())

		require.NoError(t, err)
		assert.Equal(t, app.ModeDemo, status.Mode)
	})
	t.Run("invalid storage", func(t *testing.T) {
		config := testConfig(t)
		config.Storage.Type = "s3"

		_, err := NewApplication(context.Background(), config)

		require.ErrorContains(t, err, "failed to open storage")
	})
}

func TestImportAndDashboard(t *testing.T) {
	ctx := context.Background()
	config := testConfig(t)
	in := strings.NewReader(`{"bp":[{"time":"2024-10-18 08:00:00","sys":165,"dia":88},{"time":"2024-10-19 08:00:00","sys":120,"sys2":1}]}`)
	out := new(bytes.Buffer)

	require.NoError(t, Import(ctx, config, in, out))
	assert.Equal(t, "Imported 1 readings (0 skipped, 1 invalid, 2 total)\n", out.String())

	// Readings are persisted, so a new process sees them
	out.Reset()
	require.NoError(t, Dashboard(ctx, config, out))
	var result app.DashboardResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	require.True(t, result.Latest.HasData)
	assert.Equal(t, 165, result.Latest.Reading.Systolic)
	assert.Equal(t, 1, result.Distribution.Red.Count)
}
