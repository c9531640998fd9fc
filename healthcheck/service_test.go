package healthcheck

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func healthCheck(t *testing.T, service *Service) (int, map[string]string) {
	mux := http.NewServeMux()
	service.RegisterHandlers(mux)
	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var response map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	return rec.Code, response
}

func TestHandleHealthCheck(t *testing.T) {
	t.Run("no checks", func(t *testing.T) {
		code, response := healthCheck(t, New(nil))

		require.Equal(t, http.StatusOK, code)
		require.Equal(t, map[string]string{"status": "up"}, response)
	})
	t.Run("storage up", func(t *testing.T) {
		code, response := healthCheck(t, New(map[string]Check{
			"storage": func(context.Context) error { return nil },
		}))

		require.Equal(t, http.StatusOK, code)
		require.Equal(t, map[string]string{"status": "up", "storage": "up"}, response)
	})
	t.Run("storage down", func(t *testing.T) {
		code, response := healthCheck(t, New(map[string]Check{
			"storage": func(context.Context) error { return errors.New("connection refused") },
		}))

		require.Equal(t, http.StatusServiceUnavailable, code)
		require.Equal(t, map[string]string{"status": "down", "storage": "down"}, response)
	})
}
