package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/SanteonNL/bptrafficlight/app"
	"github.com/SanteonNL/bptrafficlight/importer"
	"github.com/SanteonNL/bptrafficlight/lib/coolfhir"
	"github.com/SanteonNL/bptrafficlight/lib/logging"
	"github.com/SanteonNL/bptrafficlight/threshold"
)

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

func sendResponse(httpResponse http.ResponseWriter, statusCode int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		slog.Error("Failed to marshal response", slog.String(logging.FieldError, err.Error()))
		statusCode = http.StatusInternalServerError
		data = []byte(`{"error":"Internal Server Error","status":500}`)
	}
	httpResponse.Header().Set("Content-Type", "application/json")
	httpResponse.WriteHeader(statusCode)
	if _, err := httpResponse.Write(data); err != nil {
		slog.Warn("Failed to write response", slog.String(logging.FieldError, err.Error()))
	}
}

// statusCodeOf maps an error to the HTTP status code reported to the client.
func statusCodeOf(err error) int {
	var errorWithCode *coolfhir.ErrorWithCode
	switch {
	case errors.As(err, &errorWithCode) && errorWithCode.StatusCode > 0:
		return errorWithCode.StatusCode
	case errors.Is(err, threshold.ErrLocked), errors.Is(err, threshold.ErrInvalidPassword):
		return http.StatusForbidden
	case errors.Is(err, threshold.ErrNotLocked), errors.Is(err, app.ErrNotConnected):
		return http.StatusConflict
	case errors.Is(err, importer.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// sendError writes err as JSON error response. Server errors are logged, and their details are only returned
// outside strict mode.
func (s *Service) sendError(ctx context.Context, httpResponse http.ResponseWriter, err error, desc string) {
	statusCode := statusCodeOf(err)
	message := err.Error()
	if statusCode >= http.StatusInternalServerError {
		slog.ErrorContext(ctx, fmt.Sprintf("%s failed", desc), slog.String(logging.FieldError, err.Error()))
		message = http.StatusText(statusCode)
		if !s.strictMode {
			message += ": " + err.Error()
		}
	} else {
		slog.DebugContext(ctx, fmt.Sprintf("%s rejected", desc), slog.String(logging.FieldError, err.Error()))
	}
	sendResponse(httpResponse, statusCode, ErrorResponse{
		Error:  fmt.Sprintf("%s failed: %s", desc, message),
		Status: statusCode,
	})
}

func decodeJSON(request *http.Request, target any) error {
	decoder := json.NewDecoder(request.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return coolfhir.BadRequest("invalid request body: %w", err)
	}
	return nil
}
