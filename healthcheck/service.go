package healthcheck

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/SanteonNL/bptrafficlight/lib/logging"
)

const checkTimeout = 5 * time.Second

// Check reports whether a dependency of the service is healthy.
type Check func(ctx context.Context) error

func New(checks map[string]Check) *Service {
	return &Service{checks: checks}
}

type Service struct {
	checks map[string]Check
}

func (s Service) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealthCheck)
}

func (s Service) handleHealthCheck(writer http.ResponseWriter, request *http.Request) {
	ctx, cancel := context.WithTimeout(request.Context(), checkTimeout)
	defer cancel()
	response := map[string]string{"status": "up"}
	statusCode := http.StatusOK
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			slog.WarnContext(ctx, "Health check failed", slog.String("check", name), slog.String(logging.FieldError, err.Error()))
			response[name] = "down"
			response["status"] = "down"
			statusCode = http.StatusServiceUnavailable
		} else {
			response[name] = "up"
		}
	}
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(statusCode)
	_ = json.NewEncoder(writer).Encode(response)
}
