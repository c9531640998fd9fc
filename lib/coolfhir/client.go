package coolfhir

import (
	"log/slog"
	"net/http"

	fhirclient "github.com/SanteonNL/go-fhir-client"
)

// Config returns the FHIR client configuration used for both the generic FHIR server and SMART sessions.
// Searches are performed as GET requests, since not every EHR supports POST-based _search.
func Config() *fhirclient.Config {
	config := fhirclient.DefaultConfig()
	config.UsePostSearch = false
	config.DefaultOptions = []fhirclient.Option{
		fhirclient.RequestHeaders(map[string][]string{
			"Cache-Control": {"no-cache"},
		}),
	}
	config.Non2xxStatusHandler = func(response *http.Response, responseBody []byte) {
		slog.Debug(
			"Non-2xx status code from FHIR server",
			slog.String("method", response.Request.Method),
			slog.String("url", response.Request.URL.String()),
			slog.Int("status", response.StatusCode),
			slog.String("content", string(responseBody)),
		)
	}
	return &config
}
