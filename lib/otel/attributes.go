package otel

// Attribute keys used on spans across the service
const (
	HTTPMethod     = "http.method"
	HTTPURL        = "http.url"
	HTTPStatusCode = "http.status_code"
	HTTPStatusText = "http.status_text"

	FHIRResourceType = "fhir.resource_type"

	ReadingSource = "reading.source"
	ReadingCount  = "reading.count"
	SessionMode   = "session.mode"
)
