package logging

// Common slog field keys used throughout the application
const (
	FieldCount     = "count"
	FieldDateTime  = "date_time"
	FieldEndpoint  = "endpoint"
	FieldError     = "error"
	FieldIssuer    = "issuer"
	FieldKey       = "key"
	FieldMode      = "mode"
	FieldOperation = "operation"
	FieldPatientID = "patient_id"
	FieldPath      = "path"
	FieldSource    = "source"
	FieldUrl       = "url"
)
