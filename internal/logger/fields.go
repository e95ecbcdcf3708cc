package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Standard tracing fields, propagated through the call chain via context.
const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldJobID is the pipeline job ID
	FieldJobID = "job_id"

	// FieldPhase is the pipeline phase name (normalize, upsert, enrich)
	FieldPhase = "phase"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldDate is the calendar day an enrichment operation applies to
	FieldDate = "date"
)

// Standard metric fields, attached at the log call site.
const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldStatus is the operation status
	FieldStatus = "status"
)
