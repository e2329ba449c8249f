package logger

const (
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	FieldUserID    = "user_id"
	FieldConnID    = "conn_id"
	FieldComponent = "component"
	FieldChannel   = "channel"
	FieldState     = "state"

	headerRequestID = "X-Request-ID"
)
